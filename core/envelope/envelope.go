// Package envelope defines the canonical wire form of a prepared transaction.
//
// A Transaction is encoded once into a deterministic CBOR body. Every signer
// signs exactly those bytes, and the signatures travel next to the body in a
// Signed envelope that the native gateway accepts. Multi-signature records
// store the body as their message.
package envelope

import (
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// ContentType is the media type of encoded bodies and envelopes.
const ContentType = "application/cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

type body struct {
	Kind          string        `cbor:"1,keyasint"`
	Operation     string        `cbor:"2,keyasint"`
	TokenID       string        `cbor:"3,keyasint,omitempty"`
	Payer         string        `cbor:"4,keyasint"`
	ValidStart    int64         `cbor:"5,keyasint"` // unix nanoseconds
	ValidDuration int64         `cbor:"6,keyasint"` // seconds
	Memo          string        `cbor:"7,keyasint,omitempty"`
	Native        []nativeCall  `cbor:"8,keyasint,omitempty"`
	Contract      *contractCall `cbor:"9,keyasint,omitempty"`
}

type nativeCall struct {
	Type    string `cbor:"1,keyasint"`
	TokenID string `cbor:"2,keyasint"`
	Account string `cbor:"3,keyasint,omitempty"`
	Source  string `cbor:"4,keyasint,omitempty"`
	Amount  string `cbor:"5,keyasint,omitempty"` // base-10 raw units
}

type contractCall struct {
	To       string `cbor:"1,keyasint"`
	Function string `cbor:"2,keyasint,omitempty"`
	Data     []byte `cbor:"3,keyasint"`
	Gas      uint64 `cbor:"4,keyasint"`
}

// Encode returns the canonical body bytes of tx.
func Encode(tx *stablecoin.Transaction) ([]byte, error) {
	if tx == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "transaction is nil", nil)
	}
	b := body{
		Kind:          string(tx.Kind),
		Operation:     string(tx.Operation),
		TokenID:       tx.TokenID,
		Payer:         tx.Payer,
		ValidStart:    tx.ValidStart.UnixNano(),
		ValidDuration: int64(tx.ValidDuration / time.Second),
		Memo:          tx.Memo,
	}
	for _, c := range tx.Native {
		nc := nativeCall{Type: string(c.Type), TokenID: c.TokenID, Account: c.Account, Source: c.Source}
		if c.Amount != nil {
			nc.Amount = c.Amount.String()
		}
		b.Native = append(b.Native, nc)
	}
	if tx.Contract != nil {
		b.Contract = &contractCall{
			To:       tx.Contract.To,
			Function: tx.Contract.Function,
			Data:     tx.Contract.Data,
			Gas:      tx.Contract.Gas,
		}
	}
	out, err := encMode.Marshal(b)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode transaction body", err)
	}
	return out, nil
}

// Decode parses body bytes produced by Encode.
func Decode(data []byte) (*stablecoin.Transaction, error) {
	var b body
	if err := decMode.Unmarshal(data, &b); err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to decode transaction body", err)
	}
	tx := &stablecoin.Transaction{
		Kind:          stablecoin.TransactionKind(b.Kind),
		Operation:     stablecoin.Operation(b.Operation),
		TokenID:       b.TokenID,
		Payer:         b.Payer,
		ValidStart:    time.Unix(0, b.ValidStart).UTC(),
		ValidDuration: time.Duration(b.ValidDuration) * time.Second,
		Memo:          b.Memo,
	}
	for _, c := range b.Native {
		call := stablecoin.NativeCall{
			Type:    stablecoin.NativeCallType(c.Type),
			TokenID: c.TokenID,
			Account: c.Account,
			Source:  c.Source,
		}
		if c.Amount != "" {
			amount, ok := new(big.Int).SetString(c.Amount, 10)
			if !ok {
				return nil, errors.NewConfigError(errors.INVALID_AMOUNT, fmt.Sprintf("invalid amount %q in transaction body", c.Amount), nil)
			}
			call.Amount = amount
		}
		tx.Native = append(tx.Native, call)
	}
	if b.Contract != nil {
		tx.Contract = &stablecoin.ContractCall{
			To:       b.Contract.To,
			Function: b.Contract.Function,
			Data:     b.Contract.Data,
			Gas:      b.Contract.Gas,
		}
	}
	return tx, nil
}

// SignaturePair is one signer's signature over the body.
type SignaturePair struct {
	PublicKey stablecoin.PublicKey `cbor:"1,keyasint"`
	Signature []byte               `cbor:"2,keyasint"`
}

// Signed is a body with its ordered signatures.
type Signed struct {
	Body       []byte          `cbor:"1,keyasint"`
	Signatures []SignaturePair `cbor:"2,keyasint"`
}

// NewSigned pairs keys[i] with signatures[i].
func NewSigned(body []byte, keys []stablecoin.PublicKey, signatures [][]byte) (*Signed, error) {
	if len(keys) != len(signatures) {
		return nil, errors.NewConfigError(
			errors.INVALID_ARGUMENT,
			fmt.Sprintf("%d keys for %d signatures", len(keys), len(signatures)),
			nil,
		)
	}
	s := &Signed{Body: body}
	for i := range keys {
		s.Signatures = append(s.Signatures, SignaturePair{PublicKey: keys[i], Signature: signatures[i]})
	}
	return s, nil
}

// Marshal encodes the envelope.
func (s *Signed) Marshal() ([]byte, error) {
	out, err := encMode.Marshal(s)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode signed envelope", err)
	}
	return out, nil
}

// UnmarshalSigned decodes an envelope.
func UnmarshalSigned(data []byte) (*Signed, error) {
	var s Signed
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to decode signed envelope", err)
	}
	return &s, nil
}
