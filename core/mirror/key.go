package mirror

import (
	"encoding/hex"
	"fmt"

	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/marwen-abid/stablecoin-sdk-go"
)

// Field numbers of the ledger's Key message.
const (
	keyContractID          protowire.Number = 1
	keyED25519             protowire.Number = 2
	keyThresholdKey        protowire.Number = 5
	keyKeyList             protowire.Number = 6
	keyECDSASecp256k1      protowire.Number = 7
	keyDelegatableContract protowire.Number = 8
)

// parseKey converts a mirror key object ({"_type": ..., "key": ...}) into a binding.
func parseKey(v gjson.Result) (stablecoin.KeyBinding, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return stablecoin.KeyBinding{Kind: stablecoin.KeyNone}, nil
	}
	keyHex := v.Get("key").String()
	switch v.Get("_type").String() {
	case "ED25519":
		return publicBinding(stablecoin.KeyTypeED25519, keyHex), nil
	case "ECDSA_SECP256K1":
		return publicBinding(stablecoin.KeyTypeECDSA, keyHex), nil
	case "ProtobufEncoded":
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return stablecoin.KeyBinding{}, fmt.Errorf("invalid protobuf key hex: %w", err)
		}
		return decodeProtobufKey(raw)
	}
	return stablecoin.KeyBinding{}, fmt.Errorf("unsupported key type %q", v.Get("_type").String())
}

func publicBinding(t stablecoin.KeyType, keyHex string) stablecoin.KeyBinding {
	return stablecoin.KeyBinding{Kind: stablecoin.KeyPublic, PublicKey: stablecoin.NewPublicKey(t, keyHex)}
}

func decodeProtobufKey(b []byte) (stablecoin.KeyBinding, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return stablecoin.KeyBinding{}, protowire.ParseError(n)
	}
	if typ != protowire.BytesType {
		return stablecoin.KeyBinding{}, fmt.Errorf("unexpected wire type %d for key field %d", typ, num)
	}
	v, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return stablecoin.KeyBinding{}, protowire.ParseError(m)
	}

	switch num {
	case keyContractID, keyDelegatableContract:
		id, err := decodeContractID(v)
		if err != nil {
			return stablecoin.KeyBinding{}, err
		}
		return stablecoin.KeyBinding{Kind: stablecoin.KeyContract, ContractID: id.String()}, nil
	case keyED25519:
		return publicBinding(stablecoin.KeyTypeED25519, hex.EncodeToString(v)), nil
	case keyECDSASecp256k1:
		return publicBinding(stablecoin.KeyTypeECDSA, hex.EncodeToString(v)), nil
	case keyThresholdKey:
		return decodeThresholdKey(v)
	case keyKeyList:
		keys, err := decodeKeyList(v)
		if err != nil {
			return stablecoin.KeyBinding{}, err
		}
		return stablecoin.KeyBinding{Kind: stablecoin.KeyThreshold, Threshold: len(keys), Keys: keys}, nil
	}
	return stablecoin.KeyBinding{}, fmt.Errorf("unsupported key field %d", num)
}

func decodeContractID(b []byte) (EntityID, error) {
	var id EntityID
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return id, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return id, protowire.ParseError(m)
			}
			b = b[m:]
			continue
		}
		v, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return id, protowire.ParseError(m)
		}
		b = b[m:]
		switch num {
		case 1:
			id.Shard = int64(v)
		case 2:
			id.Realm = int64(v)
		case 3:
			id.Num = int64(v)
		}
	}
	return id, nil
}

func decodeThresholdKey(b []byte) (stablecoin.KeyBinding, error) {
	binding := stablecoin.KeyBinding{Kind: stablecoin.KeyThreshold}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return binding, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return binding, protowire.ParseError(m)
			}
			binding.Threshold = int(v)
			b = b[m:]
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return binding, protowire.ParseError(m)
			}
			keys, err := decodeKeyList(v)
			if err != nil {
				return binding, err
			}
			binding.Keys = keys
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return binding, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return binding, nil
}

// decodeKeyList returns the public keys of a KeyList. Nested lists and contract
// keys cannot sign a multi-signature message and are skipped.
func decodeKeyList(b []byte) ([]stablecoin.PublicKey, error) {
	var keys []stablecoin.PublicKey
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num != 1 || typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			b = b[m:]
			continue
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		b = b[m:]
		key, err := decodeProtobufKey(v)
		if err != nil {
			return nil, err
		}
		if key.Kind == stablecoin.KeyPublic {
			keys = append(keys, key.PublicKey)
		}
	}
	return keys, nil
}
