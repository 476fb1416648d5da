package signers

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"

	"github.com/marwen-abid/stablecoin-sdk-go"
	corecrypto "github.com/marwen-abid/stablecoin-sdk-go/core/crypto"
)

// ed25519Signer wraps a stellar/go keypair. Its raw seed and public key are the
// plain 32-byte ED25519 values the ledger uses.
type ed25519Signer struct {
	kp        *keypair.Full
	publicKey stablecoin.PublicKey
}

// FromED25519Seed creates a Signer from a hex-encoded 32-byte ED25519 seed.
// A DER-encoded private key (302e0201...) is accepted as well.
func FromED25519Seed(seedHex string) (stablecoin.Signer, error) {
	seedHex = strings.TrimPrefix(strings.TrimPrefix(seedHex, "0x"), "302e020100300506032b657004220420")
	raw, err := hex.DecodeString(seedHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("invalid ed25519 seed: expected 32 hex-encoded bytes")
	}
	var seed [32]byte
	copy(seed[:], raw)

	kp, err := keypair.FromRawSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 seed: %w", err)
	}
	pub, err := strkey.Decode(strkey.VersionByteAccountID, kp.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	return &ed25519Signer{
		kp:        kp,
		publicKey: stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, hex.EncodeToString(pub)),
	}, nil
}

// PublicKey returns the raw ED25519 public key.
func (s *ed25519Signer) PublicKey() stablecoin.PublicKey {
	return s.publicKey
}

// Sign signs the payload itself.
func (s *ed25519Signer) Sign(_ context.Context, payload []byte) ([]byte, error) {
	return s.kp.Sign(payload)
}

// ecdsaSigner signs keccak256 digests with a secp256k1 key.
type ecdsaSigner struct {
	key       *ecdsa.PrivateKey
	publicKey stablecoin.PublicKey
}

// FromECDSAKey creates a Signer from a hex-encoded secp256k1 private key.
func FromECDSAKey(keyHex string) (stablecoin.Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
	}
	return FromECDSAPrivateKey(key), nil
}

// FromECDSAPrivateKey wraps an already parsed secp256k1 key.
func FromECDSAPrivateKey(key *ecdsa.PrivateKey) stablecoin.Signer {
	return &ecdsaSigner{
		key:       key,
		publicKey: stablecoin.NewPublicKey(stablecoin.KeyTypeECDSA, hex.EncodeToString(ethcrypto.CompressPubkey(&key.PublicKey))),
	}
}

// PublicKey returns the compressed secp256k1 public key.
func (s *ecdsaSigner) PublicKey() stablecoin.PublicKey {
	return s.publicKey
}

// Sign returns the 64-byte r||s signature over keccak256(payload).
func (s *ecdsaSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(corecrypto.Keccak256(payload), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return sig[:64], nil
}

// callbackSigner wraps a custom signing function for external signing services.
type callbackSigner struct {
	publicKey stablecoin.PublicKey
	signFunc  func(context.Context, []byte) ([]byte, error)
}

// FromCallback creates a Signer from a public key and an arbitrary signing function.
// Intended for wrapping HSMs, custodial APIs, or any external signing service.
func FromCallback(
	publicKey stablecoin.PublicKey,
	signFunc func(context.Context, []byte) ([]byte, error),
) stablecoin.Signer {
	return &callbackSigner{
		publicKey: publicKey,
		signFunc:  signFunc,
	}
}

// PublicKey returns the key the callback signs for.
func (s *callbackSigner) PublicKey() stablecoin.PublicKey {
	return s.publicKey
}

// Sign delegates to the callback function.
func (s *callbackSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	return s.signFunc(ctx, payload)
}
