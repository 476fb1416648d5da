// Package crypto holds the key and signature helpers shared by signers, the
// multi-signature coordinator and the adapters.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"

	"github.com/marwen-abid/stablecoin-sdk-go"
)

// DER prefixes the mirror prepends to raw public keys.
const (
	ed25519DERPrefix = "302a300506032b6570032100"
	ecdsaDERPrefix   = "302d300706052b8104000a032200"
)

// GenerateID returns a random opaque identifier.
func GenerateID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape produced by GenerateID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// RawPublicKey strips an optional DER prefix and decodes the hex key.
func RawPublicKey(pk stablecoin.PublicKey) ([]byte, error) {
	s := pk.String()
	switch pk.Type {
	case stablecoin.KeyTypeED25519:
		s = strings.TrimPrefix(s, ed25519DERPrefix)
	case stablecoin.KeyTypeECDSA:
		s = strings.TrimPrefix(s, ecdsaDERPrefix)
	default:
		return nil, fmt.Errorf("unsupported key type %q", pk.Type)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	return raw, nil
}

// VerifySignature verifies signature over message for pk.
// ED25519 signatures cover the message itself; ECDSA_SECP256K1 signatures
// cover its keccak256 digest and are 64-byte r||s (a trailing recovery byte is ignored).
// It returns false with a nil error for a well-formed key and a bad signature.
func VerifySignature(pk stablecoin.PublicKey, message, signature []byte) (bool, error) {
	raw, err := RawPublicKey(pk)
	if err != nil {
		return false, err
	}

	switch pk.Type {
	case stablecoin.KeyTypeED25519:
		address, err := strkey.Encode(strkey.VersionByteAccountID, raw)
		if err != nil {
			return false, fmt.Errorf("failed to encode ed25519 key: %w", err)
		}
		kp, err := keypair.ParseAddress(address)
		if err != nil {
			return false, fmt.Errorf("failed to parse public key: %w", err)
		}
		return kp.Verify(message, signature) == nil, nil

	case stablecoin.KeyTypeECDSA:
		if len(signature) == 65 {
			signature = signature[:64]
		}
		if len(signature) != 64 {
			return false, nil
		}
		return ethcrypto.VerifySignature(raw, Keccak256(message), signature), nil
	}

	return false, fmt.Errorf("unsupported key type %q", pk.Type)
}

// EVMAddress derives the EVM address of an ECDSA_SECP256K1 public key.
func EVMAddress(pk stablecoin.PublicKey) (string, error) {
	if pk.Type != stablecoin.KeyTypeECDSA {
		return "", fmt.Errorf("evm address requires an ECDSA_SECP256K1 key, got %q", pk.Type)
	}
	raw, err := RawPublicKey(pk)
	if err != nil {
		return "", err
	}
	pub, err := ethcrypto.DecompressPubkey(raw)
	if err != nil {
		return "", fmt.Errorf("invalid secp256k1 key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

// Keccak256 returns the keccak256 digest of data.
func Keccak256(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

// HashSHA256 computes the SHA256 hash of the provided data and returns it as a byte slice.
func HashSHA256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}
