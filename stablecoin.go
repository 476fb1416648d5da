// Package stablecoin provides the transaction-execution core of a stablecoin SDK.
// It resolves which backend serves an operation for a token (native token service
// or a contract facet behind a proxy), enforces supply, allowance and reserve
// invariants before dispatch, and coordinates offline multi-signature collection
// for threshold accounts. Signing, persistence and ledger transport are delegated
// to the caller through the ports declared in this package.
package stablecoin

import (
	"math/big"
	"strings"

	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Operation names a ledger-agnostic stablecoin operation.
type Operation string

const (
	OpCashIn              Operation = "CASH_IN"
	OpBurn                Operation = "BURN"
	OpWipe                Operation = "WIPE"
	OpFreeze              Operation = "FREEZE"
	OpUnfreeze            Operation = "UNFREEZE"
	OpPause               Operation = "PAUSE"
	OpUnpause             Operation = "UNPAUSE"
	OpDelete              Operation = "DELETE"
	OpRescue              Operation = "RESCUE"
	OpTransfer            Operation = "TRANSFER"
	OpGrantKyc            Operation = "GRANT_KYC"
	OpRevokeKyc           Operation = "REVOKE_KYC"
	OpRoleManagement      Operation = "ROLE_MANAGEMENT"
	OpRoleAdminManagement Operation = "ROLE_ADMIN_MANAGEMENT"
	OpReserveManagement   Operation = "RESERVE_MANAGEMENT"
)

// Access is the execution path that serves an operation.
type Access string

const (
	// AccessNativeService routes through the ledger's built-in token primitives.
	AccessNativeService Access = "NATIVE_SERVICE"

	// AccessContract routes through the stablecoin contract facet behind the proxy.
	AccessContract Access = "CONTRACT"
)

// Capability pairs an operation with the backend that serves it.
type Capability struct {
	Operation Operation
	Access    Access
}

// TokenCapabilities is the ordered capability list of a token for one account.
// It is derived fresh for every high-level call and never cached.
type TokenCapabilities struct {
	TokenID      string
	Account      string
	Capabilities []Capability
}

// Resolve returns the first Access registered for op.
// An operation with no entry fails with OPERATION_UNSUPPORTED.
func (c TokenCapabilities) Resolve(op Operation) (Access, error) {
	for _, capability := range c.Capabilities {
		if capability.Operation == op {
			return capability.Access, nil
		}
	}
	return "", errors.NewCapabilityError(
		errors.OPERATION_UNSUPPORTED,
		"operation "+string(op)+" is not supported for token "+c.TokenID,
		nil,
	).WithContext("token", c.TokenID).WithContext("operation", string(op))
}

// Supports reports whether op has any capability entry.
func (c TokenCapabilities) Supports(op Operation) bool {
	_, err := c.Resolve(op)
	return err == nil
}

// KeyType is the curve of a public key.
type KeyType string

const (
	KeyTypeED25519 KeyType = "ED25519"
	KeyTypeECDSA   KeyType = "ECDSA_SECP256K1"
)

// PublicKey is a raw public key encoded as lowercase hex without a 0x prefix.
type PublicKey struct {
	Type KeyType `json:"type" cbor:"1,keyasint"`
	Key  string  `json:"key" cbor:"2,keyasint"`
}

// NewPublicKey normalizes a hex key.
func NewPublicKey(keyType KeyType, hexKey string) PublicKey {
	return PublicKey{Type: keyType, Key: normalizeHex(hexKey)}
}

// IsZero reports whether the key is empty.
func (k PublicKey) IsZero() bool {
	return k.Key == ""
}

// Equal compares keys ignoring hex case and prefix.
func (k PublicKey) Equal(other PublicKey) bool {
	return !k.IsZero() && normalizeHex(k.Key) == normalizeHex(other.Key)
}

func (k PublicKey) String() string {
	return normalizeHex(k.Key)
}

func normalizeHex(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

// KeyKind tells how a token role key is bound.
type KeyKind int

const (
	KeyNone KeyKind = iota
	KeyPublic
	KeyContract
	KeyThreshold
)

// KeyBinding is a token role key as reported by the mirror.
type KeyBinding struct {
	Kind       KeyKind
	PublicKey  PublicKey   // KeyPublic
	ContractID string      // KeyContract, "shard.realm.num"
	Threshold  int         // KeyThreshold
	Keys       []PublicKey // KeyThreshold
}

// IsContract reports whether the key delegates to contractID.
func (b KeyBinding) IsContract(contractID string) bool {
	return b.Kind == KeyContract && contractID != "" && b.ContractID == contractID
}

// IsPublicKey reports whether the key is exactly pk.
func (b KeyBinding) IsPublicKey(pk PublicKey) bool {
	return b.Kind == KeyPublic && b.PublicKey.Equal(pk)
}

// Account identifies the operating account of the SDK.
type Account struct {
	ID         string
	PublicKey  PublicKey
	EVMAddress string
}

// StableCoin is the token aggregate. It is loaded per operation and never kept
// across requests.
type StableCoin struct {
	TokenID          string
	Name             string
	Symbol           string
	Decimals         int
	TreasuryAccount  string
	ProxyAddress     string // EVM address of the proxy, empty for native-only tokens
	ProxyContractID  string
	AutoRenewAccount string
	Memo             string
	TotalSupply      *big.Int
	MaxSupply        *big.Int // 0 means unbounded
	Paused           bool
	Deleted          bool
	ReserveAddress   string

	AdminKey       KeyBinding
	FreezeKey      KeyBinding
	KYCKey         KeyBinding
	WipeKey        KeyBinding
	PauseKey       KeyBinding
	SupplyKey      KeyBinding
	FeeScheduleKey KeyBinding
}

// Bounded reports whether the token has a non-zero max supply.
func (c *StableCoin) Bounded() bool {
	return c.MaxSupply != nil && c.MaxSupply.Sign() > 0
}

// RemainingSupply returns maxSupply - totalSupply, or nil when unbounded.
func (c *StableCoin) RemainingSupply() *big.Int {
	if !c.Bounded() {
		return nil
	}
	return new(big.Int).Sub(c.MaxSupply, supplyOrZero(c.TotalSupply))
}

// HasReserve reports whether a reserve feed is configured.
func (c *StableCoin) HasReserve() bool {
	return c.ReserveAddress != "" && !isZeroAddress(c.ReserveAddress)
}

// Validate checks 0 <= totalSupply <= maxSupply (when bounded).
func (c *StableCoin) Validate() error {
	total := supplyOrZero(c.TotalSupply)
	if total.Sign() < 0 {
		return errors.NewBusinessError(errors.INVALID_AMOUNT, "total supply is negative", nil).
			WithContext("token", c.TokenID)
	}
	if c.Bounded() && total.Cmp(c.MaxSupply) > 0 {
		return errors.NewBusinessError(errors.SUPPLY_CAP_EXCEEDED, "total supply exceeds max supply", nil).
			WithContext("token", c.TokenID).
			WithContext("totalSupply", total.String()).
			WithContext("maxSupply", c.MaxSupply.String())
	}
	return nil
}

func supplyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func isZeroAddress(addr string) bool {
	return strings.Trim(normalizeHex(addr), "0") == ""
}

// AllowanceRecord is the cash-in allowance of an account on a token.
// Limit is meaningful only when Unlimited is false.
type AllowanceRecord struct {
	TokenID   string
	Account   string
	Unlimited bool
	Limit     *big.Int
}

// ReserveSnapshot is a reading of the reserve feed in its native decimals.
type ReserveSnapshot struct {
	Address  string
	Amount   *big.Int
	Decimals int
}
