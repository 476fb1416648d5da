package stablecoin

import (
	"context"
	"math/big"
	"time"
)

// DefaultValidDuration is how long a prepared transaction stays valid after its
// valid start.
const DefaultValidDuration = 180 * time.Second

// TransactionKind tells which family of ledger call a Transaction carries.
type TransactionKind string

const (
	KindNative   TransactionKind = "native"
	KindContract TransactionKind = "contract"
)

// NativeCallType is a native token-service primitive.
type NativeCallType string

const (
	NativeMint      NativeCallType = "TOKEN_MINT"
	NativeBurn      NativeCallType = "TOKEN_BURN"
	NativeWipe      NativeCallType = "TOKEN_WIPE"
	NativeFreeze    NativeCallType = "TOKEN_FREEZE"
	NativeUnfreeze  NativeCallType = "TOKEN_UNFREEZE"
	NativePause     NativeCallType = "TOKEN_PAUSE"
	NativeUnpause   NativeCallType = "TOKEN_UNPAUSE"
	NativeDelete    NativeCallType = "TOKEN_DELETE"
	NativeTransfer  NativeCallType = "TOKEN_TRANSFER"
	NativeGrantKyc  NativeCallType = "TOKEN_GRANT_KYC"
	NativeRevokeKyc NativeCallType = "TOKEN_REVOKE_KYC"
)

// NativeCall is one native token-service primitive.
type NativeCall struct {
	Type    NativeCallType
	TokenID string
	Account string   // target account (wipe, freeze, KYC, transfer destination)
	Source  string   // transfer source
	Amount  *big.Int // raw units in token decimals
}

// ContractCall is an ABI-encoded call on a contract.
type ContractCall struct {
	To       string // EVM address
	Function string
	Data     []byte
	Gas      uint64
}

// Transaction is a prepared, unsigned ledger transaction. Native calls are
// executed atomically in order.
type Transaction struct {
	Kind          TransactionKind
	Operation     Operation
	TokenID       string
	Payer         string
	ValidStart    time.Time
	ValidDuration time.Duration
	Memo          string
	Native        []NativeCall
	Contract      *ContractCall
}

// TransactionResult is the normalized outcome of a mutating call.
// Pending is true when the transaction was parked for multi-signature
// collection instead of being submitted.
type TransactionResult struct {
	TransactionID string
	Status        string
	Response      []byte
	Pending       bool
	MultiSigID    string
}

// Signer turns a payload into a signature. Implementations may call a remote
// custodial service.
type Signer interface {
	// PublicKey returns the key whose signature Sign produces.
	PublicKey() PublicKey

	// Sign signs payload and returns the raw signature bytes.
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Dispatcher signs and submits a prepared transaction on one backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx *Transaction) (*TransactionResult, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, tx *Transaction) (*TransactionResult, error)

// Dispatch calls f(ctx, tx).
func (f DispatcherFunc) Dispatch(ctx context.Context, tx *Transaction) (*TransactionResult, error) {
	return f(ctx, tx)
}

// Allowance specifies a cash-in role grant: either unlimited or bounded by Amount.
type Allowance struct {
	Unlimited bool
	Amount    *big.Int
}

// TransactionAdapter is the uniform operation contract implemented once per
// execution path. Amounts are integers already scaled to the token decimals.
type TransactionAdapter interface {
	CashIn(ctx context.Context, coin *StableCoin, target string, amount *big.Int) (*TransactionResult, error)
	Wipe(ctx context.Context, coin *StableCoin, target string, amount *big.Int) (*TransactionResult, error)
	Burn(ctx context.Context, coin *StableCoin, amount *big.Int) (*TransactionResult, error)
	Freeze(ctx context.Context, coin *StableCoin, target string) (*TransactionResult, error)
	Unfreeze(ctx context.Context, coin *StableCoin, target string) (*TransactionResult, error)
	Pause(ctx context.Context, coin *StableCoin) (*TransactionResult, error)
	Unpause(ctx context.Context, coin *StableCoin) (*TransactionResult, error)
	Rescue(ctx context.Context, coin *StableCoin, amount *big.Int) (*TransactionResult, error)
	Delete(ctx context.Context, coin *StableCoin) (*TransactionResult, error)
	Transfer(ctx context.Context, coin *StableCoin, amount *big.Int, source, target string) (*TransactionResult, error)
	GrantKyc(ctx context.Context, coin *StableCoin, target string) (*TransactionResult, error)
	RevokeKyc(ctx context.Context, coin *StableCoin, target string) (*TransactionResult, error)

	GrantRole(ctx context.Context, coin *StableCoin, target string, role Role) (*TransactionResult, error)
	RevokeRole(ctx context.Context, coin *StableCoin, target string, role Role) (*TransactionResult, error)
	HasRole(ctx context.Context, coin *StableCoin, target string, role Role) (bool, error)
	GetRoles(ctx context.Context, coin *StableCoin, target string) ([]Role, error)

	GrantSupplierRole(ctx context.Context, coin *StableCoin, target string, allowance Allowance) (*TransactionResult, error)
	IncreaseSupplierAllowance(ctx context.Context, coin *StableCoin, target string, amount *big.Int) (*TransactionResult, error)
	DecreaseSupplierAllowance(ctx context.Context, coin *StableCoin, target string, amount *big.Int) (*TransactionResult, error)
	ResetSupplierAllowance(ctx context.Context, coin *StableCoin, target string) (*TransactionResult, error)
	SupplierAllowance(ctx context.Context, coin *StableCoin, target string) (*big.Int, error)
	IsUnlimitedSupplierAllowance(ctx context.Context, coin *StableCoin, target string) (bool, error)

	Balance(ctx context.Context, coin *StableCoin, account string) (*big.Int, error)
	UpdateReserveAddress(ctx context.Context, coin *StableCoin, address string) (*TransactionResult, error)
	ReserveAddress(ctx context.Context, coin *StableCoin) (string, error)
}

// AccountInfo is the mirror view of an account.
type AccountInfo struct {
	ID         string
	EVMAddress string
	Key        KeyBinding
}

// TokenRelationship is the mirror view of an account's association with a token.
type TokenRelationship struct {
	Associated bool
	Balance    *big.Int
	Frozen     bool
	KycGranted bool
}

// TokenReader is the read-only indexer/mirror port.
type TokenReader interface {
	// Token loads the current token state. Callers must not cache the result.
	Token(ctx context.Context, tokenID string) (*StableCoin, error)

	// Account loads an account's key and EVM address.
	Account(ctx context.Context, accountID string) (*AccountInfo, error)

	// TokenRelationship loads the association between accountID and tokenID.
	TokenRelationship(ctx context.Context, accountID, tokenID string) (*TokenRelationship, error)
}

// ReserveFeed reads a reserve attestation.
type ReserveFeed interface {
	Snapshot(ctx context.Context, address string) (*ReserveSnapshot, error)
}
