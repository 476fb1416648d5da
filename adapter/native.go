package adapter

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// NativeAdapter builds native token-service transactions. Operations that only
// exist on the contract facet fail with OPERATION_UNSUPPORTED.
type NativeAdapter struct {
	dispatcher stablecoin.Dispatcher
	tokens     stablecoin.TokenReader
	payer      stablecoin.Account
	now        func() time.Time
	logger     *logrus.Entry
}

// NewNativeAdapter creates a NativeAdapter paying fees from payer.
func NewNativeAdapter(d stablecoin.Dispatcher, tokens stablecoin.TokenReader, payer stablecoin.Account, opts ...Option) *NativeAdapter {
	o := buildOptions(opts)
	return &NativeAdapter{
		dispatcher: d,
		tokens:     tokens,
		payer:      payer,
		now:        time.Now,
		logger:     o.logger.WithField("access", stablecoin.AccessNativeService),
	}
}

var _ stablecoin.TransactionAdapter = (*NativeAdapter)(nil)

func (a *NativeAdapter) submit(ctx context.Context, coin *stablecoin.StableCoin, op stablecoin.Operation, calls ...stablecoin.NativeCall) (*stablecoin.TransactionResult, error) {
	tx := &stablecoin.Transaction{
		Kind:          stablecoin.KindNative,
		Operation:     op,
		TokenID:       coin.TokenID,
		Payer:         a.payer.ID,
		ValidStart:    a.now().UTC(),
		ValidDuration: stablecoin.DefaultValidDuration,
		Native:        calls,
	}
	a.logger.WithFields(logrus.Fields{"token": coin.TokenID, "operation": op, "calls": len(calls)}).Debug("native transaction prepared")
	return a.dispatcher.Dispatch(ctx, tx)
}

func (a *NativeAdapter) call(t stablecoin.NativeCallType, coin *stablecoin.StableCoin, account string, amount *big.Int) stablecoin.NativeCall {
	return stablecoin.NativeCall{Type: t, TokenID: coin.TokenID, Account: account, Amount: amount}
}

// CashIn mints amount to the treasury. When target is another account the
// mint and the treasury transfer run as one atomic transaction.
func (a *NativeAdapter) CashIn(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	calls := []stablecoin.NativeCall{a.call(stablecoin.NativeMint, coin, "", amount)}
	if target != "" && target != coin.TreasuryAccount {
		transfer := a.call(stablecoin.NativeTransfer, coin, target, amount)
		transfer.Source = coin.TreasuryAccount
		calls = append(calls, transfer)
	}
	return a.submit(ctx, coin, stablecoin.OpCashIn, calls...)
}

func (a *NativeAdapter) Wipe(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.submit(ctx, coin, stablecoin.OpWipe, a.call(stablecoin.NativeWipe, coin, target, amount))
}

func (a *NativeAdapter) Burn(ctx context.Context, coin *stablecoin.StableCoin, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.submit(ctx, coin, stablecoin.OpBurn, a.call(stablecoin.NativeBurn, coin, "", amount))
}

func (a *NativeAdapter) Freeze(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpFreeze, a.call(stablecoin.NativeFreeze, coin, target, nil))
}

func (a *NativeAdapter) Unfreeze(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpUnfreeze, a.call(stablecoin.NativeUnfreeze, coin, target, nil))
}

func (a *NativeAdapter) Pause(ctx context.Context, coin *stablecoin.StableCoin) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpPause, a.call(stablecoin.NativePause, coin, "", nil))
}

func (a *NativeAdapter) Unpause(ctx context.Context, coin *stablecoin.StableCoin) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpUnpause, a.call(stablecoin.NativeUnpause, coin, "", nil))
}

func (a *NativeAdapter) Delete(ctx context.Context, coin *stablecoin.StableCoin) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpDelete, a.call(stablecoin.NativeDelete, coin, "", nil))
}

func (a *NativeAdapter) Transfer(ctx context.Context, coin *stablecoin.StableCoin, amount *big.Int, source, target string) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	transfer := a.call(stablecoin.NativeTransfer, coin, target, amount)
	transfer.Source = source
	return a.submit(ctx, coin, stablecoin.OpTransfer, transfer)
}

func (a *NativeAdapter) GrantKyc(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpGrantKyc, a.call(stablecoin.NativeGrantKyc, coin, target, nil))
}

func (a *NativeAdapter) RevokeKyc(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.submit(ctx, coin, stablecoin.OpRevokeKyc, a.call(stablecoin.NativeRevokeKyc, coin, target, nil))
}

// Balance reads the account balance from the mirror.
func (a *NativeAdapter) Balance(ctx context.Context, coin *stablecoin.StableCoin, account string) (*big.Int, error) {
	rel, err := a.tokens.TokenRelationship(ctx, account, coin.TokenID)
	if err != nil {
		return nil, err
	}
	if rel.Balance == nil {
		return new(big.Int), nil
	}
	return rel.Balance, nil
}

func (a *NativeAdapter) Rescue(context.Context, *stablecoin.StableCoin, *big.Int) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRescue)
}

func (a *NativeAdapter) GrantRole(context.Context, *stablecoin.StableCoin, string, stablecoin.Role) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) RevokeRole(context.Context, *stablecoin.StableCoin, string, stablecoin.Role) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) HasRole(context.Context, *stablecoin.StableCoin, string, stablecoin.Role) (bool, error) {
	return false, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) GetRoles(context.Context, *stablecoin.StableCoin, string) ([]stablecoin.Role, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) GrantSupplierRole(context.Context, *stablecoin.StableCoin, string, stablecoin.Allowance) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) IncreaseSupplierAllowance(context.Context, *stablecoin.StableCoin, string, *big.Int) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) DecreaseSupplierAllowance(context.Context, *stablecoin.StableCoin, string, *big.Int) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) ResetSupplierAllowance(context.Context, *stablecoin.StableCoin, string) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) SupplierAllowance(context.Context, *stablecoin.StableCoin, string) (*big.Int, error) {
	return nil, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) IsUnlimitedSupplierAllowance(context.Context, *stablecoin.StableCoin, string) (bool, error) {
	return false, unsupported(stablecoin.OpRoleManagement)
}

func (a *NativeAdapter) UpdateReserveAddress(context.Context, *stablecoin.StableCoin, string) (*stablecoin.TransactionResult, error) {
	return nil, unsupported(stablecoin.OpReserveManagement)
}

func (a *NativeAdapter) ReserveAddress(context.Context, *stablecoin.StableCoin) (string, error) {
	return "", unsupported(stablecoin.OpReserveManagement)
}

func unsupported(op stablecoin.Operation) error {
	return errors.NewCapabilityError(
		errors.OPERATION_UNSUPPORTED,
		"operation "+string(op)+" is not available on the native token service",
		nil,
	).WithContext("operation", string(op))
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.NewBusinessError(errors.INVALID_AMOUNT, "amount must be positive", nil)
	}
	return nil
}
