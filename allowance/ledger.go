// Package allowance manages roles and cash-in allowances on the stablecoin
// contract facet. Every check reads the current on-ledger state first and fails
// before any mutating call is dispatched.
package allowance

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Ledger enforces allowance rules in front of a TransactionAdapter.
type Ledger struct {
	adapter stablecoin.TransactionAdapter
	logger  *logrus.Entry
}

// NewLedger creates a Ledger over adapter, normally the ContractAdapter.
func NewLedger(adapter stablecoin.TransactionAdapter, logger *logrus.Entry) *Ledger {
	return &Ledger{
		adapter: adapter,
		logger:  logging.OrDiscard(logger).WithField("component", "allowance"),
	}
}

// Grant grants role to target. The cash-in role needs an allowance: either
// unlimited or a non-negative amount. Neither fails with
// MISSING_ALLOWANCE_SPECIFICATION before anything is sent.
func (l *Ledger) Grant(ctx context.Context, coin *stablecoin.StableCoin, target string, role stablecoin.Role, spec *stablecoin.Allowance) (*stablecoin.TransactionResult, error) {
	if role != stablecoin.RoleCashIn {
		return l.adapter.GrantRole(ctx, coin, target, role)
	}
	if spec == nil || (!spec.Unlimited && spec.Amount == nil) {
		return nil, errors.NewConfigError(
			errors.MISSING_ALLOWANCE_SPECIFICATION,
			"cash-in role grant needs an unlimited flag or an amount",
			nil,
		).WithContext("token", coin.TokenID).WithContext("target", target)
	}
	if !spec.Unlimited && spec.Amount.Sign() < 0 {
		return nil, errors.NewBusinessError(errors.INVALID_AMOUNT, "allowance must not be negative", nil).
			WithContext("amount", spec.Amount.String())
	}
	l.logger.WithFields(logrus.Fields{"token": coin.TokenID, "target": target, "unlimited": spec.Unlimited}).Info("granting supplier role")
	return l.adapter.GrantSupplierRole(ctx, coin, target, *spec)
}

// Revoke revokes role from target.
func (l *Ledger) Revoke(ctx context.Context, coin *stablecoin.StableCoin, target string, role stablecoin.Role) (*stablecoin.TransactionResult, error) {
	return l.adapter.RevokeRole(ctx, coin, target, role)
}

// HasRole reports whether target holds role.
func (l *Ledger) HasRole(ctx context.Context, coin *stablecoin.StableCoin, target string, role stablecoin.Role) (bool, error) {
	return l.adapter.HasRole(ctx, coin, target, role)
}

// Roles lists the roles held by target.
func (l *Ledger) Roles(ctx context.Context, coin *stablecoin.StableCoin, target string) ([]stablecoin.Role, error) {
	return l.adapter.GetRoles(ctx, coin, target)
}

// Get reads the allowance record of target. The limit of an unlimited
// allowance is reported as zero.
func (l *Ledger) Get(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.AllowanceRecord, error) {
	unlimited, err := l.adapter.IsUnlimitedSupplierAllowance(ctx, coin, target)
	if err != nil {
		return nil, err
	}
	limit, err := l.adapter.SupplierAllowance(ctx, coin, target)
	if err != nil {
		return nil, err
	}
	if limit == nil {
		limit = new(big.Int)
	}
	return &stablecoin.AllowanceRecord{TokenID: coin.TokenID, Account: target, Unlimited: unlimited, Limit: limit}, nil
}

// Increase raises target's limit by amount. The new limit may not exceed the
// remaining mintable supply of a bounded token.
func (l *Ledger) Increase(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	rec, err := l.limited(ctx, coin, target)
	if err != nil {
		return nil, err
	}
	if coin.Bounded() {
		next := new(big.Int).Add(rec.Limit, amount)
		remaining := coin.RemainingSupply()
		if next.Cmp(remaining) > 0 {
			return nil, errors.NewBusinessError(
				errors.SUPPLY_CAP_EXCEEDED,
				"allowance would exceed the remaining supply",
				nil,
			).WithContext("token", coin.TokenID).
				WithContext("limit", rec.Limit.String()).
				WithContext("requested", amount.String()).
				WithContext("remaining", remaining.String())
		}
	}
	return l.adapter.IncreaseSupplierAllowance(ctx, coin, target, amount)
}

// Decrease lowers target's limit by amount. Decreasing below zero fails with
// DECREASE_EXCEEDS_LIMIT and leaves the limit unchanged.
func (l *Ledger) Decrease(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	rec, err := l.limited(ctx, coin, target)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(rec.Limit) > 0 {
		return nil, errors.NewBusinessError(
			errors.DECREASE_EXCEEDS_LIMIT,
			"decrease is larger than the current allowance",
			nil,
		).WithContext("token", coin.TokenID).
			WithContext("limit", rec.Limit.String()).
			WithContext("requested", amount.String())
	}
	return l.adapter.DecreaseSupplierAllowance(ctx, coin, target, amount)
}

// Reset sets target's limit to zero. The role itself is kept.
func (l *Ledger) Reset(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	if _, err := l.limited(ctx, coin, target); err != nil {
		return nil, err
	}
	return l.adapter.ResetSupplierAllowance(ctx, coin, target)
}

// limited loads target's allowance and rejects unlimited ones, whose limit
// cannot be adjusted.
func (l *Ledger) limited(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.AllowanceRecord, error) {
	rec, err := l.Get(ctx, coin, target)
	if err != nil {
		return nil, err
	}
	if rec.Unlimited {
		return nil, errors.NewBusinessError(
			errors.ALLOWANCE_UNLIMITED,
			"allowance of "+target+" is unlimited",
			nil,
		).WithContext("token", coin.TokenID)
	}
	return rec, nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.NewBusinessError(errors.INVALID_AMOUNT, "amount must be positive", nil)
	}
	return nil
}
