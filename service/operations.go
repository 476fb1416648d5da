package service

import (
	"context"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/amount"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

func (s *Service) done(o *operation, res *stablecoin.TransactionResult, err error) (*stablecoin.TransactionResult, error) {
	if err != nil {
		o.logger.WithError(err).Warn("operation failed")
		return nil, err
	}
	o.logger.WithFields(logrus.Fields{
		"tx":      res.TransactionID,
		"status":  res.Status,
		"pending": res.Pending,
	}).Info("operation dispatched")
	return res, nil
}

// CashIn mints amount (human units) to target. The target must be associated
// with the token, not frozen and KYC-granted when the token has a KYC key.
func (s *Service) CashIn(ctx context.Context, tokenID, target, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.load(ctx, tokenID, stablecoin.OpCashIn)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}

	if remaining := o.coin.RemainingSupply(); remaining != nil && raw.Cmp(remaining) > 0 {
		return nil, s.reject(o.op, errors.NewBusinessError(errors.SUPPLY_CAP_EXCEEDED, "amount exceeds the remaining supply", nil).
			WithContext("token", tokenID).
			WithContext("requested", value).
			WithContext("remaining", amount.Format(remaining, o.coin.Decimals)))
	}
	if err := s.checkTarget(ctx, o, target); err != nil {
		return nil, err
	}
	if o.coin.HasReserve() {
		if s.guard == nil {
			return nil, s.reject(o.op, errors.NewConfigError(errors.INVALID_ARGUMENT, "token has a reserve but no reserve feed is configured", nil).
				WithContext("reserve", o.coin.ReserveAddress))
		}
		decision, err := s.guard.CheckMintAllowed(ctx, o.coin, raw)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, s.reject(o.op, errors.NewBusinessError(errors.RESERVE_DENIED, decision.Reason, nil).
				WithContext("token", tokenID).
				WithContext("supply", amount.Format(decision.Supply, decision.Decimals)).
				WithContext("reserve", amount.Format(decision.Reserve, decision.Decimals)))
		}
	}

	if err := s.route(o); err != nil {
		return nil, err
	}
	res, err := o.adapter.CashIn(ctx, o.coin, target, raw)
	return s.done(o, res, err)
}

// checkTarget verifies the receiving account can hold the token. The treasury
// is always able to.
func (s *Service) checkTarget(ctx context.Context, o *operation, target string) error {
	if target == o.coin.TreasuryAccount || strings.EqualFold(target, o.coin.ProxyAddress) {
		return nil
	}
	rel, err := s.tokens.TokenRelationship(ctx, target, o.coin.TokenID)
	if err != nil {
		return err
	}
	switch {
	case !rel.Associated:
		return s.reject(o.op, errors.NewBusinessError(errors.TOKEN_NOT_ASSOCIATED, "account "+target+" is not associated with the token", nil).
			WithContext("token", o.coin.TokenID).WithContext("account", target))
	case rel.Frozen:
		return s.reject(o.op, errors.NewBusinessError(errors.ACCOUNT_FROZEN, "account "+target+" is frozen", nil).
			WithContext("token", o.coin.TokenID).WithContext("account", target))
	case o.coin.KYCKey.Kind != stablecoin.KeyNone && !rel.KycGranted:
		return s.reject(o.op, errors.NewBusinessError(errors.KYC_NOT_GRANTED, "account "+target+" has no KYC grant", nil).
			WithContext("token", o.coin.TokenID).WithContext("account", target))
	}
	return nil
}

// Burn destroys amount from the treasury.
func (s *Service) Burn(ctx context.Context, tokenID, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.load(ctx, tokenID, stablecoin.OpBurn)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}
	if err := s.requireBalance(ctx, o, o.coin.TreasuryAccount, raw, errors.INSUFFICIENT_TREASURY_BALANCE); err != nil {
		return nil, err
	}
	if err := s.route(o); err != nil {
		return nil, err
	}
	res, err := o.adapter.Burn(ctx, o.coin, raw)
	return s.done(o, res, err)
}

// Wipe removes amount from target.
func (s *Service) Wipe(ctx context.Context, tokenID, target, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.load(ctx, tokenID, stablecoin.OpWipe)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}
	total := o.coin.TotalSupply
	if total == nil {
		total = new(big.Int)
	}
	if total.Cmp(raw) < 0 {
		return nil, s.reject(o.op, insufficient(errors.INSUFFICIENT_ACCOUNT_BALANCE, o.coin, target, total, raw).
			WithContext("totalSupply", amount.Format(total, o.coin.Decimals)))
	}
	if err := s.requireBalance(ctx, o, target, raw, errors.INSUFFICIENT_ACCOUNT_BALANCE); err != nil {
		return nil, err
	}
	if err := s.route(o); err != nil {
		return nil, err
	}
	res, err := o.adapter.Wipe(ctx, o.coin, target, raw)
	return s.done(o, res, err)
}

// Rescue moves amount from the treasury to the operating account.
func (s *Service) Rescue(ctx context.Context, tokenID, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.load(ctx, tokenID, stablecoin.OpRescue)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}
	if err := s.requireBalance(ctx, o, o.coin.TreasuryAccount, raw, errors.INSUFFICIENT_BALANCE); err != nil {
		return nil, err
	}
	if err := s.route(o); err != nil {
		return nil, err
	}
	res, err := o.adapter.Rescue(ctx, o.coin, raw)
	return s.done(o, res, err)
}

// Transfer sends amount from the operating account to target.
func (s *Service) Transfer(ctx context.Context, tokenID, target, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.load(ctx, tokenID, stablecoin.OpTransfer)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}
	if err := s.requireBalance(ctx, o, s.account.ID, raw, errors.INSUFFICIENT_BALANCE); err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, o, target); err != nil {
		return nil, err
	}
	if err := s.route(o); err != nil {
		return nil, err
	}
	res, err := o.adapter.Transfer(ctx, o.coin, raw, s.account.ID, target)
	return s.done(o, res, err)
}

func (s *Service) requireBalance(ctx context.Context, o *operation, account string, raw *big.Int, code errors.Code) error {
	rel, err := s.balanceOf(ctx, o.coin, account)
	if err != nil {
		return err
	}
	if rel.Balance.Cmp(raw) < 0 {
		return s.reject(o.op, insufficient(code, o.coin, account, rel.Balance, raw))
	}
	return nil
}

// Freeze freezes target for the token.
func (s *Service) Freeze(ctx context.Context, tokenID, target string) (*stablecoin.TransactionResult, error) {
	return s.targeted(ctx, tokenID, target, stablecoin.OpFreeze, stablecoin.TransactionAdapter.Freeze)
}

// Unfreeze unfreezes target.
func (s *Service) Unfreeze(ctx context.Context, tokenID, target string) (*stablecoin.TransactionResult, error) {
	return s.targeted(ctx, tokenID, target, stablecoin.OpUnfreeze, stablecoin.TransactionAdapter.Unfreeze)
}

// GrantKyc grants KYC to target.
func (s *Service) GrantKyc(ctx context.Context, tokenID, target string) (*stablecoin.TransactionResult, error) {
	return s.targeted(ctx, tokenID, target, stablecoin.OpGrantKyc, stablecoin.TransactionAdapter.GrantKyc)
}

// RevokeKyc revokes KYC from target.
func (s *Service) RevokeKyc(ctx context.Context, tokenID, target string) (*stablecoin.TransactionResult, error) {
	return s.targeted(ctx, tokenID, target, stablecoin.OpRevokeKyc, stablecoin.TransactionAdapter.RevokeKyc)
}

// Pause pauses the token.
func (s *Service) Pause(ctx context.Context, tokenID string) (*stablecoin.TransactionResult, error) {
	return s.tokenWide(ctx, tokenID, stablecoin.OpPause, stablecoin.TransactionAdapter.Pause)
}

// Unpause unpauses the token.
func (s *Service) Unpause(ctx context.Context, tokenID string) (*stablecoin.TransactionResult, error) {
	return s.tokenWide(ctx, tokenID, stablecoin.OpUnpause, stablecoin.TransactionAdapter.Unpause)
}

// Delete deletes the token. It cannot be undone.
func (s *Service) Delete(ctx context.Context, tokenID string) (*stablecoin.TransactionResult, error) {
	return s.tokenWide(ctx, tokenID, stablecoin.OpDelete, stablecoin.TransactionAdapter.Delete)
}

type targetedCall func(stablecoin.TransactionAdapter, context.Context, *stablecoin.StableCoin, string) (*stablecoin.TransactionResult, error)

type tokenCall func(stablecoin.TransactionAdapter, context.Context, *stablecoin.StableCoin) (*stablecoin.TransactionResult, error)

func (s *Service) targeted(ctx context.Context, tokenID, target string, op stablecoin.Operation, call targetedCall) (*stablecoin.TransactionResult, error) {
	if target == "" {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "target account is required", nil)
	}
	o, err := s.prepare(ctx, tokenID, op)
	if err != nil {
		return nil, err
	}
	o.logger = o.logger.WithField("target", target)
	res, err := call(o.adapter, ctx, o.coin, target)
	return s.done(o, res, err)
}

func (s *Service) tokenWide(ctx context.Context, tokenID string, op stablecoin.Operation, call tokenCall) (*stablecoin.TransactionResult, error) {
	o, err := s.prepare(ctx, tokenID, op)
	if err != nil {
		return nil, err
	}
	res, err := call(o.adapter, ctx, o.coin)
	return s.done(o, res, err)
}

// Balance returns the balance of account in human units. Tokens with a proxy
// are read through the contract facet, others through the mirror.
func (s *Service) Balance(ctx context.Context, tokenID, account string) (string, error) {
	o, err := s.load(ctx, tokenID, "")
	if err != nil {
		return "", err
	}
	if contract, ok := s.adapters[stablecoin.AccessContract]; ok && o.coin.ProxyAddress != "" {
		raw, err := contract.Balance(ctx, o.coin, account)
		if err != nil {
			return "", err
		}
		return amount.Format(raw, o.coin.Decimals), nil
	}
	rel, err := s.balanceOf(ctx, o.coin, account)
	if err != nil {
		return "", err
	}
	return amount.Format(rel.Balance, o.coin.Decimals), nil
}

// UpdateReserveAddress points the token at a new reserve feed.
func (s *Service) UpdateReserveAddress(ctx context.Context, tokenID, address string) (*stablecoin.TransactionResult, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpReserveManagement)
	if err != nil {
		return nil, err
	}
	res, err := o.adapter.UpdateReserveAddress(ctx, o.coin, address)
	return s.done(o, res, err)
}

// ReserveAddress returns the reserve feed of the token, empty when none is set.
func (s *Service) ReserveAddress(ctx context.Context, tokenID string) (string, error) {
	o, err := s.load(ctx, tokenID, stablecoin.OpReserveManagement)
	if err != nil {
		return "", err
	}
	if !o.coin.HasReserve() {
		return "", nil
	}
	return o.coin.ReserveAddress, nil
}
