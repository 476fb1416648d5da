package service

import (
	"context"
	"math/big"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/allowance"
	"github.com/marwen-abid/stablecoin-sdk-go/core/amount"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// AllowanceSpec is a cash-in allowance in human units.
type AllowanceSpec struct {
	Unlimited bool
	Amount    string
}

// roleOperation returns the capability guarding changes to role. Managing the
// admin role is a separate capability from managing operational roles.
func roleOperation(role stablecoin.Role) stablecoin.Operation {
	if role == stablecoin.RoleDefaultAdmin {
		return stablecoin.OpRoleAdminManagement
	}
	return stablecoin.OpRoleManagement
}

func (s *Service) ledger(o *operation) *allowance.Ledger {
	return allowance.NewLedger(o.adapter, o.logger)
}

// GrantRole grants role to target. Granting the cash-in role requires spec.
func (s *Service) GrantRole(ctx context.Context, tokenID, target string, role stablecoin.Role, spec *AllowanceSpec) (*stablecoin.TransactionResult, error) {
	op := roleOperation(role)
	if role == stablecoin.RoleCashIn && (spec == nil || (!spec.Unlimited && spec.Amount == "")) {
		return nil, s.reject(op, errors.NewConfigError(
			errors.MISSING_ALLOWANCE_SPECIFICATION,
			"cash-in role grant needs an unlimited flag or an amount",
			nil,
		).WithContext("token", tokenID).WithContext("target", target))
	}
	o, err := s.prepare(ctx, tokenID, op)
	if err != nil {
		return nil, err
	}

	var grant *stablecoin.Allowance
	if spec != nil && role == stablecoin.RoleCashIn {
		grant = &stablecoin.Allowance{Unlimited: spec.Unlimited}
		if !spec.Unlimited {
			if grant.Amount, err = s.parseAllowance(o, spec.Amount); err != nil {
				return nil, err
			}
		}
	}
	o.logger = o.logger.WithField("target", target).WithField("role", role.Name())
	res, err := s.ledger(o).Grant(ctx, o.coin, target, role, grant)
	return s.done(o, res, s.rejected(o, err))
}

// RevokeRole revokes role from target.
func (s *Service) RevokeRole(ctx context.Context, tokenID, target string, role stablecoin.Role) (*stablecoin.TransactionResult, error) {
	o, err := s.prepare(ctx, tokenID, roleOperation(role))
	if err != nil {
		return nil, err
	}
	o.logger = o.logger.WithField("target", target).WithField("role", role.Name())
	res, err := s.ledger(o).Revoke(ctx, o.coin, target, role)
	return s.done(o, res, err)
}

// HasRole reports whether target holds role.
func (s *Service) HasRole(ctx context.Context, tokenID, target string, role stablecoin.Role) (bool, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpRoleManagement)
	if err != nil {
		return false, err
	}
	return s.ledger(o).HasRole(ctx, o.coin, target, role)
}

// Roles lists the roles held by target.
func (s *Service) Roles(ctx context.Context, tokenID, target string) ([]stablecoin.Role, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpRoleManagement)
	if err != nil {
		return nil, err
	}
	return s.ledger(o).Roles(ctx, o.coin, target)
}

// Allowance reads the cash-in allowance of target.
func (s *Service) Allowance(ctx context.Context, tokenID, target string) (*stablecoin.AllowanceRecord, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpRoleManagement)
	if err != nil {
		return nil, err
	}
	return s.ledger(o).Get(ctx, o.coin, target)
}

// IncreaseAllowance raises the cash-in allowance of target by value.
func (s *Service) IncreaseAllowance(ctx context.Context, tokenID, target, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpRoleManagement)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}
	res, err := s.ledger(o).Increase(ctx, o.coin, target, raw)
	return s.done(o, res, s.rejected(o, err))
}

// DecreaseAllowance lowers the cash-in allowance of target by value.
func (s *Service) DecreaseAllowance(ctx context.Context, tokenID, target, value string) (*stablecoin.TransactionResult, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpRoleManagement)
	if err != nil {
		return nil, err
	}
	raw, err := s.parse(o, value)
	if err != nil {
		return nil, err
	}
	res, err := s.ledger(o).Decrease(ctx, o.coin, target, raw)
	return s.done(o, res, s.rejected(o, err))
}

// ResetAllowance sets the cash-in allowance of target to zero.
func (s *Service) ResetAllowance(ctx context.Context, tokenID, target string) (*stablecoin.TransactionResult, error) {
	o, err := s.prepare(ctx, tokenID, stablecoin.OpRoleManagement)
	if err != nil {
		return nil, err
	}
	res, err := s.ledger(o).Reset(ctx, o.coin, target)
	return s.done(o, res, s.rejected(o, err))
}

// parseAllowance accepts zero, unlike operation amounts.
func (s *Service) parseAllowance(o *operation, value string) (*big.Int, error) {
	raw, err := amount.Parse(value, o.coin.Decimals)
	if err != nil {
		return nil, s.reject(o.op, err)
	}
	return raw, nil
}

// rejected records business rejections raised by the ledger.
func (s *Service) rejected(o *operation, err error) error {
	if err != nil && errors.KindOf(err) == errors.KindBusiness {
		return s.reject(o.op, err)
	}
	return err
}
