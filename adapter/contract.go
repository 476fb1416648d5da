package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/mirror"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// AddressResolver maps ledger account ids to EVM addresses.
// *mirror.Client satisfies it.
type AddressResolver interface {
	EVMAddress(ctx context.Context, accountID string) (string, error)
}

// ContractAdapter drives the stablecoin facet behind a token's proxy. Mutating
// calls are dispatched as contract transactions; queries use eth_call.
type ContractAdapter struct {
	dispatcher stablecoin.Dispatcher
	caller     ethereum.ContractCaller
	addresses  AddressResolver
	payer      stablecoin.Account
	now        func() time.Time
	logger     *logrus.Entry
}

// NewContractAdapter creates a ContractAdapter paying fees from payer.
func NewContractAdapter(d stablecoin.Dispatcher, caller ethereum.ContractCaller, addresses AddressResolver, payer stablecoin.Account, opts ...Option) *ContractAdapter {
	o := buildOptions(opts)
	return &ContractAdapter{
		dispatcher: d,
		caller:     caller,
		addresses:  addresses,
		payer:      payer,
		now:        time.Now,
		logger:     o.logger.WithField("access", stablecoin.AccessContract),
	}
}

var _ stablecoin.TransactionAdapter = (*ContractAdapter)(nil)

func proxyOf(coin *stablecoin.StableCoin) (common.Address, error) {
	if coin.ProxyAddress == "" || !common.IsHexAddress(coin.ProxyAddress) {
		return common.Address{}, errors.NewCapabilityError(
			errors.OPERATION_UNSUPPORTED,
			"token "+coin.TokenID+" has no stablecoin contract",
			nil,
		).WithContext("token", coin.TokenID)
	}
	return common.HexToAddress(coin.ProxyAddress), nil
}

func (a *ContractAdapter) address(ctx context.Context, account string) (common.Address, error) {
	if mirror.IsEVMAddress(account) {
		return common.HexToAddress(account), nil
	}
	addr, err := a.addresses.EVMAddress(ctx, account)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, errors.NewConfigError(errors.INVALID_ARGUMENT, "account "+account+" has no evm address", nil)
	}
	return common.HexToAddress(addr), nil
}

func (a *ContractAdapter) transact(ctx context.Context, coin *stablecoin.StableCoin, op stablecoin.Operation, function string, args ...any) (*stablecoin.TransactionResult, error) {
	proxy, err := proxyOf(coin)
	if err != nil {
		return nil, err
	}
	data, err := stableCoinABI.Pack(function, args...)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode "+function, err)
	}
	tx := &stablecoin.Transaction{
		Kind:          stablecoin.KindContract,
		Operation:     op,
		TokenID:       coin.TokenID,
		Payer:         a.payer.ID,
		ValidStart:    a.now().UTC(),
		ValidDuration: stablecoin.DefaultValidDuration,
		Contract: &stablecoin.ContractCall{
			To:       proxy.Hex(),
			Function: function,
			Data:     data,
			Gas:      gasFor(function),
		},
	}
	a.logger.WithFields(logrus.Fields{"token": coin.TokenID, "operation": op, "function": function}).Debug("contract transaction prepared")
	return a.dispatcher.Dispatch(ctx, tx)
}

func (a *ContractAdapter) query(ctx context.Context, coin *stablecoin.StableCoin, function string, args ...any) ([]any, error) {
	proxy, err := proxyOf(coin)
	if err != nil {
		return nil, err
	}
	data, err := stableCoinABI.Pack(function, args...)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode "+function, err)
	}
	msg := ethereum.CallMsg{To: &proxy, Data: data}
	if common.IsHexAddress(a.payer.EVMAddress) {
		msg.From = common.HexToAddress(a.payer.EVMAddress)
	}
	raw, err := a.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "eth_call "+function+" failed", err).
			WithContext("token", coin.TokenID)
	}
	out, err := stableCoinABI.Unpack(function, raw)
	if err != nil || len(out) == 0 {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed to decode "+function+" result", err)
	}
	return out, nil
}

// withTarget resolves target and sends function(target, extra...).
func (a *ContractAdapter) withTarget(ctx context.Context, coin *stablecoin.StableCoin, op stablecoin.Operation, function, target string, extra ...any) (*stablecoin.TransactionResult, error) {
	addr, err := a.address(ctx, target)
	if err != nil {
		return nil, err
	}
	return a.transact(ctx, coin, op, function, append([]any{addr}, extra...)...)
}

func (a *ContractAdapter) CashIn(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	amt, err := int64Amount(amount)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.withTarget(ctx, coin, stablecoin.OpCashIn, "mint", target, amt)
}

func (a *ContractAdapter) Wipe(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	amt, err := int64Amount(amount)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.withTarget(ctx, coin, stablecoin.OpWipe, "wipe", target, amt)
}

func (a *ContractAdapter) Burn(ctx context.Context, coin *stablecoin.StableCoin, amount *big.Int) (*stablecoin.TransactionResult, error) {
	amt, err := int64Amount(amount)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.transact(ctx, coin, stablecoin.OpBurn, "burn", amt)
}

func (a *ContractAdapter) Rescue(ctx context.Context, coin *stablecoin.StableCoin, amount *big.Int) (*stablecoin.TransactionResult, error) {
	amt, err := int64Amount(amount)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.transact(ctx, coin, stablecoin.OpRescue, "rescue", amt)
}

func (a *ContractAdapter) Freeze(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.withTarget(ctx, coin, stablecoin.OpFreeze, "freeze", target)
}

func (a *ContractAdapter) Unfreeze(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.withTarget(ctx, coin, stablecoin.OpUnfreeze, "unfreeze", target)
}

func (a *ContractAdapter) Pause(ctx context.Context, coin *stablecoin.StableCoin) (*stablecoin.TransactionResult, error) {
	return a.transact(ctx, coin, stablecoin.OpPause, "pause")
}

func (a *ContractAdapter) Unpause(ctx context.Context, coin *stablecoin.StableCoin) (*stablecoin.TransactionResult, error) {
	return a.transact(ctx, coin, stablecoin.OpUnpause, "unpause")
}

func (a *ContractAdapter) Delete(ctx context.Context, coin *stablecoin.StableCoin) (*stablecoin.TransactionResult, error) {
	return a.transact(ctx, coin, stablecoin.OpDelete, "deleteToken")
}

func (a *ContractAdapter) GrantKyc(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.withTarget(ctx, coin, stablecoin.OpGrantKyc, "grantKyc", target)
}

func (a *ContractAdapter) RevokeKyc(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.withTarget(ctx, coin, stablecoin.OpRevokeKyc, "revokeKyc", target)
}

// Transfer is a holder action on the native token; the facet does not move
// balances between third parties.
func (a *ContractAdapter) Transfer(context.Context, *stablecoin.StableCoin, *big.Int, string, string) (*stablecoin.TransactionResult, error) {
	return nil, errors.NewCapabilityError(errors.OPERATION_UNSUPPORTED, "transfers are not available on the stablecoin contract", nil).
		WithContext("operation", string(stablecoin.OpTransfer))
}

// GrantRole grants role to target. The cash-in role carries an allowance and
// must be granted through GrantSupplierRole.
func (a *ContractAdapter) GrantRole(ctx context.Context, coin *stablecoin.StableCoin, target string, role stablecoin.Role) (*stablecoin.TransactionResult, error) {
	if role == stablecoin.RoleCashIn {
		return nil, errors.NewConfigError(
			errors.MISSING_ALLOWANCE_SPECIFICATION,
			"granting the cash-in role requires an allowance",
			nil,
		).WithContext("target", target)
	}
	addr, err := a.address(ctx, target)
	if err != nil {
		return nil, err
	}
	return a.transact(ctx, coin, stablecoin.OpRoleManagement, "grantRole", roleHash(role), addr)
}

// RevokeRole revokes role from target. Revoking the cash-in role also clears
// the supplier allowance.
func (a *ContractAdapter) RevokeRole(ctx context.Context, coin *stablecoin.StableCoin, target string, role stablecoin.Role) (*stablecoin.TransactionResult, error) {
	if role == stablecoin.RoleCashIn {
		return a.withTarget(ctx, coin, stablecoin.OpRoleManagement, "revokeSupplierRole", target)
	}
	addr, err := a.address(ctx, target)
	if err != nil {
		return nil, err
	}
	return a.transact(ctx, coin, stablecoin.OpRoleManagement, "revokeRole", roleHash(role), addr)
}

func (a *ContractAdapter) HasRole(ctx context.Context, coin *stablecoin.StableCoin, target string, role stablecoin.Role) (bool, error) {
	addr, err := a.address(ctx, target)
	if err != nil {
		return false, err
	}
	out, err := a.query(ctx, coin, "hasRole", roleHash(role), addr)
	if err != nil {
		return false, err
	}
	return asBool(out[0])
}

// GetRoles lists the roles of target, without the padding entries.
func (a *ContractAdapter) GetRoles(ctx context.Context, coin *stablecoin.StableCoin, target string) ([]stablecoin.Role, error) {
	addr, err := a.address(ctx, target)
	if err != nil {
		return nil, err
	}
	out, err := a.query(ctx, coin, "getRoles", addr)
	if err != nil {
		return nil, err
	}
	hashes, ok := out[0].([][32]byte)
	if !ok {
		return nil, unexpected("getRoles", out[0])
	}
	roles := make([]stablecoin.Role, 0, len(hashes))
	for _, h := range hashes {
		if r := roleFromHash(h); r != stablecoin.RoleWithout {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (a *ContractAdapter) GrantSupplierRole(ctx context.Context, coin *stablecoin.StableCoin, target string, allowance stablecoin.Allowance) (*stablecoin.TransactionResult, error) {
	if allowance.Unlimited {
		return a.withTarget(ctx, coin, stablecoin.OpRoleManagement, "grantUnlimitedSupplierRole", target)
	}
	if allowance.Amount == nil {
		return nil, errors.NewConfigError(errors.MISSING_ALLOWANCE_SPECIFICATION, "supplier allowance is neither unlimited nor an amount", nil)
	}
	if allowance.Amount.Sign() < 0 {
		return nil, errors.NewBusinessError(errors.INVALID_AMOUNT, "allowance must not be negative", nil)
	}
	return a.withTarget(ctx, coin, stablecoin.OpRoleManagement, "grantSupplierRole", target, allowance.Amount)
}

func (a *ContractAdapter) IncreaseSupplierAllowance(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.withTarget(ctx, coin, stablecoin.OpRoleManagement, "increaseSupplierAllowance", target, amount)
}

func (a *ContractAdapter) DecreaseSupplierAllowance(ctx context.Context, coin *stablecoin.StableCoin, target string, amount *big.Int) (*stablecoin.TransactionResult, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return a.withTarget(ctx, coin, stablecoin.OpRoleManagement, "decreaseSupplierAllowance", target, amount)
}

func (a *ContractAdapter) ResetSupplierAllowance(ctx context.Context, coin *stablecoin.StableCoin, target string) (*stablecoin.TransactionResult, error) {
	return a.withTarget(ctx, coin, stablecoin.OpRoleManagement, "resetSupplierAllowance", target)
}

func (a *ContractAdapter) SupplierAllowance(ctx context.Context, coin *stablecoin.StableCoin, target string) (*big.Int, error) {
	return a.uintQuery(ctx, coin, "getSupplierAllowance", target)
}

func (a *ContractAdapter) IsUnlimitedSupplierAllowance(ctx context.Context, coin *stablecoin.StableCoin, target string) (bool, error) {
	addr, err := a.address(ctx, target)
	if err != nil {
		return false, err
	}
	out, err := a.query(ctx, coin, "isUnlimitedSupplierAllowance", addr)
	if err != nil {
		return false, err
	}
	return asBool(out[0])
}

func (a *ContractAdapter) Balance(ctx context.Context, coin *stablecoin.StableCoin, account string) (*big.Int, error) {
	return a.uintQuery(ctx, coin, "balanceOf", account)
}

func (a *ContractAdapter) UpdateReserveAddress(ctx context.Context, coin *stablecoin.StableCoin, address string) (*stablecoin.TransactionResult, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid reserve address "+address, nil)
	}
	return a.transact(ctx, coin, stablecoin.OpReserveManagement, "updateReserveAddress", common.HexToAddress(address))
}

func (a *ContractAdapter) ReserveAddress(ctx context.Context, coin *stablecoin.StableCoin) (string, error) {
	out, err := a.query(ctx, coin, "getReserveAddress")
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", unexpected("getReserveAddress", out[0])
	}
	if addr == (common.Address{}) {
		return "", nil
	}
	return addr.Hex(), nil
}

func (a *ContractAdapter) uintQuery(ctx context.Context, coin *stablecoin.StableCoin, function, account string) (*big.Int, error) {
	addr, err := a.address(ctx, account)
	if err != nil {
		return nil, err
	}
	out, err := a.query(ctx, coin, function, addr)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, unexpected(function, out[0])
	}
	return v, nil
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, unexpected("bool", v)
	}
	return b, nil
}

func unexpected(function string, v any) error {
	return errors.NewTransportError(errors.NETWORK_ERROR, fmt.Sprintf("unexpected %s result type %T", function, v), nil)
}
