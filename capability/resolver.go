// Package capability decides, per token and per operation, which execution
// path serves a call: the native token service or the contract facet behind the
// token's proxy. Capabilities are derived from the token's current key bindings
// and fetched fresh on every call so role and pause changes are seen promptly.
package capability

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
)

// Resolver derives token capabilities from the mirror.
type Resolver struct {
	tokens stablecoin.TokenReader
	logger *logrus.Entry
}

// NewResolver creates a Resolver reading token state from tokens.
func NewResolver(tokens stablecoin.TokenReader, logger *logrus.Entry) *Resolver {
	return &Resolver{
		tokens: tokens,
		logger: logging.OrDiscard(logger).WithField("component", "capability"),
	}
}

// Capabilities loads tokenID and derives its capabilities for account.
// The loaded token is returned so callers can reuse the same snapshot.
func (r *Resolver) Capabilities(ctx context.Context, tokenID string, account stablecoin.Account) (*stablecoin.StableCoin, stablecoin.TokenCapabilities, error) {
	coin, err := r.tokens.Token(ctx, tokenID)
	if err != nil {
		return nil, stablecoin.TokenCapabilities{}, err
	}
	caps := Derive(coin, account)
	r.logger.WithFields(logrus.Fields{
		"token":        tokenID,
		"account":      account.ID,
		"capabilities": len(caps.Capabilities),
	}).Debug("derived capabilities")
	return coin, caps, nil
}

// Resolve returns the Access serving op on tokenID for account. A token that
// cannot be loaded fails with the mirror's retryable error; an operation with
// no capability fails with OPERATION_UNSUPPORTED.
func (r *Resolver) Resolve(ctx context.Context, tokenID string, account stablecoin.Account, op stablecoin.Operation) (stablecoin.Access, error) {
	_, caps, err := r.Capabilities(ctx, tokenID, account)
	if err != nil {
		return "", err
	}
	return caps.Resolve(op)
}

// Derive computes the ordered capability list of coin for account.
// A key bound to the proxy contract yields Contract access; a key equal to the
// account's own public key yields NativeService access. Supply runs through the
// contract only when the proxy also holds the treasury.
func Derive(coin *stablecoin.StableCoin, account stablecoin.Account) stablecoin.TokenCapabilities {
	caps := stablecoin.TokenCapabilities{TokenID: coin.TokenID, Account: account.ID}
	if coin.Deleted {
		return caps
	}
	operable := !coin.Paused
	proxy := coin.ProxyContractID
	proxyTreasury := proxy != "" && coin.TreasuryAccount == proxy

	add := func(op stablecoin.Operation, access stablecoin.Access) {
		caps.Capabilities = append(caps.Capabilities, stablecoin.Capability{Operation: op, Access: access})
	}
	byKey := func(key stablecoin.KeyBinding, ops ...stablecoin.Operation) {
		var access stablecoin.Access
		switch {
		case key.IsContract(proxy):
			access = stablecoin.AccessContract
		case key.IsPublicKey(account.PublicKey):
			access = stablecoin.AccessNativeService
		default:
			return
		}
		for _, op := range ops {
			add(op, access)
		}
	}

	if operable {
		if proxyTreasury {
			add(stablecoin.OpRescue, stablecoin.AccessContract)
		}
		if !coin.SupplyKey.IsContract(proxy) || proxyTreasury {
			byKey(coin.SupplyKey, stablecoin.OpCashIn, stablecoin.OpBurn)
		}
		byKey(coin.WipeKey, stablecoin.OpWipe)
	}
	byKey(coin.PauseKey, stablecoin.OpPause, stablecoin.OpUnpause)
	if operable {
		byKey(coin.FreezeKey, stablecoin.OpFreeze, stablecoin.OpUnfreeze)
		byKey(coin.KYCKey, stablecoin.OpGrantKyc, stablecoin.OpRevokeKyc)
		byKey(coin.AdminKey, stablecoin.OpDelete)
		add(stablecoin.OpTransfer, stablecoin.AccessNativeService)
	}

	for _, c := range caps.Capabilities {
		if c.Access == stablecoin.AccessContract {
			add(stablecoin.OpRoleManagement, stablecoin.AccessContract)
			break
		}
	}
	// the proxy deployer is recorded as the token's auto-renew account
	if coin.Memo != "" && coin.AutoRenewAccount == account.ID {
		add(stablecoin.OpRoleAdminManagement, stablecoin.AccessContract)
		add(stablecoin.OpReserveManagement, stablecoin.AccessContract)
	}
	return caps
}
