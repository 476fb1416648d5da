package capability

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

const proxyID = "0.0.5003"

var operator = stablecoin.Account{
	ID:        "0.0.7001",
	PublicKey: stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, "0xAAAA"),
}

func contractKey(id string) stablecoin.KeyBinding {
	return stablecoin.KeyBinding{Kind: stablecoin.KeyContract, ContractID: id}
}

func publicKey(hex string) stablecoin.KeyBinding {
	return stablecoin.KeyBinding{Kind: stablecoin.KeyPublic, PublicKey: stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, hex)}
}

func contractCoin() *stablecoin.StableCoin {
	return &stablecoin.StableCoin{
		TokenID:         "0.0.5001",
		Decimals:        6,
		TreasuryAccount:  proxyID,
		AutoRenewAccount: operator.ID,
		Memo:             `{"p":"` + proxyID + `"}`,
		ProxyContractID:  proxyID,
		ProxyAddress:    "0x000000000000000000000000000000000000138b",
		TotalSupply:     big.NewInt(0),
		MaxSupply:       big.NewInt(0),
		AdminKey:        contractKey(proxyID),
		SupplyKey:       contractKey(proxyID),
		WipeKey:         contractKey(proxyID),
		FreezeKey:       contractKey(proxyID),
		KYCKey:          contractKey(proxyID),
		PauseKey:        contractKey(proxyID),
	}
}

func nativeCoin() *stablecoin.StableCoin {
	return &stablecoin.StableCoin{
		TokenID:         "0.0.6001",
		Decimals:        2,
		TreasuryAccount: operator.ID,
		TotalSupply:     big.NewInt(0),
		AdminKey:        publicKey("aaaa"),
		SupplyKey:       publicKey("aaaa"),
		WipeKey:         publicKey("aaaa"),
		FreezeKey:       publicKey("bbbb"),
		PauseKey:        publicKey("aaaa"),
	}
}

func access(t *testing.T, caps stablecoin.TokenCapabilities, op stablecoin.Operation) stablecoin.Access {
	t.Helper()
	a, err := caps.Resolve(op)
	require.NoError(t, err, "operation %s", op)
	return a
}

func TestDeriveContractToken(t *testing.T) {
	caps := Derive(contractCoin(), operator)

	for _, op := range []stablecoin.Operation{
		stablecoin.OpCashIn, stablecoin.OpBurn, stablecoin.OpWipe, stablecoin.OpFreeze,
		stablecoin.OpGrantKyc, stablecoin.OpPause, stablecoin.OpDelete, stablecoin.OpRescue,
		stablecoin.OpRoleManagement, stablecoin.OpRoleAdminManagement, stablecoin.OpReserveManagement,
	} {
		assert.Equal(t, stablecoin.AccessContract, access(t, caps, op), "operation %s", op)
	}
	assert.Equal(t, stablecoin.AccessNativeService, access(t, caps, stablecoin.OpTransfer))
}

func TestDeriveNativeToken(t *testing.T) {
	caps := Derive(nativeCoin(), operator)

	assert.Equal(t, stablecoin.AccessNativeService, access(t, caps, stablecoin.OpCashIn))
	assert.Equal(t, stablecoin.AccessNativeService, access(t, caps, stablecoin.OpWipe))
	assert.Equal(t, stablecoin.AccessNativeService, access(t, caps, stablecoin.OpDelete))

	// freeze key belongs to someone else, there is no KYC key and no proxy
	for _, op := range []stablecoin.Operation{
		stablecoin.OpFreeze, stablecoin.OpGrantKyc, stablecoin.OpRescue,
		stablecoin.OpRoleManagement, stablecoin.OpReserveManagement,
	} {
		assert.False(t, caps.Supports(op), "operation %s", op)
	}
}

func TestDerivePausedToken(t *testing.T) {
	coin := contractCoin()
	coin.Paused = true
	caps := Derive(coin, operator)

	assert.False(t, caps.Supports(stablecoin.OpCashIn))
	assert.False(t, caps.Supports(stablecoin.OpTransfer))
	assert.False(t, caps.Supports(stablecoin.OpRescue))
	assert.False(t, caps.Supports(stablecoin.OpDelete))
	assert.Equal(t, stablecoin.AccessContract, access(t, caps, stablecoin.OpUnpause))
}

func TestDerivePausedNativeTokenKeepsOnlyPause(t *testing.T) {
	coin := nativeCoin()
	coin.Paused = true
	caps := Derive(coin, operator)

	assert.Equal(t, []stablecoin.Capability{
		{Operation: stablecoin.OpPause, Access: stablecoin.AccessNativeService},
		{Operation: stablecoin.OpUnpause, Access: stablecoin.AccessNativeService},
	}, caps.Capabilities)
}

func TestDeriveDeletedToken(t *testing.T) {
	coin := contractCoin()
	coin.Deleted = true
	assert.Empty(t, Derive(coin, operator).Capabilities)
}

func TestDeriveRescueNeedsProxyTreasury(t *testing.T) {
	coin := contractCoin()
	coin.TreasuryAccount = "0.0.9999"
	caps := Derive(coin, operator)
	assert.False(t, caps.Supports(stablecoin.OpRescue))
	assert.False(t, caps.Supports(stablecoin.OpCashIn))
	assert.False(t, caps.Supports(stablecoin.OpBurn))
	assert.True(t, caps.Supports(stablecoin.OpWipe))
}

func TestDeriveAdminCapabilitiesFollowDeployer(t *testing.T) {
	coin := contractCoin()
	coin.AutoRenewAccount = "0.0.777"
	caps := Derive(coin, operator)
	assert.False(t, caps.Supports(stablecoin.OpRoleAdminManagement))
	assert.False(t, caps.Supports(stablecoin.OpReserveManagement))
	assert.True(t, caps.Supports(stablecoin.OpRoleManagement))

	coin = contractCoin()
	coin.Memo = ""
	caps = Derive(coin, operator)
	assert.False(t, caps.Supports(stablecoin.OpRoleAdminManagement))

	caps = Derive(contractCoin(), operator)
	assert.Equal(t, stablecoin.AccessContract, access(t, caps, stablecoin.OpRoleAdminManagement))
	assert.Equal(t, stablecoin.AccessContract, access(t, caps, stablecoin.OpReserveManagement))
}

type fakeReader struct {
	coins map[string]*stablecoin.StableCoin
	calls int
}

func (f *fakeReader) Token(_ context.Context, id string) (*stablecoin.StableCoin, error) {
	f.calls++
	coin, ok := f.coins[id]
	if !ok {
		return nil, errors.NewTransportError(errors.MIRROR_NOT_FOUND, "no token "+id, nil)
	}
	cp := *coin
	return &cp, nil
}

func (f *fakeReader) Account(context.Context, string) (*stablecoin.AccountInfo, error) {
	return nil, nil
}

func (f *fakeReader) TokenRelationship(context.Context, string, string) (*stablecoin.TokenRelationship, error) {
	return nil, nil
}

func TestResolverFetchesFreshState(t *testing.T) {
	coin := contractCoin()
	reader := &fakeReader{coins: map[string]*stablecoin.StableCoin{coin.TokenID: coin}}
	r := NewResolver(reader, nil)

	a, err := r.Resolve(context.Background(), coin.TokenID, operator, stablecoin.OpCashIn)
	require.NoError(t, err)
	assert.Equal(t, stablecoin.AccessContract, a)

	coin.Paused = true
	_, err = r.Resolve(context.Background(), coin.TokenID, operator, stablecoin.OpCashIn)
	assert.True(t, errors.HasCode(err, errors.OPERATION_UNSUPPORTED))
	assert.Equal(t, errors.KindCapability, errors.KindOf(err))
	assert.Equal(t, 2, reader.calls)
}

func TestResolverPropagatesMirrorErrors(t *testing.T) {
	r := NewResolver(&fakeReader{}, nil)
	_, err := r.Resolve(context.Background(), "0.0.1", operator, stablecoin.OpBurn)
	assert.True(t, errors.HasCode(err, errors.MIRROR_NOT_FOUND))
	assert.True(t, errors.Retryable(err))
}
