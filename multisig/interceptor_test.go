package multisig

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/envelope"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
	"github.com/marwen-abid/stablecoin-sdk-go/store/memory"
)

type staticAccounts map[string]*stablecoin.AccountInfo

func (s staticAccounts) Account(_ context.Context, id string) (*stablecoin.AccountInfo, error) {
	info, ok := s[id]
	if !ok {
		return nil, errors.NewTransportError(errors.MIRROR_NOT_FOUND, "account not found", nil)
	}
	return info, nil
}

func mintTx(payer string) *stablecoin.Transaction {
	return &stablecoin.Transaction{
		Kind:          stablecoin.KindNative,
		Operation:     stablecoin.OpCashIn,
		TokenID:       "0.0.5005",
		Payer:         payer,
		ValidStart:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ValidDuration: stablecoin.DefaultValidDuration,
		Native: []stablecoin.NativeCall{
			{Type: stablecoin.NativeMint, TokenID: "0.0.5005", Amount: big.NewInt(1000)},
		},
	}
}

func TestInterceptorParksThresholdAccounts(t *testing.T) {
	a, b := signer(t, "01"), signer(t, "02")
	accounts := staticAccounts{
		"0.0.9001": {ID: "0.0.9001", Key: stablecoin.KeyBinding{
			Kind:      stablecoin.KeyThreshold,
			Threshold: 2,
			Keys:      []stablecoin.PublicKey{a.PublicKey(), b.PublicKey()},
		}},
		"0.0.1001": {ID: "0.0.1001", Key: stablecoin.KeyBinding{Kind: stablecoin.KeyPublic, PublicKey: a.PublicKey()}},
	}
	coord, err := NewCoordinator(memory.NewMultiSigStore())
	require.NoError(t, err)

	forwarded := 0
	next := stablecoin.DispatcherFunc(func(context.Context, *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
		forwarded++
		return &stablecoin.TransactionResult{TransactionID: "0.0.1001@1", Status: "SUCCESS"}, nil
	})
	ic := NewInterceptor(next, accounts, coord, "testnet", nil)
	ctx := context.Background()

	res, err := ic.Dispatch(ctx, mintTx("0.0.9001"))
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, string(stablecoin.MultiSigPending), res.Status)
	assert.Zero(t, forwarded)

	rec, err := coord.Get(ctx, res.MultiSigID)
	require.NoError(t, err)
	assert.Equal(t, "0.0.9001", rec.AccountID)
	assert.Equal(t, "testnet", rec.Network)
	assert.Equal(t, 2, rec.Threshold)
	assert.Equal(t, "CASH_IN 0.0.5005", rec.Description)

	decoded, err := envelope.Decode(rec.Message)
	require.NoError(t, err)
	assert.Equal(t, stablecoin.OpCashIn, decoded.Operation)
	require.Len(t, decoded.Native, 1)
	assert.Equal(t, 0, decoded.Native[0].Amount.Cmp(big.NewInt(1000)))

	res, err = ic.Dispatch(ctx, mintTx("0.0.1001"))
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.Equal(t, 1, forwarded)

	_, err = ic.Dispatch(ctx, mintTx("0.0.404"))
	assert.True(t, errors.HasCode(err, errors.MIRROR_NOT_FOUND))
}
