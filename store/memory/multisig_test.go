package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

func keyN(n int) stablecoin.PublicKey {
	return stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, strings.Repeat(fmt.Sprintf("%02x", n), 32))
}

func pending(id string, threshold int, keys ...stablecoin.PublicKey) *stablecoin.MultiSigTransaction {
	return &stablecoin.MultiSigTransaction{
		ID:         id,
		Message:    []byte("body"),
		AccountID:  "0.0.9001",
		Network:    "testnet",
		KeyList:    keys,
		Threshold:  threshold,
		SignedKeys: []stablecoin.PublicKey{},
		Signatures: [][]byte{},
		Status:     stablecoin.MultiSigPending,
		StartDate:  time.Now().UTC(),
	}
}

func TestSaveRejectsDuplicateID(t *testing.T) {
	s := NewMultiSigStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, pending("ms-1", 1, keyN(1))))

	err := s.Save(ctx, pending("ms-1", 1, keyN(1)))
	assert.True(t, errors.HasCode(err, errors.STORE_ERROR))
}

func TestRecordsAreCopied(t *testing.T) {
	s := NewMultiSigStore()
	ctx := context.Background()
	tx := pending("ms-1", 2, keyN(1), keyN(2))
	require.NoError(t, s.Save(ctx, tx))
	tx.KeyList[0] = keyN(9)

	got, err := s.FindByID(ctx, "ms-1")
	require.NoError(t, err)
	assert.Equal(t, keyN(1), got.KeyList[0])

	got.Message[0] = 'X'
	again, err := s.FindByID(ctx, "ms-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), again.Message)
}

func TestConcurrentAppendsKeepEverySignature(t *testing.T) {
	s := NewMultiSigStore()
	ctx := context.Background()
	const n = 20
	keys := make([]stablecoin.PublicKey, n)
	for i := range keys {
		keys[i] = keyN(i + 1)
	}
	require.NoError(t, s.Save(ctx, pending("ms-1", n, keys...)))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendSignature(ctx, "ms-1", keys[i], []byte{byte(i)})
			assert.NoError(t, err)
			_, err = s.AppendSignature(ctx, "ms-1", keys[i], []byte{0xff})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tx, err := s.FindByID(ctx, "ms-1")
	require.NoError(t, err)
	assert.Len(t, tx.SignedKeys, n)
	assert.Len(t, tx.Signatures, n)
	assert.Equal(t, stablecoin.MultiSigSigned, tx.Status)
	for i, k := range tx.SignedKeys {
		idx := -1
		for j := range keys {
			if keys[j].Equal(k) {
				idx = j
			}
		}
		require.GreaterOrEqual(t, idx, 0)
		assert.Equal(t, []byte{byte(idx)}, tx.Signatures[i], "signature stays paired with its key")
	}
}

func TestSignedRecordIgnoresLateSignatures(t *testing.T) {
	s := NewMultiSigStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, pending("ms-1", 1, keyN(1), keyN(2))))

	tx, err := s.AppendSignature(ctx, "ms-1", keyN(1), []byte{1})
	require.NoError(t, err)
	require.Equal(t, stablecoin.MultiSigSigned, tx.Status)

	tx, err = s.AppendSignature(ctx, "ms-1", keyN(2), []byte{2})
	require.NoError(t, err)
	assert.Equal(t, []stablecoin.PublicKey{keyN(1)}, tx.SignedKeys)
	assert.Equal(t, [][]byte{{1}}, tx.Signatures)
	assert.Equal(t, stablecoin.MultiSigSigned, tx.Status)
}

func TestListFiltersSortsAndPages(t *testing.T) {
	s := NewMultiSigStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx := pending(fmt.Sprintf("ms-%d", i), 1, keyN(1))
		tx.StartDate = base.Add(time.Duration(i) * time.Minute)
		if i == 4 {
			tx.KeyList = []stablecoin.PublicKey{keyN(2)}
			tx.Network = "mainnet"
		}
		require.NoError(t, s.Save(ctx, tx))
	}
	_, err := s.AppendSignature(ctx, "ms-0", keyN(1), []byte{1})
	require.NoError(t, err)

	status := stablecoin.MultiSigPending
	key := keyN(1)
	page, err := s.List(ctx, stablecoin.MultiSigFilter{Status: &status, PublicKey: &key, Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ms-3", page.Items[0].ID)
	assert.Equal(t, "ms-2", page.Items[1].ID)
	assert.Equal(t, 3, page.Pagination.TotalItems)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	page, err = s.List(ctx, stablecoin.MultiSigFilter{Status: &status, PublicKey: &key, Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ms-1", page.Items[0].ID)

	page, err = s.List(ctx, stablecoin.MultiSigFilter{Network: "mainnet"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ms-4", page.Items[0].ID)
}

func TestDeleteUnknown(t *testing.T) {
	s := NewMultiSigStore()
	err := s.Delete(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.MULTISIG_NOT_FOUND))

	_, err = s.AppendSignature(context.Background(), "missing", keyN(1), nil)
	assert.True(t, errors.HasCode(err, errors.MULTISIG_NOT_FOUND))
}
