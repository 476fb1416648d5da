// Package memory provides an in-memory implementation of the multi-signature
// store. Records live in a map guarded by a sync.RWMutex. It is suitable for
// tests and single-process tools; signing parties in separate processes need a
// shared store such as store/postgres or store/remote.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// MultiSigStore is an in-memory stablecoin.MultiSigStore. Records are copied
// on the way in and out so callers never share state with the store.
type MultiSigStore struct {
	records map[string]*stablecoin.MultiSigTransaction
	mu      sync.RWMutex
}

// NewMultiSigStore creates an empty store.
func NewMultiSigStore() *MultiSigStore {
	return &MultiSigStore{
		records: make(map[string]*stablecoin.MultiSigTransaction),
	}
}

// Save persists a new record. Saving an existing id fails.
func (s *MultiSigStore) Save(ctx context.Context, tx *stablecoin.MultiSigTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[tx.ID]; exists {
		return errors.NewStoreError(errors.STORE_ERROR, "multisig transaction already exists", nil).
			WithContext("multisig_id", tx.ID)
	}
	s.records[tx.ID] = clone(tx)
	return nil
}

// FindByID retrieves a record by id.
func (s *MultiSigStore) FindByID(ctx context.Context, id string) (*stablecoin.MultiSigTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.records[id]
	if !exists {
		return nil, notFound(id)
	}
	return clone(tx), nil
}

// AppendSignature appends key and signature under the write lock, so
// concurrent signers never lose an update. Only Pending records accept keys.
func (s *MultiSigStore) AppendSignature(ctx context.Context, id string, key stablecoin.PublicKey, signature []byte) (*stablecoin.MultiSigTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.records[id]
	if !exists {
		return nil, notFound(id)
	}
	if tx.Status == stablecoin.MultiSigPending && !tx.HasSigned(key) {
		tx.SignedKeys = append(tx.SignedKeys, key)
		tx.Signatures = append(tx.Signatures, append([]byte(nil), signature...))
		tx.Status = stablecoin.StatusFor(len(tx.SignedKeys), tx.Threshold)
	}
	return clone(tx), nil
}

// List returns the matching records, newest first.
func (s *MultiSigStore) List(ctx context.Context, filter stablecoin.MultiSigFilter) (*stablecoin.MultiSigPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*stablecoin.MultiSigTransaction
	for _, tx := range s.records {
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}
		if filter.PublicKey != nil && !tx.HasKey(*filter.PublicKey) {
			continue
		}
		if filter.AccountID != "" && tx.AccountID != filter.AccountID {
			continue
		}
		if filter.Network != "" && tx.Network != filter.Network {
			continue
		}
		matched = append(matched, tx)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartDate.Equal(matched[j].StartDate) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].StartDate.After(matched[j].StartDate)
	})

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = len(matched)
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	items := make([]*stablecoin.MultiSigTransaction, 0, end-start)
	for _, tx := range matched[start:end] {
		items = append(items, clone(tx))
	}
	return &stablecoin.MultiSigPage{
		Items:      items,
		Pagination: stablecoin.NewPagination(page, limit, len(matched), len(items)),
	}, nil
}

// Delete removes a record.
func (s *MultiSigStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return notFound(id)
	}
	delete(s.records, id)
	return nil
}

func notFound(id string) error {
	return errors.NewBusinessError(errors.MULTISIG_NOT_FOUND, "multisig transaction not found", nil).
		WithContext("multisig_id", id)
}

func clone(tx *stablecoin.MultiSigTransaction) *stablecoin.MultiSigTransaction {
	c := *tx
	c.Message = append([]byte(nil), tx.Message...)
	c.KeyList = append([]stablecoin.PublicKey(nil), tx.KeyList...)
	c.SignedKeys = append([]stablecoin.PublicKey{}, tx.SignedKeys...)
	c.Signatures = make([][]byte, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		c.Signatures[i] = append([]byte(nil), sig...)
	}
	return &c
}

// Verify that MultiSigStore implements stablecoin.MultiSigStore
var _ stablecoin.MultiSigStore = (*MultiSigStore)(nil)
