package stablecoin

import (
	"context"
	"time"
)

// MultiSigStatus is the coordination state of a multi-signature transaction.
type MultiSigStatus string

const (
	// MultiSigPending means fewer than threshold keys have signed.
	MultiSigPending MultiSigStatus = "PENDING"

	// MultiSigSigned means the threshold is met and the transaction can be submitted.
	// It accepts no further signatures.
	MultiSigSigned MultiSigStatus = "SIGNED"
)

// MultiSigTransaction is a prepared transaction waiting for signatures from a
// threshold key list. SignedKeys[i] always matches Signatures[i].
type MultiSigTransaction struct {
	ID          string
	Message     []byte
	Description string
	AccountID   string
	Network     string
	KeyList     []PublicKey
	Threshold   int
	SignedKeys  []PublicKey
	Signatures  [][]byte
	Status      MultiSigStatus
	StartDate   time.Time
}

// StatusFor computes the status implied by a signed-key count.
func StatusFor(signed, threshold int) MultiSigStatus {
	if signed >= threshold {
		return MultiSigSigned
	}
	return MultiSigPending
}

// HasKey reports whether pk is part of the key list.
func (t *MultiSigTransaction) HasKey(pk PublicKey) bool {
	return indexOf(t.KeyList, pk) >= 0
}

// HasSigned reports whether pk already signed.
func (t *MultiSigTransaction) HasSigned(pk PublicKey) bool {
	return indexOf(t.SignedKeys, pk) >= 0
}

func indexOf(keys []PublicKey, pk PublicKey) int {
	for i, k := range keys {
		if k.Equal(pk) {
			return i
		}
	}
	return -1
}

// MultiSigFilter narrows a multi-signature listing. Zero values match everything.
type MultiSigFilter struct {
	Status    *MultiSigStatus
	PublicKey *PublicKey
	AccountID string
	Network   string
	Page      int
	Limit     int
}

// Pagination describes one page of a listing.
// TotalPages is ceil(TotalItems / ItemsPerPage).
type Pagination struct {
	CurrentPage  int
	ItemsPerPage int
	TotalItems   int
	TotalPages   int
	ItemCount    int
}

// NewPagination computes consistent pagination metadata.
func NewPagination(page, limit, total, count int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage:  page,
		ItemsPerPage: limit,
		TotalItems:   total,
		TotalPages:   pages,
		ItemCount:    count,
	}
}

// MultiSigPage is one page of multi-signature transactions, newest first.
type MultiSigPage struct {
	Items      []*MultiSigTransaction
	Pagination Pagination
}

// MultiSigStore is the persistence port for multi-signature transactions.
// Records must be durable: signing parties act independently over long windows.
type MultiSigStore interface {
	// Save persists a new record.
	Save(ctx context.Context, tx *MultiSigTransaction) error

	// FindByID retrieves a record by id.
	FindByID(ctx context.Context, id string) (*MultiSigTransaction, error)

	// AppendSignature appends key and signature and recomputes the status in a
	// single atomic step. Appending an already present key, or appending to a
	// record that is no longer Pending, is a no-op.
	// Returns the updated record.
	AppendSignature(ctx context.Context, id string, key PublicKey, signature []byte) (*MultiSigTransaction, error)

	// List returns the records matching filter, ordered by StartDate descending.
	List(ctx context.Context, filter MultiSigFilter) (*MultiSigPage, error)

	// Delete removes a record regardless of state.
	Delete(ctx context.Context, id string) error
}
