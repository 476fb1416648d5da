// Package postgres stores multi-signature transactions in PostgreSQL.
// Signature appends are a single UPDATE with array_append, so concurrent
// signers on different hosts never overwrite each other.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Schema creates the table used by MultiSigStore.
const Schema = `
CREATE TABLE IF NOT EXISTS multisig_transactions (
	id          TEXT PRIMARY KEY,
	message     BYTEA NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	account_id  TEXT NOT NULL,
	network     TEXT NOT NULL DEFAULT '',
	key_list    TEXT[] NOT NULL,
	threshold   INTEGER NOT NULL,
	signed_keys TEXT[] NOT NULL DEFAULT '{}',
	signatures  TEXT[] NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL,
	start_date  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS multisig_transactions_start_date_idx ON multisig_transactions (start_date DESC);
`

const columns = `id, message, description, account_id, network, key_list, threshold, signed_keys, signatures, status, start_date`

type row struct {
	ID          string         `db:"id"`
	Message     []byte         `db:"message"`
	Description string         `db:"description"`
	AccountID   string         `db:"account_id"`
	Network     string         `db:"network"`
	KeyList     pq.StringArray `db:"key_list"`
	Threshold   int            `db:"threshold"`
	SignedKeys  pq.StringArray `db:"signed_keys"`
	Signatures  pq.StringArray `db:"signatures"`
	Status      string         `db:"status"`
	StartDate   time.Time      `db:"start_date"`
}

// MultiSigStore is a stablecoin.MultiSigStore backed by PostgreSQL.
type MultiSigStore struct {
	db *sqlx.DB
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*MultiSigStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.NewStoreError(errors.STORE_ERROR, "failed to connect to postgres", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *MultiSigStore {
	return &MultiSigStore{db: db}
}

// Migrate creates the table when missing.
func (s *MultiSigStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewStoreError(errors.STORE_ERROR, "failed to migrate multisig schema", err)
	}
	return nil
}

// Close closes the pool.
func (s *MultiSigStore) Close() error {
	return s.db.Close()
}

// Save inserts a new record.
func (s *MultiSigStore) Save(ctx context.Context, tx *stablecoin.MultiSigTransaction) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO multisig_transactions (`+columns+`)
		 VALUES (:id, :message, :description, :account_id, :network, :key_list, :threshold, :signed_keys, :signatures, :status, :start_date)`,
		toRow(tx))
	if err != nil {
		return storeError("insert", tx.ID, err)
	}
	return nil
}

// FindByID retrieves a record by id.
func (s *MultiSigStore) FindByID(ctx context.Context, id string) (*stablecoin.MultiSigTransaction, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT `+columns+` FROM multisig_transactions WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storeError("select", id, err)
	}
	return r.toTransaction()
}

// AppendSignature appends key and signature and recomputes the status in one
// statement. A key that already signed, or a record that is no longer Pending,
// leaves the row untouched.
func (s *MultiSigStore) AppendSignature(ctx context.Context, id string, key stablecoin.PublicKey, signature []byte) (*stablecoin.MultiSigTransaction, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`UPDATE multisig_transactions
		 SET signed_keys = array_append(signed_keys, $2),
		     signatures  = array_append(signatures, $3),
		     status      = CASE WHEN cardinality(signed_keys) + 1 >= threshold THEN $4 ELSE $5 END
		 WHERE id = $1 AND status = $5 AND NOT ($2 = ANY(signed_keys))
		 RETURNING `+columns,
		id, encodeKey(key), hex.EncodeToString(signature),
		string(stablecoin.MultiSigSigned), string(stablecoin.MultiSigPending))
	if stderrors.Is(err, sql.ErrNoRows) {
		// unknown id, key already present or record already signed
		return s.FindByID(ctx, id)
	}
	if err != nil {
		return nil, storeError("append signature", id, err)
	}
	return r.toTransaction()
}

// List returns the matching records, newest first.
func (s *MultiSigStore) List(ctx context.Context, filter stablecoin.MultiSigFilter) (*stablecoin.MultiSigPage, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.PublicKey != nil {
		add("$%d = ANY(key_list)", encodeKey(*filter.PublicKey))
	}
	if filter.AccountID != "" {
		add("account_id = $%d", filter.AccountID)
	}
	if filter.Network != "" {
		add("network = $%d", filter.Network)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT count(*) FROM multisig_transactions`+clause, args...); err != nil {
		return nil, storeError("count", "", err)
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM multisig_transactions%s ORDER BY start_date DESC, id LIMIT %d OFFSET %d`,
		columns, clause, limit, (page-1)*limit)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storeError("list", "", err)
	}
	items := make([]*stablecoin.MultiSigTransaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].toTransaction()
		if err != nil {
			return nil, err
		}
		items = append(items, tx)
	}
	return &stablecoin.MultiSigPage{
		Items:      items,
		Pagination: stablecoin.NewPagination(page, limit, total, len(items)),
	}, nil
}

// Delete removes a record.
func (s *MultiSigStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM multisig_transactions WHERE id = $1`, id)
	if err != nil {
		return storeError("delete", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

func toRow(tx *stablecoin.MultiSigTransaction) row {
	sigs := make(pq.StringArray, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		sigs[i] = hex.EncodeToString(sig)
	}
	return row{
		ID:          tx.ID,
		Message:     tx.Message,
		Description: tx.Description,
		AccountID:   tx.AccountID,
		Network:     tx.Network,
		KeyList:     encodeKeys(tx.KeyList),
		Threshold:   tx.Threshold,
		SignedKeys:  encodeKeys(tx.SignedKeys),
		Signatures:  sigs,
		Status:      string(tx.Status),
		StartDate:   tx.StartDate.UTC(),
	}
}

func (r *row) toTransaction() (*stablecoin.MultiSigTransaction, error) {
	keyList, err := decodeKeys(r.KeyList)
	if err != nil {
		return nil, err
	}
	signed, err := decodeKeys(r.SignedKeys)
	if err != nil {
		return nil, err
	}
	sigs := make([][]byte, len(r.Signatures))
	for i, s := range r.Signatures {
		if sigs[i], err = hex.DecodeString(s); err != nil {
			return nil, errors.NewStoreError(errors.STORE_ERROR, "stored signature is not hex", err).
				WithContext("multisig_id", r.ID)
		}
	}
	return &stablecoin.MultiSigTransaction{
		ID:          r.ID,
		Message:     r.Message,
		Description: r.Description,
		AccountID:   r.AccountID,
		Network:     r.Network,
		KeyList:     keyList,
		Threshold:   r.Threshold,
		SignedKeys:  signed,
		Signatures:  sigs,
		Status:      stablecoin.MultiSigStatus(r.Status),
		StartDate:   r.StartDate.UTC(),
	}, nil
}

// Keys are stored as "TYPE:hex" so that ANY() comparisons are exact.
func encodeKey(k stablecoin.PublicKey) string {
	return string(k.Type) + ":" + k.String()
}

func encodeKeys(keys []stablecoin.PublicKey) pq.StringArray {
	out := make(pq.StringArray, len(keys))
	for i, k := range keys {
		out[i] = encodeKey(k)
	}
	return out
}

func decodeKeys(values []string) ([]stablecoin.PublicKey, error) {
	out := make([]stablecoin.PublicKey, 0, len(values))
	for _, v := range values {
		typ, key, ok := strings.Cut(v, ":")
		if !ok {
			return nil, errors.NewStoreError(errors.STORE_ERROR, "malformed stored key "+v, nil)
		}
		out = append(out, stablecoin.NewPublicKey(stablecoin.KeyType(typ), key))
	}
	return out, nil
}

func notFound(id string) error {
	return errors.NewBusinessError(errors.MULTISIG_NOT_FOUND, "multisig transaction not found", nil).
		WithContext("multisig_id", id)
}

func storeError(op, id string, err error) error {
	e := errors.NewStoreError(errors.STORE_ERROR, "multisig "+op+" failed", err)
	if id != "" {
		e = e.WithContext("multisig_id", id)
	}
	return e
}

var _ stablecoin.MultiSigStore = (*MultiSigStore)(nil)
