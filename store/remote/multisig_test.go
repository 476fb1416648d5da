package remote

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
	"github.com/marwen-abid/stablecoin-sdk-go/store/memory"
)

var (
	keyA = stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, strings.Repeat("aa", 32))
	keyB = stablecoin.NewPublicKey(stablecoin.KeyTypeECDSA, "02"+strings.Repeat("bb", 32))
)

// backend is a minimal multisig backend keeping records in a memory store.
type backend struct {
	store   *memory.MultiSigStore
	queries []string
	apiKey  string
}

func recordJSON(tx *stablecoin.MultiSigTransaction) map[string]any {
	sigs := make([]string, len(tx.Signatures))
	for i, s := range tx.Signatures {
		sigs[i] = hex.EncodeToString(s)
	}
	return map[string]any{
		"id":                  tx.ID,
		"transaction_message": hex.EncodeToString(tx.Message),
		"description":         tx.Description,
		"hedera_account_id":   tx.AccountID,
		"network":             tx.Network,
		"key_list":            encodeKeys(tx.KeyList),
		"threshold":           tx.Threshold,
		"signed_keys":         encodeKeys(tx.SignedKeys),
		"signatures":          sigs,
		"status":              tx.Status,
		"start_date":          tx.StartDate.Format(time.RFC3339Nano),
	}
}

func (b *backend) router() http.Handler {
	r := mux.NewRouter()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	fail := func(w http.ResponseWriter, err error) {
		status := http.StatusBadRequest
		if errors.HasCode(err, errors.MULTISIG_NOT_FOUND) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"message": err.Error()})
	}

	r.HandleFunc("/api/transactions", func(w http.ResponseWriter, req *http.Request) {
		b.apiKey = req.Header.Get("X-Api-Key")
		var body createRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Threshold == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "threshold is required"})
			return
		}
		msg, _ := hex.DecodeString(body.TransactionMessage)
		start, _ := time.Parse(time.RFC3339Nano, body.StartDate)
		tx := &stablecoin.MultiSigTransaction{
			ID:          body.ID,
			Message:     msg,
			Description: body.Description,
			AccountID:   body.HederaAccountID,
			Network:     body.Network,
			Threshold:   body.Threshold,
			Status:      stablecoin.MultiSigPending,
			StartDate:   start,
		}
		for _, k := range body.KeyList {
			tx.KeyList = append(tx.KeyList, parseTestKey(k))
		}
		if err := b.store.Save(req.Context(), tx); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"transactionId": tx.ID})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/transactions", func(w http.ResponseWriter, req *http.Request) {
		b.queries = append(b.queries, req.URL.RawQuery)
		q := req.URL.Query()
		filter := stablecoin.MultiSigFilter{AccountID: q.Get("hederaAccountId"), Network: q.Get("network")}
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		if s := q.Get("status"); s != "" {
			status := stablecoin.MultiSigStatus(s)
			filter.Status = &status
		}
		if pk := q.Get("publicKey"); pk != "" {
			key := parseTestKey(pk)
			filter.PublicKey = &key
		}
		page, err := b.store.List(req.Context(), filter)
		if err != nil {
			fail(w, err)
			return
		}
		items := make([]map[string]any, 0, len(page.Items))
		for _, tx := range page.Items {
			items = append(items, recordJSON(tx))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"meta": map[string]int{
				"totalItems":   page.Pagination.TotalItems,
				"itemCount":    page.Pagination.ItemCount,
				"itemsPerPage": page.Pagination.ItemsPerPage,
				"totalPages":   page.Pagination.TotalPages,
				"currentPage":  page.Pagination.CurrentPage,
			},
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
		tx, err := b.store.FindByID(req.Context(), mux.Vars(req)["id"])
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recordJSON(tx))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/transactions/{id}/signature", func(w http.ResponseWriter, req *http.Request) {
		var body signatureRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		sig, _ := hex.DecodeString(body.Signature)
		if _, err := b.store.AppendSignature(req.Context(), mux.Vars(req)["id"], parseTestKey(body.SignedKey), sig); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPut)

	r.HandleFunc("/api/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := b.store.Delete(req.Context(), mux.Vars(req)["id"]); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	return r
}

func parseTestKey(s string) stablecoin.PublicKey {
	if len(s) == 66 {
		return stablecoin.NewPublicKey(stablecoin.KeyTypeECDSA, s)
	}
	return stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, s)
}

func newStore(t *testing.T) (*MultiSigStore, *backend) {
	t.Helper()
	b := &backend{store: memory.NewMultiSigStore()}
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)

	s, err := New(srv.URL, WithHeader("X-Api-Key", "secret"))
	require.NoError(t, err)
	return s, b
}

func record(id string, start time.Time) *stablecoin.MultiSigTransaction {
	return &stablecoin.MultiSigTransaction{
		ID:          id,
		Message:     []byte("body-" + id),
		Description: "CASH_IN 0.0.1001",
		AccountID:   "0.0.9001",
		Network:     "testnet",
		KeyList:     []stablecoin.PublicKey{keyA, keyB},
		Threshold:   2,
		SignedKeys:  []stablecoin.PublicKey{},
		Signatures:  [][]byte{},
		Status:      stablecoin.MultiSigPending,
		StartDate:   start,
	}
}

func TestSaveAndFind(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("ms-1", start)))
	assert.Equal(t, "secret", b.apiKey)

	tx, err := s.FindByID(ctx, "ms-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("body-ms-1"), tx.Message)
	assert.Equal(t, []stablecoin.PublicKey{keyA, keyB}, tx.KeyList)
	assert.Equal(t, 2, tx.Threshold)
	assert.Equal(t, stablecoin.MultiSigPending, tx.Status)
	assert.Equal(t, start, tx.StartDate)
	assert.Empty(t, tx.SignedKeys)
}

func TestAppendSignatureReadsBack(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, record("ms-1", time.Now().UTC())))

	tx, err := s.AppendSignature(ctx, "ms-1", keyB, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, []stablecoin.PublicKey{keyB}, tx.SignedKeys)
	assert.Equal(t, stablecoin.MultiSigPending, tx.Status)

	tx, err = s.AppendSignature(ctx, "ms-1", keyA, []byte{0x02})
	require.NoError(t, err)
	assert.Equal(t, []stablecoin.PublicKey{keyB, keyA}, tx.SignedKeys)
	assert.Equal(t, [][]byte{{0x01}, {0x02}}, tx.Signatures)
	assert.Equal(t, stablecoin.MultiSigSigned, tx.Status)
}

func TestListSendsFilterAndReadsMeta(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, record("ms-"+strconv.Itoa(i), base.Add(time.Duration(i)*time.Hour))))
	}

	status := stablecoin.MultiSigPending
	page, err := s.List(ctx, stablecoin.MultiSigFilter{Status: &status, PublicKey: &keyA, Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ms-2", page.Items[0].ID, "newest first")
	assert.Equal(t, stablecoin.Pagination{CurrentPage: 1, ItemsPerPage: 2, TotalItems: 3, TotalPages: 2, ItemCount: 2}, page.Pagination)

	require.Len(t, b.queries, 1)
	assert.Contains(t, b.queries[0], "status=PENDING")
	assert.Contains(t, b.queries[0], "publicKey="+keyA.String())
}

func TestNotFound(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.FindByID(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.MULTISIG_NOT_FOUND))

	err = s.Delete(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.MULTISIG_NOT_FOUND))
}

func TestBackendErrorIsStoreError(t *testing.T) {
	s, _ := newStore(t)
	tx := record("ms-1", time.Now().UTC())
	tx.Threshold = 0

	err := s.Save(context.Background(), tx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.STORE_ERROR))
	assert.Contains(t, err.Error(), "threshold is required")
}

func TestDeleteRemovesRecord(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, record("ms-1", time.Now().UTC())))

	require.NoError(t, s.Delete(ctx, "ms-1"))
	_, err := s.FindByID(ctx, "ms-1")
	assert.True(t, errors.HasCode(err, errors.MULTISIG_NOT_FOUND))
}
