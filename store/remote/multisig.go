// Package remote stores multi-signature transactions in a shared multisig
// backend over its REST API. Signing parties on different machines see the
// same records, and the backend performs each signature append atomically.
package remote

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

const transactionsPath = "/api/transactions"

// MultiSigStore is a stablecoin.MultiSigStore backed by the multisig backend.
type MultiSigStore struct {
	baseURL string
	http    *net.Client
	headers map[string]string
	logger  *logrus.Entry
}

// Option configures a MultiSigStore.
type Option func(*MultiSigStore)

// WithHTTPClient sets the transport.
func WithHTTPClient(c *net.Client) Option {
	return func(s *MultiSigStore) {
		s.http = c
	}
}

// WithHeader adds a header to every request, such as an API key.
func WithHeader(key, value string) Option {
	return func(s *MultiSigStore) {
		s.headers[key] = value
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *MultiSigStore) {
		s.logger = l
	}
}

// New creates a store talking to the backend at baseURL.
func New(baseURL string, opts ...Option) (*MultiSigStore, error) {
	if baseURL == "" {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "multisig backend url is required", nil)
	}
	s := &MultiSigStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		s.http = net.NewClient(net.WithTimeout(30 * time.Second))
	}
	s.logger = logging.OrDiscard(s.logger).WithField("component", "multisig-store")
	return s, nil
}

type createRequest struct {
	ID                 string   `json:"id"`
	TransactionMessage string   `json:"transaction_message"`
	Description        string   `json:"description"`
	HederaAccountID    string   `json:"hedera_account_id"`
	KeyList            []string `json:"key_list"`
	Threshold          int      `json:"threshold"`
	Network            string   `json:"network"`
	StartDate          string   `json:"start_date"`
}

type signatureRequest struct {
	SignedKey string `json:"signed_key"`
	Signature string `json:"signature"`
}

// Save creates the record on the backend.
func (s *MultiSigStore) Save(ctx context.Context, tx *stablecoin.MultiSigTransaction) error {
	body, err := json.Marshal(createRequest{
		ID:                 tx.ID,
		TransactionMessage: hex.EncodeToString(tx.Message),
		Description:        tx.Description,
		HederaAccountID:    tx.AccountID,
		KeyList:            encodeKeys(tx.KeyList),
		Threshold:          tx.Threshold,
		Network:            tx.Network,
		StartDate:          tx.StartDate.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.NewStoreError(errors.STORE_ERROR, "failed to encode multisig transaction", err)
	}
	resp, err := s.http.Post(ctx, s.baseURL+transactionsPath, body, s.requestOptions()...)
	if err != nil {
		return err
	}
	_, err = s.read(resp, tx.ID)
	return err
}

// FindByID retrieves a record.
func (s *MultiSigStore) FindByID(ctx context.Context, id string) (*stablecoin.MultiSigTransaction, error) {
	resp, err := s.http.Get(ctx, s.recordURL(id), s.requestOptions()...)
	if err != nil {
		return nil, err
	}
	doc, err := s.read(resp, id)
	if err != nil {
		return nil, err
	}
	return parseRecord(doc)
}

// AppendSignature asks the backend to append key and signature, then reads the
// record back. The backend ignores a key that already signed.
func (s *MultiSigStore) AppendSignature(ctx context.Context, id string, key stablecoin.PublicKey, signature []byte) (*stablecoin.MultiSigTransaction, error) {
	body, err := json.Marshal(signatureRequest{
		SignedKey: key.String(),
		Signature: hex.EncodeToString(signature),
	})
	if err != nil {
		return nil, errors.NewStoreError(errors.STORE_ERROR, "failed to encode signature", err)
	}
	resp, err := s.http.Put(ctx, s.recordURL(id)+"/signature", body, s.requestOptions()...)
	if err != nil {
		return nil, err
	}
	if _, err := s.read(resp, id); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// List queries one page of records.
func (s *MultiSigStore) List(ctx context.Context, filter stablecoin.MultiSigFilter) (*stablecoin.MultiSigPage, error) {
	q := url.Values{}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Status != nil {
		q.Set("status", string(*filter.Status))
	}
	if filter.PublicKey != nil {
		q.Set("publicKey", filter.PublicKey.String())
	}
	if filter.AccountID != "" {
		q.Set("hederaAccountId", filter.AccountID)
	}
	if filter.Network != "" {
		q.Set("network", filter.Network)
	}
	u := s.baseURL + transactionsPath
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	resp, err := s.http.Get(ctx, u, s.requestOptions()...)
	if err != nil {
		return nil, err
	}
	doc, err := s.read(resp, "")
	if err != nil {
		return nil, err
	}

	items := make([]*stablecoin.MultiSigTransaction, 0)
	for _, item := range doc.Get("items").Array() {
		tx, err := parseRecord(item)
		if err != nil {
			return nil, err
		}
		items = append(items, tx)
	}
	meta := doc.Get("meta")
	return &stablecoin.MultiSigPage{
		Items: items,
		Pagination: stablecoin.NewPagination(
			int(meta.Get("currentPage").Int()),
			int(meta.Get("itemsPerPage").Int()),
			int(meta.Get("totalItems").Int()),
			len(items),
		),
	}, nil
}

// Delete removes a record.
func (s *MultiSigStore) Delete(ctx context.Context, id string) error {
	resp, err := s.http.Delete(ctx, s.recordURL(id), s.requestOptions()...)
	if err != nil {
		return err
	}
	_, err = s.read(resp, id)
	return err
}

func (s *MultiSigStore) recordURL(id string) string {
	return s.baseURL + transactionsPath + "/" + url.PathEscape(id)
}

func (s *MultiSigStore) requestOptions() []net.RequestOption {
	opts := make([]net.RequestOption, 0, len(s.headers))
	for k, v := range s.headers {
		opts = append(opts, net.WithHeader(k, v))
	}
	return opts
}

func (s *MultiSigStore) read(resp *net.Response, id string) (gjson.Result, error) {
	body, err := resp.Bytes()
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode == http.StatusNotFound && id != "" {
		return gjson.Result{}, errors.NewBusinessError(errors.MULTISIG_NOT_FOUND, "multisig transaction not found", nil).
			WithContext("multisig_id", id)
	}
	if !resp.IsSuccess() {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		s.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "multisig_id": id}).Warn("multisig backend error")
		return gjson.Result{}, errors.NewStoreError(
			errors.STORE_ERROR,
			fmt.Sprintf("multisig backend returned %d", resp.StatusCode),
			fmt.Errorf("%s", msg),
		).WithContext("status", resp.StatusCode)
	}
	return gjson.ParseBytes(body), nil
}

func parseRecord(doc gjson.Result) (*stablecoin.MultiSigTransaction, error) {
	id := doc.Get("id").String()
	invalid := func(field string, err error) error {
		return errors.NewStoreError(errors.STORE_ERROR, "invalid "+field+" in multisig record", err).
			WithContext("multisig_id", id)
	}

	message, err := hex.DecodeString(strings.TrimPrefix(doc.Get("transaction_message").String(), "0x"))
	if err != nil {
		return nil, invalid("transaction_message", err)
	}
	var sigs [][]byte
	for _, v := range doc.Get("signatures").Array() {
		sig, err := hex.DecodeString(strings.TrimPrefix(v.String(), "0x"))
		if err != nil {
			return nil, invalid("signatures", err)
		}
		sigs = append(sigs, sig)
	}
	start, err := time.Parse(time.RFC3339Nano, doc.Get("start_date").String())
	if err != nil {
		return nil, invalid("start_date", err)
	}

	tx := &stablecoin.MultiSigTransaction{
		ID:          id,
		Message:     message,
		Description: doc.Get("description").String(),
		AccountID:   doc.Get("hedera_account_id").String(),
		Network:     doc.Get("network").String(),
		KeyList:     decodeKeys(doc.Get("key_list").Array()),
		Threshold:   int(doc.Get("threshold").Int()),
		SignedKeys:  decodeKeys(doc.Get("signed_keys").Array()),
		Signatures:  sigs,
		StartDate:   start.UTC(),
	}
	if tx.Signatures == nil {
		tx.Signatures = [][]byte{}
	}
	if len(tx.SignedKeys) != len(tx.Signatures) {
		return nil, invalid("signatures", fmt.Errorf("%d keys for %d signatures", len(tx.SignedKeys), len(tx.Signatures)))
	}
	// the status is derived locally so it always agrees with the signed keys
	tx.Status = stablecoin.StatusFor(len(tx.SignedKeys), tx.Threshold)
	return tx, nil
}

func encodeKeys(keys []stablecoin.PublicKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// decodeKeys maps raw hex keys to typed keys: 33-byte compressed keys are
// secp256k1, everything else ED25519.
func decodeKeys(values []gjson.Result) []stablecoin.PublicKey {
	out := make([]stablecoin.PublicKey, 0, len(values))
	for _, v := range values {
		raw := strings.TrimPrefix(strings.ToLower(v.String()), "0x")
		typ := stablecoin.KeyTypeED25519
		if len(raw) == 66 {
			typ = stablecoin.KeyTypeECDSA
		}
		out = append(out, stablecoin.NewPublicKey(typ, raw))
	}
	return out
}

var _ stablecoin.MultiSigStore = (*MultiSigStore)(nil)
