package multisig

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	corecrypto "github.com/marwen-abid/stablecoin-sdk-go/core/crypto"
	"github.com/marwen-abid/stablecoin-sdk-go/core/envelope"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/metrics"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Listing bounds.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// SignedSubmitter sends a fully signed envelope to the ledger.
// *adapter.Gateway satisfies it.
type SignedSubmitter interface {
	SubmitSigned(ctx context.Context, env *envelope.Signed) (*stablecoin.TransactionResult, error)
}

// CreateRequest describes a transaction to park for signature collection.
type CreateRequest struct {
	Message     []byte
	Description string
	AccountID   string
	Network     string
	KeyList     []stablecoin.PublicKey
	Threshold   int
}

// Coordinator runs the multi-signature protocol over a MultiSigStore.
type Coordinator struct {
	store     stablecoin.MultiSigStore
	submitter SignedSubmitter
	hooks     *HookRegistry
	metrics   *metrics.Metrics
	logger    *logrus.Entry
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSubmitter sets where signed records are submitted. Without it Submit
// fails with INVALID_ARGUMENT.
func WithSubmitter(s SignedSubmitter) Option {
	return func(c *Coordinator) {
		c.submitter = s
	}
}

// WithHooks attaches a lifecycle hook registry.
func WithHooks(h *HookRegistry) Option {
	return func(c *Coordinator) {
		c.hooks = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics records lifecycle events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithClock overrides the time source used for StartDate.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a Coordinator persisting records in store.
func NewCoordinator(store stablecoin.MultiSigStore, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "multisig coordinator requires a store", nil)
	}
	c := &Coordinator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger).WithField("component", "multisig")
	return c, nil
}

func (c *Coordinator) event(event HookEvent, tx *stablecoin.MultiSigTransaction) {
	c.metrics.RecordMultiSig(string(event))
	c.hooks.Trigger(event, tx)
}

// Create parks a new pending record. Duplicate keys are dropped keeping the
// first occurrence; a threshold outside 1..len(keys) becomes len(keys).
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*stablecoin.MultiSigTransaction, error) {
	if len(req.Message) == 0 {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "multisig message is empty", nil)
	}
	if req.AccountID == "" {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "multisig account id is required", nil)
	}
	keys := uniqueKeys(req.KeyList)
	if len(keys) == 0 {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "multisig key list is empty", nil)
	}
	threshold := req.Threshold
	if threshold <= 0 || threshold > len(keys) {
		threshold = len(keys)
	}

	tx := &stablecoin.MultiSigTransaction{
		ID:          corecrypto.GenerateID(),
		Message:     req.Message,
		Description: req.Description,
		AccountID:   req.AccountID,
		Network:     req.Network,
		KeyList:     keys,
		Threshold:   threshold,
		SignedKeys:  []stablecoin.PublicKey{},
		Signatures:  [][]byte{},
		Status:      stablecoin.MultiSigPending,
		StartDate:   c.now().UTC(),
	}
	if err := c.store.Save(ctx, tx); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"multisig_id": tx.ID,
		"account":     tx.AccountID,
		"threshold":   tx.Threshold,
		"keys":        len(tx.KeyList),
	}).Info("multisig transaction created")
	c.event(HookCreated, tx)
	return tx, nil
}

func uniqueKeys(keys []stablecoin.PublicKey) []stablecoin.PublicKey {
	out := make([]stablecoin.PublicKey, 0, len(keys))
	for _, k := range keys {
		if k.IsZero() {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen.Equal(k) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, stablecoin.NewPublicKey(k.Type, k.Key))
		}
	}
	return out
}

// Get returns the record with id.
func (c *Coordinator) Get(ctx context.Context, id string) (*stablecoin.MultiSigTransaction, error) {
	return c.store.FindByID(ctx, id)
}

// List returns one page of records, newest first.
func (c *Coordinator) List(ctx context.Context, filter stablecoin.MultiSigFilter) (*stablecoin.MultiSigPage, error) {
	return c.store.List(ctx, NormalizeFilter(filter))
}

// NormalizeFilter clamps paging: page starts at 1, limit defaults to
// DefaultPageLimit and never exceeds MaxPageLimit.
func NormalizeFilter(filter stablecoin.MultiSigFilter) stablecoin.MultiSigFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageLimit
	}
	if filter.Limit > MaxPageLimit {
		filter.Limit = MaxPageLimit
	}
	return filter
}

// Sign records signature from key. The key must be in the key list and the
// signature must verify over the record's message. Signing again with a key
// that already signed returns the record unchanged.
func (c *Coordinator) Sign(ctx context.Context, id string, key stablecoin.PublicKey, signature []byte) (*stablecoin.MultiSigTransaction, error) {
	tx, err := c.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := c.logger.WithField("multisig_id", id).WithField("key", key.String())

	canonical, ok := keyInList(tx.KeyList, key)
	if !ok {
		return nil, errors.NewBusinessError(errors.UNAUTHORIZED_KEY, "key is not part of the key list", nil).
			WithContext("multisig_id", id).
			WithContext("key", key.String())
	}
	if tx.HasSigned(canonical) {
		logger.Debug("key already signed")
		return tx, nil
	}
	if err := ValidateTransition(tx.Status, stablecoin.StatusFor(len(tx.SignedKeys)+1, tx.Threshold)); err != nil {
		return nil, err
	}

	valid, err := corecrypto.VerifySignature(canonical, tx.Message, signature)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "key list entry cannot verify signatures", err).
			WithContext("multisig_id", id).
			WithContext("key", key.String())
	}
	if !valid {
		return nil, errors.NewBusinessError(errors.INVALID_SIGNATURE, "signature does not verify over the message", nil).
			WithContext("multisig_id", id).
			WithContext("key", key.String())
	}

	updated, err := c.store.AppendSignature(ctx, id, canonical, signature)
	if err != nil {
		return nil, err
	}
	if !updated.HasSigned(canonical) {
		// another signer met the threshold first
		return nil, errors.NewBusinessError(errors.TRANSITION_INVALID, "multisig transaction no longer accepts signatures", nil).
			WithContext("multisig_id", id).
			WithContext("status", string(updated.Status))
	}
	logger.WithFields(logrus.Fields{
		"signed":    len(updated.SignedKeys),
		"threshold": updated.Threshold,
		"status":    updated.Status,
	}).Info("multisig transaction signed")

	c.event(HookSigned, updated)
	if tx.Status == stablecoin.MultiSigPending && updated.Status == stablecoin.MultiSigSigned {
		c.event(HookThresholdMet, updated)
	}
	return updated, nil
}

func keyInList(keys []stablecoin.PublicKey, key stablecoin.PublicKey) (stablecoin.PublicKey, bool) {
	for _, k := range keys {
		if k.Equal(key) {
			return k, true
		}
	}
	return stablecoin.PublicKey{}, false
}

// Submit assembles the signed envelope of a Signed record, in signing order,
// and submits it. The record is removed once the ledger accepts it; a failed
// submission keeps it for another attempt.
func (c *Coordinator) Submit(ctx context.Context, id string) (*stablecoin.TransactionResult, error) {
	tx, err := c.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != stablecoin.MultiSigSigned || len(tx.SignedKeys) < tx.Threshold {
		return nil, errors.NewBusinessError(errors.THRESHOLD_NOT_MET, "multisig transaction is not fully signed", nil).
			WithContext("multisig_id", id).
			WithContext("signed", len(tx.SignedKeys)).
			WithContext("threshold", tx.Threshold)
	}
	if c.submitter == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "no submitter configured", nil)
	}

	env, err := envelope.NewSigned(tx.Message, tx.SignedKeys, tx.Signatures)
	if err != nil {
		return nil, err
	}
	logger := c.logger.WithField("multisig_id", id)
	res, err := c.submitter.SubmitSigned(ctx, env)
	if err != nil {
		logger.WithError(err).Warn("multisig submission failed")
		return nil, err
	}
	res.MultiSigID = id

	if err := c.store.Delete(ctx, id); err != nil {
		logger.WithError(err).Error("submitted multisig transaction could not be removed")
	}
	logger.WithField("tx", res.TransactionID).Info("multisig transaction submitted")
	c.event(HookSubmitted, tx)
	return res, nil
}

// Delete removes a record in any state.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	tx, err := c.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.logger.WithField("multisig_id", id).Info("multisig transaction deleted")
	c.event(HookDeleted, tx)
	return nil
}
