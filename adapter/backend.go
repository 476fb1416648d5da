// Package adapter implements the per-path transaction adapters and the ledger
// backends they dispatch through.
//
// An adapter turns a stablecoin operation into a prepared Transaction: the
// NativeAdapter builds native token-service calls, the ContractAdapter ABI-encodes
// calls on the stablecoin facet behind the token's proxy. A Dispatcher built from
// a Backend then signs and submits that Transaction on one concrete path.
package adapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/metrics"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
	"github.com/marwen-abid/stablecoin-sdk-go/signers"
)

// Backend is the closed set of ledger backends. Only the variants declared in
// this package satisfy it.
type Backend interface {
	backendName() string
}

// NativeService signs the canonical body locally and submits it through the
// native gateway.
type NativeService struct {
	Gateway *Gateway
	Signer  stablecoin.Signer
}

// Contract signs EVM transactions with a secp256k1 key and sends them over
// JSON-RPC. Native calls go through the token-service precompile.
type Contract struct {
	EVM     EVMClient
	Key     *ecdsa.PrivateKey
	ChainID *big.Int
}

// WalletPairing forwards transactions to a paired wallet that signs and
// submits them on the user's behalf.
type WalletPairing struct {
	Kind    WalletKind
	Session *PairingSession
	Network string // ledger network name used in account references
	From    string // EVM address of the wallet account, MetaMask only
}

// Custodial signs through a custody provider and submits through the native gateway.
type Custodial struct {
	Config        signers.StrategyConfig
	Gateway       *Gateway
	SignerOptions []signers.Option
}

func (NativeService) backendName() string { return "native" }
func (Contract) backendName() string      { return "contract" }
func (WalletPairing) backendName() string { return "wallet" }
func (Custodial) backendName() string     { return "custodial" }

// BackendName returns the metrics/log label of b.
func BackendName(b Backend) string {
	if b == nil {
		return "unknown"
	}
	return b.backendName()
}

type options struct {
	logger  *logrus.Entry
	metrics *metrics.Metrics
}

// Option configures a dispatcher or an adapter.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records dispatch outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDiscard(o.logger)
	return o
}

// NewDispatcher builds the Dispatcher for b. Backends must be passed by value;
// anything else fails with UNRECOGNIZED_BACKEND.
func NewDispatcher(b Backend, opts ...Option) (stablecoin.Dispatcher, error) {
	o := buildOptions(opts)
	name := BackendName(b)
	logger := o.logger.WithField("backend", name)

	var (
		d   stablecoin.Dispatcher
		err error
	)
	switch v := b.(type) {
	case NativeService:
		d, err = newNativeDispatcher(v.Gateway, v.Signer, logger)
	case Contract:
		d, err = newEVMDispatcher(v, logger)
	case WalletPairing:
		d, err = newPairingDispatcher(v, logger)
	case Custodial:
		var signer stablecoin.Signer
		signer, err = signers.New(v.Config, append([]signers.Option{
			signers.WithLogger(logger),
			signers.WithMetrics(o.metrics),
		}, v.SignerOptions...)...)
		if err == nil {
			d, err = newNativeDispatcher(v.Gateway, signer, logger)
		}
	default:
		return nil, errors.NewConfigError(
			errors.UNRECOGNIZED_BACKEND,
			fmt.Sprintf("unrecognized backend %T", b),
			nil,
		)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{next: d, backend: name, metrics: o.metrics, logger: logger}, nil
}

// instrumented records every dispatch.
type instrumented struct {
	next    stablecoin.Dispatcher
	backend string
	metrics *metrics.Metrics
	logger  *logrus.Entry
}

func (i *instrumented) Dispatch(ctx context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	start := time.Now()
	res, err := i.next.Dispatch(ctx, tx)
	outcome := "success"
	if err != nil {
		outcome = string(errors.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	i.metrics.ObserveDispatch(i.backend, string(tx.Kind), outcome, time.Since(start))

	entry := i.logger.WithFields(logrus.Fields{
		"operation": tx.Operation,
		"token":     tx.TokenID,
		"kind":      tx.Kind,
	})
	if err != nil {
		entry.WithError(err).Warn("dispatch failed")
		return nil, err
	}
	entry.WithField("transaction_id", res.TransactionID).Info("transaction dispatched")
	return res, nil
}

func requireSigner(s stablecoin.Signer) error {
	if s == nil {
		return errors.NewConfigError(errors.INVALID_ARGUMENT, "backend requires a signer", nil)
	}
	return nil
}
