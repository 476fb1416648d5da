// Package service is the stablecoin application service. Every call loads the
// token fresh, runs the business checks for the operation, resolves which
// execution path serves it and dispatches to the adapter for that path.
// Checks run locally before any mutating ledger call; the ledger remains the
// final authority.
package service

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/capability"
	"github.com/marwen-abid/stablecoin-sdk-go/core/amount"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/metrics"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
	"github.com/marwen-abid/stablecoin-sdk-go/reserve"
)

// CapabilitySource loads a token and its capabilities for an account.
// *capability.Resolver satisfies it.
type CapabilitySource interface {
	Capabilities(ctx context.Context, tokenID string, account stablecoin.Account) (*stablecoin.StableCoin, stablecoin.TokenCapabilities, error)
}

// Config wires the collaborators of a Service.
type Config struct {
	// Account is the operating account; it pays fees and signs.
	Account stablecoin.Account

	// Tokens reads balances and token relationships.
	Tokens stablecoin.TokenReader

	// Capabilities defaults to a capability.Resolver over Tokens.
	Capabilities CapabilitySource

	// Native and Contract serve the two access paths. Either may be nil when
	// the deployment never uses that path.
	Native   stablecoin.TransactionAdapter
	Contract stablecoin.TransactionAdapter

	// Reserve is optional. Without it, tokens with a reserve cannot be minted.
	Reserve stablecoin.ReserveFeed
}

// Service runs stablecoin operations.
type Service struct {
	account      stablecoin.Account
	tokens       stablecoin.TokenReader
	capabilities CapabilitySource
	adapters     map[stablecoin.Access]stablecoin.TransactionAdapter
	guard        *reserve.Guard
	metrics      *metrics.Metrics
	logger       *logrus.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics records rejected operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a Service.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Tokens == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "service requires a token reader", nil)
	}
	if cfg.Account.ID == "" {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "service requires an operating account", nil)
	}
	s := &Service{
		account:      cfg.Account,
		tokens:       cfg.Tokens,
		capabilities: cfg.Capabilities,
		adapters:     map[stablecoin.Access]stablecoin.TransactionAdapter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger).WithField("component", "service")

	if s.capabilities == nil {
		s.capabilities = capability.NewResolver(cfg.Tokens, s.logger)
	}
	if cfg.Native != nil {
		s.adapters[stablecoin.AccessNativeService] = cfg.Native
	}
	if cfg.Contract != nil {
		s.adapters[stablecoin.AccessContract] = cfg.Contract
	}
	if cfg.Reserve != nil {
		s.guard = reserve.NewGuard(cfg.Reserve, s.logger)
	}
	return s, nil
}

// operation is one loaded call: the fresh token, the adapter serving op and
// a logger carrying both.
type operation struct {
	op      stablecoin.Operation
	coin    *stablecoin.StableCoin
	caps    stablecoin.TokenCapabilities
	adapter stablecoin.TransactionAdapter
	logger  *logrus.Entry
}

// load fetches the token and its capabilities. The reserve address lives on
// the contract facet and is read from there when the token has a proxy.
func (s *Service) load(ctx context.Context, tokenID string, op stablecoin.Operation) (*operation, error) {
	coin, caps, err := s.capabilities.Capabilities(ctx, tokenID, s.account)
	if err != nil {
		return nil, err
	}
	if coin.Deleted {
		return nil, s.reject(op, errors.NewBusinessError(errors.TOKEN_DELETED, "token "+tokenID+" is deleted", nil))
	}
	if contract, ok := s.adapters[stablecoin.AccessContract]; ok && coin.ProxyAddress != "" && coin.ReserveAddress == "" {
		addr, err := contract.ReserveAddress(ctx, coin)
		if err != nil {
			return nil, err
		}
		coin.ReserveAddress = addr
	}
	return &operation{
		op:     op,
		coin:   coin,
		caps:   caps,
		logger: s.logger.WithFields(logrus.Fields{"token": tokenID, "operation": op}),
	}, nil
}

// route resolves the access of o.op and picks its adapter. It runs after the
// business checks so an unsupported call never reaches the ledger.
func (s *Service) route(o *operation) error {
	access, err := o.caps.Resolve(o.op)
	if err != nil {
		return s.reject(o.op, err)
	}
	adapter, ok := s.adapters[access]
	if !ok {
		return s.reject(o.op, errors.NewCapabilityError(
			errors.OPERATION_UNSUPPORTED,
			"no adapter configured for "+string(access),
			nil,
		).WithContext("access", string(access)))
	}
	o.adapter = adapter
	o.logger = o.logger.WithField("access", access)
	return nil
}

func (s *Service) prepare(ctx context.Context, tokenID string, op stablecoin.Operation) (*operation, error) {
	o, err := s.load(ctx, tokenID, op)
	if err != nil {
		return nil, err
	}
	if err := s.route(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) reject(op stablecoin.Operation, err error) error {
	var se *errors.StablecoinError
	if errors.As(err, &se) {
		s.metrics.RecordRejection(string(op), string(se.Code))
	}
	s.logger.WithField("operation", op).WithError(err).Info("operation rejected")
	return err
}

func (s *Service) parse(o *operation, value string) (*big.Int, error) {
	raw, err := amount.Parse(value, o.coin.Decimals)
	if err != nil {
		return nil, s.reject(o.op, err)
	}
	if raw.Sign() <= 0 {
		return nil, s.reject(o.op, errors.NewBusinessError(errors.INVALID_AMOUNT, "amount must be positive", nil))
	}
	return raw, nil
}

func (s *Service) balanceOf(ctx context.Context, coin *stablecoin.StableCoin, account string) (*stablecoin.TokenRelationship, error) {
	rel, err := s.tokens.TokenRelationship(ctx, account, coin.TokenID)
	if err != nil {
		return nil, err
	}
	if rel.Balance == nil {
		rel.Balance = new(big.Int)
	}
	return rel, nil
}

func insufficient(code errors.Code, coin *stablecoin.StableCoin, account string, balance, requested *big.Int) *errors.StablecoinError {
	return errors.NewBusinessError(code, "balance of "+account+" is lower than the requested amount", nil).
		WithContext("token", coin.TokenID).
		WithContext("account", account).
		WithContext("balance", amount.Format(balance, coin.Decimals)).
		WithContext("requested", amount.Format(requested, coin.Decimals))
}

// Capabilities returns the current capabilities of tokenID for the operating account.
func (s *Service) Capabilities(ctx context.Context, tokenID string) (stablecoin.TokenCapabilities, error) {
	_, caps, err := s.capabilities.Capabilities(ctx, tokenID, s.account)
	return caps, err
}

// Token returns the current state of tokenID.
func (s *Service) Token(ctx context.Context, tokenID string) (*stablecoin.StableCoin, error) {
	o, err := s.load(ctx, tokenID, "")
	if err != nil {
		return nil, err
	}
	return o.coin, nil
}
