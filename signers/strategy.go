package signers

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/metrics"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// StrategyConfig is the closed set of signing configurations. Each variant
// carries only the fields its backend needs; New maps a variant to its signer.
type StrategyConfig interface {
	strategyName() string
}

// LocalConfig signs in-process with a private key.
type LocalConfig struct {
	KeyType    stablecoin.KeyType
	PrivateKey string // hex
}

// FireblocksConfig signs through a Fireblocks vault account (RAW signing).
type FireblocksConfig struct {
	APIKey         string
	APISecretKey   string // PEM encoded RSA private key
	BaseURL        string
	VaultAccountID string
	AssetID        string
	PublicKey      stablecoin.PublicKey
}

// DFNSConfig signs through a DFNS wallet with a delegated authorization token.
type DFNSConfig struct {
	AuthToken string
	AppID     string
	BaseURL   string
	WalletID  string
	PublicKey stablecoin.PublicKey
}

func (LocalConfig) strategyName() string      { return "local" }
func (FireblocksConfig) strategyName() string { return "fireblocks" }
func (DFNSConfig) strategyName() string       { return "dfns" }

// StrategyName returns the metrics/log label of cfg.
func StrategyName(cfg StrategyConfig) string {
	if cfg == nil {
		return "unknown"
	}
	return cfg.strategyName()
}

// Default polling used by remote strategies.
const (
	defaultPollInterval          = 1 * time.Second
	defaultFireblocksMaxAttempts = 10
	defaultDFNSMaxAttempts       = 3
)

type options struct {
	http         *net.Client
	logger       *logrus.Entry
	metrics      *metrics.Metrics
	pollInterval time.Duration
	maxAttempts  int
}

// Option configures a remote signer.
type Option func(*options)

// WithHTTPClient sets the transport used to reach the custody API.
func WithHTTPClient(c *net.Client) Option {
	return func(o *options) {
		o.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records remote signing outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPolling overrides how often and how many times the signature status is polled.
func WithPolling(interval time.Duration, maxAttempts int) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.maxAttempts = maxAttempts
	}
}

// New resolves cfg to a Signer. Configurations must be passed by value; any
// other type fails with UNRECOGNIZED_SIGNATURE_STRATEGY.
func New(cfg StrategyConfig, opts ...Option) (stablecoin.Signer, error) {
	o := &options{pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(o)
	}
	if o.http == nil {
		o.http = net.NewClient()
	}
	o.logger = logging.OrDiscard(o.logger).WithField("strategy", StrategyName(cfg))

	switch c := cfg.(type) {
	case LocalConfig:
		return newLocal(c)
	case FireblocksConfig:
		if o.maxAttempts == 0 {
			o.maxAttempts = defaultFireblocksMaxAttempts
		}
		return newFireblocks(c, o)
	case DFNSConfig:
		if o.maxAttempts == 0 {
			o.maxAttempts = defaultDFNSMaxAttempts
		}
		return newDFNS(c, o)
	}

	return nil, errors.NewConfigError(
		errors.UNRECOGNIZED_SIGNATURE_STRATEGY,
		fmt.Sprintf("unrecognized signature strategy %T", cfg),
		nil,
	)
}

func newLocal(c LocalConfig) (stablecoin.Signer, error) {
	var (
		s   stablecoin.Signer
		err error
	)
	switch c.KeyType {
	case stablecoin.KeyTypeED25519:
		s, err = FromED25519Seed(c.PrivateKey)
	case stablecoin.KeyTypeECDSA:
		s, err = FromECDSAKey(c.PrivateKey)
	default:
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, fmt.Sprintf("unsupported local key type %q", c.KeyType), nil)
	}
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid local signing key", err)
	}
	return s, nil
}

func required(strategy string, fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return errors.NewConfigError(
				errors.INVALID_ARGUMENT,
				fmt.Sprintf("%s strategy requires %s", strategy, name),
				nil,
			)
		}
	}
	return nil
}
