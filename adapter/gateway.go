package adapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/envelope"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// StatusSuccess is the receipt status of an executed native transaction.
const StatusSuccess = "SUCCESS"

const gatewayTransactionsPath = "/api/v1/transactions"

// Gateway submits signed envelopes to a native ledger node gateway.
type Gateway struct {
	baseURL string
	http    *net.Client
	logger  *logrus.Entry
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayHTTPClient sets the transport.
func WithGatewayHTTPClient(c *net.Client) GatewayOption {
	return func(g *Gateway) {
		g.http = c
	}
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *logrus.Entry) GatewayOption {
	return func(g *Gateway) {
		g.logger = l
	}
}

// NewGateway creates a Gateway for baseURL.
func NewGateway(baseURL string, opts ...GatewayOption) (*Gateway, error) {
	if baseURL == "" {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "gateway url is required", nil)
	}
	g := &Gateway{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(g)
	}
	if g.http == nil {
		g.http = net.NewClient(net.WithTimeout(60 * time.Second))
	}
	g.logger = logging.OrDiscard(g.logger).WithField("component", "gateway")
	return g, nil
}

// SubmitSigned posts env and waits for its receipt. Submission is never retried:
// a transport failure leaves the outcome unknown and the caller must query the
// ledger before trying again.
func (g *Gateway) SubmitSigned(ctx context.Context, env *envelope.Signed) (*stablecoin.TransactionResult, error) {
	raw, err := env.Marshal()
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Post(ctx, g.baseURL+gatewayTransactionsPath, raw,
		net.WithHeader("Content-Type", envelope.ContentType))
	if err != nil {
		return nil, err
	}
	body, err := resp.Bytes()
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	status := parsed.Get("status").String()
	txID := parsed.Get("transactionId").String()

	if !resp.IsSuccess() && status == "" {
		return nil, errors.NewTransportError(
			errors.NETWORK_ERROR,
			fmt.Sprintf("gateway returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))),
		).WithContext("status", resp.StatusCode)
	}
	if status != StatusSuccess {
		g.logger.WithFields(logrus.Fields{"transaction_id": txID, "status": status}).Warn("ledger rejected transaction")
		return nil, errors.NewLedgerError(status, "ledger rejected transaction "+txID, nil).
			WithContext("transaction_id", txID)
	}

	var response []byte
	if r := parsed.Get("response"); r.Exists() {
		if response, err = base64.StdEncoding.DecodeString(r.String()); err != nil {
			return nil, errors.NewTransportError(errors.NETWORK_ERROR, "gateway returned an invalid response payload", err)
		}
	}
	return &stablecoin.TransactionResult{TransactionID: txID, Status: status, Response: response}, nil
}

// nativeDispatcher signs the canonical body with one signer and submits it
// through the gateway.
type nativeDispatcher struct {
	gateway *Gateway
	signer  stablecoin.Signer
	logger  *logrus.Entry
}

func newNativeDispatcher(g *Gateway, s stablecoin.Signer, logger *logrus.Entry) (*nativeDispatcher, error) {
	if g == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "backend requires a gateway", nil)
	}
	if err := requireSigner(s); err != nil {
		return nil, err
	}
	return &nativeDispatcher{gateway: g, signer: s, logger: logger}, nil
}

func (d *nativeDispatcher) Dispatch(ctx context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	body, err := envelope.Encode(tx)
	if err != nil {
		return nil, err
	}
	sig, err := d.signer.Sign(ctx, body)
	if err != nil {
		return nil, err
	}
	env, err := envelope.NewSigned(body, []stablecoin.PublicKey{d.signer.PublicKey()}, [][]byte{sig})
	if err != nil {
		return nil, err
	}
	return d.gateway.SubmitSigned(ctx, env)
}
