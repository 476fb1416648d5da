package signers

import (
	"context"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marwen-abid/stablecoin-sdk-go"
	corecrypto "github.com/marwen-abid/stablecoin-sdk-go/core/crypto"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

const (
	fireblocksTransactionsPath = "/v1/transactions"
	fireblocksTokenLifetime    = 55 * time.Second
)

// Fireblocks transaction statuses that end the polling loop without a signature.
var fireblocksFailedStatuses = map[string]bool{
	"FAILED":    true,
	"REJECTED":  true,
	"BLOCKED":   true,
	"CANCELLED": true,
}

type fireblocksSigner struct {
	cfg     FireblocksConfig
	key     *rsa.PrivateKey
	opts    *options
	logger  *logrus.Entry
	baseURL string
}

func newFireblocks(cfg FireblocksConfig, o *options) (stablecoin.Signer, error) {
	if err := required("fireblocks", map[string]string{
		"api key":          cfg.APIKey,
		"api secret key":   cfg.APISecretKey,
		"base url":         cfg.BaseURL,
		"vault account id": cfg.VaultAccountID,
		"asset id":         cfg.AssetID,
	}); err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.APISecretKey))
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid fireblocks api secret key", err)
	}
	return &fireblocksSigner{
		cfg:     cfg,
		key:     key,
		opts:    o,
		logger:  o.logger.WithField("vault", cfg.VaultAccountID),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

func (s *fireblocksSigner) PublicKey() stablecoin.PublicKey {
	return s.cfg.PublicKey
}

type fireblocksRawRequest struct {
	Operation       string                    `json:"operation"`
	AssetID         string                    `json:"assetId"`
	Source          fireblocksSource          `json:"source"`
	Note            string                    `json:"note,omitempty"`
	ExtraParameters fireblocksExtraParameters `json:"extraParameters"`
}

type fireblocksSource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type fireblocksExtraParameters struct {
	RawMessageData fireblocksRawMessageData `json:"rawMessageData"`
}

type fireblocksRawMessageData struct {
	Messages []fireblocksMessage `json:"messages"`
}

type fireblocksMessage struct {
	Content string `json:"content"`
}

type fireblocksTransaction struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	SubStatus      string `json:"subStatus"`
	SignedMessages []struct {
		Signature struct {
			FullSig string `json:"fullSig"`
		} `json:"signature"`
	} `json:"signedMessages"`
}

// Sign creates a RAW signing transaction and polls it until Fireblocks returns
// the signature.
func (s *fireblocksSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	body, err := json.Marshal(fireblocksRawRequest{
		Operation: "RAW",
		AssetID:   s.cfg.AssetID,
		Source:    fireblocksSource{Type: "VAULT_ACCOUNT", ID: s.cfg.VaultAccountID},
		Note:      "stablecoin transaction",
		ExtraParameters: fireblocksExtraParameters{
			RawMessageData: fireblocksRawMessageData{
				Messages: []fireblocksMessage{{Content: hex.EncodeToString(payload)}},
			},
		},
	})
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode fireblocks request", err)
	}

	var created fireblocksTransaction
	if err := s.call(ctx, "POST", fireblocksTransactionsPath, body, &created); err != nil {
		s.opts.metrics.RecordSignerRequest("fireblocks", "error")
		return nil, err
	}
	s.logger.WithField("fireblocks_tx", created.ID).Debug("raw signing requested")

	sig, err := s.poll(ctx, created.ID)
	if err != nil {
		outcome := "error"
		if errors.HasCode(err, errors.SIGNER_TIMEOUT) {
			outcome = "timeout"
		}
		s.opts.metrics.RecordSignerRequest("fireblocks", outcome)
		return nil, err
	}
	s.opts.metrics.RecordSignerRequest("fireblocks", "success")
	return sig, nil
}

func (s *fireblocksSigner) poll(ctx context.Context, id string) ([]byte, error) {
	limiter := rate.NewLimiter(rate.Every(s.opts.pollInterval), 1)
	path := fireblocksTransactionsPath + "/" + id
	for attempt := 0; attempt < s.opts.maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, errors.NewTransportError(errors.SIGNER_TIMEOUT, "fireblocks signing timed out", err).
				WithContext("fireblocks_tx", id)
		}

		var tx fireblocksTransaction
		if err := s.call(ctx, "GET", path, nil, &tx); err != nil {
			return nil, err
		}
		switch {
		case tx.Status == "COMPLETED":
			if len(tx.SignedMessages) == 0 {
				return nil, errors.NewTransportError(errors.SIGNER_ERROR, "fireblocks returned no signed message", nil).
					WithContext("fireblocks_tx", id)
			}
			sig, err := hex.DecodeString(tx.SignedMessages[0].Signature.FullSig)
			if err != nil {
				return nil, errors.NewTransportError(errors.SIGNER_ERROR, "fireblocks returned an invalid signature", err)
			}
			return sig, nil
		case fireblocksFailedStatuses[tx.Status]:
			return nil, errors.NewBusinessError(
				errors.SIGNER_ERROR,
				fmt.Sprintf("fireblocks transaction %s ended with status %s", id, tx.Status),
				nil,
			).WithContext("status", tx.Status).WithContext("sub_status", tx.SubStatus)
		}
	}
	return nil, errors.NewTransportError(
		errors.SIGNER_TIMEOUT,
		fmt.Sprintf("fireblocks transaction %s not signed after %d attempts", id, s.opts.maxAttempts),
		nil,
	).WithContext("fireblocks_tx", id)
}

func (s *fireblocksSigner) call(ctx context.Context, method, path string, body []byte, out any) error {
	token, err := s.requestToken(path, body)
	if err != nil {
		return err
	}
	headers := []net.RequestOption{
		net.WithHeader("X-API-Key", s.cfg.APIKey),
		net.WithHeader("Authorization", "Bearer "+token),
	}

	var resp *net.Response
	if method == "POST" {
		resp, err = s.opts.http.Post(ctx, s.baseURL+path, body, headers...)
	} else {
		resp, err = s.opts.http.Get(ctx, s.baseURL+path, headers...)
	}
	if err != nil {
		return err
	}
	raw, err := resp.Bytes()
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return errors.NewTransportError(
			errors.SIGNER_ERROR,
			fmt.Sprintf("fireblocks %s %s returned %d", method, path, resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		).WithContext("status", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewTransportError(errors.SIGNER_ERROR, "failed to decode fireblocks response", err)
	}
	return nil
}

// requestToken signs the per-request JWT Fireblocks expects: the claims bind
// the token to the request path and a hash of its body.
func (s *fireblocksSigner) requestToken(path string, body []byte) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"uri":      path,
		"nonce":    uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(fireblocksTokenLifetime).Unix(),
		"sub":      s.cfg.APIKey,
		"bodyHash": hex.EncodeToString(corecrypto.HashSHA256(body)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to sign fireblocks request token", err)
	}
	return token, nil
}
