package signers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

type dfnsSigner struct {
	cfg     DFNSConfig
	opts    *options
	logger  *logrus.Entry
	baseURL string
}

func newDFNS(cfg DFNSConfig, o *options) (stablecoin.Signer, error) {
	if err := required("dfns", map[string]string{
		"auth token": cfg.AuthToken,
		"base url":   cfg.BaseURL,
		"wallet id":  cfg.WalletID,
	}); err != nil {
		return nil, err
	}
	return &dfnsSigner{
		cfg:     cfg,
		opts:    o,
		logger:  o.logger.WithField("wallet", cfg.WalletID),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

func (s *dfnsSigner) PublicKey() stablecoin.PublicKey {
	return s.cfg.PublicKey
}

type dfnsSignatureRequest struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type dfnsSignature struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Signature *struct {
		R string `json:"r"`
		S string `json:"s"`
	} `json:"signature"`
}

// Sign requests a message signature from the wallet and polls until DFNS
// reports it signed. The signature is r||s.
func (s *dfnsSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	body, err := json.Marshal(dfnsSignatureRequest{Kind: "Message", Message: "0x" + hex.EncodeToString(payload)})
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode dfns request", err)
	}

	var created dfnsSignature
	if err := s.call(ctx, "POST", s.signaturesPath(), body, &created); err != nil {
		s.opts.metrics.RecordSignerRequest("dfns", "error")
		return nil, err
	}
	s.logger.WithField("signature_id", created.ID).Debug("message signature requested")

	sig, err := s.poll(ctx, created)
	if err != nil {
		outcome := "error"
		if errors.HasCode(err, errors.SIGNER_TIMEOUT) {
			outcome = "timeout"
		}
		s.opts.metrics.RecordSignerRequest("dfns", outcome)
		return nil, err
	}
	s.opts.metrics.RecordSignerRequest("dfns", "success")
	return sig, nil
}

func (s *dfnsSigner) poll(ctx context.Context, current dfnsSignature) ([]byte, error) {
	limiter := rate.NewLimiter(rate.Every(s.opts.pollInterval), 1)
	path := s.signaturesPath() + "/" + url.PathEscape(current.ID)
	for attempt := 0; ; attempt++ {
		switch current.Status {
		case "Signed", "Confirmed":
			return joinSignature(current)
		case "Failed", "Rejected":
			return nil, errors.NewBusinessError(
				errors.SIGNER_ERROR,
				fmt.Sprintf("dfns signature %s ended with status %s", current.ID, current.Status),
				nil,
			).WithContext("reason", current.Reason)
		}
		if attempt >= s.opts.maxAttempts {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, errors.NewTransportError(errors.SIGNER_TIMEOUT, "dfns signing timed out", err).
				WithContext("signature_id", current.ID)
		}
		var next dfnsSignature
		if err := s.call(ctx, "GET", path, nil, &next); err != nil {
			return nil, err
		}
		current = next
	}
	return nil, errors.NewTransportError(
		errors.SIGNER_TIMEOUT,
		fmt.Sprintf("dfns signature %s not signed after %d attempts", current.ID, s.opts.maxAttempts),
		nil,
	)
}

func joinSignature(sig dfnsSignature) ([]byte, error) {
	if sig.Signature == nil {
		return nil, errors.NewTransportError(errors.SIGNER_ERROR, "dfns returned no signature", nil)
	}
	r, err := hex.DecodeString(strings.TrimPrefix(sig.Signature.R, "0x"))
	if err != nil {
		return nil, errors.NewTransportError(errors.SIGNER_ERROR, "dfns returned an invalid r value", err)
	}
	sv, err := hex.DecodeString(strings.TrimPrefix(sig.Signature.S, "0x"))
	if err != nil {
		return nil, errors.NewTransportError(errors.SIGNER_ERROR, "dfns returned an invalid s value", err)
	}
	return append(r, sv...), nil
}

func (s *dfnsSigner) signaturesPath() string {
	return "/wallets/" + url.PathEscape(s.cfg.WalletID) + "/signatures"
}

func (s *dfnsSigner) call(ctx context.Context, method, path string, body []byte, out any) error {
	headers := []net.RequestOption{net.WithHeader("Authorization", "Bearer "+s.cfg.AuthToken)}
	if s.cfg.AppID != "" {
		headers = append(headers, net.WithHeader("X-DFNS-APPID", s.cfg.AppID))
	}

	var (
		resp *net.Response
		err  error
	)
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
			fmt.Sprintf("dfns %s %s returned %d", method, path, resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		).WithContext("status", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewTransportError(errors.SIGNER_ERROR, "failed to decode dfns response", err)
	}
	return nil
}
