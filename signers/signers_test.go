package signers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwen-abid/stablecoin-sdk-go"
	corecrypto "github.com/marwen-abid/stablecoin-sdk-go/core/crypto"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

type bogusConfig struct{}

func (bogusConfig) strategyName() string { return "bogus" }

func TestNewRejectsUnrecognizedStrategy(t *testing.T) {
	for _, cfg := range []StrategyConfig{nil, bogusConfig{}, &DFNSConfig{}} {
		_, err := New(cfg)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.UNRECOGNIZED_SIGNATURE_STRATEGY))
		assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	}
}

func TestNewValidatesRequiredFields(t *testing.T) {
	_, err := New(DFNSConfig{BaseURL: "https://api.dfns.io"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.INVALID_ARGUMENT))
}

func TestLocalED25519(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	signer, err := New(LocalConfig{KeyType: stablecoin.KeyTypeED25519, PrivateKey: hex.EncodeToString(seed)})
	require.NoError(t, err)

	payload := []byte("body bytes")
	sig, err := signer.Sign(context.Background(), payload)
	require.NoError(t, err)

	ok, err := corecrypto.VerifySignature(signer.PublicKey(), payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalECDSA(t *testing.T) {
	signer, err := New(LocalConfig{
		KeyType:    stablecoin.KeyTypeECDSA,
		PrivateKey: "0x8f2a55949038a9610f50fb23b5883af3b4ecb3c3bb792cbcefbd1542c692be63",
	})
	require.NoError(t, err)

	payload := []byte("body bytes")
	sig, err := signer.Sign(context.Background(), payload)
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	ok, err := corecrypto.VerifySignature(signer.PublicKey(), payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalRejectsBadKey(t *testing.T) {
	_, err := New(LocalConfig{KeyType: stablecoin.KeyTypeED25519, PrivateKey: "zz"})
	assert.True(t, errors.HasCode(err, errors.INVALID_ARGUMENT))
}

func TestFromCallback(t *testing.T) {
	pk := stablecoin.NewPublicKey(stablecoin.KeyTypeED25519, "ab")
	signer := FromCallback(pk, func(_ context.Context, p []byte) ([]byte, error) {
		return append([]byte("sig:"), p...), nil
	})
	sig, err := signer.Sign(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "sig:x", string(sig))
	assert.Equal(t, pk, signer.PublicKey())
}

func rsaPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

func TestFireblocksSign(t *testing.T) {
	key, secret := rsaPEM(t)
	var polls int32

	r := mux.NewRouter()
	r.HandleFunc("/v1/transactions", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		token, err := jwt.Parse(bearer(req), func(*jwt.Token) (any, error) { return &key.PublicKey, nil })
		require.NoError(t, err)
		claims := token.Claims.(jwt.MapClaims)
		assert.Equal(t, "/v1/transactions", claims["uri"])
		assert.Equal(t, hex.EncodeToString(corecrypto.HashSHA256(body)), claims["bodyHash"])
		assert.Equal(t, "api-key", req.Header.Get("X-API-Key"))

		var raw fireblocksRawRequest
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.Equal(t, "RAW", raw.Operation)
		assert.Equal(t, hex.EncodeToString([]byte("payload")), raw.ExtraParameters.RawMessageData.Messages[0].Content)

		fmt.Fprint(w, `{"id": "fb-1", "status": "SUBMITTED"}`)
	}).Methods(http.MethodPost)
	r.HandleFunc("/v1/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			fmt.Fprint(w, `{"id": "fb-1", "status": "PENDING_SIGNATURE"}`)
			return
		}
		fmt.Fprint(w, `{"id": "fb-1", "status": "COMPLETED", "signedMessages": [{"signature": {"fullSig": "c0ffee"}}]}`)
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	defer srv.Close()

	signer, err := New(FireblocksConfig{
		APIKey:         "api-key",
		APISecretKey:   secret,
		BaseURL:        srv.URL,
		VaultAccountID: "2",
		AssetID:        "HBAR_TEST",
	}, WithPolling(time.Millisecond, 5))
	require.NoError(t, err)

	sig, err := signer.Sign(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc0, 0xff, 0xee}, sig)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
}

func TestFireblocksTimesOut(t *testing.T) {
	_, secret := rsaPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"id": "fb-2", "status": "PENDING_SIGNATURE"}`)
	}))
	defer srv.Close()

	signer, err := New(FireblocksConfig{
		APIKey: "k", APISecretKey: secret, BaseURL: srv.URL, VaultAccountID: "2", AssetID: "HBAR",
	}, WithPolling(time.Millisecond, 3))
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), []byte("payload"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.SIGNER_TIMEOUT))
	assert.True(t, errors.Retryable(err))
}

func TestFireblocksRejected(t *testing.T) {
	_, secret := rsaPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"id": "fb-3", "status": "REJECTED", "subStatus": "REJECTED_BY_USER"}`)
	}))
	defer srv.Close()

	signer, err := New(FireblocksConfig{
		APIKey: "k", APISecretKey: secret, BaseURL: srv.URL, VaultAccountID: "2", AssetID: "HBAR",
	}, WithPolling(time.Millisecond, 3))
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), []byte("payload"))
	assert.True(t, errors.HasCode(err, errors.SIGNER_ERROR))
	assert.Equal(t, errors.KindBusiness, errors.KindOf(err))
	assert.False(t, errors.Retryable(err), "a policy rejection is final")
}

func TestDFNSSign(t *testing.T) {
	var polls int32
	r := mux.NewRouter()
	r.HandleFunc("/wallets/{wallet}/signatures", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "wa-1", mux.Vars(req)["wallet"])
		assert.Equal(t, "token", bearer(req))
		var body dfnsSignatureRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "Message", body.Kind)
		assert.Equal(t, "0x"+hex.EncodeToString([]byte("payload")), body.Message)
		fmt.Fprint(w, `{"id": "sig-1", "status": "Pending"}`)
	}).Methods(http.MethodPost)
	r.HandleFunc("/wallets/{wallet}/signatures/{id}", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&polls, 1)
		fmt.Fprint(w, `{"id": "sig-1", "status": "Signed", "signature": {"r": "0x0102", "s": "0x0304"}}`)
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	defer srv.Close()

	signer, err := New(DFNSConfig{AuthToken: "token", BaseURL: srv.URL, WalletID: "wa-1"}, WithPolling(time.Millisecond, 3))
	require.NoError(t, err)

	sig, err := signer.Sign(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, sig)
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestDFNSFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"id": "sig-2", "status": "Failed", "reason": "policy"}`)
	}))
	defer srv.Close()

	signer, err := New(DFNSConfig{AuthToken: "token", BaseURL: srv.URL, WalletID: "wa-1"}, WithPolling(time.Millisecond, 3))
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), []byte("payload"))
	assert.True(t, errors.HasCode(err, errors.SIGNER_ERROR))
	assert.False(t, errors.HasCode(err, errors.SIGNER_TIMEOUT))
	assert.False(t, errors.Retryable(err))
}

func bearer(req *http.Request) string {
	const prefix = "Bearer "
	h := req.Header.Get("Authorization")
	if len(h) < len(prefix) {
		return ""
	}
	return h[len(prefix):]
}
