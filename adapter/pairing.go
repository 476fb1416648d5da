package adapter

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/envelope"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// WalletKind names a wallet-pairing integration.
type WalletKind string

const (
	WalletHashPack      WalletKind = "HASHPACK"
	WalletBlade         WalletKind = "BLADE"
	WalletWalletConnect WalletKind = "WALLETCONNECT"
	WalletMetaMask      WalletKind = "METAMASK"
)

const (
	methodSignAndExecute = "hedera_signAndExecuteTransaction"
	methodSendEVM        = "eth_sendTransaction"

	pairingWriteTimeout = 10 * time.Second
)

// PairingSession is a JSON-RPC 2.0 channel to a paired wallet over a websocket.
// Calls are serialized; a wallet answers one request at a time.
//
// A socket failure, including a read cut short by context cancellation, leaves
// the connection unusable: the session closes and every later call fails until
// the caller dials a new one.
type PairingSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	nextID uint64
	broken error
}

// DialPairing opens a session to a wallet relay.
func DialPairing(ctx context.Context, url string, header http.Header) (*PairingSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed to connect to wallet", err).
			WithContext("url", url)
	}
	return NewPairingSession(conn), nil
}

// NewPairingSession wraps an established connection.
func NewPairingSession(conn *websocket.Conn) *PairingSession {
	return &PairingSession{conn: conn}
}

// Close closes the underlying connection.
func (s *PairingSession) Close() error {
	return s.conn.Close()
}

// Broken returns the failure that closed the session, or nil while it is usable.
func (s *PairingSession) Broken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

func (s *PairingSession) fail(message string, err error) error {
	s.broken = err
	_ = s.conn.Close()
	return errors.NewTransportError(errors.NETWORK_ERROR, message, err)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call sends method and decodes the matching result into out. A wallet-side
// error is a ledger rejection; a socket failure is a transport error.
func (s *PairingSession) Call(ctx context.Context, method string, params, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return errors.NewTransportError(errors.NETWORK_ERROR, "wallet session is closed, dial again", s.broken)
	}
	s.nextID++
	id := s.nextID

	if err := s.conn.SetWriteDeadline(time.Now().Add(pairingWriteTimeout)); err != nil {
		return s.fail("failed to set wallet write deadline", err)
	}
	if err := s.conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return s.fail("failed to write wallet request", err)
	}

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return s.fail("failed to set wallet read deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var resp rpcResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return s.fail("wallet request cancelled", ctx.Err())
			}
			return s.fail("failed to read wallet response", err)
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return errors.NewLedgerError(
				strconv.Itoa(resp.Error.Code),
				"wallet rejected request: "+resp.Error.Message,
				nil,
			).WithContext("method", method)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return errors.NewTransportError(errors.NETWORK_ERROR, "failed to decode wallet response", err)
		}
		return nil
	}
}

type pairingDispatcher struct {
	backend WalletPairing
	logger  *logrus.Entry
}

func newPairingDispatcher(b WalletPairing, logger *logrus.Entry) (*pairingDispatcher, error) {
	if b.Session == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "wallet backend requires a session", nil)
	}
	switch b.Kind {
	case WalletHashPack, WalletBlade, WalletWalletConnect:
	case WalletMetaMask:
		if !common.IsHexAddress(b.From) {
			return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "metamask backend requires the wallet evm address", nil)
		}
	default:
		return nil, errors.NewConfigError(errors.UNRECOGNIZED_BACKEND, fmt.Sprintf("unrecognized wallet %q", b.Kind), nil)
	}
	return &pairingDispatcher{backend: b, logger: logger.WithField("wallet", b.Kind)}, nil
}

type signAndExecuteParams struct {
	SignerAccountID string `json:"signerAccountId"`
	TransactionList string `json:"transactionList"`
}

type signAndExecuteResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type evmSendParams struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"`
	Gas  string `json:"gas"`
}

func (d *pairingDispatcher) Dispatch(ctx context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	if d.backend.Kind == WalletMetaMask {
		return d.dispatchEVM(ctx, tx)
	}

	body, err := envelope.Encode(tx)
	if err != nil {
		return nil, err
	}
	params := signAndExecuteParams{
		SignerAccountID: fmt.Sprintf("hedera:%s:%s", d.backend.Network, tx.Payer),
		TransactionList: base64.StdEncoding.EncodeToString(body),
	}
	var res signAndExecuteResult
	if err := d.backend.Session.Call(ctx, methodSignAndExecute, params, &res); err != nil {
		return nil, err
	}
	status := res.Status
	if status == "" {
		status = StatusSuccess
	}
	if status != StatusSuccess {
		return nil, errors.NewLedgerError(status, "ledger rejected transaction "+res.TransactionID, nil)
	}
	return &stablecoin.TransactionResult{TransactionID: res.TransactionID, Status: status}, nil
}

// dispatchEVM hands the call to the wallet, which signs and broadcasts it.
// The wallet returns as soon as the transaction is broadcast.
func (d *pairingDispatcher) dispatchEVM(ctx context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	to, data, gas, err := evmCall(tx)
	if err != nil {
		return nil, err
	}
	params := []evmSendParams{{
		From: d.backend.From,
		To:   to.Hex(),
		Data: "0x" + hex.EncodeToString(data),
		Gas:  hexutil.EncodeUint64(gas),
	}}
	var hash string
	if err := d.backend.Session.Call(ctx, methodSendEVM, params, &hash); err != nil {
		return nil, err
	}
	d.logger.WithField("hash", hash).Debug("wallet broadcast transaction")
	return &stablecoin.TransactionResult{TransactionID: hash, Status: "SUBMITTED"}, nil
}
