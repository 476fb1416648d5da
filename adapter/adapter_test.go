package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwen-abid/stablecoin-sdk-go"
	corecrypto "github.com/marwen-abid/stablecoin-sdk-go/core/crypto"
	"github.com/marwen-abid/stablecoin-sdk-go/core/envelope"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
	"github.com/marwen-abid/stablecoin-sdk-go/signers"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

var payer = stablecoin.Account{ID: "0.0.2001", EVMAddress: "0x00000000000000000000000000000000000007d1"}

func testCoin() *stablecoin.StableCoin {
	return &stablecoin.StableCoin{
		TokenID:         "0.0.1001",
		Decimals:        6,
		TreasuryAccount: "0.0.1003",
		ProxyContractID: "0.0.1003",
		ProxyAddress:    "0x00000000000000000000000000000000000003eb",
		TotalSupply:     big.NewInt(0),
	}
}

type recorder struct {
	txs []*stablecoin.Transaction
	err error
}

func (r *recorder) Dispatch(_ context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	r.txs = append(r.txs, tx)
	if r.err != nil {
		return nil, r.err
	}
	return &stablecoin.TransactionResult{TransactionID: fmt.Sprintf("tx-%d", len(r.txs)), Status: StatusSuccess}, nil
}

func TestNewDispatcherRejectsUnknownBackends(t *testing.T) {
	for _, b := range []Backend{nil, &NativeService{}, &Contract{}} {
		_, err := NewDispatcher(b)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.UNRECOGNIZED_BACKEND))
	}
}

func TestNewDispatcherValidatesVariants(t *testing.T) {
	_, err := NewDispatcher(NativeService{})
	assert.True(t, errors.HasCode(err, errors.INVALID_ARGUMENT))

	_, err = NewDispatcher(Custodial{Config: nil})
	assert.True(t, errors.HasCode(err, errors.UNRECOGNIZED_SIGNATURE_STRATEGY))

	_, err = NewDispatcher(WalletPairing{Kind: "PAPER", Session: &PairingSession{}})
	assert.True(t, errors.HasCode(err, errors.UNRECOGNIZED_BACKEND))
}

func TestNativeCashInToTreasuryMintsOnly(t *testing.T) {
	rec := &recorder{}
	a := NewNativeAdapter(rec, nil, payer)
	coin := testCoin()

	_, err := a.CashIn(context.Background(), coin, coin.TreasuryAccount, big.NewInt(500))
	require.NoError(t, err)
	require.Len(t, rec.txs, 1)
	require.Len(t, rec.txs[0].Native, 1)
	assert.Equal(t, stablecoin.NativeMint, rec.txs[0].Native[0].Type)
	assert.Equal(t, payer.ID, rec.txs[0].Payer)
}

func TestNativeCashInToThirdPartyIsOneAtomicTransaction(t *testing.T) {
	rec := &recorder{}
	a := NewNativeAdapter(rec, nil, payer)
	coin := testCoin()

	_, err := a.CashIn(context.Background(), coin, "0.0.3001", big.NewInt(500))
	require.NoError(t, err)
	require.Len(t, rec.txs, 1, "mint and transfer must share one transaction")

	calls := rec.txs[0].Native
	require.Len(t, calls, 2)
	assert.Equal(t, stablecoin.NativeMint, calls[0].Type)
	assert.Equal(t, stablecoin.NativeTransfer, calls[1].Type)
	assert.Equal(t, coin.TreasuryAccount, calls[1].Source)
	assert.Equal(t, "0.0.3001", calls[1].Account)
	assert.Equal(t, "500", calls[1].Amount.String())
}

func TestNativeRejectsContractOnlyOperations(t *testing.T) {
	rec := &recorder{}
	a := NewNativeAdapter(rec, nil, payer)
	coin := testCoin()

	_, err := a.Rescue(context.Background(), coin, big.NewInt(1))
	assert.True(t, errors.HasCode(err, errors.OPERATION_UNSUPPORTED))
	_, err = a.GrantSupplierRole(context.Background(), coin, "0.0.5", stablecoin.Allowance{Unlimited: true})
	assert.True(t, errors.HasCode(err, errors.OPERATION_UNSUPPORTED))
	_, err = a.Burn(context.Background(), coin, big.NewInt(0))
	assert.True(t, errors.HasCode(err, errors.INVALID_AMOUNT))
	assert.Empty(t, rec.txs)
}

func TestNativeDispatcherSubmitsSignedEnvelope(t *testing.T) {
	signer, err := signers.FromED25519Seed(testSeed)
	require.NoError(t, err)

	var posts int32
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/transactions", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&posts, 1)
		assert.Equal(t, envelope.ContentType, req.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(req.Body)
		env, err := envelope.UnmarshalSigned(raw)
		require.NoError(t, err)
		require.Len(t, env.Signatures, 1)

		ok, err := corecrypto.VerifySignature(env.Signatures[0].PublicKey, env.Body, env.Signatures[0].Signature)
		require.NoError(t, err)
		assert.True(t, ok)

		tx, err := envelope.Decode(env.Body)
		require.NoError(t, err)
		fmt.Fprintf(w, `{"transactionId": "0.0.2001@1700000000.1", "status": "SUCCESS", "response": %q}`,
			base64.StdEncoding.EncodeToString([]byte(tx.Operation)))
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	defer srv.Close()

	gw, err := NewGateway(srv.URL)
	require.NoError(t, err)
	d, err := NewDispatcher(NativeService{Gateway: gw, Signer: signer})
	require.NoError(t, err)

	res, err := NewNativeAdapter(d, nil, payer).Pause(context.Background(), testCoin())
	require.NoError(t, err)
	assert.Equal(t, "0.0.2001@1700000000.1", res.TransactionID)
	assert.Equal(t, []byte(stablecoin.OpPause), res.Response)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestGatewayReportsLedgerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"transactionId": "0.0.2001@1.2", "status": "TOKEN_IS_PAUSED"}`)
	}))
	defer srv.Close()

	gw, err := NewGateway(srv.URL)
	require.NoError(t, err)
	_, err = gw.SubmitSigned(context.Background(), &envelope.Signed{Body: []byte("x")})
	require.Error(t, err)

	var se *errors.StablecoinError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.LEDGER_REJECTED, se.Code)
	assert.Equal(t, errors.KindLedger, se.Kind)
	assert.Equal(t, "TOKEN_IS_PAUSED", se.Context["status"])
	assert.False(t, errors.Retryable(err))
}

func TestGatewayNeverRetriesSubmission(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&posts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw, err := NewGateway(srv.URL, WithGatewayHTTPClient(net.NewClient(net.WithMaxRetries(3), net.WithRetryBackoff(time.Millisecond))))
	require.NoError(t, err)
	_, err = gw.SubmitSigned(context.Background(), &envelope.Signed{Body: []byte("x")})
	assert.True(t, errors.HasCode(err, errors.NETWORK_ERROR))
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

type fakeCaller struct {
	addresses map[string]string
	outputs   map[string][]byte
	calls     []ethereum.CallMsg
}

func (f *fakeCaller) EVMAddress(_ context.Context, id string) (string, error) {
	addr, ok := f.addresses[id]
	if !ok {
		return "", errors.NewTransportError(errors.MIRROR_NOT_FOUND, "no account "+id, nil)
	}
	return addr, nil
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	method, err := stableCoinABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	return f.outputs[method.Name], nil
}

func packOutput(t *testing.T, function string, values ...any) []byte {
	t.Helper()
	out, err := stableCoinABI.Methods[function].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func TestContractCashInEncodesMint(t *testing.T) {
	rec := &recorder{}
	caller := &fakeCaller{addresses: map[string]string{"0.0.3001": "0x1111111111111111111111111111111111111111"}}
	a := NewContractAdapter(rec, caller, caller, payer)

	_, err := a.CashIn(context.Background(), testCoin(), "0.0.3001", big.NewInt(250))
	require.NoError(t, err)
	require.Len(t, rec.txs, 1)

	call := rec.txs[0].Contract
	require.NotNil(t, call)
	assert.Equal(t, stablecoin.KindContract, rec.txs[0].Kind)
	assert.Equal(t, common.HexToAddress(testCoin().ProxyAddress).Hex(), call.To)
	assert.Equal(t, "mint", call.Function)
	assert.Equal(t, uint64(120_000), call.Gas)

	args, err := stableCoinABI.Methods["mint"].Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), args[0])
	assert.Equal(t, int64(250), args[1])
}

func TestContractGrantRoleRequiresAllowanceForCashIn(t *testing.T) {
	rec := &recorder{}
	caller := &fakeCaller{}
	a := NewContractAdapter(rec, caller, caller, payer)

	_, err := a.GrantRole(context.Background(), testCoin(), "0x1111111111111111111111111111111111111111", stablecoin.RoleCashIn)
	assert.True(t, errors.HasCode(err, errors.MISSING_ALLOWANCE_SPECIFICATION))

	_, err = a.GrantSupplierRole(context.Background(), testCoin(), "0x1111111111111111111111111111111111111111", stablecoin.Allowance{})
	assert.True(t, errors.HasCode(err, errors.MISSING_ALLOWANCE_SPECIFICATION))
	assert.Empty(t, rec.txs)

	_, err = a.GrantSupplierRole(context.Background(), testCoin(), "0x1111111111111111111111111111111111111111", stablecoin.Allowance{Unlimited: true})
	require.NoError(t, err)
	assert.Equal(t, "grantUnlimitedSupplierRole", rec.txs[0].Contract.Function)
}

func TestContractQueries(t *testing.T) {
	holder := "0x2222222222222222222222222222222222222222"
	caller := &fakeCaller{outputs: map[string][]byte{}}
	caller.outputs["getRoles"] = packOutput(t, "getRoles", [][32]byte{
		roleHash(stablecoin.RoleBurn), roleHash(stablecoin.RoleWithout), roleHash(stablecoin.RolePause),
	})
	caller.outputs["getSupplierAllowance"] = packOutput(t, "getSupplierAllowance", big.NewInt(700))
	caller.outputs["isUnlimitedSupplierAllowance"] = packOutput(t, "isUnlimitedSupplierAllowance", true)
	caller.outputs["getReserveAddress"] = packOutput(t, "getReserveAddress", common.Address{})
	a := NewContractAdapter(&recorder{}, caller, caller, payer)
	ctx := context.Background()

	roles, err := a.GetRoles(ctx, testCoin(), holder)
	require.NoError(t, err)
	assert.Equal(t, []stablecoin.Role{stablecoin.RoleBurn, stablecoin.RolePause}, roles)

	allowance, err := a.SupplierAllowance(ctx, testCoin(), holder)
	require.NoError(t, err)
	assert.Equal(t, "700", allowance.String())

	unlimited, err := a.IsUnlimitedSupplierAllowance(ctx, testCoin(), holder)
	require.NoError(t, err)
	assert.True(t, unlimited)

	reserve, err := a.ReserveAddress(ctx, testCoin())
	require.NoError(t, err)
	assert.Empty(t, reserve)

	assert.Equal(t, common.HexToAddress(payer.EVMAddress), caller.calls[0].From)
}

func TestContractAdapterNeedsProxy(t *testing.T) {
	coin := testCoin()
	coin.ProxyAddress = ""
	a := NewContractAdapter(&recorder{}, &fakeCaller{}, &fakeCaller{}, payer)
	_, err := a.Pause(context.Background(), coin)
	assert.True(t, errors.HasCode(err, errors.OPERATION_UNSUPPORTED))
}

type fakeEVM struct {
	fakeCaller
	sent    []*types.Transaction
	receipt *types.Receipt
	sendErr error
}

var _ bind.DeployBackend = EVMClient(nil)

func (f *fakeEVM) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeEVM) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(10), nil }

func (f *fakeEVM) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEVM) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, nil
}

func TestEVMDispatcherRoutesNativeCallsThroughPrecompile(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	evm := &fakeEVM{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	d, err := NewDispatcher(Contract{EVM: evm, Key: key, ChainID: big.NewInt(296)})
	require.NoError(t, err)

	res, err := NewNativeAdapter(d, nil, payer).Freeze(context.Background(), testCoin(), "0.0.3001")
	require.NoError(t, err)
	require.Len(t, evm.sent, 1)

	sent := evm.sent[0]
	assert.Equal(t, TokenServiceAddress, *sent.To())
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, sent.Hash().Hex(), res.TransactionID)

	method, err := tokenServiceABI.MethodById(sent.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "freezeToken", method.Name)

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(296)), sent)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), sender)
}

func TestEVMDispatcherReportsRevert(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	evm := &fakeEVM{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	d, err := NewDispatcher(Contract{EVM: evm, Key: key, ChainID: big.NewInt(296)})
	require.NoError(t, err)

	_, err = NewContractAdapter(d, evm, evm, payer).Pause(context.Background(), testCoin())
	var se *errors.StablecoinError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StatusContractReverted, se.Context["status"])
}

func TestEVMDispatcherClassifiesSendErrors(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	cases := []struct {
		name      string
		sendErr   error
		kind      errors.Kind
		retryable bool
	}{
		{"nonce too low", fmt.Errorf("nonce too low"), errors.KindLedger, false},
		{"insufficient funds", fmt.Errorf("insufficient funds for gas * price + value"), errors.KindLedger, false},
		{"connection refused", fmt.Errorf("dial tcp 127.0.0.1:7546: connect: connection refused"), errors.KindTransport, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evm := &fakeEVM{sendErr: tc.sendErr}
			d, err := NewDispatcher(Contract{EVM: evm, Key: key, ChainID: big.NewInt(296)})
			require.NoError(t, err)

			_, err = NewContractAdapter(d, evm, evm, payer).Pause(context.Background(), testCoin())
			require.Error(t, err)
			assert.Equal(t, tc.kind, errors.KindOf(err))
			assert.Equal(t, tc.retryable, errors.Retryable(err))
		})
	}
}

func TestEVMDispatcherRejectsNativeBatches(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	evm := &fakeEVM{}
	d, err := NewDispatcher(Contract{EVM: evm, Key: key, ChainID: big.NewInt(296)})
	require.NoError(t, err)

	_, err = NewNativeAdapter(d, nil, payer).CashIn(context.Background(), testCoin(), "0.0.3001", big.NewInt(1))
	assert.True(t, errors.HasCode(err, errors.INVALID_ARGUMENT))
	assert.Empty(t, evm.sent)
}

func walletServer(t *testing.T, handle func(req rpcRequest) any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(handle(req)); err != nil {
				return
			}
		}
	}))
}

func dialWallet(t *testing.T, srv *httptest.Server) *PairingSession {
	t.Helper()
	s, err := DialPairing(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWalletPairingSignsAndExecutes(t *testing.T) {
	srv := walletServer(t, func(req rpcRequest) any {
		params, _ := json.Marshal(req.Params)
		var p signAndExecuteParams
		_ = json.Unmarshal(params, &p)
		assert.Equal(t, methodSignAndExecute, req.Method)
		assert.Equal(t, "hedera:testnet:0.0.2001", p.SignerAccountID)
		return map[string]any{"id": req.ID, "result": map[string]string{"transactionId": "0.0.2001@5.6", "status": "SUCCESS"}}
	})
	defer srv.Close()

	d, err := NewDispatcher(WalletPairing{Kind: WalletHashPack, Session: dialWallet(t, srv), Network: "testnet"})
	require.NoError(t, err)
	res, err := NewNativeAdapter(d, nil, payer).Unpause(context.Background(), testCoin())
	require.NoError(t, err)
	assert.Equal(t, "0.0.2001@5.6", res.TransactionID)
}

func TestWalletPairingRejection(t *testing.T) {
	srv := walletServer(t, func(req rpcRequest) any {
		return map[string]any{"id": req.ID, "error": map[string]any{"code": 4001, "message": "user rejected"}}
	})
	defer srv.Close()

	d, err := NewDispatcher(WalletPairing{Kind: WalletBlade, Session: dialWallet(t, srv), Network: "testnet"})
	require.NoError(t, err)
	_, err = NewNativeAdapter(d, nil, payer).Unpause(context.Background(), testCoin())
	assert.Equal(t, errors.KindLedger, errors.KindOf(err))
}

func TestPairingSessionClosesAfterCancelledRead(t *testing.T) {
	release := make(chan struct{})
	srv := walletServer(t, func(req rpcRequest) any {
		if req.Method == "slow" {
			<-release
		}
		return map[string]any{"id": req.ID, "result": "ok"}
	})
	defer srv.Close()
	defer close(release)
	session := dialWallet(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := session.Call(ctx, "slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.NETWORK_ERROR))
	assert.Error(t, session.Broken())

	var out string
	err = session.Call(context.Background(), "fast", nil, &out)
	require.Error(t, err, "a cancelled read leaves the socket unusable")
	assert.True(t, errors.HasCode(err, errors.NETWORK_ERROR))
	assert.Contains(t, err.Error(), "dial again")
	assert.Empty(t, out)
}

func TestWalletPairingMetaMaskSendsEVMTransaction(t *testing.T) {
	from := "0x3333333333333333333333333333333333333333"
	srv := walletServer(t, func(req rpcRequest) any {
		assert.Equal(t, methodSendEVM, req.Method)
		return map[string]any{"id": req.ID, "result": "0xabc"}
	})
	defer srv.Close()

	d, err := NewDispatcher(WalletPairing{Kind: WalletMetaMask, Session: dialWallet(t, srv), From: from})
	require.NoError(t, err)
	caller := &fakeCaller{}
	res, err := NewContractAdapter(d, caller, caller, payer).Pause(context.Background(), testCoin())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.TransactionID)
	assert.Equal(t, "SUBMITTED", res.Status)
}
