package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/mirror"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// EVMClient is the JSON-RPC surface the contract backend needs.
// *ethclient.Client satisfies it.
type EVMClient interface {
	bind.ContractCaller
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var _ EVMClient = (*ethclient.Client)(nil)

// rejectedSends are node responses for transactions the ledger refused.
var rejectedSends = []string{
	"nonce too low",
	"nonce too high",
	"insufficient funds",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"replacement transaction underpriced",
	"already known",
	"gas price below minimum",
}

func sendError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, r := range rejectedSends {
		if strings.Contains(msg, r) {
			return errors.NewLedgerError(strings.ToUpper(strings.ReplaceAll(r, " ", "_")), "evm transaction rejected", err)
		}
	}
	return errors.NewTransportError(errors.NETWORK_ERROR, "failed to send evm transaction", err)
}

// StatusContractReverted is reported when a mined EVM transaction failed.
const StatusContractReverted = "CONTRACT_REVERT_EXECUTED"

const nativeCallGas uint64 = 120_000

type evmDispatcher struct {
	client EVMClient
	auth   *bind.TransactOpts
	logger *logrus.Entry
}

func newEVMDispatcher(c Contract, logger *logrus.Entry) (*evmDispatcher, error) {
	if c.EVM == nil || c.Key == nil || c.ChainID == nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "contract backend requires a client, a key and a chain id", nil)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.Key, c.ChainID)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to create transactor", err)
	}
	return &evmDispatcher{
		client: c.EVM,
		auth:   auth,
		logger: logger.WithField("from", auth.From.Hex()),
	}, nil
}

func (d *evmDispatcher) Dispatch(ctx context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	to, data, gas, err := evmCall(tx)
	if err != nil {
		return nil, err
	}

	nonce, err := d.client.PendingNonceAt(ctx, d.auth.From)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed to read account nonce", err)
	}
	gasPrice, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed to read gas price", err)
	}

	signed, err := d.auth.Signer(d.auth.From, types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data))
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to sign evm transaction", err)
	}
	if err := d.client.SendTransaction(ctx, signed); err != nil {
		return nil, sendError(err)
	}
	d.logger.WithField("hash", signed.Hash().Hex()).Debug("evm transaction sent")

	receipt, err := bind.WaitMined(ctx, d.client, signed)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed waiting for evm receipt", err).
			WithContext("hash", signed.Hash().Hex())
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, errors.NewLedgerError(StatusContractReverted, "evm transaction reverted", nil).
			WithContext("hash", signed.Hash().Hex()).
			WithContext("gas_used", receipt.GasUsed)
	}
	return &stablecoin.TransactionResult{
		TransactionID: signed.Hash().Hex(),
		Status:        StatusSuccess,
	}, nil
}

// evmCall maps tx to a single EVM call. Native calls are encoded for the
// token-service precompile; a native batch cannot run atomically from one EVM
// call and is rejected.
func evmCall(tx *stablecoin.Transaction) (common.Address, []byte, uint64, error) {
	switch tx.Kind {
	case stablecoin.KindContract:
		if tx.Contract == nil || !common.IsHexAddress(tx.Contract.To) {
			return common.Address{}, nil, 0, errors.NewConfigError(errors.INVALID_ARGUMENT, "contract transaction has no valid target", nil)
		}
		gas := tx.Contract.Gas
		if gas == 0 {
			gas = gasFor(tx.Contract.Function)
		}
		return common.HexToAddress(tx.Contract.To), tx.Contract.Data, gas, nil
	case stablecoin.KindNative:
		if len(tx.Native) != 1 {
			return common.Address{}, nil, 0, errors.NewConfigError(
				errors.INVALID_ARGUMENT,
				fmt.Sprintf("evm backends run one native call per transaction, got %d", len(tx.Native)),
				nil,
			).WithContext("operation", string(tx.Operation))
		}
		data, err := encodeNativeCall(tx.Native[0])
		if err != nil {
			return common.Address{}, nil, 0, err
		}
		return TokenServiceAddress, data, nativeCallGas, nil
	}
	return common.Address{}, nil, 0, errors.NewConfigError(errors.INVALID_ARGUMENT, "unknown transaction kind "+string(tx.Kind), nil)
}

func encodeNativeCall(call stablecoin.NativeCall) ([]byte, error) {
	token, err := entityAddress(call.TokenID)
	if err != nil {
		return nil, err
	}
	account := func() (common.Address, error) { return entityAddress(call.Account) }

	var (
		data []byte
		amt  int64
		acc  common.Address
	)
	switch call.Type {
	case stablecoin.NativeMint:
		if amt, err = int64Amount(call.Amount); err == nil {
			data, err = tokenServiceABI.Pack("mintToken", token, amt, [][]byte{})
		}
	case stablecoin.NativeBurn:
		if amt, err = int64Amount(call.Amount); err == nil {
			data, err = tokenServiceABI.Pack("burnToken", token, amt, []int64{})
		}
	case stablecoin.NativeWipe:
		if acc, err = account(); err == nil {
			if amt, err = int64Amount(call.Amount); err == nil {
				data, err = tokenServiceABI.Pack("wipeTokenAccount", token, acc, amt)
			}
		}
	case stablecoin.NativeTransfer:
		var src common.Address
		if src, err = entityAddress(call.Source); err == nil {
			if acc, err = account(); err == nil {
				if amt, err = int64Amount(call.Amount); err == nil {
					data, err = tokenServiceABI.Pack("transferToken", token, src, acc, amt)
				}
			}
		}
	case stablecoin.NativeFreeze, stablecoin.NativeUnfreeze, stablecoin.NativeGrantKyc, stablecoin.NativeRevokeKyc:
		if acc, err = account(); err == nil {
			data, err = tokenServiceABI.Pack(accountMethods[call.Type], token, acc)
		}
	case stablecoin.NativePause:
		data, err = tokenServiceABI.Pack("pauseToken", token)
	case stablecoin.NativeUnpause:
		data, err = tokenServiceABI.Pack("unpauseToken", token)
	case stablecoin.NativeDelete:
		data, err = tokenServiceABI.Pack("deleteToken", token)
	default:
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "unknown native call "+string(call.Type), nil)
	}
	if err != nil {
		if errors.KindOf(err) != "" {
			return nil, err
		}
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode native call", err)
	}
	return data, nil
}

var accountMethods = map[stablecoin.NativeCallType]string{
	stablecoin.NativeFreeze:    "freezeToken",
	stablecoin.NativeUnfreeze:  "unfreezeToken",
	stablecoin.NativeGrantKyc:  "grantTokenKyc",
	stablecoin.NativeRevokeKyc: "revokeTokenKyc",
}

// entityAddress maps an entity id or EVM address to an EVM address. Entity ids
// use their long-zero form.
func entityAddress(id string) (common.Address, error) {
	if mirror.IsEVMAddress(id) {
		return common.HexToAddress(id), nil
	}
	eid, err := mirror.ParseEntityID(id)
	if err != nil {
		return common.Address{}, errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid entity id "+id, err)
	}
	return common.HexToAddress(eid.EVMAddress()), nil
}
