package reserve

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

const aggregatorABIJSON = `[
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
 {"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},
 {"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]}
]`

var aggregatorABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("reserve: invalid aggregator abi: " + err.Error())
	}
	return parsed
}()

// AggregatorFeed reads reserves from an AggregatorV3-style data feed contract.
type AggregatorFeed struct {
	caller ethereum.ContractCaller
}

// NewAggregatorFeed creates a feed reading through caller.
func NewAggregatorFeed(caller ethereum.ContractCaller) *AggregatorFeed {
	return &AggregatorFeed{caller: caller}
}

var _ stablecoin.ReserveFeed = (*AggregatorFeed)(nil)

// Snapshot reads the latest answer and the feed decimals.
func (f *AggregatorFeed) Snapshot(ctx context.Context, address string) (*stablecoin.ReserveSnapshot, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid reserve address "+address, nil)
	}
	to := common.HexToAddress(address)

	out, err := f.call(ctx, to, "decimals")
	if err != nil {
		return nil, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "reserve feed returned invalid decimals", nil)
	}

	out, err = f.call(ctx, to, "latestRoundData")
	if err != nil {
		return nil, err
	}
	answer, ok := out[1].(*big.Int)
	if !ok || answer.Sign() < 0 {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "reserve feed returned an invalid answer", nil).
			WithContext("address", address)
	}
	return &stablecoin.ReserveSnapshot{Address: to.Hex(), Amount: answer, Decimals: int(decimals)}, nil
}

func (f *AggregatorFeed) call(ctx context.Context, to common.Address, method string) ([]any, error) {
	data, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to encode "+method, err)
	}
	raw, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "reserve feed "+method+" failed", err).
			WithContext("address", to.Hex())
	}
	out, err := aggregatorABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed to decode reserve feed "+method, err)
	}
	return out, nil
}
