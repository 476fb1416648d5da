package adapter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// stableCoinABIJSON is the subset of the stablecoin facet used by ContractAdapter.
const stableCoinABIJSON = `[
{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"int64"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"int64"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"wipe","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"int64"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"rescue","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"int64"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"freeze","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"unfreeze","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"deleteToken","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"grantKyc","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"revokeKyc","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"grantRole","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
{"type":"function","name":"revokeRole","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
{"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getRoles","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bytes32[]"}]},
{"type":"function","name":"grantSupplierRole","stateMutability":"nonpayable","inputs":[{"name":"supplier","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"grantUnlimitedSupplierRole","stateMutability":"nonpayable","inputs":[{"name":"supplier","type":"address"}],"outputs":[]},
{"type":"function","name":"revokeSupplierRole","stateMutability":"nonpayable","inputs":[{"name":"supplier","type":"address"}],"outputs":[]},
{"type":"function","name":"increaseSupplierAllowance","stateMutability":"nonpayable","inputs":[{"name":"supplier","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"decreaseSupplierAllowance","stateMutability":"nonpayable","inputs":[{"name":"supplier","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"resetSupplierAllowance","stateMutability":"nonpayable","inputs":[{"name":"supplier","type":"address"}],"outputs":[]},
{"type":"function","name":"getSupplierAllowance","stateMutability":"view","inputs":[{"name":"supplier","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"isUnlimitedSupplierAllowance","stateMutability":"view","inputs":[{"name":"supplier","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"updateReserveAddress","stateMutability":"nonpayable","inputs":[{"name":"newAddress","type":"address"}],"outputs":[]},
{"type":"function","name":"getReserveAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// tokenServiceABIJSON is the subset of the native token-service precompile used
// to run native calls from an EVM account.
const tokenServiceABIJSON = `[
{"type":"function","name":"mintToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"int64"},{"name":"metadata","type":"bytes[]"}],"outputs":[{"name":"responseCode","type":"int64"},{"name":"newTotalSupply","type":"int64"},{"name":"serialNumbers","type":"int64[]"}]},
{"type":"function","name":"burnToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"int64"},{"name":"serialNumbers","type":"int64[]"}],"outputs":[{"name":"responseCode","type":"int64"},{"name":"newTotalSupply","type":"int64"}]},
{"type":"function","name":"wipeTokenAccount","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"},{"name":"amount","type":"int64"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"freezeToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"unfreezeToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"pauseToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"unpauseToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"deleteToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"transferToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"int64"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"grantTokenKyc","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]},
{"type":"function","name":"revokeTokenKyc","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]}
]`

// TokenServiceAddress is the EVM address of the native token-service precompile.
var TokenServiceAddress = common.HexToAddress("0x0000000000000000000000000000000000000167")

var (
	stableCoinABI   = mustParseABI(stableCoinABIJSON)
	tokenServiceABI = mustParseABI(tokenServiceABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("adapter: invalid abi: %v", err))
	}
	return parsed
}

// Gas limits per facet function.
var functionGas = map[string]uint64{
	"mint":                       120_000,
	"burn":                       70_000,
	"wipe":                       70_000,
	"rescue":                     70_000,
	"freeze":                     65_000,
	"unfreeze":                   65_000,
	"pause":                      65_000,
	"unpause":                    65_000,
	"deleteToken":                65_000,
	"grantKyc":                   65_000,
	"revokeKyc":                  65_000,
	"grantRole":                  150_000,
	"revokeRole":                 80_000,
	"grantSupplierRole":          130_000,
	"grantUnlimitedSupplierRole": 130_000,
	"revokeSupplierRole":         80_000,
	"increaseSupplierAllowance":  130_000,
	"decreaseSupplierAllowance":  130_000,
	"resetSupplierAllowance":     130_000,
	"updateReserveAddress":       65_000,
}

const defaultGas uint64 = 100_000

func gasFor(function string) uint64 {
	if g, ok := functionGas[function]; ok {
		return g
	}
	return defaultGas
}

// int64Amount converts a raw amount for int64 ABI parameters.
func int64Amount(v *big.Int) (int64, error) {
	if v == nil || v.Sign() < 0 {
		return 0, errors.NewBusinessError(errors.INVALID_AMOUNT, "amount must be a non-negative integer", nil)
	}
	if !v.IsInt64() {
		return 0, errors.NewBusinessError(errors.INVALID_AMOUNT, "amount "+v.String()+" does not fit in int64", nil)
	}
	return v.Int64(), nil
}

func roleHash(r stablecoin.Role) [32]byte {
	return [32]byte(common.HexToHash(string(r)))
}

func roleFromHash(h [32]byte) stablecoin.Role {
	return stablecoin.Role(common.Hash(h).Hex())
}
