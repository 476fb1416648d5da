// Package multisig coordinates offline signature collection for accounts whose
// authority is a threshold key list.
//
// A prepared transaction is parked as a MultiSigTransaction in a durable store.
// Key holders sign its message independently, possibly over days. Once the
// threshold is met the record becomes Signed and can be submitted; successful
// submission removes it from the store.
package multisig

import (
	"fmt"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// legalTransitions defines the allowed status transitions of a record.
// A pending record stays pending until the signature that meets the threshold.
// Signed is terminal: submission and deletion remove the record instead.
var legalTransitions = map[stablecoin.MultiSigStatus]map[stablecoin.MultiSigStatus]bool{
	stablecoin.MultiSigPending: {
		stablecoin.MultiSigPending: true,
		stablecoin.MultiSigSigned:  true,
	},
	stablecoin.MultiSigSigned: {},
}

// ValidateTransition checks that a record in status from may move to status to.
// An illegal transition fails with TRANSITION_INVALID.
func ValidateTransition(from, to stablecoin.MultiSigStatus) error {
	validToStates, exists := legalTransitions[from]
	if !exists {
		return errors.NewBusinessError(
			errors.TRANSITION_INVALID,
			fmt.Sprintf("unknown source state: %s", from),
			nil,
		)
	}
	if !validToStates[to] {
		return errors.NewBusinessError(
			errors.TRANSITION_INVALID,
			fmt.Sprintf("illegal transition from %s to %s", from, to),
			nil,
		)
	}
	return nil
}
