package multisig

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/envelope"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
)

// AccountReader loads the key binding of an account.
// *mirror.Client satisfies it.
type AccountReader interface {
	Account(ctx context.Context, accountID string) (*stablecoin.AccountInfo, error)
}

// Interceptor is a Dispatcher decorator. Transactions paid by an account whose
// key is a threshold key list are parked with the Coordinator instead of
// being dispatched; everything else goes to next unchanged.
type Interceptor struct {
	next        stablecoin.Dispatcher
	accounts    AccountReader
	coordinator *Coordinator
	network     string
	logger      *logrus.Entry
}

// NewInterceptor wraps next.
func NewInterceptor(next stablecoin.Dispatcher, accounts AccountReader, coordinator *Coordinator, network string, logger *logrus.Entry) *Interceptor {
	return &Interceptor{
		next:        next,
		accounts:    accounts,
		coordinator: coordinator,
		network:     network,
		logger:      logging.OrDiscard(logger).WithField("component", "multisig"),
	}
}

var _ stablecoin.Dispatcher = (*Interceptor)(nil)

// Dispatch parks or forwards tx.
func (i *Interceptor) Dispatch(ctx context.Context, tx *stablecoin.Transaction) (*stablecoin.TransactionResult, error) {
	info, err := i.accounts.Account(ctx, tx.Payer)
	if err != nil {
		return nil, err
	}
	if info.Key.Kind != stablecoin.KeyThreshold {
		return i.next.Dispatch(ctx, tx)
	}

	body, err := envelope.Encode(tx)
	if err != nil {
		return nil, err
	}
	rec, err := i.coordinator.Create(ctx, CreateRequest{
		Message:     body,
		Description: describe(tx),
		AccountID:   tx.Payer,
		Network:     i.network,
		KeyList:     info.Key.Keys,
		Threshold:   info.Key.Threshold,
	})
	if err != nil {
		return nil, err
	}
	i.logger.WithFields(logrus.Fields{
		"multisig_id": rec.ID,
		"operation":   tx.Operation,
		"token":       tx.TokenID,
	}).Info("transaction parked for signature collection")
	return &stablecoin.TransactionResult{
		Status:     string(rec.Status),
		Pending:    true,
		MultiSigID: rec.ID,
	}, nil
}

func describe(tx *stablecoin.Transaction) string {
	parts := []string{string(tx.Operation), tx.TokenID}
	if tx.Memo != "" {
		parts = append(parts, tx.Memo)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
