package multisig

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// DefaultSchedule is how often the auto-submitter sweeps the store.
const DefaultSchedule = "@every 30s"

// AutoSubmitter periodically submits Signed records. With an expiry window it
// also deletes Pending records older than the window; without one, pending
// records are kept until someone deletes them.
type AutoSubmitter struct {
	coordinator *Coordinator
	schedule    string
	expiry      time.Duration
	filter      stablecoin.MultiSigFilter
	cron        *cron.Cron
	logger      *logrus.Entry
}

// AutoSubmitOption configures an AutoSubmitter.
type AutoSubmitOption func(*AutoSubmitter)

// WithSchedule sets the cron schedule (standard five-field spec or a
// descriptor such as "@every 1m").
func WithSchedule(spec string) AutoSubmitOption {
	return func(a *AutoSubmitter) {
		a.schedule = spec
	}
}

// WithExpiryWindow deletes Pending records whose StartDate is older than d.
// Zero disables expiry.
func WithExpiryWindow(d time.Duration) AutoSubmitOption {
	return func(a *AutoSubmitter) {
		a.expiry = d
	}
}

// WithScope restricts sweeps to one account and network.
func WithScope(accountID, network string) AutoSubmitOption {
	return func(a *AutoSubmitter) {
		a.filter.AccountID = accountID
		a.filter.Network = network
	}
}

// NewAutoSubmitter creates an AutoSubmitter over coordinator. The schedule is
// validated here; nothing runs until Start.
func NewAutoSubmitter(coordinator *Coordinator, opts ...AutoSubmitOption) (*AutoSubmitter, error) {
	a := &AutoSubmitter{
		coordinator: coordinator,
		schedule:    DefaultSchedule,
	}
	for _, opt := range opts {
		opt(a)
	}
	if _, err := cron.ParseStandard(a.schedule); err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid auto-submit schedule "+a.schedule, err)
	}
	a.logger = coordinator.logger.WithField("job", "autosubmit")
	a.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return a, nil
}

// Start schedules the sweep in the background.
func (a *AutoSubmitter) Start() error {
	_, err := a.cron.AddFunc(a.schedule, func() {
		if _, err := a.RunOnce(context.Background()); err != nil {
			a.logger.WithError(err).Warn("auto-submit sweep finished with errors")
		}
	})
	if err != nil {
		return errors.NewConfigError(errors.INVALID_ARGUMENT, "invalid auto-submit schedule "+a.schedule, err)
	}
	a.cron.Start()
	a.logger.WithField("schedule", a.schedule).Info("auto-submit started")
	return nil
}

// Stop stops scheduling and waits for a running sweep, or for ctx.
func (a *AutoSubmitter) Stop(ctx context.Context) {
	done := a.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce submits every Signed record and, with an expiry window, deletes
// expired Pending ones. It returns how many records were submitted. A failure
// on one record does not stop the sweep.
func (a *AutoSubmitter) RunOnce(ctx context.Context) (int, error) {
	var errs []error

	signed, err := a.collect(ctx, stablecoin.MultiSigSigned)
	if err != nil {
		return 0, err
	}
	submitted := 0
	for _, tx := range signed {
		if _, err := a.coordinator.Submit(ctx, tx.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		submitted++
	}

	if a.expiry > 0 {
		pending, err := a.collect(ctx, stablecoin.MultiSigPending)
		if err != nil {
			errs = append(errs, err)
		}
		cutoff := a.coordinator.now().Add(-a.expiry)
		for _, tx := range pending {
			if !tx.StartDate.Before(cutoff) {
				continue
			}
			if err := a.coordinator.Delete(ctx, tx.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			a.logger.WithField("multisig_id", tx.ID).Info("expired multisig transaction deleted")
		}
	}

	a.logger.WithFields(logrus.Fields{"submitted": submitted, "errors": len(errs)}).Debug("auto-submit sweep done")
	return submitted, stderrors.Join(errs...)
}

// collect reads every record in status before acting, since submitting and
// deleting shift the pages.
func (a *AutoSubmitter) collect(ctx context.Context, status stablecoin.MultiSigStatus) ([]*stablecoin.MultiSigTransaction, error) {
	filter := a.filter
	filter.Status = &status
	filter.Limit = MaxPageLimit

	var out []*stablecoin.MultiSigTransaction
	for page := 1; ; page++ {
		filter.Page = page
		res, err := a.coordinator.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		if page >= res.Pagination.TotalPages || len(res.Items) == 0 {
			return out, nil
		}
	}
}
