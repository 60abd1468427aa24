// Package sweeper runs the scheduled reconciliation passes that webhooks
// cannot cover: abandoned pending checkouts and active subscriptions whose
// paid period has lapsed.
package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/app/service/notify"
	"github.com/bukukita/billing/internal/app/service/subscription"
	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/internal/platform/midtrans"
	"github.com/bukukita/billing/pkg/types"
)

const (
	stalePendingInterval = time.Hour
	expiryInterval       = 24 * time.Hour

	// stalePendingAge is how long a checkout may sit in pending before the
	// sweep gives up on it. Snap payment pages expire after 24 hours, so a
	// pending row older than that will never settle on its own.
	stalePendingAge = 24 * time.Hour

	sweepBatchSize = 200
)

type subscriptionStore interface {
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error)
	FindLapsedActive(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	ApplyEvent(ctx context.Context, orderID, eventID string, decide func(lifecycle.View) (*lifecycle.Outcome, error)) (*lifecycle.Outcome, error)
}

type gateway interface {
	GetTransactionStatus(ctx context.Context, orderID string) (*midtrans.TransactionStatusResponse, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, job *dispatch.Job) error
}

type effectDispatcher interface {
	DispatchEffects(ctx context.Context, sub *models.Subscription, effects []lifecycle.EffectKind)
}

type Service struct {
	subs     subscriptionStore
	gateway  gateway
	shell    enqueuer
	notifier effectDispatcher
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(subs *subscription.Service, gw *midtrans.Client, shell *dispatch.Shell, notifier *notify.Service, log *zap.SugaredLogger) *Service {
	return &Service{subs: subs, gateway: gw, shell: shell, notifier: notifier, log: log, now: time.Now}
}

// SweepStalePending cancels pending checkouts older than the cutoff. The
// gateway is consulted first: if it reports the payment actually settled, the
// notification we evidently missed is replayed through the dispatch shell
// instead of cancelling a paid subscription.
func (s *Service) SweepStalePending(ctx context.Context) error {
	now := s.now()
	subs, err := s.subs.FindStalePending(ctx, now.Add(-stalePendingAge), sweepBatchSize)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	s.log.Infow("sweeping stale pending checkouts", "count", len(subs))

	for _, sub := range subs {
		if err := s.sweepOnePending(ctx, sub, now); err != nil {
			s.log.Errorw("stale pending sweep failed for order",
				"order_id", sub.OrderID, "err", err)
		}
	}
	return nil
}

func (s *Service) sweepOnePending(ctx context.Context, sub *models.Subscription, now time.Time) error {
	status, err := s.gateway.GetTransactionStatus(ctx, sub.OrderID)
	switch {
	case err == nil:
		if settled(status.TransactionStatus) {
			return s.replayMissedNotification(ctx, status)
		}
	case errors.Is(err, midtrans.ErrTransactionNotFound):
		// Checkout abandoned before a payment method was picked.
	default:
		// Gateway unreachable: skip rather than cancel on missing evidence.
		// The next hourly pass picks the row up again.
		return err
	}

	out, err := s.subs.ApplyEvent(ctx, sub.OrderID, "", func(view lifecycle.View) (*lifecycle.Outcome, error) {
		return lifecycle.CancelStalePending(view, now)
	})
	if err != nil {
		return err
	}
	if !out.NoOp {
		s.log.Infow("stale pending checkout cancelled", "order_id", sub.OrderID)
	}
	return nil
}

// replayMissedNotification feeds the gateway's own status payload back through
// the webhook pipeline, so the settlement takes the exact path a delivered
// notification would have taken, ledger row included.
func (s *Service) replayMissedNotification(ctx context.Context, status *midtrans.TransactionStatusResponse) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	job, err := dispatch.NewJob(dispatch.JobKindReconcile, &dispatch.ReconcileJobPayload{
		EventID: status.TransactionID + ":" + status.TransactionStatus,
		Raw:     raw,
	})
	if err != nil {
		return err
	}
	s.log.Warnw("pending checkout settled at gateway, replaying missed notification",
		"order_id", status.OrderID, "transaction_status", status.TransactionStatus)
	return s.shell.Enqueue(ctx, job)
}

// SweepExpiry moves active subscriptions whose paid period has ended to
// expired and sends the expiry email.
func (s *Service) SweepExpiry(ctx context.Context) error {
	now := s.now()
	subs, err := s.subs.FindLapsedActive(ctx, now, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	s.log.Infow("sweeping lapsed subscriptions", "count", len(subs))

	for _, sub := range subs {
		out, err := s.subs.ApplyEvent(ctx, sub.OrderID, "", func(view lifecycle.View) (*lifecycle.Outcome, error) {
			return lifecycle.ExpireActive(view, now)
		})
		if err != nil {
			s.log.Errorw("expiry sweep failed for order", "order_id", sub.OrderID, "err", err)
			continue
		}
		if out.NoOp {
			continue
		}
		s.log.Infow("subscription expired", "order_id", sub.OrderID, "user_id", sub.UserID)
		s.notifier.DispatchEffects(ctx, sub, out.Effects)
	}
	return nil
}

func settled(transactionStatus string) bool {
	s := types.TransactionStatus(transactionStatus)
	return s == types.TransactionStatusSettlement || s == types.TransactionStatusCapture
}

// Run drives both sweeps until the context is cancelled. The stale pending
// pass runs hourly, the expiry pass daily, with one immediate expiry pass at
// startup so a restarted service does not wait a day to catch up.
func (s *Service) Run(ctx context.Context) {
	pendingTicker := time.NewTicker(stalePendingInterval)
	defer pendingTicker.Stop()
	expiryTicker := time.NewTicker(expiryInterval)
	defer expiryTicker.Stop()

	if err := s.SweepExpiry(ctx); err != nil {
		s.log.Errorw("expiry sweep failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pendingTicker.C:
			if err := s.SweepStalePending(ctx); err != nil {
				s.log.Errorw("stale pending sweep failed", "err", err)
			}
		case <-expiryTicker.C:
			if err := s.SweepExpiry(ctx); err != nil {
				s.log.Errorw("expiry sweep failed", "err", err)
			}
		}
	}
}
