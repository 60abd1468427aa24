// Package reconcile ties the webhook pipeline together: extract, verify,
// record-or-detect, look up, transition, and hand side-effect commands back
// to the caller. It never dispatches side effects itself; emails go out only
// after the caller has seen the transaction commit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/app/service/subscription"
	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/pkg/config"
	"github.com/bukukita/billing/pkg/logctx"
	"github.com/bukukita/billing/pkg/metrics"
	"github.com/bukukita/billing/pkg/types"
)

const (
	AnomalyUnknownOrder      = "unknown order id"
	AnomalyIllegalTransition = "illegal transition"
)

// SubscriptionStore is the slice of the subscription service the orchestrator
// needs. ApplyEvent must lock the row, re-run decide on the locked state, and
// commit the delta together with the ledger processed-mark.
type SubscriptionStore interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Subscription, error)
	ApplyEvent(ctx context.Context, orderID, eventID string, decide func(lifecycle.View) (*lifecycle.Outcome, error)) (*lifecycle.Outcome, error)
}

// Ledger is the notification ledger surface used by the pipeline.
type Ledger interface {
	RecordOrDetect(ctx context.Context, eventID, orderID string, provider types.PaymentProvider, raw []byte, traceID string) (bool, *models.NotificationRecord, error)
	MarkAnomaly(ctx context.Context, eventID, note string) error
}

// SignatureVerifier reports whether a notification is authentic.
type SignatureVerifier interface {
	Verify(orderID, statusCode, grossAmount, signatureKey string) bool
}

// PlanCatalog resolves plan ids to plans. *config.Config implements it.
type PlanCatalog interface {
	GetPlanByID(id string) *types.Plan
}

// Result is the pipeline verdict for one notification. Any Result means the
// gateway gets a success acknowledgement; errors surface only through the
// error return.
type Result struct {
	OrderID   string
	EventID   string
	Duplicate bool
	// Anomaly is set for events acknowledged but deliberately not applied.
	Anomaly string
	// Subscription and Effects are set when a transition was committed.
	Subscription *models.Subscription
	Effects      []lifecycle.EffectKind
}

type Orchestrator struct {
	verifier SignatureVerifier
	ledger   Ledger
	store    SubscriptionStore
	plans    PlanCatalog
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewOrchestrator(verifier SignatureVerifier, lg Ledger, store SubscriptionStore, cfg *config.Config, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{verifier: verifier, ledger: lg, store: store, plans: cfg, log: log, now: time.Now}
}

// ProcessNotification runs the full pipeline on a raw webhook body. Each step
// is a hard boundary: validation and signature failures reject before any
// state is touched; duplicates short-circuit to success; errors after the
// ledger insert are returned for the dispatch shell to retry.
func (o *Orchestrator) ProcessNotification(ctx context.Context, raw []byte) (*Result, error) {
	n, err := ParseNotification(raw)
	if err != nil {
		return nil, err
	}

	if !o.verifier.Verify(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey) {
		logctx.FromCtx(ctx, o.log).Warnw("webhook signature rejected", "order_id", n.OrderID)
		metrics.WebhookOutcome.WithLabelValues("rejected_signature").Inc()
		return nil, ErrInvalidSignature
	}

	eventID := n.EventID()
	log := logctx.FromCtx(ctx, o.log).With("order_id", n.OrderID, "event_id", eventID)

	traceID, _ := ctx.Value(logctx.TraceIDKey).(string)
	isNew, rec, err := o.ledger.RecordOrDetect(ctx, eventID, n.OrderID, types.PaymentProviderMidtrans, raw, traceID)
	if err != nil {
		return nil, fmt.Errorf("ledger record-or-detect: %w", err)
	}
	if !isNew {
		if rec.Processed() {
			log.Infow("notification already handled")
			metrics.WebhookOutcome.WithLabelValues("duplicate").Inc()
			return &Result{OrderID: n.OrderID, EventID: eventID, Duplicate: true}, nil
		}
		// Row exists but was never marked processed: a previous attempt died
		// mid-flight, or the dispatch shell is replaying it. Run the pipeline
		// again; the transactional apply makes re-running safe.
		log.Infow("re-processing unfinished notification")
	}

	sub, err := o.store.FindByOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			// The gateway cannot resolve a local lookup failure; retrying
			// would only generate alert fatigue. Acknowledge, keep the row
			// as a dead-letter trail.
			log.Errorw("notification for unknown order id")
			metrics.WebhookOutcome.WithLabelValues("unknown_order").Inc()
			if markErr := o.ledger.MarkAnomaly(ctx, eventID, AnomalyUnknownOrder); markErr != nil {
				return nil, markErr
			}
			return &Result{OrderID: n.OrderID, EventID: eventID, Anomaly: AnomalyUnknownOrder}, nil
		}
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}

	plan := o.plans.GetPlanByID(sub.PlanID)
	ev := n.Event(o.now())

	out, err := o.store.ApplyEvent(ctx, n.OrderID, eventID, func(view lifecycle.View) (*lifecycle.Outcome, error) {
		return lifecycle.Transition(view, ev, plan)
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrIllegalTransition) {
			log.Errorw("illegal transition, acknowledged without applying",
				"transaction_status", n.TransactionStatus, "current_status", sub.Status, "err", err)
			metrics.WebhookOutcome.WithLabelValues("illegal_transition").Inc()
			if markErr := o.ledger.MarkAnomaly(ctx, eventID, AnomalyIllegalTransition); markErr != nil {
				return nil, markErr
			}
			return &Result{OrderID: n.OrderID, EventID: eventID, Anomaly: AnomalyIllegalTransition}, nil
		}
		return nil, fmt.Errorf("apply transition for order %s event %s: %w", n.OrderID, eventID, err)
	}

	res := &Result{OrderID: n.OrderID, EventID: eventID, Effects: out.Effects}
	if out.NoOp {
		metrics.WebhookOutcome.WithLabelValues("noop").Inc()
		return res, nil
	}
	// Re-read is deliberate: the committed row, not the pre-lock snapshot.
	if fresh, ferr := o.store.FindByOrderID(ctx, n.OrderID); ferr == nil {
		res.Subscription = fresh
	} else {
		res.Subscription = sub
	}
	log.Infow("subscription transitioned",
		"transaction_status", n.TransactionStatus, "effects", out.Effects)
	metrics.WebhookOutcome.WithLabelValues("applied").Inc()
	return res, nil
}
