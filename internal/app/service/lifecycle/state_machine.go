// Package lifecycle is the authoritative subscription state machine. The
// transition function is pure: it maps (current state, gateway event) to a
// desired-state delta plus a list of side-effect commands, and performs no
// I/O. Callers commit the delta; the orchestrator dispatches the effects
// after commit.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/bukukita/billing/pkg/types"
)

// ErrIllegalTransition marks an event that does not apply to the current
// state, e.g. a settlement for an already-cancelled subscription. Callers log
// it as an anomaly and still acknowledge the gateway.
var ErrIllegalTransition = errors.New("illegal subscription transition")

// Event is a validated, deduplicated gateway notification reduced to the
// fields the transition function needs.
type Event struct {
	TransactionStatus types.TransactionStatus
	TransactionID     string
	PaymentType       string
	FraudStatus       string
	At                time.Time
}

// View is the snapshot of the subscription the transition decides on.
type View struct {
	Status types.SubscriptionStatus
}

// Change is the desired-state delta. Nil pointer fields are left untouched by
// the committer; in particular a duplicate settlement never produces a Change
// at all, so starts_at/ends_at and the transaction id are never rewritten.
type Change struct {
	Status        types.SubscriptionStatus
	Reason        types.SubscriptionChangeReason
	TransactionID *string
	PaymentType   *string
	FailureReason *string
	StartsAt      *time.Time
	EndsAt        *time.Time
	CancelledAt   *time.Time
}

type EffectKind string

const (
	EffectPaymentSuccess        EffectKind = "payment_success"
	EffectSubscriptionActivated EffectKind = "subscription_activated"
	EffectSubscriptionExpired   EffectKind = "subscription_expired"
)

// Outcome is what a transition decided. NoOp outcomes are successes with
// nothing to commit and nothing to dispatch.
type Outcome struct {
	NoOp    bool
	Change  *Change
	Effects []EffectKind
}

func noop() *Outcome { return &Outcome{NoOp: true} }

// Transition applies a gateway event to the current state. It is idempotent:
// re-applying a terminal event to a subscription already in the target state
// is a no-op that still succeeds.
func Transition(view View, ev Event, plan *types.Plan) (*Outcome, error) {
	switch ev.TransactionStatus {
	case types.TransactionStatusSettlement, types.TransactionStatusCapture:
		if ev.TransactionStatus == types.TransactionStatusCapture && ev.FraudStatus == "deny" {
			return failWith(view, types.SubscriptionStatusFailed, types.SubscriptionChangeReasonGatewayFailed, "capture denied by fraud detection", nil)
		}
		return settle(view, ev, plan)
	case types.TransactionStatusPending:
		// A stale pending after settlement must not downgrade the status;
		// whatever the current state, there is nothing to apply.
		return noop(), nil
	case types.TransactionStatusExpire:
		return failWith(view, types.SubscriptionStatusFailed, types.SubscriptionChangeReasonGatewayFailed, "expired before payment", nil)
	case types.TransactionStatusDeny:
		return failWith(view, types.SubscriptionStatusFailed, types.SubscriptionChangeReasonGatewayFailed, "payment denied by gateway", nil)
	case types.TransactionStatusCancel:
		return failWith(view, types.SubscriptionStatusCancelled, types.SubscriptionChangeReasonGatewayCancel, "cancelled by gateway", lo.ToPtr(ev.At))
	default:
		return nil, fmt.Errorf("%w: unknown transaction status %q in state %q", ErrIllegalTransition, ev.TransactionStatus, view.Status)
	}
}

func settle(view View, ev Event, plan *types.Plan) (*Outcome, error) {
	switch view.Status {
	case types.SubscriptionStatusPending:
		if plan == nil {
			return nil, fmt.Errorf("settlement without a known plan")
		}
		startsAt := ev.At
		endsAt := startsAt.Add(plan.Interval())
		return &Outcome{
			Change: &Change{
				Status:        types.SubscriptionStatusActive,
				Reason:        types.SubscriptionChangeReasonSettlement,
				TransactionID: lo.ToPtr(ev.TransactionID),
				PaymentType:   lo.ToPtr(ev.PaymentType),
				StartsAt:      &startsAt,
				EndsAt:        &endsAt,
			},
			Effects: []EffectKind{EffectPaymentSuccess, EffectSubscriptionActivated},
		}, nil
	case types.SubscriptionStatusActive:
		// Duplicate settlement. Upstream dedup normally catches this; the
		// defensive branch keeps it harmless either way.
		return noop(), nil
	default:
		return nil, fmt.Errorf("%w: settlement in state %q", ErrIllegalTransition, view.Status)
	}
}

// failWith drives a subscription into a terminal state on a gateway event.
// Every terminal event applies from pending; gateway cancellation is the one
// that may also interrupt an active subscription. Re-delivery of the same
// terminal event is a no-op; anything else is illegal.
func failWith(view View, target types.SubscriptionStatus, reason types.SubscriptionChangeReason, detail string, cancelledAt *time.Time) (*Outcome, error) {
	change := &Change{
		Status:        target,
		Reason:        reason,
		FailureReason: lo.ToPtr(detail),
		CancelledAt:   cancelledAt,
	}
	switch view.Status {
	case types.SubscriptionStatusPending:
		return &Outcome{Change: change}, nil
	case types.SubscriptionStatusActive:
		if target == types.SubscriptionStatusCancelled {
			return &Outcome{Change: change}, nil
		}
		return nil, fmt.Errorf("%w: %q in state %q", ErrIllegalTransition, target, view.Status)
	case target:
		return noop(), nil
	default:
		return nil, fmt.Errorf("%w: %q in state %q", ErrIllegalTransition, target, view.Status)
	}
}

// ExpireActive is the daily sweep's transition: an active subscription past
// ends_at becomes expired and triggers the expiry notification.
func ExpireActive(view View, now time.Time) (*Outcome, error) {
	switch view.Status {
	case types.SubscriptionStatusActive:
		return &Outcome{
			Change: &Change{
				Status: types.SubscriptionStatusExpired,
				Reason: types.SubscriptionChangeReasonExpirySweep,
			},
			Effects: []EffectKind{EffectSubscriptionExpired},
		}, nil
	case types.SubscriptionStatusExpired:
		return noop(), nil
	default:
		return nil, fmt.Errorf("%w: expiry sweep in state %q", ErrIllegalTransition, view.Status)
	}
}

// CancelStalePending is the hourly sweep's transition: a pending subscription
// the user abandoned gets cancelled.
func CancelStalePending(view View, now time.Time) (*Outcome, error) {
	switch view.Status {
	case types.SubscriptionStatusPending:
		return &Outcome{
			Change: &Change{
				Status:        types.SubscriptionStatusCancelled,
				Reason:        types.SubscriptionChangeReasonStaleCancel,
				FailureReason: lo.ToPtr("pending checkout abandoned"),
				CancelledAt:   &now,
			},
		}, nil
	case types.SubscriptionStatusCancelled:
		return noop(), nil
	default:
		return nil, fmt.Errorf("%w: stale-pending sweep in state %q", ErrIllegalTransition, view.Status)
	}
}
