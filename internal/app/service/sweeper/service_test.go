package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/internal/platform/midtrans"
	"github.com/bukukita/billing/pkg/types"
)

type fakeStore struct {
	stale  []*models.Subscription
	lapsed []*models.Subscription

	statuses map[string]types.SubscriptionStatus
	applied  []string
}

func (f *fakeStore) FindStalePending(_ context.Context, _ time.Time, _ int) ([]*models.Subscription, error) {
	return f.stale, nil
}

func (f *fakeStore) FindLapsedActive(_ context.Context, _ time.Time, _ int) ([]*models.Subscription, error) {
	return f.lapsed, nil
}

func (f *fakeStore) ApplyEvent(_ context.Context, orderID, _ string, decide func(lifecycle.View) (*lifecycle.Outcome, error)) (*lifecycle.Outcome, error) {
	out, err := decide(lifecycle.View{Status: f.statuses[orderID]})
	if err != nil {
		return nil, err
	}
	if !out.NoOp {
		f.statuses[orderID] = out.Change.Status
		f.applied = append(f.applied, orderID)
	}
	return out, nil
}

type fakeGateway struct {
	statuses map[string]*midtrans.TransactionStatusResponse
	err      error
}

func (f *fakeGateway) GetTransactionStatus(_ context.Context, orderID string) (*midtrans.TransactionStatusResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if st, ok := f.statuses[orderID]; ok {
		return st, nil
	}
	return nil, midtrans.ErrTransactionNotFound
}

type fakeQueue struct {
	jobs []*dispatch.Job
}

func (f *fakeQueue) Enqueue(_ context.Context, job *dispatch.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeNotifier struct {
	effects map[string][]lifecycle.EffectKind
}

func (f *fakeNotifier) DispatchEffects(_ context.Context, sub *models.Subscription, effects []lifecycle.EffectKind) {
	if f.effects == nil {
		f.effects = map[string][]lifecycle.EffectKind{}
	}
	f.effects[sub.OrderID] = effects
}

func pendingSub(orderID string) *models.Subscription {
	return &models.Subscription{
		ID:      "sub-" + orderID,
		UserID:  "user-1",
		PlanID:  "pro-monthly",
		OrderID: orderID,
		Status:  types.SubscriptionStatusPending,
	}
}

func newTestService(store *fakeStore, gw *fakeGateway, q *fakeQueue, n *fakeNotifier) *Service {
	return &Service{
		subs:     store,
		gateway:  gw,
		shell:    q,
		notifier: n,
		log:      zap.NewNop().Sugar(),
		now:      func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestSweepStalePending_CancelsAbandonedCheckout(t *testing.T) {
	store := &fakeStore{
		stale:    []*models.Subscription{pendingSub("SUB-1")},
		statuses: map[string]types.SubscriptionStatus{"SUB-1": types.SubscriptionStatusPending},
	}
	q := &fakeQueue{}
	s := newTestService(store, &fakeGateway{}, q, &fakeNotifier{})

	require.NoError(t, s.SweepStalePending(context.Background()))

	require.Equal(t, []string{"SUB-1"}, store.applied)
	require.Equal(t, types.SubscriptionStatusCancelled, store.statuses["SUB-1"])
	require.Empty(t, q.jobs)
}

func TestSweepStalePending_SettledAtGatewayReplaysInsteadOfCancelling(t *testing.T) {
	store := &fakeStore{
		stale:    []*models.Subscription{pendingSub("SUB-2")},
		statuses: map[string]types.SubscriptionStatus{"SUB-2": types.SubscriptionStatusPending},
	}
	gw := &fakeGateway{statuses: map[string]*midtrans.TransactionStatusResponse{
		"SUB-2": {
			OrderID:           "SUB-2",
			TransactionID:     "mid-tx-2",
			TransactionStatus: "settlement",
			StatusCode:        "200",
			GrossAmount:       "99000.00",
			PaymentType:       "qris",
			SignatureKey:      "abc",
		},
	}}
	q := &fakeQueue{}
	s := newTestService(store, gw, q, &fakeNotifier{})

	require.NoError(t, s.SweepStalePending(context.Background()))

	// Settled checkouts are never cancelled locally; the missed settlement
	// goes back through the webhook pipeline.
	require.Empty(t, store.applied)
	require.Len(t, q.jobs, 1)
	require.Equal(t, dispatch.JobKindReconcile, q.jobs[0].Kind)

	var payload dispatch.ReconcileJobPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &payload))
	require.Equal(t, "mid-tx-2:settlement", payload.EventID)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload.Raw, &raw))
	require.Equal(t, "SUB-2", raw["order_id"])
	require.Equal(t, "settlement", raw["transaction_status"])
}

func TestSweepStalePending_GatewayDownSkipsRow(t *testing.T) {
	store := &fakeStore{
		stale:    []*models.Subscription{pendingSub("SUB-3")},
		statuses: map[string]types.SubscriptionStatus{"SUB-3": types.SubscriptionStatusPending},
	}
	gw := &fakeGateway{err: errors.New("gateway timeout")}
	s := newTestService(store, gw, &fakeQueue{}, &fakeNotifier{})

	require.NoError(t, s.SweepStalePending(context.Background()))

	require.Empty(t, store.applied)
	require.Equal(t, types.SubscriptionStatusPending, store.statuses["SUB-3"])
}

func TestSweepExpiry_ExpiresAndNotifies(t *testing.T) {
	ends := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	lapsed := &models.Subscription{
		ID:      "sub-4",
		UserID:  "user-1",
		PlanID:  "pro-monthly",
		OrderID: "SUB-4",
		Status:  types.SubscriptionStatusActive,
		EndsAt:  &ends,
	}
	store := &fakeStore{
		lapsed:   []*models.Subscription{lapsed},
		statuses: map[string]types.SubscriptionStatus{"SUB-4": types.SubscriptionStatusActive},
	}
	n := &fakeNotifier{}
	s := newTestService(store, &fakeGateway{}, &fakeQueue{}, n)

	require.NoError(t, s.SweepExpiry(context.Background()))

	require.Equal(t, types.SubscriptionStatusExpired, store.statuses["SUB-4"])
	require.Equal(t, []lifecycle.EffectKind{lifecycle.EffectSubscriptionExpired}, n.effects["SUB-4"])
}

func TestSweepExpiry_AlreadyExpiredIsNoOp(t *testing.T) {
	ends := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		lapsed: []*models.Subscription{{
			OrderID: "SUB-5", UserID: "user-1", PlanID: "pro-monthly",
			Status: types.SubscriptionStatusActive, EndsAt: &ends,
		}},
		statuses: map[string]types.SubscriptionStatus{"SUB-5": types.SubscriptionStatusExpired},
	}
	n := &fakeNotifier{}
	s := newTestService(store, &fakeGateway{}, &fakeQueue{}, n)

	require.NoError(t, s.SweepExpiry(context.Background()))

	require.Empty(t, store.applied)
	require.Empty(t, n.effects)
}
