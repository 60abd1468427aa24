package notify

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
	"github.com/bukukita/billing/pkg/config"
	"github.com/bukukita/billing/pkg/types"
)

type captureQueue struct {
	jobs []*dispatch.Job
}

func (q *captureQueue) Enqueue(_ context.Context, job *dispatch.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func testService(q *captureQueue, email string, lookupErr error) *Service {
	cfg := &config.Config{
		Plans: []*types.Plan{
			{ID: "pro-monthly", Name: "Pro Monthly", PriceIDR: 99000, IntervalDays: 30},
		},
	}
	s := &Service{cfg: cfg, log: zap.NewNop().Sugar(), shell: q}
	s.lookupEmail = func(_ context.Context, _ string) (string, error) {
		return email, lookupErr
	}
	return s
}

func activatedSubscription() *models.Subscription {
	ends := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return &models.Subscription{
		ID:      "sub-1",
		UserID:  "user-1",
		PlanID:  "pro-monthly",
		OrderID: "SUB-user-1-pro-monthly-a1b2",
		Status:  types.SubscriptionStatusActive,
		EndsAt:  &ends,
	}
}

func TestDispatchEffects_ActivationEnqueuesTwoEmails(t *testing.T) {
	q := &captureQueue{}
	s := testService(q, "user@example.com", nil)

	s.DispatchEffects(context.Background(), activatedSubscription(),
		[]lifecycle.EffectKind{lifecycle.EffectPaymentSuccess, lifecycle.EffectSubscriptionActivated})

	require.Len(t, q.jobs, 2)
	for _, job := range q.jobs {
		require.Equal(t, dispatch.JobKindEmail, job.Kind)
	}

	var first dispatch.EmailJobPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &first))
	require.Equal(t, "user@example.com", first.To)
	require.Contains(t, first.Subject, "Payment received")
	require.Contains(t, first.Body, "Pro Monthly")
	require.Contains(t, first.Body, "SUB-user-1-pro-monthly-a1b2")

	var second dispatch.EmailJobPayload
	require.NoError(t, json.Unmarshal(q.jobs[1].Payload, &second))
	require.Contains(t, second.Subject, "is active")
	require.Contains(t, second.Body, "2026-10-01")
}

func TestDispatchEffects_ExpiryEmail(t *testing.T) {
	q := &captureQueue{}
	s := testService(q, "user@example.com", nil)

	s.DispatchEffects(context.Background(), activatedSubscription(),
		[]lifecycle.EffectKind{lifecycle.EffectSubscriptionExpired})

	require.Len(t, q.jobs, 1)
	var payload dispatch.EmailJobPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &payload))
	require.Contains(t, payload.Subject, "has expired")
}

func TestDispatchEffects_NoRecipientSkipsQuietly(t *testing.T) {
	q := &captureQueue{}
	s := testService(q, "", errors.New("record not found"))

	s.DispatchEffects(context.Background(), activatedSubscription(),
		[]lifecycle.EffectKind{lifecycle.EffectPaymentSuccess})

	require.Empty(t, q.jobs)
}

func TestDispatchEffects_UnknownPlanFallsBackToPlanID(t *testing.T) {
	q := &captureQueue{}
	s := testService(q, "user@example.com", nil)

	sub := activatedSubscription()
	sub.PlanID = "legacy-plan"
	s.DispatchEffects(context.Background(), sub,
		[]lifecycle.EffectKind{lifecycle.EffectPaymentSuccess})

	require.Len(t, q.jobs, 1)
	var payload dispatch.EmailJobPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &payload))
	require.Contains(t, payload.Subject, "legacy-plan")
}

func TestDispatchEffects_NilOrEmptyIsNoOp(t *testing.T) {
	q := &captureQueue{}
	s := testService(q, "user@example.com", nil)

	s.DispatchEffects(context.Background(), nil, []lifecycle.EffectKind{lifecycle.EffectPaymentSuccess})
	s.DispatchEffects(context.Background(), activatedSubscription(), nil)

	require.Empty(t, q.jobs)
}
