package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/app/service/reconcile"
	"github.com/bukukita/billing/internal/models"
)

type stubProcessor struct {
	res *reconcile.Result
	err error
}

func (s *stubProcessor) ProcessNotification(_ context.Context, _ []byte) (*reconcile.Result, error) {
	return s.res, s.err
}

type stubDispatcher struct {
	sub     *models.Subscription
	effects []lifecycle.EffectKind
	calls   int
}

func (s *stubDispatcher) DispatchEffects(_ context.Context, sub *models.Subscription, effects []lifecycle.EffectKind) {
	s.calls++
	s.sub = sub
	s.effects = effects
}

type stubEnqueuer struct {
	jobs []*dispatch.Job
}

func (s *stubEnqueuer) Enqueue(_ context.Context, job *dispatch.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func postWebhook(t *testing.T, p notificationProcessor, d *stubDispatcher, q *stubEnqueuer, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/midtrans", ApiMidtransWebhook(p, d, q, zap.NewNop().Sugar()))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/midtrans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWebhook_AppliedTransitionDispatchesEffects(t *testing.T) {
	sub := &models.Subscription{OrderID: "SUB-1", UserID: "user-1"}
	p := &stubProcessor{res: &reconcile.Result{
		OrderID:      "SUB-1",
		EventID:      "tx:settlement",
		Subscription: sub,
		Effects:      []lifecycle.EffectKind{lifecycle.EffectPaymentSuccess, lifecycle.EffectSubscriptionActivated},
	}}
	d := &stubDispatcher{}
	q := &stubEnqueuer{}

	w := postWebhook(t, p, d, q, []byte(`{}`))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, w))
	require.Equal(t, 1, d.calls)
	require.Equal(t, sub, d.sub)
	require.Len(t, d.effects, 2)
	require.Empty(t, q.jobs)
}

func TestWebhook_DuplicateAnsweredWithoutEffects(t *testing.T) {
	p := &stubProcessor{res: &reconcile.Result{OrderID: "SUB-1", EventID: "tx:settlement", Duplicate: true}}
	d := &stubDispatcher{}

	w := postWebhook(t, p, d, &stubEnqueuer{}, []byte(`{}`))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"message": "Already processed"}, decodeBody(t, w))
	require.Zero(t, d.calls)
}

func TestWebhook_InvalidSignatureRejected401(t *testing.T) {
	p := &stubProcessor{err: reconcile.ErrInvalidSignature}
	d := &stubDispatcher{}
	q := &stubEnqueuer{}

	w := postWebhook(t, p, d, q, []byte(`{}`))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, map[string]any{"error": "Invalid signature"}, decodeBody(t, w))
	require.Zero(t, d.calls)
	require.Empty(t, q.jobs)
}

func TestWebhook_MissingFieldsRejected400(t *testing.T) {
	p := &stubProcessor{err: &reconcile.MissingFieldsError{Fields: []string{"order_id", "signature_key"}}}

	w := postWebhook(t, p, &stubDispatcher{}, &stubEnqueuer{}, []byte(`{}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, []any{"order_id", "signature_key"}, body["missing_fields"])
}

func TestWebhook_TransientFailureDeferredToShell(t *testing.T) {
	p := &stubProcessor{err: errors.New("datastore unavailable")}
	d := &stubDispatcher{}
	q := &stubEnqueuer{}

	w := postWebhook(t, p, d, q, []byte(`{"transaction_id":"mid-tx-9","transaction_status":"settlement"}`))

	// The gateway still gets a success so it stops retrying; the dispatch
	// shell owns the retries from here.
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, w))
	require.Zero(t, d.calls)
	require.Len(t, q.jobs, 1)
	require.Equal(t, dispatch.JobKindReconcile, q.jobs[0].Kind)

	var payload dispatch.ReconcileJobPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &payload))
	require.JSONEq(t, `{"transaction_id":"mid-tx-9","transaction_status":"settlement"}`, string(payload.Raw))
}
