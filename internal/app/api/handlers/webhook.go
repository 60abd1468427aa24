package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/app/service/reconcile"
	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/pkg/logctx"
)

// The webhook endpoints answer in the gateway's own JSON dialect with real
// HTTP status codes. The gateway retries anything that is not a 2xx, so the
// status code is the contract, not a convention.

type notificationProcessor interface {
	ProcessNotification(ctx context.Context, raw []byte) (*reconcile.Result, error)
}

type effectDispatcher interface {
	DispatchEffects(ctx context.Context, sub *models.Subscription, effects []lifecycle.EffectKind)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job *dispatch.Job) error
}

// @Summary      Midtrans Webhook
// @Description  Handles Midtrans payment notifications. The body is the raw gateway notification JSON.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body reconcile.Notification true "Midtrans notification payload"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]any
// @Failure      401  {object}  map[string]string
// @Router       /webhooks/midtrans [post]
func ApiMidtransWebhook(o notificationProcessor, notifier effectDispatcher, shell jobEnqueuer, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		ctx := c.Request.Context()
		reqLog := logctx.FromGin(c, log)
		reqLog.Infow("webhook_midtrans_received")

		res, err := o.ProcessNotification(ctx, raw)
		if err != nil {
			var missing *reconcile.MissingFieldsError
			switch {
			case errors.Is(err, reconcile.ErrInvalidSignature):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			case errors.As(err, &missing):
				c.JSON(http.StatusBadRequest, gin.H{
					"error":          "missing required fields",
					"missing_fields": missing.Fields,
				})
			default:
				// Transient failure after the payload was accepted: hand the
				// event to the dispatch shell and acknowledge, so the gateway
				// stops retrying while we retry internally.
				reqLog.Errorw("webhook_midtrans_deferred", "error", err.Error())
				deferToShell(ctx, shell, raw, reqLog)
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			}
			return
		}

		if res.Duplicate {
			reqLog.Infow("webhook_midtrans_duplicate", "event_id", res.EventID)
			c.JSON(http.StatusOK, gin.H{"message": "Already processed"})
			return
		}

		// Side effects only after the transition committed.
		notifier.DispatchEffects(ctx, res.Subscription, res.Effects)
		reqLog.Infow("webhook_midtrans_handled", "event_id", res.EventID, "anomaly", res.Anomaly)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func deferToShell(ctx context.Context, shell jobEnqueuer, raw []byte, log *zap.SugaredLogger) {
	eventID := ""
	if n, perr := reconcile.ParseNotification(raw); perr == nil {
		eventID = n.EventID()
	}
	job, err := dispatch.NewJob(dispatch.JobKindReconcile, &dispatch.ReconcileJobPayload{EventID: eventID, Raw: raw})
	if err != nil {
		log.Errorw("failed to build reconcile job", "error", err.Error())
		return
	}
	if err := shell.Enqueue(ctx, job); err != nil {
		log.Errorw("failed to enqueue reconcile job", "event_id", eventID, "error", err.Error())
	}
}

// RegisterWebhookRoutes mounts the production path. The test path is mounted
// separately so the server can keep it out of prod builds.
func RegisterWebhookRoutes(r gin.IRouter, o *reconcile.Orchestrator, notifier effectDispatcher, shell *dispatch.Shell, log *zap.SugaredLogger) {
	r.POST("/webhooks/midtrans", ApiMidtransWebhook(o, notifier, shell, log))
}

func RegisterTestWebhookRoutes(r gin.IRouter, o *reconcile.Orchestrator, notifier effectDispatcher, shell *dispatch.Shell, log *zap.SugaredLogger) {
	r.POST("/test/webhook/midtrans", ApiMidtransWebhook(o, notifier, shell, log))
}
