package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/api/middleware"
	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/ledger"
	"github.com/bukukita/billing/internal/app/service/statistics"
	"github.com/bukukita/billing/pkg/logctx"
	"github.com/bukukita/billing/pkg/response"
)

// @Summary      List Notifications (Admin)
// @Description  Paginated, filterable listing of the notification ledger, including anomaly and failed rows.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ledger.ScanRequest true "Scan request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListNotifications
// @Router       /api/v1/admin/list_notifications [post]
func ApiListNotifications(lg *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ledger.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := lg.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type ReplayNotificationRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

// @Summary      Replay Notification (Admin)
// @Description  Re-enqueues a stored notification payload through the reconciliation pipeline.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ReplayNotificationRequest true "Replay request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/replay_notification [post]
func ApiReplayNotification(lg *ledger.Service, shell jobEnqueuer, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReplayNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		rec, err := lg.Get(c.Request.Context(), req.EventID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}

		job, err := dispatch.NewJob(dispatch.JobKindReconcile, &dispatch.ReconcileJobPayload{
			EventID: rec.EventID,
			Raw:     []byte(rec.RawPayload),
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if err := shell.Enqueue(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		logctx.FromGin(c, log).Infow("notification replay enqueued",
			"event_id", rec.EventID, "operator", middleware.AdminSubject(c))
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Get Subscription Statistics (Admin)
// @Description  Retrieves daily subscription lifecycle statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.SubscriptionStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespSubscriptionStatistic
// @Router       /api/v1/admin/get_subscription_statistic [post]
func ApiGetSubscriptionStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.SubscriptionStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetSubscriptionStatistics(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, lg *ledger.Service, shell *dispatch.Shell, stats *statistics.Service, log *zap.SugaredLogger) {
	r.POST("/list_notifications", ApiListNotifications(lg))
	r.POST("/replay_notification", ApiReplayNotification(lg, shell, log))
	r.POST("/get_subscription_statistic", ApiGetSubscriptionStatistic(stats))
}
