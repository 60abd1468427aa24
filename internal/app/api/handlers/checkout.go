package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	subsvc "github.com/bukukita/billing/internal/app/service/subscription"
	"github.com/bukukita/billing/pkg/response"
)

type CreateSubscriptionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

type CreateSubscriptionResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	SnapToken   string `json:"snap_token"`
	RedirectURL string `json:"redirect_url"`
}

// @Summary      Create Subscription Checkout
// @Description  Creates a pending subscription and returns the Snap token for the payment page.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body CreateSubscriptionRequest true "Checkout request"
// @Success      200  {object}  handlers.RespCreateSubscription
// @Router       /api/v1/subscriptions [post]
func ApiCreateSubscription(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := sub.Checkout(c.Request.Context(), req.UserID, req.PlanID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CreateSubscriptionResponse{
			OrderID:     res.Subscription.OrderID,
			Status:      string(res.Subscription.Status),
			PlanID:      res.Plan.ID,
			SnapToken:   res.SnapToken,
			RedirectURL: res.RedirectURL,
		}))
	}
}

// @Summary      Get Subscription
// @Description  Returns the subscription lifecycle view for one order id.
// @Tags         Subscription
// @Produce      json
// @Param        order_id path string true "Order ID"
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscriptions/{order_id} [get]
func ApiGetSubscription(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		s, err := sub.FindByOrderID(c.Request.Context(), orderID)
		if err != nil {
			if errors.Is(err, subsvc.ErrNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(s.Info()))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, sub *subsvc.Service) {
	r.POST("/subscriptions", ApiCreateSubscription(sub))
	r.GET("/subscriptions/:order_id", ApiGetSubscription(sub))
}
