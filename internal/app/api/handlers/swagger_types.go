package handlers

import (
	"time"

	"github.com/bukukita/billing/internal/app/service/statistics"
	"github.com/bukukita/billing/pkg/response"
	"github.com/bukukita/billing/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespCreateSubscription wraps CreateSubscriptionResponse in the standard envelope.
type RespCreateSubscription struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    CreateSubscriptionResponse `json:"data"`
}

// RespSubscriptionInfo wraps the subscription read view in the standard envelope.
type RespSubscriptionInfo struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.SubscriptionInfo   `json:"data"`
}

// RespListNotifications wraps the ledger scan result in the standard envelope.
type RespListNotifications struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    ListNotificationsSwaggerRow `json:"data"`
}

// ListNotificationsSwaggerRow is a simplified view of a ledger row for documentation purposes.
type ListNotificationsSwaggerRow struct {
	ID          string                `json:"id"`
	EventID     string                `json:"event_id"`
	Provider    types.PaymentProvider `json:"provider"`
	OrderID     string                `json:"order_id"`
	ReceivedAt  time.Time             `json:"received_at"`
	ProcessedAt *time.Time            `json:"processed_at"`
	Failed      bool                  `json:"failed"`
	LastError   *string               `json:"last_error"`
	AnomalyNote *string               `json:"anomaly_note"`
}

// RespSubscriptionStatistic wraps SubscriptionStatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    statistics.SubscriptionStatisticResponse `json:"data"`
}
