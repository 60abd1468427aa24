package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusFailed    SubscriptionStatus = "failed"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether no gateway event may move the subscription again.
// A pending subscription is the only non-terminal state from the gateway's
// point of view; active still transitions, but only via internal sweeps.
func (s SubscriptionStatus) Terminal() bool {
	switch s {
	case SubscriptionStatusFailed, SubscriptionStatusCancelled, SubscriptionStatusExpired:
		return true
	}
	return false
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonSettlement    SubscriptionChangeReason = "settlement"
	SubscriptionChangeReasonGatewayFailed SubscriptionChangeReason = "gateway_failed"
	SubscriptionChangeReasonGatewayCancel SubscriptionChangeReason = "gateway_cancel"
	SubscriptionChangeReasonStaleCancel   SubscriptionChangeReason = "stale_cancel"
	SubscriptionChangeReasonExpirySweep   SubscriptionChangeReason = "expiry_sweep"
)

type SubscriptionInfo struct {
	OrderID   string             `json:"order_id"`
	PlanID    string             `json:"plan_id"`
	Status    SubscriptionStatus `json:"status"`
	StartsAt  *time.Time         `json:"starts_at"`
	EndsAt    *time.Time         `json:"ends_at"`
	CreatedAt time.Time          `json:"created_at"`
}
