package models

import (
	"time"

	"github.com/bukukita/billing/pkg/types"
)

// Subscription is the authoritative lifecycle record for one checkout.
// Status and the midtrans_* columns are written only by the reconciliation
// engine and the scheduled sweeps; everything else may read freely.
type Subscription struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	PlanID string `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	// OrderID is the merchant-assigned correlation key; every gateway
	// notification carries it back. One subscription per order id.
	OrderID string                   `gorm:"column:order_id;type:varchar(128);not null;uniqueIndex" json:"order_id"`
	Status  types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	// MidtransTransactionID is set exactly once, on first settlement, and is
	// never overwritten by later duplicate notifications.
	MidtransTransactionID *string `gorm:"column:midtrans_transaction_id;type:varchar(128);default:null" json:"midtrans_transaction_id"`
	PaymentType           *string `gorm:"column:payment_type;type:varchar(64);default:null" json:"payment_type"`
	// FailureReason is set when the gateway denies, cancels or expires the
	// payment before settlement.
	FailureReason *string    `gorm:"column:failure_reason;type:varchar(255);default:null" json:"failure_reason"`
	StartsAt      *time.Time `gorm:"column:starts_at;default:null" json:"starts_at"`
	EndsAt        *time.Time `gorm:"column:ends_at;default:null" json:"ends_at"`
	CancelledAt   *time.Time `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

func (s *Subscription) Valid() bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.EndsAt != nil &&
		s.EndsAt.After(time.Now())
}

func (s *Subscription) Info() *types.SubscriptionInfo {
	if s == nil {
		return nil
	}
	return &types.SubscriptionInfo{
		OrderID:   s.OrderID,
		PlanID:    s.PlanID,
		Status:    s.Status,
		StartsAt:  s.StartsAt,
		EndsAt:    s.EndsAt,
		CreatedAt: s.CreatedAt,
	}
}
