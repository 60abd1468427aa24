package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/bukukita/billing/pkg/types"
)

// SubscriptionLog records every subscription status change.
// Use case: troubleshooting and daily statistics.
type SubscriptionLog struct {
	ID      string                         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID  string                         `gorm:"column:user_id;type:varchar(64);index:idx_user_id_id,priority:1;not null"`
	OrderID string                         `gorm:"column:order_id;type:varchar(128);index;not null"`
	Reason  types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before/After store the subscription snapshot around the change.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'"`
	After  datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'"`
	// Extra stores additional context such as the triggering event id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
