package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/bukukita/billing/pkg/types"
)

// NotificationRecord is one row of the notification ledger: a durable,
// append-only trace of every inbound gateway notification. The unique
// EventID column is what serializes concurrent duplicate deliveries; the
// second writer hits the conflict and takes the already-exists branch.
type NotificationRecord struct {
	ID string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	// EventID is the idempotency key: transaction id + ":" + transaction
	// status. Midtrans reuses one transaction id across the pending to
	// settlement progression, so the status suffix keeps distinct real-world
	// events distinct while identical redeliveries still collide.
	EventID  string                `gorm:"column:event_id;type:varchar(191);not null;uniqueIndex" json:"event_id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(64);not null" json:"provider"`
	OrderID  string                `gorm:"column:order_id;type:varchar(128);not null;index" json:"order_id"`
	TraceID  string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	// RawPayload is the notification body verbatim, for audit and replay.
	RawPayload  datatypes.JSON `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	ReceivedAt  time.Time      `gorm:"column:received_at;not null" json:"received_at"`
	ProcessedAt *time.Time     `gorm:"column:processed_at;default:null" json:"processed_at"`
	// Failed is set only after the dispatch shell exhausts its retry budget.
	Failed    bool    `gorm:"column:failed;not null;default:false" json:"failed"`
	LastError *string `gorm:"column:last_error;type:text;default:null" json:"last_error"`
	// AnomalyNote flags rows acknowledged to the gateway but not applied
	// (unknown order id, illegal transition). They are the dead-letter trail
	// the admin listing surfaces for manual reconciliation.
	AnomalyNote *string   `gorm:"column:anomaly_note;type:varchar(255);default:null" json:"anomaly_note"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (NotificationRecord) TableName() string {
	return "notification_record"
}

func (r *NotificationRecord) Processed() bool {
	return r != nil && r.ProcessedAt != nil
}
