package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/pkg/types"
)

// ErrInvalidSignature rejects a notification whose signature_key does not
// verify against the configured server key.
var ErrInvalidSignature = errors.New("invalid signature")

// MissingFieldsError lists every required field absent from the payload.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Notification is the gateway payload reduced to the fields the pipeline
// consumes. GrossAmount stays the decimal string the gateway serialized;
// parsing it to a float would break signature verification on formatting.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	TransactionTime   string `json:"transaction_time,omitempty"`
}

// ParseNotification extracts and validates the required fields, failing fast
// with the complete missing-field list before anything touches state.
func ParseNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, &MissingFieldsError{Fields: requiredFields}
	}

	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"order_id", n.OrderID},
		{"status_code", n.StatusCode},
		{"gross_amount", n.GrossAmount},
		{"signature_key", n.SignatureKey},
		{"transaction_status", n.TransactionStatus},
		{"transaction_id", n.TransactionID},
		{"payment_type", n.PaymentType},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	return &n, nil
}

var requiredFields = []string{
	"order_id", "status_code", "gross_amount", "signature_key",
	"transaction_status", "transaction_id", "payment_type",
}

// EventID is the ledger idempotency key. The transaction status suffix keeps
// the pending and settlement notifications of one transaction distinct while
// identical redeliveries still collide.
func (n *Notification) EventID() string {
	return n.TransactionID + ":" + n.TransactionStatus
}

func (n *Notification) Event(now time.Time) lifecycle.Event {
	return lifecycle.Event{
		TransactionStatus: types.TransactionStatus(n.TransactionStatus),
		TransactionID:     n.TransactionID,
		PaymentType:       n.PaymentType,
		FraudStatus:       n.FraudStatus,
		At:                now,
	}
}
