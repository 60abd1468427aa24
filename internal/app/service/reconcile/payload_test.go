package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bukukita/billing/pkg/types"
)

func TestParseNotification_Complete(t *testing.T) {
	raw := []byte(`{
		"order_id": "SUB-1-2-123",
		"status_code": "200",
		"gross_amount": "10000.00",
		"signature_key": "abc",
		"transaction_status": "settlement",
		"transaction_id": "mid-tx-1",
		"payment_type": "qris",
		"fraud_status": "accept"
	}`)
	n, err := ParseNotification(raw)
	require.NoError(t, err)
	require.Equal(t, "SUB-1-2-123", n.OrderID)
	require.Equal(t, "10000.00", n.GrossAmount)
	require.Equal(t, "mid-tx-1:settlement", n.EventID())

	ev := n.Event(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, types.TransactionStatusSettlement, ev.TransactionStatus)
	require.Equal(t, "qris", ev.PaymentType)
}

func TestParseNotification_ListsEveryMissingField(t *testing.T) {
	n, err := ParseNotification([]byte(`{"order_id":"x"}`))
	require.Nil(t, n)
	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	require.Equal(t, []string{
		"status_code", "gross_amount", "signature_key",
		"transaction_status", "transaction_id", "payment_type",
	}, mf.Fields)
}

func TestParseNotification_MalformedJSON(t *testing.T) {
	_, err := ParseNotification([]byte(`{not json`))
	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	require.Len(t, mf.Fields, 7)
}

func TestEventID_DistinguishesStatusProgression(t *testing.T) {
	pending := &Notification{TransactionID: "mid-tx-1", TransactionStatus: "pending"}
	settlement := &Notification{TransactionID: "mid-tx-1", TransactionStatus: "settlement"}
	require.NotEqual(t, pending.EventID(), settlement.EventID())
}
