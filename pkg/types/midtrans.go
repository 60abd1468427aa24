package types

type PaymentProvider string

const (
	PaymentProviderMidtrans PaymentProvider = "midtrans"
)

// TransactionStatus is the gateway-reported status carried in a notification.
type TransactionStatus string

const (
	TransactionStatusCapture    TransactionStatus = "capture"
	TransactionStatusSettlement TransactionStatus = "settlement"
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusDeny       TransactionStatus = "deny"
	TransactionStatusCancel     TransactionStatus = "cancel"
	TransactionStatusExpire     TransactionStatus = "expire"
)

func (s TransactionStatus) Known() bool {
	switch s {
	case TransactionStatusCapture, TransactionStatusSettlement, TransactionStatusPending,
		TransactionStatusDeny, TransactionStatusCancel, TransactionStatusExpire:
		return true
	}
	return false
}
