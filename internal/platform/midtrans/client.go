package midtrans

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	cfgpkg "github.com/bukukita/billing/pkg/config"
)

const (
	snapBaseURLProd    = "https://app.midtrans.com/snap/v1"
	snapBaseURLSandbox = "https://app.sandbox.midtrans.com/snap/v1"
	coreBaseURLProd    = "https://api.midtrans.com/v2"
	coreBaseURLSandbox = "https://api.sandbox.midtrans.com/v2"
)

// Client wraps the two Midtrans APIs this service talks to: Snap for creating
// checkout transactions and the core API for querying transaction status.
// Authentication is HTTP basic with the server key as username.
type Client struct {
	snap *resty.Client
	core *resty.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Client {
	snapURL, coreURL := snapBaseURLSandbox, coreBaseURLSandbox
	if cfg.Midtrans.IsProd {
		snapURL, coreURL = snapBaseURLProd, coreBaseURLProd
	}
	newClient := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetBasicAuth(cfg.Midtrans.ServerKey, "").
			SetHeader("Accept", "application/json").
			SetTimeout(30 * time.Second)
	}
	return &Client{snap: newClient(snapURL), core: newClient(coreURL), log: log}
}

type SnapTransaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type snapCreateRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	CustomerDetails struct {
		FirstName string `json:"first_name,omitempty"`
		Email     string `json:"email,omitempty"`
	} `json:"customer_details"`
}

// CreateSnapTransaction requests a Snap payment token for a checkout.
func (c *Client) CreateSnapTransaction(ctx context.Context, orderID string, grossAmount int64, customerName, customerEmail string) (*SnapTransaction, error) {
	req := snapCreateRequest{}
	req.TransactionDetails.OrderID = orderID
	req.TransactionDetails.GrossAmount = grossAmount
	req.CustomerDetails.FirstName = customerName
	req.CustomerDetails.Email = customerEmail

	var out SnapTransaction
	resp, err := c.snap.R().
		SetContext(ctx).
		SetBody(&req).
		SetResult(&out).
		Post("/transactions")
	if err != nil {
		return nil, fmt.Errorf("snap create transaction: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("snap create transaction: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Token == "" {
		return nil, fmt.Errorf("snap create transaction: empty token in response")
	}
	return &out, nil
}

// TransactionStatusResponse is the subset of the core API status payload the
// sweeper and admin tooling care about.
type TransactionStatusResponse struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	SignatureKey      string `json:"signature_key"`
}

// ErrTransactionNotFound is returned when the gateway has never seen the
// order, which is the normal case for a checkout the user abandoned before
// picking a payment method.
var ErrTransactionNotFound = fmt.Errorf("midtrans: transaction not found")

// GetTransactionStatus queries the gateway's authoritative view of an order.
func (c *Client) GetTransactionStatus(ctx context.Context, orderID string) (*TransactionStatusResponse, error) {
	var out TransactionStatusResponse
	resp, err := c.core.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/%s/status", orderID))
	if err != nil {
		return nil, fmt.Errorf("query transaction status: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrTransactionNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("query transaction status: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}
