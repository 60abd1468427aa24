package signature

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	cfgpkg "github.com/bukukita/billing/pkg/config"
)

// Verifier checks that a notification was produced by Midtrans. The gateway
// signs each notification as hex(sha512(order_id + status_code + gross_amount
// + server_key)); gross_amount is compared as the decimal string the gateway
// serialized, never parsed to a float.
type Verifier struct {
	serverKey string
}

func NewVerifier(cfg *cfgpkg.Config) *Verifier {
	return &Verifier{serverKey: cfg.Midtrans.ServerKey}
}

// Verify returns true only for an authentic signature. A missing field or an
// unconfigured server key fails closed.
func (v *Verifier) Verify(orderID, statusCode, grossAmount, signatureKey string) bool {
	if v.serverKey == "" {
		return false
	}
	if orderID == "" || statusCode == "" || grossAmount == "" || signatureKey == "" {
		return false
	}

	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + v.serverKey))
	expected := hex.EncodeToString(sum[:])

	// Signatures are hex, so case-fold before the constant-time compare.
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signatureKey))) == 1
}
