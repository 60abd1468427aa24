package signature

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/bukukita/billing/pkg/config"
)

func sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func newVerifier(serverKey string) *Verifier {
	cfg := &cfgpkg.Config{}
	cfg.Midtrans.ServerKey = serverKey
	return NewVerifier(cfg)
}

func TestVerify_AcceptsValidSignature(t *testing.T) {
	v := newVerifier("SB-server-key")
	sig := sign("SUB-1-2-123", "200", "10000.00", "SB-server-key")
	require.True(t, v.Verify("SUB-1-2-123", "200", "10000.00", sig))
}

func TestVerify_AcceptsUppercaseHex(t *testing.T) {
	v := newVerifier("SB-server-key")
	sig := strings.ToUpper(sign("SUB-1-2-123", "200", "10000.00", "SB-server-key"))
	require.True(t, v.Verify("SUB-1-2-123", "200", "10000.00", sig))
}

func TestVerify_RejectsTamperedFields(t *testing.T) {
	v := newVerifier("SB-server-key")
	sig := sign("SUB-1-2-123", "200", "10000.00", "SB-server-key")

	cases := []struct {
		name                             string
		orderID, statusCode, grossAmount string
	}{
		{"wrong order id", "SUB-9-9-999", "200", "10000.00"},
		{"wrong status code", "SUB-1-2-123", "201", "10000.00"},
		{"wrong gross amount", "SUB-1-2-123", "200", "99999.00"},
		// The gateway serializes "10000.00"; a numerically equal but
		// differently formatted amount must not verify.
		{"reformatted gross amount", "SUB-1-2-123", "200", "10000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.False(t, v.Verify(tc.orderID, tc.statusCode, tc.grossAmount, sig))
		})
	}
}

func TestVerify_RejectsTamperedSignature(t *testing.T) {
	v := newVerifier("SB-server-key")
	sig := sign("SUB-1-2-123", "200", "10000.00", "SB-server-key")
	tampered := "0" + sig[1:]
	if tampered == sig {
		tampered = "1" + sig[1:]
	}
	require.False(t, v.Verify("SUB-1-2-123", "200", "10000.00", tampered))
}

func TestVerify_FailsClosedWithoutServerKey(t *testing.T) {
	v := newVerifier("")
	// Even a signature computed over an empty key must not pass.
	sig := sign("SUB-1-2-123", "200", "10000.00", "")
	require.False(t, v.Verify("SUB-1-2-123", "200", "10000.00", sig))
}

func TestVerify_RejectsMissingFields(t *testing.T) {
	v := newVerifier("SB-server-key")
	sig := sign("SUB-1-2-123", "200", "10000.00", "SB-server-key")
	require.False(t, v.Verify("", "200", "10000.00", sig))
	require.False(t, v.Verify("SUB-1-2-123", "", "10000.00", sig))
	require.False(t, v.Verify("SUB-1-2-123", "200", "", sig))
	require.False(t, v.Verify("SUB-1-2-123", "200", "10000.00", ""))
}
