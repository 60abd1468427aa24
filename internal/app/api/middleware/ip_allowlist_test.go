package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bukukita/billing/pkg/config"
)

func allowlistRouter(enabled bool, allowed []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Midtrans.EnableIPAllowlist = enabled
	cfg.Midtrans.AllowedIPs = allowed

	r := gin.New()
	r.POST("/webhooks/midtrans", WebhookIPAllowlist(cfg, zap.NewNop().Sugar()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func postFrom(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/midtrans", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookIPAllowlist_DisabledPassesEverything(t *testing.T) {
	r := allowlistRouter(false, nil)
	require.Equal(t, http.StatusOK, postFrom(r, "203.0.113.7:4711").Code)
}

func TestWebhookIPAllowlist_AllowsListedIP(t *testing.T) {
	r := allowlistRouter(true, []string{"203.0.113.7"})
	require.Equal(t, http.StatusOK, postFrom(r, "203.0.113.7:4711").Code)
}

func TestWebhookIPAllowlist_AllowsCIDRRange(t *testing.T) {
	r := allowlistRouter(true, []string{"203.0.113.0/24"})
	require.Equal(t, http.StatusOK, postFrom(r, "203.0.113.200:4711").Code)
}

func TestWebhookIPAllowlist_RejectsUnlistedIP(t *testing.T) {
	r := allowlistRouter(true, []string{"203.0.113.0/24"})
	require.Equal(t, http.StatusForbidden, postFrom(r, "198.51.100.9:4711").Code)
}

func TestWebhookIPAllowlist_MalformedEntryIgnored(t *testing.T) {
	r := allowlistRouter(true, []string{"not-an-ip", "203.0.113.7"})
	require.Equal(t, http.StatusOK, postFrom(r, "203.0.113.7:4711").Code)
	require.Equal(t, http.StatusForbidden, postFrom(r, "198.51.100.9:4711").Code)
}
