package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bukukita/billing/pkg/config"
	"github.com/bukukita/billing/pkg/logctx"
)

// WebhookIPAllowlist rejects webhook calls from outside the gateway's
// published notification IP ranges. Signature verification is the real
// authenticity check; the allowlist is an optional extra and ships disabled.
// Entries may be plain IPs or CIDR blocks.
func WebhookIPAllowlist(cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	if !cfg.Midtrans.EnableIPAllowlist {
		return func(c *gin.Context) { c.Next() }
	}

	var nets []*net.IPNet
	var ips []net.IP
	for _, entry := range cfg.Midtrans.AllowedIPs {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
			continue
		}
		log.Warnw("ignoring malformed allowlist entry", "entry", entry)
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip != nil && allowed(ip, ips, nets) {
			c.Next()
			return
		}
		logctx.FromGin(c, log).Warnw("webhook rejected by ip allowlist", "client_ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

func allowed(ip net.IP, ips []net.IP, nets []*net.IPNet) bool {
	for _, a := range ips {
		if a.Equal(ip) {
			return true
		}
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
