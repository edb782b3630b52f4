package requestip

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// FromCtx resolves the originating client address behind common proxy
// setups. Every consumer of per-IP state must key on this one derivation,
// otherwise counters and block flags end up under different addresses.
func FromCtx(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	ip := c.IP()
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}
