package middleware

import (
	"net"
	"strings"

	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ClientAddress resolves the caller from the proxy headers, taking the first
// hop of a list, and falls back to the socket address. Values that do not
// parse as an IP are skipped. Headers from a peer outside the configured
// trusted proxies are ignored.
//
// The result is a copy; it is used as a block key after the request ends.
func ClientAddress(c *fiber.Ctx) string {
	if c.IsProxyTrusted() {
		for _, header := range common.ClientAddressHeaders {
			value := c.Get(header)
			if value == "" {
				continue
			}
			first, _, _ := strings.Cut(value, ",")
			ip := strings.TrimSpace(first)
			if net.ParseIP(ip) != nil {
				return utils.CopyString(ip)
			}
		}
	}
	return utils.CopyString(strings.TrimSpace(c.IP()))
}
