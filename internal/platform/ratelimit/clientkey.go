package ratelimit

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ClientKey builds the limiter key for a caller: the source address followed by
// a short hash of address and User-Agent, so kiosks behind one NAT that run
// different browsers are tracked separately.
func ClientKey(remoteIP, userAgent string) string {
	ip := strings.TrimSpace(remoteIP)
	if ip == "" {
		ip = "unknown"
	}
	sum := xxhash.Sum64String(ip + ":" + userAgent)
	return fmt.Sprintf("%s_%08x", ip, uint32(sum>>32))
}
