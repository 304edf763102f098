package auth

import (
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/config"
)

// Config holds wallet-signature authentication settings.
type Config struct {
	// AppID prefixes the canonical challenge message: "<AppID>-auth:{wallet}:{nonce}".
	AppID string
	// ChallengeTTL is how long an issued nonce stays valid (default: 5m).
	ChallengeTTL time.Duration
	// SweepInterval is how often expired challenges are purged.
	SweepInterval time.Duration
	// NonceRatePerMinute limits challenge issuance per client IP.
	NonceRatePerMinute int
	// EnableAuditLog enables authentication audit logging.
	EnableAuditLog bool
	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the TCP peer is the client.
	TrustedProxies []netip.Prefix
}

// LoadConfig loads auth configuration from environment variables.
func LoadConfig() Config {
	return Config{
		AppID:              config.Getenv("AUTH_APP_ID", "link2pay"),
		ChallengeTTL:       config.GetSeconds("AUTH_CHALLENGE_TTL_SECONDS", 5*time.Minute),
		SweepInterval:      config.GetDuration("AUTH_SWEEP_INTERVAL", 60*time.Second),
		NonceRatePerMinute: config.GetInt("AUTH_NONCE_RATE_PER_MINUTE", 10),
		EnableAuditLog:     config.GetBool("AUTH_ENABLE_AUDIT", true),
		TrustedProxies:     ParseTrustedProxies(config.GetList("AUTH_TRUSTED_PROXIES", nil)),
	}
}

// ParseTrustedProxies accepts CIDR prefixes and bare addresses. Invalid
// entries are logged and skipped.
func ParseTrustedProxies(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if !strings.Contains(e, "/") {
			if addr, err := netip.ParseAddr(e); err == nil {
				out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
				continue
			}
		}
		prefix, err := netip.ParsePrefix(e)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy", "entry", e, "error", err)
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}
