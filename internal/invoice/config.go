package invoice

import (
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/config"
)

// Config holds invoice validation limits and the public checkout settings.
type Config struct {
	MaxLines          int
	MaxDescription    int
	MaxTitle          int
	Currencies        []string
	CreateRatePerHour int
	// FrontendURL prefixes checkout links: {FrontendURL}/pay/{id}.
	FrontendURL string
	// LinkTTL is the default expiry of a payment link.
	LinkTTL     time.Duration
	EnableAudit bool
}

func LoadConfig() Config {
	return Config{
		MaxLines:          config.GetInt("INVOICE_MAX_LINES", 50),
		MaxDescription:    config.GetInt("INVOICE_MAX_DESCRIPTION_LEN", 500),
		MaxTitle:          config.GetInt("INVOICE_MAX_TITLE_LEN", 200),
		Currencies:        config.GetList("INVOICE_CURRENCIES", []string{XLM, USDC, EURC}),
		CreateRatePerHour: config.GetInt("INVOICE_CREATE_RATE_PER_HOUR", 20),
		FrontendURL:       config.Getenv("FRONTEND_URL", "http://localhost:5173"),
		LinkTTL:           config.GetDuration("LINK_DEFAULT_TTL", 15*time.Minute),
		EnableAudit:       config.GetBool("INVOICE_ENABLE_AUDIT", true),
	}
}
