package watcher

import (
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/config"
)

// Config holds ledger scanner settings.
type Config struct {
	// PollInterval is the fixed delay between ticks (default: 5s).
	PollInterval time.Duration
	// HistoryWindow is how many recent transactions are read per payee.
	HistoryWindow int
	// CallTimeout bounds each ledger call made during a tick.
	CallTimeout time.Duration
	// StrictIssuer also matches the issuing account of non-native assets.
	StrictIssuer bool
}

func LoadConfig() Config {
	return Config{
		PollInterval:  config.GetMillis("WATCHER_POLL_INTERVAL_MS", 5*time.Second),
		HistoryWindow: config.GetInt("WATCHER_HISTORY_WINDOW", 20),
		CallTimeout:   config.GetDuration("WATCHER_CALL_TIMEOUT", 5*time.Second),
		StrictIssuer:  config.GetBool("WATCHER_STRICT_ISSUER", false),
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 20
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	return c
}
