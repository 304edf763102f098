package payment

import (
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/config"
)

type Config struct {
	// TxTimeout is the validity window advertised to the payer's wallet.
	TxTimeout time.Duration
	// IntentRate limits pay-intent requests per client IP per IntentWindow.
	IntentRate   int
	IntentWindow time.Duration
}

func LoadConfig() Config {
	return Config{
		TxTimeout:    config.GetSeconds("PAYMENT_TX_TIMEOUT_SECONDS", 300*time.Second),
		IntentRate:   config.GetInt("PAY_INTENT_RATE", 10),
		IntentWindow: config.GetDuration("PAY_INTENT_WINDOW", 5*time.Minute),
	}
}

func (c Config) withDefaults() Config {
	if c.TxTimeout <= 0 {
		c.TxTimeout = 300 * time.Second
	}
	return c
}
