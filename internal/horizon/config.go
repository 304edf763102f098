package horizon

import (
	"fmt"
	"strings"
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/config"
)

const (
	Testnet = "testnet"
	Mainnet = "mainnet"
)

// Network holds the per-network ledger constants.
type Network struct {
	Name       string
	HorizonURL string
	Passphrase string
	// Issuers maps an asset code to its issuing account.
	Issuers map[string]string
}

var networks = map[string]Network{
	Testnet: {
		Name:       Testnet,
		HorizonURL: "https://horizon-testnet.stellar.org",
		Passphrase: "Test SDF Network ; September 2015",
		Issuers: map[string]string{
			"USDC": "GBBD47IF6LWK7P7MDEVSCWR7DPUWV3NY3DTQEVFL4NAT4AQH3ZLLFLA5",
			"EURC": "GDHU6WRG4IEQXM5NZ4BMPKOXHW76MZM4Y2IEMFDVXBSDP6SJY4ITNPP2",
		},
	},
	Mainnet: {
		Name:       Mainnet,
		HorizonURL: "https://horizon.stellar.org",
		Passphrase: "Public Global Stellar Network ; September 2015",
		Issuers: map[string]string{
			"USDC": "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN",
			"EURC": "GDHU6WRG4IEQXM5NZ4BMPKOXHW76MZM4Y2IEMFDVXBSDP6SJY4ITNPP2",
		},
	},
}

// LookupNetwork returns the constants for name. "public" is accepted as an
// alias of mainnet.
func LookupNetwork(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "public" {
		name = Mainnet
	}
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown stellar network %q", name)
	}
	issuers := make(map[string]string, len(n.Issuers))
	for k, v := range n.Issuers {
		issuers[k] = v
	}
	n.Issuers = issuers
	return n, nil
}

// Config holds the ledger client settings.
type Config struct {
	Network Network
	// Timeout bounds a single HTTP request (default: 10s).
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for reads on 429/5xx.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
}

// Issuer returns the configured issuer for an asset code, or "" for native XLM.
func (c Config) Issuer(code string) string {
	return c.Network.Issuers[strings.ToUpper(code)]
}

// LoadConfig loads ledger configuration from environment variables.
func LoadConfig() (Config, error) {
	n, err := LookupNetwork(config.Getenv("STELLAR_NETWORK", Testnet))
	if err != nil {
		return Config{}, err
	}
	n.HorizonURL = strings.TrimRight(config.Getenv("HORIZON_URL", n.HorizonURL), "/")
	n.Passphrase = config.Getenv("NETWORK_PASSPHRASE", n.Passphrase)
	n.Issuers["USDC"] = config.Getenv("USDC_ISSUER", n.Issuers["USDC"])
	n.Issuers["EURC"] = config.Getenv("EURC_ISSUER", n.Issuers["EURC"])

	return Config{
		Network:        n,
		Timeout:        config.GetDuration("HORIZON_TIMEOUT", 10*time.Second),
		MaxRetries:     config.GetInt("HORIZON_MAX_RETRIES", 2),
		RetryBaseDelay: config.GetDuration("HORIZON_RETRY_BASE_DELAY", 500*time.Millisecond),
	}, nil
}
