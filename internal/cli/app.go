package cli

import (
	"log/slog"
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
	"github.com/link2pay/link2pay/apps/api/internal/config"
	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
	"github.com/link2pay/link2pay/apps/api/internal/payment"
	"github.com/link2pay/link2pay/apps/api/internal/settlement"
	"github.com/link2pay/link2pay/apps/api/internal/store"
	"github.com/link2pay/link2pay/apps/api/internal/watcher"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	// RateLimit caps requests per client IP per RateWindow across /api.
	RateLimit  int
	RateWindow time.Duration
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":" + config.Getenv("PORT", "8080"),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RateLimit:       config.GetInt("API_RATE_LIMIT", 100),
		RateWindow:      config.GetDuration("API_RATE_WINDOW", 15*time.Minute),
	}
}

// app is the wired set of components behind every command.
type app struct {
	logger *slog.Logger

	server  ServerConfig
	ledgerC horizon.Config
	authC   auth.Config
	payC    payment.Config

	store    *store.Store
	ledger   *horizon.Client
	writer   *settlement.Writer
	sweeper  *watcher.Sweeper
	scanner  *watcher.Scanner
	authn    *auth.Authenticator
	invoices *invoice.Service
	payments *payment.Service
}

// newApp loads configuration from the environment and opens the store.
// The caller owns app.close.
func newApp(logger *slog.Logger) (*app, error) {
	ledgerC, err := horizon.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid ledger configuration", err)
	}
	st, err := store.LoadConfig().Open()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return wire(logger, st, ledgerC), nil
}

func wire(logger *slog.Logger, st *store.Store, ledgerC horizon.Config) *app {
	a := &app{
		logger:  logger,
		server:  loadServerConfig(),
		ledgerC: ledgerC,
		authC:   auth.LoadConfig(),
		payC:    payment.LoadConfig(),
		store:   st,
	}
	a.ledger = horizon.NewClient(ledgerC, horizon.WithLogger(logger))
	a.writer = settlement.NewWriter(st, st.Audit(), logger)
	a.sweeper = watcher.NewSweeper(st, st.Audit(), logger)

	watchC := watcher.LoadConfig()
	matcher := settlement.Matcher{StrictIssuer: watchC.StrictIssuer, Issuer: ledgerC.Issuer}
	a.scanner = watcher.NewScanner(watchC, st, a.ledger, a.sweeper, a.writer, matcher, logger)

	a.authn = auth.NewAuthenticator(st.Challenges(), a.authC, logger)

	invC := invoice.LoadConfig()
	a.invoices = invoice.NewService(invC, st, st.Audit(), logger,
		invoice.WithRateLimiter(auth.NewRateLimiter(invC.CreateRatePerHour, time.Hour)))
	a.payments = payment.NewService(a.payC, ledgerC, st, a.ledger, a.writer, matcher, logger,
		payment.WithAudit(st.Audit()))
	return a
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
