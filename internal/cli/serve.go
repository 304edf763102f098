package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
	"github.com/link2pay/link2pay/apps/api/internal/payment"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoWatcher bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ledger watcher",
		Long: `Serve the invoice, payment link and payment API under /api.

The ledger watcher and the challenge sweeper run in the same process unless
--no-watcher is given, in which case another replica must run "link2pay watch".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoWatcher, "no-watcher", false, "do not start the ledger watcher")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	logger := opts.Logger()
	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	if !opts.NoWatcher {
		if err := a.scanner.Start(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to start watcher", err)
		}
		defer a.scanner.Stop()
	}
	go a.authn.RunSweeper(ctx)

	srv := &http.Server{
		Addr:              a.server.Addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("link2pay api listening", "addr", srv.Addr, "network", a.ledgerC.Network.Name)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server stopped", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "graceful shutdown failed", err)
	}
	return nil
}

// router mounts every API surface. Routes live under /api; /health is also
// served at the root for load balancers.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(auth.ResolveClientIP(a.authC.TrustedProxies))

	r.Get("/health", a.health)
	r.Route("/api", func(r chi.Router) {
		r.Use(limitRequests(auth.NewRateLimiter(a.server.RateLimit, a.server.RateWindow)))
		r.Get("/health", a.health)

		requireWallet := auth.Middleware(a.authn, a.store.AuthAudit(), a.authC, a.logger)
		auth.NewHandler(a.authn, a.store.AuthAudit(),
			auth.NewRateLimiter(a.authC.NonceRatePerMinute, time.Minute), a.authC, a.logger).Mount(r)
		invoice.NewHandler(a.invoices, a.logger).Mount(r, requireWallet)
		payment.NewHandler(a.payments,
			auth.NewRateLimiter(a.payC.IntentRate, a.payC.IntentWindow), a.logger).Mount(r)
	})
	return r
}

type healthView struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Network   string    `json:"network"`
	Version   string    `json:"version"`
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	view := healthView{Status: "ok", Timestamp: time.Now().UTC(), Network: a.ledgerC.Network.Name, Version: Version}
	status := http.StatusOK
	if err := a.store.Ping(ctx); err != nil {
		a.logger.Warn("health check: database unreachable", "error", err)
		view.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(view)
}

func limitRequests(l *auth.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, retryAfter := l.Allow(auth.ClientIP(r)); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(invoice.APIError{
					Code: "RATE_LIMITED", Message: "Too many requests", Retryable: true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// signalContext derives a context that is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
