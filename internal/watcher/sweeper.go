package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// ExpiryStore expires overdue invoices in one atomic update-many.
type ExpiryStore interface {
	ExpireOverdue(ctx context.Context, now time.Time) ([]invoice.Invoice, error)
}

// Sweeper moves overdue PENDING and PROCESSING invoices to EXPIRED.
// A sweep is idempotent and safe to run from several replicas at once.
type Sweeper struct {
	store  ExpiryStore
	audit  invoice.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

type SweeperOption func(*Sweeper)

func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(store ExpiryStore, audit invoice.AuditRecorder, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{store: store, audit: audit, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep expires every invoice whose due date has passed and returns how many moved.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expiry sweep: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	s.logger.Info("expired overdue invoices", "count", len(expired))

	if s.audit != nil {
		details, _ := json.Marshal(map[string]any{"status": map[string]string{"to": string(invoice.StatusExpired)}})
		for _, inv := range expired {
			entry := invoice.AuditEntry{
				ID:        uuid.NewString(),
				InvoiceID: inv.ID,
				ChainKey:  inv.PayeeWallet,
				Actor:     string(invoice.ActorSweeper),
				Action:    invoice.AuditExpired,
				Details:   string(details),
				Timestamp: s.now(),
			}
			if _, err := invoice.HashChain(ctx, s.audit, entry); err != nil {
				s.logger.Warn("audit append failed", "invoiceId", inv.ID, "action", invoice.AuditExpired, "error", err)
			}
		}
	}
	return len(expired), nil
}
