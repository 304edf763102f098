package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// Store is the atomic settlement primitive. Settle must mark the invoice
// PAID and insert the payment in one transaction, failing with
// invoice.ErrAlreadySettled when the transaction hash was already recorded
// and *invoice.InvalidStateTransition when the invoice no longer awaits
// settlement.
type Store interface {
	Settle(ctx context.Context, p invoice.Payment) error
}

// Outcome is the result of a settlement attempt.
type Outcome int

const (
	// Settled means this attempt recorded the payment.
	Settled Outcome = iota + 1
	// Duplicate means the transaction was already recorded.
	Duplicate
	// Rejected means the invoice left the awaiting states first.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Settled:
		return "settled"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Writer is the only path that moves an invoice to PAID.
type Writer struct {
	store    Store
	audit    invoice.AuditRecorder
	alert    AlertHook
	inflight *InFlight
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Writer)

func WithAlertHook(h AlertHook) Option {
	return func(w *Writer) { w.alert = h }
}

func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// NewWriter builds a writer. audit may be nil.
func NewWriter(store Store, audit invoice.AuditRecorder, logger *slog.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:    store,
		audit:    audit,
		inflight: NewInFlight(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.alert == nil {
		w.alert = LogAlert{Logger: logger}
	}
	return w
}

// Settle records op of tx as the payment of inv.
//
// Losing a race to another settlement of the same transaction is not an
// error: the outcome is Duplicate. An invoice that expired or was
// cancelled before the write yields Rejected and fires the alert hook.
// Only infrastructure failures are returned as errors.
func (w *Writer) Settle(ctx context.Context, inv *invoice.Invoice, tx *horizon.TransactionDetails, op horizon.PaymentOp) (Outcome, error) {
	release, waited, err := w.inflight.Acquire(ctx, tx.Hash)
	if err != nil {
		return 0, err
	}
	defer release()
	if waited {
		w.logger.Debug("settlement waited for in-flight attempt", "txHash", tx.Hash)
	}

	paidAt := tx.CreatedAt
	if paidAt.IsZero() {
		paidAt = w.now().UTC()
	}
	payment := invoice.Payment{
		ID:              uuid.NewString(),
		InvoiceID:       inv.ID,
		TransactionHash: tx.Hash,
		LedgerSeq:       tx.Ledger,
		FromWallet:      op.From,
		ToWallet:        op.To,
		Amount:          op.Amount,
		Asset:           op.AssetCode,
		CreatedAt:       paidAt,
	}

	err = w.store.Settle(ctx, payment)
	var ist *invoice.InvalidStateTransition
	switch {
	case err == nil:
		w.logger.Info("invoice settled",
			slog.String("invoiceId", inv.ID),
			slog.String("invoiceNumber", inv.Number),
			slog.String("txHash", tx.Hash),
			slog.Int64("ledger", tx.Ledger),
			slog.String("payer", op.From),
			slog.String("amount", op.Amount.String()),
			slog.String("asset", op.AssetCode),
		)
		w.appendAudit(ctx, inv, invoice.AuditPaid, map[string]any{
			"status":          map[string]invoice.Status{"from": inv.Status, "to": invoice.StatusPaid},
			"transactionHash": tx.Hash,
			"ledger":          tx.Ledger,
			"payer":           op.From,
			"amount":          op.Amount.String(),
			"asset":           op.AssetCode,
		})
		return Settled, nil

	case errors.Is(err, invoice.ErrAlreadySettled):
		w.logger.Debug("settlement already recorded",
			slog.String("invoiceId", inv.ID), slog.String("txHash", tx.Hash))
		return Duplicate, nil

	case errors.As(err, &ist), errors.Is(err, invoice.ErrNotFound):
		status := invoice.Status("")
		if ist != nil {
			status = ist.Current
		}
		r := Rejection{
			InvoiceID:       inv.ID,
			InvoiceNumber:   inv.Number,
			PayeeWallet:     inv.PayeeWallet,
			PayerWallet:     op.From,
			TransactionHash: tx.Hash,
			LedgerSeq:       tx.Ledger,
			Amount:          op.Amount,
			Asset:           op.AssetCode,
			Status:          status,
			ObservedAt:      w.now().UTC(),
		}
		w.alert.SettlementRejected(ctx, r)
		w.appendAudit(ctx, inv, invoice.AuditSettlementRejected, map[string]any{
			"status":          status,
			"transactionHash": tx.Hash,
			"payer":           op.From,
			"amount":          op.Amount.String(),
			"asset":           op.AssetCode,
		})
		return Rejected, nil
	}
	return 0, fmt.Errorf("settle invoice %s: %w", inv.ID, err)
}

func (w *Writer) appendAudit(ctx context.Context, inv *invoice.Invoice, action string, details map[string]any) {
	if w.audit == nil {
		return
	}
	raw, _ := json.Marshal(details)
	entry := invoice.AuditEntry{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		ChainKey:  inv.PayeeWallet,
		Actor:     string(invoice.ActorSettlement),
		Action:    action,
		Details:   string(raw),
		Timestamp: w.now(),
	}
	if _, err := invoice.HashChain(ctx, w.audit, entry); err != nil {
		w.logger.Warn("audit append failed", "invoiceId", inv.ID, "action", action, "error", err)
	}
}
