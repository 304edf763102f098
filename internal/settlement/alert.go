package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// Rejection describes funds that moved on the ledger for an invoice that
// could no longer be marked PAID. It needs manual reconciliation.
type Rejection struct {
	InvoiceID       string
	InvoiceNumber   string
	PayeeWallet     string
	PayerWallet     string
	TransactionHash string
	LedgerSeq       int64
	Amount          decimal.Decimal
	Asset           string
	Status          invoice.Status
	ObservedAt      time.Time
}

// AlertHook is notified of every rejected settlement. It must not block
// for long; the scanner calls it inline.
type AlertHook interface {
	SettlementRejected(ctx context.Context, r Rejection)
}

// AlertFunc adapts a function to AlertHook.
type AlertFunc func(ctx context.Context, r Rejection)

func (f AlertFunc) SettlementRejected(ctx context.Context, r Rejection) { f(ctx, r) }

// LogAlert reports rejections at error level.
type LogAlert struct {
	Logger *slog.Logger
}

func (a LogAlert) SettlementRejected(ctx context.Context, r Rejection) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "payment received for invoice that cannot be settled; manual reconciliation required",
		slog.String("invoiceId", r.InvoiceID),
		slog.String("invoiceNumber", r.InvoiceNumber),
		slog.String("status", string(r.Status)),
		slog.String("txHash", r.TransactionHash),
		slog.Int64("ledger", r.LedgerSeq),
		slog.String("payer", r.PayerWallet),
		slog.String("amount", r.Amount.String()),
		slog.String("asset", r.Asset),
	)
}
