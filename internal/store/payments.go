package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// Settle marks the invoice PAID and records its payment in one transaction.
//
// The UPDATE only matches an invoice still awaiting settlement, and the
// payment INSERT is guarded by the unique transaction_hash index. Losing
// either race on the same transaction yields invoice.ErrAlreadySettled.
// An invoice that left the awaiting set some other way (EXPIRED,
// CANCELLED, or PAID by a different transaction) yields
// *invoice.InvalidStateTransition and nothing is written.
func (s *Store) Settle(ctx context.Context, p invoice.Payment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
			UPDATE invoices SET
				status = ?, transaction_hash = ?, ledger_seq = ?, payer_wallet = ?,
				paid_at = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?) AND deleted_at IS NULL`,
			string(invoice.StatusPaid), p.TransactionHash, p.LedgerSeq, p.FromWallet,
			millis(p.CreatedAt), millis(p.CreatedAt),
			p.InvoiceID, string(invoice.StatusPending), string(invoice.StatusProcessing),
		)
		if err != nil {
			return fmt.Errorf("mark invoice paid: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.settleConflict(ctx, tx, p)
		}

		res, err = s.exec(ctx, tx, `
			INSERT INTO payments
			(id, invoice_id, transaction_hash, ledger_seq, from_wallet, to_wallet, amount, asset, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (transaction_hash) DO NOTHING`,
			p.ID, p.InvoiceID, p.TransactionHash, p.LedgerSeq, p.FromWallet, p.ToWallet,
			p.Amount, p.Asset, millis(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return invoice.ErrAlreadySettled
		}
		return nil
	})
}

func (s *Store) settleConflict(ctx context.Context, tx *sql.Tx, p invoice.Payment) error {
	var status, hash string
	err := s.queryRow(ctx, tx,
		`SELECT status, transaction_hash FROM invoices WHERE id = ? AND deleted_at IS NULL`,
		p.InvoiceID).Scan(&status, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return invoice.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read invoice status: %w", err)
	}
	if invoice.Status(status) == invoice.StatusPaid && hash == p.TransactionHash {
		return invoice.ErrAlreadySettled
	}
	return &invoice.InvalidStateTransition{Current: invoice.Status(status), Requested: invoice.StatusPaid}
}

// PaymentExists reports whether a payment was recorded for hash.
func (s *Store) PaymentExists(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.queryRow(ctx, s.db,
		`SELECT COUNT(*) FROM payments WHERE transaction_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	return n > 0, nil
}

const paymentColumns = `id, invoice_id, transaction_hash, ledger_seq, from_wallet, to_wallet, amount, asset, created_at`

func scanPayment(row rowScanner) (invoice.Payment, error) {
	var (
		p         invoice.Payment
		createdAt int64
	)
	err := row.Scan(&p.ID, &p.InvoiceID, &p.TransactionHash, &p.LedgerSeq,
		&p.FromWallet, &p.ToWallet, &p.Amount, &p.Asset, &createdAt)
	p.CreatedAt = fromMillis(createdAt)
	return p, err
}

// PaymentByHash returns the payment recorded for hash.
func (s *Store) PaymentByHash(ctx context.Context, hash string) (invoice.Payment, error) {
	p, err := scanPayment(s.queryRow(ctx, s.db,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return p, invoice.ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ListPayments returns the payments recorded against an invoice, oldest first.
func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]invoice.Payment, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+paymentColumns+` FROM payments WHERE invoice_id = ? ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	out := []invoice.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
