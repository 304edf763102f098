package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

const invoiceColumns = `id, invoice_number, status, payee_wallet, payee_name, payee_email, payee_company,
	client_name, client_email, client_company, client_address, title, description, notes,
	currency, subtotal, tax_rate, tax_amount, discount, total, due_date,
	transaction_hash, ledger_seq, payer_wallet, paid_at, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (invoice.Invoice, error) {
	var (
		inv                        invoice.Invoice
		status                     string
		dueDate, paidAt, deletedAt sql.NullInt64
		createdAt, updatedAt       int64
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &status, &inv.PayeeWallet, &inv.PayeeName, &inv.PayeeEmail, &inv.PayeeCompany,
		&inv.ClientName, &inv.ClientEmail, &inv.ClientCompany, &inv.ClientAddress, &inv.Title, &inv.Description, &inv.Notes,
		&inv.Currency, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Discount, &inv.Total, &dueDate,
		&inv.TransactionHash, &inv.LedgerSeq, &inv.PayerWallet, &paidAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return inv, err
	}
	inv.Status = invoice.Status(status)
	inv.DueDate = fromNullMillis(dueDate)
	inv.PaidAt = fromNullMillis(paidAt)
	inv.DeletedAt = fromNullMillis(deletedAt)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return inv, nil
}

// nextInvoiceNumber allocates the next INV-<n> number inside tx.
func (s *Store) nextInvoiceNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	var n int64
	err := s.queryRow(ctx, tx,
		`UPDATE counters SET value = value + 1 WHERE name = 'invoice_number' RETURNING value`).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("allocate invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%d", n), nil
}

// CreateInvoice inserts inv with its line items. An empty Number is
// allocated from the invoice counter.
func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if inv.Number == "" {
			number, err := s.nextInvoiceNumber(ctx, tx)
			if err != nil {
				return err
			}
			inv.Number = number
		}
		_, err := s.exec(ctx, tx, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.Number, string(inv.Status), inv.PayeeWallet, inv.PayeeName, inv.PayeeEmail, inv.PayeeCompany,
			inv.ClientName, inv.ClientEmail, inv.ClientCompany, inv.ClientAddress, inv.Title, inv.Description, inv.Notes,
			inv.Currency, inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Discount, inv.Total, nullMillis(inv.DueDate),
			inv.TransactionHash, inv.LedgerSeq, inv.PayerWallet, nullMillis(inv.PaidAt),
			millis(inv.CreatedAt), millis(inv.UpdatedAt), nullMillis(inv.DeletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		return s.insertLines(ctx, tx, inv.ID, inv.Lines)
	})
}

func (s *Store) insertLines(ctx context.Context, tx *sql.Tx, invoiceID string, lines []invoice.LineItem) error {
	for i, l := range lines {
		_, err := s.exec(ctx, tx, `
			INSERT INTO line_items (invoice_id, position, description, quantity, rate, amount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			invoiceID, i, l.Description, l.Quantity, l.Rate, l.Amount)
		if err != nil {
			return fmt.Errorf("insert line item %d: %w", i, err)
		}
	}
	return nil
}

// GetInvoice returns a live invoice with its line items.
// Soft-deleted invoices are reported as invoice.ErrNotFound.
func (s *Store) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := scanInvoice(s.queryRow(ctx, s.db,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	lines, err := s.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

func (s *Store) lines(ctx context.Context, invoiceID string) ([]invoice.LineItem, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT description, quantity, rate, amount FROM line_items
		WHERE invoice_id = ? ORDER BY position`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	out := []invoice.LineItem{}
	for rows.Next() {
		var l invoice.LineItem
		if err := rows.Scan(&l.Description, &l.Quantity, &l.Rate, &l.Amount); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateDraft rewrites the editable fields and line items of a DRAFT invoice.
// Any other status yields invoice.ErrImmutable.
func (s *Store) UpdateDraft(ctx context.Context, inv *invoice.Invoice) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
			UPDATE invoices SET
				client_name = ?, client_email = ?, client_company = ?, client_address = ?,
				title = ?, description = ?, notes = ?, currency = ?,
				subtotal = ?, tax_rate = ?, tax_amount = ?, discount = ?, total = ?,
				due_date = ?, updated_at = ?
			WHERE id = ? AND status = ? AND deleted_at IS NULL`,
			inv.ClientName, inv.ClientEmail, inv.ClientCompany, inv.ClientAddress,
			inv.Title, inv.Description, inv.Notes, inv.Currency,
			inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Discount, inv.Total,
			nullMillis(inv.DueDate), millis(inv.UpdatedAt),
			inv.ID, string(invoice.StatusDraft),
		)
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := s.currentStatus(ctx, tx, inv.ID); err != nil {
				return err
			}
			return invoice.ErrImmutable
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM line_items WHERE invoice_id = ?`, inv.ID); err != nil {
			return fmt.Errorf("delete line items: %w", err)
		}
		return s.insertLines(ctx, tx, inv.ID, inv.Lines)
	})
}

// TransitionInvoice moves id to status to, but only while its stored
// status is one of from. A lost race is reported as
// *invoice.InvalidStateTransition naming the status that won.
func (s *Store) TransitionInvoice(ctx context.Context, id string, to invoice.Status, from ...invoice.Status) error {
	if len(from) == 0 {
		return fmt.Errorf("transition invoice: no source status")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{string(to), millis(s.now()), id}
		for _, f := range from {
			args = append(args, string(f))
		}
		res, err := s.exec(ctx, tx, `
			UPDATE invoices SET status = ?, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL AND status IN (`+placeholders(len(from))+`)`,
			args...)
		if err != nil {
			return fmt.Errorf("transition invoice: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		cur, err := s.currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		return &invoice.InvalidStateTransition{Current: cur, Requested: to}
	})
}

// SoftDeleteInvoice hides a DRAFT invoice from every read path.
func (s *Store) SoftDeleteInvoice(ctx context.Context, id string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
			UPDATE invoices SET deleted_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND deleted_at IS NULL`,
			millis(at), millis(at), id, string(invoice.StatusDraft))
		if err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		cur, err := s.currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		return &invoice.InvalidStateTransition{Current: cur, Requested: invoice.StatusDeleted}
	})
}

func (s *Store) currentStatus(ctx context.Context, e execer, id string) (invoice.Status, error) {
	var status string
	err := s.queryRow(ctx, e, `SELECT status FROM invoices WHERE id = ? AND deleted_at IS NULL`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", invoice.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read invoice status: %w", err)
	}
	return invoice.Status(status), nil
}

// ListInvoices returns a page of a payee's invoices, newest first, and the
// total count matching the filter.
func (s *Store) ListInvoices(ctx context.Context, f invoice.ListFilter) ([]invoice.Invoice, int, error) {
	where := `payee_wallet = ? AND deleted_at IS NULL`
	args := []any{f.PayeeWallet}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(f.Status))
	}

	var total int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM invoices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page, err := s.scanInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where+
			` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	// Lines are loaded after the page cursor is closed; SQLite runs on one connection.
	for i := range page {
		if page[i].Lines, err = s.lines(ctx, page[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return page, total, nil
}

// ListAwaitingSettlement returns every live invoice in PENDING or
// PROCESSING, oldest first. Line items are not loaded.
func (s *Store) ListAwaitingSettlement(ctx context.Context) ([]invoice.Invoice, error) {
	return s.scanInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN (?, ?) AND deleted_at IS NULL
		ORDER BY created_at, id`,
		string(invoice.StatusPending), string(invoice.StatusProcessing))
}

func (s *Store) scanInvoices(ctx context.Context, query string, args ...any) ([]invoice.Invoice, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	out := []invoice.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ExpireOverdue moves every PENDING or PROCESSING invoice whose due date is
// before now to EXPIRED in one statement and returns the expired invoices
// (id, number and payee only). Invoices without a due date never expire.
// Re-running the sweep is a no-op.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) ([]invoice.Invoice, error) {
	rows, err := s.query(ctx, s.db, `
		UPDATE invoices SET status = ?, updated_at = ?
		WHERE status IN (?, ?) AND deleted_at IS NULL
			AND due_date IS NOT NULL AND due_date < ?
		RETURNING id, invoice_number, payee_wallet`,
		string(invoice.StatusExpired), millis(now),
		string(invoice.StatusPending), string(invoice.StatusProcessing), millis(now))
	if err != nil {
		return nil, fmt.Errorf("expire overdue invoices: %w", err)
	}
	defer rows.Close()

	var out []invoice.Invoice
	for rows.Next() {
		inv := invoice.Invoice{Status: invoice.StatusExpired}
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.PayeeWallet); err != nil {
			return nil, fmt.Errorf("scan expired invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// InvoiceStats aggregates a payee's live invoices. Amounts are summed per
// currency with decimal arithmetic.
func (s *Store) InvoiceStats(ctx context.Context, wallet string) (invoice.Stats, error) {
	stats := invoice.Stats{
		ByStatus:      map[invoice.Status]int{},
		Revenue:       map[string]decimal.Decimal{},
		PendingAmount: map[string]decimal.Decimal{},
	}
	rows, err := s.query(ctx, s.db, `
		SELECT status, currency, total FROM invoices
		WHERE payee_wallet = ? AND deleted_at IS NULL`, wallet)
	if err != nil {
		return stats, fmt.Errorf("query invoice stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, currency string
			total            decimal.Decimal
		)
		if err := rows.Scan(&status, &currency, &total); err != nil {
			return stats, fmt.Errorf("scan invoice stats: %w", err)
		}
		st := invoice.Status(status)
		stats.TotalInvoices++
		stats.ByStatus[st]++
		switch {
		case st == invoice.StatusPaid:
			stats.PaidInvoices++
			stats.Revenue[currency] = stats.Revenue[currency].Add(total)
		case st.IsAwaitingSettlement():
			stats.PendingInvoices++
			stats.PendingAmount[currency] = stats.PendingAmount[currency].Add(total)
		}
	}
	return stats, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
