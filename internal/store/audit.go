package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// AuditLog persists the hash-chained invoice audit trail.
type AuditLog struct {
	s *Store
}

// Audit returns the store's audit log. It implements invoice.AuditRecorder.
func (s *Store) Audit() *AuditLog {
	return &AuditLog{s: s}
}

const auditColumns = `id, invoice_id, chain_key, corr_id, actor, action, details, created_at, prev_hash, hash`

func scanAudit(row rowScanner) (invoice.AuditEntry, error) {
	var (
		e  invoice.AuditEntry
		ts int64
	)
	err := row.Scan(&e.ID, &e.InvoiceID, &e.ChainKey, &e.CorrID, &e.Actor, &e.Action,
		&e.Details, &ts, &e.PrevHash, &e.Hash)
	e.Timestamp = fromMillis(ts)
	return e, err
}

func (a *AuditLog) Append(ctx context.Context, entry invoice.AuditEntry) error {
	return a.insert(ctx, a.s.db, entry)
}

func (a *AuditLog) insert(ctx context.Context, e execer, entry invoice.AuditEntry) error {
	_, err := a.s.exec(ctx, e, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.InvoiceID, entry.ChainKey, entry.CorrID, entry.Actor, entry.Action,
		entry.Details, millis(entry.Timestamp), entry.PrevHash, entry.Hash)
	if isChainConflict(err) {
		return invoice.ErrChainConflict
	}
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Last returns the newest entry of a chain.
func (a *AuditLog) Last(ctx context.Context, chainKey string) (invoice.AuditEntry, error) {
	return a.last(ctx, a.s.db, chainKey)
}

func (a *AuditLog) last(ctx context.Context, e execer, chainKey string) (invoice.AuditEntry, error) {
	entry, err := scanAudit(a.s.queryRow(ctx, e,
		`SELECT `+auditColumns+` FROM audit_logs WHERE chain_key = ? ORDER BY seq DESC LIMIT 1`, chainKey))
	if errors.Is(err, sql.ErrNoRows) {
		return entry, invoice.ErrNoAuditEntries
	}
	if err != nil {
		return entry, fmt.Errorf("read audit chain head: %w", err)
	}
	return entry, nil
}

// AppendChained reads the chain head and appends its sealed successor in one
// transaction. PostgreSQL holds an advisory lock on the chain key for the
// transaction; SQLite serializes on its single connection. A writer in
// another process that wins the race surfaces as invoice.ErrChainConflict.
func (a *AuditLog) AppendChained(ctx context.Context, entry invoice.AuditEntry, seal func(prev invoice.AuditEntry) invoice.AuditEntry) (invoice.AuditEntry, error) {
	var sealed invoice.AuditEntry
	err := a.s.withTx(ctx, func(tx *sql.Tx) error {
		if a.s.driver == DriverPostgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.ChainKey); err != nil {
				return fmt.Errorf("lock audit chain: %w", err)
			}
		}
		prev, err := a.last(ctx, tx, entry.ChainKey)
		if err != nil && !errors.Is(err, invoice.ErrNoAuditEntries) {
			return err
		}
		sealed = seal(prev)
		return a.insert(ctx, tx, sealed)
	})
	return sealed, err
}

// Chain returns every entry of a chain in append order, ready for invoice.VerifyChain.
func (a *AuditLog) Chain(ctx context.Context, chainKey string) ([]invoice.AuditEntry, error) {
	return a.list(ctx, `chain_key = ?`, chainKey)
}

// ForInvoice returns the entries that mention an invoice in append order.
func (a *AuditLog) ForInvoice(ctx context.Context, invoiceID string) ([]invoice.AuditEntry, error) {
	return a.list(ctx, `invoice_id = ?`, invoiceID)
}

func (a *AuditLog) list(ctx context.Context, where string, arg any) ([]invoice.AuditEntry, error) {
	rows, err := a.s.query(ctx, a.s.db,
		`SELECT `+auditColumns+` FROM audit_logs WHERE `+where+` ORDER BY seq`, arg)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []invoice.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// isChainConflict reports whether err violates the one-successor-per-entry
// index on audit chains.
func isChainConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "idx_audit_logs_chain_link"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(liteErr.Error(), "audit_logs.prev_hash")
	}
	return false
}

// AuthAudit stores authentication events in audit_logs under an "auth:"
// chain per wallet. It implements auth.AuthAuditRecorder.
type AuthAudit struct {
	log *AuditLog
}

func (s *Store) AuthAudit() *AuthAudit {
	return &AuthAudit{log: s.Audit()}
}

type authDetails struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

func authChain(wallet string) string { return "auth:" + wallet }

func (a *AuthAudit) Record(ctx context.Context, entry auth.AuditLogEntry) error {
	details, err := json.Marshal(authDetails{IPAddress: entry.IPAddress, UserAgent: entry.UserAgent})
	if err != nil {
		return fmt.Errorf("encode auth audit details: %w", err)
	}
	return a.log.Append(ctx, invoice.AuditEntry{
		ID:        entry.ID,
		ChainKey:  authChain(entry.Wallet),
		CorrID:    entry.CorrID,
		Actor:     entry.Wallet,
		Action:    entry.Action,
		Details:   string(details),
		Timestamp: entry.Timestamp,
		PrevHash:  entry.PrevHash,
		Hash:      entry.Hash,
	})
}

func (a *AuthAudit) Last(ctx context.Context, wallet string) (auth.AuditLogEntry, error) {
	e, err := a.log.Last(ctx, authChain(wallet))
	if err != nil {
		return auth.AuditLogEntry{}, err
	}
	out := auth.AuditLogEntry{
		ID:        e.ID,
		Wallet:    wallet,
		CorrID:    e.CorrID,
		Action:    e.Action,
		Timestamp: e.Timestamp,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
	}
	var d authDetails
	if json.Unmarshal([]byte(e.Details), &d) == nil {
		out.IPAddress, out.UserAgent = d.IPAddress, d.UserAgent
	}
	return out, nil
}
