package auth

import (
	"context"
	"time"
)

// WalletContextKey is the context key for the authenticated wallet address.
type WalletContextKey struct{}

// Challenge is a single-use nonce issued to a wallet.
type Challenge struct {
	Identity  string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is no longer usable at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IssuedChallenge is returned to the caller, who signs Message with the wallet key.
type IssuedChallenge struct {
	Token     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

// ChallengeStore keeps at most one live challenge per identity.
// A store shared by several replicas must implement Consume as an atomic
// delete-if-present so only one verifier wins.
type ChallengeStore interface {
	// Put stores c, replacing any previous challenge for c.Identity.
	Put(ctx context.Context, c Challenge) error
	// Get returns the live challenge for identity, if any.
	Get(ctx context.Context, identity string) (Challenge, bool, error)
	// Consume deletes the challenge for identity only if it still holds token.
	Consume(ctx context.Context, identity, token string) (bool, error)
	// SweepExpired deletes every challenge expired at now.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// AuditLogEntry represents an authentication-related audit log entry.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	CorrID    string    `json:"corrId"`
	Action    string    `json:"action"` // e.g., "auth.success", "auth.failure", "auth.nonce"
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prevHash"` // Hash chain for tamper detection
	Hash      string    `json:"hash"`
}

// AuthAuditRecorder records authentication audit events.
type AuthAuditRecorder interface {
	// Record appends an audit entry.
	Record(ctx context.Context, entry AuditLogEntry) error
	// Last returns the last audit entry for chain hashing.
	Last(ctx context.Context, wallet string) (AuditLogEntry, error)
}

// WalletFromContext extracts the authenticated wallet from context.
func WalletFromContext(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(WalletContextKey{}).(string)
	return wallet, ok && wallet != ""
}

// ContextWithWallet adds the authenticated wallet to context.
func ContextWithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, WalletContextKey{}, wallet)
}
