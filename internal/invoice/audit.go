package invoice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type AuditRecorder interface {
	Append(ctx context.Context, entry AuditEntry) error
	Last(ctx context.Context, chainKey string) (AuditEntry, error)
}

// ChainAppender is implemented by recorders that can read the chain head and
// append its successor atomically.
type ChainAppender interface {
	AppendChained(ctx context.Context, entry AuditEntry, seal func(prev AuditEntry) AuditEntry) (AuditEntry, error)
}

var (
	// ErrNoAuditEntries is returned by Last for an empty chain.
	ErrNoAuditEntries = errors.New("no audit entries")
	// ErrChainConflict means another writer appended to the chain first.
	ErrChainConflict = errors.New("audit chain head moved")
)

const maxChainAttempts = 5

// HashChain links entry to the previous entry of its chain and appends it.
// A lost race for the chain head is retried against the new head.
func HashChain(ctx context.Context, rec AuditRecorder, entry AuditEntry) (AuditEntry, error) {
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Millisecond)
	seal := func(prev AuditEntry) AuditEntry {
		e := entry
		e.PrevHash = prev.Hash
		e.Hash = hashAudit(e)
		return e
	}

	var err error
	for attempt := 0; attempt < maxChainAttempts; attempt++ {
		var sealed AuditEntry
		if ca, ok := rec.(ChainAppender); ok {
			sealed, err = ca.AppendChained(ctx, entry, seal)
		} else {
			sealed, err = appendAfterHead(ctx, rec, seal, entry.ChainKey)
		}
		if !errors.Is(err, ErrChainConflict) {
			return sealed, err
		}
	}
	return AuditEntry{}, fmt.Errorf("append to audit chain %s: %w", entry.ChainKey, err)
}

func appendAfterHead(ctx context.Context, rec AuditRecorder, seal func(AuditEntry) AuditEntry, chainKey string) (AuditEntry, error) {
	prev, err := rec.Last(ctx, chainKey)
	if err != nil && !errors.Is(err, ErrNoAuditEntries) {
		return AuditEntry{}, fmt.Errorf("read audit chain head: %w", err)
	}
	sealed := seal(prev)
	return sealed, rec.Append(ctx, sealed)
}

// VerifyChain recomputes every hash of an ordered chain.
func VerifyChain(entries []AuditEntry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("audit entry %d: prev hash mismatch", i)
		}
		if hashAudit(e) != e.Hash {
			return fmt.Errorf("audit entry %d: hash mismatch", i)
		}
		prev = e.Hash
	}
	return nil
}

func hashAudit(entry AuditEntry) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s",
		entry.ID, entry.InvoiceID, entry.ChainKey, entry.Actor, entry.Action, entry.Details,
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.PrevHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func CorrelationLogger(logger *slog.Logger, corrID, wallet string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("corrId", corrID, "wallet", wallet)
}
