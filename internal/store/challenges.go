package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
)

// ChallengeStore is the database-backed auth.ChallengeStore shared by every
// replica pointing at the same database.
type ChallengeStore struct {
	s *Store
}

func (s *Store) Challenges() *ChallengeStore {
	return &ChallengeStore{s: s}
}

// Put replaces any previous challenge for c.Identity.
func (c *ChallengeStore) Put(ctx context.Context, ch auth.Challenge) error {
	_, err := c.s.exec(ctx, c.s.db, `
		INSERT INTO challenges (identity, token, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at`,
		ch.Identity, ch.Token, millis(ch.ExpiresAt))
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

func (c *ChallengeStore) Get(ctx context.Context, identity string) (auth.Challenge, bool, error) {
	ch := auth.Challenge{Identity: identity}
	var expires int64
	err := c.s.queryRow(ctx, c.s.db,
		`SELECT token, expires_at FROM challenges WHERE identity = ?`, identity).Scan(&ch.Token, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Challenge{}, false, nil
	}
	if err != nil {
		return auth.Challenge{}, false, fmt.Errorf("get challenge: %w", err)
	}
	ch.ExpiresAt = fromMillis(expires)
	return ch, true, nil
}

// Consume deletes the challenge only while it still holds token. Exactly
// one of several concurrent callers sees true.
func (c *ChallengeStore) Consume(ctx context.Context, identity, token string) (bool, error) {
	res, err := c.s.exec(ctx, c.s.db,
		`DELETE FROM challenges WHERE identity = ? AND token = ?`, identity, token)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return n == 1, nil
}

func (c *ChallengeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := c.s.exec(ctx, c.s.db, `DELETE FROM challenges WHERE expires_at <= ?`, millis(now))
	if err != nil {
		return 0, fmt.Errorf("sweep challenges: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
