package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Authenticator issues wallet challenges and verifies signed responses.
type Authenticator struct {
	store      ChallengeStore
	cfg        Config
	strategies []SignatureStrategy
	now        func() time.Time
	random     io.Reader
	logger     *slog.Logger
}

type AuthenticatorOption func(*Authenticator)

func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

// WithRandom replaces the nonce entropy source.
func WithRandom(r io.Reader) AuthenticatorOption {
	return func(a *Authenticator) { a.random = r }
}

func WithStrategies(s ...SignatureStrategy) AuthenticatorOption {
	return func(a *Authenticator) { a.strategies = s }
}

func NewAuthenticator(store ChallengeStore, cfg Config, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AppID == "" {
		cfg.AppID = "link2pay"
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	a := &Authenticator{
		store:      store,
		cfg:        cfg,
		strategies: DefaultStrategies,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CanonicalMessage is the exact text a wallet must sign for token.
func (a *Authenticator) CanonicalMessage(identity, token string) string {
	return fmt.Sprintf("%s-auth:%s:%s", a.cfg.AppID, identity, token)
}

// IssueChallenge stores a fresh nonce for identity, replacing any previous one.
// identity must already be a validated wallet address.
func (a *Authenticator) IssueChallenge(ctx context.Context, identity string) (IssuedChallenge, error) {
	token, err := GenerateNonce(a.random)
	if err != nil {
		return IssuedChallenge{}, err
	}
	c := Challenge{
		Identity:  identity,
		Token:     token,
		ExpiresAt: a.now().Add(a.cfg.ChallengeTTL),
	}
	if err := a.store.Put(ctx, c); err != nil {
		return IssuedChallenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return IssuedChallenge{
		Token:     token,
		Message:   a.CanonicalMessage(identity, token),
		ExpiresIn: int(a.cfg.ChallengeTTL / time.Second),
	}, nil
}

// Verify reports whether signature proves control of identity for token.
// It never errors: every failure, including store failures, is a false.
// A successful verification consumes the challenge.
func (a *Authenticator) Verify(ctx context.Context, identity, token, signature string) bool {
	if identity == "" || token == "" || signature == "" {
		return false
	}
	c, ok, err := a.store.Get(ctx, identity)
	if err != nil {
		a.logger.Warn("challenge lookup failed", "wallet", identity, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(c.Token), []byte(token)) != 1 {
		return false
	}
	if c.Expired(a.now()) {
		if _, err := a.store.Consume(ctx, identity, c.Token); err != nil {
			a.logger.Warn("expired challenge cleanup failed", "wallet", identity, "error", err)
		}
		return false
	}
	strategy, ok := VerifyWalletSignature(identity, a.CanonicalMessage(identity, token), signature, a.strategies)
	if !ok {
		return false
	}
	consumed, err := a.store.Consume(ctx, identity, token)
	if err != nil || !consumed {
		// Another request used this nonce first.
		return false
	}
	a.logger.Debug("wallet signature verified", "wallet", identity, "strategy", strategy)
	return true
}

// SweepExpired purges expired challenges.
func (a *Authenticator) SweepExpired(ctx context.Context) (int, error) {
	return a.store.SweepExpired(ctx, a.now())
}

// RunSweeper purges expired challenges every cfg.SweepInterval until ctx is done.
func (a *Authenticator) RunSweeper(ctx context.Context) {
	interval := a.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.SweepExpired(ctx)
			if err != nil {
				a.logger.Warn("challenge sweep failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Debug("expired challenges swept", "count", n)
			}
		}
	}
}
