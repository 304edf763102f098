package auth

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testWallet struct {
	address string
	priv    ed25519.PrivateKey
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	addr, err := EncodeAccountID(pub)
	if err != nil {
		t.Fatalf("EncodeAccountID() error = %v", err)
	}
	return testWallet{address: addr, priv: priv}
}

func (w testWallet) sign(message []byte) string {
	return hex.EncodeToString(ed25519.Sign(w.priv, message))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAuthenticator(clock *fakeClock) (*Authenticator, *InMemoryChallengeStore) {
	store := NewInMemoryChallengeStore()
	cfg := Config{AppID: "link2pay", ChallengeTTL: 5 * time.Minute}
	return NewAuthenticator(store, cfg, nil, WithClock(clock.Now)), store
}

func TestEncodeDecodeAccountID(t *testing.T) {
	w := newTestWallet(t)

	if len(w.address) != 56 || w.address[0] != 'G' {
		t.Fatalf("address = %q, want 56 chars starting with G", w.address)
	}
	pub, err := DecodeAccountID(w.address)
	if err != nil {
		t.Fatalf("DecodeAccountID() error = %v", err)
	}
	if !bytes.Equal(pub, w.priv.Public().(ed25519.PublicKey)) {
		t.Error("decoded public key does not match")
	}
}

func TestDecodeAccountID_Invalid(t *testing.T) {
	w := newTestWallet(t)
	flipped := []byte(w.address)
	if flipped[10] == 'A' {
		flipped[10] = 'B'
	} else {
		flipped[10] = 'A'
	}

	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"too short", w.address[:55]},
		{"wrong prefix", "S" + w.address[1:]},
		{"lowercase", strings.ToLower(w.address)},
		{"bad checksum", string(flipped)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ValidAccountID(tt.address) {
				t.Errorf("ValidAccountID(%q) = true, want false", tt.address)
			}
		})
	}
}

func TestIssueChallenge(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	authn, store := newTestAuthenticator(clock)
	w := newTestWallet(t)

	issued, err := authn.IssueChallenge(context.Background(), w.address)
	if err != nil {
		t.Fatalf("IssueChallenge() error = %v", err)
	}
	if len(issued.Token) != 32 {
		t.Errorf("token length = %d, want 32 hex chars", len(issued.Token))
	}
	want := "link2pay-auth:" + w.address + ":" + issued.Token
	if issued.Message != want {
		t.Errorf("message = %q, want %q", issued.Message, want)
	}
	if issued.ExpiresIn != 300 {
		t.Errorf("expiresIn = %d, want 300", issued.ExpiresIn)
	}

	c, ok, _ := store.Get(context.Background(), w.address)
	if !ok {
		t.Fatal("challenge not stored")
	}
	if !c.ExpiresAt.Equal(clock.Now().Add(5 * time.Minute)) {
		t.Errorf("expiresAt = %v", c.ExpiresAt)
	}
}

func TestIssueChallenge_OverwritesPrevious(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, store := newTestAuthenticator(clock)
	w := newTestWallet(t)
	ctx := context.Background()

	first, _ := authn.IssueChallenge(ctx, w.address)
	second, _ := authn.IssueChallenge(ctx, w.address)

	if store.Len() != 1 {
		t.Errorf("store has %d challenges, want 1", store.Len())
	}
	if authn.Verify(ctx, w.address, first.Token, w.sign([]byte(first.Message))) {
		t.Error("Verify() accepted a superseded challenge")
	}
	if !authn.Verify(ctx, w.address, second.Token, w.sign([]byte(second.Message))) {
		t.Error("Verify() rejected the live challenge")
	}
}

func TestVerify_SingleUse(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, _ := newTestAuthenticator(clock)
	w := newTestWallet(t)
	ctx := context.Background()

	issued, _ := authn.IssueChallenge(ctx, w.address)
	sig := w.sign([]byte(issued.Message))

	if !authn.Verify(ctx, w.address, issued.Token, sig) {
		t.Fatal("Verify() = false on first presentation")
	}
	if authn.Verify(ctx, w.address, issued.Token, sig) {
		t.Error("Verify() = true on replay")
	}
}

func TestVerify_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, store := newTestAuthenticator(clock)
	w := newTestWallet(t)
	ctx := context.Background()

	issued, _ := authn.IssueChallenge(ctx, w.address)
	sig := w.sign([]byte(issued.Message))
	clock.Advance(5*time.Minute + time.Second)

	if authn.Verify(ctx, w.address, issued.Token, sig) {
		t.Error("Verify() = true after TTL")
	}
	if store.Len() != 0 {
		t.Error("expired challenge was not deleted on verification")
	}
}

func TestVerify_Base64WrappedMessage(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, _ := newTestAuthenticator(clock)
	w := newTestWallet(t)
	ctx := context.Background()

	issued, _ := authn.IssueChallenge(ctx, w.address)
	wrapped := base64.StdEncoding.EncodeToString([]byte(issued.Message))

	if !authn.Verify(ctx, w.address, issued.Token, w.sign([]byte(wrapped))) {
		t.Error("Verify() rejected a base64-wrapped signature")
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, _ := newTestAuthenticator(clock)
	w := newTestWallet(t)
	other := newTestWallet(t)
	ctx := context.Background()

	issued, _ := authn.IssueChallenge(ctx, w.address)
	good := w.sign([]byte(issued.Message))

	tests := []struct {
		name      string
		identity  string
		token     string
		signature string
	}{
		{"no challenge", other.address, issued.Token, other.sign([]byte(issued.Message))},
		{"wrong token", w.address, strings.Repeat("0", 32), good},
		{"wrong signer", w.address, issued.Token, other.sign([]byte(issued.Message))},
		{"wrong message", w.address, issued.Token, w.sign([]byte("link2pay-auth:" + w.address + ":other"))},
		{"not hex", w.address, issued.Token, "zz" + good[2:]},
		{"truncated", w.address, issued.Token, good[:64]},
		{"empty signature", w.address, issued.Token, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if authn.Verify(ctx, tt.identity, tt.token, tt.signature) {
				t.Error("Verify() = true, want false")
			}
		})
	}

	// None of the failures consumed the challenge.
	if !authn.Verify(ctx, w.address, issued.Token, good) {
		t.Error("Verify() = false for the untouched challenge")
	}
}

func TestVerify_ConcurrentPresentationsConsumeOnce(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, _ := newTestAuthenticator(clock)
	w := newTestWallet(t)
	ctx := context.Background()

	issued, _ := authn.IssueChallenge(ctx, w.address)
	sig := w.sign([]byte(issued.Message))

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if authn.Verify(ctx, w.address, issued.Token, sig) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := accepted.Load(); got != 1 {
		t.Errorf("accepted %d presentations, want 1", got)
	}
}

func TestSweepExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	authn, store := newTestAuthenticator(clock)
	ctx := context.Background()

	a, b := newTestWallet(t), newTestWallet(t)
	_, _ = authn.IssueChallenge(ctx, a.address)
	clock.Advance(3 * time.Minute)
	_, _ = authn.IssueChallenge(ctx, b.address)
	clock.Advance(3 * time.Minute)

	n, err := authn.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if _, ok, _ := store.Get(ctx, b.address); !ok {
		t.Error("live challenge was swept")
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	store := NewInMemoryChallengeStore()
	authn := NewAuthenticator(store, Config{SweepInterval: 10 * time.Millisecond}, nil)
	_ = store.Put(context.Background(), Challenge{Identity: "G1", Token: "t", ExpiresAt: time.Now().Add(-time.Second)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		authn.RunSweeper(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if store.Len() != 0 {
		t.Error("sweeper did not remove the expired challenge")
	}
}

func TestRateLimiter(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	rl := NewRateLimiter(2, time.Minute)
	rl.now = clock.Now

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("wallet"); !ok {
			t.Fatalf("request %d denied", i)
		}
	}
	ok, retry := rl.Allow("wallet")
	if ok {
		t.Fatal("third request allowed")
	}
	if retry <= 0 || retry > 30*time.Second {
		t.Errorf("retryAfter = %v", retry)
	}
	if ok, _ := rl.Allow("other"); !ok {
		t.Error("keys are not independent")
	}

	clock.Advance(30 * time.Second)
	if ok, _ := rl.Allow("wallet"); !ok {
		t.Error("token was not refilled")
	}

	clock.Advance(2 * time.Minute)
	if n := rl.Prune(); n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	rl := NewRateLimiter(5, time.Minute)
	rl.now = clock.Now

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("198.51.100.%d", i))
	}
	if rl.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", rl.Len())
	}

	clock.Advance(2 * time.Minute)
	if ok, _ := rl.Allow("203.0.113.1"); !ok {
		t.Fatal("fresh key denied")
	}
	if rl.Len() != 1 {
		t.Errorf("Len() = %d after a window of idleness, want 1", rl.Len())
	}
}
