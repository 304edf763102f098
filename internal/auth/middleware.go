package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// Request headers carrying a signed challenge.
const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderNonce     = "X-Auth-Nonce"
	HeaderSignature = "X-Auth-Signature"
)

// AuthError represents an authentication error response.
type AuthError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	CorrID    string `json:"corrId"`
	Retryable bool   `json:"retryable"`
}

// Middleware authenticates the wallet behind a request from its signed challenge.
// Failures never say which check failed.
func Middleware(authn *Authenticator, audit AuthAuditRecorder, cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-Id")
			if corrID == "" {
				corrID = generateCorrID()
			}

			wallet := strings.TrimSpace(r.Header.Get(HeaderWallet))
			nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
			signature := strings.TrimSpace(r.Header.Get(HeaderSignature))

			if wallet == "" || nonce == "" || signature == "" {
				writeAuthError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Wallet authentication required", corrID, false)
				return
			}

			if !authn.Verify(r.Context(), wallet, nonce, signature) {
				writeAuthError(w, http.StatusUnauthorized, "AUTH_FAILED", "Authentication failed", corrID, false)
				// Only real account IDs get an audit chain.
				if cfg.EnableAuditLog && ValidAccountID(wallet) {
					recordAuthEvent(r.Context(), audit, wallet, corrID, "auth.failure", r, logger)
				}
				logger.Info("wallet authentication failed",
					slog.String("correlationId", corrID),
					slog.String("ip", ClientIP(r)),
				)
				return
			}

			if cfg.EnableAuditLog {
				recordAuthEvent(r.Context(), audit, wallet, corrID, "auth.success", r, logger)
			}
			logger.Debug("authenticated request",
				slog.String("correlationId", corrID),
				slog.String("wallet", wallet),
			)

			r.Header.Set("X-Correlation-Id", corrID)
			next.ServeHTTP(w, r.WithContext(ContextWithWallet(r.Context(), wallet)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message, corrID string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set("X-Correlation-Id", corrID)
	}
	w.WriteHeader(status)

	resp := AuthError{
		Code:      code,
		Message:   message,
		CorrID:    corrID,
		Retryable: retryable,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

const maxAuthAuditAttempts = 3

// recordAuthEvent chains an event after the wallet's newest entry. A store
// that rejects a forked chain is retried against the new head.
func recordAuthEvent(ctx context.Context, audit AuthAuditRecorder, wallet, corrID, action string, r *http.Request, logger *slog.Logger) {
	if audit == nil {
		return
	}

	entry := AuditLogEntry{
		ID:        generateCorrID(),
		Wallet:    wallet,
		CorrID:    corrID,
		Action:    action,
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		Timestamp: time.Now().UTC(),
	}

	var err error
	for attempt := 0; attempt < maxAuthAuditAttempts; attempt++ {
		entry.PrevHash = ""
		if prev, lerr := audit.Last(ctx, wallet); lerr == nil {
			entry.PrevHash = prev.Hash
		}
		data := fmt.Sprintf("%s|%s|%s|%s|%s", entry.ID, entry.Wallet, entry.Action, entry.Timestamp.Format(time.RFC3339), entry.PrevHash)
		entry.Hash = ComputeAuditHash(entry.PrevHash, data)
		if err = audit.Record(ctx, entry); err == nil {
			return
		}
	}
	logger.Warn("auth audit append failed", "action", action, "correlationId", corrID, "error", err)
}

type clientIPKey struct{}

// ResolveClientIP determines the client address once per request. Forwarding
// headers are honoured only when the TCP peer is one of the trusted proxies;
// X-Forwarded-For is walked from the right, skipping trusted hops.
func ResolveClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// ClientIP returns the address resolved by ResolveClientIP, or the TCP peer.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return peerHost(r)
}

func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := peerHost(r)
	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if i == 0 || !isTrusted(hop, trusted) {
				return hop
			}
		}
		return peer
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

func peerHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func generateCorrID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
