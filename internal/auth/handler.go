package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for authentication endpoints.
type Handler struct {
	authn   *Authenticator
	audit   AuthAuditRecorder
	limiter *RateLimiter
	cfg     Config
	logger  *slog.Logger
}

// NewHandler creates a new auth handler. limiter may be nil.
func NewHandler(authn *Authenticator, audit AuthAuditRecorder, limiter *RateLimiter, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		authn:   authn,
		audit:   audit,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Mount registers the auth routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/auth/nonce", h.IssueNonce)
}

// NonceRequest is the request body for a challenge.
type NonceRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// IssueNonce handles POST /auth/nonce
func (h *Handler) IssueNonce(w http.ResponseWriter, r *http.Request) {
	corrID := r.Header.Get("X-Correlation-Id")
	if corrID == "" {
		corrID = generateCorrID()
	}

	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(ClientIP(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeAuthError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many nonce requests", corrID, true)
			return
		}
	}

	var req NonceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_JSON", "Invalid JSON body", corrID)
		return
	}
	wallet := strings.TrimSpace(req.WalletAddress)
	if !ValidAccountID(wallet) {
		writeJSONError(w, http.StatusBadRequest, "INVALID_WALLET", "walletAddress must be a valid wallet address", corrID)
		return
	}

	issued, err := h.authn.IssueChallenge(r.Context(), wallet)
	if err != nil {
		h.logger.Error("failed to issue challenge", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue nonce", corrID)
		return
	}
	if h.cfg.EnableAuditLog {
		recordAuthEvent(r.Context(), h.audit, wallet, corrID, "auth.nonce", r, h.logger)
	}

	writeJSON(w, http.StatusOK, corrID, issued)
}

func writeJSON(w http.ResponseWriter, status int, corrID string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set("X-Correlation-Id", corrID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message, corrID string) {
	writeAuthError(w, status, code, message, corrID, false)
}
