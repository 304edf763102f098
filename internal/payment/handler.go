package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// Handler exposes the payer endpoints. They are public: the invoice id and
// the ledger itself are the only credentials a payer has.
type Handler struct {
	svc     *Service
	limiter *auth.RateLimiter
	logger  *slog.Logger
}

// NewHandler builds the payment handler. limiter may be nil.
func NewHandler(svc *Service, limiter *auth.RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, limiter: limiter, logger: logger}
}

func (h *Handler) Mount(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.With(h.limitByIP).Post("/{id}/pay-intent", h.PayIntent)
		r.Post("/submit", h.Submit)
		r.Post("/confirm", h.Confirm)
		r.Get("/{id}/status", h.Status)
	})
}

type payIntentRequest struct {
	SenderPublicKey string `json:"senderPublicKey"`
}

type submitRequest struct {
	InvoiceID            string `json:"invoiceId"`
	SignedTransactionXDR string `json:"signedTransactionXdr"`
}

type confirmRequest struct {
	InvoiceID       string `json:"invoiceId"`
	TransactionHash string `json:"transactionHash"`
}

func (h *Handler) limitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil {
			if ok, retryAfter := h.limiter.Allow(auth.ClientIP(r)); !ok {
				corrID := correlationID(r)
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeJSON(w, http.StatusTooManyRequests, corrID, invoice.APIError{
					Code: "RATE_LIMITED", Message: "Too many pay intent requests", CorrID: corrID, Retryable: true,
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// PayIntent handles POST /payments/{id}/pay-intent
func (h *Handler) PayIntent(w http.ResponseWriter, r *http.Request) {
	corrID := correlationID(r)
	var req payIntentRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, corrID, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	intent, err := h.svc.PayIntent(r.Context(), chi.URLParam(r, "id"), req.SenderPublicKey)
	if err != nil {
		h.fail(w, corrID, "pay intent", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, intent)
}

// Submit handles POST /payments/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	corrID := correlationID(r)
	var req submitRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, corrID, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	if req.InvoiceID == "" {
		writeError(w, corrID, http.StatusBadRequest, "VALIDATION_ERROR", "invoiceId is required")
		return
	}
	res, err := h.svc.Submit(r.Context(), req.InvoiceID, req.SignedTransactionXDR)
	if err != nil {
		h.fail(w, corrID, "submit payment", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, res)
}

// Confirm handles POST /payments/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	corrID := correlationID(r)
	var req confirmRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, corrID, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	if req.InvoiceID == "" || req.TransactionHash == "" {
		writeError(w, corrID, http.StatusBadRequest, "VALIDATION_ERROR", "invoiceId and transactionHash are required")
		return
	}
	inv, err := h.svc.Confirm(r.Context(), req.InvoiceID, req.TransactionHash)
	if err != nil {
		h.fail(w, corrID, "confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, inv.Public())
}

// Status handles GET /payments/{id}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	corrID := correlationID(r)
	view, err := h.svc.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, corrID, "payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, view)
}

func (h *Handler) fail(w http.ResponseWriter, corrID, op string, err error) {
	var (
		ist  *invoice.InvalidStateTransition
		serr *SubmitError
		herr *horizon.Error
	)
	switch {
	case errors.Is(err, ErrInvalidSender), errors.Is(err, ErrEmptyEnvelope):
		writeError(w, corrID, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, invoice.ErrNotFound):
		writeError(w, corrID, http.StatusNotFound, "NOT_FOUND", "invoice not found")
	case errors.As(err, &ist):
		writeError(w, corrID, http.StatusConflict, "INVALID_STATE_TRANSITION", ist.Error())
	case errors.Is(err, ErrSettlementRejected):
		writeError(w, corrID, http.StatusConflict, "SETTLEMENT_REJECTED", err.Error())
	case errors.Is(err, ErrTransactionFailed), errors.Is(err, ErrPaymentMismatch):
		writeError(w, corrID, http.StatusUnprocessableEntity, "PAYMENT_MISMATCH", err.Error())
	case errors.Is(err, horizon.ErrTransactionNotFound):
		writeJSON(w, http.StatusNotFound, corrID, invoice.APIError{
			Code: "TRANSACTION_NOT_FOUND", Message: "transaction not found on the ledger yet", CorrID: corrID, Retryable: true,
		})
	case errors.As(err, &serr) && serr.Definitive:
		writeError(w, corrID, http.StatusBadRequest, "TRANSACTION_REJECTED", serr.Message)
	case errors.As(err, &serr), errors.As(err, &herr):
		h.logger.Warn(op+" ledger error", "correlationId", corrID, "error", err)
		writeJSON(w, http.StatusBadGateway, corrID, invoice.APIError{
			Code: "LEDGER_UNAVAILABLE", Message: horizon.UserMessage(err), CorrID: corrID, Retryable: true,
		})
	default:
		h.logger.Error(op+" failed", "correlationId", corrID, "error", err)
		writeJSON(w, http.StatusInternalServerError, corrID, invoice.APIError{
			Code: "INTERNAL_ERROR", Message: op + " failed", CorrID: corrID, Retryable: true,
		})
	}
}

func correlationID(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func decodeJSON(body io.ReadCloser, v any) error {
	defer body.Close()
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, corrID string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set("X-Correlation-Id", corrID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, corrID string, status int, code, message string) {
	writeJSON(w, status, corrID, invoice.APIError{Code: code, Message: message, CorrID: corrID})
}
