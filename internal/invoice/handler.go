package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
)

// Handler exposes invoices and payment links over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the invoice and link routes. requireWallet guards every mutation.
func (h *Handler) Mount(r chi.Router, requireWallet func(http.Handler) http.Handler) {
	r.Route("/invoices", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireWallet)
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/stats", h.Stats)
			r.Get("/{id}/owner", h.GetOwned)
			r.Patch("/{id}", h.Update)
			r.Post("/{id}/send", h.Send)
			r.Post("/{id}/cancel", h.Cancel)
			r.Delete("/{id}", h.Delete)
		})
		r.Get("/{id}", h.GetPublic)
	})
	r.Route("/links", func(r chi.Router) {
		r.With(requireWallet).Post("/", h.CreateLink)
		r.Get("/{id}", h.GetLink)
		r.Get("/{id}/status", h.GetLinkStatus)
	})
}

type createInvoiceRequest struct {
	FreelancerName    string               `json:"freelancerName"`
	FreelancerEmail   *openapi_types.Email `json:"freelancerEmail,omitempty"`
	FreelancerCompany string               `json:"freelancerCompany"`
	ClientName        string               `json:"clientName"`
	ClientEmail       openapi_types.Email  `json:"clientEmail"`
	ClientCompany     string               `json:"clientCompany"`
	ClientAddress     string               `json:"clientAddress"`
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Notes             string               `json:"notes"`
	Currency          string               `json:"currency"`
	TaxRate           *decimal.Decimal     `json:"taxRate,omitempty"`
	Discount          *decimal.Decimal     `json:"discount,omitempty"`
	DueDate           *time.Time           `json:"dueDate,omitempty"`
	LineItems         []LineInput          `json:"lineItems"`
}

type updateInvoiceRequest struct {
	ClientName    *string              `json:"clientName,omitempty"`
	ClientEmail   *openapi_types.Email `json:"clientEmail,omitempty"`
	ClientCompany *string              `json:"clientCompany,omitempty"`
	ClientAddress *string              `json:"clientAddress,omitempty"`
	Title         *string              `json:"title,omitempty"`
	Description   *string              `json:"description,omitempty"`
	Notes         *string              `json:"notes,omitempty"`
	Currency      *string              `json:"currency,omitempty"`
	TaxRate       *decimal.Decimal     `json:"taxRate,omitempty"`
	Discount      *decimal.Decimal     `json:"discount,omitempty"`
	DueDate       *time.Time           `json:"dueDate,omitempty"`
	LineItems     []LineInput          `json:"lineItems,omitempty"`
}

type createLinkRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Asset           string          `json:"asset"`
	RecipientWallet string          `json:"recipientWallet,omitempty"`
	ExpiresAt       *time.Time      `json:"expiresAt,omitempty"`
	Metadata        struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		Reference   string               `json:"reference"`
		PayerName   string               `json:"payerName"`
		PayerEmail  *openapi_types.Email `json:"payerEmail,omitempty"`
	} `json:"metadata"`
}

type listResponse struct {
	Invoices []Invoice `json:"invoices"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// APIError is the JSON error envelope.
type APIError struct {
	Code      string                `json:"code"`
	Message   string                `json:"message"`
	CorrID    string                `json:"corrId"`
	Retryable bool                  `json:"retryable"`
	Errors    []ValidationErrorItem `json:"errors,omitempty"`
}

// Create handles POST /invoices
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	var req createInvoiceRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, corrID, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	in := CreateInput{
		PayeeName:     req.FreelancerName,
		PayeeCompany:  req.FreelancerCompany,
		ClientName:    req.ClientName,
		ClientEmail:   string(req.ClientEmail),
		ClientCompany: req.ClientCompany,
		ClientAddress: req.ClientAddress,
		Title:         req.Title,
		Description:   req.Description,
		Notes:         req.Notes,
		Currency:      req.Currency,
		DueDate:       req.DueDate,
		Lines:         req.LineItems,
	}
	if req.FreelancerEmail != nil {
		in.PayeeEmail = string(*req.FreelancerEmail)
	}
	if req.TaxRate != nil {
		in.TaxRate = *req.TaxRate
	}
	if req.Discount != nil {
		in.Discount = *req.Discount
	}

	inv, err := h.svc.Create(r.Context(), wallet, in)
	if err != nil {
		h.fail(w, corrID, wallet, "create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID, inv)
}

// List handles GET /invoices?status=&limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	var (
		limit  = 20
		offset = 0
		status string
	)
	q := r.URL.Query()
	for name, dest := range map[string]any{"limit": &limit, "offset": &offset, "status": &status} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			writeError(w, corrID, http.StatusBadRequest, "BAD_QUERY", fmt.Sprintf("invalid %s parameter", name))
			return
		}
	}
	f := ListFilter{PayeeWallet: wallet, Limit: limit, Offset: offset}
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			writeError(w, corrID, http.StatusBadRequest, "BAD_QUERY", err.Error())
			return
		}
		f.Status = st
	}
	invoices, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.fail(w, corrID, wallet, "list invoices", err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	writeJSON(w, http.StatusOK, corrID, listResponse{Invoices: invoices, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// Stats handles GET /invoices/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	stats, err := h.svc.Stats(r.Context(), wallet)
	if err != nil {
		h.fail(w, corrID, wallet, "invoice stats", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, stats)
}

// GetOwned handles GET /invoices/{id}/owner
func (h *Handler) GetOwned(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	inv, err := h.svc.GetOwned(r.Context(), wallet, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, corrID, wallet, "get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, inv)
}

// GetPublic handles GET /invoices/{id}
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	corrID, _ := requestIDs(r)
	inv, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, corrID, "", "get public invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, inv.Public())
}

// Update handles PATCH /invoices/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	var req updateInvoiceRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, corrID, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	in := UpdateInput{
		ClientName:    req.ClientName,
		ClientCompany: req.ClientCompany,
		ClientAddress: req.ClientAddress,
		Title:         req.Title,
		Description:   req.Description,
		Notes:         req.Notes,
		Currency:      req.Currency,
		TaxRate:       req.TaxRate,
		Discount:      req.Discount,
		DueDate:       req.DueDate,
		Lines:         req.LineItems,
	}
	if req.ClientEmail != nil {
		email := string(*req.ClientEmail)
		in.ClientEmail = &email
	}
	inv, err := h.svc.Update(r.Context(), wallet, chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, corrID, wallet, "update invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, inv)
}

// Send handles POST /invoices/{id}/send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	inv, err := h.svc.Send(r.Context(), wallet, chi.URLParam(r, "id"), corrID)
	if err != nil {
		h.fail(w, corrID, wallet, "send invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, inv)
}

// Cancel handles POST /invoices/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	inv, err := h.svc.Cancel(r.Context(), wallet, chi.URLParam(r, "id"), corrID)
	if err != nil {
		h.fail(w, corrID, wallet, "cancel invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, inv)
}

// Delete handles DELETE /invoices/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	if err := h.svc.Delete(r.Context(), wallet, chi.URLParam(r, "id"), corrID); err != nil {
		h.fail(w, corrID, wallet, "delete invoice", err)
		return
	}
	w.Header().Set("X-Correlation-Id", corrID)
	w.WriteHeader(http.StatusNoContent)
}

// CreateLink handles POST /links
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	corrID, wallet := requestIDs(r)
	var req createLinkRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, corrID, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	in := LinkInput{
		Amount:          req.Amount,
		Asset:           req.Asset,
		RecipientWallet: req.RecipientWallet,
		ExpiresAt:       req.ExpiresAt,
		Title:           req.Metadata.Title,
		Description:     req.Metadata.Description,
		Reference:       req.Metadata.Reference,
		PayerName:       req.Metadata.PayerName,
	}
	if req.Metadata.PayerEmail != nil {
		in.PayerEmail = string(*req.Metadata.PayerEmail)
	}
	link, err := h.svc.CreateLink(r.Context(), wallet, corrID, in)
	if err != nil {
		h.fail(w, corrID, wallet, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID, link)
}

// GetLink handles GET /links/{id}
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	corrID, _ := requestIDs(r)
	link, err := h.svc.GetLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, corrID, "", "get link", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, link)
}

// GetLinkStatus handles GET /links/{id}/status
func (h *Handler) GetLinkStatus(w http.ResponseWriter, r *http.Request) {
	corrID, _ := requestIDs(r)
	view, err := h.svc.LinkStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, corrID, "", "get link status", err)
		return
	}
	writeJSON(w, http.StatusOK, corrID, view)
}

func (h *Handler) fail(w http.ResponseWriter, corrID, wallet, op string, err error) {
	var (
		ve  *ValidationError
		ist *InvalidStateTransition
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, corrID, APIError{
			Code: "VALIDATION_ERROR", Message: "invoice failed validation", CorrID: corrID, Errors: ve.Items,
		})
	case errors.As(err, &ist):
		writeError(w, corrID, http.StatusConflict, "INVALID_STATE_TRANSITION", ist.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, corrID, http.StatusNotFound, "NOT_FOUND", "invoice not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, corrID, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, ErrImmutable):
		writeError(w, corrID, http.StatusConflict, "INVOICE_IMMUTABLE", err.Error())
	case errors.Is(err, ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, corrID, APIError{
			Code: "RATE_LIMITED", Message: "too many invoices created, try again later", CorrID: corrID, Retryable: true,
		})
	default:
		CorrelationLogger(h.logger, corrID, wallet).Error(op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, corrID, APIError{
			Code: "INTERNAL_ERROR", Message: op + " failed", CorrID: corrID, Retryable: true,
		})
	}
}

func requestIDs(r *http.Request) (corrID, wallet string) {
	corrID = r.Header.Get("X-Correlation-Id")
	if corrID == "" {
		corrID = uuid.NewString()
	}
	wallet, _ = auth.WalletFromContext(r.Context())
	return corrID, wallet
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
	writeJSON(w, status, corrID, APIError{Code: code, Message: message, CorrID: corrID})
}
