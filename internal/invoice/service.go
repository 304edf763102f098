package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the persistence the invoice service needs. Conditional
// updates must be atomic: TransitionInvoice only succeeds while the stored
// status is one of from.
type Repository interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	UpdateDraft(ctx context.Context, inv *Invoice) error
	TransitionInvoice(ctx context.Context, id string, to Status, from ...Status) error
	SoftDeleteInvoice(ctx context.Context, id string, at time.Time) error
	ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, int, error)
	InvoiceStats(ctx context.Context, wallet string) (Stats, error)
}

// RateLimiter gates invoice creation per wallet.
type RateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

type CreateInput struct {
	PayeeName     string
	PayeeEmail    string
	PayeeCompany  string
	ClientName    string
	ClientEmail   string
	ClientCompany string
	ClientAddress string
	Title         string
	Description   string
	Notes         string
	Currency      string
	TaxRate       decimal.Decimal
	Discount      decimal.Decimal
	DueDate       *time.Time
	Lines         []LineInput
}

type LineInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// UpdateInput is a partial update of a draft; nil fields are left unchanged.
type UpdateInput struct {
	ClientName    *string
	ClientEmail   *string
	ClientCompany *string
	ClientAddress *string
	Title         *string
	Description   *string
	Notes         *string
	Currency      *string
	TaxRate       *decimal.Decimal
	Discount      *decimal.Decimal
	DueDate       *time.Time
	Lines         []LineInput
}

type Service struct {
	cfg       Config
	validator Validator
	repo      Repository
	audit     AuditRecorder
	limiter   RateLimiter
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

func NewService(cfg Config, repo Repository, audit AuditRecorder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:       cfg,
		validator: Validator{Config: cfg},
		repo:      repo,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// Create stores a new DRAFT invoice owned by wallet.
func (s *Service) Create(ctx context.Context, wallet string, in CreateInput) (*Invoice, error) {
	if s.limiter != nil {
		if ok, _ := s.limiter.Allow(wallet); !ok {
			return nil, ErrRateLimited
		}
	}
	now := s.now().UTC()
	if items := s.validator.Validate(in, now); len(items) > 0 {
		return nil, &ValidationError{Items: items}
	}

	inv := &Invoice{
		ID:            uuid.NewString(),
		Status:        StatusDraft,
		PayeeWallet:   wallet,
		PayeeName:     strings.TrimSpace(in.PayeeName),
		PayeeEmail:    strings.TrimSpace(in.PayeeEmail),
		PayeeCompany:  strings.TrimSpace(in.PayeeCompany),
		ClientName:    strings.TrimSpace(in.ClientName),
		ClientEmail:   strings.TrimSpace(in.ClientEmail),
		ClientCompany: strings.TrimSpace(in.ClientCompany),
		ClientAddress: strings.TrimSpace(in.ClientAddress),
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Notes:         strings.TrimSpace(in.Notes),
		Currency:      in.Currency,
		TaxRate:       in.TaxRate,
		Discount:      in.Discount,
		DueDate:       utcPtr(in.DueDate),
		Lines:         toLineItems(in.Lines),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inv.Recalculate()

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.appendAudit(ctx, inv, "", AuditCreated, "", StatusDraft)
	s.logger.Info("invoice created",
		slog.String("invoiceId", inv.ID),
		slog.String("invoiceNumber", inv.Number),
		slog.String("wallet", wallet),
		slog.String("total", inv.Total.String()),
		slog.String("currency", inv.Currency),
	)
	return inv, nil
}

// Update applies a partial update to a DRAFT invoice and recomputes its totals.
func (s *Service) Update(ctx context.Context, wallet, id string, in UpdateInput) (*Invoice, error) {
	inv, err := s.GetOwned(ctx, wallet, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusDraft {
		return nil, fmt.Errorf("%w: status %s", ErrImmutable, inv.Status)
	}

	merged := mergeUpdate(inv, in)
	if items := s.validator.Validate(merged, s.now().UTC()); len(items) > 0 {
		return nil, &ValidationError{Items: items}
	}
	applyInput(inv, merged)
	inv.Recalculate()
	inv.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateDraft(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

// Send moves a draft to PENDING, making it payable and immutable.
func (s *Service) Send(ctx context.Context, wallet, id, corrID string) (*Invoice, error) {
	inv, err := s.GetOwned(ctx, wallet, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(inv.Status, StatusPending, ActorPayee); err != nil {
		return nil, err
	}
	if inv.Overdue(s.now()) {
		return nil, &ValidationError{Items: []ValidationErrorItem{
			errItem("INV-DATE-001", "dueDate", "Due date must be in the future"),
		}}
	}
	if err := s.repo.TransitionInvoice(ctx, id, StatusPending, StatusDraft); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, inv, corrID, AuditSent, StatusDraft, StatusPending)
	return s.repo.GetInvoice(ctx, id)
}

// Cancel retires a draft that will never be sent.
func (s *Service) Cancel(ctx context.Context, wallet, id, corrID string) (*Invoice, error) {
	inv, err := s.GetOwned(ctx, wallet, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(inv.Status, StatusCancelled, ActorPayee); err != nil {
		return nil, err
	}
	if err := s.repo.TransitionInvoice(ctx, id, StatusCancelled, StatusDraft); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, inv, corrID, AuditCancelled, StatusDraft, StatusCancelled)
	return s.repo.GetInvoice(ctx, id)
}

// Delete soft-deletes a draft.
func (s *Service) Delete(ctx context.Context, wallet, id, corrID string) error {
	inv, err := s.GetOwned(ctx, wallet, id)
	if err != nil {
		return err
	}
	if err := CheckTransition(inv.Status, StatusDeleted, ActorPayee); err != nil {
		return err
	}
	if err := s.repo.SoftDeleteInvoice(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.appendAudit(ctx, inv, corrID, AuditDeleted, inv.Status, StatusDeleted)
	return nil
}

// Get returns any live invoice; callers decide what to expose.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// GetOwned returns the invoice only when wallet is its payee.
func (s *Service) GetOwned(ctx context.Context, wallet, id string) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.PayeeWallet != wallet {
		return nil, ErrForbidden
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Invoice, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListInvoices(ctx, f)
}

func (s *Service) Stats(ctx context.Context, wallet string) (Stats, error) {
	return s.repo.InvoiceStats(ctx, wallet)
}

func (s *Service) appendAudit(ctx context.Context, inv *Invoice, corrID, action string, from, to Status) {
	if s.audit == nil || !s.cfg.EnableAudit {
		return
	}
	details, _ := json.Marshal(map[string]any{"status": map[string]Status{"from": from, "to": to}})
	entry := AuditEntry{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		ChainKey:  inv.PayeeWallet,
		CorrID:    corrID,
		Actor:     inv.PayeeWallet,
		Action:    action,
		Details:   string(details),
		Timestamp: s.now(),
	}
	if _, err := HashChain(ctx, s.audit, entry); err != nil {
		CorrelationLogger(s.logger, corrID, inv.PayeeWallet).Warn("audit append failed",
			"invoiceId", inv.ID, "action", action, "error", err)
	}
}

func mergeUpdate(inv *Invoice, in UpdateInput) CreateInput {
	out := CreateInput{
		PayeeName:     inv.PayeeName,
		PayeeEmail:    inv.PayeeEmail,
		PayeeCompany:  inv.PayeeCompany,
		ClientName:    pick(in.ClientName, inv.ClientName),
		ClientEmail:   pick(in.ClientEmail, inv.ClientEmail),
		ClientCompany: pick(in.ClientCompany, inv.ClientCompany),
		ClientAddress: pick(in.ClientAddress, inv.ClientAddress),
		Title:         pick(in.Title, inv.Title),
		Description:   pick(in.Description, inv.Description),
		Notes:         pick(in.Notes, inv.Notes),
		Currency:      pick(in.Currency, inv.Currency),
		TaxRate:       inv.TaxRate,
		Discount:      inv.Discount,
		DueDate:       inv.DueDate,
	}
	if in.TaxRate != nil {
		out.TaxRate = *in.TaxRate
	}
	if in.Discount != nil {
		out.Discount = *in.Discount
	}
	if in.DueDate != nil {
		out.DueDate = in.DueDate
	}
	if in.Lines != nil {
		out.Lines = in.Lines
	} else {
		for _, l := range inv.Lines {
			out.Lines = append(out.Lines, LineInput{Description: l.Description, Quantity: l.Quantity, Rate: l.Rate})
		}
	}
	return out
}

func applyInput(inv *Invoice, in CreateInput) {
	inv.ClientName = strings.TrimSpace(in.ClientName)
	inv.ClientEmail = strings.TrimSpace(in.ClientEmail)
	inv.ClientCompany = strings.TrimSpace(in.ClientCompany)
	inv.ClientAddress = strings.TrimSpace(in.ClientAddress)
	inv.Title = strings.TrimSpace(in.Title)
	inv.Description = strings.TrimSpace(in.Description)
	inv.Notes = strings.TrimSpace(in.Notes)
	inv.Currency = in.Currency
	inv.TaxRate = in.TaxRate
	inv.Discount = in.Discount
	inv.DueDate = utcPtr(in.DueDate)
	inv.Lines = toLineItems(in.Lines)
}

func toLineItems(in []LineInput) []LineItem {
	out := make([]LineItem, 0, len(in))
	for _, l := range in {
		out = append(out, LineItem{
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			Rate:        l.Rate,
		})
	}
	return out
}

func pick(v *string, def string) string {
	if v != nil {
		return *v
	}
	return def
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// IsClientError reports whether err comes from the caller's request rather than infrastructure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || IsInvalidTransition(err) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrImmutable) || errors.Is(err, ErrRateLimited)
}
