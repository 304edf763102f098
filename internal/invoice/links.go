package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LinkStatus is the payment-link view of an invoice status.
type LinkStatus string

const (
	LinkCreated   LinkStatus = "CREATED"
	LinkPending   LinkStatus = "PENDING"
	LinkConfirmed LinkStatus = "CONFIRMED"
	LinkExpired   LinkStatus = "EXPIRED"
	LinkFailed    LinkStatus = "FAILED"
	LinkCancelled LinkStatus = "CANCELLED"
)

const referencePrefix = "Reference: "

func LinkStatusFor(s Status) LinkStatus {
	switch s {
	case StatusDraft:
		return LinkCreated
	case StatusPending, StatusProcessing:
		return LinkPending
	case StatusPaid:
		return LinkConfirmed
	case StatusExpired:
		return LinkExpired
	case StatusFailed:
		return LinkFailed
	case StatusCancelled:
		return LinkCancelled
	}
	return LinkPending
}

type LinkInput struct {
	Amount          decimal.Decimal
	Asset           string
	RecipientWallet string
	ExpiresAt       *time.Time
	Title           string
	Description     string
	Reference       string
	PayerName       string
	PayerEmail      string
}

type LinkMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Reference   string `json:"reference,omitempty"`
	PayerName   string `json:"payerName,omitempty"`
	PayerEmail  string `json:"payerEmail,omitempty"`
}

type Link struct {
	ID              string          `json:"id"`
	Status          LinkStatus      `json:"status"`
	CheckoutURL     string          `json:"checkoutUrl"`
	Amount          decimal.Decimal `json:"amount"`
	Asset           string          `json:"asset"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       *time.Time      `json:"expiresAt"`
	Metadata        LinkMetadata    `json:"metadata"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	ConfirmedAt     *time.Time      `json:"confirmedAt,omitempty"`
	InvoiceID       string          `json:"legacyInvoiceId"`
	InvoiceNumber   string          `json:"legacyInvoiceNumber"`
}

type LinkStatusView struct {
	ID              string     `json:"id"`
	Status          LinkStatus `json:"status"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmedAt"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

// CreateLink creates a single-line invoice for wallet and sends it at once.
func (s *Service) CreateLink(ctx context.Context, wallet, corrID string, in LinkInput) (*Link, error) {
	if in.RecipientWallet != "" && in.RecipientWallet != wallet {
		return nil, fmt.Errorf("%w: recipient must match the authenticated wallet", ErrForbidden)
	}
	now := s.now().UTC()
	expires := now.Add(s.cfg.LinkTTL)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, &ValidationError{Items: []ValidationErrorItem{
				errItem("LINK-DATE-001", "expiresAt", "expiresAt must be in the future"),
			}}
		}
		expires = in.ExpiresAt.UTC()
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Payment Link"
	}
	payerName := strings.TrimSpace(in.PayerName)
	if payerName == "" {
		payerName = "Payer"
	}
	payerEmail := strings.TrimSpace(in.PayerEmail)
	if payerEmail == "" {
		payerEmail = "payer@link2pay.local"
	}
	var notes string
	if ref := strings.TrimSpace(in.Reference); ref != "" {
		notes = referencePrefix + ref
	}

	created, err := s.Create(ctx, wallet, CreateInput{
		ClientName:  payerName,
		ClientEmail: payerEmail,
		Title:       title,
		Description: in.Description,
		Notes:       notes,
		Currency:    in.Asset,
		DueDate:     &expires,
		Lines:       []LineInput{{Description: title, Quantity: decimal.NewFromInt(1), Rate: in.Amount}},
	})
	if err != nil {
		return nil, err
	}
	sent, err := s.Send(ctx, wallet, created.ID, corrID)
	if err != nil {
		return nil, fmt.Errorf("send link invoice: %w", err)
	}
	link := s.LinkFor(sent)
	link.Metadata.PayerEmail = sent.ClientEmail
	return &link, nil
}

// GetLink returns the public link view of an invoice.
func (s *Service) GetLink(ctx context.Context, id string) (*Link, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	link := s.LinkFor(inv)
	return &link, nil
}

func (s *Service) LinkStatus(ctx context.Context, id string) (*LinkStatusView, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LinkStatusView{
		ID:              inv.ID,
		Status:          LinkStatusFor(inv.Status),
		TransactionHash: inv.TransactionHash,
		ConfirmedAt:     inv.PaidAt,
		ExpiresAt:       inv.DueDate,
	}, nil
}

// LinkFor maps an invoice to its link view. Payer email is left out.
func (s *Service) LinkFor(inv *Invoice) Link {
	return Link{
		ID:          inv.ID,
		Status:      LinkStatusFor(inv.Status),
		CheckoutURL: s.CheckoutURL(inv.ID),
		Amount:      inv.Total,
		Asset:       inv.Currency,
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.DueDate,
		Metadata: LinkMetadata{
			Title:       inv.Title,
			Description: inv.Description,
			Reference:   extractReference(inv.Notes),
			PayerName:   inv.ClientName,
		},
		TransactionHash: inv.TransactionHash,
		ConfirmedAt:     inv.PaidAt,
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.Number,
	}
}

func (s *Service) CheckoutURL(id string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/pay/" + id
}

func extractReference(notes string) string {
	if !strings.HasPrefix(notes, referencePrefix) {
		return ""
	}
	return strings.TrimPrefix(notes, referencePrefix)
}
