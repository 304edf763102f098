package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supported settlement assets.
const (
	XLM  = "XLM"
	USDC = "USDC"
	EURC = "EURC"
)

// AmountPlaces is the ledger's fixed-point precision.
const AmountPlaces int32 = 7

// Invoice is the authoritative record of a payable request owned by a payee wallet.
type Invoice struct {
	ID            string          `json:"id"`
	Number        string          `json:"invoiceNumber"`
	Status        Status          `json:"status"`
	PayeeWallet   string          `json:"freelancerWallet"`
	PayeeName     string          `json:"freelancerName,omitempty"`
	PayeeEmail    string          `json:"freelancerEmail,omitempty"`
	PayeeCompany  string          `json:"freelancerCompany,omitempty"`
	ClientName    string          `json:"clientName"`
	ClientEmail   string          `json:"clientEmail"`
	ClientCompany string          `json:"clientCompany,omitempty"`
	ClientAddress string          `json:"clientAddress,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Currency      string          `json:"currency"`
	Lines         []LineItem      `json:"lineItems"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	DueDate       *time.Time      `json:"dueDate,omitempty"`

	// Settlement stamp, set once by the settlement writer.
	TransactionHash string     `json:"transactionHash,omitempty"`
	LedgerSeq       int64      `json:"ledgerNumber,omitempty"`
	PayerWallet     string     `json:"payerWallet,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Payment is the append-only record of a matched external transaction.
type Payment struct {
	ID              string          `json:"id"`
	InvoiceID       string          `json:"invoiceId"`
	TransactionHash string          `json:"transactionHash"`
	LedgerSeq       int64           `json:"ledgerNumber"`
	FromWallet      string          `json:"fromWallet"`
	ToWallet        string          `json:"toWallet"`
	Amount          decimal.Decimal `json:"amount"`
	Asset           string          `json:"asset"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// PublicInvoice is the view served to payers. Wallets and emails are omitted.
type PublicInvoice struct {
	ID              string          `json:"id"`
	Number          string          `json:"invoiceNumber"`
	Status          Status          `json:"status"`
	PayeeName       string          `json:"freelancerName,omitempty"`
	PayeeCompany    string          `json:"freelancerCompany,omitempty"`
	ClientName      string          `json:"clientName"`
	ClientCompany   string          `json:"clientCompany,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	CreatedAt       time.Time       `json:"createdAt"`
	DueDate         *time.Time      `json:"dueDate,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	Lines           []LineItem      `json:"lineItems"`
}

func (inv *Invoice) Public() PublicInvoice {
	return PublicInvoice{
		ID:              inv.ID,
		Number:          inv.Number,
		Status:          inv.Status,
		PayeeName:       inv.PayeeName,
		PayeeCompany:    inv.PayeeCompany,
		ClientName:      inv.ClientName,
		ClientCompany:   inv.ClientCompany,
		Title:           inv.Title,
		Description:     inv.Description,
		Notes:           inv.Notes,
		Subtotal:        inv.Subtotal,
		TaxRate:         inv.TaxRate,
		TaxAmount:       inv.TaxAmount,
		Discount:        inv.Discount,
		Total:           inv.Total,
		Currency:        inv.Currency,
		CreatedAt:       inv.CreatedAt,
		DueDate:         inv.DueDate,
		PaidAt:          inv.PaidAt,
		TransactionHash: inv.TransactionHash,
		Lines:           inv.Lines,
	}
}

// Overdue reports whether the due date has passed at now.
func (inv *Invoice) Overdue(now time.Time) bool {
	return inv.DueDate != nil && inv.DueDate.Before(now)
}

// MatchesMemo is the exact, case-sensitive memo rule used to tie an external
// transaction to this invoice.
func (inv *Invoice) MatchesMemo(memo string) bool {
	return memo != "" && (memo == inv.ID || memo == inv.Number)
}

// Stats summarises a payee's invoices for the dashboard.
type Stats struct {
	TotalInvoices   int                        `json:"totalInvoices"`
	ByStatus        map[Status]int             `json:"byStatus"`
	PaidInvoices    int                        `json:"paidInvoices"`
	PendingInvoices int                        `json:"pendingInvoices"`
	Revenue         map[string]decimal.Decimal `json:"revenue"`
	PendingAmount   map[string]decimal.Decimal `json:"pendingAmount"`
}

// ListFilter narrows a payee's invoice listing.
type ListFilter struct {
	PayeeWallet string
	Status      Status
	Limit       int
	Offset      int
}

// AuditEntry is a hash-chained record of a lifecycle event. Entries chain per payee wallet.
type AuditEntry struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	ChainKey  string    `json:"chainKey"`
	CorrID    string    `json:"corrId,omitempty"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
}

// Audit actions.
const (
	AuditCreated            = "CREATED"
	AuditSent               = "SENT"
	AuditCancelled          = "CANCELLED"
	AuditDeleted            = "DELETED"
	AuditPaid               = "PAID"
	AuditPaymentRejected    = "PAYMENT_REJECTED"
	AuditExpired            = "EXPIRED"
	AuditSettlementRejected = "SETTLEMENT_REJECTED"
)
