package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
	"github.com/link2pay/link2pay/apps/api/internal/settlement"
)

var (
	ErrInvalidSender      = errors.New("senderPublicKey must be a valid wallet address")
	ErrEmptyEnvelope      = errors.New("signedTransactionXdr is required")
	ErrTransactionFailed  = errors.New("transaction failed on the ledger")
	ErrPaymentMismatch    = errors.New("transaction does not pay this invoice")
	ErrSettlementRejected = errors.New("invoice can no longer be settled")
	ErrIssuerUnknown      = errors.New("no issuer configured for asset")
)

// SubmitError is a failed forward of a signed transaction. Definitive
// rejections moved the invoice to FAILED; anything else left it PROCESSING.
type SubmitError struct {
	Definitive bool
	Message    string
	Err        error
}

func (e *SubmitError) Error() string { return "submit transaction: " + e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// Store is the invoice persistence the payment paths need.
type Store interface {
	GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error)
	TransitionInvoice(ctx context.Context, id string, to invoice.Status, from ...invoice.Status) error
}

type Ledger interface {
	GetTransactionDetails(ctx context.Context, hash string) (*horizon.TransactionDetails, error)
	SubmitTransaction(ctx context.Context, envelopeXDR string) (*horizon.SubmitResult, error)
}

type Settler interface {
	Settle(ctx context.Context, inv *invoice.Invoice, tx *horizon.TransactionDetails, op horizon.PaymentOp) (settlement.Outcome, error)
}

// Asset names a settlement asset. Issuer is nil for native XLM.
type Asset struct {
	Code   string  `json:"code"`
	Issuer *string `json:"issuer"`
}

// PayIntent describes the payment a payer's wallet must build and sign.
// No transaction is constructed here.
type PayIntent struct {
	InvoiceID         string `json:"invoiceId"`
	Destination       string `json:"destination"`
	Amount            string `json:"amount"`
	Asset             Asset  `json:"asset"`
	Memo              string `json:"memo"`
	MemoType          string `json:"memoType"`
	NetworkPassphrase string `json:"networkPassphrase"`
	Timeout           int    `json:"timeout"`
	SEP7URI           string `json:"sep7Uri"`
}

type SubmitResult struct {
	Success         bool           `json:"success"`
	TransactionHash string         `json:"transactionHash"`
	Ledger          int64          `json:"ledger"`
	Status          invoice.Status `json:"status"`
}

// StatusView is the payer-facing settlement state of an invoice.
type StatusView struct {
	InvoiceID       string         `json:"invoiceId"`
	Status          invoice.Status `json:"status"`
	TransactionHash *string        `json:"transactionHash"`
	LedgerNumber    *int64         `json:"ledgerNumber"`
	PaidAt          *time.Time     `json:"paidAt"`
	PayerWallet     *string        `json:"payerWallet"`
}

// Service implements the payer side: pay intents, submission of signed
// transactions and client-reported confirmations. Confirmations settle
// through the same writer as the ledger scanner.
type Service struct {
	cfg     Config
	ledgerC horizon.Config
	store   Store
	ledger  Ledger
	settler Settler
	matcher settlement.Matcher
	audit   invoice.AuditRecorder
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAudit(a invoice.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

func NewService(cfg Config, ledgerCfg horizon.Config, store Store, ledger Ledger, settler Settler, matcher settlement.Matcher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:     cfg.withDefaults(),
		ledgerC: ledgerCfg,
		store:   store,
		ledger:  ledger,
		settler: settler,
		matcher: matcher,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PayIntent returns the unsigned payment description for invoice id.
func (s *Service) PayIntent(ctx context.Context, id, sender string) (*PayIntent, error) {
	if !auth.ValidAccountID(strings.TrimSpace(sender)) {
		return nil, ErrInvalidSender
	}
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.IsAwaitingSettlement() {
		return nil, &invoice.InvalidStateTransition{Current: inv.Status, Requested: invoice.StatusProcessing}
	}
	if inv.Overdue(s.now()) {
		return nil, &invoice.InvalidStateTransition{Current: invoice.StatusExpired, Requested: invoice.StatusProcessing}
	}

	intent := &PayIntent{
		InvoiceID:         inv.ID,
		Destination:       inv.PayeeWallet,
		Amount:            inv.Total.String(),
		Asset:             Asset{Code: inv.Currency},
		Memo:              inv.Number,
		MemoType:          "MEMO_TEXT",
		NetworkPassphrase: s.ledgerC.Network.Passphrase,
		Timeout:           int(s.cfg.TxTimeout / time.Second),
	}
	if inv.Currency != invoice.XLM {
		issuer := s.ledgerC.Issuer(inv.Currency)
		if issuer == "" {
			return nil, fmt.Errorf("%w: %s", ErrIssuerUnknown, inv.Currency)
		}
		intent.Asset.Issuer = &issuer
	}
	intent.SEP7URI = sep7URI(intent)
	return intent, nil
}

// sep7URI renders a SEP-0007 pay request. Spaces are encoded as %20, never '+'.
func sep7URI(p *PayIntent) string {
	q := url.Values{}
	q.Set("destination", p.Destination)
	q.Set("amount", p.Amount)
	if p.Asset.Issuer != nil {
		q.Set("asset_code", p.Asset.Code)
		q.Set("asset_issuer", *p.Asset.Issuer)
	}
	q.Set("memo", p.Memo)
	q.Set("memo_type", p.MemoType)
	q.Set("network_passphrase", p.NetworkPassphrase)
	return "web+stellar:pay?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// Confirm settles invoice id with a transaction hash reported by the payer.
// The transaction is fetched from the ledger and must satisfy the same
// memo and payment rules the scanner applies. A verified payment for an
// invoice that is no longer awaiting settlement goes through the settlement
// writer anyway so it is audited and alerted, and Confirm returns
// ErrSettlementRejected.
func (s *Service) Confirm(ctx context.Context, id, txHash string) (*invoice.Invoice, error) {
	txHash = strings.TrimSpace(txHash)
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoice.StatusPaid && inv.TransactionHash == txHash {
		return inv, nil
	}

	details, err := s.ledger.GetTransactionDetails(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !details.Successful {
		return nil, ErrTransactionFailed
	}
	if !inv.MatchesMemo(details.Memo) {
		return nil, fmt.Errorf("%w: memo %q", ErrPaymentMismatch, details.Memo)
	}
	op, ok := s.matcher.FindPayment(inv, details.Payments)
	if !ok {
		return nil, fmt.Errorf("%w: no payment of %s %s to the payee", ErrPaymentMismatch, inv.Total, inv.Currency)
	}

	outcome, err := s.settler.Settle(ctx, inv, details, op)
	if err != nil {
		return nil, err
	}
	if outcome == settlement.Rejected {
		return nil, ErrSettlementRejected
	}
	return s.store.GetInvoice(ctx, id)
}

// Submit forwards an already-signed transaction for invoice id to the ledger.
//
// The invoice moves PENDING -> PROCESSING first; a resubmission while
// PROCESSING is allowed. A definitive ledger rejection moves it back to
// PENDING so the payer can retry with a corrected transaction. Transient
// failures leave it PROCESSING so the scanner can still settle it if the
// transaction landed.
func (s *Service) Submit(ctx context.Context, id, envelopeXDR string) (*SubmitResult, error) {
	envelopeXDR = strings.TrimSpace(envelopeXDR)
	if envelopeXDR == "" {
		return nil, ErrEmptyEnvelope
	}
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.IsAwaitingSettlement() && inv.Overdue(s.now()) {
		return nil, &invoice.InvalidStateTransition{Current: invoice.StatusExpired, Requested: invoice.StatusProcessing}
	}
	if err := s.store.TransitionInvoice(ctx, id, invoice.StatusProcessing, invoice.StatusPending); err != nil {
		var ist *invoice.InvalidStateTransition
		if !errors.As(err, &ist) || ist.Current != invoice.StatusProcessing {
			return nil, err
		}
	}
	log := s.logger.With(slog.String("invoiceId", inv.ID), slog.String("invoiceNumber", inv.Number))

	res, err := s.ledger.SubmitTransaction(ctx, envelopeXDR)
	if err != nil {
		var herr *horizon.Error
		if errors.As(err, &herr) && herr.Definitive() {
			log.Warn("ledger rejected payment", "txCode", herr.TxCode, "opCodes", herr.OpCodes)
			if terr := s.store.TransitionInvoice(ctx, id, invoice.StatusPending, invoice.StatusProcessing); terr != nil {
				log.Warn("could not reopen invoice", "error", terr)
			} else {
				s.appendAudit(ctx, inv, invoice.AuditPaymentRejected, map[string]any{
					"status":  map[string]invoice.Status{"from": invoice.StatusProcessing, "to": invoice.StatusPending},
					"txCode":  herr.TxCode,
					"opCodes": herr.OpCodes,
				})
			}
			return nil, &SubmitError{Definitive: true, Message: herr.UserMessage(), Err: err}
		}
		log.Warn("payment submission outcome unknown, leaving invoice processing", "error", err)
		return nil, &SubmitError{Message: horizon.UserMessage(err), Err: err}
	}

	out := &SubmitResult{Success: res.Successful, TransactionHash: res.Hash, Ledger: res.Ledger, Status: invoice.StatusProcessing}
	settled, err := s.Confirm(ctx, id, res.Hash)
	if err != nil {
		log.Warn("submitted payment not settled yet", "txHash", res.Hash, "error", err)
		return out, nil
	}
	out.Status = settled.Status
	return out, nil
}

// Status reports the settlement state of invoice id.
func (s *Service) Status(ctx context.Context, id string) (*StatusView, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &StatusView{InvoiceID: inv.ID, Status: inv.Status, PaidAt: inv.PaidAt}
	if inv.TransactionHash != "" {
		v.TransactionHash = &inv.TransactionHash
	}
	if inv.LedgerSeq != 0 {
		v.LedgerNumber = &inv.LedgerSeq
	}
	if inv.PayerWallet != "" {
		v.PayerWallet = &inv.PayerWallet
	}
	return v, nil
}

func (s *Service) appendAudit(ctx context.Context, inv *invoice.Invoice, action string, details map[string]any) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(details)
	entry := invoice.AuditEntry{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		ChainKey:  inv.PayeeWallet,
		Actor:     string(invoice.ActorPayer),
		Action:    action,
		Details:   string(raw),
		Timestamp: s.now(),
	}
	if _, err := invoice.HashChain(ctx, s.audit, entry); err != nil {
		s.logger.Warn("audit append failed", "invoiceId", inv.ID, "action", action, "error", err)
	}
}
