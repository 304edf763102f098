package settlement

import (
	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
)

// Matcher decides whether a ledger transaction pays an invoice.
type Matcher struct {
	// StrictIssuer also requires the issuing account of non-native assets
	// to equal Issuer(code).
	StrictIssuer bool
	Issuer       func(code string) string
}

// MatchMemo returns the first candidate whose id or number equals memo exactly.
func MatchMemo(memo string, candidates []invoice.Invoice) (*invoice.Invoice, bool) {
	if memo == "" {
		return nil, false
	}
	for i := range candidates {
		if candidates[i].MatchesMemo(memo) {
			return &candidates[i], true
		}
	}
	return nil, false
}

// FindPayment returns the first operation that pays inv: sent to the payee,
// in the invoice currency, for at least the invoice total. Overpayment is
// accepted; underpayment never matches.
func (m Matcher) FindPayment(inv *invoice.Invoice, ops []horizon.PaymentOp) (horizon.PaymentOp, bool) {
	for _, op := range ops {
		if op.To != inv.PayeeWallet || op.AssetCode != inv.Currency {
			continue
		}
		if m.StrictIssuer && inv.Currency != invoice.XLM && m.Issuer != nil {
			if want := m.Issuer(inv.Currency); want != "" && op.AssetIssuer != want {
				continue
			}
		}
		if op.Amount.GreaterThanOrEqual(inv.Total) {
			return op, true
		}
	}
	return horizon.PaymentOp{}, false
}
