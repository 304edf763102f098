package horizon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a summary record from an account's transaction history.
type Transaction struct {
	Hash          string
	Ledger        int64
	Successful    bool
	Memo          string
	MemoType      string
	SourceAccount string
	CreatedAt     time.Time
}

// PaymentOp is a value transfer extracted from a transaction's operations.
// Amount is what the destination received.
type PaymentOp struct {
	Type        string
	From        string
	To          string
	Amount      decimal.Decimal
	AssetCode   string
	AssetIssuer string
}

// TransactionDetails is a transaction together with its payment operations.
type TransactionDetails struct {
	Transaction
	Payments []PaymentOp
}

// SubmitResult is the ledger's acceptance of a submitted transaction.
type SubmitResult struct {
	Hash       string
	Ledger     int64
	Successful bool
}

// Wire shapes of the Horizon REST API.

type txRecord struct {
	Hash          string    `json:"hash"`
	Ledger        int64     `json:"ledger"`
	Successful    bool      `json:"successful"`
	Memo          string    `json:"memo"`
	MemoType      string    `json:"memo_type"`
	SourceAccount string    `json:"source_account"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r txRecord) toTransaction() Transaction {
	return Transaction{
		Hash:          r.Hash,
		Ledger:        r.Ledger,
		Successful:    r.Successful,
		Memo:          r.Memo,
		MemoType:      r.MemoType,
		SourceAccount: r.SourceAccount,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type opRecord struct {
	Type            string `json:"type"`
	SourceAccount   string `json:"source_account"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code"`
	AssetIssuer     string `json:"asset_issuer"`
	Funder          string `json:"funder"`
	Account         string `json:"account"`
	StartingBalance string `json:"starting_balance"`
}

type page[T any] struct {
	Embedded struct {
		Records []T `json:"records"`
	} `json:"_embedded"`
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes struct {
			Transaction string   `json:"transaction"`
			Operations  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras"`
}
