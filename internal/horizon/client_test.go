package horizon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	payee = "GPAYEE"
	payer = "GPAYER"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	n, err := LookupNetwork(Testnet)
	require.NoError(t, err)
	n.HorizonURL = srv.URL
	return NewClient(Config{Network: n, Timeout: time.Second, MaxRetries: 2, RetryBaseDelay: time.Millisecond})
}

func TestListRecentTransactions(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/"+payee+"/transactions", r.URL.Path)
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"_embedded":{"records":[
			{"hash":"h2","ledger":102,"successful":true,"memo":"INV-1001","memo_type":"text","created_at":"2026-01-02T10:00:00Z","source_account":"GPAYER"},
			{"hash":"h1","ledger":101,"successful":false,"memo_type":"none","created_at":"2026-01-01T10:00:00Z"}
		]}}`)
	}))

	txs, err := c.ListRecentTransactions(context.Background(), payee, 20)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "h2", txs[0].Hash)
	assert.Equal(t, "INV-1001", txs[0].Memo)
	assert.True(t, txs[0].Successful)
	assert.Equal(t, int64(102), txs[0].Ledger)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), txs[0].CreatedAt)
	assert.False(t, txs[1].Successful)
	assert.Empty(t, txs[1].Memo)
}

func TestListRecentTransactions_UnknownAccount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"title":"Resource Missing","status":404}`)
	}))

	txs, err := c.ListRecentTransactions(context.Background(), payee, 20)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestGet_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"title":"Rate Limit Exceeded","status":429}`)
			return
		}
		fmt.Fprint(w, `{"_embedded":{"records":[]}}`)
	}))

	_, err := c.ListRecentTransactions(context.Background(), payee, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.ListRecentTransactions(context.Background(), payee, 5)
	require.Error(t, err)
	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusServiceUnavailable, herr.Status)
	assert.True(t, herr.Retryable())
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"title":"Bad Request","status":400,"detail":"invalid cursor"}`)
	}))

	_, err := c.ListRecentTransactions(context.Background(), payee, 5)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetTransactionDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/abc", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hash":"abc","ledger":500,"successful":true,"memo":"INV-1001","memo_type":"text","created_at":"2026-03-01T00:00:00Z"}`)
	})
	mux.HandleFunc("/transactions/abc/operations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"_embedded":{"records":[
			{"type":"payment","from":"GPAYER","to":"GPAYEE","amount":"100.0000000","asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":"GISSUER"},
			{"type":"manage_sell_offer","source_account":"GPAYER","amount":"1.0000000"},
			{"type":"payment","from":"GPAYER","to":"GOTHER","amount":"1.5","asset_type":"native"},
			{"type":"path_payment_strict_send","from":"GPAYER","to":"GPAYEE","amount":"9.9","asset_type":"credit_alphanum4","asset_code":"EURC","asset_issuer":"GEURC"},
			{"type":"create_account","source_account":"GPAYER","funder":"GPAYER","account":"GNEW","starting_balance":"2.0000000"}
		]}}`)
	})
	c := newTestClient(t, mux)

	d, err := c.GetTransactionDetails(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", d.Hash)
	assert.Equal(t, int64(500), d.Ledger)
	assert.Equal(t, "INV-1001", d.Memo)
	require.Len(t, d.Payments, 4)

	assert.Equal(t, payer, d.Payments[0].From)
	assert.Equal(t, payee, d.Payments[0].To)
	assert.True(t, d.Payments[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USDC", d.Payments[0].AssetCode)
	assert.Equal(t, "GISSUER", d.Payments[0].AssetIssuer)

	assert.Equal(t, "XLM", d.Payments[1].AssetCode)
	assert.Empty(t, d.Payments[1].AssetIssuer)

	assert.Equal(t, "path_payment_strict_send", d.Payments[2].Type)
	assert.Equal(t, "EURC", d.Payments[2].AssetCode)

	assert.Equal(t, "GNEW", d.Payments[3].To)
	assert.Equal(t, "XLM", d.Payments[3].AssetCode)
}

func TestGetTransactionDetails_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetTransactionDetails(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.False(t, IsRetryable(err))
}

func TestSubmitTransaction(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "AAAA+signed==", r.PostForm.Get("tx"))
		fmt.Fprint(w, `{"hash":"newhash","ledger":900,"successful":true}`)
	}))

	res, err := c.SubmitTransaction(context.Background(), "AAAA+signed==")
	require.NoError(t, err)
	assert.Equal(t, "newhash", res.Hash)
	assert.Equal(t, int64(900), res.Ledger)
}

func TestSubmitTransaction_Rejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"title":"Transaction Failed","status":400,
			"extras":{"result_codes":{"transaction":"tx_failed","operations":["op_underfunded"]}}}`)
	}))

	_, err := c.SubmitTransaction(context.Background(), "xdr")
	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.True(t, herr.Definitive())
	assert.False(t, herr.Retryable())
	assert.Equal(t, "tx_failed", herr.TxCode)
	assert.Contains(t, UserMessage(err), "Insufficient balance")
}

func TestSubmitTransaction_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))

	_, err := c.SubmitTransaction(context.Background(), "xdr")
	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.False(t, herr.Definitive())
	assert.True(t, herr.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no trust", &Error{Status: 400, TxCode: "tx_failed", OpCodes: []string{"op_success", "op_no_trust"}}, "trustline"},
		{"no destination", &Error{Status: 400, TxCode: "tx_failed", OpCodes: []string{"op_no_destination"}}, "does not exist"},
		{"line full", &Error{Status: 400, TxCode: "tx_failed", OpCodes: []string{"op_line_full"}}, "limit reached"},
		{"bad seq", &Error{Status: 400, TxCode: "tx_bad_seq"}, "sequence"},
		{"too late", &Error{Status: 400, TxCode: "tx_too_late"}, "timed out"},
		{"fee", &Error{Status: 400, TxCode: "tx_insufficient_fee"}, "fee"},
		{"rate limited", &Error{Status: 429}, "busy"},
		{"unavailable", &Error{Status: 503}, "temporarily unavailable"},
		{"other", errors.New("boom"), "Payment processing failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, UserMessage(tt.err), tt.want)
		})
	}
}

func TestLookupNetwork(t *testing.T) {
	n, err := LookupNetwork("public")
	require.NoError(t, err)
	assert.Equal(t, Mainnet, n.Name)
	assert.Equal(t, "Public Global Stellar Network ; September 2015", n.Passphrase)

	n.Issuers["USDC"] = "GCHANGED"
	again, err := LookupNetwork(Mainnet)
	require.NoError(t, err)
	assert.NotEqual(t, "GCHANGED", again.Issuers["USDC"], "defaults are copied")

	_, err = LookupNetwork("futurenet")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("STELLAR_NETWORK", "testnet")
	t.Setenv("HORIZON_URL", "http://localhost:8000/")
	t.Setenv("USDC_ISSUER", "GUSDCOVERRIDE")
	t.Setenv("HORIZON_MAX_RETRIES", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Network.HorizonURL)
	assert.Equal(t, "Test SDF Network ; September 2015", cfg.Network.Passphrase)
	assert.Equal(t, "GUSDCOVERRIDE", cfg.Issuer("usdc"))
	assert.Equal(t, "GDHU6WRG4IEQXM5NZ4BMPKOXHW76MZM4Y2IEMFDVXBSDP6SJY4ITNPP2", cfg.Issuer("EURC"))
	assert.Empty(t, cfg.Issuer("XLM"))
	assert.Equal(t, 4, cfg.MaxRetries)
}
