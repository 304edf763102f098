package payment_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/link2pay/link2pay/apps/api/internal/auth"
	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
	"github.com/link2pay/link2pay/apps/api/internal/payment"
	"github.com/link2pay/link2pay/apps/api/internal/settlement"
	"github.com/link2pay/link2pay/apps/api/internal/store"
)

const (
	payee       = "GPAYEE"
	payer       = "GPAYER"
	usdcIssuer  = "GUSDCISSUER"
	testnetPass = "Test SDF Network ; September 2015"
)

var ledgerCfg = horizon.Config{
	Network: horizon.Network{
		Name:       horizon.Testnet,
		Passphrase: testnetPass,
		Issuers:    map[string]string{"USDC": usdcIssuer, "EURC": "GEURCISSUER"},
	},
}

type fakeLedger struct {
	mu        sync.Mutex
	txs       map[string]*horizon.TransactionDetails
	submitErr error
	submitted []string
	onSubmit  func(xdr string) *horizon.TransactionDetails
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{txs: make(map[string]*horizon.TransactionDetails)}
}

func (f *fakeLedger) add(tx *horizon.TransactionDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.Hash] = tx
}

func (f *fakeLedger) GetTransactionDetails(_ context.Context, hash string) (*horizon.TransactionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, horizon.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeLedger) SubmitTransaction(_ context.Context, xdr string) (*horizon.SubmitResult, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, xdr)
	err, hook := f.submitErr, f.onSubmit
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	tx := hook(xdr)
	f.add(tx)
	return &horizon.SubmitResult{Hash: tx.Hash, Ledger: tx.Ledger, Successful: tx.Successful}, nil
}

type env struct {
	store  *store.Store
	ledger *fakeLedger
	svc    *payment.Service
	now    time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "payment.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ledger := newFakeLedger()
	writer := settlement.NewWriter(s, s.Audit(), nil)
	svc := payment.NewService(payment.Config{TxTimeout: 300 * time.Second}, ledgerCfg, s, ledger, writer,
		settlement.Matcher{}, nil, payment.WithAudit(s.Audit()), payment.WithClock(func() time.Time { return now }))
	return &env{store: s, ledger: ledger, svc: svc, now: now}
}

func (e *env) invoice(t *testing.T, id, currency, total string, status invoice.Status, due *time.Time) *invoice.Invoice {
	t.Helper()
	inv := &invoice.Invoice{
		ID:          id,
		Status:      status,
		PayeeWallet: payee,
		ClientName:  "Acme",
		ClientEmail: "ap@acme.test",
		Title:       "Design work",
		Currency:    currency,
		DueDate:     due,
		Lines: []invoice.LineItem{
			{Description: "Design work", Quantity: decimal.NewFromInt(1), Rate: decimal.RequireFromString(total)},
		},
		CreatedAt: e.now,
		UpdatedAt: e.now,
	}
	inv.Recalculate()
	require.NoError(t, e.store.CreateInvoice(context.Background(), inv))
	return inv
}

func paymentTx(hash, memo, asset, amount string) *horizon.TransactionDetails {
	return &horizon.TransactionDetails{
		Transaction: horizon.Transaction{
			Hash:       hash,
			Ledger:     4242,
			Successful: true,
			Memo:       memo,
			CreatedAt:  time.Date(2026, 5, 1, 12, 5, 0, 0, time.UTC),
		},
		Payments: []horizon.PaymentOp{{
			Type:        "payment",
			From:        payer,
			To:          payee,
			Amount:      decimal.RequireFromString(amount),
			AssetCode:   asset,
			AssetIssuer: usdcIssuer,
		}},
	}
}

func senderKey(t *testing.T) string {
	t.Helper()
	pub := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize)).Public().(ed25519.PublicKey)
	addr, err := auth.EncodeAccountID(pub)
	require.NoError(t, err)
	return addr
}

func TestPayIntent_Golden(t *testing.T) {
	e := newEnv(t)
	e.invoice(t, "8d4f2c1e-5a7b-4c3d-9e8f-0a1b2c3d4e5f", invoice.USDC, "100", invoice.StatusPending, nil)

	intent, err := e.svc.PayIntent(context.Background(), "8d4f2c1e-5a7b-4c3d-9e8f-0a1b2c3d4e5f", senderKey(t))
	require.NoError(t, err)

	data, err := json.MarshalIndent(intent, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "pay_intent_usdc", append(data, '\n'))
}

func TestPayIntent_NativeAsset(t *testing.T) {
	e := newEnv(t)
	inv := e.invoice(t, "xlm-1", invoice.XLM, "12.5", invoice.StatusPending, nil)

	intent, err := e.svc.PayIntent(context.Background(), inv.ID, senderKey(t))
	require.NoError(t, err)
	assert.Equal(t, invoice.XLM, intent.Asset.Code)
	assert.Nil(t, intent.Asset.Issuer)
	assert.Equal(t, "12.5", intent.Amount)
	assert.Equal(t, inv.Number, intent.Memo)
	assert.NotContains(t, intent.SEP7URI, "asset_code")
	_, query, _ := strings.Cut(intent.SEP7URI, "?")
	assert.NotContains(t, query, "+")
	assert.True(t, strings.HasPrefix(intent.SEP7URI, "web+stellar:pay?amount=12.5&destination=GPAYEE&memo=INV-"))
}

func TestPayIntent_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	draft := e.invoice(t, "draft-1", invoice.USDC, "10", invoice.StatusDraft, nil)
	past := e.now.Add(-time.Minute)
	overdue := e.invoice(t, "overdue-1", invoice.USDC, "10", invoice.StatusPending, &past)

	_, err := e.svc.PayIntent(ctx, draft.ID, "not-a-wallet")
	assert.ErrorIs(t, err, payment.ErrInvalidSender)

	_, err = e.svc.PayIntent(ctx, draft.ID, senderKey(t))
	var ist *invoice.InvalidStateTransition
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, invoice.StatusDraft, ist.Current)

	_, err = e.svc.PayIntent(ctx, overdue.ID, senderKey(t))
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, invoice.StatusExpired, ist.Current)

	_, err = e.svc.PayIntent(ctx, "missing", senderKey(t))
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func TestConfirm_SettlesAndIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-1", invoice.USDC, "100", invoice.StatusPending, nil)
	e.ledger.add(paymentTx("hash-1", inv.Number, invoice.USDC, "100"))

	got, err := e.svc.Confirm(ctx, inv.ID, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.Equal(t, "hash-1", got.TransactionHash)
	assert.Equal(t, payer, got.PayerWallet)

	again, err := e.svc.Confirm(ctx, inv.ID, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, again.Status)

	payments, err := e.store.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	// A second payment for a settled invoice is verified, then refused.
	e.ledger.add(paymentTx("hash-other", inv.Number, invoice.USDC, "100"))
	_, err = e.svc.Confirm(ctx, inv.ID, "hash-other")
	assert.ErrorIs(t, err, payment.ErrSettlementRejected)

	payments, err = e.store.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestConfirm_ExpiredInvoiceAlerts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-x", invoice.USDC, "25", invoice.StatusExpired, nil)
	e.ledger.add(paymentTx("after-expiry", inv.Number, invoice.USDC, "25"))

	var alerts []settlement.Rejection
	writer := settlement.NewWriter(e.store, e.store.Audit(), nil,
		settlement.WithAlertHook(settlement.AlertFunc(func(_ context.Context, r settlement.Rejection) {
			alerts = append(alerts, r)
		})))
	svc := payment.NewService(payment.Config{}, ledgerCfg, e.store, e.ledger, writer, settlement.Matcher{}, nil)

	_, err := svc.Confirm(ctx, inv.ID, "after-expiry")
	assert.ErrorIs(t, err, payment.ErrSettlementRejected)

	require.Len(t, alerts, 1)
	assert.Equal(t, "after-expiry", alerts[0].TransactionHash)
	assert.Equal(t, invoice.StatusExpired, alerts[0].Status)
	assert.Equal(t, payer, alerts[0].PayerWallet)

	got, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusExpired, got.Status)

	entries, err := e.store.Audit().ForInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, invoice.AuditSettlementRejected, entries[len(entries)-1].Action)

	// A transaction that does not pay the invoice is a mismatch, not an alert.
	e.ledger.add(paymentTx("too-small", inv.Number, invoice.USDC, "1"))
	_, err = svc.Confirm(ctx, inv.ID, "too-small")
	assert.ErrorIs(t, err, payment.ErrPaymentMismatch)
	assert.Len(t, alerts, 1)
}

func TestConfirm_Mismatches(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-2", invoice.USDC, "100", invoice.StatusPending, nil)

	e.ledger.add(paymentTx("wrong-memo", "INV-9999", invoice.USDC, "100"))
	e.ledger.add(paymentTx("short", inv.Number, invoice.USDC, "99.9999999"))
	e.ledger.add(paymentTx("wrong-asset", inv.Number, invoice.EURC, "100"))
	failed := paymentTx("failed", inv.Number, invoice.USDC, "100")
	failed.Successful = false
	e.ledger.add(failed)

	for _, hash := range []string{"wrong-memo", "short", "wrong-asset"} {
		_, err := e.svc.Confirm(ctx, inv.ID, hash)
		assert.ErrorIs(t, err, payment.ErrPaymentMismatch, hash)
	}
	_, err := e.svc.Confirm(ctx, inv.ID, "failed")
	assert.ErrorIs(t, err, payment.ErrTransactionFailed)
	_, err = e.svc.Confirm(ctx, inv.ID, "unknown")
	assert.ErrorIs(t, err, horizon.ErrTransactionNotFound)

	got, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, got.Status)
}

type rejectingSettler struct{}

func (rejectingSettler) Settle(context.Context, *invoice.Invoice, *horizon.TransactionDetails, horizon.PaymentOp) (settlement.Outcome, error) {
	return settlement.Rejected, nil
}

func TestConfirm_LostRaceToExpiry(t *testing.T) {
	e := newEnv(t)
	inv := e.invoice(t, "inv-3", invoice.USDC, "5", invoice.StatusPending, nil)
	e.ledger.add(paymentTx("late", inv.Number, invoice.USDC, "5"))
	svc := payment.NewService(payment.Config{}, ledgerCfg, e.store, e.ledger, rejectingSettler{}, settlement.Matcher{}, nil)

	_, err := svc.Confirm(context.Background(), inv.ID, "late")
	assert.ErrorIs(t, err, payment.ErrSettlementRejected)
}

func TestSubmit_SettlesImmediately(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-4", invoice.USDC, "100", invoice.StatusPending, nil)
	e.ledger.onSubmit = func(string) *horizon.TransactionDetails {
		return paymentTx("submitted-1", inv.Number, invoice.USDC, "100")
	}

	res, err := e.svc.Submit(ctx, inv.ID, "AAAA...signed")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "submitted-1", res.TransactionHash)
	assert.Equal(t, invoice.StatusPaid, res.Status)
	assert.Equal(t, []string{"AAAA...signed"}, e.ledger.submitted)
}

func TestSubmit_DefinitiveRejectionReopens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-5", invoice.USDC, "100", invoice.StatusPending, nil)
	e.ledger.submitErr = &horizon.Error{Status: http.StatusBadRequest, Code: "transaction_failed",
		TxCode: "tx_failed", OpCodes: []string{"op_underfunded"}}

	_, err := e.svc.Submit(ctx, inv.ID, "AAAA")
	var serr *payment.SubmitError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.Definitive)
	assert.Contains(t, serr.Message, "Insufficient balance")

	got, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, got.Status)

	entries, err := e.store.Audit().ForInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, invoice.AuditPaymentRejected, entries[len(entries)-1].Action)
}

func TestSubmit_BadSequenceThenPaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-5b", invoice.USDC, "100", invoice.StatusPending, nil)

	// An envelope that fails before it can pay anything.
	e.ledger.submitErr = &horizon.Error{Status: http.StatusBadRequest, TxCode: "tx_bad_seq"}
	_, err := e.svc.Submit(ctx, inv.ID, "stale-sequence")
	var serr *payment.SubmitError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.Definitive)

	got, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, invoice.StatusPending, got.Status)

	// The payer pays from their own wallet and confirms.
	e.ledger.add(paymentTx("paid-directly", inv.Number, invoice.USDC, "100"))
	settled, err := e.svc.Confirm(ctx, inv.ID, "paid-directly")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, settled.Status)
	assert.Equal(t, "paid-directly", settled.TransactionHash)
}

func TestSubmit_UnknownOutcomeStaysProcessing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-6", invoice.USDC, "100", invoice.StatusPending, nil)
	e.ledger.submitErr = &horizon.Error{Status: http.StatusGatewayTimeout, Code: "timeout"}

	_, err := e.svc.Submit(ctx, inv.ID, "AAAA")
	var serr *payment.SubmitError
	require.ErrorAs(t, err, &serr)
	assert.False(t, serr.Definitive)

	got, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusProcessing, got.Status)

	// A resubmission from PROCESSING goes through.
	e.ledger.submitErr = nil
	e.ledger.onSubmit = func(string) *horizon.TransactionDetails {
		return paymentTx("retry-1", inv.Number, invoice.USDC, "100")
	}
	res, err := e.svc.Submit(ctx, inv.ID, "AAAA")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, res.Status)
}

func TestSubmit_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	draft := e.invoice(t, "inv-7", invoice.USDC, "100", invoice.StatusDraft, nil)

	_, err := e.svc.Submit(ctx, draft.ID, "  ")
	assert.ErrorIs(t, err, payment.ErrEmptyEnvelope)

	_, err = e.svc.Submit(ctx, draft.ID, "AAAA")
	assert.True(t, invoice.IsInvalidTransition(err))
	assert.Empty(t, e.ledger.submitted)
}

func TestSubmit_OverdueInvoice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	past := e.now.Add(-time.Second)
	pending := e.invoice(t, "inv-7p", invoice.USDC, "100", invoice.StatusPending, &past)
	processing := e.invoice(t, "inv-7q", invoice.USDC, "100", invoice.StatusProcessing, &past)

	for _, inv := range []*invoice.Invoice{pending, processing} {
		_, err := e.svc.Submit(ctx, inv.ID, "AAAA")
		var ist *invoice.InvalidStateTransition
		require.ErrorAs(t, err, &ist, inv.ID)
		assert.Equal(t, invoice.StatusExpired, ist.Current)
		assert.Equal(t, invoice.StatusProcessing, ist.Requested)

		got, err := e.store.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, inv.Status, got.Status, "left for the sweeper")
	}
	assert.Empty(t, e.ledger.submitted)
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, "inv-8", invoice.USDC, "100", invoice.StatusPending, nil)

	v, err := e.svc.Status(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, v.Status)
	assert.Nil(t, v.TransactionHash)
	assert.Nil(t, v.PaidAt)

	e.ledger.add(paymentTx("hash-8", inv.Number, invoice.USDC, "100"))
	_, err = e.svc.Confirm(ctx, inv.ID, "hash-8")
	require.NoError(t, err)

	v, err = e.svc.Status(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, v.Status)
	require.NotNil(t, v.TransactionHash)
	assert.Equal(t, "hash-8", *v.TransactionHash)
	require.NotNil(t, v.LedgerNumber)
	assert.Equal(t, int64(4242), *v.LedgerNumber)
	require.NotNil(t, v.PayerWallet)
	assert.Equal(t, payer, *v.PayerWallet)
}

func newRouter(e *env, limiter *auth.RateLimiter) http.Handler {
	r := chi.NewRouter()
	payment.NewHandler(e.svc, limiter, nil).Mount(r)
	return r
}

func TestHandler_Routes(t *testing.T) {
	e := newEnv(t)
	inv := e.invoice(t, "inv-h", invoice.USDC, "100", invoice.StatusPending, nil)
	e.ledger.add(paymentTx("hash-h", inv.Number, invoice.USDC, "100"))
	srv := httptest.NewServer(newRouter(e, nil))
	defer srv.Close()

	body := `{"senderPublicKey":"` + senderKey(t) + `"}`
	resp, err := http.Post(srv.URL+"/payments/"+inv.ID+"/pay-intent", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var intent payment.PayIntent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&intent))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, inv.Number, intent.Memo)

	resp, err = http.Post(srv.URL+"/payments/confirm", "application/json",
		strings.NewReader(`{"invoiceId":"inv-h","transactionHash":"hash-h"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/payments/inv-h/status")
	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, "PAID", view["status"])
	assert.Equal(t, "hash-h", view["transactionHash"])
}

func TestHandler_ErrorMapping(t *testing.T) {
	e := newEnv(t)
	e.invoice(t, "inv-e", invoice.USDC, "100", invoice.StatusPending, nil)
	e.invoice(t, "inv-d", invoice.USDC, "100", invoice.StatusDraft, nil)
	e.ledger.submitErr = &horizon.Error{Status: http.StatusBadRequest, TxCode: "tx_bad_seq"}
	srv := httptest.NewServer(newRouter(e, nil))
	defer srv.Close()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", "/payments/confirm", `{`, http.StatusBadRequest, "BAD_JSON"},
		{"missing fields", "/payments/confirm", `{"invoiceId":"inv-e"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown invoice", "/payments/confirm", `{"invoiceId":"nope","transactionHash":"h"}`, http.StatusNotFound, "NOT_FOUND"},
		{"unknown tx", "/payments/confirm", `{"invoiceId":"inv-e","transactionHash":"h"}`, http.StatusNotFound, "TRANSACTION_NOT_FOUND"},
		{"bad sender", "/payments/inv-e/pay-intent", `{"senderPublicKey":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"rejected submit", "/payments/submit", `{"invoiceId":"inv-e","signedTransactionXdr":"AAAA"}`, http.StatusBadRequest, "TRANSACTION_REJECTED"},
		{"rejected again", "/payments/submit", `{"invoiceId":"inv-e","signedTransactionXdr":"AAAA"}`, http.StatusBadRequest, "TRANSACTION_REJECTED"},
		{"draft invoice", "/payments/submit", `{"invoiceId":"inv-d","signedTransactionXdr":"AAAA"}`, http.StatusConflict, "INVALID_STATE_TRANSITION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			var apiErr invoice.APIError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestHandler_PayIntentRateLimited(t *testing.T) {
	e := newEnv(t)
	e.invoice(t, "inv-r", invoice.XLM, "1", invoice.StatusPending, nil)
	srv := httptest.NewServer(newRouter(e, auth.NewRateLimiter(1, time.Hour)))
	defer srv.Close()

	post := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/payments/inv-r/pay-intent",
			strings.NewReader(`{"senderPublicKey":"`+senderKey(t)+`"}`))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}
	assert.Equal(t, http.StatusOK, post().StatusCode)
	resp := post()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestSubmitError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&payment.SubmitError{Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "submit transaction: boom", err.Error())
}
