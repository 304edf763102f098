package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxBodyBytes caps how much of a Horizon response is read.
const maxBodyBytes = 4 << 20

// opsPageLimit is Horizon's maximum page size; a transaction holds at most 100 operations.
const opsPageLimit = 200

// Client talks to a Horizon-compatible REST API. Reads are retried with
// exponential backoff on 429 and 5xx; submissions are never retried.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client built from Config.Timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(cfg Config, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.Network.HorizonURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Config() Config { return c.cfg }

// ListRecentTransactions returns up to limit of account's most recent
// transactions, newest first. An account unknown to the ledger has no history.
func (c *Client) ListRecentTransactions(ctx context.Context, account string, limit int) ([]Transaction, error) {
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", strconv.Itoa(limit))

	var p page[txRecord]
	err := c.get(ctx, "/accounts/"+url.PathEscape(account)+"/transactions", q, &p)
	if isStatus(err, http.StatusNotFound) {
		return []Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", account, err)
	}

	out := make([]Transaction, 0, len(p.Embedded.Records))
	for _, r := range p.Embedded.Records {
		out = append(out, r.toTransaction())
	}
	return out, nil
}

// GetTransactionDetails fetches a transaction and its payment operations.
// It returns ErrTransactionNotFound for an unknown hash.
func (c *Client) GetTransactionDetails(ctx context.Context, hash string) (*TransactionDetails, error) {
	var rec txRecord
	err := c.get(ctx, "/transactions/"+url.PathEscape(hash), nil, &rec)
	if isStatus(err, http.StatusNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(opsPageLimit))
	var ops page[opRecord]
	if err := c.get(ctx, "/transactions/"+url.PathEscape(hash)+"/operations", q, &ops); err != nil {
		return nil, fmt.Errorf("get operations for %s: %w", hash, err)
	}

	details := &TransactionDetails{Transaction: rec.toTransaction()}
	for _, op := range ops.Embedded.Records {
		p, ok, err := toPayment(op)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", hash, err)
		}
		if ok {
			details.Payments = append(details.Payments, p)
		}
	}
	return details, nil
}

// SubmitTransaction forwards an already-signed transaction envelope (base64
// XDR). A 4xx with result codes is a definitive rejection; a timeout or 5xx
// leaves the outcome unknown.
func (c *Client) SubmitTransaction(ctx context.Context, envelopeXDR string) (*SubmitResult, error) {
	form := url.Values{}
	form.Set("tx", envelopeXDR)

	var rec txRecord
	err := c.do(ctx, http.MethodPost, "/transactions", strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", &rec)
	if err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	return &SubmitResult{Hash: rec.Hash, Ledger: rec.Ledger, Successful: rec.Successful}, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, http.MethodGet, path, nil, "", out)
		var herr *Error
		if err == nil || !errors.As(err, &herr) || !herr.Retryable() || attempt >= c.cfg.MaxRetries {
			return err
		}
		delay := c.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt))
		c.logger.Debug("horizon request retry", "path", path, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	return parseProblem(resp.StatusCode, data)
}

func parseProblem(status int, data []byte) *Error {
	herr := &Error{Status: status}
	var p problem
	if json.Unmarshal(data, &p) != nil {
		herr.Detail = strings.TrimSpace(string(data))
		return herr
	}
	herr.Code = p.Title
	herr.Detail = p.Detail
	herr.TxCode = p.Extras.ResultCodes.Transaction
	herr.OpCodes = p.Extras.ResultCodes.Operations
	return herr
}

func isStatus(err error, status int) bool {
	var herr *Error
	return errors.As(err, &herr) && herr.Status == status
}

// toPayment maps value-moving operations. Other operation types are skipped.
func toPayment(op opRecord) (PaymentOp, bool, error) {
	p := PaymentOp{Type: op.Type}
	var amount string
	switch op.Type {
	case "payment", "path_payment_strict_receive", "path_payment_strict_send":
		p.From, p.To, amount = op.From, op.To, op.Amount
		p.AssetCode, p.AssetIssuer = assetOf(op.AssetType, op.AssetCode, op.AssetIssuer)
	case "create_account":
		p.From, p.To, amount = op.Funder, op.Account, op.StartingBalance
		p.AssetCode = "XLM"
	default:
		return p, false, nil
	}
	if p.From == "" {
		p.From = op.SourceAccount
	}
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return p, false, fmt.Errorf("invalid %s amount %q: %w", op.Type, amount, err)
	}
	p.Amount = v
	return p, true, nil
}

func assetOf(assetType, code, issuer string) (string, string) {
	if assetType == "native" {
		return "XLM", ""
	}
	return code, issuer
}
