package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/link2pay/link2pay/apps/api/internal/horizon"
	"github.com/link2pay/link2pay/apps/api/internal/invoice"
	"github.com/link2pay/link2pay/apps/api/internal/settlement"
)

var (
	// ErrTickInFlight is returned by Tick while a previous tick is still running.
	ErrTickInFlight = errors.New("watcher tick already in progress")
	ErrRunning      = errors.New("watcher already running")
)

// Ledger is the external ledger as the scanner sees it.
type Ledger interface {
	ListRecentTransactions(ctx context.Context, account string, limit int) ([]horizon.Transaction, error)
	GetTransactionDetails(ctx context.Context, hash string) (*horizon.TransactionDetails, error)
}

type InvoiceStore interface {
	ListAwaitingSettlement(ctx context.Context) ([]invoice.Invoice, error)
	PaymentExists(ctx context.Context, hash string) (bool, error)
}

type Settler interface {
	Settle(ctx context.Context, inv *invoice.Invoice, tx *horizon.TransactionDetails, op horizon.PaymentOp) (settlement.Outcome, error)
}

// TickReport summarises one scan.
type TickReport struct {
	Expired    int
	Awaiting   int
	Payees     int
	Matched    int
	Settled    int
	Duplicates int
	Rejected   int
	Failures   int
}

// Scanner polls the ledger for payments to payees with invoices awaiting
// settlement and hands verified matches to the settlement writer.
type Scanner struct {
	cfg     Config
	store   InvoiceStore
	ledger  Ledger
	sweeper *Sweeper
	settler Settler
	matcher settlement.Matcher
	logger  *slog.Logger

	ticking atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScanner(cfg Config, store InvoiceStore, ledger Ledger, sweeper *Sweeper, settler Settler, matcher settlement.Matcher, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		cfg:     cfg.withDefaults(),
		store:   store,
		ledger:  ledger,
		sweeper: sweeper,
		settler: settler,
		matcher: matcher,
		logger:  logger,
	}
}

// Start runs the polling loop in the background until Stop is called or
// ctx is done. The first tick runs immediately.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.done)
	return nil
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run ticks immediately and then every PollInterval until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("watcher started", "pollInterval", s.cfg.PollInterval, "historyWindow", s.cfg.HistoryWindow)
	defer s.logger.Info("watcher stopped")

	s.runTick(ctx)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scanner) runTick(ctx context.Context) {
	report, err := s.Tick(ctx)
	switch {
	case errors.Is(err, ErrTickInFlight):
		s.logger.Debug("skipping tick, previous tick still running")
	case err != nil && ctx.Err() == nil:
		s.logger.Error("watcher tick failed", "error", err)
	case err == nil:
		s.logger.Debug("watcher tick",
			"expired", report.Expired,
			"awaiting", report.Awaiting,
			"payees", report.Payees,
			"settled", report.Settled,
			"duplicates", report.Duplicates,
			"rejected", report.Rejected,
			"failures", report.Failures,
		)
	}
}

// Tick runs one scan: expiry sweep first, then one ledger query per payee.
// Failures for one payee are logged and counted; they do not stop the tick.
func (s *Scanner) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	if !s.ticking.CompareAndSwap(false, true) {
		return report, ErrTickInFlight
	}
	defer s.ticking.Store(false)

	if s.sweeper != nil {
		n, err := s.sweeper.Sweep(ctx)
		if err != nil {
			return report, err
		}
		report.Expired = n
	}

	awaiting, err := s.store.ListAwaitingSettlement(ctx)
	if err != nil {
		return report, fmt.Errorf("load awaiting invoices: %w", err)
	}
	report.Awaiting = len(awaiting)
	if len(awaiting) == 0 {
		return report, nil
	}

	byPayee := make(map[string][]invoice.Invoice)
	for _, inv := range awaiting {
		byPayee[inv.PayeeWallet] = append(byPayee[inv.PayeeWallet], inv)
	}
	payees := make([]string, 0, len(byPayee))
	for p := range byPayee {
		payees = append(payees, p)
	}
	slices.Sort(payees)
	report.Payees = len(payees)

	for _, payee := range payees {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.scanPayee(ctx, payee, byPayee[payee], &report); err != nil {
			report.Failures++
			s.logger.Warn("payee scan failed", "wallet", payee, "error", err)
		}
	}
	return report, nil
}

// skipTransaction records a failure for one transaction so the rest of the
// payee's window is still scanned. It reports true once ctx is done.
func (s *Scanner) skipTransaction(ctx context.Context, payee, hash string, err error, report *TickReport) bool {
	if ctx.Err() != nil {
		return true
	}
	report.Failures++
	s.logger.Warn("transaction scan failed", "wallet", payee, "txHash", hash, "error", err)
	return false
}

func (s *Scanner) scanPayee(ctx context.Context, payee string, candidates []invoice.Invoice, report *TickReport) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	txs, err := s.ledger.ListRecentTransactions(callCtx, payee, s.cfg.HistoryWindow)
	cancel()
	if err != nil {
		return err
	}

	for _, tx := range txs {
		if len(candidates) == 0 {
			return nil
		}
		if !tx.Successful || tx.Memo == "" {
			continue
		}
		match, ok := settlement.MatchMemo(tx.Memo, candidates)
		if !ok {
			continue
		}
		inv := *match

		exists, err := s.store.PaymentExists(ctx, tx.Hash)
		if err != nil {
			if s.skipTransaction(ctx, payee, tx.Hash, err, report) {
				return ctx.Err()
			}
			continue
		}
		if exists {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		details, err := s.ledger.GetTransactionDetails(callCtx, tx.Hash)
		cancel()
		if err != nil {
			if s.skipTransaction(ctx, payee, tx.Hash, err, report) {
				return ctx.Err()
			}
			continue
		}
		if !details.Successful {
			continue
		}
		op, ok := s.matcher.FindPayment(&inv, details.Payments)
		if !ok {
			s.logger.Debug("memo matched but no qualifying payment",
				"invoiceId", inv.ID, "txHash", tx.Hash, "total", inv.Total.String(), "currency", inv.Currency)
			continue
		}
		report.Matched++

		outcome, err := s.settler.Settle(ctx, &inv, details, op)
		if err != nil {
			if s.skipTransaction(ctx, payee, tx.Hash, err, report) {
				return ctx.Err()
			}
			continue
		}
		switch outcome {
		case settlement.Settled:
			report.Settled++
		case settlement.Duplicate:
			report.Duplicates++
		case settlement.Rejected:
			report.Rejected++
		}
		candidates = slices.DeleteFunc(candidates, func(c invoice.Invoice) bool { return c.ID == inv.ID })
	}
	return nil
}
