package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/terminalledger/commission-recon/internal/domain/aggregator"
	"github.com/terminalledger/commission-recon/internal/domain/matcher"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// Runner drives one reconciliation pass: it loads the scoped data, matches
// each unlinked commission against the payment-group index, and persists
// resolved matches in batches.
type Runner struct {
	repo        storage.Repository
	baseConfig  matcher.Config
	detailLimit int
	logger      *slog.Logger
}

// NewRunner creates a runner. baseConfig supplies the matcher defaults;
// per-run Options may override the time window.
func NewRunner(repo storage.Repository, baseConfig matcher.Config, detailLimit int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		repo:        repo,
		baseConfig:  baseConfig,
		detailLimit: detailLimit,
		logger:      logger,
	}
}

// Run executes a full reconciliation pass. In dry-run mode the complete
// pipeline executes, consumption tracking included, but no write reaches
// storage and the recorded run is marked dry_run.
//
// The returned error covers infrastructure failures only; individual
// commissions that fail to match are reported, not errored.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	cfg := r.baseConfig
	if opts.MaxTimeDiffHours > 0 {
		cfg.MaxTimeDiffHours = opts.MaxTimeDiffHours
	}

	scope := storage.Scope{
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		OrganizationID: opts.OrganizationID,
	}

	commissions, err := r.repo.ListUnlinkedCommissions(scope)
	if err != nil {
		return nil, fmt.Errorf("list unlinked commissions: %w", err)
	}
	lineItems, err := r.repo.ListActiveLineItems(scope)
	if err != nil {
		return nil, fmt.Errorf("list active line items: %w", err)
	}
	index := aggregator.Build(lineItems)

	r.logger.Info("starting reconciliation",
		"commissions", len(commissions),
		"payment_groups", index.Len(),
		"batch_size", batchSize,
		"max_time_diff_hours", cfg.MaxTimeDiffHours,
		"dry_run", opts.DryRun)

	runID, err := r.repo.StartRun(&storage.ReconRun{
		StartedAt:        time.Now(),
		StartDate:        opts.StartDate,
		EndDate:          opts.EndDate,
		OrganizationID:   opts.OrganizationID,
		BatchSize:        batchSize,
		MaxTimeDiffHours: cfg.MaxTimeDiffHours,
		DryRun:           opts.DryRun,
		Status:           storage.RunStatusRunning,
	})
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	m := matcher.NewMatcher(cfg)
	session := NewSession()
	reporter := NewReporter(r.detailLimit, opts.DryRun)
	orders := newOrderCache(r.repo)
	resolver := NewResolver(orders, r.logger)

	var (
		pending        []*storage.MatchWrite
		pendingRecords []*storage.CommissionRecord
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if opts.DryRun {
			pending = pending[:0]
			pendingRecords = pendingRecords[:0]
			return nil
		}
		if err := r.repo.ApplyMatches(pending); err != nil {
			r.logger.Warn("batch write failed, retrying matches individually",
				"batch_size", len(pending), "error", err)
			for i, w := range pending {
				if err := r.repo.ApplyMatch(w); err != nil {
					r.logger.Error("match write failed",
						"commission_id", w.CommissionID,
						"order_id", w.OrderID,
						"error", err)
					reporter.DemoteToFailure(pendingRecords[i], matcher.ReasonPersistenceFailure)
					// A demoted match must leave no trace: back its fee and
					// key out of the cached order and out of the buffered
					// sibling snapshots that were built on top of it.
					pendingRecords[i].LinkedOrderID = nil
					pendingRecords[i].LinkedOrderExternalID = ""
					orders.unlink(w)
					retractWrite(pending[i+1:], w)
				}
			}
		}
		pending = pending[:0]
		pendingRecords = pendingRecords[:0]
		return nil
	}

	for _, c := range commissions {
		if err := ctx.Err(); err != nil {
			r.completeRun(runID, storage.RunStatusFailed, reporter)
			return nil, err
		}
		if session.CommissionConsumed(c.ID) {
			continue
		}

		groups := m.FindCandidates(c, index, session.ConsumedKeys(), orders)
		candidates, reason := m.Rank(c, groups)
		if reason != "" {
			reporter.RecordFailure(c, reason)
			continue
		}

		result, write, reason, err := resolver.Resolve(c, candidates)
		if err != nil {
			r.completeRun(runID, storage.RunStatusFailed, reporter)
			return nil, err
		}
		if reason != "" {
			reporter.RecordFailure(c, reason)
			continue
		}

		session.Consume(c.ID, result.PaymentGroupKey)
		reporter.RecordMatch(c, result)
		pending = append(pending, write)
		pendingRecords = append(pendingRecords, c)

		r.logger.Debug("matched commission",
			"commission_id", c.ID,
			"payment_key", result.PaymentGroupKey,
			"order_external_id", result.OrderExternalID,
			"reference", result.ReferenceKind,
			"time_diff_hours", result.TimeDiffHours,
			"confidence", result.Confidence)

		if len(pending) >= batchSize {
			if err := flush(); err != nil {
				r.completeRun(runID, storage.RunStatusFailed, reporter)
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		r.completeRun(runID, storage.RunStatusFailed, reporter)
		return nil, err
	}

	r.completeRun(runID, storage.RunStatusCompleted, reporter)

	report := reporter.Report()
	r.logger.Info("reconciliation finished",
		"run_id", runID,
		"total", report.Summary.TotalCandidates,
		"matched", report.Summary.Matched,
		"failed", report.Summary.Failed,
		"match_percentage", fmt.Sprintf("%.1f%%", report.Summary.MatchPercentage),
		"dry_run", opts.DryRun)

	return &Result{RunID: runID, Report: report}, nil
}

// completeRun persists the run record with its final counters and report.
// Failures here are logged, not returned: the reconciliation outcome itself
// is already decided.
func (r *Runner) completeRun(runID int64, status string, reporter *Reporter) {
	report := reporter.Report()
	reportJSON, err := json.Marshal(report)
	if err != nil {
		r.logger.Error("failed to serialize run report", "run_id", runID, "error", err)
		reportJSON = []byte("{}")
	}
	if err := r.repo.CompleteRun(runID, status,
		report.Summary.TotalCandidates,
		report.Summary.Matched,
		report.Summary.Failed,
		string(reportJSON)); err != nil {
		r.logger.Error("failed to record run completion", "run_id", runID, "error", err)
	}
}

// retractWrite removes a failed write's contribution from buffered sibling
// writes against the same order. Later snapshots were built on top of the
// failed one, so without the retraction a successful sibling would persist
// the demoted commission's fee and payment key.
func retractWrite(later []*storage.MatchWrite, failed *storage.MatchWrite) {
	for _, w := range later {
		if w.OrderID != failed.OrderID {
			continue
		}
		w.NewFee = w.NewFee.Sub(failed.FeeDelta)
		if failed.PaymentKey == "" {
			continue
		}
		keys := w.PaymentKeys[:0]
		for _, k := range w.PaymentKeys {
			if k != failed.PaymentKey {
				keys = append(keys, k)
			}
		}
		w.PaymentKeys = keys
	}
}

// orderCache memoizes order lookups for the duration of one run. Several
// commissions matching the same order share the cached instance, so fee
// updates compound in memory before being flushed.
type orderCache struct {
	repo   storage.OrderRepository
	byExt  map[string]*storage.Order
	misses map[string]bool
}

func newOrderCache(repo storage.OrderRepository) *orderCache {
	return &orderCache{
		repo:   repo,
		byExt:  make(map[string]*storage.Order),
		misses: make(map[string]bool),
	}
}

// OrderByExternalID implements OrderLookup. Returns (nil, nil) on a miss.
func (c *orderCache) OrderByExternalID(externalID string) (*storage.Order, error) {
	if o, ok := c.byExt[externalID]; ok {
		return o, nil
	}
	if c.misses[externalID] {
		return nil, nil
	}
	o, err := c.repo.GetOrderByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		c.misses[externalID] = true
		return nil, nil
	}
	c.byExt[externalID] = o
	return o, nil
}

// unlink backs a failed write's contribution out of the cached order, so
// matches resolved after the failure see the order as if the demoted
// commission had never linked.
func (c *orderCache) unlink(w *storage.MatchWrite) {
	o, ok := c.byExt[w.OrderExternalID]
	if !ok {
		return
	}
	o.CommissionFee = o.CommissionFee.Sub(w.FeeDelta)
	if w.PaymentKey != "" {
		o.RemovePaymentKey(w.PaymentKey)
	}
}

// OrderDiscount implements matcher.OrderDiscountLookup for the legacy
// fallback. Lookup errors degrade to a miss: the fallback is best-effort.
func (c *orderCache) OrderDiscount(externalID string) (decimal.Decimal, time.Time, bool) {
	o, err := c.OrderByExternalID(externalID)
	if err != nil || o == nil {
		return decimal.Zero, time.Time{}, false
	}
	return o.Discount, o.CreatedTime, true
}
