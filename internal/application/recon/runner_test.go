package recon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalledger/commission-recon/internal/domain/matcher"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

var baseTime = time.Date(2025, 10, 10, 14, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedCommission(repo *storage.MockRepository, id int64, amount, fee string, txTime *time.Time) {
	repo.AddCommission(&storage.CommissionRecord{
		ID:              id,
		Amount:          dec(amount),
		BankFee:         dec(fee),
		OrganizationID:  10,
		TransactionTime: txTime,
		Source:          "bank",
	})
}

func seedGroup(repo *storage.MockRepository, key, orderExt, amount string, refTime *time.Time) {
	repo.AddLineItem(&storage.SalesLineItem{
		PaymentKey:      key,
		OrderExternalID: orderExt,
		OrganizationID:  10,
		LineAmount:      dec(amount),
		PrechequeTime:   refTime,
		WriteoffStatus:  storage.WriteoffActive,
	})
}

func seedOrder(repo *storage.MockRepository, id int64, ext string) {
	repo.AddOrder(&storage.Order{
		ID:             id,
		ExternalID:     ext,
		OrganizationID: 10,
		CreatedTime:    baseTime,
	})
}

func newTestRunner(repo *storage.MockRepository) *Runner {
	return NewRunner(repo, matcher.DefaultConfig(), 100, nil)
}

func TestRun_MatchesAndPersists(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "4500.00", "45.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "4500.00", tp(baseTime.Add(-time.Hour)))
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Report.Summary.Matched)
	assert.Equal(t, 0, result.Report.Summary.Failed)
	assert.Equal(t, 100.0, result.Report.Summary.MatchPercentage)

	// The write landed: commission linked, fee on the order, key recorded
	c, _ := repo.GetCommission(1)
	require.True(t, c.Linked())
	assert.Equal(t, "ord-a", c.LinkedOrderExternalID)

	o, _ := repo.GetOrder(100)
	assert.True(t, o.CommissionFee.Equal(dec("45.00")))
	assert.Equal(t, []string{"pay-1"}, o.PaymentKeys)

	// Run record completed with matching counters
	run, _ := repo.GetRun(result.RunID)
	require.NotNil(t, run)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.TotalCandidates)
	assert.Equal(t, 1, run.Matched)
	assert.NotEmpty(t, run.ReportJSON)
}

func TestRun_AtMostOneMatchPerGroup(t *testing.T) {
	repo := storage.NewMockRepository()
	// Two identical commissions, one payment group: exactly one wins.
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	seedCommission(repo, 2, "100.00", "1.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Report.Summary.Matched)
	assert.Equal(t, 1, result.Report.Summary.Failed)
	assert.Equal(t, 1, result.Report.Summary.UnmatchedNoCandidate)

	// Deterministic winner: lowest commission id first
	require.Len(t, result.Report.Details.Matched, 1)
	assert.Equal(t, int64(1), result.Report.Details.Matched[0].CommissionID)
	require.Len(t, result.Report.Details.Failed, 1)
	assert.Equal(t, int64(2), result.Report.Details.Failed[0].CommissionID)
	assert.Equal(t, matcher.ReasonNoCandidateFound, result.Report.Details.Failed[0].Reason)
}

func TestRun_FeesSumOnSharedOrder(t *testing.T) {
	repo := storage.NewMockRepository()
	// Two payment groups settle against the same order: fees accumulate and
	// both keys are recorded.
	seedCommission(repo, 1, "120.00", "120.00", tp(baseTime))
	seedCommission(repo, 2, "80.50", "80.50", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "120.00", tp(baseTime))
	seedGroup(repo, "pay-2", "ord-a", "80.50", tp(baseTime))
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Report.Summary.Matched)
	assert.Equal(t, 1, result.Report.Summary.SummedWithExistingOrder)
	assert.Equal(t, 1, result.Report.Summary.OrdersUpdated)

	o, _ := repo.GetOrder(100)
	assert.True(t, o.CommissionFee.Equal(dec("200.50")), "got %s", o.CommissionFee)
	assert.Equal(t, []string{"pay-1", "pay-2"}, o.PaymentKeys)

	// The second match reports the cumulative total
	second := result.Report.Details.Matched[1]
	assert.True(t, second.WasSummed)
	assert.True(t, second.OrderTotalAfter.Equal(dec("200.50")))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	seed := func() *storage.MockRepository {
		repo := storage.NewMockRepository()
		seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
		seedCommission(repo, 2, "100.00", "1.00", tp(baseTime))
		seedCommission(repo, 3, "55.00", "0.55", nil)
		seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
		seedOrder(repo, 100, "ord-a")
		return repo
	}

	wetRepo := seed()
	wet, err := newTestRunner(wetRepo).Run(context.Background(), Options{})
	require.NoError(t, err)

	dryRepo := seed()
	dry, err := newTestRunner(dryRepo).Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	// Identical outcome counters either way
	assert.Equal(t, wet.Report.Summary.Matched, dry.Report.Summary.Matched)
	assert.Equal(t, wet.Report.Summary.Failed, dry.Report.Summary.Failed)
	assert.Equal(t, wet.Report.Summary.UnmatchedNoCandidate, dry.Report.Summary.UnmatchedNoCandidate)
	assert.True(t, dry.Report.DryRun)

	// But the dry run touched nothing
	assert.Empty(t, dryRepo.AppliedBatches)
	assert.Empty(t, dryRepo.AppliedSingles)
	c, _ := dryRepo.GetCommission(1)
	assert.False(t, c.Linked())
	o, _ := dryRepo.GetOrder(100)
	assert.True(t, o.CommissionFee.IsZero())

	// The dry run is still recorded for audit
	run, _ := dryRepo.GetRun(dry.RunID)
	require.NotNil(t, run)
	assert.True(t, run.DryRun)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
}

func TestRun_FlushesInBatches(t *testing.T) {
	repo := storage.NewMockRepository()
	for i := int64(1); i <= 5; i++ {
		amount := dec("100.00").Add(decimal.NewFromInt(i))
		repo.AddCommission(&storage.CommissionRecord{
			ID:              i,
			Amount:          amount,
			BankFee:         dec("1.00"),
			OrganizationID:  10,
			TransactionTime: tp(baseTime),
		})
		repo.AddLineItem(&storage.SalesLineItem{
			PaymentKey:      "pay-" + amount.String(),
			OrderExternalID: "ord-a",
			OrganizationID:  10,
			LineAmount:      amount,
			PrechequeTime:   tp(baseTime),
			WriteoffStatus:  storage.WriteoffActive,
		})
	}
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Report.Summary.Matched)
	// 5 matches with batch size 2: two full batches plus the final flush
	require.Len(t, repo.AppliedBatches, 3)
	assert.Len(t, repo.AppliedBatches[0], 2)
	assert.Len(t, repo.AppliedBatches[1], 2)
	assert.Len(t, repo.AppliedBatches[2], 1)
}

func TestRun_BatchFailureFallsBackToSingles(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	seedCommission(repo, 2, "200.00", "2.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
	seedGroup(repo, "pay-2", "ord-b", "200.00", tp(baseTime))
	seedOrder(repo, 100, "ord-a")
	seedOrder(repo, 200, "ord-b")

	// Poison one commission: the batch write rolls back, then the per-match
	// retry lands the healthy write and demotes the poisoned one.
	repo.FailCommissionIDs[2] = true

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Report.Summary.Matched)
	assert.Equal(t, 1, result.Report.Summary.Failed)
	require.Len(t, result.Report.Details.Failed, 1)
	assert.Equal(t, int64(2), result.Report.Details.Failed[0].CommissionID)
	assert.Equal(t, matcher.ReasonPersistenceFailure, result.Report.Details.Failed[0].Reason)

	// Only the healthy write reached storage, via the single-write path
	assert.Empty(t, repo.AppliedBatches)
	require.Len(t, repo.AppliedSingles, 1)
	assert.Equal(t, int64(1), repo.AppliedSingles[0].CommissionID)

	c1, _ := repo.GetCommission(1)
	assert.True(t, c1.Linked())
	c2, _ := repo.GetCommission(2)
	assert.False(t, c2.Linked())
}

func TestRun_FailedWriteLeavesNoTraceOnSharedOrder(t *testing.T) {
	repo := storage.NewMockRepository()
	// Both commissions resolve to the same order; the first write is poisoned.
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	seedCommission(repo, 2, "200.00", "2.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
	seedGroup(repo, "pay-2", "ord-a", "200.00", tp(baseTime))
	seedOrder(repo, 100, "ord-a")
	repo.FailCommissionIDs[1] = true

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Report.Summary.Matched)
	require.Len(t, result.Report.Details.Failed, 1)
	assert.Equal(t, int64(1), result.Report.Details.Failed[0].CommissionID)
	assert.Equal(t, matcher.ReasonPersistenceFailure, result.Report.Details.Failed[0].Reason)

	// The surviving write carries only its own fee and key: the demoted
	// commission's contribution was backed out before the retry landed.
	o, _ := repo.GetOrder(100)
	assert.True(t, o.CommissionFee.Equal(dec("2.00")), "got %s", o.CommissionFee)
	assert.Equal(t, []string{"pay-2"}, o.PaymentKeys)

	c1, _ := repo.GetCommission(1)
	assert.False(t, c1.Linked())
	c2, _ := repo.GetCommission(2)
	assert.True(t, c2.Linked())
	assert.Equal(t, "ord-a", c2.LinkedOrderExternalID)
}

func TestRun_OrderNotFound(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-ghost", "100.00", tp(baseTime))
	// No order seeded for ord-ghost

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Report.Summary.Matched)
	require.Len(t, result.Report.Details.Failed, 1)
	assert.Equal(t, matcher.ReasonOrderNotFound, result.Report.Details.Failed[0].Reason)
}

func TestRun_FailureReasonsReported(t *testing.T) {
	repo := storage.NewMockRepository()
	// No timestamp to compare against
	seedCommission(repo, 1, "100.00", "1.00", nil)
	// Candidate exists by amount but is 3 days stale
	seedCommission(repo, 2, "200.00", "2.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
	seedGroup(repo, "pay-2", "ord-a", "200.00", tp(baseTime.Add(-72*time.Hour)))
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	reasons := map[int64]matcher.Reason{}
	for _, f := range result.Report.Details.Failed {
		reasons[f.CommissionID] = f.Reason
	}
	assert.Equal(t, matcher.ReasonNoTransactionTime, reasons[1])
	// The stale group never enters the coarse date window, so no candidate
	// is found at all.
	assert.Equal(t, matcher.ReasonNoCandidateFound, reasons[2])

	assert.True(t, result.Report.Summary.FailedAmount.Equal(dec("3.00")))
}

func TestRun_TimeWindowOverride(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	// 10 hours away: inside the default 24h window, outside a 4h one
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime.Add(-10*time.Hour)))
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{MaxTimeDiffHours: 4})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Report.Summary.Matched)
	assert.Equal(t, 1, result.Report.Summary.RejectedByTimeFilter)
	assert.True(t, result.Report.Summary.RejectedByTimeFilterAmount.Equal(dec("1.00")))
}

func TestRun_ScopeFiltersByOrganization(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	other := &storage.CommissionRecord{
		ID:              2,
		Amount:          dec("100.00"),
		BankFee:         dec("1.00"),
		OrganizationID:  99,
		TransactionTime: tp(baseTime),
	}
	repo.AddCommission(other)
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
	seedOrder(repo, 100, "ord-a")

	result, err := newTestRunner(repo).Run(context.Background(), Options{OrganizationID: 10})
	require.NoError(t, err)

	// The out-of-scope commission was never considered
	assert.Equal(t, 1, result.Report.Summary.TotalCandidates)
	assert.Equal(t, 1, result.Report.Summary.Matched)
}

func TestRun_ContextCancellation(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "100.00", "1.00", tp(baseTime))
	seedGroup(repo, "pay-1", "ord-a", "100.00", tp(baseTime))
	seedOrder(repo, 100, "ord-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(repo).Run(ctx, Options{})
	require.ErrorIs(t, err, context.Canceled)

	// The aborted run is recorded as failed
	run, _ := repo.GetRun(1)
	require.NotNil(t, run)
	assert.Equal(t, storage.RunStatusFailed, run.Status)
}

func TestRun_DiscountFallbackMatch(t *testing.T) {
	repo := storage.NewMockRepository()
	seedCommission(repo, 1, "90.00", "0.90", tp(baseTime))
	// Group total differs, but the owning order's discount equals the
	// commission amount.
	seedGroup(repo, "pay-1", "ord-a", "87.00", tp(baseTime))
	repo.AddOrder(&storage.Order{
		ID:             100,
		ExternalID:     "ord-a",
		OrganizationID: 10,
		CreatedTime:    baseTime,
		Discount:       dec("90.00"),
	})

	result, err := newTestRunner(repo).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Report.Summary.Matched)
	c, _ := repo.GetCommission(1)
	assert.True(t, c.Linked())
}
