package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "recon_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStorage_CommissionRoundtrip(t *testing.T) {
	store := newTestStorage(t)

	txTime := time.Date(2025, 10, 10, 14, 0, 0, 0, time.UTC)
	c := &CommissionRecord{
		Amount:          dec("4500.00"),
		BankFee:         dec("45.00"),
		OrganizationID:  10,
		TransactionTime: &txTime,
		Source:          "bank",
	}
	require.NoError(t, store.SaveCommission(c))
	require.NotZero(t, c.ID)

	got, err := store.GetCommission(c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(dec("4500.00")))
	assert.True(t, got.BankFee.Equal(dec("45.00")))
	assert.Equal(t, int64(10), got.OrganizationID)
	require.NotNil(t, got.TransactionTime)
	assert.True(t, got.TransactionTime.Equal(txTime))
	assert.False(t, got.Linked())
	assert.Equal(t, "bank", got.Source)
}

func TestStorage_GetCommission_Missing(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.GetCommission(999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorage_ListUnlinkedCommissions(t *testing.T) {
	store := newTestStorage(t)

	day1 := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	day5 := time.Date(2025, 10, 5, 12, 0, 0, 0, time.UTC)

	inScope := &CommissionRecord{Amount: dec("100"), BankFee: dec("1"), OrganizationID: 10, TransactionTime: &day5}
	require.NoError(t, store.SaveCommission(inScope))

	early := &CommissionRecord{Amount: dec("200"), BankFee: dec("2"), OrganizationID: 10, TransactionTime: &day1}
	require.NoError(t, store.SaveCommission(early))

	otherOrg := &CommissionRecord{Amount: dec("300"), BankFee: dec("3"), OrganizationID: 99, TransactionTime: &day5}
	require.NoError(t, store.SaveCommission(otherOrg))

	// No timestamp: stays in scope regardless of date bounds
	noTime := &CommissionRecord{Amount: dec("400"), BankFee: dec("4"), OrganizationID: 10}
	require.NoError(t, store.SaveCommission(noTime))

	t.Run("unscoped returns everything in id order", func(t *testing.T) {
		got, err := store.ListUnlinkedCommissions(Scope{})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, inScope.ID, got[0].ID)
		assert.Equal(t, noTime.ID, got[3].ID)
	})

	t.Run("date and organization scope", func(t *testing.T) {
		start := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
		got, err := store.ListUnlinkedCommissions(Scope{StartDate: &start, OrganizationID: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, inScope.ID, got[0].ID)
		assert.Equal(t, noTime.ID, got[1].ID)
	})

	t.Run("linked records are excluded", func(t *testing.T) {
		order := &Order{ExternalID: "ord-x", OrganizationID: 10, CreatedTime: day5}
		require.NoError(t, store.SaveOrder(order))
		require.NoError(t, store.ApplyMatch(&MatchWrite{
			CommissionID:    inScope.ID,
			OrderID:         order.ID,
			OrderExternalID: "ord-x",
			NewFee:          dec("1"),
			PaymentKeys:     []string{"pay-1"},
		}))

		got, err := store.ListUnlinkedCommissions(Scope{})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestStorage_LineItemRoundtrip(t *testing.T) {
	store := newTestStorage(t)

	precheque := time.Date(2025, 10, 10, 13, 30, 0, 0, time.UTC)
	item := &SalesLineItem{
		PaymentKey:      "pay-1",
		OrderExternalID: "ord-a",
		OrganizationID:  10,
		LineAmount:      dec("1500.50"),
		PrechequeTime:   &precheque,
		WriteoffStatus:  WriteoffActive,
	}
	require.NoError(t, store.SaveLineItem(item))

	voided := &SalesLineItem{
		PaymentKey:      "pay-2",
		OrderExternalID: "ord-a",
		OrganizationID:  10,
		LineAmount:      dec("100"),
		WriteoffStatus:  WriteoffVoided,
	}
	require.NoError(t, store.SaveLineItem(voided))

	noKey := &SalesLineItem{
		OrderExternalID: "ord-a",
		OrganizationID:  10,
		LineAmount:      dec("100"),
		WriteoffStatus:  WriteoffActive,
	}
	require.NoError(t, store.SaveLineItem(noKey))

	got, err := store.ListActiveLineItems(Scope{})
	require.NoError(t, err)
	require.Len(t, got, 1, "voided and keyless items are filtered out")
	assert.Equal(t, "pay-1", got[0].PaymentKey)
	assert.True(t, got[0].LineAmount.Equal(dec("1500.50")))
	require.NotNil(t, got[0].PrechequeTime)
	assert.True(t, got[0].PrechequeTime.Equal(precheque))
	assert.Nil(t, got[0].OrderCreatedTime)
}

func TestStorage_OrderRoundtrip(t *testing.T) {
	store := newTestStorage(t)

	created := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	order := &Order{
		ExternalID:     "ord-a",
		OrganizationID: 10,
		CreatedTime:    created,
		Discount:       dec("90.00"),
		PaymentKeys:    []string{"pay-1", "pay-2"},
	}
	require.NoError(t, store.SaveOrder(order))

	got, err := store.GetOrderByExternalID("ord-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.ID, got.ID)
	assert.True(t, got.Discount.Equal(dec("90.00")))
	assert.True(t, got.CommissionFee.IsZero())
	assert.Equal(t, []string{"pay-1", "pay-2"}, got.PaymentKeys)

	missing, err := store.GetOrderByExternalID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStorage_ApplyMatches(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	seed := func(t *testing.T, store *Storage) (c1, c2 *CommissionRecord, o *Order) {
		c1 = &CommissionRecord{Amount: dec("100"), BankFee: dec("1.00"), OrganizationID: 10, TransactionTime: &now}
		require.NoError(t, store.SaveCommission(c1))
		c2 = &CommissionRecord{Amount: dec("200"), BankFee: dec("2.00"), OrganizationID: 10, TransactionTime: &now}
		require.NoError(t, store.SaveCommission(c2))
		o = &Order{ExternalID: "ord-a", OrganizationID: 10, CreatedTime: now}
		require.NoError(t, store.SaveOrder(o))
		return c1, c2, o
	}

	t.Run("batch commits atomically", func(t *testing.T) {
		store := newTestStorage(t)
		c1, c2, o := seed(t, store)

		batch := []*MatchWrite{
			{CommissionID: c1.ID, OrderID: o.ID, OrderExternalID: "ord-a", NewFee: dec("1.00"), PaymentKeys: []string{"pay-1"}},
			{CommissionID: c2.ID, OrderID: o.ID, OrderExternalID: "ord-a", NewFee: dec("3.00"), PaymentKeys: []string{"pay-1", "pay-2"}},
		}
		require.NoError(t, store.ApplyMatches(batch))

		got, err := store.GetOrder(o.ID)
		require.NoError(t, err)
		assert.True(t, got.CommissionFee.Equal(dec("3.00")))
		assert.Equal(t, []string{"pay-1", "pay-2"}, got.PaymentKeys)

		linked, err := store.GetCommission(c1.ID)
		require.NoError(t, err)
		assert.True(t, linked.Linked())
		assert.Equal(t, "ord-a", linked.LinkedOrderExternalID)
	})

	t.Run("batch rolls back when one write fails", func(t *testing.T) {
		store := newTestStorage(t)
		c1, c2, o := seed(t, store)

		// Link c2 first so the batch hits the already-linked guard
		require.NoError(t, store.ApplyMatch(&MatchWrite{
			CommissionID: c2.ID, OrderID: o.ID, OrderExternalID: "ord-a",
			NewFee: dec("2.00"), PaymentKeys: []string{"pay-2"},
		}))

		batch := []*MatchWrite{
			{CommissionID: c1.ID, OrderID: o.ID, OrderExternalID: "ord-a", NewFee: dec("3.00"), PaymentKeys: []string{"pay-1", "pay-2"}},
			{CommissionID: c2.ID, OrderID: o.ID, OrderExternalID: "ord-a", NewFee: dec("5.00"), PaymentKeys: []string{"pay-1", "pay-2"}},
		}
		err := store.ApplyMatches(batch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already linked")

		// The whole batch rolled back: c1 stays unlinked, fee unchanged
		got, err := store.GetCommission(c1.ID)
		require.NoError(t, err)
		assert.False(t, got.Linked())

		order, err := store.GetOrder(o.ID)
		require.NoError(t, err)
		assert.True(t, order.CommissionFee.Equal(dec("2.00")))
	})

	t.Run("single write fails for unknown order", func(t *testing.T) {
		store := newTestStorage(t)
		c1, _, _ := seed(t, store)

		err := store.ApplyMatch(&MatchWrite{
			CommissionID: c1.ID, OrderID: 999, OrderExternalID: "ghost",
			NewFee: dec("1.00"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")

		got, err := store.GetCommission(c1.ID)
		require.NoError(t, err)
		assert.False(t, got.Linked(), "commission link rolled back with the order write")
	})
}

func TestStorage_RunLifecycle(t *testing.T) {
	store := newTestStorage(t)

	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	runID, err := store.StartRun(&ReconRun{
		StartedAt:        time.Now().UTC(),
		StartDate:        &start,
		OrganizationID:   10,
		BatchSize:        100,
		MaxTimeDiffHours: 24,
		DryRun:           true,
	})
	require.NoError(t, err)
	require.NotZero(t, runID)

	running, err := store.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, RunStatusRunning, running.Status)
	assert.Nil(t, running.CompletedAt)
	assert.True(t, running.DryRun)

	require.NoError(t, store.CompleteRun(runID, RunStatusCompleted, 10, 8, 2, `{"summary":{}}`))

	done, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 10, done.TotalCandidates)
	assert.Equal(t, 8, done.Matched)
	assert.Equal(t, 2, done.Failed)
	assert.Equal(t, `{"summary":{}}`, done.ReportJSON)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)

	missing, err := store.GetRun(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStorage_GetStats(t *testing.T) {
	store := newTestStorage(t)

	now := time.Now().UTC().Truncate(time.Second)
	c1 := &CommissionRecord{Amount: dec("100"), BankFee: dec("1.50"), OrganizationID: 10, TransactionTime: &now}
	require.NoError(t, store.SaveCommission(c1))
	c2 := &CommissionRecord{Amount: dec("200"), BankFee: dec("2.50"), OrganizationID: 10, TransactionTime: &now}
	require.NoError(t, store.SaveCommission(c2))

	order := &Order{ExternalID: "ord-a", OrganizationID: 10, CreatedTime: now}
	require.NoError(t, store.SaveOrder(order))
	require.NoError(t, store.ApplyMatch(&MatchWrite{
		CommissionID: c1.ID, OrderID: order.ID, OrderExternalID: "ord-a",
		NewFee: dec("1.50"), PaymentKeys: []string{"pay-1"},
	}))

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCommissions)
	assert.Equal(t, 1, stats.LinkedCommissions)
	assert.Equal(t, 1, stats.UnlinkedCommissions)
	assert.Equal(t, 1, stats.OrdersWithFee)
	assert.True(t, stats.TotalFeeAmount.Equal(dec("4")))
	assert.True(t, stats.LinkedFeeAmount.Equal(dec("1.5")))
}
