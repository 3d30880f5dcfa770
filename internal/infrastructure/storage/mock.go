package storage

import (
	"fmt"
	"sort"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	Commissions map[int64]*CommissionRecord
	LineItems   []*SalesLineItem
	Orders      map[int64]*Order
	Runs        map[int64]*ReconRun
	nextRunID   int64

	// Hooks for test assertions
	AppliedBatches [][]*MatchWrite
	AppliedSingles []*MatchWrite

	// Error injection for testing error paths
	ApplyMatchesErr error
	ApplyMatchErr   error
	// FailCommissionIDs makes ApplyMatches/ApplyMatch fail for these ids
	FailCommissionIDs map[int64]bool
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		Commissions:       make(map[int64]*CommissionRecord),
		Orders:            make(map[int64]*Order),
		Runs:              make(map[int64]*ReconRun),
		nextRunID:         1,
		FailCommissionIDs: make(map[int64]bool),
	}
}

// AddCommission seeds a commission record
func (m *MockRepository) AddCommission(c *CommissionRecord) {
	m.Commissions[c.ID] = c
}

// AddLineItem seeds a sales line item
func (m *MockRepository) AddLineItem(item *SalesLineItem) {
	m.LineItems = append(m.LineItems, item)
}

// AddOrder seeds an order
func (m *MockRepository) AddOrder(o *Order) {
	m.Orders[o.ID] = o
}

// ListUnlinkedCommissions returns seeded unlinked commissions in scope, id
// ascending. Like the SQLite implementation it returns fresh copies, so
// callers mutating results do not touch the stored state until a write lands.
func (m *MockRepository) ListUnlinkedCommissions(scope Scope) ([]*CommissionRecord, error) {
	var out []*CommissionRecord
	for _, c := range m.Commissions {
		if c.Linked() {
			continue
		}
		if scope.OrganizationID != 0 && c.OrganizationID != scope.OrganizationID {
			continue
		}
		if c.TransactionTime != nil {
			if scope.StartDate != nil && c.TransactionTime.Before(*scope.StartDate) {
				continue
			}
			if scope.EndDate != nil && !c.TransactionTime.Before(*scope.EndDate) {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCommission retrieves a seeded commission
func (m *MockRepository) GetCommission(id int64) (*CommissionRecord, error) {
	c, ok := m.Commissions[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// ListActiveLineItems returns seeded active line items with a payment key
func (m *MockRepository) ListActiveLineItems(scope Scope) ([]*SalesLineItem, error) {
	var out []*SalesLineItem
	for _, item := range m.LineItems {
		if !item.Active() || item.PaymentKey == "" {
			continue
		}
		if scope.OrganizationID != 0 && item.OrganizationID != scope.OrganizationID {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// GetOrderByExternalID retrieves a copy of a seeded order by external id
func (m *MockRepository) GetOrderByExternalID(externalID string) (*Order, error) {
	for _, o := range m.Orders {
		if o.ExternalID == externalID {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

// GetOrder retrieves a copy of a seeded order by id
func (m *MockRepository) GetOrder(id int64) (*Order, error) {
	o, ok := m.Orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func copyOrder(o *Order) *Order {
	cp := *o
	cp.PaymentKeys = append([]string(nil), o.PaymentKeys...)
	return &cp
}

// ApplyMatches records the batch and applies it to the in-memory state
func (m *MockRepository) ApplyMatches(batch []*MatchWrite) error {
	if m.ApplyMatchesErr != nil {
		return m.ApplyMatchesErr
	}
	for _, w := range batch {
		if m.FailCommissionIDs[w.CommissionID] {
			return fmt.Errorf("injected failure for commission %d", w.CommissionID)
		}
	}
	for _, w := range batch {
		if err := m.apply(w); err != nil {
			return err
		}
	}
	m.AppliedBatches = append(m.AppliedBatches, append([]*MatchWrite(nil), batch...))
	return nil
}

// ApplyMatch records and applies a single write
func (m *MockRepository) ApplyMatch(w *MatchWrite) error {
	if m.ApplyMatchErr != nil {
		return m.ApplyMatchErr
	}
	if m.FailCommissionIDs[w.CommissionID] {
		return fmt.Errorf("injected failure for commission %d", w.CommissionID)
	}
	if err := m.apply(w); err != nil {
		return err
	}
	m.AppliedSingles = append(m.AppliedSingles, w)
	return nil
}

func (m *MockRepository) apply(w *MatchWrite) error {
	c, ok := m.Commissions[w.CommissionID]
	if !ok {
		return fmt.Errorf("commission %d not found", w.CommissionID)
	}
	if c.Linked() {
		return fmt.Errorf("commission %d is already linked", w.CommissionID)
	}
	o, ok := m.Orders[w.OrderID]
	if !ok {
		return fmt.Errorf("order %d not found for commission %d", w.OrderID, w.CommissionID)
	}

	orderID := w.OrderID
	c.LinkedOrderID = &orderID
	c.LinkedOrderExternalID = w.OrderExternalID
	o.CommissionFee = w.NewFee
	o.PaymentKeys = append([]string(nil), w.PaymentKeys...)
	return nil
}

// StartRun records a run start
func (m *MockRepository) StartRun(run *ReconRun) (int64, error) {
	id := m.nextRunID
	m.nextRunID++
	copied := *run
	copied.ID = id
	copied.Status = RunStatusRunning
	m.Runs[id] = &copied
	return id, nil
}

// CompleteRun records run completion
func (m *MockRepository) CompleteRun(runID int64, status string, totalCandidates, matched, failed int, reportJSON string) error {
	run, ok := m.Runs[runID]
	if !ok {
		return fmt.Errorf("run %d not found", runID)
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Status = status
	run.TotalCandidates = totalCandidates
	run.Matched = matched
	run.Failed = failed
	run.ReportJSON = reportJSON
	return nil
}

// ListRuns returns recorded runs, newest first
func (m *MockRepository) ListRuns(limit int) ([]ReconRun, error) {
	var runs []ReconRun
	for _, r := range m.Runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun retrieves a copy of a recorded run, like the SQLite implementation
// returns an independent row. Returns (nil, nil) when the run is unknown.
func (m *MockRepository) GetRun(runID int64) (*ReconRun, error) {
	run, ok := m.Runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

// GetStats computes stats over the in-memory state
func (m *MockRepository) GetStats() (*Stats, error) {
	stats := &Stats{}
	for _, c := range m.Commissions {
		stats.TotalCommissions++
		stats.TotalFeeAmount = stats.TotalFeeAmount.Add(c.BankFee)
		if c.Linked() {
			stats.LinkedCommissions++
			stats.LinkedFeeAmount = stats.LinkedFeeAmount.Add(c.BankFee)
		}
	}
	stats.UnlinkedCommissions = stats.TotalCommissions - stats.LinkedCommissions
	for _, o := range m.Orders {
		if !o.CommissionFee.IsZero() {
			stats.OrdersWithFee++
		}
	}
	stats.TotalRuns = len(m.Runs)
	return stats, nil
}

// Close is a no-op for the mock
func (m *MockRepository) Close() error {
	return nil
}
