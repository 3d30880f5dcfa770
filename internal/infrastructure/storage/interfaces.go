package storage

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	CommissionRepository
	SalesRepository
	OrderRepository
	RunRepository
	Close() error
}

// CommissionRepository handles commission record operations
type CommissionRepository interface {
	// ListUnlinkedCommissions returns commissions with no linked order inside
	// the scope, ordered by ascending id so re-runs are deterministic.
	ListUnlinkedCommissions(scope Scope) ([]*CommissionRecord, error)

	// GetCommission retrieves a commission by id
	GetCommission(id int64) (*CommissionRecord, error)
}

// SalesRepository handles sales line item reads. The engine never writes
// line items; they are owned by upstream ingestion.
type SalesRepository interface {
	// ListActiveLineItems returns active line items with a payment key
	// inside the scope.
	ListActiveLineItems(scope Scope) ([]*SalesLineItem, error)
}

// OrderRepository handles order reads and match persistence
type OrderRepository interface {
	// GetOrderByExternalID retrieves an order by its external id.
	// Returns (nil, nil) when no such order exists.
	GetOrderByExternalID(externalID string) (*Order, error)

	// GetOrder retrieves an order by id. Returns (nil, nil) when missing.
	GetOrder(id int64) (*Order, error)

	// ApplyMatches persists a batch of resolved matches in one transaction.
	// Either every write in the batch lands or none do.
	ApplyMatches(batch []*MatchWrite) error

	// ApplyMatch persists a single resolved match in its own transaction.
	ApplyMatch(w *MatchWrite) error
}

// RunRepository tracks reconciliation runs
type RunRepository interface {
	// StartRun records the start of a run and returns its id
	StartRun(run *ReconRun) (int64, error)

	// CompleteRun records counters, status, and the report JSON for a run
	CompleteRun(runID int64, status string, totalCandidates, matched, failed int, reportJSON string) error

	// ListRuns returns recent runs, newest first
	ListRuns(limit int) ([]ReconRun, error)

	// GetRun retrieves a run by id. Returns (nil, nil) when missing.
	GetRun(runID int64) (*ReconRun, error)

	// GetStats returns aggregate statistics
	GetStats() (*Stats, error)
}
