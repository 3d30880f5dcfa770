package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Storage provides SQLite database access for the reconciliation engine.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// ListUnlinkedCommissions returns unmatched commissions in scope, ascending by id
func (s *Storage) ListUnlinkedCommissions(scope Scope) ([]*CommissionRecord, error) {
	query := `
	SELECT id, amount, bank_fee, organization_id, transaction_time,
	       linked_order_id, linked_order_external_id, source
	FROM commissions
	WHERE linked_order_id IS NULL
	`
	args := make([]interface{}, 0, 3)
	if scope.OrganizationID != 0 {
		query += " AND organization_id = ?"
		args = append(args, scope.OrganizationID)
	}
	// Records without a timestamp stay in scope; the matcher reports them
	// with a precise reason instead of silently dropping them here.
	if scope.StartDate != nil {
		query += " AND (transaction_time IS NULL OR transaction_time >= ?)"
		args = append(args, *scope.StartDate)
	}
	if scope.EndDate != nil {
		query += " AND (transaction_time IS NULL OR transaction_time < ?)"
		args = append(args, *scope.EndDate)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*CommissionRecord
	for rows.Next() {
		record, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetCommission retrieves a commission by id
func (s *Storage) GetCommission(id int64) (*CommissionRecord, error) {
	row := s.db.QueryRow(`
	SELECT id, amount, bank_fee, organization_id, transaction_time,
	       linked_order_id, linked_order_external_id, source
	FROM commissions WHERE id = ?
	`, id)

	record, err := scanCommission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return record, err
}

// SaveCommission inserts a commission record and sets its id
func (s *Storage) SaveCommission(c *CommissionRecord) error {
	res, err := s.db.Exec(`
	INSERT INTO commissions
	(amount, bank_fee, organization_id, transaction_time,
	 linked_order_id, linked_order_external_id, source)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		c.Amount.String(),
		c.BankFee.String(),
		c.OrganizationID,
		nullableTime(c.TransactionTime),
		nullableInt(c.LinkedOrderID),
		c.LinkedOrderExternalID,
		c.Source,
	)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ListActiveLineItems returns active line items with a payment key in scope
func (s *Storage) ListActiveLineItems(scope Scope) ([]*SalesLineItem, error) {
	query := `
	SELECT id, payment_key, order_external_id, organization_id, line_amount,
	       order_created_time, precheque_time, open_time, writeoff_status
	FROM sales_line_items
	WHERE writeoff_status = ? AND payment_key != ''
	`
	args := []interface{}{WriteoffActive}
	if scope.OrganizationID != 0 {
		query += " AND organization_id = ?"
		args = append(args, scope.OrganizationID)
	}
	if scope.StartDate != nil {
		query += " AND (order_created_time >= ? OR precheque_time >= ? OR open_time >= ?)"
		args = append(args, *scope.StartDate, *scope.StartDate, *scope.StartDate)
	}
	if scope.EndDate != nil {
		query += " AND (order_created_time < ? OR precheque_time < ? OR open_time < ?)"
		args = append(args, *scope.EndDate, *scope.EndDate, *scope.EndDate)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []*SalesLineItem
	for rows.Next() {
		item := &SalesLineItem{}
		var amount string
		var created, precheque, open sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.PaymentKey,
			&item.OrderExternalID,
			&item.OrganizationID,
			&amount,
			&created,
			&precheque,
			&open,
			&item.WriteoffStatus,
		); err != nil {
			return nil, err
		}
		item.LineAmount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("line item %d has bad amount %q: %w", item.ID, amount, err)
		}
		item.OrderCreatedTime = timePtr(created)
		item.PrechequeTime = timePtr(precheque)
		item.OpenTime = timePtr(open)
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveLineItem inserts a sales line item and sets its id
func (s *Storage) SaveLineItem(item *SalesLineItem) error {
	res, err := s.db.Exec(`
	INSERT INTO sales_line_items
	(payment_key, order_external_id, organization_id, line_amount,
	 order_created_time, precheque_time, open_time, writeoff_status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.PaymentKey,
		item.OrderExternalID,
		item.OrganizationID,
		item.LineAmount.String(),
		nullableTime(item.OrderCreatedTime),
		nullableTime(item.PrechequeTime),
		nullableTime(item.OpenTime),
		item.WriteoffStatus,
	)
	if err != nil {
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

// GetOrderByExternalID retrieves an order by external id, (nil, nil) if missing
func (s *Storage) GetOrderByExternalID(externalID string) (*Order, error) {
	return s.getOrder(`WHERE external_id = ?`, externalID)
}

// GetOrder retrieves an order by id, (nil, nil) if missing
func (s *Storage) GetOrder(id int64) (*Order, error) {
	return s.getOrder(`WHERE id = ?`, id)
}

func (s *Storage) getOrder(where string, arg interface{}) (*Order, error) {
	row := s.db.QueryRow(`
	SELECT id, external_id, organization_id, created_time,
	       discount, commission_fee, payment_keys_json
	FROM orders `+where, arg)

	order := &Order{}
	var discount, fee, keysJSON string
	err := row.Scan(
		&order.ID,
		&order.ExternalID,
		&order.OrganizationID,
		&order.CreatedTime,
		&discount,
		&fee,
		&keysJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if order.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("order %d has bad discount %q: %w", order.ID, discount, err)
	}
	if order.CommissionFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("order %d has bad commission fee %q: %w", order.ID, fee, err)
	}
	order.UnmarshalPaymentKeys(keysJSON)
	return order, nil
}

// SaveOrder inserts an order and sets its id
func (s *Storage) SaveOrder(order *Order) error {
	res, err := s.db.Exec(`
	INSERT INTO orders
	(external_id, organization_id, created_time, discount, commission_fee, payment_keys_json)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		order.ExternalID,
		order.OrganizationID,
		order.CreatedTime,
		order.Discount.String(),
		order.CommissionFee.String(),
		order.MarshalPaymentKeys(),
	)
	if err != nil {
		return err
	}
	order.ID, err = res.LastInsertId()
	return err
}

// ApplyMatches persists a batch of resolved matches in one transaction
func (s *Storage) ApplyMatches(batch []*MatchWrite) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	for _, w := range batch {
		if err := applyMatchTx(tx, w); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// ApplyMatch persists a single resolved match in its own transaction
func (s *Storage) ApplyMatch(w *MatchWrite) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin match write: %w", err)
	}
	if err := applyMatchTx(tx, w); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// applyMatchTx writes one match inside tx. The commission update is guarded
// on linked_order_id IS NULL so a record can never be linked twice, even if
// another process raced us between read and write.
func applyMatchTx(tx *sql.Tx, w *MatchWrite) error {
	keysJSON := "[]"
	if len(w.PaymentKeys) > 0 {
		o := Order{PaymentKeys: w.PaymentKeys}
		keysJSON = o.MarshalPaymentKeys()
	}

	res, err := tx.Exec(`
	UPDATE commissions
	SET linked_order_id = ?, linked_order_external_id = ?
	WHERE id = ? AND linked_order_id IS NULL
	`, w.OrderID, w.OrderExternalID, w.CommissionID)
	if err != nil {
		return fmt.Errorf("link commission %d: %w", w.CommissionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("commission %d is already linked", w.CommissionID)
	}

	res, err = tx.Exec(`
	UPDATE orders
	SET commission_fee = ?, payment_keys_json = ?
	WHERE id = ?
	`, w.NewFee.String(), keysJSON, w.OrderID)
	if err != nil {
		return fmt.Errorf("update order %d: %w", w.OrderID, err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %d not found for commission %d", w.OrderID, w.CommissionID)
	}

	return nil
}

// StartRun records the start of a reconciliation run
func (s *Storage) StartRun(run *ReconRun) (int64, error) {
	res, err := s.db.Exec(`
	INSERT INTO recon_runs
	(started_at, start_date, end_date, organization_id, batch_size,
	 max_time_diff_hours, dry_run, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, 'running')
	`,
		run.StartedAt,
		nullableTime(run.StartDate),
		nullableTime(run.EndDate),
		run.OrganizationID,
		run.BatchSize,
		run.MaxTimeDiffHours,
		run.DryRun,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteRun records the completion of a run
func (s *Storage) CompleteRun(runID int64, status string, totalCandidates, matched, failed int, reportJSON string) error {
	_, err := s.db.Exec(`
	UPDATE recon_runs
	SET completed_at = CURRENT_TIMESTAMP, status = ?,
	    total_candidates = ?, matched = ?, failed = ?, report_json = ?
	WHERE id = ?
	`, status, totalCandidates, matched, failed, reportJSON, runID)
	return err
}

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(limit int) ([]ReconRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
	SELECT id, started_at, completed_at, start_date, end_date, organization_id,
	       batch_size, max_time_diff_hours, dry_run, status,
	       total_candidates, matched, failed, report_json
	FROM recon_runs
	ORDER BY id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []ReconRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by id, (nil, nil) if missing
func (s *Storage) GetRun(runID int64) (*ReconRun, error) {
	row := s.db.QueryRow(`
	SELECT id, started_at, completed_at, start_date, end_date, organization_id,
	       batch_size, max_time_diff_hours, dry_run, status,
	       total_candidates, matched, failed, report_json
	FROM recon_runs WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetStats returns aggregate statistics across all data
func (s *Storage) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRow(`
	SELECT
		COUNT(*),
		COUNT(linked_order_id),
		COALESCE(SUM(CAST(bank_fee AS REAL)), 0),
		COALESCE(SUM(CASE WHEN linked_order_id IS NOT NULL THEN CAST(bank_fee AS REAL) ELSE 0 END), 0)
	FROM commissions
	`).Scan(
		&stats.TotalCommissions,
		&stats.LinkedCommissions,
		&scanDecimal{&stats.TotalFeeAmount},
		&scanDecimal{&stats.LinkedFeeAmount},
	)
	if err != nil {
		return nil, err
	}
	stats.UnlinkedCommissions = stats.TotalCommissions - stats.LinkedCommissions

	if err := s.db.QueryRow(`
	SELECT COUNT(*) FROM orders WHERE commission_fee != '0'
	`).Scan(&stats.OrdersWithFee); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM recon_runs`).Scan(&stats.TotalRuns); err != nil {
		return nil, err
	}

	return stats, nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCommission(row scanner) (*CommissionRecord, error) {
	record := &CommissionRecord{}
	var amount, fee string
	var txTime sql.NullTime
	var linkedID sql.NullInt64

	err := row.Scan(
		&record.ID,
		&amount,
		&fee,
		&record.OrganizationID,
		&txTime,
		&linkedID,
		&record.LinkedOrderExternalID,
		&record.Source,
	)
	if err != nil {
		return nil, err
	}

	if record.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("commission %d has bad amount %q: %w", record.ID, amount, err)
	}
	if record.BankFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("commission %d has bad bank fee %q: %w", record.ID, fee, err)
	}
	record.TransactionTime = timePtr(txTime)
	if linkedID.Valid {
		record.LinkedOrderID = &linkedID.Int64
	}
	return record, nil
}

func scanRun(row scanner) (*ReconRun, error) {
	run := &ReconRun{}
	var completed, start, end sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&completed,
		&start,
		&end,
		&run.OrganizationID,
		&run.BatchSize,
		&run.MaxTimeDiffHours,
		&run.DryRun,
		&run.Status,
		&run.TotalCandidates,
		&run.Matched,
		&run.Failed,
		&run.ReportJSON,
	)
	if err != nil {
		return nil, err
	}
	run.CompletedAt = timePtr(completed)
	run.StartDate = timePtr(start)
	run.EndDate = timePtr(end)
	return run, nil
}

// scanDecimal adapts a decimal.Decimal to database/sql scanning
type scanDecimal struct {
	d *decimal.Decimal
}

func (s *scanDecimal) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s.d = decimal.Zero
		return nil
	case float64:
		*s.d = decimal.NewFromFloat(v)
		return nil
	case int64:
		*s.d = decimal.NewFromInt(v)
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		*s.d = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		*s.d = d
		return nil
	default:
		return fmt.Errorf("cannot scan %T into decimal", src)
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
