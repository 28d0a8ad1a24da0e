package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/famplan/internal/db/driver"
)

// StoreSchema is the migration prefix for the famplan store.
const StoreSchema = "store"

// maxBatch bounds the number of ids bound into a single IN (...) clause.
const maxBatch = 500

// TxRunner provides a transactional execution interface.
// This allows operations to run within a transaction context,
// ensuring atomicity of multi-table operations.
type TxRunner interface {
	// RunInTx executes the given function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	RunInTx(ctx context.Context, fn func(tx *TxOps) error) error
}

// TxOps provides database operations within a transaction.
// The context is stored and used for all operations, enabling cancellation
// and timeout propagation through the entire transaction.
//
// Code holding a TxOps must not issue queries through the StoreDB itself:
// the SQLite pool has a single connection, which the transaction owns.
type TxOps struct {
	tx     driver.Tx
	driver driver.Driver
	ctx    context.Context
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, query, args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, query, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, query, args...)
}

// Context returns the context associated with this transaction.
func (t *TxOps) Context() context.Context {
	return t.ctx
}

// Dialect returns the database dialect.
func (t *TxOps) Dialect() driver.Dialect {
	return t.driver.Dialect()
}

// Lock takes the named store-level lock for the rest of the transaction.
// Call it before any other statement.
func (t *TxOps) Lock(name string) error {
	return t.driver.AdvisoryLock(t.ctx, t.tx, name)
}

// StoreDB provides operations on the famplan store (.famplan/famplan.db).
type StoreDB struct {
	*DB
}

// OpenStore opens and migrates the store.
// For SQLite, dsn is the file path. For PostgreSQL, dsn is the connection string.
func OpenStore(dsn string, dialect driver.Dialect) (*StoreDB, error) {
	db, err := OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(context.Background(), StoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &StoreDB{DB: db}, nil
}

// OpenStoreInMemory opens a migrated in-memory store.
func OpenStoreInMemory() (*StoreDB, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(context.Background(), StoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &StoreDB{DB: db}, nil
}

// RunInTx executes the given function within a database transaction.
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
func (s *StoreDB) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txOps := &TxOps{
		tx:     tx,
		driver: s.Driver(),
		ctx:    ctx,
	}

	if err := fn(txOps); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Ensure StoreDB implements TxRunner
var _ TxRunner = (*StoreDB)(nil)

// Counts reports the number of rows in each store table.
type Counts struct {
	Members int `json:"members"`
	Sources int `json:"sources"`
	Rules   int `json:"rules"`
	Tasks   int `json:"tasks"`
}

// CountsTx counts rows per table.
func CountsTx(tx *TxOps) (*Counts, error) {
	var c Counts
	err := tx.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM members),
			(SELECT COUNT(*) FROM sources),
			(SELECT COUNT(*) FROM recurrence_rules),
			(SELECT COUNT(*) FROM tasks)
	`).Scan(&c.Members, &c.Sources, &c.Rules, &c.Tasks)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return &c, nil
}

// Counts counts rows per table.
func (s *StoreDB) Counts(ctx context.Context) (*Counts, error) {
	var c *Counts
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		c, err = CountsTx(tx)
		return err
	})
	return c, err
}

// DeleteAllTx removes every task, rule, source and member.
func DeleteAllTx(tx *TxOps) (*Counts, error) {
	var c Counts
	steps := []struct {
		table string
		n     *int
	}{
		{"tasks", &c.Tasks},
		{"recurrence_rules", &c.Rules},
		{"sources", &c.Sources},
		{"members", &c.Members},
	}
	for _, step := range steps {
		res, err := tx.Exec("DELETE FROM " + step.table)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", step.table, err)
		}
		n, _ := res.RowsAffected()
		*step.n = int(n)
	}
	return &c, nil
}

// deleteByIDsTx deletes rows of table whose id is in ids, in batches.
func deleteByIDsTx(tx *TxOps, table string, ids []string) (int, error) {
	total := 0
	for _, batch := range chunk(ids, maxBatch) {
		res, err := tx.Exec(
			"DELETE FROM "+table+" WHERE id IN ("+placeholders(len(batch))+")",
			toArgs(batch)...,
		)
		if err != nil {
			return total, fmt.Errorf("delete from %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// ============================================================================
// Column helpers
// ============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullTime formats an optional timestamp for a nullable column.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullString stores empty strings as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func scanNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := size
		if len(ids) < n {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
