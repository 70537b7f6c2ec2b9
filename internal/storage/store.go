package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"conti/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Store owns the local SQLite database holding the transactions and
// category_mappings tables.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Single local file, single writer.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const transactionColumns = `id, date, amount, description, account, payee, category,
       is_manually_categorized, created_at, updated_at`

// ReplaceTransactions deletes every stored transaction and inserts the given
// batch inside one database transaction, so a failure leaves the previous set
// untouched. Returns the number of rows inserted.
func (s *Store) ReplaceTransactions(ctx context.Context, txs []core.Transaction) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM transactions"); err != nil {
		return 0, fmt.Errorf("clear transactions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (date, amount, description, account, payee, category)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range txs {
		category := t.Category
		if category == "" {
			category = core.CategoryOther
		}
		if _, err := stmt.ExecContext(ctx,
			t.Date.Format(dateLayout), t.Amount, t.Description, t.Account, t.Payee, category); err != nil {
			return 0, fmt.Errorf("insert transaction: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction set replaced", "inserted", inserted)
	return inserted, nil
}

// ListTransactions returns transactions ordered by date descending.
// A limit of 0 means no limit.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY date DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListUncategorized returns transactions still in the default bucket,
// ordered by date descending.
func (s *Store) ListUncategorized(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE category = ?
		 ORDER BY date DESC, id DESC`, core.CategoryOther)
	if err != nil {
		return nil, fmt.Errorf("list uncategorized transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// UpdateTransactionCategory sets a transaction's category. When manual is
// true the row is marked manually categorized; the automatic path never
// touches that flag.
func (s *Store) UpdateTransactionCategory(ctx context.Context, id int64, category string, manual bool) error {
	var res sql.Result
	var err error
	if manual {
		res, err = s.db.ExecContext(ctx,
			`UPDATE transactions
			 SET category = ?, is_manually_categorized = TRUE, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`, category, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE transactions
			 SET category = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`, category, id)
	}
	if err != nil {
		return fmt.Errorf("update transaction category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrTransactionNotFound
	}
	return nil
}

// AutoCategorizeCandidate is the minimal row the categorization engine needs
// to match a transaction against learned mappings.
type AutoCategorizeCandidate struct {
	ID      int64
	Account string
	Payee   string
}

// AutoCategorizeCandidates returns the rows eligible for automatic
// categorization: never touched by the user and still in the default bucket.
func (s *Store) AutoCategorizeCandidates(ctx context.Context) ([]AutoCategorizeCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account, payee FROM transactions
		 WHERE is_manually_categorized = FALSE AND category = ?`, core.CategoryOther)
	if err != nil {
		return nil, fmt.Errorf("list auto-categorize candidates: %w", err)
	}
	defer rows.Close()

	var out []AutoCategorizeCandidate
	for rows.Next() {
		var c AutoCategorizeCandidate
		if err := rows.Scan(&c.ID, &c.Account, &c.Payee); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

func (s *Store) ClearTransactions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM transactions"); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	slog.InfoContext(ctx, "All transactions cleared")
	return nil
}

// UpsertMapping creates or overwrites the mapping for (type, value).
// The value is case-folded before storage.
func (s *Store) UpsertMapping(ctx context.Context, mappingType core.MappingType, value, category string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO category_mappings (mapping_type, mapping_value, category, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(mapping_type, mapping_value)
		 DO UPDATE SET category = excluded.category, updated_at = CURRENT_TIMESTAMP`,
		string(mappingType), core.NormalizeMappingValue(value), category)
	if err != nil {
		return fmt.Errorf("upsert category mapping: %w", err)
	}

	slog.InfoContext(ctx, "Category mapping saved",
		"mapping_type", string(mappingType),
		"mapping_value", core.NormalizeMappingValue(value),
		"category", category)
	return nil
}

// GetMapping returns the mapping stored for (type, value). The value is
// case-folded the same way UpsertMapping folds it.
func (s *Store) GetMapping(ctx context.Context, mappingType core.MappingType, value string) (core.CategoryMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mapping_type, mapping_value, category, created_at, updated_at
		 FROM category_mappings WHERE mapping_type = ? AND mapping_value = ?`,
		string(mappingType), core.NormalizeMappingValue(value))

	var m core.CategoryMapping
	var mt, createdAt, updatedAt string
	if err := row.Scan(&m.ID, &mt, &m.Value, &m.Category, &createdAt, &updatedAt); err != nil {
		return core.CategoryMapping{}, fmt.Errorf("get category mapping: %w", err)
	}
	m.Type = core.MappingType(mt)
	m.CreatedAt = parseTimestamp(createdAt)
	m.UpdatedAt = parseTimestamp(updatedAt)
	return m, nil
}

func (s *Store) ListMappings(ctx context.Context) ([]core.CategoryMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mapping_type, mapping_value, category, created_at, updated_at
		 FROM category_mappings ORDER BY mapping_type, mapping_value`)
	if err != nil {
		return nil, fmt.Errorf("list category mappings: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryMapping
	for rows.Next() {
		var m core.CategoryMapping
		var mappingType, createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &mappingType, &m.Value, &m.Category, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category mapping: %w", err)
		}
		m.Type = core.MappingType(mappingType)
		m.CreatedAt = parseTimestamp(createdAt)
		m.UpdatedAt = parseTimestamp(updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ClearMappings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM category_mappings"); err != nil {
		return fmt.Errorf("clear category mappings: %w", err)
	}
	slog.InfoContext(ctx, "All category mappings cleared")
	return nil
}

func (s *Store) CountMappings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM category_mappings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count category mappings: %w", err)
	}
	return count, nil
}

// CategoryStat aggregates stored transactions per category.
type CategoryStat struct {
	Category         string
	TransactionCount int64
	TotalExpenses    float64
	TotalIncome      float64
	AvgAmount        float64
}

func (s *Store) CategoryStats(ctx context.Context) ([]CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category,
		        COUNT(*) AS transaction_count,
		        SUM(CASE WHEN amount < 0 THEN amount ELSE 0 END) AS total_expenses,
		        SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END) AS total_income,
		        AVG(amount) AS avg_amount
		 FROM transactions
		 GROUP BY category
		 ORDER BY transaction_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	var out []CategoryStat
	for rows.Next() {
		var st CategoryStat
		if err := rows.Scan(&st.Category, &st.TransactionCount, &st.TotalExpenses, &st.TotalIncome, &st.AvgAmount); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DatabaseStats summarizes the categorization state of the stored data.
type DatabaseStats struct {
	TotalTransactions   int64
	ManuallyCategorized int64
	AutoCategorized     int64
	Uncategorized       int64
	TotalMappings       int64
}

func (s *Store) DatabaseStats(ctx context.Context) (DatabaseStats, error) {
	var st DatabaseStats

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM transactions", &st.TotalTransactions},
		{"SELECT COUNT(*) FROM transactions WHERE is_manually_categorized = TRUE", &st.ManuallyCategorized},
		{"SELECT COUNT(*) FROM transactions WHERE category != 'Other' AND is_manually_categorized = FALSE", &st.AutoCategorized},
		{"SELECT COUNT(*) FROM transactions WHERE category = 'Other'", &st.Uncategorized},
		{"SELECT COUNT(*) FROM category_mappings", &st.TotalMappings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return DatabaseStats{}, fmt.Errorf("database stats: %w", err)
		}
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var t core.Transaction
	var date, createdAt, updatedAt string
	err := row.Scan(&t.ID, &date, &t.Amount, &t.Description, &t.Account, &t.Payee,
		&t.Category, &t.ManuallyCategorized, &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updatedAt)
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// parseTimestamp reads SQLite CURRENT_TIMESTAMP values. Best effort: a
// bookkeeping timestamp that fails to parse becomes the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, dateLayout} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
