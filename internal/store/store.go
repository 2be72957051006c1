// Package store provides the idempotent scored-transaction store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/opensource-finance/shrike/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.StoreConfig) (domain.Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Insert stores a scored transaction. The primary key on trans_num makes
// the existence check and the write a single indivisible statement, so
// two concurrent submissions of the same identifier can never both
// succeed. A duplicate surfaces as ErrDuplicateTransaction and leaves
// the existing record untouched.
func (s *SQLStore) Insert(ctx context.Context, tx *domain.ScoredTransaction) error {
	if tx == nil || tx.TransNum == "" {
		return fmt.Errorf("%w: trans_num is required", ErrInvalidInput)
	}

	var label any
	if tx.Label != nil {
		label = *tx.Label
	}

	query := `
		INSERT INTO transactions (
			trans_num, trans_date_trans_time, cc_num, merchant, category, amt,
			first, last, gender, street, city, state, zip,
			lat, long, city_pop, job, dob, unix_time, merch_lat, merch_long,
			fraud_score, is_fraud, scorer, label, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		tx.TransNum, tx.TransDateTransTime, tx.CCNum, tx.Merchant, tx.Category, tx.Amount,
		tx.First, tx.Last, tx.Gender, tx.Street, tx.City, tx.State, tx.Zip,
		tx.Lat, tx.Long, tx.CityPop, tx.Job, tx.DOB, tx.UnixTime, tx.MerchLat, tx.MerchLong,
		tx.FraudScore, tx.IsFraud, tx.Scorer, label, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: trans_num %s", domain.ErrDuplicateTransaction, tx.TransNum)
		}
		return err
	}
	return nil
}

// ListRecent returns up to n records ordered by transaction timestamp
// descending, most recent first.
func (s *SQLStore) ListRecent(ctx context.Context, n int) ([]*domain.ScoredTransaction, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT trans_num, trans_date_trans_time, cc_num, merchant, category, amt,
			   first, last, gender, street, city, state, zip,
			   lat, long, city_pop, job, dob, unix_time, merch_lat, merch_long,
			   fraud_score, is_fraud, scorer, label
		FROM transactions
		ORDER BY unix_time DESC, trans_num DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.ScoredTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*domain.ScoredTransaction, error) {
	var tx domain.ScoredTransaction
	var label sql.NullBool

	if err := rows.Scan(
		&tx.TransNum, &tx.TransDateTransTime, &tx.CCNum, &tx.Merchant, &tx.Category, &tx.Amount,
		&tx.First, &tx.Last, &tx.Gender, &tx.Street, &tx.City, &tx.State, &tx.Zip,
		&tx.Lat, &tx.Long, &tx.CityPop, &tx.Job, &tx.DOB, &tx.UnixTime, &tx.MerchLat, &tx.MerchLong,
		&tx.FraudScore, &tx.IsFraud, &tx.Scorer, &label,
	); err != nil {
		return nil, err
	}

	if label.Valid {
		v := label.Bool
		tx.Label = &v
	}
	return &tx, nil
}

// ClearAll removes every record and reports how many were removed.
func (s *SQLStore) ClearAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of stored records.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	return count, err
}

// LastCardTransaction returns the unix time of the card's most recent
// stored transaction.
func (s *SQLStore) LastCardTransaction(ctx context.Context, ccNum string) (int64, bool, error) {
	if ccNum == "" {
		return 0, false, fmt.Errorf("%w: cc_num is required", ErrInvalidInput)
	}

	query := `
		SELECT unix_time FROM transactions
		WHERE cc_num = ?
		ORDER BY unix_time DESC
		LIMIT 1
	`

	var unixTime int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), ccNum).Scan(&unixTime)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return unixTime, true, nil
}

// SaveRuleConfig stores an operator-defined rule configuration.
func (s *SQLStore) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, expression, weight, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Weight, rule.Reason, enabled, now, now,
	)
	return err
}

// ListRuleConfigs retrieves all enabled rule configurations.
func (s *SQLStore) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, weight, reason, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Expression,
			&cfg.Weight, &cfg.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation detects a primary-key conflict from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	// modernc.org/sqlite reports SQLITE_CONSTRAINT via the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
