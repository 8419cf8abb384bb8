// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finmatter/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
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

// SaveTransaction stores a categorized transaction with user isolation.
func (s *SQLStore) SaveTransaction(ctx context.Context, userID string, tx *domain.CategorizedTransaction) error {
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	createdAt := tx.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, card_id, tx_date, amount, currency,
			tx_type, merchant, spend_category, statement_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			card_id = excluded.card_id,
			tx_date = excluded.tx_date,
			amount = excluded.amount,
			currency = excluded.currency,
			tx_type = excluded.tx_type,
			merchant = excluded.merchant,
			spend_category = excluded.spend_category,
			statement_id = excluded.statement_id
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		tx.ID, userID, tx.CardID, tx.Date, tx.Amount, tx.Currency,
		string(tx.Type), tx.Merchant, string(tx.Category), tx.Statement, createdAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with user isolation.
func (s *SQLStore) GetTransaction(ctx context.Context, userID string, txID string) (*domain.CategorizedTransaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, card_id, tx_date, amount, currency,
			   tx_type, merchant, spend_category, statement_id, created_at
		FROM transactions
		WHERE user_id = ? AND id = ?
	`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, s.rebind(query), userID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ListTransactionsInPeriod retrieves a user's transactions inside an
// inclusive ISO date window, ordered by date ascending.
func (s *SQLStore) ListTransactionsInPeriod(ctx context.Context, userID string, start, end string) ([]*domain.CategorizedTransaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, card_id, tx_date, amount, currency,
			   tx_type, merchant, spend_category, statement_id, created_at
		FROM transactions
		WHERE user_id = ? AND tx_date >= ? AND tx_date <= ?
		ORDER BY tx_date ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.CategorizedTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.CategorizedTransaction, error) {
	var tx domain.CategorizedTransaction
	var txType, category string
	var merchant, statement sql.NullString

	if err := row.Scan(
		&tx.ID, &tx.UserID, &tx.CardID, &tx.Date, &tx.Amount, &tx.Currency,
		&txType, &merchant, &category, &statement, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.Category = domain.SpendCategory(category)
	tx.Merchant = merchant.String
	tx.Statement = statement.String
	return &tx, nil
}

// SaveRuleSet stores a card's rule set, replacing any existing one.
func (s *SQLStore) SaveRuleSet(ctx context.Context, ruleSet *domain.CardRuleSet) error {
	if ruleSet == nil || ruleSet.CardID == "" {
		return fmt.Errorf("%w: cardID is required", ErrInvalidInput)
	}

	rules, err := json.Marshal(ruleSet.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	query := `
		INSERT INTO rule_sets (card_id, rules, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(card_id) DO UPDATE SET
			rules = excluded.rules,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		ruleSet.CardID, string(rules), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetRuleSet retrieves a card's rule set.
func (s *SQLStore) GetRuleSet(ctx context.Context, cardID string) (*domain.CardRuleSet, error) {
	if cardID == "" {
		return nil, fmt.Errorf("%w: cardID is required", ErrInvalidInput)
	}

	query := `SELECT card_id, rules FROM rule_sets WHERE card_id = ?`

	var rs domain.CardRuleSet
	var rules string

	err := s.db.QueryRowContext(ctx, s.rebind(query), cardID).Scan(&rs.CardID, &rules)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rules), &rs.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules for %s: %w", cardID, err)
	}

	return &rs, nil
}

// ListRuleSets retrieves all declared rule sets.
func (s *SQLStore) ListRuleSets(ctx context.Context) ([]*domain.CardRuleSet, error) {
	query := `SELECT card_id, rules FROM rule_sets ORDER BY card_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ruleSets []*domain.CardRuleSet
	for rows.Next() {
		var rs domain.CardRuleSet
		var rules string
		if err := rows.Scan(&rs.CardID, &rules); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rules), &rs.Rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules for %s: %w", rs.CardID, err)
		}
		ruleSets = append(ruleSets, &rs)
	}

	return ruleSets, rows.Err()
}

// SaveCardVariant stores a catalog entry.
func (s *SQLStore) SaveCardVariant(ctx context.Context, variant *domain.CardVariant) error {
	if variant == nil || variant.ID == "" {
		return fmt.Errorf("%w: variant id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(variant)
	if err != nil {
		return fmt.Errorf("failed to encode variant: %w", err)
	}

	query := `
		INSERT INTO card_variants (
			id, bank, family, variant_name, payload,
			effective_from, effective_to, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bank = excluded.bank,
			family = excluded.family,
			variant_name = excluded.variant_name,
			payload = excluded.payload,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		variant.ID, variant.Bank, variant.Family, variant.VariantName, string(payload),
		variant.EffectiveFrom, variant.EffectiveTo, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetCardVariant retrieves a catalog entry by id.
func (s *SQLStore) GetCardVariant(ctx context.Context, variantID string) (*domain.CardVariant, error) {
	if variantID == "" {
		return nil, fmt.Errorf("%w: variant id is required", ErrInvalidInput)
	}

	query := `SELECT payload FROM card_variants WHERE id = ?`

	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(query), variantID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var variant domain.CardVariant
	if err := json.Unmarshal([]byte(payload), &variant); err != nil {
		return nil, fmt.Errorf("failed to parse variant %s: %w", variantID, err)
	}

	return &variant, nil
}

// ListCardVariants retrieves the full catalog ordered by id.
func (s *SQLStore) ListCardVariants(ctx context.Context) ([]*domain.CardVariant, error) {
	query := `SELECT payload FROM card_variants ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []*domain.CardVariant
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var variant domain.CardVariant
		if err := json.Unmarshal([]byte(payload), &variant); err != nil {
			return nil, fmt.Errorf("failed to parse variant: %w", err)
		}
		variants = append(variants, &variant)
	}

	return variants, rows.Err()
}

// DeleteCardVariant removes a catalog entry.
func (s *SQLStore) DeleteCardVariant(ctx context.Context, variantID string) error {
	if variantID == "" {
		return fmt.Errorf("%w: variant id is required", ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM card_variants WHERE id = ?`), variantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SavePeriodSummary stores a computed period summary for audit history.
func (s *SQLStore) SavePeriodSummary(ctx context.Context, userID string, cardID string, summary *domain.PeriodRewardSummary) error {
	if userID == "" || cardID == "" {
		return fmt.Errorf("%w: userID and cardID are required", ErrInvalidInput)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	query := `
		INSERT INTO period_summaries (
			user_id, card_id, period_type, period_start, period_end, summary, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, card_id, period_type, period_start, period_end) DO UPDATE SET
			summary = excluded.summary,
			computed_at = excluded.computed_at
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		userID, cardID, string(summary.Period.Type), summary.Period.Start, summary.Period.End,
		string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetPeriodSummary retrieves a previously computed summary.
func (s *SQLStore) GetPeriodSummary(ctx context.Context, userID string, cardID string, period domain.PeriodContext) (*domain.PeriodRewardSummary, error) {
	if userID == "" || cardID == "" {
		return nil, fmt.Errorf("%w: userID and cardID are required", ErrInvalidInput)
	}

	query := `
		SELECT summary FROM period_summaries
		WHERE user_id = ? AND card_id = ? AND period_type = ? AND period_start = ? AND period_end = ?
	`

	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(query),
		userID, cardID, string(period.Type), period.Start, period.End,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var summary domain.PeriodRewardSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}

	return &summary, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
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
