package postgres

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
// Condition trees are stored as jsonb and passed through opaque.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

// Insert adds a new strategy. Returns ErrDuplicateKey if the ID exists.
func (s *StrategyStore) Insert(ctx context.Context, cfg *domain.StrategyConfig) error {
	if cfg == nil || cfg.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO strategies (
			strategy_id, name, description,
			entry_buy, entry_sell, exit_long, exit_short,
			initial_balance, commission_pct, position_size_pct, lot_size,
			created_at_ms
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		cfg.ID, cfg.Name, cfg.Description,
		cfg.EntryBuy, cfg.EntrySell, cfg.ExitLong, cfg.ExitShort,
		cfg.Execution.InitialBalance, cfg.Execution.CommissionPct,
		cfg.Execution.PositionSizePct, cfg.Execution.LotSize,
		cfg.CreatedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return classify("insert strategy", err)
	}
	return nil
}

// GetByID retrieves a strategy by its ID.
func (s *StrategyStore) GetByID(ctx context.Context, strategyID string) (*domain.StrategyConfig, error) {
	query := `
		SELECT strategy_id, name, description,
			entry_buy, entry_sell, exit_long, exit_short,
			initial_balance, commission_pct, position_size_pct, lot_size,
			created_at_ms
		FROM strategies
		WHERE strategy_id = $1
	`

	var cfg domain.StrategyConfig
	err := s.pool.QueryRow(ctx, query, strategyID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description,
		&cfg.EntryBuy, &cfg.EntrySell, &cfg.ExitLong, &cfg.ExitShort,
		&cfg.Execution.InitialBalance, &cfg.Execution.CommissionPct,
		&cfg.Execution.PositionSizePct, &cfg.Execution.LotSize,
		&cfg.CreatedAtMs,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, classify("get strategy by id", err)
	}
	return &cfg, nil
}

// GetAll retrieves all strategies ordered by creation time ASC.
func (s *StrategyStore) GetAll(ctx context.Context) ([]*domain.StrategyConfig, error) {
	query := `
		SELECT strategy_id, name, description,
			entry_buy, entry_sell, exit_long, exit_short,
			initial_balance, commission_pct, position_size_pct, lot_size,
			created_at_ms
		FROM strategies
		ORDER BY created_at_ms ASC, strategy_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, classify("query strategies", err)
	}
	defer rows.Close()

	var result []*domain.StrategyConfig
	for rows.Next() {
		var cfg domain.StrategyConfig
		err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description,
			&cfg.EntryBuy, &cfg.EntrySell, &cfg.ExitLong, &cfg.ExitShort,
			&cfg.Execution.InitialBalance, &cfg.Execution.CommissionPct,
			&cfg.Execution.PositionSizePct, &cfg.Execution.LotSize,
			&cfg.CreatedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		result = append(result, &cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy rows: %w", err)
	}
	return result, nil
}
