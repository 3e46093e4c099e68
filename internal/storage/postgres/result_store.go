package postgres

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// BacktestResultStore implements storage.BacktestResultStore using
// PostgreSQL. Metrics and trades for one job land in a single
// transaction so readers never see a partial result.
type BacktestResultStore struct {
	pool *Pool
}

// NewBacktestResultStore creates a new BacktestResultStore.
func NewBacktestResultStore(pool *Pool) *BacktestResultStore {
	return &BacktestResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)

// SaveResult persists metrics and trades for a completed job atomically.
func (s *BacktestResultStore) SaveResult(ctx context.Context, m *domain.BacktestMetrics, trades []*domain.Trade) error {
	if m == nil || m.JobID == "" {
		return storage.ErrInvalidInput
	}
	for _, t := range trades {
		if t == nil || t.JobID != m.JobID {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback(ctx)

	metricsQuery := `
		INSERT INTO backtest_results (
			job_id,
			total_trades, winning_trades, losing_trades, win_rate_pct,
			initial_balance, final_balance, gross_balance,
			net_profit, net_profit_pct, total_commission,
			profit_factor, max_drawdown_pct, sharpe_ratio,
			avg_win_pct, avg_loss_pct,
			max_consecutive_wins, max_consecutive_losses,
			stability_score
		) VALUES (
			$1,
			$2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			$15, $16,
			$17, $18,
			$19
		)
	`

	_, err = tx.Exec(ctx, metricsQuery,
		m.JobID,
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRatePct,
		m.InitialBalance, m.FinalBalance, m.GrossBalance,
		m.NetProfit, m.NetProfitPct, m.TotalCommission,
		m.ProfitFactor, m.MaxDrawdownPct, m.SharpeRatio,
		m.AvgWinPct, m.AvgLossPct,
		m.MaxConsecutiveWins, m.MaxConsecutiveLosses,
		m.StabilityScore,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return classify("insert backtest metrics", err)
	}

	tradeQuery := `
		INSERT INTO backtest_trades (
			job_id, direction,
			entry_time_ms, entry_price, exit_time_ms, exit_price, exit_reason,
			quantity, commission,
			gross_profit, net_profit, profit_pct, balance_after
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9,
			$10, $11, $12, $13
		)
	`

	for _, t := range trades {
		_, err := tx.Exec(ctx, tradeQuery,
			t.JobID, t.Direction,
			t.EntryTimeMs, t.EntryPrice, t.ExitTimeMs, t.ExitPrice, t.ExitReason,
			t.Quantity, t.Commission,
			t.GrossProfit, t.NetProfit, t.ProfitPct, t.BalanceAfter,
		)
		if err != nil {
			return classify("insert backtest trade", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

// GetMetrics retrieves metrics by job ID.
func (s *BacktestResultStore) GetMetrics(ctx context.Context, jobID string) (*domain.BacktestMetrics, error) {
	query := `
		SELECT job_id,
			total_trades, winning_trades, losing_trades, win_rate_pct,
			initial_balance, final_balance, gross_balance,
			net_profit, net_profit_pct, total_commission,
			profit_factor, max_drawdown_pct, sharpe_ratio,
			avg_win_pct, avg_loss_pct,
			max_consecutive_wins, max_consecutive_losses,
			stability_score
		FROM backtest_results
		WHERE job_id = $1
	`

	var m domain.BacktestMetrics
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&m.JobID,
		&m.TotalTrades, &m.WinningTrades, &m.LosingTrades, &m.WinRatePct,
		&m.InitialBalance, &m.FinalBalance, &m.GrossBalance,
		&m.NetProfit, &m.NetProfitPct, &m.TotalCommission,
		&m.ProfitFactor, &m.MaxDrawdownPct, &m.SharpeRatio,
		&m.AvgWinPct, &m.AvgLossPct,
		&m.MaxConsecutiveWins, &m.MaxConsecutiveLosses,
		&m.StabilityScore,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, classify("get backtest metrics", err)
	}
	return &m, nil
}

// GetTrades retrieves all trades for a job, ordered by entry time ASC.
func (s *BacktestResultStore) GetTrades(ctx context.Context, jobID string) ([]*domain.Trade, error) {
	query := `
		SELECT job_id, direction,
			entry_time_ms, entry_price, exit_time_ms, exit_price, exit_reason,
			quantity, commission,
			gross_profit, net_profit, profit_pct, balance_after
		FROM backtest_trades
		WHERE job_id = $1
		ORDER BY entry_time_ms ASC, trade_seq ASC
	`

	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, classify("query backtest trades", err)
	}
	defer rows.Close()

	var result []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.JobID, &t.Direction,
			&t.EntryTimeMs, &t.EntryPrice, &t.ExitTimeMs, &t.ExitPrice, &t.ExitReason,
			&t.Quantity, &t.Commission,
			&t.GrossProfit, &t.NetProfit, &t.ProfitPct, &t.BalanceAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest trade row: %w", err)
		}
		result = append(result, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest trade rows: %w", err)
	}
	if result == nil {
		// No trades is only valid when the metrics row exists.
		if _, err := s.GetMetrics(ctx, jobID); err != nil {
			return nil, err
		}
	}
	return result, nil
}
