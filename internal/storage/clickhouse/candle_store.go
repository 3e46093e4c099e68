package clickhouse

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse. The
// candles table is owned by the upstream ingestion system; this adapter
// only reads.
type CandleStore struct {
	conn  *Conn
	retry storage.RetryPolicy
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn, retry: storage.DefaultRetryPolicy}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// QueryRange retrieves candles within [start, end), ordered by begin ASC.
func (s *CandleStore) QueryRange(ctx context.Context, ticker, timeframe string, startMs, endMs int64) ([]*domain.Candle, error) {
	query := `
		SELECT ticker, timeframe, begin_ms, open, high, low, close, volume
		FROM candles
		WHERE ticker = ? AND timeframe = ? AND begin_ms >= ? AND begin_ms < ?
		ORDER BY begin_ms ASC
	`

	var candles []*domain.Candle
	err := storage.Retry(ctx, s.retry, func() error {
		rows, err := s.conn.Query(ctx, query, ticker, timeframe, uint64(startMs), uint64(endMs))
		if err != nil {
			return classify("query candle range", err)
		}
		defer rows.Close()

		candles, err = scanCandles(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// CountRange returns the number of candles within [start, end).
func (s *CandleStore) CountRange(ctx context.Context, ticker, timeframe string, startMs, endMs int64) (int64, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE ticker = ? AND timeframe = ? AND begin_ms >= ? AND begin_ms < ?
	`

	var count uint64
	err := storage.Retry(ctx, s.retry, func() error {
		err := s.conn.QueryRow(ctx, query, ticker, timeframe, uint64(startMs), uint64(endMs)).Scan(&count)
		return classify("count candle range", err)
	})
	if err != nil {
		return 0, err
	}
	return int64(count), nil
}

// CountBefore returns the number of candles strictly before start.
func (s *CandleStore) CountBefore(ctx context.Context, ticker, timeframe string, startMs int64) (int64, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE ticker = ? AND timeframe = ? AND begin_ms < ?
	`

	var count uint64
	err := storage.Retry(ctx, s.retry, func() error {
		err := s.conn.QueryRow(ctx, query, ticker, timeframe, uint64(startMs)).Scan(&count)
		return classify("count candles before", err)
	})
	if err != nil {
		return 0, err
	}
	return int64(count), nil
}

// QueryBefore retrieves up to limit candles strictly before start,
// ordered by begin ASC.
func (s *CandleStore) QueryBefore(ctx context.Context, ticker, timeframe string, startMs int64, limit int64) ([]*domain.Candle, error) {
	// Select the newest rows first, then flip back to ascending order.
	query := `
		SELECT ticker, timeframe, begin_ms, open, high, low, close, volume
		FROM (
			SELECT ticker, timeframe, begin_ms, open, high, low, close, volume
			FROM candles
			WHERE ticker = ? AND timeframe = ? AND begin_ms < ?
			ORDER BY begin_ms DESC
			LIMIT ?
		)
		ORDER BY begin_ms ASC
	`

	var candles []*domain.Candle
	err := storage.Retry(ctx, s.retry, func() error {
		rows, err := s.conn.Query(ctx, query, ticker, timeframe, uint64(startMs), uint64(limit))
		if err != nil {
			return classify("query candles before", err)
		}
		defer rows.Close()

		candles, err = scanCandles(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// LatestBegin returns the begin timestamp of the newest candle.
func (s *CandleStore) LatestBegin(ctx context.Context, ticker, timeframe string) (int64, error) {
	query := `
		SELECT max(begin_ms), count(*) FROM candles
		WHERE ticker = ? AND timeframe = ?
	`

	var latest, count uint64
	err := storage.Retry(ctx, s.retry, func() error {
		err := s.conn.QueryRow(ctx, query, ticker, timeframe).Scan(&latest, &count)
		return classify("query latest candle", err)
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(latest), nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		var beginMs uint64

		err := rows.Scan(
			&c.Ticker, &c.Timeframe, &beginMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.BeginMs = int64(beginMs)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
