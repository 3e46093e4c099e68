package clickhouse

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// IndicatorValueStore implements storage.IndicatorValueStore using
// ClickHouse. The table is a ReplacingMergeTree keyed by version, so
// duplicate natural keys from at-least-once writers are expected; every
// read reconciles with argMax(value, version) instead of waiting for
// background merges.
type IndicatorValueStore struct {
	conn  *Conn
	retry storage.RetryPolicy
}

// NewIndicatorValueStore creates a new IndicatorValueStore.
func NewIndicatorValueStore(conn *Conn) *IndicatorValueStore {
	return &IndicatorValueStore{conn: conn, retry: storage.DefaultRetryPolicy}
}

// Compile-time interface check.
var _ storage.IndicatorValueStore = (*IndicatorValueStore)(nil)

// InsertBulk adds points. Duplicate natural keys are not an error.
func (s *IndicatorValueStore) InsertBulk(ctx context.Context, values []*domain.IndicatorValue) error {
	if len(values) == 0 {
		return nil
	}
	for _, v := range values {
		if v == nil || v.Ticker == "" || v.IndicatorKey == "" || v.ValueKey == "" {
			return storage.ErrInvalidInput
		}
	}

	return storage.Retry(ctx, s.retry, func() error {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO indicator_values (
				ticker, timeframe, begin_ms, indicator_key, value_key, value, version
			)
		`)
		if err != nil {
			return classify("prepare indicator batch", err)
		}

		for _, v := range values {
			err = batch.Append(
				v.Ticker, v.Timeframe, uint64(v.BeginMs),
				v.IndicatorKey, v.ValueKey, v.Value, uint64(v.Version),
			)
			if err != nil {
				return classify("append to indicator batch", err)
			}
		}

		if err := batch.Send(); err != nil {
			return classify("send indicator batch", err)
		}
		return nil
	})
}

// QueryRange retrieves reconciled points within [start, end), one row
// per natural key with the highest version winning.
func (s *IndicatorValueStore) QueryRange(ctx context.Context, ticker, timeframe string, indicatorKeys []string, startMs, endMs int64) ([]*domain.IndicatorValue, error) {
	if len(indicatorKeys) == 0 {
		return nil, nil
	}

	query := `
		SELECT
			ticker, timeframe, begin_ms, indicator_key, value_key,
			argMax(value, version) AS value,
			max(version) AS version
		FROM indicator_values
		WHERE ticker = ? AND timeframe = ?
			AND indicator_key IN ?
			AND begin_ms >= ? AND begin_ms < ?
		GROUP BY ticker, timeframe, begin_ms, indicator_key, value_key
		ORDER BY begin_ms ASC, value_key ASC
	`

	var values []*domain.IndicatorValue
	err := storage.Retry(ctx, s.retry, func() error {
		rows, err := s.conn.Query(ctx, query,
			ticker, timeframe, indicatorKeys, uint64(startMs), uint64(endMs))
		if err != nil {
			return classify("query indicator range", err)
		}
		defer rows.Close()

		values, err = scanIndicatorValues(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// LatestBegin returns the newest begin timestamp for an indicator key.
func (s *IndicatorValueStore) LatestBegin(ctx context.Context, ticker, timeframe, indicatorKey string) (int64, error) {
	query := `
		SELECT max(begin_ms), count(*) FROM indicator_values
		WHERE ticker = ? AND timeframe = ? AND indicator_key = ?
	`

	var latest, count uint64
	err := storage.Retry(ctx, s.retry, func() error {
		err := s.conn.QueryRow(ctx, query, ticker, timeframe, indicatorKey).Scan(&latest, &count)
		return classify("query latest indicator", err)
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(latest), nil
}

// scanIndicatorValues scans multiple rows.
func scanIndicatorValues(rows chRows) ([]*domain.IndicatorValue, error) {
	var values []*domain.IndicatorValue

	for rows.Next() {
		var v domain.IndicatorValue
		var beginMs, version uint64

		err := rows.Scan(
			&v.Ticker, &v.Timeframe, &beginMs,
			&v.IndicatorKey, &v.ValueKey, &v.Value, &version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan indicator value row: %w", err)
		}

		v.BeginMs = int64(beginMs)
		v.Version = int64(version)
		values = append(values, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indicator value rows: %w", err)
	}

	return values, nil
}
