package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Read-only through the interface; Seed loads fixtures for tests and
// the single-process deployment.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by (ticker, timeframe, begin_ms)
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

func candleKey(ticker, timeframe string, beginMs int64) string {
	return fmt.Sprintf("%s|%s|%d", ticker, timeframe, beginMs)
}

// Seed inserts candles, replacing any with the same key.
func (s *CandleStore) Seed(candles ...*domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		candleCopy := *c
		s.data[candleKey(c.Ticker, c.Timeframe, c.BeginMs)] = &candleCopy
	}
}

// QueryRange retrieves candles within [start, end), ordered by begin ASC.
func (s *CandleStore) QueryRange(_ context.Context, ticker, timeframe string, startMs, endMs int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.Ticker == ticker && c.Timeframe == timeframe && c.BeginMs >= startMs && c.BeginMs < endMs {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BeginMs < result[j].BeginMs
	})

	return result, nil
}

// CountRange returns the number of candles within [start, end).
func (s *CandleStore) CountRange(_ context.Context, ticker, timeframe string, startMs, endMs int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.data {
		if c.Ticker == ticker && c.Timeframe == timeframe && c.BeginMs >= startMs && c.BeginMs < endMs {
			n++
		}
	}
	return n, nil
}

// CountBefore returns the number of candles strictly before start.
func (s *CandleStore) CountBefore(_ context.Context, ticker, timeframe string, startMs int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.data {
		if c.Ticker == ticker && c.Timeframe == timeframe && c.BeginMs < startMs {
			n++
		}
	}
	return n, nil
}

// QueryBefore retrieves up to limit candles strictly before start, ordered by begin ASC.
func (s *CandleStore) QueryBefore(_ context.Context, ticker, timeframe string, startMs int64, limit int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.Ticker == ticker && c.Timeframe == timeframe && c.BeginMs < startMs {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BeginMs < result[j].BeginMs
	})

	// Keep the newest limit candles, still in ascending order.
	if limit > 0 && int64(len(result)) > limit {
		result = result[int64(len(result))-limit:]
	}

	return result, nil
}

// LatestBegin returns the begin timestamp of the newest candle.
func (s *CandleStore) LatestBegin(_ context.Context, ticker, timeframe string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for _, c := range s.data {
		if c.Ticker == ticker && c.Timeframe == timeframe {
			if !found || c.BeginMs > latest {
				latest = c.BeginMs
			}
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
