package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// IndicatorValueStore is an in-memory implementation of
// storage.IndicatorValueStore. Mirrors the ClickHouse
// ReplacingMergeTree semantics: duplicate natural keys coexist until a
// read reconciles them to the highest version.
type IndicatorValueStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.IndicatorValue // all versions per natural key
}

// NewIndicatorValueStore creates a new in-memory indicator value store.
func NewIndicatorValueStore() *IndicatorValueStore {
	return &IndicatorValueStore{
		data: make(map[string][]*domain.IndicatorValue),
	}
}

func indicatorKey(v *domain.IndicatorValue) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", v.Ticker, v.Timeframe, v.BeginMs, v.IndicatorKey, v.ValueKey)
}

// InsertBulk adds points. Duplicate natural keys are accepted; reads
// reconcile by version.
func (s *IndicatorValueStore) InsertBulk(_ context.Context, values []*domain.IndicatorValue) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range values {
		if v == nil || v.Ticker == "" || v.IndicatorKey == "" || v.ValueKey == "" {
			return storage.ErrInvalidInput
		}
		valueCopy := *v
		key := indicatorKey(v)
		s.data[key] = append(s.data[key], &valueCopy)
	}

	return nil
}

// QueryRange retrieves reconciled points within [start, end), ordered
// by begin ASC then value key. One row per natural key, max version wins.
func (s *IndicatorValueStore) QueryRange(_ context.Context, ticker, timeframe string, indicatorKeys []string, startMs, endMs int64) ([]*domain.IndicatorValue, error) {
	wanted := make(map[string]struct{}, len(indicatorKeys))
	for _, k := range indicatorKeys {
		wanted[k] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.IndicatorValue
	for _, versions := range s.data {
		best := reconcile(versions)
		if best == nil || best.Ticker != ticker || best.Timeframe != timeframe {
			continue
		}
		if _, ok := wanted[best.IndicatorKey]; !ok {
			continue
		}
		if best.BeginMs < startMs || best.BeginMs >= endMs {
			continue
		}
		valueCopy := *best
		result = append(result, &valueCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BeginMs != result[j].BeginMs {
			return result[i].BeginMs < result[j].BeginMs
		}
		return result[i].ValueKey < result[j].ValueKey
	})

	return result, nil
}

// LatestBegin returns the newest begin timestamp for an indicator key.
func (s *IndicatorValueStore) LatestBegin(_ context.Context, ticker, timeframe, indicatorKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for _, versions := range s.data {
		v := versions[0]
		if v.Ticker == ticker && v.Timeframe == timeframe && v.IndicatorKey == indicatorKey {
			if !found || v.BeginMs > latest {
				latest = v.BeginMs
			}
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

// reconcile picks the highest-version row among duplicates.
func reconcile(versions []*domain.IndicatorValue) *domain.IndicatorValue {
	var best *domain.IndicatorValue
	for _, v := range versions {
		if best == nil || v.Version > best.Version {
			best = v
		}
	}
	return best
}

var _ storage.IndicatorValueStore = (*IndicatorValueStore)(nil)
