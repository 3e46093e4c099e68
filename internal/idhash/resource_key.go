package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// hashPrefixLen keeps keys readable while leaving collisions
// negligible for the key cardinality involved.
const hashPrefixLen = 16

// ComputeResourceKey derives the lock resource key for a batch
// computation over an indicator set.
// Formula: ticker:timeframe:SHA256(sorted indicator keys)[:16]
// The same set of indicators always produces the same key regardless
// of request order.
func ComputeResourceKey(ticker, timeframe string, indicatorKeys []string) string {
	return fmt.Sprintf("%s:%s:%s", ticker, timeframe, hashIndicatorSet(indicatorKeys))
}

// ComputeTaskKey derives a deterministic identity for one batch
// computation request, including its time range.
// Formula: SHA256(ticker|timeframe|start|end|sorted indicator keys)[:16]
func ComputeTaskKey(ticker, timeframe string, startMs, endMs int64, indicatorKeys []string) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%s",
		ticker, timeframe, startMs, endMs, hashIndicatorSet(indicatorKeys))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:hashPrefixLen]
}

func hashIndicatorSet(indicatorKeys []string) string {
	sorted := make([]string, len(indicatorKeys))
	copy(sorted, indicatorKeys)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(hash[:])[:hashPrefixLen]
}
