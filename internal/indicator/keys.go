package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"tradelab/internal/domain"
)

// ParseBaseKey recovers the indicator name and parameters from a base
// key such as "rsi_timeperiod_14" and resolves it through the
// registry, so a key round-trips to the exact definition that minted
// it.
func (r *Registry) ParseBaseKey(baseKey string) (Definition, error) {
	parts := strings.Split(baseKey, domain.ValueKeySeparator)
	if len(parts) == 0 || parts[0] == "" {
		return Definition{}, fmt.Errorf("%w: empty indicator key", domain.ErrFatalConfig)
	}

	name := parts[0]
	rest := parts[1:]
	if len(rest)%2 != 0 {
		return Definition{}, fmt.Errorf("%w: malformed indicator key %q", domain.ErrFatalConfig, baseKey)
	}

	params := make(map[string]float64, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		v, err := strconv.ParseFloat(rest[i+1], 64)
		if err != nil {
			return Definition{}, fmt.Errorf("%w: malformed parameter %q in key %q",
				domain.ErrFatalConfig, rest[i+1], baseKey)
		}
		params[rest[i]] = v
	}

	def, err := r.Resolve(name, params)
	if err != nil {
		return Definition{}, err
	}
	if def.BaseKey != baseKey {
		return Definition{}, fmt.Errorf("%w: key %q does not round-trip (canonical %q)",
			domain.ErrFatalConfig, baseKey, def.BaseKey)
	}
	return def, nil
}

// ResolveValueKey maps a full value key such as
// "macd_fastperiod_12_signalperiod_9_slowperiod_26_signal" back to its
// definition. The suffix is matched against the definition's outputs.
func (r *Registry) ResolveValueKey(valueKey string) (Definition, error) {
	for _, suffix := range allSuffixes() {
		trimmed, ok := strings.CutSuffix(valueKey, domain.ValueKeySeparator+suffix)
		if !ok {
			continue
		}
		def, err := r.ParseBaseKey(trimmed)
		if err != nil {
			continue
		}
		for _, s := range def.Suffixes {
			if s == suffix {
				return def, nil
			}
		}
	}
	return Definition{}, fmt.Errorf("%w: unknown value key %q", domain.ErrFatalConfig, valueKey)
}

// DefinitionsForValueKeys resolves a set of value keys to their unique
// definitions, keyed and sorted by base key.
func (r *Registry) DefinitionsForValueKeys(valueKeys []string) ([]Definition, error) {
	byBase := make(map[string]Definition)
	var order []string
	for _, vk := range valueKeys {
		def, err := r.ResolveValueKey(vk)
		if err != nil {
			return nil, err
		}
		if _, ok := byBase[def.BaseKey]; !ok {
			byBase[def.BaseKey] = def
			order = append(order, def.BaseKey)
		}
	}

	defs := make([]Definition, 0, len(order))
	for _, k := range order {
		defs = append(defs, byBase[k])
	}
	return defs, nil
}

func allSuffixes() []string {
	return []string{
		suffixValue, suffixMacd, suffixSignal, suffixHist,
		suffixUpper, suffixMiddle, suffixLower, suffixSlowK, suffixSlowD,
	}
}
