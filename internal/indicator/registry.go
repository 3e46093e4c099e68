package indicator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tradelab/internal/domain"
)

// Definition is a fully resolved indicator: validated parameters, the
// derived base key, a conservative lookback requirement and the output
// value keys. Definitions are immutable once created.
type Definition struct {
	Name     string             // builtin name, e.g. "rsi"
	Params   map[string]float64 // normalized parameters
	BaseKey  string             // name + sorted params, e.g. "rsi_timeperiod_14"
	Lookback int                // bars of history required before the first defined value
	Suffixes []string           // output suffixes in stable order

	spec *builtinSpec
}

// ValueKeys returns the full value keys produced by this indicator, in
// the same order as Suffixes.
func (d Definition) ValueKeys() []string {
	keys := make([]string, len(d.Suffixes))
	for i, s := range d.Suffixes {
		keys[i] = d.BaseKey + domain.ValueKeySeparator + s
	}
	return keys
}

// builtinSpec describes one supported indicator.
type builtinSpec struct {
	name     string
	params   []paramSpec
	suffixes []string
	lookback func(p map[string]float64) int
	compute  func(p map[string]float64, w Window) map[string][]float64
}

type paramSpec struct {
	name     string
	def      float64
	minimum  float64
	integral bool // must be a whole number
}

// Registry is the immutable catalog of supported indicators. Built once
// at startup; lookups never mutate it.
type Registry struct {
	builtins map[string]*builtinSpec
}

// NewRegistry returns a registry with all builtin indicators.
func NewRegistry() *Registry {
	r := &Registry{builtins: make(map[string]*builtinSpec)}
	for _, s := range builtins() {
		r.builtins[s.name] = s
	}
	return r
}

// Names returns the sorted builtin indicator names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builtins))
	for n := range r.builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve validates a name and parameter set and returns the resolved
// definition. Unknown names and out-of-range or non-integral parameters
// are fatal configuration errors.
func (r *Registry) Resolve(name string, params map[string]float64) (Definition, error) {
	spec, ok := r.builtins[strings.ToLower(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: unknown indicator %q", domain.ErrFatalConfig, name)
	}

	normalized := make(map[string]float64, len(spec.params))
	for _, ps := range spec.params {
		v, ok := params[ps.name]
		if !ok {
			v = ps.def
		}
		if ps.integral && v != float64(int(v)) {
			return Definition{}, fmt.Errorf("%w: %s.%s must be an integer, got %v",
				domain.ErrFatalConfig, spec.name, ps.name, v)
		}
		if v < ps.minimum {
			return Definition{}, fmt.Errorf("%w: %s.%s must be >= %v, got %v",
				domain.ErrFatalConfig, spec.name, ps.name, ps.minimum, v)
		}
		normalized[ps.name] = v
	}
	for pname := range params {
		if !spec.hasParam(pname) {
			return Definition{}, fmt.Errorf("%w: %s has no parameter %q",
				domain.ErrFatalConfig, spec.name, pname)
		}
	}

	return Definition{
		Name:     spec.name,
		Params:   normalized,
		BaseKey:  baseKey(spec.name, normalized),
		Lookback: spec.lookback(normalized),
		Suffixes: spec.suffixes,
		spec:     spec,
	}, nil
}

func (s *builtinSpec) hasParam(name string) bool {
	for _, ps := range s.params {
		if ps.name == name {
			return true
		}
	}
	return false
}

// baseKey derives the canonical indicator key: the name followed by
// parameter name/value pairs in sorted parameter order.
func baseKey(name string, params map[string]float64) string {
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(name)
	for _, n := range names {
		b.WriteString(domain.ValueKeySeparator)
		b.WriteString(n)
		b.WriteString(domain.ValueKeySeparator)
		b.WriteString(strconv.FormatFloat(params[n], 'f', -1, 64))
	}
	return b.String()
}
