// Package strategy parses and evaluates trading condition trees.
// Conditions arrive as JSON with a type discriminator and are compiled
// into boolean masks over a whole data frame in one pass.
package strategy

import (
	"encoding/json"
	"fmt"

	"tradelab/internal/domain"
)

// Node types.
const (
	NodeValue              = "VALUE"
	NodeIndicatorValue     = "INDICATOR_VALUE"
	NodePrevIndicatorValue = "PREV_INDICATOR_VALUE"
	NodeComparison         = "COMPARISON"
	NodeLogical            = "LOGICAL"
	NodeNot                = "NOT"
	NodeCrossover          = "CROSSOVER"
)

// Comparison operators.
const (
	OpGT  = "GT"
	OpGTE = "GTE"
	OpLT  = "LT"
	OpLTE = "LTE"
	OpEQ  = "EQ"
)

// Logical operators.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// Crossover directions.
const (
	CrossAbove = "ABOVE"
	CrossBelow = "BELOW"
)

// Node is one vertex of a parsed condition tree. Exactly the fields
// relevant to Type are set.
type Node struct {
	Type string

	// VALUE
	Value float64

	// INDICATOR_VALUE / PREV_INDICATOR_VALUE
	ValueKey string

	// COMPARISON / CROSSOVER
	Op    string // comparison operator or crossover direction
	Left  *Node
	Right *Node

	// LOGICAL
	Conditions []*Node

	// NOT
	Condition *Node
}

// rawNode is the JSON shape with the type discriminator.
type rawNode struct {
	Type       string            `json:"type"`
	Value      *float64          `json:"value,omitempty"`
	ValueKey   string            `json:"value_key,omitempty"`
	Op         string            `json:"op,omitempty"`
	Direction  string            `json:"direction,omitempty"`
	Left       json.RawMessage   `json:"left,omitempty"`
	Right      json.RawMessage   `json:"right,omitempty"`
	Conditions []json.RawMessage `json:"conditions,omitempty"`
	Condition  json.RawMessage   `json:"condition,omitempty"`
}

// Parse decodes a JSON condition tree. A nil or empty document yields a
// nil node, meaning the condition never fires.
func Parse(data json.RawMessage) (*Node, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse condition: %v", domain.ErrFatalConfig, err)
	}
	return fromRaw(&raw)
}

func fromRaw(raw *rawNode) (*Node, error) {
	switch raw.Type {
	case NodeValue:
		if raw.Value == nil {
			return nil, fmt.Errorf("%w: VALUE node missing value", domain.ErrFatalConfig)
		}
		return &Node{Type: NodeValue, Value: *raw.Value}, nil

	case NodeIndicatorValue, NodePrevIndicatorValue:
		if raw.ValueKey == "" {
			return nil, fmt.Errorf("%w: %s node missing value_key", domain.ErrFatalConfig, raw.Type)
		}
		return &Node{Type: raw.Type, ValueKey: raw.ValueKey}, nil

	case NodeComparison:
		if !validComparisonOp(raw.Op) {
			return nil, fmt.Errorf("%w: unknown comparison operator %q", domain.ErrFatalConfig, raw.Op)
		}
		left, err := Parse(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := Parse(raw.Right)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, fmt.Errorf("%w: COMPARISON requires both operands", domain.ErrFatalConfig)
		}
		return &Node{Type: NodeComparison, Op: raw.Op, Left: left, Right: right}, nil

	case NodeLogical:
		if raw.Op != OpAnd && raw.Op != OpOr {
			return nil, fmt.Errorf("%w: unknown logical operator %q", domain.ErrFatalConfig, raw.Op)
		}
		if len(raw.Conditions) == 0 {
			return nil, fmt.Errorf("%w: LOGICAL requires conditions", domain.ErrFatalConfig)
		}
		node := &Node{Type: NodeLogical, Op: raw.Op}
		for _, c := range raw.Conditions {
			child, err := Parse(c)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, fmt.Errorf("%w: LOGICAL contains empty condition", domain.ErrFatalConfig)
			}
			node.Conditions = append(node.Conditions, child)
		}
		return node, nil

	case NodeNot:
		child, err := Parse(raw.Condition)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, fmt.Errorf("%w: NOT requires a condition", domain.ErrFatalConfig)
		}
		return &Node{Type: NodeNot, Condition: child}, nil

	case NodeCrossover:
		if raw.Direction != CrossAbove && raw.Direction != CrossBelow {
			return nil, fmt.Errorf("%w: unknown crossover direction %q", domain.ErrFatalConfig, raw.Direction)
		}
		left, err := Parse(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := Parse(raw.Right)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, fmt.Errorf("%w: CROSSOVER requires both operands", domain.ErrFatalConfig)
		}
		return &Node{Type: NodeCrossover, Op: raw.Direction, Left: left, Right: right}, nil

	default:
		return nil, fmt.Errorf("%w: unknown node type %q", domain.ErrFatalConfig, raw.Type)
	}
}

func validComparisonOp(op string) bool {
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
		return true
	}
	return false
}

// RequiredValueKeys collects every indicator value key the tree refers
// to, deduplicated, in first-seen order.
func RequiredValueKeys(nodes ...*Node) []string {
	seen := make(map[string]struct{})
	var keys []string

	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Type == NodeIndicatorValue || n.Type == NodePrevIndicatorValue {
			if _, ok := seen[n.ValueKey]; !ok {
				seen[n.ValueKey] = struct{}{}
				keys = append(keys, n.ValueKey)
			}
		}
		walk(n.Left)
		walk(n.Right)
		walk(n.Condition)
		for _, c := range n.Conditions {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return keys
}
