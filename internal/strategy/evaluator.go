package strategy

import (
	"fmt"
	"math"

	"tradelab/internal/domain"
)

// EvaluateMask computes the boolean signal mask for a condition tree
// over the whole frame in one vectorized pass. A nil tree yields an
// all-false mask. Any comparison touching NaN is false: a bar where an
// operand is undefined simply produces no signal, not even through
// negation.
func EvaluateMask(node *Node, f *Frame) ([]bool, error) {
	mask := make([]bool, f.Len())
	if node == nil {
		return mask, nil
	}

	switch node.Type {
	case NodeComparison:
		left, err := evalOperand(node.Left, f)
		if err != nil {
			return nil, err
		}
		right, err := evalOperand(node.Right, f)
		if err != nil {
			return nil, err
		}
		for i := range mask {
			mask[i] = compare(node.Op, left[i], right[i])
		}
		return mask, nil

	case NodeLogical:
		children := make([][]bool, len(node.Conditions))
		for i, c := range node.Conditions {
			child, err := EvaluateMask(c, f)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		for i := range mask {
			v := node.Op == OpAnd
			for _, child := range children {
				if node.Op == OpAnd {
					v = v && child[i]
				} else {
					v = v || child[i]
				}
			}
			mask[i] = v
		}
		return mask, nil

	case NodeNot:
		child, err := EvaluateMask(node.Condition, f)
		if err != nil {
			return nil, err
		}
		// Negation must not turn a NaN-suppressed false into a signal;
		// a bar the inner condition cannot evaluate stays signal-free.
		ok, err := evaluableMask(node.Condition, f)
		if err != nil {
			return nil, err
		}
		for i := range mask {
			mask[i] = ok[i] && !child[i]
		}
		return mask, nil

	case NodeCrossover:
		left, err := evalOperand(node.Left, f)
		if err != nil {
			return nil, err
		}
		right, err := evalOperand(node.Right, f)
		if err != nil {
			return nil, err
		}
		// A crossover needs a defined previous bar on both sides, so
		// the first bar never fires.
		for i := 1; i < len(mask); i++ {
			pl, pr := left[i-1], right[i-1]
			if hasNaN(pl, pr, left[i], right[i]) {
				continue
			}
			if node.Op == CrossAbove {
				mask[i] = pl <= pr && left[i] > right[i]
			} else {
				mask[i] = pl >= pr && left[i] < right[i]
			}
		}
		return mask, nil

	default:
		return nil, fmt.Errorf("%w: node type %q is not a condition", domain.ErrFatalConfig, node.Type)
	}
}

// evaluableMask reports, per bar, whether every operand the subtree
// touches is defined there. Crossover bars additionally need the
// previous bar on both sides, so bar zero is never evaluable for one.
func evaluableMask(node *Node, f *Frame) ([]bool, error) {
	ok := make([]bool, f.Len())

	switch node.Type {
	case NodeComparison:
		left, err := evalOperand(node.Left, f)
		if err != nil {
			return nil, err
		}
		right, err := evalOperand(node.Right, f)
		if err != nil {
			return nil, err
		}
		for i := range ok {
			ok[i] = !hasNaN(left[i], right[i])
		}
		return ok, nil

	case NodeLogical:
		for i := range ok {
			ok[i] = true
		}
		for _, c := range node.Conditions {
			child, err := evaluableMask(c, f)
			if err != nil {
				return nil, err
			}
			for i := range ok {
				ok[i] = ok[i] && child[i]
			}
		}
		return ok, nil

	case NodeNot:
		return evaluableMask(node.Condition, f)

	case NodeCrossover:
		left, err := evalOperand(node.Left, f)
		if err != nil {
			return nil, err
		}
		right, err := evalOperand(node.Right, f)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(ok); i++ {
			ok[i] = !hasNaN(left[i-1], right[i-1], left[i], right[i])
		}
		return ok, nil

	default:
		return nil, fmt.Errorf("%w: node type %q is not a condition", domain.ErrFatalConfig, node.Type)
	}
}

// evalOperand resolves a leaf node to a series aligned with the frame.
func evalOperand(node *Node, f *Frame) ([]float64, error) {
	switch node.Type {
	case NodeValue:
		series := make([]float64, f.Len())
		for i := range series {
			series[i] = node.Value
		}
		return series, nil

	case NodeIndicatorValue:
		return f.Column(node.ValueKey)

	case NodePrevIndicatorValue:
		col, err := f.Column(node.ValueKey)
		if err != nil {
			return nil, err
		}
		// Shift one bar back; the first bar has no previous value.
		shifted := make([]float64, len(col))
		if len(shifted) > 0 {
			shifted[0] = math.NaN()
			copy(shifted[1:], col[:len(col)-1])
		}
		return shifted, nil

	default:
		return nil, fmt.Errorf("%w: node type %q is not an operand", domain.ErrFatalConfig, node.Type)
	}
}

func compare(op string, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch op {
	case OpGT:
		return a > b
	case OpGTE:
		return a >= b
	case OpLT:
		return a < b
	case OpLTE:
		return a <= b
	case OpEQ:
		return a == b
	}
	return false
}

func hasNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
