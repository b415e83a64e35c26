// Package rules implements the small expression language used by attendance
// status rules. Documents are trees of {operator: args} nodes; parsing turns
// them into a closed expression type so evaluation never dispatches on raw
// JSON shape.
package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Op enumerates the operators the language supports.
type Op string

const (
	OpLiteral   Op = "literal"
	OpVar       Op = "var"
	OpGreater   Op = ">"
	OpLess      Op = "<"
	OpGreaterEq Op = ">="
	OpLessEq    Op = "<="
	OpEqual     Op = "=="
	OpNotEqual  Op = "!="
	OpAnd       Op = "and"
	OpOr        Op = "or"
	OpNot       Op = "not"
	OpIf        Op = "if"
)

// DefaultStatus is returned by EvaluateStatus when no rule matches.
const DefaultStatus = "PRESENT"

// Expr is one node of a parsed rule tree.
type Expr struct {
	Op Op
	// Key is the context variable name for OpVar nodes.
	Key string
	// Args holds the operands of operator nodes.
	Args []Expr
	// Value is the payload of OpLiteral nodes.
	Value any
}

// UnmarshalJSON parses a rule document node. Shapes that don't form a valid
// operator node become literals holding the raw value; a malformed rule never
// errors, it just evaluates to something no status rule will match.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = fromValue(raw)
	return nil
}

func literal(v any) Expr {
	return Expr{Op: OpLiteral, Value: v}
}

func fromValue(v any) Expr {
	node, ok := v.(map[string]any)
	if !ok || len(node) != 1 {
		return literal(v)
	}

	for key, args := range node {
		switch op := Op(key); op {
		case OpVar:
			name, ok := args.(string)
			if !ok {
				return literal(v)
			}
			return Expr{Op: OpVar, Key: name}

		case OpGreater, OpLess, OpGreaterEq, OpLessEq, OpEqual, OpNotEqual:
			list, ok := args.([]any)
			if !ok || len(list) != 2 {
				return literal(v)
			}
			return Expr{Op: op, Args: []Expr{fromValue(list[0]), fromValue(list[1])}}

		case OpAnd, OpOr:
			list, ok := args.([]any)
			if !ok || len(list) == 0 {
				return literal(v)
			}
			exprs := make([]Expr, len(list))
			for i, item := range list {
				exprs[i] = fromValue(item)
			}
			return Expr{Op: op, Args: exprs}

		case OpNot:
			// Accept both {"not": x} and {"not": [x]}
			arg := args
			if list, ok := args.([]any); ok {
				if len(list) != 1 {
					return literal(v)
				}
				arg = list[0]
			}
			return Expr{Op: OpNot, Args: []Expr{fromValue(arg)}}

		case OpIf:
			list, ok := args.([]any)
			if !ok || len(list) < 2 || len(list) > 3 {
				return literal(v)
			}
			exprs := make([]Expr, len(list))
			for i, item := range list {
				exprs[i] = fromValue(item)
			}
			return Expr{Op: OpIf, Args: exprs}
		}
	}
	return literal(v)
}

// Evaluate walks the expression against the given variable context.
func (e Expr) Evaluate(ctx map[string]any) any {
	switch e.Op {
	case OpLiteral:
		return e.Value

	case OpVar:
		return ctx[e.Key]

	case OpGreater, OpLess, OpGreaterEq, OpLessEq:
		left, lok := toFloat(e.Args[0].Evaluate(ctx))
		right, rok := toFloat(e.Args[1].Evaluate(ctx))
		if !lok || !rok {
			return false
		}
		switch e.Op {
		case OpGreater:
			return left > right
		case OpLess:
			return left < right
		case OpGreaterEq:
			return left >= right
		default:
			return left <= right
		}

	case OpEqual:
		return looseEqual(e.Args[0].Evaluate(ctx), e.Args[1].Evaluate(ctx))

	case OpNotEqual:
		return !looseEqual(e.Args[0].Evaluate(ctx), e.Args[1].Evaluate(ctx))

	case OpAnd:
		for _, arg := range e.Args {
			if v, ok := arg.Evaluate(ctx).(bool); !ok || !v {
				return false
			}
		}
		return true

	case OpOr:
		for _, arg := range e.Args {
			if v, ok := arg.Evaluate(ctx).(bool); ok && v {
				return true
			}
		}
		return false

	case OpNot:
		return !IsTruthy(e.Args[0].Evaluate(ctx))

	case OpIf:
		if IsTruthy(e.Args[0].Evaluate(ctx)) {
			return e.Args[1].Evaluate(ctx)
		}
		if len(e.Args) == 3 {
			return e.Args[2].Evaluate(ctx)
		}
		return nil
	}
	return nil
}

// EvaluateStatus runs the ordered status rules and returns the first truthy
// result. Earlier rules win outright; later rules are not evaluated once one
// matches. With no match the day is DefaultStatus.
func EvaluateStatus(statusRules []Expr, ctx map[string]any) string {
	for _, rule := range statusRules {
		result := rule.Evaluate(ctx)
		if IsTruthy(result) {
			return fmt.Sprint(result)
		}
	}
	return DefaultStatus
}

// IsTruthy mirrors the loose truthiness the rule language uses for `if`,
// `not`, and status-rule results.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}

// toFloat widens numeric values and numeric strings for comparisons.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}

// looseEqual compares numerically when both sides are numeric or
// numeric-string, falling back to deep equality.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}
