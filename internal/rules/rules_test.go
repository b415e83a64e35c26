package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, doc string) Expr {
	t.Helper()
	var e Expr
	require.NoError(t, json.Unmarshal([]byte(doc), &e))
	return e
}

func TestParseLiterals(t *testing.T) {
	assert.Equal(t, Expr{Op: OpLiteral, Value: float64(42)}, parse(t, `42`))
	assert.Equal(t, Expr{Op: OpLiteral, Value: "PRESENT"}, parse(t, `"PRESENT"`))
	assert.Equal(t, Expr{Op: OpLiteral, Value: true}, parse(t, `true`))
	assert.Equal(t, Expr{Op: OpLiteral, Value: nil}, parse(t, `null`))
}

func TestParseMalformedNodesBecomeLiterals(t *testing.T) {
	// Unknown operator
	e := parse(t, `{"between": [1, 2, 3]}`)
	assert.Equal(t, OpLiteral, e.Op)

	// Two keys is not an operator node
	e = parse(t, `{">": [1, 2], "<": [3, 4]}`)
	assert.Equal(t, OpLiteral, e.Op)

	// Comparison with wrong arity
	e = parse(t, `{">": [1]}`)
	assert.Equal(t, OpLiteral, e.Op)

	// var with non-string argument
	e = parse(t, `{"var": 5}`)
	assert.Equal(t, OpLiteral, e.Op)
}

func TestEvaluateVar(t *testing.T) {
	e := parse(t, `{"var": "hours"}`)
	assert.Equal(t, 7.5, e.Evaluate(map[string]any{"hours": 7.5}))
	assert.Nil(t, e.Evaluate(map[string]any{}))
}

func TestEvaluateComparisons(t *testing.T) {
	ctx := map[string]any{"hours": 7.5, "late": 12}

	tests := []struct {
		doc  string
		want any
	}{
		{`{">": [{"var": "hours"}, 4]}`, true},
		{`{"<": [{"var": "hours"}, 4]}`, false},
		{`{">=": [{"var": "late"}, 12]}`, true},
		{`{"<=": [{"var": "late"}, 11]}`, false},
		{`{"==": [{"var": "hours"}, 7.5]}`, true},
		{`{"!=": [{"var": "hours"}, 8]}`, true},
		// Numeric-string tolerance
		{`{"==": [{"var": "late"}, "12"]}`, true},
		{`{">": ["13", {"var": "late"}]}`, true},
		// Non-numeric operands never satisfy an ordering
		{`{">": [{"var": "missing"}, 4]}`, false},
	}
	for _, tt := range tests {
		e := parse(t, tt.doc)
		assert.Equal(t, tt.want, e.Evaluate(ctx), "doc: %s", tt.doc)
	}
}

func TestEvaluateBooleans(t *testing.T) {
	ctx := map[string]any{"a": true, "b": false, "n": 1}

	assert.Equal(t, true, parse(t, `{"and": [{"var": "a"}, true]}`).Evaluate(ctx))
	assert.Equal(t, false, parse(t, `{"and": [{"var": "a"}, {"var": "b"}]}`).Evaluate(ctx))
	// and requires exactly boolean true, not merely truthy
	assert.Equal(t, false, parse(t, `{"and": [{"var": "n"}]}`).Evaluate(ctx))

	assert.Equal(t, true, parse(t, `{"or": [{"var": "b"}, {"var": "a"}]}`).Evaluate(ctx))
	assert.Equal(t, false, parse(t, `{"or": [{"var": "b"}, false]}`).Evaluate(ctx))

	assert.Equal(t, true, parse(t, `{"not": {"var": "b"}}`).Evaluate(ctx))
	assert.Equal(t, false, parse(t, `{"not": [{"var": "n"}]}`).Evaluate(ctx))
}

func TestEvaluateIf(t *testing.T) {
	ctx := map[string]any{"hours": 3.0}

	e := parse(t, `{"if": [{"<": [{"var": "hours"}, 4]}, "ABSENT", "PRESENT"]}`)
	assert.Equal(t, "ABSENT", e.Evaluate(ctx))

	e = parse(t, `{"if": [{">": [{"var": "hours"}, 4]}, "PRESENT"]}`)
	assert.Nil(t, e.Evaluate(ctx))
}

func TestEvaluateStatusFirstMatchWins(t *testing.T) {
	doc := `[
		{"if": [{"<": [{"var": "hours"}, 4]}, "ABSENT"]},
		{"if": [{"<": [{"var": "hours"}, 8]}, "HALF_DAY"]},
		{"if": [true, "PRESENT"]}
	]`
	var statusRules []Expr
	require.NoError(t, json.Unmarshal([]byte(doc), &statusRules))

	// hours=3 satisfies both the ABSENT and HALF_DAY conditions; the
	// earlier rule wins.
	assert.Equal(t, "ABSENT", EvaluateStatus(statusRules, map[string]any{"hours": 3.0}))
	assert.Equal(t, "HALF_DAY", EvaluateStatus(statusRules, map[string]any{"hours": 6.0}))
	assert.Equal(t, "PRESENT", EvaluateStatus(statusRules, map[string]any{"hours": 9.0}))
}

func TestEvaluateStatusDefault(t *testing.T) {
	doc := `[{"if": [{"<": [{"var": "hours"}, 4]}, "ABSENT"]}]`
	var statusRules []Expr
	require.NoError(t, json.Unmarshal([]byte(doc), &statusRules))

	assert.Equal(t, "PRESENT", EvaluateStatus(statusRules, map[string]any{"hours": 9.0}))
	assert.Equal(t, "PRESENT", EvaluateStatus(nil, nil))
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, IsTruthy(nil))
	assert.False(t, IsTruthy(false))
	assert.False(t, IsTruthy(""))
	assert.False(t, IsTruthy(0.0))
	assert.True(t, IsTruthy(true))
	assert.True(t, IsTruthy("LATE"))
	assert.True(t, IsTruthy(1.0))
}
