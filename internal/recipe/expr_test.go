// File: internal/recipe/expr_test.go
package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprEnv() map[string]any {
	return map[string]any{
		"STATE": map[string]any{
			"accounts": map[string]any{
				"brokerage": map[string]any{"cash_free": 1500.25},
			},
			"market": map[string]any{"AAPL": "231.10"},
			"history": []any{
				map[string]any{"status": "succeeded"},
				map[string]any{"status": "succeeded"},
			},
		},
		"CTX": map[string]any{
			"pid":    4312,
			"counts": []any{3.0, 1.0, 2.0},
			"title":  "Trading Terminal",
			"flags":  []any{true, true},
		},
	}
}

func TestEvalExpr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		expr string
		want any
	}{
		{"field access", "STATE.accounts.brokerage.cash_free", 1500.25},
		{"index access", "STATE.market['AAPL']", "231.10"},
		{"numeric comparison", "STATE.accounts.brokerage.cash_free > 1000", true},
		{"equality coerces numerics", "CTX.pid == 4312.0", true},
		{"string comparison", "CTX.title == 'Trading Terminal'", true},
		{"boolean connectives", "CTX.pid > 0 && STATE.accounts.brokerage.cash_free >= 1500", true},
		{"spelled connectives", "CTX.pid > 0 and not (CTX.pid < 0)", true},
		{"or short form", "CTX.pid < 0 || CTX.title != ''", true},
		{"len function", "len(CTX.counts) == 3", true},
		{"min max sum", "min(CTX.counts) == 1 && max(CTX.counts) == 3 && sum(CTX.counts) == 6", true},
		{"sorted then index", "sorted(CTX.counts)[0] == 1", true},
		{"any all", "any(CTX.flags) && all(CTX.flags)", true},
		{"unary minus", "-(CTX.pid) < 0", true},
		{"dollar wrapper", "${ CTX.pid == 4312 }", true},
		{"null literal", "null == null", true},
		{"list index", "CTX.counts[1] == 1", true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := EvalExpr(tc.expr, exprEnv())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalExprErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"unknown identifier", "NOPE.field"},
		{"missing field", "CTX.not_here"},
		{"unterminated string", "CTX.title == 'oops"},
		{"unknown function", "exec('rm')"},
		{"arithmetic is out of grammar", "CTX.pid + 1 > 0"},
		{"index out of range", "CTX.counts[9]"},
		{"order incomparable types", "CTX.title > 5"},
		{"trailing garbage", "CTX.pid == 4312 CTX.pid"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := EvalExpr(tc.expr, exprEnv())
			assert.Error(t, err)
		})
	}
}

func TestEvalExprShortCircuit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		expr string
		want any
	}{
		{"false and skips the right side", "CTX.pid < 0 && NOPE.field", false},
		{"true or skips the right side", "CTX.pid > 0 || STATE.accounts.missing.deep", true},
		{"skipped side may index out of range", "CTX.pid < 0 and CTX.counts[9] == 1", false},
		{"skipped function call never runs", "CTX.pid > 0 or exec('rm')", true},
		{"chained connectives stay lazy", "false && CTX.counts[9] || true", true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := EvalExpr(tc.expr, exprEnv())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("the decided side still evaluates", func(t *testing.T) {
		t.Parallel()
		_, err := EvalExpr("NOPE.field || true", exprEnv())
		assert.Error(t, err)
	})

	t.Run("the skipped side still parses", func(t *testing.T) {
		t.Parallel()
		_, err := EvalExpr("CTX.pid > 0 || (CTX.pid", exprEnv())
		assert.Error(t, err)
	})
}

func TestEvalPredicate(t *testing.T) {
	t.Parallel()

	ok, err := EvalPredicate("CTX.title", exprEnv())
	require.NoError(t, err)
	assert.True(t, ok, "non-empty string is truthy")

	ok, err = EvalPredicate("STATE.accounts.brokerage.cash_free == 0", exprEnv())
	require.NoError(t, err)
	assert.False(t, ok)
}
