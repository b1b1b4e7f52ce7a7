package lowering

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/grasptest/internal/grammar"
	"github.com/specialistvlad/grasptest/internal/parser"
	"github.com/specialistvlad/grasptest/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lowerSource(t *testing.T, src string) *Records {
	t.Helper()
	g, err := grammar.Default()
	require.NoError(t, err)
	tree, err := parser.New(g).Parse(context.Background(), src)
	require.NoError(t, err)
	rec, err := LowerTree(context.Background(), tree)
	require.NoError(t, err)
	return rec
}

func asMap(r *Records) map[string][]Row {
	out := make(map[string][]Row)
	for _, table := range r.Tables() {
		out[table] = r.Rows(table)
	}
	return out
}

func TestLower_MinimalRule(t *testing.T) {
	// --- Act ---
	rec := lowerSource(t, `r(x) :- goal(x,y).`)

	// --- Assert ---
	assert.Equal(t, []string{TableRuleParam, TableVarExpr, TableFactArg, TableBodyFact, TableRule}, rec.Tables())

	want := map[string][]Row{
		TableRule: {
			{"rule_id": "ru1", "table_name": "r"},
		},
		TableRuleParam: {
			{"rule_id": "ru1", "key": "x", "expr_id": "ex2", "expr_type": "var_expr"},
		},
		TableBodyFact: {
			{"rule_id": "ru1", "fact_id": "ft3", "index": 0, "table_name": "goal", "negated": false},
		},
		TableFactArg: {
			{"rule_id": "ru1", "fact_id": "ft3", "key": "x", "expr_id": "ex4", "expr_type": "var_expr"},
			{"rule_id": "ru1", "fact_id": "ft3", "key": "y", "expr_id": "ex5", "expr_type": "var_expr"},
		},
		TableVarExpr: {
			{"rule_id": "ru1", "expr_id": "ex2", "var_name": "x"},
			{"rule_id": "ru1", "expr_id": "ex4", "var_name": "x"},
			{"rule_id": "ru1", "expr_id": "ex5", "var_name": "y"},
		},
	}
	if diff := cmp.Diff(want, asMap(rec)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestLower_ExpressionKinds(t *testing.T) {
	rec := lowerSource(t, `out(n: 42, s: "hi", c: @count(), m: @max(at), v: w) :- not seen(v), src(v, at).`)

	want := map[string][]Row{
		TableIntExpr:  {{"rule_id": "ru1", "expr_id": "ex2", "value": int64(42)}},
		TableStrExpr:  {{"rule_id": "ru1", "expr_id": "ex3", "value": "hi"}},
		TableAggrExpr: {
			{"rule_id": "ru1", "expr_id": "ex4", "aggr_type": "count", "var_name": nil},
			{"rule_id": "ru1", "expr_id": "ex5", "aggr_type": "max", "var_name": "at"},
		},
		TableRuleParam: {
			{"rule_id": "ru1", "key": "n", "expr_id": "ex2", "expr_type": "int_expr"},
			{"rule_id": "ru1", "key": "s", "expr_id": "ex3", "expr_type": "str_expr"},
			{"rule_id": "ru1", "key": "c", "expr_id": "ex4", "expr_type": "aggr_expr"},
			{"rule_id": "ru1", "key": "m", "expr_id": "ex5", "expr_type": "aggr_expr"},
			{"rule_id": "ru1", "key": "v", "expr_id": "ex6", "expr_type": "var_expr"},
		},
		TableVarExpr: {
			{"rule_id": "ru1", "expr_id": "ex6", "var_name": "w"},
			{"rule_id": "ru1", "expr_id": "ex8", "var_name": "v"},
			{"rule_id": "ru1", "expr_id": "ex10", "var_name": "v"},
			{"rule_id": "ru1", "expr_id": "ex11", "var_name": "at"},
		},
		TableFactArg: {
			{"rule_id": "ru1", "fact_id": "ft7", "key": "v", "expr_id": "ex8", "expr_type": "var_expr"},
			{"rule_id": "ru1", "fact_id": "ft9", "key": "v", "expr_id": "ex10", "expr_type": "var_expr"},
			{"rule_id": "ru1", "fact_id": "ft9", "key": "at", "expr_id": "ex11", "expr_type": "var_expr"},
		},
		TableBodyFact: {
			{"rule_id": "ru1", "fact_id": "ft7", "index": 0, "table_name": "seen", "negated": true},
			{"rule_id": "ru1", "fact_id": "ft9", "index": 1, "table_name": "src", "negated": false},
		},
		TableRule: {{"rule_id": "ru1", "table_name": "out"}},
	}
	if diff := cmp.Diff(want, asMap(rec)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestLower_RuleWithoutBody(t *testing.T) {
	rec := lowerSource(t, `tick().`)

	assert.Equal(t, []string{TableRule}, rec.Tables())
	assert.Equal(t, []Row{{"rule_id": "ru1", "table_name": "tick"}}, rec.Rows(TableRule))
}

func TestLower_EmptyProgram(t *testing.T) {
	rec := lowerSource(t, "% nothing\n")
	assert.Empty(t, rec.Tables())
	assert.Zero(t, rec.Len())
}

func TestLower_IsDeterministic(t *testing.T) {
	src := "a(x) :- b(x).\nc(y: 1, z) :- a(y), not b(z)."

	first := lowerSource(t, src)
	second := lowerSource(t, src)

	assert.Equal(t, first.Tables(), second.Tables())
	if diff := cmp.Diff(asMap(first), asMap(second)); diff != "" {
		t.Errorf("lowering the same source twice differs (-first +second):\n%s", diff)
	}
}

func TestLower_IDsAreUniqueAndCounterIsPerCall(t *testing.T) {
	rec := lowerSource(t, "a(x) :- b(x, y).\nc(y: 1) :- a(y), b(y, x).\nd() :- c(y).")

	seen := make(map[string]string)
	mint := func(kind, id string) {
		if prev, ok := seen[id]; ok {
			assert.Equal(t, prev, kind, "id %s reused across kinds", id)
			return
		}
		seen[id] = kind
	}
	for _, row := range rec.Rows(TableRule) {
		mint("rule", row["rule_id"].(string))
	}
	for _, row := range rec.Rows(TableBodyFact) {
		mint("fact:"+row["rule_id"].(string), row["fact_id"].(string))
	}
	exprTables := []string{TableVarExpr, TableIntExpr, TableStrExpr, TableAggrExpr}
	exprCount := 0
	for _, table := range exprTables {
		for _, row := range rec.Rows(table) {
			id := row["expr_id"].(string)
			_, dup := seen[id]
			assert.False(t, dup, "expression id %s minted twice", id)
			seen[id] = "expr"
			exprCount++
		}
	}
	assert.Equal(t, exprCount, len(rec.Rows(TableRuleParam))+len(rec.Rows(TableFactArg)),
		"every parameter and argument owns exactly one expression")

	// A fresh call starts again at 1.
	again := lowerSource(t, "z(q).")
	assert.Equal(t, "ru1", again.Rows(TableRule)[0]["rule_id"])
}

func TestLower_ReferencesStayWithinRule(t *testing.T) {
	rec := lowerSource(t, "a(x) :- b(x).\nc(y) :- a(y).")

	exprOwner := make(map[string]any)
	for _, row := range rec.Rows(TableVarExpr) {
		exprOwner[row["expr_id"].(string)] = row["rule_id"]
	}
	for _, table := range []string{TableRuleParam, TableFactArg} {
		for _, row := range rec.Rows(table) {
			assert.Equal(t, row["rule_id"], exprOwner[row["expr_id"].(string)])
		}
	}
}

func TestLower_RejectsMissingExpression(t *testing.T) {
	prog := &syntax.Program{Rules: []*syntax.Rule{
		{Name: "r", Params: []*syntax.Arg{{Key: "x"}}},
	}}

	_, err := Lower(context.Background(), prog)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule r, parameter x")
}

func TestLowerTree_RejectsUnsupportedTree(t *testing.T) {
	_, err := LowerTree(context.Background(), &parser.Tree{Data: "start", Children: []parser.Node{&parser.Tree{Data: "import"}}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported rule")
}
