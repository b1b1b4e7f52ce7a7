// Package lowering encodes a rule program as rows of the fact schema the
// Engine ingests.
//
// Every rule, body fact and expression receives a surrogate id (ru1, ft2,
// ex3, ...) from a counter owned by a single Lower call. Ids are unique
// within that call only; rows of different test cases are kept apart by
// the pipeline_id column added with Records.WithPipelineID.
package lowering

import (
	"context"
	"fmt"

	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/parser"
	"github.com/specialistvlad/grasptest/internal/syntax"
)

// Tables of the fact schema.
const (
	TableRule      = "rule"
	TableRuleParam = "rule_param"
	TableBodyFact  = "body_fact"
	TableFactArg   = "fact_arg"
	TableVarExpr   = "var_expr"
	TableIntExpr   = "int_expr"
	TableStrExpr   = "str_expr"
	TableAggrExpr  = "aggr_expr"
)

// ColPipelineID is the column that scopes a row to one test case version.
const ColPipelineID = "pipeline_id"

// idGen mints surrogate ids. One value is created per Lower call and
// passed down explicitly.
type idGen struct {
	next int
}

func (g *idGen) mint(prefix string) string {
	g.next++
	return fmt.Sprintf("%s%d", prefix, g.next)
}

// LowerTree decodes a parse tree and lowers the resulting program.
func LowerTree(ctx context.Context, tree *parser.Tree) (*Records, error) {
	prog, err := syntax.Decode(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to decode syntax tree: %w", err)
	}
	return Lower(ctx, prog)
}

// Lower encodes prog. The same program always yields the same rows.
func Lower(ctx context.Context, prog *syntax.Program) (*Records, error) {
	ids := &idGen{}
	out := NewRecords()
	for _, r := range prog.Rules {
		if err := lowerRule(out, r, ids); err != nil {
			return nil, err
		}
	}
	ctxlog.FromContext(ctx).Debug("Program lowered.", "rules", len(prog.Rules), "rows", out.Len(), "ids", ids.next)
	return out, nil
}

// lowerRule appends the rows of r to out.
func lowerRule(out *Records, r *syntax.Rule, ids *idGen) error {
	ruleID := ids.mint("ru")

	for _, p := range r.Params {
		exprID := ids.mint("ex")
		exprType, exprRow, err := lowerExpr(p.Value, ruleID, exprID)
		if err != nil {
			return fmt.Errorf("rule %s, parameter %s: %w", r.Name, p.Key, err)
		}
		param := Row{"rule_id": ruleID, "key": p.Key, "expr_id": exprID, "expr_type": exprType}
		// A variable is recorded after the parameter that binds it, any
		// other expression before the parameter that uses it.
		if exprType == TableVarExpr {
			out.Add(TableRuleParam, param)
			out.Add(exprType, exprRow)
		} else {
			out.Add(exprType, exprRow)
			out.Add(TableRuleParam, param)
		}
	}

	for i, f := range r.Body {
		if err := lowerFact(out, i, f, ruleID, ids); err != nil {
			return fmt.Errorf("rule %s, body fact %s: %w", r.Name, f.Name, err)
		}
	}

	out.Add(TableRule, Row{"rule_id": ruleID, "table_name": r.Name})
	return nil
}

func lowerFact(out *Records, index int, f *syntax.Fact, ruleID string, ids *idGen) error {
	factID := ids.mint("ft")
	for _, a := range f.Args {
		exprID := ids.mint("ex")
		exprType, exprRow, err := lowerExpr(a.Value, ruleID, exprID)
		if err != nil {
			return fmt.Errorf("argument %s: %w", a.Key, err)
		}
		out.Add(TableFactArg, Row{"rule_id": ruleID, "fact_id": factID, "key": a.Key, "expr_id": exprID, "expr_type": exprType})
		out.Add(exprType, exprRow)
	}
	out.Add(TableBodyFact, Row{"rule_id": ruleID, "fact_id": factID, "index": index, "table_name": f.Name, "negated": f.Negated})
	return nil
}

// lowerExpr returns the expression table, which doubles as the expr_type
// tag, and the expression's own row.
func lowerExpr(e syntax.Expr, ruleID, exprID string) (string, Row, error) {
	var table string
	var row Row
	switch e := e.(type) {
	case *syntax.VarRef:
		table, row = TableVarExpr, Row{"var_name": e.Name}
	case *syntax.IntLit:
		table, row = TableIntExpr, Row{"value": e.Value}
	case *syntax.StrLit:
		table, row = TableStrExpr, Row{"value": e.Value}
	case *syntax.Aggregate:
		var field any
		if e.Field != "" {
			field = e.Field
		}
		table, row = TableAggrExpr, Row{"aggr_type": e.Op, "var_name": field}
	default:
		return "", nil, fmt.Errorf("unsupported expression %T", e)
	}
	row["rule_id"] = ruleID
	row["expr_id"] = exprID
	return table, row, nil
}
