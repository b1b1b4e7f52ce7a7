package syntax

import (
	"fmt"
	"strconv"

	"github.com/specialistvlad/grasptest/internal/parser"
)

// UnsupportedNodeError reports a parse tree shape outside the supported
// subset of the language.
type UnsupportedNodeError struct {
	// Context is the construct being decoded, e.g. "rule" or "expression".
	Context string
	// Node is the offending node in s-expression form.
	Node string
	Pos  parser.Position
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("unsupported %s at line %d, column %d: %s", e.Context, e.Pos.Line, e.Pos.Column, e.Node)
}

func unsupported(context string, n parser.Node) error {
	start, _ := n.Span()
	return &UnsupportedNodeError{Context: context, Node: n.String(), Pos: start}
}

// Decode converts a parse tree rooted at the start rule into a Program.
func Decode(root *parser.Tree) (*Program, error) {
	if root == nil {
		return nil, &UnsupportedNodeError{Context: "program", Node: "<nil>"}
	}
	if root.Data != "start" {
		return nil, unsupported("program", root)
	}

	prog := &Program{}
	for _, child := range root.Children {
		r, err := decodeRule(child)
		if err != nil {
			return nil, err
		}
		prog.Rules = append(prog.Rules, r)
	}
	return prog, nil
}

// rule: IDENTIFIER args [body_stmt]
func decodeRule(n parser.Node) (*Rule, error) {
	t, ok := asTree(n, "rule")
	if !ok || len(t.Children) < 2 || len(t.Children) > 3 {
		return nil, unsupported("rule", n)
	}
	name, ok := asToken(t.Children[0], "IDENTIFIER")
	if !ok {
		return nil, unsupported("rule", n)
	}
	params, err := decodeArgs(t.Children[1])
	if err != nil {
		return nil, err
	}

	r := &Rule{Name: name.Value, Params: params, Pos: t.Meta.Start}
	if len(t.Children) == 3 {
		body, ok := asTree(t.Children[2], "body_stmt")
		if !ok || len(body.Children) == 0 {
			return nil, unsupported("rule body", t.Children[2])
		}
		for _, stmt := range body.Children {
			f, err := decodeBodyItem(stmt)
			if err != nil {
				return nil, err
			}
			r.Body = append(r.Body, f)
		}
	}
	return r, nil
}

func decodeBodyItem(n parser.Node) (*Fact, error) {
	t, ok := n.(*parser.Tree)
	if !ok {
		return nil, unsupported("body statement", n)
	}
	switch t.Data {
	case "fact":
		return decodeFact(t)
	case "neg_fact":
		if len(t.Children) != 1 {
			return nil, unsupported("negated fact", n)
		}
		f, err := decodeFact(t.Children[0])
		if err != nil {
			return nil, err
		}
		f.Negated = true
		f.Pos = t.Meta.Start
		return f, nil
	default:
		return nil, unsupported("body statement", n)
	}
}

// fact: IDENTIFIER args
func decodeFact(n parser.Node) (*Fact, error) {
	t, ok := asTree(n, "fact")
	if !ok || len(t.Children) != 2 {
		return nil, unsupported("fact", n)
	}
	name, ok := asToken(t.Children[0], "IDENTIFIER")
	if !ok {
		return nil, unsupported("fact", n)
	}
	args, err := decodeArgs(t.Children[1])
	if err != nil {
		return nil, err
	}
	return &Fact{Name: name.Value, Args: args, Pos: t.Meta.Start}, nil
}

func decodeArgs(n parser.Node) ([]*Arg, error) {
	t, ok := asTree(n, "args")
	if !ok {
		return nil, unsupported("argument list", n)
	}
	args := make([]*Arg, 0, len(t.Children))
	for _, child := range t.Children {
		a, err := decodeArg(child)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// arg: IDENTIFIER [expr]
func decodeArg(n parser.Node) (*Arg, error) {
	t, ok := asTree(n, "arg")
	if !ok || len(t.Children) == 0 || len(t.Children) > 2 {
		return nil, unsupported("argument", n)
	}
	key, ok := asToken(t.Children[0], "IDENTIFIER")
	if !ok {
		return nil, unsupported("argument", n)
	}

	a := &Arg{Key: key.Value, Pos: key.Pos}
	if len(t.Children) == 1 {
		a.Value = &VarRef{Name: key.Value, Pos: key.Pos}
		return a, nil
	}
	v, err := decodeExpr(t.Children[1])
	if err != nil {
		return nil, err
	}
	a.Value = v
	return a, nil
}

func decodeExpr(n parser.Node) (Expr, error) {
	switch n := n.(type) {
	case *parser.Tree:
		switch n.Data {
		case "expr":
			if len(n.Children) != 1 {
				return nil, unsupported("expression", n)
			}
			return decodeExpr(n.Children[0])
		case "aggr":
			return decodeAggregate(n)
		}
	case *parser.Token:
		switch n.Type {
		case "NUMBER":
			v, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q at line %d, column %d: %w", n.Value, n.Pos.Line, n.Pos.Column, err)
			}
			return &IntLit{Value: v, Pos: n.Pos}, nil
		case "STRING":
			v, err := strconv.Unquote(n.Value)
			if err != nil {
				return nil, fmt.Errorf("invalid string %s at line %d, column %d: %w", n.Value, n.Pos.Line, n.Pos.Column, err)
			}
			return &StrLit{Value: v, Pos: n.Pos}, nil
		case "IDENTIFIER":
			return &VarRef{Name: n.Value, Pos: n.Pos}, nil
		}
	}
	return nil, unsupported("expression", n)
}

// aggr: IDENTIFIER [IDENTIFIER]
func decodeAggregate(t *parser.Tree) (Expr, error) {
	if len(t.Children) == 0 || len(t.Children) > 2 {
		return nil, unsupported("aggregate", t)
	}
	op, ok := asToken(t.Children[0], "IDENTIFIER")
	if !ok {
		return nil, unsupported("aggregate", t)
	}
	a := &Aggregate{Op: op.Value, Pos: t.Meta.Start}
	if len(t.Children) == 2 {
		field, ok := asToken(t.Children[1], "IDENTIFIER")
		if !ok {
			return nil, unsupported("aggregate", t)
		}
		a.Field = field.Value
	}
	return a, nil
}

func asTree(n parser.Node, data string) (*parser.Tree, bool) {
	t, ok := n.(*parser.Tree)
	if !ok || t.Data != data {
		return nil, false
	}
	return t, true
}

func asToken(n parser.Node, typ string) (*parser.Token, bool) {
	t, ok := n.(*parser.Token)
	if !ok || t.Type != typ {
		return nil, false
	}
	return t, true
}
