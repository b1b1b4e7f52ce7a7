// Package syntax decodes parse trees of the rule language into a typed AST.
//
// Decoding is exhaustive: every tree shape the supported grammar produces
// maps to exactly one AST case, and anything else fails with an
// *UnsupportedNodeError naming the offending node and its position.
package syntax

import "github.com/specialistvlad/grasptest/internal/parser"

// Program is a parsed source file: its rule declarations in source order.
type Program struct {
	Rules []*Rule
}

// Rule derives rows of the relation Name from its body facts.
type Rule struct {
	Name   string
	Params []*Arg
	Body   []*Fact
	Pos    parser.Position
}

// Fact is one body statement.
type Fact struct {
	Name    string
	Args    []*Arg
	Negated bool
	Pos     parser.Position
}

// Arg binds a column key to an expression. A bare key binds the variable of
// the same name.
type Arg struct {
	Key   string
	Value Expr
	Pos   parser.Position
}

// Expr is one of *VarRef, *IntLit, *StrLit or *Aggregate.
type Expr interface {
	Position() parser.Position
	isExpr()
}

// VarRef references a rule variable.
type VarRef struct {
	Name string
	Pos  parser.Position
}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	Pos   parser.Position
}

// StrLit is a string literal with escapes resolved.
type StrLit struct {
	Value string
	Pos   parser.Position
}

// Aggregate applies Op to the variable Field. Field is empty for aggregates
// that take no argument, such as @count().
type Aggregate struct {
	Op    string
	Field string
	Pos   parser.Position
}

func (e *VarRef) Position() parser.Position    { return e.Pos }
func (e *IntLit) Position() parser.Position    { return e.Pos }
func (e *StrLit) Position() parser.Position    { return e.Pos }
func (e *Aggregate) Position() parser.Position { return e.Pos }

func (*VarRef) isExpr()    {}
func (*IntLit) isExpr()    {}
func (*StrLit) isExpr()    {}
func (*Aggregate) isExpr() {}
