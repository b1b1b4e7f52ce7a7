package parser

import (
	"fmt"
	"strings"
)

// Position is a location in the source text. Line and Column are 1-based.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// advance returns the position after consuming s.
func (p Position) advance(s string) Position {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			p.Line++
			p.Column = 1
		} else {
			p.Column++
		}
	}
	p.Offset += len(s)
	return p
}

// Node is either a *Tree or a *Token.
type Node interface {
	Span() (start, end Position)
	String() string
}

// Token is a terminal matched in the source.
type Token struct {
	Type  string
	Value string
	Pos   Position
	End   Position
}

// Span implements Node.
func (t *Token) Span() (Position, Position) {
	return t.Pos, t.End
}

func (t *Token) String() string {
	return fmt.Sprintf("%s:%q", t.Type, t.Value)
}

// Meta holds the source span of a tree. Empty is set for trees that matched
// no input at all.
type Meta struct {
	Start Position
	End   Position
	Empty bool
}

// Tree is an interior node named after the grammar rule that produced it.
type Tree struct {
	Data     string
	Children []Node
	Meta     Meta
}

// Span implements Node.
func (t *Tree) Span() (Position, Position) {
	return t.Meta.Start, t.Meta.End
}

// String renders the tree as a compact s-expression, e.g.
// rule(IDENTIFIER:"r", args(arg(IDENTIFIER:"x"))).
func (t *Tree) String() string {
	var sb strings.Builder
	sb.WriteString(t.Data)
	sb.WriteByte('(')
	for i, c := range t.Children {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
