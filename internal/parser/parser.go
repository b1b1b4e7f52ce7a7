// Package parser turns rule-language source into a concrete syntax tree using
// an Earley chart parser driven by a compiled grammar.
//
// Chart parsing accepts any context-free grammar, including ambiguous ones,
// which the rule syntax needs for its optional trailing forms. Tokens are
// lexed on demand from the terminals the current chart set can accept. Where
// a keyword and an identifier match the same text the chart follows both
// readings, so `not(x)` is a fact named not while `not f(x)` is a negation.
// Every tree carries the source span of its tokens.
package parser

import (
	"context"

	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/grammar"
)

// Parser parses source text under one grammar. It holds no per-parse state
// and may be reused.
type Parser struct {
	g *grammar.Grammar
}

// New creates a parser for a compiled grammar.
func New(g *grammar.Grammar) *Parser {
	return &Parser{g: g}
}

// Parse parses text and returns the tree rooted at the grammar's start rule.
// Text the grammar rejects yields a *SyntaxError.
func (p *Parser) Parse(ctx context.Context, text string) (*Tree, error) {
	logger := ctxlog.FromContext(ctx)

	c := newChart(p.g, text)
	if err := c.recognize(); err != nil {
		logger.Debug("Source rejected by grammar.", "error", err)
		return nil, err
	}
	tree := c.tree()
	logger.Debug("Source parsed.", "tokens", len(c.tokens), "chart_sets", len(c.sets))
	return tree, nil
}
