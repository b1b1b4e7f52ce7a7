package parser

import (
	"sort"
	"unicode/utf8"

	"github.com/specialistvlad/grasptest/internal/grammar"
)

// item is an Earley item: production, dot position and origin set.
type item struct {
	prod   int
	dot    int
	origin int
}

type itemSet struct {
	items []item
	has   map[item]bool
	// at is where the token leaving this set starts, or the end of input for
	// the last set.
	at Position
}

func (s *itemSet) add(it item) {
	if s.has[it] {
		return
	}
	s.has[it] = true
	s.items = append(s.items, it)
}

type chart struct {
	g      *grammar.Grammar
	text   string
	sets   []*itemSet
	tokens []*Token
	// kinds holds, per token, every terminal it was matched as. A string
	// terminal and a pattern matching the same text are both kept.
	kinds []map[string]bool

	ignore map[string]bool
	memo   map[spanKey][]Node
	active map[spanKey]bool
}

func newChart(g *grammar.Grammar, text string) *chart {
	c := &chart{
		g:      g,
		text:   text,
		ignore: make(map[string]bool, len(g.Ignore)),
		memo:   make(map[spanKey][]Node),
		active: make(map[spanKey]bool),
	}
	for _, name := range g.Ignore {
		c.ignore[name] = true
	}
	return c
}

func (c *chart) newSet() *itemSet {
	s := &itemSet{has: make(map[item]bool)}
	c.sets = append(c.sets, s)
	return s
}

// recognize runs the Earley recognizer, lexing one token per set from the
// terminals the set can accept.
func (c *chart) recognize() error {
	first := c.newSet()
	for _, pi := range c.g.ProductionsFor(c.g.Start) {
		first.add(item{prod: pi, origin: 0})
	}

	pos := Position{Line: 1, Column: 1}
	for i := 0; ; i++ {
		c.process(i)
		expected := c.expected(i)

		tok, kinds, next, err := c.scan(pos, expected)
		if err != nil {
			return err
		}
		if tok == nil {
			c.sets[i].at = next
			break
		}
		c.sets[i].at = tok.Pos

		nextSet := c.newSet()
		for _, it := range c.sets[i].items {
			prod := c.g.Productions[it.prod]
			if it.dot < len(prod.Expansion) {
				sym := prod.Expansion[it.dot]
				if sym.Terminal && kinds[sym.Name] {
					nextSet.add(item{prod: it.prod, dot: it.dot + 1, origin: it.origin})
				}
			}
		}
		c.tokens = append(c.tokens, tok)
		c.kinds = append(c.kinds, kinds)
		pos = tok.End
	}

	last := len(c.sets) - 1
	if !c.completed(c.g.Start, 0, last) {
		return &SyntaxError{Pos: c.sets[last].at, Expected: displayNames(c.expected(last))}
	}
	return nil
}

// process runs prediction and completion over set i until it stops growing.
// Nullable rules are advanced over at prediction time so completions of
// empty rules are never missed.
func (c *chart) process(i int) {
	set := c.sets[i]
	for k := 0; k < len(set.items); k++ {
		it := set.items[k]
		prod := c.g.Productions[it.prod]

		if it.dot == len(prod.Expansion) {
			origin := c.sets[it.origin]
			for j := 0; j < len(origin.items); j++ {
				o := origin.items[j]
				op := c.g.Productions[o.prod]
				if o.dot < len(op.Expansion) {
					next := op.Expansion[o.dot]
					if !next.Terminal && next.Name == prod.Origin {
						set.add(item{prod: o.prod, dot: o.dot + 1, origin: o.origin})
					}
				}
			}
			continue
		}

		sym := prod.Expansion[it.dot]
		if sym.Terminal {
			continue
		}
		for _, pi := range c.g.ProductionsFor(sym.Name) {
			set.add(item{prod: pi, origin: i})
		}
		if c.g.Nullable(sym.Name) {
			set.add(item{prod: it.prod, dot: it.dot + 1, origin: it.origin})
		}
	}
}

// expected returns the terminals set i can shift, in grammar order.
func (c *chart) expected(i int) []*grammar.Terminal {
	want := make(map[string]bool)
	for _, it := range c.sets[i].items {
		prod := c.g.Productions[it.prod]
		if it.dot < len(prod.Expansion) && prod.Expansion[it.dot].Terminal {
			want[prod.Expansion[it.dot].Name] = true
		}
	}
	var out []*grammar.Terminal
	for _, t := range c.g.Terminals {
		if want[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// scan skips ignored text at pos and returns the next token among the
// expected terminals, or nil at end of input. The longest match wins. The
// token is typed as a string terminal when one ties with a pattern, and
// kinds lists every expected terminal of that length so the chart can
// follow each reading.
func (c *chart) scan(pos Position, expected []*grammar.Terminal) (*Token, map[string]bool, Position, error) {
	candidates := expected
	for _, name := range c.g.Ignore {
		if t, ok := c.g.Terminal(name); ok {
			candidates = append(candidates[:len(candidates):len(candidates)], t)
		}
	}
	isExpected := make(map[string]bool, len(expected))
	for _, t := range expected {
		isExpected[t.Name] = true
	}

	for pos.Offset < len(c.text) {
		rest := c.text[pos.Offset:]
		var best *grammar.Terminal
		bestLen := -1
		for _, t := range candidates {
			n := t.Match(rest)
			if n < 0 {
				continue
			}
			if n > bestLen || (n == bestLen && t.Literal != "" && best.Literal == "") {
				best, bestLen = t, n
			}
		}
		if best == nil {
			return nil, nil, pos, &SyntaxError{Pos: pos, Found: c.offending(rest), Expected: displayNames(expected)}
		}
		value := rest[:bestLen]
		end := pos.advance(value)
		if c.ignore[best.Name] && !isExpected[best.Name] {
			pos = end
			continue
		}
		kinds := map[string]bool{best.Name: true}
		for _, t := range expected {
			if t != best && t.Match(rest) == bestLen {
				kinds[t.Name] = true
			}
		}
		return &Token{Type: best.Name, Value: value, Pos: pos, End: end}, kinds, end, nil
	}
	return nil, nil, pos, nil
}

// offending picks the text to report for an unexpected token: the longest
// match of any terminal, or the next character.
func (c *chart) offending(rest string) string {
	longest := 0
	for _, t := range c.g.Terminals {
		if n := t.Match(rest); n > longest {
			longest = n
		}
	}
	if longest > 0 {
		return rest[:longest]
	}
	_, size := utf8.DecodeRuneInString(rest)
	return rest[:size]
}

func (c *chart) completed(sym string, start, end int) bool {
	for _, pi := range c.g.ProductionsFor(sym) {
		if c.sets[end].has[item{prod: pi, dot: len(c.g.Productions[pi].Expansion), origin: start}] {
			return true
		}
	}
	return false
}

func displayNames(ts []*grammar.Terminal) []string {
	seen := make(map[string]bool, len(ts))
	var names []string
	for _, t := range ts {
		d := t.Display()
		if !seen[d] {
			seen[d] = true
			names = append(names, d)
		}
	}
	sort.Strings(names)
	return names
}
