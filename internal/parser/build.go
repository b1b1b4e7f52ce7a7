package parser

type spanKey struct {
	sym        string
	start, end int
}

// build returns the shaped nodes for sym spanning tokens [start, end), as
// they are spliced into the parent. When several derivations exist the first
// declared production wins.
func (c *chart) build(sym string, start, end int) ([]Node, bool) {
	key := spanKey{sym: sym, start: start, end: end}
	if nodes, ok := c.memo[key]; ok {
		return nodes, true
	}
	if c.active[key] {
		return nil, false
	}
	c.active[key] = true
	defer delete(c.active, key)

	for _, pi := range c.g.ProductionsFor(sym) {
		n := len(c.g.Productions[pi].Expansion)
		if !c.sets[end].has[item{prod: pi, dot: n, origin: start}] {
			continue
		}
		children, ok := c.derive(pi, n, start, end)
		if !ok {
			continue
		}
		nodes := c.shape(sym, children, start, end)
		c.memo[key] = nodes
		return nodes, true
	}
	return nil, false
}

// derive matches the first k symbols of production pi against tokens
// [start, pos), right to left, using the chart to prune split points.
func (c *chart) derive(pi, k, start, pos int) ([]Node, bool) {
	if k == 0 {
		return nil, pos == start
	}
	prod := c.g.Productions[pi]
	sym := prod.Expansion[k-1]
	prefix := item{prod: pi, dot: k - 1, origin: start}

	if sym.Terminal {
		if pos <= start {
			return nil, false
		}
		if !c.kinds[pos-1][sym.Name] || !c.sets[pos-1].has[prefix] {
			return nil, false
		}
		tok := c.tokens[pos-1]
		if tok.Type != sym.Name {
			tok = &Token{Type: sym.Name, Value: tok.Value, Pos: tok.Pos, End: tok.End}
		}
		rest, ok := c.derive(pi, k-1, start, pos-1)
		if !ok {
			return nil, false
		}
		if !c.filtered(tok, prod.Origin) {
			rest = append(rest, tok)
		}
		return rest, true
	}

	for mid := start; mid <= pos; mid++ {
		if !c.sets[mid].has[prefix] || !c.completed(sym.Name, mid, pos) {
			continue
		}
		sub, ok := c.build(sym.Name, mid, pos)
		if !ok {
			continue
		}
		rest, ok := c.derive(pi, k-1, start, mid)
		if !ok {
			continue
		}
		return append(rest, sub...), true
	}
	return nil, false
}

func (c *chart) filtered(tok *Token, rule string) bool {
	if c.g.Options(rule).KeepAll {
		return false
	}
	t, ok := c.g.Terminal(tok.Type)
	return ok && t.Filter
}

func (c *chart) shape(rule string, children []Node, start, end int) []Node {
	opts := c.g.Options(rule)
	if opts.Inline || (opts.Expand1 && len(children) == 1) {
		return children
	}
	return []Node{&Tree{Data: rule, Children: children, Meta: c.meta(start, end)}}
}

// meta spans tokens [start, end), filtered ones included.
func (c *chart) meta(start, end int) Meta {
	if end <= start {
		at := c.sets[start].at
		return Meta{Start: at, End: at, Empty: true}
	}
	return Meta{Start: c.tokens[start].Pos, End: c.tokens[end-1].End}
}

func (c *chart) tree() *Tree {
	last := len(c.sets) - 1
	nodes, _ := c.build(c.g.Start, 0, last)
	if len(nodes) == 1 {
		if t, ok := nodes[0].(*Tree); ok && t.Data == c.g.Start {
			return t
		}
	}
	return &Tree{Data: c.g.Start, Children: nodes, Meta: c.meta(0, last)}
}
