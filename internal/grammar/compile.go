package grammar

import (
	"fmt"
	"regexp"
	"strings"
)

const anonPrefix = "__ANON_"

type expr interface{}

type (
	seqExpr []expr
	altExpr []seqExpr
	refExpr struct {
		name string
		line int
	}
	litExpr struct {
		value string
		fold  bool
	}
	reExpr struct {
		pattern string
		flags   string
	}
	repExpr struct {
		inner expr
		op    string
	}
)

func isTerminalName(name string) bool {
	n := strings.TrimLeft(name, "_")
	return n != "" && n[0] >= 'A' && n[0] <= 'Z'
}

type compiler struct {
	g *Grammar

	ruleDefs  map[string]altExpr
	ruleOrder []string
	ruleLine  map[string]int

	termDefs  map[string]expr
	termOrder []string

	ignores []expr

	patterns  map[string]string
	resolving map[string]bool
	anon      map[string]string
	anonCount int
	repCount  int
	seen      map[string]bool
}

// Compile parses grammar text and produces a Grammar whose start rule is
// "start".
func Compile(text string) (*Grammar, error) {
	toks, err := tokenizeGrammar(text)
	if err != nil {
		return nil, err
	}
	c := &compiler{
		g: &Grammar{
			Start:   "start",
			options: make(map[string]RuleOptions),
		},
		ruleDefs:  make(map[string]altExpr),
		ruleLine:  make(map[string]int),
		termDefs:  make(map[string]expr),
		patterns:  make(map[string]string),
		resolving: make(map[string]bool),
		anon:      make(map[string]string),
		seen:      make(map[string]bool),
	}
	for _, stmt := range splitStatements(toks) {
		if err := c.statement(stmt); err != nil {
			return nil, err
		}
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	c.g.index()
	return c.g, nil
}

func (c *compiler) statement(stmt []gtok) error {
	head := stmt[0]
	if head.kind == gtokDirective {
		switch head.text {
		case "ignore":
			e, rest, err := parseAlternatives(stmt[1:])
			if err != nil {
				return err
			}
			if len(rest) > 0 {
				return &GrammarError{Line: rest[0].line, Msg: "unexpected tokens after %ignore"}
			}
			c.ignores = append(c.ignores, e)
			return nil
		case "import":
			return c.importStmt(stmt[1:], head.line)
		default:
			return &GrammarError{Line: head.line, Msg: fmt.Sprintf("unsupported directive %%%s", head.text)}
		}
	}

	var opts RuleOptions
	i := 0
	if head.is(gtokOp, "?") {
		opts.Expand1 = true
		i++
	} else if head.is(gtokOp, "!") {
		opts.KeepAll = true
		i++
	}
	if i >= len(stmt) || stmt[i].kind != gtokName {
		return &GrammarError{Line: head.line, Msg: "expected a rule or terminal name"}
	}
	name := stmt[i].text
	i++
	if i < len(stmt) && stmt[i].is(gtokOp, ".") {
		return &GrammarError{Line: head.line, Msg: fmt.Sprintf("priorities are not supported (%s)", name)}
	}
	if i >= len(stmt) || !stmt[i].is(gtokOp, ":") {
		return &GrammarError{Line: head.line, Msg: fmt.Sprintf("expected ':' after %s", name)}
	}
	body, rest, err := parseAlternatives(stmt[i+1:])
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return &GrammarError{Line: rest[0].line, Msg: fmt.Sprintf("unexpected %q in definition of %s", rest[0].text, name)}
	}

	if isTerminalName(name) {
		if opts != (RuleOptions{}) {
			return &GrammarError{Line: head.line, Msg: fmt.Sprintf("terminal %s cannot take rule modifiers", name)}
		}
		if _, dup := c.termDefs[name]; dup {
			return &GrammarError{Line: head.line, Msg: fmt.Sprintf("terminal %s defined twice", name)}
		}
		c.termDefs[name] = body
		c.termOrder = append(c.termOrder, name)
		return nil
	}

	if _, dup := c.ruleDefs[name]; dup {
		return &GrammarError{Line: head.line, Msg: fmt.Sprintf("rule %s defined twice", name)}
	}
	if strings.HasPrefix(name, "_") {
		opts.Inline = true
	}
	c.ruleDefs[name] = body
	c.ruleOrder = append(c.ruleOrder, name)
	c.ruleLine[name] = head.line
	c.g.options[name] = opts
	return nil
}

// importStmt handles "common.NAME", "common.NAME -> ALIAS" and
// "common (A, B)".
func (c *compiler) importStmt(toks []gtok, line int) error {
	if len(toks) < 1 || !toks[0].is(gtokName, "common") {
		return &GrammarError{Line: line, Msg: "only imports from 'common' are supported"}
	}
	add := func(name, alias string) error {
		pattern, ok := commonTerminals[name]
		if !ok {
			return &GrammarError{Line: line, Msg: fmt.Sprintf("unknown common terminal %s", name)}
		}
		if _, dup := c.termDefs[alias]; dup {
			return nil
		}
		c.termDefs[alias] = reExpr{pattern: pattern}
		c.termOrder = append(c.termOrder, alias)
		return nil
	}
	rest := toks[1:]
	switch {
	case len(rest) >= 2 && rest[0].is(gtokOp, ".") && rest[1].kind == gtokName:
		alias := rest[1].text
		if len(rest) == 4 && rest[2].is(gtokOp, "->") && rest[3].kind == gtokName {
			alias = rest[3].text
		} else if len(rest) != 2 {
			return &GrammarError{Line: line, Msg: "malformed %import"}
		}
		return add(rest[1].text, alias)
	case len(rest) >= 3 && rest[0].is(gtokOp, "(") && rest[len(rest)-1].is(gtokOp, ")"):
		for _, t := range rest[1 : len(rest)-1] {
			if t.is(gtokOp, ",") {
				continue
			}
			if t.kind != gtokName {
				return &GrammarError{Line: line, Msg: "malformed %import list"}
			}
			if err := add(t.text, t.text); err != nil {
				return err
			}
		}
		return nil
	default:
		return &GrammarError{Line: line, Msg: "malformed %import"}
	}
}

func parseAlternatives(toks []gtok) (altExpr, []gtok, error) {
	var alts altExpr
	for {
		seq, rest, err := parseSequence(toks)
		if err != nil {
			return nil, nil, err
		}
		alts = append(alts, seq)
		toks = rest
		if len(toks) == 0 || !toks[0].is(gtokOp, "|") {
			return alts, toks, nil
		}
		toks = toks[1:]
	}
}

func parseSequence(toks []gtok) (seqExpr, []gtok, error) {
	var seq seqExpr
	for len(toks) > 0 {
		t := toks[0]
		if t.is(gtokOp, "|") || t.is(gtokOp, ")") || t.is(gtokOp, "]") {
			break
		}
		var item expr
		switch {
		case t.is(gtokOp, "("), t.is(gtokOp, "["):
			inner, rest, err := parseAlternatives(toks[1:])
			if err != nil {
				return nil, nil, err
			}
			closing := ")"
			if t.text == "[" {
				closing = "]"
			}
			if len(rest) == 0 || !rest[0].is(gtokOp, closing) {
				return nil, nil, &GrammarError{Line: t.line, Msg: fmt.Sprintf("missing %q", closing)}
			}
			toks = rest[1:]
			item = inner
			if t.text == "[" {
				item = repExpr{inner: inner, op: "?"}
			}
		case t.kind == gtokName:
			item = refExpr{name: t.text, line: t.line}
			toks = toks[1:]
		case t.kind == gtokString:
			item = litExpr{value: t.text, fold: t.flags == "i"}
			toks = toks[1:]
		case t.kind == gtokRegexp:
			item = reExpr{pattern: t.text, flags: t.flags}
			toks = toks[1:]
		case t.is(gtokOp, "->"):
			return nil, nil, &GrammarError{Line: t.line, Msg: "rule aliases are not supported"}
		default:
			return nil, nil, &GrammarError{Line: t.line, Msg: fmt.Sprintf("unexpected %q", t.text)}
		}
		for len(toks) > 0 && toks[0].kind == gtokOp {
			op := toks[0].text
			if op == "~" {
				return nil, nil, &GrammarError{Line: toks[0].line, Msg: "'~' repetition is not supported"}
			}
			if op != "?" && op != "*" && op != "+" {
				break
			}
			item = repExpr{inner: item, op: op}
			toks = toks[1:]
		}
		seq = append(seq, item)
	}
	return seq, toks, nil
}

func (c *compiler) build() error {
	for _, name := range c.termOrder {
		pattern, err := c.terminalPattern(name)
		if err != nil {
			return err
		}
		t := &Terminal{Name: name, Pattern: pattern, Filter: strings.HasPrefix(name, "_")}
		if alts, ok := c.termDefs[name].(altExpr); ok && len(alts) == 1 && len(alts[0]) == 1 {
			if lit, ok := alts[0][0].(litExpr); ok && !lit.fold {
				t.Literal = lit.value
			}
		}
		if err := c.addTerminal(t); err != nil {
			return err
		}
	}

	for i, e := range c.ignores {
		if alts, ok := e.(altExpr); ok && len(alts) == 1 && len(alts[0]) == 1 {
			if ref, ok := alts[0][0].(refExpr); ok {
				if _, defined := c.termDefs[ref.name]; !defined {
					return &GrammarError{Line: ref.line, Msg: fmt.Sprintf("%%ignore of undefined terminal %s", ref.name)}
				}
				c.g.Ignore = append(c.g.Ignore, ref.name)
				continue
			}
		}
		pattern, err := c.exprPattern(e)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("__IGNORE_%d", i)
		if err := c.addTerminal(&Terminal{Name: name, Pattern: pattern, Filter: true}); err != nil {
			return err
		}
		c.g.Ignore = append(c.g.Ignore, name)
	}

	if _, ok := c.ruleDefs[c.g.Start]; !ok {
		return &GrammarError{Msg: "missing start rule"}
	}
	for _, name := range c.ruleOrder {
		alts, err := c.expand(c.ruleDefs[name], name)
		if err != nil {
			return err
		}
		for _, alt := range alts {
			c.addProduction(name, alt)
		}
	}

	for _, p := range c.g.Productions {
		for _, s := range p.Expansion {
			if s.Terminal {
				continue
			}
			if _, ok := c.ruleDefs[s.Name]; !ok && !strings.HasPrefix(s.Name, "__") {
				return &GrammarError{Line: c.ruleLine[p.Origin], Msg: fmt.Sprintf("rule %s references undefined rule %s", p.Origin, s.Name)}
			}
		}
	}
	return nil
}

func (c *compiler) addTerminal(t *Terminal) error {
	re, err := regexp.Compile(`\A(?:` + t.Pattern + `)`)
	if err != nil {
		return &GrammarError{Msg: fmt.Sprintf("terminal %s: %v", t.Name, err)}
	}
	t.re = re
	c.g.Terminals = append(c.g.Terminals, t)
	return nil
}

func (c *compiler) addProduction(origin string, expansion []Symbol) {
	key := origin + ":"
	for _, s := range expansion {
		key += " " + s.Name
	}
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.g.Productions = append(c.g.Productions, &Production{Origin: origin, Expansion: expansion})
}

func (c *compiler) terminalPattern(name string) (string, error) {
	if p, ok := c.patterns[name]; ok {
		return p, nil
	}
	def, ok := c.termDefs[name]
	if !ok {
		return "", &GrammarError{Msg: fmt.Sprintf("undefined terminal %s", name)}
	}
	if c.resolving[name] {
		return "", &GrammarError{Msg: fmt.Sprintf("terminal %s is recursive", name)}
	}
	c.resolving[name] = true
	defer delete(c.resolving, name)
	p, err := c.exprPattern(def)
	if err != nil {
		return "", err
	}
	c.patterns[name] = p
	return p, nil
}

// exprPattern turns a terminal definition into regular expression source.
func (c *compiler) exprPattern(e expr) (string, error) {
	switch e := e.(type) {
	case litExpr:
		if e.fold {
			return "(?i:" + regexp.QuoteMeta(e.value) + ")", nil
		}
		return regexp.QuoteMeta(e.value), nil
	case reExpr:
		flags := strings.NewReplacer("u", "", "x", "").Replace(e.flags)
		if strings.Contains(e.flags, "x") {
			return "", &GrammarError{Msg: fmt.Sprintf("regexp flag 'x' is not supported in /%s/", e.pattern)}
		}
		if flags != "" {
			return "(?" + flags + ":" + e.pattern + ")", nil
		}
		return "(?:" + e.pattern + ")", nil
	case refExpr:
		if !isTerminalName(e.name) {
			return "", &GrammarError{Line: e.line, Msg: fmt.Sprintf("terminal cannot reference rule %s", e.name)}
		}
		p, err := c.terminalPattern(e.name)
		if err != nil {
			return "", err
		}
		return "(?:" + p + ")", nil
	case seqExpr:
		var sb strings.Builder
		for _, item := range e {
			p, err := c.exprPattern(item)
			if err != nil {
				return "", err
			}
			sb.WriteString(p)
		}
		return sb.String(), nil
	case altExpr:
		if len(e) == 1 {
			return c.exprPattern(e[0])
		}
		parts := make([]string, 0, len(e))
		for _, seq := range e {
			p, err := c.exprPattern(seq)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(?:" + strings.Join(parts, "|") + ")", nil
	case repExpr:
		p, err := c.exprPattern(e.inner)
		if err != nil {
			return "", err
		}
		return "(?:" + p + ")" + e.op, nil
	default:
		return "", &GrammarError{Msg: fmt.Sprintf("unsupported terminal expression %T", e)}
	}
}

// literalTerminal returns the terminal matching a string used inline in a
// rule, reusing a named terminal defined by the same string when there is one.
func (c *compiler) literalTerminal(lit litExpr) (string, error) {
	if !lit.fold {
		for _, t := range c.g.Terminals {
			if t.Literal == lit.value {
				return t.Name, nil
			}
		}
	}
	key := lit.value
	if lit.fold {
		key = "(?i)" + key
	}
	if name, ok := c.anon[key]; ok {
		return name, nil
	}
	c.anonCount++
	name := fmt.Sprintf("%s%d", anonPrefix, c.anonCount)
	pattern, err := c.exprPattern(lit)
	if err != nil {
		return "", err
	}
	t := &Terminal{Name: name, Pattern: pattern, Filter: true}
	if !lit.fold {
		t.Literal = lit.value
	}
	if err := c.addTerminal(t); err != nil {
		return "", err
	}
	c.anon[key] = name
	return name, nil
}

func (c *compiler) regexpTerminal(re reExpr) (string, error) {
	key := "/" + re.pattern + "/" + re.flags
	if name, ok := c.anon[key]; ok {
		return name, nil
	}
	c.anonCount++
	name := fmt.Sprintf("%s%d", anonPrefix, c.anonCount)
	pattern, err := c.exprPattern(re)
	if err != nil {
		return "", err
	}
	if err := c.addTerminal(&Terminal{Name: name, Pattern: pattern}); err != nil {
		return "", err
	}
	c.anon[key] = name
	return name, nil
}

// expand rewrites an EBNF expression into the list of plain BNF alternatives
// it stands for. Repetitions become left-recursive helper rules that are
// inlined in the tree.
func (c *compiler) expand(e expr, origin string) ([][]Symbol, error) {
	switch e := e.(type) {
	case refExpr:
		if isTerminalName(e.name) {
			if _, ok := c.termDefs[e.name]; !ok {
				return nil, &GrammarError{Line: e.line, Msg: fmt.Sprintf("undefined terminal %s", e.name)}
			}
			return [][]Symbol{{{Name: e.name, Terminal: true}}}, nil
		}
		return [][]Symbol{{{Name: e.name}}}, nil
	case litExpr:
		name, err := c.literalTerminal(e)
		if err != nil {
			return nil, err
		}
		return [][]Symbol{{{Name: name, Terminal: true}}}, nil
	case reExpr:
		name, err := c.regexpTerminal(e)
		if err != nil {
			return nil, err
		}
		return [][]Symbol{{{Name: name, Terminal: true}}}, nil
	case seqExpr:
		result := [][]Symbol{{}}
		for _, item := range e {
			alts, err := c.expand(item, origin)
			if err != nil {
				return nil, err
			}
			next := make([][]Symbol, 0, len(result)*len(alts))
			for _, prefix := range result {
				for _, alt := range alts {
					combined := make([]Symbol, 0, len(prefix)+len(alt))
					combined = append(combined, prefix...)
					combined = append(combined, alt...)
					next = append(next, combined)
				}
			}
			result = next
		}
		return result, nil
	case altExpr:
		var result [][]Symbol
		for _, seq := range e {
			alts, err := c.expand(seq, origin)
			if err != nil {
				return nil, err
			}
			result = append(result, alts...)
		}
		return result, nil
	case repExpr:
		inner, err := c.expand(e.inner, origin)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case "?":
			return append(inner, []Symbol{}), nil
		case "*", "+":
			helper := c.repetitionRule(origin, inner)
			if e.op == "*" {
				return [][]Symbol{{{Name: helper}}, {}}, nil
			}
			return [][]Symbol{{{Name: helper}}}, nil
		}
	}
	return nil, &GrammarError{Line: c.ruleLine[origin], Msg: fmt.Sprintf("unsupported expression in rule %s", origin)}
}

func (c *compiler) repetitionRule(origin string, inner [][]Symbol) string {
	c.repCount++
	name := fmt.Sprintf("__%s_rep_%d", strings.TrimLeft(origin, "_"), c.repCount)
	c.g.options[name] = RuleOptions{Inline: true, KeepAll: c.g.options[origin].KeepAll}
	for _, alt := range inner {
		c.addProduction(name, alt)
	}
	for _, alt := range inner {
		c.addProduction(name, append([]Symbol{{Name: name}}, alt...))
	}
	return name
}
