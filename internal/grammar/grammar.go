package grammar

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
)

//go:embed grasp.lark
var defaultText string

// Symbol is one element of a production's expansion.
type Symbol struct {
	Name     string
	Terminal bool
}

func (s Symbol) String() string {
	return s.Name
}

// Production is a single BNF alternative of a rule.
type Production struct {
	Origin    string
	Expansion []Symbol
}

// RuleOptions control how a rule's node is shaped in the parse tree.
type RuleOptions struct {
	Inline  bool // children are spliced into the parent
	Expand1 bool // replaced by its child when it has exactly one
	KeepAll bool // anonymous tokens are kept
}

// Terminal is a compiled token definition.
type Terminal struct {
	Name string
	// Pattern is the regular expression source the terminal matches.
	Pattern string
	// Literal is set for terminals defined by a single string.
	Literal string
	// Filter drops the token from parse trees.
	Filter bool

	re *regexp.Regexp
}

// Match returns the length of the terminal's match at the start of s, or -1.
// Empty matches never count.
func (t *Terminal) Match(s string) int {
	loc := t.re.FindStringIndex(s)
	if loc == nil || loc[1] == 0 {
		return -1
	}
	return loc[1]
}

// Display is the terminal's name as shown in error messages.
func (t *Terminal) Display() string {
	if t.Literal != "" && strings.HasPrefix(t.Name, anonPrefix) {
		return fmt.Sprintf("%q", t.Literal)
	}
	return t.Name
}

// Grammar is a compiled grammar ready for parsing.
type Grammar struct {
	Start       string
	Productions []*Production
	Terminals   []*Terminal
	Ignore      []string

	options   map[string]RuleOptions
	byOrigin  map[string][]int
	terminals map[string]*Terminal
	nullable  map[string]bool
}

// ProductionsFor returns the indexes of the productions of a rule, in
// declaration order.
func (g *Grammar) ProductionsFor(rule string) []int {
	return g.byOrigin[rule]
}

// Options returns the tree-shaping options of a rule.
func (g *Grammar) Options(rule string) RuleOptions {
	return g.options[rule]
}

// Terminal looks up a terminal by name.
func (g *Grammar) Terminal(name string) (*Terminal, bool) {
	t, ok := g.terminals[name]
	return t, ok
}

// Nullable reports whether a rule can derive the empty string.
func (g *Grammar) Nullable(rule string) bool {
	return g.nullable[rule]
}

// Default compiles the embedded default grammar.
func Default() (*Grammar, error) {
	return Compile(defaultText)
}

// Load reads and compiles a grammar file. An empty path selects the
// embedded default grammar.
func Load(path string) (*Grammar, error) {
	if path == "" {
		return Default()
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar %s: %w", path, err)
	}
	g, err := Compile(string(text))
	if err != nil {
		return nil, fmt.Errorf("failed to compile grammar %s: %w", path, err)
	}
	return g, nil
}

func (g *Grammar) index() {
	g.byOrigin = make(map[string][]int)
	for i, p := range g.Productions {
		g.byOrigin[p.Origin] = append(g.byOrigin[p.Origin], i)
	}
	g.terminals = make(map[string]*Terminal, len(g.Terminals))
	for _, t := range g.Terminals {
		g.terminals[t.Name] = t
	}

	// Fixed point over "every symbol of some expansion is nullable".
	g.nullable = make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, p := range g.Productions {
			if g.nullable[p.Origin] {
				continue
			}
			all := true
			for _, s := range p.Expansion {
				if s.Terminal || !g.nullable[s.Name] {
					all = false
					break
				}
			}
			if all {
				g.nullable[p.Origin] = true
				changed = true
			}
		}
	}
}
