// Package grammar loads the rule-language grammar from its Lark-style EBNF
// text and compiles it into the flat form the chart parser consumes: plain
// BNF productions over named terminals, with the tree-shaping options
// (inline, expand-single-child, keep-all-tokens) of every rule.
//
// The grammar is an external artifact read at parse time. A copy of the
// default grammar is embedded so the binary works without it on disk.
//
// Supported notation:
//
//	rule: a b | c          alternatives
//	?rule: ...             inlined when it has a single child
//	_rule: ...             always inlined into the parent
//	!rule: ...             keeps anonymous tokens
//	[x] (x)? x* x+ (a|b)   optionals, repetition and groups
//	NAME: "lit" | /re/i    terminals built from strings, regexps and other terminals
//	%ignore NAME           terminals skipped between tokens
//	%import common.NAME    terminals from the built-in common set
package grammar
