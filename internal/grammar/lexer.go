package grammar

import (
	"fmt"
	"strings"
)

type gtokKind int

const (
	gtokName gtokKind = iota
	gtokString
	gtokRegexp
	gtokOp
	gtokDirective
	gtokNumber
	gtokNewline
)

// gtok is a token of the grammar notation itself.
type gtok struct {
	kind  gtokKind
	text  string
	flags string
	line  int
}

func (t gtok) is(kind gtokKind, text string) bool {
	return t.kind == kind && t.text == text
}

// GrammarError reports a malformed grammar definition.
type GrammarError struct {
	Line int
	Msg  string
}

func (e *GrammarError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("grammar line %d: %s", e.Line, e.Msg)
	}
	return "grammar: " + e.Msg
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// tokenizeGrammar splits grammar text into tokens, keeping newlines because
// definitions end at a line break unless the next line starts with '|'.
func tokenizeGrammar(text string) ([]gtok, error) {
	var toks []gtok
	line := 1
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\n':
			toks = append(toks, gtok{kind: gtokNewline, line: line})
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == '"':
			j := i + 1
			var sb strings.Builder
			for ; j < len(text) && text[j] != '"'; j++ {
				if text[j] == '\n' {
					return nil, &GrammarError{Line: line, Msg: "unterminated string"}
				}
				if text[j] == '\\' && j+1 < len(text) {
					j++
					switch text[j] {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					default:
						sb.WriteByte(text[j])
					}
					continue
				}
				sb.WriteByte(text[j])
			}
			if j >= len(text) {
				return nil, &GrammarError{Line: line, Msg: "unterminated string"}
			}
			j++
			flags := ""
			if j < len(text) && text[j] == 'i' && (j+1 >= len(text) || !isNameChar(text[j+1])) {
				flags = "i"
				j++
			}
			toks = append(toks, gtok{kind: gtokString, text: sb.String(), flags: flags, line: line})
			i = j
		case c == '/':
			j := i + 1
			for ; j < len(text) && text[j] != '/'; j++ {
				if text[j] == '\n' {
					return nil, &GrammarError{Line: line, Msg: "unterminated regexp"}
				}
				if text[j] == '\\' {
					j++
				}
			}
			if j >= len(text) {
				return nil, &GrammarError{Line: line, Msg: "unterminated regexp"}
			}
			pattern := text[i+1 : j]
			j++
			k := j
			for k < len(text) && strings.IndexByte("imsux", text[k]) >= 0 {
				k++
			}
			toks = append(toks, gtok{kind: gtokRegexp, text: pattern, flags: text[j:k], line: line})
			i = k
		case c == '%':
			j := i + 1
			for j < len(text) && isNameChar(text[j]) {
				j++
			}
			toks = append(toks, gtok{kind: gtokDirective, text: text[i+1 : j], line: line})
			i = j
		case isNameStart(c):
			j := i
			for j < len(text) && isNameChar(text[j]) {
				j++
			}
			toks = append(toks, gtok{kind: gtokName, text: text[i:j], line: line})
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(text) && text[j] >= '0' && text[j] <= '9' {
				j++
			}
			toks = append(toks, gtok{kind: gtokNumber, text: text[i:j], line: line})
			i = j
		case strings.IndexByte(":|?!*+()[].,~", c) >= 0:
			toks = append(toks, gtok{kind: gtokOp, text: string(c), line: line})
			i++
		case c == '-' && i+1 < len(text) && text[i+1] == '>':
			toks = append(toks, gtok{kind: gtokOp, text: "->", line: line})
			i += 2
		default:
			return nil, &GrammarError{Line: line, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return toks, nil
}

// splitStatements groups tokens into logical statements. A statement ends at
// a newline unless the next non-blank line continues it with '|'.
func splitStatements(toks []gtok) [][]gtok {
	var stmts [][]gtok
	var cur []gtok
	for i := 0; i < len(toks); i++ {
		if toks[i].kind != gtokNewline {
			cur = append(cur, toks[i])
			continue
		}
		j := i
		for j < len(toks) && toks[j].kind == gtokNewline {
			j++
		}
		if j < len(toks) && toks[j].is(gtokOp, "|") && len(cur) > 0 {
			i = j - 1
			continue
		}
		if len(cur) > 0 {
			stmts = append(stmts, cur)
			cur = nil
		}
		i = j - 1
	}
	if len(cur) > 0 {
		stmts = append(stmts, cur)
	}
	return stmts
}
