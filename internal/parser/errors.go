package parser

import (
	"fmt"
	"strings"
)

// SyntaxError reports source text the grammar does not accept.
type SyntaxError struct {
	Pos Position
	// Found is the offending token text; empty at end of input.
	Found string
	// Expected lists the terminals that would have been accepted.
	Expected []string
}

func (e *SyntaxError) Error() string {
	found := "end of input"
	if e.Found != "" {
		found = fmt.Sprintf("%q", e.Found)
	}
	msg := fmt.Sprintf("syntax error at line %d, column %d: unexpected %s", e.Pos.Line, e.Pos.Column, found)
	if len(e.Expected) > 0 {
		msg += ", expected one of: " + strings.Join(e.Expected, ", ")
	}
	return msg
}
