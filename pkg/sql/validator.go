// Package sql holds text-level checks applied to SQL before it reaches a
// tenant database.
package sql

import (
	"errors"
	"strings"
)

// ErrMultipleStatements is returned when more than one statement is submitted.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// ValidationResult holds the normalized statement or the reason it was refused.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims whitespace and one trailing semicolon, then
// refuses any remaining statement separator outside literals and comments.
// An empty input normalizes to the empty string without error.
func ValidateAndNormalize(query string) ValidationResult {
	normalized := strings.TrimSpace(query)
	normalized = strings.TrimSuffix(normalized, ";")
	normalized = strings.TrimSpace(normalized)

	if hasStatementSeparator(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// hasStatementSeparator scans for ';' outside quoted text and comments.
// Quotes are closed by the same character; a doubled quote re-enters the
// literal on the next rune, which keeps 'O''Brien' inside the string.
func hasStatementSeparator(query string) bool {
	const (
		normal = iota
		singleQuote
		doubleQuote
		lineComment
		blockComment
	)

	runes := []rune(query)
	state := normal
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case normal:
			switch {
			case r == ';':
				return true
			case r == '\'':
				state = singleQuote
			case r == '"':
				state = doubleQuote
			case r == '-' && next == '-':
				state = lineComment
				i++
			case r == '/' && next == '*':
				state = blockComment
				i++
			}
		case singleQuote:
			if r == '\\' {
				i++
			} else if r == '\'' {
				state = normal
			}
		case doubleQuote:
			if r == '"' {
				state = normal
			}
		case lineComment:
			if r == '\n' {
				state = normal
			}
		case blockComment:
			if r == '*' && next == '/' {
				state = normal
				i++
			}
		}
	}
	return false
}
