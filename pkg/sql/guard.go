package sql

import (
	"regexp"
	"strings"
)

// MutatingKeywords are refused anywhere in a statement, as whole words in any case.
var MutatingKeywords = []string{
	"DROP", "ALTER", "TRUNCATE", "CREATE", "INSERT", "UPDATE", "DELETE", "REPLACE", "MERGE",
}

var mutationPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(MutatingKeywords, "|") + `)\b`)

// CheckMutation reports whether query contains a mutating keyword and returns
// the first one found, upper-cased. Literals and comments are not exempt:
// a false positive only costs a rephrase.
func CheckMutation(query string) (keyword string, blocked bool) {
	m := mutationPattern.FindString(query)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}
