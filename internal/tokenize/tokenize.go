// Package tokenize splits command text into arguments.
package tokenize

import "strings"

// Split breaks text into arguments on spaces. Double quotes group words and
// are dropped; a backslash emits the next rune literally. The result always
// has at least one element, so empty input gives [""]. An unterminated quote
// swallows the rest of the input.
func Split(text string) []string {
	tokens := []string{}
	var cur strings.Builder
	quoted := false
	escaped := false

	for _, r := range text {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ' ' && !quoted:
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	// a trailing lone backslash has nothing to escape
	if escaped {
		cur.WriteRune('\\')
	}
	return append(tokens, cur.String())
}
