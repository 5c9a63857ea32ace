package certflow

import (
	"regexp"
	"strings"
)

// placeholderRe matches {name} tokens in subject, body, and filename
// templates. Names are word characters only.
var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Expand substitutes every {placeholder} token in pattern with its value
// from fields. Tokens with no matching field are left literal so a
// mismatch shows up in the output rather than disappearing silently.
func Expand(pattern string, fields map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(pattern, func(tok string) string {
		name := strings.Trim(tok, "{}")
		if v, ok := fields[name]; ok {
			return v
		}
		return tok
	})
}

// Placeholders returns the names of all {placeholder} tokens in pattern,
// in order of first appearance.
func Placeholders(pattern string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
