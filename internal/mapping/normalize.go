package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize turns a source header such as "Goal Type" or "PortfolioID" into a
// snake_case column name ("goal_type", "portfolio_id"). Accents are stripped,
// and separators and camel-case boundaries become single underscores.
func Normalize(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, strings.TrimSpace(s))

	rs := []rune(ascii)
	var b strings.Builder
	prevUnderscore := true
	for i, r := range rs {
		switch {
		case r >= 'A' && r <= 'Z':
			// lower->Upper, or the last capital of an acronym ("IDValue").
			if !prevUnderscore && i > 0 {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && rs[i+1] >= 'a' && rs[i+1] <= 'z'
				if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') || (prev >= 'A' && prev <= 'Z' && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

// CollapseSpace returns s in NFC form with runs of whitespace replaced by a
// single space and leading/trailing whitespace removed.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
