package parsers

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

// Sigils maps the leading character of a rule line to the category it
// contributes to. Lines whose first character is not a key are ignored.
type Sigils map[rune]domain.SigilCategory

// DefaultSigils returns the stock mapping: "$" selects block rules (or
// redirect rules when a target is present) and "^" selects redirect rules.
func DefaultSigils() Sigils {
	return Sigils{
		'$': domain.SigilAuto,
		'^': domain.SigilRedirect,
	}
}

// ParseSigils converts a config map such as {"$": "auto", "^": "redirect"}.
// Each key must be exactly one character.
func ParseSigils(m map[string]string) (Sigils, error) {
	out := make(Sigils, len(m))
	for k, v := range m {
		r, size := utf8.DecodeRuneInString(k)
		if r == utf8.RuneError || size != len(k) {
			return nil, fmt.Errorf("sigil %q must be a single character", k)
		}
		if r == ' ' || r == '\t' {
			return nil, fmt.Errorf("sigil must not be whitespace")
		}
		c, err := domain.ParseSigilCategory(v)
		if err != nil {
			return nil, fmt.Errorf("sigil %q: %w", k, err)
		}
		out[r] = c
	}
	return out, nil
}

// Classify returns the category and body of a trimmed line, or ok=false when
// the line does not start with a known sigil.
func (s Sigils) Classify(line string) (category domain.SigilCategory, body string, ok bool) {
	r, size := utf8.DecodeRuneInString(line)
	if size == 0 {
		return 0, "", false
	}
	category, ok = s[r]
	if !ok {
		return 0, "", false
	}
	return category, line[size:], true
}

func (s Sigils) String() string {
	parts := make([]string, 0, len(s))
	for r, c := range s {
		parts = append(parts, string(r)+"="+c.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
