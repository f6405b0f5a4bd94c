package parsers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/pattern"
)

// Error message constants for consistent error handling
const (
	errEmptyRule      = "%w: empty rule"
	errEmptyPattern   = "%w: empty pattern"
	errNoKnownTypes   = "%w: no supported resource types in %q"
	errBadTarget      = "%w: invalid redirect target %q"
	errMissingTarget  = "%w: redirect rule %q has no target"
	errCompilePattern = "compile pattern: %w"
)

const (
	attributeSeparator = "@"
	typeSeparator      = "|"
	whitelistPrefix    = "!"
	redirectSeparator  = ">"
)

// ParseRule compiles the body of one rule line (sigil already stripped) into a
// domain.Rule. category is what the line's sigil maps to.
//
// Syntax:
//
//	[!]<pattern>[><target>][@<type>[|<type>...]]
//
// Steps:
//   - split on the first "@" into the rule part and the attribute part
//   - split a non-empty attribute part on "|" into resource types; unknown tags are dropped
//   - a leading "!" makes the rule a whitelist entry
//   - a ">" splits the rule part into pattern and redirect target, selecting the redirect list
//   - compile the pattern; failures wrap domain.ErrInvalidPattern
func ParseRule(body string, category domain.SigilCategory) (domain.Rule, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Rule{}, fmt.Errorf(errEmptyRule, domain.ErrInvalidPattern)
	}

	rulePart, attrPart, hasAttr := strings.Cut(body, attributeSeparator)

	var types domain.TypeSet
	if hasAttr && strings.TrimSpace(attrPart) != "" {
		var err error
		types, err = parseTypes(attrPart)
		if err != nil {
			return domain.Rule{}, err
		}
	}

	class := domain.Blacklist
	if strings.HasPrefix(rulePart, whitelistPrefix) {
		class = domain.Whitelist
		rulePart = rulePart[len(whitelistPrefix):]
	}

	list := domain.ListBlock
	if category == domain.SigilRedirect {
		list = domain.ListRedirect
	}

	patternSrc, target, hasTarget := strings.Cut(rulePart, redirectSeparator)
	if hasTarget {
		list = domain.ListRedirect
		target = strings.TrimSpace(target)
		if !isAbsoluteURL(target) {
			return domain.Rule{}, fmt.Errorf(errBadTarget, domain.ErrInvalidPattern, target)
		}
	}
	if list == domain.ListRedirect && class == domain.Blacklist && !hasTarget {
		return domain.Rule{}, fmt.Errorf(errMissingTarget, domain.ErrInvalidPattern, body)
	}
	if class == domain.Whitelist {
		// A whitelist entry only exempts; a target on it is never used.
		target = ""
	}

	patternSrc = strings.TrimSpace(patternSrc)
	if patternSrc == "" {
		return domain.Rule{}, fmt.Errorf(errEmptyPattern, domain.ErrInvalidPattern)
	}
	m, err := pattern.Compile(patternSrc)
	if err != nil {
		return domain.Rule{}, fmt.Errorf(errCompilePattern, err)
	}

	rule := domain.Rule{
		Pattern: m,
		Types:   types,
		Target:  target,
		Class:   class,
		List:    list,
		Raw:     body,
	}
	if err := rule.Validate(); err != nil {
		return domain.Rule{}, fmt.Errorf("%w: %v", domain.ErrInvalidPattern, err)
	}
	return rule, nil
}

// parseTypes splits a type filter. Unknown tags are dropped; a filter made only
// of unknown tags is an error, since it could never match.
func parseTypes(attr string) (domain.TypeSet, error) {
	var set domain.TypeSet
	for _, tag := range strings.Split(attr, typeSeparator) {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		t, err := domain.ParseResourceType(tag)
		if err != nil {
			continue
		}
		set = set.With(t)
	}
	if set.Empty() {
		return 0, fmt.Errorf(errNoKnownTypes, domain.ErrInvalidPattern, attr)
	}
	return set, nil
}

// isAbsoluteURL reports whether s parses as a URL with a scheme and either a
// host or an opaque part (data:, about:).
func isAbsoluteURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}
