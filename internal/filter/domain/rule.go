package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// RuleClass says whether a rule allows (whitelist) or acts (blacklist).
type RuleClass uint8

const (
	// Blacklist rules block or redirect.
	Blacklist RuleClass = iota
	// Whitelist rules exempt a request from every blacklist rule of the same list kind.
	Whitelist
)

func (c RuleClass) String() string {
	switch c {
	case Blacklist:
		return "blacklist"
	case Whitelist:
		return "whitelist"
	default:
		return fmt.Sprintf("RuleClass(%d)", c)
	}
}

// ListKind selects the rule list a rule contributes to.
type ListKind uint8

const (
	ListBlock ListKind = iota
	ListRedirect
)

func (k ListKind) String() string {
	switch k {
	case ListBlock:
		return "block"
	case ListRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("ListKind(%d)", k)
	}
}

// SigilCategory is what a line sigil means to the compiler.
//
// auto     - block list, or redirect list when the rule carries a '>' target
// redirect - always the redirect list
type SigilCategory uint8

const (
	SigilAuto SigilCategory = iota
	SigilRedirect
)

func (c SigilCategory) String() string {
	switch c {
	case SigilAuto:
		return "auto"
	case SigilRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("SigilCategory(%d)", c)
	}
}

// ParseSigilCategory converts "auto" or "redirect" (case-insensitive).
func ParseSigilCategory(s string) (SigilCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return SigilAuto, nil
	case "redirect":
		return SigilRedirect, nil
	default:
		return 0, fmt.Errorf("unsupported sigil category: %q", s)
	}
}

// HostScope describes which hosts a URL pattern can possibly match. It lets
// rule lists index rules by host without knowing the pattern syntax.
type HostScope uint8

const (
	// HostAny patterns may match any host, including host-less URLs.
	HostAny HostScope = iota
	// HostExact patterns match a single host.
	HostExact
	// HostSubdomains patterns match a domain and all of its subdomains.
	HostSubdomains
)

// URLPattern is a compiled URL pattern.
type URLPattern interface {
	Matches(u *url.URL) bool
	// Scope returns the normalized host and how it is matched. The host is
	// empty for HostAny.
	Scope() (host string, scope HostScope)
	String() string
}

// Rule is one compiled rule-list entry.
//
// Notes:
// - Types is empty when the rule has no type filter; such a rule applies to every request type.
// - Target is only set for redirect rules; Validate enforces that it is absent from block rules.
type Rule struct {
	Pattern URLPattern
	Types   TypeSet
	Target  string
	Class   RuleClass
	List    ListKind
	Line    int    // 1-based line number in the source file
	Raw     string // source text, for diagnostics
}

// Validate checks the structural invariants of a rule.
func (r Rule) Validate() error {
	if r.Pattern == nil {
		return fmt.Errorf("rule pattern must be set")
	}
	switch r.List {
	case ListBlock:
		if r.Target != "" {
			return fmt.Errorf("block rule must not carry a redirect target")
		}
	case ListRedirect:
		if r.Class == Blacklist && r.Target == "" {
			return fmt.Errorf("redirect rule requires a target")
		}
	default:
		return fmt.Errorf("unsupported ListKind: %d", r.List)
	}
	switch r.Class {
	case Blacklist, Whitelist:
	default:
		return fmt.Errorf("unsupported RuleClass: %d", r.Class)
	}
	return nil
}

// HasTypeFilter reports whether the rule is restricted to some resource types.
func (r Rule) HasTypeFilter() bool { return !r.Types.Empty() }

// AppliesTo reports whether the rule matches the URL and resource type.
// A rule without a type filter matches every resource type.
func (r Rule) AppliesTo(u *url.URL, t ResourceType) bool {
	if r.HasTypeFilter() && !r.Types.Contains(t) {
		return false
	}
	return r.Pattern.Matches(u)
}

// IsWhitelist returns true for whitelist rules.
func (r Rule) IsWhitelist() bool { return r.Class == Whitelist }
