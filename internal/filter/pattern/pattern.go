// Package pattern compiles browser-style URL match patterns such as
// "*://*.example.com/*" into matchers over parsed URLs.
//
// Grammar:
//
//	<all_urls>
//	<scheme>://<host><path>
//	scheme := "*" | "http" | "https" | "ws" | "wss" | "ftp" | "file"
//	host   := "*" | "*." <domain> | <domain>   (may be empty for file)
//	path   := "/" <any chars, "*" matches any run>
//
// A "*" scheme matches http, https, ws and wss. Hosts are compared after IDNA
// normalization; ports are ignored. The path is matched against the escaped
// URL path plus "?query" when a query is present.
package pattern

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

const allURLs = "<all_urls>"

// Error message constants for consistent error handling
const (
	errEmpty           = "%w: empty pattern"
	errNoSchemeSep     = "%w: %q: missing scheme separator"
	errBadScheme       = "%w: %q: unsupported scheme %q"
	errNoPath          = "%w: %q: missing path"
	errEmptyHost       = "%w: %q: empty host"
	errMisplacedStar   = "%w: %q: wildcard must be the whole host or a leading \"*.\""
	errBadHostChar     = "%w: %q: invalid character %q in host"
	errBadHost         = "%w: %q: invalid host: %v"
	errBadPathChar     = "%w: %q: invalid character in path"
	errCompilePathExpr = "%w: %q: %v"
)

var (
	// wildcardSchemes are the schemes matched by a "*" scheme.
	wildcardSchemes = map[string]struct{}{"http": {}, "https": {}, "ws": {}, "wss": {}}

	// allURLSchemes are the schemes matched by <all_urls>.
	allURLSchemes = map[string]struct{}{"http": {}, "https": {}, "ws": {}, "wss": {}, "ftp": {}, "file": {}}

	// hostProfile maps hosts the way a browser does before a lookup, without
	// rejecting names like "_dmarc.example.com".
	hostProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false), idna.Transitional(false))
)

// Matcher is a compiled URL pattern. It is immutable and safe for concurrent use.
type Matcher struct {
	raw       string
	all       bool
	scheme    string // "*" or a concrete scheme
	host      string // normalized host; empty for HostAny
	scope     domain.HostScope
	emptyHost bool           // file:/// patterns only match host-less URLs
	path      *regexp.Regexp // nil when the path is "/*"
}

// Compile parses s. Errors wrap domain.ErrInvalidPattern.
func Compile(s string) (*Matcher, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf(errEmpty, domain.ErrInvalidPattern)
	}
	if s == allURLs {
		return &Matcher{raw: s, all: true, scope: domain.HostAny}, nil
	}

	sep := strings.Index(s, "://")
	if sep <= 0 {
		return nil, fmt.Errorf(errNoSchemeSep, domain.ErrInvalidPattern, s)
	}
	scheme := strings.ToLower(s[:sep])
	if _, ok := allURLSchemes[scheme]; !ok && scheme != "*" {
		return nil, fmt.Errorf(errBadScheme, domain.ErrInvalidPattern, s, scheme)
	}

	rest := s[sep+3:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return nil, fmt.Errorf(errNoPath, domain.ErrInvalidPattern, s)
	}

	m := &Matcher{raw: s, scheme: scheme}
	if err := m.compileHost(rest[:slash]); err != nil {
		return nil, err
	}
	if err := m.compilePath(rest[slash:]); err != nil {
		return nil, err
	}
	return m, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level patterns.
func MustCompile(s string) *Matcher {
	m, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Matcher) compileHost(host string) error {
	switch {
	case host == "":
		if m.scheme != "file" {
			return fmt.Errorf(errEmptyHost, domain.ErrInvalidPattern, m.raw)
		}
		m.emptyHost = true
		m.scope = domain.HostAny
		return nil
	case host == "*":
		m.scope = domain.HostAny
		return nil
	case strings.HasPrefix(host, "*."):
		m.scope = domain.HostSubdomains
		host = host[2:]
	default:
		m.scope = domain.HostExact
	}

	if strings.Contains(host, "*") || host == "" {
		return fmt.Errorf(errMisplacedStar, domain.ErrInvalidPattern, m.raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		// IPv6 literal; compared verbatim.
		m.host = strings.ToLower(host[1 : len(host)-1])
		return nil
	}
	if i := strings.IndexAny(host, " \t\\?#@:[]<>|\"%^`{}"); i >= 0 {
		return fmt.Errorf(errBadHostChar, domain.ErrInvalidPattern, m.raw, host[i])
	}

	normalized, err := normalizeHost(host)
	if err != nil {
		return fmt.Errorf(errBadHost, domain.ErrInvalidPattern, m.raw, err)
	}
	m.host = normalized
	return nil
}

func (m *Matcher) compilePath(path string) error {
	if strings.ContainsAny(path, " \t\r\n") {
		return fmt.Errorf(errBadPathChar, domain.ErrInvalidPattern, m.raw)
	}
	if path == "/*" {
		return nil
	}

	parts := strings.Split(path, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return fmt.Errorf(errCompilePathExpr, domain.ErrInvalidPattern, m.raw, err)
	}
	m.path = re
	return nil
}

// Matches reports whether u is matched by the pattern.
func (m *Matcher) Matches(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if m.all {
		_, ok := allURLSchemes[scheme]
		return ok
	}
	if !m.matchScheme(scheme) {
		return false
	}
	if !m.matchHost(u) {
		return false
	}
	if m.path == nil {
		return true
	}
	return m.path.MatchString(matchTarget(u))
}

func (m *Matcher) matchScheme(scheme string) bool {
	if m.scheme == "*" {
		_, ok := wildcardSchemes[scheme]
		return ok
	}
	return m.scheme == scheme
}

func (m *Matcher) matchHost(u *url.URL) bool {
	if m.emptyHost {
		return u.Host == ""
	}
	if m.scope == domain.HostAny {
		return true
	}
	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return false
	}
	if host == m.host {
		return true
	}
	return m.scope == domain.HostSubdomains && strings.HasSuffix(host, "."+m.host)
}

// Scope implements domain.URLPattern.
func (m *Matcher) Scope() (string, domain.HostScope) {
	return m.host, m.scope
}

// String returns the source pattern.
func (m *Matcher) String() string { return m.raw }

// matchTarget is the string a path pattern is matched against.
func matchTarget(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" || u.ForceQuery {
		p += "?" + u.RawQuery
	}
	return p
}

// NormalizeHost lower-cases host, strips a trailing dot and converts it to
// its ASCII (punycode) form. It is exported so that indexes can key hosts the
// same way matchers compare them.
func NormalizeHost(host string) (string, error) {
	return normalizeHost(host)
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(host, ".")
	if isASCII(host) {
		return strings.ToLower(host), nil
	}
	return hostProfile.ToASCII(host)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

var _ domain.URLPattern = (*Matcher)(nil)
