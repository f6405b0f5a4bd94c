package rulelist

import (
	"net/url"
	"sort"
	"strings"

	"github.com/armon/go-radix"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/pattern"
)

// hostEntry holds the positions of host-scoped rules under one host key.
type hostEntry struct {
	exact      []int
	subdomains []int
}

// Sublist is one of the four ordered rule lists of a RuleList, together with
// a host index over it. Lookups return the same rule a front-to-back scan of
// the list would.
//
// Index layout:
//   - rules whose pattern can match any host are kept in a plain position list
//   - host-scoped rules live in a radix tree keyed by reversed host labels
//     ("www.example.com" -> "com.example.www."), so every suffix domain of a
//     request host is a prefix of its key
//   - a Bloom filter over the tree keys lets most hosts skip the tree walk
//
// A Sublist is immutable once built.
type Sublist struct {
	rules []domain.Rule
	any   []int
	tree  *radix.Tree
	bloom BloomFilter
}

func buildSublist(rules []domain.Rule, factory BloomFactory, fpRate float64) *Sublist {
	s := &Sublist{rules: rules, tree: radix.New()}

	var scoped uint64
	for i, r := range rules {
		host, scope := r.Pattern.Scope()
		if scope == domain.HostAny || host == "" {
			s.any = append(s.any, i)
			continue
		}
		key := hostKey(host)
		var e *hostEntry
		if v, ok := s.tree.Get(key); ok {
			e = v.(*hostEntry)
		} else {
			e = &hostEntry{}
			s.tree.Insert(key, e)
			scoped++
		}
		if scope == domain.HostSubdomains {
			e.subdomains = append(e.subdomains, i)
		} else {
			e.exact = append(e.exact, i)
		}
	}

	if factory != nil && scoped > 0 {
		s.bloom = factory.New(scoped, fpRate)
		s.tree.Walk(func(k string, _ interface{}) bool {
			s.bloom.Add([]byte(k))
			return false
		})
	}
	return s
}

// Len returns the number of rules in the list.
func (s *Sublist) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns a copy of the rules in file order.
func (s *Sublist) Rules() []domain.Rule {
	if s == nil {
		return nil
	}
	return append([]domain.Rule(nil), s.rules...)
}

// First returns the first rule, in file order, that applies to u and t.
func (s *Sublist) First(u *url.URL, t domain.ResourceType) (domain.Rule, bool) {
	if s == nil || len(s.rules) == 0 {
		return domain.Rule{}, false
	}
	for _, i := range s.candidates(u) {
		if s.rules[i].AppliesTo(u, t) {
			return s.rules[i], true
		}
	}
	return domain.Rule{}, false
}

// candidates returns the positions of every rule that could match u, in
// ascending order.
func (s *Sublist) candidates(u *url.URL) []int {
	host, err := pattern.NormalizeHost(u.Hostname())
	if err != nil || host == "" || s.tree.Len() == 0 || !s.mightContain(host) {
		return s.any
	}

	key := hostKey(host)
	var scoped []int
	s.tree.WalkPath(key, func(k string, v interface{}) bool {
		e := v.(*hostEntry)
		if k == key {
			scoped = append(scoped, e.exact...)
		}
		scoped = append(scoped, e.subdomains...)
		return false
	})
	if len(scoped) == 0 {
		return s.any
	}

	out := make([]int, 0, len(scoped)+len(s.any))
	out = append(out, s.any...)
	out = append(out, scoped...)
	sort.Ints(out)
	return out
}

// mightContain tests the host key and the key of every parent domain against
// the Bloom filter, most specific first.
func (s *Sublist) mightContain(host string) bool {
	if s.bloom == nil {
		return true
	}
	h := host
	for {
		if s.bloom.MightContain([]byte(hostKey(h))) {
			return true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			return false
		}
		h = h[i+1:]
		if h == "" {
			return false
		}
	}
}

// hostKey reverses the labels of host and terminates the key with a dot, so
// that "example.com" is a key prefix of "www.example.com" but not of
// "badexample.com".
func hostKey(host string) string {
	labels := strings.Split(host, ".")
	var b strings.Builder
	b.Grow(len(host) + 1)
	for i := len(labels) - 1; i >= 0; i-- {
		b.WriteString(labels[i])
		b.WriteByte('.')
	}
	return b.String()
}
