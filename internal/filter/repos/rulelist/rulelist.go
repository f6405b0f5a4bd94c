package rulelist

import (
	"net/url"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

// RuleList is one profile's compiled rules, split by list kind and class.
// It is immutable once built; reloads build a new RuleList.
type RuleList struct {
	BlockWhite    *Sublist
	BlockBlack    *Sublist
	RedirectWhite *Sublist
	RedirectBlack *Sublist
}

// EmptyRuleList returns a RuleList with no rules.
func EmptyRuleList() *RuleList {
	return NewRuleList(nil, nil, 0)
}

// NewRuleList sorts rules into the four sub-lists, keeping their relative
// order, and indexes each sub-list. factory may be nil to skip the Bloom
// prefilter.
func NewRuleList(rules []domain.Rule, factory BloomFactory, fpRate float64) *RuleList {
	var bw, bb, rw, rb []domain.Rule
	for _, r := range rules {
		switch {
		case r.List == domain.ListBlock && r.Class == domain.Whitelist:
			bw = append(bw, r)
		case r.List == domain.ListBlock:
			bb = append(bb, r)
		case r.Class == domain.Whitelist:
			rw = append(rw, r)
		default:
			rb = append(rb, r)
		}
	}
	return &RuleList{
		BlockWhite:    buildSublist(bw, factory, fpRate),
		BlockBlack:    buildSublist(bb, factory, fpRate),
		RedirectWhite: buildSublist(rw, factory, fpRate),
		RedirectBlack: buildSublist(rb, factory, fpRate),
	}
}

// Sublist returns the sub-list for a list kind and rule class.
func (l *RuleList) Sublist(kind domain.ListKind, class domain.RuleClass) *Sublist {
	if l == nil {
		return nil
	}
	switch {
	case kind == domain.ListBlock && class == domain.Whitelist:
		return l.BlockWhite
	case kind == domain.ListBlock:
		return l.BlockBlack
	case class == domain.Whitelist:
		return l.RedirectWhite
	default:
		return l.RedirectBlack
	}
}

// Match returns the first rule of the given sub-list applying to u and t.
func (l *RuleList) Match(kind domain.ListKind, class domain.RuleClass, u *url.URL, t domain.ResourceType) (domain.Rule, bool) {
	return l.Sublist(kind, class).First(u, t)
}

// Stats counts the rules per sub-list.
func (l *RuleList) Stats() ListStats {
	if l == nil {
		return ListStats{}
	}
	return ListStats{
		BlockWhite:    l.BlockWhite.Len(),
		BlockBlack:    l.BlockBlack.Len(),
		RedirectWhite: l.RedirectWhite.Len(),
		RedirectBlack: l.RedirectBlack.Len(),
	}
}
