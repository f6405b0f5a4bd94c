package evaluator

import (
	"net/url"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
)

// walk evaluates one list kind over every profile of snap. A whitelist match
// in any profile wins over a blacklist match in any profile.
func walk(snap *rulelist.Snapshot, kind domain.ListKind, u *url.URL, t domain.ResourceType) domain.Decision {
	if snap == nil {
		return domain.PassDecision()
	}
	for slot, list := range snap.Lists {
		if r, ok := list.Match(kind, domain.Whitelist, u, t); ok {
			return domain.Decision{Action: domain.ActionPass, Slot: slot, Rule: r.Raw}
		}
	}
	for slot, list := range snap.Lists {
		r, ok := list.Match(kind, domain.Blacklist, u, t)
		if !ok {
			continue
		}
		d := domain.Decision{Slot: slot, Rule: r.Raw}
		switch kind {
		case domain.ListRedirect:
			d.Action = domain.ActionRedirect
			d.Target = r.Target
		default:
			d.Action = domain.ActionBlock
		}
		return d
	}
	return domain.PassDecision()
}
