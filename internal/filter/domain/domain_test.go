package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hostPattern matches any URL whose host equals host.
type hostPattern struct{ host string }

func (p hostPattern) Matches(u *url.URL) bool    { return u.Hostname() == p.host }
func (p hostPattern) Scope() (string, HostScope) { return p.host, HostExact }
func (p hostPattern) String() string             { return "*://" + p.host + "/*" }

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestResourceType_RoundTrip(t *testing.T) {
	for _, rt := range AllResourceTypes() {
		got, err := ParseResourceType(strings.ToUpper(rt.String()))
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	}
	got, err := ParseResourceType("xmlhttprequest")
	require.NoError(t, err)
	assert.Equal(t, ResourceXHR, got)

	_, err = ParseResourceType("font")
	assert.Error(t, err)
	assert.Equal(t, "ResourceType(42)", ResourceType(42).String())
}

func TestTypeSet(t *testing.T) {
	var empty TypeSet
	assert.True(t, empty.Empty())
	assert.Equal(t, "", empty.String())

	s := NewTypeSet(ResourceScript, ResourceImage)
	assert.False(t, s.Empty())
	assert.True(t, s.Contains(ResourceScript))
	assert.True(t, s.Contains(ResourceImage))
	assert.False(t, s.Contains(ResourceDocument))
	assert.Equal(t, []ResourceType{ResourceScript, ResourceImage}, s.Types())
	assert.Equal(t, "script|image", s.String())
}

func TestRule_AppliesTo_TypeFilter(t *testing.T) {
	u := mustURL(t, "https://ads.example/x.js")

	noFilter := Rule{Pattern: hostPattern{"ads.example"}}
	for _, rt := range AllResourceTypes() {
		assert.True(t, noFilter.AppliesTo(u, rt), "no filter must match %s", rt)
	}

	filtered := Rule{Pattern: hostPattern{"ads.example"}, Types: NewTypeSet(ResourceScript, ResourceImage)}
	assert.True(t, filtered.AppliesTo(u, ResourceScript))
	assert.True(t, filtered.AppliesTo(u, ResourceImage))
	assert.False(t, filtered.AppliesTo(u, ResourceDocument))

	assert.False(t, noFilter.AppliesTo(mustURL(t, "https://other.example/"), ResourceScript))
}

func TestRule_Validate(t *testing.T) {
	p := hostPattern{"a.example"}
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"block blacklist", Rule{Pattern: p, List: ListBlock}, false},
		{"block whitelist", Rule{Pattern: p, List: ListBlock, Class: Whitelist}, false},
		{"redirect blacklist", Rule{Pattern: p, List: ListRedirect, Target: "https://safe.example/"}, false},
		{"redirect whitelist without target", Rule{Pattern: p, List: ListRedirect, Class: Whitelist}, false},
		{"missing pattern", Rule{List: ListBlock}, true},
		{"block with target", Rule{Pattern: p, List: ListBlock, Target: "https://x/"}, true},
		{"redirect blacklist without target", Rule{Pattern: p, List: ListRedirect}, true},
		{"bad list", Rule{Pattern: p, List: ListKind(9)}, true},
		{"bad class", Rule{Pattern: p, Class: RuleClass(9)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSigilCategory(t *testing.T) {
	c, err := ParseSigilCategory(" Auto ")
	require.NoError(t, err)
	assert.Equal(t, SigilAuto, c)
	c, err = ParseSigilCategory("redirect")
	require.NoError(t, err)
	assert.Equal(t, SigilRedirect, c)
	_, err = ParseSigilCategory("block")
	assert.Error(t, err)
}

func TestDecision_HostResponse(t *testing.T) {
	assert.Equal(t, HostResponse{}, PassDecision().HostResponse())
	assert.Equal(t, HostResponse{Cancel: true}, Decision{Action: ActionBlock}.HostResponse())
	assert.Equal(t, HostResponse{RedirectURL: "https://safe.net/"},
		Decision{Action: ActionRedirect, Target: "https://safe.net/"}.HostResponse())

	var zero Decision
	assert.Equal(t, ActionPass, zero.Action)
	assert.Equal(t, HostResponse{}, zero.HostResponse())
}

func TestRequestEvent(t *testing.T) {
	ev, err := NewRequestEvent("https://cdn.ads.net/x.js", "script")
	require.NoError(t, err)
	assert.Equal(t, ResourceScript, ev.Type)

	u, err := ev.ParsedURL()
	require.NoError(t, err)
	assert.Equal(t, "cdn.ads.net", u.Host)

	_, err = RequestEvent{URL: "/relative"}.ParsedURL()
	assert.Error(t, err)
	_, err = NewRequestEvent("https://x/", "beacon")
	assert.Error(t, err)
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "whitelist", Whitelist.String())
	assert.Equal(t, "redirect", ListRedirect.String())
	assert.Equal(t, "block", ActionBlock.String())
	assert.Equal(t, "alias", ReferenceAlias.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Contains(t, ProfileState(77).String(), "77")
}

func TestErrors_Wrap(t *testing.T) {
	err := fmt.Errorf("line 3: %w", ErrInvalidPattern)
	assert.True(t, errors.Is(err, ErrInvalidPattern))
	assert.False(t, errors.Is(err, ErrFetchExhausted))
}
