package parsers

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

func TestParseRule_Shapes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		category   domain.SigilCategory
		wantClass  domain.RuleClass
		wantList   domain.ListKind
		wantTarget string
		wantTypes  domain.TypeSet
		wantPat    string
	}{
		{
			name:      "plain blacklist block rule",
			body:      "https://bad.net/*",
			wantClass: domain.Blacklist,
			wantList:  domain.ListBlock,
			wantPat:   "https://bad.net/*",
		},
		{
			name:      "whitelist block rule",
			body:      "!https://*.ads.net/*",
			wantClass: domain.Whitelist,
			wantList:  domain.ListBlock,
			wantPat:   "https://*.ads.net/*",
		},
		{
			name:       "redirect via target",
			body:       "https://bad.net/*>https://safe.net/",
			wantClass:  domain.Blacklist,
			wantList:   domain.ListRedirect,
			wantTarget: "https://safe.net/",
			wantPat:    "https://bad.net/*",
		},
		{
			name:      "type filter",
			body:      "*://*.cdn.example/*@script|image",
			wantClass: domain.Blacklist,
			wantList:  domain.ListBlock,
			wantTypes: domain.NewTypeSet(domain.ResourceScript, domain.ResourceImage),
			wantPat:   "*://*.cdn.example/*",
		},
		{
			name:      "single type filter",
			body:      "*://tracker.example/*@xhr",
			wantClass: domain.Blacklist,
			wantList:  domain.ListBlock,
			wantTypes: domain.NewTypeSet(domain.ResourceXHR),
			wantPat:   "*://tracker.example/*",
		},
		{
			name:      "unknown types dropped",
			body:      "*://tracker.example/*@font|image",
			wantClass: domain.Blacklist,
			wantList:  domain.ListBlock,
			wantTypes: domain.NewTypeSet(domain.ResourceImage),
			wantPat:   "*://tracker.example/*",
		},
		{
			name:      "empty attribute means no filter",
			body:      "*://tracker.example/*@",
			wantClass: domain.Blacklist,
			wantList:  domain.ListBlock,
			wantPat:   "*://tracker.example/*",
		},
		{
			name:       "whitelist redirect with filter",
			body:       "!*://*.bad.net/keep/*>https://ignored.example/@document",
			wantClass:  domain.Whitelist,
			wantList:   domain.ListRedirect,
			wantTarget: "",
			wantTypes:  domain.NewTypeSet(domain.ResourceDocument),
			wantPat:    "*://*.bad.net/keep/*",
		},
		{
			name:      "redirect sigil whitelist without target",
			body:      "!https://bad.net/ok/*",
			category:  domain.SigilRedirect,
			wantClass: domain.Whitelist,
			wantList:  domain.ListRedirect,
			wantPat:   "https://bad.net/ok/*",
		},
		{
			name:       "redirect sigil with target",
			body:       "https://bad.net/*>https://safe.net/",
			category:   domain.SigilRedirect,
			wantClass:  domain.Blacklist,
			wantList:   domain.ListRedirect,
			wantTarget: "https://safe.net/",
			wantPat:    "https://bad.net/*",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRule(tt.body, tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClass, r.Class)
			assert.Equal(t, tt.wantList, r.List)
			assert.Equal(t, tt.wantTarget, r.Target)
			assert.Equal(t, tt.wantTypes, r.Types)
			assert.Equal(t, tt.wantPat, r.Pattern.String())
			assert.Equal(t, tt.body, r.Raw)
			assert.NoError(t, r.Validate())
		})
	}
}

func TestParseRule_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		category domain.SigilCategory
	}{
		{"empty", "   ", domain.SigilAuto},
		{"whitelist marker only", "!", domain.SigilAuto},
		{"malformed pattern", "bad.net/*", domain.SigilAuto},
		{"only unknown types", "https://bad.net/*@font|media", domain.SigilAuto},
		{"relative target", "https://bad.net/*>/safe", domain.SigilAuto},
		{"empty target", "https://bad.net/*>", domain.SigilAuto},
		{"redirect sigil without target", "https://bad.net/*", domain.SigilRedirect},
		{"empty pattern before target", ">https://safe.net/", domain.SigilAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRule(tt.body, tt.category)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidPattern), "want ErrInvalidPattern, got %v", err)
		})
	}
}

func TestParseRule_RedirectNeverInBlockList(t *testing.T) {
	bodies := []string{
		"https://a.example/*>https://b.example/",
		"*://*.a.example/*>https://b.example/@image",
		"https://a.example/*",
		"!https://a.example/*",
	}
	for _, b := range bodies {
		r, err := ParseRule(b, domain.SigilAuto)
		require.NoError(t, err)
		if r.Target != "" {
			assert.Equal(t, domain.ListRedirect, r.List, "rule %q with target must be a redirect rule", b)
		}
		if r.List == domain.ListBlock {
			assert.Empty(t, r.Target)
		}
	}
}

func TestParseRule_MatchesCompiledPattern(t *testing.T) {
	r, err := ParseRule("!https://*.ads.net/*", domain.SigilAuto)
	require.NoError(t, err)
	u, _ := url.Parse("https://cdn.ads.net/x.js")
	assert.True(t, r.AppliesTo(u, domain.ResourceScript))
}

func TestIsAbsoluteURL(t *testing.T) {
	assert.True(t, isAbsoluteURL("https://safe.net/"))
	assert.True(t, isAbsoluteURL("data:text/plain,blocked"))
	assert.False(t, isAbsoluteURL(""))
	assert.False(t, isAbsoluteURL("safe.net"))
	assert.False(t, isAbsoluteURL("https://safe .net/"))
}
