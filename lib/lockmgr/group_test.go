package lockmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupResolver(t *testing.T) {
	resolver := NewGroupResolver(GroupMapping{
		"magazine_issues": {"basic-info": "issue-metadata", "cover-config": "issue-metadata"},
		"cms_sections":    {"hero": "homepage", "about": "homepage"},
		AnyCollection:     {"seo": "metadata"},
	})

	tests := []struct {
		name                         string
		collection, resourceID, hint string
		want                         Resolution
	}{
		{"MappedHint", "magazine_issues", "issue-7", "basic-info", Resolution{"issue-7#issue-metadata", "issue-metadata"}},
		{"SameGroupOtherField", "magazine_issues", "issue-7", "cover-config", Resolution{"issue-7#issue-metadata", "issue-metadata"}},
		{"UnmappedHintIsGroup", "magazine_issues", "issue-7", "issue-metadata", Resolution{"issue-7#issue-metadata", "issue-metadata"}},
		{"WildcardHint", "digital_cards", "card-1", "seo", Resolution{"card-1#metadata", "metadata"}},
		{"MappedResource", "cms_sections", "about", "", Resolution{"homepage", "homepage"}},
		{"MappingIsPerCollection", "magazine_issues", "hero", "", Resolution{ResourceKey: "hero"}},
		{"Identity", "magazine_sections", "sec-42", "", Resolution{ResourceKey: "sec-42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.Resolve(tt.collection, tt.resourceID, tt.hint))
		})
	}
}

func TestNilGroupResolverIsIdentity(t *testing.T) {
	var resolver *GroupResolver
	assert.Equal(t, Resolution{ResourceKey: "x"}, resolver.Resolve("c", "x", ""))
	assert.Equal(t, Resolution{ResourceKey: "x#g", LockGroup: "g"}, resolver.Resolve("c", "x", "g"))
}

func TestParseGroupMapping(t *testing.T) {
	mapping, err := ParseGroupMapping("magazine_issues:basic-info=issue-metadata, cms_sections:hero=homepage,seo=metadata")
	require.NoError(t, err)
	assert.Equal(t, GroupMapping{
		"magazine_issues": {"basic-info": "issue-metadata"},
		"cms_sections":    {"hero": "homepage"},
		AnyCollection:     {"seo": "metadata"},
	}, mapping)

	resolver := NewGroupResolver(mapping)
	assert.Equal(t, "*:seo=metadata,cms_sections:hero=homepage,magazine_issues:basic-info=issue-metadata", resolver.String())

	empty, err := ParseGroupMapping("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"c:field", "c:=g", ":f=g", "c:f="} {
		_, err := ParseGroupMapping(bad)
		assert.Error(t, err, bad)
	}
}

func TestLeasePolicy(t *testing.T) {
	overrides, err := ParseLeaseOverrides("magazine_issues=30m, cms_sections=1h")
	require.NoError(t, err)

	policy := LeasePolicy{Default: 10 * time.Minute, Overrides: overrides}
	assert.Equal(t, "30m0s", policy.For("magazine_issues").String())
	assert.Equal(t, "1h0m0s", policy.For("cms_sections").String())
	assert.Equal(t, "10m0s", policy.For("other").String())

	for _, bad := range []string{"x", "x=abc", "x=-1m", "=5m"} {
		_, err := ParseLeaseOverrides(bad)
		assert.Error(t, err, bad)
	}
}
