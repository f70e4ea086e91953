package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityTypeFor(t *testing.T) {
	got, ok := IdentityTypeFor(MentionPerson)
	assert.True(t, ok)
	assert.Equal(t, IdentityPerson, got)

	got, ok = IdentityTypeFor(MentionOrg)
	assert.True(t, ok)
	assert.Equal(t, IdentityOrganization, got)

	_, ok = IdentityTypeFor(MentionLocation)
	assert.False(t, ok)
}

func TestReviewStatus(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	for _, s := range []ReviewStatus{StatusApproved, StatusRejected, StatusMerged, StatusAutoApproved} {
		assert.True(t, s.Terminal(), s)
	}
	assert.True(t, StatusApproved.Approving())
	assert.True(t, StatusAutoApproved.Approving())
	assert.False(t, StatusMerged.Approving())
	assert.False(t, StatusRejected.Approving())
}

func TestStableID(t *testing.T) {
	a := StableID("men", "art-1", "PERSON", "0", "10")
	assert.Equal(t, a, StableID("men", "art-1", "PERSON", "0", "10"))
	assert.NotEqual(t, a, StableID("men", "art-1", "PERSON", "0", "11"))
	assert.True(t, strings.HasPrefix(a, "men_"))
	assert.Len(t, a, len("men_")+24)

	// Separators keep part boundaries significant.
	assert.NotEqual(t, StableID("", "ab", "c"), StableID("", "a", "bc"))
}

func TestNewID(t *testing.T) {
	a, b := NewID("node"), NewID("node")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "node_"))
	assert.Len(t, NewID(""), 21)
}
