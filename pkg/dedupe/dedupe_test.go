package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

func mention(id string, t common.MentionType, raw string) common.Mention {
	return common.Mention{ID: id, Type: t, RawText: raw, NormalizedText: textnorm.Key(raw)}
}

func TestFindDuplicates(t *testing.T) {
	target := mention("m1", common.MentionPerson, "Nicolás Maduro")
	candidates := []common.Mention{
		mention("m1", common.MentionPerson, "Nicolás Maduro"),
		mention("m3", common.MentionPerson, "Nicolás Maduro Moros"),
		mention("m4", common.MentionPerson, "Juan Pérez"),
		mention("m2", common.MentionPerson, "NICOLAS MADURO"),
	}

	got := New(DefaultLists(), DefaultMinSimilarity).FindDuplicates(target, candidates)
	require.Len(t, got, 2)

	assert.Equal(t, "m2", got[0].MentionID)
	assert.Equal(t, 1.0, got[0].Similarity)
	assert.Equal(t, "same normalized text", got[0].Reason)

	assert.Equal(t, "m3", got[1].MentionID)
	assert.InDelta(t, 0.94, got[1].Similarity, 1e-9)
	assert.Contains(t, got[1].Reason, "jaro-winkler")

	strict := New(DefaultLists(), 0.95).FindDuplicates(target, candidates)
	require.Len(t, strict, 1)
	assert.Equal(t, "m2", strict[0].MentionID)
}

func TestFindDuplicatesUsesNormalizedText(t *testing.T) {
	a := common.Mention{ID: "a", RawText: "El Aissami", NormalizedText: "tareck el aissami"}
	b := common.Mention{ID: "b", RawText: "Tareck El Aissami", NormalizedText: "tareck el aissami"}

	got := New(DefaultLists(), 0).FindDuplicates(a, []common.Mention{b})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Similarity)
}

func TestFlagForReview(t *testing.T) {
	d := New(DefaultLists(), DefaultMinSimilarity)

	tests := []struct {
		name string
		m    common.Mention
		want []string
	}{
		{"too short", mention("", common.MentionPerson, "x"), []string{IssueTooShort}},
		{"single capital", mention("", common.MentionPerson, "X"), []string{IssueTooShort, IssueAcronym}},
		{"stopword", mention("", common.MentionPerson, "Según"), []string{IssueStopword}},
		{"short stopword", mention("", common.MentionPerson, "Y"), []string{IssueTooShort, IssueStopword}},
		{"acronym", mention("", common.MentionPerson, "CNN"), []string{IssueAcronym}},
		{"place", mention("", common.MentionPerson, "Caracas"), []string{IssueGazetteer}},
		{"place as org", mention("", common.MentionOrg, "Caracas"), nil},
		{"acronym as org", mention("", common.MentionOrg, "CNN"), nil},
		{"clean person", mention("", common.MentionPerson, "Juan Pérez"), nil},
		{"caps with vowels", mention("", common.MentionPerson, "MADURO"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.FlagForReview(tt.m))
		})
	}
}

func TestMergeMentions(t *testing.T) {
	primary := mention("p", common.MentionPerson, "Maduro")
	dup := mention("d", common.MentionPerson, "Nicolás Maduro")

	merged := MergeMentions(primary, dup)
	assert.Equal(t, "p", merged.ID)
	assert.Equal(t, "Nicolás Maduro", merged.RawText)
	assert.Equal(t, "nicolas maduro", merged.NormalizedText)

	tie := MergeMentions(mention("p", common.MentionPerson, "Pérez"), mention("d", common.MentionPerson, "Perez"))
	assert.Equal(t, "Pérez", tie.RawText)
}
