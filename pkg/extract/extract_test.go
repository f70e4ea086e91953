package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/common"
)

func findMention(t *testing.T, mentions []common.Mention, raw string) common.Mention {
	t.Helper()
	for _, m := range mentions {
		if m.RawText == raw {
			return m
		}
	}
	require.Failf(t, "mention not found", "%q not in %v", raw, mentions)
	return common.Mention{}
}

func TestExtractFrontManSentence(t *testing.T) {
	text := "Juan Pérez es testaferro de Nicolás Maduro."
	e := New(DefaultRules())

	mentions := e.Mentions(text, "es")
	require.Len(t, mentions, 2)

	juan := findMention(t, mentions, "Juan Pérez")
	assert.Equal(t, common.MentionPerson, juan.Type)
	assert.Equal(t, CapitalizedSequenceConfidence, juan.ExtractionConfidence)
	assert.Equal(t, "juan perez", juan.NormalizedText)
	assert.Equal(t, "es", juan.Language)
	assert.Equal(t, "Juan Pérez", text[juan.Offsets.Start:juan.Offsets.End])

	maduro := findMention(t, mentions, "Nicolás Maduro")
	assert.Equal(t, common.MentionPerson, maduro.Type)
	assert.Equal(t, "Nicolás Maduro", text[maduro.Offsets.Start:maduro.Offsets.End])

	relations := e.Relations(text, "es")
	require.Len(t, relations, 1)
	assert.Equal(t, common.PatternFrontManOf, relations[0].Pattern)
	assert.Equal(t, 0.85, relations[0].Confidence)
	assert.Equal(t, "Juan Pérez", relations[0].SubjectText)
	assert.Equal(t, "Nicolás Maduro", relations[0].ObjectText)
	assert.Equal(t, text, relations[0].SentenceText)
}

func TestExtractOrgSuffixOverridesCapitalizedRule(t *testing.T) {
	text := "La empresa Derwick Associates S.A. firmó contratos en Caracas."
	mentions := New(DefaultRules()).Mentions(text, "es")

	org := findMention(t, mentions, "Derwick Associates S.A.")
	assert.Equal(t, common.MentionOrg, org.Type)
	assert.Equal(t, OrgSuffixConfidence, org.ExtractionConfidence)

	loc := findMention(t, mentions, "Caracas")
	assert.Equal(t, common.MentionLocation, loc.Type)
	assert.Equal(t, LocativeConfidence, loc.ExtractionConfidence)

	for _, m := range mentions {
		assert.NotEqual(t, "Derwick Associates", m.RawText)
		assert.NotEqual(t, "S", m.RawText)
		assert.NotEqual(t, "A", m.RawText)
	}
}

func TestExtractEnglishTemplates(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pattern string
		subject string
		object  string
		conf    float64
	}{
		{
			name:    "front man",
			text:    "John Smith is the front man for Acme Holdings Ltd.",
			pattern: common.PatternFrontManOf,
			subject: "John Smith",
			object:  "Acme Holdings Ltd.",
			conf:    0.85,
		},
		{
			name:    "officer",
			text:    "Mary Jones is a director of Globex Corporation.",
			pattern: common.PatternOfficerOf,
			subject: "Mary Jones",
			object:  "Globex Corporation",
			conf:    0.8,
		},
		{
			name:    "beneficial owner",
			text:    "Peter Brown, a banker, is the beneficial owner of Initech LLC.",
			pattern: common.PatternBeneficialOwnerOf,
			subject: "Peter Brown",
			object:  "Initech LLC",
			conf:    0.8,
		},
		{
			name:    "spanish officer",
			text:    "Carlos Díaz es presidente de Inversiones Orinoco C.A.",
			pattern: common.PatternOfficerOf,
			subject: "Carlos Díaz",
			object:  "Inversiones Orinoco C.A.",
			conf:    0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relations := New(DefaultRules()).Relations(tt.text, "en")
			require.Len(t, relations, 1)
			assert.Equal(t, tt.pattern, relations[0].Pattern)
			assert.Equal(t, tt.subject, relations[0].SubjectText)
			assert.Equal(t, tt.object, relations[0].ObjectText)
			assert.Equal(t, tt.conf, relations[0].Confidence)
		})
	}
}

func TestExtractCoMention(t *testing.T) {
	e := New(DefaultRules())

	relations := e.Relations("Diosdado Cabello y Tareck El Aissami viajaron juntos.", "es")
	require.Len(t, relations, 1)
	assert.Equal(t, common.PatternCoMentioned, relations[0].Pattern)
	assert.Equal(t, CoMentionConfidence, relations[0].Confidence)
	assert.Equal(t, "Diosdado Cabello", relations[0].SubjectText)
	assert.Equal(t, "Tareck El Aissami", relations[0].ObjectText)

	// A template match in the sentence suppresses the co-mention rule.
	relations = e.Relations("Alex Saab y Álvaro Pulido son testaferros de Nicolás Maduro.", "es")
	require.Len(t, relations, 1)
	assert.Equal(t, common.PatternFrontManOf, relations[0].Pattern)
	assert.Equal(t, "Álvaro Pulido", relations[0].SubjectText)
}

func TestExtractOrganizationKeyword(t *testing.T) {
	mentions := New(DefaultRules()).Mentions("Los fondos salieron del Banco de Venezuela.", "es")
	org := findMention(t, mentions, "Banco de Venezuela")
	assert.Equal(t, common.MentionOrg, org.Type)
	assert.Equal(t, CapitalizedSequenceConfidence, org.ExtractionConfidence)
}

func TestExtractLocationAtSentenceStart(t *testing.T) {
	mentions := New(DefaultRules()).Mentions("En Caracas se reunieron.", "es")
	require.Len(t, mentions, 1)
	assert.Equal(t, "Caracas", mentions[0].RawText)
	assert.Equal(t, common.MentionLocation, mentions[0].Type)
}

func TestExtractDeduplicatesCaseInsensitive(t *testing.T) {
	mentions := New(DefaultRules()).Mentions("Maduro habló ayer. MADURO respondió hoy. Maduro calló.", "es")
	require.Len(t, mentions, 1)
	assert.Equal(t, "Maduro", mentions[0].RawText)
	assert.Equal(t, 0, mentions[0].Offsets.Start)
}

func TestExtractEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t", "123 456 !!!"} {
		count := 0
		for range Extract(text, "es") {
			count++
		}
		assert.Zero(t, count, "text %q", text)
	}
}

func TestExtractIsRestartable(t *testing.T) {
	seq := Extract("Juan Pérez es testaferro de Nicolás Maduro. Luego viajó a Miami.", "es")

	collect := func() []Candidate {
		var out []Candidate
		for c := range seq {
			out = append(out, c)
		}
		return out
	}

	first := collect()
	second := collect()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestExtractStopsWhenConsumerStops(t *testing.T) {
	count := 0
	for range Extract("Juan Pérez es testaferro de Nicolás Maduro.", "es") {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestExtractOriginIsNotPartOfName(t *testing.T) {
	text := "Juan Pérez de Caracas es testaferro de Nicolás Maduro."
	e := New(DefaultRules())

	mentions := e.Mentions(text, "es")
	require.Len(t, mentions, 3)
	assert.Equal(t, common.MentionPerson, findMention(t, mentions, "Juan Pérez").Type)
	caracas := findMention(t, mentions, "Caracas")
	assert.Equal(t, common.MentionLocation, caracas.Type)
	assert.Equal(t, LocativeConfidence, caracas.ExtractionConfidence)
	assert.Equal(t, common.MentionPerson, findMention(t, mentions, "Nicolás Maduro").Type)

	relations := e.Relations(text, "es")
	require.Len(t, relations, 1)
	assert.Equal(t, common.PatternFrontManOf, relations[0].Pattern)
	assert.Equal(t, "Juan Pérez", relations[0].SubjectText)
	assert.Equal(t, "Nicolás Maduro", relations[0].ObjectText)
}

func TestExtractStripsLeadingDiscourseWords(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "Ayer Juan Pérez se reunió con fiscales.", want: "Juan Pérez"},
		{text: "Hoy Juan Pérez declaró.", want: "Juan Pérez"},
		{text: "Luego Juan Pérez viajó.", want: "Juan Pérez"},
		{text: "Entonces Juan Pérez firmó.", want: "Juan Pérez"},
		{text: "Yesterday Juan Pérez resigned.", want: "Juan Pérez"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			mentions := New(DefaultRules()).Mentions(tt.text, "es")
			require.Len(t, mentions, 1)
			assert.Equal(t, tt.want, mentions[0].RawText)
			assert.Equal(t, common.MentionPerson, mentions[0].Type)
		})
	}
}
