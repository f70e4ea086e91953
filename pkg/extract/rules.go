package extract

import (
	"regexp"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

// Rule confidences.
const (
	CapitalizedSequenceConfidence = 0.65
	OrgSuffixConfidence           = 0.8
	LocativeConfidence            = 0.7
	CoMentionConfidence           = 0.6
)

// RelationTemplate is a verb-phrase template matched against the text
// between two names in one sentence. Phrases are matched against the
// normalized (lower-cased, diacritic-free) connecting text.
type RelationTemplate struct {
	Pattern    string
	Confidence float64
	Phrases    []*regexp.Regexp
}

// Rules holds the data tables driving extraction.
type Rules struct {
	// Legal-entity suffixes, as regular expression fragments.
	OrgSuffixes []string
	// Keywords that turn a capitalized sequence into an organization.
	OrgKeywords []string
	// Lower-case words allowed inside a name ("de", "del").
	NameConnectors []string
	// Leading words stripped from a capitalized sequence ("El", "Según").
	LeadingStopwords []string
	// Prepositions that introduce a location.
	LocativePrepositions []string
	// Known location names.
	Locations []string
	// Words joining two co-mentioned names.
	Conjunctions []string
	// A capitalized sequence longer than this many name tokens is an
	// organization.
	MaxPersonTokens int

	Templates []RelationTemplate
}

// appositive allows a short comma-delimited description between the subject
// and the verb phrase ("Juan Pérez, empresario, es ...").
const appositive = `^(?:,[^,]{0,80},)?\s*`

// DefaultRules returns the built-in Spanish/English rule tables.
func DefaultRules() Rules {
	return Rules{
		OrgSuffixes: []string{
			`S\.\s?A\.\s?S\.`,
			`S\.\s?A\.\s?C\.\s?A\.`,
			`S\.\s?A\.`,
			`C\.\s?A\.`,
			`S\.\s?R\.\s?L\.`,
			`S\.\s?L\.`,
			`S\.\s?de\s+R\.\s?L\.`,
			`L\.\s?L\.\s?C\.`,
			`LLC`,
			`Inc\.?`,
			`Ltd\.?`,
			`Limited`,
			`Corporation`,
			`Corp\.?`,
			`GmbH`,
			`PLC`,
			`N\.\s?V\.`,
			`B\.\s?V\.`,
		},
		OrgKeywords: []string{
			"banco", "bank", "ministerio", "ministry", "gobierno", "government",
			"corporacion", "corporation", "compania", "company", "empresa",
			"fundacion", "foundation", "asociacion", "association", "partido", "party",
			"grupo", "group", "consorcio", "holding", "holdings", "petroleos",
			"industrias", "industries", "servicios", "services", "inversiones",
			"investments", "tribunal", "court", "fiscalia", "consejo", "council",
			"comision", "commission", "asamblea", "assembly", "fuerza", "fuerzas",
			"guardia", "ejercito", "army", "sebin", "dgcim", "universidad", "university",
			"instituto", "institute", "agencia", "agency", "departamento", "department",
		},
		NameConnectors: []string{"de", "del", "la", "las", "los", "da", "das", "do", "dos", "van", "von", "der", "of"},
		LeadingStopwords: []string{
			"el", "la", "los", "las", "un", "una", "the", "a", "an", "segun", "according",
			"ademas", "sin", "embargo", "tambien", "asimismo", "este", "esta", "estos",
			"estas", "en", "in", "por", "for", "con", "with", "however", "also", "this",
			"ayer", "hoy", "luego", "entonces", "mientras", "aunque", "pero", "cuando",
			"today", "yesterday", "meanwhile", "then",
		},
		LocativePrepositions: []string{"en", "de", "desde", "hacia", "hasta", "a", "para", "in", "from", "to", "at", "into"},
		Locations: []string{
			"Venezuela", "Caracas", "Maracaibo", "Valencia", "Barquisimeto", "Zulia", "Miranda",
			"Carabobo", "Táchira", "Mérida", "Anzoátegui", "Bolívar", "Apure", "Falcón",
			"Colombia", "Bogotá", "Cúcuta", "Panamá", "Miami", "Florida", "Madrid", "España", "Spain",
			"Andorra", "Suiza", "Switzerland", "Cuba", "La Habana", "Havana", "Rusia", "Russia",
			"Irán", "Iran", "China", "Turquía", "Turkey", "Estados Unidos", "United States",
			"México", "Mexico", "Ecuador", "Perú", "Peru", "Brasil", "Brazil", "Argentina", "Chile",
			"Nueva York", "New York", "Washington", "Londres", "London", "Lisboa", "Lisbon",
			"Portugal", "República Dominicana", "Dominican Republic", "Aruba", "Curazao", "Curaçao",
			"Islas Vírgenes Británicas", "British Virgin Islands", "Hong Kong", "Dubái", "Dubai",
		},
		Conjunctions:    []string{"y", "e", "and", "&"},
		MaxPersonTokens: 4,
		Templates: []RelationTemplate{
			{
				Pattern:    common.PatternFrontManOf,
				Confidence: 0.85,
				Phrases: []*regexp.Regexp{
					regexp.MustCompile(appositive + `(?:(?:es|son|fue|fueron|era|eran|seria|serian|habria sido|actua como|actuo como|como)\s+)?(?:(?:el|la|los|las|un|una|unos|unas)\s+)?(?:(?:presunt[oa]s?|supuest[oa]s?|principal(?:es)?|conocid[oa]s?|reconocid[oa]s?)\s+)?testaferr[oa]s?\s+(?:de|del)(?:\s+[a-z]+){0,2}$`),
					regexp.MustCompile(appositive + `(?:(?:is|are|was|were|acted as|acts as|served as|serves as|as)\s+)?(?:(?:a|an|the)\s+)?(?:(?:alleged|suspected|reputed|known)\s+)?front[- ]?(?:man|men|person)\s+(?:of|for)(?:\s+the)?$`),
				},
			},
			{
				Pattern:    common.PatternOfficerOf,
				Confidence: 0.8,
				Phrases: []*regexp.Regexp{
					regexp.MustCompile(appositive + `(?:(?:es|fue|era|como)\s+)?(?:(?:el|la|un|una)\s+)?(?:director|directora|presidente|presidenta|vicepresidente|vicepresidenta|gerente|directivo|directiva|representante legal|apoderado|apoderada|administrador|administradora|funcionario|funcionaria)(?:\s+(?:general|ejecutivo|ejecutiva|financiero|financiera))?\s+(?:de|del)(?:\s+[a-z]+){0,2}$`),
					regexp.MustCompile(appositive + `(?:(?:is|was|as)\s+)?(?:(?:a|an|the)\s+)?(?:(?:former|current|chief)\s+)?(?:director|officer|president|vice president|chairman|chairwoman|ceo|cfo|manager|executive|board member|legal representative)\s+(?:of|at)(?:\s+the)?$`),
				},
			},
			{
				Pattern:    common.PatternBeneficialOwnerOf,
				Confidence: 0.8,
				Phrases: []*regexp.Regexp{
					regexp.MustCompile(appositive + `(?:(?:es|fue|era|como)\s+)?(?:(?:el|la|un|una)\s+)?(?:beneficiari[oa] final|propietari[oa]|dueno|duena|accionista mayoritari[oa]|accionista)\s+(?:de|del)(?:\s+[a-z]+){0,2}$`),
					regexp.MustCompile(appositive + `(?:(?:is|was|as)\s+)?(?:(?:a|an|the)\s+)?(?:(?:ultimate|real|true)\s+)?(?:beneficial owner|owner|majority shareholder|shareholder)\s+(?:of|in)(?:\s+the)?$`),
				},
			},
		},
	}
}

// compiled is the lookup form of Rules used during one extraction.
type compiled struct {
	rules       Rules
	suffixRe    *regexp.Regexp
	orgKeywords map[string]struct{}
	connectors  map[string]struct{}
	leading     map[string]struct{}
	locatives   map[string]struct{}
	locations   map[string]struct{}
	conj        map[string]struct{}
}

func keySet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[textnorm.Key(v)] = struct{}{}
	}
	return set
}

func compile(r Rules) *compiled {
	suffixes := ""
	for i, s := range r.OrgSuffixes {
		if i > 0 {
			suffixes += "|"
		}
		suffixes += s
	}
	var suffixRe *regexp.Regexp
	if suffixes != "" {
		// Anchored at the start of the text that follows a capitalized
		// sequence.
		suffixRe = regexp.MustCompile(`^,?\s+(?:` + suffixes + `)`)
	}
	if r.MaxPersonTokens <= 0 {
		r.MaxPersonTokens = 4
	}
	return &compiled{
		rules:       r,
		suffixRe:    suffixRe,
		orgKeywords: keySet(r.OrgKeywords),
		connectors:  keySet(r.NameConnectors),
		leading:     keySet(r.LeadingStopwords),
		locatives:   keySet(r.LocativePrepositions),
		locations:   keySet(r.Locations),
		conj:        keySet(r.Conjunctions),
	}
}
