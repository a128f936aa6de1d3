package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapLemmatizer returns the mapped lemma, or the word itself when unmapped.
type mapLemmatizer map[string]string

func (m mapLemmatizer) Lemma(word string) string {
	if l, ok := m[word]; ok {
		return l
	}
	return word
}

var stubLemmas = mapLemmatizer{
	"peacetalks": "peacetalk",
	"riots":      "riot",
	"forces":     "force",
	"protesters": "protester",
	"clashes":    "clash",
	"attacks":    "attack",
	"churches":   "church",
	"women":      "woman",
	"children":   "child",
	"prices":     "price",
	"gas":        "ga",
	"was":        "be",
	"news":       "new",
	"mens":       "men",
	"men":        "man",
	"wolves":     "wolf",
	"data":       "datum",
	"datum":      "data",
	"cities":     "city-state",
}

func stubNormalizer() *Normalizer {
	res := NewResources(englishStopwords, conflictVocabulary)
	res.Lemmatizer = stubLemmas
	return New(res)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"url and mention", "Check https://t.co/abc123 @reporter now", "check"},
		{"hashtag text kept", "#PeaceTalks resume", "peacetalk resume"},
		{"digits and punctuation", "Riots!!! in 2024, again...", "riot"},
		{"conflict vocabulary survives", "Security forces against the protesters", "security force protester"},
		{"stopwords dropped", "They were not there at all", ""},
		{"short tokens dropped", "go to it ok", ""},
		{"plural lemmas", "Clashes and attacks near churches", "clash attack near church"},
		{"irregular plural", "Women and children fled", "woman child fled"},
		{"lemma guard keeps short words", "gas prices", "gas price"},
		{"emoji become words", "Town on 🔥 tonight", "town fire tonight"},
		{"unicode lowercase", "ÉMEUTE À NAIROBI", "émeute nairobi"},
		{"invalid utf8", "\xc4#\x96AA0 riots", "riot"},
	}

	n := stubNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalize_LemmaGuard(t *testing.T) {
	n := stubNormalizer()

	// "news" -> "new" is accepted; "new" is its own lemma.
	assert.Equal(t, "new", n.Normalize("news"))
	// "mens" -> "men" is rejected because "men" lemmatizes further.
	assert.Equal(t, "mens", n.Normalize("mens"))
	// "data" and "datum" map to each other, so neither is substituted.
	assert.Equal(t, "data datum", n.Normalize("data datum"))
	// Lemmas that are not plain words are rejected.
	assert.Equal(t, "cities", n.Normalize("cities"))
}

func TestNormalize_NoLemmatizer(t *testing.T) {
	n := New(NewResources(englishStopwords, conflictVocabulary))
	assert.Equal(t, "clashes attacks", n.Normalize("Clashes and attacks"))
}

var idempotenceInputs = []string{
	"Protest planned tomorrow, violence expected",
	"BREAKING: 3 killed in #Kisumu clashes!! https://news.example/x @KenyaPolice",
	"Peace 🕊 and unity 🤝 across the counties",
	"houses, buses, glasses, gasses, quizzes, parties, ties",
	"men mens yes gas ht#tps://joined ",
	"The crises and analyses of the wolves",
	"ÇA VA? l'été à Mombasa",
	"\xc4#\x96AA0",
	"news data datum cities was",
	"Leaves fell as the police were leaving, axes and bases were found",
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, n := range []*Normalizer{stubNormalizer(), Default()} {
		for _, in := range idempotenceInputs {
			once := n.Normalize(in)
			assert.Equal(t, once, n.Normalize(once), "input %q", in)
		}
	}
}

func TestNormalize_InvalidUTF8(t *testing.T) {
	n := Default()
	assert.Equal(t, "", n.Normalize("\xc4#\x96AA0"))
	assert.Equal(t, "violence", n.Normalize("\xffviolence\xfe"))
}

func TestDefault_EnglishLemmas(t *testing.T) {
	require.NotNil(t, DefaultResources().Lemmatizer)

	n := Default()
	assert.Equal(t, "attack", n.Normalize("attacks"))
	assert.Equal(t, "church", n.Normalize("churches"))
	assert.Equal(t, "child", n.Normalize("children"))
}

func TestNormalizeAny_NonString(t *testing.T) {
	assert.Equal(t, "", NormalizeAny(nil))
	assert.Equal(t, "", NormalizeAny(42))
	assert.Equal(t, "violence", NormalizeAny("violence"))
}

func TestNew_InjectedResources(t *testing.T) {
	n := New(NewResources([]string{"peace", "calm"}, []string{"peace"}))

	// "peace" is allowlisted even though the stub lists it as a stopword.
	assert.Equal(t, "peace", n.Normalize("peace calm"))
}
