package sentiment

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubValence() *ValenceModel {
	return NewValenceModel(ValenceLexicon{
		Words:    map[string]float64{"good": 2.0, "bad": -2.0, "violence": -3.0, "peace": 2.5, "angry": -2.3},
		Boosters: map[string]float64{"very": 0.293},
		Emoji:    map[string]string{"🕊": "peace", "😡": "angry"},
	})
}

func TestInitialize_EmbeddedLexicons(t *testing.T) {
	require.NoError(t, Initialize())
	require.NoError(t, Initialize())

	pm, err := DefaultPolarityModel()
	require.NoError(t, err)
	vm, err := DefaultValenceModel()
	require.NoError(t, err)

	p, _ := pm.Analyze("violent terrible")
	assert.Less(t, p, 0.0)
	p, _ = pm.Analyze("peace reconciliation hope")
	assert.Greater(t, p, 0.0)
	assert.Less(t, vm.PolarityScores("Protest planned tomorrow, violence expected").Compound, -0.5)
	assert.Greater(t, vm.PolarityScores("Peace talks were a great success").Compound, 0.5)

	again, err := DefaultValenceModel()
	require.NoError(t, err)
	assert.Same(t, vm, again)
}

func TestDefaultPolarityLexicon_Coverage(t *testing.T) {
	require.NoError(t, Initialize())
	assert.Greater(t, len(defaultPolarity), 300)
	for _, w := range []string{"violence", "riot", "massacre", "peace", "justice", "brutal", "unjust"} {
		_, ok := defaultPolarity[w]
		assert.True(t, ok, "word %q", w)
	}
}

func TestParsePolarityLexicon(t *testing.T) {
	lex, err := ParsePolarityLexicon([]byte("# comment\n\nGood\t0.7\t0.6\t1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, PolarityEntry{Polarity: 0.7, Subjectivity: 0.6, Intensity: 1.0}, lex["good"])

	_, err = ParsePolarityLexicon([]byte("good\t0.7\n"))
	assert.Error(t, err)
	_, err = ParsePolarityLexicon([]byte("good\tx\t0.6\t1.0\n"))
	assert.Error(t, err)
}

func TestPolarityModel_Analyze(t *testing.T) {
	m := NewPolarityModel(PolarityLexicon{
		"good":      {Polarity: 0.7, Subjectivity: 0.6, Intensity: 1},
		"bad":       {Polarity: -0.7, Subjectivity: 0.6, Intensity: 1},
		"extremely": {Polarity: 0, Subjectivity: 0.7, Intensity: 1.5},
	})

	tests := []struct {
		name string
		in   string
		pol  float64
		subj float64
	}{
		{"empty", "", 0, 0},
		{"no lexicon words", "meeting nairobi", 0, 0},
		{"single word", "good", 0.7, 0.6},
		{"average", "good bad", 0, 0.6},
		{"intensifier", "extremely good", 1, 0.9},
		{"negation", "not good", -0.35, 0.6},
		{"trailing modifier assessed alone", "extremely", 0, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol, subj := m.Analyze(tt.in)
			assert.InDelta(t, tt.pol, pol, 1e-9)
			assert.InDelta(t, tt.subj, subj, 1e-9)
		})
	}
}

func TestValenceModel_Empty(t *testing.T) {
	s := stubValence().PolarityScores("")
	assert.Equal(t, Scores{Neutral: 1}, s)

	s = stubValence().PolarityScores("!!! ...")
	assert.Equal(t, Scores{Neutral: 1}, s)
}

func TestValenceModel_Compound(t *testing.T) {
	m := stubValence()

	s := m.PolarityScores("good")
	assert.InDelta(t, 2/math.Sqrt(4+15), s.Compound, 1e-9)

	s = m.PolarityScores("bad")
	assert.InDelta(t, -2/math.Sqrt(4+15), s.Compound, 1e-9)

	assert.Equal(t, 0.0, m.PolarityScores("nairobi market today").Compound)
}

func TestValenceModel_Heuristics(t *testing.T) {
	m := stubValence()
	base := m.PolarityScores("the food is good").Compound

	assert.Greater(t, m.PolarityScores("the food is very good").Compound, base, "booster")
	assert.Greater(t, m.PolarityScores("the food is GOOD").Compound, base, "caps emphasis")
	assert.Equal(t, base, m.PolarityScores("THE FOOD IS GOOD").Compound, "all caps has no differential")
	assert.Greater(t, m.PolarityScores("the food is good!!").Compound, base, "exclamation")
	assert.Less(t, m.PolarityScores("the food is not good").Compound, 0.0, "negation")
	assert.Less(t, m.PolarityScores("the food isn't good").Compound, 0.0, "contracted negation")
	assert.Less(t, m.PolarityScores("the food is good but the service is bad").Compound, 0.0, "but reweighting")
}

func TestValenceModel_ProportionsSumToOne(t *testing.T) {
	m := stubValence()
	inputs := []string{
		"good", "bad bad good", "violence in the streets!!!", "is it good??",
		"Peace 🕊 restored", "😡😡 VERY bad", "plain words only",
	}
	for _, in := range inputs {
		s := m.PolarityScores(in)
		assert.InDelta(t, 1.0, s.Positive+s.Negative+s.Neutral, 1e-9, "input %q", in)
		assert.GreaterOrEqual(t, s.Compound, -1.0)
		assert.LessOrEqual(t, s.Compound, 1.0)
	}
}

func TestValenceModel_Emoji(t *testing.T) {
	m := stubValence()
	assert.Greater(t, m.PolarityScores("ceasefire 🕊").Compound, 0.0)
	assert.Less(t, m.PolarityScores("tonight 😡").Compound, 0.0)
}

func TestValenceModel_Bounded(t *testing.T) {
	m := stubValence()
	text := strings.Repeat("VIOLENCE very bad!!! ", 200)
	s := m.PolarityScores(text)
	assert.GreaterOrEqual(t, s.Compound, -1.0)
	assert.Less(t, s.Compound, -0.99)
}

func TestValenceModel_NilEmoji(t *testing.T) {
	m := NewValenceModel(ValenceLexicon{Words: map[string]float64{"good": 2.0}})
	assert.Greater(t, m.PolarityScores("good 🕊").Compound, 0.0)
	assert.Greater(t, m.PolarityScores("the food is extremely good").Compound,
		m.PolarityScores("the food is good").Compound, "stock boosters apply")
}
