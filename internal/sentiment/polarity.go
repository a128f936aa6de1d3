package sentiment

import "strings"

// negationFactor flips and damps the polarity of a negated word.
const negationFactor = -0.5

var polarityNegations = map[string]struct{}{
	"not": {}, "never": {}, "no": {}, "without": {},
}

// PolarityModel scores normalized text by averaging lexicon assessments.
// It is safe for concurrent use.
type PolarityModel struct {
	lex PolarityLexicon
}

// NewPolarityModel creates a model over the given lexicon.
func NewPolarityModel(lex PolarityLexicon) *PolarityModel {
	return &PolarityModel{lex: lex}
}

// Analyze returns polarity in [-1, 1] and subjectivity in [0, 1].
// Text without any lexicon word scores 0, 0.
//
// A word whose intensity differs from 1 modifies the next lexicon word instead
// of being assessed itself; a negation word flips the next assessment.
func (m *PolarityModel) Analyze(text string) (polarity, subjectivity float64) {
	tokens := strings.Fields(strings.ToLower(text))

	var sumP, sumS float64
	var n int
	mult, negated := 1.0, false
	for i, tok := range tokens {
		if _, ok := polarityNegations[tok]; ok {
			negated = true
			continue
		}
		e, ok := m.lex[tok]
		if !ok {
			mult, negated = 1.0, false
			continue
		}
		if e.Intensity != 1 && i+1 < len(tokens) {
			if _, next := m.lex[tokens[i+1]]; next {
				mult *= e.Intensity
				continue
			}
		}

		p := clamp(e.Polarity*mult, -1, 1)
		s := clamp(e.Subjectivity*mult, 0, 1)
		if negated {
			p *= negationFactor
		}
		sumP += p
		sumS += s
		n++
		mult, negated = 1.0, false
	}

	if n == 0 {
		return 0, 0
	}
	return clamp(sumP/float64(n), -1, 1), clamp(sumS/float64(n), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
