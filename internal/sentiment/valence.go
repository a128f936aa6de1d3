package sentiment

import "github.com/jonreiter/govader"

// Scores is the output of the valence model. Positive, Negative and Neutral
// are proportions of the text and sum to 1.
type Scores struct {
	Compound float64
	Positive float64
	Negative float64
	Neutral  float64
}

// ValenceModel scores raw text with the VADER rules: boosters, capitalization,
// negation, contrastive "but" and punctuation emphasis.
// It is safe for concurrent use.
type ValenceModel struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewValenceModel creates a model over the given lexicon. Nil boosters keep
// the stock VADER booster list.
func NewValenceModel(lex ValenceLexicon) *ValenceModel {
	constants := govader.NewTermConstants()
	if lex.Boosters != nil {
		constants.BoosterDict = lex.Boosters
	}
	emoji := lex.Emoji
	if emoji == nil {
		emoji = map[string]string{}
	}
	return &ValenceModel{analyzer: &govader.SentimentIntensityAnalyzer{
		Lexicon:   lex.Words,
		EmojiDict: emoji,
		Constants: constants,
	}}
}

func newValenceModel(analyzer *govader.SentimentIntensityAnalyzer) *ValenceModel {
	return &ValenceModel{analyzer: analyzer}
}

// PolarityScores scores text. Text without any scorable token is fully neutral.
func (m *ValenceModel) PolarityScores(text string) Scores {
	s := m.analyzer.PolarityScores(text)
	if s.Positive+s.Negative+s.Neutral == 0 {
		return Scores{Neutral: 1}
	}
	return Scores{
		Compound: s.Compound,
		Positive: s.Positive,
		Negative: s.Negative,
		Neutral:  s.Neutral,
	}
}
