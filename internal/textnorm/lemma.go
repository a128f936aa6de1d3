package textnorm

import (
	"unicode"
	"unicode/utf8"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// Lemmatizer maps an inflected word to its dictionary form. Unknown words
// are returned unchanged.
type Lemmatizer interface {
	Lemma(word string) string
}

// NewEnglishLemmatizer loads the embedded English dictionary.
func NewEnglishLemmatizer() (Lemmatizer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, err
	}
	return lem, nil
}

// lemmatize returns the lemma of tok when it is safe to substitute, and tok
// otherwise. An accepted lemma is a plain lowercase word that survives the
// token filters and is its own lemma, so a second pass leaves it untouched.
func (n *Normalizer) lemmatize(tok string) string {
	if n.res.Lemmatizer == nil {
		return tok
	}
	lemma := n.res.Lemmatizer.Lemma(tok)
	if lemma == tok {
		return tok
	}
	if utf8.RuneCountInString(lemma) < minTokenRunes || n.res.isStopword(lemma) {
		return tok
	}
	if !lowerLetters(lemma) || urlPattern.MatchString(lemma) {
		return tok
	}
	if n.res.Lemmatizer.Lemma(lemma) != lemma {
		return tok
	}
	return lemma
}

func lowerLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) || unicode.IsUpper(r) {
			return false
		}
	}
	return s == lowerNFC(s)
}
