// Package textnorm cleans raw social media text into a normalized token stream.
//
// Normalization steps, in order:
//
//  0. replace invalid UTF-8 sequences with spaces
//  1. lowercase (Unicode-aware) and compose to NFC
//  2. strip URLs, @mentions, and the '#' marker of hashtags (the tag text is kept)
//  3. strip punctuation, digits, and symbols; emoji glyphs become words
//  4. split on whitespace
//  5. drop stopwords (conflict vocabulary is never dropped) and tokens of two runes or fewer
//  6. lemmatize the surviving tokens and join them with single spaces
//
// Normalize never fails and is idempotent. The stopword set and the English
// lemma dictionary are process-wide and built once by Initialize; New builds a
// Normalizer over injected resources.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern     = regexp.MustCompile(`http\S+|www\S+|https\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
)

// minTokenRunes is the shortest token kept after filtering.
const minTokenRunes = 3

// Normalizer applies the cleaning pipeline over a fixed set of resources.
// It is safe for concurrent use.
type Normalizer struct {
	res Resources
}

// New creates a Normalizer over the given resources.
func New(res Resources) *Normalizer {
	return &Normalizer{res: res}
}

// Default returns a Normalizer over the process-wide resources.
func Default() *Normalizer {
	return New(DefaultResources())
}

// Normalize cleans text with the process-wide resources.
func Normalize(text string) string {
	return Default().Normalize(text)
}

// NormalizeAny cleans v when it is a string and returns "" for anything else.
func NormalizeAny(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}

// Normalize runs the full pipeline on text.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = lowerNFC(strings.ToValidUTF8(text, " "))
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "#", "")
	// Dropping '#' can join fragments into a URL-shaped token.
	text = urlPattern.ReplaceAllString(text, "")

	tokens := strings.Fields(stripSymbols(text))

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minTokenRunes || n.res.isStopword(tok) {
			continue
		}
		kept = append(kept, n.lemmatize(tok))
	}
	return strings.Join(kept, " ")
}

// lowerNFC lowercases text and composes it to NFC. cases.Caser is stateful,
// so each call gets its own.
func lowerNFC(text string) string {
	return norm.NFC.String(cases.Lower(language.Und).String(text))
}

// stripSymbols keeps letters and whitespace, spells out known emoji, and turns
// every other rune into a separator.
func stripSymbols(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			if name, ok := emojiNames[r]; ok {
				b.WriteByte(' ')
				b.WriteString(name)
			}
			b.WriteByte(' ')
		}
	}
	return b.String()
}
