// Package sentiment scores text with two lexicon models.
//
// PolarityModel averages word polarity and subjectivity over normalized text.
// ValenceModel runs VADER over raw text and reports a normalized compound
// score together with pos/neg/neu proportions.
//
// The polarity lexicon is embedded; it and the VADER lexicon are loaded once
// by Initialize.
package sentiment

import (
	"bufio"
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jonreiter/govader"
)

//go:embed data/polarity.tsv
var polarityData []byte

// PolarityEntry is one word of the polarity lexicon.
// Intensity multiplies the polarity of the following word; 1 means no effect.
type PolarityEntry struct {
	Polarity     float64
	Subjectivity float64
	Intensity    float64
}

// PolarityLexicon maps lowercase words to their polarity entries.
type PolarityLexicon map[string]PolarityEntry

// ValenceLexicon holds word valences on the -4..4 scale, booster increments
// and emoji descriptions. Emoji are replaced by their description before
// scoring, so descriptions should be made of lexicon words.
type ValenceLexicon struct {
	Words    map[string]float64
	Boosters map[string]float64
	Emoji    map[string]string
}

var (
	initOnce        sync.Once
	initErr         error
	defaultPolarity PolarityLexicon
	defaultValence  *ValenceModel
)

// Initialize parses the embedded lexicons. It is safe to call more than once;
// only the first call does any work.
func Initialize() error {
	initOnce.Do(func() {
		defaultPolarity, initErr = ParsePolarityLexicon(polarityData)
		if initErr != nil {
			return
		}
		analyzer := govader.NewSentimentIntensityAnalyzer()
		if len(analyzer.Lexicon) == 0 {
			initErr = errors.New("valence lexicon: empty")
			return
		}
		defaultValence = newValenceModel(analyzer)
	})
	return initErr
}

// DefaultPolarityModel returns a PolarityModel over the embedded lexicon.
func DefaultPolarityModel() (*PolarityModel, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	return NewPolarityModel(defaultPolarity), nil
}

// DefaultValenceModel returns the shared ValenceModel over the stock VADER lexicon.
func DefaultValenceModel() (*ValenceModel, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	return defaultValence, nil
}

// ParsePolarityLexicon reads "word<TAB>polarity<TAB>subjectivity<TAB>intensity" lines.
// Blank lines and lines starting with '#' are skipped.
func ParsePolarityLexicon(data []byte) (PolarityLexicon, error) {
	lex := make(PolarityLexicon)
	err := scanTSV(data, 4, func(line int, fields []string) error {
		vals := make([]float64, 3)
		for i := range vals {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			vals[i] = v
		}
		lex[strings.ToLower(fields[0])] = PolarityEntry{Polarity: vals[0], Subjectivity: vals[1], Intensity: vals[2]}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("polarity lexicon: %w", err)
	}
	return lex, nil
}

func scanTSV(data []byte, columns int, fn func(line int, fields []string) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != columns {
			return fmt.Errorf("line %d: expected %d columns, got %d", line, columns, len(fields))
		}
		if err := fn(line, fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}
