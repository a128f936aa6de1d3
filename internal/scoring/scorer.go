// Package scoring turns posts into scored posts: normalized text, lexicon
// sentiment, keyword conflict intensity, a sentiment label and a risk level.
package scoring

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/sentiment"
	"github.com/rewired-gh/unrestwatch/internal/textnorm"
)

// ConflictKeywords are counted as substrings of the lowercased raw text.
var ConflictKeywords = []string{
	"attack", "violence", "kill", "death", "protest",
	"riot", "clash", "unrest", "tension", "war",
}

// keywordSaturation is the number of keyword hits at which intensity reaches 1.
const keywordSaturation = 5

// Weights of the per-post risk score.
const (
	sentimentWeight = 0.4
	intensityWeight = 0.6
)

// Compound cut-offs of the sentiment label.
const (
	positiveCutoff = 0.05
	negativeCutoff = -0.05
)

// Thresholds are the strict lower bounds of the Critical, High and Medium bands.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultThresholds returns the standard 0.7/0.5/0.3 bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 0.7, High: 0.5, Medium: 0.3}
}

// Level maps a score onto a risk level. A score equal to a bound falls into
// the lower band.
func (t Thresholds) Level(score float64) models.RiskLevel {
	switch {
	case score > t.Critical:
		return models.RiskCritical
	case score > t.High:
		return models.RiskHigh
	case score > t.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Validate checks that the bands are ordered and within [0, 1].
func (t Thresholds) Validate() error {
	if t.Medium < 0 || t.Critical > 1 {
		return fmt.Errorf("thresholds must be within [0, 1], got medium=%v critical=%v", t.Medium, t.Critical)
	}
	if !(t.Critical > t.High && t.High > t.Medium) {
		return fmt.Errorf("thresholds must satisfy critical > high > medium, got %v/%v/%v", t.Critical, t.High, t.Medium)
	}
	return nil
}

// Config configures a Scorer.
type Config struct {
	Thresholds Thresholds
	// Workers bounds ScoreBatch parallelism; 0 means GOMAXPROCS.
	Workers int
}

// Scorer scores posts. It holds only read-only state and is safe for concurrent use.
type Scorer struct {
	normalizer *textnorm.Normalizer
	polarity   *sentiment.PolarityModel
	valence    *sentiment.ValenceModel
	cfg        Config
}

// New creates a Scorer over the given text resources and models.
func New(cfg Config, normalizer *textnorm.Normalizer, polarity *sentiment.PolarityModel, valence *sentiment.ValenceModel) *Scorer {
	return &Scorer{
		normalizer: normalizer,
		polarity:   polarity,
		valence:    valence,
		cfg:        cfg,
	}
}

// NewDefault creates a Scorer over the process-wide stopwords and embedded lexicons.
func NewDefault(cfg Config) (*Scorer, error) {
	polarity, err := sentiment.DefaultPolarityModel()
	if err != nil {
		return nil, fmt.Errorf("failed to load polarity model: %w", err)
	}
	valence, err := sentiment.DefaultValenceModel()
	if err != nil {
		return nil, fmt.Errorf("failed to load valence model: %w", err)
	}
	return New(cfg, textnorm.Default(), polarity, valence), nil
}

// Result is the scoring of one text.
type Result struct {
	CleanedText       string
	Sentiment         models.SentimentScore
	ConflictIntensity float64
	RiskScore         float64
	SentimentLabel    models.SentimentLabel
	RiskLevel         models.RiskLevel
}

// Score scores a single raw text.
func (s *Scorer) Score(text string) Result {
	cleaned := s.normalizer.Normalize(text)
	polarity, subjectivity := s.polarity.Analyze(cleaned)
	v := s.valence.PolarityScores(text)
	intensity := ConflictIntensity(text)
	risk := RiskScore(v.Compound, intensity)

	return Result{
		CleanedText: cleaned,
		Sentiment: models.SentimentScore{
			Polarity:     polarity,
			Subjectivity: subjectivity,
			Compound:     v.Compound,
			Positive:     v.Positive,
			Negative:     v.Negative,
			Neutral:      v.Neutral,
		},
		ConflictIntensity: intensity,
		RiskScore:         risk,
		SentimentLabel:    Label(v.Compound),
		RiskLevel:         s.cfg.Thresholds.Level(risk),
	}
}

// ScorePost scores a post and attaches the result to it.
func (s *Scorer) ScorePost(post models.Post) models.ScoredPost {
	r := s.Score(post.Text)
	return models.ScoredPost{
		Post:              post,
		CleanedText:       r.CleanedText,
		Sentiment:         r.Sentiment,
		ConflictIntensity: r.ConflictIntensity,
		SentimentLabel:    r.SentimentLabel,
		RiskLevel:         r.RiskLevel,
	}
}

// ScoreBatch scores posts concurrently. The output preserves input order.
// It fails only when ctx is canceled.
func (s *Scorer) ScoreBatch(ctx context.Context, posts []models.Post) ([]models.ScoredPost, error) {
	out := make([]models.ScoredPost, len(posts))
	if len(posts) == 0 {
		return out, nil
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range posts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.ScorePost(posts[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scoring batch: %w", err)
	}
	return out, nil
}

// ConflictIntensity counts conflict keywords contained in the lowercased text,
// one hit per keyword, and saturates at 1.
func ConflictIntensity(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range ConflictKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return math.Min(float64(hits)/keywordSaturation, 1)
}

// RiskScore combines sentiment magnitude and conflict intensity into [0, 1].
func RiskScore(compound, intensity float64) float64 {
	return sentimentWeight*math.Abs(compound) + intensityWeight*intensity
}

// Label classifies a compound score.
func Label(compound float64) models.SentimentLabel {
	switch {
	case compound >= positiveCutoff:
		return models.SentimentPositive
	case compound <= negativeCutoff:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
