// Package features derives classifier inputs from batches of scored posts.
//
// A batch is held in a Frame: an ordered table with one Row per post and a
// set of named float columns. Every engineering step returns a new Frame and
// leaves its input untouched. A cell that cannot be derived (undated post,
// lag longer than its group) is simply absent; Matrix reads absent cells as 0.
package features

import (
	"github.com/rewired-gh/unrestwatch/internal/models"
)

// Base column names populated by NewFrame.
const (
	ColPolarity      = "polarity_tb"
	ColSubjectivity  = "subjectivity_tb"
	ColCompound      = "vader_compound"
	ColPositive      = "vader_positive"
	ColNegative      = "vader_negative"
	ColNeutral       = "vader_neutral"
	ColIntensity     = "conflict_intensity"
	ColRetweetCount  = "retweet_count"
	ColFavoriteCount = "favorite_count"
)

// Row is one post of a batch with its derived columns.
type Row struct {
	Post   models.ScoredPost
	Region string
	Values map[string]float64
}

// Dated reports whether the row carries a usable timestamp.
func (r *Row) Dated() bool {
	return r.Post.Post.HasTimestamp()
}

// Frame is an ordered batch of rows sharing a column list.
type Frame struct {
	rows    []Row
	columns []string
	known   map[string]struct{}
}

// NewFrame builds a frame from scored posts with the sentiment, intensity and
// raw engagement columns filled in.
func NewFrame(scored []models.ScoredPost) *Frame {
	f := &Frame{
		rows:  make([]Row, len(scored)),
		known: make(map[string]struct{}),
	}
	for i, sp := range scored {
		region := sp.Post.Region
		if region == "" {
			region = models.RegionUnknown
		}
		f.rows[i] = Row{Post: sp, Region: region, Values: make(map[string]float64, 16)}

		f.set(i, ColPolarity, sp.Sentiment.Polarity)
		f.set(i, ColSubjectivity, sp.Sentiment.Subjectivity)
		f.set(i, ColCompound, sp.Sentiment.Compound)
		f.set(i, ColPositive, sp.Sentiment.Positive)
		f.set(i, ColNegative, sp.Sentiment.Negative)
		f.set(i, ColNeutral, sp.Sentiment.Neutral)
		f.set(i, ColIntensity, sp.ConflictIntensity)
		f.set(i, ColRetweetCount, float64(sp.Post.RetweetCount))
		f.set(i, ColFavoriteCount, float64(sp.Post.FavoriteCount))
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) Row {
	r := f.rows[i]
	r.Values = copyValues(r.Values)
	return r
}

// Columns returns the column names in the order they were first populated.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// HasColumn reports whether any row has a value in the named column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.known[name]
	return ok
}

// Value returns the cell at row i, column name.
func (f *Frame) Value(i int, name string) (float64, bool) {
	v, ok := f.rows[i].Values[name]
	return v, ok
}

// Column returns the named column with absent cells reported as missing.
func (f *Frame) Column(name string) (values []float64, present []bool) {
	values = make([]float64, len(f.rows))
	present = make([]bool, len(f.rows))
	for i := range f.rows {
		values[i], present[i] = f.rows[i].Values[name]
	}
	return values, present
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		rows:    make([]Row, len(f.rows)),
		columns: append([]string(nil), f.columns...),
		known:   make(map[string]struct{}, len(f.known)),
	}
	for name := range f.known {
		c.known[name] = struct{}{}
	}
	for i, r := range f.rows {
		r.Values = copyValues(r.Values)
		c.rows[i] = r
	}
	return c
}

func (f *Frame) set(i int, name string, v float64) {
	if _, ok := f.known[name]; !ok {
		f.known[name] = struct{}{}
		f.columns = append(f.columns, name)
	}
	f.rows[i].Values[name] = v
}

func copyValues(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
