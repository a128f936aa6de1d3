package features

import "sort"

// Engagement columns.
const (
	ColTotalEngagement = "total_engagement"
	ColEngagementRate  = "engagement_rate"
	ColHighEngagement  = "has_high_engagement"
)

// Engagement adds interaction columns. In batch-relative mode the rate and the
// high-engagement flag are measured against the batch's own maximum and median,
// so an identical post scores differently in different batches. Otherwise the
// configured reference statistics are used.
func (e *Engineer) Engagement(in *Frame) *Frame {
	f := in.Clone()
	if f.Len() == 0 {
		return f
	}

	totals := make([]float64, f.Len())
	for i := range f.rows {
		p := f.rows[i].Post.Post
		totals[i] = float64(p.RetweetCount + p.FavoriteCount)
	}

	maxTotal, medTotal := e.cfg.ReferenceMaxEngagement, e.cfg.ReferenceMedianEngagement
	if e.cfg.BatchRelativeEngagement {
		maxTotal, medTotal = maxOf(totals), median(totals)
	}

	for i, total := range totals {
		f.set(i, ColTotalEngagement, total)
		f.set(i, ColEngagementRate, total/(maxTotal+1))
		f.set(i, ColHighEngagement, boolFloat(total > medTotal))
	}
	return f
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// median averages the two middle values of an even-length slice.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
