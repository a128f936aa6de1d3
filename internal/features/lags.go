package features

import (
	"fmt"
	"sort"

	"github.com/rewired-gh/unrestwatch/internal/logger"
)

// GroupByRegion groups lag computation by row region; GroupByNone treats the
// batch as a single series.
const (
	GroupByRegion = "region"
	GroupByNone   = "none"
)

// LagColumn names the shifted column of value at period n.
func LagColumn(value string, n int) string {
	return fmt.Sprintf("%s_lag_%d", value, n)
}

// RollingColumn names the rolling mean column of value over n rows.
func RollingColumn(value string, n int) string {
	return fmt.Sprintf("%s_rolling_mean_%d", value, n)
}

// Lags adds, per group ordered by date, the value n rows earlier and the mean
// of the last n values for every period n. Rolling means use partial windows
// at the start of a group. The lag cell is absent for the first n rows of a
// group; undated rows and rows without the value column get neither cell.
// Row order of the frame is preserved.
func (e *Engineer) Lags(in *Frame, column, groupBy string, periods []int) *Frame {
	f := in.Clone()
	if !f.HasColumn(column) {
		logger.Debug("Lag features skipped: column %q not present", column)
		return f
	}

	groups := make(map[string][]int)
	var order []string
	for i := range f.rows {
		if !f.rows[i].Dated() {
			continue
		}
		if _, ok := f.rows[i].Values[column]; !ok {
			continue
		}
		key := groupKey(&f.rows[i], groupBy)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		idx := groups[key]
		sort.SliceStable(idx, func(a, b int) bool {
			return f.rows[idx[a]].Post.Post.Timestamp.Before(f.rows[idx[b]].Post.Post.Timestamp)
		})
		series := make([]float64, len(idx))
		for k, i := range idx {
			series[k] = f.rows[i].Values[column]
		}

		for _, n := range periods {
			if n <= 0 {
				continue
			}
			lagName, rollName := LagColumn(column, n), RollingColumn(column, n)
			var sum float64
			for k, i := range idx {
				sum += series[k]
				if k >= n {
					sum -= series[k-n]
					f.set(i, lagName, series[k-n])
				}
				window := min(k+1, n)
				f.set(i, rollName, sum/float64(window))
			}
		}
	}
	return f
}

func groupKey(r *Row, groupBy string) string {
	switch groupBy {
	case GroupByRegion:
		return r.Region
	case GroupByNone, "":
		return ""
	default:
		if v, ok := r.Values[groupBy]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}
}
