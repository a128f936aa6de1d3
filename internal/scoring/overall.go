package scoring

import (
	"sort"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// DefaultRegionShare is the high-risk share, in percent, above which a region
// is reported by HighRiskRegions.
const DefaultRegionShare = 50.0

// batchBands are the percent-of-high-risk bounds of the batch-level level.
var batchBands = Thresholds{Critical: 70, High: 50, Medium: 30}

// HighRiskPercent returns the percentage of High and Critical posts, 0 for an empty batch.
func HighRiskPercent(scored []models.ScoredPost) float64 {
	if len(scored) == 0 {
		return 0
	}
	high := 0
	for i := range scored {
		if scored[i].RiskLevel.IsHigh() {
			high++
		}
	}
	return float64(high) / float64(len(scored)) * 100
}

// OverallRisk rates a whole batch by its share of High and Critical posts.
func OverallRisk(scored []models.ScoredPost) models.RiskLevel {
	return batchBands.Level(HighRiskPercent(scored))
}

// HighRiskRegions lists, in name order, the regions whose share of High and
// Critical posts exceeds minShare percent. Posts without a region count as "Unknown".
func HighRiskRegions(scored []models.ScoredPost, minShare float64) []string {
	type tally struct{ high, total int }
	byRegion := make(map[string]*tally)
	for i := range scored {
		region := scored[i].Post.Region
		if region == "" {
			region = models.RegionUnknown
		}
		t, ok := byRegion[region]
		if !ok {
			t = &tally{}
			byRegion[region] = t
		}
		t.total++
		if scored[i].RiskLevel.IsHigh() {
			t.high++
		}
	}

	regions := make([]string, 0)
	for region, t := range byRegion {
		if float64(t.high)/float64(t.total)*100 > minShare {
			regions = append(regions, region)
		}
	}
	sort.Strings(regions)
	return regions
}
