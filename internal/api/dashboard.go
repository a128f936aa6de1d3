package api

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

const dateLayout = "2006-01-02"

// regionCoordinates locates the default regions on the map view.
var regionCoordinates = map[string][2]float64{
	"Nairobi": {-1.286389, 36.817223},
	"Mombasa": {-4.0435, 39.6682},
	"Kisumu":  {-0.1022, 34.7617},
	"Nakuru":  {-0.3031, 36.0800},
	"Eldoret": {0.5143, 35.2698},
	"Meru":    {0.0463, 37.6559},
}

// Heatmap holds the high-risk share per region and day.
type Heatmap struct {
	Dates      []string    `json:"dates"`
	Regions    []string    `json:"regions"`
	RiskValues [][]float64 `json:"risk_values"`
}

// MapPoint is a region's high-risk share at its coordinates.
type MapPoint struct {
	Region string  `json:"region"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Risk   float64 `json:"risk"`
	Posts  int     `json:"posts"`
}

// Timeline holds daily mean sentiment and conflict intensity.
type Timeline struct {
	Dates     []string  `json:"dates"`
	Sentiment []float64 `json:"sentiment"`
	Intensity []float64 `json:"intensity"`
}

// Dashboard is the visualization payload.
type Dashboard struct {
	GeneratedAt string     `json:"generated_at"`
	Heatmap     Heatmap    `json:"heatmap_data"`
	Map         []MapPoint `json:"map_data"`
	Timeline    Timeline   `json:"timeline_data"`
}

type dayStats struct {
	posts, high         int
	compound, intensity float64
}

// BuildDashboard summarizes dated posts by UTC day and region. Heatmap cells
// for a region without posts on a day are 0; map points only cover regions
// with known coordinates.
func BuildDashboard(posts []models.ScoredPost, now time.Time) Dashboard {
	daily := make(map[string]*dayStats)
	cells := make(map[string]map[string]*dayStats)
	regionTotals := make(map[string]*dayStats)

	for i := range posts {
		p := &posts[i]
		if !p.Post.HasTimestamp() {
			continue
		}
		day := p.Post.Timestamp.UTC().Format(dateLayout)
		region := p.Post.Region
		if region == "" {
			region = models.RegionUnknown
		}
		for _, st := range []*dayStats{
			getStats(daily, day),
			getStats(cellsFor(cells, region), day),
			getStats(regionTotals, region),
		} {
			st.posts++
			st.compound += p.Sentiment.Compound
			st.intensity += p.ConflictIntensity
			if p.RiskLevel.IsHigh() {
				st.high++
			}
		}
	}

	dates := sortedKeys(daily)
	regions := sortedKeys(regionTotals)

	d := Dashboard{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Heatmap: Heatmap{
			Dates:      dates,
			Regions:    regions,
			RiskValues: make([][]float64, len(regions)),
		},
		Map: make([]MapPoint, 0, len(regions)),
		Timeline: Timeline{
			Dates:     dates,
			Sentiment: make([]float64, len(dates)),
			Intensity: make([]float64, len(dates)),
		},
	}

	for i, day := range dates {
		st := daily[day]
		d.Timeline.Sentiment[i] = round2(st.compound / float64(st.posts))
		d.Timeline.Intensity[i] = round2(st.intensity / float64(st.posts))
	}
	for r, region := range regions {
		row := make([]float64, len(dates))
		for i, day := range dates {
			if st, ok := cells[region][day]; ok {
				row[i] = round2(float64(st.high) / float64(st.posts))
			}
		}
		d.Heatmap.RiskValues[r] = row

		if coord, ok := regionCoordinates[region]; ok {
			st := regionTotals[region]
			d.Map = append(d.Map, MapPoint{
				Region: region,
				Lat:    coord[0],
				Lon:    coord[1],
				Risk:   round2(float64(st.high) / float64(st.posts)),
				Posts:  st.posts,
			})
		}
	}
	return d
}

func getStats(m map[string]*dayStats, key string) *dayStats {
	st, ok := m[key]
	if !ok {
		st = &dayStats{}
		m[key] = st
	}
	return st
}

func cellsFor(cells map[string]map[string]*dayStats, region string) map[string]*dayStats {
	m, ok := cells[region]
	if !ok {
		m = make(map[string]*dayStats)
		cells[region] = m
	}
	return m
}

func sortedKeys(m map[string]*dayStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
