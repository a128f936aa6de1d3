package features

import (
	"strings"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// RegionPrefix prefixes the one-hot region columns.
const RegionPrefix = "region_"

// Region is a named region and the location keywords that identify it.
type Region struct {
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
}

// DefaultRegions is the region table, in matching order.
func DefaultRegions() []Region {
	return []Region{
		{Name: "Nairobi", Keywords: []string{"nairobi", "nrb"}},
		{Name: "Mombasa", Keywords: []string{"mombasa", "mom", "coast"}},
		{Name: "Kisumu", Keywords: []string{"kisumu", "lake", "nyanza"}},
		{Name: "Nakuru", Keywords: []string{"nakuru", "rift"}},
		{Name: "Eldoret", Keywords: []string{"eldoret", "uasin"}},
		{Name: "Meru", Keywords: []string{"meru", "eastern"}},
	}
}

// MapLocation resolves a free-text location to a region name. The first region
// with a keyword contained in the lowercased location wins. A nil location is
// "Unknown"; a location matching no region is "Other".
func MapLocation(location *string, regions []Region) string {
	if location == nil {
		return models.RegionUnknown
	}
	lower := strings.ToLower(*location)
	for _, r := range regions {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Name
			}
		}
	}
	return models.RegionOther
}

// Geo assigns regions and adds one one-hot column per configured region.
// A row with a user location takes the mapped region; a row without one keeps
// its declared region, or "Unknown" when it has none.
func (e *Engineer) Geo(in *Frame) *Frame {
	f := in.Clone()
	for i := range f.rows {
		if loc := f.rows[i].Post.Post.UserLocation; loc != nil {
			f.rows[i].Region = MapLocation(loc, e.cfg.Regions)
		}
		for _, r := range e.cfg.Regions {
			f.set(i, RegionPrefix+r.Name, boolFloat(f.rows[i].Region == r.Name))
		}
	}
	return f
}
