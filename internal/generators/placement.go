package generators

import (
	"database/sql"
	"math"
	"sort"
	"strconv"

	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/models"
)

// Placer snaps generating units to substations.
type Placer struct {
	window int
	// Substations by interconnection then numeric ZIP.
	byZIP map[models.Interconnect]map[int][]models.Substation
	zips  map[models.Interconnect][]int
}

// NewPlacer indexes substations by ZIP code. window is the ± range of
// numeric ZIP codes searched when a unit's own ZIP has no substation.
func NewPlacer(subs []models.Substation, window int) *Placer {
	p := &Placer{
		window: window,
		byZIP:  map[models.Interconnect]map[int][]models.Substation{},
		zips:   map[models.Interconnect][]int{},
	}
	for _, s := range subs {
		z, err := strconv.Atoi(s.ZIP)
		if err != nil {
			continue
		}
		keys := []models.Interconnect{models.InterconnectUnknown}
		if s.Interconnect != models.InterconnectUnknown {
			keys = append(keys, s.Interconnect)
		}
		for _, ic := range keys {
			if p.byZIP[ic] == nil {
				p.byZIP[ic] = map[int][]models.Substation{}
			}
			if len(p.byZIP[ic][z]) == 0 {
				p.zips[ic] = append(p.zips[ic], z)
			}
			p.byZIP[ic][z] = append(p.byZIP[ic][z], s)
		}
	}
	for ic, zs := range p.zips {
		sort.Ints(zs)
		p.zips[ic] = zs
		for _, subs := range p.byZIP[ic] {
			sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
		}
	}
	return p
}

// Placement reasons reported by Place.
const (
	PlacedInZIP    = "zip"
	PlacedInWindow = "zip_window"
	PlacedByZIP    = "zip_only"
	Unplaced       = "unplaced"
)

// Place returns the substation for a unit. With coordinates it snaps to the
// closest substation in the unit's ZIP, widening to the ZIP window when the
// ZIP has none. Without coordinates it takes the lowest-ID substation in the
// ZIP. ic may be InterconnectUnknown to search every interconnection.
func (p *Placer) Place(lat, lon sql.NullFloat64, zip string, ic models.Interconnect) (int64, string) {
	z, err := strconv.Atoi(zip)
	if err != nil {
		return 0, Unplaced
	}
	own := p.byZIP[ic][z]
	if !lat.Valid || !lon.Valid {
		if len(own) > 0 {
			return own[0].ID, PlacedByZIP
		}
		return 0, Unplaced
	}
	if len(own) > 0 {
		return closest(own, lat.Float64, lon.Float64), PlacedInZIP
	}

	zs := p.zips[ic]
	lo := sort.SearchInts(zs, z-p.window)
	var cands []models.Substation
	for i := lo; i < len(zs) && zs[i] <= z+p.window; i++ {
		cands = append(cands, p.byZIP[ic][zs[i]]...)
	}
	if len(cands) == 0 {
		return 0, Unplaced
	}
	return closest(cands, lat.Float64, lon.Float64), PlacedInWindow
}

func closest(subs []models.Substation, lat, lon float64) int64 {
	best := int64(0)
	bestKM := math.Inf(1)
	for _, s := range subs {
		d := geo.Haversine(lat, lon, s.Lat, s.Lon)
		if d < bestKM || (d == bestKM && s.ID < best) {
			best, bestKM = s.ID, d
		}
	}
	return best
}
