package transmission

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/tabular"
)

// HIFLD marks unknown numeric fields with this sentinel.
const hifldMissing = -999999

// LoadSubstations reads the HIFLD substation CSV. Rows without coordinates
// are skipped. When regions is non-nil it fills missing state, county and
// ZIP fields by point-in-polygon lookup.
func LoadSubstations(r io.Reader, regions *geo.RegionIndex) ([]models.Substation, error) {
	t, err := tabular.NewReader(r, "ID", "NAME", "LATITUDE", "LONGITUDE", "LINES")
	if err != nil {
		return nil, fmt.Errorf("substations: %w", err)
	}
	var subs []models.Substation
	skipped := 0
	for t.Next() {
		id, ok := t.Int("ID")
		if !ok {
			return nil, &models.DataError{Stage: "substations", Row: fmt.Sprintf("line %d", t.Line()), Reason: "invalid ID"}
		}
		lat, okLat := t.Float("LATITUDE")
		lon, okLon := t.Float("LONGITUDE")
		if !okLat || !okLon {
			skipped++
			continue
		}
		lines, _ := t.Int("LINES")
		s := models.Substation{
			ID:         id,
			Name:       strings.ToUpper(t.String("NAME")),
			Lat:        lat,
			Lon:        lon,
			State:      strings.ToUpper(t.String("STATE")),
			CountyFIPS: padFIPS(t.String("COUNTYFIPS")),
			ZIP:        padZIP(t.String("ZIP")),
			Lines:      int(lines),
		}
		if regions != nil && (s.State == "" || s.CountyFIPS == "" || s.ZIP == "") {
			reg := regions.Locate(lat, lon)
			if s.State == "" {
				s.State = reg.State
			}
			if s.CountyFIPS == "" {
				s.CountyFIPS = reg.CountyFIPS
			}
			if s.ZIP == "" {
				s.ZIP = reg.ZIP
			}
		}
		subs = append(subs, s)
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("substations: %w", err)
	}
	if skipped > 0 {
		log.Printf("substations: skipped %d rows without coordinates", skipped)
	}
	return subs, nil
}

func padFIPS(s string) string {
	if s == "" || s == "NOT AVAILABLE" {
		return ""
	}
	for len(s) < 5 {
		s = "0" + s
	}
	return s
}

func padZIP(s string) string {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	return padFIPS(s)
}

type featureCollection struct {
	Features []struct {
		Properties struct {
			ID        json.Number `json:"ID"`
			Sub1      string      `json:"SUB_1"`
			Sub2      string      `json:"SUB_2"`
			Voltage   *float64    `json:"VOLTAGE"`
			VoltClass string      `json:"VOLT_CLASS"`
			Type      string      `json:"TYPE"`
		} `json:"properties"`
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// LoadLines reads the HIFLD transmission line GeoJSON. Multi-part geometries
// are flattened to a single vertex path.
func LoadLines(r io.Reader) ([]models.Line, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("lines: decode geojson: %w", err)
	}
	lines := make([]models.Line, 0, len(fc.Features))
	for i, f := range fc.Features {
		p := f.Properties
		id, err := p.ID.Int64()
		if err != nil {
			return nil, &models.DataError{Stage: "lines", Row: fmt.Sprintf("feature %d", i), Reason: "invalid ID"}
		}
		l := models.Line{
			ID:        id,
			Sub1Name:  strings.ToUpper(strings.TrimSpace(p.Sub1)),
			Sub2Name:  strings.ToUpper(strings.TrimSpace(p.Sub2)),
			VoltClass: strings.ToUpper(strings.TrimSpace(p.VoltClass)),
			Type:      p.Type,
		}
		if p.Voltage != nil && *p.Voltage > 0 && *p.Voltage != hifldMissing {
			l.Voltage.Float64, l.Voltage.Valid = *p.Voltage, true
		}
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			g, err := geojson.Decode(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("lines: feature %d geometry: %w", id, err)
			}
			l.Vertices = vertices(g)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func vertices(g geom.Geom) []models.LonLat {
	var out []models.LonLat
	switch g := g.(type) {
	case geom.LineString:
		for _, p := range g {
			out = append(out, models.LonLat{Lon: p.X, Lat: p.Y})
		}
	case geom.MultiLineString:
		for _, ls := range g {
			out = append(out, vertices(ls)...)
		}
	case geom.Point:
		out = append(out, models.LonLat{Lon: g.X, Lat: g.Y})
	}
	return out
}
