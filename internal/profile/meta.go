package profile

import (
	"fmt"
	"io"

	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/tabular"
)

// Plant is one row of plant_meta.csv: the link from an output plant_id back
// to the EIA generator and the location used for weather lookups.
type Plant struct {
	PlantID      int64
	PlantCode    int64
	GeneratorID  string
	Technology   models.Technology
	PrimeMover   models.PrimeMover
	Pmax         float64
	Lat          float64
	Lon          float64
	State        string
	BA           string
	Interconnect models.Interconnect
}

var metaHeader = []string{
	"plant_id", "plant_code", "generator_id", "technology", "prime_mover",
	"Pmax", "lat", "lon", "state", "ba", "interconnect",
}

// PlantsFromGenerators builds metadata rows. Plants without their own
// coordinates take the coordinates of the substation they were placed at.
func PlantsFromGenerators(gens []models.Generator, subs map[int64]models.Substation) []Plant {
	out := make([]Plant, 0, len(gens))
	for _, g := range gens {
		p := Plant{
			PlantID:      g.PlantID,
			PlantCode:    g.PlantCode,
			GeneratorID:  g.GeneratorID,
			Technology:   g.Technology,
			PrimeMover:   g.PrimeMover,
			Pmax:         g.Pmax,
			State:        g.State,
			BA:           g.BA,
			Interconnect: g.Interconnect,
		}
		if g.Lat.Valid && g.Lon.Valid {
			p.Lat, p.Lon = g.Lat.Float64, g.Lon.Float64
		} else if s, ok := subs[g.SubID]; ok {
			p.Lat, p.Lon = s.Lat, s.Lon
		}
		out = append(out, p)
	}
	return out
}

func WritePlants(w io.Writer, plants []Plant) error {
	tw, err := tabular.NewWriter(w, metaHeader...)
	if err != nil {
		return err
	}
	for _, p := range plants {
		err := tw.Write(
			tabular.FormatInt(p.PlantID), tabular.FormatInt(p.PlantCode), p.GeneratorID,
			string(p.Technology), string(p.PrimeMover), tabular.FormatFloat(p.Pmax),
			tabular.FormatFloat(p.Lat), tabular.FormatFloat(p.Lon), p.State, p.BA,
			string(p.Interconnect),
		)
		if err != nil {
			return fmt.Errorf("write plant %d: %w", p.PlantID, err)
		}
	}
	return tw.Flush()
}

func ReadPlants(r io.Reader) ([]Plant, error) {
	t, err := tabular.NewReader(r, metaHeader...)
	if err != nil {
		return nil, fmt.Errorf("read plant metadata: %w", err)
	}
	var out []Plant
	for t.Next() {
		id, ok := t.Int("plant_id")
		if !ok {
			return nil, fmt.Errorf("read plant metadata: line %d: bad plant_id", t.Line())
		}
		code, _ := t.Int("plant_code")
		pmax, _ := t.Float("Pmax")
		lat, okLat := t.Float("lat")
		lon, okLon := t.Float("lon")
		if !okLat || !okLon {
			return nil, fmt.Errorf("read plant metadata: line %d: plant %d has no location", t.Line(), id)
		}
		out = append(out, Plant{
			PlantID:      id,
			PlantCode:    code,
			GeneratorID:  t.String("generator_id"),
			Technology:   models.Technology(t.String("technology")),
			PrimeMover:   models.PrimeMover(t.String("prime_mover")),
			Pmax:         pmax,
			Lat:          lat,
			Lon:          lon,
			State:        t.String("state"),
			BA:           t.String("ba"),
			Interconnect: models.Interconnect(t.String("interconnect")),
		})
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("read plant metadata: %w", err)
	}
	return out, nil
}

// Filter returns the plants whose technology is one of techs.
func Filter(plants []Plant, techs ...models.Technology) []Plant {
	var out []Plant
	for _, p := range plants {
		for _, t := range techs {
			if p.Technology == t {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
