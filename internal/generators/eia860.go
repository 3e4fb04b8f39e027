package generators

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/tabular"
)

// Unit is one EIA-860 generator row joined with its plant.
type Unit struct {
	PlantCode    int64
	GeneratorID  string
	PlantName    string
	Technology   models.Technology
	PrimeMover   models.PrimeMover
	EnergySource string
	Summer       sql.NullFloat64
	Winter       sql.NullFloat64
	Nameplate    sql.NullFloat64
	MinLoad      sql.NullFloat64
	Lat          sql.NullFloat64
	Lon          sql.NullFloat64
	State        string
	ZIP          string
	NERC         string
	BA           string
}

// Plant is one row of the EIA-860 plant table.
type Plant struct {
	Code  int64
	Name  string
	Lat   sql.NullFloat64
	Lon   sql.NullFloat64
	State string
	ZIP   string
	NERC  string
	BA    string
}

func nullFloat(t *tabular.Reader, col string) sql.NullFloat64 {
	v, ok := t.Float(col)
	return sql.NullFloat64{Float64: v, Valid: ok}
}

// LoadPlants reads the EIA-860 plant table keyed by plant code.
func LoadPlants(r io.Reader) (map[int64]Plant, error) {
	t, err := tabular.NewReader(r, "Plant Code", "State")
	if err != nil {
		return nil, fmt.Errorf("eia860 plants: %w", err)
	}
	plants := map[int64]Plant{}
	for t.Next() {
		code, ok := t.Int("Plant Code")
		if !ok {
			continue
		}
		p := Plant{
			Code:  code,
			Name:  t.String("Plant Name"),
			Lat:   nullFloat(t, "Latitude"),
			Lon:   nullFloat(t, "Longitude"),
			State: strings.ToUpper(t.String("State")),
			ZIP:   normalizeZIP(t.String("Zip")),
			NERC:  t.String("NERC Region"),
			BA:    t.String("Balancing Authority Code"),
		}
		if p.Lat.Valid != p.Lon.Valid {
			p.Lat, p.Lon = sql.NullFloat64{}, sql.NullFloat64{}
		}
		plants[code] = p
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("eia860 plants: %w", err)
	}
	return plants, nil
}

// LoadUnits reads the EIA-860 operable generator table and joins it with
// plants. Units whose plant is missing are dropped and counted.
func LoadUnits(r io.Reader, plants map[int64]Plant) ([]Unit, error) {
	t, err := tabular.NewReader(r, "Plant Code", "Generator ID", "Technology", "Prime Mover")
	if err != nil {
		return nil, fmt.Errorf("eia860 generators: %w", err)
	}
	var units []Unit
	noPlant, unknownTech := 0, 0
	for t.Next() {
		code, ok := t.Int("Plant Code")
		if !ok {
			continue
		}
		p, ok := plants[code]
		if !ok {
			noPlant++
			continue
		}
		tech, ok := models.ParseTechnology(t.String("Technology"))
		if !ok {
			unknownTech++
		}
		pm, _ := models.ParsePrimeMover(t.String("Prime Mover"))
		units = append(units, Unit{
			PlantCode:    code,
			GeneratorID:  strings.TrimSpace(t.String("Generator ID")),
			PlantName:    p.Name,
			Technology:   tech,
			PrimeMover:   pm,
			EnergySource: strings.ToUpper(t.String("Energy Source 1")),
			Summer:       nullFloat(t, "Summer Capacity (MW)"),
			Winter:       nullFloat(t, "Winter Capacity (MW)"),
			Nameplate:    nullFloat(t, "Nameplate Capacity (MW)"),
			MinLoad:      nullFloat(t, "Minimum Load (MW)"),
			Lat:          p.Lat,
			Lon:          p.Lon,
			State:        p.State,
			ZIP:          p.ZIP,
			NERC:         p.NERC,
			BA:           p.BA,
		})
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("eia860 generators: %w", err)
	}
	metrics.Drop(stage, "plant_missing", noPlant)
	if noPlant > 0 {
		log.Printf("generators: dropped %d units with no plant row", noPlant)
	}
	if unknownTech > 0 {
		log.Printf("generators: %d units have an unrecognised technology, classed as %q", unknownTech, models.TechAllOther)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].PlantCode != units[j].PlantCode {
			return units[i].PlantCode < units[j].PlantCode
		}
		return units[i].GeneratorID < units[j].GeneratorID
	})
	return units, nil
}

func normalizeZIP(s string) string {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for len(s) < 5 {
		s = "0" + s
	}
	return s
}
