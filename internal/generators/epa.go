package generators

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/lox/gridprep/internal/tabular"
)

// GenKey identifies an EIA generator.
type GenKey struct {
	PlantCode   int64
	GeneratorID string
}

// EPAUnit identifies an EPA AMPD unit.
type EPAUnit struct {
	Plant int64
	Unit  string
}

// Crosswalk maps EIA generators to the EPA units that report for them.
type Crosswalk map[GenKey][]EPAUnit

// Units returns the set of every EPA unit in the crosswalk.
func (c Crosswalk) Units() map[EPAUnit]bool {
	out := map[EPAUnit]bool{}
	for _, us := range c {
		for _, u := range us {
			out[u] = true
		}
	}
	return out
}

// LoadCrosswalk reads the EPA-EIA power sector data crosswalk.
func LoadCrosswalk(r io.Reader) (Crosswalk, error) {
	t, err := tabular.NewReader(r, "EIA_PLANT_ID", "EIA_GENERATOR_ID", "CAMD_PLANT_ID", "CAMD_UNIT_ID")
	if err != nil {
		return nil, fmt.Errorf("crosswalk: %w", err)
	}
	cw := Crosswalk{}
	for t.Next() {
		eia, ok1 := t.Int("EIA_PLANT_ID")
		epa, ok2 := t.Int("CAMD_PLANT_ID")
		gen := strings.TrimSpace(t.String("EIA_GENERATOR_ID"))
		unit := strings.TrimSpace(t.String("CAMD_UNIT_ID"))
		if !ok1 || !ok2 || gen == "" || unit == "" {
			continue
		}
		k := GenKey{eia, gen}
		u := EPAUnit{epa, unit}
		dup := false
		for _, x := range cw[k] {
			if x == u {
				dup = true
				break
			}
		}
		if !dup {
			cw[k] = append(cw[k], u)
		}
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("crosswalk: %w", err)
	}
	return cw, nil
}

// Sample is one hourly (load, heat input) observation.
type Sample struct {
	LoadMW    float64
	HeatMMBtu float64
}

// Hourly holds EPA samples per unit keyed by "date hour", or by row order
// for files without OP_DATE and OP_HOUR.
type Hourly map[EPAUnit]map[string]Sample

const untimedKey = "row:"

// Load streams an AMPD hourly emissions CSV and keeps rows for the
// wanted units. Zero and null rows are skipped. It may be called for
// several files; rows accumulate in h.
func (h Hourly) Load(r io.Reader, want map[EPAUnit]bool) error {
	t, err := tabular.NewReader(r, "ORISPL_CODE", "UNITID", "GLOAD (MW)", "HEAT_INPUT (mmBtu)")
	if err != nil {
		return fmt.Errorf("epa hourly: %w", err)
	}
	timed := t.Has("OP_DATE") && t.Has("OP_HOUR")
	if !timed {
		log.Printf("generators: EPA file has no OP_DATE/OP_HOUR, keeping each row as its own sample")
	}
	for t.Next() {
		plant, ok := t.Int("ORISPL_CODE")
		if !ok {
			continue
		}
		u := EPAUnit{plant, t.String("UNITID")}
		if !want[u] {
			continue
		}
		load, ok1 := t.Float("GLOAD (MW)")
		heat, ok2 := t.Float("HEAT_INPUT (mmBtu)")
		if !ok1 || !ok2 || load <= 0 || heat <= 0 {
			continue
		}
		if h[u] == nil {
			h[u] = map[string]Sample{}
		}
		// untimed keys only grow with the map, so each row stays distinct
		key := fmt.Sprintf("%s%d", untimedKey, len(h[u]))
		if timed {
			key = t.String("OP_DATE") + " " + t.String("OP_HOUR")
		}
		s := h[u][key]
		s.LoadMW += load
		s.HeatMMBtu += heat
		h[u][key] = s
	}
	if err := t.Err(); err != nil {
		return fmt.Errorf("epa hourly: %w", err)
	}
	return nil
}

// Samples sums the hourly observations of every unit mapped to one
// generator, matching on date and hour. Samples are ordered by hour. Rows
// without a timestamp are never summed across units.
func (h Hourly) Samples(units []EPAUnit) []Sample {
	sum := map[string]Sample{}
	for _, u := range units {
		for k, s := range h[u] {
			if strings.HasPrefix(k, untimedKey) {
				k = fmt.Sprintf("%d/%s/%s", u.Plant, u.Unit, k)
			}
			acc := sum[k]
			acc.LoadMW += s.LoadMW
			acc.HeatMMBtu += s.HeatMMBtu
			sum[k] = acc
		}
	}
	keys := make([]string, 0, len(sum))
	for k := range sum {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Sample, len(keys))
	for i, k := range keys {
		out[i] = sum[k]
	}
	return out
}
