package solar

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/tabular"
)

// Installation is one row of the EIA-860 solar table.
type Installation struct {
	PlantCode   int64
	GeneratorID string
	State       string
	Capacity    float64 // AC MW
	DCCapacity  float64
	Modes       []models.Tracking
	TiltDeg     float64
	AzimuthDeg  float64
}

func yes(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s == "Y" || s == "YES"
}

// LoadInstallations reads the EIA-860 solar generator table.
func LoadInstallations(r io.Reader) ([]Installation, error) {
	t, err := tabular.NewReader(r, "Plant Code", "Generator ID", "State", "Nameplate Capacity (MW)")
	if err != nil {
		return nil, fmt.Errorf("load solar installations: %w", err)
	}
	var out []Installation
	for t.Next() {
		code, ok := t.Int("Plant Code")
		if !ok {
			metrics.Drop("solar", "bad_plant_code", 1)
			continue
		}
		in := Installation{PlantCode: code, GeneratorID: t.String("Generator ID"), State: t.String("State")}
		in.Capacity, _ = t.Float("Nameplate Capacity (MW)")
		in.DCCapacity, _ = t.Float("DC Net Capacity (MW)")
		in.TiltDeg, _ = t.Float("Tilt Angle")
		in.AzimuthDeg, _ = t.Float("Azimuth Angle")
		if yes(t.String("Fixed Tilt?")) {
			in.Modes = append(in.Modes, models.TrackingFixed)
		}
		if yes(t.String("Single-Axis Tracking?")) {
			in.Modes = append(in.Modes, models.TrackingSingleAxis)
		}
		if yes(t.String("Dual-Axis Tracking?")) {
			in.Modes = append(in.Modes, models.TrackingDualAxis)
		}
		out = append(out, in)
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("load solar installations: %w", err)
	}
	return out, nil
}

// ILR returns the DC:AC ratio, or 0 when unknown.
func (in Installation) ILR() float64 {
	if in.Capacity > 0 && in.DCCapacity > 0 {
		return in.DCCapacity / in.Capacity
	}
	return 0
}

func modeIndex(m models.Tracking) int {
	for i, t := range models.TrackingModes {
		if t == m {
			return i
		}
	}
	return -1
}

// Mix holds capacity shares of each tracking mode, indexed like
// models.TrackingModes.
type Mix [3]float64

// FleetMix returns the tracking mix per state plus a national mix under the
// empty key. Installations reporting several modes split their capacity
// evenly across them.
func FleetMix(fleet []Installation) map[string]Mix {
	sums := map[string]*Mix{"": {}}
	for _, in := range fleet {
		if len(in.Modes) == 0 || in.Capacity <= 0 {
			continue
		}
		share := in.Capacity / float64(len(in.Modes))
		keys := []string{""}
		if in.State != "" {
			keys = append(keys, in.State)
		}
		for _, key := range keys {
			m := sums[key]
			if m == nil {
				m = &Mix{}
				sums[key] = m
			}
			for _, mode := range in.Modes {
				m[modeIndex(mode)] += share
			}
		}
	}
	out := make(map[string]Mix, len(sums))
	for key, m := range sums {
		total := m[0] + m[1] + m[2]
		if total <= 0 {
			continue
		}
		out[key] = Mix{m[0] / total, m[1] / total, m[2] / total}
	}
	if _, ok := out[""]; !ok {
		out[""] = Mix{1, 0, 0}
	}
	log.Printf("solar: tracking mix for %d states, national %v", len(out)-1, out[""])
	return out
}
