package wind

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/profile"
	"github.com/lox/gridprep/internal/tabular"
)

const feetToMetres = 0.3048

// Farm is one row of the EIA-860 wind table.
type Farm struct {
	PlantCode   int64
	GeneratorID string
	State       string
	Capacity    float64
	Model       string
	HubHeightM  float64
	WindClass   int
	Offshore    bool
}

type farmKey struct {
	plant int64
	gen   string
}

// LoadFarms reads the EIA-860 wind generator table.
func LoadFarms(r io.Reader) ([]Farm, error) {
	t, err := tabular.NewReader(r, "Plant Code", "Generator ID", "State", "Nameplate Capacity (MW)")
	if err != nil {
		return nil, fmt.Errorf("load wind farms: %w", err)
	}
	var out []Farm
	for t.Next() {
		code, ok := t.Int("Plant Code")
		if !ok {
			metrics.Drop("wind", "bad_plant_code", 1)
			continue
		}
		f := Farm{
			PlantCode:   code,
			GeneratorID: t.String("Generator ID"),
			State:       t.String("State"),
			Model:       t.String("Predominant Turbine Model Number"),
		}
		f.Capacity, _ = t.Float("Nameplate Capacity (MW)")
		if ft, ok := t.Float("Turbine Hub Height (Feet)"); ok {
			f.HubHeightM = ft * feetToMetres
		}
		if c, ok := t.Int("Wind Quality Class"); ok {
			f.WindClass = int(c)
		}
		switch t.String("Offshore? (Y/N)") {
		case "Y", "y":
			f.Offshore = true
		}
		out = append(out, f)
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("load wind farms: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlantCode != out[j].PlantCode {
			return out[i].PlantCode < out[j].PlantCode
		}
		return out[i].GeneratorID < out[j].GeneratorID
	})
	return out, nil
}

// baseCurve picks a farm's rated curve: its turbine model if known, else
// its IEC class, else IEC class 2.
func baseCurve(set *CurveSet, f Farm) *Curve {
	if c, ok := set.Get(f.Model); ok && f.Model != "" {
		return c
	}
	if c, ok := set.IEC(f.WindClass); ok {
		return c
	}
	c, _ := set.IEC(2)
	return c
}

// StateCurves builds one capacity-weighted curve per state from the onshore
// fleet, each farm's curve shifted to its hub height.
func StateCurves(set *CurveSet, farms []Farm, cfg config.Wind) (map[string]*Curve, error) {
	type acc struct {
		curves  []*Curve
		weights []float64
	}
	byState := map[string]*acc{}
	for _, f := range farms {
		if f.Offshore || f.Capacity <= 0 || f.State == "" {
			continue
		}
		base := baseCurve(set, f)
		if base == nil {
			return nil, fmt.Errorf("state curves: no default curve for farm %d/%s", f.PlantCode, f.GeneratorID)
		}
		shifted, err := base.Shift(f.HubHeightM, cfg.ReferenceHeightM, cfg.ShearExponent)
		if err != nil {
			return nil, fmt.Errorf("state curves: farm %d/%s: %w", f.PlantCode, f.GeneratorID, err)
		}
		a := byState[f.State]
		if a == nil {
			a = &acc{}
			byState[f.State] = a
		}
		a.curves = append(a.curves, shifted)
		a.weights = append(a.weights, f.Capacity)
	}

	out := make(map[string]*Curve, len(byState))
	for state, a := range byState {
		c, err := Average(a.curves, a.weights)
		if err != nil {
			return nil, fmt.Errorf("state curves: %s: %w", state, err)
		}
		if cfg.SmoothingRSD > 0 {
			if c, err = c.Smooth(cfg.SmoothingRSD, cfg.SmoothingMinSD); err != nil {
				return nil, fmt.Errorf("state curves: %s: %w", state, err)
			}
		}
		out[state] = c
	}
	log.Printf("wind: built %d state curves from %d farms", len(out), len(farms))
	return out, nil
}

// Curve sources reported by Selector.
const (
	SourceModel    = "model"
	SourceIEC      = "iec"
	SourceOffshore = "offshore"
	SourceState    = "state"
	SourceDefault  = "default"
)

// Selector chooses the power curve for each plant.
type Selector struct {
	set    *CurveSet
	farms  map[farmKey]Farm
	states map[string]*Curve
}

func NewSelector(set *CurveSet, farms []Farm, cfg config.Wind) (*Selector, error) {
	states, err := StateCurves(set, farms, cfg)
	if err != nil {
		return nil, err
	}
	s := &Selector{set: set, farms: make(map[farmKey]Farm, len(farms)), states: states}
	for _, f := range farms {
		s.farms[farmKey{f.PlantCode, f.GeneratorID}] = f
	}
	return s, nil
}

// CurveFor returns the curve for p and where it came from. The order is
// explicit turbine model, IEC class, offshore, state average, then IEC
// class 2.
func (s *Selector) CurveFor(p profile.Plant) (*Curve, string) {
	f, known := s.farms[farmKey{p.PlantCode, p.GeneratorID}]
	if known && f.Model != "" {
		if c, ok := s.set.Get(f.Model); ok {
			return c, SourceModel
		}
	}
	if known {
		if c, ok := s.set.IEC(f.WindClass); ok {
			return c, SourceIEC
		}
	}
	if (known && f.Offshore) || isOffshore(p) {
		if c, ok := s.set.Get(OffshoreCurve); ok {
			return c, SourceOffshore
		}
	}
	if c, ok := s.states[p.State]; ok {
		return c, SourceState
	}
	c, _ := s.set.IEC(2)
	return c, SourceDefault
}
