package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lox/gridprep/internal/models"
)

//go:embed assumptions.yaml
var defaultAssumptions []byte

// Quadratic holds heat-rate coefficients h0 + h1·P + h2·P².
type Quadratic struct {
	H0 float64 `yaml:"h0"`
	H1 float64 `yaml:"h1"`
	H2 float64 `yaml:"h2"`
}

func (q Quadratic) Array() [3]float64 { return [3]float64{q.H0, q.H1, q.H2} }

type HeatRateBound struct {
	Technology models.Technology `yaml:"technology"`
	PrimeMover models.PrimeMover `yaml:"prime_mover"`
	MinMW      float64           `yaml:"min_mw"`
	MaxMW      float64           `yaml:"max_mw"`
	Low        float64           `yaml:"low"`
	High       float64           `yaml:"high"`
}

type HeatRateFit struct {
	MinSamples      int `yaml:"min_samples"`
	MinDistinctLoad int `yaml:"min_distinct_load"`
}

type Cleaner struct {
	MaxEndpointMiles float64            `yaml:"max_endpoint_miles"`
	VoltageClasses   map[string]float64 `yaml:"voltage_classes"`
}

type LineParameter struct {
	KV      float64 `yaml:"kv"`
	ROhmKM  float64 `yaml:"r_ohm_km"`
	XOhmKM  float64 `yaml:"x_ohm_km"`
	BuSKM   float64 `yaml:"b_us_km"`
	RateMVA float64 `yaml:"rate_mva"`
}

type Transformer struct {
	R              float64 `yaml:"r"`
	X              float64 `yaml:"x"`
	RatingMultiple float64 `yaml:"rating_multiple"`
}

type Network struct {
	BaseMVA        float64         `yaml:"base_mva"`
	DefaultKV      float64         `yaml:"default_kv"`
	LineParameters []LineParameter `yaml:"line_parameters"`
	Transformer    Transformer     `yaml:"transformer"`
}

type Seam struct {
	Name  string `yaml:"name"`
	State string `yaml:"state"`
}

type Partition struct {
	Labels        []models.Interconnect         `yaml:"labels"`
	ExpectedMajor int                           `yaml:"expected_major"`
	MajorShare    float64                       `yaml:"major_share"`
	Seams         []Seam                        `yaml:"seams"`
	LineOverrides map[int64]models.Interconnect `yaml:"line_overrides"`
	DCRatings     map[string]float64            `yaml:"dc_ratings"`
}

type Placement struct {
	ZIPWindow int `yaml:"zip_window"`
}

type Demand struct {
	PerCapitaMW     float64 `yaml:"per_capita_mw"`
	LoadSubFraction float64 `yaml:"load_sub_fraction"`
}

type Wind struct {
	ReferenceHeightM float64 `yaml:"reference_height_m"`
	ShearExponent    float64 `yaml:"shear_exponent"`
	MaxGapHours      int     `yaml:"max_gap_hours"`
	SmoothingRSD     float64 `yaml:"smoothing_rsd"`
	SmoothingMinSD   float64 `yaml:"smoothing_min_sd"`
}

type Solar struct {
	DefaultILR         float64 `yaml:"default_ilr"`
	Albedo             float64 `yaml:"albedo"`
	SystemLosses       float64 `yaml:"system_losses"`
	InverterEfficiency float64 `yaml:"inverter_efficiency"`
	TempCoefficient    float64 `yaml:"temp_coefficient"`
	SingleAxisMaxAngle float64 `yaml:"single_axis_max_angle"`
}

type Hydro struct {
	AnomalyHigh  float64 `yaml:"anomaly_high"`
	AnomalyLow   float64 `yaml:"anomaly_low"`
	MaxAnomalies int     `yaml:"max_anomalies"`
	// MaxMissingHours bounds interpolation of hours absent from the EIA
	// series. Above it the BA falls back to the default shape.
	MaxMissingHours int `yaml:"max_missing_hours"`
}

type Fetch struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Assumptions holds every externalised constant and lookup table used by the
// pipeline.
type Assumptions struct {
	FuelPrices       map[models.FuelType]float64   `yaml:"fuel_prices"`
	HeatRateFit      HeatRateFit                   `yaml:"heat_rate_fit"`
	HeatRateBounds   []HeatRateBound               `yaml:"heat_rate_bounds"`
	ZeroFuelHeatRate map[models.FuelType]Quadratic `yaml:"zero_fuel_heat_rate"`
	FallbackHeatRate map[models.FuelType]Quadratic `yaml:"fallback_heat_rate"`
	Cleaner          Cleaner                       `yaml:"cleaner"`
	Network          Network                       `yaml:"network"`
	Partition        Partition                     `yaml:"partition"`
	Placement        Placement                     `yaml:"placement"`
	Demand           Demand                        `yaml:"demand"`
	Wind             Wind                          `yaml:"wind"`
	Solar            Solar                         `yaml:"solar"`
	Hydro            Hydro                         `yaml:"hydro"`
	Fetch            Fetch                         `yaml:"fetch"`
	StateAdjacency   map[string][]string           `yaml:"state_adjacency"`
}

// Default returns the embedded assumption tables.
func Default() *Assumptions {
	a := &Assumptions{}
	if err := yaml.Unmarshal(defaultAssumptions, a); err != nil {
		panic(fmt.Sprintf("config: embedded assumptions: %v", err))
	}
	return a
}

// Load returns the embedded defaults overlaid with the file at path. Maps are
// merged key by key; lists in the file replace the defaults.
func Load(path string) (*Assumptions, error) {
	a := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read assumptions: %w", err)
		}
		if err := yaml.Unmarshal(b, a); err != nil {
			return nil, fmt.Errorf("parse assumptions %s: %w", path, err)
		}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Assumptions) Validate() error {
	for fuel, p := range a.FuelPrices {
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("fuel price for %s must be non-negative, got %v", fuel, p)
		}
	}
	for i, b := range a.HeatRateBounds {
		if b.Low > b.High {
			return fmt.Errorf("heat_rate_bounds[%d] (%s): low %v > high %v", i, b.Technology, b.Low, b.High)
		}
		if b.MaxMW > 0 && b.MinMW >= b.MaxMW {
			return fmt.Errorf("heat_rate_bounds[%d] (%s): empty size bucket [%v, %v)", i, b.Technology, b.MinMW, b.MaxMW)
		}
	}
	if a.HeatRateFit.MinDistinctLoad < 3 {
		return fmt.Errorf("heat_rate_fit.min_distinct_load must be at least 3 for a quadratic fit")
	}
	if len(a.Partition.Labels) == 0 {
		return fmt.Errorf("partition.labels is empty")
	}
	seen := map[models.Interconnect]bool{}
	for _, l := range a.Partition.Labels {
		if _, err := models.ParseInterconnect(string(l)); err != nil {
			return fmt.Errorf("partition.labels: %w", err)
		}
		if seen[l] {
			return fmt.Errorf("partition.labels: duplicate %s", l)
		}
		seen[l] = true
	}
	if a.Partition.ExpectedMajor > len(a.Partition.Labels) {
		return fmt.Errorf("partition.expected_major %d exceeds %d labels", a.Partition.ExpectedMajor, len(a.Partition.Labels))
	}
	for id, ic := range a.Partition.LineOverrides {
		if _, err := models.ParseInterconnect(string(ic)); err != nil {
			return fmt.Errorf("partition.line_overrides[%d]: %w", id, err)
		}
	}
	if len(a.Network.LineParameters) == 0 {
		return fmt.Errorf("network.line_parameters is empty")
	}
	if a.Demand.PerCapitaMW <= 0 {
		return fmt.Errorf("demand.per_capita_mw must be positive")
	}
	if a.Demand.LoadSubFraction <= 0 || a.Demand.LoadSubFraction > 1 {
		return fmt.Errorf("demand.load_sub_fraction must be in (0, 1]")
	}
	if a.Hydro.MaxMissingHours < 0 {
		return fmt.Errorf("hydro.max_missing_hours must not be negative")
	}
	if a.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1")
	}
	return nil
}

// FuelPrice returns the configured price for fuel in $/MMBtu, or 0.
func (a *Assumptions) FuelPrice(fuel models.FuelType) float64 {
	return a.FuelPrices[fuel]
}

// HeatRateBound finds the plausible marginal heat-rate range for a unit.
func (a *Assumptions) HeatRateBound(tech models.Technology, pm models.PrimeMover, pmax float64) (HeatRateBound, bool) {
	for _, b := range a.HeatRateBounds {
		if b.Technology != tech {
			continue
		}
		if b.PrimeMover != "" && b.PrimeMover != pm {
			continue
		}
		if pmax < b.MinMW || (b.MaxMW > 0 && pmax >= b.MaxMW) {
			continue
		}
		return b, true
	}
	return HeatRateBound{}, false
}

// LineParameter returns the per-km parameters of the entry nearest to kv.
func (n Network) LineParameter(kv float64) LineParameter {
	best := n.LineParameters[0]
	for _, p := range n.LineParameters[1:] {
		if math.Abs(p.KV-kv) < math.Abs(best.KV-kv) {
			best = p
		}
	}
	return best
}

// Adjacent reports whether two states share a border. A state is adjacent
// to itself.
func (a *Assumptions) Adjacent(s1, s2 string) bool {
	s1, s2 = strings.ToUpper(s1), strings.ToUpper(s2)
	if s1 == s2 {
		return true
	}
	for _, s := range a.StateAdjacency[s1] {
		if s == s2 {
			return true
		}
	}
	for _, s := range a.StateAdjacency[s2] {
		if s == s1 {
			return true
		}
	}
	return false
}

// Neighborhood returns the given states plus every state adjacent to one of
// them, sorted.
func (a *Assumptions) Neighborhood(states []string) []string {
	set := map[string]bool{}
	for _, s := range states {
		s = strings.ToUpper(s)
		set[s] = true
		for _, n := range a.StateAdjacency[s] {
			set[n] = true
		}
		for other, ns := range a.StateAdjacency {
			for _, n := range ns {
				if n == s {
					set[other] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
