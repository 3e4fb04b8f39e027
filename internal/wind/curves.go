// Package wind turns HRRR 80 m wind speeds into normalised plant output
// using turbine power curves.
package wind

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lox/gridprep/internal/tabular"
)

//go:embed power_curves.csv
var defaultCurves []byte

const (
	OffshoreCurve = "Offshore"
	// curves are tabulated up to this speed; anything faster is past cut-out
	maxSpeed  = 30.0
	speedStep = 0.5
)

// Curve maps wind speed (m/s) to output as a fraction of rated power.
type Curve struct {
	Speeds []float64
	Power  []float64
	pl     interp.PiecewiseLinear
}

func NewCurve(speeds, power []float64) (*Curve, error) {
	if len(speeds) != len(power) {
		return nil, fmt.Errorf("curve has %d speeds and %d power values", len(speeds), len(power))
	}
	c := &Curve{Speeds: speeds, Power: power}
	if err := c.pl.Fit(speeds, power); err != nil {
		return nil, fmt.Errorf("fit curve: %w", err)
	}
	return c, nil
}

// At returns normalised power at speed v, clamped to [0, 1].
func (c *Curve) At(v float64) float64 {
	if math.IsNaN(v) || v < 0 || v > c.Speeds[len(c.Speeds)-1] {
		return 0
	}
	p := c.pl.Predict(v)
	return math.Max(0, math.Min(1, p))
}

func speedGrid() []float64 {
	n := int(maxSpeed/speedStep) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * speedStep
	}
	return out
}

// Shift re-expresses a curve rated at hubHeight in terms of the wind speed
// measured at refHeight, assuming a power-law shear profile.
func (c *Curve) Shift(hubHeight, refHeight, shear float64) (*Curve, error) {
	if hubHeight <= 0 || hubHeight == refHeight {
		return c, nil
	}
	factor := math.Pow(hubHeight/refHeight, shear)
	speeds := speedGrid()
	power := make([]float64, len(speeds))
	for i, v := range speeds {
		power[i] = c.At(v * factor)
	}
	return NewCurve(speeds, power)
}

// Smooth convolves the curve with a Gaussian whose standard deviation at
// speed v is max(minSD, rsd*v).
func (c *Curve) Smooth(rsd, minSD float64) (*Curve, error) {
	speeds := speedGrid()
	raw := make([]float64, len(speeds))
	for i, v := range speeds {
		raw[i] = c.At(v)
	}
	power := make([]float64, len(speeds))
	weights := make([]float64, len(speeds))
	for i, v := range speeds {
		k := distuv.Normal{Mu: v, Sigma: math.Max(minSD, rsd*v)}
		for j, u := range speeds {
			weights[j] = k.Prob(u)
		}
		power[i] = stat.Mean(raw, weights)
	}
	return NewCurve(speeds, power)
}

// Average returns the weighted mean of curves on the common speed grid.
func Average(curves []*Curve, weights []float64) (*Curve, error) {
	if len(curves) == 0 || len(curves) != len(weights) {
		return nil, fmt.Errorf("average: %d curves, %d weights", len(curves), len(weights))
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, fmt.Errorf("average: total weight %v", total)
	}
	speeds := speedGrid()
	power := make([]float64, len(speeds))
	sample := make([]float64, len(curves))
	for i, v := range speeds {
		for k, c := range curves {
			sample[k] = c.At(v)
		}
		power[i] = floats.Dot(sample, weights) / total
	}
	return NewCurve(speeds, power)
}

// CurveSet is a named table of turbine power curves.
type CurveSet struct {
	curves map[string]*Curve
	names  []string
}

func curveKey(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, name)
}

// DefaultCurves returns the built-in IEC class, offshore and common turbine
// model curves.
func DefaultCurves() (*CurveSet, error) {
	return LoadCurves(bytes.NewReader(defaultCurves))
}

// LoadCurves reads a CSV with a Speed column followed by one column per
// curve.
func LoadCurves(r io.Reader) (*CurveSet, error) {
	t, err := tabular.NewReader(r, "Speed")
	if err != nil {
		return nil, fmt.Errorf("load power curves: %w", err)
	}
	var names []string
	for _, c := range t.Columns() {
		if c != "SPEED" {
			names = append(names, c)
		}
	}
	var speeds []float64
	power := make([][]float64, len(names))
	for t.Next() {
		v, ok := t.Float("Speed")
		if !ok {
			return nil, fmt.Errorf("load power curves: line %d: bad speed", t.Line())
		}
		speeds = append(speeds, v)
		for i, n := range names {
			p, _ := t.Float(n)
			power[i] = append(power[i], p)
		}
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("load power curves: %w", err)
	}
	set := &CurveSet{curves: make(map[string]*Curve, len(names))}
	for i, n := range names {
		c, err := NewCurve(speeds, power[i])
		if err != nil {
			return nil, fmt.Errorf("load power curves: %s: %w", n, err)
		}
		k := curveKey(n)
		set.curves[k] = c
		set.names = append(set.names, k)
	}
	sort.Strings(set.names)
	return set, nil
}

// Get looks a curve up by name, ignoring case and punctuation.
func (s *CurveSet) Get(name string) (*Curve, bool) {
	c, ok := s.curves[curveKey(name)]
	return c, ok
}

// IEC returns the default curve for an IEC wind class (1-3).
func (s *CurveSet) IEC(class int) (*Curve, bool) {
	if class < 1 || class > 3 {
		return nil, false
	}
	return s.Get(fmt.Sprintf("IEC class %d", class))
}
