// Package hydro derives hydro plant profiles from hourly balancing
// authority generation.
package hydro

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/profile"
)

// Observation is one hourly net generation value (MWh) for a balancing
// authority.
type Observation struct {
	BA     string
	Period time.Time
	Value  float64
}

// Align arranges observations into one series per BA covering every UTC
// hour of year. Hours without an observation are NaN; observations outside
// the year are ignored.
func Align(obs []Observation, year int) map[string][]float64 {
	n := profile.HoursInYear(year)
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	out := map[string][]float64{}
	for _, o := range obs {
		h := int(o.Period.UTC().Sub(start) / time.Hour)
		if h < 0 || h >= n {
			continue
		}
		s, ok := out[o.BA]
		if !ok {
			s = make([]float64, n)
			for i := range s {
				s[i] = math.NaN()
			}
			out[o.BA] = s
		}
		s[h] = o.Value
	}
	return out
}

// ErrTooManyMissing reports a series with more absent hours than
// config.Hydro.MaxMissingHours.
var ErrTooManyMissing = errors.New("too many missing hours")

// Screen replaces values outside [low*capacity, high*capacity] with NaN and
// then interpolates every NaN. It fails when more than cfg.MaxAnomalies
// values are out of range, or with ErrTooManyMissing when more than
// cfg.MaxMissingHours hours were absent to begin with. missing counts the
// absent hours that were filled.
func Screen(series []float64, capacity float64, cfg config.Hydro) (anomalies, missing int, err error) {
	for i, v := range series {
		if math.IsNaN(v) {
			missing++
			continue
		}
		if capacity <= 0 {
			continue
		}
		if v > cfg.AnomalyHigh*capacity || v < cfg.AnomalyLow*capacity {
			series[i] = math.NaN()
			anomalies++
		}
	}
	if anomalies > cfg.MaxAnomalies {
		return anomalies, missing, fmt.Errorf("%d anomalous hours exceeds limit of %d", anomalies, cfg.MaxAnomalies)
	}
	if missing > cfg.MaxMissingHours {
		return anomalies, missing, fmt.Errorf("%w: %d of %d, limit %d", ErrTooManyMissing, missing, len(series), cfg.MaxMissingHours)
	}
	if _, err := profile.FillGaps(series, missing+anomalies); err != nil {
		return anomalies, missing, err
	}
	return anomalies, missing, nil
}

// Normalize divides a screened series by max(capacity, peak) and clamps
// negative net generation to zero. It returns the peak/capacity ratio, or 0
// when capacity is not positive.
func Normalize(series []float64, capacity float64) ([]float64, float64) {
	peak := 0.0
	for _, v := range series {
		peak = math.Max(peak, v)
	}
	denom := math.Max(capacity, peak)
	out := make([]float64, len(series))
	if denom <= 0 {
		return out, 0
	}
	for i, v := range series {
		out[i] = math.Max(0, v) / denom
	}
	if capacity <= 0 {
		return out, 0
	}
	return out, peak / capacity
}

// Build produces hydro profiles for plants from per-BA generation series.
func Build(plants []profile.Plant, generation map[string][]float64, year int, cfg config.Hydro) (*profile.Profile, error) {
	n := profile.HoursInYear(year)
	capacity := map[string]float64{}
	for _, p := range plants {
		capacity[p.BA] += p.Pmax
	}

	bas := make([]string, 0, len(capacity))
	for ba := range capacity {
		bas = append(bas, ba)
	}
	sort.Strings(bas)

	shapes := map[string][]float64{}
	for _, ba := range bas {
		raw, ok := generation[ba]
		if !ok || ba == "" {
			continue
		}
		if len(raw) != n {
			return nil, fmt.Errorf("hydro: %s has %d hours, want %d", ba, len(raw), n)
		}
		series := append([]float64(nil), raw...)
		anomalies, missing, err := Screen(series, capacity[ba], cfg)
		if err != nil {
			if anomalies > cfg.MaxAnomalies {
				return nil, &models.DataError{Stage: "hydro", Row: ba, Reason: err.Error()}
			}
			log.Printf("hydro: %s: %v, using default shape", ba, err)
			reason := "empty_series"
			if errors.Is(err, ErrTooManyMissing) {
				reason = "too_many_missing"
			}
			metrics.Drop("hydro", reason, 1)
			continue
		}
		if missing > 0 {
			log.Printf("hydro: %s: filled %d missing hours", ba, missing)
		}
		metrics.Impute("hydro", "anomaly", anomalies)
		metrics.Impute("hydro", "missing_hour", missing)
		shape, ratio := Normalize(series, capacity[ba])
		if ratio > 1 {
			log.Printf("hydro: %s peak generation is %.2fx hydro nameplate", ba, ratio)
		}
		shapes[ba] = shape
	}
	if len(shapes) == 0 {
		return nil, fmt.Errorf("hydro: no balancing authority has usable generation data")
	}

	def := make([]float64, n)
	total := 0.0
	for _, ba := range bas {
		shape, ok := shapes[ba]
		if !ok {
			continue
		}
		w := capacity[ba]
		if w <= 0 {
			continue
		}
		total += w
		for h, v := range shape {
			def[h] += w * v
		}
	}
	if total == 0 {
		// every BA with data has zero nameplate; weight them equally
		for _, ba := range bas {
			shape, ok := shapes[ba]
			if !ok {
				continue
			}
			for h, v := range shape {
				def[h] += v
			}
			total++
		}
	}
	for h := range def {
		def[h] /= total
	}

	out := profile.New(year)
	defaulted := 0
	for _, p := range plants {
		shape, ok := shapes[p.BA]
		if !ok {
			shape = def
			defaulted++
		}
		if err := out.Set(p.PlantID, append([]float64(nil), shape...)); err != nil {
			return nil, fmt.Errorf("hydro: %w", err)
		}
	}
	if defaulted > 0 {
		log.Printf("hydro: %d plants in balancing authorities without data use the default shape", defaulted)
		metrics.Impute("hydro", "default_shape", defaulted)
	}
	log.Printf("hydro: %d balancing authority shapes, %d plants", len(shapes), len(plants))
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("hydro: %w", err)
	}
	return out, nil
}
