package solar

import (
	"context"
	"fmt"
	"log"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/profile"
)

// Source fetches one year of weather for a location.
type Source interface {
	Weather(ctx context.Context, lat, lon float64, year int) (*Weather, error)
}

// LocationKey rounds a location to the precision used for weather requests
// and cache keys.
func LocationKey(lat, lon float64) string { return fmt.Sprintf("%.6f,%.6f", lat, lon) }

type installKey struct {
	plant int64
	gen   string
}

// Builder produces solar profiles for a year.
type Builder struct {
	Source Source
	Fleet  []Installation
	Config config.Solar
}

func (b *Builder) Build(ctx context.Context, plants []profile.Plant, year int) (*profile.Profile, error) {
	mix := FleetMix(b.Fleet)
	installs := make(map[installKey]Installation, len(b.Fleet))
	for _, in := range b.Fleet {
		installs[installKey{in.PlantCode, in.GeneratorID}] = in
	}

	weather := map[string]*Weather{}
	for _, p := range plants {
		key := LocationKey(p.Lat, p.Lon)
		if _, ok := weather[key]; ok {
			continue
		}
		w, err := b.Source.Weather(ctx, p.Lat, p.Lon, year)
		if err != nil {
			return nil, fmt.Errorf("solar: weather for %s: %w", key, err)
		}
		if w.Hours() != profile.HoursInYear(year) {
			return nil, fmt.Errorf("solar: weather for %s has %d hours", key, w.Hours())
		}
		weather[key] = w
	}
	log.Printf("solar: %d plants at %d unique locations", len(plants), len(weather))

	out := profile.New(year)
	blended := 0
	for _, p := range plants {
		w := weather[LocationKey(p.Lat, p.Lon)]
		in, known := installs[installKey{p.PlantCode, p.GeneratorID}]
		var series []float64
		if known && len(in.Modes) == 1 {
			series = Simulate(w, p.Lat, p.Lon, Array{
				Tracking:   in.Modes[0],
				TiltDeg:    in.TiltDeg,
				AzimuthDeg: in.AzimuthDeg,
				ILR:        in.ILR(),
			}, b.Config)
		} else {
			m, ok := mix[p.State]
			if !ok {
				m = mix[""]
			}
			series = Blend(w, p.Lat, p.Lon, in.ILR(), m, b.Config)
			blended++
		}
		if err := out.Set(p.PlantID, series); err != nil {
			return nil, fmt.Errorf("solar: %w", err)
		}
	}
	log.Printf("solar: %d plants used the state tracking blend", blended)
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("solar: %w", err)
	}
	return out, nil
}
