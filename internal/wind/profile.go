package wind

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/profile"
)

// ErrMissingHour is returned by a Source when an hour's file is absent or
// empty. The hour is recorded as NaN and later interpolated.
var ErrMissingHour = errors.New("wind: hour not available")

// Source supplies the 80 m U and V components for one UTC hour over the
// whole grid, in row-major order.
type Source interface {
	Wind(ctx context.Context, hour time.Time) (u, v []float64, err error)
}

func isOffshore(p profile.Plant) bool {
	return p.Technology == models.TechWindOffshore || p.PrimeMover == models.PrimeMoverWindOffshore
}

// Speeds reads every hour from src and returns the wind speed series for
// each requested grid cell offset. Missing hours are NaN.
func Speeds(ctx context.Context, src Source, grid *geo.Grid, cells []int, hours []time.Time) (map[int][]float64, error) {
	out := make(map[int][]float64, len(cells))
	for _, c := range cells {
		out[c] = make([]float64, len(hours))
	}
	size := grid.NY * grid.NX
	missing := 0
	for h, hour := range hours {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, v, err := src.Wind(ctx, hour)
		if errors.Is(err, ErrMissingHour) {
			log.Printf("wind: hour %s missing, recorded NaN", hour.Format(time.RFC3339))
			missing++
			for _, c := range cells {
				out[c][h] = math.NaN()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("wind: hour %s: %w", hour.Format(time.RFC3339), err)
		}
		if len(u) != size || len(v) != size {
			return nil, fmt.Errorf("wind: hour %s: got %d/%d values, grid has %d", hour.Format(time.RFC3339), len(u), len(v), size)
		}
		for _, c := range cells {
			out[c][h] = math.Hypot(u[c], v[c])
		}
		if (h+1)%500 == 0 {
			log.Printf("wind: read %d/%d hours", h+1, len(hours))
		}
	}
	if missing > 0 {
		log.Printf("wind: %d of %d hours missing", missing, len(hours))
	}
	return out, nil
}

// Builder produces wind profiles for a year.
type Builder struct {
	Source   Source
	Grid     *geo.Grid
	Selector *Selector
	Config   config.Wind
}

func (b *Builder) Build(ctx context.Context, plants []profile.Plant, year int) (*profile.Profile, error) {
	cellOf := make(map[int64]int, len(plants))
	seen := map[int]bool{}
	var cells []int
	for _, p := range plants {
		i, j := b.Grid.NearestCell(p.Lat, p.Lon)
		c := b.Grid.Offset(i, j)
		cellOf[p.PlantID] = c
		if !seen[c] {
			seen[c] = true
			cells = append(cells, c)
		}
	}
	sort.Ints(cells)
	log.Printf("wind: %d plants map to %d grid cells", len(plants), len(cells))

	speeds, err := Speeds(ctx, b.Source, b.Grid, cells, profile.Hours(year))
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		n, err := profile.FillGaps(speeds[c], b.Config.MaxGapHours)
		if err != nil {
			return nil, fmt.Errorf("wind: cell %d: %w", c, err)
		}
		metrics.Impute("wind", "missing_hour", n)
	}

	sources := map[string]int{}
	out := profile.New(year)
	for _, p := range plants {
		curve, src := b.Selector.CurveFor(p)
		sources[src]++
		ws := speeds[cellOf[p.PlantID]]
		values := make([]float64, len(ws))
		for h, v := range ws {
			values[h] = curve.At(v)
		}
		if err := out.Set(p.PlantID, values); err != nil {
			return nil, fmt.Errorf("wind: %w", err)
		}
	}
	log.Printf("wind: curve sources %v", sources)
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("wind: %w", err)
	}
	return out, nil
}
