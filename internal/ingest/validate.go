package ingest

import (
	"math"

	"github.com/lox/gridprep/internal/solar"
)

const (
	FlagTempOutOfRange      = "temp_out_of_range"
	FlagIrradianceNegative  = "irradiance_negative"
	FlagIrradianceUnlikely  = "irradiance_unlikely"
	FlagWindSpeedUnlikely   = "wind_speed_unlikely"
	FlagWindComponentBroken = "wind_component_unlikely"
)

// ValidateWeather counts implausible hourly values per flag. Flags are
// reported, not repaired.
func ValidateWeather(w *solar.Weather) map[string]int {
	flags := map[string]int{}
	for h := 0; h < w.Hours(); h++ {
		if t := w.Temperature[h]; t < -60 || t > 60 {
			flags[FlagTempOutOfRange]++
		}
		if w.DNI[h] < 0 || w.DHI[h] < 0 || (w.GHI != nil && w.GHI[h] < 0) {
			flags[FlagIrradianceNegative]++
		}
		if w.DNI[h] > 1500 || w.DHI[h] > 1000 || (w.GHI != nil && w.GHI[h] > 1500) {
			flags[FlagIrradianceUnlikely]++
		}
		if ws := w.WindSpeed[h]; ws < 0 || ws > 60 {
			flags[FlagWindSpeedUnlikely]++
		}
	}
	return flags
}

// ValidateWind counts grid points whose U or V component is NaN or faster
// than 100 m/s.
func ValidateWind(u, v []float64) map[string]int {
	flags := map[string]int{}
	for i := range u {
		if math.IsNaN(u[i]) || math.IsNaN(v[i]) || math.Abs(u[i]) > 100 || math.Abs(v[i]) > 100 {
			flags[FlagWindComponentBroken]++
		}
	}
	return flags
}
