package generators

import (
	"math"
	"testing"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/models"
)

func repeat(n int, pts ...[2]float64) []Sample {
	var out []Sample
	for i := 0; i < n; i++ {
		for _, p := range pts {
			out = append(out, Sample{LoadMW: p[0], HeatMMBtu: p[1]})
		}
	}
	return out
}

func TestFitHeatRate_ConcaveSamples(t *testing.T) {
	samples := repeat(8, [2]float64{100, 1000}, [2]float64{200, 1900}, [2]float64{300, 2700})
	h, reason := FitHeatRate(samples, config.Default().HeatRateFit)
	if reason != "" {
		t.Fatalf("FitHeatRate: %s", reason)
	}
	for i, c := range h {
		if c < 0 || math.IsNaN(c) {
			t.Errorf("h%d = %v, want non-negative", i, c)
		}
	}
	// The exact interpolant is concave; the best non-negative fit is linear.
	if math.Abs(h[1]-8.5) > 1e-6 || math.Abs(h[0]-500.0/3) > 1e-4 || h[2] > 1e-12 {
		t.Errorf("h = %v, want about (166.67, 8.5, 0)", h)
	}
	for _, s := range samples[:3] {
		got := h[0] + h[1]*s.LoadMW + h[2]*s.LoadMW*s.LoadMW
		if rel := math.Abs(got-s.HeatMMBtu) / s.HeatMMBtu; rel > 0.02 {
			t.Errorf("curve at %v = %v, %.2f%% from %v", s.LoadMW, got, rel*100, s.HeatMMBtu)
		}
	}
}

func TestFitHeatRate_RecoversQuadratic(t *testing.T) {
	var samples []Sample
	for x := 10.0; x <= 300; x += 10 {
		samples = append(samples, Sample{LoadMW: x, HeatMMBtu: 50 + 8*x + 0.002*x*x})
	}
	h, reason := FitHeatRate(samples, config.Default().HeatRateFit)
	if reason != "" {
		t.Fatalf("FitHeatRate: %s", reason)
	}
	want := [3]float64{50, 8, 0.002}
	for i := range want {
		if math.Abs(h[i]-want[i]) > 1e-6*math.Max(1, want[i]) {
			t.Errorf("h%d = %v, want %v", i, h[i], want[i])
		}
	}
}

func TestFitHeatRate_InsufficientData(t *testing.T) {
	cfg := config.Default().HeatRateFit
	tests := []struct {
		name    string
		samples []Sample
		reason  string
	}{
		{"too few samples", repeat(1, [2]float64{100, 1000}, [2]float64{200, 1900}, [2]float64{300, 2700}), "too_few_samples"},
		{"two distinct loads", repeat(12, [2]float64{100, 1000}, [2]float64{200, 1900}), "too_few_loads"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, reason := FitHeatRate(tt.samples, cfg)
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
			if hasCurve(h) {
				t.Errorf("h = %v, want NaN", h)
			}
		})
	}
}

func TestSanityCheck(t *testing.T) {
	a := config.Default()
	tests := []struct {
		name string
		gen  models.Generator
		want bool
	}{
		{"CC in range", models.Generator{Technology: models.TechNGCombinedCycle, Pmax: 500, HeatRate: [3]float64{100, 6.5, 0.001}}, true},
		{"CC too efficient", models.Generator{Technology: models.TechNGCombinedCycle, Pmax: 500, HeatRate: [3]float64{100, 3, 0.001}}, false},
		{"CC curvature pushes out", models.Generator{Technology: models.TechNGCombinedCycle, Pmax: 500, HeatRate: [3]float64{0, 7, 0.02}}, false},
		{"small CT uses wider range", models.Generator{Technology: models.TechNGCombustion, Pmax: 50, HeatRate: [3]float64{0, 19, 0}}, true},
		{"large CT", models.Generator{Technology: models.TechNGCombustion, Pmax: 200, HeatRate: [3]float64{0, 19, 0}}, false},
		{"no configured range", models.Generator{Technology: models.TechGeothermal, Pmax: 50, HeatRate: [3]float64{0, 99, 0}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanityCheck(a, tt.gen); got != tt.want {
				t.Errorf("SanityCheck() = %v, want %v (effective %v)", got, tt.want,
					EffectiveHeatRate(tt.gen.HeatRate, tt.gen.Pmax, tt.gen.Pmin))
			}
		})
	}
}

func ccgt(pmax float64, h [3]float64) models.Generator {
	return models.Generator{
		Technology: models.TechNGCombinedCycle,
		PrimeMover: models.PrimeMoverCombinedCycleCT,
		Fuel:       models.FuelNG,
		Pmax:       pmax,
		HeatRate:   h,
	}
}

func TestImpute_Regression(t *testing.T) {
	gens := []models.Generator{
		ccgt(100, [3]float64{100, 7, 0.001}),
		ccgt(500, [3]float64{300, 6, 0.0005}),
		ccgt(300, nanCurve),
	}
	Impute(gens, config.Default())
	want := [3]float64{200, 6.5, 0.00075}
	for i := range want {
		if math.Abs(gens[2].HeatRate[i]-want[i]) > 1e-9 {
			t.Errorf("h%d = %v, want %v", i, gens[2].HeatRate[i], want[i])
		}
	}
	if gens[0].HeatRate != [3]float64{100, 7, 0.001} {
		t.Errorf("valid curve changed: %v", gens[0].HeatRate)
	}
}

func TestImpute_Fallbacks(t *testing.T) {
	a := config.Default()
	t.Run("group mean with one distinct Pmax", func(t *testing.T) {
		gens := []models.Generator{
			ccgt(200, [3]float64{10, 7, 0}),
			ccgt(200, [3]float64{30, 9, 0}),
			ccgt(400, nanCurve),
		}
		Impute(gens, a)
		if gens[2].HeatRate != [3]float64{20, 8, 0} {
			t.Errorf("HeatRate = %v, want group mean", gens[2].HeatRate)
		}
	})
	t.Run("fuel default", func(t *testing.T) {
		gens := []models.Generator{{Technology: models.TechCoalSteam, PrimeMover: models.PrimeMoverSteamTurbine, Fuel: models.FuelCoal, Pmax: 300, HeatRate: nanCurve}}
		Impute(gens, a)
		if gens[0].HeatRate != a.FallbackHeatRate[models.FuelCoal].Array() {
			t.Errorf("HeatRate = %v, want coal default", gens[0].HeatRate)
		}
	})
	t.Run("negative regression clamps to zero", func(t *testing.T) {
		gens := []models.Generator{
			ccgt(100, [3]float64{100, 7, 0}),
			ccgt(200, [3]float64{50, 7, 0}),
			ccgt(400, nanCurve),
		}
		Impute(gens, a)
		if gens[2].HeatRate[0] != 0 {
			t.Errorf("h0 = %v, want clamped to 0", gens[2].HeatRate[0])
		}
	})
}

func TestApplyCost(t *testing.T) {
	a := config.Default()
	gens := []models.Generator{ccgt(100, [3]float64{100, 7, 0.001})}
	ApplyCost(gens, a)
	price := a.FuelPrice(models.FuelNG)
	for i := 0; i < 3; i++ {
		if gens[0].Cost[i] != gens[0].HeatRate[i]*price {
			t.Errorf("c%d = %v, want %v", i, gens[0].Cost[i], gens[0].HeatRate[i]*price)
		}
	}
}
