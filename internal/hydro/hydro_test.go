package hydro

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/profile"
)

func TestAlign(t *testing.T) {
	obs := []Observation{
		{BA: "BPAT", Period: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), Value: 10},
		{BA: "BPAT", Period: time.Date(2019, 1, 1, 5, 0, 0, 0, time.UTC), Value: 15},
		{BA: "BPAT", Period: time.Date(2018, 12, 31, 23, 0, 0, 0, time.UTC), Value: 99},
	}
	got := Align(obs, 2019)
	s := got["BPAT"]
	if len(s) != 8760 {
		t.Fatalf("len = %d, want 8760", len(s))
	}
	if s[0] != 10 || s[5] != 15 || !math.IsNaN(s[1]) {
		t.Errorf("series head = %v", s[:6])
	}
}

func TestScreen(t *testing.T) {
	cfg := config.Hydro{AnomalyHigh: 2, AnomalyLow: -1, MaxAnomalies: 5}
	series := []float64{10, 250, 30, -150, 50}
	n, missing, err := Screen(series, 100, cfg)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if n != 2 || missing != 0 {
		t.Errorf("anomalies, missing = %d, %d, want 2, 0", n, missing)
	}
	want := []float64{10, 20, 30, 40, 50}
	for i := range want {
		if math.Abs(series[i]-want[i]) > 1e-9 {
			t.Errorf("series[%d] = %v, want %v", i, series[i], want[i])
		}
	}

	cfg.MaxAnomalies = 1
	if _, _, err := Screen([]float64{10, 250, 30, -150, 50}, 100, cfg); err == nil {
		t.Error("expected error when anomalies exceed the limit")
	}
}

func TestScreen_MissingHours(t *testing.T) {
	cfg := config.Hydro{AnomalyHigh: 2, AnomalyLow: -1, MaxAnomalies: 5, MaxMissingHours: 2}
	nan := math.NaN()
	series := []float64{10, nan, nan, 40}
	_, missing, err := Screen(series, 100, cfg)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if missing != 2 || series[1] != 20 || series[2] != 30 {
		t.Errorf("missing = %d, series = %v", missing, series)
	}

	_, missing, err = Screen([]float64{10, nan, nan, nan}, 100, cfg)
	if !errors.Is(err, ErrTooManyMissing) || missing != 3 {
		t.Errorf("Screen = %d, %v, want 3 missing and ErrTooManyMissing", missing, err)
	}
}

func TestScreen_ZeroCapacity(t *testing.T) {
	cfg := config.Hydro{AnomalyHigh: 2, AnomalyLow: -1, MaxAnomalies: 0}
	n, _, err := Screen([]float64{5, 10}, 0, cfg)
	if err != nil || n != 0 {
		t.Errorf("Screen = %d, %v, want no anomalies", n, err)
	}
}

func TestNormalize(t *testing.T) {
	out, ratio := Normalize([]float64{-5, 75, 150}, 100)
	if ratio != 1.5 {
		t.Errorf("ratio = %v, want 1.5", ratio)
	}
	want := []float64{0, 0.5, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestNormalize_ZeroCapacity(t *testing.T) {
	out, ratio := Normalize([]float64{0, 50, 100}, 0)
	if ratio != 0 || out[2] != 1 || out[1] != 0.5 {
		t.Errorf("Normalize = %v, %v", out, ratio)
	}
	out, ratio = Normalize([]float64{0, 0}, 0)
	if ratio != 0 || out[0] != 0 {
		t.Errorf("Normalize all zero = %v, %v", out, ratio)
	}
}

func constant(v float64) []float64 {
	out := make([]float64, profile.HoursInYear(2019))
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBuild(t *testing.T) {
	plants := []profile.Plant{
		{PlantID: 1, BA: "BPAT", Pmax: 100},
		{PlantID: 2, BA: "BPAT", Pmax: 100},
		{PlantID: 3, BA: "CISO", Pmax: 50},
		{PlantID: 4, BA: "NWMT", Pmax: 10},
	}
	gen := map[string][]float64{
		"BPAT": constant(100),
		"CISO": constant(50),
	}
	p, err := Build(plants, gen, 2019, config.Default().Hydro)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[int64]float64{1: 0.5, 2: 0.5, 3: 1, 4: 0.6}
	for id, v := range want {
		col := p.Columns[id]
		if len(col) != 8760 {
			t.Fatalf("plant %d has %d rows", id, len(col))
		}
		if math.Abs(col[100]-v) > 1e-12 {
			t.Errorf("plant %d = %v, want %v", id, col[100], v)
		}
	}
}

func TestBuild_SparseSeriesUsesDefaultShape(t *testing.T) {
	cfg := config.Default().Hydro
	sparse := make([]float64, profile.HoursInYear(2019))
	for i := range sparse {
		sparse[i] = math.NaN()
	}
	sparse[10], sparse[20] = 100, 100
	ciso := constant(25)
	ciso[7] = math.NaN()
	plants := []profile.Plant{
		{PlantID: 1, BA: "BPAT", Pmax: 200},
		{PlantID: 2, BA: "CISO", Pmax: 50},
	}
	filled := testutil.ToFloat64(metrics.ValuesImputed.WithLabelValues("hydro", "missing_hour"))
	dropped := testutil.ToFloat64(metrics.RowsDropped.WithLabelValues("hydro", "too_many_missing"))

	p, err := Build(plants, map[string][]float64{"BPAT": sparse, "CISO": ciso}, 2019, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := p.Columns[1][4000]; got != 0.5 {
		t.Errorf("BPAT hour 4000 = %v, want CISO default shape 0.5", got)
	}
	if got := p.Columns[2][7]; got != 0.5 {
		t.Errorf("CISO filled hour = %v, want 0.5", got)
	}
	if got := testutil.ToFloat64(metrics.ValuesImputed.WithLabelValues("hydro", "missing_hour")) - filled; got != 1 {
		t.Errorf("missing_hour imputations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.RowsDropped.WithLabelValues("hydro", "too_many_missing")) - dropped; got != 1 {
		t.Errorf("too_many_missing drops = %v, want 1", got)
	}
}

func TestBuild_TooManyAnomalies(t *testing.T) {
	cfg := config.Default().Hydro
	series := constant(100)
	for i := 0; i <= cfg.MaxAnomalies; i++ {
		series[i*10] = 1000
	}
	_, err := Build([]profile.Plant{{PlantID: 1, BA: "BPAT", Pmax: 200}}, map[string][]float64{"BPAT": series}, 2019, cfg)
	var de *models.DataError
	if !errors.As(err, &de) || de.Row != "BPAT" {
		t.Fatalf("Build = %v, want DataError for BPAT", err)
	}
}

func TestBuild_NoData(t *testing.T) {
	_, err := Build([]profile.Plant{{PlantID: 1, BA: "BPAT", Pmax: 200}}, nil, 2019, config.Default().Hydro)
	if err == nil {
		t.Fatal("expected error with no generation data")
	}
}
