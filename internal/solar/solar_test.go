package solar

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/profile"
)

// psm3 renders a PSM3 download for year with 365 days. DNI encodes the
// source day and hour so shifts are visible.
func psm3(year, days int) string {
	var b strings.Builder
	b.WriteString("Source,Location ID,City,State,Country,Latitude,Longitude,Time Zone,Elevation\n")
	b.WriteString("NSRDB,12345,-,-,-,35.05,-106.62,0,1600\n")
	b.WriteString("Year,Month,Day,Hour,Minute,DHI,DNI,Wind Speed,Temperature\n")
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 0
	for d := 0; day < days; d++ {
		ts := start.AddDate(0, 0, d)
		if ts.Month() == time.February && ts.Day() == 29 {
			continue
		}
		for h := 0; h < 24; h++ {
			fmt.Fprintf(&b, "%d,%d,%d,%d,30,10,%d,2,15\n", year, int(ts.Month()), ts.Day(), h, day*100+h)
		}
		day++
	}
	return b.String()
}

func TestParsePSM3_LeapYear(t *testing.T) {
	w, err := ParsePSM3(strings.NewReader(psm3(2016, 365)), 2016)
	if err != nil {
		t.Fatalf("ParsePSM3: %v", err)
	}
	if w.Hours() != 8784 {
		t.Fatalf("hours = %d, want 8784", w.Hours())
	}
	if w.Lat != 35.05 || w.Lon != -106.62 || w.Elevation != 1600 {
		t.Errorf("metadata = %v %v %v", w.Lat, w.Lon, w.Elevation)
	}
	tests := []struct {
		name string
		hour int
		want float64
	}{
		{"feb 28", 58*24 + 5, 5805},
		{"feb 29 copies feb 28", 59*24 + 5, 5805},
		{"mar 1", 60*24 + 5, 5905},
		{"dec 31", 365*24 + 23, 36423},
	}
	for _, tt := range tests {
		if got := w.DNI[tt.hour]; got != tt.want {
			t.Errorf("%s: DNI[%d] = %v, want %v", tt.name, tt.hour, got, tt.want)
		}
	}
}

func TestParsePSM3_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		year int
	}{
		{"short year", psm3(2019, 10), 2019},
		{"wrong year", psm3(2019, 365), 2020},
		{"no data header", "Source,Latitude\nNSRDB,35\n", 2019},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePSM3(strings.NewReader(tt.body), tt.year); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSolarPosition(t *testing.T) {
	noon := solarPosition(0, 0, time.Date(2015, 3, 22, 12, 0, 0, 0, time.UTC))
	if noon.zenith > 3*degToRad {
		t.Errorf("equinox noon zenith at equator = %.2f°, want ~0", noon.zenith/degToRad)
	}
	night := solarPosition(35, -106, time.Date(2015, 6, 1, 8, 0, 0, 0, time.UTC))
	if night.zenith <= math.Pi/2 {
		t.Errorf("02:00 local zenith = %.2f°, want below horizon", night.zenith/degToRad)
	}
	morning := solarPosition(35, -106, time.Date(2015, 6, 1, 15, 0, 0, 0, time.UTC))
	afternoon := solarPosition(35, -106, time.Date(2015, 6, 1, 22, 0, 0, 0, time.UTC))
	if morning.azimuth >= math.Pi || afternoon.azimuth <= math.Pi {
		t.Errorf("azimuths morning %.0f° afternoon %.0f°", morning.azimuth/degToRad, afternoon.azimuth/degToRad)
	}
}

func clearSky(year int, lat, lon float64) *Weather {
	n := profile.HoursInYear(year)
	w := &Weather{Year: year, Lat: lat, Lon: lon,
		DNI: make([]float64, n), DHI: make([]float64, n),
		WindSpeed: make([]float64, n), Temperature: make([]float64, n)}
	for h := 0; h < n; h++ {
		sun := solarPosition(lat, lon, w.Time(h).Add(30*time.Minute))
		if cz := math.Cos(sun.zenith); cz > 0 {
			w.DNI[h] = 850
			w.DHI[h] = 100 * cz
		}
		w.WindSpeed[h] = 2
		w.Temperature[h] = 20
	}
	return w
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func TestSimulate(t *testing.T) {
	cfg := config.Default().Solar
	w := clearSky(2019, 35, -106)
	energy := map[models.Tracking]float64{}
	for _, mode := range models.TrackingModes {
		out := Simulate(w, 35, -106, Array{Tracking: mode}, cfg)
		for h, v := range out {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("%s hour %d = %v", mode, h, v)
			}
			if w.DNI[h] == 0 && w.DHI[h] == 0 && v != 0 {
				t.Fatalf("%s hour %d produced %v at night", mode, h, v)
			}
		}
		energy[mode] = sum(out)
	}
	if energy[models.TrackingDualAxis] <= energy[models.TrackingFixed] {
		t.Errorf("dual-axis energy %v should exceed fixed %v", energy[models.TrackingDualAxis], energy[models.TrackingFixed])
	}
	if energy[models.TrackingSingleAxis] <= energy[models.TrackingFixed] {
		t.Errorf("single-axis energy %v should exceed fixed %v", energy[models.TrackingSingleAxis], energy[models.TrackingFixed])
	}
}

func TestBlend_SingleModeMatchesSimulate(t *testing.T) {
	cfg := config.Default().Solar
	w := clearSky(2019, 40, -90)
	got := Blend(w, 40, -90, 0, Mix{0, 1, 0}, cfg)
	want := Simulate(w, 40, -90, Array{Tracking: models.TrackingSingleAxis}, cfg)
	for h := range want {
		if got[h] != want[h] {
			t.Fatalf("hour %d: %v != %v", h, got[h], want[h])
		}
	}
}

func TestLoadInstallationsAndMix(t *testing.T) {
	csv := strings.Join([]string{
		"Plant Code,Generator ID,State,Nameplate Capacity (MW),DC Net Capacity (MW),Fixed Tilt?,Single-Axis Tracking?,Dual-Axis Tracking?,Tilt Angle,Azimuth Angle",
		"1,PV1,CA,100,130,Y,N,N,25,180",
		"2,PV1,CA,300,,N,Y,N,,",
		"3,PV1,AZ,200,,Y,Y,,,",
	}, "\n")
	fleet, err := LoadInstallations(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadInstallations: %v", err)
	}
	if got := fleet[0].ILR(); math.Abs(got-1.3) > 1e-9 {
		t.Errorf("ILR = %v, want 1.3", got)
	}
	if fleet[1].ILR() != 0 {
		t.Errorf("unknown DC capacity should give ILR 0")
	}

	mix := FleetMix(fleet)
	want := map[string]Mix{
		"CA": {0.25, 0.75, 0},
		"AZ": {0.5, 0.5, 0},
		"":   {1.0 / 3, 2.0 / 3, 0},
	}
	for state, w := range want {
		for i := range w {
			if math.Abs(mix[state][i]-w[i]) > 1e-9 {
				t.Errorf("mix[%q] = %v, want %v", state, mix[state], w)
				break
			}
		}
	}
}

func TestFleetMix_UnknownStateCountsOnce(t *testing.T) {
	mix := FleetMix([]Installation{
		{State: "", Capacity: 10, Modes: []models.Tracking{models.TrackingFixed}},
		{State: "NV", Capacity: 10, Modes: []models.Tracking{models.TrackingSingleAxis}},
	})
	if want := (Mix{0.5, 0.5, 0}); mix[""] != want {
		t.Errorf("national mix = %v, want %v", mix[""], want)
	}
	if want := (Mix{0, 1, 0}); mix["NV"] != want {
		t.Errorf("NV mix = %v, want %v", mix["NV"], want)
	}
}

type countingSource struct{ calls int }

func (s *countingSource) Weather(_ context.Context, lat, lon float64, year int) (*Weather, error) {
	s.calls++
	return clearSky(year, lat, lon), nil
}

func TestBuild_DedupesLocations(t *testing.T) {
	src := &countingSource{}
	b := &Builder{
		Source: src,
		Fleet: []Installation{
			{PlantCode: 1, GeneratorID: "A", State: "CA", Capacity: 50, Modes: []models.Tracking{models.TrackingSingleAxis}},
		},
		Config: config.Default().Solar,
	}
	plants := []profile.Plant{
		{PlantID: 10, PlantCode: 1, GeneratorID: "A", Lat: 34.1, Lon: -117.2, State: "CA"},
		{PlantID: 11, PlantCode: 2, GeneratorID: "B", Lat: 34.1, Lon: -117.2, State: "CA"},
	}
	p, err := b.Build(context.Background(), plants, 2016)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("weather fetched %d times, want 1", src.calls)
	}
	if len(p.Columns[10]) != 8784 || len(p.Columns[11]) != 8784 {
		t.Fatalf("rows = %d/%d", len(p.Columns[10]), len(p.Columns[11]))
	}
	// CA fleet is all single-axis, so the blended plant matches the known one
	for h := range p.Columns[10] {
		if math.Abs(p.Columns[10][h]-p.Columns[11][h]) > 1e-12 {
			t.Fatalf("hour %d: %v vs %v", h, p.Columns[10][h], p.Columns[11][h])
		}
	}
}
