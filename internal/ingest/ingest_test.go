package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/gridprep/internal/cache"
	"github.com/lox/gridprep/internal/httputil"
	"github.com/lox/gridprep/internal/solar"
	"github.com/lox/gridprep/internal/store"
	"github.com/lox/gridprep/internal/wind"
)

const testIndex = `1:0:d=2016022903:REFC:entire atmosphere:anl:
2:4:d=2016022903:UGRD:80 m above ground:anl:
3:8:d=2016022903:VGRD:80 m above ground:anl:
4:12:d=2016022903:TMP:2 m above ground:anl:
`

func TestParseIndexAndFindRange(t *testing.T) {
	entries, err := ParseIndex([]byte(testIndex))
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len = %d, want 4", len(entries))
	}
	tests := []struct {
		variable, level string
		start, end      int64
		ok              bool
	}{
		{"UGRD", "80 m above ground", 4, 7, true},
		{"VGRD", "80 m above ground", 8, 11, true},
		{"TMP", "2 m above ground", 12, -1, true},
		{"UGRD", "10 m above ground", 0, 0, false},
	}
	for _, tt := range tests {
		start, end, ok := FindRange(entries, tt.variable, tt.level)
		if ok != tt.ok || start != tt.start || end != tt.end {
			t.Errorf("FindRange(%s, %s) = %d, %d, %v; want %d, %d, %v",
				tt.variable, tt.level, start, end, ok, tt.start, tt.end, tt.ok)
		}
	}
	if _, err := ParseIndex([]byte("garbage\n")); err == nil {
		t.Error("expected error for malformed index")
	}
}

func hrrrServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	body := "RRRRUUUUVVVVTTTT"
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/hrrr.20160229/conus/hrrr.t03z.wrfsfcf00.grib2.idx":
			fmt.Fprint(w, testIndex)
		case "/hrrr.20160229/conus/hrrr.t03z.wrfsfcf00.grib2":
			var start, end int
			if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
				t.Errorf("bad Range %q", r.Header.Get("Range"))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusPartialContent)
			fmt.Fprint(w, body[start:end+1])
		default:
			http.NotFound(w, r)
		}
	}))
}

func fakeDecode(b []byte) ([]float64, error) {
	return []float64{float64(b[0]), float64(len(b))}, nil
}

func TestHRRR_Wind(t *testing.T) {
	var calls atomic.Int32
	srv := hrrrServer(t, &calls)
	defer srv.Close()

	c, err := cache.New("grib", t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHRRR(&HTTPTransport{BaseURL: srv.URL, Fetcher: httputil.NewFetcher("hrrr", 0, 1)}, c, nil)
	h.decode = fakeDecode

	hour := time.Date(2016, 2, 29, 3, 0, 0, 0, time.UTC)
	u, v, err := h.Wind(context.Background(), hour)
	if err != nil {
		t.Fatalf("Wind: %v", err)
	}
	if u[0] != 'U' || u[1] != 4 || v[0] != 'V' || v[1] != 4 {
		t.Errorf("u = %v, v = %v", u, v)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3 (index + 2 ranges)", calls.Load())
	}

	if _, _, err := h.Wind(context.Background(), hour); err != nil {
		t.Fatalf("cached Wind: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("cached call made %d extra requests", calls.Load()-3)
	}

	_, _, err = h.Wind(context.Background(), hour.Add(time.Hour))
	if !errors.Is(err, wind.ErrMissingHour) {
		t.Errorf("missing hour err = %v, want ErrMissingHour", err)
	}
}

func psm3Body(year int) string {
	var b strings.Builder
	b.WriteString("Source,Location ID,Latitude,Longitude,Elevation\n")
	b.WriteString("NSRDB,1,35.000000,-106.000000,1600\n")
	b.WriteString("Year,Month,Day,Hour,Minute,GHI,DHI,DNI,Wind Speed,Temperature\n")
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 8760; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		fmt.Fprintf(&b, "%d,%d,%d,%d,30,100,20,500,3,18\n", ts.Year(), int(ts.Month()), ts.Day(), ts.Hour())
	}
	return b.String()
}

func TestNSRDB_CachesPayloadsAndAudits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("wkt") != "POINT(-106.000000 35.000000)" || q.Get("names") != "2019" || q.Get("api_key") != "key" {
			t.Errorf("unexpected query %v", q)
		}
		fmt.Fprint(w, psm3Body(2019))
	}))
	defer srv.Close()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	n := &NSRDB{
		BaseURL: srv.URL,
		APIKey:  "key",
		Email:   "ops@example.com",
		Fetcher: httputil.NewFetcher("nsrdb", 0, 1),
		Cache:   st,
		Rec:     &Recorder{Store: st, RunID: "run-1"},
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		w, err := n.Weather(ctx, 35, -106, 2019)
		if err != nil {
			t.Fatalf("Weather: %v", err)
		}
		if w.Hours() != 8760 || w.DNI[0] != 500 || w.GHI[0] != 100 {
			t.Fatalf("weather = %d hours, DNI %v GHI %v", w.Hours(), w.DNI[0], w.GHI[0])
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}

	summary, err := st.IngestSummaryForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("IngestSummaryForRun: %v", err)
	}
	if len(summary) != 1 || summary[0].SuccessRuns != 1 || summary[0].TotalRecords != 8760 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestEIA_Paginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("facets[fueltype][]") != "WAT" || q.Get("frequency") != "hourly" {
			t.Errorf("unexpected query %v", q)
		}
		offsets = append(offsets, q.Get("offset"))
		off, _ := strconv.Atoi(q.Get("offset"))
		switch off {
		case 0:
			fmt.Fprint(w, `{"response":{"total":"3","data":[
				{"period":"2019-01-01T00","respondent":"BPAT","fueltype":"WAT","value":"12.5"},
				{"period":"2019-01-01T01","respondent":"BPAT","fueltype":"WAT","value":10}]}}`)
		default:
			fmt.Fprint(w, `{"response":{"total":3,"data":[
				{"period":"2019-01-01T02","respondent":"BPAT","fueltype":"WAT","value":null}]}}`)
		}
	}))
	defer srv.Close()

	e := &EIA{BaseURL: srv.URL, APIKey: "key", PageSize: 2, Fetcher: httputil.NewFetcher("eia", 0, 1)}
	obs, err := e.HourlyGeneration(context.Background(), FuelWater, 2019)
	if err != nil {
		t.Fatalf("HourlyGeneration: %v", err)
	}
	if strings.Join(offsets, ",") != "0,2" {
		t.Errorf("offsets = %v, want 0,2", offsets)
	}
	if len(obs) != 2 || obs[0].Value != 12.5 || obs[1].Value != 10 || obs[1].Period.Hour() != 1 {
		t.Errorf("obs = %+v", obs)
	}
}

func TestValidateWeather(t *testing.T) {
	w := &solar.Weather{
		Year:        2019,
		DNI:         []float64{500, -1, 2000},
		DHI:         []float64{50, 10, 10},
		WindSpeed:   []float64{3, 80, 3},
		Temperature: []float64{20, 20, 75},
	}
	got := ValidateWeather(w)
	want := map[string]int{
		FlagIrradianceNegative: 1,
		FlagIrradianceUnlikely: 1,
		FlagWindSpeedUnlikely:  1,
		FlagTempOutOfRange:     1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("flags[%s] = %d, want %d", k, got[k], v)
		}
	}
}
