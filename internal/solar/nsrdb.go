// Package solar simulates normalised PV output from NSRDB PSM3 weather.
package solar

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lox/gridprep/internal/profile"
	"github.com/lox/gridprep/internal/tabular"
)

// leapSourceDay is the 0-based day of year (Feb 28) copied into Feb 29 when
// the weather source omits the leap day.
const leapSourceDay = 58

// Weather is one year of hourly irradiance and meteorology for a location,
// aligned with profile.Hours(Year).
type Weather struct {
	Year        int
	Lat, Lon    float64
	Elevation   float64
	GHI         []float64 // W/m²
	DNI         []float64 // W/m²
	DHI         []float64 // W/m²
	WindSpeed   []float64 // m/s
	Temperature []float64 // °C
}

func (w *Weather) Hours() int { return len(w.DNI) }

// ParsePSM3 reads an NSRDB PSM3 CSV download: a metadata header and value
// row, then hourly data starting at the "Year,Month,..." header. Timestamps
// must be UTC.
func ParsePSM3(r io.Reader, year int) (*Weather, error) {
	br := bufio.NewReader(r)
	var meta []string
	var data bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if strings.HasPrefix(strings.TrimPrefix(line, "\ufeff"), "Year,") {
			data.WriteString(line)
			if _, err := io.Copy(&data, br); err != nil {
				return nil, fmt.Errorf("psm3: %w", err)
			}
			break
		}
		if line != "" {
			meta = append(meta, line)
		}
		if err == io.EOF {
			return nil, fmt.Errorf("psm3: no data header")
		}
		if err != nil {
			return nil, fmt.Errorf("psm3: %w", err)
		}
	}

	w := &Weather{Year: year}
	if err := w.readMeta(meta); err != nil {
		return nil, err
	}

	t, err := tabular.NewReader(&data, "Year", "Month", "Day", "Hour", "DHI", "DNI", "Wind Speed", "Temperature")
	if err != nil {
		return nil, fmt.Errorf("psm3: %w", err)
	}
	hasGHI := t.Has("GHI")
	for t.Next() {
		y, _ := t.Int("Year")
		if int(y) != year {
			return nil, fmt.Errorf("psm3: line %d: year %d, want %d", t.Line(), y, year)
		}
		vals := make([]float64, 5)
		for i, col := range []string{"DHI", "DNI", "Wind Speed", "Temperature", "GHI"} {
			if col == "GHI" && !hasGHI {
				continue
			}
			v, ok := t.Float(col)
			if !ok {
				return nil, fmt.Errorf("psm3: line %d: bad %s", t.Line(), col)
			}
			vals[i] = v
		}
		w.DHI = append(w.DHI, vals[0])
		w.DNI = append(w.DNI, vals[1])
		w.WindSpeed = append(w.WindSpeed, vals[2])
		w.Temperature = append(w.Temperature, vals[3])
		w.GHI = append(w.GHI, vals[4])
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("psm3: %w", err)
	}
	if !hasGHI {
		w.GHI = nil
	}
	if err := w.align(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Weather) readMeta(lines []string) error {
	if len(lines) < 2 {
		return fmt.Errorf("psm3: metadata has %d lines, want 2", len(lines))
	}
	keys, err := csv.NewReader(strings.NewReader(lines[0])).Read()
	if err != nil {
		return fmt.Errorf("psm3: metadata keys: %w", err)
	}
	vals, err := csv.NewReader(strings.NewReader(lines[1])).Read()
	if err != nil {
		return fmt.Errorf("psm3: metadata values: %w", err)
	}
	for i, k := range keys {
		if i >= len(vals) {
			break
		}
		v, ok := tabular.ParseFloat(vals[i])
		switch strings.TrimSpace(k) {
		case "Latitude":
			w.Lat = v
		case "Longitude":
			w.Lon = v
		case "Elevation":
			w.Elevation = v
		default:
			continue
		}
		if !ok {
			return fmt.Errorf("psm3: metadata %s = %q", k, vals[i])
		}
	}
	return nil
}

// align inserts a copy of Feb 28 as Feb 29 when a leap year was delivered
// with 365 days.
func (w *Weather) align() error {
	want := profile.HoursInYear(w.Year)
	n := w.Hours()
	if n == want {
		return nil
	}
	if n != 8760 || want != 8784 {
		return fmt.Errorf("psm3: %d hourly rows for %d, want %d", n, w.Year, want)
	}
	w.DHI = InsertLeapDay(w.DHI)
	w.DNI = InsertLeapDay(w.DNI)
	w.WindSpeed = InsertLeapDay(w.WindSpeed)
	w.Temperature = InsertLeapDay(w.Temperature)
	if w.GHI != nil {
		w.GHI = InsertLeapDay(w.GHI)
	}
	return nil
}

// InsertLeapDay returns a 366-day hourly series built from a 365-day one by
// repeating Feb 28.
func InsertLeapDay(series []float64) []float64 {
	at := (leapSourceDay + 1) * 24
	out := make([]float64, 0, len(series)+24)
	out = append(out, series[:at]...)
	out = append(out, series[at-24:at]...)
	return append(out, series[at:]...)
}

// Time returns the UTC timestamp of hour h.
func (w *Weather) Time(h int) time.Time {
	return time.Date(w.Year, 1, 1, h, 0, 0, 0, time.UTC)
}
