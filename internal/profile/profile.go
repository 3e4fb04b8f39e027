// Package profile holds the hourly normalised output shared by the wind,
// solar and hydro pipelines.
package profile

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/lox/gridprep/internal/tabular"
)

const TimeLayout = "2006-01-02 15:04:05"

// HoursInYear returns 8784 for leap years and 8760 otherwise.
func HoursInYear(year int) int {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return int(start.AddDate(1, 0, 0).Sub(start).Hours())
}

// Hours lists every UTC hour of year.
func Hours(year int) []time.Time {
	n := HoursInYear(year)
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

// IsLeap reports whether year has a February 29.
func IsLeap(year int) bool { return HoursInYear(year) == 8784 }

// Profile is one float per (hour, plant) for a calendar year, with 1.0 equal
// to nameplate.
type Profile struct {
	Year    int
	Plants  []int64
	Columns map[int64][]float64
}

func New(year int) *Profile {
	return &Profile{Year: year, Columns: map[int64][]float64{}}
}

// Set stores a plant's series. The series must cover every hour of the year.
func (p *Profile) Set(plantID int64, values []float64) error {
	if len(values) != HoursInYear(p.Year) {
		return fmt.Errorf("profile: plant %d has %d hours, want %d", plantID, len(values), HoursInYear(p.Year))
	}
	if _, ok := p.Columns[plantID]; !ok {
		p.Plants = append(p.Plants, plantID)
		sort.Slice(p.Plants, func(i, j int) bool { return p.Plants[i] < p.Plants[j] })
	}
	p.Columns[plantID] = values
	return nil
}

// Validate checks row count, NaNs and negative values.
func (p *Profile) Validate() error {
	n := HoursInYear(p.Year)
	for _, id := range p.Plants {
		col := p.Columns[id]
		if len(col) != n {
			return fmt.Errorf("profile: plant %d has %d rows, want %d", id, len(col), n)
		}
		for h, v := range col {
			if math.IsNaN(v) {
				return fmt.Errorf("profile: plant %d hour %d is NaN", id, h)
			}
			if v < 0 {
				return fmt.Errorf("profile: plant %d hour %d is negative (%v)", id, h, v)
			}
		}
	}
	return nil
}

// WriteCSV writes a UTC column followed by one column per plant.
func (p *Profile) WriteCSV(w io.Writer) error {
	header := make([]string, 0, len(p.Plants)+1)
	header = append(header, "UTC")
	for _, id := range p.Plants {
		header = append(header, strconv.FormatInt(id, 10))
	}
	tw, err := tabular.NewWriter(w, header...)
	if err != nil {
		return err
	}
	row := make([]string, len(header))
	for h, ts := range Hours(p.Year) {
		row[0] = ts.Format(TimeLayout)
		for i, id := range p.Plants {
			row[i+1] = strconv.FormatFloat(p.Columns[id][h], 'f', 6, 64)
		}
		if err := tw.Write(row...); err != nil {
			return fmt.Errorf("write profile row %d: %w", h, err)
		}
	}
	return tw.Flush()
}

// ReadCSV reads a profile written by WriteCSV.
func ReadCSV(r io.Reader) (*Profile, error) {
	t, err := tabular.NewReader(r, "UTC")
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p *Profile
	var cols [][]float64
	var ids []int64
	for t.Next() {
		if p == nil {
			ts, err := time.Parse(TimeLayout, t.String("UTC"))
			if err != nil {
				return nil, fmt.Errorf("read profile: line %d: %w", t.Line(), err)
			}
			p = New(ts.Year())
			for _, c := range t.Columns() {
				if c == "UTC" {
					continue
				}
				id, err := strconv.ParseInt(c, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("read profile: bad plant column %q", c)
				}
				ids = append(ids, id)
			}
			cols = make([][]float64, len(ids))
		}
		for i, id := range ids {
			v, ok := t.Float(strconv.FormatInt(id, 10))
			if !ok {
				v = math.NaN()
			}
			cols[i] = append(cols[i], v)
		}
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("read profile: no rows")
	}
	for i, id := range ids {
		if err := p.Set(id, cols[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// FillGaps linearly interpolates NaN runs in place and returns the number
// of values filled. Leading and trailing runs take the nearest value. It
// refuses when more than maxMissing values are NaN.
func FillGaps(series []float64, maxMissing int) (int, error) {
	var xs, ys []float64
	for i, v := range series {
		if !math.IsNaN(v) {
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
	}
	missing := len(series) - len(xs)
	if missing == 0 {
		return 0, nil
	}
	if missing > maxMissing {
		return 0, fmt.Errorf("%d missing values exceeds limit of %d", missing, maxMissing)
	}
	switch len(xs) {
	case 0:
		return 0, fmt.Errorf("series has no values")
	case 1:
		for i := range series {
			series[i] = ys[0]
		}
		return missing, nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("interpolate: %w", err)
	}
	for i, v := range series {
		if !math.IsNaN(v) {
			continue
		}
		switch x := float64(i); {
		case x < xs[0]:
			series[i] = ys[0]
		case x > xs[len(xs)-1]:
			series[i] = ys[len(ys)-1]
		default:
			series[i] = pl.Predict(x)
		}
	}
	return missing, nil
}
