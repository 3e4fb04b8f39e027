package geo

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// Grid is a 2D curvilinear weather grid stored row-major: cell (i, j) is at
// offset i*NX + j.
type Grid struct {
	NY, NX int
	Lat    []float64
	Lon    []float64
	index  *PointIndex
}

// NewGrid builds a grid and its k-d tree from row-major coordinate arrays.
func NewGrid(ny, nx int, lats, lons []float64) (*Grid, error) {
	if ny <= 0 || nx <= 0 {
		return nil, fmt.Errorf("grid: invalid shape %dx%d", ny, nx)
	}
	if len(lats) != ny*nx || len(lons) != ny*nx {
		return nil, fmt.Errorf("grid: shape %dx%d needs %d points, got %d lat and %d lon",
			ny, nx, ny*nx, len(lats), len(lons))
	}
	ix, err := NewPointIndex(lats, lons)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	return &Grid{NY: ny, NX: nx, Lat: lats, Lon: lons, index: ix}, nil
}

// NearestCell returns the (i, j) of the cell closest to (lat, lon). The
// grid is assumed to cover the query region, so points outside it resolve to
// the closest edge cell. Ties go to the lowest (i, j).
func (g *Grid) NearestCell(lat, lon float64) (i, j int) {
	k := g.index.Nearest(lat, lon)
	return k / g.NX, k % g.NX
}

// Offset returns the row-major offset of cell (i, j).
func (g *Grid) Offset(i, j int) int { return i*g.NX + j }

// LoadGridNetCDF reads 2D latitude and longitude variables from a classic
// netCDF file, such as the HRRR grid coordinate file.
func LoadGridNetCDF(path, latVar, lonVar string) (*Grid, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid file: %w", err)
	}
	defer fh.Close()

	f, err := cdf.Open(fh)
	if err != nil {
		return nil, fmt.Errorf("read grid file %s: %w", path, err)
	}
	dims := f.Header.Lengths(latVar)
	if len(dims) != 2 {
		return nil, fmt.Errorf("grid variable %s has %d dimensions, want 2", latVar, len(dims))
	}
	if ld := f.Header.Lengths(lonVar); len(ld) != 2 || ld[0] != dims[0] || ld[1] != dims[1] {
		return nil, fmt.Errorf("grid variables %s and %s differ in shape", latVar, lonVar)
	}
	lats, err := readFloatVar(f, latVar, dims[0]*dims[1])
	if err != nil {
		return nil, err
	}
	lons, err := readFloatVar(f, lonVar, dims[0]*dims[1])
	if err != nil {
		return nil, err
	}
	for k := range lons {
		if lons[k] > 180 {
			lons[k] -= 360
		}
	}
	return NewGrid(dims[0], dims[1], lats, lons)
}

func readFloatVar(f *cdf.File, name string, n int) ([]float64, error) {
	r := f.Reader(name, nil, nil)
	out := make([]float64, n)
	switch buf := r.Zero(n).(type) {
	case []float32:
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case []float64:
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		copy(out, buf)
	default:
		return nil, fmt.Errorf("variable %s: unsupported type %T", name, buf)
	}
	return out, nil
}
