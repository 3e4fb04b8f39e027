package geo

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKM                 float64
		tolerance              float64
	}{
		{"same point", 47.6, -122.3, 47.6, -122.3, 0, 0.001},
		{"seattle to portland", 47.6, -122.3, 45.5, -122.7, 235, 5},
		{"one degree of latitude", 0, 0, 1, 0, 111.19, 0.1},
		{"across antimeridian", 0, 179.5, 0, -179.5, 111.19, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantKM) > tt.tolerance {
				t.Errorf("Haversine() = %.2f km, want %.2f ± %.2f", got, tt.wantKM, tt.tolerance)
			}
		})
	}
}

func TestUnitVector(t *testing.T) {
	v := UnitVector(45, -100)
	norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if math.Abs(norm-1) > 1e-12 {
		t.Errorf("norm = %v, want 1", norm)
	}
	if p := UnitVector(90, 0); math.Abs(p[2]-1) > 1e-12 {
		t.Errorf("north pole z = %v, want 1", p[2])
	}
}

func TestPointIndex_Nearest(t *testing.T) {
	lats := []float64{47.6, 45.5, 40.0, 45.5}
	lons := []float64{-122.3, -122.7, -100.0, -122.7}
	ix, err := NewPointIndex(lats, lons)
	if err != nil {
		t.Fatalf("NewPointIndex: %v", err)
	}

	if got := ix.Nearest(47.0, -122.0); got != 0 {
		t.Errorf("Nearest(near Seattle) = %d, want 0", got)
	}
	// 1 and 3 are coincident: lowest index wins.
	if got := ix.Nearest(45.4, -122.6); got != 1 {
		t.Errorf("Nearest(near Portland) = %d, want 1", got)
	}
	if got := ix.NearestK(45.4, -122.6, 3); len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 0 {
		t.Errorf("NearestK = %v, want [1 3 0]", got)
	}
}

func TestNewPointIndex_Errors(t *testing.T) {
	if _, err := NewPointIndex([]float64{1}, nil); err == nil {
		t.Error("expected error for mismatched lengths")
	}
	if _, err := NewPointIndex(nil, nil); err == nil {
		t.Error("expected error for empty index")
	}
}

func testGrid(t *testing.T) *Grid {
	t.Helper()
	ny, nx := 4, 5
	lats := make([]float64, ny*nx)
	lons := make([]float64, ny*nx)
	for i := 0; i < ny; i++ {
		for j := 0; j < nx; j++ {
			lats[i*nx+j] = 30 + float64(i)*0.5
			lons[i*nx+j] = -100 + float64(j)*0.5
		}
	}
	g, err := NewGrid(ny, nx, lats, lons)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestGrid_NearestCellOnGridPoint(t *testing.T) {
	g := testGrid(t)
	for i := 0; i < g.NY; i++ {
		for j := 0; j < g.NX; j++ {
			k := g.Offset(i, j)
			gi, gj := g.NearestCell(g.Lat[k], g.Lon[k])
			if gi != i || gj != j {
				t.Errorf("NearestCell(cell %d,%d) = %d,%d", i, j, gi, gj)
			}
		}
	}
}

func TestGrid_NearestCellOutside(t *testing.T) {
	g := testGrid(t)
	i, j := g.NearestCell(50, -80)
	if i != g.NY-1 || j != g.NX-1 {
		t.Errorf("NearestCell(outside) = %d,%d, want corner %d,%d", i, j, g.NY-1, g.NX-1)
	}
}

func TestNewGrid_ShapeMismatch(t *testing.T) {
	if _, err := NewGrid(2, 2, []float64{1, 2, 3}, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for shape mismatch")
	}
}

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func TestRegionIndex_Locate(t *testing.T) {
	states := NewRegionLayer()
	states.Add("OR", square(-125, 42, -116, 46))
	states.Add("WA", square(-125, 46, -116, 49))
	counties := NewRegionLayer()
	counties.Add("41051", square(-123, 45, -122, 46))
	ix := &RegionIndex{States: states, Counties: counties}

	r := ix.Locate(45.5, -122.7)
	if r.State != "OR" || r.CountyFIPS != "41051" || r.ZIP != "" {
		t.Errorf("Locate(Portland) = %+v", r)
	}
	r = ix.Locate(47.6, -122.3)
	if r.State != "WA" || r.CountyFIPS != "" {
		t.Errorf("Locate(Seattle) = %+v", r)
	}
	if _, ok := states.Locate(30, -90); ok {
		t.Error("expected no state for a point outside all polygons")
	}
}
