package geo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// NAD83 is the canonical CRS (epsg:4269) for every polygon layer.
const NAD83 = "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs"

type region struct {
	geom.Polygonal
	code string
}

// RegionLayer is an R-tree of polygons tagged with a code (state
// abbreviation, county FIPS or ZIP).
type RegionLayer struct {
	tree *rtree.Rtree
	n    int
}

func NewRegionLayer() *RegionLayer {
	return &RegionLayer{tree: rtree.NewTree(25, 50)}
}

// Add inserts a polygon already expressed in NAD83 coordinates.
func (l *RegionLayer) Add(code string, p geom.Polygonal) {
	l.tree.Insert(&region{Polygonal: p, code: code})
	l.n++
}

func (l *RegionLayer) Len() int { return l.n }

// Locate returns the code of the polygon containing (lat, lon). Points on a
// shared edge or in overlapping polygons resolve to the lowest code.
func (l *RegionLayer) Locate(lat, lon float64) (string, bool) {
	pt := geom.Point{X: lon, Y: lat}
	var codes []string
	for _, g := range l.tree.SearchIntersect(pt.Bounds()) {
		r := g.(*region)
		if pt.Within(r.Polygonal) != geom.Outside {
			codes = append(codes, r.code)
		}
	}
	if len(codes) == 0 {
		return "", false
	}
	sort.Strings(codes)
	return codes[0], true
}

// LoadRegionShapefile reads a polygon shapefile, reprojects it to NAD83 and
// tags each shape with the value of codeField. A shapefile without a .prj
// is assumed to be NAD83 already.
func LoadRegionShapefile(path, codeField string) (*RegionLayer, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer d.Close()

	dst, err := proj.Parse(NAD83)
	if err != nil {
		return nil, fmt.Errorf("parse NAD83: %w", err)
	}
	var trans proj.Transformer
	if src, err := d.SR(); err == nil {
		if trans, err = src.NewTransform(dst); err != nil {
			return nil, fmt.Errorf("shapefile %s: %w", path, err)
		}
	}

	layer := NewRegionLayer()
	for {
		g, fields, more := d.DecodeRowFields(codeField)
		if !more {
			break
		}
		code, ok := fields[codeField]
		if !ok {
			return nil, fmt.Errorf("shapefile %s: missing attribute column %s", path, codeField)
		}
		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, fmt.Errorf("shapefile %s: reproject %s: %w", path, code, err)
			}
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("shapefile %s: shape %s is %T, want polygon", path, code, g)
		}
		layer.Add(strings.TrimSpace(code), p)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("shapefile %s: %w", path, err)
	}
	return layer, nil
}

// Region is the result of a containment query.
type Region struct {
	State      string
	CountyFIPS string
	ZIP        string
}

// RegionIndex answers containing_region queries over the state, county and
// ZIP layers. Any layer may be nil.
type RegionIndex struct {
	States   *RegionLayer
	Counties *RegionLayer
	ZIPs     *RegionLayer
}

// ShapefileSet names the three boundary shapefiles and their code columns.
type ShapefileSet struct {
	StatePath, StateField   string
	CountyPath, CountyField string
	ZIPPath, ZIPField       string
}

func LoadRegionIndex(s ShapefileSet) (*RegionIndex, error) {
	ix := &RegionIndex{}
	var err error
	if s.StatePath != "" {
		if ix.States, err = LoadRegionShapefile(s.StatePath, s.StateField); err != nil {
			return nil, err
		}
	}
	if s.CountyPath != "" {
		if ix.Counties, err = LoadRegionShapefile(s.CountyPath, s.CountyField); err != nil {
			return nil, err
		}
	}
	if s.ZIPPath != "" {
		if ix.ZIPs, err = LoadRegionShapefile(s.ZIPPath, s.ZIPField); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Locate fills whichever fields have a loaded layer containing the point.
func (ix *RegionIndex) Locate(lat, lon float64) Region {
	var r Region
	if ix.States != nil {
		r.State, _ = ix.States.Locate(lat, lon)
	}
	if ix.Counties != nil {
		r.CountyFIPS, _ = ix.Counties.Locate(lat, lon)
	}
	if ix.ZIPs != nil {
		r.ZIP, _ = ix.ZIPs.Locate(lat, lon)
	}
	return r
}
