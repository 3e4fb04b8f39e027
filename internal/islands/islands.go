// Package islands welds the disconnected components of each interconnection
// into one connected graph with a minimum spanning set of synthetic lines.
package islands

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
)

const stage = "islands"

// Edge is one synthetic connection between two substations.
type Edge struct {
	FromSub    int64   `json:"from_sub"`
	ToSub      int64   `json:"to_sub"`
	DistanceKM float64 `json:"distance_km"`
}

// Cache stores computed edge sets by input hash.
type Cache interface {
	LoadMST(ctx context.Context, key string) ([]Edge, bool, error)
	SaveMST(ctx context.Context, key string, edges []Edge) error
}

// Adjacency reports whether two states border each other. A state must be
// adjacent to itself.
type Adjacency interface {
	Adjacent(s1, s2 string) bool
}

// Connector computes and materialises synthetic lines.
type Connector struct {
	adj       Adjacency
	cache     Cache
	defaultKV float64
}

// NewConnector creates a Connector. cache may be nil.
func NewConnector(adj Adjacency, cache Cache, defaultKV float64) *Connector {
	return &Connector{adj: adj, cache: cache, defaultKV: defaultKV}
}

// Connect returns lines with one synthetic line appended per spanning tree
// edge.
func (c *Connector) Connect(ctx context.Context, subs []models.Substation, lines []models.Line) ([]models.Line, error) {
	key := HashInputs(subs, lines)
	var edges []Edge
	hit := false
	if c.cache != nil {
		var err error
		edges, hit, err = c.cache.LoadMST(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("islands: load cache: %w", err)
		}
	}
	if hit {
		metrics.CacheHit("mst")
		log.Printf("islands: cache hit %s (%d edges)", key[:12], len(edges))
	} else {
		metrics.CacheMiss("mst")
		var err error
		if edges, err = c.spanningEdges(subs, lines); err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.SaveMST(ctx, key, edges); err != nil {
				return nil, fmt.Errorf("islands: save cache: %w", err)
			}
		}
	}
	return c.materialize(subs, lines, edges)
}

// HashInputs hashes the line endpoints and the substation coordinate table.
func HashInputs(subs []models.Substation, lines []models.Line) string {
	h := sha256.New()
	buf := make([]byte, 8)
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}

	ss := append([]models.Substation(nil), subs...)
	sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
	for _, s := range ss {
		putInt(s.ID)
		putFloat(s.Lat)
		putFloat(s.Lon)
		h.Write([]byte(s.State))
		h.Write([]byte{0})
		h.Write([]byte(s.Interconnect))
		h.Write([]byte{0})
	}
	ls := append([]models.Line(nil), lines...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
	for _, l := range ls {
		putInt(l.ID)
		putInt(l.Sub1ID)
		putInt(l.Sub2ID)
		h.Write([]byte(l.Interconnect))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type component struct {
	subs   []models.Substation
	states map[string]bool
}

func (c *Connector) spanningEdges(subs []models.Substation, lines []models.Line) ([]Edge, error) {
	byIC := map[models.Interconnect][]models.Substation{}
	for _, s := range subs {
		byIC[s.Interconnect] = append(byIC[s.Interconnect], s)
	}
	var edges []Edge
	for _, ic := range sortedICs(byIC) {
		e, err := c.spanningEdgesIC(ic, byIC[ic], lines)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e...)
	}
	return edges, nil
}

func (c *Connector) spanningEdgesIC(ic models.Interconnect, subs []models.Substation, lines []models.Line) ([]Edge, error) {
	byID := make(map[int64]models.Substation, len(subs))
	g := simple.NewUndirectedGraph()
	for _, s := range subs {
		byID[s.ID] = s
		g.AddNode(simple.Node(s.ID))
	}
	for _, l := range lines {
		if l.Interconnect != ic || l.Sub1ID == l.Sub2ID {
			continue
		}
		if _, ok := byID[l.Sub1ID]; !ok {
			return nil, fmt.Errorf("islands: line %d references substation %d outside %s", l.ID, l.Sub1ID, ic)
		}
		if _, ok := byID[l.Sub2ID]; !ok {
			return nil, fmt.Errorf("islands: line %d references substation %d outside %s", l.ID, l.Sub2ID, ic)
		}
		g.SetEdge(g.NewEdge(simple.Node(l.Sub1ID), simple.Node(l.Sub2ID)))
	}

	comps := components(topo.ConnectedComponents(g), byID)
	if len(comps) <= 1 {
		return nil, nil
	}
	log.Printf("islands: %s has %d components", ic, len(comps))

	type candidate struct {
		from, to int64
		km       float64
	}
	cands := map[[2]int]candidate{}
	wg := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := range comps {
		wg.AddNode(simple.Node(i))
	}
	for i := 0; i < len(comps); i++ {
		for j := i + 1; j < len(comps); j++ {
			ai := c.adjacentNodes(comps[i], comps[j])
			aj := c.adjacentNodes(comps[j], comps[i])
			if len(ai) == 0 || len(aj) == 0 {
				continue
			}
			from, to, km, err := closestPair(ai, aj)
			if err != nil {
				return nil, err
			}
			cands[[2]int{i, j}] = candidate{from, to, km}
			wg.SetWeightedEdge(wg.NewWeightedEdge(simple.Node(i), simple.Node(j), km))
		}
	}

	mst := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Kruskal(mst, wg)

	var edges []Edge
	it := mst.Edges()
	for it.Next() {
		e := it.Edge()
		i, j := int(e.From().ID()), int(e.To().ID())
		if i > j {
			i, j = j, i
		}
		cd := cands[[2]int{i, j}]
		edges = append(edges, Edge{FromSub: cd.from, ToSub: cd.to, DistanceKM: cd.km})
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].FromSub != edges[b].FromSub {
			return edges[a].FromSub < edges[b].FromSub
		}
		return edges[a].ToSub < edges[b].ToSub
	})

	if stranded := len(comps) - 1 - len(edges); stranded > 0 {
		metrics.Drop(stage, "no_adjacent_component", stranded)
		log.Printf("islands: %s: %d components have no neighbour in an adjacent state and stay disconnected", ic, stranded)
	}
	return edges, nil
}

func components(raw [][]graph.Node, byID map[int64]models.Substation) []component {
	comps := make([]component, 0, len(raw))
	for _, nodes := range raw {
		comp := component{states: map[string]bool{}}
		for _, n := range nodes {
			s := byID[n.ID()]
			comp.subs = append(comp.subs, s)
			comp.states[s.State] = true
		}
		sort.Slice(comp.subs, func(a, b int) bool { return comp.subs[a].ID < comp.subs[b].ID })
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(a, b int) bool {
		if len(comps[a].subs) != len(comps[b].subs) {
			return len(comps[a].subs) > len(comps[b].subs)
		}
		return comps[a].subs[0].ID < comps[b].subs[0].ID
	})
	return comps
}

// adjacentNodes returns the substations of a that lie in a state adjacent
// to one of b's states.
func (c *Connector) adjacentNodes(a, b component) []models.Substation {
	var out []models.Substation
	for _, s := range a.subs {
		for st := range b.states {
			if c.adj.Adjacent(s.State, st) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// closestPair finds the closest pair by great-circle distance; ties go to
// the lowest (from, to) IDs.
func closestPair(a, b []models.Substation) (from, to int64, km float64, err error) {
	lats := make([]float64, len(b))
	lons := make([]float64, len(b))
	for i, s := range b {
		lats[i], lons[i] = s.Lat, s.Lon
	}
	ix, err := geo.NewPointIndex(lats, lons)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("islands: %w", err)
	}
	km = math.Inf(1)
	for _, s := range a {
		n := b[ix.Nearest(s.Lat, s.Lon)]
		d := geo.Haversine(s.Lat, s.Lon, n.Lat, n.Lon)
		if d < km || (d == km && (s.ID < from || (s.ID == from && n.ID < to))) {
			from, to, km = s.ID, n.ID, d
		}
	}
	return from, to, km, nil
}

// materialize turns edges into lines. Each new line copies voltage class and
// type from a representative line of the larger component it joins, so its
// impedance and rating follow the same voltage level.
func (c *Connector) materialize(subs []models.Substation, lines []models.Line, edges []Edge) ([]models.Line, error) {
	if len(edges) == 0 {
		return lines, nil
	}
	byID := make(map[int64]models.Substation, len(subs))
	for _, s := range subs {
		byID[s.ID] = s
	}
	incident := map[int64][]int{}
	nextID := int64(0)
	for i, l := range lines {
		incident[l.Sub1ID] = append(incident[l.Sub1ID], i)
		incident[l.Sub2ID] = append(incident[l.Sub2ID], i)
		if l.ID > nextID {
			nextID = l.ID
		}
	}
	comp := labelComponents(subs, lines)

	out := append([]models.Line(nil), lines...)
	for _, e := range edges {
		from, ok1 := byID[e.FromSub]
		to, ok2 := byID[e.ToSub]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("islands: cached edge %d-%d references unknown substations", e.FromSub, e.ToSub)
		}
		nextID++
		l := models.Line{
			ID:           nextID,
			Sub1Name:     from.Name,
			Sub2Name:     to.Name,
			Sub1ID:       from.ID,
			Sub2ID:       to.ID,
			Interconnect: from.Interconnect,
			Synthetic:    true,
			Vertices:     []models.LonLat{{Lon: from.Lon, Lat: from.Lat}, {Lon: to.Lon, Lat: to.Lat}},
		}
		l.Voltage.Float64, l.Voltage.Valid = c.defaultKV, true
		l.VoltClass = "SYNTHETIC"

		anchor, other := from.ID, to.ID
		if comp.size(to.ID) > comp.size(from.ID) {
			anchor, other = to.ID, from.ID
		}
		rep, ok := representative(lines, incident, anchor, comp)
		if !ok {
			rep, ok = representative(lines, incident, other, comp)
		}
		if ok {
			l.Voltage = rep.Voltage
			l.VoltClass = rep.VoltClass
			l.Type = rep.Type
		}
		out = append(out, l)
	}
	metrics.Impute(stage, "synthetic_line", len(edges))
	log.Printf("islands: added %d synthetic lines", len(edges))
	return out, nil
}

// componentIndex maps each substation to its connected component before
// synthetic lines are added.
type componentIndex struct {
	of    map[int64]int
	sizes []int
}

func labelComponents(subs []models.Substation, lines []models.Line) *componentIndex {
	g := simple.NewUndirectedGraph()
	for _, s := range subs {
		g.AddNode(simple.Node(s.ID))
	}
	for _, l := range lines {
		if l.Sub1ID == l.Sub2ID {
			continue
		}
		if g.Node(l.Sub1ID) == nil || g.Node(l.Sub2ID) == nil {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(l.Sub1ID), simple.Node(l.Sub2ID)))
	}
	ci := &componentIndex{of: map[int64]int{}}
	for i, c := range topo.ConnectedComponents(g) {
		for _, n := range c {
			ci.of[n.ID()] = i
		}
		ci.sizes = append(ci.sizes, len(c))
	}
	return ci
}

func (c *componentIndex) size(id int64) int {
	i, ok := c.of[id]
	if !ok {
		return 0
	}
	return c.sizes[i]
}

// representative picks a line in anchor's component: the lowest-ID line at
// the anchor substation, else the lowest-ID line of the component.
func representative(lines []models.Line, incident map[int64][]int, anchor int64, comp *componentIndex) (models.Line, bool) {
	best := -1
	for _, i := range incident[anchor] {
		if best < 0 || lines[i].ID < lines[best].ID {
			best = i
		}
	}
	if best >= 0 {
		return lines[best], true
	}
	root, ok := comp.of[anchor]
	if !ok {
		return models.Line{}, false
	}
	for i, l := range lines {
		if c, ok := comp.of[l.Sub1ID]; ok && c == root && (best < 0 || l.ID < lines[best].ID) {
			best = i
		}
	}
	if best < 0 {
		return models.Line{}, false
	}
	return lines[best], true
}

func sortedICs(m map[models.Interconnect][]models.Substation) []models.Interconnect {
	out := make([]models.Interconnect, 0, len(m))
	for ic := range m {
		out = append(out, ic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
