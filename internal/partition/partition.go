// Package partition splits the national substation graph into the
// asynchronous interconnections by cutting it at the DC tie substations.
package partition

import (
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
)

const stage = "partition"

// Tie is a DC link between two halves of a split seam substation.
type Tie struct {
	FromSub          int64
	ToSub            int64
	Pmax             float64
	FromInterconnect models.Interconnect
	ToInterconnect   models.Interconnect
}

// Result holds the labelled tables. Seam substations that border several
// interconnections are replaced by one virtual substation per side.
type Result struct {
	Substations []models.Substation
	Lines       []models.Line
	Ties        []Tie
}

type seamKey struct{ name, state string }

// Partition labels every substation and line with its interconnection.
func Partition(subs []models.Substation, lines []models.Line, cfg config.Partition) (*Result, error) {
	byID := make(map[int64]models.Substation, len(subs))
	for _, s := range subs {
		byID[s.ID] = s
	}

	seams, err := findSeams(subs, cfg.Seams)
	if err != nil {
		return nil, err
	}

	g := simple.NewUndirectedGraph()
	for _, s := range subs {
		if !seams[s.ID] {
			g.AddNode(simple.Node(s.ID))
		}
	}
	for _, l := range lines {
		if _, ok := byID[l.Sub1ID]; !ok {
			return nil, &models.DataError{Stage: stage, Row: fmt.Sprintf("line %d", l.ID), Reason: fmt.Sprintf("unknown substation %d", l.Sub1ID)}
		}
		if _, ok := byID[l.Sub2ID]; !ok {
			return nil, &models.DataError{Stage: stage, Row: fmt.Sprintf("line %d", l.ID), Reason: fmt.Sprintf("unknown substation %d", l.Sub2ID)}
		}
		if seams[l.Sub1ID] || seams[l.Sub2ID] || l.Sub1ID == l.Sub2ID {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(l.Sub1ID), simple.Node(l.Sub2ID)))
	}

	labels, err := labelComponents(topo.ConnectedComponents(g), byID, cfg)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	lineIC := make([]models.Interconnect, len(lines))
	for i, l := range lines {
		s1, s2 := seams[l.Sub1ID], seams[l.Sub2ID]
		switch {
		case !s1:
			lineIC[i] = labels[l.Sub1ID]
		case !s2:
			lineIC[i] = labels[l.Sub2ID]
		default:
			ic, ok := cfg.LineOverrides[l.ID]
			if !ok {
				return nil, &models.DataError{
					Stage:  stage,
					Row:    fmt.Sprintf("line %d", l.ID),
					Reason: "both endpoints are seam substations and no line override is configured",
				}
			}
			lineIC[i] = ic
		}
	}

	// Interconnections seen at each seam substation, in priority order.
	seamICs := map[int64][]models.Interconnect{}
	for i, l := range lines {
		for _, id := range []int64{l.Sub1ID, l.Sub2ID} {
			if seams[id] && !containsIC(seamICs[id], lineIC[i]) {
				seamICs[id] = append(seamICs[id], lineIC[i])
			}
		}
	}

	nextID := int64(0)
	for _, s := range subs {
		if s.ID > nextID {
			nextID = s.ID
		}
	}
	nextID++

	virtual := map[int64]map[models.Interconnect]int64{}
	for _, s := range subs {
		if !seams[s.ID] {
			s.Interconnect = labels[s.ID]
			res.Substations = append(res.Substations, s)
			continue
		}
		ics := sortICs(seamICs[s.ID])
		switch len(ics) {
		case 0:
			s.Interconnect = nearestLabel(s, byID, labels)
			log.Printf("partition: seam substation %s (%d) has no lines, labelled %s", s.Name, s.ID, s.Interconnect)
			res.Substations = append(res.Substations, s)
		case 1:
			s.Interconnect = ics[0]
			res.Substations = append(res.Substations, s)
		default:
			virtual[s.ID] = map[models.Interconnect]int64{}
			var parts []models.Substation
			for _, ic := range ics {
				v := s
				v.ID = nextID
				nextID++
				v.Name = fmt.Sprintf("%s_%s", s.Name, ic)
				v.Interconnect = ic
				v.SplitFrom = s.ID
				virtual[s.ID][ic] = v.ID
				parts = append(parts, v)
			}
			res.Substations = append(res.Substations, parts...)
			ties, err := tiesFor(s, parts, cfg.DCRatings)
			if err != nil {
				return nil, err
			}
			res.Ties = append(res.Ties, ties...)
		}
	}

	for i, l := range lines {
		l.Interconnect = lineIC[i]
		if m, ok := virtual[l.Sub1ID]; ok {
			l.Sub1ID = m[l.Interconnect]
		}
		if m, ok := virtual[l.Sub2ID]; ok {
			l.Sub2ID = m[l.Interconnect]
		}
		res.Lines = append(res.Lines, l)
	}

	if err := checkLabels(res); err != nil {
		return nil, err
	}
	counts := map[models.Interconnect]int{}
	for _, s := range res.Substations {
		counts[s.Interconnect]++
	}
	for _, ic := range cfg.Labels {
		log.Printf("partition: %s has %d substations", ic, counts[ic])
	}
	log.Printf("partition: %d seam substations split, %d DC ties", len(virtual), len(res.Ties))
	return res, nil
}

func findSeams(subs []models.Substation, list []config.Seam) (map[int64]bool, error) {
	want := map[seamKey]bool{}
	for _, s := range list {
		want[seamKey{s.Name, s.State}] = true
	}
	found := map[seamKey]bool{}
	seams := map[int64]bool{}
	for _, s := range subs {
		k := seamKey{s.Name, s.State}
		if want[k] {
			seams[s.ID] = true
			found[k] = true
		}
	}
	for _, s := range list {
		if !found[seamKey{s.Name, s.State}] {
			return nil, &models.DataError{
				Stage:  stage,
				Row:    fmt.Sprintf("seam %s, %s", s.Name, s.State),
				Reason: "seam substation not found in substation table",
			}
		}
	}
	return seams, nil
}

// labelComponents names the major components in size order and assigns each
// minor component the interconnection of its nearest labelled substation.
func labelComponents(comps [][]graph.Node, byID map[int64]models.Substation, cfg config.Partition) (map[int64]models.Interconnect, error) {
	ids := make([][]int64, len(comps))
	for i, c := range comps {
		for _, n := range c {
			ids[i] = append(ids[i], n.ID())
		}
		sort.Slice(ids[i], func(a, b int) bool { return ids[i][a] < ids[i][b] })
	}
	sort.Slice(ids, func(a, b int) bool {
		if len(ids[a]) != len(ids[b]) {
			return len(ids[a]) > len(ids[b])
		}
		return ids[a][0] < ids[b][0]
	})
	// The seam list is hand-curated; a stale entry shows up as the wrong
	// number of major components.
	major := 0
	var threshold float64
	if len(ids) > 0 {
		threshold = cfg.MajorShare * float64(len(ids[0]))
	}
	for major < len(ids) && float64(len(ids[major])) >= threshold {
		major++
	}
	if major != cfg.ExpectedMajor {
		sizes := make([]int, 0, major)
		for _, c := range ids[:major] {
			sizes = append(sizes, len(c))
		}
		return nil, fmt.Errorf("partition: found %d major components %v, want %d: seam substation list may be stale",
			major, sizes, cfg.ExpectedMajor)
	}

	labels := map[int64]models.Interconnect{}
	var lats, lons []float64
	var labelled []int64
	for i, c := range ids[:major] {
		for _, id := range c {
			labels[id] = cfg.Labels[i]
			lats = append(lats, byID[id].Lat)
			lons = append(lons, byID[id].Lon)
			labelled = append(labelled, id)
		}
	}
	if major == len(ids) {
		return labels, nil
	}

	ix, err := geo.NewPointIndex(lats, lons)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	minorSubs := 0
	for _, c := range ids[major:] {
		best := math.Inf(1)
		var ic models.Interconnect
		for _, id := range c {
			s := byID[id]
			n := byID[labelled[ix.Nearest(s.Lat, s.Lon)]]
			if d := geo.Haversine(s.Lat, s.Lon, n.Lat, n.Lon); d < best {
				best, ic = d, labels[n.ID]
			}
		}
		for _, id := range c {
			labels[id] = ic
		}
		minorSubs += len(c)
	}
	metrics.Impute(stage, "minor_component", minorSubs)
	log.Printf("partition: labelled %d minor components (%d substations) by nearest neighbour", len(ids)-major, minorSubs)
	return labels, nil
}

func nearestLabel(s models.Substation, byID map[int64]models.Substation, labels map[int64]models.Interconnect) models.Interconnect {
	best := math.Inf(1)
	var bestID int64
	var ic models.Interconnect
	for id, l := range labels {
		n := byID[id]
		d := geo.Haversine(s.Lat, s.Lon, n.Lat, n.Lon)
		if d < best || (d == best && id < bestID) {
			best, bestID, ic = d, id, l
		}
	}
	return ic
}

func tiesFor(orig models.Substation, parts []models.Substation, ratings map[string]float64) ([]Tie, error) {
	pmax, ok := ratings[orig.Name]
	if !ok {
		return nil, &models.DataError{
			Stage:  stage,
			Row:    fmt.Sprintf("substation %d", orig.ID),
			Reason: fmt.Sprintf("no DC rating configured for seam %s", orig.Name),
		}
	}
	var ties []Tie
	for i := 0; i < len(parts); i++ {
		for j := i + 1; j < len(parts); j++ {
			ties = append(ties, Tie{
				FromSub:          parts[i].ID,
				ToSub:            parts[j].ID,
				Pmax:             pmax,
				FromInterconnect: parts[i].Interconnect,
				ToInterconnect:   parts[j].Interconnect,
			})
		}
	}
	return ties, nil
}

func checkLabels(res *Result) error {
	ic := make(map[int64]models.Interconnect, len(res.Substations))
	for _, s := range res.Substations {
		ic[s.ID] = s.Interconnect
	}
	for _, l := range res.Lines {
		if ic[l.Sub1ID] != l.Interconnect || ic[l.Sub2ID] != l.Interconnect {
			return fmt.Errorf("partition: line %d crosses interconnections (%s-%s)", l.ID, ic[l.Sub1ID], ic[l.Sub2ID])
		}
	}
	return nil
}

func containsIC(ics []models.Interconnect, ic models.Interconnect) bool {
	for _, x := range ics {
		if x == ic {
			return true
		}
	}
	return false
}

func sortICs(ics []models.Interconnect) []models.Interconnect {
	rank := func(ic models.Interconnect) int {
		for i, x := range models.Interconnects {
			if x == ic {
				return i
			}
		}
		return len(models.Interconnects)
	}
	out := append([]models.Interconnect(nil), ics...)
	sort.Slice(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}
