// Package network turns labelled substations and lines into the bus-branch
// model: buses per voltage level, transformers, per-unit impedances, DC
// lines and zones.
package network

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/partition"
)

// Lines shorter than this are treated as this long so no branch has zero
// impedance.
const minLengthKM = 0.1

// Network is the bus-branch model of every interconnection.
type Network struct {
	Substations []models.Substation
	Buses       []models.Bus
	Branches    []models.Branch
	DCLines     []models.DCLine
	Zones       []models.Zone

	busesBySub map[int64][]int
	subByID    map[int64]int
}

// Build creates buses and branches. Buses are numbered in (substation,
// voltage) order starting at 1; line branches follow line ID order and
// transformers come after all lines.
func Build(subs []models.Substation, lines []models.Line, ties []partition.Tie, cfg config.Network) (*Network, error) {
	n := &Network{Substations: append([]models.Substation(nil), subs...)}
	sort.Slice(n.Substations, func(i, j int) bool { return n.Substations[i].ID < n.Substations[j].ID })

	subIdx := make(map[int64]int, len(subs))
	for i, s := range n.Substations {
		subIdx[s.ID] = i
	}

	levels := map[int64]map[float64]bool{}
	for _, l := range lines {
		if !l.Voltage.Valid {
			return nil, &models.DataError{Stage: "network", Row: fmt.Sprintf("line %d", l.ID), Reason: "voltage is unknown"}
		}
		for _, id := range []int64{l.Sub1ID, l.Sub2ID} {
			if _, ok := subIdx[id]; !ok {
				return nil, &models.DataError{Stage: "network", Row: fmt.Sprintf("line %d", l.ID), Reason: fmt.Sprintf("unknown substation %d", id)}
			}
			if levels[id] == nil {
				levels[id] = map[float64]bool{}
			}
			levels[id][l.Voltage.Float64] = true
		}
	}

	zones := buildZones(n.Substations)
	zoneOf := map[zoneKey]int{}
	for _, z := range zones {
		zoneOf[zoneKey{z.State, z.Interconnect}] = z.ID
	}
	n.Zones = zones

	busAt := map[int64]map[float64]int64{}
	nextBus := int64(1)
	for _, s := range n.Substations {
		kvs := make([]float64, 0, len(levels[s.ID]))
		for kv := range levels[s.ID] {
			kvs = append(kvs, kv)
		}
		if len(kvs) == 0 {
			kvs = append(kvs, cfg.DefaultKV)
		}
		sort.Float64s(kvs)
		busAt[s.ID] = map[float64]int64{}
		for _, kv := range kvs {
			n.Buses = append(n.Buses, models.Bus{
				ID:           nextBus,
				SubID:        s.ID,
				BaseKV:       kv,
				ZoneID:       zoneOf[zoneKey{s.State, s.Interconnect}],
				Interconnect: s.Interconnect,
				Type:         models.BusTypePQ,
			})
			busAt[s.ID][kv] = nextBus
			nextBus++
		}
	}

	sorted := append([]models.Line(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	nextBranch := int64(1)
	for _, l := range sorted {
		kv := l.Voltage.Float64
		length := lineLength(l, n.Substations[subIdx[l.Sub1ID]], n.Substations[subIdx[l.Sub2ID]])
		r, x, b, rate := LineImpedance(cfg, kv, length)
		n.Branches = append(n.Branches, models.Branch{
			ID:           nextBranch,
			FromBus:      busAt[l.Sub1ID][kv],
			ToBus:        busAt[l.Sub2ID][kv],
			BaseKV:       kv,
			R:            r,
			X:            x,
			B:            b,
			RateA:        rate,
			Device:       models.DeviceLine,
			Interconnect: l.Interconnect,
			LineID:       l.ID,
			LengthKM:     length,
		})
		nextBranch++
	}

	transformers := 0
	for _, s := range n.Substations {
		buses := n.subBusIDs(s.ID)
		for i := 1; i < len(buses); i++ {
			lo, hi := n.Buses[buses[i-1]], n.Buses[buses[i]]
			n.Branches = append(n.Branches, models.Branch{
				ID:           nextBranch,
				FromBus:      hi.ID,
				ToBus:        lo.ID,
				BaseKV:       hi.BaseKV,
				R:            cfg.Transformer.R,
				X:            cfg.Transformer.X,
				RateA:        cfg.Transformer.RatingMultiple * cfg.LineParameter(lo.BaseKV).RateMVA,
				Device:       models.DeviceTransformer,
				Interconnect: s.Interconnect,
			})
			nextBranch++
			transformers++
		}
	}

	for i, t := range ties {
		from, ok1 := n.HighestVoltageBus(t.FromSub)
		to, ok2 := n.HighestVoltageBus(t.ToSub)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("network: DC tie %d-%d references unknown substations", t.FromSub, t.ToSub)
		}
		n.DCLines = append(n.DCLines, models.DCLine{
			ID:               int64(i + 1),
			FromBus:          from.ID,
			ToBus:            to.ID,
			Pmax:             t.Pmax,
			FromInterconnect: t.FromInterconnect,
			ToInterconnect:   t.ToInterconnect,
		})
	}

	log.Printf("network: %d buses, %d lines, %d transformers, %d DC lines, %d zones",
		len(n.Buses), len(sorted), transformers, len(n.DCLines), len(n.Zones))
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// LineImpedance converts the per-km parameters nearest to kv into per-unit
// values on the configured MVA base.
func LineImpedance(cfg config.Network, kv, lengthKM float64) (r, x, b, rate float64) {
	p := cfg.LineParameter(kv)
	zBase := kv * kv / cfg.BaseMVA
	r = p.ROhmKM * lengthKM / zBase
	x = p.XOhmKM * lengthKM / zBase
	b = p.BuSKM * 1e-6 * lengthKM * zBase
	return r, x, b, p.RateMVA
}

func lineLength(l models.Line, s1, s2 models.Substation) float64 {
	lons := make([]float64, len(l.Vertices))
	lats := make([]float64, len(l.Vertices))
	for i, v := range l.Vertices {
		lons[i], lats[i] = v.Lon, v.Lat
	}
	length := geo.PathLength(lons, lats)
	if length == 0 {
		length = geo.Haversine(s1.Lat, s1.Lon, s2.Lat, s2.Lon)
	}
	return math.Max(length, minLengthKM)
}

type zoneKey struct {
	state string
	ic    models.Interconnect
}

// buildZones creates one zone per (state, interconnection) pair, ordered by
// interconnection priority then state.
func buildZones(subs []models.Substation) []models.Zone {
	seen := map[zoneKey]bool{}
	var keys []zoneKey
	for _, s := range subs {
		k := zoneKey{s.State, s.Interconnect}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	rank := map[models.Interconnect]int{}
	for i, ic := range models.Interconnects {
		rank[ic] = i
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ic != keys[j].ic {
			return rank[keys[i].ic] < rank[keys[j].ic]
		}
		return keys[i].state < keys[j].state
	})
	zones := make([]models.Zone, len(keys))
	for i, k := range keys {
		state := k.state
		if state == "" {
			state = "Unknown"
		}
		zones[i] = models.Zone{
			ID:           i + 1,
			Name:         fmt.Sprintf("%s %s", state, k.ic),
			State:        k.state,
			Interconnect: k.ic,
		}
	}
	return zones
}

func (n *Network) index() {
	if n.busesBySub != nil {
		return
	}
	n.busesBySub = map[int64][]int{}
	for i, b := range n.Buses {
		n.busesBySub[b.SubID] = append(n.busesBySub[b.SubID], i)
	}
	for _, idx := range n.busesBySub {
		sort.Slice(idx, func(a, b int) bool { return n.Buses[idx[a]].BaseKV < n.Buses[idx[b]].BaseKV })
	}
	n.subByID = map[int64]int{}
	for i, s := range n.Substations {
		n.subByID[s.ID] = i
	}
}

// subBusIDs returns indexes into Buses for a substation, lowest voltage first.
func (n *Network) subBusIDs(subID int64) []int {
	n.index()
	return n.busesBySub[subID]
}

func (n *Network) Substation(id int64) (models.Substation, bool) {
	n.index()
	i, ok := n.subByID[id]
	if !ok {
		return models.Substation{}, false
	}
	return n.Substations[i], true
}

// LowestVoltageBus returns the bus where load and generation attach.
func (n *Network) LowestVoltageBus(subID int64) (models.Bus, bool) {
	idx := n.subBusIDs(subID)
	if len(idx) == 0 {
		return models.Bus{}, false
	}
	return n.Buses[idx[0]], true
}

func (n *Network) HighestVoltageBus(subID int64) (models.Bus, bool) {
	idx := n.subBusIDs(subID)
	if len(idx) == 0 {
		return models.Bus{}, false
	}
	return n.Buses[idx[len(idx)-1]], true
}

// SubstationCapacity sums the ratings of AC lines incident to each
// substation. Transformers are not counted.
func (n *Network) SubstationCapacity() map[int64]float64 {
	subOf := make(map[int64]int64, len(n.Buses))
	for _, b := range n.Buses {
		subOf[b.ID] = b.SubID
	}
	capacity := map[int64]float64{}
	for _, br := range n.Branches {
		if br.Device != models.DeviceLine {
			continue
		}
		capacity[subOf[br.FromBus]] += br.RateA
		capacity[subOf[br.ToBus]] += br.RateA
	}
	return capacity
}

// SetDemand sets Pd on every bus from a map keyed by bus ID.
func (n *Network) SetDemand(pd map[int64]float64) {
	for i := range n.Buses {
		n.Buses[i].Pd = pd[n.Buses[i].ID]
	}
}

// SetBusTypes marks generator buses PV and, in each interconnection, the bus
// with the largest total Pmax as slack. Ties go to the lowest bus ID.
func (n *Network) SetBusTypes(gens []models.Generator) {
	pmax := map[int64]float64{}
	for _, g := range gens {
		pmax[g.BusID] += g.Pmax
	}
	slack := map[models.Interconnect]int{}
	for i := range n.Buses {
		b := &n.Buses[i]
		b.Type = models.BusTypePQ
		p, ok := pmax[b.ID]
		if !ok {
			continue
		}
		b.Type = models.BusTypePV
		j, seen := slack[b.Interconnect]
		if !seen || p > pmax[n.Buses[j].ID] || (p == pmax[n.Buses[j].ID] && b.ID < n.Buses[j].ID) {
			slack[b.Interconnect] = i
		}
	}
	for _, i := range slack {
		n.Buses[i].Type = models.BusTypeSlack
	}
}

// Validate checks the labelling and reference invariants of the model.
func (n *Network) Validate() error {
	subIC := make(map[int64]models.Interconnect, len(n.Substations))
	for _, s := range n.Substations {
		subIC[s.ID] = s.Interconnect
	}
	busIC := make(map[int64]models.Interconnect, len(n.Buses))
	for _, b := range n.Buses {
		ic, ok := subIC[b.SubID]
		if !ok {
			return fmt.Errorf("network: bus %d references unknown substation %d", b.ID, b.SubID)
		}
		if ic != b.Interconnect {
			return fmt.Errorf("network: bus %d is %s but substation %d is %s", b.ID, b.Interconnect, b.SubID, ic)
		}
		busIC[b.ID] = b.Interconnect
	}
	for _, br := range n.Branches {
		if br.FromBus == br.ToBus {
			return fmt.Errorf("network: branch %d connects bus %d to itself", br.ID, br.FromBus)
		}
		from, ok1 := busIC[br.FromBus]
		to, ok2 := busIC[br.ToBus]
		if !ok1 || !ok2 {
			return fmt.Errorf("network: branch %d references unknown bus", br.ID)
		}
		if from != br.Interconnect || to != br.Interconnect {
			return fmt.Errorf("network: branch %d (%s) joins %s and %s", br.ID, br.Interconnect, from, to)
		}
	}
	for _, dc := range n.DCLines {
		if busIC[dc.FromBus] == busIC[dc.ToBus] {
			return fmt.Errorf("network: DC line %d stays inside %s", dc.ID, busIC[dc.FromBus])
		}
	}
	return nil
}
