// Package transmission filters the raw HIFLD line and substation tables,
// resolves line endpoints to substation IDs and fills missing voltages.
package transmission

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
)

const (
	stage        = "clean"
	notAvailable = "NOT AVAILABLE"
	dcClass      = "DC"
)

// Result is the cleaned network.
type Result struct {
	Substations []models.Substation
	Lines       []models.Line
}

// Clean applies the filtering pipeline and voltage inference. Clean is
// idempotent: cleaning a Result's tables again returns them unchanged.
func Clean(subs []models.Substation, lines []models.Line, cfg config.Cleaner) (*Result, error) {
	kept := make([]models.Substation, 0, len(subs))
	for _, s := range subs {
		if s.Lines > 0 {
			kept = append(kept, s)
		}
	}
	dropSubs(len(subs)-len(kept), "no_lines", "no lines")

	if err := checkDuplicateCoordinates(kept); err != nil {
		return nil, err
	}

	byName := map[string][]models.Substation{}
	for _, s := range kept {
		byName[s.Name] = append(byName[s.Name], s)
	}

	maxKM := cfg.MaxEndpointMiles * geo.KMPerMile
	var out []models.Line
	var dcLines, unavailable, unknownName, unresolved, selfLoop int
	for _, l := range lines {
		switch {
		case l.VoltClass == dcClass:
			dcLines++
			continue
		case l.Sub1Name == notAvailable || l.Sub2Name == notAvailable:
			unavailable++
			continue
		}
		c1, ok1 := byName[l.Sub1Name]
		c2, ok2 := byName[l.Sub2Name]
		if !ok1 || !ok2 {
			unknownName++
			continue
		}
		first, last, ok := l.Endpoints()
		if !ok {
			unresolved++
			continue
		}
		id1, ok1 := closestWithin(c1, first, maxKM)
		id2, ok2 := closestWithin(c2, last, maxKM)
		if !ok1 || !ok2 {
			unresolved++
			continue
		}
		if id1 == id2 {
			selfLoop++
			continue
		}
		l.Sub1ID, l.Sub2ID = id1, id2
		out = append(out, l)
	}
	dropLines(dcLines, "dc_line", "HVDC lines")
	dropLines(unavailable, "endpoint_not_available", "endpoint NOT AVAILABLE")
	dropLines(unknownName, "endpoint_unknown", "endpoint name not in substation table")
	dropLines(unresolved, "endpoint_too_far", fmt.Sprintf("no named substation within %.0f miles", cfg.MaxEndpointMiles))
	dropLines(selfLoop, "same_endpoint", "both endpoints on one substation")

	if err := InferVoltages(out, cfg.VoltageClasses); err != nil {
		return nil, err
	}
	return &Result{Substations: kept, Lines: out}, nil
}

func dropSubs(n int, reason, msg string) {
	if n == 0 {
		return
	}
	metrics.Drop(stage, reason, n)
	log.Printf("clean: dropped %d substations (%s)", n, msg)
}

func dropLines(n int, reason, msg string) {
	if n == 0 {
		return
	}
	metrics.Drop(stage, reason, n)
	log.Printf("clean: dropped %d lines (%s)", n, msg)
}

func checkDuplicateCoordinates(subs []models.Substation) error {
	seen := make(map[[2]float64]int64, len(subs))
	for _, s := range subs {
		key := [2]float64{s.Lat, s.Lon}
		if other, ok := seen[key]; ok {
			return &models.DataError{
				Stage:  stage,
				Row:    fmt.Sprintf("substation %d", s.ID),
				Reason: fmt.Sprintf("coordinates (%v, %v) duplicate substation %d", s.Lat, s.Lon, other),
			}
		}
		seen[key] = s.ID
	}
	return nil
}

// closestWithin returns the candidate nearest to p within maxKM; ties go to
// the lowest ID.
func closestWithin(cands []models.Substation, p models.LonLat, maxKM float64) (int64, bool) {
	best := int64(0)
	bestKM := math.Inf(1)
	for _, s := range cands {
		d := geo.Haversine(s.Lat, s.Lon, p.Lat, p.Lon)
		if d > maxKM {
			continue
		}
		if d < bestKM || (d == bestKM && s.ID < best) {
			best, bestKM = s.ID, d
		}
	}
	return best, !math.IsInf(bestKM, 1)
}

// InferVoltages fills null line voltages in place. A voltage class with a
// canonical value wins; otherwise lines adopt the voltage of neighbouring
// lines sharing an endpoint substation, the minimum if they disagree.
// Neighbour inference repeats until no line changes, so chains of unknown
// lines resolve outward from known ones.
func InferVoltages(lines []models.Line, classes map[string]float64) error {
	var fromClass int
	var pending []int
	for i := range lines {
		if lines[i].Voltage.Valid {
			continue
		}
		if kv, ok := classes[lines[i].VoltClass]; ok {
			lines[i].Voltage.Float64, lines[i].Voltage.Valid = kv, true
			fromClass++
			continue
		}
		pending = append(pending, i)
	}
	metrics.Impute(stage, "voltage_class", fromClass)

	incident := map[int64][]int{}
	for i, l := range lines {
		incident[l.Sub1ID] = append(incident[l.Sub1ID], i)
		incident[l.Sub2ID] = append(incident[l.Sub2ID], i)
	}

	var fromNeighbors int
	for len(pending) > 0 {
		resolved := map[int]float64{}
		var still []int
		for _, i := range pending {
			kv := math.Inf(1)
			for _, sub := range []int64{lines[i].Sub1ID, lines[i].Sub2ID} {
				for _, j := range incident[sub] {
					if j != i && lines[j].Voltage.Valid {
						kv = math.Min(kv, lines[j].Voltage.Float64)
					}
				}
			}
			if math.IsInf(kv, 1) {
				still = append(still, i)
				continue
			}
			resolved[i] = kv
		}
		if len(resolved) == 0 {
			sort.Slice(still, func(a, b int) bool { return lines[still[a]].ID < lines[still[b]].ID })
			l := lines[still[0]]
			return &models.DataError{
				Stage:  stage,
				Row:    fmt.Sprintf("line %d", l.ID),
				Reason: fmt.Sprintf("cannot infer voltage for class %q: no neighbouring line has a voltage (%d lines affected)", l.VoltClass, len(still)),
			}
		}
		for i, kv := range resolved {
			lines[i].Voltage.Float64, lines[i].Voltage.Valid = kv, true
		}
		fromNeighbors += len(resolved)
		pending = still
	}
	metrics.Impute(stage, "voltage_neighbor", fromNeighbors)
	if fromClass+fromNeighbors > 0 {
		log.Printf("clean: inferred %d voltages from class, %d from neighbours", fromClass, fromNeighbors)
	}
	return nil
}
