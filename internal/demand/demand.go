// Package demand allocates population-derived demand to load buses.
package demand

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/network"
)

const stage = "demand"

// Allocation is the population assigned to each load substation and the
// resulting bus demand.
type Allocation struct {
	SubPopulation map[int64]float64
	BusPd         map[int64]float64
	// Population of counties with no substation at all.
	Unserved float64
}

// Distribute assigns county population to substations in two stages and
// converts it to MW on each substation's lowest-voltage bus.
//
// Stage 1 ranks the substations of every ZIP by incident line capacity and
// gives the ZIP population in equal shares to the top fraction. Stage 2
// computes what each county still lacks, designates the highest-capacity
// substation of counties without a load substation, and spreads the residual
// evenly over the county's load substations.
func Distribute(net *network.Network, counties map[string]float64, zipCounty []ZIPCounty, cfg config.Demand) (*Allocation, error) {
	capacity := net.SubstationCapacity()

	subsByZIP := map[string][]models.Substation{}
	subsByCounty := map[string][]models.Substation{}
	for _, s := range net.Substations {
		if _, ok := net.LowestVoltageBus(s.ID); !ok {
			continue
		}
		if s.ZIP != "" {
			subsByZIP[s.ZIP] = append(subsByZIP[s.ZIP], s)
		}
		if s.CountyFIPS != "" {
			subsByCounty[s.CountyFIPS] = append(subsByCounty[s.CountyFIPS], s)
		}
	}
	byCapacity := func(subs []models.Substation) {
		sort.Slice(subs, func(i, j int) bool {
			ci, cj := capacity[subs[i].ID], capacity[subs[j].ID]
			if ci != cj {
				return ci > cj
			}
			return subs[i].ID < subs[j].ID
		})
	}

	// ZIP population and the share each county contributes to it.
	zipPop := map[string]float64{}
	zipShares := map[string]map[string]float64{}
	for _, zc := range zipCounty {
		p := counties[zc.County] * zc.ResRatio
		if p == 0 {
			continue
		}
		zipPop[zc.ZIP] += p
		if zipShares[zc.ZIP] == nil {
			zipShares[zc.ZIP] = map[string]float64{}
		}
		zipShares[zc.ZIP][zc.County] += p
	}

	alloc := &Allocation{SubPopulation: map[int64]float64{}, BusPd: map[int64]float64{}}
	loadSubs := map[int64]bool{}
	accounted := map[string]float64{}

	zips := make([]string, 0, len(zipPop))
	for z := range zipPop {
		zips = append(zips, z)
	}
	sort.Strings(zips)
	for _, z := range zips {
		subs := subsByZIP[z]
		if len(subs) == 0 {
			continue
		}
		byCapacity(subs)
		k := int(math.Ceil(cfg.LoadSubFraction * float64(len(subs))))
		if k < 1 {
			k = 1
		}
		share := zipPop[z] / float64(k)
		for _, s := range subs[:k] {
			alloc.SubPopulation[s.ID] += share
			loadSubs[s.ID] = true
		}
		for county, p := range zipShares[z] {
			accounted[county] += p
		}
	}

	fips := make([]string, 0, len(counties))
	for c := range counties {
		fips = append(fips, c)
	}
	sort.Strings(fips)
	var designated, topped, unserved int
	for _, c := range fips {
		residual := math.Max(0, counties[c]-accounted[c])
		subs := subsByCounty[c]
		if len(subs) == 0 {
			if residual > 0 {
				alloc.Unserved += residual
				unserved++
			}
			continue
		}
		var loads []models.Substation
		for _, s := range subs {
			if loadSubs[s.ID] {
				loads = append(loads, s)
			}
		}
		if len(loads) == 0 {
			if residual == 0 {
				continue
			}
			byCapacity(subs)
			loads = subs[:1]
			loadSubs[subs[0].ID] = true
			designated++
		}
		if residual == 0 {
			continue
		}
		share := residual / float64(len(loads))
		for _, s := range loads {
			alloc.SubPopulation[s.ID] += share
		}
		topped++
	}
	metrics.Impute(stage, "county_load_substation", designated)
	if alloc.Unserved > 0 {
		metrics.Drop(stage, "county_without_substation", unserved)
		log.Printf("demand: %.0f people in %d counties with no substation", alloc.Unserved, unserved)
	}
	log.Printf("demand: %d load substations, %d counties topped up, %d designated", len(alloc.SubPopulation), topped, designated)

	for subID, p := range alloc.SubPopulation {
		bus, _ := net.LowestVoltageBus(subID)
		alloc.BusPd[bus.ID] += p * cfg.PerCapitaMW
	}
	if err := checkInterconnects(net, alloc, counties); err != nil {
		return nil, err
	}
	return alloc, nil
}

// checkInterconnects requires positive demand in every interconnection that
// has a substation in a populated county.
func checkInterconnects(net *network.Network, alloc *Allocation, counties map[string]float64) error {
	populated := map[models.Interconnect]bool{}
	for _, s := range net.Substations {
		if counties[s.CountyFIPS] > 0 {
			populated[s.Interconnect] = true
		}
	}
	pd := map[models.Interconnect]float64{}
	for _, b := range net.Buses {
		pd[b.Interconnect] += alloc.BusPd[b.ID]
	}
	for _, ic := range models.Interconnects {
		if populated[ic] && pd[ic] <= 0 {
			return fmt.Errorf("demand: %s has populated counties but no demand", ic)
		}
	}
	return nil
}

// TotalPd returns the demand assigned across all buses in MW.
func (a *Allocation) TotalPd() float64 {
	var t float64
	for _, pd := range a.BusPd {
		t += pd
	}
	return t
}

// Total returns the population assigned across all substations.
func (a *Allocation) Total() float64 {
	var t float64
	for _, p := range a.SubPopulation {
		t += p
	}
	return t
}
