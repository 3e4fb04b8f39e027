// Package generators places EIA-860 generating units on the network and
// derives their heat-rate and cost curves.
package generators

import (
	"fmt"
	"log"
	"math"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/network"
)

const stage = "generators"

// Inputs bundles the EIA and EPA tables the assembler reads.
type Inputs struct {
	Units     []Unit
	Crosswalk Crosswalk
	Hourly    Hourly
}

// Assemble turns units into generators. Plant IDs are assigned in (plant
// code, generator ID) order over every input unit, so an ID is stable even
// when other units are dropped.
func Assemble(in Inputs, net *network.Network, a *config.Assumptions) ([]models.Generator, error) {
	placer := NewPlacer(net.Substations, a.Placement.ZIPWindow)

	var gens []models.Generator
	var nullPmax int
	placed := map[string]int{}
	for i, u := range in.Units {
		pmax, ok := capacity(u)
		if !ok {
			nullPmax++
			continue
		}
		ic := models.InterconnectFromNERC(u.NERC)
		subID, how := placer.Place(u.Lat, u.Lon, u.ZIP, ic)
		placed[how]++
		if how == Unplaced {
			continue
		}
		sub, _ := net.Substation(subID)
		bus, ok := net.LowestVoltageBus(subID)
		if !ok {
			return nil, fmt.Errorf("generators: substation %d has no bus", subID)
		}
		pmin := 0.0
		if u.MinLoad.Valid {
			pmin = math.Min(math.Max(u.MinLoad.Float64, 0), pmax)
		}
		gens = append(gens, models.Generator{
			PlantID:      int64(i + 1),
			BusID:        bus.ID,
			SubID:        subID,
			PlantCode:    u.PlantCode,
			GeneratorID:  u.GeneratorID,
			PlantName:    u.PlantName,
			Technology:   u.Technology,
			PrimeMover:   u.PrimeMover,
			EnergySource: u.EnergySource,
			Fuel:         models.FuelFromEnergySource(u.EnergySource, u.PrimeMover),
			Pmax:         pmax,
			Pmin:         pmin,
			HeatRate:     nanCurve,
			Interconnect: sub.Interconnect,
			Lat:          u.Lat,
			Lon:          u.Lon,
			State:        u.State,
			ZIP:          u.ZIP,
			BA:           u.BA,
		})
	}
	metrics.Drop(stage, "null_pmax", nullPmax)
	metrics.Drop(stage, "unplaced", placed[Unplaced])
	log.Printf("generators: %d units, %d null Pmax, placed %d in ZIP, %d in ZIP window, %d by ZIP only, %d unplaced",
		len(in.Units), nullPmax, placed[PlacedInZIP], placed[PlacedInWindow], placed[PlacedByZIP], placed[Unplaced])

	FitCurves(gens, in.Crosswalk, in.Hourly, a)
	Impute(gens, a)
	ApplyCost(gens, a)
	return gens, nil
}

func capacity(u Unit) (float64, bool) {
	switch {
	case u.Summer.Valid && u.Winter.Valid:
		return math.Max(u.Summer.Float64, u.Winter.Float64), true
	case u.Summer.Valid:
		return u.Summer.Float64, true
	case u.Winter.Valid:
		return u.Winter.Float64, true
	}
	return 0, false
}

// FitCurves sets fixed curves for zero-fuel and storage units and fits the
// rest from EPA samples. Fits that fail the sanity range are discarded.
func FitCurves(gens []models.Generator, cw Crosswalk, hourly Hourly, a *config.Assumptions) {
	var fitted, noMatch, rejected int
	reasons := map[string]int{}
	for i := range gens {
		g := &gens[i]
		if q, ok := a.ZeroFuelHeatRate[g.Fuel]; ok {
			g.HeatRate = q.Array()
			continue
		}
		if g.Fuel == models.FuelStorage {
			g.HeatRate = [3]float64{}
			continue
		}
		units := cw[GenKey{g.PlantCode, g.GeneratorID}]
		if len(units) == 0 {
			noMatch++
			continue
		}
		h, reason := FitHeatRate(hourly.Samples(units), a.HeatRateFit)
		if reason != "" {
			reasons[reason]++
			continue
		}
		g.HeatRate = h
		if !SanityCheck(a, *g) {
			g.HeatRate = nanCurve
			rejected++
			continue
		}
		fitted++
		if fitted%500 == 0 {
			log.Printf("generators: fitted %d heat-rate curves", fitted)
		}
	}
	for r, n := range reasons {
		metrics.Impute(stage, "heat_rate_"+r, n)
	}
	metrics.Impute(stage, "heat_rate_no_epa_match", noMatch)
	metrics.Impute(stage, "heat_rate_out_of_bounds", rejected)
	log.Printf("generators: fitted %d heat-rate curves, %d without EPA match, %d too little data, %d out of bounds",
		fitted, noMatch, reasons["too_few_samples"]+reasons["too_few_loads"], rejected)
}

// ApplyCost sets ci = hi · fuel price.
func ApplyCost(gens []models.Generator, a *config.Assumptions) {
	for i := range gens {
		price := a.FuelPrice(gens[i].Fuel)
		for c := 0; c < 3; c++ {
			gens[i].Cost[c] = gens[i].HeatRate[c] * price
		}
	}
}
