// Package export writes the grid tables in the column layout the downstream
// simulator reads.
package export

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/network"
	"github.com/lox/gridprep/internal/profile"
	"github.com/lox/gridprep/internal/tabular"
)

const (
	busVmax = 1.1
	busVmin = 0.9
	angLim  = 360
)

var (
	subHeader     = []string{"sub_id", "name", "zip", "lat", "lon", "interconnect"}
	busHeader     = []string{"bus_id", "type", "Pd", "Qd", "Gs", "Bs", "zone_id", "Vm", "Va", "baseKV", "loss_zone", "Vmax", "Vmin", "lam_P", "lam_Q", "mu_Vmax", "mu_Vmin", "interconnect"}
	bus2subHeader = []string{"bus_id", "sub_id", "interconnect"}
	branchHeader  = []string{"branch_id", "from_bus_id", "to_bus_id", "r", "x", "b", "rateA", "rateB", "rateC", "ratio", "angle", "status", "angmin", "angmax", "Pf", "Qf", "Pt", "Qt", "mu_Sf", "mu_St", "mu_angmin", "mu_angmax", "branch_device_type", "interconnect"}
	dclineHeader  = []string{"dcline_id", "from_bus_id", "to_bus_id", "status", "Pf", "Pt", "Qf", "Qt", "Vf", "Vt", "Pmin", "Pmax", "QminF", "QmaxF", "QminT", "QmaxT", "loss0", "loss1", "muPmin", "muPmax", "muQminF", "muQmaxF", "muQminT", "muQmaxT", "from_interconnect", "to_interconnect"}
	plantHeader   = []string{"plant_id", "bus_id", "Pg", "Qg", "Qmax", "Qmin", "Vg", "mBase", "status", "Pmax", "Pmin", "Pc1", "Pc2", "Qc1min", "Qc1max", "Qc2min", "Qc2max", "ramp_agc", "ramp_10", "ramp_30", "ramp_q", "apf", "mu_Pmax", "mu_Pmin", "mu_Qmax", "mu_Qmin", "type", "interconnect", "GenFuelCost", "GenIOB", "GenIOC", "GenIOD", "lat", "lon"}
	gencostHeader = []string{"plant_id", "type", "startup", "shutdown", "n", "c2", "c1", "c0", "interconnect"}
	zoneHeader    = []string{"zone_id", "zone_name"}
)

// Grid is everything written by WriteAll.
type Grid struct {
	Network    *network.Network
	Generators []models.Generator
	FuelPrices map[models.FuelType]float64
}

// WriteAll writes every grid table plus plant_meta.csv into dir.
func WriteAll(dir string, g Grid) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	n := g.Network
	subs := make(map[int64]models.Substation, len(n.Substations))
	for _, s := range n.Substations {
		subs[s.ID] = s
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"sub.csv", func(w io.Writer) error { return WriteSubstations(w, n.Substations) }},
		{"bus.csv", func(w io.Writer) error { return WriteBuses(w, n.Buses) }},
		{"bus2sub.csv", func(w io.Writer) error { return WriteBus2Sub(w, n.Buses) }},
		{"branch.csv", func(w io.Writer) error { return WriteBranches(w, n.Branches) }},
		{"dcline.csv", func(w io.Writer) error { return WriteDCLines(w, n.DCLines) }},
		{"plant.csv", func(w io.Writer) error { return WritePlants(w, g.Generators, g.FuelPrices) }},
		{"gencost.csv", func(w io.Writer) error { return WriteGencost(w, g.Generators) }},
		{"zone.csv", func(w io.Writer) error { return WriteZones(w, n.Zones) }},
		{"plant_meta.csv", func(w io.Writer) error {
			return profile.WritePlants(w, profile.PlantsFromGenerators(g.Generators, subs))
		}},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	log.Printf("export: wrote %d substations, %d buses, %d branches, %d dc lines, %d plants to %s",
		len(n.Substations), len(n.Buses), len(n.Branches), len(n.DCLines), len(g.Generators), dir)
	return nil
}

// writeFile replaces path atomically.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

var (
	num = tabular.FormatFloat
	id  = tabular.FormatInt
)

func WriteSubstations(w io.Writer, subs []models.Substation) error {
	tw, err := tabular.NewWriter(w, subHeader...)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if err := tw.Write(id(s.ID), s.Name, s.ZIP, num(s.Lat), num(s.Lon), string(s.Interconnect)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func WriteBuses(w io.Writer, buses []models.Bus) error {
	tw, err := tabular.NewWriter(w, busHeader...)
	if err != nil {
		return err
	}
	for _, b := range buses {
		err := tw.Write(
			id(b.ID), id(int64(b.Type)), num(b.Pd), "0", "0", "0", id(int64(b.ZoneID)),
			"1", "0", num(b.BaseKV), "1", num(busVmax), num(busVmin), "0", "0", "0", "0",
			string(b.Interconnect),
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func WriteBus2Sub(w io.Writer, buses []models.Bus) error {
	tw, err := tabular.NewWriter(w, bus2subHeader...)
	if err != nil {
		return err
	}
	for _, b := range buses {
		if err := tw.Write(id(b.ID), id(b.SubID), string(b.Interconnect)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func WriteBranches(w io.Writer, branches []models.Branch) error {
	tw, err := tabular.NewWriter(w, branchHeader...)
	if err != nil {
		return err
	}
	for _, b := range branches {
		ratio := "0"
		if b.Device == models.DeviceTransformer {
			ratio = "1"
		}
		rate := num(b.RateA)
		err := tw.Write(
			id(b.ID), id(b.FromBus), id(b.ToBus), num(b.R), num(b.X), num(b.B),
			rate, rate, rate, ratio, "0", "1", num(-angLim), num(angLim),
			"0", "0", "0", "0", "0", "0", "0", "0",
			string(b.Device), string(b.Interconnect),
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func WriteDCLines(w io.Writer, lines []models.DCLine) error {
	tw, err := tabular.NewWriter(w, dclineHeader...)
	if err != nil {
		return err
	}
	for _, d := range lines {
		err := tw.Write(
			id(d.ID), id(d.FromBus), id(d.ToBus), "1", "0", "0", "0", "0", "1", "1",
			num(-d.Pmax), num(d.Pmax), "0", "0", "0", "0", "0", "0",
			"0", "0", "0", "0", "0", "0",
			string(d.FromInterconnect), string(d.ToInterconnect),
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WritePlants writes plant.csv. Heat-rate coefficients go to GenIOB..GenIOD
// and the fuel price to GenFuelCost.
func WritePlants(w io.Writer, gens []models.Generator, prices map[models.FuelType]float64) error {
	tw, err := tabular.NewWriter(w, plantHeader...)
	if err != nil {
		return err
	}
	for _, g := range gens {
		lat, lon := "", ""
		if g.Lat.Valid && g.Lon.Valid {
			lat, lon = num(g.Lat.Float64), num(g.Lon.Float64)
		}
		// Ramp limits follow the simulator's convention of Pmax per 30 min.
		ramp := num(g.Pmax)
		err := tw.Write(
			id(g.PlantID), id(g.BusID), "0", "0", "0", "0", "1", "100", "1",
			num(g.Pmax), num(g.Pmin), "0", "0", "0", "0", "0", "0",
			ramp, ramp, ramp, ramp, "0", "0", "0", "0", "0",
			string(g.Fuel), string(g.Interconnect), num(prices[g.Fuel]),
			num(g.HeatRate[0]), num(g.HeatRate[1]), num(g.HeatRate[2]),
			lat, lon,
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteGencost writes polynomial (type 2) cost curves.
func WriteGencost(w io.Writer, gens []models.Generator) error {
	tw, err := tabular.NewWriter(w, gencostHeader...)
	if err != nil {
		return err
	}
	for _, g := range gens {
		err := tw.Write(
			id(g.PlantID), "2", "0", "0", "3",
			num(g.Cost[2]), num(g.Cost[1]), num(g.Cost[0]),
			string(g.Interconnect),
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func WriteZones(w io.Writer, zones []models.Zone) error {
	tw, err := tabular.NewWriter(w, zoneHeader...)
	if err != nil {
		return err
	}
	for _, z := range zones {
		if err := tw.Write(id(int64(z.ID)), z.Name); err != nil {
			return err
		}
	}
	return tw.Flush()
}
