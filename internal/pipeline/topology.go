package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/demand"
	"github.com/lox/gridprep/internal/export"
	"github.com/lox/gridprep/internal/generators"
	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/islands"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/network"
	"github.com/lox/gridprep/internal/partition"
	"github.com/lox/gridprep/internal/transmission"
)

// TopologyInputs are the source files of a topology build.
type TopologyInputs struct {
	Substations string // HIFLD substations CSV
	Lines       string // HIFLD transmission lines GeoJSON
	Regions     geo.ShapefileSet

	EIAPlants     string
	EIAGenerators string
	Crosswalk     string
	EPAHourly     []string

	CountyPopulation string
	PopulationColumn string
	ZIPCounty        string
}

// Topology builds the grid tables and writes them to out. mst may be nil.
func Topology(ctx context.Context, r *Runner, in TopologyInputs, a *config.Assumptions, mst islands.Cache, out string) error {
	cleaned, err := Stage(ctx, r, "clean", func(ctx context.Context) (*transmission.Result, error) {
		var regions *geo.RegionIndex
		if rs := in.Regions; rs.StatePath != "" || rs.CountyPath != "" || rs.ZIPPath != "" {
			var err error
			if regions, err = geo.LoadRegionIndex(in.Regions); err != nil {
				return nil, err
			}
		}
		var subs []models.Substation
		err := readFile(in.Substations, func(f io.Reader) (err error) {
			subs, err = transmission.LoadSubstations(f, regions)
			return err
		})
		if err != nil {
			return nil, err
		}
		var lines []models.Line
		err = readFile(in.Lines, func(f io.Reader) (err error) {
			lines, err = transmission.LoadLines(f)
			return err
		})
		if err != nil {
			return nil, err
		}
		return transmission.Clean(subs, lines, a.Cleaner)
	})
	if err != nil {
		return err
	}

	parts, err := Stage(ctx, r, "partition", func(ctx context.Context) (*partition.Result, error) {
		return partition.Partition(cleaned.Substations, cleaned.Lines, a.Partition)
	})
	if err != nil {
		return err
	}

	connected, err := Stage(ctx, r, "islands", func(ctx context.Context) ([]models.Line, error) {
		return islands.NewConnector(a, mst, a.Network.DefaultKV).Connect(ctx, parts.Substations, parts.Lines)
	})
	if err != nil {
		return err
	}

	net, err := Stage(ctx, r, "network", func(ctx context.Context) (*network.Network, error) {
		return network.Build(parts.Substations, connected, parts.Ties, a.Network)
	})
	if err != nil {
		return err
	}

	gens, err := Stage(ctx, r, "generators", func(ctx context.Context) ([]models.Generator, error) {
		gi, err := loadGeneratorInputs(in)
		if err != nil {
			return nil, err
		}
		return generators.Assemble(gi, net, a)
	})
	if err != nil {
		return err
	}

	alloc, err := Stage(ctx, r, "demand", func(ctx context.Context) (*demand.Allocation, error) {
		var counties map[string]float64
		err := readFile(in.CountyPopulation, func(f io.Reader) (err error) {
			counties, err = demand.LoadCountyPopulation(f, in.PopulationColumn)
			return err
		})
		if err != nil {
			return nil, err
		}
		var zips []demand.ZIPCounty
		err = readFile(in.ZIPCounty, func(f io.Reader) (err error) {
			zips, err = demand.LoadZIPCounty(f)
			return err
		})
		if err != nil {
			return nil, err
		}
		return demand.Distribute(net, counties, zips, a.Demand)
	})
	if err != nil {
		return err
	}

	net.SetDemand(alloc.BusPd)
	net.SetBusTypes(gens)
	if err := net.Validate(); err != nil {
		return err
	}
	log.Printf("pipeline: %.0f MW demand for %.0f people on %d buses, %.0f people unserved", alloc.TotalPd(), alloc.Total(), len(alloc.BusPd), alloc.Unserved)
	return export.WriteAll(out, export.Grid{Network: net, Generators: gens, FuelPrices: a.FuelPrices})
}

func loadGeneratorInputs(in TopologyInputs) (generators.Inputs, error) {
	var gi generators.Inputs
	var plants map[int64]generators.Plant
	err := readFile(in.EIAPlants, func(f io.Reader) (err error) {
		plants, err = generators.LoadPlants(f)
		return err
	})
	if err != nil {
		return gi, err
	}
	err = readFile(in.EIAGenerators, func(f io.Reader) (err error) {
		gi.Units, err = generators.LoadUnits(f, plants)
		return err
	})
	if err != nil {
		return gi, err
	}
	gi.Crosswalk = generators.Crosswalk{}
	gi.Hourly = generators.Hourly{}
	if in.Crosswalk == "" {
		log.Printf("pipeline: no EIA-EPA crosswalk, heat rates will be imputed")
		return gi, nil
	}
	err = readFile(in.Crosswalk, func(f io.Reader) (err error) {
		gi.Crosswalk, err = generators.LoadCrosswalk(f)
		return err
	})
	if err != nil {
		return gi, err
	}
	want := gi.Crosswalk.Units()
	for i, p := range in.EPAHourly {
		if err := readFile(p, func(f io.Reader) error { return gi.Hourly.Load(f, want) }); err != nil {
			return gi, err
		}
		log.Printf("pipeline: read EPA file %d/%d", i+1, len(in.EPAHourly))
	}
	return gi, nil
}

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
