package main

import (
	"context"
	"log"

	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/islands"
	"github.com/lox/gridprep/internal/pipeline"
)

type TopologyCmd struct {
	Substations string `required:"" type:"existingfile" help:"HIFLD substations CSV."`
	Lines       string `required:"" type:"existingfile" help:"HIFLD transmission lines GeoJSON."`

	StateShapes  string `type:"path" help:"State boundary shapefile, used to fill missing substation states."`
	StateField   string `default:"STUSPS"`
	CountyShapes string `type:"path" help:"County boundary shapefile."`
	CountyField  string `default:"GEOID"`
	ZIPShapes    string `name:"zip-shapes" type:"path" help:"ZIP code tabulation area shapefile."`
	ZIPField     string `name:"zip-field" default:"ZCTA5CE10"`

	EIAPlants     string   `name:"eia-plants" required:"" type:"existingfile" help:"EIA-860 plant table (2___Plant)."`
	EIAGenerators string   `name:"eia-generators" required:"" type:"existingfile" help:"EIA-860 operable generator table (3_1_Generator)."`
	Crosswalk     string   `type:"path" help:"EIA-EPA power sector data crosswalk CSV."`
	EPA           []string `name:"epa" type:"path" help:"EPA AMPD hourly emissions CSVs."`

	Population       string `required:"" type:"existingfile" help:"Census county population estimates CSV."`
	PopulationColumn string `default:"POPESTIMATE2019" help:"Population column to read."`
	ZIPCounty        string `name:"zip-county" required:"" type:"existingfile" help:"ZIP to county crosswalk CSV."`

	Resume     bool `help:"Reuse stage outputs saved by a previous run."`
	NoMSTCache bool `name:"no-mst-cache" help:"Recompute island connections instead of using the cached spanning tree."`
}

func (c *TopologyCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.assumptions()
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(g.Out, c.Resume)
	if err != nil {
		return err
	}
	log.Printf("pipeline: run %s", runner.RunID)

	var mst islands.Cache
	if !c.NoMSTCache {
		st, err := g.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		mst = st
	}

	in := pipeline.TopologyInputs{
		Substations: c.Substations,
		Lines:       c.Lines,
		Regions: geo.ShapefileSet{
			StatePath: c.StateShapes, StateField: c.StateField,
			CountyPath: c.CountyShapes, CountyField: c.CountyField,
			ZIPPath: c.ZIPShapes, ZIPField: c.ZIPField,
		},
		EIAPlants:        c.EIAPlants,
		EIAGenerators:    c.EIAGenerators,
		Crosswalk:        c.Crosswalk,
		EPAHourly:        c.EPA,
		CountyPopulation: c.Population,
		PopulationColumn: c.PopulationColumn,
		ZIPCounty:        c.ZIPCounty,
	}
	return pipeline.Topology(ctx, runner, in, a, mst, g.Out)
}
