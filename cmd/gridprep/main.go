package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/ingest"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/store"
)

// Globals are flags shared by every command.
type Globals struct {
	Out         string `help:"Output directory." default:"out" type:"path"`
	DB          string `help:"SQLite database holding the ingest audit, payload cache and MST cache." default:"data/gridprep.db" type:"path"`
	Assumptions string `help:"YAML file overriding the embedded assumption tables." type:"path"`
}

type CLI struct {
	Globals

	Topology TopologyCmd `cmd:"" help:"Build sub, bus, branch, dcline, plant, gencost and zone tables."`
	Profiles ProfilesCmd `cmd:"" help:"Build hourly renewable profiles for the plants in plant_meta.csv."`
	Cache    CacheCmd    `cmd:"" help:"Inspect or prune the weather caches."`
}

func (g *Globals) assumptions() (*config.Assumptions, error) {
	a, err := config.Load(g.Assumptions)
	if err != nil {
		return nil, err
	}
	if g.Assumptions != "" {
		log.Printf("config: loaded assumptions from %s", g.Assumptions)
	}
	return a, nil
}

func (g *Globals) openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(g.DB), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	st, err := store.Open(g.DB)
	if err != nil {
		return nil, err
	}
	log.Printf("store: opened %s", g.DB)
	return st, nil
}

// logIngestSummary reports the fetches made during one run.
func logIngestSummary(ctx context.Context, st *store.Store, runID string) {
	summary, err := st.IngestSummaryForRun(ctx, runID)
	if err != nil {
		log.Printf("store: ingest summary: %v", err)
		return
	}
	for _, s := range summary {
		log.Printf("ingest: %s %s: %d fetches, %d failed, %d bytes, %d records",
			s.Source, s.Endpoint, s.TotalRuns, s.FailedRuns, s.TotalBytes, s.TotalRecords)
	}
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gridprep"),
		kong.Description("Builds grid topology tables and hourly renewable profiles from public datasets."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.Vars{
			"hrrr_url":  ingest.HRRRBaseURL,
			"nsrdb_url": ingest.NSRDBBaseURL,
			"eia_url":   ingest.EIABaseURL,
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	kctx.BindTo(ctx, (*context.Context)(nil))

	runErr := kctx.Run(&cli.Globals)

	if err := os.MkdirAll(cli.Out, 0o755); err != nil {
		log.Printf("metrics: %v", err)
	} else if err := metrics.Report(filepath.Join(cli.Out, "metrics.prom")); err != nil {
		log.Printf("metrics: %v", err)
	}

	var de *models.DataError
	if errors.As(runErr, &de) {
		log.Fatalf("input data error in %s: %s (row %s)", de.Stage, de.Reason, de.Row)
	}
	kctx.FatalIfErrorf(runErr)
}
