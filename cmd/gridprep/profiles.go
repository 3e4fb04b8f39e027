package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lox/gridprep/internal/cache"
	"github.com/lox/gridprep/internal/geo"
	"github.com/lox/gridprep/internal/httputil"
	"github.com/lox/gridprep/internal/hydro"
	"github.com/lox/gridprep/internal/ingest"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/profile"
	"github.com/lox/gridprep/internal/solar"
	"github.com/lox/gridprep/internal/wind"
)

type ProfilesCmd struct {
	Wind  WindCmd  `cmd:"" help:"Wind profiles from HRRR 80 m winds."`
	Solar SolarCmd `cmd:"" help:"Solar profiles from NSRDB PSM3 weather."`
	Hydro HydroCmd `cmd:"" help:"Hydro profiles from EIA hourly balancing-authority generation."`
}

// ProfileFlags are shared by the profile commands.
type ProfileFlags struct {
	Year   int    `required:"" help:"Calendar year to build."`
	Plants string `type:"path" help:"Plant metadata table (default <out>/plant_meta.csv)."`
}

func (f ProfileFlags) plants(g *Globals, techs ...models.Technology) ([]profile.Plant, error) {
	path := f.Plants
	if path == "" {
		path = filepath.Join(g.Out, "plant_meta.csv")
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	all, err := profile.ReadPlants(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	plants := profile.Filter(all, techs...)
	log.Printf("profile: %d of %d plants selected", len(plants), len(all))
	return plants, nil
}

func writeProfile(g *Globals, name string, p *profile.Profile) error {
	if err := os.MkdirAll(g.Out, 0o755); err != nil {
		return err
	}
	path := filepath.Join(g.Out, name+".csv")
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteCSV(fh); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := fh.Close(); err != nil {
		return err
	}
	log.Printf("profile: wrote %d plants x %d hours to %s", len(p.Plants), profile.HoursInYear(p.Year), path)
	return nil
}

func openOptional(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.Open(path)
}

type WindCmd struct {
	ProfileFlags `embed:""`

	Grid   string `required:"" type:"existingfile" help:"HRRR grid coordinates as netCDF."`
	LatVar string `default:"gridlat_0" help:"Latitude variable in the grid file."`
	LonVar string `default:"gridlon_0" help:"Longitude variable in the grid file."`
	Farms  string `type:"path" help:"EIA-860 wind table (3_2_Wind) for turbine models and hub heights."`
	Curves string `type:"path" help:"Power curve CSV replacing the built-in table."`

	HRRRURL     string `name:"hrrr-url" default:"${hrrr_url}" help:"HRRR archive base URL."`
	FTP         string `name:"ftp" help:"FTP mirror host:port, used instead of --hrrr-url."`
	FTPUser     string `name:"ftp-user" default:"anonymous"`
	FTPPassword string `name:"ftp-password" env:"HRRR_FTP_PASSWORD"`
	FTPRoot     string `name:"ftp-root" help:"Directory on the mirror holding the hrrr.YYYYMMDD folders."`
	GribCache   string `name:"grib-cache" default:"data/grib" type:"path" help:"Directory for downloaded GRIB messages."`
}

func (c *WindCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.assumptions()
	if err != nil {
		return err
	}
	plants, err := c.plants(g, models.TechWindOnshore, models.TechWindOffshore)
	if err != nil {
		return err
	}
	grid, err := geo.LoadGridNetCDF(c.Grid, c.LatVar, c.LonVar)
	if err != nil {
		return err
	}

	set, err := wind.DefaultCurves()
	if err != nil {
		return err
	}
	if fh, err := openOptional(c.Curves); err != nil {
		return err
	} else if fh != nil {
		set, err = wind.LoadCurves(fh)
		fh.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", c.Curves, err)
		}
	}
	var farms []wind.Farm
	if fh, err := openOptional(c.Farms); err != nil {
		return err
	} else if fh != nil {
		farms, err = wind.LoadFarms(fh)
		fh.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", c.Farms, err)
		}
	}
	sel, err := wind.NewSelector(set, farms, a.Wind)
	if err != nil {
		return err
	}

	gc, err := cache.New("grib", c.GribCache, 0)
	if err != nil {
		return err
	}
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	rec := &ingest.Recorder{Store: st, RunID: uuid.NewString()}

	var transport ingest.Transport = &ingest.HTTPTransport{
		BaseURL: c.HRRRURL,
		Fetcher: httputil.NewFetcher("hrrr", a.Fetch.MinInterval, a.Fetch.MaxAttempts),
	}
	if c.FTP != "" {
		transport = &ingest.FTPTransport{Addr: c.FTP, User: c.FTPUser, Password: c.FTPPassword, Root: c.FTPRoot}
		log.Printf("wind: reading HRRR from ftp://%s", c.FTP)
	}

	b := &wind.Builder{
		Source:   ingest.NewHRRR(transport, gc, rec),
		Grid:     grid,
		Selector: sel,
		Config:   a.Wind,
	}
	start := time.Now()
	p, err := b.Build(ctx, plants, c.Year)
	logIngestSummary(ctx, st, rec.RunID)
	if err != nil {
		return err
	}
	log.Printf("wind: built %d profiles in %s", len(p.Plants), time.Since(start).Round(time.Second))
	return writeProfile(g, "wind", p)
}

type SolarCmd struct {
	ProfileFlags `embed:""`

	Installations string `type:"path" help:"EIA-860 solar table (3_3_Solar) for tracking mode, tilt and DC capacity."`
	NSRDBURL      string `name:"nsrdb-url" default:"${nsrdb_url}"`
	NSRDBKey      string `name:"nsrdb-key" env:"NSRDB_API_KEY" required:"" help:"NREL developer API key."`
	NSRDBEmail    string `name:"nsrdb-email" env:"NSRDB_EMAIL" required:"" help:"Contact email sent with NSRDB requests."`
}

func (c *SolarCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.assumptions()
	if err != nil {
		return err
	}
	plants, err := c.plants(g, models.TechSolarPV)
	if err != nil {
		return err
	}
	var fleet []solar.Installation
	if fh, err := openOptional(c.Installations); err != nil {
		return err
	} else if fh != nil {
		fleet, err = solar.LoadInstallations(fh)
		fh.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", c.Installations, err)
		}
	}

	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	rec := &ingest.Recorder{Store: st, RunID: uuid.NewString()}

	b := &solar.Builder{
		Source: &ingest.NSRDB{
			BaseURL: c.NSRDBURL,
			APIKey:  c.NSRDBKey,
			Email:   c.NSRDBEmail,
			Fetcher: httputil.NewFetcher("nsrdb", a.Fetch.MinInterval, a.Fetch.MaxAttempts),
			Cache:   st,
			Rec:     rec,
		},
		Fleet:  fleet,
		Config: a.Solar,
	}
	p, err := b.Build(ctx, plants, c.Year)
	logIngestSummary(ctx, st, rec.RunID)
	if err != nil {
		return err
	}
	return writeProfile(g, "solar", p)
}

type HydroCmd struct {
	ProfileFlags `embed:""`

	EIAURL string `name:"eia-url" default:"${eia_url}"`
	EIAKey string `name:"eia-key" env:"EIA_API_KEY" required:"" help:"EIA open data API key."`
}

func (c *HydroCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.assumptions()
	if err != nil {
		return err
	}
	plants, err := c.plants(g, models.TechHydro)
	if err != nil {
		return err
	}

	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	rec := &ingest.Recorder{Store: st, RunID: uuid.NewString()}

	eia := &ingest.EIA{
		BaseURL: c.EIAURL,
		APIKey:  c.EIAKey,
		Fetcher: httputil.NewFetcher("eia", a.Fetch.MinInterval, a.Fetch.MaxAttempts),
		Cache:   st,
		Rec:     rec,
	}
	obs, err := eia.HourlyGeneration(ctx, ingest.FuelWater, c.Year)
	logIngestSummary(ctx, st, rec.RunID)
	if err != nil {
		return err
	}
	p, err := hydro.Build(plants, hydro.Align(obs, c.Year), c.Year, a.Hydro)
	if err != nil {
		return err
	}
	return writeProfile(g, "hydro", p)
}
