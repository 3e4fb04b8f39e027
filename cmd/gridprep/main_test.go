package main

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/lox/gridprep/internal/ingest"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	p, err := kong.New(&cli, kong.Vars{
		"hrrr_url":  ingest.HRRRBaseURL,
		"nsrdb_url": ingest.NSRDBBaseURL,
		"eia_url":   ingest.EIABaseURL,
	})
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := p.Parse(args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return &cli, kctx
}

func TestParse_CachePrune(t *testing.T) {
	cli, kctx := parse(t, "--out", "/tmp/grid", "cache", "prune", "--older-than", "24h")
	if kctx.Command() != "cache prune" {
		t.Errorf("command = %q", kctx.Command())
	}
	if cli.Cache.Prune.OlderThan != 24*time.Hour || cli.Out != "/tmp/grid" {
		t.Errorf("flags = %+v, out %s", cli.Cache.Prune, cli.Out)
	}
}

func TestParse_WindDefaults(t *testing.T) {
	cli, kctx := parse(t, "profiles", "wind", "--year", "2016", "--grid", "main_test.go")
	if kctx.Command() != "profiles wind" {
		t.Errorf("command = %q", kctx.Command())
	}
	w := cli.Profiles.Wind
	if w.Year != 2016 || w.HRRRURL != ingest.HRRRBaseURL || w.LatVar != "gridlat_0" || w.FTPUser != "anonymous" {
		t.Errorf("wind flags = %+v", w)
	}
}
