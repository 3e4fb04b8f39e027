package main

import (
	"context"
	"log"
	"time"

	"github.com/lox/gridprep/internal/cache"
)

type CacheCmd struct {
	Stats CacheStatsCmd `cmd:"" help:"Show payload and GRIB cache usage."`
	Prune CachePruneCmd `cmd:"" help:"Delete cached payloads and GRIB messages older than a cutoff."`
}

type CacheStatsCmd struct {
	GribCache string `name:"grib-cache" default:"data/grib" type:"path"`
}

func (c *CacheStatsCmd) Run(ctx context.Context, g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ps, err := st.PayloadStats(ctx)
	if err != nil {
		return err
	}
	log.Printf("cache: %d payloads, %d bytes compressed", ps.TotalCount, ps.TotalSizeBytes)
	if ps.TotalCount > 0 {
		log.Printf("cache: payloads fetched between %s and %s", ps.Oldest.Format(time.RFC3339), ps.Newest.Format(time.RFC3339))
	}
	for src, n := range ps.CountBySource {
		log.Printf("cache:   %s: %d payloads, %d bytes", src, n, ps.SizeBySource[src])
	}

	gc, err := cache.New("grib", c.GribCache, 0)
	if err != nil {
		return err
	}
	gs, err := gc.Stats()
	if err != nil {
		return err
	}
	log.Printf("cache: %d GRIB files, %d bytes in %s", gs.Files, gs.Bytes, gc.Dir())

	if errs, err := st.RecentIngestErrors(ctx, 5); err == nil {
		for _, r := range errs {
			log.Printf("cache: recent failure %s %s: %s", r.Source, r.CacheKey.String, r.ErrorMessage.String)
		}
	}
	return nil
}

type CachePruneCmd struct {
	GribCache string        `name:"grib-cache" default:"data/grib" type:"path"`
	OlderThan time.Duration `name:"older-than" default:"720h" help:"Age beyond which entries are deleted."`
}

func (c *CachePruneCmd) Run(ctx context.Context, g *Globals) error {
	cutoff := time.Now().Add(-c.OlderThan)
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	n, err := st.PrunePayloads(ctx, cutoff)
	if err != nil {
		return err
	}
	gc, err := cache.New("grib", c.GribCache, 0)
	if err != nil {
		return err
	}
	files, err := gc.Prune(cutoff)
	if err != nil {
		return err
	}
	log.Printf("cache: pruned %d payloads and %d GRIB files older than %s", n, files, cutoff.Format(time.RFC3339))
	return nil
}
