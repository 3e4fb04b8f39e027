package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/gridprep/internal/httputil"
	"github.com/lox/gridprep/internal/solar"
)

const NSRDBBaseURL = "https://developer.nrel.gov/api/nsrdb/v2/solar/psm3-download.csv"

var psm3Attributes = []string{"ghi", "dhi", "dni", "wind_speed", "air_temperature"}

// NSRDB downloads PSM3 hourly weather. It implements solar.Source.
type NSRDB struct {
	BaseURL string
	APIKey  string
	Email   string
	Fetcher *httputil.Fetcher
	Cache   payloadStore
	Rec     *Recorder
}

func (n *NSRDB) cacheKey(lat, lon float64, year int) string {
	return fmt.Sprintf("psm3|%s|%d|%s", strings.Join(psm3Attributes, ","), year, solar.LocationKey(lat, lon))
}

func (n *NSRDB) Weather(ctx context.Context, lat, lon float64, year int) (*solar.Weather, error) {
	key := n.cacheKey(lat, lon, year)
	if n.Cache != nil {
		body, ok, err := n.Cache.GetPayload(ctx, "nsrdb", key)
		if err != nil {
			return nil, fmt.Errorf("nsrdb cache: %w", err)
		}
		if ok {
			return solar.ParsePSM3(bytes.NewReader(body), year)
		}
	}

	q := url.Values{}
	q.Set("api_key", n.APIKey)
	q.Set("email", n.Email)
	q.Set("wkt", fmt.Sprintf("POINT(%.6f %.6f)", lon, lat))
	q.Set("names", strconv.Itoa(year))
	q.Set("attributes", strings.Join(psm3Attributes, ","))
	q.Set("interval", "60")
	q.Set("utc", "true")
	// the leap day is rebuilt from Feb 28 after parsing
	q.Set("leap_day", "false")

	run := n.Rec.start(ctx, "nsrdb", "psm3-download", key)
	resp, err := n.Fetcher.Get(ctx, n.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		n.Rec.finish(ctx, run, 0, 0, err)
		return nil, fmt.Errorf("nsrdb %s: %w", solar.LocationKey(lat, lon), err)
	}
	w, err := solar.ParsePSM3(bytes.NewReader(resp.Body), year)
	if err != nil {
		n.Rec.finish(ctx, run, len(resp.Body), 0, err)
		return nil, fmt.Errorf("nsrdb %s: %w", solar.LocationKey(lat, lon), err)
	}
	n.Rec.finish(ctx, run, len(resp.Body), w.Hours(), nil)

	if flags := ValidateWeather(w); len(flags) > 0 {
		log.Printf("nsrdb: %s flagged %v", solar.LocationKey(lat, lon), flags)
	}
	if n.Cache != nil {
		if err := n.Cache.PutPayload(ctx, n.Rec.runID(run), "nsrdb", key, resp.Body); err != nil {
			log.Printf("nsrdb: failed to cache payload: %v", err)
		}
	}
	return w, nil
}
