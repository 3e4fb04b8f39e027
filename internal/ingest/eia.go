package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lox/gridprep/internal/httputil"
	"github.com/lox/gridprep/internal/hydro"
	"github.com/lox/gridprep/internal/metrics"
)

const (
	EIABaseURL      = "https://api.eia.gov"
	eiaFuelRoute    = "/v2/electricity/rto/fuel-type-data/data/"
	eiaPeriodLayout = "2006-01-02T15"
	FuelWater       = "WAT"
)

// EIA reads hourly generation by balancing authority and fuel type from the
// EIA API v2.
type EIA struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Fetcher  *httputil.Fetcher
	Cache    payloadStore
	Rec      *Recorder
}

type eiaResponse struct {
	Response struct {
		Total json.RawMessage `json:"total"`
		Data  []struct {
			Period     string          `json:"period"`
			Respondent string          `json:"respondent"`
			FuelType   string          `json:"fueltype"`
			Value      json.RawMessage `json:"value"`
		} `json:"data"`
	} `json:"response"`
}

// rawNumber reads a JSON number that may be quoted or null.
func rawNumber(raw json.RawMessage) (float64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// HourlyGeneration returns every hourly observation for fuel in year.
func (e *EIA) HourlyGeneration(ctx context.Context, fuel string, year int) ([]hydro.Observation, error) {
	size := e.PageSize
	if size <= 0 {
		size = 5000
	}
	var out []hydro.Observation
	for offset := 0; ; offset += size {
		page, err := e.page(ctx, fuel, year, offset, size)
		if err != nil {
			return nil, err
		}
		nulls := 0
		for _, d := range page.Response.Data {
			ts, err := time.Parse(eiaPeriodLayout, d.Period)
			if err != nil {
				return nil, fmt.Errorf("eia: bad period %q: %w", d.Period, err)
			}
			v, ok := rawNumber(d.Value)
			if !ok {
				nulls++
				continue
			}
			out = append(out, hydro.Observation{BA: d.Respondent, Period: ts, Value: v})
		}
		metrics.Drop("eia", "null_value", nulls)
		total, _ := rawNumber(page.Response.Total)
		if len(page.Response.Data) == 0 || offset+len(page.Response.Data) >= int(total) {
			break
		}
	}
	log.Printf("eia: %d %s observations for %d", len(out), fuel, year)
	return out, nil
}

func (e *EIA) page(ctx context.Context, fuel string, year, offset, length int) (*eiaResponse, error) {
	key := fmt.Sprintf("fuel-type-data|%s|%d|%d|%d", fuel, year, offset, length)
	var body []byte
	if e.Cache != nil {
		cached, ok, err := e.Cache.GetPayload(ctx, "eia", key)
		if err != nil {
			return nil, fmt.Errorf("eia cache: %w", err)
		}
		if ok {
			body = cached
		}
	}

	if body == nil {
		q := url.Values{}
		q.Set("api_key", e.APIKey)
		q.Set("frequency", "hourly")
		q.Set("data[0]", "value")
		q.Set("facets[fueltype][]", fuel)
		q.Set("start", fmt.Sprintf("%d-01-01T00", year))
		q.Set("end", fmt.Sprintf("%d-12-31T23", year))
		q.Set("sort[0][column]", "period")
		q.Set("sort[0][direction]", "asc")
		q.Set("offset", strconv.Itoa(offset))
		q.Set("length", strconv.Itoa(length))

		run := e.Rec.start(ctx, "eia", "fuel-type-data", key)
		resp, err := e.Fetcher.Get(ctx, strings.TrimSuffix(e.BaseURL, "/")+eiaFuelRoute+"?"+q.Encode(), nil)
		if err != nil {
			e.Rec.finish(ctx, run, 0, 0, err)
			return nil, fmt.Errorf("eia: %w", err)
		}
		var page eiaResponse
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			e.Rec.finish(ctx, run, len(resp.Body), 0, err)
			return nil, fmt.Errorf("eia: unmarshal: %w", err)
		}
		e.Rec.finish(ctx, run, len(resp.Body), len(page.Response.Data), nil)
		if e.Cache != nil {
			if err := e.Cache.PutPayload(ctx, e.Rec.runID(run), "eia", key, resp.Body); err != nil {
				log.Printf("eia: failed to cache payload: %v", err)
			}
		}
		return &page, nil
	}

	var page eiaResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("eia: cached page: %w", err)
	}
	return &page, nil
}
