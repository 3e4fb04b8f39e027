package metrics

import (
	"fmt"
	"log"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridprep_rows_dropped_total",
			Help: "Input rows dropped by a pipeline stage",
		},
		[]string{"stage", "reason"},
	)

	ValuesImputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridprep_values_imputed_total",
			Help: "Values filled by interpolation, regression or defaults",
		},
		[]string{"stage", "reason"},
	)

	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridprep_api_calls_total",
			Help: "Total external data API calls",
		},
		[]string{"source", "status"},
	)

	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridprep_api_latency_seconds",
			Help:    "External data API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridprep_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
)

// Drop records n rows dropped by stage for reason.
func Drop(stage, reason string, n int) {
	if n <= 0 {
		return
	}
	RowsDropped.WithLabelValues(stage, reason).Add(float64(n))
}

// Impute records n values filled by stage for reason.
func Impute(stage, reason string, n int) {
	if n <= 0 {
		return
	}
	ValuesImputed.WithLabelValues(stage, reason).Add(float64(n))
}

func CacheHit(cache string)  { CacheLookups.WithLabelValues(cache, "hit").Inc() }
func CacheMiss(cache string) { CacheLookups.WithLabelValues(cache, "miss").Inc() }

// Count is one non-zero drop or imputation counter.
type Count struct {
	Metric string
	Stage  string
	Reason string
	Value  float64
}

// Summary gathers all non-zero drop and imputation counters from g.
func Summary(g prometheus.Gatherer) ([]Count, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var counts []Count
	for _, mf := range families {
		name := mf.GetName()
		if name != "gridprep_rows_dropped_total" && name != "gridprep_values_imputed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			c := Count{Metric: name, Value: m.GetCounter().GetValue()}
			if c.Value == 0 {
				continue
			}
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "stage":
					c.Stage = lp.GetValue()
				case "reason":
					c.Reason = lp.GetValue()
				}
			}
			counts = append(counts, c)
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Stage != counts[j].Stage {
			return counts[i].Stage < counts[j].Stage
		}
		if counts[i].Metric != counts[j].Metric {
			return counts[i].Metric < counts[j].Metric
		}
		return counts[i].Reason < counts[j].Reason
	})
	return counts, nil
}

// Report logs the drop and imputation summary and, when path is non-empty,
// writes the full registry in text exposition format.
func Report(path string) error {
	counts, err := Summary(prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	for _, c := range counts {
		kind := "dropped"
		if c.Metric == "gridprep_values_imputed_total" {
			kind = "imputed"
		}
		log.Printf("summary: %s %s %.0f (%s)", c.Stage, kind, c.Value, c.Reason)
	}
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
