package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDropAndSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridprep_rows_dropped_total",
		Help: "test",
	}, []string{"stage", "reason"})
	reg.MustRegister(dropped)
	dropped.WithLabelValues("clean", "same_endpoint").Add(3)
	dropped.WithLabelValues("clean", "unused").Add(0)

	counts, err := Summary(reg)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(counts) != 1 {
		t.Fatalf("len(counts) = %d, want 1", len(counts))
	}
	if counts[0].Stage != "clean" || counts[0].Reason != "same_endpoint" || counts[0].Value != 3 {
		t.Errorf("count = %+v", counts[0])
	}
}

func TestDrop_IgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(RowsDropped.WithLabelValues("test", "noop"))
	Drop("test", "noop", 0)
	Drop("test", "noop", -2)
	if got := testutil.ToFloat64(RowsDropped.WithLabelValues("test", "noop")); got != before {
		t.Errorf("counter changed from %v to %v", before, got)
	}
	Impute("test", "noop", 2)
	if got := testutil.ToFloat64(ValuesImputed.WithLabelValues("test", "noop")); got < 2 {
		t.Errorf("imputed = %v, want >= 2", got)
	}
}
