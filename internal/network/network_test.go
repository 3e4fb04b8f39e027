package network

import (
	"database/sql"
	"math"
	"testing"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/partition"
)

func kv(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func testInputs() ([]models.Substation, []models.Line, []partition.Tie) {
	w, e := models.Western, models.Eastern
	subs := []models.Substation{
		{ID: 1, Name: "A", Lat: 47.6, Lon: -122.3, State: "WA", Interconnect: w},
		{ID: 2, Name: "B", Lat: 45.5, Lon: -122.7, State: "OR", Interconnect: w},
		{ID: 3, Name: "C", Lat: 46.0, Lon: -122.0, State: "WA", Interconnect: w},
		{ID: 4, Name: "D_Western", Lat: 41.0, Lon: -103.0, State: "NE", Interconnect: w, SplitFrom: 9},
		{ID: 5, Name: "D_Eastern", Lat: 41.0, Lon: -103.0, State: "NE", Interconnect: e, SplitFrom: 9},
		{ID: 6, Name: "E", Lat: 41.0, Lon: -100.0, State: "NE", Interconnect: e},
	}
	lines := []models.Line{
		{ID: 10, Sub1ID: 1, Sub2ID: 2, Voltage: kv(500), Interconnect: w,
			Vertices: []models.LonLat{{Lon: -122.3, Lat: 47.6}, {Lon: -122.7, Lat: 45.5}}},
		{ID: 11, Sub1ID: 1, Sub2ID: 3, Voltage: kv(230), Interconnect: w},
		{ID: 12, Sub1ID: 3, Sub2ID: 4, Voltage: kv(230), Interconnect: w},
		{ID: 13, Sub1ID: 5, Sub2ID: 6, Voltage: kv(345), Interconnect: e},
	}
	ties := []partition.Tie{{FromSub: 5, ToSub: 4, Pmax: 200, FromInterconnect: e, ToInterconnect: w}}
	return subs, lines, ties
}

func TestBuild(t *testing.T) {
	subs, lines, ties := testInputs()
	cfg := config.Default().Network
	n, err := Build(subs, lines, ties, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Substation A has 230 and 500 kV lines: two buses and one transformer.
	var aBuses []models.Bus
	for _, b := range n.Buses {
		if b.SubID == 1 {
			aBuses = append(aBuses, b)
		}
	}
	if len(aBuses) != 2 || aBuses[0].BaseKV != 230 || aBuses[1].BaseKV != 500 {
		t.Fatalf("substation A buses = %+v", aBuses)
	}
	if got := len(n.Buses); got != 7 {
		t.Errorf("got %d buses, want 7", got)
	}

	var transformers, acLines int
	for _, br := range n.Branches {
		switch br.Device {
		case models.DeviceTransformer:
			transformers++
			if br.FromBus != aBuses[1].ID || br.ToBus != aBuses[0].ID {
				t.Errorf("transformer joins %d-%d, want %d-%d", br.FromBus, br.ToBus, aBuses[1].ID, aBuses[0].ID)
			}
		case models.DeviceLine:
			acLines++
		}
	}
	if transformers != 1 || acLines != 4 {
		t.Errorf("got %d transformers and %d lines, want 1 and 4", transformers, acLines)
	}

	if len(n.DCLines) != 1 || n.DCLines[0].Pmax != 200 {
		t.Fatalf("DC lines = %+v", n.DCLines)
	}

	if len(n.Zones) != 4 {
		t.Errorf("got %d zones, want 4: %+v", len(n.Zones), n.Zones)
	}
	if n.Zones[0].Interconnect != models.Eastern || n.Zones[0].State != "NE" {
		t.Errorf("first zone = %+v, want NE Eastern", n.Zones[0])
	}
}

func TestLineImpedance(t *testing.T) {
	cfg := config.Default().Network
	r, x, b, rate := LineImpedance(cfg, 345, 100)
	zBase := 345.0 * 345.0 / 100
	p := cfg.LineParameter(345)
	if math.Abs(r-p.ROhmKM*100/zBase) > 1e-12 || math.Abs(x-p.XOhmKM*100/zBase) > 1e-12 {
		t.Errorf("r, x = %v, %v", r, x)
	}
	if math.Abs(b-p.BuSKM*1e-6*100*zBase) > 1e-12 {
		t.Errorf("b = %v", b)
	}
	if rate != p.RateMVA {
		t.Errorf("rate = %v, want %v", rate, p.RateMVA)
	}
}

func TestBuild_LineLengthFromVertices(t *testing.T) {
	subs, lines, ties := testInputs()
	n, err := Build(subs, lines, ties, config.Default().Network)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, br := range n.Branches {
		if br.LineID == 10 && math.Abs(br.LengthKM-235) > 5 {
			t.Errorf("line 10 length = %.1f km, want about 235", br.LengthKM)
		}
		if br.LineID == 11 && br.LengthKM < minLengthKM {
			t.Errorf("line 11 length = %v, want substation distance", br.LengthKM)
		}
	}
}

func TestSetBusTypes(t *testing.T) {
	subs, lines, ties := testInputs()
	n, err := Build(subs, lines, ties, config.Default().Network)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b1, _ := n.LowestVoltageBus(1)
	b2, _ := n.LowestVoltageBus(2)
	b6, _ := n.LowestVoltageBus(6)
	n.SetBusTypes([]models.Generator{
		{BusID: b1.ID, Pmax: 100},
		{BusID: b2.ID, Pmax: 300},
		{BusID: b6.ID, Pmax: 50},
	})
	types := map[int64]int{}
	for _, b := range n.Buses {
		types[b.ID] = b.Type
	}
	if types[b2.ID] != models.BusTypeSlack || types[b6.ID] != models.BusTypeSlack {
		t.Errorf("slack buses: b2=%d b6=%d, want 3 and 3", types[b2.ID], types[b6.ID])
	}
	if types[b1.ID] != models.BusTypePV {
		t.Errorf("b1 type = %d, want PV", types[b1.ID])
	}
	hv, _ := n.HighestVoltageBus(1)
	if types[hv.ID] != models.BusTypePQ {
		t.Errorf("500 kV bus type = %d, want PQ", types[hv.ID])
	}
}

func TestSubstationCapacity(t *testing.T) {
	subs, lines, ties := testInputs()
	cfg := config.Default().Network
	n, err := Build(subs, lines, ties, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c := n.SubstationCapacity()
	want := cfg.LineParameter(500).RateMVA + cfg.LineParameter(230).RateMVA
	if c[1] != want {
		t.Errorf("capacity[A] = %v, want %v", c[1], want)
	}
}

func TestValidate_RejectsCrossingBranch(t *testing.T) {
	subs, lines, ties := testInputs()
	n, err := Build(subs, lines, ties, config.Default().Network)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	n.Branches[0].Interconnect = models.ERCOT
	if err := n.Validate(); err == nil {
		t.Error("expected error for mislabelled branch")
	}
}
