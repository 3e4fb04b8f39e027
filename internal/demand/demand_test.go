package demand

import (
	"math"
	"strings"
	"testing"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/models"
	"github.com/lox/gridprep/internal/network"
)

// starNetwork connects each substation to an unlocated hub with a line of
// the given rating, so substation i has capacity ratings[i].
func starNetwork(subs []models.Substation, ratings []float64) *network.Network {
	e := models.Eastern
	hub := models.Substation{ID: 100, Name: "HUB", Interconnect: e}
	n := &network.Network{Substations: append(append([]models.Substation(nil), subs...), hub)}
	n.Buses = append(n.Buses, models.Bus{ID: 100, SubID: 100, BaseKV: 345, Interconnect: e})
	for i, s := range subs {
		n.Buses = append(n.Buses,
			models.Bus{ID: s.ID, SubID: s.ID, BaseKV: 115, Interconnect: e},
			models.Bus{ID: s.ID + 50, SubID: s.ID, BaseKV: 345, Interconnect: e},
		)
		n.Branches = append(n.Branches, models.Branch{
			ID: int64(i + 1), FromBus: s.ID + 50, ToBus: 100, RateA: ratings[i],
			Device: models.DeviceLine, Interconnect: e,
		})
	}
	return n
}

func TestDistribute_FourSubstationsOneZIP(t *testing.T) {
	var subs []models.Substation
	for i := int64(1); i <= 4; i++ {
		subs = append(subs, models.Substation{ID: i, ZIP: "12345", CountyFIPS: "36001", Interconnect: models.Eastern})
	}
	net := starNetwork(subs, []float64{100, 200, 300, 400})
	counties := map[string]float64{"36001": 1_000_000}
	zips := []ZIPCounty{{ZIP: "12345", County: "36001", ResRatio: 1}}

	cfg := config.Default().Demand
	alloc, err := Distribute(net, counties, zips, cfg)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	wantPop := map[int64]float64{3: 500_000, 4: 500_000}
	for id := int64(1); id <= 4; id++ {
		if got := alloc.SubPopulation[id]; got != wantPop[id] {
			t.Errorf("substation %d population = %v, want %v", id, got, wantPop[id])
		}
	}
	for _, id := range []int64{3, 4} {
		if pd := alloc.BusPd[id]; math.Abs(pd-1005) > 1e-6 {
			t.Errorf("bus %d Pd = %v, want 1005", id, pd)
		}
		if pd := alloc.BusPd[id+50]; pd != 0 {
			t.Errorf("high-voltage bus %d Pd = %v, want 0", id+50, pd)
		}
	}

	if total := alloc.TotalPd(); math.Abs(total-2010) > 1e-6 || math.Abs(total-cfg.PerCapitaMW*alloc.Total()) > 1e-6 {
		t.Errorf("TotalPd = %v, want 2010 = %v MW/person x %v people", total, cfg.PerCapitaMW, alloc.Total())
	}
}

func TestDistribute_CountyTopUp(t *testing.T) {
	subs := []models.Substation{
		{ID: 1, ZIP: "10001", CountyFIPS: "36061", Interconnect: models.Eastern},
		{ID: 2, ZIP: "10002", CountyFIPS: "36061", Interconnect: models.Eastern},
		{ID: 3, CountyFIPS: "36047", Interconnect: models.Eastern},
		{ID: 4, CountyFIPS: "36047", Interconnect: models.Eastern},
	}
	net := starNetwork(subs, []float64{100, 100, 50, 80})
	counties := map[string]float64{
		"36061": 1000, // 60% reaches substations through ZIPs
		"36047": 500,  // no ZIP rows: designated substation takes it all
		"36081": 300,  // no substations at all
	}
	zips := []ZIPCounty{
		{ZIP: "10001", County: "36061", ResRatio: 0.6},
		{ZIP: "10003", County: "36061", ResRatio: 0.4},
	}
	alloc, err := Distribute(net, counties, zips, config.Default().Demand)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if got := alloc.SubPopulation[1]; math.Abs(got-1000) > 1e-9 {
		t.Errorf("substation 1 = %v, want 600 from ZIP + 400 residual", got)
	}
	if got := alloc.SubPopulation[2]; got != 0 {
		t.Errorf("substation 2 = %v, want 0", got)
	}
	if alloc.SubPopulation[4] != 500 || alloc.SubPopulation[3] != 0 {
		t.Errorf("county 36047 = %v / %v, want 0 / 500", alloc.SubPopulation[3], alloc.SubPopulation[4])
	}
	if alloc.Unserved != 300 {
		t.Errorf("unserved = %v, want 300", alloc.Unserved)
	}
}

func TestLoadCensus(t *testing.T) {
	pop := `SUMLEV,STATE,COUNTY,STNAME,CTYNAME,POPESTIMATE2020
040,36,000,New York,New York,20000000
050,36,1,New York,Albany County,"305,000"
050,36,47,New York,Kings County,2700000
`
	counties, err := LoadCountyPopulation(strings.NewReader(pop), "POPESTIMATE2020")
	if err != nil {
		t.Fatalf("LoadCountyPopulation: %v", err)
	}
	if len(counties) != 2 || counties["36001"] != 305000 || counties["36047"] != 2700000 {
		t.Errorf("counties = %v", counties)
	}

	zc := `ZIP,COUNTY,RES_RATIO,BUS_RATIO
501,36103,1,1
12345,36001,0.25,0.1
`
	rows, err := LoadZIPCounty(strings.NewReader(zc))
	if err != nil {
		t.Fatalf("LoadZIPCounty: %v", err)
	}
	if len(rows) != 2 || rows[0].ZIP != "00501" || rows[1].ResRatio != 0.25 {
		t.Errorf("rows = %+v", rows)
	}
}
