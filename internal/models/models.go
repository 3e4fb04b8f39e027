package models

import (
	"database/sql"
	"fmt"
)

// LonLat is a WGS84/NAD83 coordinate in decimal degrees.
type LonLat struct {
	Lon float64
	Lat float64
}

type Substation struct {
	ID           int64
	Name         string
	Lat          float64
	Lon          float64
	State        string // two-letter postal abbreviation
	CountyFIPS   string // five digits
	ZIP          string // five digits
	Lines        int    // HIFLD LINES count
	Interconnect Interconnect
	// SplitFrom holds the original HIFLD ID for virtual substations created
	// when a seam substation is split across interconnections.
	SplitFrom int64
}

// Line is a transmission line as read from HIFLD and refined by the cleaner.
type Line struct {
	ID           int64
	Sub1Name     string
	Sub2Name     string
	Sub1ID       int64 // 0 until resolved
	Sub2ID       int64
	VoltClass    string
	Voltage      sql.NullFloat64 // kV
	Type         string
	Vertices     []LonLat
	Interconnect Interconnect
	Synthetic    bool // added by the island connector
}

func (l Line) Endpoints() (first, last LonLat, ok bool) {
	if len(l.Vertices) == 0 {
		return LonLat{}, LonLat{}, false
	}
	return l.Vertices[0], l.Vertices[len(l.Vertices)-1], true
}

const (
	BusTypePQ    = 1
	BusTypePV    = 2
	BusTypeSlack = 3
)

type Bus struct {
	ID           int64
	SubID        int64
	BaseKV       float64
	ZoneID       int
	Interconnect Interconnect
	Type         int
	Pd           float64 // MW
}

type BranchDevice string

const (
	DeviceLine        BranchDevice = "Line"
	DeviceTransformer BranchDevice = "Transformer"
)

type Branch struct {
	ID           int64
	FromBus      int64
	ToBus        int64
	BaseKV       float64
	R            float64 // per unit on 100 MVA
	X            float64
	B            float64
	RateA        float64 // MVA
	Device       BranchDevice
	Interconnect Interconnect
	LineID       int64 // source HIFLD line, 0 for transformers
	LengthKM     float64
}

type DCLine struct {
	ID               int64
	FromBus          int64
	ToBus            int64
	Pmax             float64 // MW
	FromInterconnect Interconnect
	ToInterconnect   Interconnect
}

type Zone struct {
	ID           int
	Name         string
	State        string
	Interconnect Interconnect
}

// Generator is one EIA-860 generating unit placed on the network.
type Generator struct {
	PlantID      int64
	BusID        int64
	SubID        int64
	PlantCode    int64
	GeneratorID  string
	PlantName    string
	Technology   Technology
	PrimeMover   PrimeMover
	EnergySource string
	Fuel         FuelType
	Pmax         float64
	Pmin         float64
	HeatRate     [3]float64 // h0 (MMBtu/h), h1 (MMBtu/MWh), h2 (MMBtu/MW²h)
	Cost         [3]float64 // c0 ($/h), c1 ($/MWh), c2 ($/MW²h)
	Interconnect Interconnect
	Lat          sql.NullFloat64
	Lon          sql.NullFloat64
	State        string
	ZIP          string
	BA           string
}

// DataError reports an input row that violates a pipeline invariant and
// cannot be repaired automatically.
type DataError struct {
	Stage  string
	Row    string
	Reason string
}

func (e *DataError) Error() string {
	if e.Row == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: %s (row %s)", e.Stage, e.Reason, e.Row)
}
