package models

import (
	"fmt"
	"strings"
)

type Interconnect string

const (
	InterconnectUnknown Interconnect = ""
	Eastern             Interconnect = "Eastern"
	Western             Interconnect = "Western"
	ERCOT               Interconnect = "Texas"
)

// Interconnects lists the interconnections in labelling priority order.
var Interconnects = []Interconnect{Eastern, Western, ERCOT}

func ParseInterconnect(s string) (Interconnect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eastern", "east":
		return Eastern, nil
	case "western", "west":
		return Western, nil
	case "texas", "ercot":
		return ERCOT, nil
	}
	return InterconnectUnknown, fmt.Errorf("unknown interconnect %q", s)
}

// InterconnectFromNERC maps an EIA-860 NERC region to its interconnection.
func InterconnectFromNERC(region string) Interconnect {
	switch strings.ToUpper(strings.TrimSpace(region)) {
	case "TRE", "ERCOT":
		return ERCOT
	case "WECC":
		return Western
	case "":
		return InterconnectUnknown
	}
	return Eastern
}

type FuelType string

const (
	FuelCoal         FuelType = "coal"
	FuelNG           FuelType = "ng"
	FuelDFO          FuelType = "dfo"
	FuelNuclear      FuelType = "nuclear"
	FuelHydro        FuelType = "hydro"
	FuelWind         FuelType = "wind"
	FuelWindOffshore FuelType = "wind_offshore"
	FuelSolar        FuelType = "solar"
	FuelGeothermal   FuelType = "geothermal"
	FuelStorage      FuelType = "storage"
	FuelOther        FuelType = "other"
)

var energySourceFuel = map[string]FuelType{
	"BIT": FuelCoal, "SUB": FuelCoal, "LIG": FuelCoal, "ANT": FuelCoal,
	"RC": FuelCoal, "WC": FuelCoal, "SGC": FuelCoal,
	"NG": FuelNG, "OG": FuelNG, "BFG": FuelNG, "PG": FuelNG, "SGP": FuelNG,
	"DFO": FuelDFO, "RFO": FuelDFO, "JF": FuelDFO, "KER": FuelDFO, "PC": FuelDFO, "WO": FuelDFO,
	"NUC": FuelNuclear,
	"WAT": FuelHydro,
	"WND": FuelWind,
	"SUN": FuelSolar,
	"GEO": FuelGeothermal,
	"MWH": FuelStorage,
}

// FuelFromEnergySource classifies an EIA energy source code. Pumped storage
// and offshore wind are distinguished by prime mover.
func FuelFromEnergySource(code string, pm PrimeMover) FuelType {
	switch pm {
	case PrimeMoverPumpedStorage, PrimeMoverBattery, PrimeMoverFlywheel:
		return FuelStorage
	case PrimeMoverWindOffshore:
		return FuelWindOffshore
	}
	if f, ok := energySourceFuel[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return f
	}
	return FuelOther
}

func (f FuelType) IsRenewable() bool {
	switch f {
	case FuelWind, FuelWindOffshore, FuelSolar, FuelHydro:
		return true
	}
	return false
}

type PrimeMover string

const (
	PrimeMoverCombinedCycleCT     PrimeMover = "CT"
	PrimeMoverCombinedCycleST     PrimeMover = "CA"
	PrimeMoverCombinedCycleSingle PrimeMover = "CS"
	PrimeMoverCombinedCyclePart   PrimeMover = "CC"
	PrimeMoverGasTurbine          PrimeMover = "GT"
	PrimeMoverInternalCombustion  PrimeMover = "IC"
	PrimeMoverSteamTurbine        PrimeMover = "ST"
	PrimeMoverHydro               PrimeMover = "HY"
	PrimeMoverPumpedStorage       PrimeMover = "PS"
	PrimeMoverWindOnshore         PrimeMover = "WT"
	PrimeMoverWindOffshore        PrimeMover = "WS"
	PrimeMoverPhotovoltaic        PrimeMover = "PV"
	PrimeMoverBattery             PrimeMover = "BA"
	PrimeMoverFlywheel            PrimeMover = "FW"
	PrimeMoverBinaryCycle         PrimeMover = "BT"
	PrimeMoverFuelCell            PrimeMover = "FC"
	PrimeMoverOther               PrimeMover = "OT"
)

var primeMovers = map[PrimeMover]bool{
	PrimeMoverCombinedCycleCT: true, PrimeMoverCombinedCycleST: true,
	PrimeMoverCombinedCycleSingle: true, PrimeMoverCombinedCyclePart: true,
	PrimeMoverGasTurbine: true, PrimeMoverInternalCombustion: true,
	PrimeMoverSteamTurbine: true, PrimeMoverHydro: true, PrimeMoverPumpedStorage: true,
	PrimeMoverWindOnshore: true, PrimeMoverWindOffshore: true, PrimeMoverPhotovoltaic: true,
	PrimeMoverBattery: true, PrimeMoverFlywheel: true, PrimeMoverBinaryCycle: true,
	PrimeMoverFuelCell: true, PrimeMoverOther: true,
}

// ParsePrimeMover returns PrimeMoverOther and false for codes outside the
// EIA-860 list.
func ParsePrimeMover(s string) (PrimeMover, bool) {
	pm := PrimeMover(strings.ToUpper(strings.TrimSpace(s)))
	if primeMovers[pm] {
		return pm, true
	}
	return PrimeMoverOther, false
}

type Technology string

const (
	TechCoalSteam        Technology = "Conventional Steam Coal"
	TechCoalIGCC         Technology = "Coal Integrated Gasification Combined Cycle"
	TechNGCombinedCycle  Technology = "Natural Gas Fired Combined Cycle"
	TechNGCombustion     Technology = "Natural Gas Fired Combustion Turbine"
	TechNGSteam          Technology = "Natural Gas Steam Turbine"
	TechNGInternalComb   Technology = "Natural Gas Internal Combustion Engine"
	TechNGCompressedAir  Technology = "Natural Gas with Compressed Air Storage"
	TechNGOther          Technology = "Other Natural Gas"
	TechPetroleumLiquids Technology = "Petroleum Liquids"
	TechPetroleumCoke    Technology = "Petroleum Coke"
	TechNuclear          Technology = "Nuclear"
	TechHydro            Technology = "Conventional Hydroelectric"
	TechPumpedStorage    Technology = "Hydroelectric Pumped Storage"
	TechWindOnshore      Technology = "Onshore Wind Turbine"
	TechWindOffshore     Technology = "Offshore Wind Turbine"
	TechSolarPV          Technology = "Solar Photovoltaic"
	TechSolarThermal     Technology = "Solar Thermal without Energy Storage"
	TechSolarThermalTES  Technology = "Solar Thermal with Energy Storage"
	TechGeothermal       Technology = "Geothermal"
	TechBatteries        Technology = "Batteries"
	TechFlywheels        Technology = "Flywheels"
	TechWoodBiomass      Technology = "Wood/Wood Waste Biomass"
	TechLandfillGas      Technology = "Landfill Gas"
	TechMSW              Technology = "Municipal Solid Waste"
	TechOtherBiomass     Technology = "Other Waste Biomass"
	TechOtherGases       Technology = "Other Gases"
	TechAllOther         Technology = "All Other"
)

var technologies = map[string]Technology{}

func init() {
	for _, t := range []Technology{
		TechCoalSteam, TechCoalIGCC, TechNGCombinedCycle, TechNGCombustion, TechNGSteam,
		TechNGInternalComb, TechNGCompressedAir, TechNGOther, TechPetroleumLiquids,
		TechPetroleumCoke, TechNuclear, TechHydro, TechPumpedStorage, TechWindOnshore,
		TechWindOffshore, TechSolarPV, TechSolarThermal, TechSolarThermalTES, TechGeothermal,
		TechBatteries, TechFlywheels, TechWoodBiomass, TechLandfillGas, TechMSW,
		TechOtherBiomass, TechOtherGases, TechAllOther,
	} {
		technologies[strings.ToLower(string(t))] = t
	}
}

// ParseTechnology returns TechAllOther and false for technology strings not
// in the EIA-860 list.
func ParseTechnology(s string) (Technology, bool) {
	if t, ok := technologies[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, true
	}
	return TechAllOther, false
}

type Tracking string

const (
	TrackingFixed      Tracking = "fixed"
	TrackingSingleAxis Tracking = "single_axis"
	TrackingDualAxis   Tracking = "dual_axis"
)

// TrackingModes lists the PV mounting modes used for state blending.
var TrackingModes = []Tracking{TrackingFixed, TrackingSingleAxis, TrackingDualAxis}
