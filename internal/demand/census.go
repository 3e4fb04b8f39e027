package demand

import (
	"fmt"
	"io"

	"github.com/lox/gridprep/internal/tabular"
)

// LoadCountyPopulation reads a census county estimates CSV. Counties are
// keyed by five-digit FIPS built from the STATE and COUNTY columns, or read
// from a FIPS/GEOID column when present. Statewide rows (county 000) are
// skipped.
func LoadCountyPopulation(r io.Reader, popColumn string) (map[string]float64, error) {
	t, err := tabular.NewReader(r, popColumn)
	if err != nil {
		return nil, fmt.Errorf("county population: %w", err)
	}
	pop := map[string]float64{}
	for t.Next() {
		fips := countyFIPS(t)
		if fips == "" || fips[2:] == "000" {
			continue
		}
		v, ok := t.Float(popColumn)
		if !ok {
			return nil, fmt.Errorf("county population: line %d: invalid %s", t.Line(), popColumn)
		}
		pop[fips] += v
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("county population: %w", err)
	}
	return pop, nil
}

func countyFIPS(t *tabular.Reader) string {
	for _, col := range []string{"FIPS", "GEOID"} {
		if s := t.String(col); s != "" {
			return pad(s, 5)
		}
	}
	st, co := t.String("STATE"), t.String("COUNTY")
	if st == "" || co == "" {
		return ""
	}
	return pad(st, 2) + pad(co, 3)
}

func pad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// ZIPCounty is one row of the HUD ZIP-to-county crosswalk: the share of the
// ZIP's residential addresses in the county.
type ZIPCounty struct {
	ZIP      string
	County   string
	ResRatio float64
}

func LoadZIPCounty(r io.Reader) ([]ZIPCounty, error) {
	t, err := tabular.NewReader(r, "ZIP", "COUNTY", "RES_RATIO")
	if err != nil {
		return nil, fmt.Errorf("zip crosswalk: %w", err)
	}
	var rows []ZIPCounty
	for t.Next() {
		ratio, ok := t.Float("RES_RATIO")
		if !ok {
			continue
		}
		rows = append(rows, ZIPCounty{
			ZIP:      pad(t.String("ZIP"), 5),
			County:   pad(t.String("COUNTY"), 5),
			ResRatio: ratio,
		})
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("zip crosswalk: %w", err)
	}
	return rows, nil
}
