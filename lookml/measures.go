package lookml

import (
	"fmt"

	"github.com/mozdata/lookgen/lkml"
)

// DefaultMeasures derives the standard aggregate fields from a flattened
// dimension list. A client identifier yields a "clients" distinct count,
// a document identifier yields a "ping_count" count, and a table with
// neither convention match gets a single "count" measure so every view
// stays aggregable.
func DefaultMeasures(dims []lkml.Dimension, table string) ([]lkml.Measure, error) {
	var measures []lkml.Measure

	clientID, err := ClientIDField(dims, table)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		measures = append(measures, lkml.Measure{
			Name: "clients",
			Type: "count_distinct",
			SQL:  "${" + clientID + "}",
		})
	}
	if DocumentIDField(dims) != "" {
		measures = append(measures, lkml.Measure{
			Name: "ping_count",
			Type: "count",
		})
	}
	if len(measures) == 0 {
		measures = append(measures, lkml.Measure{
			Name: "count",
			Type: "count",
		})
	}
	return measures, CheckMeasureNames(measures, table)
}

// CheckMeasureNames rejects duplicate measure names, which are always a
// configuration defect.
func CheckMeasureNames(measures []lkml.Measure, table string) error {
	seen := make(map[string]bool, len(measures))
	for _, m := range measures {
		if seen[m.Name] {
			return fmt.Errorf("duplicate measure %q for table %q", m.Name, table)
		}
		seen[m.Name] = true
	}
	return nil
}
