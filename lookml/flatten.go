package lookml

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/schema"
)

// Flatten converts a schema tree into an ordered list of dimensions and
// dimension groups. Fields at each level are visited in lexicographic
// name order so two runs over the same schema produce identical output.
// Non-repeated records are recursed into with their name prefixed onto
// the path; repeated fields of any type are emitted as a single hidden
// leaf and never expanded.
func Flatten(fields []schema.Field) []lkml.Dimension {
	return flatten(fields, nil)
}

func flatten(fields []schema.Field, prefix []string) []lkml.Dimension {
	sorted := make([]schema.Field, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var dims []lkml.Dimension
	for _, f := range sorted {
		if f.Type == "RECORD" && !f.Repeated {
			child := append(append([]string{}, prefix...), f.Name)
			dims = append(dims, flatten(f.Fields, child)...)
			continue
		}
		dims = append(dims, newDimension(append(append([]string{}, prefix...), f.Name), f))
	}
	return dims
}

func newDimension(path []string, f schema.Field) lkml.Dimension {
	d := lkml.Dimension{
		SQL:         "${TABLE}." + strings.Join(path, "."),
		Description: f.Description,
	}
	name := path

	dimType, known := dimensionTypes[f.Type]
	dotted := strings.Join(path, ".")
	if f.Repeated || hiddenPaths[dotted] || !known {
		d.Hidden = true
		d.Name = strings.Join(name, "__")
		return d
	}

	d.Type = dimType
	d.SuggestPersistFor = defaultSuggestPersistFor

	var groupLabel, groupItemLabel string
	if len(path) > 1 {
		groupLabel = SlugToTitle(strings.Join(path[:len(path)-1], " "))
		groupItemLabel = SlugToTitle(path[len(path)-1])
	}

	if dimType == "time" {
		// The timeframe adds a _{timeframe} suffix to each generated
		// dimension, so strip the redundant type suffix from the group
		// name: submission_date and submission_timestamp both become
		// the "submission" group.
		last := timeSuffix.ReplaceAllString(path[len(path)-1], "")
		name = append(append([]string{}, path[:len(path)-1]...), last)
		d.Timeframes = []string{"raw", "time", "date", "week", "month", "quarter", "year"}
		if f.Type == "DATE" {
			d.Timeframes = removeString(d.Timeframes, "time")
			d.ConvertTZ = "no"
			d.Datatype = "date"
		}
		if groupLabel != "" && groupItemLabel != "" {
			// Dimension groups cannot be nested under a group label.
			d.Label = groupLabel + ": " + groupItemLabel
		}
	} else if len(path) > 1 {
		d.GroupLabel = groupLabel
		d.GroupItemLabel = groupItemLabel
	}

	if layer, ok := mapLayers[dotted]; ok {
		d.MapLayerName = layer
	}

	d.Name = strings.Join(name, "__")
	return d
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// Dedupe resolves name collisions in a flattened dimension list. Time
// groups named "submission" or ending in "start"/"end" legitimately
// collide (one date column and one timestamp column stripping to the
// same group name) and resolve last-wins, which keeps the timestamp
// variant under the lexicographic traversal order. Any other collision
// is a configuration error naming the table and field.
func Dedupe(table string, dims []lkml.Dimension) ([]lkml.Dimension, error) {
	index := make(map[string]int, len(dims))
	out := make([]lkml.Dimension, 0, len(dims))
	for _, d := range dims {
		// Keep time groups from silently displacing plain dimensions
		// of the same stripped name.
		key := d.Name
		if d.Type == "time" {
			key += "_time"
		}
		if at, ok := index[key]; ok {
			exempt := d.Type == "time" &&
				(d.Name == "submission" ||
					strings.HasSuffix(d.Name, "end") ||
					strings.HasSuffix(d.Name, "start"))
			if !exempt {
				return nil, fmt.Errorf("duplicate dimension %q for table %q", key, table)
			}
			out[at] = d
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	return out, nil
}

// DimensionsForTable flattens and dedupes the schema of one table.
func DimensionsForTable(table string, fields []schema.Field) ([]lkml.Dimension, error) {
	return Dedupe(table, Flatten(fields))
}

// SplitGroups partitions dimensions from dimension groups, preserving
// traversal order within each slice.
func SplitGroups(dims []lkml.Dimension) (plain, groups []lkml.Dimension) {
	for _, d := range dims {
		if d.IsGroup() {
			groups = append(groups, d)
		} else {
			plain = append(plain, d)
		}
	}
	return plain, groups
}

// NestedViews generates one child view per repeated record field,
// recursively. Repeated structs cannot be flattened into the parent's
// dimension list, so each becomes its own view joined via UNNEST.
func NestedViews(fields []schema.Field, viewName string) []lkml.View {
	sorted := make([]schema.Field, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var views []lkml.View
	for _, f := range sorted {
		if f.Type != "RECORD" {
			continue
		}
		childName := viewName + "__" + f.Name
		if f.Repeated {
			dims, groups := SplitGroups(Flatten(f.Fields))
			views = append(views, lkml.View{
				Name:            childName,
				Dimensions:      dims,
				DimensionGroups: groups,
			})
		}
		views = append(views, NestedViews(f.Fields, childName)...)
	}
	return views
}
