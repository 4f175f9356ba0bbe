package views

import (
	"context"
	"sort"

	"github.com/mozdata/lookgen/lkml"
)

// Operational monitoring views render experiment monitoring tables
// produced by opmon. They are defined only in namespace configs, never
// discovered from the catalog.
const (
	OpMonScalarKind    = "operational_monitoring_scalar_view"
	OpMonHistogramKind = "operational_monitoring_histogram_view"
	OpMonAlertingKind  = "operational_monitoring_alerting_view"
)

// opmonBaseDimensions are schema columns every opmon view may surface.
var opmonBaseDimensions = map[string]bool{
	"branch":    true,
	"metric":    true,
	"statistic": true,
	"parameter": true,
}

// opmonScalarDimensions additionally allows the probe column of scalar
// aggregate tables.
var opmonScalarDimensions = map[string]bool{
	"branch": true,
	"probe":  true,
}

// percentileCILabels are the struct fields of the jackknife UDF result,
// each exposed as its own measure.
var percentileCILabels = []string{"percentile", "low", "high"}

type opmonView struct {
	base
}

func opmonScalarFromDef(namespace, name string, d Def) (View, error) {
	return &opmonView{base{namespace: namespace, name: name, kind: OpMonScalarKind, tables: d.Tables}}, nil
}

func opmonHistogramFromDef(namespace, name string, d Def) (View, error) {
	return &opmonView{base{namespace: namespace, name: name, kind: OpMonHistogramKind, tables: d.Tables}}, nil
}

func opmonAlertingFromDef(namespace, name string, d Def) (View, error) {
	return &opmonView{base{namespace: namespace, name: name, kind: OpMonAlertingKind, tables: d.Tables}}, nil
}

func (v *opmonView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	table := v.tables[0]

	all, err := tableDimensions(ctx, env, table.Table)
	if err != nil {
		return nil, err
	}

	var view lkml.View
	switch v.kind {
	case OpMonScalarKind:
		view = lkml.View{
			Name: v.name,
			DerivedTableSQL: "SELECT *\n" +
				"FROM `" + table.Table + "`\n" +
				`WHERE agg_type = "SUM"`,
			Dimensions: append(
				[]lkml.Dimension{xAxisDimension(table)},
				filterDimensions(all, opmonScalarDimensions, table.Dimensions)...,
			),
			Parameters: []lkml.Parameter{percentileParameter()},
			Measures:   percentileMeasures(scalarPercentileSQL),
		}
	case OpMonHistogramKind:
		view = lkml.View{
			Name:         v.name,
			SQLTableName: table.Table,
			Dimensions: append(
				[]lkml.Dimension{xAxisDimension(table)},
				filterDimensions(all, opmonBaseDimensions, table.Dimensions)...,
			),
			Parameters: []lkml.Parameter{percentileParameter()},
			Measures:   percentileMeasures(histogramPercentileSQL),
		}
	case OpMonAlertingKind:
		var dims []lkml.Dimension
		for _, d := range all {
			if d.Name != "submission" {
				dims = append(dims, d)
			}
		}
		dims = append(dims, lkml.Dimension{
			Name: "submission_date",
			Type: "date",
			SQL:  "${TABLE}.submission_date",
		})
		view = lkml.View{
			Name:         v.name,
			SQLTableName: "`" + table.Table + "`",
			Dimensions:   dims,
			Measures: []lkml.Measure{
				{Name: "errors", Type: "number", SQL: "COUNT(*)"},
			},
		}
	}

	return &lkml.ViewFile{Views: []lkml.View{view}}, nil
}

// xAxisDimension renders the configured x axis as a date dimension.
// build_id columns are YYYYMMDD integers and have to be parsed; a
// malformed build id either nulls out or fails the query depending on
// the table's policy.
func xAxisDimension(table Table) lkml.Dimension {
	xaxis := table.XAxis
	if xaxis == "" {
		xaxis = "build_id"
	}
	sql := "${TABLE}." + xaxis
	if xaxis == "build_id" {
		parse := "SAFE.PARSE_DATE"
		if table.OnMalformedBuildID == "fail" {
			parse = "PARSE_DATE"
		}
		sql = parse + "('%Y%m%d', CAST(${TABLE}." + xaxis + " AS STRING))"
	}
	return lkml.Dimension{
		Name:      xaxis,
		Type:      "date",
		SQL:       sql,
		Datatype:  "date",
		ConvertTZ: "no",
	}
}

// filterDimensions keeps the schema dimensions named by allowed or by
// the table's configured dimension defaults.
func filterDimensions(dims []lkml.Dimension, allowed map[string]bool, configured map[string]DimensionDefault) []lkml.Dimension {
	var out []lkml.Dimension
	for _, d := range dims {
		if allowed[d.Name] {
			out = append(out, d)
			continue
		}
		if _, ok := configured[d.Name]; ok {
			out = append(out, d)
		}
	}
	return out
}

func percentileParameter() lkml.Parameter {
	return lkml.Parameter{
		Name:         "percentile_conf",
		Type:         "number",
		Label:        "Percentile",
		DefaultValue: "50.0",
	}
}

func percentileMeasures(sqlFor func(label string) string) []lkml.Measure {
	measures := make([]lkml.Measure, 0, len(percentileCILabels))
	for _, label := range percentileCILabels {
		measures = append(measures, lkml.Measure{
			Name: label,
			Type: "number",
			SQL:  sqlFor(label),
		})
	}
	return measures
}

func scalarPercentileSQL(label string) string {
	return "`moz-fx-data-shared-prod`.udf_js.jackknife_percentile_ci(\n" +
		"    {% parameter percentile_conf %},\n" +
		"    STRUCT<values ARRAY<STRUCT<key FLOAT64, value FLOAT64>>>(mozfun.map.sum(\n" +
		"        ARRAY_AGG(\n" +
		"            STRUCT<key FLOAT64, value FLOAT64>(\n" +
		"                SAFE_CAST(COALESCE(${TABLE}.value, 0.0) AS FLOAT64), 1\n" +
		"            )\n" +
		"        )\n" +
		"    ))\n" +
		")." + label
}

func histogramPercentileSQL(label string) string {
	return "`moz-fx-data-shared-prod`.udf_js.jackknife_percentile_ci(\n" +
		"    {% parameter percentile_conf %},\n" +
		"    STRUCT(\n" +
		"        mozfun.hist.merge(\n" +
		"          ARRAY_AGG(\n" +
		"            ${TABLE}.histogram IGNORE NULLS\n" +
		"          )\n" +
		"        ).values AS values\n" +
		"    )\n" +
		")." + label
}

// SortedDimensionNames lists a table's configured opmon dimensions in a
// stable order, for explores and dashboards that iterate them.
func SortedDimensionNames(configured map[string]DimensionDefault) []string {
	names := make([]string, 0, len(configured))
	for name := range configured {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
