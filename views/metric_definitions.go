package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/metrics"
)

// MetricDefinitionsKind tags a view built from metric-hub definitions
// rather than a BigQuery schema. One view covers one data source.
const MetricDefinitionsKind = "metric_definitions_view"

const metricDefinitionsPrefix = "metric_definitions_"

// MetricDefinitionsView exposes per-client metric aggregations as
// dimensions so that custom measures can be layered on in Looker.
type MetricDefinitionsView struct {
	base
}

func newMetricDefinitionsView(namespace, name string, tables []Table) *MetricDefinitionsView {
	return &MetricDefinitionsView{base{namespace: namespace, name: name, kind: MetricDefinitionsKind, tables: tables}}
}

func metricDefinitionsFromDef(namespace, name string, d Def) (View, error) {
	return newMetricDefinitionsView(namespace, name, d.Tables), nil
}

// dataSource strips the view name down to the metric-hub data source slug.
func (v *MetricDefinitionsView) dataSource() string {
	return strings.TrimPrefix(v.name, metricDefinitionsPrefix)
}

// LookML renders the derived table and statistic measures. A view whose
// platform or data source has no definitions renders to an empty file,
// which the pipeline skips. When the view carries a client-grain source
// table, that table's non-identifier dimensions are joined in so metrics
// can be sliced by them.
func (v *MetricDefinitionsView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	platform, ok := env.Metrics.Platform(v.namespace)
	if !ok {
		return &lkml.ViewFile{}, nil
	}
	dataSource := v.dataSource()
	source, ok := env.Metrics.DataSource(dataSource, v.namespace)
	if !ok {
		return &lkml.ViewFile{}, nil
	}
	slugs := env.Metrics.MetricsOfDataSource(dataSource, v.namespace)
	if len(slugs) == 0 {
		return &lkml.ViewFile{}, nil
	}

	sourceSQL, err := env.Metrics.DataSourceSQL(dataSource, v.namespace)
	if err != nil {
		return nil, err
	}

	dims := v.dimensions(platform, slugs)
	groups := []lkml.Dimension{{
		Name:       "submission",
		Type:       "time",
		GroupLabel: "Base Fields",
		Label:      "Submission",
		SQL:        "CAST(${TABLE}.analysis_basis AS TIMESTAMP)",
		Timeframes: []string{"raw", "date", "week", "month", "quarter", "year"},
	}}

	base, err := v.baseFields(ctx, env, source, slugs)
	if err != nil {
		return nil, err
	}
	dims = append(dims, base.dims...)
	groups = append(groups, base.groups...)

	measures := v.measures(platform, dims, base.sampled())

	view := lkml.View{
		Name:            v.name,
		DerivedTableSQL: derivedMetricsSQL(platform, source, sourceSQL, slugs, base),
		Dimensions:      dims,
		DimensionGroups: groups,
		Measures:        measures,
		Sets:            []lkml.Set{metricsSet(v.dimensions(platform, slugs), measures)},
		Parameters: []lkml.Parameter{
			{
				Name:         "aggregate_metrics_by",
				Label:        "Aggregate Client Metrics Per",
				Type:         "unquoted",
				DefaultValue: "day",
				AllowedValues: []lkml.AllowedValue{
					{Label: "Per Day", Value: "day"},
					{Label: "Per Week", Value: "week"},
					{Label: "Per Month", Value: "month"},
					{Label: "Per Quarter", Value: "quarter"},
					{Label: "Per Year", Value: "year"},
					{Label: "Overall", Value: "overall"},
				},
			},
			{
				Name:         "sampling",
				Label:        "Sample of source data in %",
				Type:         "unquoted",
				DefaultValue: "100",
				Hidden:       !base.sampled(),
			},
		},
	}
	return &lkml.ViewFile{Views: []lkml.View{view}}, nil
}

// baseViewFields are the joined-in dimensions of the client-grain source
// table. Empty when the view has no source table or the data source has
// no client grain.
type baseViewFields struct {
	table  string
	dims   []lkml.Dimension
	groups []lkml.Dimension
}

// sampled reports whether the base table exposes a sample_id column,
// which unlocks the sampling parameter and scaled measures.
func (b baseViewFields) sampled() bool {
	for _, d := range b.dims {
		if d.Name == "sample_id" {
			return true
		}
	}
	return false
}

// baseColumn maps a joined dimension or dimension group back to its
// source column, the flattened name for dimensions and the sql column
// for groups (the group name has its time suffix stripped).
func baseColumn(d lkml.Dimension) string {
	if d.IsGroup() {
		return strings.TrimPrefix(d.SQL, "${TABLE}.")
	}
	return d.Name
}

// columns lists the joined base columns in render order, dimensions
// before dimension groups.
func (b baseViewFields) columns() []string {
	var out []string
	for _, d := range b.dims {
		out = append(out, baseColumn(d))
	}
	for _, g := range b.groups {
		out = append(out, baseColumn(g))
	}
	return out
}

// baseFields renders the view's first source table the way a table view
// would and keeps the visible non-identifier fields under a Base Fields
// group label.
func (v *MetricDefinitionsView) baseFields(ctx context.Context, env *Env, source metrics.DataSource, slugs []string) (baseViewFields, error) {
	if len(v.tables) == 0 || source.ClientIDColumn == "NULL" {
		return baseViewFields{}, nil
	}
	table := v.tables[0].Table
	bv := newTableView(v.namespace, "base_view", []Table{{Table: table, Channel: "release"}})
	f, err := bv.LookML(ctx, env)
	if err != nil {
		return baseViewFields{}, err
	}

	ignore := map[string]bool{
		"client_id":       true,
		"submission_date": true,
		"submission":      true,
		"first_run":       true,
	}
	for _, slug := range slugs {
		ignore[slug] = true
	}

	out := baseViewFields{table: table}
	for _, d := range f.Views[0].Dimensions {
		if ignore[d.Name] || d.Hidden {
			continue
		}
		d.GroupLabel = "Base Fields"
		out.dims = append(out.dims, d)
	}
	for _, g := range f.Views[0].DimensionGroups {
		if ignore[g.Name] || g.Hidden {
			continue
		}
		g.GroupLabel = "Base Fields"
		out.groups = append(out.groups, g)
	}
	return out, nil
}

// dimensions returns client_id plus one number dimension per metric.
func (v *MetricDefinitionsView) dimensions(platform metrics.Platform, slugs []string) []lkml.Dimension {
	dims := []lkml.Dimension{{
		Name:        "client_id",
		Type:        "string",
		SQL:         "SAFE_CAST(${TABLE}.client_id AS STRING)",
		Label:       "Client ID",
		PrimaryKey:  true,
		GroupLabel:  "Base Fields",
		Description: "Unique client identifier",
	}}
	for _, slug := range slugs {
		m := platform.Metrics[slug]
		label := m.FriendlyName
		if label == "" {
			label = lookml.SlugToTitle(slug)
		}
		dims = append(dims, lkml.Dimension{
			Name:        slug,
			GroupLabel:  "Metrics",
			Label:       label,
			Description: m.Description,
			Type:        "number",
			SQL:         "${TABLE}." + slug,
		})
	}
	return dims
}

// measures turns each metric's statistics into LookML measures. Ratio
// style statistics reference other measures by "<slug>_<statistic>".
// Volume statistics (sum, client_count, DAU) are scaled back up by the
// sampling factor; the factor is 1 when the source has no sample_id.
func (v *MetricDefinitionsView) measures(platform metrics.Platform, dims []lkml.Dimension, sampled bool) []lkml.Measure {
	factor := "1"
	if sampled {
		factor = "100 / {% parameter sampling %}"
	}

	var measures []lkml.Measure
	emittedDAU := false
	for _, dim := range dims {
		metric, ok := platform.Metrics[dim.Name]
		if !ok || len(metric.Statistics) == 0 {
			continue
		}
		for _, slug := range sortedStatistics(metric.Statistics) {
			conf := metric.Statistics[slug]
			switch slug {
			case "average", "max", "min", "median":
				measures = append(measures, lkml.Measure{
					Name:        dim.Name + "_" + slug,
					Type:        slug,
					SQL:         "${TABLE}." + dim.Name,
					Label:       dim.Label + " " + lookml.SlugToTitle(slug),
					GroupLabel:  "Statistics",
					Description: lookml.SlugToTitle(slug) + " of " + dim.Label,
				})
			case "sum":
				measures = append(measures, lkml.Measure{
					Name:        dim.Name + "_sum",
					Type:        "sum",
					SQL:         "${TABLE}." + dim.Name + " * " + factor,
					Label:       dim.Label + " Sum",
					GroupLabel:  "Statistics",
					Description: "Sum of " + dim.Label,
				})
			case "client_count":
				measures = append(measures, lkml.Measure{
					Name:        dim.Name + "_client_count_sampled",
					Type:        "count_distinct",
					Label:       dim.Label + " Client Count",
					GroupLabel:  "Statistics",
					SQL:         "IF(${TABLE}." + dim.Name + " > 0, ${TABLE}.client_id, SAFE_CAST(NULL AS STRING))",
					Description: "Number of clients with " + dim.Label,
					Hidden:      true,
				}, lkml.Measure{
					Name:        dim.Name + "_client_count",
					Type:        "number",
					Label:       dim.Label + " Client Count",
					GroupLabel:  "Statistics",
					SQL:         "${" + dim.Name + "_client_count_sampled} * " + factor,
					Description: "Number of clients with " + dim.Label,
				})
			case "dau_proportion":
				if conf.Numerator == "" {
					continue
				}
				if !emittedDAU {
					measures = append(measures, lkml.Measure{
						Name:       "DAU_sampled",
						Type:       "count_distinct",
						Label:      "DAU",
						GroupLabel: "Statistics",
						SQL:        "${TABLE}.client_id",
						Hidden:     true,
					}, lkml.Measure{
						Name:       "DAU",
						Type:       "number",
						Label:      "DAU",
						GroupLabel: "Statistics",
						SQL:        "${DAU_sampled} * " + factor,
						Hidden:     true,
					})
					emittedDAU = true
				}
				measures = append(measures, lkml.Measure{
					Name:        dim.Name + "_dau_proportion",
					Type:        "number",
					Label:       dim.Label + " DAU Proportion",
					SQL:         "SAFE_DIVIDE(${" + statisticRef(conf.Numerator) + "}, ${DAU})",
					GroupLabel:  "Statistics",
					Description: "Proportion of daily active users with " + dim.Name,
				})
			case "ratio":
				if conf.Numerator == "" || conf.Denominator == "" {
					continue
				}
				measures = append(measures, lkml.Measure{
					Name:  dim.Name + "_ratio",
					Type:  "number",
					Label: dim.Label + " Ratio",
					SQL: "SAFE_DIVIDE(${" + statisticRef(conf.Numerator) +
						"}, ${" + statisticRef(conf.Denominator) + "})",
					GroupLabel:  "Statistics",
					Description: "Ratio between " + conf.Numerator + " and " + conf.Denominator,
				})
			}
		}
	}
	return measures
}

// statisticRef maps "metric_slug.statistic" to the measure name the
// statistic was emitted under.
func statisticRef(ref string) string {
	return strings.ReplaceAll(ref, ".", "_")
}

func sortedStatistics(stats map[string]metrics.Statistic) []string {
	// fixed emission order keeps referenced measures ahead of ratios
	order := []string{"sum", "average", "max", "min", "median", "client_count", "dau_proportion", "ratio"}
	var out []string
	for _, slug := range order {
		if _, ok := stats[slug]; ok {
			out = append(out, slug)
		}
	}
	return out
}

func metricsSet(dims []lkml.Dimension, measures []lkml.Measure) lkml.Set {
	var fields []string
	for _, d := range dims {
		if d.Name != "client_id" {
			fields = append(fields, d.Name)
		}
	}
	for _, m := range measures {
		fields = append(fields, m.Name)
	}
	return lkml.Set{Name: "metrics", Fields: fields}
}

// dateRangeSQL renders the Looker date-filter window for a column,
// falling back to the current date when no filter is set.
func dateRangeSQL(sdc string) string {
	return fmt.Sprintf(`COALESCE(SAFE_CAST({%% date_start %[1]s %%} AS DATE), CURRENT_DATE()) AND
    COALESCE(SAFE_CAST({%% date_end %[1]s %%} AS DATE), CURRENT_DATE())`, sdc)
}

// derivedMetricsSQL aggregates every metric per client for the selected
// analysis basis. When base fields are present the source is joined back
// to the base table so those fields can group the aggregation.
func derivedMetricsSQL(platform metrics.Platform, source metrics.DataSource, sourceSQL string, slugs []string, base baseViewFields) string {
	sdc := source.SubmissionDateColumn
	if sdc == "" {
		sdc = "submission_date"
	}
	cid := source.ClientIDColumn
	if cid == "" {
		cid = "client_id"
	}
	clientID := "m." + cid
	if source.ClientIDColumn == "NULL" {
		clientID = "NULL"
	}

	columns := base.columns()

	var b strings.Builder
	b.WriteString("SELECT\n")
	for _, slug := range slugs {
		fmt.Fprintf(&b, "    %s AS %s,\n", platform.Metrics[slug].SelectExpression, slug)
	}
	for _, col := range columns {
		fmt.Fprintf(&b, "    base.base_%s AS %s,\n", col, col)
	}
	fmt.Fprintf(&b, "    %s AS client_id,\n", clientID)
	fmt.Fprintf(&b, `    {%% if aggregate_metrics_by._parameter_value == 'day' %%}
    m.%[1]s AS analysis_basis
    {%% elsif aggregate_metrics_by._parameter_value == 'week' %%}
    (FORMAT_DATE('%%F', DATE_TRUNC(m.%[1]s, WEEK(MONDAY)))) AS analysis_basis
    {%% elsif aggregate_metrics_by._parameter_value == 'month' %%}
    (FORMAT_DATE('%%Y-%%m', m.%[1]s)) AS analysis_basis
    {%% elsif aggregate_metrics_by._parameter_value == 'quarter' %%}
    (FORMAT_DATE('%%Y-%%m', DATE_TRUNC(m.%[1]s, QUARTER))) AS analysis_basis
    {%% elsif aggregate_metrics_by._parameter_value == 'year' %%}
    (EXTRACT(YEAR FROM m.%[1]s)) AS analysis_basis
    {%% else %%}
    NULL AS analysis_basis
    {%% endif %%}
`, sdc)
	fmt.Fprintf(&b, "FROM %s AS m\n", sourceSQL)

	if base.table != "" {
		b.WriteString("INNER JOIN (\n    SELECT\n")
		b.WriteString("    client_id AS base_client_id,\n")
		b.WriteString("    submission_date AS base_submission_date,\n")
		for _, col := range columns {
			// nested columns are flattened with "__" in field names
			fmt.Fprintf(&b, "    %s AS base_%s,\n", strings.ReplaceAll(col, "__", "."), col)
		}
		fmt.Fprintf(&b, "    FROM %s\n", base.table)
		fmt.Fprintf(&b, "    WHERE submission_date BETWEEN\n    %s\n", dateRangeSQL(sdc))
		b.WriteString(") base\n")
		fmt.Fprintf(&b, "ON base.base_submission_date = m.%s\n", sdc)
		fmt.Fprintf(&b, "    AND base.base_client_id = m.%s\n", cid)
		fmt.Fprintf(&b, "WHERE base.base_submission_date BETWEEN\n    %s\n", dateRangeSQL(sdc))
		if base.sampled() {
			b.WriteString("    AND base.base_sample_id < {% parameter sampling %}\n")
		}
		fmt.Fprintf(&b, "AND m.%s BETWEEN\n    %s\n", sdc, dateRangeSQL(sdc))
	} else {
		fmt.Fprintf(&b, "WHERE m.%s BETWEEN\n    %s\n", sdc, dateRangeSQL(sdc))
	}

	b.WriteString("GROUP BY\n")
	for _, col := range columns {
		fmt.Fprintf(&b, "    %s,\n", col)
	}
	b.WriteString("    client_id,\n    analysis_basis")
	return b.String()
}
