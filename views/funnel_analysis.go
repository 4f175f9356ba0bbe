package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozdata/lookgen/lkml"
)

// FunnelAnalysisKind tags the funnel view family: one file holding the
// funnel_analysis view over events_daily plus the step views used to
// pick the events of each funnel step.
const FunnelAnalysisKind = "funnel_analysis_view"

// defaultFunnelSteps is how many steps a discovered funnel exposes.
const defaultFunnelSteps = 4

// FunnelAnalysisView renders user-day funnels. Each step view produces a
// single match_string row; the funnel view cross-joins them and matches
// the regex against the events string of events_daily.
type FunnelAnalysisView struct {
	base
}

func newFunnelAnalysisView(namespace string, tables []Table) *FunnelAnalysisView {
	return &FunnelAnalysisView{base{namespace: namespace, name: "funnel_analysis", kind: FunnelAnalysisKind, tables: tables}}
}

// funnelAnalysisFromCatalog yields a funnel view only when the release
// dataset carries both events_daily and event_types.
func funnelAnalysisFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	dataset := releaseFirst(channels).Dataset
	found := map[string]bool{}
	for _, viewID := range sortedViewIDs(catalog[dataset]) {
		if viewID == "events_daily" || viewID == "event_types" {
			found[viewID] = true
		}
	}
	if len(found) != 2 {
		return nil
	}
	return []View{newFunnelAnalysisView(namespace, []Table{{
		FunnelBaseView: "events_daily_table",
		EventTypes:     "`" + userFacingTable(dataset, "event_types") + "`",
		FunnelSteps:    defaultFunnelSteps,
	}})}
}

func funnelAnalysisFromDef(namespace, name string, d Def) (View, error) {
	return newFunnelAnalysisView(namespace, d.Tables), nil
}

// steps returns the configured funnel length.
func (v *FunnelAnalysisView) steps() int {
	if n := v.tables[0].FunnelSteps; n > 0 {
		return n
	}
	return defaultFunnelSteps
}

func (v *FunnelAnalysisView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	t := v.tables[0]

	views := []lkml.View{v.funnelView(t)}
	views = append(views, v.eventTypesViews(t)...)

	return &lkml.ViewFile{
		Includes: []string{t.FunnelBaseView + ".view.lkml"},
		Views:    views,
	}, nil
}

// funnelView extends the events_daily table view with one yesno
// dimension and two measures per funnel step.
func (v *FunnelAnalysisView) funnelView(t Table) lkml.View {
	n := v.steps()

	var dims []lkml.Dimension
	for step := 1; step <= n; step++ {
		var matches []string
		for i := 1; i <= step; i++ {
			matches = append(matches, fmt.Sprintf("${step_%d.match_string}", i))
		}
		dims = append(dims, lkml.Dimension{
			Name:        fmt.Sprintf("completed_step_%d", step),
			Type:        "yesno",
			Description: fmt.Sprintf("Whether the user completed step %d on the associated day.", step),
			SQL: "REGEXP_CONTAINS(${TABLE}.events, mozfun.event_analysis.create_funnel_regex([" +
				strings.Join(matches, ",") + "],True))",
		})
	}

	var counts, fractions []lkml.Measure
	for step := 1; step <= n; step++ {
		var filters []lkml.Filter
		for i := 1; i <= step; i++ {
			filters = append(filters, lkml.Filter{Field: fmt.Sprintf("completed_step_%d", i), Value: "yes"})
		}
		counts = append(counts, lkml.Measure{
			Name: fmt.Sprintf("count_completed_step_%d", step),
			Description: fmt.Sprintf("The number of times that step %d was completed. "+
				"Grouping by day makes this a count of users who completed "+
				"step %d on each day.", step, step),
			Type:    "count",
			Filters: filters,
		})
		fractions = append(fractions, lkml.Measure{
			Name:        fmt.Sprintf("fraction_completed_step_%d", step),
			Description: fmt.Sprintf("Of the user-days that completed Step 1, the fraction that completed step %d.", step),
			Type:        "number",
			SQL:         fmt.Sprintf("SAFE_DIVIDE(${count_completed_step_%d}, ${count_completed_step_1})", step),
		})
	}

	return lkml.View{
		Name:       v.name,
		Extends:    []string{t.FunnelBaseView},
		Dimensions: dims,
		Measures:   append(counts, fractions...),
	}
}

// eventTypesViews renders the filterable event_types view, one step view
// extending it per funnel step, and the event_names suggestion view.
func (v *FunnelAnalysisView) eventTypesViews(t Table) []lkml.View {
	views := []lkml.View{{
		Name: "event_types",
		DerivedTableSQL: "SELECT " +
			"mozfun.event_analysis.aggregate_match_strings( " +
			"ARRAY_AGG( " +
			"mozfun.event_analysis.event_index_to_match_string(index))) AS match_string " +
			"FROM " +
			t.EventTypes + " " +
			"WHERE " +
			"{% condition category %} category {% endcondition %} " +
			"AND {% condition event %} event {% endcondition %}",
		Filters: []lkml.FilterParameter{
			{
				Name:             "category",
				Description:      "The event category, as defined in metrics.yaml.",
				Type:             "string",
				SuggestExplore:   "event_names",
				SuggestDimension: "event_names.category",
			},
			{
				Name:             "event",
				Description:      "The event name.",
				Type:             "string",
				SuggestExplore:   "event_names",
				SuggestDimension: "event_names.event",
			},
		},
		Dimensions: []lkml.Dimension{{
			Name:   "match_string",
			Hidden: true,
			SQL:    "${TABLE}.match_string",
		}},
	}}

	for step := 1; step <= v.steps(); step++ {
		views = append(views, lkml.View{
			Name:    fmt.Sprintf("step_%d", step),
			Extends: []string{"event_types"},
		})
	}

	views = append(views, lkml.View{
		Name: "event_names",
		DerivedTableSQL: "SELECT category, " +
			"  event, " +
			"  property.key AS property_name, " +
			"  property_value.key AS property_value, " +
			"FROM " + t.EventTypes + " " +
			"LEFT JOIN UNNEST(event_properties) AS property " +
			"LEFT JOIN UNNEST(property.value) AS property_value ",
		Dimensions: []lkml.Dimension{
			{Name: "category", Type: "string", SQL: "${TABLE}.category"},
			{Name: "event", Type: "string", SQL: "${TABLE}.event"},
			{Name: "property_name", Type: "string", SQL: "${TABLE}.property_name"},
			{Name: "property_value", Type: "string", SQL: "${TABLE}.property_value"},
		},
	})
	return views
}
