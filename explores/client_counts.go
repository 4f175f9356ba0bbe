package explores

import (
	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// ClientCountsExploreKind tags the cohort analysis explore over a
// client_counts view.
const ClientCountsExploreKind = "client_counts_explore"

type ClientCountsExplore struct {
	base
}

func clientCountsExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Name() == "client_counts" {
			out = append(out, &ClientCountsExplore{base{
				name: v.Name(),
				kind: ClientCountsExploreKind,
				views: map[string]string{
					"base_view":     "client_counts",
					"extended_view": "baseline_clients_daily_table",
				},
			}})
		}
	}
	return out
}

func clientCountsExploreFromDef(name string, d Def) (Explore, error) {
	return &ClientCountsExplore{base{name: name, kind: ClientCountsExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *ClientCountsExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	joins, err := e.unnestedJoins(ix)
	if err != nil {
		return nil, err
	}

	var queries []lkml.Query
	if group := e.timePartitioningGroup(ix, e.views["extended_view"]); group != "" {
		dateDimension := group + "_date"
		queries = append(queries, lkml.Query{
			Name:        "cohort_analysis",
			Description: "Client Counts of weekly cohorts over the past N days.",
			Dimensions:  []string{"days_since_first_seen", "first_seen_week"},
			Measures:    []string{"client_count"},
			Pivots:      []string{"first_seen_week"},
			Filters: []lkml.Filter{
				{Field: dateDimension, Value: "8 weeks"},
				{Field: "first_seen_date", Value: "8 weeks"},
				{Field: "have_completed_period", Value: "yes"},
			},
			Sorts: []lkml.Filter{{Field: "days_since_first_seen", Value: "asc"}},
		})
		if e.hasDimension(ix, e.views["extended_view"], "app_build") {
			queries = append(queries, lkml.Query{
				Name:        "build_breakdown",
				Description: "Number of clients per build.",
				Dimensions:  []string{dateDimension, "app_build"},
				Measures:    []string{"client_count"},
				Pivots:      []string{"app_build"},
				Sorts:       []lkml.Filter{{Field: dateDimension, Value: "asc"}},
			})
		}
	}

	return e.finish(&lkml.ExploreFile{
		Explores: []lkml.Explore{{
			Name:         e.name,
			ViewName:     e.views["base_view"],
			Description:  "Client counts across dimensions and cohorts.",
			AlwaysFilter: e.requiredFilters(ix, "extended_view"),
			Queries:      queries,
			Joins:        joins,
		}},
	}, ix), nil
}
