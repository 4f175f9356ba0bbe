package explores

import (
	"fmt"
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/views"
)

// MetricDefinitionsExploreKind tags the explore that stitches every
// metric definitions view of a namespace into one query surface.
const MetricDefinitionsExploreKind = "metric_definitions_explore"

type MetricDefinitionsExplore struct {
	base
}

func metricDefinitionsExploresFromViews(vs []views.View) []Explore {
	// one explore regardless of how many metric definitions views the
	// namespace has; the base view is the first by name and the rest
	// join at render time
	var baseView string
	for _, v := range vs {
		if v.Kind() != views.MetricDefinitionsKind {
			continue
		}
		if baseView == "" || v.Name() < baseView {
			baseView = v.Name()
		}
	}
	if baseView == "" {
		return nil
	}
	return []Explore{&MetricDefinitionsExplore{base{
		name:  "metric_definitions",
		kind:  MetricDefinitionsExploreKind,
		views: map[string]string{"base_view": baseView},
	}}}
}

func metricDefinitionsExploreFromDef(name string, d Def) (Explore, error) {
	return &MetricDefinitionsExplore{base{name: name, kind: MetricDefinitionsExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

// DependentViews includes every metric definitions view of the
// namespace, since all of them are join targets.
func (e *MetricDefinitionsExplore) DependentViews(ix *ViewIndex) []string {
	return metricDefinitionViews(ix)
}

func (e *MetricDefinitionsExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	baseView := e.views["base_view"]
	if _, ok := ix.View(baseView); !ok {
		return nil, fmt.Errorf("explore %q: base view %q was not rendered", e.name, baseView)
	}

	// The base view is the only view exposing date and client_id
	// directly; joined views expose only their metric sets.
	explore := lkml.Explore{
		Name:         e.name,
		ViewName:     baseView,
		Fields:       []string{"ALL_FIELDS*"},
		AlwaysFilter: []lkml.Filter{{Field: "submission_date", Value: "7 days"}},
	}

	for _, joined := range metricDefinitionViews(ix) {
		if joined == baseView {
			continue
		}
		explore.Joins = append(explore.Joins, lkml.Join{
			Name:         joined,
			ViewLabel:    lookml.SlugToTitle(joined),
			Type:         "full_outer",
			Relationship: "many_to_many",
			Fields:       []string{joined + ".metrics*"},
			SQLOn:        metricDefinitionsJoinCondition(ix, baseView, joined),
		})
	}

	// the base view's analysis basis already prunes partitions
	return &lkml.ExploreFile{Explores: []lkml.Explore{explore}}, nil
}

// metricDefinitionsJoinCondition keys the join on the analysis basis
// and, when both sides carry a client grain, on client_id. Both sides
// are cast so sources with differing column types still compare.
func metricDefinitionsJoinCondition(ix *ViewIndex, baseView, joined string) string {
	condition := fmt.Sprintf(
		"SAFE_CAST(${%s.submission_date} AS TIMESTAMP) = SAFE_CAST(${%s.submission_date} AS TIMESTAMP)",
		baseView, joined)
	if viewHasClientID(ix, baseView) && viewHasClientID(ix, joined) {
		condition += fmt.Sprintf(
			" AND SAFE_CAST(${%s.client_id} AS STRING) = SAFE_CAST(${%s.client_id} AS STRING)",
			baseView, joined)
	}
	return condition
}

func viewHasClientID(ix *ViewIndex, viewName string) bool {
	view, ok := ix.View(viewName)
	if !ok {
		return false
	}
	for _, d := range view.Dimensions {
		if d.Name == "client_id" {
			return true
		}
	}
	return false
}

func metricDefinitionViews(ix *ViewIndex) []string {
	var names []string
	for _, name := range ix.Names() {
		if strings.HasPrefix(name, "metric_definitions_") {
			names = append(names, name)
		}
	}
	return names
}
