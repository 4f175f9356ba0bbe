package explores

import (
	"fmt"
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// FunnelAnalysisExploreKind tags the explore over a funnel_analysis view.
const FunnelAnalysisExploreKind = "funnel_analysis_explore"

// FunnelAnalysisExplore cross-joins each step view onto the funnel view.
// The step views carry a single match_string row, so the cross join
// keeps the funnel at one row per user-day.
type FunnelAnalysisExplore struct {
	base
}

func funnelAnalysisExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Kind() == views.FunnelAnalysisKind {
			out = append(out, &FunnelAnalysisExplore{base{
				name:  v.Name(),
				kind:  FunnelAnalysisExploreKind,
				views: map[string]string{"base_view": v.Name()},
			}})
		}
	}
	return out
}

func funnelAnalysisExploreFromDef(name string, d Def) (Explore, error) {
	return &FunnelAnalysisExplore{base{name: name, kind: FunnelAnalysisExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *FunnelAnalysisExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	baseView := e.views["base_view"]
	file, ok := ix.File(baseView)
	if !ok {
		return nil, fmt.Errorf("funnel explore %q has no rendered view %q", e.name, baseView)
	}

	// the funnel length is whatever the view rendered
	steps := 0
	for _, v := range file.Views {
		if strings.HasPrefix(v.Name, "step_") {
			steps++
		}
	}

	joins := make([]lkml.Join, 0, steps)
	for n := 1; n <= steps; n++ {
		joins = append(joins, lkml.Join{
			Name:         fmt.Sprintf("step_%d", n),
			Relationship: "many_to_one",
			Type:         "cross",
		})
	}

	explore := lkml.Explore{
		Name:           e.name,
		ViewName:       baseView,
		Description:    "Count funnel completion over time. Funnels are limited to a single day.",
		ViewLabel:      " User-Day Funnels",
		AlwaysFilter:   []lkml.Filter{{Field: "submission_date", Value: "14 days"}},
		Joins:          joins,
		SQLAlwaysWhere: fmt.Sprintf("${%s.submission_date} >= '2010-01-01'", baseView),
	}

	return e.finish(&lkml.ExploreFile{Explores: []lkml.Explore{
		explore,
		{Name: "event_names", Hidden: true},
	}}, ix), nil
}
