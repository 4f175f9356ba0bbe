package explores

import (
	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// GrowthAccountingExploreKind tags the one-view explore over the growth
// accounting view; the retention logic lives entirely in the view.
const GrowthAccountingExploreKind = "growth_accounting_explore"

type GrowthAccountingExplore struct {
	base
}

func growthAccountingExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Name() == "growth_accounting" {
			out = append(out, &GrowthAccountingExplore{base{
				name:  v.Name(),
				kind:  GrowthAccountingExploreKind,
				views: map[string]string{"base_view": "growth_accounting"},
			}})
		}
	}
	return out
}

func growthAccountingExploreFromDef(name string, d Def) (Explore, error) {
	return &GrowthAccountingExplore{base{name: name, kind: GrowthAccountingExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *GrowthAccountingExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	joins, err := e.unnestedJoins(ix)
	if err != nil {
		return nil, err
	}
	return e.finish(&lkml.ExploreFile{
		Explores: []lkml.Explore{{
			Name:     e.name,
			ViewName: e.views["base_view"],
			Joins:    joins,
		}},
	}, ix), nil
}
