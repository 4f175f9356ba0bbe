package explores

import (
	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// PingExploreKind tags the one-view explore over a ping view.
const PingExploreKind = "ping_explore"

type PingExplore struct {
	base
}

func pingExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Kind() == views.PingKind {
			out = append(out, &PingExplore{base{
				name:  v.Name(),
				kind:  PingExploreKind,
				views: map[string]string{"base_view": v.Name()},
			}})
		}
	}
	return out
}

func pingExploreFromDef(name string, d Def) (Explore, error) {
	return &PingExplore{base{name: name, kind: PingExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *PingExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	joins, err := e.unnestedJoins(ix)
	if err != nil {
		return nil, err
	}
	return e.finish(&lkml.ExploreFile{
		Explores: []lkml.Explore{{
			Name:         e.name,
			ViewName:     e.views["base_view"],
			AlwaysFilter: e.requiredFilters(ix, "base_view"),
			Joins:        joins,
		}},
	}, ix), nil
}
