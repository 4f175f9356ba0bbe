package explores

import (
	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// TableExploreKind tags explores over generated table views. Discovery
// is allow-listed to keep the explore surface small; most table views
// exist only as extension targets.
const TableExploreKind = "table_explore"

var tableExploreAllowedViews = map[string]bool{
	"events_stream_table": true,
}

type TableExplore struct {
	base
}

func tableExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Kind() == views.TableKind && tableExploreAllowedViews[v.Name()] {
			out = append(out, &TableExplore{base{
				name:  v.Name(),
				kind:  TableExploreKind,
				views: map[string]string{"base_view": v.Name()},
			}})
		}
	}
	return out
}

func tableExploreFromDef(name string, d Def) (Explore, error) {
	return &TableExplore{base{name: name, kind: TableExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *TableExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	joins, err := e.unnestedJoins(ix)
	if err != nil {
		return nil, err
	}
	explore := lkml.Explore{
		Name:         e.name,
		ViewName:     e.views["base_view"],
		AlwaysFilter: e.requiredFilters(ix, "base_view"),
		Joins:        joins,
	}
	if datagroup, ok := ix.Datagroup(e.views["base_view"]); ok {
		explore.PersistWith = datagroup
	}
	return e.finish(&lkml.ExploreFile{Explores: []lkml.Explore{explore}}, ix), nil
}
