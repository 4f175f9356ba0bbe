package explores

import (
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// EventsExploreKind tags the explore over an events view.
const EventsExploreKind = "events_explore"

type EventsExplore struct {
	base
}

func eventsExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Kind() != views.EventsKind {
			continue
		}
		tables := v.Tables()
		if len(tables) == 0 {
			continue
		}
		out = append(out, &EventsExplore{base{
			name: v.Name(),
			kind: EventsExploreKind,
			views: map[string]string{
				"base_view":     "events",
				"extended_view": tables[0].EventsTableView,
			},
		}})
	}
	return out
}

func eventsExploreFromDef(name string, d Def) (Explore, error) {
	return &EventsExplore{base{name: name, kind: EventsExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *EventsExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	joins, err := e.unnestedJoins(ix)
	if err != nil {
		return nil, err
	}

	// the explore surfaces as "event_counts" unless the definition
	// already carries a counts suffix
	name := e.name
	if !strings.HasSuffix(name, "_counts") {
		name = "event_counts"
	}

	explore := lkml.Explore{
		Name:         name,
		ViewName:     e.views["base_view"],
		Description:  "Event counts over time.",
		AlwaysFilter: e.requiredFilters(ix, "extended_view"),
		Joins:        joins,
	}
	if group := e.timePartitioningGroup(ix, e.views["extended_view"]); group != "" {
		dateDimension := group + "_date"
		explore.Queries = []lkml.Query{{
			Name:        "all_event_counts",
			Description: "Event counts from all events over the past two weeks.",
			Dimensions:  []string{dateDimension},
			Measures:    []string{"event_count"},
			Filters:     []lkml.Filter{{Field: dateDimension, Value: "14 days"}},
		}}
	}

	return e.finish(&lkml.ExploreFile{Explores: []lkml.Explore{explore}}, ix), nil
}
