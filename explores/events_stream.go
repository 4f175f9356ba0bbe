package explores

import (
	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// EventsStreamExploreKind tags the explore over an events_stream view.
const EventsStreamExploreKind = "events_stream_explore"

type EventsStreamExplore struct {
	base
}

func eventsStreamExploresFromViews(vs []views.View) []Explore {
	var out []Explore
	for _, v := range vs {
		if v.Kind() == views.EventsStreamKind {
			out = append(out, &EventsStreamExplore{base{
				name:  v.Name(),
				kind:  EventsStreamExploreKind,
				views: map[string]string{"base_view": v.Name()},
			}})
		}
	}
	return out
}

func eventsStreamExploreFromDef(name string, d Def) (Explore, error) {
	return &EventsStreamExplore{base{name: name, kind: EventsStreamExploreKind, views: d.Views, hidden: d.Hidden}}, nil
}

func (e *EventsStreamExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	joins, err := e.unnestedJoins(ix)
	if err != nil {
		return nil, err
	}

	explore := lkml.Explore{
		Name:     e.name,
		ViewName: e.views["base_view"],
		Joins:    joins,
		// 7 days instead of the usual 28 to keep large event datasets
		// under query data limits
		AlwaysFilter: []lkml.Filter{{Field: "submission_date", Value: "7 days"}},
		Queries: []lkml.Query{
			{
				Name:        "recent_event_counts",
				Description: "Event counts during the past week.",
				Dimensions:  []string{"event"},
				Measures:    []string{"event_count"},
				Filters:     []lkml.Filter{{Field: "submission_date", Value: "7 days"}},
			},
			{
				Name:        "sampled_recent_event_counts",
				Description: "A 1% sample of event counts during the past week.",
				Dimensions:  []string{"event"},
				Measures:    []string{"event_count"},
				Filters: []lkml.Filter{
					{Field: "submission_date", Value: "7 days"},
					{Field: "sample_id", Value: "[0, 0]"},
				},
			},
		},
	}
	if datagroup, ok := ix.Datagroup(e.views["base_view"]); ok {
		explore.PersistWith = datagroup
	}

	return e.finish(&lkml.ExploreFile{Explores: []lkml.Explore{explore}}, ix), nil
}
