package views

import (
	"context"
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
)

// EventsStreamKind tags the one-row-per-event view over an events_stream
// table. Unlike EventsKind it carries the full flattened schema itself.
const EventsStreamKind = "events_stream_view"

type EventsStreamView struct {
	base
}

func newEventsStreamView(namespace, name string, tables []Table) *EventsStreamView {
	return &EventsStreamView{base{namespace: namespace, name: name, kind: EventsStreamKind, tables: tables}}
}

func eventsStreamFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	var out []View
	// events_stream views live in the dataset named after the namespace,
	// not in the per-channel datasets.
	for _, viewID := range sortedViewIDs(catalog[namespace]) {
		if strings.HasSuffix(viewID, "events_stream") {
			out = append(out, newEventsStreamView(namespace, viewID,
				[]Table{{Table: userFacingTable(namespace, viewID)}}))
		}
	}
	return out
}

func eventsStreamFromDef(namespace, name string, d Def) (View, error) {
	return newEventsStreamView(namespace, name, d.Tables), nil
}

func (v *EventsStreamView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	table := v.tables[0].Table

	all, err := tableDimensions(ctx, env, table)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == "event_id" {
			all[i].PrimaryKey = true
		}
	}
	dims, groups := lookml.SplitGroups(all)

	measures, err := v.measures(all, table)
	if err != nil {
		return nil, err
	}

	return &lkml.ViewFile{
		Views: []lkml.View{{
			Name:            v.name,
			SQLTableName:    "`" + table + "`",
			Dimensions:      dims,
			DimensionGroups: groups,
			Measures:        measures,
		}},
	}, nil
}

func (v *EventsStreamView) measures(dims []lkml.Dimension, table string) ([]lkml.Measure, error) {
	measures := []lkml.Measure{
		{
			Name:        "event_count",
			Type:        "count",
			Description: "The number of times the event(s) occurred.",
		},
		// Hidden alias kept for dashboards built against the older
		// per-ping views.
		{
			Name:   "ping_count",
			Type:   "count",
			Hidden: true,
		},
	}
	clientID, err := lookml.ClientIDField(dims, table)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		measures = append(measures,
			lkml.Measure{
				Name:        "client_count",
				Type:        "count_distinct",
				SQL:         "${" + clientID + "}",
				Description: "The number of clients that completed the event(s).",
			},
			lkml.Measure{
				Name:   "clients",
				Type:   "count_distinct",
				SQL:    "${" + clientID + "}",
				Hidden: true,
			},
		)
	}
	return measures, nil
}
