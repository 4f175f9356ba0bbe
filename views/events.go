package views

import (
	"context"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
)

// EventsKind tags the one-row-per-event view that extends a generated
// unnested events table view.
const EventsKind = "events_view"

// EventsView layers event counting measures on top of an events table view.
type EventsView struct {
	base
}

func newEventsView(namespace, name string, tables []Table) *EventsView {
	return &EventsView{base{namespace: namespace, name: name, kind: EventsKind, tables: tables}}
}

func eventsFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	dataset := releaseFirst(channels).Dataset
	var out []View
	for _, viewID := range sortedViewIDs(catalog[dataset]) {
		if viewID == "events_unnested" {
			out = append(out, newEventsView(namespace, "events", []Table{{
				EventsTableView: "events_unnested_table",
				BaseTable:       userFacingTable(dataset, viewID),
			}}))
		}
	}
	return out
}

func eventsFromDef(namespace, name string, d Def) (View, error) {
	return newEventsView(namespace, name, d.Tables), nil
}

func (v *EventsView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	table := v.tables[0]

	dims, err := tableDimensions(ctx, env, table.BaseTable)
	if err != nil {
		return nil, err
	}

	measures := []lkml.Measure{{
		Name:        "event_count",
		Type:        "count",
		Description: "The number of times the event(s) occurred.",
	}}
	clientID, err := lookml.ClientIDField(dims, table.BaseTable)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		measures = append(measures, lkml.Measure{
			Name:        "client_count",
			Type:        "count_distinct",
			SQL:         "${" + clientID + "}",
			Description: "The number of clients that completed the event(s).",
		})
	}

	view := lkml.View{
		Name:     v.name,
		Extends:  []string{table.EventsTableView},
		Measures: measures,
	}
	// event_id as primary key enables one_to_many joins.
	for _, d := range dims {
		if d.Name == "event_id" {
			view.Dimensions = []lkml.Dimension{{Name: "event_id", PrimaryKey: true}}
			break
		}
	}

	return &lkml.ViewFile{
		Includes: []string{table.EventsTableView + ".view.lkml"},
		Views:    []lkml.View{view},
	}, nil
}
