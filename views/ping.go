package views

import (
	"context"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/schema"
)

// PingKind tags views over ping tables: one physical table per channel,
// discovered when a catalog view selects from a single stable table.
const PingKind = "ping_view"

// PingView is a view on a ping table family.
type PingView struct {
	base
}

func newPingView(namespace, name string, tables []Table) *PingView {
	return &PingView{base{namespace: namespace, name: name, kind: PingKind, tables: tables}}
}

func pingFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	// The same logical view accumulates one entry per channel.
	byView := map[string]*tableSet{}
	var order []string
	for _, channel := range channels {
		for _, viewID := range sortedViewIDs(catalog[channel.Dataset]) {
			// Only views selecting from a single ping source table (or a
			// union of same-named per-channel tables) qualify.
			if !singleSourceFrom(catalog[channel.Dataset][viewID], channel.SourceDataset) {
				continue
			}
			if byView[viewID] == nil {
				byView[viewID] = &tableSet{}
				order = append(order, viewID)
			}
			byView[viewID].add(Table{
				Table:   userFacingTable(channel.Dataset, viewID),
				Channel: channel.Channel,
			})
		}
	}

	var out []View
	for _, viewID := range order {
		out = append(out, newPingView(namespace, viewID, byView[viewID].tables))
	}
	return out
}

func pingFromDef(namespace, name string, d Def) (View, error) {
	return newPingView(namespace, name, d.Tables), nil
}

// LookML renders the ping view: flattened dimensions with document_id
// promoted to primary key, synthesized measures, nested child views and
// a channel filter when several channel tables exist.
func (v *PingView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	table := v.schemaTable()

	all, err := tableDimensions(ctx, env, table)
	if err != nil {
		return nil, err
	}
	dims, groups := lookml.SplitGroups(all)
	for i := range dims {
		if dims[i].Name == "document_id" {
			// Join key for one-to-many event joins.
			dims[i].PrimaryKey = true
		}
	}

	measures, err := lookml.DefaultMeasures(all, table)
	if err != nil {
		return nil, err
	}

	fields, err := tableFields(ctx, env, table)
	if err != nil {
		return nil, err
	}

	view := lkml.View{
		Name:            v.name,
		SQLTableName:    "`" + table + "`",
		Dimensions:      dims,
		DimensionGroups: groups,
		Measures:        measures,
	}

	if channels := channelSuggestions(v.tables); len(channels) > 1 {
		view.Filters = []lkml.FilterParameter{{
			Name:         "channel",
			Type:         "string",
			Description:  "Filter by the app's channel",
			DefaultValue: channels[0],
			Suggestions:  channels,
			SQL:          "{% condition %} ${TABLE}.normalized_channel {% endcondition %}",
		}}
	}

	return &lkml.ViewFile{
		Views: append([]lkml.View{view}, lookml.NestedViews(fields, v.name)...),
	}, nil
}

// singleSourceFrom reports whether refs name exactly one distinct table
// and at least one of them lives in sourceDataset.
func singleSourceFrom(refs []schema.TableRef, sourceDataset string) bool {
	if len(refs) == 0 {
		return false
	}
	names := map[string]bool{}
	datasets := map[string]bool{}
	for _, r := range refs {
		names[r.Table] = true
		datasets[r.Dataset] = true
	}
	return len(names) == 1 && datasets[sourceDataset]
}

// channelSuggestions returns the distinct channel labels in table order.
func channelSuggestions(tables []Table) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tables {
		if t.Channel == "" || seen[t.Channel] {
			continue
		}
		seen[t.Channel] = true
		out = append(out, t.Channel)
	}
	return out
}
