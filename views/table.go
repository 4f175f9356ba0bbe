package views

import (
	"context"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
)

// TableKind tags views over arbitrary tables: no synthesized measures,
// and repeated record fields become separate nested child views.
const TableKind = "table_view"

// TableView is a measure-less view on any table.
type TableView struct {
	base
}

func newTableView(namespace, name string, tables []Table) *TableView {
	return &TableView{base{namespace: namespace, name: name, kind: TableKind, tables: tables}}
}

func tableFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	byView := map[string]*tableSet{}
	var order []string
	for _, channel := range channels {
		for _, viewID := range sortedViewIDs(catalog[channel.Dataset]) {
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
		out = append(out, newTableView(namespace, viewID+"_table", byView[viewID].tables))
	}
	return out
}

func tableFromDef(namespace, name string, d Def) (View, error) {
	return newTableView(namespace, name, d.Tables), nil
}

// LookML renders the table view. With several channel tables the source
// table is parameterized behind a channel selector instead of emitting
// one view per channel.
func (v *TableView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	table := v.schemaTable()

	all, err := tableDimensions(ctx, env, table)
	if err != nil {
		return nil, err
	}
	dims, groups := lookml.SplitGroups(all)

	fields, err := tableFields(ctx, env, table)
	if err != nil {
		return nil, err
	}

	view := lkml.View{
		Name:            v.name,
		Dimensions:      dims,
		DimensionGroups: groups,
	}

	if len(v.tables) > 1 {
		allowed := make([]lkml.AllowedValue, 0, len(v.tables))
		for _, t := range v.tables {
			allowed = append(allowed, lkml.AllowedValue{
				Label: lookml.SlugToTitle(t.Channel),
				Value: t.Table,
			})
		}
		view.Parameters = []lkml.Parameter{{
			Name:          "channel",
			Type:          "unquoted",
			DefaultValue:  table,
			AllowedValues: allowed,
		}}
		view.SQLTableName = "`{% parameter channel %}`"
	} else {
		view.SQLTableName = "`" + table + "`"
	}

	return &lkml.ViewFile{
		Views: append([]lkml.View{view}, lookml.NestedViews(fields, v.name)...),
	}, nil
}
