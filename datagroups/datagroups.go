// Package datagroups derives Looker cache invalidation triggers from
// the physical tables behind generated table views.
package datagroups

import (
	"context"
	"fmt"
	"log"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/schema"
	"github.com/mozdata/lookgen/views"
)

const defaultMaxCacheAge = "24 hours"

// sourceProjects are the projects whose views the catalog can resolve
// to underlying tables.
var sourceProjects = map[string]bool{
	"moz-fx-data-shared-prod": true,
	"mozdata":                 true,
}

const sqlTriggerTemplate = `
    SELECT MAX(storage_last_modified_time)
    FROM ` + "`%s`.`region-us`" + `.INFORMATION_SCHEMA.TABLE_STORAGE
    WHERE table_schema = '%s'
    AND table_name = '%s'
`

// ForView builds the datagroup of one view, or nil when the view has no
// single resolvable source table. Only table views map cleanly onto a
// physical table; other kinds return nil. Datagroups are named after the
// resolved table, so views over the same table share one datagroup.
func ForView(ctx context.Context, inspector schema.Inspector, catalog views.Catalog, v views.View) (*lkml.Datagroup, error) {
	if v.Kind() != views.TableKind {
		return nil, nil
	}
	tables := v.Tables()
	if len(tables) == 0 {
		return nil, fmt.Errorf("view %q in namespace %q has no source tables", v.Name(), v.Namespace())
	}
	table := tables[0].Table
	for _, t := range tables {
		if t.Channel == "release" {
			table = t.Table
			break
		}
	}

	ref, err := schema.ParseTableRef(table)
	if err != nil {
		return nil, err
	}
	return fromRef(ctx, inspector, catalog, ref)
}

func fromRef(ctx context.Context, inspector schema.Inspector, catalog views.Catalog, ref schema.TableRef) (*lkml.Datagroup, error) {
	info, err := inspector.TableMetadata(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", ref, err)
	}
	switch info.Type {
	case "TABLE":
		return fromTable(ref, info), nil
	case "VIEW":
		return fromView(ctx, inspector, catalog, ref)
	}
	return nil, nil
}

func fromTable(ref schema.TableRef, info *schema.TableInfo) *lkml.Datagroup {
	label := info.FriendlyName
	if label == "" {
		label = ref.Table
	}
	return &lkml.Datagroup{
		Name:        ref.Table + "_last_updated",
		Label:       label + " Last Updated",
		SQLTrigger:  fmt.Sprintf(sqlTriggerTemplate, ref.Project, ref.Dataset, ref.Table),
		Description: fmt.Sprintf("Updates when %s.%s.%s is modified.", ref.Project, ref.Dataset, ref.Table),
		MaxCacheAge: defaultMaxCacheAge,
	}
}

// fromView resolves a view to its single source through the catalog and
// recurses. Views outside the catalog's projects or with zero or
// multiple sources are skipped with a log line; stale cache beats a
// wrong trigger.
func fromView(ctx context.Context, inspector schema.Inspector, catalog views.Catalog, ref schema.TableRef) (*lkml.Datagroup, error) {
	if !sourceProjects[ref.Project] {
		log.Printf("no catalog sources for view %s outside shared-prod/mozdata, skipping datagroup", ref)
		return nil, nil
	}
	dataset, ok := catalog[ref.Dataset]
	if !ok {
		log.Printf("dataset %s not in catalog, skipping datagroup for %s", ref.Dataset, ref)
		return nil, nil
	}
	refs := dataset[ref.Table]
	if len(refs) != 1 {
		log.Printf("view %s has %d sources, skipping datagroup", ref, len(refs))
		return nil, nil
	}
	return fromRef(ctx, inspector, catalog, refs[0])
}
