package views

import (
	"context"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
)

// GrowthAccountingKind tags the week-over-week retention view built on a
// clients-last-seen table.
const GrowthAccountingKind = "growth_accounting_view"

const defaultIdentifierField = "client_id"

// growthAccountingSourceView is the catalog view that triggers discovery.
const growthAccountingSourceView = "baseline_clients_last_seen"

// GrowthAccountingView augments a last-seen table with the fixed growth
// accounting dimensions and measures.
type GrowthAccountingView struct {
	base
	identifierField string
}

func newGrowthAccountingView(namespace string, tables []Table, identifierField string) *GrowthAccountingView {
	if identifierField == "" {
		identifierField = defaultIdentifierField
	}
	return &GrowthAccountingView{
		base:            base{namespace: namespace, name: "growth_accounting", kind: GrowthAccountingKind, tables: tables},
		identifierField: identifierField,
	}
}

func growthAccountingFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	dataset := releaseFirst(channels).Dataset
	var out []View
	for _, viewID := range sortedViewIDs(catalog[dataset]) {
		if viewID == growthAccountingSourceView {
			out = append(out, newGrowthAccountingView(namespace,
				[]Table{{Table: userFacingTable(dataset, viewID)}}, defaultIdentifierField))
		}
	}
	return out
}

func growthAccountingFromDef(namespace, name string, d Def) (View, error) {
	return newGrowthAccountingView(namespace, d.Tables, d.IdentifierField), nil
}

// Def includes the identifier field when it differs from the default.
func (v *GrowthAccountingView) Def() Def {
	d := v.base.Def()
	if v.identifierField != defaultIdentifierField {
		d.IdentifierField = v.identifierField
	}
	return d
}

// LookML renders the table's flattened schema plus the growth accounting
// framework fields.
func (v *GrowthAccountingView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	if err := v.requireTables(); err != nil {
		return nil, err
	}
	table := v.tables[0].Table

	all, err := tableDimensions(ctx, env, table)
	if err != nil {
		return nil, err
	}
	all = append(all, growthAccountingDimensions(v.identifierField)...)
	dims, groups := lookml.SplitGroups(all)

	return &lkml.ViewFile{
		Views: []lkml.View{{
			Name:            v.name,
			SQLTableName:    "`" + table + "`",
			Dimensions:      dims,
			DimensionGroups: groups,
			Measures:        growthAccountingMeasures(),
		}},
	}, nil
}

// growthAccountingDimensions returns the hidden activity flags the
// measures filter on. A fresh slice is built per render.
func growthAccountingDimensions(identifierField string) []lkml.Dimension {
	return []lkml.Dimension{
		{
			Name:   "active_this_week",
			Type:   "yesno",
			Hidden: true,
			SQL:    "mozfun.bits28.active_in_range(days_seen_bits, -6, 7)",
		},
		{
			Name:   "active_last_week",
			Type:   "yesno",
			Hidden: true,
			SQL:    "mozfun.bits28.active_in_range(days_seen_bits, -13, 7)",
		},
		{
			Name:   "new_this_week",
			Type:   "yesno",
			Hidden: true,
			SQL:    "DATE_DIFF(${submission_date}, first_run_date, DAY) BETWEEN 0 AND 6",
		},
		{
			Name:   "new_last_week",
			Type:   "yesno",
			Hidden: true,
			SQL:    "DATE_DIFF(${submission_date}, first_run_date, DAY) BETWEEN 7 AND 13",
		},
		{
			Name:       identifierField + "_day",
			Type:       "string",
			Hidden:     true,
			PrimaryKey: true,
			SQL:        "CONCAT(CAST(${TABLE}.submission_date AS STRING), ${" + identifierField + "})",
		},
	}
}

// growthAccountingMeasures returns the framework measures in dependency
// order: later formulas reference earlier measures by name.
func growthAccountingMeasures() []lkml.Measure {
	return []lkml.Measure{
		{
			Name:    "overall_active_previous",
			Type:    "count",
			Filters: []lkml.Filter{{Field: "active_last_week", Value: "yes"}},
		},
		{
			Name:    "overall_active_current",
			Type:    "count",
			Filters: []lkml.Filter{{Field: "active_this_week", Value: "yes"}},
		},
		{
			Name: "overall_resurrected",
			Type: "count",
			Filters: []lkml.Filter{
				{Field: "new_last_week", Value: "no"},
				{Field: "new_this_week", Value: "no"},
				{Field: "active_last_week", Value: "no"},
				{Field: "active_this_week", Value: "yes"},
			},
		},
		{
			Name: "new_users",
			Type: "count",
			Filters: []lkml.Filter{
				{Field: "new_this_week", Value: "yes"},
				{Field: "active_this_week", Value: "yes"},
			},
		},
		{
			Name: "established_users_returning",
			Type: "count",
			Filters: []lkml.Filter{
				{Field: "new_last_week", Value: "no"},
				{Field: "new_this_week", Value: "no"},
				{Field: "active_last_week", Value: "yes"},
				{Field: "active_this_week", Value: "yes"},
			},
		},
		{
			Name: "new_users_returning",
			Type: "count",
			Filters: []lkml.Filter{
				{Field: "new_last_week", Value: "yes"},
				{Field: "active_last_week", Value: "yes"},
				{Field: "active_this_week", Value: "yes"},
			},
		},
		{
			Name: "new_users_churned_count",
			Type: "count",
			Filters: []lkml.Filter{
				{Field: "new_last_week", Value: "yes"},
				{Field: "active_last_week", Value: "yes"},
				{Field: "active_this_week", Value: "no"},
			},
		},
		{
			Name: "established_users_churned_count",
			Type: "count",
			Filters: []lkml.Filter{
				{Field: "new_last_week", Value: "no"},
				{Field: "new_this_week", Value: "no"},
				{Field: "active_last_week", Value: "yes"},
				{Field: "active_this_week", Value: "no"},
			},
		},
		{
			Name: "new_users_churned",
			Type: "number",
			SQL:  "-1 * ${new_users_churned_count}",
		},
		{
			Name: "established_users_churned",
			Type: "number",
			SQL:  "-1 * ${established_users_churned_count}",
		},
		{
			Name: "overall_churned",
			Type: "number",
			SQL:  "${new_users_churned} + ${established_users_churned}",
		},
		{
			Name: "overall_retention_rate",
			Type: "number",
			SQL: "SAFE_DIVIDE(" +
				"(${established_users_returning} + ${new_users_returning})," +
				"${overall_active_previous}" +
				")",
		},
		{
			Name: "established_user_retention_rate",
			Type: "number",
			SQL: "SAFE_DIVIDE(" +
				"${established_users_returning}," +
				"(${established_users_returning} + ${established_users_churned_count})" +
				")",
		},
		{
			Name: "new_user_retention_rate",
			Type: "number",
			SQL: "SAFE_DIVIDE(" +
				"${new_users_returning}," +
				"(${new_users_returning} + ${new_users_churned_count})" +
				")",
		},
		{
			Name: "overall_churn_rate",
			Type: "number",
			SQL: "SAFE_DIVIDE(" +
				"(${established_users_churned_count} + ${new_users_churned_count})," +
				"${overall_active_previous}" +
				")",
		},
		{
			Name: "fraction_of_active_resurrected",
			Type: "number",
			SQL:  "SAFE_DIVIDE(${overall_resurrected}, ${overall_active_current})",
		},
		{
			Name: "fraction_of_active_new",
			Type: "number",
			SQL:  "SAFE_DIVIDE(${new_users}, ${overall_active_current})",
		},
		{
			Name: "fraction_of_active_established_returning",
			Type: "number",
			SQL: "SAFE_DIVIDE(" +
				"${established_users_returning}," +
				"${overall_active_current}" +
				")",
		},
		{
			Name: "fraction_of_active_new_returning",
			Type: "number",
			SQL:  "SAFE_DIVIDE(${new_users_returning}, ${overall_active_current})",
		},
		{
			Name: "quick_ratio",
			Type: "number",
			SQL: "SAFE_DIVIDE(" +
				"${new_users} + ${overall_resurrected}," +
				"${established_users_churned_count} + ${new_users_churned_count}" +
				")",
		},
	}
}
