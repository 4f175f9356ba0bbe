package views

import (
	"context"
	"strings"

	"github.com/mozdata/lookgen/lkml"
)

// ClientCountsKind tags the cohort analysis view layered on top of a daily
// clients table view.
const ClientCountsKind = "client_counts_view"

// ClientCountsView extends a generated table view with cohort dimensions
// and a distinct client count measure. It never queries BigQuery itself.
type ClientCountsView struct {
	base
}

func newClientCountsView(namespace, name string, tables []Table) *ClientCountsView {
	return &ClientCountsView{base{namespace: namespace, name: name, kind: ClientCountsKind, tables: tables}}
}

func clientCountsFromCatalog(namespace string, channels []Channel, catalog Catalog) []View {
	dataset := releaseFirst(channels).Dataset
	var out []View
	for _, viewID := range sortedViewIDs(catalog[dataset]) {
		if viewID == "baseline_clients_daily" || viewID == "clients_daily" {
			out = append(out, newClientCountsView(namespace, "client_counts",
				[]Table{{Table: userFacingTable(dataset, viewID)}}))
		}
	}
	return out
}

func clientCountsFromDef(namespace, name string, d Def) (View, error) {
	return newClientCountsView(namespace, name, d.Tables), nil
}

func (v *ClientCountsView) LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error) {
	baseView := "baseline_clients_daily_table"
	if len(v.tables) > 0 && v.tables[0].Table != "" {
		parts := strings.Split(v.tables[0].Table, ".")
		baseView = parts[len(parts)-1] + "_table"
	}

	return &lkml.ViewFile{
		Includes: []string{baseView + ".view.lkml"},
		Views: []lkml.View{{
			Name:    v.name,
			Extends: []string{baseView},
			Dimensions: []lkml.Dimension{{
				Name: "have_completed_period",
				Type: "yesno",
				Description: "Only for use with cohort analysis. " +
					"Filter on true to remove the tail of incomplete data from cohorts. " +
					"Indicates whether the cohort for this row have all had a chance to complete this interval. " +
					"For example, new clients from yesterday have not all had a chance to send a ping for today.",
				SQL: haveCompletedPeriodSQL,
			}},
			DimensionGroups: []lkml.Dimension{{
				Name:        "since_first_seen",
				Type:        "duration",
				Description: "Amount of time that has passed since the client was first seen.",
				SQLStart:    "CAST(${TABLE}.first_seen_date AS TIMESTAMP)",
				SQLEnd:      "CAST(${TABLE}.submission_date AS TIMESTAMP)",
				Intervals:   []string{"day", "week", "month", "year"},
			}},
			Measures: []lkml.Measure{{
				Name: "client_count",
				Type: "number",
				Description: "The number of clients, " +
					"determined by whether they sent a baseline ping on the day in question.",
				SQL: "COUNT(DISTINCT ${TABLE}.client_id)",
			}},
		}},
	}, nil
}

// haveCompletedPeriodSQL checks, per selected cohort granularity, whether the
// row's interval has fully elapsed. The liquid branches mirror the intervals
// of the since_first_seen dimension group.
const haveCompletedPeriodSQL = `
  DATE_ADD(
    {% if client_counts.first_seen_date._is_selected %}
      DATE_ADD(DATE(${client_counts.first_seen_date}), INTERVAL 1 DAY)
    {% elsif client_counts.first_seen_week._is_selected %}
      DATE_ADD(DATE(${client_counts.first_seen_week}), INTERVAL 1 WEEK)
    {% elsif client_counts.first_seen_month._is_selected %}
      DATE_ADD(PARSE_DATE('%Y-%m', ${client_counts.first_seen_month}), INTERVAL 1 MONTH)
    {% elsif client_counts.first_seen_year._is_selected %}
      DATE_ADD(DATE(${client_counts.first_seen_year}, 1, 1), INTERVAL 1 YEAR)
    {% endif %}
    ,
    {% if client_counts.days_since_first_seen._is_selected %}
      INTERVAL CAST(${client_counts.days_since_first_seen} AS INT64) DAY
    {% elsif client_counts.weeks_since_first_seen._is_selected %}
      INTERVAL CAST(${client_counts.weeks_since_first_seen} AS INT64) WEEK
    {% elsif client_counts.months_since_first_seen._is_selected %}
      INTERVAL CAST(${client_counts.months_since_first_seen} AS INT64) MONTH
    {% elsif client_counts.years_since_first_seen._is_selected %}
      INTERVAL CAST(${client_counts.years_since_first_seen} AS INT64) YEAR
    {% endif %}
  ) < current_date`
