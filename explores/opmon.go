package explores

import (
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// Operational monitoring explores are declared per opmon project in the
// namespace config, carrying the experiment's branches and probes.
const (
	OpMonExploreKind         = "operational_monitoring_explore"
	OpMonAlertingExploreKind = "operational_monitoring_alerting_explore"
)

type OpMonExplore struct {
	base
	branches   []string
	xaxis      string
	dimensions map[string]views.DimensionDefault
	probes     []string
}

func opmonExploreFromDef(name string, d Def) (Explore, error) {
	return &OpMonExplore{
		base:       base{name: name, kind: OpMonExploreKind, views: d.Views, hidden: d.Hidden},
		branches:   d.Branches,
		xaxis:      d.XAxis,
		dimensions: d.Dimensions,
		probes:     d.Probes,
	}, nil
}

func (e *OpMonExplore) Def() Def {
	d := e.base.Def()
	d.Branches = e.branches
	d.XAxis = e.xaxis
	d.Dimensions = e.dimensions
	d.Probes = e.probes
	return d
}

func (e *OpMonExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	baseView := e.views["base_view"]
	branches := strings.Join(e.branches, ", ")

	// shared filters for the per-probe rollups: the branch set, the
	// median percentile and each configured dimension default
	filters := []lkml.Filter{
		{Field: baseView + ".branch", Value: branches},
		{Field: baseView + ".percentile_conf", Value: "50"},
	}
	for _, name := range views.SortedDimensionNames(e.dimensions) {
		if def := e.dimensions[name].Default; def != "" {
			filters = append(filters, lkml.Filter{Field: baseView + "." + name, Value: def})
		}
	}

	var rollups []lkml.AggregateTable
	for _, probe := range e.probes {
		probeFilters := append(append([]lkml.Filter{}, filters...),
			lkml.Filter{Field: baseView + ".probe", Value: probe})
		rollups = append(rollups, lkml.AggregateTable{
			Name:       "rollup_" + probe,
			Dimensions: []string{e.xaxis, "branch"},
			Measures:   []string{"low", "high", "percentile"},
			Filters:    probeFilters,
			// reload at 9am UTC when the ETL should have completed
			SQLTriggerValue: "SELECT CAST(TIMESTAMP_SUB(CURRENT_TIMESTAMP, INTERVAL 9 HOUR) AS DATE)",
		})
	}

	return e.finish(&lkml.ExploreFile{
		Explores: []lkml.Explore{{
			Name:           baseView,
			AlwaysFilter:   []lkml.Filter{{Field: "branch", Value: branches}},
			AggregateTable: rollups,
		}},
	}, ix), nil
}

// OpMonAlertingExplore exposes an opmon alerting view only as a join
// target; the explore itself stays hidden.
type OpMonAlertingExplore struct {
	base
	branches []string
}

func opmonAlertingExploreFromDef(name string, d Def) (Explore, error) {
	return &OpMonAlertingExplore{
		base:     base{name: name, kind: OpMonAlertingExploreKind, views: d.Views, hidden: true},
		branches: d.Branches,
	}, nil
}

func (e *OpMonAlertingExplore) Def() Def {
	d := e.base.Def()
	d.Branches = e.branches
	d.Hidden = false // always hidden, not worth persisting
	return d
}

func (e *OpMonAlertingExplore) LookML(ix *ViewIndex) (*lkml.ExploreFile, error) {
	explore := lkml.Explore{
		Name:     e.name,
		ViewName: e.views["base_view"],
	}
	if len(e.branches) > 0 {
		explore.AlwaysFilter = []lkml.Filter{
			{Field: "branch", Value: strings.Join(e.branches, ", ")},
		}
	}
	return e.finish(&lkml.ExploreFile{Explores: []lkml.Explore{explore}}, ix), nil
}
