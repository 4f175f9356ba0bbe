package explores

import (
	"reflect"
	"testing"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

func TestOpMonExploreLookML(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("fission", &lkml.ViewFile{
		Views: []lkml.View{{
			Name: "fission",
			Dimensions: []lkml.Dimension{
				{Name: "branch"}, {Name: "os"}, {Name: "probe"},
			},
		}},
	})

	e, err := FromDef("fission", Def{
		Type:     OpMonExploreKind,
		Views:    map[string]string{"base_view": "fission"},
		Branches: []string{"enabled", "disabled"},
		XAxis:    "build_id",
		Dimensions: map[string]views.DimensionDefault{
			"os":      {Default: "Windows"},
			"unknown": {},
		},
		Probes: []string{"gc_ms", "memory_total"},
	})
	if err != nil {
		t.Fatalf("FromDef: %v", err)
	}
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}

	got := f.Explores[0]
	if got.Name != "fission" {
		t.Errorf("name = %q", got.Name)
	}
	wantFilter := []lkml.Filter{{Field: "branch", Value: "enabled, disabled"}}
	if !reflect.DeepEqual(got.AlwaysFilter, wantFilter) {
		t.Errorf("always_filter = %+v, want %+v", got.AlwaysFilter, wantFilter)
	}

	if len(got.AggregateTable) != 2 {
		t.Fatalf("got %d aggregate tables, want 2", len(got.AggregateTable))
	}
	want := lkml.AggregateTable{
		Name:       "rollup_gc_ms",
		Dimensions: []string{"build_id", "branch"},
		Measures:   []string{"low", "high", "percentile"},
		Filters: []lkml.Filter{
			{Field: "fission.branch", Value: "enabled, disabled"},
			{Field: "fission.percentile_conf", Value: "50"},
			{Field: "fission.os", Value: "Windows"},
			{Field: "fission.probe", Value: "gc_ms"},
		},
		SQLTriggerValue: "SELECT CAST(TIMESTAMP_SUB(CURRENT_TIMESTAMP, INTERVAL 9 HOUR) AS DATE)",
	}
	if !reflect.DeepEqual(got.AggregateTable[0], want) {
		t.Errorf("rollup = %+v, want %+v", got.AggregateTable[0], want)
	}
	if got.AggregateTable[1].Name != "rollup_memory_total" {
		t.Errorf("second rollup = %q", got.AggregateTable[1].Name)
	}
}

func TestOpMonExplore_DefRoundTrip(t *testing.T) {
	def := Def{
		Type:       OpMonExploreKind,
		Views:      map[string]string{"base_view": "fission"},
		Branches:   []string{"enabled", "disabled"},
		XAxis:      "build_id",
		Dimensions: map[string]views.DimensionDefault{"os": {Default: "Windows"}},
		Probes:     []string{"gc_ms"},
	}
	e, err := FromDef("fission", def)
	if err != nil {
		t.Fatalf("FromDef: %v", err)
	}
	if got := e.Def(); !reflect.DeepEqual(got, def) {
		t.Errorf("Def = %+v, want %+v", got, def)
	}
}

func TestOpMonAlertingExploreLookML(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("fission_alerts", &lkml.ViewFile{
		Views: []lkml.View{{Name: "fission_alerts"}},
	})

	e, err := FromDef("fission_alerts", Def{
		Type:     OpMonAlertingExploreKind,
		Views:    map[string]string{"base_view": "fission_alerts"},
		Branches: []string{"enabled", "disabled"},
	})
	if err != nil {
		t.Fatalf("FromDef: %v", err)
	}
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}

	got := f.Explores[0]
	if !got.Hidden {
		t.Error("alerting explore should always be hidden")
	}
	if got.ViewName != "fission_alerts" {
		t.Errorf("view_name = %q", got.ViewName)
	}
	wantFilter := []lkml.Filter{{Field: "branch", Value: "enabled, disabled"}}
	if !reflect.DeepEqual(got.AlwaysFilter, wantFilter) {
		t.Errorf("always_filter = %+v, want %+v", got.AlwaysFilter, wantFilter)
	}
}

func TestOpMonAlertingExploreLookML_NoBranches(t *testing.T) {
	e, _ := FromDef("fission_alerts", Def{
		Type:  OpMonAlertingExploreKind,
		Views: map[string]string{"base_view": "fission_alerts"},
	})
	f, err := e.LookML(NewViewIndex())
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	if f.Explores[0].AlwaysFilter != nil {
		t.Errorf("always_filter = %+v, want none", f.Explores[0].AlwaysFilter)
	}
}
