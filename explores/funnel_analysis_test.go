package explores

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

func funnelIndex(steps int) *ViewIndex {
	ix := NewViewIndex()
	file := &lkml.ViewFile{
		Includes: []string{"events_daily_table.view.lkml"},
		Views: []lkml.View{
			{Name: "funnel_analysis", Extends: []string{"events_daily_table"}},
			{Name: "event_types"},
		},
	}
	for n := 1; n <= steps; n++ {
		file.Views = append(file.Views, lkml.View{Name: fmt.Sprintf("step_%d", n), Extends: []string{"event_types"}})
	}
	file.Views = append(file.Views, lkml.View{Name: "event_names"})
	ix.AddFile("funnel_analysis", file)
	return ix
}

func TestFunnelAnalysisExploreLookML(t *testing.T) {
	ix := funnelIndex(3)
	e, err := FromDef("funnel_analysis", Def{
		Type:  FunnelAnalysisExploreKind,
		Views: map[string]string{"base_view": "funnel_analysis"},
	})
	if err != nil {
		t.Fatalf("FromDef: %v", err)
	}
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	if len(f.Explores) != 2 {
		t.Fatalf("got %d explores, want funnel_analysis + hidden event_names", len(f.Explores))
	}

	want := lkml.Explore{
		Name:         "funnel_analysis",
		ViewName:     "funnel_analysis",
		Description:  "Count funnel completion over time. Funnels are limited to a single day.",
		ViewLabel:    " User-Day Funnels",
		AlwaysFilter: []lkml.Filter{{Field: "submission_date", Value: "14 days"}},
		Joins: []lkml.Join{
			{Name: "step_1", Relationship: "many_to_one", Type: "cross"},
			{Name: "step_2", Relationship: "many_to_one", Type: "cross"},
			{Name: "step_3", Relationship: "many_to_one", Type: "cross"},
		},
		SQLAlwaysWhere: "${funnel_analysis.submission_date} >= '2010-01-01'",
	}
	if !reflect.DeepEqual(f.Explores[0], want) {
		t.Errorf("explore = %+v, want %+v", f.Explores[0], want)
	}

	names := f.Explores[1]
	if names.Name != "event_names" || !names.Hidden {
		t.Errorf("second explore = %+v, want hidden event_names", names)
	}
}

func TestFunnelAnalysisExploresFromViews(t *testing.T) {
	funnel, err := views.FromDef("fenix", "funnel_analysis", views.Def{
		Type:   views.FunnelAnalysisKind,
		Tables: []views.Table{{FunnelBaseView: "events_daily_table", EventTypes: "`mozdata.fenix.event_types`"}},
	})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}
	ping, err := views.FromDef("fenix", "baseline", views.Def{Type: views.PingKind})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}

	out := funnelAnalysisExploresFromViews([]views.View{funnel, ping})
	if len(out) != 1 {
		t.Fatalf("got %d explores, want 1", len(out))
	}
	if out[0].Name() != "funnel_analysis" || out[0].Kind() != FunnelAnalysisExploreKind {
		t.Errorf("got explore %s/%s", out[0].Kind(), out[0].Name())
	}
	want := map[string]string{"base_view": "funnel_analysis"}
	if !reflect.DeepEqual(out[0].Views(), want) {
		t.Errorf("views = %v, want %v", out[0].Views(), want)
	}
}
