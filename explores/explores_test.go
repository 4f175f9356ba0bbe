package explores

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/views"
)

// baselineIndex builds a ViewIndex holding a rendered multi-channel ping
// view with one nested child, the shape most explores join against.
func baselineIndex() *ViewIndex {
	ix := NewViewIndex()
	ix.AddFile("baseline", &lkml.ViewFile{
		Views: []lkml.View{
			{
				Name: "baseline",
				Filters: []lkml.FilterParameter{
					{Name: "channel", Type: "string", Suggestions: []string{"release", "beta"}},
				},
				Dimensions: []lkml.Dimension{
					{Name: "client_id", Hidden: true},
					{Name: "document_id", PrimaryKey: true},
				},
				DimensionGroups: []lkml.Dimension{
					{Name: "submission", Type: "time", Timeframes: []string{"raw", "date"}},
				},
			},
			{Name: "baseline__experiments"},
		},
	})
	return ix
}

func TestPingExploreLookML(t *testing.T) {
	ix := baselineIndex()
	e, err := FromDef("baseline", Def{
		Type:  PingExploreKind,
		Views: map[string]string{"base_view": "baseline"},
	})
	if err != nil {
		t.Fatalf("FromDef: %v", err)
	}
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}

	want := lkml.Explore{
		Name:     "baseline",
		ViewName: "baseline",
		AlwaysFilter: []lkml.Filter{
			{Field: "channel", Value: "release"},
			{Field: "submission_date", Value: "28 days"},
		},
		SQLAlwaysWhere: "${baseline.submission_date} >= '2010-01-01'",
		Joins: []lkml.Join{
			{
				Name:         "baseline__experiments",
				ViewLabel:    "Baseline  Experiments",
				Relationship: "one_to_many",
				SQL:          "LEFT JOIN UNNEST(${baseline.experiments}) AS baseline__experiments",
			},
		},
	}
	if len(f.Explores) != 1 {
		t.Fatalf("got %d explores, want 1", len(f.Explores))
	}
	if !reflect.DeepEqual(f.Explores[0], want) {
		t.Errorf("explore = %+v, want %+v", f.Explores[0], want)
	}
}

func TestPingExploreLookML_EscapedChannel(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("metrics", &lkml.ViewFile{
		Views: []lkml.View{{
			Name: "metrics",
			Filters: []lkml.FilterParameter{
				{Name: "channel", Suggestions: []string{"esr_115", "release"}},
			},
		}},
	})
	e, _ := FromDef("metrics", Def{Type: PingExploreKind, Views: map[string]string{"base_view": "metrics"}})
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	want := []lkml.Filter{{Field: "channel", Value: "esr^_115"}}
	if !reflect.DeepEqual(f.Explores[0].AlwaysFilter, want) {
		t.Errorf("always_filter = %+v, want %+v", f.Explores[0].AlwaysFilter, want)
	}
	if f.Explores[0].SQLAlwaysWhere != "" {
		t.Errorf("sql_always_where = %q, want empty for view without time partitioning", f.Explores[0].SQLAlwaysWhere)
	}
}

func TestPingExploreLookML_Hidden(t *testing.T) {
	ix := baselineIndex()
	e, _ := FromDef("baseline", Def{
		Type:   PingExploreKind,
		Views:  map[string]string{"base_view": "baseline"},
		Hidden: true,
	})
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	if !f.Explores[0].Hidden {
		t.Error("explore should be hidden")
	}
}

func TestPingExploresFromViews(t *testing.T) {
	ping, err := views.FromDef("glean_app", "baseline", views.Def{Type: views.PingKind})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}
	table, err := views.FromDef("glean_app", "baseline_table", views.Def{Type: views.TableKind})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}

	out := pingExploresFromViews([]views.View{ping, table})
	if len(out) != 1 {
		t.Fatalf("got %d explores, want 1", len(out))
	}
	if out[0].Name() != "baseline" || out[0].Kind() != PingExploreKind {
		t.Errorf("got explore %s/%s", out[0].Kind(), out[0].Name())
	}
	want := map[string]string{"base_view": "baseline"}
	if !reflect.DeepEqual(out[0].Views(), want) {
		t.Errorf("views = %v, want %v", out[0].Views(), want)
	}
}

func TestSplitNestedViewName(t *testing.T) {
	known := []string{"main", "main__events"}
	tests := []struct {
		viewName string
		base     string
		metric   string
		wantErr  bool
	}{
		{viewName: "main__events", base: "main", metric: "events"},
		{viewName: "main__events__extra", base: "main__events", metric: "extra"},
		{viewName: "main__payload__processes", base: "main", metric: "payload__processes"},
		{viewName: "orphan__field", wantErr: true},
	}
	for _, tt := range tests {
		base, metric, err := splitNestedViewName(tt.viewName, known)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.viewName)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.viewName, err)
			continue
		}
		if base != tt.base || metric != tt.metric {
			t.Errorf("%s: got (%s, %s), want (%s, %s)", tt.viewName, base, metric, tt.base, tt.metric)
		}
	}
}

func TestDependentViews(t *testing.T) {
	e := &PingExplore{base{
		name: "baseline",
		kind: PingExploreKind,
		views: map[string]string{
			"base_view":     "baseline",
			"extended_view": "baseline_table",
			"joined_view":   "events",
		},
	}}
	want := []string{"baseline", "events"}
	if got := e.DependentViews(NewViewIndex()); !reflect.DeepEqual(got, want) {
		t.Errorf("DependentViews = %v, want %v", got, want)
	}
}

func TestEventsExploreLookML(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("events", &lkml.ViewFile{
		Views: []lkml.View{{Name: "events", Extends: []string{"events_unnested_table"}}},
	})
	ix.AddFile("events_unnested_table", &lkml.ViewFile{
		Views: []lkml.View{
			{
				Name: "events_unnested_table",
				Filters: []lkml.FilterParameter{
					{Name: "channel", Suggestions: []string{"release"}},
				},
				DimensionGroups: []lkml.Dimension{
					{Name: "submission", Type: "time"},
				},
			},
			{Name: "events_unnested_table__extra"},
		},
	})

	e, _ := FromDef("events", Def{
		Type: EventsExploreKind,
		Views: map[string]string{
			"base_view":     "events",
			"extended_view": "events_unnested_table",
		},
	})
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}

	got := f.Explores[0]
	if got.Name != "event_counts" {
		t.Errorf("name = %q, want event_counts", got.Name)
	}
	if got.ViewName != "events" {
		t.Errorf("view_name = %q, want events", got.ViewName)
	}
	wantFilter := []lkml.Filter{
		{Field: "channel", Value: "release"},
		{Field: "submission_date", Value: "28 days"},
	}
	if !reflect.DeepEqual(got.AlwaysFilter, wantFilter) {
		t.Errorf("always_filter = %+v, want %+v", got.AlwaysFilter, wantFilter)
	}
	if got.SQLAlwaysWhere != "${events.submission_date} >= '2010-01-01'" {
		t.Errorf("sql_always_where = %q", got.SQLAlwaysWhere)
	}
	wantQueries := []lkml.Query{{
		Name:        "all_event_counts",
		Description: "Event counts from all events over the past two weeks.",
		Dimensions:  []string{"submission_date"},
		Measures:    []string{"event_count"},
		Filters:     []lkml.Filter{{Field: "submission_date", Value: "14 days"}},
	}}
	if !reflect.DeepEqual(got.Queries, wantQueries) {
		t.Errorf("queries = %+v, want %+v", got.Queries, wantQueries)
	}
	// the extended view's child joins back against the extending view
	wantJoins := []lkml.Join{{
		Name:         "events_unnested_table__extra",
		ViewLabel:    "Events  Extra",
		Relationship: "one_to_many",
		SQL:          "LEFT JOIN UNNEST(${events.extra}) AS events_unnested_table__extra",
	}}
	if !reflect.DeepEqual(got.Joins, wantJoins) {
		t.Errorf("joins = %+v, want %+v", got.Joins, wantJoins)
	}
}

func TestEventsExploresFromViews(t *testing.T) {
	events, err := views.FromDef("glean_app", "events", views.Def{
		Type: views.EventsKind,
		Tables: []views.Table{{
			EventsTableView: "events_unnested_table",
			Table:           "mozdata.glean_app.events_unnested",
		}},
	})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}
	out := eventsExploresFromViews([]views.View{events})
	if len(out) != 1 {
		t.Fatalf("got %d explores, want 1", len(out))
	}
	want := map[string]string{
		"base_view":     "events",
		"extended_view": "events_unnested_table",
	}
	if !reflect.DeepEqual(out[0].Views(), want) {
		t.Errorf("views = %v, want %v", out[0].Views(), want)
	}
}

func clientCountsIndex(withAppBuild bool) *ViewIndex {
	table := lkml.View{
		Name: "baseline_clients_daily_table",
		Filters: []lkml.FilterParameter{
			{Name: "channel", Suggestions: []string{"release", "beta"}},
		},
		DimensionGroups: []lkml.Dimension{
			{Name: "first_seen", Type: "time"},
			{Name: "submission", Type: "time"},
		},
	}
	if withAppBuild {
		table.Dimensions = []lkml.Dimension{{Name: "app_build"}}
	}
	ix := NewViewIndex()
	ix.AddFile("client_counts", &lkml.ViewFile{
		Views: []lkml.View{{Name: "client_counts", Extends: []string{"baseline_clients_daily_table"}}},
	})
	ix.AddFile("baseline_clients_daily_table", &lkml.ViewFile{Views: []lkml.View{table}})
	return ix
}

func TestClientCountsExploreLookML(t *testing.T) {
	e, _ := FromDef("client_counts", Def{
		Type: ClientCountsExploreKind,
		Views: map[string]string{
			"base_view":     "client_counts",
			"extended_view": "baseline_clients_daily_table",
		},
	})
	f, err := e.LookML(clientCountsIndex(true))
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}

	got := f.Explores[0]
	wantFilter := []lkml.Filter{
		{Field: "channel", Value: "release"},
		{Field: "submission_date", Value: "28 days"},
	}
	if !reflect.DeepEqual(got.AlwaysFilter, wantFilter) {
		t.Errorf("always_filter = %+v, want %+v", got.AlwaysFilter, wantFilter)
	}
	if got.SQLAlwaysWhere != "${client_counts.submission_date} >= '2010-01-01'" {
		t.Errorf("sql_always_where = %q", got.SQLAlwaysWhere)
	}
	wantQueries := []lkml.Query{
		{
			Name:        "cohort_analysis",
			Description: "Client Counts of weekly cohorts over the past N days.",
			Dimensions:  []string{"days_since_first_seen", "first_seen_week"},
			Measures:    []string{"client_count"},
			Pivots:      []string{"first_seen_week"},
			Filters: []lkml.Filter{
				{Field: "submission_date", Value: "8 weeks"},
				{Field: "first_seen_date", Value: "8 weeks"},
				{Field: "have_completed_period", Value: "yes"},
			},
			Sorts: []lkml.Filter{{Field: "days_since_first_seen", Value: "asc"}},
		},
		{
			Name:        "build_breakdown",
			Description: "Number of clients per build.",
			Dimensions:  []string{"submission_date", "app_build"},
			Measures:    []string{"client_count"},
			Pivots:      []string{"app_build"},
			Sorts:       []lkml.Filter{{Field: "submission_date", Value: "asc"}},
		},
	}
	if !reflect.DeepEqual(got.Queries, wantQueries) {
		t.Errorf("queries = %+v, want %+v", got.Queries, wantQueries)
	}
}

func TestClientCountsExploreLookML_NoAppBuild(t *testing.T) {
	e, _ := FromDef("client_counts", Def{
		Type: ClientCountsExploreKind,
		Views: map[string]string{
			"base_view":     "client_counts",
			"extended_view": "baseline_clients_daily_table",
		},
	})
	f, err := e.LookML(clientCountsIndex(false))
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	got := f.Explores[0]
	if len(got.Queries) != 1 || got.Queries[0].Name != "cohort_analysis" {
		t.Errorf("queries = %+v, want only cohort_analysis", got.Queries)
	}
}

func TestTableExploreLookML_PersistWith(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("events_stream_table", &lkml.ViewFile{
		Views: []lkml.View{{
			Name: "events_stream_table",
			DimensionGroups: []lkml.Dimension{
				{Name: "submission", Type: "time"},
			},
		}},
	})

	e, _ := FromDef("events_stream_table", Def{
		Type:  TableExploreKind,
		Views: map[string]string{"base_view": "events_stream_table"},
	})

	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	if f.Explores[0].PersistWith != "" {
		t.Errorf("persist_with = %q, want empty without a datagroup", f.Explores[0].PersistWith)
	}

	ix.AddDatagroup("events_stream_table", "events_stream_v1_last_updated")
	f, err = e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}
	if f.Explores[0].PersistWith != "events_stream_v1_last_updated" {
		t.Errorf("persist_with = %q, want events_stream_v1_last_updated", f.Explores[0].PersistWith)
	}
}

func TestTableExploresFromViews_AllowList(t *testing.T) {
	stream, err := views.FromDef("glean_app", "events_stream_table", views.Def{Type: views.TableKind})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}
	daily, err := views.FromDef("glean_app", "baseline_clients_daily_table", views.Def{Type: views.TableKind})
	if err != nil {
		t.Fatalf("views.FromDef: %v", err)
	}
	out := tableExploresFromViews([]views.View{stream, daily})
	if len(out) != 1 || out[0].Name() != "events_stream_table" {
		t.Fatalf("got %d explores %+v, want only events_stream_table", len(out), out)
	}
}

func TestEventsStreamExploreLookML(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("events_stream", &lkml.ViewFile{
		Views: []lkml.View{{
			Name: "events_stream",
			DimensionGroups: []lkml.Dimension{
				{Name: "submission", Type: "time"},
			},
		}},
	})
	ix.AddDatagroup("events_stream", "events_stream_v1_last_updated")

	e, _ := FromDef("events_stream", Def{
		Type:  EventsStreamExploreKind,
		Views: map[string]string{"base_view": "events_stream"},
	})
	f, err := e.LookML(ix)
	if err != nil {
		t.Fatalf("LookML: %v", err)
	}

	got := f.Explores[0]
	if got.PersistWith != "events_stream_v1_last_updated" {
		t.Errorf("persist_with = %q", got.PersistWith)
	}
	wantFilter := []lkml.Filter{{Field: "submission_date", Value: "7 days"}}
	if !reflect.DeepEqual(got.AlwaysFilter, wantFilter) {
		t.Errorf("always_filter = %+v, want %+v", got.AlwaysFilter, wantFilter)
	}
	var names []string
	for _, q := range got.Queries {
		names = append(names, q.Name)
	}
	wantNames := []string{"recent_event_counts", "sampled_recent_event_counts"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("queries = %v, want %v", names, wantNames)
	}
	sampled := got.Queries[1]
	wantSampled := []lkml.Filter{
		{Field: "submission_date", Value: "7 days"},
		{Field: "sample_id", Value: "[0, 0]"},
	}
	if !reflect.DeepEqual(sampled.Filters, wantSampled) {
		t.Errorf("sampled filters = %+v, want %+v", sampled.Filters, wantSampled)
	}
}

func TestFromDef_UnknownType(t *testing.T) {
	_, err := FromDef("bogus", Def{Type: "heatmap_explore"})
	if err == nil || !strings.Contains(err.Error(), "unknown explore type") {
		t.Errorf("expected unknown explore type error, got %v", err)
	}
}

func TestViewIndex(t *testing.T) {
	ix := NewViewIndex()
	ix.AddFile("baseline", &lkml.ViewFile{Views: []lkml.View{
		{Name: "baseline"},
		{Name: "baseline__experiments"},
	}})
	ix.AddFile("events", &lkml.ViewFile{Views: []lkml.View{{Name: "events"}}})

	if got := ix.Names(); !reflect.DeepEqual(got, []string{"baseline", "events"}) {
		t.Errorf("Names = %v", got)
	}
	if v, ok := ix.View("baseline"); !ok || v.Name != "baseline" {
		t.Errorf("View(baseline) = %+v, %v", v, ok)
	}
	// child views live in their parent's file, not under their own name
	if _, ok := ix.View("baseline__experiments"); ok {
		t.Error("View(baseline__experiments) should not resolve")
	}
	if _, ok := ix.View("missing"); ok {
		t.Error("View(missing) should not resolve")
	}
	if _, ok := ix.Datagroup("baseline"); ok {
		t.Error("unexpected datagroup")
	}
	ix.AddDatagroup("baseline", "baseline_v1_last_updated")
	ix.AddDatagroup("events", "baseline_v1_last_updated")
	if dg, ok := ix.Datagroup("baseline"); !ok || dg != "baseline_v1_last_updated" {
		t.Errorf("Datagroup(baseline) = %q, %v", dg, ok)
	}
	if dg, _ := ix.Datagroup("events"); dg != "baseline_v1_last_updated" {
		t.Errorf("Datagroup(events) = %q, want the shared datagroup", dg)
	}
}
