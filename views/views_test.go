package views

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"cloud.google.com/go/bigquery"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/metrics"
	"github.com/mozdata/lookgen/schema"
)

// fakeInspector serves canned schemas keyed by table reference.
type fakeInspector struct {
	schemas map[string][]schema.Field
	infos   map[string]*schema.TableInfo
	values  map[string][]bigquery.Value
}

func (f *fakeInspector) TableSchema(ctx context.Context, ref schema.TableRef) ([]schema.Field, error) {
	s, ok := f.schemas[ref.String()]
	if !ok {
		return nil, fmt.Errorf("no schema for %s", ref)
	}
	return s, nil
}

func (f *fakeInspector) TableMetadata(ctx context.Context, ref schema.TableRef) (*schema.TableInfo, error) {
	info, ok := f.infos[ref.String()]
	if !ok {
		return nil, fmt.Errorf("no metadata for %s", ref)
	}
	return info, nil
}

func (f *fakeInspector) DistinctValues(ctx context.Context, ref schema.TableRef, column string, limit int) ([]bigquery.Value, error) {
	return f.values[ref.String()+":"+column], nil
}

func testEnv(f *fakeInspector) *Env {
	return &Env{Inspector: f, Metrics: metrics.NewStore()}
}

var baselineSchema = []schema.Field{
	{Name: "client_info", Type: "RECORD", Fields: []schema.Field{
		{Name: "client_id", Type: "STRING"},
		{Name: "app_build", Type: "STRING"},
	}},
	{Name: "document_id", Type: "STRING"},
	{Name: "submission_timestamp", Type: "TIMESTAMP"},
	{Name: "normalized_channel", Type: "STRING"},
	{Name: "experiments", Type: "RECORD", Repeated: true, Fields: []schema.Field{
		{Name: "key", Type: "STRING"},
		{Name: "value", Type: "STRING"},
	}},
}

func TestPingFromCatalog(t *testing.T) {
	channels := []Channel{
		{Channel: "release", Dataset: "firefox_desktop", SourceDataset: "firefox_desktop_stable"},
		{Channel: "beta", Dataset: "firefox_desktop_beta", SourceDataset: "firefox_desktop_beta_stable"},
	}
	catalog := Catalog{
		"firefox_desktop": {
			"baseline": {{Project: "moz-fx-data-shared-prod", Dataset: "firefox_desktop_stable", Table: "baseline_v1"}},
			// Two distinct source tables never qualify as a ping view.
			"clients_daily": {
				{Project: "moz-fx-data-shared-prod", Dataset: "firefox_desktop_derived", Table: "baseline_v1"},
				{Project: "moz-fx-data-shared-prod", Dataset: "firefox_desktop_derived", Table: "metrics_v1"},
			},
		},
		"firefox_desktop_beta": {
			"baseline": {{Project: "moz-fx-data-shared-prod", Dataset: "firefox_desktop_beta_stable", Table: "baseline_v1"}},
		},
	}

	got := pingFromCatalog("firefox_desktop", channels, catalog)
	if len(got) != 1 {
		t.Fatalf("pingFromCatalog() returned %d views, want 1", len(got))
	}
	v := got[0]
	if v.Name() != "baseline" || v.Kind() != PingKind {
		t.Errorf("pingFromCatalog() = %s/%s, want baseline/%s", v.Name(), v.Kind(), PingKind)
	}
	wantTables := []Table{
		{Table: "mozdata.firefox_desktop.baseline", Channel: "release"},
		{Table: "mozdata.firefox_desktop_beta.baseline", Channel: "beta"},
	}
	if !reflect.DeepEqual(v.Tables(), wantTables) {
		t.Errorf("pingFromCatalog() tables = %+v, want %+v", v.Tables(), wantTables)
	}
}

func TestPingViewLookML(t *testing.T) {
	inspector := &fakeInspector{schemas: map[string][]schema.Field{
		"mozdata.firefox_desktop.baseline": baselineSchema,
	}}
	v := newPingView("firefox_desktop", "baseline", []Table{
		{Table: "mozdata.firefox_desktop.baseline", Channel: "release"},
		{Table: "mozdata.firefox_desktop_beta.baseline", Channel: "beta"},
	})

	f, err := v.LookML(context.Background(), testEnv(inspector))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	if len(f.Views) != 2 {
		t.Fatalf("LookML() emitted %d views, want base + experiments child", len(f.Views))
	}
	main := f.Views[0]
	if main.SQLTableName != "`mozdata.firefox_desktop.baseline`" {
		t.Errorf("sql_table_name = %s", main.SQLTableName)
	}
	for _, d := range main.Dimensions {
		switch d.Name {
		case "document_id":
			if !d.PrimaryKey {
				t.Error("document_id should be the primary key")
			}
		case "client_info__client_id":
			if !d.Hidden {
				t.Error("client id should stay hidden")
			}
		}
	}
	wantMeasures := []lkml.Measure{
		{Name: "clients", Type: "count_distinct", SQL: "${client_info__client_id}"},
		{Name: "ping_count", Type: "count"},
	}
	if !reflect.DeepEqual(main.Measures, wantMeasures) {
		t.Errorf("measures = %+v, want %+v", main.Measures, wantMeasures)
	}
	if len(main.Filters) != 1 || main.Filters[0].Name != "channel" {
		t.Fatalf("expected a channel filter, got %+v", main.Filters)
	}
	if !reflect.DeepEqual(main.Filters[0].Suggestions, []string{"release", "beta"}) {
		t.Errorf("channel suggestions = %v", main.Filters[0].Suggestions)
	}
	if f.Views[1].Name != "baseline__experiments" {
		t.Errorf("nested view name = %q", f.Views[1].Name)
	}
}

func TestPingViewLookML_SingleChannelHasNoFilter(t *testing.T) {
	inspector := &fakeInspector{schemas: map[string][]schema.Field{
		"mozdata.firefox_desktop.baseline": baselineSchema,
	}}
	v := newPingView("firefox_desktop", "baseline", []Table{
		{Table: "mozdata.firefox_desktop.baseline", Channel: "release"},
	})
	f, err := v.LookML(context.Background(), testEnv(inspector))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	if len(f.Views[0].Filters) != 0 {
		t.Errorf("single-channel view should not get a channel filter, got %+v", f.Views[0].Filters)
	}
}

func TestTableViewLookML(t *testing.T) {
	inspector := &fakeInspector{schemas: map[string][]schema.Field{
		"mozdata.firefox_desktop.baseline_clients_daily": {
			{Name: "client_id", Type: "STRING"},
			{Name: "submission_date", Type: "DATE"},
		},
	}}
	v := newTableView("firefox_desktop", "baseline_clients_daily_table", []Table{
		{Table: "mozdata.firefox_desktop.baseline_clients_daily", Channel: "release"},
		{Table: "mozdata.firefox_desktop_beta.baseline_clients_daily", Channel: "beta"},
	})

	f, err := v.LookML(context.Background(), testEnv(inspector))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	main := f.Views[0]
	if len(main.Measures) != 0 {
		t.Errorf("table views carry no measures, got %+v", main.Measures)
	}
	if main.SQLTableName != "`{% parameter channel %}`" {
		t.Errorf("sql_table_name = %s", main.SQLTableName)
	}
	if len(main.Parameters) != 1 {
		t.Fatalf("expected a channel parameter, got %+v", main.Parameters)
	}
	p := main.Parameters[0]
	if p.Name != "channel" || p.Type != "unquoted" {
		t.Errorf("parameter = %+v", p)
	}
	if p.DefaultValue != "mozdata.firefox_desktop.baseline_clients_daily" {
		t.Errorf("parameter default = %s, want the release table", p.DefaultValue)
	}
	want := []lkml.AllowedValue{
		{Label: "Release", Value: "mozdata.firefox_desktop.baseline_clients_daily"},
		{Label: "Beta", Value: "mozdata.firefox_desktop_beta.baseline_clients_daily"},
	}
	if !reflect.DeepEqual(p.AllowedValues, want) {
		t.Errorf("allowed values = %+v, want %+v", p.AllowedValues, want)
	}
}

func TestGrowthAccountingViewLookML(t *testing.T) {
	inspector := &fakeInspector{schemas: map[string][]schema.Field{
		"mozdata.firefox_desktop.baseline_clients_last_seen": {
			{Name: "client_id", Type: "STRING"},
			{Name: "days_seen_bits", Type: "INTEGER"},
			{Name: "submission_date", Type: "DATE"},
		},
	}}
	v := newGrowthAccountingView("firefox_desktop",
		[]Table{{Table: "mozdata.firefox_desktop.baseline_clients_last_seen"}}, "")

	f, err := v.LookML(context.Background(), testEnv(inspector))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	main := f.Views[0]

	byName := map[string]lkml.Dimension{}
	for _, d := range main.Dimensions {
		byName[d.Name] = d
	}
	for _, name := range []string{"active_this_week", "active_last_week", "new_this_week", "new_last_week"} {
		d, ok := byName[name]
		if !ok || !d.Hidden || d.Type != "yesno" {
			t.Errorf("dimension %s = %+v, want hidden yesno", name, d)
		}
	}
	if d := byName["client_id_day"]; !d.PrimaryKey || !d.Hidden {
		t.Errorf("client_id_day = %+v, want hidden primary key", d)
	}

	if len(main.Measures) != 20 {
		t.Fatalf("growth accounting has %d measures, want 20", len(main.Measures))
	}
	if main.Measures[0].Name != "overall_active_previous" {
		t.Errorf("first measure = %s", main.Measures[0].Name)
	}
	if last := main.Measures[len(main.Measures)-1]; last.Name != "quick_ratio" {
		t.Errorf("last measure = %s", last.Name)
	}

	// churn closes over its negated counts
	measuresByName := map[string]lkml.Measure{}
	for _, m := range main.Measures {
		measuresByName[m.Name] = m
	}
	churnSQL := map[string]string{
		"new_users_churned":         "-1 * ${new_users_churned_count}",
		"established_users_churned": "-1 * ${established_users_churned_count}",
		"overall_churned":           "${new_users_churned} + ${established_users_churned}",
	}
	for name, want := range churnSQL {
		if got := measuresByName[name].SQL; got != want {
			t.Errorf("%s sql = %q, want %q", name, got, want)
		}
	}
}

func TestGrowthAccountingDef_IdentifierField(t *testing.T) {
	v := newGrowthAccountingView("fenix", []Table{{Table: "mozdata.fenix.clients_last_seen"}}, "user_id")
	d := v.Def()
	if d.IdentifierField != "user_id" {
		t.Errorf("Def().IdentifierField = %q, want user_id", d.IdentifierField)
	}
	roundTrip, err := FromDef("fenix", "growth_accounting", d)
	if err != nil {
		t.Fatalf("FromDef() error: %v", err)
	}
	if roundTrip.(*GrowthAccountingView).identifierField != "user_id" {
		t.Error("identifier field lost in Def round trip")
	}

	def := newGrowthAccountingView("fenix", nil, "").Def()
	if def.IdentifierField != "" {
		t.Errorf("default identifier should stay out of the Def, got %q", def.IdentifierField)
	}
}

func TestClientCountsViewLookML(t *testing.T) {
	v := newClientCountsView("firefox_desktop", "client_counts",
		[]Table{{Table: "mozdata.firefox_desktop.baseline_clients_daily"}})
	f, err := v.LookML(context.Background(), testEnv(&fakeInspector{}))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	main := f.Views[0]
	if !reflect.DeepEqual(main.Extends, []string{"baseline_clients_daily_table"}) {
		t.Errorf("extends = %v", main.Extends)
	}
	if !reflect.DeepEqual(f.Includes, []string{"baseline_clients_daily_table.view.lkml"}) {
		t.Errorf("includes = %v", f.Includes)
	}
	if len(main.DimensionGroups) != 1 || main.DimensionGroups[0].Name != "since_first_seen" {
		t.Fatalf("dimension groups = %+v", main.DimensionGroups)
	}
	g := main.DimensionGroups[0]
	if g.Type != "duration" || !reflect.DeepEqual(g.Intervals, []string{"day", "week", "month", "year"}) {
		t.Errorf("since_first_seen = %+v", g)
	}
	if len(main.Measures) != 1 || main.Measures[0].SQL != "COUNT(DISTINCT ${TABLE}.client_id)" {
		t.Errorf("measures = %+v", main.Measures)
	}
}

func TestEventsViewLookML(t *testing.T) {
	inspector := &fakeInspector{schemas: map[string][]schema.Field{
		"mozdata.firefox_desktop.events_unnested": {
			{Name: "client_id", Type: "STRING"},
			{Name: "event_id", Type: "STRING"},
			{Name: "event_category", Type: "STRING"},
		},
	}}
	v := newEventsView("firefox_desktop", "events", []Table{{
		EventsTableView: "events_unnested_table",
		BaseTable:       "mozdata.firefox_desktop.events_unnested",
	}})

	f, err := v.LookML(context.Background(), testEnv(inspector))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	main := f.Views[0]
	if !reflect.DeepEqual(main.Extends, []string{"events_unnested_table"}) {
		t.Errorf("extends = %v", main.Extends)
	}
	if len(main.Dimensions) != 1 || main.Dimensions[0].Name != "event_id" || !main.Dimensions[0].PrimaryKey {
		t.Errorf("dimensions = %+v, want event_id primary key only", main.Dimensions)
	}
	var names []string
	for _, m := range main.Measures {
		names = append(names, m.Name)
	}
	if !reflect.DeepEqual(names, []string{"event_count", "client_count"}) {
		t.Errorf("measures = %v", names)
	}
}

func TestEventsStreamFromCatalog(t *testing.T) {
	catalog := Catalog{
		"fenix": {
			"events_stream": {{Project: "moz-fx-data-shared-prod", Dataset: "fenix_derived", Table: "events_stream_v1"}},
			"baseline":      {{Project: "moz-fx-data-shared-prod", Dataset: "fenix_stable", Table: "baseline_v1"}},
		},
	}
	got := eventsStreamFromCatalog("fenix", []Channel{{Channel: "release", Dataset: "fenix"}}, catalog)
	if len(got) != 1 || got[0].Name() != "events_stream" {
		t.Fatalf("eventsStreamFromCatalog() = %+v, want one events_stream view", got)
	}
	if got[0].Tables()[0].Table != "mozdata.fenix.events_stream" {
		t.Errorf("table = %s", got[0].Tables()[0].Table)
	}
}

func TestEventsStreamViewLookML(t *testing.T) {
	inspector := &fakeInspector{schemas: map[string][]schema.Field{
		"mozdata.fenix.events_stream": {
			{Name: "client_id", Type: "STRING"},
			{Name: "event_id", Type: "STRING"},
			{Name: "event", Type: "STRING"},
			{Name: "submission_timestamp", Type: "TIMESTAMP"},
		},
	}}
	v := newEventsStreamView("fenix", "events_stream", []Table{{Table: "mozdata.fenix.events_stream"}})

	f, err := v.LookML(context.Background(), testEnv(inspector))
	if err != nil {
		t.Fatalf("LookML() error: %v", err)
	}
	main := f.Views[0]
	for _, d := range main.Dimensions {
		if d.Name == "event_id" && !d.PrimaryKey {
			t.Error("event_id should be the primary key")
		}
	}
	byName := map[string]lkml.Measure{}
	for _, m := range main.Measures {
		byName[m.Name] = m
	}
	if _, ok := byName["event_count"]; !ok {
		t.Error("missing event_count measure")
	}
	if m, ok := byName["ping_count"]; !ok || !m.Hidden {
		t.Errorf("ping_count = %+v, want hidden alias", m)
	}
	if m, ok := byName["client_count"]; !ok || m.Type != "count_distinct" {
		t.Errorf("client_count = %+v", m)
	}
}
