package lkml

import (
	"fmt"
	"strings"
)

// EncodeView renders a ViewFile, header included.
func EncodeView(f *ViewFile) string {
	w := newWriter()
	for _, inc := range f.Includes {
		w.linef(`include: "%s"`, inc)
	}
	if len(f.Includes) > 0 {
		w.blank()
	}
	for i, v := range f.Views {
		if i > 0 {
			w.blank()
		}
		encodeViewBlock(w, &v)
	}
	return FileHeader + w.String()
}

// EncodeExplore renders an ExploreFile, header included.
func EncodeExplore(f *ExploreFile) string {
	w := newWriter()
	for _, inc := range f.Includes {
		w.linef(`include: "%s"`, inc)
	}
	if len(f.Includes) > 0 {
		w.blank()
	}
	for i, e := range f.Explores {
		if i > 0 {
			w.blank()
		}
		encodeExploreBlock(w, &e)
	}
	return FileHeader + w.String()
}

// EncodeDatagroup renders a single datagroup artifact, header included.
func EncodeDatagroup(d *Datagroup) string {
	w := newWriter()
	w.open("datagroup", d.Name)
	w.quoted("label", d.Label)
	w.sql("sql_trigger", d.SQLTrigger)
	w.quoted("description", d.Description)
	w.plain("max_cache_age", quote(d.MaxCacheAge))
	w.close()
	return FileHeader + w.String()
}

func encodeViewBlock(w *writer, v *View) {
	w.open("view", v.Name)
	if len(v.Extends) > 0 {
		w.plain("extends", "["+strings.Join(v.Extends, ", ")+"]")
	}
	if v.SQLTableName != "" {
		w.sql("sql_table_name", v.SQLTableName)
	}
	if v.DerivedTableSQL != "" {
		w.open("derived_table", "")
		w.sql("sql", v.DerivedTableSQL)
		w.close()
	}
	for _, p := range v.Parameters {
		w.blank()
		encodeParameter(w, &p)
	}
	for _, fp := range v.Filters {
		w.blank()
		encodeFilterParameter(w, &fp)
	}
	for _, d := range v.Dimensions {
		w.blank()
		encodeDimension(w, &d, "dimension")
	}
	for _, d := range v.DimensionGroups {
		w.blank()
		encodeDimension(w, &d, "dimension_group")
	}
	for _, m := range v.Measures {
		w.blank()
		encodeMeasure(w, &m)
	}
	for _, s := range v.Sets {
		w.blank()
		w.open("set", s.Name)
		w.plain("fields", "["+strings.Join(s.Fields, ", ")+"]")
		w.close()
	}
	w.close()
}

func encodeDimension(w *writer, d *Dimension, keyword string) {
	w.open(keyword, d.Name)
	if d.Hidden {
		w.plain("hidden", "yes")
	}
	if d.Type != "" {
		w.plain("type", d.Type)
	}
	if d.PrimaryKey {
		w.plain("primary_key", "yes")
	}
	w.quoted("label", d.Label)
	w.quoted("group_label", d.GroupLabel)
	w.quoted("group_item_label", d.GroupItemLabel)
	if d.MapLayerName != "" {
		w.plain("map_layer_name", d.MapLayerName)
	}
	if d.SuggestPersistFor != "" {
		w.plain("suggest_persist_for", quote(d.SuggestPersistFor))
	}
	if len(d.Timeframes) > 0 {
		w.list("timeframes", d.Timeframes)
	}
	if len(d.Intervals) > 0 {
		w.list("intervals", d.Intervals)
	}
	if d.ConvertTZ != "" {
		w.plain("convert_tz", d.ConvertTZ)
	}
	if d.Datatype != "" {
		w.plain("datatype", d.Datatype)
	}
	if len(d.Tags) > 0 {
		quoted := make([]string, len(d.Tags))
		for i, t := range d.Tags {
			quoted[i] = quote(t)
		}
		w.plain("tags", "["+strings.Join(quoted, ", ")+"]")
	}
	w.quoted("description", d.Description)
	w.sql("sql", d.SQL)
	w.sql("sql_start", d.SQLStart)
	w.sql("sql_end", d.SQLEnd)
	w.close()
}

func encodeMeasure(w *writer, m *Measure) {
	w.open("measure", m.Name)
	if m.Hidden {
		w.plain("hidden", "yes")
	}
	if m.Type != "" {
		w.plain("type", m.Type)
	}
	w.quoted("label", m.Label)
	w.quoted("group_label", m.GroupLabel)
	w.quoted("description", m.Description)
	w.sql("sql", m.SQL)
	for _, f := range m.Filters {
		w.linef("filters: [%s: %s]", f.Field, quote(f.Value))
	}
	w.close()
}

func encodeParameter(w *writer, p *Parameter) {
	w.open("parameter", p.Name)
	if p.Hidden {
		w.plain("hidden", "yes")
	}
	if p.Type != "" {
		w.plain("type", p.Type)
	}
	w.quoted("label", p.Label)
	w.quoted("description", p.Description)
	if p.DefaultValue != "" {
		w.plain("default_value", quote(p.DefaultValue))
	}
	for _, av := range p.AllowedValues {
		w.open("allowed_value", "")
		w.quoted("label", av.Label)
		w.plain("value", quote(av.Value))
		w.close()
	}
	w.close()
}

func encodeFilterParameter(w *writer, fp *FilterParameter) {
	w.open("filter", fp.Name)
	if fp.Type != "" {
		w.plain("type", fp.Type)
	}
	w.quoted("description", fp.Description)
	if fp.DefaultValue != "" {
		w.plain("default_value", quote(fp.DefaultValue))
	}
	if len(fp.Suggestions) > 0 {
		quoted := make([]string, len(fp.Suggestions))
		for i, s := range fp.Suggestions {
			quoted[i] = quote(s)
		}
		w.plain("suggestions", "["+strings.Join(quoted, ", ")+"]")
	}
	if fp.SuggestExplore != "" {
		w.plain("suggest_explore", fp.SuggestExplore)
	}
	if fp.SuggestDimension != "" {
		w.plain("suggest_dimension", fp.SuggestDimension)
	}
	w.sql("sql", fp.SQL)
	w.close()
}

func encodeExploreBlock(w *writer, e *Explore) {
	w.open("explore", e.Name)
	if e.ViewName != "" && e.ViewName != e.Name {
		w.plain("view_name", e.ViewName)
	}
	if e.Hidden {
		w.plain("hidden", "yes")
	}
	w.quoted("view_label", e.ViewLabel)
	w.quoted("description", e.Description)
	if len(e.Fields) > 0 {
		w.plain("fields", "["+strings.Join(e.Fields, ", ")+"]")
	}
	if len(e.AlwaysFilter) > 0 {
		w.open("always_filter", "")
		w.filters("filters", e.AlwaysFilter)
		w.close()
	}
	w.sql("sql_always_where", e.SQLAlwaysWhere)
	if e.PersistWith != "" {
		w.plain("persist_with", e.PersistWith)
	}
	for _, q := range e.Queries {
		w.blank()
		w.open("query", q.Name)
		w.quoted("description", q.Description)
		w.list("dimensions", q.Dimensions)
		w.list("measures", q.Measures)
		w.list("pivots", q.Pivots)
		w.filters("filters", q.Filters)
		for _, s := range q.Sorts {
			w.linef("sorts: [%s: %s]", s.Field, s.Value)
		}
		w.close()
	}
	for _, j := range e.Joins {
		w.blank()
		w.open("join", j.Name)
		w.quoted("view_label", j.ViewLabel)
		if j.Type != "" {
			w.plain("type", j.Type)
		}
		if j.Relationship != "" {
			w.plain("relationship", j.Relationship)
		}
		if len(j.Fields) > 0 {
			w.plain("fields", "["+strings.Join(j.Fields, ", ")+"]")
		}
		w.sql("sql", j.SQL)
		w.sql("sql_on", j.SQLOn)
		w.close()
	}
	for _, at := range e.AggregateTable {
		w.blank()
		w.open("aggregate_table", at.Name)
		w.open("query", "")
		w.list("dimensions", at.Dimensions)
		w.list("measures", at.Measures)
		w.filters("filters", at.Filters)
		w.close()
		w.open("materialization", "")
		w.sql("sql_trigger_value", at.SQLTriggerValue)
		w.close()
		w.close()
	}
	w.close()
}

// writer accumulates indented LookML text.
type writer struct {
	b      strings.Builder
	indent int
}

func newWriter() *writer { return &writer{} }

func (w *writer) String() string { return w.b.String() }

func (w *writer) pad() {
	for i := 0; i < w.indent; i++ {
		w.b.WriteString("  ")
	}
}

func (w *writer) line(s string) {
	w.pad()
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *writer) linef(format string, args ...interface{}) {
	w.line(fmt.Sprintf(format, args...))
}

func (w *writer) blank() {
	w.b.WriteByte('\n')
}

func (w *writer) open(keyword, name string) {
	if name == "" {
		w.linef("%s: {", keyword)
	} else {
		w.linef("%s: %s {", keyword, name)
	}
	w.indent++
}

func (w *writer) close() {
	w.indent--
	w.line("}")
}

// plain writes key: value with no quoting.
func (w *writer) plain(key, value string) {
	w.linef("%s: %s", key, value)
}

// quoted writes key: "value", skipping empty values.
func (w *writer) quoted(key, value string) {
	if value == "" {
		return
	}
	w.linef("%s: %s", key, quote(value))
}

// sql writes a ;;-terminated key. Multi-line SQL keeps its own layout,
// indented one level under the key.
func (w *writer) sql(key, value string) {
	if value == "" {
		return
	}
	if !strings.Contains(value, "\n") {
		w.linef("%s: %s ;;", key, value)
		return
	}
	w.linef("%s:", key)
	w.indent++
	for _, l := range strings.Split(strings.Trim(value, "\n"), "\n") {
		w.line(strings.TrimRight(l, " "))
	}
	w.line(";;")
	w.indent--
}

func (w *writer) list(key string, values []string) {
	if len(values) == 0 {
		return
	}
	w.plain(key, "["+strings.Join(values, ", ")+"]")
}

func (w *writer) filters(key string, fs []Filter) {
	for _, f := range fs {
		w.linef("%s: [%s: %s]", key, f.Field, quote(f.Value))
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
