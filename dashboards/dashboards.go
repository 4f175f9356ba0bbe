// Package dashboards composes Looker dashboard YAML for operational
// monitoring projects. Dashboards are plain YAML documents, so the
// composer builds tagged structs and lets yaml marshal them.
package dashboards

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/views"
)

// OpMonDashboardKind is the only dashboard kind; others never survived
// in production.
const OpMonDashboardKind = "operational_monitoring_dashboard"

// Summary selects one metric/statistic pair for a dashboard tile,
// optionally grouped with other metrics into a shared tile.
type Summary struct {
	Metric       string   `yaml:"metric"`
	Statistic    string   `yaml:"statistic"`
	MetricGroups []string `yaml:"metric_groups,omitempty"`
}

// TableDef binds one opmon table (statistics or alerts) to its explore.
type TableDef struct {
	Explore              string                            `yaml:"explore"`
	Table                string                            `yaml:"table"`
	Branches             []string                          `yaml:"branches,omitempty"`
	XAxis                string                            `yaml:"xaxis,omitempty"`
	CompactVisualization bool                              `yaml:"compact_visualization,omitempty"`
	Dimensions           map[string]views.DimensionDefault `yaml:"dimensions,omitempty"`
	GroupByDimension     string                            `yaml:"group_by_dimension,omitempty"`
	Summaries            []Summary                         `yaml:"summaries,omitempty"`
}

// Def is the declarative (namespaces.yaml) form of a dashboard.
type Def struct {
	Type   string     `yaml:"type"`
	Title  string     `yaml:"title"`
	Tables []TableDef `yaml:"tables"`
}

// branchPalette assigns series colors to branches in declaration order.
var branchPalette = []string{
	"#3FE1B0", "#0060E0", "#9059FF", "#B933E1", "#FF2A8A", "#FF505F",
	"#FF7139", "#FFA537", "#005E5D", "#073072", "#7F165B", "#A7341F",
}

// Dashboard is a constructed opmon dashboard ready to render.
type Dashboard struct {
	Namespace string
	Name      string
	Title     string
	Tables    []TableDef
}

// FromDef builds a dashboard from its declarative form.
func FromDef(namespace, name string, d Def) (*Dashboard, error) {
	if d.Type != OpMonDashboardKind {
		return nil, fmt.Errorf("unknown dashboard type %q for dashboard %q", d.Type, name)
	}
	if len(d.Tables) == 0 {
		return nil, fmt.Errorf("dashboard %q in namespace %q has no tables", name, namespace)
	}
	return &Dashboard{Namespace: namespace, Name: name, Title: d.Title, Tables: d.Tables}, nil
}

// yaml document structs for the dashboard grammar

type document struct {
	Dashboard       string    `yaml:"dashboard"`
	Title           string    `yaml:"title"`
	Layout          string    `yaml:"layout"`
	PreferredViewer string    `yaml:"preferred_viewer"`
	Elements        []element `yaml:"elements"`
	Filters         []filter  `yaml:"filters,omitempty"`
}

type element struct {
	Title        string            `yaml:"title"`
	Name         string            `yaml:"name"`
	Explore      string            `yaml:"explore"`
	Type         string            `yaml:"type"`
	Fields       []string          `yaml:"fields,flow"`
	Pivots       []string          `yaml:"pivots,flow,omitempty"`
	Filters      map[string]string `yaml:"filters,omitempty"`
	SeriesColors map[string]string `yaml:"series_colors,omitempty"`
	Listen       map[string]string `yaml:"listen,omitempty"`
	Row          int               `yaml:"row"`
	Col          int               `yaml:"col"`
	Width        int               `yaml:"width"`
	Height       int               `yaml:"height"`
}

type filter struct {
	Name                string   `yaml:"name"`
	Title               string   `yaml:"title"`
	Type                string   `yaml:"type"`
	DefaultValue        string   `yaml:"default_value"`
	AllowMultipleValues bool     `yaml:"allow_multiple_values"`
	Required            bool     `yaml:"required"`
	Explore             string   `yaml:"explore"`
	Field               string   `yaml:"field"`
	Options             []string `yaml:"options,flow,omitempty"`
}

// LookML renders the dashboard document. Tiles flow two per row in the
// newspaper layout; an alerts table, when present, spans the bottom.
func (d *Dashboard) LookML() (string, error) {
	doc := document{
		Dashboard:       d.Name,
		Title:           d.Title,
		Layout:          "newspaper",
		PreferredViewer: "dashboards-next",
	}

	graphIndex := 0
	var alerts *TableDef
	for i := range d.Tables {
		t := &d.Tables[i]
		if strings.HasSuffix(t.Table, "alerts") {
			alerts = t
			continue
		}
		doc.Filters = append(doc.Filters, d.tableFilters(t)...)
		doc.Elements = append(doc.Elements, d.tableElements(t, &graphIndex)...)
	}
	if alerts != nil {
		doc.Elements = append(doc.Elements, element{
			Title:   "Alerts",
			Name:    "alerts",
			Explore: alerts.Explore,
			Type:    "looker_grid",
			Fields: []string{
				alerts.Explore + ".submission_date",
				alerts.Explore + ".metric",
				alerts.Explore + ".message",
			},
			Row:    (graphIndex / 2) * 10,
			Col:    0,
			Width:  24,
			Height: 6,
		})
	}

	content, err := yaml.Marshal([]document{doc})
	if err != nil {
		return "", fmt.Errorf("marshaling dashboard %q: %w", d.Name, err)
	}
	return string(content), nil
}

// tableElements emits one tile per distinct (metric group, statistic)
// of the table's summaries.
func (d *Dashboard) tableElements(t *TableDef, graphIndex *int) []element {
	colors := map[string]string{}
	for i, branch := range t.Branches {
		if i >= len(branchPalette) {
			break
		}
		colors[branch] = branchPalette[i]
	}

	// metrics per named group, in summary order
	groups := map[string][]string{}
	for _, s := range t.Summaries {
		for _, g := range s.MetricGroups {
			if !containsString(groups[g], s.Metric) {
				groups[g] = append(groups[g], s.Metric)
			}
		}
	}

	dateField := t.XAxis
	if t.XAxis == "build_id" {
		dateField = "build_id_date"
	}

	var elements []element
	seen := map[string]bool{}
	for _, s := range t.Summaries {
		metricGroups := s.MetricGroups
		if len(metricGroups) == 0 {
			metricGroups = []string{""}
		}
		for _, group := range metricGroups {
			key := group + "\x00" + s.Statistic
			if group != "" && seen[key] {
				continue
			}
			title := lookml.SlugToTitle(s.Metric)
			metricFilter := s.Metric
			if group != "" {
				title = lookml.SlugToTitle(group)
				quoted := make([]string, 0, len(groups[group]))
				for _, m := range groups[group] {
					quoted = append(quoted, `"`+m+`"`)
				}
				metricFilter = strings.Join(quoted, ", ")
				seen[key] = true
			}
			if t.CompactVisualization {
				title = "Metric"
			}

			e := element{
				Title:   title,
				Name:    fmt.Sprintf("%s_%s", elementSlug(title), s.Statistic),
				Explore: t.Explore,
				Type:    "looker_line",
				Fields: []string{
					t.Explore + "." + t.XAxis,
					t.Explore + ".branch",
					t.Explore + ".percentile",
				},
				Pivots: []string{t.Explore + ".branch"},
				Filters: map[string]string{
					t.Explore + ".metric":    metricFilter,
					t.Explore + ".statistic": s.Statistic,
				},
				SeriesColors: colors,
				Listen:       d.elementListen(t, dateField),
				Row:          (*graphIndex / 2) * 10,
				Col:          (*graphIndex % 2) * 12,
				Width:        12,
				Height:       10,
			}
			if t.GroupByDimension != "" {
				e.Title = fmt.Sprintf("%s - By %s", title, t.GroupByDimension)
				e.Pivots = append(e.Pivots, t.Explore+"."+t.GroupByDimension)
			}
			elements = append(elements, e)
			*graphIndex++

			if t.CompactVisualization {
				return elements
			}
		}
	}
	return elements
}

func (d *Dashboard) elementListen(t *TableDef, dateField string) map[string]string {
	listen := map[string]string{
		"Date":       t.Explore + "." + dateField,
		"Percentile": t.Explore + ".percentile_conf",
	}
	for _, name := range views.SortedDimensionNames(t.Dimensions) {
		listen[lookml.SlugToTitle(name)] = t.Explore + "." + name
	}
	return listen
}

// tableFilters builds the dashboard-level dropdowns: the date window,
// the percentile and one dropdown per configured dimension.
func (d *Dashboard) tableFilters(t *TableDef) []filter {
	dateField := t.XAxis
	if t.XAxis == "build_id" {
		dateField = "build_id_date"
	}
	filters := []filter{
		{
			Name:         "Date",
			Title:        "Date",
			Type:         "field_filter",
			DefaultValue: "30 days",
			Explore:      t.Explore,
			Field:        t.Explore + "." + dateField,
		},
		{
			Name:         "Percentile",
			Title:        "Percentile",
			Type:         "field_filter",
			DefaultValue: "50",
			Explore:      t.Explore,
			Field:        t.Explore + ".percentile_conf",
		},
	}
	for _, name := range views.SortedDimensionNames(t.Dimensions) {
		info := t.Dimensions[name]
		options := append([]string{}, info.Options...)
		sort.Strings(options)
		filters = append(filters, filter{
			Name:                lookml.SlugToTitle(name),
			Title:               lookml.SlugToTitle(name),
			Type:                "field_filter",
			DefaultValue:        info.Default,
			AllowMultipleValues: true,
			Explore:             t.Explore,
			Field:               t.Explore + "." + name,
			Options:             options,
		})
	}
	return filters
}

func elementSlug(title string) string {
	return strings.ToLower(strings.ReplaceAll(title, " ", "_"))
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
