// Package explores builds LookML explore definitions on top of rendered
// views. Like package views it dispatches by kind tag through a registry.
// Explores are constructed after every view of a namespace is known, so
// join partners resolve by name against a ViewIndex instead of written
// files.
package explores

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/views"
)

// Def is the declarative (namespaces.yaml) form of an explore.
type Def struct {
	Type string `yaml:"type"`
	// Views maps a role (base_view, extended_view) to a view name.
	Views  map[string]string `yaml:"views,omitempty"`
	Hidden bool              `yaml:"hidden,omitempty"`

	// Operational monitoring.
	Branches   []string                          `yaml:"branches,omitempty"`
	XAxis      string                            `yaml:"xaxis,omitempty"`
	Dimensions map[string]views.DimensionDefault `yaml:"dimensions,omitempty"`
	Probes     []string                          `yaml:"probes,omitempty"`
}

// Explore is a fully constructed explore definition.
type Explore interface {
	Name() string
	Kind() string
	Views() map[string]string
	Def() Def
	// DependentViews are the views this explore requires; the assembler
	// validates them and the pipeline derives include paths from them.
	DependentViews(ix *ViewIndex) []string
	LookML(ix *ViewIndex) (*lkml.ExploreFile, error)
}

// Type bundles the construction functions of one explore kind.
type Type struct {
	Kind      string
	FromViews func(vs []views.View) []Explore
	FromDef   func(name string, d Def) (Explore, error)
}

// Kinds is the discovery order of explore types.
var Kinds = []string{
	PingExploreKind,
	ClientCountsExploreKind,
	EventsExploreKind,
	EventsStreamExploreKind,
	FunnelAnalysisExploreKind,
	GrowthAccountingExploreKind,
	MetricDefinitionsExploreKind,
	OpMonExploreKind,
	OpMonAlertingExploreKind,
	TableExploreKind,
}

// Types registers every explore kind.
var Types = map[string]Type{
	PingExploreKind:              {Kind: PingExploreKind, FromViews: pingExploresFromViews, FromDef: pingExploreFromDef},
	ClientCountsExploreKind:      {Kind: ClientCountsExploreKind, FromViews: clientCountsExploresFromViews, FromDef: clientCountsExploreFromDef},
	EventsExploreKind:            {Kind: EventsExploreKind, FromViews: eventsExploresFromViews, FromDef: eventsExploreFromDef},
	EventsStreamExploreKind:      {Kind: EventsStreamExploreKind, FromViews: eventsStreamExploresFromViews, FromDef: eventsStreamExploreFromDef},
	FunnelAnalysisExploreKind:    {Kind: FunnelAnalysisExploreKind, FromViews: funnelAnalysisExploresFromViews, FromDef: funnelAnalysisExploreFromDef},
	GrowthAccountingExploreKind:  {Kind: GrowthAccountingExploreKind, FromViews: growthAccountingExploresFromViews, FromDef: growthAccountingExploreFromDef},
	MetricDefinitionsExploreKind: {Kind: MetricDefinitionsExploreKind, FromViews: metricDefinitionsExploresFromViews, FromDef: metricDefinitionsExploreFromDef},
	OpMonExploreKind:             {Kind: OpMonExploreKind, FromDef: opmonExploreFromDef},
	OpMonAlertingExploreKind:     {Kind: OpMonAlertingExploreKind, FromDef: opmonAlertingExploreFromDef},
	TableExploreKind:             {Kind: TableExploreKind, FromViews: tableExploresFromViews, FromDef: tableExploreFromDef},
}

// FromDef constructs an explore of the kind named in d.Type.
func FromDef(name string, d Def) (Explore, error) {
	t, ok := Types[d.Type]
	if !ok {
		return nil, fmt.Errorf("unknown explore type %q for explore %q", d.Type, name)
	}
	return t.FromDef(name, d)
}

// ViewIndex holds every rendered view file of one namespace, plus the
// datagroup each view's source table resolved to. Several views can
// share one datagroup.
type ViewIndex struct {
	files      map[string]*lkml.ViewFile
	datagroups map[string]string
}

func NewViewIndex() *ViewIndex {
	return &ViewIndex{
		files:      map[string]*lkml.ViewFile{},
		datagroups: map[string]string{},
	}
}

// AddFile registers the rendered file of the view named name.
func (ix *ViewIndex) AddFile(name string, f *lkml.ViewFile) {
	ix.files[name] = f
}

// AddDatagroup binds a view to the datagroup derived from its table.
func (ix *ViewIndex) AddDatagroup(view, datagroup string) {
	ix.datagroups[view] = datagroup
}

// Datagroup returns the datagroup name of a view, if it has one.
func (ix *ViewIndex) Datagroup(view string) (string, bool) {
	dg, ok := ix.datagroups[view]
	return dg, ok
}

// File returns the rendered file of one view.
func (ix *ViewIndex) File(name string) (*lkml.ViewFile, bool) {
	f, ok := ix.files[name]
	return f, ok
}

// View returns the view block named name from its own file.
func (ix *ViewIndex) View(name string) (*lkml.View, bool) {
	f, ok := ix.files[name]
	if !ok {
		return nil, false
	}
	for i := range f.Views {
		if f.Views[i].Name == name {
			return &f.Views[i], true
		}
	}
	return nil, false
}

// Names lists all indexed views, sorted.
func (ix *ViewIndex) Names() []string {
	names := make([]string, 0, len(ix.files))
	for name := range ix.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// base carries the attributes every explore variant shares.
type base struct {
	name   string
	kind   string
	views  map[string]string
	hidden bool
}

func (b *base) Name() string             { return b.name }
func (b *base) Kind() string             { return b.kind }
func (b *base) Views() map[string]string { return b.views }

func (b *base) Def() Def {
	return Def{Type: b.kind, Views: b.views, Hidden: b.hidden}
}

// DependentViews returns the views of every role except extensions,
// which are already pulled in by the view that extends them.
func (b *base) DependentViews(ix *ViewIndex) []string {
	var out []string
	for _, role := range sortedRoles(b.views) {
		if strings.HasPrefix(role, "extended") {
			continue
		}
		out = append(out, b.views[role])
	}
	return out
}

func sortedRoles(views map[string]string) []string {
	roles := make([]string, 0, len(views))
	for role := range views {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// finish applies the variant-independent decoration: the hidden flag
// and a partition pruning predicate when any dependent (non-joined)
// view carries a time partitioning group.
func (b *base) finish(file *lkml.ExploreFile, ix *ViewIndex) *lkml.ExploreFile {
	if len(file.Explores) == 0 {
		return file
	}
	e := &file.Explores[0]
	if b.hidden {
		e.Hidden = true
	}
	if e.SQLAlwaysWhere == "" {
		baseView := b.views["base_view"]
		for _, role := range sortedRoles(b.views) {
			if strings.Contains(role, "join") {
				continue
			}
			if group := b.timePartitioningGroup(ix, b.views[role]); group != "" {
				e.SQLAlwaysWhere = fmt.Sprintf("${%s.%s_date} >= '2010-01-01'", baseView, group)
			}
		}
	}
	return file
}

// timePartitioningGroup returns the name of the first dimension group
// tagged time_partitioning_field, falling back to "submission".
func (b *base) timePartitioningGroup(ix *ViewIndex, viewName string) string {
	view, ok := ix.View(viewName)
	if !ok {
		return ""
	}
	hasSubmission := false
	for _, group := range view.DimensionGroups {
		for _, tag := range group.Tags {
			if tag == "time_partitioning_field" {
				return group.Name
			}
		}
		if group.Name == "submission" {
			hasSubmission = true
		}
	}
	if hasSubmission {
		return "submission"
	}
	return ""
}

// defaultChannel returns the escaped default of the view's channel
// filter parameter, or "" when the view is single-channel.
func (b *base) defaultChannel(ix *ViewIndex, viewName string) string {
	view, ok := ix.View(viewName)
	if !ok {
		return ""
	}
	for _, f := range view.Filters {
		if f.Name == "channel" && len(f.Suggestions) > 0 {
			return lookml.EscapeFilterExpr(f.Suggestions[0])
		}
	}
	return ""
}

// requiredFilters builds the default always_filter entries for the view
// bound to role: the channel default when present and a 28 day window on
// the partitioning date.
func (b *base) requiredFilters(ix *ViewIndex, role string) []lkml.Filter {
	viewName := b.views[role]
	var filters []lkml.Filter
	if channel := b.defaultChannel(ix, viewName); channel != "" {
		filters = append(filters, lkml.Filter{Field: "channel", Value: channel})
	}
	if group := b.timePartitioningGroup(ix, viewName); group != "" {
		filters = append(filters, lkml.Filter{Field: group + "_date", Value: "28 days"})
	}
	return filters
}

// hasDimension reports whether the named view has a plain dimension
// named dimension.
func (b *base) hasDimension(ix *ViewIndex, viewName, dimension string) bool {
	view, ok := ix.View(viewName)
	if !ok {
		return false
	}
	for _, d := range view.Dimensions {
		if d.Name == dimension {
			return true
		}
	}
	return false
}

// unnestedJoins synthesizes a one_to_many UNNEST join for every nested
// child view rendered alongside the base view (and, when present, the
// extended view).
func (b *base) unnestedJoins(ix *ViewIndex) ([]lkml.Join, error) {
	baseFile, ok := ix.File(b.views["base_view"])
	if !ok || len(baseFile.Views) == 0 {
		return nil, nil
	}
	parentBase := baseFile.Views[0].Name

	type child struct {
		name     string
		extended bool
	}
	known := []string{}
	var children []child
	for i, v := range baseFile.Views {
		known = append(known, v.Name)
		if i > 0 {
			children = append(children, child{name: v.Name})
		}
	}
	extendedRoot := ""
	if extended, ok := b.views["extended_view"]; ok {
		if extFile, ok := ix.File(extended); ok && len(extFile.Views) > 0 {
			extendedRoot = extFile.Views[0].Name
			for i, v := range extFile.Views {
				known = append(known, v.Name)
				if i > 0 {
					children = append(children, child{name: v.Name, extended: true})
				}
			}
		}
	}

	var joins []lkml.Join
	for _, c := range children {
		baseName, metric, err := splitNestedViewName(c.name, known)
		if err != nil {
			return nil, err
		}
		labelName := c.name
		if c.extended {
			// extended child views surface under the name of the view
			// that extends their parent
			labelName = strings.Replace(c.name, extendedRoot, parentBase, 1)
			baseName = parentBase
		}
		// the nested-view separator titles into a double space
		label := lookml.SlugToTitle(labelName)
		joins = append(joins, lkml.Join{
			Name:         c.name,
			ViewLabel:    label,
			Relationship: "one_to_many",
			SQL:          fmt.Sprintf("LEFT JOIN UNNEST(${%s.%s}) AS %s", baseName, metric, c.name),
		})
	}
	return joins, nil
}

// splitNestedViewName resolves a nested child view name back to its
// parent view and the repeated field it unnests. Resolution walks the
// "__" separators right to left so that nested-of-nested views bind to
// their immediate parent.
func splitNestedViewName(viewName string, known []string) (baseView, metric string, err error) {
	isKnown := func(name string) bool {
		for _, k := range known {
			if k == name {
				return true
			}
		}
		return false
	}
	split := strings.Split(viewName, "__")
	for i := len(split) - 1; i > 0; i-- {
		baseView := strings.Join(split[:i], "__")
		if isKnown(baseView) {
			return baseView, strings.Join(split[i:], "__"), nil
		}
	}
	return "", "", fmt.Errorf("cannot resolve parent view of nested view %q", viewName)
}
