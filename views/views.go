// Package views builds LookML view definitions for each supported table
// construction strategy. Variants are plain structs registered by kind
// tag in Types; dispatch is by lookup, not inheritance.
package views

import (
	"context"
	"fmt"
	"sort"

	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/metrics"
	"github.com/mozdata/lookgen/schema"
)

// userFacingProject is the project that exposes user-facing views over
// the stable tables.
const userFacingProject = "mozdata"

// Channel is one release track of an application.
type Channel struct {
	Channel string `yaml:"channel,omitempty"`
	// Dataset holds the user-facing views for this channel.
	Dataset string `yaml:"dataset"`
	// SourceDataset holds the stable tables those views select from.
	SourceDataset string `yaml:"source_dataset,omitempty"`
}

// Catalog maps dataset -> view name -> the qualified tables the view
// ultimately resolves to.
type Catalog map[string]map[string][]schema.TableRef

// DimensionDefault carries the most common value of a dimension and the
// dropdown options derived from it.
type DimensionDefault struct {
	Default string   `yaml:"default"`
	Options []string `yaml:"options,omitempty"`
}

// Table is one source table entry of a view definition. Variant-specific
// fields stay empty for the variants that do not use them.
type Table struct {
	Table   string `yaml:"table,omitempty"`
	Channel string `yaml:"channel,omitempty"`

	// Events views extend a generated table view.
	EventsTableView string `yaml:"events_table_view,omitempty"`
	BaseTable       string `yaml:"base_table,omitempty"`

	// Funnel analysis.
	FunnelBaseView string `yaml:"funnel_analysis,omitempty"`
	EventTypes     string `yaml:"event_types,omitempty"`
	FunnelSteps    int    `yaml:"funnel_steps,omitempty"`

	// Operational monitoring.
	XAxis              string                      `yaml:"xaxis,omitempty"`
	Dimensions         map[string]DimensionDefault `yaml:"dimensions,omitempty"`
	OnMalformedBuildID string                      `yaml:"on_malformed_build_id,omitempty"`
}

// Def is the declarative (namespaces.yaml) form of a view.
type Def struct {
	Type            string  `yaml:"type"`
	Tables          []Table `yaml:"tables,omitempty"`
	IdentifierField string  `yaml:"identifier_field,omitempty"`
}

// Env carries the capabilities a render may consume.
type Env struct {
	Inspector schema.Inspector
	Metrics   *metrics.Store
}

// View is a fully constructed view definition that can render itself.
type View interface {
	Name() string
	Kind() string
	Namespace() string
	Tables() []Table
	Def() Def
	// LookML renders the view (and any nested child views) with fields
	// and measures populated. Rendering never mutates the view.
	LookML(ctx context.Context, env *Env) (*lkml.ViewFile, error)
}

// Type bundles the construction functions of one view kind. FromCatalog
// is nil for kinds that are only ever declared explicitly.
type Type struct {
	Kind        string
	FromCatalog func(namespace string, channels []Channel, catalog Catalog) []View
	FromDef     func(namespace, name string, d Def) (View, error)
}

// Kinds is the discovery order of view types; dict-ordered like the
// declaration below.
var Kinds = []string{
	PingKind,
	TableKind,
	GrowthAccountingKind,
	ClientCountsKind,
	EventsKind,
	EventsStreamKind,
	FunnelAnalysisKind,
	MetricDefinitionsKind,
	OpMonScalarKind,
	OpMonHistogramKind,
	OpMonAlertingKind,
}

// Types registers every view kind.
var Types = map[string]Type{
	PingKind:              {Kind: PingKind, FromCatalog: pingFromCatalog, FromDef: pingFromDef},
	TableKind:             {Kind: TableKind, FromCatalog: tableFromCatalog, FromDef: tableFromDef},
	GrowthAccountingKind:  {Kind: GrowthAccountingKind, FromCatalog: growthAccountingFromCatalog, FromDef: growthAccountingFromDef},
	ClientCountsKind:      {Kind: ClientCountsKind, FromCatalog: clientCountsFromCatalog, FromDef: clientCountsFromDef},
	EventsKind:            {Kind: EventsKind, FromCatalog: eventsFromCatalog, FromDef: eventsFromDef},
	EventsStreamKind:      {Kind: EventsStreamKind, FromCatalog: eventsStreamFromCatalog, FromDef: eventsStreamFromDef},
	FunnelAnalysisKind:    {Kind: FunnelAnalysisKind, FromCatalog: funnelAnalysisFromCatalog, FromDef: funnelAnalysisFromDef},
	MetricDefinitionsKind: {Kind: MetricDefinitionsKind, FromDef: metricDefinitionsFromDef},
	OpMonScalarKind:       {Kind: OpMonScalarKind, FromDef: opmonScalarFromDef},
	OpMonHistogramKind:    {Kind: OpMonHistogramKind, FromDef: opmonHistogramFromDef},
	OpMonAlertingKind:     {Kind: OpMonAlertingKind, FromDef: opmonAlertingFromDef},
}

// FromDef constructs a view of the kind named in d.Type.
func FromDef(namespace, name string, d Def) (View, error) {
	t, ok := Types[d.Type]
	if !ok {
		return nil, fmt.Errorf("unknown view type %q for view %q", d.Type, name)
	}
	return t.FromDef(namespace, name, d)
}

// base carries the attributes every variant shares.
type base struct {
	namespace string
	name      string
	kind      string
	tables    []Table
}

func (b *base) Name() string      { return b.name }
func (b *base) Kind() string      { return b.kind }
func (b *base) Namespace() string { return b.namespace }
func (b *base) Tables() []Table   { return b.tables }

func (b *base) Def() Def {
	return Def{Type: b.kind, Tables: b.tables}
}

// requireTables rejects rendering a view with no source tables.
func (b *base) requireTables() error {
	if len(b.tables) == 0 {
		return fmt.Errorf("view %q in namespace %q has no source tables", b.name, b.namespace)
	}
	return nil
}

// schemaTable picks the authoritative schema source: the release channel
// table when present, else the first table.
func (b *base) schemaTable() string {
	for _, t := range b.tables {
		if t.Channel == "release" {
			return t.Table
		}
	}
	return b.tables[0].Table
}

// tableDimensions fetches and flattens the schema of one table.
func tableDimensions(ctx context.Context, env *Env, table string) ([]lkml.Dimension, error) {
	ref, err := schema.ParseTableRef(table)
	if err != nil {
		return nil, err
	}
	fields, err := env.Inspector.TableSchema(ctx, ref)
	if err != nil {
		return nil, err
	}
	return lookml.DimensionsForTable(table, fields)
}

// tableFields fetches the raw schema tree of one table, for nested view
// generation.
func tableFields(ctx context.Context, env *Env, table string) ([]schema.Field, error) {
	ref, err := schema.ParseTableRef(table)
	if err != nil {
		return nil, err
	}
	return env.Inspector.TableSchema(ctx, ref)
}

// releaseFirst returns the release channel if present, else the first.
func releaseFirst(channels []Channel) Channel {
	for _, c := range channels {
		if c.Channel == "release" {
			return c
		}
	}
	return channels[0]
}

func userFacingTable(dataset, view string) string {
	return userFacingProject + "." + dataset + "." + view
}

// tableSet accumulates tables deduplicated by table id, preserving the
// channel-list insertion order.
type tableSet struct {
	seen   map[string]bool
	tables []Table
}

func (s *tableSet) add(t Table) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[t.Table] {
		return
	}
	s.seen[t.Table] = true
	s.tables = append(s.tables, t)
}

// sortedViewIDs returns the view names of one catalog dataset in
// lexicographic order, for deterministic discovery.
func sortedViewIDs(dataset map[string][]schema.TableRef) []string {
	ids := make([]string, 0, len(dataset))
	for id := range dataset {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
