// Package lkml holds a typed LookML document model and a text encoder.
//
// Downstream repositories diff generated files line by line, so the
// encoder emits keys in a fixed order and never reorders what callers
// provide: dimensions before dimension_groups before measures, each in
// the order they appear in the slices.
package lkml

// FileHeader is prepended to every generated artifact.
const FileHeader = `# *Do not manually modify this file*
#
# This file has been generated by lookgen.

`

// ViewFile is the content of one .view.lkml artifact.
type ViewFile struct {
	Includes []string
	Views    []View
}

// View is a single LookML view block.
type View struct {
	Name            string
	Extends         []string
	SQLTableName    string
	DerivedTableSQL string
	Parameters      []Parameter
	Filters         []FilterParameter
	Dimensions      []Dimension
	DimensionGroups []Dimension
	Measures        []Measure
	Sets            []Set
}

// Dimension describes one dimension or dimension group. A dimension
// with timeframes or intervals is emitted as a dimension_group block.
type Dimension struct {
	Name              string
	Type              string
	Hidden            bool
	PrimaryKey        bool
	Label             string
	GroupLabel        string
	GroupItemLabel    string
	MapLayerName      string
	SuggestPersistFor string
	Timeframes        []string
	Intervals         []string
	ConvertTZ         string
	Datatype          string
	Tags              []string
	Description       string
	SQL               string
	SQLStart          string
	SQLEnd            string
}

// IsGroup reports whether the dimension must be rendered as a
// dimension_group (time or duration).
func (d Dimension) IsGroup() bool {
	return len(d.Timeframes) > 0 || len(d.Intervals) > 0
}

// Measure is an aggregate field.
type Measure struct {
	Name        string
	Type        string
	Hidden      bool
	Label       string
	GroupLabel  string
	Description string
	SQL         string
	Filters     []Filter
}

// Filter is a single field: "value" pair used in measure filters,
// always_filter blocks and canned queries.
type Filter struct {
	Field string
	Value string
}

// Parameter is a view parameter block.
type Parameter struct {
	Name          string
	Type          string
	Label         string
	Hidden        bool
	Description   string
	DefaultValue  string
	AllowedValues []AllowedValue
}

// AllowedValue is one allowed_value entry of a parameter.
type AllowedValue struct {
	Label string
	Value string
}

// FilterParameter is a templated view filter block (filter: name {...}).
type FilterParameter struct {
	Name             string
	Type             string
	Description      string
	DefaultValue     string
	Suggestions      []string
	SuggestExplore   string
	SuggestDimension string
	SQL              string
}

// Set names a group of fields.
type Set struct {
	Name   string
	Fields []string
}

// ExploreFile is the content of one .explore.lkml artifact.
type ExploreFile struct {
	Includes []string
	Explores []Explore
}

// Explore is a single LookML explore block.
type Explore struct {
	Name           string
	ViewName       string
	ViewLabel      string
	Hidden         bool
	Description    string
	Fields         []string
	AlwaysFilter   []Filter
	SQLAlwaysWhere string
	Queries        []Query
	Joins          []Join
	AggregateTable []AggregateTable
	PersistWith    string
}

// Join is one join block inside an explore.
type Join struct {
	Name         string
	ViewLabel    string
	Type         string
	Relationship string
	Fields       []string
	SQL          string
	SQLOn        string
}

// Query is a canned query block inside an explore.
type Query struct {
	Name        string
	Description string
	Dimensions  []string
	Measures    []string
	Pivots      []string
	Filters     []Filter
	Sorts       []Filter
}

// AggregateTable is an aggregate_table block with a materialization
// trigger, used by operational monitoring rollups.
type AggregateTable struct {
	Name            string
	Dimensions      []string
	Measures        []string
	Filters         []Filter
	SQLTriggerValue string
}

// Datagroup is a cache-invalidation trigger definition.
type Datagroup struct {
	Name        string
	Label       string
	SQLTrigger  string
	Description string
	MaxCacheAge string
}
