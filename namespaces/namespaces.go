// Package namespaces assembles the per-application namespace catalog:
// it discovers applicable views and explores from the BigQuery catalog,
// merges declared overrides on top and writes the result as
// namespaces.yaml, the input of the LookML generation pass.
package namespaces

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mozdata/lookgen/dashboards"
	"github.com/mozdata/lookgen/explores"
	"github.com/mozdata/lookgen/lookml"
	"github.com/mozdata/lookgen/metrics"
	"github.com/mozdata/lookgen/schema"
	"github.com/mozdata/lookgen/views"
)

// App is one entry of the application registry: a product with its
// release channels.
type App struct {
	Name       string          `yaml:"name"`
	PrettyName string          `yaml:"pretty_name"`
	Owners     []string        `yaml:"owners,omitempty"`
	Channels   []views.Channel `yaml:"channels"`
}

// Namespace is the assembled configuration of one application.
type Namespace struct {
	PrettyName string                    `yaml:"pretty_name,omitempty"`
	Owners     []string                  `yaml:"owners,omitempty"`
	Connection string                    `yaml:"connection,omitempty"`
	Views      map[string]views.Def      `yaml:"views,omitempty"`
	Explores   map[string]explores.Def   `yaml:"explores,omitempty"`
	Dashboards map[string]dashboards.Def `yaml:"dashboards,omitempty"`
}

// Assembler builds namespaces from the registry, the catalog and the
// declared overrides.
type Assembler struct {
	Inspector schema.Inspector
	Metrics   *metrics.Store
}

// Build assembles every namespace. Declared (custom) namespaces merge
// over discovered ones; metric-hub namespaces merge last; the disallow
// list filters the result by glob.
func (a *Assembler) Build(ctx context.Context, apps []App, catalog views.Catalog, custom map[string]Namespace, disallow []string) (map[string]Namespace, error) {
	assembled := map[string]Namespace{}
	for _, app := range apps {
		ns, err := a.discover(app, catalog)
		if err != nil {
			return nil, err
		}
		assembled[app.Name] = ns
	}

	for name, ns := range custom {
		if err := a.resolveDimensionDefaults(ctx, &ns); err != nil {
			return nil, fmt.Errorf("namespace %q: %w", name, err)
		}
		base := assembled[name]
		mergeNamespace(&base, ns)
		assembled[name] = base
	}

	for name, ns := range a.metricHubNamespaces(assembled) {
		base := assembled[name]
		mergeNamespace(&base, ns)
		assembled[name] = base
	}

	filtered := map[string]Namespace{}
	for name, ns := range assembled {
		disallowed, err := matchesAny(disallow, name)
		if err != nil {
			return nil, err
		}
		if disallowed {
			continue
		}
		if err := validate(name, ns); err != nil {
			return nil, err
		}
		filtered[name] = ns
	}
	return filtered, nil
}

// discover runs every view kind's discovery against the app's channels,
// then every explore kind's discovery against the resulting views.
func (a *Assembler) discover(app App, catalog views.Catalog) (Namespace, error) {
	var discovered []views.View
	names := map[string]bool{}
	for _, kind := range views.Kinds {
		t := views.Types[kind]
		if t.FromCatalog == nil {
			continue
		}
		for _, v := range t.FromCatalog(app.Name, app.Channels, catalog) {
			if names[v.Name()] {
				return Namespace{}, fmt.Errorf(
					"duplicate view name %q when generating views for namespace %q", v.Name(), app.Name)
			}
			names[v.Name()] = true
			discovered = append(discovered, v)
		}
	}

	ns := Namespace{
		PrettyName: app.PrettyName,
		Owners:     app.Owners,
		Views:      map[string]views.Def{},
		Explores:   map[string]explores.Def{},
	}
	for _, v := range discovered {
		ns.Views[v.Name()] = v.Def()
	}
	for _, kind := range explores.Kinds {
		t := explores.Types[kind]
		if t.FromViews == nil {
			continue
		}
		for _, e := range t.FromViews(discovered) {
			ns.Explores[e.Name()] = e.Def()
		}
	}
	return ns, nil
}

// resolveDimensionDefaults fills the default and dropdown options of
// declared opmon dimensions from the most common values in the table.
func (a *Assembler) resolveDimensionDefaults(ctx context.Context, ns *Namespace) error {
	resolved := map[string]map[string]views.DimensionDefault{}
	for name, def := range ns.Views {
		for i := range def.Tables {
			t := &def.Tables[i]
			if len(t.Dimensions) == 0 || t.Table == "" {
				continue
			}
			ref, err := schema.ParseTableRef(t.Table)
			if err != nil {
				return err
			}
			for _, dim := range views.SortedDimensionNames(t.Dimensions) {
				d := t.Dimensions[dim]
				if d.Default != "" {
					continue
				}
				values, err := a.Inspector.DistinctValues(ctx, ref, dim, 10)
				if err != nil {
					return fmt.Errorf("resolving defaults for dimension %q of %s: %w", dim, ref, err)
				}
				if len(values) == 0 {
					continue
				}
				options := make([]string, 0, len(values))
				for _, v := range values {
					options = append(options, fmt.Sprint(v))
				}
				t.Dimensions[dim] = views.DimensionDefault{Default: options[0], Options: options}
			}
			resolved[name] = t.Dimensions
		}
		ns.Views[name] = def
	}

	// propagate resolved defaults to the explores and dashboards that
	// reference the same base view
	for name, def := range ns.Explores {
		if dims, ok := resolved[def.Views["base_view"]]; ok && len(def.Dimensions) > 0 {
			def.Dimensions = dims
			ns.Explores[name] = def
		}
	}
	for name, def := range ns.Dashboards {
		for i := range def.Tables {
			t := &def.Tables[i]
			if dims, ok := resolved[t.Explore]; ok && len(t.Dimensions) > 0 {
				t.Dimensions = dims
			}
		}
		ns.Dashboards[name] = def
	}
	return nil
}

// metricHubNamespaces derives one namespace fragment per metric-hub
// platform: a metric definitions view and explore per used data source.
func (a *Assembler) metricHubNamespaces(existing map[string]Namespace) map[string]Namespace {
	out := map[string]Namespace{}
	for _, platform := range a.Metrics.Platforms() {
		sources := a.Metrics.DataSourcesOfPlatform(platform)
		if len(sources) == 0 {
			continue
		}
		ns := Namespace{
			PrettyName: lookml.SlugToTitle(platform),
			Views:      map[string]views.Def{},
			Explores:   map[string]explores.Def{},
		}
		for _, source := range sources {
			name := "metric_definitions_" + source
			def := views.Def{Type: views.MetricDefinitionsKind}
			// give the view a client grain table when the namespace has one
			if tables := clientGrainTables(existing[platform]); len(tables) > 0 {
				def.Tables = tables
			}
			ns.Views[name] = def
			ns.Explores[name] = explores.Def{
				Type:  explores.MetricDefinitionsExploreKind,
				Views: map[string]string{"base_view": name},
			}
		}
		out[platform] = ns
	}
	return out
}

func clientGrainTables(ns Namespace) []views.Table {
	for _, candidate := range []string{"client_counts", "baseline_clients_daily"} {
		if def, ok := ns.Views[candidate]; ok && len(def.Tables) > 0 && def.Tables[0].Table != "" {
			return []views.Table{{Table: def.Tables[0].Table}}
		}
	}
	return nil
}

// mergeNamespace merges src over dst: scalars override when set, owners
// concatenate, maps merge by key with src winning.
func mergeNamespace(dst *Namespace, src Namespace) {
	if src.PrettyName != "" {
		dst.PrettyName = src.PrettyName
	}
	if src.Connection != "" {
		dst.Connection = src.Connection
	}
	dst.Owners = append(dst.Owners, src.Owners...)
	if len(src.Views) > 0 && dst.Views == nil {
		dst.Views = map[string]views.Def{}
	}
	for k, v := range src.Views {
		dst.Views[k] = v
	}
	if len(src.Explores) > 0 && dst.Explores == nil {
		dst.Explores = map[string]explores.Def{}
	}
	for k, v := range src.Explores {
		dst.Explores[k] = v
	}
	if len(src.Dashboards) > 0 && dst.Dashboards == nil {
		dst.Dashboards = map[string]dashboards.Def{}
	}
	for k, v := range src.Dashboards {
		dst.Dashboards[k] = v
	}
}

// validate rejects explores whose view references point outside the
// namespace.
func validate(name string, ns Namespace) error {
	for exploreName, def := range ns.Explores {
		for _, role := range sortedKeys(def.Views) {
			viewName := def.Views[role]
			if _, ok := ns.Views[viewName]; !ok {
				return fmt.Errorf(
					"explore %q in namespace %q references unknown view %q (role %s)",
					exploreName, name, viewName, role)
			}
		}
	}
	return nil
}

func matchesAny(globs []string, name string) (bool, error) {
	for _, glob := range globs {
		ok, err := path.Match(glob, name)
		if err != nil {
			return false, fmt.Errorf("bad disallow pattern %q: %w", glob, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Marshal renders namespaces as deterministic YAML, keys sorted.
func Marshal(namespaces map[string]Namespace) ([]byte, error) {
	return yaml.Marshal(namespaces)
}

// LoadApps reads the application registry.
func LoadApps(path string) ([]App, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var apps []App
	if err := yaml.Unmarshal(content, &apps); err != nil {
		return nil, fmt.Errorf("parsing app registry %s: %w", path, err)
	}
	return apps, nil
}

// LoadCatalog reads the dataset catalog: dataset -> view -> qualified
// source tables.
func LoadCatalog(path string) (views.Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	catalog := views.Catalog{}
	for dataset, viewRefs := range raw {
		catalog[dataset] = map[string][]schema.TableRef{}
		for view, tables := range viewRefs {
			refs := make([]schema.TableRef, 0, len(tables))
			for _, table := range tables {
				ref, err := schema.ParseTableRef(table)
				if err != nil {
					return nil, fmt.Errorf("catalog %s: view %s.%s: %w", path, dataset, view, err)
				}
				refs = append(refs, ref)
			}
			catalog[dataset][view] = refs
		}
	}
	return catalog, nil
}

// LoadCustom reads declared namespace overrides.
func LoadCustom(path string) (map[string]Namespace, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var custom map[string]Namespace
	if err := yaml.Unmarshal(content, &custom); err != nil {
		return nil, fmt.Errorf("parsing custom namespaces %s: %w", path, err)
	}
	return custom, nil
}

// LoadDisallowlist reads namespace glob patterns to exclude.
func LoadDisallowlist(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var globs []string
	if err := yaml.Unmarshal(content, &globs); err != nil {
		return nil, fmt.Errorf("parsing disallowlist %s: %w", path, err)
	}
	return globs, nil
}

// Parse reads an already-assembled namespaces.yaml.
func Parse(content []byte) (map[string]Namespace, error) {
	var namespaces map[string]Namespace
	if err := yaml.Unmarshal(content, &namespaces); err != nil {
		return nil, fmt.Errorf("parsing namespaces: %w", err)
	}
	return namespaces, nil
}
