// Package metrics loads metric-hub style metric definitions from a
// directory of YAML platform configs. The store is loaded once per run
// and passed explicitly to the view variants that need it; it is
// read-only after Load returns.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Statistic configures one derived measure of a metric, e.g. a ratio's
// numerator/denominator expressed as "metric_slug.statistic".
type Statistic struct {
	Numerator   string `yaml:"numerator,omitempty"`
	Denominator string `yaml:"denominator,omitempty"`
}

// Metric is one metric definition of a platform.
type Metric struct {
	DataSource       string               `yaml:"data_source"`
	SelectExpression string               `yaml:"select_expression"`
	Type             string               `yaml:"type,omitempty"`
	FriendlyName     string               `yaml:"friendly_name,omitempty"`
	Description      string               `yaml:"description,omitempty"`
	Statistics       map[string]Statistic `yaml:"statistics,omitempty"`
}

// DataSource describes one queryable source of metrics.
type DataSource struct {
	// SQL is a FROM-clause template; "{dataset}" expands to the
	// platform's dataset.
	SQL string `yaml:"from_expression"`
	// ClientIDColumn defaults to client_id. The literal "NULL" marks a
	// source with no client grain.
	ClientIDColumn       string `yaml:"client_id_column,omitempty"`
	SubmissionDateColumn string `yaml:"submission_date_column,omitempty"`
}

// Platform groups the data sources and metric definitions of one
// application namespace.
type Platform struct {
	Name        string                `yaml:"platform"`
	DataSources map[string]DataSource `yaml:"data_sources"`
	Metrics     map[string]Metric     `yaml:"metrics"`
}

// Store is a read-only snapshot of all platform definitions.
type Store struct {
	platforms map[string]Platform
}

// Load reads every *.yaml file under dir as one platform definition.
func Load(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	platforms := map[string]Platform{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var p Platform
		if err := yaml.Unmarshal(content, &p); err != nil {
			return nil, fmt.Errorf("parsing metric config %s: %w", e.Name(), err)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("metric config %s is missing a platform name", e.Name())
		}
		platforms[p.Name] = p
	}
	return &Store{platforms: platforms}, nil
}

// NewStore builds a store from already-parsed platforms, for tests and
// embedded configs.
func NewStore(platforms ...Platform) *Store {
	m := make(map[string]Platform, len(platforms))
	for _, p := range platforms {
		m[p.Name] = p
	}
	return &Store{platforms: m}
}

// Platforms lists all loaded platform names, sorted.
func (s *Store) Platforms() []string {
	names := make([]string, 0, len(s.platforms))
	for name := range s.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Platform returns the definitions of one platform.
func (s *Store) Platform(name string) (Platform, bool) {
	p, ok := s.platforms[name]
	return p, ok
}

// DataSourceSQL renders the FROM expression of one data source.
func (s *Store) DataSourceSQL(dataSource, platform string) (string, error) {
	p, ok := s.platforms[platform]
	if !ok {
		return "", fmt.Errorf("unknown platform %q", platform)
	}
	ds, ok := p.DataSources[dataSource]
	if !ok {
		return "", fmt.Errorf("unknown data source %q for platform %q", dataSource, platform)
	}
	return strings.ReplaceAll(ds.SQL, "{dataset}", platform), nil
}

// MetricsOfDataSource returns the slugs of all non-histogram metrics
// selecting from dataSource, sorted for deterministic output.
func (s *Store) MetricsOfDataSource(dataSource, platform string) []string {
	p, ok := s.platforms[platform]
	if !ok {
		return nil
	}
	var slugs []string
	for slug, m := range p.Metrics {
		if m.DataSource == dataSource && m.SelectExpression != "" && m.Type != "histogram" {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs
}

// DataSourcesOfPlatform returns data sources that at least one metric
// uses, sorted.
func (s *Store) DataSourcesOfPlatform(platform string) []string {
	p, ok := s.platforms[platform]
	if !ok {
		return nil
	}
	var used []string
	for slug := range p.DataSources {
		if len(s.MetricsOfDataSource(slug, platform)) > 0 {
			used = append(used, slug)
		}
	}
	sort.Strings(used)
	return used
}

// Metric returns one metric definition by slug.
func (s *Store) Metric(slug, platform string) (Metric, bool) {
	p, ok := s.platforms[platform]
	if !ok {
		return Metric{}, false
	}
	m, ok := p.Metrics[slug]
	return m, ok
}

// DataSource returns one data source definition by slug.
func (s *Store) DataSource(slug, platform string) (DataSource, bool) {
	p, ok := s.platforms[platform]
	if !ok {
		return DataSource{}, false
	}
	ds, ok := p.DataSources[slug]
	return ds, ok
}
