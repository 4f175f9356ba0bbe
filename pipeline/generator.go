// Package pipeline orchestrates a full generation run: namespace
// assembly, then per-namespace rendering of views, datagroups, explores
// and dashboards into the looker-hub tree.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/mozdata/lookgen/config"
	"github.com/mozdata/lookgen/dashboards"
	"github.com/mozdata/lookgen/datagroups"
	"github.com/mozdata/lookgen/explores"
	"github.com/mozdata/lookgen/lkml"
	"github.com/mozdata/lookgen/metrics"
	"github.com/mozdata/lookgen/namespaces"
	"github.com/mozdata/lookgen/output"
	"github.com/mozdata/lookgen/schema"
	"github.com/mozdata/lookgen/views"
)

var (
	artifactsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookgen_artifacts_total",
		Help: "Number of generated artifacts by namespace and kind",
	}, []string{"namespace", "kind"})

	namespaceErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookgen_namespace_errors_total",
		Help: "Number of namespaces whose generation failed",
	}, []string{"namespace"})
)

// Generator runs the two generation phases against a schema inspector
// and an output writer.
type Generator struct {
	inspector schema.Inspector
	writer    output.Writer
	config    config.Config
}

// NewGenerator creates a Generator.
func NewGenerator(inspector schema.Inspector, writer output.Writer, cfg config.Config) *Generator {
	return &Generator{
		inspector: inspector,
		writer:    writer,
		config:    cfg,
	}
}

// Run assembles every namespace, writes namespaces.yaml and then
// generates each namespace's artifacts concurrently. A non-empty only
// restricts artifact generation to the one named namespace.
func (g *Generator) Run(ctx context.Context, only string) error {
	apps, err := namespaces.LoadApps(g.config.AppListing)
	if err != nil {
		return err
	}
	catalog, err := namespaces.LoadCatalog(g.config.Catalog)
	if err != nil {
		return err
	}
	custom, err := namespaces.LoadCustom(g.config.CustomNamespaces)
	if err != nil {
		return err
	}
	disallow, err := namespaces.LoadDisallowlist(g.config.Disallowlist)
	if err != nil {
		return err
	}
	store := metrics.NewStore()
	if g.config.MetricHub != "" {
		store, err = metrics.Load(g.config.MetricHub)
		if err != nil {
			return err
		}
	}

	asm := &namespaces.Assembler{Inspector: g.inspector, Metrics: store}
	assembled, err := asm.Build(ctx, apps, catalog, custom, disallow)
	if err != nil {
		return err
	}
	if only != "" {
		if _, ok := assembled[only]; !ok {
			return fmt.Errorf("unknown namespace %q", only)
		}
	}
	content, err := namespaces.Marshal(assembled)
	if err != nil {
		return err
	}
	if err := g.writer.Write(ctx, "namespaces.yaml", content); err != nil {
		return err
	}

	env := &views.Env{Inspector: g.inspector, Metrics: store}

	eg, ctx := errgroup.WithContext(ctx)
	parallelism := g.config.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(parallelism)
	for name := range assembled {
		if only != "" && name != only {
			continue
		}
		name, ns := name, assembled[name]
		eg.Go(func() error {
			start := time.Now()
			if err := g.generateNamespace(ctx, env, catalog, name, ns); err != nil {
				namespaceErrorsMetric.WithLabelValues(name).Inc()
				return fmt.Errorf("generating namespace %q: %w", name, err)
			}
			log.Printf("Generated namespace %s in %s", name,
				time.Since(start).Round(time.Millisecond))
			return nil
		})
	}
	return eg.Wait()
}

// generateNamespace renders one namespace: views first so the explores
// can resolve join partners against the index, explores next, then
// dashboards.
func (g *Generator) generateNamespace(ctx context.Context, env *views.Env,
	catalog views.Catalog, name string, ns namespaces.Namespace) error {
	ix := explores.NewViewIndex()

	// Datagroups are keyed by the resolved physical table, so views over
	// the same table collapse onto one datagroup artifact.
	writtenDatagroups := map[string]bool{}

	for _, viewName := range sortedViewNames(ns.Views) {
		v, err := views.FromDef(name, viewName, ns.Views[viewName])
		if err != nil {
			return err
		}
		f, err := v.LookML(ctx, env)
		if err != nil {
			return err
		}
		if len(f.Views) == 0 {
			// Nothing to render, e.g. a metric definitions view whose
			// data source has no metrics.
			continue
		}
		p := path.Join(name, "views", viewName+".view.lkml")
		if err := g.writer.Write(ctx, p, []byte(lkml.EncodeView(f))); err != nil {
			return err
		}
		artifactsMetric.WithLabelValues(name, "view").Inc()
		ix.AddFile(viewName, f)

		dg, err := datagroups.ForView(ctx, g.inspector, catalog, v)
		if err != nil {
			return err
		}
		if dg != nil {
			ix.AddDatagroup(viewName, dg.Name)
			if !writtenDatagroups[dg.Name] {
				writtenDatagroups[dg.Name] = true
				p := path.Join(name, "datagroups", dg.Name+".datagroup.lkml")
				if err := g.writer.Write(ctx, p, []byte(lkml.EncodeDatagroup(dg))); err != nil {
					return err
				}
				artifactsMetric.WithLabelValues(name, "datagroup").Inc()
			}
		}
	}

	for _, exploreName := range sortedExploreNames(ns.Explores) {
		e, err := explores.FromDef(exploreName, ns.Explores[exploreName])
		if err != nil {
			return err
		}
		f, err := e.LookML(ix)
		if err != nil {
			// Explores over skipped views cannot render; drop them
			// rather than failing the namespace.
			log.Printf("Skipping explore %s/%s: %v", name, exploreName, err)
			continue
		}
		f.Includes = append(g.exploreIncludes(name, e, ix), f.Includes...)
		p := path.Join(name, "explores", exploreName+".explore.lkml")
		if err := g.writer.Write(ctx, p, []byte(lkml.EncodeExplore(f))); err != nil {
			return err
		}
		artifactsMetric.WithLabelValues(name, "explore").Inc()
	}

	for _, dashName := range sortedDashboardNames(ns.Dashboards) {
		d, err := dashboards.FromDef(name, dashName, ns.Dashboards[dashName])
		if err != nil {
			return err
		}
		content, err := d.LookML()
		if err != nil {
			return err
		}
		p := path.Join(name, "dashboards", dashName+".dashboard.lookml")
		if err := g.writer.Write(ctx, p, []byte(lkml.FileHeader+content)); err != nil {
			return err
		}
		artifactsMetric.WithLabelValues(name, "dashboard").Inc()
	}
	return nil
}

// exploreIncludes derives the include paths of an explore from its
// dependent views, plus the datagroup of any dependent that has one.
func (g *Generator) exploreIncludes(namespace string, e explores.Explore, ix *explores.ViewIndex) []string {
	var includes []string
	seen := map[string]bool{}
	for _, dep := range e.DependentViews(ix) {
		includes = append(includes,
			fmt.Sprintf("/looker-hub/%s/views/%s.view.lkml", namespace, dep))
		if dg, ok := ix.Datagroup(dep); ok && !seen[dg] {
			seen[dg] = true
			includes = append(includes,
				fmt.Sprintf("/looker-hub/%s/datagroups/%s.datagroup.lkml", namespace, dg))
		}
	}
	return includes
}

func sortedViewNames(m map[string]views.Def) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedExploreNames(m map[string]explores.Def) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedDashboardNames(m map[string]dashboards.Def) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
