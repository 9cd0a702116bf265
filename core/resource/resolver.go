package resource

import (
	"context"
	"fmt"

	"github.com/kushsharma/parallel"
	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/internal/errors"
)

const (
	// ConcurrentTicketPerSec limits how fast sibling containers are enumerated.
	ConcurrentTicketPerSec = 5
	ConcurrentLimit        = 20
)

// Lister enumerates child containers. Implementations may fail per container;
// the resolver logs and skips that branch.
type Lister interface {
	ListProjects(ctx context.Context, folderID string) ([]string, error)
	ListDatasets(ctx context.Context, projectID string) ([]string, error)
	ListTables(ctx context.Context, dataset DatasetSpec) ([]string, error)
}

// ScopeResolver expands a Scope into concrete resources. The four levels are
// considered bottom-up: an explicit table include list wins over everything
// above it, then datasets, then projects, then folders.
type ScopeResolver struct {
	l      log.Logger
	lister Lister
}

func NewScopeResolver(logger log.Logger, lister Lister) *ScopeResolver {
	return &ScopeResolver{
		l:      logger,
		lister: lister,
	}
}

// ResolveTables expands the scope down to individual tables.
func (r *ScopeResolver) ResolveTables(ctx context.Context, scope Scope) ([]TableSpec, error) {
	tableRules, err := compileExclusionRules(scope.TablesExclude)
	if err != nil {
		return nil, err
	}

	if len(scope.TablesInclude) > 0 {
		tables := make([]TableSpec, 0, len(scope.TablesInclude))
		for _, entry := range scope.TablesInclude {
			spec, err := ParseTableSpec(entry)
			if err != nil {
				return nil, err
			}
			if rule, excluded := excludedBy(tableRules, spec.FullName()); excluded {
				r.l.Info(fmt.Sprintf("table %s excluded by rule %s", spec.FullName(), rule))
				continue
			}
			tables = append(tables, spec)
		}
		return tables, nil
	}

	datasets, err := r.datasetsInScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	runner := parallel.NewRunner(parallel.WithLimit(ConcurrentLimit), parallel.WithTicket(ConcurrentTicketPerSec))
	for _, ds := range datasets {
		runner.Add(func(dataset DatasetSpec) func() (interface{}, error) {
			return func() (interface{}, error) {
				return r.tablesInDataset(ctx, dataset, tableRules), nil
			}
		}(ds))
	}

	var tables []TableSpec
	for _, result := range runner.Run() {
		tables = append(tables, result.Val.([]TableSpec)...)
	}
	return tables, nil
}

// ResolveDatasets expands the scope down to datasets only, the shallower
// variant used by the fan-out stage. An explicit table include list is the
// caller's to handle; a scope carrying nothing above tables is underspecified
// here.
func (r *ScopeResolver) ResolveDatasets(ctx context.Context, scope Scope) ([]DatasetSpec, error) {
	return r.datasetsInScope(ctx, scope)
}

func (r *ScopeResolver) datasetsInScope(ctx context.Context, scope Scope) ([]DatasetSpec, error) {
	datasetRules, err := compileExclusionRules(scope.DatasetsExclude)
	if err != nil {
		return nil, err
	}

	if len(scope.DatasetsInclude) > 0 {
		datasets := make([]DatasetSpec, 0, len(scope.DatasetsInclude))
		for _, entry := range scope.DatasetsInclude {
			spec, err := ParseDatasetSpec(entry)
			if err != nil {
				return nil, err
			}
			if rule, excluded := excludedBy(datasetRules, spec.FullName()); excluded {
				r.l.Info(fmt.Sprintf("dataset %s excluded by rule %s", spec.FullName(), rule))
				continue
			}
			datasets = append(datasets, spec)
		}
		return datasets, nil
	}

	projects, err := r.projectsInScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	runner := parallel.NewRunner(parallel.WithLimit(ConcurrentLimit), parallel.WithTicket(ConcurrentTicketPerSec))
	for _, project := range projects {
		runner.Add(func(projectID string) func() (interface{}, error) {
			return func() (interface{}, error) {
				return r.datasetsInProject(ctx, projectID, datasetRules), nil
			}
		}(project))
	}

	var datasets []DatasetSpec
	for _, result := range runner.Run() {
		datasets = append(datasets, result.Val.([]DatasetSpec)...)
	}
	return datasets, nil
}

func (r *ScopeResolver) projectsInScope(ctx context.Context, scope Scope) ([]string, error) {
	projectRules, err := compileExclusionRules(scope.ProjectsExclude)
	if err != nil {
		return nil, err
	}

	var candidates []string
	switch {
	case len(scope.ProjectsInclude) > 0:
		candidates = scope.ProjectsInclude
	case len(scope.FoldersInclude) > 0:
		for _, folderID := range scope.FoldersInclude {
			listed, err := r.lister.ListProjects(ctx, folderID)
			if err != nil {
				// one unreachable folder must not abort the whole run
				r.l.Warn(fmt.Sprintf("skipping folder %s, listing projects failed: %s", folderID, err.Error()))
				continue
			}
			candidates = append(candidates, listed...)
		}
	default:
		return nil, errors.InvalidArgument(EntityScope, "scope has no include list at any level")
	}

	projects := make([]string, 0, len(candidates))
	for _, project := range candidates {
		if rule, excluded := excludedBy(projectRules, project); excluded {
			r.l.Info(fmt.Sprintf("project %s excluded by rule %s", project, rule))
			continue
		}
		projects = append(projects, project)
	}
	return projects, nil
}

func (r *ScopeResolver) datasetsInProject(ctx context.Context, projectID string, rules []exclusionRule) []DatasetSpec {
	names, err := r.lister.ListDatasets(ctx, projectID)
	if err != nil {
		r.l.Warn(fmt.Sprintf("skipping project %s, listing datasets failed: %s", projectID, err.Error()))
		return nil
	}
	if len(names) == 0 {
		r.l.Warn(fmt.Sprintf("project %s has no datasets", projectID))
	}

	datasets := make([]DatasetSpec, 0, len(names))
	for _, name := range names {
		spec, err := DatasetSpecFrom(projectID, name)
		if err != nil {
			r.l.Warn(fmt.Sprintf("skipping dataset %s.%s: %s", projectID, name, err.Error()))
			continue
		}
		if rule, excluded := excludedBy(rules, spec.FullName()); excluded {
			r.l.Info(fmt.Sprintf("dataset %s excluded by rule %s", spec.FullName(), rule))
			continue
		}
		datasets = append(datasets, spec)
	}
	return datasets
}

func (r *ScopeResolver) tablesInDataset(ctx context.Context, dataset DatasetSpec, rules []exclusionRule) []TableSpec {
	names, err := r.lister.ListTables(ctx, dataset)
	if err != nil {
		r.l.Warn(fmt.Sprintf("skipping dataset %s, listing tables failed: %s", dataset.FullName(), err.Error()))
		return nil
	}
	if len(names) == 0 {
		r.l.Warn(fmt.Sprintf("dataset %s has no tables", dataset.FullName()))
	}

	tables := make([]TableSpec, 0, len(names))
	for _, name := range names {
		spec, err := TableSpecFrom(dataset.Project, dataset.Dataset, name)
		if err != nil {
			r.l.Warn(fmt.Sprintf("skipping table %s.%s: %s", dataset.FullName(), name, err.Error()))
			continue
		}
		if rule, excluded := excludedBy(rules, spec.FullName()); excluded {
			r.l.Info(fmt.Sprintf("table %s excluded by rule %s", spec.FullName(), rule))
			continue
		}
		tables = append(tables, spec)
	}
	return tables
}
