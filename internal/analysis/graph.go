package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/temirov/deptrack/internal/graph"
	"github.com/temirov/deptrack/internal/manifest"
	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/revision"
	"github.com/temirov/deptrack/internal/workspace"
)

const (
	pathQueryErrorTemplateConstant   = "%w: %s and %s"
	graphDescribedMessageConstant    = "dependency graphs described"
	logFieldPackageCountConstant     = "package_count"
	logFieldCycleCountConstant       = "cycle_count"
	describeRevisionTemplateConstant = "describe graphs at %s: %w"
)

// ErrPathQueryUnresolved reports a path query whose endpoints share no workspace.
var ErrPathQueryUnresolved = errors.New("no workspace contains both packages")

// GraphOptions captures the parameters of a graph description.
type GraphOptions struct {
	Parallelism           int
	IgnoreDevDependencies bool
	// From and To request the shortest dependency path between two packages when both are set.
	From string
	To   string
}

// DescribeGraphs discovers the workspaces on filesystem and describes their dependency graphs.
func DescribeGraphs(executionContext context.Context, logger *zap.Logger, filesystem afero.Fs, options GraphOptions) (report.GraphReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	discovered, discoveryError := workspace.Discover(executionContext, filesystem, workspace.Options{
		Parallelism: effectiveParallelism(options.Parallelism),
	})
	if discoveryError != nil {
		return report.GraphReport{}, discoveryError
	}

	collector := &problemCollector{}
	for _, parseError := range discovered.ParseErrors {
		collector.add(report.ProblemManifestParse, parseError.Workspace, "", parseError)
	}

	graphReport := report.GraphReport{}
	builtGraphs := make([]namedGraph, 0, len(discovered.Workspaces))
	for _, discoveredWorkspace := range discovered.Workspaces {
		dependencyGraph, unresolved, buildError := graph.Build(discoveredWorkspace.Packages, graph.Options{
			IgnoreDevDependencies: options.IgnoreDevDependencies,
		})
		if buildError != nil {
			collector.add(report.ProblemGraphBuild, discoveredWorkspace.Name, "", buildError)
			continue
		}
		for _, unresolvedError := range unresolved {
			collector.add(report.ProblemUnresolvedDependency, discoveredWorkspace.Name, unresolvedError.Package, unresolvedError)
		}

		workspaceGraph := describeWorkspace(discoveredWorkspace, dependencyGraph)
		graphReport.Workspaces = append(graphReport.Workspaces, workspaceGraph)
		builtGraphs = append(builtGraphs, namedGraph{workspace: discoveredWorkspace.Name, dependencyGraph: dependencyGraph})
	}
	graphReport.Stats = report.SummarizeGraphs(graphReport.Workspaces)

	if len(options.From) > 0 && len(options.To) > 0 {
		query, queryError := answerPathQuery(builtGraphs, options.From, options.To)
		if queryError != nil {
			return report.GraphReport{}, queryError
		}
		graphReport.Query = &query
	}
	graphReport.Problems = collector.result()

	logger.Info(
		graphDescribedMessageConstant,
		zap.Int(logFieldWorkspacesConstant, len(graphReport.Workspaces)),
		zap.Int(logFieldPackageCountConstant, graphReport.Stats.Packages),
		zap.Int(logFieldCycleCountConstant, graphReport.Stats.Cycles),
		zap.Int(logFieldProblemCountConstant, collector.count()),
	)
	return graphReport, nil
}

// DescribeRevision describes the dependency graphs present at ref.
func (service *Service) DescribeRevision(executionContext context.Context, ref string, options GraphOptions) (report.GraphReport, error) {
	snapshot, snapshotError := revision.Snapshot(executionContext, service.adapter, ref, revision.SnapshotOptions{
		FileNames:   []string{manifest.FileName},
		Parallelism: options.Parallelism,
	})
	if snapshotError != nil {
		return report.GraphReport{}, fmt.Errorf(describeRevisionTemplateConstant, ref, snapshotError)
	}
	return DescribeGraphs(executionContext, service.logger, snapshot, options)
}

func describeWorkspace(discoveredWorkspace workspace.Workspace, dependencyGraph *graph.DependencyGraph) report.WorkspaceGraph {
	workspaceGraph := report.WorkspaceGraph{
		Name:   discoveredWorkspace.Name,
		Root:   discoveredWorkspace.Root,
		Cycles: dependencyGraph.FindCycles(),
	}
	for _, pkg := range dependencyGraph.Packages() {
		workspaceGraph.Packages = append(workspaceGraph.Packages, report.GraphNode{
			Name:         pkg.Name,
			Version:      pkg.Version,
			Path:         pkg.Path,
			Dependencies: dependencyGraph.Dependencies(pkg.Name),
			Dependents:   dependencyGraph.Dependents(pkg.Name),
		})
	}
	if order, orderError := dependencyGraph.TopologicalOrder(); orderError == nil {
		workspaceGraph.BuildOrder = order
	}
	return workspaceGraph
}

type namedGraph struct {
	workspace       string
	dependencyGraph *graph.DependencyGraph
}

func answerPathQuery(builtGraphs []namedGraph, from string, to string) (report.PathQuery, error) {
	for _, built := range builtGraphs {
		dependencyGraph := built.dependencyGraph
		_, hasFrom := dependencyGraph.Package(from)
		_, hasTo := dependencyGraph.Package(to)
		if !hasFrom || !hasTo {
			continue
		}
		dependencyPath, pathError := dependencyGraph.DependencyPath(from, to)
		if pathError != nil {
			return report.PathQuery{}, pathError
		}
		return report.PathQuery{From: from, To: to, Workspace: built.workspace, Path: dependencyPath}, nil
	}
	return report.PathQuery{}, fmt.Errorf(pathQueryErrorTemplateConstant, ErrPathQueryUnresolved, from, to)
}
