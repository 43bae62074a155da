package analysis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/deptrack/internal/changelog"
	"github.com/temirov/deptrack/internal/graph"
	"github.com/temirov/deptrack/internal/impact"
	"github.com/temirov/deptrack/internal/manifest"
	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/revision"
	"github.com/temirov/deptrack/internal/severity"
	"github.com/temirov/deptrack/internal/versioncheck"
	"github.com/temirov/deptrack/internal/workspace"
)

const (
	defaultTargetRefConstant            = "HEAD"
	resolveRefErrorTemplateConstant     = "resolve %s: %w"
	changedFilesErrorTemplateConstant   = "list changed files %s..%s: %w"
	mergeBaseErrorTemplateConstant      = "merge base of %s and %s: %w"
	snapshotErrorTemplateConstant       = "read manifests at %s: %w"
	discoveryErrorTemplateConstant      = "discover workspaces at %s: %w"
	baseManifestErrorTemplateConstant   = "read %s at %s: %w"
	changelogReadErrorTemplateConstant  = "read %s at %s: %w"
	runStartedMessageConstant           = "analysis started"
	runCompletedMessageConstant         = "analysis completed"
	workspacesDiscoveredMessageConstant = "workspaces discovered"
	runProblemsMessageConstant          = "analysis collected problems"
	workspaceSkippedMessageConstant     = "workspace skipped"
	mergeBaseResolvedMessageConstant    = "comparing against merge base"
	logFieldBaseRefConstant             = "base_ref"
	logFieldTargetRefConstant           = "target_ref"
	logFieldBaseRevisionConstant        = "base_revision"
	logFieldTargetRevisionConstant      = "target_revision"
	logFieldMergeBaseConstant           = "merge_base"
	logFieldChangedFilesConstant        = "changed_files"
	logFieldWorkspacesConstant          = "workspaces"
	logFieldWorkspaceConstant           = "workspace"
	logFieldImpactedPackagesConstant    = "impacted_packages"
	logFieldProblemCountConstant        = "problem_count"
	logFieldOutcomeConstant             = "outcome"
	logFieldParallelismConstant         = "parallelism"
	logFieldSkipChangelogConstant       = "skip_changelog"
	logFieldAllPackagesConstant         = "all_packages"
	workspacePathSeparatorConstant      = "/"
	missingBaseWorkspaceVersionConstant = ""
)

// Options captures the parameters of one analysis run.
type Options struct {
	BaseRef string
	// TargetRef defaults to HEAD.
	TargetRef             string
	Parallelism           int
	ChangelogFileName     string
	IgnoreDevDependencies bool
	// MergeBase compares targetRef against the common ancestor of both refs instead of baseRef itself.
	MergeBase bool
	// SkipChangelog disables changelog checks; only versions are assessed.
	SkipChangelog bool
	// AllPackages also checks the changelogs of packages the change did not reach.
	AllPackages bool
	Severity    *severity.Config
}

// Service runs analyses against a revision adapter.
type Service struct {
	logger  *zap.Logger
	adapter revision.Adapter
}

// NewService constructs a Service; a nil logger disables logging.
func NewService(logger *zap.Logger, adapter revision.Adapter) (*Service, error) {
	if adapter == nil {
		return nil, ErrAdapterNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, adapter: adapter}, nil
}

type packageTask struct {
	workspace            string
	pkg                  manifest.Package
	class                impact.Class
	baseWorkspaceVersion string
	// changelogOnly marks packages outside the impact set, whose version is not compared.
	changelogOnly bool
}

type packageResult struct {
	workspace        string
	versionFinding   *versioncheck.VersionFinding
	changelogFinding *changelog.ChangelogFinding
	problems         []collectedProblem
}

type workspaceOutcome struct {
	summary report.WorkspaceSummary
	cycles  []graph.Cycle
	tasks   []packageTask
}

// Run compares baseRef with targetRef and returns the assessed report.
// Errors reading individual packages are collected into the report; only
// configuration, revision resolution, listing and cancellation abort the run.
func (service *Service) Run(executionContext context.Context, options Options) (report.Report, error) {
	if options.Severity == nil {
		return report.Report{}, severity.ErrConfigurationMissing
	}
	targetRef := strings.TrimSpace(options.TargetRef)
	if len(targetRef) == 0 {
		targetRef = defaultTargetRefConstant
	}
	baseRef := strings.TrimSpace(options.BaseRef)
	limit := effectiveParallelism(options.Parallelism)

	service.logger.Info(
		runStartedMessageConstant,
		zap.String(logFieldBaseRefConstant, baseRef),
		zap.String(logFieldTargetRefConstant, targetRef),
		zap.Int(logFieldParallelismConstant, limit),
		zap.Bool(logFieldSkipChangelogConstant, options.SkipChangelog),
		zap.Bool(logFieldAllPackagesConstant, options.AllPackages),
	)

	baseRevision, baseError := service.adapter.ResolveRevision(executionContext, baseRef)
	if baseError != nil {
		return report.Report{}, fmt.Errorf(resolveRefErrorTemplateConstant, baseRef, baseError)
	}
	targetRevision, targetError := service.adapter.ResolveRevision(executionContext, targetRef)
	if targetError != nil {
		return report.Report{}, fmt.Errorf(resolveRefErrorTemplateConstant, targetRef, targetError)
	}
	revisions := report.Revisions{
		BaseRef:        baseRef,
		BaseRevision:   baseRevision,
		TargetRef:      targetRef,
		TargetRevision: targetRevision,
	}

	if options.MergeBase {
		mergeBase, mergeError := service.adapter.MergeBase(executionContext, baseRevision, targetRevision)
		if mergeError != nil {
			return report.Report{}, fmt.Errorf(mergeBaseErrorTemplateConstant, baseRef, targetRef, mergeError)
		}
		service.logger.Debug(
			mergeBaseResolvedMessageConstant,
			zap.String(logFieldBaseRevisionConstant, baseRevision),
			zap.String(logFieldMergeBaseConstant, mergeBase),
		)
		revisions.MergeBase = mergeBase
		baseRevision = mergeBase
	}

	changedFiles, changedError := service.adapter.ChangedFiles(executionContext, baseRevision, targetRevision)
	if changedError != nil {
		return report.Report{}, fmt.Errorf(changedFilesErrorTemplateConstant, baseRef, targetRef, changedError)
	}

	snapshot, snapshotError := revision.Snapshot(executionContext, service.adapter, targetRevision, revision.SnapshotOptions{
		FileNames:   []string{manifest.FileName},
		Parallelism: limit,
	})
	if snapshotError != nil {
		return report.Report{}, fmt.Errorf(snapshotErrorTemplateConstant, targetRef, snapshotError)
	}
	discovered, discoveryError := workspace.Discover(executionContext, snapshot, workspace.Options{
		Parallelism:       limit,
		ChangelogFileName: options.ChangelogFileName,
	})
	if discoveryError != nil {
		return report.Report{}, fmt.Errorf(discoveryErrorTemplateConstant, targetRef, discoveryError)
	}

	service.logger.Debug(
		workspacesDiscoveredMessageConstant,
		zap.String(logFieldBaseRevisionConstant, baseRevision),
		zap.String(logFieldTargetRevisionConstant, targetRevision),
		zap.Int(logFieldChangedFilesConstant, len(changedFiles)),
		zap.Int(logFieldWorkspacesConstant, len(discovered.Workspaces)),
	)

	collector := &problemCollector{}
	for _, parseError := range discovered.ParseErrors {
		collector.add(report.ProblemManifestParse, parseError.Workspace, "", parseError)
	}

	workspaceRoots := make([]string, 0, len(discovered.Workspaces))
	for _, discoveredWorkspace := range discovered.Workspaces {
		workspaceRoots = append(workspaceRoots, discoveredWorkspace.Root)
	}

	input := severity.RunInput{Revisions: revisions, ChangelogSkipped: options.SkipChangelog}
	tasks := make([]packageTask, 0)
	for _, discoveredWorkspace := range discovered.Workspaces {
		if contextError := executionContext.Err(); contextError != nil {
			return report.Report{}, contextError
		}
		outcome, analyzed := service.analyzeWorkspace(executionContext, discoveredWorkspace, workspaceRoots, changedFiles, baseRevision, options, collector)
		if !analyzed {
			continue
		}
		input.Workspaces = append(input.Workspaces, outcome.summary)
		if len(outcome.cycles) > 0 {
			input.Cycles = append(input.Cycles, report.WorkspaceCycles{Workspace: discoveredWorkspace.Name, Cycles: outcome.cycles})
		}
		tasks = append(tasks, outcome.tasks...)
	}

	results, checkError := service.checkPackages(executionContext, tasks, baseRevision, targetRevision, options, limit)
	if checkError != nil {
		return report.Report{}, checkError
	}
	for _, result := range results {
		if result.versionFinding != nil {
			input.VersionFindings = append(input.VersionFindings, report.AssessedVersionFinding{
				Workspace: result.workspace,
				Finding:   *result.versionFinding,
			})
		}
		if result.changelogFinding != nil {
			input.ChangelogFindings = append(input.ChangelogFindings, report.AssessedChangelogFinding{
				Workspace: result.workspace,
				Finding:   *result.changelogFinding,
			})
		}
		collector.merge(result.problems)
	}
	input.Problems = collector.result()

	if collector.count() > 0 {
		service.logger.Warn(
			runProblemsMessageConstant,
			zap.Int(logFieldProblemCountConstant, collector.count()),
			zap.Error(collector.combined()),
		)
	}

	assessed := severity.EvaluateRun(input, *options.Severity)
	service.logger.Info(
		runCompletedMessageConstant,
		zap.String(logFieldOutcomeConstant, string(assessed.Outcome)),
		zap.Int(logFieldImpactedPackagesConstant, len(tasks)),
	)
	return assessed, nil
}

// analyzeWorkspace builds the graph and impact set of one workspace. It reports false when the
// workspace had to be skipped.
func (service *Service) analyzeWorkspace(executionContext context.Context, discoveredWorkspace workspace.Workspace, workspaceRoots []string, changedFiles []string, baseRevision string, options Options, collector *problemCollector) (workspaceOutcome, bool) {
	dependencyGraph, unresolved, buildError := graph.Build(discoveredWorkspace.Packages, graph.Options{
		IgnoreDevDependencies: options.IgnoreDevDependencies,
	})
	if buildError != nil {
		collector.add(report.ProblemGraphBuild, discoveredWorkspace.Name, "", buildError)
		service.logger.Warn(
			workspaceSkippedMessageConstant,
			zap.String(logFieldWorkspaceConstant, discoveredWorkspace.Name),
			zap.Error(buildError),
		)
		return workspaceOutcome{}, false
	}
	for _, unresolvedError := range unresolved {
		collector.add(report.ProblemUnresolvedDependency, discoveredWorkspace.Name, unresolvedError.Package, unresolvedError)
	}

	workspaceFiles := filesOwnedByWorkspace(changedFiles, discoveredWorkspace.Root, workspaceRoots)
	impactSet := impact.ComputeImpact(dependencyGraph, workspaceFiles)

	outcome := workspaceOutcome{
		summary: report.WorkspaceSummary{
			Name:         discoveredWorkspace.Name,
			Root:         discoveredWorkspace.Root,
			Packages:     dependencyGraph.Len(),
			Direct:       impactSet.Direct,
			Transitive:   impactSet.Transitive,
			UnownedFiles: impactSet.UnownedFiles,
		},
		cycles: dependencyGraph.FindCycles(),
	}

	impactedNames := impactSet.Impacted()
	if options.AllPackages && !options.SkipChangelog {
		for _, name := range dependencyGraph.Names() {
			if _, impacted := impactSet.ClassOf(name); impacted {
				continue
			}
			pkg, _ := dependencyGraph.Package(name)
			outcome.tasks = append(outcome.tasks, packageTask{
				workspace:     discoveredWorkspace.Name,
				pkg:           pkg,
				class:         impact.ClassUnchanged,
				changelogOnly: true,
			})
		}
	}
	if len(impactedNames) == 0 {
		return outcome, true
	}

	baseWorkspaceVersion := service.baseWorkspaceVersion(executionContext, discoveredWorkspace, baseRevision)
	for _, name := range impactedNames {
		pkg, exists := dependencyGraph.Package(name)
		if !exists {
			continue
		}
		class, _ := impactSet.ClassOf(name)
		outcome.tasks = append(outcome.tasks, packageTask{
			workspace:            discoveredWorkspace.Name,
			pkg:                  pkg,
			class:                class,
			baseWorkspaceVersion: baseWorkspaceVersion,
		})
	}
	return outcome, true
}

// baseWorkspaceVersion returns [workspace.package].version of the workspace root at the base revision.
func (service *Service) baseWorkspaceVersion(executionContext context.Context, discoveredWorkspace workspace.Workspace, baseRevision string) string {
	rootManifestPath := path.Join(discoveredWorkspace.Root, manifest.FileName)
	content, readError := service.adapter.ReadFile(executionContext, baseRevision, rootManifestPath)
	if readError != nil {
		return missingBaseWorkspaceVersionConstant
	}
	workspaceManifest, _, decodeError := manifest.ParseWorkspaceManifest(rootManifestPath, []byte(content))
	if decodeError != nil {
		return missingBaseWorkspaceVersionConstant
	}
	return workspaceManifest.PackageVersion
}

// checkPackages fans the per-package checks out over a bounded pool and reduces the results in task order.
func (service *Service) checkPackages(executionContext context.Context, tasks []packageTask, baseRevision string, targetRevision string, options Options, limit int) ([]packageResult, error) {
	type indexedResult struct {
		index  int
		result packageResult
	}

	resultChannel := make(chan indexedResult, len(tasks))
	checkGroup, checkContext := errgroup.WithContext(executionContext)
	checkGroup.SetLimit(limit)
	for taskIndex, task := range tasks {
		checkGroup.Go(func() error {
			if contextError := checkContext.Err(); contextError != nil {
				return contextError
			}
			result, taskError := service.checkPackage(checkContext, task, baseRevision, targetRevision, options)
			if taskError != nil {
				return taskError
			}
			resultChannel <- indexedResult{index: taskIndex, result: result}
			return nil
		})
	}
	waitError := checkGroup.Wait()
	close(resultChannel)
	if waitError != nil {
		return nil, waitError
	}

	results := make([]packageResult, len(tasks))
	for indexed := range resultChannel {
		results[indexed.index] = indexed.result
	}
	return results, nil
}

// checkPackage runs the version and changelog checks of one package. Only cancellation is
// returned as an error; read failures become problems.
func (service *Service) checkPackage(executionContext context.Context, task packageTask, baseRevision string, targetRevision string, options Options) (packageResult, error) {
	result := packageResult{workspace: task.workspace}
	policy := options.Severity.Changelog

	if !task.changelogOnly {
		versionFinding, versionProblem, versionError := service.checkPackageVersion(executionContext, task, baseRevision)
		if versionError != nil {
			return packageResult{}, versionError
		}
		versionFinding = versionFinding.WithImpact(task.class)
		result.versionFinding = &versionFinding
		if versionProblem != nil {
			result.problems = append(result.problems, *versionProblem)
		}
	}
	if options.SkipChangelog {
		return result, nil
	}

	if task.pkg.ChangelogDisabled || len(task.pkg.ChangelogPath) == 0 {
		changelogFinding := changelog.CheckChangelog(task.pkg, nil, policy).WithImpact(task.class)
		result.changelogFinding = &changelogFinding
		return result, nil
	}

	content, readError := service.adapter.ReadFile(executionContext, targetRevision, task.pkg.ChangelogPath)
	switch {
	case readError == nil:
		changelogFinding := changelog.CheckChangelog(task.pkg, &content, policy).WithImpact(task.class)
		result.changelogFinding = &changelogFinding
	case revision.IsFileNotFound(readError):
		changelogFinding := changelog.CheckChangelog(task.pkg, nil, policy).WithImpact(task.class)
		result.changelogFinding = &changelogFinding
	case isCancellation(executionContext, readError):
		return packageResult{}, readError
	default:
		result.problems = append(result.problems, collectedProblem{
			kind:      report.ProblemChangelogRead,
			workspace: task.workspace,
			pkg:       task.pkg.Name,
			err:       fmt.Errorf(changelogReadErrorTemplateConstant, task.pkg.ChangelogPath, targetRevision, readError),
		})
	}
	return result, nil
}

func (service *Service) checkPackageVersion(executionContext context.Context, task packageTask, baseRevision string) (versioncheck.VersionFinding, *collectedProblem, error) {
	content, readError := service.adapter.ReadFile(executionContext, baseRevision, task.pkg.ManifestPath)
	switch {
	case readError == nil:
	case revision.IsFileNotFound(readError):
		return versioncheck.CheckAdded(task.pkg.Name, task.pkg.Version), nil, nil
	case isCancellation(executionContext, readError):
		return versioncheck.VersionFinding{}, nil, readError
	default:
		wrapped := fmt.Errorf(baseManifestErrorTemplateConstant, task.pkg.ManifestPath, baseRevision, readError)
		problem := &collectedProblem{
			kind:      report.ProblemVersionRead,
			workspace: task.workspace,
			pkg:       task.pkg.Name,
			err:       wrapped,
		}
		return versioncheck.Unparsable(task.pkg.Name, "", task.pkg.Version, wrapped), problem, nil
	}

	baseVersion, versionError := manifest.ReadVersion(task.pkg.ManifestPath, []byte(content), task.baseWorkspaceVersion)
	if versionError != nil {
		return versioncheck.Unparsable(task.pkg.Name, "", task.pkg.Version, versionError), nil, nil
	}
	return versioncheck.CheckVersion(task.pkg.Name, baseVersion, task.pkg.Version), nil, nil
}

// filesOwnedByWorkspace keeps the changed files under root that no deeper workspace claims.
func filesOwnedByWorkspace(changedFiles []string, root string, workspaceRoots []string) []string {
	nested := make([]string, 0)
	for _, otherRoot := range workspaceRoots {
		if otherRoot != root && isWithin(otherRoot, root) {
			nested = append(nested, otherRoot)
		}
	}

	owned := make([]string, 0, len(changedFiles))
	for _, changedFile := range changedFiles {
		normalized := revision.NormalizePath(changedFile)
		if !isWithin(normalized, root) {
			continue
		}
		claimedByNested := false
		for _, nestedRoot := range nested {
			if isWithin(normalized, nestedRoot) {
				claimedByNested = true
				break
			}
		}
		if !claimedByNested {
			owned = append(owned, normalized)
		}
	}
	return owned
}

func isWithin(candidate string, root string) bool {
	if len(root) == 0 {
		return true
	}
	return candidate == root || strings.HasPrefix(candidate, root+workspacePathSeparatorConstant)
}

func isCancellation(executionContext context.Context, err error) bool {
	if executionContext.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func effectiveParallelism(requested int) int {
	if requested < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return requested
}
