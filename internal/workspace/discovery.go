package workspace

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/deptrack/internal/manifest"
)

const (
	filesystemRootConstant             = "/"
	repositoryRootNameConstant         = "root"
	targetDirectoryNameConstant        = "target"
	hiddenDirectoryPrefixConstant      = "."
	walkErrorTemplateConstant          = "walk %s: %w"
	readErrorTemplateConstant          = "read %s: %w"
	manifestParseErrorTemplateConstant = "workspace %s: %s: %v"
	unassignedWorkspaceLabelConstant   = "-"
)

// Options tunes discovery.
type Options struct {
	// Parallelism bounds concurrent manifest reads and parses; values below one use GOMAXPROCS.
	Parallelism int
	// ChangelogFileName is the per-package changelog file name.
	ChangelogFileName string
}

// Workspace is one Cargo workspace and its successfully parsed members.
type Workspace struct {
	Name string
	// Root is the workspace directory relative to the repository root; empty for the root itself.
	Root             string
	Members          []string
	Exclude          []string
	WorkspaceVersion string
	Packages         []manifest.Package
}

// ManifestParseError records a manifest excluded from analysis.
type ManifestParseError struct {
	// Workspace is empty when the manifest could not be assigned to a workspace.
	Workspace    string
	ManifestPath string
	Err          error
}

func (parseError ManifestParseError) Error() string {
	workspaceLabel := parseError.Workspace
	if len(workspaceLabel) == 0 {
		workspaceLabel = unassignedWorkspaceLabelConstant
	}
	return fmt.Sprintf(manifestParseErrorTemplateConstant, workspaceLabel, parseError.ManifestPath, parseError.Err)
}

// Unwrap exposes the decoding error.
func (parseError ManifestParseError) Unwrap() error {
	return parseError.Err
}

// Result is the outcome of discovery.
type Result struct {
	Workspaces  []Workspace
	ParseErrors []ManifestParseError
}

type manifestEntry struct {
	manifestPath      string
	directory         string
	content           []byte
	workspaceManifest manifest.WorkspaceManifest
	isWorkspaceRoot   bool
	decodeError       error
}

type memberAssignment struct {
	workspaceIndex int
	entry          *manifestEntry
}

type parseOutcome struct {
	pkg        manifest.Package
	parseError error
}

// Discover finds every workspace on filesystem.
func Discover(executionContext context.Context, filesystem afero.Fs, options Options) (Result, error) {
	manifestPaths, walkError := findManifests(filesystem)
	if walkError != nil {
		return Result{}, walkError
	}

	entries, readError := readManifests(executionContext, filesystem, manifestPaths, parallelism(options.Parallelism))
	if readError != nil {
		return Result{}, readError
	}

	workspaces := collectWorkspaces(entries)
	assignments, unassigned := assignMembers(workspaces, entries)

	outcomes := make([]parseOutcome, len(assignments))
	parseGroup, parseContext := errgroup.WithContext(executionContext)
	parseGroup.SetLimit(parallelism(options.Parallelism))
	for assignmentIndex := range assignments {
		assignment := assignments[assignmentIndex]
		parseGroup.Go(func() error {
			if contextError := parseContext.Err(); contextError != nil {
				return contextError
			}
			entry := assignment.entry
			if entry.decodeError != nil {
				outcomes[assignmentIndex] = parseOutcome{parseError: entry.decodeError}
				return nil
			}
			parsed, parseError := manifest.ParseManifest(entry.manifestPath, entry.content, manifest.ParseOptions{
				ChangelogFileName: options.ChangelogFileName,
				WorkspaceVersion:  workspaces[assignment.workspaceIndex].WorkspaceVersion,
			})
			outcomes[assignmentIndex] = parseOutcome{pkg: parsed, parseError: parseError}
			return nil
		})
	}
	if waitError := parseGroup.Wait(); waitError != nil {
		return Result{}, waitError
	}

	result := Result{}
	for assignmentIndex, assignment := range assignments {
		workspace := &workspaces[assignment.workspaceIndex]
		outcome := outcomes[assignmentIndex]
		if outcome.parseError != nil {
			result.ParseErrors = append(result.ParseErrors, ManifestParseError{
				Workspace:    workspace.Name,
				ManifestPath: assignment.entry.manifestPath,
				Err:          outcome.parseError,
			})
			continue
		}
		workspace.Packages = append(workspace.Packages, outcome.pkg)
	}
	for _, entry := range unassigned {
		result.ParseErrors = append(result.ParseErrors, ManifestParseError{ManifestPath: entry.manifestPath, Err: entry.decodeError})
	}

	for workspaceIndex := range workspaces {
		packages := workspaces[workspaceIndex].Packages
		sort.Slice(packages, func(leftIndex, rightIndex int) bool {
			return packages[leftIndex].Name < packages[rightIndex].Name
		})
	}
	sort.Slice(result.ParseErrors, func(leftIndex, rightIndex int) bool {
		return result.ParseErrors[leftIndex].ManifestPath < result.ParseErrors[rightIndex].ManifestPath
	})
	result.Workspaces = workspaces
	return result, nil
}

func findManifests(filesystem afero.Fs) ([]string, error) {
	manifestPaths := make([]string, 0)
	walkError := afero.Walk(filesystem, filesystemRootConstant, func(walkedPath string, info os.FileInfo, visitError error) error {
		if visitError != nil {
			return visitError
		}
		name := info.Name()
		if info.IsDir() {
			if walkedPath != filesystemRootConstant && (name == targetDirectoryNameConstant || strings.HasPrefix(name, hiddenDirectoryPrefixConstant)) {
				return filepath.SkipDir
			}
			return nil
		}
		if name == manifest.FileName {
			manifestPaths = append(manifestPaths, relativePath(walkedPath))
		}
		return nil
	})
	if walkError != nil {
		return nil, fmt.Errorf(walkErrorTemplateConstant, filesystemRootConstant, walkError)
	}
	sort.Strings(manifestPaths)
	return manifestPaths, nil
}

func readManifests(executionContext context.Context, filesystem afero.Fs, manifestPaths []string, limit int) ([]manifestEntry, error) {
	entries := make([]manifestEntry, len(manifestPaths))
	readGroup, readContext := errgroup.WithContext(executionContext)
	readGroup.SetLimit(limit)
	for manifestIndex, manifestPath := range manifestPaths {
		readGroup.Go(func() error {
			if contextError := readContext.Err(); contextError != nil {
				return contextError
			}
			content, readError := afero.ReadFile(filesystem, filesystemRootConstant+manifestPath)
			if readError != nil {
				return fmt.Errorf(readErrorTemplateConstant, manifestPath, readError)
			}
			workspaceManifest, isWorkspaceRoot, decodeError := manifest.ParseWorkspaceManifest(manifestPath, content)
			entries[manifestIndex] = manifestEntry{
				manifestPath:      manifestPath,
				directory:         manifest.PackageDirectory(manifestPath),
				content:           content,
				workspaceManifest: workspaceManifest,
				isWorkspaceRoot:   isWorkspaceRoot,
				decodeError:       decodeError,
			}
			return nil
		})
	}
	if waitError := readGroup.Wait(); waitError != nil {
		return nil, waitError
	}
	return entries, nil
}

// collectWorkspaces returns workspaces ordered by root. A root manifest with a [package] table and no
// [workspace] table forms an implicit single-package workspace.
func collectWorkspaces(entries []manifestEntry) []Workspace {
	workspaces := make([]Workspace, 0)
	for _, entry := range entries {
		if entry.decodeError != nil {
			continue
		}
		switch {
		case entry.isWorkspaceRoot:
			workspaces = append(workspaces, Workspace{
				Name:             workspaceName(entry.directory),
				Root:             entry.directory,
				Members:          entry.workspaceManifest.Members,
				Exclude:          entry.workspaceManifest.Exclude,
				WorkspaceVersion: entry.workspaceManifest.PackageVersion,
			})
		case len(entry.directory) == 0 && entry.workspaceManifest.HasPackage:
			workspaces = append(workspaces, Workspace{Name: repositoryRootNameConstant})
		}
	}
	sort.Slice(workspaces, func(leftIndex, rightIndex int) bool {
		return workspaces[leftIndex].Root < workspaces[rightIndex].Root
	})
	return workspaces
}

// assignMembers maps each package manifest to the deepest workspace claiming it.
// Manifests that failed to decode and belong to no workspace are returned separately.
func assignMembers(workspaces []Workspace, entries []manifestEntry) ([]memberAssignment, []*manifestEntry) {
	assignments := make([]memberAssignment, 0, len(entries))
	unassigned := make([]*manifestEntry, 0)
	for entryIndex := range entries {
		entry := &entries[entryIndex]
		if entry.decodeError == nil && !entry.workspaceManifest.HasPackage {
			continue
		}
		owner := -1
		for workspaceIndex, workspace := range workspaces {
			if !claims(workspace, entry.directory) {
				continue
			}
			if owner < 0 || len(workspace.Root) > len(workspaces[owner].Root) {
				owner = workspaceIndex
			}
		}
		if owner < 0 {
			if entry.decodeError != nil {
				unassigned = append(unassigned, entry)
			}
			continue
		}
		assignments = append(assignments, memberAssignment{workspaceIndex: owner, entry: entry})
	}
	return assignments, unassigned
}

func claims(workspace Workspace, directory string) bool {
	if directory == workspace.Root {
		return true
	}
	relative, inside := relativeTo(workspace.Root, directory)
	if !inside {
		return false
	}
	for _, excluded := range workspace.Exclude {
		cleanedExclude := path.Clean(excluded)
		if relative == cleanedExclude || strings.HasPrefix(relative, cleanedExclude+"/") || matches(cleanedExclude, relative) {
			return false
		}
	}
	for _, member := range workspace.Members {
		if matches(path.Clean(member), relative) {
			return true
		}
	}
	return false
}

func matches(pattern string, candidate string) bool {
	matched, matchError := doublestar.Match(pattern, candidate)
	return matchError == nil && matched
}

func relativeTo(root string, directory string) (string, bool) {
	if len(root) == 0 {
		return directory, len(directory) > 0
	}
	if !strings.HasPrefix(directory, root+"/") {
		return "", false
	}
	return strings.TrimPrefix(directory, root+"/"), true
}

func workspaceName(root string) string {
	if len(root) == 0 {
		return repositoryRootNameConstant
	}
	return path.Base(root)
}

func relativePath(walkedPath string) string {
	return strings.TrimPrefix(filepath.ToSlash(walkedPath), filesystemRootConstant)
}

func parallelism(requested int) int {
	if requested < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return requested
}
