// Package gitcli implements revision.Adapter on top of the git executable.
package gitcli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/temirov/deptrack/internal/execshell"
	"github.com/temirov/deptrack/internal/revision"
)

const (
	gitConfigurationFlagConstant     = "-c"
	gitQuotePathDisabledConstant     = "core.quotePath=false"
	gitRevParseSubcommandConstant    = "rev-parse"
	gitVerifyFlagConstant            = "--verify"
	gitQuietFlagConstant             = "--quiet"
	gitCommitPeelSuffixConstant      = "^{commit}"
	gitDiffSubcommandConstant        = "diff"
	gitNoColorFlagConstant           = "--no-color"
	gitNoRenamesFlagConstant         = "--no-renames"
	gitNoExternalDiffFlagConstant    = "--no-ext-diff"
	gitNoTextConversionFlagConstant  = "--no-textconv"
	gitMergeBaseSubcommandConstant   = "merge-base"
	gitShowSubcommandConstant        = "show"
	gitLSTreeSubcommandConstant      = "ls-tree"
	gitRecursiveFlagConstant         = "-r"
	gitNameOnlyFlagConstant          = "--name-only"
	gitNullTerminatedFlagConstant    = "-z"
	revisionPathSeparatorConstant    = ":"
	nullSeparatorConstant            = "\x00"
	resolveErrorTemplateConstant     = "resolve %s: %w"
	diffErrorTemplateConstant        = "diff %s..%s: %w"
	mergeBaseErrorTemplateConstant   = "merge-base %s %s: %w"
	readErrorTemplateConstant        = "read %s at %s: %w"
	listErrorTemplateConstant        = "list files at %s: %w"
	missingPathMarkerConstant        = "does not exist in"
	onDiskOnlyMarkerConstant         = "exists on disk, but not in"
	invalidObjectNameMarkerConstant  = "invalid object name"
	unknownRevisionMarkerConstant    = "unknown revision"
	notValidObjectNameMarkerConstant = "not a valid object name"
)

// ErrExecutorNotConfigured indicates an adapter constructed without a git executor.
var ErrExecutorNotConfigured = errors.New("git executor not configured")

var _ revision.Adapter = (*Adapter)(nil)

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Adapter reads revisions through the git executable in repositoryPath.
type Adapter struct {
	executor       GitExecutor
	repositoryPath string
}

// NewAdapter constructs an adapter for the repository at repositoryPath.
func NewAdapter(executor GitExecutor, repositoryPath string) (*Adapter, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Adapter{executor: executor, repositoryPath: repositoryPath}, nil
}

// ResolveRevision implements revision.Adapter.
func (adapter *Adapter) ResolveRevision(executionContext context.Context, ref string) (string, error) {
	trimmedRef := strings.TrimSpace(ref)
	if len(trimmedRef) == 0 {
		return "", revision.RefNotFoundError{Ref: ref}
	}

	result, executionError := adapter.run(executionContext, gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, trimmedRef+gitCommitPeelSuffixConstant)
	if executionError != nil {
		if isCommandFailure(executionError) {
			return "", revision.RefNotFoundError{Ref: ref}
		}
		return "", fmt.Errorf(resolveErrorTemplateConstant, ref, executionError)
	}

	resolved := strings.TrimSpace(result.StandardOutput)
	if len(resolved) == 0 {
		return "", revision.RefNotFoundError{Ref: ref}
	}
	return resolved, nil
}

// ChangedFiles implements revision.Adapter. Renames are reported as a deletion and an addition;
// mode-only and binary changes are listed like any other modification.
func (adapter *Adapter) ChangedFiles(executionContext context.Context, baseRef string, targetRef string) ([]string, error) {
	baseRevision, baseError := adapter.ResolveRevision(executionContext, baseRef)
	if baseError != nil {
		return nil, baseError
	}
	targetRevision, targetError := adapter.ResolveRevision(executionContext, targetRef)
	if targetError != nil {
		return nil, targetError
	}

	result, executionError := adapter.run(executionContext,
		gitConfigurationFlagConstant, gitQuotePathDisabledConstant,
		gitDiffSubcommandConstant, gitNoColorFlagConstant, gitNoRenamesFlagConstant,
		gitNoExternalDiffFlagConstant, gitNoTextConversionFlagConstant,
		gitNameOnlyFlagConstant, gitNullTerminatedFlagConstant,
		baseRevision, targetRevision,
	)
	if executionError != nil {
		return nil, fmt.Errorf(diffErrorTemplateConstant, baseRef, targetRef, executionError)
	}
	return ParseNameList(result.StandardOutput), nil
}

// MergeBase implements revision.Adapter.
func (adapter *Adapter) MergeBase(executionContext context.Context, baseRef string, targetRef string) (string, error) {
	baseRevision, baseError := adapter.ResolveRevision(executionContext, baseRef)
	if baseError != nil {
		return "", baseError
	}
	targetRevision, targetError := adapter.ResolveRevision(executionContext, targetRef)
	if targetError != nil {
		return "", targetError
	}

	result, executionError := adapter.run(executionContext, gitMergeBaseSubcommandConstant, baseRevision, targetRevision)
	if executionError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) && failedError.Result.ExitCode == 1 {
			return "", revision.ErrNoMergeBase
		}
		return "", fmt.Errorf(mergeBaseErrorTemplateConstant, baseRef, targetRef, executionError)
	}

	mergeBase := strings.TrimSpace(result.StandardOutput)
	if len(mergeBase) == 0 {
		return "", revision.ErrNoMergeBase
	}
	return mergeBase, nil
}

// ReadFile implements revision.Adapter.
func (adapter *Adapter) ReadFile(executionContext context.Context, ref string, filePath string) (string, error) {
	normalizedPath := revision.NormalizePath(filePath)
	result, executionError := adapter.run(executionContext, gitShowSubcommandConstant, ref+revisionPathSeparatorConstant+normalizedPath)
	if executionError == nil {
		return result.StandardOutput, nil
	}

	var failedError execshell.CommandFailedError
	if !errors.As(executionError, &failedError) {
		return "", fmt.Errorf(readErrorTemplateConstant, normalizedPath, ref, executionError)
	}

	standardError := strings.ToLower(failedError.Result.StandardError)
	switch {
	case strings.Contains(standardError, missingPathMarkerConstant), strings.Contains(standardError, onDiskOnlyMarkerConstant):
		return "", revision.FileNotFoundError{Ref: ref, Path: normalizedPath}
	case strings.Contains(standardError, invalidObjectNameMarkerConstant),
		strings.Contains(standardError, unknownRevisionMarkerConstant),
		strings.Contains(standardError, notValidObjectNameMarkerConstant):
		return "", revision.RefNotFoundError{Ref: ref}
	default:
		return "", fmt.Errorf(readErrorTemplateConstant, normalizedPath, ref, executionError)
	}
}

// ListFiles implements revision.Adapter.
func (adapter *Adapter) ListFiles(executionContext context.Context, ref string) ([]string, error) {
	result, executionError := adapter.run(executionContext, gitLSTreeSubcommandConstant, gitRecursiveFlagConstant, gitNameOnlyFlagConstant, gitNullTerminatedFlagConstant, ref)
	if executionError != nil {
		if isCommandFailure(executionError) {
			return nil, revision.RefNotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf(listErrorTemplateConstant, ref, executionError)
	}

	return ParseNameList(result.StandardOutput), nil
}

// ParseNameList splits NUL terminated git path output into sorted, de-duplicated repository paths.
// Paths are taken verbatim, so spaces and newlines inside names survive.
func ParseNameList(rawOutput string) []string {
	seen := make(map[string]struct{})
	files := make([]string, 0)
	for _, entry := range strings.Split(rawOutput, nullSeparatorConstant) {
		normalized := revision.NormalizePath(entry)
		if len(normalized) == 0 {
			continue
		}
		if _, duplicate := seen[normalized]; duplicate {
			continue
		}
		seen[normalized] = struct{}{}
		files = append(files, normalized)
	}
	sort.Strings(files)
	return files
}

func (adapter *Adapter) run(executionContext context.Context, arguments ...string) (execshell.ExecutionResult, error) {
	return adapter.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: adapter.repositoryPath,
	})
}

func isCommandFailure(executionError error) bool {
	var failedError execshell.CommandFailedError
	return errors.As(executionError, &failedError)
}
