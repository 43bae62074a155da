// Package gogit implements revision.Adapter with go-git, without a git executable.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/temirov/deptrack/internal/revision"
)

const (
	openErrorTemplateConstant  = "open repository %s: %w"
	treeErrorTemplateConstant  = "load tree for %s: %w"
	diffErrorTemplateConstant  = "diff %s..%s: %w"
	readErrorTemplateConstant  = "read %s at %s: %w"
	listErrorTemplateConstant  = "list files at %s: %w"
	mergeErrorTemplateConstant = "merge-base %s %s: %w"
)

var _ revision.Adapter = (*Adapter)(nil)

// ErrRepositoryNotConfigured indicates an adapter constructed without a repository.
var ErrRepositoryNotConfigured = errors.New("git repository not configured")

// Adapter reads revisions from a go-git repository.
type Adapter struct {
	repository *git.Repository
}

// Open locates the repository containing repositoryPath, searching parent directories.
func Open(repositoryPath string) (*Adapter, error) {
	repository, openError := git.PlainOpenWithOptions(repositoryPath, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return nil, fmt.Errorf(openErrorTemplateConstant, repositoryPath, openError)
	}
	return NewAdapter(repository)
}

// NewAdapter wraps an already opened repository.
func NewAdapter(repository *git.Repository) (*Adapter, error) {
	if repository == nil {
		return nil, ErrRepositoryNotConfigured
	}
	return &Adapter{repository: repository}, nil
}

// ResolveRevision implements revision.Adapter.
func (adapter *Adapter) ResolveRevision(executionContext context.Context, ref string) (string, error) {
	commit, commitError := adapter.commit(ref)
	if commitError != nil {
		return "", commitError
	}
	return commit.Hash.String(), nil
}

// ChangedFiles implements revision.Adapter. Renames are reported as a deletion and an addition.
func (adapter *Adapter) ChangedFiles(executionContext context.Context, baseRef string, targetRef string) ([]string, error) {
	baseTree, baseError := adapter.tree(baseRef)
	if baseError != nil {
		return nil, baseError
	}
	targetTree, targetError := adapter.tree(targetRef)
	if targetError != nil {
		return nil, targetError
	}

	changes, diffError := object.DiffTreeContext(executionContext, baseTree, targetTree)
	if diffError != nil {
		return nil, fmt.Errorf(diffErrorTemplateConstant, baseRef, targetRef, diffError)
	}

	seen := make(map[string]struct{}, len(changes))
	changedFiles := make([]string, 0, len(changes))
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			normalized := revision.NormalizePath(name)
			if len(normalized) == 0 {
				continue
			}
			if _, duplicate := seen[normalized]; duplicate {
				continue
			}
			seen[normalized] = struct{}{}
			changedFiles = append(changedFiles, normalized)
		}
	}
	sort.Strings(changedFiles)
	return changedFiles, nil
}

// ReadFile implements revision.Adapter.
func (adapter *Adapter) ReadFile(executionContext context.Context, ref string, filePath string) (string, error) {
	tree, treeError := adapter.tree(ref)
	if treeError != nil {
		return "", treeError
	}

	normalizedPath := revision.NormalizePath(filePath)
	file, fileError := tree.File(normalizedPath)
	if fileError != nil {
		if errors.Is(fileError, object.ErrFileNotFound) || errors.Is(fileError, object.ErrDirectoryNotFound) {
			return "", revision.FileNotFoundError{Ref: ref, Path: normalizedPath}
		}
		return "", fmt.Errorf(readErrorTemplateConstant, normalizedPath, ref, fileError)
	}

	content, contentError := file.Contents()
	if contentError != nil {
		return "", fmt.Errorf(readErrorTemplateConstant, normalizedPath, ref, contentError)
	}
	return content, nil
}

// ListFiles implements revision.Adapter.
func (adapter *Adapter) ListFiles(executionContext context.Context, ref string) ([]string, error) {
	tree, treeError := adapter.tree(ref)
	if treeError != nil {
		return nil, treeError
	}

	files := make([]string, 0)
	iterationError := tree.Files().ForEach(func(file *object.File) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		files = append(files, file.Name)
		return nil
	})
	if iterationError != nil {
		return nil, fmt.Errorf(listErrorTemplateConstant, ref, iterationError)
	}
	sort.Strings(files)
	return files, nil
}

// MergeBase implements revision.Adapter.
func (adapter *Adapter) MergeBase(executionContext context.Context, baseRef string, targetRef string) (string, error) {
	baseCommit, baseError := adapter.commit(baseRef)
	if baseError != nil {
		return "", baseError
	}
	targetCommit, targetError := adapter.commit(targetRef)
	if targetError != nil {
		return "", targetError
	}

	mergeBases, mergeError := baseCommit.MergeBase(targetCommit)
	if mergeError != nil {
		return "", fmt.Errorf(mergeErrorTemplateConstant, baseRef, targetRef, mergeError)
	}
	if len(mergeBases) == 0 {
		return "", revision.ErrNoMergeBase
	}
	return mergeBases[0].Hash.String(), nil
}

func (adapter *Adapter) commit(ref string) (*object.Commit, error) {
	trimmedRef := strings.TrimSpace(ref)
	if len(trimmedRef) == 0 {
		return nil, revision.RefNotFoundError{Ref: ref}
	}
	hash, resolveError := adapter.repository.ResolveRevision(plumbing.Revision(trimmedRef))
	if resolveError != nil {
		return nil, revision.RefNotFoundError{Ref: ref}
	}
	commit, commitError := adapter.repository.CommitObject(*hash)
	if commitError != nil {
		return nil, revision.RefNotFoundError{Ref: ref}
	}
	return commit, nil
}

func (adapter *Adapter) tree(ref string) (*object.Tree, error) {
	commit, commitError := adapter.commit(ref)
	if commitError != nil {
		return nil, commitError
	}
	tree, treeError := commit.Tree()
	if treeError != nil {
		return nil, fmt.Errorf(treeErrorTemplateConstant, ref, treeError)
	}
	return tree, nil
}
