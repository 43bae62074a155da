package revision

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	refNotFoundMessageTemplateConstant  = "revision %q not found"
	fileNotFoundMessageTemplateConstant = "file %q not found at revision %q"
)

var (
	// ErrNotFound is matched by both RefNotFoundError and FileNotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrNoMergeBase reports two revisions without a common ancestor.
	ErrNoMergeBase = errors.New("revisions share no common ancestor")
)

// Adapter exposes repository history to the analysis core.
type Adapter interface {
	// ResolveRevision returns the commit identifier for ref or a RefNotFoundError.
	ResolveRevision(executionContext context.Context, ref string) (string, error)
	// ChangedFiles lists repository-relative paths that differ between baseRef and targetRef.
	ChangedFiles(executionContext context.Context, baseRef string, targetRef string) ([]string, error)
	// ReadFile returns the content of filePath at ref or a FileNotFoundError.
	ReadFile(executionContext context.Context, ref string, filePath string) (string, error)
	// ListFiles lists every tracked file at ref.
	ListFiles(executionContext context.Context, ref string) ([]string, error)
	// MergeBase returns the best common ancestor of baseRef and targetRef or ErrNoMergeBase.
	MergeBase(executionContext context.Context, baseRef string, targetRef string) (string, error)
}

// RefNotFoundError reports an unknown revision. It is fatal to a run.
type RefNotFoundError struct {
	Ref string
}

func (refError RefNotFoundError) Error() string {
	return fmt.Sprintf(refNotFoundMessageTemplateConstant, refError.Ref)
}

// Is matches ErrNotFound.
func (refError RefNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FileNotFoundError reports a path absent at a revision.
type FileNotFoundError struct {
	Ref  string
	Path string
}

func (fileError FileNotFoundError) Error() string {
	return fmt.Sprintf(fileNotFoundMessageTemplateConstant, fileError.Path, fileError.Ref)
}

// Is matches ErrNotFound.
func (fileError FileNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsRefNotFound reports whether err wraps a RefNotFoundError.
func IsRefNotFound(err error) bool {
	var refError RefNotFoundError
	return errors.As(err, &refError)
}

// IsFileNotFound reports whether err wraps a FileNotFoundError.
func IsFileNotFound(err error) bool {
	var fileError FileNotFoundError
	return errors.As(err, &fileError)
}

// NormalizePath converts an adapter path into the slash separated, repository relative form.
func NormalizePath(filePath string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(filePath, "\\", "/"))
	if len(trimmed) == 0 {
		return ""
	}
	cleaned := strings.TrimPrefix(path.Clean(trimmed), "./")
	return strings.TrimPrefix(cleaned, "/")
}
