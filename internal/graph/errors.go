package graph

import (
	"errors"
	"fmt"
	"strings"
)

const (
	graphBuildErrorTemplateConstant       = "%v: %s"
	unresolvedDependencyTemplateConstant  = "package %s declares workspace dependency %s which is not a workspace member"
	cyclicDependencyErrorTemplateConstant = "dependency graph contains %d cycle(s): %s"
	cycleDescriptionSeparatorConstant     = "; "
	graphBuildNamesSeparatorConstant      = ", "
	cycleWalkSeparatorConstant            = " -> "
	unknownPackageErrorTemplateConstant   = "%w: %s"
)

var (
	// ErrDuplicatePackageName reports two packages sharing a name inside one workspace.
	ErrDuplicatePackageName = errors.New("duplicate package name")
	// ErrDuplicatePackagePath reports two packages claiming the same directory.
	ErrDuplicatePackagePath = errors.New("duplicate package path")
	// ErrUnknownPackage reports a query for a package outside the graph.
	ErrUnknownPackage = errors.New("unknown package")
)

// GraphBuildError aborts graph construction for a workspace.
type GraphBuildError struct {
	Err      error
	Packages []string
}

// Error describes the build failure.
func (buildError GraphBuildError) Error() string {
	return fmt.Sprintf(graphBuildErrorTemplateConstant, buildError.Err, strings.Join(buildError.Packages, graphBuildNamesSeparatorConstant))
}

// Unwrap exposes the underlying sentinel.
func (buildError GraphBuildError) Unwrap() error {
	return buildError.Err
}

// UnresolvedDependencyError records a dropped edge whose target is not a workspace member.
type UnresolvedDependencyError struct {
	Package    string
	Dependency string
}

// Error describes the unresolved edge.
func (unresolvedError UnresolvedDependencyError) Error() string {
	return fmt.Sprintf(unresolvedDependencyTemplateConstant, unresolvedError.Package, unresolvedError.Dependency)
}

// CyclicDependencyError reports cycles preventing a topological order.
type CyclicDependencyError struct {
	Cycles []Cycle
}

// Error lists the offending cycles.
func (cyclicError CyclicDependencyError) Error() string {
	descriptions := make([]string, 0, len(cyclicError.Cycles))
	for _, cycle := range cyclicError.Cycles {
		descriptions = append(descriptions, cycle.String())
	}
	return fmt.Sprintf(cyclicDependencyErrorTemplateConstant, len(cyclicError.Cycles), strings.Join(descriptions, cycleDescriptionSeparatorConstant))
}

func unknownPackageError(name string) error {
	return fmt.Errorf(unknownPackageErrorTemplateConstant, ErrUnknownPackage, name)
}
