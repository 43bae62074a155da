package graph

import (
	"sort"

	"github.com/temirov/deptrack/internal/manifest"
)

// Options tunes which declared dependencies become graph edges.
type Options struct {
	IgnoreDevDependencies bool
}

// Edge is one resolved "depends on" relation.
type Edge struct {
	From  string
	To    string
	Kinds []manifest.DependencyKind
}

type edgeKey struct {
	from int
	to   int
}

// DependencyGraph is an immutable arena of packages with precomputed adjacency.
type DependencyGraph struct {
	packages    []manifest.Package
	indexByName map[string]int
	forward     [][]int
	reverse     [][]int
	edgeKinds   map[edgeKey][]manifest.DependencyKind
}

// Build resolves declared dependencies against the package set.
// Unresolved internal dependencies are returned as collected errors and their edges omitted.
func Build(packages []manifest.Package, options Options) (*DependencyGraph, []UnresolvedDependencyError, error) {
	sortedPackages := append([]manifest.Package(nil), packages...)
	sort.SliceStable(sortedPackages, func(leftIndex, rightIndex int) bool {
		return sortedPackages[leftIndex].Name < sortedPackages[rightIndex].Name
	})

	if buildError := validateIdentity(sortedPackages); buildError != nil {
		return nil, nil, buildError
	}

	dependencyGraph := &DependencyGraph{
		packages:    sortedPackages,
		indexByName: make(map[string]int, len(sortedPackages)),
		forward:     make([][]int, len(sortedPackages)),
		reverse:     make([][]int, len(sortedPackages)),
		edgeKinds:   make(map[edgeKey][]manifest.DependencyKind),
	}
	for packageIndex, pkg := range sortedPackages {
		dependencyGraph.indexByName[pkg.Name] = packageIndex
	}

	var unresolved []UnresolvedDependencyError
	for packageIndex, pkg := range sortedPackages {
		reportedUnresolved := make(map[string]struct{})
		for _, dependency := range pkg.Dependencies {
			if options.IgnoreDevDependencies && dependency.Kind == manifest.DependencyKindDev {
				continue
			}
			targetIndex, resolved := dependencyGraph.indexByName[dependency.Name]
			if !resolved {
				if !dependency.Internal {
					continue
				}
				if _, alreadyReported := reportedUnresolved[dependency.Name]; !alreadyReported {
					reportedUnresolved[dependency.Name] = struct{}{}
					unresolved = append(unresolved, UnresolvedDependencyError{Package: pkg.Name, Dependency: dependency.Name})
				}
				continue
			}
			dependencyGraph.addEdge(packageIndex, targetIndex, dependency.Kind)
		}
	}

	for nodeIndex := range dependencyGraph.forward {
		sort.Ints(dependencyGraph.forward[nodeIndex])
		sort.Ints(dependencyGraph.reverse[nodeIndex])
	}

	return dependencyGraph, unresolved, nil
}

func validateIdentity(sortedPackages []manifest.Package) error {
	pathOwners := make(map[string]string, len(sortedPackages))
	for packageIndex, pkg := range sortedPackages {
		if packageIndex > 0 && sortedPackages[packageIndex-1].Name == pkg.Name {
			return GraphBuildError{Err: ErrDuplicatePackageName, Packages: []string{pkg.Name}}
		}
		if owner, claimed := pathOwners[pkg.Path]; claimed {
			return GraphBuildError{Err: ErrDuplicatePackagePath, Packages: []string{owner, pkg.Name}}
		}
		pathOwners[pkg.Path] = pkg.Name
	}
	return nil
}

func (dependencyGraph *DependencyGraph) addEdge(fromIndex int, toIndex int, kind manifest.DependencyKind) {
	key := edgeKey{from: fromIndex, to: toIndex}
	existingKinds, exists := dependencyGraph.edgeKinds[key]
	if !exists {
		dependencyGraph.forward[fromIndex] = append(dependencyGraph.forward[fromIndex], toIndex)
		dependencyGraph.reverse[toIndex] = append(dependencyGraph.reverse[toIndex], fromIndex)
	}
	for _, existingKind := range existingKinds {
		if existingKind == kind {
			return
		}
	}
	updatedKinds := append(existingKinds, kind)
	sort.Slice(updatedKinds, func(leftIndex, rightIndex int) bool {
		return updatedKinds[leftIndex] < updatedKinds[rightIndex]
	})
	dependencyGraph.edgeKinds[key] = updatedKinds
}

// Len returns the number of packages in the graph.
func (dependencyGraph *DependencyGraph) Len() int {
	return len(dependencyGraph.packages)
}

// Names returns package names in sorted order.
func (dependencyGraph *DependencyGraph) Names() []string {
	names := make([]string, len(dependencyGraph.packages))
	for packageIndex, pkg := range dependencyGraph.packages {
		names[packageIndex] = pkg.Name
	}
	return names
}

// Packages returns the packages in name order.
func (dependencyGraph *DependencyGraph) Packages() []manifest.Package {
	return append([]manifest.Package(nil), dependencyGraph.packages...)
}

// Package looks up a package by name.
func (dependencyGraph *DependencyGraph) Package(name string) (manifest.Package, bool) {
	packageIndex, exists := dependencyGraph.indexByName[name]
	if !exists {
		return manifest.Package{}, false
	}
	return dependencyGraph.packages[packageIndex], true
}

// Dependencies returns the packages name depends on, sorted by name.
func (dependencyGraph *DependencyGraph) Dependencies(name string) []string {
	packageIndex, exists := dependencyGraph.indexByName[name]
	if !exists {
		return nil
	}
	return dependencyGraph.namesOf(dependencyGraph.forward[packageIndex])
}

// Dependents returns the packages depending on name, sorted by name.
func (dependencyGraph *DependencyGraph) Dependents(name string) []string {
	packageIndex, exists := dependencyGraph.indexByName[name]
	if !exists {
		return nil
	}
	return dependencyGraph.namesOf(dependencyGraph.reverse[packageIndex])
}

// Edges lists every resolved edge ordered by source then target name.
func (dependencyGraph *DependencyGraph) Edges() []Edge {
	var edges []Edge
	for fromIndex, targets := range dependencyGraph.forward {
		for _, toIndex := range targets {
			kinds := dependencyGraph.edgeKinds[edgeKey{from: fromIndex, to: toIndex}]
			edges = append(edges, Edge{
				From:  dependencyGraph.packages[fromIndex].Name,
				To:    dependencyGraph.packages[toIndex].Name,
				Kinds: append([]manifest.DependencyKind(nil), kinds...),
			})
		}
	}
	return edges
}

// DependencyPath returns the shortest chain of names leading from one package to another along forward edges.
func (dependencyGraph *DependencyGraph) DependencyPath(from string, to string) ([]string, error) {
	fromIndex, fromExists := dependencyGraph.indexByName[from]
	if !fromExists {
		return nil, unknownPackageError(from)
	}
	toIndex, toExists := dependencyGraph.indexByName[to]
	if !toExists {
		return nil, unknownPackageError(to)
	}

	indexPath := dependencyGraph.shortestPath(fromIndex, toIndex, nil)
	if indexPath == nil {
		return nil, nil
	}
	return dependencyGraph.namesOf(indexPath), nil
}

// TopologicalOrder returns names ordered so every package follows its dependencies.
func (dependencyGraph *DependencyGraph) TopologicalOrder() ([]string, error) {
	if cycles := dependencyGraph.FindCycles(); len(cycles) > 0 {
		return nil, CyclicDependencyError{Cycles: cycles}
	}

	remainingDependencies := make([]int, len(dependencyGraph.packages))
	for nodeIndex, targets := range dependencyGraph.forward {
		remainingDependencies[nodeIndex] = len(targets)
	}

	var ready []int
	for nodeIndex, remaining := range remainingDependencies {
		if remaining == 0 {
			ready = append(ready, nodeIndex)
		}
	}

	ordered := make([]int, 0, len(dependencyGraph.packages))
	for len(ready) > 0 {
		sort.Ints(ready)
		current := ready[0]
		ready = ready[1:]
		ordered = append(ordered, current)
		for _, dependentIndex := range dependencyGraph.reverse[current] {
			remainingDependencies[dependentIndex]--
			if remainingDependencies[dependentIndex] == 0 {
				ready = append(ready, dependentIndex)
			}
		}
	}

	return dependencyGraph.namesOf(ordered), nil
}

func (dependencyGraph *DependencyGraph) namesOf(indices []int) []string {
	names := make([]string, len(indices))
	for position, nodeIndex := range indices {
		names[position] = dependencyGraph.packages[nodeIndex].Name
	}
	return names
}

// shortestPath runs a breadth-first search along forward edges, optionally restricted to allowed nodes.
func (dependencyGraph *DependencyGraph) shortestPath(fromIndex int, toIndex int, allowed map[int]struct{}) []int {
	if fromIndex == toIndex {
		return []int{fromIndex}
	}

	predecessor := map[int]int{fromIndex: fromIndex}
	queue := []int{fromIndex}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range dependencyGraph.forward[current] {
			if allowed != nil {
				if _, permitted := allowed[next]; !permitted {
					continue
				}
			}
			if _, visited := predecessor[next]; visited {
				continue
			}
			predecessor[next] = current
			if next == toIndex {
				return reconstructPath(predecessor, fromIndex, toIndex)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func reconstructPath(predecessor map[int]int, fromIndex int, toIndex int) []int {
	reversedPath := []int{toIndex}
	for current := toIndex; current != fromIndex; {
		current = predecessor[current]
		reversedPath = append(reversedPath, current)
	}
	for leftIndex, rightIndex := 0, len(reversedPath)-1; leftIndex < rightIndex; leftIndex, rightIndex = leftIndex+1, rightIndex-1 {
		reversedPath[leftIndex], reversedPath[rightIndex] = reversedPath[rightIndex], reversedPath[leftIndex]
	}
	return reversedPath
}
