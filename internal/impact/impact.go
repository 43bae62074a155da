// Package impact maps a change set onto workspace packages.
package impact

import (
	"path"
	"sort"
	"strings"

	"github.com/temirov/deptrack/internal/graph"
)

// Class distinguishes how a package was reached by a change.
type Class string

// Supported impact classes.
const (
	ClassDirect     Class = "direct"
	ClassTransitive Class = "transitive"
	// ClassUnchanged marks a package outside the impact set that is checked anyway.
	ClassUnchanged Class = "unchanged"
)

// ImpactSet holds the disjoint direct and transitive package sets.
type ImpactSet struct {
	Direct     []string
	Transitive []string
	// Via maps every transitive package to the dependency through which impact reached it.
	Via map[string]string
	// FilesByPackage lists the changed files owned by each direct package.
	FilesByPackage map[string][]string
	// UnownedFiles are changed files under no package path.
	UnownedFiles []string
}

// ClassOf reports the impact class of a package.
func (impactSet ImpactSet) ClassOf(name string) (Class, bool) {
	if containsSorted(impactSet.Direct, name) {
		return ClassDirect, true
	}
	if containsSorted(impactSet.Transitive, name) {
		return ClassTransitive, true
	}
	return "", false
}

// Impacted lists direct and transitive packages together in name order.
func (impactSet ImpactSet) Impacted() []string {
	combined := append(append([]string(nil), impactSet.Direct...), impactSet.Transitive...)
	sort.Strings(combined)
	return combined
}

// Chain returns the propagation chain from a direct package to name, ending at name.
func (impactSet ImpactSet) Chain(name string) []string {
	chain := []string{name}
	for current := name; ; {
		previous, reached := impactSet.Via[current]
		if !reached {
			break
		}
		chain = append([]string{previous}, chain...)
		current = previous
	}
	return chain
}

// ComputeImpact assigns each changed file to its most specific owning package and
// propagates impact to every dependent through reverse edges.
func ComputeImpact(dependencyGraph *graph.DependencyGraph, changedFiles []string) ImpactSet {
	impactSet := ImpactSet{
		Via:            make(map[string]string),
		FilesByPackage: make(map[string][]string),
	}

	owners := newOwnerIndex(dependencyGraph)
	directSet := make(map[string]struct{})
	for _, changedFile := range normalizeFiles(changedFiles) {
		owner, owned := owners.owner(changedFile)
		if !owned {
			impactSet.UnownedFiles = append(impactSet.UnownedFiles, changedFile)
			continue
		}
		directSet[owner] = struct{}{}
		impactSet.FilesByPackage[owner] = append(impactSet.FilesByPackage[owner], changedFile)
	}

	for name := range directSet {
		impactSet.Direct = append(impactSet.Direct, name)
	}
	sort.Strings(impactSet.Direct)

	visited := make(map[string]struct{}, len(directSet))
	queue := append([]string(nil), impactSet.Direct...)
	for _, name := range queue {
		visited[name] = struct{}{}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range dependencyGraph.Dependents(current) {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			impactSet.Via[dependent] = current
			impactSet.Transitive = append(impactSet.Transitive, dependent)
			queue = append(queue, dependent)
		}
	}
	sort.Strings(impactSet.Transitive)

	return impactSet
}

type ownerEntry struct {
	name string
	path string
}

type ownerIndex struct {
	entries []ownerEntry
}

// newOwnerIndex orders package paths longest first so the first match is the most specific owner.
func newOwnerIndex(dependencyGraph *graph.DependencyGraph) ownerIndex {
	packages := dependencyGraph.Packages()
	entries := make([]ownerEntry, 0, len(packages))
	for _, pkg := range packages {
		entries = append(entries, ownerEntry{name: pkg.Name, path: strings.Trim(pkg.Path, "/")})
	}
	sort.SliceStable(entries, func(leftIndex, rightIndex int) bool {
		return len(entries[leftIndex].path) > len(entries[rightIndex].path)
	})
	return ownerIndex{entries: entries}
}

func (index ownerIndex) owner(changedFile string) (string, bool) {
	for _, entry := range index.entries {
		if len(entry.path) == 0 || changedFile == entry.path || strings.HasPrefix(changedFile, entry.path+"/") {
			return entry.name, true
		}
	}
	return "", false
}

func normalizeFiles(changedFiles []string) []string {
	seen := make(map[string]struct{}, len(changedFiles))
	normalized := make([]string, 0, len(changedFiles))
	for _, changedFile := range changedFiles {
		trimmed := strings.TrimSpace(changedFile)
		if len(trimmed) == 0 {
			continue
		}
		cleaned := strings.TrimPrefix(path.Clean(strings.ReplaceAll(trimmed, "\\", "/")), "./")
		if _, duplicate := seen[cleaned]; duplicate {
			continue
		}
		seen[cleaned] = struct{}{}
		normalized = append(normalized, cleaned)
	}
	sort.Strings(normalized)
	return normalized
}

func containsSorted(names []string, name string) bool {
	position := sort.SearchStrings(names, name)
	return position < len(names) && names[position] == name
}
