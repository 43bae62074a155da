package manifest

import "sort"

const (
	// FileName is the manifest file name Cargo expects in every package directory.
	FileName = "Cargo.toml"
	// DefaultChangelogFileName is used when no changelog file name is configured.
	DefaultChangelogFileName = "CHANGELOG.md"
	// DefaultVersion is assumed for packages that omit a version.
	DefaultVersion = "0.0.0"
)

// DependencyKind classifies the manifest section a dependency was declared in.
type DependencyKind string

// Supported dependency kinds.
const (
	DependencyKindNormal DependencyKind = "normal"
	DependencyKindDev    DependencyKind = "dev"
	DependencyKindBuild  DependencyKind = "build"
)

// Dependency describes one declared dependency of a package.
type Dependency struct {
	// Name is the real package name, honoring the `package` rename key.
	Name string
	// Alias is the key the dependency was declared under when it differs from Name.
	Alias string
	Kind  DependencyKind
	// Internal reports whether the declaration points inside the workspace (path or workspace = true).
	Internal bool
}

// Package is the immutable description of one workspace member.
type Package struct {
	Name    string
	Version string
	// Path is the package directory relative to the repository root in slash form; empty for the root.
	Path         string
	ManifestPath string
	// ChangelogPath is empty when no changelog location is configured.
	ChangelogPath string
	// ChangelogDisabled reports that the manifest opted the package out of changelog checks.
	ChangelogDisabled bool
	Dependencies      []Dependency
}

// DependencyNames returns the unique dependency names in sorted order.
func (pkg Package) DependencyNames() []string {
	seen := make(map[string]struct{}, len(pkg.Dependencies))
	names := make([]string, 0, len(pkg.Dependencies))
	for _, dependency := range pkg.Dependencies {
		if _, exists := seen[dependency.Name]; exists {
			continue
		}
		seen[dependency.Name] = struct{}{}
		names = append(names, dependency.Name)
	}
	sort.Strings(names)
	return names
}

// WorkspaceManifest captures the [workspace] table of a root manifest.
type WorkspaceManifest struct {
	Members []string
	Exclude []string
	// PackageVersion is [workspace.package].version, inherited by members declaring version.workspace = true.
	PackageVersion string
	// HasPackage reports that the root manifest also declares a [package].
	HasPackage bool
}

// ParseOptions tunes manifest decoding.
type ParseOptions struct {
	// ChangelogFileName is joined with the package directory to form the default changelog path.
	ChangelogFileName string
	// WorkspaceVersion resolves version.workspace = true.
	WorkspaceVersion string
}
