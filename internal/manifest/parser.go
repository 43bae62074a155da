package manifest

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
)

const (
	manifestDecodeErrorTemplateConstant        = "decode manifest %s: %w"
	unsupportedVersionValueTemplateConstant    = "unsupported version value in %s: %v"
	unsupportedDependencyValueTemplateConstant = "unsupported declaration for dependency %q in %s"
	unsupportedChangelogValueTemplateConstant  = "unsupported changelog metadata in %s: %v"
	metadataToolKeyConstant                    = "deptrack"
	dependencyPathKeyConstant                  = "path"
	dependencyWorkspaceKeyConstant             = "workspace"
	dependencyPackageKeyConstant               = "package"
	repositoryRootPathConstant                 = "."
)

var (
	// ErrPackageSectionMissing indicates a manifest without a [package] table.
	ErrPackageSectionMissing = errors.New("manifest does not declare a [package] table")
	// ErrPackageNameMissing indicates a [package] table without a name.
	ErrPackageNameMissing = errors.New("manifest does not declare a package name")
	// ErrWorkspaceVersionMissing indicates version.workspace = true without [workspace.package].version.
	ErrWorkspaceVersionMissing = errors.New("package inherits workspace version but none is declared")
)

type cargoManifest struct {
	Package           *cargoPackage   `toml:"package"`
	Workspace         *cargoWorkspace `toml:"workspace"`
	Dependencies      map[string]any  `toml:"dependencies"`
	DevDependencies   map[string]any  `toml:"dev-dependencies"`
	BuildDependencies map[string]any  `toml:"build-dependencies"`
}

type cargoPackage struct {
	Name     string         `toml:"name"`
	Version  any            `toml:"version"`
	Metadata map[string]any `toml:"metadata"`
}

type cargoWorkspace struct {
	Members []string             `toml:"members"`
	Exclude []string             `toml:"exclude"`
	Package *cargoWorkspaceShared `toml:"package"`
}

type cargoWorkspaceShared struct {
	Version string `toml:"version"`
}

// ParseWorkspaceManifest decodes the [workspace] table of a manifest.
// The boolean result is false when the manifest declares no workspace.
func ParseWorkspaceManifest(manifestPath string, content []byte) (WorkspaceManifest, bool, error) {
	decoded, decodeError := decode(manifestPath, content)
	if decodeError != nil {
		return WorkspaceManifest{}, false, decodeError
	}
	if decoded.Workspace == nil {
		return WorkspaceManifest{HasPackage: decoded.Package != nil}, false, nil
	}

	workspaceManifest := WorkspaceManifest{
		Members:    trimmedPatterns(decoded.Workspace.Members),
		Exclude:    trimmedPatterns(decoded.Workspace.Exclude),
		HasPackage: decoded.Package != nil,
	}
	if decoded.Workspace.Package != nil {
		workspaceManifest.PackageVersion = strings.TrimSpace(decoded.Workspace.Package.Version)
	}
	return workspaceManifest, true, nil
}

// ParseManifest decodes a package manifest located at manifestPath (repository relative).
func ParseManifest(manifestPath string, content []byte, options ParseOptions) (Package, error) {
	decoded, decodeError := decode(manifestPath, content)
	if decodeError != nil {
		return Package{}, decodeError
	}
	if decoded.Package == nil {
		return Package{}, fmt.Errorf(manifestDecodeErrorTemplateConstant, manifestPath, ErrPackageSectionMissing)
	}

	packageName := strings.TrimSpace(decoded.Package.Name)
	if len(packageName) == 0 {
		return Package{}, fmt.Errorf(manifestDecodeErrorTemplateConstant, manifestPath, ErrPackageNameMissing)
	}

	version, versionError := resolveVersion(manifestPath, decoded.Package.Version, options.WorkspaceVersion)
	if versionError != nil {
		return Package{}, versionError
	}

	packageDirectory := PackageDirectory(manifestPath)
	parsed := Package{
		Name:         packageName,
		Version:      version,
		Path:         packageDirectory,
		ManifestPath: cleanRelativePath(manifestPath),
	}

	changelogPath, changelogDisabled, changelogError := resolveChangelog(manifestPath, packageDirectory, decoded.Package.Metadata, options.ChangelogFileName)
	if changelogError != nil {
		return Package{}, changelogError
	}
	parsed.ChangelogPath = changelogPath
	parsed.ChangelogDisabled = changelogDisabled

	dependencies := make([]Dependency, 0, len(decoded.Dependencies)+len(decoded.DevDependencies)+len(decoded.BuildDependencies))
	sections := []struct {
		kind         DependencyKind
		declarations map[string]any
	}{
		{kind: DependencyKindNormal, declarations: decoded.Dependencies},
		{kind: DependencyKindDev, declarations: decoded.DevDependencies},
		{kind: DependencyKindBuild, declarations: decoded.BuildDependencies},
	}
	for _, section := range sections {
		sectionDependencies, sectionError := parseDependencySection(manifestPath, section.kind, section.declarations)
		if sectionError != nil {
			return Package{}, sectionError
		}
		dependencies = append(dependencies, sectionDependencies...)
	}
	sort.Slice(dependencies, func(leftIndex, rightIndex int) bool {
		if dependencies[leftIndex].Name != dependencies[rightIndex].Name {
			return dependencies[leftIndex].Name < dependencies[rightIndex].Name
		}
		if dependencies[leftIndex].Kind != dependencies[rightIndex].Kind {
			return dependencies[leftIndex].Kind < dependencies[rightIndex].Kind
		}
		return dependencies[leftIndex].Alias < dependencies[rightIndex].Alias
	})
	parsed.Dependencies = dependencies

	return parsed, nil
}

// ReadVersion returns the declared version of the package in content.
func ReadVersion(manifestPath string, content []byte, workspaceVersion string) (string, error) {
	decoded, decodeError := decode(manifestPath, content)
	if decodeError != nil {
		return "", decodeError
	}
	if decoded.Package == nil {
		return "", fmt.Errorf(manifestDecodeErrorTemplateConstant, manifestPath, ErrPackageSectionMissing)
	}
	return resolveVersion(manifestPath, decoded.Package.Version, workspaceVersion)
}

// PackageDirectory returns the slash-separated directory of a manifest path; empty for the repository root.
func PackageDirectory(manifestPath string) string {
	directory := path.Dir(cleanRelativePath(manifestPath))
	if directory == repositoryRootPathConstant {
		return ""
	}
	return directory
}

func decode(manifestPath string, content []byte) (cargoManifest, error) {
	var decoded cargoManifest
	if unmarshalError := toml.Unmarshal(content, &decoded); unmarshalError != nil {
		return cargoManifest{}, fmt.Errorf(manifestDecodeErrorTemplateConstant, manifestPath, unmarshalError)
	}
	return decoded, nil
}

func resolveVersion(manifestPath string, rawVersion any, workspaceVersion string) (string, error) {
	switch typedVersion := rawVersion.(type) {
	case nil:
		return DefaultVersion, nil
	case string:
		return strings.TrimSpace(typedVersion), nil
	case map[string]any:
		if inherited, _ := typedVersion[dependencyWorkspaceKeyConstant].(bool); inherited {
			if len(workspaceVersion) == 0 {
				return "", fmt.Errorf(manifestDecodeErrorTemplateConstant, manifestPath, ErrWorkspaceVersionMissing)
			}
			return workspaceVersion, nil
		}
	}
	return "", fmt.Errorf(unsupportedVersionValueTemplateConstant, manifestPath, rawVersion)
}

// packageMetadata is the [package.metadata.deptrack] table.
type packageMetadata struct {
	Changelog any `mapstructure:"changelog"`
}

func resolveChangelog(manifestPath string, packageDirectory string, metadata map[string]any, changelogFileName string) (string, bool, error) {
	defaultPath := ""
	if trimmedName := strings.TrimSpace(changelogFileName); len(trimmedName) > 0 {
		defaultPath = path.Join(packageDirectory, trimmedName)
	}

	rawToolMetadata, hasToolMetadata := metadata[metadataToolKeyConstant]
	if !hasToolMetadata {
		return defaultPath, false, nil
	}

	var toolMetadata packageMetadata
	if decodeError := mapstructure.Decode(rawToolMetadata, &toolMetadata); decodeError != nil {
		return "", false, fmt.Errorf(manifestDecodeErrorTemplateConstant, manifestPath, decodeError)
	}

	switch typedValue := toolMetadata.Changelog.(type) {
	case nil:
		return defaultPath, false, nil
	case bool:
		if typedValue {
			return defaultPath, false, nil
		}
		return "", true, nil
	case string:
		trimmedValue := strings.TrimSpace(typedValue)
		if len(trimmedValue) == 0 {
			return "", true, nil
		}
		return path.Join(packageDirectory, trimmedValue), false, nil
	default:
		return "", false, fmt.Errorf(unsupportedChangelogValueTemplateConstant, manifestPath, typedValue)
	}
}

func parseDependencySection(manifestPath string, kind DependencyKind, declarations map[string]any) ([]Dependency, error) {
	dependencies := make([]Dependency, 0, len(declarations))
	for declaredName, declaration := range declarations {
		dependency := Dependency{Name: declaredName, Kind: kind}
		switch typedDeclaration := declaration.(type) {
		case string:
		case map[string]any:
			if dependencyPath, _ := typedDeclaration[dependencyPathKeyConstant].(string); len(strings.TrimSpace(dependencyPath)) > 0 {
				dependency.Internal = true
			}
			if inherited, _ := typedDeclaration[dependencyWorkspaceKeyConstant].(bool); inherited {
				dependency.Internal = true
			}
			if renamedPackage, _ := typedDeclaration[dependencyPackageKeyConstant].(string); len(strings.TrimSpace(renamedPackage)) > 0 {
				dependency.Name = strings.TrimSpace(renamedPackage)
				dependency.Alias = declaredName
			}
		default:
			return nil, fmt.Errorf(unsupportedDependencyValueTemplateConstant, declaredName, manifestPath)
		}
		dependencies = append(dependencies, dependency)
	}
	return dependencies, nil
}

func trimmedPatterns(patterns []string) []string {
	trimmed := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		candidate := strings.Trim(strings.TrimSpace(pattern), "/")
		if len(candidate) == 0 {
			continue
		}
		trimmed = append(trimmed, candidate)
	}
	return trimmed
}

func cleanRelativePath(manifestPath string) string {
	cleaned := path.Clean(strings.ReplaceAll(manifestPath, "\\", "/"))
	return strings.TrimPrefix(cleaned, "./")
}
