package impact_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/deptrack/internal/graph"
	"github.com/temirov/deptrack/internal/impact"
	"github.com/temirov/deptrack/internal/manifest"
)

const testImpactSubtestTemplateConstant = "%d_%s"

func buildTestGraph(testInstance *testing.T, packages ...manifest.Package) *graph.DependencyGraph {
	testInstance.Helper()
	dependencyGraph, unresolved, buildError := graph.Build(packages, graph.Options{})
	require.NoError(testInstance, buildError)
	require.Empty(testInstance, unresolved)
	return dependencyGraph
}

func pathPackage(name string, packagePath string, dependencies ...string) manifest.Package {
	pkg := manifest.Package{Name: name, Version: "1.0.0", Path: packagePath}
	for _, dependencyName := range dependencies {
		pkg.Dependencies = append(pkg.Dependencies, manifest.Dependency{Name: dependencyName, Kind: manifest.DependencyKindNormal, Internal: true})
	}
	return pkg
}

func TestComputeImpact(testInstance *testing.T) {
	dependencyGraph := buildTestGraph(testInstance,
		pathPackage("core", "crates/core"),
		pathPackage("core-macros", "crates/core/macros"),
		pathPackage("api", "crates/api", "core"),
		pathPackage("server", "crates/server", "api"),
		pathPackage("cli", "crates/cli", "core", "api"),
		pathPackage("docs", "docs"),
	)

	testCases := []struct {
		name               string
		changedFiles       []string
		expectedDirect     []string
		expectedTransitive []string
		expectedUnowned    []string
	}{
		{
			name:               "change_propagates_to_dependents",
			changedFiles:       []string{"crates/core/src/lib.rs"},
			expectedDirect:     []string{"core"},
			expectedTransitive: []string{"api", "cli", "server"},
		},
		{
			name:           "nested_package_owns_its_files",
			changedFiles:   []string{"crates/core/macros/src/lib.rs"},
			expectedDirect: []string{"core-macros"},
		},
		{
			name:               "direct_never_transitive",
			changedFiles:       []string{"crates/core/Cargo.toml", "./crates/api/src/routes.rs"},
			expectedDirect:     []string{"api", "core"},
			expectedTransitive: []string{"cli", "server"},
		},
		{
			name:            "unowned_files_are_reported",
			changedFiles:    []string{"README.md", "crates/coreutils.txt", ""},
			expectedUnowned: []string{"README.md", "crates/coreutils.txt"},
		},
		{
			name:           "leaf_change_has_no_transitive_impact",
			changedFiles:   []string{"docs/guide.md"},
			expectedDirect: []string{"docs"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testImpactSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			impactSet := impact.ComputeImpact(dependencyGraph, testCase.changedFiles)
			require.Equal(testInstance, testCase.expectedDirect, impactSet.Direct)
			require.Equal(testInstance, testCase.expectedTransitive, impactSet.Transitive)
			require.Equal(testInstance, testCase.expectedUnowned, impactSet.UnownedFiles)

			for _, directName := range impactSet.Direct {
				require.NotContains(testInstance, impactSet.Transitive, directName)
			}
		})
	}
}

func TestComputeImpactRootPackageOwnsRemainder(testInstance *testing.T) {
	dependencyGraph := buildTestGraph(testInstance,
		pathPackage("root", ""),
		pathPackage("member", "member", "root"),
	)

	impactSet := impact.ComputeImpact(dependencyGraph, []string{"src/main.rs", "member/src/lib.rs"})
	require.Equal(testInstance, []string{"member", "root"}, impactSet.Direct)
	require.Empty(testInstance, impactSet.Transitive)
	require.Equal(testInstance, map[string][]string{"member": {"member/src/lib.rs"}, "root": {"src/main.rs"}}, impactSet.FilesByPackage)
}

func TestComputeImpactRecordsPropagationChain(testInstance *testing.T) {
	dependencyGraph := buildTestGraph(testInstance,
		pathPackage("a", "a"),
		pathPackage("b", "b", "a"),
		pathPackage("c", "c", "b"),
	)

	impactSet := impact.ComputeImpact(dependencyGraph, []string{"a/src/lib.rs"})
	require.Equal(testInstance, []string{"a", "b", "c"}, impactSet.Chain("c"))
	require.Equal(testInstance, []string{"a"}, impactSet.Chain("a"))
	require.Equal(testInstance, []string{"a", "b", "c"}, impactSet.Impacted())

	class, impacted := impactSet.ClassOf("c")
	require.True(testInstance, impacted)
	require.Equal(testInstance, impact.ClassTransitive, class)

	directClass, directImpacted := impactSet.ClassOf("a")
	require.True(testInstance, directImpacted)
	require.Equal(testInstance, impact.ClassDirect, directClass)
}

func TestComputeImpactTerminatesOnCycles(testInstance *testing.T) {
	dependencyGraph := buildTestGraph(testInstance,
		pathPackage("a", "a", "c"),
		pathPackage("b", "b", "a"),
		pathPackage("c", "c", "b"),
		pathPackage("isolated", "isolated"),
	)

	impactSet := impact.ComputeImpact(dependencyGraph, []string{"b/lib.rs"})
	require.Equal(testInstance, []string{"b"}, impactSet.Direct)
	require.Equal(testInstance, []string{"a", "c"}, impactSet.Transitive)

	_, isolatedImpacted := impactSet.ClassOf("isolated")
	require.False(testInstance, isolatedImpacted)
}
