package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/deptrack/internal/analysis"
	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/revision"
)

const (
	testApplicationSubtestTemplateConstant   = "%d_%s"
	testBaseRefConstant                      = "base"
	testTargetRefConstant                    = "target"
	testMembersManifestConstant              = "[workspace]\nmembers = [\"crates/*\"]\n"
	testConfigurationFileNameConstant        = "deptrack.yaml"
	testRelaxedSeverityConfigurationConstant = "severity:\n  direct:\n    missing_changelog: warn\n"
	testJSONOutputConfigurationConstant      = "analysis:\n  output_format: json\n"
	testEntryValidationConfigurationConstant = "severity:\n  direct:\n    missing_changelog: warn\n  changelog:\n    validate_entries: true\n    allowed_change_types:\n      - feat\n"
)

func testPackageManifest(name string, version string, pathDependencies ...string) string {
	content := fmt.Sprintf("[package]\nname = %q\nversion = %q\n", name, version)
	if len(pathDependencies) == 0 {
		return content
	}
	content += "\n[dependencies]\n"
	for _, dependency := range pathDependencies {
		content += fmt.Sprintf("%s = { path = \"../%s\" }\n", dependency, dependency)
	}
	return content
}

func testChangelog(version string) string {
	return fmt.Sprintf("# Changelog\n\n## [%s] - 2024-01-01\n\n- Release.\n", version)
}

func isolateConfiguration(testInstance *testing.T) string {
	testInstance.Helper()
	configurationDirectory := testInstance.TempDir()
	testInstance.Setenv("HOME", testInstance.TempDir())
	testInstance.Setenv("XDG_CONFIG_HOME", "")
	testInstance.Setenv(environmentPrefixConstant+"_CONFIG_SEARCH_PATH", configurationDirectory)
	return configurationDirectory
}

func writeFiles(testInstance *testing.T, rootDirectory string, files map[string]string) {
	testInstance.Helper()
	for relativePath, content := range files {
		absolutePath := filepath.Join(rootDirectory, filepath.FromSlash(relativePath))
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
		require.NoError(testInstance, os.WriteFile(absolutePath, []byte(content), 0o644))
	}
}

func releasedWorkspaceAdapter() *revision.MemoryAdapter {
	adapter := revision.NewMemoryAdapter()
	adapter.SetRevision(testBaseRefConstant, map[string]string{
		"Cargo.toml":               testMembersManifestConstant,
		"crates/core/Cargo.toml":   testPackageManifest("core", "1.0.0"),
		"crates/core/src/lib.rs":   "pub fn core() {}\n",
		"crates/core/CHANGELOG.md": testChangelog("1.0.0"),
		"crates/api/Cargo.toml":    testPackageManifest("api", "1.0.0", "core"),
		"crates/api/CHANGELOG.md":  testChangelog("1.0.0"),
	})
	adapter.SetRevision(testTargetRefConstant, map[string]string{
		"Cargo.toml":               testMembersManifestConstant,
		"crates/core/Cargo.toml":   testPackageManifest("core", "1.1.0"),
		"crates/core/src/lib.rs":   "pub fn core() -> u8 { 1 }\n",
		"crates/core/CHANGELOG.md": testChangelog("1.0.0"),
		"crates/api/Cargo.toml":    testPackageManifest("api", "1.0.1", "core"),
		"crates/api/CHANGELOG.md":  testChangelog("1.0.1"),
	})
	adapter.SetAlias("HEAD", testTargetRefConstant)
	return adapter
}

func newTestApplication(testInstance *testing.T, adapter revision.Adapter) (*Application, *bytes.Buffer) {
	testInstance.Helper()
	application, buildError := NewApplication()
	require.NoError(testInstance, buildError)
	if adapter != nil {
		application.adapterProvider = func(logger *zap.Logger, repositoryPath string, kind analysis.AdapterKind) (revision.Adapter, error) {
			return adapter, nil
		}
	}
	outputBuffer := &bytes.Buffer{}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetErr(outputBuffer)
	return application, outputBuffer
}

func TestApplicationVersionFlag(testInstance *testing.T) {
	isolateConfiguration(testInstance)
	application, outputBuffer := newTestApplication(testInstance, nil)
	application.rootCommand.SetArgs([]string{"--version"})

	require.NoError(testInstance, application.Execute())
	require.Equal(testInstance, "deptrack version: dev\n", outputBuffer.String())
}

func TestApplicationRegistersCommands(testInstance *testing.T) {
	application, _ := newTestApplication(testInstance, nil)

	commandNames := make([]string, 0, len(application.rootCommand.Commands()))
	for _, command := range application.rootCommand.Commands() {
		commandNames = append(commandNames, command.Name())
	}
	require.Subset(testInstance, commandNames, []string{"check", "graph"})
}

func TestApplicationCheckCommand(testInstance *testing.T) {
	testCases := []struct {
		name              string
		configuration     string
		environment       map[string]string
		arguments         []string
		expectedError     error
		expectedOutcome   report.Outcome
		expectedFragments []string
	}{
		{
			name:              "embedded_defaults_fail",
			arguments:         []string{"check", testBaseRefConstant, "--log-level", "error"},
			expectedError:     analysis.ErrComplianceFailed,
			expectedFragments: []string{"Outcome: FAIL", "missing_changelog"},
		},
		{
			name:            "configuration_file_relaxes_severity",
			configuration:   testRelaxedSeverityConfigurationConstant + testJSONOutputConfigurationConstant,
			arguments:       []string{"check", testBaseRefConstant, testTargetRefConstant, "--log-level", "error"},
			expectedOutcome: report.OutcomePass,
		},
		{
			name:              "configuration_enables_entry_validation",
			configuration:     testEntryValidationConfigurationConstant + testJSONOutputConfigurationConstant,
			arguments:         []string{"check", testBaseRefConstant, "--log-level", "error"},
			expectedError:     analysis.ErrComplianceFailed,
			expectedFragments: []string{"\"finding_type\": \"bad_format\"", "change type \\\"chore\\\" is not one of feat"},
		},
		{
			name:          "environment_enables_merge_base",
			environment:   map[string]string{"DEPTRACK_ANALYSIS_MERGE_BASE": "true"},
			arguments:     []string{"check", testBaseRefConstant, "--log-level", "error"},
			expectedError: revision.ErrNoMergeBase,
		},
		{
			name:            "environment_selects_format",
			configuration:   testRelaxedSeverityConfigurationConstant,
			environment:     map[string]string{"DEPTRACK_ANALYSIS_OUTPUT_FORMAT": "json"},
			arguments:       []string{"check", testBaseRefConstant, "--log-level", "error"},
			expectedOutcome: report.OutcomePass,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testApplicationSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			configurationDirectory := isolateConfiguration(testInstance)
			if len(testCase.configuration) > 0 {
				writeFiles(testInstance, configurationDirectory, map[string]string{testConfigurationFileNameConstant: testCase.configuration})
			}
			for name, value := range testCase.environment {
				testInstance.Setenv(name, value)
			}

			application, outputBuffer := newTestApplication(testInstance, releasedWorkspaceAdapter())
			application.rootCommand.SetArgs(testCase.arguments)

			executionError := application.Execute()
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, executionError, testCase.expectedError)
				for _, fragment := range testCase.expectedFragments {
					require.Contains(testInstance, outputBuffer.String(), fragment)
				}
				return
			}
			require.NoError(testInstance, executionError)

			var decoded report.Report
			require.NoError(testInstance, json.Unmarshal(outputBuffer.Bytes(), &decoded))
			require.Equal(testInstance, testCase.expectedOutcome, decoded.Outcome)
		})
	}
}

func TestApplicationConfigurationErrors(testInstance *testing.T) {
	testCases := []struct {
		name          string
		configuration string
		arguments     []string
		expectedError string
	}{
		{
			name:          "unsupported_log_level",
			arguments:     []string{"check", testBaseRefConstant, "--log-level", "verbose"},
			expectedError: "unable to create logger: unsupported log level: verbose",
		},
		{
			name:          "unsupported_severity_level",
			configuration: "severity:\n  direct:\n    no_version_bump: fatal\n",
			arguments:     []string{"check", testBaseRefConstant, "--log-level", "error"},
			expectedError: "severity configuration: severity.direct.no_version_bump: unsupported severity level: \"fatal\"",
		},
		{
			name:          "missing_configuration_file",
			arguments:     []string{"graph", "--config", "/nonexistent/deptrack.yaml"},
			expectedError: "unable to load configuration",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testApplicationSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			configurationDirectory := isolateConfiguration(testInstance)
			if len(testCase.configuration) > 0 {
				writeFiles(testInstance, configurationDirectory, map[string]string{testConfigurationFileNameConstant: testCase.configuration})
			}

			application, _ := newTestApplication(testInstance, releasedWorkspaceAdapter())
			application.rootCommand.SetArgs(testCase.arguments)
			require.ErrorContains(testInstance, application.Execute(), testCase.expectedError)
		})
	}
}

func TestApplicationGraphCommandReadsWorkingTree(testInstance *testing.T) {
	configurationDirectory := isolateConfiguration(testInstance)
	writeFiles(testInstance, configurationDirectory, map[string]string{testConfigurationFileNameConstant: testJSONOutputConfigurationConstant})

	repositoryDirectory := testInstance.TempDir()
	writeFiles(testInstance, repositoryDirectory, map[string]string{
		"Cargo.toml":             testMembersManifestConstant,
		"crates/core/Cargo.toml": testPackageManifest("core", "1.0.0"),
		"crates/api/Cargo.toml":  testPackageManifest("api", "1.0.0", "core"),
		"crates/cli/Cargo.toml":  testPackageManifest("cli", "0.1.0", "api"),
	})

	application, outputBuffer := newTestApplication(testInstance, nil)
	application.rootCommand.SetArgs([]string{"graph", "--repository", repositoryDirectory, "--from", "cli", "--to", "core", "--log-level", "error"})
	require.NoError(testInstance, application.Execute())

	var decoded report.GraphReport
	require.NoError(testInstance, json.Unmarshal(outputBuffer.Bytes(), &decoded))
	require.Len(testInstance, decoded.Workspaces, 1)
	require.Equal(testInstance, []string{"core", "api", "cli"}, decoded.Workspaces[0].BuildOrder)
	require.NotNil(testInstance, decoded.Query)
	require.Equal(testInstance, []string{"cli", "api", "core"}, decoded.Query.Path)
}

func TestApplicationCheckAgainstGitRepository(testInstance *testing.T) {
	isolateConfiguration(testInstance)

	repositoryDirectory := testInstance.TempDir()
	repository, initError := git.PlainInit(repositoryDirectory, false)
	require.NoError(testInstance, initError)
	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)

	commitFiles := func(message string, files map[string]string) string {
		writeFiles(testInstance, repositoryDirectory, files)
		require.NoError(testInstance, worktree.AddWithOptions(&git.AddOptions{All: true}))
		hash, commitError := worktree.Commit(message, &git.CommitOptions{
			Author: &object.Signature{Name: "Release Bot", Email: "release@example.com", When: time.Unix(1700000000, 0)},
		})
		require.NoError(testInstance, commitError)
		return hash.String()
	}

	baseRevision := commitFiles("initial", map[string]string{
		"Cargo.toml":               testMembersManifestConstant,
		"crates/core/Cargo.toml":   testPackageManifest("core", "1.0.0"),
		"crates/core/src/lib.rs":   "pub fn core() {}\n",
		"crates/core/CHANGELOG.md": testChangelog("1.0.0"),
		"crates/api/Cargo.toml":    testPackageManifest("api", "1.0.0", "core"),
		"crates/api/CHANGELOG.md":  testChangelog("1.0.0"),
	})
	commitFiles("release core", map[string]string{
		"crates/core/Cargo.toml":   testPackageManifest("core", "1.1.0"),
		"crates/core/src/lib.rs":   "pub fn core() -> u8 { 1 }\n",
		"crates/core/CHANGELOG.md": testChangelog("1.1.0"),
		"crates/api/Cargo.toml":    testPackageManifest("api", "1.0.1", "core"),
		"crates/api/CHANGELOG.md":  testChangelog("1.0.1"),
	})

	application, outputBuffer := newTestApplication(testInstance, nil)
	application.rootCommand.SetArgs([]string{
		"check", baseRevision,
		"--repository", repositoryDirectory,
		"--adapter", "go-git",
		"--format", "json",
		"--log-level", "error",
	})
	require.NoError(testInstance, application.Execute())

	var decoded report.Report
	require.NoError(testInstance, json.Unmarshal(outputBuffer.Bytes(), &decoded))
	require.Equal(testInstance, report.OutcomePass, decoded.Outcome)
	require.Equal(testInstance, report.NewComplianceStats(2, 2), decoded.VersionStats)
}

func TestApplicationStoresConfigurationPathInContext(testInstance *testing.T) {
	configurationDirectory := isolateConfiguration(testInstance)
	writeFiles(testInstance, configurationDirectory, map[string]string{testConfigurationFileNameConstant: testJSONOutputConfigurationConstant})

	application, _ := newTestApplication(testInstance, nil)
	command := application.rootCommand
	command.SetContext(context.Background())
	require.NoError(testInstance, application.initializeConfiguration(command))

	configurationFilePath, available := application.commandContextAccessor.ConfigurationFilePath(command.Context())
	require.True(testInstance, available)
	require.Equal(testInstance, filepath.Join(configurationDirectory, testConfigurationFileNameConstant), configurationFilePath)
	require.Equal(testInstance, "json", application.configuration.Analysis.OutputFormat)
}
