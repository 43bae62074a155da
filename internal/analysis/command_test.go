package analysis_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/deptrack/internal/analysis"
	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/revision"
	"github.com/temirov/deptrack/internal/severity"
)

const (
	testRepositoryPathConstant = "/srv/repository"
	testAdapterFailureConstant = "adapter unavailable"
)

type adapterRequest struct {
	repositoryPath string
	kind           analysis.AdapterKind
}

func staticAdapterProvider(adapter revision.Adapter, requests *[]adapterRequest) analysis.AdapterProvider {
	return func(logger *zap.Logger, repositoryPath string, kind analysis.AdapterKind) (revision.Adapter, error) {
		*requests = append(*requests, adapterRequest{repositoryPath: repositoryPath, kind: kind})
		return adapter, nil
	}
}

func TestCheckCommandRendersReport(testInstance *testing.T) {
	testCases := []struct {
		name              string
		arguments         []string
		configuration     analysis.CommandConfiguration
		expectedError     error
		expectedFragments []string
		expectedRequest   adapterRequest
	}{
		{
			name:              "failing_text",
			arguments:         []string{testBaseRefConstant},
			configuration:     analysis.DefaultCommandConfiguration(),
			expectedError:     analysis.ErrComplianceFailed,
			expectedFragments: []string{"Outcome: FAIL", "Version compliance: 1/2 (50.0%)", "missing_changelog"},
			expectedRequest:   adapterRequest{repositoryPath: ".", kind: analysis.AdapterGit},
		},
		{
			name:              "flags_override_configuration",
			arguments:         []string{testBaseRefConstant, testTargetRefConstant, "--repository", testRepositoryPathConstant, "--adapter", "go-git", "--format", "json"},
			configuration:     analysis.CommandConfiguration{OutputFormat: "yaml", Adapter: "git"},
			expectedError:     analysis.ErrComplianceFailed,
			expectedFragments: []string{"\"outcome\": \"fail\"", "\"target_revision\": \"target\""},
			expectedRequest:   adapterRequest{repositoryPath: testRepositoryPathConstant, kind: analysis.AdapterGoGit},
		},
		{
			name:              "skip_changelog_flag",
			arguments:         []string{testBaseRefConstant, "--skip-changelog"},
			configuration:     analysis.DefaultCommandConfiguration(),
			expectedFragments: []string{"Outcome: PASS (errors: 0, warnings: 1, ignored: 0)", "Changelog compliance: skipped"},
			expectedRequest:   adapterRequest{repositoryPath: ".", kind: analysis.AdapterGit},
		},
		{
			name:            "merge_base_from_configuration",
			arguments:       []string{testBaseRefConstant},
			configuration:   analysis.CommandConfiguration{MergeBase: true},
			expectedError:   revision.ErrNoMergeBase,
			expectedRequest: adapterRequest{repositoryPath: ".", kind: analysis.AdapterGit},
		},
		{
			name:              "merge_base_flag_overrides_configuration",
			arguments:         []string{testBaseRefConstant, "--merge-base=false", "--all"},
			configuration:     analysis.CommandConfiguration{MergeBase: true},
			expectedError:     analysis.ErrComplianceFailed,
			expectedFragments: []string{"Outcome: FAIL"},
			expectedRequest:   adapterRequest{repositoryPath: ".", kind: analysis.AdapterGit},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testAnalysisSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			var requests []adapterRequest
			builder := analysis.CommandBuilder{
				LoggerProvider:        func() *zap.Logger { return zap.NewNop() },
				ConfigurationProvider: func() analysis.CommandConfiguration { return testCase.configuration },
				AdapterProvider:       staticAdapterProvider(bumpedCoreUnbumpedDependentAdapter(), &requests),
			}
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			outputBuffer := &bytes.Buffer{}
			command.SetContext(context.Background())
			command.SetArgs(testCase.arguments)
			command.SetOut(outputBuffer)
			command.SetErr(outputBuffer)

			executionError := command.Execute()
			require.ErrorIs(testInstance, executionError, testCase.expectedError)
			for _, fragment := range testCase.expectedFragments {
				require.Contains(testInstance, outputBuffer.String(), fragment)
			}
			require.Equal(testInstance, []adapterRequest{testCase.expectedRequest}, requests)
		})
	}
}

func TestCheckCommandPassesWithRelaxedSeverity(testInstance *testing.T) {
	var requests []adapterRequest
	builder := analysis.CommandBuilder{
		SeverityProvider: func() (severity.Config, error) {
			configuration := severity.DefaultConfig()
			configuration.Changelog.Require = false
			configuration.Changelog.CheckUpdated = false
			return configuration, nil
		},
		AdapterProvider: staticAdapterProvider(bumpedCoreUnbumpedDependentAdapter(), &requests),
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &bytes.Buffer{}
	command.SetContext(context.Background())
	command.SetArgs([]string{testBaseRefConstant, "--format", "json"})
	command.SetOut(outputBuffer)
	command.SetErr(outputBuffer)
	require.NoError(testInstance, command.Execute())

	var decoded report.Report
	require.NoError(testInstance, json.Unmarshal(outputBuffer.Bytes(), &decoded))
	require.Equal(testInstance, report.OutcomePass, decoded.Outcome)
	require.Equal(testInstance, 1, decoded.Levels.Warnings)
}

func TestCheckCommandErrors(testInstance *testing.T) {
	testCases := []struct {
		name          string
		arguments     []string
		builder       analysis.CommandBuilder
		expectedError string
	}{
		{
			name:          "missing_base_ref",
			arguments:     []string{},
			builder:       analysis.CommandBuilder{},
			expectedError: "accepts between 1 and 2 arg(s), received 0",
		},
		{
			name:          "unsupported_format",
			arguments:     []string{testBaseRefConstant, "--format", "xml"},
			builder:       analysis.CommandBuilder{},
			expectedError: "unsupported report format: \"xml\"",
		},
		{
			name:          "dot_is_graph_only",
			arguments:     []string{testBaseRefConstant, "--format", "dot"},
			builder:       analysis.CommandBuilder{},
			expectedError: "unsupported report format: \"dot\"",
		},
		{
			name:          "unsupported_adapter",
			arguments:     []string{testBaseRefConstant, "--adapter", "svn"},
			builder:       analysis.CommandBuilder{},
			expectedError: "unsupported revision adapter: \"svn\"",
		},
		{
			name:      "severity_invalid",
			arguments: []string{testBaseRefConstant},
			builder: analysis.CommandBuilder{
				SeverityProvider: func() (severity.Config, error) {
					return severity.Config{}, severity.ErrUnsupportedLevel
				},
			},
			expectedError: "severity configuration: unsupported severity level",
		},
		{
			name:      "adapter_failure",
			arguments: []string{testBaseRefConstant},
			builder: analysis.CommandBuilder{
				AdapterProvider: func(logger *zap.Logger, repositoryPath string, kind analysis.AdapterKind) (revision.Adapter, error) {
					return nil, errors.New(testAdapterFailureConstant)
				},
			},
			expectedError: testAdapterFailureConstant,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testAnalysisSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			builder := testCase.builder
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			outputBuffer := &bytes.Buffer{}
			command.SetContext(context.Background())
			command.SetArgs(testCase.arguments)
			command.SetOut(outputBuffer)
			command.SetErr(outputBuffer)

			executionError := command.Execute()
			require.EqualError(testInstance, executionError, testCase.expectedError)
		})
	}
}

func TestGraphCommand(testInstance *testing.T) {
	testCases := []struct {
		name              string
		arguments         []string
		expectedError     string
		expectedFragments []string
		expectedRequests  int
	}{
		{
			name:              "working_tree",
			arguments:         []string{"--from", "cli", "--to", "core"},
			expectedFragments: []string{"Workspace root (.): 3 packages", "build order: core, api, cli", "Path cli -> core (root): cli -> api -> core"},
		},
		{
			name:              "revision",
			arguments:         []string{testBaseRefConstant, "--format", "yaml"},
			expectedFragments: []string{"build_order:", "- core", "- api"},
			expectedRequests:  1,
		},
		{
			name:              "dot_format",
			arguments:         []string{"--format", "dot"},
			expectedFragments: []string{"digraph dependency_graph {", "\"root/cli\" -> \"root/api\";", "\"root/core\" [label=\"core\\n(root)\"];"},
		},
		{
			name:              "stats_only",
			arguments:         []string{"--stats"},
			expectedFragments: []string{"workspaces: 1\npackages: 3\ndependencies: 2\ncycles: 0\n"},
		},
		{
			name:              "stats_only_json",
			arguments:         []string{testBaseRefConstant, "--stats", "--format", "json"},
			expectedFragments: []string{"\"packages\": 2", "\"has_cycles\": false"},
			expectedRequests:  1,
		},
		{
			name:          "incomplete_path_query",
			arguments:     []string{"--from", "cli"},
			expectedError: "--from and --to must be used together",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testAnalysisSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			var requests []adapterRequest
			builder := analysis.GraphCommandBuilder{
				AdapterProvider: staticAdapterProvider(bumpedCoreUnbumpedDependentAdapter(), &requests),
				FileSystem:      newGraphFilesystem(testInstance, graphFixture()),
			}
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			outputBuffer := &bytes.Buffer{}
			command.SetContext(context.Background())
			command.SetArgs(testCase.arguments)
			command.SetOut(outputBuffer)
			command.SetErr(outputBuffer)

			executionError := command.Execute()
			if len(testCase.expectedError) > 0 {
				require.EqualError(testInstance, executionError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, executionError)
			for _, fragment := range testCase.expectedFragments {
				require.Contains(testInstance, outputBuffer.String(), fragment)
			}
			require.Len(testInstance, requests, testCase.expectedRequests)
		})
	}
}
