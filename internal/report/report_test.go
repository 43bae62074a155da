package report_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/deptrack/internal/changelog"
	"github.com/temirov/deptrack/internal/graph"
	"github.com/temirov/deptrack/internal/impact"
	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/versioncheck"
)

const testReportSubtestTemplateConstant = "%d_%s"

func sampleReport() report.Report {
	return report.Report{
		Revisions: report.Revisions{
			BaseRef:        "main",
			BaseRevision:   "0123456789abcdef0123",
			TargetRef:      "HEAD",
			TargetRevision: "fedcba9876543210fedc",
		},
		Workspaces: []report.WorkspaceSummary{
			{Name: "root", Root: "", Packages: 2, Direct: []string{"core"}, Transitive: []string{"api"}, UnownedFiles: []string{"README.md"}},
		},
		VersionStats:   report.NewComplianceStats(2, 1),
		ChangelogStats: report.NewComplianceStats(1, 0),
		VersionFindings: []report.AssessedVersionFinding{
			{
				Workspace:   "root",
				Finding:     versioncheck.CheckVersion("api", "1.0.0", "1.0.0").WithImpact(impact.ClassTransitive),
				FindingType: report.FindingNoVersionBump,
				Level:       report.LevelWarn,
			},
			{
				Workspace: "root",
				Finding:   versioncheck.CheckVersion("core", "1.0.0", "1.1.0").WithImpact(impact.ClassDirect),
			},
		},
		ChangelogFindings: []report.AssessedChangelogFinding{
			{
				Workspace: "root",
				Finding: changelog.ChangelogFinding{
					Package:     "core",
					Path:        "crates/core/CHANGELOG.md",
					Present:     true,
					Format:      changelog.FormatCommonChangelog,
					TopVersion:  "1.0.0",
					Status:      changelog.StatusMissingChangelog,
					ImpactClass: impact.ClassDirect,
					Detail:      "top entry 1.0.0 does not match version 1.1.0",
				},
				FindingType: report.FindingMissingChangelog,
				Level:       report.LevelError,
			},
		},
		Cycles: []report.WorkspaceCycles{
			{Workspace: "root", Cycles: []graph.Cycle{{Members: []string{"a", "b"}, Walk: []string{"a", "b", "a"}}}},
		},
		Problems: []report.Problem{
			{Kind: report.ProblemManifestParse, Workspace: "root", Package: "crates/broken/Cargo.toml", Message: "decode manifest: bad"},
		},
		Levels:  report.LevelCounts{Errors: 1, Warnings: 1},
		Outcome: report.OutcomeFail,
	}
}

func TestParseFormat(testInstance *testing.T) {
	testCases := []struct {
		name           string
		raw            string
		expectedFormat report.Format
		expectedError  error
	}{
		{name: "empty_defaults_to_text", raw: "", expectedFormat: report.FormatText},
		{name: "text", raw: "text", expectedFormat: report.FormatText},
		{name: "json_mixed_case", raw: " JSON ", expectedFormat: report.FormatJSON},
		{name: "yaml", raw: "yaml", expectedFormat: report.FormatYAML},
		{name: "unsupported", raw: "xml", expectedError: report.ErrUnsupportedFormat},
		{name: "dot_is_graph_only", raw: "dot", expectedError: report.ErrUnsupportedFormat},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testReportSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			format, parseError := report.ParseFormat(testCase.raw)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, parseError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedFormat, format)
		})
	}
}

func TestNewComplianceStats(testInstance *testing.T) {
	require.Equal(testInstance, report.ComplianceStats{Percentage: 100}, report.NewComplianceStats(0, 0))
	require.Equal(testInstance, report.ComplianceStats{Total: 4, Compliant: 3, NeedsAttention: 1, Percentage: 75}, report.NewComplianceStats(4, 3))
}

func TestRenderText(testInstance *testing.T) {
	var buffer bytes.Buffer
	require.NoError(testInstance, report.Render(&buffer, sampleReport(), report.FormatText))

	rendered := buffer.String()
	expectedFragments := []string{
		"Revisions: main (0123456789ab) -> HEAD (fedcba987654)",
		"Outcome: FAIL (errors: 1, warnings: 1, ignored: 0)",
		"Version compliance: 1/2 (50.0%)",
		"Changelog compliance: 0/1 (0.0%)",
		"Workspace root (.): 2 packages, direct: core, transitive: api",
		"unowned changed files: README.md",
		"Version findings:",
		"Changelog findings:",
		"top entry 1.0.0 does not match version 1.1.0",
		"root: a -> b -> a",
		"[manifest_parse] root/crates/broken/Cargo.toml: decode manifest: bad",
	}
	for _, fragment := range expectedFragments {
		require.Contains(testInstance, rendered, fragment)
	}
}

func TestRenderStructured(testInstance *testing.T) {
	testCases := []struct {
		name      string
		format    report.Format
		unmarshal func(data []byte, target any) error
	}{
		{name: "json", format: report.FormatJSON, unmarshal: json.Unmarshal},
		{name: "yaml", format: report.FormatYAML, unmarshal: yaml.Unmarshal},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testReportSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			var buffer bytes.Buffer
			require.NoError(testInstance, report.Render(&buffer, sampleReport(), testCase.format))

			var decoded map[string]any
			require.NoError(testInstance, testCase.unmarshal(buffer.Bytes(), &decoded))
			require.Equal(testInstance, "fail", decoded["outcome"])
			require.Contains(testInstance, decoded, "version_findings")
			require.Contains(testInstance, decoded, "changelog_stats")
			require.Contains(testInstance, decoded, "problems")
		})
	}
}

func TestRenderUnsupportedFormat(testInstance *testing.T) {
	var buffer bytes.Buffer
	renderError := report.Render(&buffer, sampleReport(), report.Format("xml"))
	require.ErrorIs(testInstance, renderError, report.ErrUnsupportedFormat)
	require.Zero(testInstance, buffer.Len())
}

func TestRenderTextMergeBaseAndSkippedChangelog(testInstance *testing.T) {
	analysisReport := sampleReport()
	analysisReport.Revisions.MergeBase = "abcdef0123456789abcd"
	analysisReport.ChangelogSkipped = true
	analysisReport.ChangelogFindings = nil

	var buffer bytes.Buffer
	require.NoError(testInstance, report.Render(&buffer, analysisReport, report.FormatText))
	rendered := buffer.String()
	require.Contains(testInstance, rendered, "Merge base: abcdef012345")
	require.Contains(testInstance, rendered, "Changelog compliance: skipped")
	require.NotContains(testInstance, rendered, "Changelog compliance: 0/1")
}

func sampleGraphReport() report.GraphReport {
	workspaces := []report.WorkspaceGraph{
		{
			Name: "root",
			Packages: []report.GraphNode{
				{Name: "api", Version: "1.0.0", Path: "crates/api", Dependencies: []string{"core"}},
				{Name: "core", Version: "1.0.0", Path: "crates/core", Dependents: []string{"api"}},
			},
			BuildOrder: []string{"core", "api"},
		},
		{
			Name: "tools",
			Root: "tools",
			Packages: []report.GraphNode{
				{Name: "a", Version: "0.1.0", Path: "tools/a", Dependencies: []string{"b"}, Dependents: []string{"b"}},
				{Name: "b", Version: "0.1.0", Path: "tools/b", Dependencies: []string{"a"}, Dependents: []string{"a"}},
			},
			Cycles: []graph.Cycle{{Members: []string{"a", "b"}, Walk: []string{"a", "b", "a"}}},
		},
	}
	return report.GraphReport{Workspaces: workspaces, Stats: report.SummarizeGraphs(workspaces)}
}

func TestSummarizeGraphs(testInstance *testing.T) {
	require.Equal(testInstance, report.GraphStats{
		Workspaces:      2,
		Packages:        4,
		Dependencies:    3,
		Cycles:          1,
		HasCycles:       true,
		MaxDependents:   1,
		MaxDependencies: 1,
	}, sampleGraphReport().Stats)
	require.Equal(testInstance, report.GraphStats{}, report.SummarizeGraphs(nil))
}

func TestParseGraphFormat(testInstance *testing.T) {
	testCases := []struct {
		name           string
		raw            string
		expectedFormat report.Format
		expectedError  error
	}{
		{name: "dot", raw: " DOT ", expectedFormat: report.FormatDOT},
		{name: "json", raw: "json", expectedFormat: report.FormatJSON},
		{name: "empty_defaults_to_text", raw: "", expectedFormat: report.FormatText},
		{name: "unsupported", raw: "svg", expectedError: report.ErrUnsupportedFormat},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testReportSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			format, parseError := report.ParseGraphFormat(testCase.raw)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, parseError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedFormat, format)
		})
	}
}

func TestRenderGraphDOT(testInstance *testing.T) {
	var buffer bytes.Buffer
	require.NoError(testInstance, report.RenderGraph(&buffer, sampleGraphReport(), report.FormatDOT))

	expected := `digraph dependency_graph {
  rankdir=LR;
  node [shape=box];
  "root/api" [label="api\n(root)"];
  "root/core" [label="core\n(root)"];
  "root/api" -> "root/core";
  "tools/a" [label="a\n(tools)", color=red];
  "tools/b" [label="b\n(tools)", color=red];
  "tools/a" -> "tools/b";
  "tools/b" -> "tools/a";
}
`
	require.Equal(testInstance, expected, buffer.String())
}

func TestRenderGraphDOTEscapesQuotes(testInstance *testing.T) {
	graphReport := report.GraphReport{Workspaces: []report.WorkspaceGraph{
		{Name: `odd "ws"`, Packages: []report.GraphNode{{Name: "core"}}},
	}}

	var buffer bytes.Buffer
	require.NoError(testInstance, report.RenderGraph(&buffer, graphReport, report.FormatDOT))
	require.Contains(testInstance, buffer.String(), `"odd \"ws\"/core" [label="core\n(odd \"ws\")"];`)
}

func TestRenderGraphText(testInstance *testing.T) {
	var buffer bytes.Buffer
	require.NoError(testInstance, report.RenderGraph(&buffer, sampleGraphReport(), report.FormatText))

	rendered := buffer.String()
	require.Contains(testInstance, rendered, "Workspace root (.): 2 packages")
	require.Contains(testInstance, rendered, "build order: core, api")
	require.Contains(testInstance, rendered, "cycle: a -> b -> a")
	require.Contains(testInstance, rendered, "Totals: 2 workspaces, 4 packages, 3 dependencies, 1 cycles")
}

func TestRenderGraphStats(testInstance *testing.T) {
	stats := sampleGraphReport().Stats

	var textBuffer bytes.Buffer
	require.NoError(testInstance, report.RenderGraphStats(&textBuffer, stats, report.FormatText))
	require.Equal(testInstance, "workspaces: 2\npackages: 4\ndependencies: 3\ncycles: 1\nhas_cycles: true\nmax_dependents: 1\nmax_dependencies: 1\n", textBuffer.String())

	var jsonBuffer bytes.Buffer
	require.NoError(testInstance, report.RenderGraphStats(&jsonBuffer, stats, report.FormatJSON))
	var decoded report.GraphStats
	require.NoError(testInstance, json.Unmarshal(jsonBuffer.Bytes(), &decoded))
	require.Equal(testInstance, stats, decoded)

	var dotBuffer bytes.Buffer
	require.ErrorIs(testInstance, report.RenderGraphStats(&dotBuffer, stats, report.FormatDOT), report.ErrUnsupportedFormat)
}
