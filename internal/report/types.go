// Package report defines the immutable result of an analysis run and its renderers.
package report

import (
	"github.com/temirov/deptrack/internal/changelog"
	"github.com/temirov/deptrack/internal/graph"
	"github.com/temirov/deptrack/internal/versioncheck"
)

// Level is the severity assigned to a finding.
type Level string

// Supported severity levels.
const (
	LevelError  Level = "error"
	LevelWarn   Level = "warn"
	LevelIgnore Level = "ignore"
)

// FindingType names a reportable condition.
type FindingType string

// Supported finding types.
const (
	FindingNoVersionBump      FindingType = "no_version_bump"
	FindingMissingChangelog   FindingType = "missing_changelog"
	FindingUnrecognizedFormat FindingType = "unrecognized_format"
	FindingUnparsableVersion  FindingType = "unparsable_version"
	FindingBadFormat          FindingType = "bad_format"
)

// Outcome is the overall verdict of a run.
type Outcome string

// Supported outcomes.
const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// ProblemKind classifies a collected non-fatal error.
type ProblemKind string

// Supported problem kinds.
const (
	ProblemManifestParse        ProblemKind = "manifest_parse"
	ProblemUnresolvedDependency ProblemKind = "unresolved_dependency"
	ProblemGraphBuild           ProblemKind = "graph_build"
	ProblemVersionRead          ProblemKind = "version_read"
	ProblemChangelogRead        ProblemKind = "changelog_read"
)

// Problem is a non-fatal error collected during analysis.
type Problem struct {
	Kind      ProblemKind `json:"kind" yaml:"kind"`
	Workspace string      `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Package   string      `json:"package,omitempty" yaml:"package,omitempty"`
	Message   string      `json:"message" yaml:"message"`
}

// ComplianceStats summarizes one compliance axis.
type ComplianceStats struct {
	Total          int     `json:"total" yaml:"total"`
	Compliant      int     `json:"compliant" yaml:"compliant"`
	NeedsAttention int     `json:"needs_attention" yaml:"needs_attention"`
	Percentage     float64 `json:"percentage" yaml:"percentage"`
}

// NewComplianceStats derives the percentage, treating an empty axis as fully compliant.
func NewComplianceStats(total int, compliant int) ComplianceStats {
	stats := ComplianceStats{
		Total:          total,
		Compliant:      compliant,
		NeedsAttention: total - compliant,
		Percentage:     100,
	}
	if total > 0 {
		stats.Percentage = float64(compliant) / float64(total) * 100
	}
	return stats
}

// LevelCounts tallies assigned severities.
type LevelCounts struct {
	Errors   int `json:"errors" yaml:"errors"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Ignored  int `json:"ignored" yaml:"ignored"`
}

// Add counts one assigned level.
func (counts LevelCounts) Add(level Level) LevelCounts {
	switch level {
	case LevelError:
		counts.Errors++
	case LevelWarn:
		counts.Warnings++
	case LevelIgnore:
		counts.Ignored++
	}
	return counts
}

// AssessedVersionFinding pairs a version finding with its assigned severity.
type AssessedVersionFinding struct {
	Workspace string                      `json:"workspace" yaml:"workspace"`
	Finding   versioncheck.VersionFinding `json:"finding" yaml:"finding"`
	// FindingType is empty when the package complies.
	FindingType FindingType `json:"finding_type,omitempty" yaml:"finding_type,omitempty"`
	Level       Level       `json:"level,omitempty" yaml:"level,omitempty"`
}

// AssessedChangelogFinding pairs a changelog finding with its assigned severity.
type AssessedChangelogFinding struct {
	Workspace   string                     `json:"workspace" yaml:"workspace"`
	Finding     changelog.ChangelogFinding `json:"finding" yaml:"finding"`
	FindingType FindingType                `json:"finding_type,omitempty" yaml:"finding_type,omitempty"`
	Level       Level                      `json:"level,omitempty" yaml:"level,omitempty"`
}

// WorkspaceCycles lists the cycles detected inside one workspace.
type WorkspaceCycles struct {
	Workspace string        `json:"workspace" yaml:"workspace"`
	Cycles    []graph.Cycle `json:"cycles" yaml:"cycles"`
}

// WorkspaceSummary describes the impact computed for one workspace.
type WorkspaceSummary struct {
	Name         string   `json:"name" yaml:"name"`
	Root         string   `json:"root" yaml:"root"`
	Packages     int      `json:"packages" yaml:"packages"`
	Direct       []string `json:"direct" yaml:"direct"`
	Transitive   []string `json:"transitive" yaml:"transitive"`
	UnownedFiles []string `json:"unowned_files,omitempty" yaml:"unowned_files,omitempty"`
}

// Revisions identifies the compared revisions.
type Revisions struct {
	BaseRef        string `json:"base_ref" yaml:"base_ref"`
	BaseRevision   string `json:"base_revision" yaml:"base_revision"`
	TargetRef      string `json:"target_ref" yaml:"target_ref"`
	TargetRevision string `json:"target_revision" yaml:"target_revision"`
	// MergeBase is set when the run compared against the common ancestor of both refs.
	MergeBase string `json:"merge_base,omitempty" yaml:"merge_base,omitempty"`
}

// Report is the complete, immutable outcome of one analysis run.
type Report struct {
	Revisions         Revisions                  `json:"revisions" yaml:"revisions"`
	Workspaces        []WorkspaceSummary         `json:"workspaces" yaml:"workspaces"`
	VersionStats      ComplianceStats            `json:"version_stats" yaml:"version_stats"`
	ChangelogStats    ComplianceStats            `json:"changelog_stats" yaml:"changelog_stats"`
	ChangelogSkipped  bool                       `json:"changelog_skipped,omitempty" yaml:"changelog_skipped,omitempty"`
	VersionFindings   []AssessedVersionFinding   `json:"version_findings" yaml:"version_findings"`
	ChangelogFindings []AssessedChangelogFinding `json:"changelog_findings" yaml:"changelog_findings"`
	Cycles            []WorkspaceCycles          `json:"cycles" yaml:"cycles"`
	Problems          []Problem                  `json:"problems" yaml:"problems"`
	Levels            LevelCounts                `json:"levels" yaml:"levels"`
	Outcome           Outcome                    `json:"outcome" yaml:"outcome"`
}

// Failed reports whether any finding was assigned error severity.
func (report Report) Failed() bool {
	return report.Outcome == OutcomeFail
}
