package severity

import (
	"sort"

	"github.com/temirov/deptrack/internal/changelog"
	"github.com/temirov/deptrack/internal/impact"
	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/versioncheck"
)

// RunInput carries everything collected during one analysis run.
// Findings arrive without levels; EvaluateRun assigns them.
type RunInput struct {
	Revisions         report.Revisions
	Workspaces        []report.WorkspaceSummary
	VersionFindings   []report.AssessedVersionFinding
	ChangelogFindings []report.AssessedChangelogFinding
	Cycles            []report.WorkspaceCycles
	Problems          []report.Problem
	ChangelogSkipped  bool
}

// Assign looks up the level configured for a finding type in an impact class.
// Unchanged packages are held to the direct column.
func Assign(findingType report.FindingType, class impact.Class, configuration Config) report.Level {
	if class == impact.ClassUnchanged {
		class = impact.ClassDirect
	}
	if entries, classConfigured := configuration.Table[class]; classConfigured {
		if level, typeConfigured := entries[findingType]; typeConfigured {
			return level
		}
	}
	return report.LevelWarn
}

// VersionFindingType maps a version classification to the finding it raises, if any.
func VersionFindingType(finding versioncheck.VersionFinding, configuration Config) (report.FindingType, bool) {
	switch finding.Status {
	case versioncheck.StatusUnchanged, versioncheck.StatusDecreased:
		return report.FindingNoVersionBump, true
	case versioncheck.StatusUnparsable:
		if configuration.UnparsableIsViolation {
			return report.FindingNoVersionBump, true
		}
		return report.FindingUnparsableVersion, true
	default:
		return "", false
	}
}

// ChangelogFindingType maps a changelog check to the finding it raises, if any.
func ChangelogFindingType(finding changelog.ChangelogFinding) (report.FindingType, bool) {
	switch finding.Status {
	case changelog.StatusMissingChangelog:
		return report.FindingMissingChangelog, true
	case changelog.StatusUnrecognizedFormat:
		return report.FindingUnrecognizedFormat, true
	case changelog.StatusBadFormat:
		return report.FindingBadFormat, true
	default:
		return "", false
	}
}

// EvaluateRun assigns levels, computes compliance statistics and decides the outcome.
func EvaluateRun(input RunInput, configuration Config) report.Report {
	levels := report.LevelCounts{}

	versionFindings := make([]report.AssessedVersionFinding, 0, len(input.VersionFindings))
	versionCompliant := 0
	for _, assessed := range input.VersionFindings {
		assessed.FindingType = ""
		assessed.Level = ""
		if findingType, raised := VersionFindingType(assessed.Finding, configuration); raised {
			assessed.FindingType = findingType
			assessed.Level = Assign(findingType, assessed.Finding.ImpactClass, configuration)
			levels = levels.Add(assessed.Level)
		} else {
			versionCompliant++
		}
		versionFindings = append(versionFindings, assessed)
	}
	sort.SliceStable(versionFindings, func(leftIndex, rightIndex int) bool {
		return lessByPackage(versionFindings[leftIndex].Finding.Package, versionFindings[leftIndex].Workspace, versionFindings[rightIndex].Finding.Package, versionFindings[rightIndex].Workspace)
	})

	changelogFindings := make([]report.AssessedChangelogFinding, 0, len(input.ChangelogFindings))
	changelogCompliant := 0
	for _, assessed := range input.ChangelogFindings {
		assessed.FindingType = ""
		assessed.Level = ""
		if findingType, raised := ChangelogFindingType(assessed.Finding); raised {
			assessed.FindingType = findingType
			assessed.Level = Assign(findingType, assessed.Finding.ImpactClass, configuration)
			levels = levels.Add(assessed.Level)
		} else {
			changelogCompliant++
		}
		changelogFindings = append(changelogFindings, assessed)
	}
	sort.SliceStable(changelogFindings, func(leftIndex, rightIndex int) bool {
		return lessByPackage(changelogFindings[leftIndex].Finding.Package, changelogFindings[leftIndex].Workspace, changelogFindings[rightIndex].Finding.Package, changelogFindings[rightIndex].Workspace)
	})

	workspaces := append([]report.WorkspaceSummary(nil), input.Workspaces...)
	sort.SliceStable(workspaces, func(leftIndex, rightIndex int) bool {
		return workspaces[leftIndex].Root < workspaces[rightIndex].Root
	})

	cycles := append([]report.WorkspaceCycles(nil), input.Cycles...)
	sort.SliceStable(cycles, func(leftIndex, rightIndex int) bool {
		return cycles[leftIndex].Workspace < cycles[rightIndex].Workspace
	})

	problems := append([]report.Problem(nil), input.Problems...)
	sort.SliceStable(problems, func(leftIndex, rightIndex int) bool {
		left, right := problems[leftIndex], problems[rightIndex]
		if left.Workspace != right.Workspace {
			return left.Workspace < right.Workspace
		}
		if left.Package != right.Package {
			return left.Package < right.Package
		}
		if left.Kind != right.Kind {
			return left.Kind < right.Kind
		}
		return left.Message < right.Message
	})

	outcome := report.OutcomePass
	if levels.Errors > 0 {
		outcome = report.OutcomeFail
	}

	return report.Report{
		Revisions:         input.Revisions,
		Workspaces:        workspaces,
		VersionStats:      report.NewComplianceStats(len(versionFindings), versionCompliant),
		ChangelogStats:    report.NewComplianceStats(len(changelogFindings), changelogCompliant),
		ChangelogSkipped:  input.ChangelogSkipped,
		VersionFindings:   versionFindings,
		ChangelogFindings: changelogFindings,
		Cycles:            cycles,
		Problems:          problems,
		Levels:            levels,
		Outcome:           outcome,
	}
}

func lessByPackage(leftPackage string, leftWorkspace string, rightPackage string, rightWorkspace string) bool {
	if leftPackage != rightPackage {
		return leftPackage < rightPackage
	}
	return leftWorkspace < rightWorkspace
}
