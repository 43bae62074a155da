package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	jsonIndentConstant                   = "  "
	listSeparatorConstant                = ", "
	emptyListPlaceholderConstant         = "-"
	unsupportedFormatTemplateConstant    = "%w: %q"
	renderErrorTemplateConstant          = "render %s report: %w"
	textHeaderTemplateConstant           = "Revisions: %s (%s) -> %s (%s)\n"
	textOutcomeTemplateConstant          = "Outcome: %s (errors: %d, warnings: %d, ignored: %d)\n"
	textStatsTemplateConstant            = "%s compliance: %d/%d (%.1f%%)\n"
	textSkippedStatsTemplateConstant     = "%s compliance: skipped\n"
	textMergeBaseTemplateConstant        = "Merge base: %s\n"
	textWorkspaceTemplateConstant        = "Workspace %s (%s): %d packages, direct: %s, transitive: %s\n"
	textUnownedTemplateConstant          = "  unowned changed files: %s\n"
	textSectionTemplateConstant          = "\n%s:\n"
	textVersionHeaderConstant            = "  LEVEL\tWORKSPACE\tPACKAGE\tIMPACT\tBASE\tTARGET\tSTATUS\n"
	textVersionRowTemplateConstant       = "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n"
	textChangelogHeaderConstant          = "  LEVEL\tWORKSPACE\tPACKAGE\tIMPACT\tFORMAT\tTOP\tSTATUS\tDETAIL\n"
	textChangelogRowTemplateConstant     = "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n"
	textCycleTemplateConstant            = "  %s: %s\n"
	textProblemTemplateConstant          = "  [%s] %s: %s\n"
	textVersionSectionTitleConstant      = "Version findings"
	textChangelogSectionTitleConstant    = "Changelog findings"
	textCycleSectionTitleConstant        = "Dependency cycles"
	textProblemSectionTitleConstant      = "Problems"
	textVersionAxisLabelConstant         = "Version"
	textChangelogAxisLabelConstant       = "Changelog"
	textPackageLocationSeparatorConstant = "/"
	tabwriterPaddingConstant             = 2
)

// Format selects a report encoding.
type Format string

// Supported report formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	// FormatDOT is accepted by graph rendering only.
	FormatDOT Format = "dot"
)

// ErrUnsupportedFormat indicates an unknown report format.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat validates a report format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedFormat, raw)
	}
}

// Render writes the report in the requested format.
func Render(writer io.Writer, analysisReport Report, format Format) error {
	return encode(writer, format, analysisReport, func(textWriter io.Writer) error {
		return renderText(textWriter, analysisReport)
	})
}

func encode(writer io.Writer, format Format, value any, textRenderer func(io.Writer) error) error {
	var renderError error
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		renderError = encoder.Encode(value)
	case FormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(len(jsonIndentConstant))
		renderError = encoder.Encode(value)
		if closeError := encoder.Close(); renderError == nil {
			renderError = closeError
		}
	case FormatText:
		renderError = textRenderer(writer)
	default:
		return fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedFormat, format)
	}
	if renderError != nil {
		return fmt.Errorf(renderErrorTemplateConstant, format, renderError)
	}
	return nil
}

func renderText(writer io.Writer, analysisReport Report) error {
	var builder strings.Builder

	revisions := analysisReport.Revisions
	fmt.Fprintf(&builder, textHeaderTemplateConstant, revisions.BaseRef, shortRevision(revisions.BaseRevision), revisions.TargetRef, shortRevision(revisions.TargetRevision))
	if len(revisions.MergeBase) > 0 {
		fmt.Fprintf(&builder, textMergeBaseTemplateConstant, shortRevision(revisions.MergeBase))
	}
	fmt.Fprintf(&builder, textOutcomeTemplateConstant, strings.ToUpper(string(analysisReport.Outcome)), analysisReport.Levels.Errors, analysisReport.Levels.Warnings, analysisReport.Levels.Ignored)
	writeStats(&builder, textVersionAxisLabelConstant, analysisReport.VersionStats)
	if analysisReport.ChangelogSkipped {
		fmt.Fprintf(&builder, textSkippedStatsTemplateConstant, textChangelogAxisLabelConstant)
	} else {
		writeStats(&builder, textChangelogAxisLabelConstant, analysisReport.ChangelogStats)
	}

	for _, workspaceSummary := range analysisReport.Workspaces {
		fmt.Fprintf(&builder, textWorkspaceTemplateConstant, workspaceSummary.Name, displayRoot(workspaceSummary.Root), workspaceSummary.Packages, joinOrPlaceholder(workspaceSummary.Direct), joinOrPlaceholder(workspaceSummary.Transitive))
		if len(workspaceSummary.UnownedFiles) > 0 {
			fmt.Fprintf(&builder, textUnownedTemplateConstant, strings.Join(workspaceSummary.UnownedFiles, listSeparatorConstant))
		}
	}

	if len(analysisReport.VersionFindings) > 0 {
		fmt.Fprintf(&builder, textSectionTemplateConstant, textVersionSectionTitleConstant)
		tableWriter := tabwriter.NewWriter(&builder, 0, 0, tabwriterPaddingConstant, ' ', 0)
		fmt.Fprint(tableWriter, textVersionHeaderConstant)
		for _, assessed := range analysisReport.VersionFindings {
			finding := assessed.Finding
			fmt.Fprintf(tableWriter, textVersionRowTemplateConstant, levelLabel(assessed.Level), assessed.Workspace, finding.Package, finding.ImpactClass, placeholder(finding.BaseVersion), placeholder(finding.TargetVersion), finding.Status)
		}
		if flushError := tableWriter.Flush(); flushError != nil {
			return flushError
		}
	}

	if len(analysisReport.ChangelogFindings) > 0 {
		fmt.Fprintf(&builder, textSectionTemplateConstant, textChangelogSectionTitleConstant)
		tableWriter := tabwriter.NewWriter(&builder, 0, 0, tabwriterPaddingConstant, ' ', 0)
		fmt.Fprint(tableWriter, textChangelogHeaderConstant)
		for _, assessed := range analysisReport.ChangelogFindings {
			finding := assessed.Finding
			fmt.Fprintf(tableWriter, textChangelogRowTemplateConstant, levelLabel(assessed.Level), assessed.Workspace, finding.Package, finding.ImpactClass, finding.Format, placeholder(finding.TopVersion), finding.Status, placeholder(finding.Detail))
		}
		if flushError := tableWriter.Flush(); flushError != nil {
			return flushError
		}
	}

	if len(analysisReport.Cycles) > 0 {
		fmt.Fprintf(&builder, textSectionTemplateConstant, textCycleSectionTitleConstant)
		for _, workspaceCycles := range analysisReport.Cycles {
			for _, cycle := range workspaceCycles.Cycles {
				fmt.Fprintf(&builder, textCycleTemplateConstant, workspaceCycles.Workspace, cycle.String())
			}
		}
	}

	if len(analysisReport.Problems) > 0 {
		fmt.Fprintf(&builder, textSectionTemplateConstant, textProblemSectionTitleConstant)
		for _, problem := range analysisReport.Problems {
			fmt.Fprintf(&builder, textProblemTemplateConstant, problem.Kind, problemLocation(problem), problem.Message)
		}
	}

	_, writeError := io.WriteString(writer, builder.String())
	return writeError
}

func writeStats(builder *strings.Builder, label string, stats ComplianceStats) {
	fmt.Fprintf(builder, textStatsTemplateConstant, label, stats.Compliant, stats.Total, stats.Percentage)
}

func levelLabel(level Level) string {
	if len(level) == 0 {
		return emptyListPlaceholderConstant
	}
	return strings.ToUpper(string(level))
}

func placeholder(value string) string {
	if len(value) == 0 {
		return emptyListPlaceholderConstant
	}
	return value
}

func joinOrPlaceholder(values []string) string {
	if len(values) == 0 {
		return emptyListPlaceholderConstant
	}
	return strings.Join(values, listSeparatorConstant)
}

func displayRoot(root string) string {
	if len(root) == 0 {
		return "."
	}
	return root
}

func shortRevision(revision string) string {
	const shortRevisionLength = 12
	if len(revision) > shortRevisionLength {
		return revision[:shortRevisionLength]
	}
	return placeholder(revision)
}

func problemLocation(problem Problem) string {
	parts := make([]string, 0, 2)
	if len(problem.Workspace) > 0 {
		parts = append(parts, problem.Workspace)
	}
	if len(problem.Package) > 0 {
		parts = append(parts, problem.Package)
	}
	if len(parts) == 0 {
		return emptyListPlaceholderConstant
	}
	return strings.Join(parts, textPackageLocationSeparatorConstant)
}
