package changelog

import (
	"fmt"
	"strings"

	"github.com/temirov/deptrack/internal/impact"
	"github.com/temirov/deptrack/internal/manifest"
	"github.com/temirov/deptrack/internal/versioncheck"
)

const (
	missingFileDetailConstant             = "changelog file not found"
	missingPathDetailConstant             = "no changelog configured"
	disabledDetailConstant                = "changelog checks disabled in manifest"
	noVersionedEntryDetailConstant        = "no versioned entry heading"
	versionMismatchDetailTemplateConstant = "top entry %s does not match version %s"
	unrecognizedDetailTemplateConstant    = "line %d: heading %q carries no version"
	unrecognizedDocumentDetailConstant    = "no entry headings found"
	issuesDetailSeparatorConstant         = "; "
)

// Status is the outcome of a changelog check.
type Status string

// Supported statuses.
const (
	StatusOK                 Status = "ok"
	StatusMissingChangelog   Status = "missing_changelog"
	StatusUnrecognizedFormat Status = "unrecognized_format"
	// StatusBadFormat means the entry items break the configured entry rules.
	StatusBadFormat Status = "bad_format"
	// StatusSkipped means policy or configuration exempted the package.
	StatusSkipped Status = "skipped"
)

// Policy holds the changelog flags of the severity configuration.
type Policy struct {
	// Require turns an absent changelog into a finding.
	Require bool
	// CheckUpdated requires the top versioned entry to match the package version.
	CheckUpdated bool
	Entries      EntryRules
}

// ChangelogFinding records the changelog check of one package.
type ChangelogFinding struct {
	Package     string       `json:"package" yaml:"package"`
	Path        string       `json:"path" yaml:"path"`
	Present     bool         `json:"present" yaml:"present"`
	Format      Format       `json:"format" yaml:"format"`
	TopVersion  string       `json:"top_version,omitempty" yaml:"top_version,omitempty"`
	Match       bool         `json:"match" yaml:"match"`
	Status      Status       `json:"status" yaml:"status"`
	ImpactClass impact.Class `json:"impact_class" yaml:"impact_class"`
	Detail      string       `json:"detail,omitempty" yaml:"detail,omitempty"`
	// Issues lists entry rule violations, reported even when another status takes precedence.
	Issues []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// WithImpact returns a copy of the finding tagged with an impact class.
func (finding ChangelogFinding) WithImpact(class impact.Class) ChangelogFinding {
	finding.ImpactClass = class
	return finding
}

// IsFinding reports whether the check produced a reportable condition.
func (finding ChangelogFinding) IsFinding() bool {
	switch finding.Status {
	case StatusMissingChangelog, StatusUnrecognizedFormat, StatusBadFormat:
		return true
	default:
		return false
	}
}

// CheckChangelog validates a package changelog read at the target revision; content is nil when absent.
func CheckChangelog(pkg manifest.Package, content *string, policy Policy) ChangelogFinding {
	finding := ChangelogFinding{
		Package: pkg.Name,
		Path:    pkg.ChangelogPath,
		Format:  FormatNone,
	}

	if pkg.ChangelogDisabled {
		finding.Status = StatusSkipped
		finding.Detail = disabledDetailConstant
		return finding
	}

	if len(pkg.ChangelogPath) == 0 || content == nil {
		finding.Detail = missingFileDetailConstant
		if len(pkg.ChangelogPath) == 0 {
			finding.Detail = missingPathDetailConstant
		}
		finding.Status = StatusSkipped
		if policy.Require {
			finding.Status = StatusMissingChangelog
		}
		return finding
	}

	parsed := Parse(*content)
	finding.Present = true
	finding.Format = parsed.Format
	finding.TopVersion = parsed.TopVersion

	if parsed.Format == FormatUnrecognized {
		finding.Status = StatusUnrecognizedFormat
		finding.Detail = unrecognizedDocumentDetailConstant
		if parsed.UnrecognizedHeading != nil {
			finding.Detail = fmt.Sprintf(unrecognizedDetailTemplateConstant, parsed.UnrecognizedHeading.Line, parsed.UnrecognizedHeading.Text)
		}
		return finding
	}

	finding.Match = len(parsed.TopVersion) > 0 && versionsEqual(parsed.TopVersion, pkg.Version)
	finding.Status = StatusOK
	finding.Issues = ValidateEntries(parsed, policy.Entries)

	switch {
	case policy.CheckUpdated && len(parsed.TopVersion) == 0:
		finding.Status = StatusMissingChangelog
		finding.Detail = noVersionedEntryDetailConstant
	case policy.CheckUpdated && !finding.Match:
		finding.Status = StatusMissingChangelog
		finding.Detail = fmt.Sprintf(versionMismatchDetailTemplateConstant, parsed.TopVersion, pkg.Version)
	case len(finding.Issues) > 0:
		finding.Status = StatusBadFormat
		finding.Detail = strings.Join(finding.Issues, issuesDetailSeparatorConstant)
	}
	return finding
}

func versionsEqual(changelogVersion string, packageVersion string) bool {
	comparison, compareError := versioncheck.Compare(changelogVersion, packageVersion)
	if compareError != nil {
		return strings.TrimSpace(changelogVersion) == strings.TrimSpace(packageVersion)
	}
	return comparison == 0
}
