// Package versioncheck classifies how a package version moved between two revisions.
//
// Comparison follows SemVer 2.0 precedence and carries no policy: deciding whether
// a classification is a violation belongs to the severity engine.
package versioncheck

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/temirov/deptrack/internal/impact"
)

const (
	baseVersionParseErrorTemplateConstant   = "base version %q: %v"
	targetVersionParseErrorTemplateConstant = "target version %q: %v"
)

// Status is the outcome of comparing two versions.
type Status string

// Supported statuses.
const (
	StatusBumped     Status = "bumped"
	StatusUnchanged  Status = "unchanged"
	StatusDecreased  Status = "decreased"
	StatusUnparsable Status = "unparsable"
	// StatusAdded marks a package that did not exist at the base revision.
	StatusAdded Status = "added"
)

// VersionFinding records the version comparison of one package.
type VersionFinding struct {
	Package       string       `json:"package" yaml:"package"`
	BaseVersion   string       `json:"base_version" yaml:"base_version"`
	TargetVersion string       `json:"target_version" yaml:"target_version"`
	Status        Status       `json:"status" yaml:"status"`
	ImpactClass   impact.Class `json:"impact_class" yaml:"impact_class"`
	// ParseError explains an unparsable classification.
	ParseError string `json:"parse_error,omitempty" yaml:"parse_error,omitempty"`
}

// WithImpact returns a copy of the finding tagged with an impact class.
func (finding VersionFinding) WithImpact(class impact.Class) VersionFinding {
	finding.ImpactClass = class
	return finding
}

// Compliant reports whether the finding satisfies the bump requirement.
func (finding VersionFinding) Compliant() bool {
	return finding.Status == StatusBumped || finding.Status == StatusAdded
}

// ParseVersion parses a strict semantic version after trimming whitespace.
func ParseVersion(raw string) (*semver.Version, error) {
	return semver.StrictNewVersion(strings.TrimSpace(raw))
}

// Compare orders two version strings by SemVer precedence.
func Compare(left string, right string) (int, error) {
	leftVersion, leftError := ParseVersion(left)
	if leftError != nil {
		return 0, leftError
	}
	rightVersion, rightError := ParseVersion(right)
	if rightError != nil {
		return 0, rightError
	}
	return leftVersion.Compare(rightVersion), nil
}

// CheckVersion compares the base and target versions of a package. An empty base version means
// the package did not exist at the base revision and is classified like CheckAdded.
func CheckVersion(name string, baseVersion string, targetVersion string) VersionFinding {
	if len(strings.TrimSpace(baseVersion)) == 0 {
		return CheckAdded(name, targetVersion)
	}

	finding := VersionFinding{
		Package:       name,
		BaseVersion:   baseVersion,
		TargetVersion: targetVersion,
	}

	parsedTarget, targetError := ParseVersion(targetVersion)
	if targetError != nil {
		finding.Status = StatusUnparsable
		finding.ParseError = fmt.Sprintf(targetVersionParseErrorTemplateConstant, targetVersion, targetError)
		return finding
	}

	parsedBase, baseError := ParseVersion(baseVersion)
	if baseError != nil {
		finding.Status = StatusUnparsable
		finding.ParseError = fmt.Sprintf(baseVersionParseErrorTemplateConstant, baseVersion, baseError)
		return finding
	}

	switch parsedTarget.Compare(parsedBase) {
	case 1:
		finding.Status = StatusBumped
	case 0:
		finding.Status = StatusUnchanged
	default:
		finding.Status = StatusDecreased
	}
	return finding
}

// CheckAdded records a package absent at the base revision.
func CheckAdded(name string, targetVersion string) VersionFinding {
	finding := VersionFinding{
		Package:       name,
		TargetVersion: targetVersion,
		Status:        StatusAdded,
	}
	if _, targetError := ParseVersion(targetVersion); targetError != nil {
		finding.Status = StatusUnparsable
		finding.ParseError = fmt.Sprintf(targetVersionParseErrorTemplateConstant, targetVersion, targetError)
	}
	return finding
}

// Unparsable records a package whose version could not be read at all.
func Unparsable(name string, baseVersion string, targetVersion string, reason error) VersionFinding {
	return VersionFinding{
		Package:       name,
		BaseVersion:   baseVersion,
		TargetVersion: targetVersion,
		Status:        StatusUnparsable,
		ParseError:    reason.Error(),
	}
}
