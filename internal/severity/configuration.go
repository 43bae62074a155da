package severity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/deptrack/internal/changelog"
	"github.com/temirov/deptrack/internal/impact"
	"github.com/temirov/deptrack/internal/report"
)

const (
	unsupportedLevelTemplateConstant       = "%w: %q"
	unsupportedFindingTypeTemplateConstant = "%w: %q"
	tableEntryErrorTemplateConstant        = "severity.%s.%s: %w"
)

var (
	// ErrConfigurationMissing reports a run started without severity configuration.
	ErrConfigurationMissing = errors.New("severity configuration missing")
	// ErrUnsupportedLevel reports an unknown severity level name.
	ErrUnsupportedLevel = errors.New("unsupported severity level")
	// ErrUnsupportedFindingType reports an unknown finding type name.
	ErrUnsupportedFindingType = errors.New("unsupported finding type")
)

// Table maps impact class and finding type to a severity level.
type Table map[impact.Class]map[report.FindingType]report.Level

// Config is the fully resolved severity configuration consumed by the engine.
type Config struct {
	Table     Table
	Changelog changelog.Policy
	// UnparsableIsViolation reports unparsable versions as no_version_bump instead of unparsable_version.
	UnparsableIsViolation bool
}

// DefaultConfig returns the built-in severity table and policies.
func DefaultConfig() Config {
	return Config{
		Table: Table{
			impact.ClassDirect: {
				report.FindingNoVersionBump:      report.LevelError,
				report.FindingMissingChangelog:   report.LevelError,
				report.FindingUnrecognizedFormat: report.LevelError,
				report.FindingBadFormat:          report.LevelError,
			},
			impact.ClassTransitive: {
				report.FindingNoVersionBump:      report.LevelWarn,
				report.FindingMissingChangelog:   report.LevelWarn,
				report.FindingUnrecognizedFormat: report.LevelWarn,
				report.FindingBadFormat:          report.LevelWarn,
			},
		},
		Changelog: changelog.Policy{
			Require:      true,
			CheckUpdated: true,
			Entries: changelog.EntryRules{
				RequireTitle:       true,
				AllowedChangeTypes: append([]string(nil), changelog.DefaultAllowedChangeTypes...),
			},
		},
	}
}

// Configuration is the persisted form of the severity settings.
type Configuration struct {
	Direct     map[string]string      `mapstructure:"direct"`
	Transitive map[string]string      `mapstructure:"transitive"`
	Changelog  ChangelogConfiguration `mapstructure:"changelog"`
	Version    VersionConfiguration   `mapstructure:"version"`
}

// ChangelogConfiguration is the persisted changelog policy.
type ChangelogConfiguration struct {
	Require            bool     `mapstructure:"require"`
	CheckUpdated       bool     `mapstructure:"check_updated"`
	ValidateEntries    bool     `mapstructure:"validate_entries"`
	EnforceHeader      bool     `mapstructure:"enforce_header"`
	AllowedChangeTypes []string `mapstructure:"allowed_change_types"`
	RequireScope       bool     `mapstructure:"require_scope"`
}

// VersionConfiguration is the persisted version policy.
type VersionConfiguration struct {
	UnparsableIsViolation bool `mapstructure:"unparsable_is_violation"`
}

// DefaultConfigurationValues exposes defaults as flat configuration keys under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultConfig()
	values := map[string]any{
		prefix + ".changelog.require":               defaults.Changelog.Require,
		prefix + ".changelog.check_updated":         defaults.Changelog.CheckUpdated,
		prefix + ".changelog.validate_entries":      defaults.Changelog.Entries.Validate,
		prefix + ".changelog.enforce_header":        defaults.Changelog.Entries.RequireTitle,
		prefix + ".changelog.allowed_change_types":  defaults.Changelog.Entries.AllowedChangeTypes,
		prefix + ".changelog.require_scope":         defaults.Changelog.Entries.RequireScope,
		prefix + ".version.unparsable_is_violation": defaults.UnparsableIsViolation,
	}
	for class, entries := range defaults.Table {
		for findingType, level := range entries {
			values[prefix+"."+string(class)+"."+string(findingType)] = string(level)
		}
	}
	return values
}

// Resolve validates the persisted settings and overlays them on the built-in table.
func (configuration Configuration) Resolve() (Config, error) {
	resolved := DefaultConfig()
	resolved.Changelog = changelog.Policy{
		Require:      configuration.Changelog.Require,
		CheckUpdated: configuration.Changelog.CheckUpdated,
		Entries: changelog.EntryRules{
			Validate:           configuration.Changelog.ValidateEntries,
			RequireTitle:       configuration.Changelog.EnforceHeader,
			AllowedChangeTypes: normalizeChangeTypes(configuration.Changelog.AllowedChangeTypes),
			RequireScope:       configuration.Changelog.RequireScope,
		},
	}
	resolved.UnparsableIsViolation = configuration.Version.UnparsableIsViolation

	sections := []struct {
		class   impact.Class
		entries map[string]string
	}{
		{class: impact.ClassDirect, entries: configuration.Direct},
		{class: impact.ClassTransitive, entries: configuration.Transitive},
	}
	for _, section := range sections {
		for rawFindingType, rawLevel := range section.entries {
			findingType, findingTypeError := ParseFindingType(rawFindingType)
			if findingTypeError != nil {
				return Config{}, fmt.Errorf(tableEntryErrorTemplateConstant, section.class, rawFindingType, findingTypeError)
			}
			level, levelError := ParseLevel(rawLevel)
			if levelError != nil {
				return Config{}, fmt.Errorf(tableEntryErrorTemplateConstant, section.class, rawFindingType, levelError)
			}
			resolved.Table[section.class][findingType] = level
		}
	}
	return resolved, nil
}

// ParseLevel validates a severity level name.
func ParseLevel(raw string) (report.Level, error) {
	switch level := report.Level(strings.ToLower(strings.TrimSpace(raw))); level {
	case report.LevelError, report.LevelWarn, report.LevelIgnore:
		return level, nil
	default:
		return "", fmt.Errorf(unsupportedLevelTemplateConstant, ErrUnsupportedLevel, raw)
	}
}

// ParseFindingType validates a finding type name.
func ParseFindingType(raw string) (report.FindingType, error) {
	switch findingType := report.FindingType(strings.ToLower(strings.TrimSpace(raw))); findingType {
	case report.FindingNoVersionBump, report.FindingMissingChangelog, report.FindingUnrecognizedFormat, report.FindingUnparsableVersion, report.FindingBadFormat:
		return findingType, nil
	default:
		return "", fmt.Errorf(unsupportedFindingTypeTemplateConstant, ErrUnsupportedFindingType, raw)
	}
}

// normalizeChangeTypes trims the configured change types and drops blanks and repeats.
func normalizeChangeTypes(rawTypes []string) []string {
	normalized := make([]string, 0, len(rawTypes))
	seen := make(map[string]struct{}, len(rawTypes))
	for _, rawType := range rawTypes {
		changeType := strings.TrimSpace(rawType)
		if len(changeType) == 0 {
			continue
		}
		if _, duplicate := seen[changeType]; duplicate {
			continue
		}
		seen[changeType] = struct{}{}
		normalized = append(normalized, changeType)
	}
	return normalized
}
