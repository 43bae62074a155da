package analysis

import (
	"fmt"
	"strings"

	"github.com/temirov/deptrack/internal/utils"
)

const (
	defaultRepositoryPathConstant    = "."
	defaultChangelogFileNameConstant = "CHANGELOG.md"
	defaultOutputFormatConstant      = "text"
	unsupportedAdapterTemplate       = "%w: %q"
)

// AdapterKind selects the revision adapter implementation.
type AdapterKind string

// Supported adapters.
const (
	AdapterGit   AdapterKind = "git"
	AdapterGoGit AdapterKind = "go-git"
)

// ParseAdapterKind validates an adapter name; empty selects the git CLI adapter.
func ParseAdapterKind(raw string) (AdapterKind, error) {
	switch kind := AdapterKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "", AdapterGit:
		return AdapterGit, nil
	case AdapterGoGit:
		return AdapterGoGit, nil
	default:
		return "", fmt.Errorf(unsupportedAdapterTemplate, ErrUnsupportedAdapter, raw)
	}
}

// CommandConfiguration captures persistent settings for the analysis commands.
type CommandConfiguration struct {
	RepositoryPath        string `mapstructure:"repository_path"`
	Adapter               string `mapstructure:"adapter"`
	Parallelism           int    `mapstructure:"parallelism"`
	ChangelogFileName     string `mapstructure:"changelog_file_name"`
	OutputFormat          string `mapstructure:"output_format"`
	IgnoreDevDependencies bool   `mapstructure:"ignore_dev_dependencies"`
	MergeBase             bool   `mapstructure:"merge_base"`
	SkipChangelog         bool   `mapstructure:"skip_changelog"`
	AllPackages           bool   `mapstructure:"all_packages"`
}

// DefaultCommandConfiguration returns baseline configuration values for the analysis commands.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		RepositoryPath:    defaultRepositoryPathConstant,
		Adapter:           string(AdapterGit),
		ChangelogFileName: defaultChangelogFileNameConstant,
		OutputFormat:      defaultOutputFormatConstant,
	}
}

// DefaultConfigurationValues exposes defaults as flat configuration keys under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		prefix + ".repository_path":         defaults.RepositoryPath,
		prefix + ".adapter":                 defaults.Adapter,
		prefix + ".parallelism":             defaults.Parallelism,
		prefix + ".changelog_file_name":     defaults.ChangelogFileName,
		prefix + ".output_format":           defaults.OutputFormat,
		prefix + ".ignore_dev_dependencies": defaults.IgnoreDevDependencies,
		prefix + ".merge_base":              defaults.MergeBase,
		prefix + ".skip_changelog":          defaults.SkipChangelog,
		prefix + ".all_packages":            defaults.AllPackages,
	}
}

// sanitize trims whitespace and applies defaults to unset configuration values.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.RepositoryPath = utils.NewHomeExpander().Expand(strings.TrimSpace(configuration.RepositoryPath))
	if len(sanitized.RepositoryPath) == 0 {
		sanitized.RepositoryPath = defaults.RepositoryPath
	}
	sanitized.Adapter = strings.TrimSpace(configuration.Adapter)
	if len(sanitized.Adapter) == 0 {
		sanitized.Adapter = defaults.Adapter
	}
	if sanitized.Parallelism < 0 {
		sanitized.Parallelism = 0
	}
	sanitized.ChangelogFileName = strings.TrimSpace(configuration.ChangelogFileName)
	sanitized.OutputFormat = strings.TrimSpace(configuration.OutputFormat)
	if len(sanitized.OutputFormat) == 0 {
		sanitized.OutputFormat = defaults.OutputFormat
	}

	return sanitized
}
