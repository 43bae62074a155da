package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/deptrack/internal/report"
	"github.com/temirov/deptrack/internal/severity"
	"github.com/temirov/deptrack/internal/utils"
)

const (
	checkCommandUseConstant                = "check <base-ref> [target-ref]"
	checkCommandShortDescriptionConstant   = "Check version bumps and changelogs of packages changed between two revisions"
	checkCommandLongDescriptionConstant    = "check compares two revisions of a Cargo repository, finds every package impacted by the change directly or through workspace dependencies, and verifies that each one bumped its version and documented the release in its changelog."
	graphCommandUseConstant                = "graph [ref]"
	graphCommandShortDescriptionConstant   = "Describe workspace dependency graphs"
	graphCommandLongDescriptionConstant    = "graph lists every Cargo workspace with its packages, internal dependencies, build order and cycles. Without a ref it reads the working tree."
	repositoryFlagNameConstant             = "repository"
	repositoryFlagUsageConstant            = "Path to the repository to analyze."
	adapterFlagNameConstant                = "adapter"
	adapterFlagUsageConstant               = "Revision adapter: git or go-git."
	formatFlagNameConstant                 = "format"
	formatFlagUsageConstant                = "Output format: text, json or yaml."
	graphFormatFlagUsageConstant           = "Output format: text, json, yaml or dot."
	parallelismFlagNameConstant            = "parallelism"
	parallelismFlagUsageConstant           = "Maximum concurrent package checks; 0 uses the number of CPUs."
	changelogFileFlagNameConstant          = "changelog-file"
	changelogFileFlagUsageConstant         = "Changelog file name looked up in every package directory."
	ignoreDevDependenciesFlagNameConstant  = "ignore-dev-dependencies"
	ignoreDevDependenciesFlagUsageConstant = "Exclude dev-dependencies from impact propagation."
	fromFlagNameConstant                   = "from"
	fromFlagUsageConstant                  = "Report the dependency path starting at this package (requires --to)."
	toFlagNameConstant                     = "to"
	toFlagUsageConstant                    = "Report the dependency path ending at this package (requires --from)."
	mergeBaseFlagNameConstant              = "merge-base"
	mergeBaseFlagUsageConstant             = "Compare against the common ancestor of base-ref and target-ref, like git diff base...target."
	skipChangelogFlagNameConstant          = "skip-changelog"
	skipChangelogFlagUsageConstant         = "Skip changelog checks and assess version bumps only."
	allPackagesFlagNameConstant            = "all"
	allPackagesFlagUsageConstant           = "Also check the changelogs of packages the change did not reach."
	statsFlagNameConstant                  = "stats"
	statsFlagUsageConstant                 = "Print only aggregate graph statistics."
	pathQueryFlagsErrorConstant            = "--from and --to must be used together"
	severityResolveErrorTemplateConstant   = "severity configuration: %w"
	commandConfiguredMessageConstant       = "command configured"
	logFieldCommandConstant                = "command"
	logFieldConfigFileConstant             = "config_file"
	logFieldRepositoryConstant             = "repository"
	logFieldAdapterConstant                = "adapter"
	logFieldFormatConstant                 = "format"
)

// ErrComplianceFailed reports a run with at least one error-level finding.
var ErrComplianceFailed = errors.New("compliance check failed")

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the persisted analysis configuration.
type ConfigurationProvider func() CommandConfiguration

// SeverityProvider supplies the resolved severity configuration.
type SeverityProvider func() (severity.Config, error)

// CommandBuilder assembles the check cobra command with configurable dependencies.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	SeverityProvider      SeverityProvider
	AdapterProvider       AdapterProvider
}

// Build constructs the check command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   checkCommandUseConstant,
		Short: checkCommandShortDescriptionConstant,
		Long:  checkCommandLongDescriptionConstant,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  builder.run,
	}

	registerSharedFlags(command, formatFlagUsageConstant)
	command.Flags().Int(parallelismFlagNameConstant, 0, parallelismFlagUsageConstant)
	command.Flags().String(changelogFileFlagNameConstant, "", changelogFileFlagUsageConstant)
	command.Flags().Bool(mergeBaseFlagNameConstant, false, mergeBaseFlagUsageConstant)
	command.Flags().Bool(skipChangelogFlagNameConstant, false, skipChangelogFlagUsageConstant)
	command.Flags().Bool(allPackagesFlagNameConstant, false, allPackagesFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration(command)
	format, formatError := report.ParseFormat(configuration.OutputFormat)
	if formatError != nil {
		return formatError
	}
	severityConfiguration, severityError := builder.resolveSeverity()
	if severityError != nil {
		return fmt.Errorf(severityResolveErrorTemplateConstant, severityError)
	}

	logger := resolveLogger(builder.LoggerProvider)
	logCommandConfiguration(logger, command, configuration)
	service, serviceError := openService(logger, configuration, builder.AdapterProvider)
	if serviceError != nil {
		return serviceError
	}

	options := Options{
		BaseRef:               arguments[0],
		Parallelism:           configuration.Parallelism,
		ChangelogFileName:     configuration.ChangelogFileName,
		IgnoreDevDependencies: configuration.IgnoreDevDependencies,
		MergeBase:             configuration.MergeBase,
		SkipChangelog:         configuration.SkipChangelog,
		AllPackages:           configuration.AllPackages,
		Severity:              &severityConfiguration,
	}
	if len(arguments) > 1 {
		options.TargetRef = arguments[1]
	}

	analysisReport, runError := service.Run(command.Context(), options)
	if runError != nil {
		return runError
	}
	if renderError := report.Render(command.OutOrStdout(), analysisReport, format); renderError != nil {
		return renderError
	}
	if analysisReport.Failed() {
		return ErrComplianceFailed
	}
	return nil
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	configuration = applySharedFlags(command, configuration)
	if command.Flags().Changed(parallelismFlagNameConstant) {
		configuration.Parallelism, _ = command.Flags().GetInt(parallelismFlagNameConstant)
	}
	if command.Flags().Changed(changelogFileFlagNameConstant) {
		configuration.ChangelogFileName, _ = command.Flags().GetString(changelogFileFlagNameConstant)
	}
	if command.Flags().Changed(mergeBaseFlagNameConstant) {
		configuration.MergeBase, _ = command.Flags().GetBool(mergeBaseFlagNameConstant)
	}
	if command.Flags().Changed(skipChangelogFlagNameConstant) {
		configuration.SkipChangelog, _ = command.Flags().GetBool(skipChangelogFlagNameConstant)
	}
	if command.Flags().Changed(allPackagesFlagNameConstant) {
		configuration.AllPackages, _ = command.Flags().GetBool(allPackagesFlagNameConstant)
	}
	return configuration.sanitize()
}

func (builder *CommandBuilder) resolveSeverity() (severity.Config, error) {
	if builder.SeverityProvider == nil {
		return severity.DefaultConfig(), nil
	}
	return builder.SeverityProvider()
}

// GraphCommandBuilder assembles the graph cobra command.
type GraphCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	AdapterProvider       AdapterProvider
	// FileSystem backs working tree reads; nil uses the OS filesystem rooted at the repository path.
	FileSystem afero.Fs
}

// Build constructs the graph command.
func (builder *GraphCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   graphCommandUseConstant,
		Short: graphCommandShortDescriptionConstant,
		Long:  graphCommandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}

	registerSharedFlags(command, graphFormatFlagUsageConstant)
	command.Flags().String(fromFlagNameConstant, "", fromFlagUsageConstant)
	command.Flags().String(toFlagNameConstant, "", toFlagUsageConstant)
	command.Flags().Bool(statsFlagNameConstant, false, statsFlagUsageConstant)

	return command, nil
}

func (builder *GraphCommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	configuration = applySharedFlags(command, configuration).sanitize()

	format, formatError := report.ParseGraphFormat(configuration.OutputFormat)
	if formatError != nil {
		return formatError
	}
	statsOnly, _ := command.Flags().GetBool(statsFlagNameConstant)

	fromPackage, _ := command.Flags().GetString(fromFlagNameConstant)
	toPackage, _ := command.Flags().GetString(toFlagNameConstant)
	fromPackage = strings.TrimSpace(fromPackage)
	toPackage = strings.TrimSpace(toPackage)
	if (len(fromPackage) == 0) != (len(toPackage) == 0) {
		return errors.New(pathQueryFlagsErrorConstant)
	}

	options := GraphOptions{
		Parallelism:           configuration.Parallelism,
		IgnoreDevDependencies: configuration.IgnoreDevDependencies,
		From:                  fromPackage,
		To:                    toPackage,
	}

	logger := resolveLogger(builder.LoggerProvider)
	logCommandConfiguration(logger, command, configuration)
	var (
		graphReport report.GraphReport
		graphError  error
	)
	if len(arguments) == 1 {
		service, serviceError := openService(logger, configuration, builder.AdapterProvider)
		if serviceError != nil {
			return serviceError
		}
		graphReport, graphError = service.DescribeRevision(command.Context(), arguments[0], options)
	} else {
		filesystem := builder.FileSystem
		if filesystem == nil {
			filesystem = afero.NewBasePathFs(afero.NewOsFs(), configuration.RepositoryPath)
		}
		graphReport, graphError = DescribeGraphs(command.Context(), logger, filesystem, options)
	}
	if graphError != nil {
		return graphError
	}
	if statsOnly {
		return report.RenderGraphStats(command.OutOrStdout(), graphReport.Stats, format)
	}
	return report.RenderGraph(command.OutOrStdout(), graphReport, format)
}

func registerSharedFlags(command *cobra.Command, formatUsage string) {
	command.Flags().String(repositoryFlagNameConstant, "", repositoryFlagUsageConstant)
	command.Flags().String(adapterFlagNameConstant, "", adapterFlagUsageConstant)
	command.Flags().String(formatFlagNameConstant, "", formatUsage)
	command.Flags().Bool(ignoreDevDependenciesFlagNameConstant, false, ignoreDevDependenciesFlagUsageConstant)
}

func applySharedFlags(command *cobra.Command, configuration CommandConfiguration) CommandConfiguration {
	flags := command.Flags()
	if flags.Changed(repositoryFlagNameConstant) {
		configuration.RepositoryPath, _ = flags.GetString(repositoryFlagNameConstant)
	}
	if flags.Changed(adapterFlagNameConstant) {
		configuration.Adapter, _ = flags.GetString(adapterFlagNameConstant)
	}
	if flags.Changed(formatFlagNameConstant) {
		configuration.OutputFormat, _ = flags.GetString(formatFlagNameConstant)
	}
	if flags.Changed(ignoreDevDependenciesFlagNameConstant) {
		configuration.IgnoreDevDependencies, _ = flags.GetBool(ignoreDevDependenciesFlagNameConstant)
	}
	return configuration
}

func openService(logger *zap.Logger, configuration CommandConfiguration, provider AdapterProvider) (*Service, error) {
	adapterKind, kindError := ParseAdapterKind(configuration.Adapter)
	if kindError != nil {
		return nil, kindError
	}
	if provider == nil {
		provider = ResolveAdapter
	}
	adapter, adapterError := provider(logger, configuration.RepositoryPath, adapterKind)
	if adapterError != nil {
		return nil, adapterError
	}
	return NewService(logger, adapter)
}

func logCommandConfiguration(logger *zap.Logger, command *cobra.Command, configuration CommandConfiguration) {
	configurationFilePath, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context())
	logger.Debug(
		commandConfiguredMessageConstant,
		zap.String(logFieldCommandConstant, command.Name()),
		zap.String(logFieldConfigFileConstant, configurationFilePath),
		zap.String(logFieldRepositoryConstant, configuration.RepositoryPath),
		zap.String(logFieldAdapterConstant, configuration.Adapter),
		zap.String(logFieldFormatConstant, configuration.OutputFormat),
		zap.Bool(logFieldMergeBaseConstant, configuration.MergeBase),
	)
}

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
