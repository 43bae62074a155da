package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorOldConstant              = "."
	environmentKeySeparatorNewConstant              = "_"
	searchPathEnvironmentSuffixConstant             = "_CONFIG_SEARCH_PATH"
	xdgConfigHomeEnvironmentNameConstant            = "XDG_CONFIG_HOME"
	listDecodeSeparatorConstant                     = ","
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
)

// ConfigurationLoader wraps Viper to load structured configuration files and environment overrides.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	environmentKeyReplacer    *strings.Replacer
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed  string
	EmbeddedApplied bool
	SearchPaths     []string
}

// NewConfigurationLoader creates a loader that searches known paths and respects an environment prefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	duplicatedSearchPaths := make([]string, len(searchPaths))
	copy(duplicatedSearchPaths, searchPaths)

	return &ConfigurationLoader{
		configurationName:      configurationName,
		configurationType:      configurationType,
		environmentPrefix:      environmentPrefix,
		searchPaths:            duplicatedSearchPaths,
		environmentKeyReplacer: strings.NewReplacer(environmentKeySeparatorOldConstant, environmentKeySeparatorNewConstant),
	}
}

// SetEmbeddedConfiguration stores embedded configuration data merged before user-provided configuration files.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}

	loader.embeddedConfiguration = nil
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)

	if len(configurationData) == 0 {
		return
	}

	duplicatedData := make([]byte, len(configurationData))
	copy(duplicatedData, configurationData)
	loader.embeddedConfiguration = duplicatedData
}

// SearchPathEnvironmentVariable names the variable that replaces the configured search paths.
func (loader *ConfigurationLoader) SearchPathEnvironmentVariable() string {
	return loader.environmentPrefix + searchPathEnvironmentSuffixConstant
}

// LoadConfiguration populates targetConfiguration from, in increasing precedence, defaults,
// the embedded configuration, the first configuration file found, and environment variables.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	loadedConfiguration := LoadedConfiguration{}
	if len(loader.embeddedConfiguration) > 0 {
		configurationType := loader.configurationType
		if len(loader.embeddedConfigurationType) > 0 {
			configurationType = loader.embeddedConfigurationType
		}

		viperInstance.SetConfigType(configurationType)
		mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration))
		if mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
		}
		loadedConfiguration.EmbeddedApplied = true

		viperInstance.SetConfigType(loader.configurationType)
	}

	loadedConfiguration.SearchPaths = loader.resolveSearchPaths()
	for _, searchPath := range loadedConfiguration.SearchPaths {
		viperInstance.AddConfigPath(searchPath)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	if loader.environmentKeyReplacer != nil {
		viperInstance.SetEnvKeyReplacer(loader.environmentKeyReplacer)
	}
	viperInstance.AutomaticEnv()

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if len(configurationFilePath) > 0 {
		expandedFilePath := NewHomeExpander().Expand(configurationFilePath)
		if _, statError := os.Stat(expandedFilePath); statError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, statError)
		}
		viperInstance.SetConfigFile(expandedFilePath)
	}

	readError := viperInstance.MergeInConfig()
	if readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listDecodeSeparatorConstant),
	))
	unmarshalError := viperInstance.Unmarshal(targetConfiguration, decodeHook)
	if unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	loadedConfiguration.ConfigFileUsed = viperInstance.ConfigFileUsed()
	return loadedConfiguration, nil
}

// resolveSearchPaths honors the search path override variable, then falls back to the
// configured paths followed by the user configuration directories.
func (loader *ConfigurationLoader) resolveSearchPaths() []string {
	if override := strings.TrimSpace(os.Getenv(loader.SearchPathEnvironmentVariable())); len(override) > 0 {
		return filepath.SplitList(override)
	}

	expander := NewHomeExpander()
	resolvedPaths := make([]string, 0, len(loader.searchPaths)+2)
	for _, searchPath := range loader.searchPaths {
		resolvedPaths = append(resolvedPaths, expander.Expand(searchPath))
	}

	applicationDirectory := strings.ToLower(loader.environmentPrefix)
	if xdgConfigHome := strings.TrimSpace(os.Getenv(xdgConfigHomeEnvironmentNameConstant)); len(xdgConfigHome) > 0 {
		resolvedPaths = append(resolvedPaths, filepath.Join(xdgConfigHome, applicationDirectory))
	}
	if homeDirectory := expander.HomeDirectory(); len(homeDirectory) > 0 {
		resolvedPaths = append(resolvedPaths, filepath.Join(homeDirectory, "."+applicationDirectory))
	}
	return resolvedPaths
}
