package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/deptrack/internal/utils"
)

const (
	testEnvironmentPrefixConstant                  = "TESTDEPTRACK"
	testCommonSectionKeyConstant                   = "common"
	testLogLevelKeyConstant                        = testCommonSectionKeyConstant + ".log_level"
	testPatternsKeyConstant                        = testCommonSectionKeyConstant + ".patterns"
	testDefaultLogLevelConstant                    = "info"
	testConfiguredLogLevelConstant                 = "debug"
	testOverriddenLogLevelConstant                 = "error"
	testFileLogLevelConstant                       = "warn"
	testConfigFileNameConstant                     = "config.yaml"
	testConfigContentTemplateConstant              = "common:\n  log_level: %s\n"
	testCaseEmbeddedMessageConstant                = "embedded_configuration_merges"
	testCaseDefaultsMessageConstant                = "defaults_are_applied"
	testCaseFileMessageConstant                    = "config_file_overrides_embedded"
	testCaseEnvironmentMessageConstant             = "environment_overrides_file"
	testConfigurationNameConstant                  = "config"
	testConfigurationTypeConstant                  = "yaml"
	configurationLoaderSubtestNameTemplateConstant = "%d_%s"
	testEmbeddedLogLevelConstant                   = "debug"
	testXDGConfigHomeDirectoryNameConstant         = "xdg"
)

type configurationFixture struct {
	Common configurationCommonFixture `mapstructure:"common"`
}

type configurationCommonFixture struct {
	LogLevel string   `mapstructure:"log_level"`
	Patterns []string `mapstructure:"patterns"`
}

func isolateUserDirectories(testInstance *testing.T) string {
	testInstance.Helper()
	homeDirectoryPath := testInstance.TempDir()
	testInstance.Setenv("HOME", homeDirectoryPath)
	testInstance.Setenv("XDG_CONFIG_HOME", filepath.Join(homeDirectoryPath, testXDGConfigHomeDirectoryNameConstant))
	return homeDirectoryPath
}

func writeConfiguration(testInstance *testing.T, directoryPath string, content string) string {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(directoryPath, 0o755))
	configurationFilePath := filepath.Join(directoryPath, testConfigFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(content), 0o600))
	return configurationFilePath
}

func TestConfigurationLoaderLoadConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name                string
		embeddedLogLevel    string
		fileLogLevel        string
		environmentLogLevel string
		expectedLogLevel    string
	}{
		{
			name:             testCaseEmbeddedMessageConstant,
			embeddedLogLevel: testEmbeddedLogLevelConstant,
			expectedLogLevel: testEmbeddedLogLevelConstant,
		},
		{
			name:             testCaseDefaultsMessageConstant,
			expectedLogLevel: testDefaultLogLevelConstant,
		},
		{
			name:             testCaseFileMessageConstant,
			embeddedLogLevel: testEmbeddedLogLevelConstant,
			fileLogLevel:     testFileLogLevelConstant,
			expectedLogLevel: testFileLogLevelConstant,
		},
		{
			name:                testCaseEnvironmentMessageConstant,
			embeddedLogLevel:    testDefaultLogLevelConstant,
			fileLogLevel:        testFileLogLevelConstant,
			environmentLogLevel: testOverriddenLogLevelConstant,
			expectedLogLevel:    testOverriddenLogLevelConstant,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			isolateUserDirectories(testInstance)
			tempDirectory := testInstance.TempDir()
			configurationFilePath := ""
			if len(testCase.fileLogLevel) > 0 {
				configurationFilePath = writeConfiguration(testInstance, tempDirectory, fmt.Sprintf(testConfigContentTemplateConstant, testCase.fileLogLevel))
			}

			if len(testCase.environmentLogLevel) > 0 {
				environmentVariableName := fmt.Sprintf("%s_%s", testEnvironmentPrefixConstant, strings.ToUpper(strings.ReplaceAll(testLogLevelKeyConstant, ".", "_")))
				testInstance.Setenv(environmentVariableName, testCase.environmentLogLevel)
			}

			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{tempDirectory})
			if len(testCase.embeddedLogLevel) > 0 {
				configurationLoader.SetEmbeddedConfiguration([]byte(fmt.Sprintf(testConfigContentTemplateConstant, testCase.embeddedLogLevel)), testConfigurationTypeConstant)
			}

			defaultValues := map[string]any{
				testLogLevelKeyConstant: testDefaultLogLevelConstant,
			}

			loadedConfiguration := configurationFixture{}
			metadata, loadError := configurationLoader.LoadConfiguration(configurationFilePath, defaultValues, &loadedConfiguration)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedLogLevel, loadedConfiguration.Common.LogLevel)
			require.Equal(testInstance, len(testCase.embeddedLogLevel) > 0, metadata.EmbeddedApplied)

			if len(configurationFilePath) > 0 {
				require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
			} else {
				require.Empty(testInstance, metadata.ConfigFileUsed)
			}
		})
	}
}

func TestConfigurationLoaderSearchPaths(testInstance *testing.T) {
	testCases := []struct {
		name                         string
		configurationDirectorySelect func(workingDirectoryPath string, homeDirectoryPath string) string
		searchPathOverride           bool
	}{
		{
			name: "working_directory",
			configurationDirectorySelect: func(workingDirectoryPath string, homeDirectoryPath string) string {
				return workingDirectoryPath
			},
		},
		{
			name: "xdg_configuration_directory",
			configurationDirectorySelect: func(workingDirectoryPath string, homeDirectoryPath string) string {
				return filepath.Join(homeDirectoryPath, testXDGConfigHomeDirectoryNameConstant, strings.ToLower(testEnvironmentPrefixConstant))
			},
		},
		{
			name: "home_dot_directory",
			configurationDirectorySelect: func(workingDirectoryPath string, homeDirectoryPath string) string {
				return filepath.Join(homeDirectoryPath, "."+strings.ToLower(testEnvironmentPrefixConstant))
			},
		},
		{
			name: "search_path_override",
			configurationDirectorySelect: func(workingDirectoryPath string, homeDirectoryPath string) string {
				return filepath.Join(homeDirectoryPath, "override")
			},
			searchPathOverride: true,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			homeDirectoryPath := isolateUserDirectories(testInstance)
			workingDirectoryPath := testInstance.TempDir()

			selectedDirectoryPath := testCase.configurationDirectorySelect(workingDirectoryPath, homeDirectoryPath)
			configurationFilePath := writeConfiguration(testInstance, selectedDirectoryPath, fmt.Sprintf(testConfigContentTemplateConstant, testConfiguredLogLevelConstant))

			configurationLoader := utils.NewConfigurationLoader(
				testConfigurationNameConstant,
				testConfigurationTypeConstant,
				testEnvironmentPrefixConstant,
				[]string{workingDirectoryPath},
			)
			if testCase.searchPathOverride {
				testInstance.Setenv(configurationLoader.SearchPathEnvironmentVariable(), selectedDirectoryPath)
			}

			loadedConfiguration := configurationFixture{}
			metadata, loadError := configurationLoader.LoadConfiguration("", map[string]any{testLogLevelKeyConstant: testDefaultLogLevelConstant}, &loadedConfiguration)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testConfiguredLogLevelConstant, loadedConfiguration.Common.LogLevel)
			require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
			if testCase.searchPathOverride {
				require.Equal(testInstance, []string{selectedDirectoryPath}, metadata.SearchPaths)
			}
		})
	}
}

func TestConfigurationLoaderDecodesCommaSeparatedLists(testInstance *testing.T) {
	isolateUserDirectories(testInstance)
	testInstance.Setenv(testEnvironmentPrefixConstant+"_COMMON_PATTERNS", "crates/*,tools/*")

	configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{testInstance.TempDir()})
	loadedConfiguration := configurationFixture{}
	_, loadError := configurationLoader.LoadConfiguration("", map[string]any{testPatternsKeyConstant: []string{}}, &loadedConfiguration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, []string{"crates/*", "tools/*"}, loadedConfiguration.Common.Patterns)
}

func TestConfigurationLoaderErrors(testInstance *testing.T) {
	testCases := []struct {
		name          string
		prepare       func(testInstance *testing.T, loader *utils.ConfigurationLoader) string
		expectedError string
	}{
		{
			name: "missing_explicit_file",
			prepare: func(testInstance *testing.T, loader *utils.ConfigurationLoader) string {
				return filepath.Join(testInstance.TempDir(), "absent.yaml")
			},
			expectedError: "failed to read configuration",
		},
		{
			name: "malformed_embedded_configuration",
			prepare: func(testInstance *testing.T, loader *utils.ConfigurationLoader) string {
				loader.SetEmbeddedConfiguration([]byte("common: [unterminated"), testConfigurationTypeConstant)
				return ""
			},
			expectedError: "failed to merge embedded configuration",
		},
		{
			name: "mismatched_value_type",
			prepare: func(testInstance *testing.T, loader *utils.ConfigurationLoader) string {
				return writeConfiguration(testInstance, testInstance.TempDir(), "common:\n  log_level:\n    nested: true\n")
			},
			expectedError: "failed to parse configuration",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			isolateUserDirectories(testInstance)
			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{testInstance.TempDir()})
			configurationFilePath := testCase.prepare(testInstance, configurationLoader)

			loadedConfiguration := configurationFixture{}
			_, loadError := configurationLoader.LoadConfiguration(configurationFilePath, nil, &loadedConfiguration)
			require.ErrorContains(testInstance, loadError, testCase.expectedError)
		})
	}
}
