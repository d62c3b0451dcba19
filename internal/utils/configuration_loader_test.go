package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngen-tools/ngen/internal/utils"
)

const (
	testEnvironmentPrefixConstant      = "TESTNGEN"
	testCommonSectionKeyConstant       = "common"
	testLogLevelKeyConstant            = testCommonSectionKeyConstant + ".log_level"
	testDefaultLogLevelConstant        = "info"
	testFileLogLevelConstant           = "warn"
	testOverriddenLogLevelConstant     = "error"
	testConfigFileNameConstant         = "config.yaml"
	testConfigContentTemplateConstant  = "common:\n  log_level: %s\n"
	testConfigurationNameConstant      = "config"
	testConfigurationTypeConstant      = "yaml"
	testEnvironmentVariableKeyConstant = "TESTNGEN_COMMON_LOG_LEVEL"
)

type configurationFixture struct {
	Common configurationCommonFixture `mapstructure:"common"`
}

type configurationCommonFixture struct {
	LogLevel string `mapstructure:"log_level"`
}

func TestConfigurationLoaderLoadConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name                string
		fileLogLevel        string
		environmentLogLevel string
		expectedLogLevel    string
	}{
		{name: "defaults_are_applied", fileLogLevel: "", environmentLogLevel: "", expectedLogLevel: testDefaultLogLevelConstant},
		{name: "config_file_overrides_defaults", fileLogLevel: testFileLogLevelConstant, environmentLogLevel: "", expectedLogLevel: testFileLogLevelConstant},
		{name: "environment_overrides_file", fileLogLevel: testFileLogLevelConstant, environmentLogLevel: testOverriddenLogLevelConstant, expectedLogLevel: testOverriddenLogLevelConstant},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			temporaryDirectory := testInstance.TempDir()

			configurationFilePath := ""
			if len(testCase.fileLogLevel) > 0 {
				configurationFilePath = filepath.Join(temporaryDirectory, testConfigFileNameConstant)
				configurationContent := fmt.Sprintf(testConfigContentTemplateConstant, testCase.fileLogLevel)
				require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(configurationContent), 0o600))
			}

			if len(testCase.environmentLogLevel) > 0 {
				testInstance.Setenv(testEnvironmentVariableKeyConstant, testCase.environmentLogLevel)
			}

			loader := utils.NewConfigurationLoader(
				testConfigurationNameConstant,
				testConfigurationTypeConstant,
				testEnvironmentPrefixConstant,
				[]string{temporaryDirectory},
			)

			var loadedFixture configurationFixture
			defaultValues := map[string]any{testLogLevelKeyConstant: testDefaultLogLevelConstant}
			metadata, loadError := loader.LoadConfiguration(configurationFilePath, defaultValues, &loadedFixture)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedLogLevel, loadedFixture.Common.LogLevel)

			if len(configurationFilePath) > 0 {
				require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
			}
		})
	}
}

func TestCommandContextAccessorRoundTrip(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	_, available := accessor.ConfigurationFilePath(nil)
	require.False(testInstance, available)

	decoratedContext := accessor.WithConfigurationFilePath(nil, testConfigFileNameConstant)
	storedPath, available := accessor.ConfigurationFilePath(decoratedContext)
	require.True(testInstance, available)
	require.Equal(testInstance, testConfigFileNameConstant, storedPath)
}
