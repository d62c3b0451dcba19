package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngen-tools/ngen/internal/utils"
)

const (
	testUnsupportedLogLevelConstant  = "verbose"
	testUnsupportedLogFormatConstant = "xml"
)

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logLevel      utils.LogLevel
		logFormat     utils.LogFormat
		expectSuccess bool
	}{
		{name: "debug_structured", logLevel: utils.LogLevelDebug, logFormat: utils.LogFormatStructured, expectSuccess: true},
		{name: "info_console", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormatConsole, expectSuccess: true},
		{name: "warn_structured", logLevel: utils.LogLevelWarn, logFormat: utils.LogFormatStructured, expectSuccess: true},
		{name: "error_console", logLevel: utils.LogLevelError, logFormat: utils.LogFormatConsole, expectSuccess: true},
		{name: "unsupported_level", logLevel: utils.LogLevel(testUnsupportedLogLevelConstant), logFormat: utils.LogFormatStructured, expectSuccess: false},
		{name: "unsupported_format", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormat(testUnsupportedLogFormatConstant), expectSuccess: false},
	}

	loggerFactory := utils.NewLoggerFactory()

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			logger, creationError := loggerFactory.CreateLogger(testCase.logLevel, testCase.logFormat)
			if testCase.expectSuccess {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, logger)
				return
			}
			require.Error(testInstance, creationError)
			require.Nil(testInstance, logger)
		})
	}
}
