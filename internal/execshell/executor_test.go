package execshell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	testCommandArgumentConstant     = "--version"
	testWorkingDirectoryConstant    = "."
	testStandardErrorOutputConstant = "failure"
	testScriptPathConstant          = "/usr/local/bin/ngenctl-rancher"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectedError error
	}{
		{name: "missing_logger", logger: nil, runner: &recordingCommandRunner{}, expectedError: execshell.ErrLoggerNotConfigured},
		{name: "missing_runner", logger: zap.NewNop(), runner: nil, expectedError: execshell.ErrCommandRunnerNotConfigured},
		{name: "successful_initialization", logger: zap.NewNop(), runner: &recordingCommandRunner{}, expectedError: nil},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner)
			if testCase.expectedError == nil {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, executor)
				return
			}
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
			require.Nil(testInstance, executor)
		})
	}
}

func TestShellExecutorExecuteGit(testInstance *testing.T) {
	runner := &recordingCommandRunner{executionResult: execshell.ExecutionResult{StandardOutput: "ok"}}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), runner)
	require.NoError(testInstance, creationError)

	executionResult, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{
		Arguments:        []string{testCommandArgumentConstant},
		WorkingDirectory: testWorkingDirectoryConstant,
	})
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "ok", executionResult.StandardOutput)
	require.Len(testInstance, runner.recordedCommands, 1)
	require.Equal(testInstance, execshell.CommandNameGit, runner.recordedCommands[0].Name)
	require.Equal(testInstance, []string{testCommandArgumentConstant}, runner.recordedCommands[0].Details.Arguments)
}

func TestShellExecutorSurfacesNonZeroExit(testInstance *testing.T) {
	runner := &recordingCommandRunner{
		executionResult: execshell.ExecutionResult{ExitCode: 128, StandardError: testStandardErrorOutputConstant},
	}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), runner)
	require.NoError(testInstance, creationError)

	executionResult, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{Arguments: []string{"push"}})
	require.Error(testInstance, executionError)

	var commandFailure execshell.CommandFailedError
	require.ErrorAs(testInstance, executionError, &commandFailure)
	require.Equal(testInstance, 128, commandFailure.Result.ExitCode)
	require.Equal(testInstance, 128, executionResult.ExitCode)
	require.Contains(testInstance, commandFailure.Error(), testStandardErrorOutputConstant)
}

func TestShellExecutorPropagatesRunnerError(testInstance *testing.T) {
	runnerError := errors.New("executable not found")
	runner := &recordingCommandRunner{executionError: runnerError}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), runner)
	require.NoError(testInstance, creationError)

	_, executionError := executor.ExecuteProgram(context.Background(), testScriptPathConstant, execshell.CommandDetails{})
	require.ErrorIs(testInstance, executionError, runnerError)
}

func TestShellExecutorRejectsEmptyExecutableName(testInstance *testing.T) {
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), &recordingCommandRunner{})
	require.NoError(testInstance, creationError)

	_, executionError := executor.ExecuteProgram(context.Background(), "  ", execshell.CommandDetails{})
	require.ErrorIs(testInstance, executionError, execshell.ErrExecutableNameRequired)
}
