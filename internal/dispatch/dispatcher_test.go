package dispatch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/dispatch"
	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	statusScriptFileNameConstant       = "ngenctl-status"
	statusCommandNameConstant          = "status"
	statusScriptOutputConstant         = "all clear\n"
	nonExecutableScriptNameConstant    = "ngenctl-report"
	nonExecutableCommandNameConstant   = "report"
	scriptFailureExitCodeConstant      = 3
	dispatchAliasNameConstant          = "s"
	dispatchAliasTargetConstant        = "status --short"
	dispatchExtraArgumentConstant      = "--color"
	dispatcherAliasFileNameConstant    = "alias.json"
	executableScriptPermissionConstant = 0o755
	dataScriptPermissionConstant       = 0o644
)

type recordingScriptExecutor struct {
	executedPrograms  []string
	executedArguments [][]string
	result            execshell.ExecutionResult
	executionError    error
}

func (executor *recordingScriptExecutor) ExecuteProgram(_ context.Context, programName string, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.executedPrograms = append(executor.executedPrograms, programName)
	executor.executedArguments = append(executor.executedArguments, details.Arguments)
	return executor.result, executor.executionError
}

type dispatcherFixture struct {
	dispatcher      *dispatch.Dispatcher
	executor        *recordingScriptExecutor
	scriptDirectory string
	aliasStore      dispatch.AliasStore
}

func newDispatcherFixture(testInstance *testing.T) dispatcherFixture {
	testInstance.Helper()

	scriptDirectory := testInstance.TempDir()
	aliasStore := dispatch.NewAliasStore(filepath.Join(testInstance.TempDir(), dispatcherAliasFileNameConstant))
	executor := &recordingScriptExecutor{}

	dispatcher, creationError := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		AliasStore:      aliasStore,
		ScriptDirectory: scriptDirectory,
		Executor:        executor,
		Logger:          zap.NewNop(),
	})
	require.NoError(testInstance, creationError)

	return dispatcherFixture{dispatcher: dispatcher, executor: executor, scriptDirectory: scriptDirectory, aliasStore: aliasStore}
}

func (fixture dispatcherFixture) writeScript(testInstance *testing.T, fileName string, permissions os.FileMode) string {
	testInstance.Helper()
	scriptPath := filepath.Join(fixture.scriptDirectory, fileName)
	require.NoError(testInstance, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), permissions))
	return scriptPath
}

func TestNewDispatcherRequiresExecutor(testInstance *testing.T) {
	_, creationError := dispatch.NewDispatcher(dispatch.DispatcherOptions{})

	require.ErrorIs(testInstance, creationError, dispatch.ErrExecutorNotConfigured)
}

func TestDispatcherLocateScriptFindsExecutable(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)
	expectedPath := fixture.writeScript(testInstance, statusScriptFileNameConstant, executableScriptPermissionConstant)

	locatedPath, locateError := fixture.dispatcher.LocateScript(statusCommandNameConstant)

	require.NoError(testInstance, locateError)
	require.Equal(testInstance, expectedPath, locatedPath)
}

func TestDispatcherLocateScriptSkipsNonExecutableFiles(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)
	fixture.writeScript(testInstance, nonExecutableScriptNameConstant, dataScriptPermissionConstant)

	_, locateError := fixture.dispatcher.LocateScript(nonExecutableCommandNameConstant)

	require.ErrorIs(testInstance, locateError, dispatch.ErrCommandNotFound)
}

func TestDispatcherLocateScriptRequiresCommandName(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)

	_, locateError := fixture.dispatcher.LocateScript("   ")

	require.ErrorIs(testInstance, locateError, dispatch.ErrCommandRequired)
}

func TestDispatcherDispatchExecutesLocatedScript(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)
	expectedPath := fixture.writeScript(testInstance, statusScriptFileNameConstant, executableScriptPermissionConstant)
	fixture.executor.result = execshell.ExecutionResult{StandardOutput: statusScriptOutputConstant}

	executionResult, dispatchError := fixture.dispatcher.Dispatch(context.Background(), statusCommandNameConstant, []string{dispatchExtraArgumentConstant})

	require.NoError(testInstance, dispatchError)
	require.Equal(testInstance, statusScriptOutputConstant, executionResult.StandardOutput)
	require.Equal(testInstance, []string{expectedPath}, fixture.executor.executedPrograms)
	require.Equal(testInstance, [][]string{{dispatchExtraArgumentConstant}}, fixture.executor.executedArguments)
}

func TestDispatcherDispatchResolvesAliasesBeforeExecution(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)
	expectedPath := fixture.writeScript(testInstance, statusScriptFileNameConstant, executableScriptPermissionConstant)
	require.NoError(testInstance, fixture.aliasStore.Set(dispatchAliasNameConstant, dispatchAliasTargetConstant))

	_, dispatchError := fixture.dispatcher.Dispatch(context.Background(), dispatchAliasNameConstant, []string{dispatchExtraArgumentConstant})

	require.NoError(testInstance, dispatchError)
	require.Equal(testInstance, []string{expectedPath}, fixture.executor.executedPrograms)
	require.Equal(testInstance, [][]string{{"--short", dispatchExtraArgumentConstant}}, fixture.executor.executedArguments)
}

func TestDispatcherDispatchReturnsCommandNotFound(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)

	_, dispatchError := fixture.dispatcher.Dispatch(context.Background(), statusCommandNameConstant, nil)

	require.ErrorIs(testInstance, dispatchError, dispatch.ErrCommandNotFound)
	require.Empty(testInstance, fixture.executor.executedPrograms)
}

func TestDispatcherDispatchPassesScriptFailureThrough(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)
	fixture.writeScript(testInstance, statusScriptFileNameConstant, executableScriptPermissionConstant)

	failedResult := execshell.ExecutionResult{ExitCode: scriptFailureExitCodeConstant}
	fixture.executor.result = failedResult
	fixture.executor.executionError = execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandName(statusScriptFileNameConstant)},
		Result:  failedResult,
	}

	executionResult, dispatchError := fixture.dispatcher.Dispatch(context.Background(), statusCommandNameConstant, nil)

	require.Error(testInstance, dispatchError)
	var commandFailure execshell.CommandFailedError
	require.ErrorAs(testInstance, dispatchError, &commandFailure)
	require.Equal(testInstance, scriptFailureExitCodeConstant, commandFailure.Result.ExitCode)
	require.Equal(testInstance, scriptFailureExitCodeConstant, executionResult.ExitCode)
}

func TestDispatcherDispatchRequiresCommandName(testInstance *testing.T) {
	fixture := newDispatcherFixture(testInstance)

	_, dispatchError := fixture.dispatcher.Dispatch(context.Background(), "", nil)

	require.ErrorIs(testInstance, dispatchError, dispatch.ErrCommandRequired)
}
