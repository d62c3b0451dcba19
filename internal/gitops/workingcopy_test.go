package gitops_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngen-tools/ngen/internal/execshell"
	"github.com/ngen-tools/ngen/internal/gitops"
)

func TestNewWorkingCopyManagerRequiresGitExecutor(testInstance *testing.T) {
	_, managerError := gitops.NewWorkingCopyManager(nil, "")

	require.ErrorIs(testInstance, managerError, gitops.ErrGitExecutorNotConfigured)
}

func TestAcquireValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		options       gitops.AcquireOptions
		expectedError error
	}{
		{
			name:          "missing_clone_url",
			options:       gitops.AcquireOptions{BranchName: "main"},
			expectedError: gitops.ErrCloneURLRequired,
		},
		{
			name:          "missing_branch_name",
			options:       gitops.AcquireOptions{CloneURL: testCloneURLConstant},
			expectedError: gitops.ErrBranchNameRequired,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			workingCopyManager, managerError := gitops.NewWorkingCopyManager(&recordingGitExecutor{}, testInstance.TempDir())
			require.NoError(testInstance, managerError)

			_, acquireError := workingCopyManager.Acquire(context.Background(), testCase.options)

			require.ErrorIs(testInstance, acquireError, testCase.expectedError)
		})
	}
}

func TestAcquireShallowCloneArguments(testInstance *testing.T) {
	gitExecutor := &recordingGitExecutor{}
	workingCopyManager, managerError := gitops.NewWorkingCopyManager(gitExecutor, testInstance.TempDir())
	require.NoError(testInstance, managerError)

	workingCopy, acquireError := workingCopyManager.Acquire(context.Background(), gitops.AcquireOptions{
		CloneURL:   testCloneURLConstant,
		BranchName: "main",
		Shallow:    true,
	})

	require.NoError(testInstance, acquireError)
	defer func() {
		require.NoError(testInstance, workingCopy.Remove())
	}()

	require.Len(testInstance, gitExecutor.executedCommands, 1)
	cloneDetails := gitExecutor.executedCommands[0]
	require.Equal(
		testInstance,
		[]string{"clone", "--depth", "1", "--branch", "main", "--single-branch", testCloneURLConstant, workingCopy.Path},
		cloneDetails.Arguments,
	)
	require.Equal(testInstance, "0", cloneDetails.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
	require.DirExists(testInstance, workingCopy.Path)
}

func TestAcquireFullCloneOmitsDepth(testInstance *testing.T) {
	gitExecutor := &recordingGitExecutor{}
	workingCopyManager, managerError := gitops.NewWorkingCopyManager(gitExecutor, testInstance.TempDir())
	require.NoError(testInstance, managerError)

	workingCopy, acquireError := workingCopyManager.Acquire(context.Background(), gitops.AcquireOptions{
		CloneURL:   testCloneURLConstant,
		BranchName: "main",
	})

	require.NoError(testInstance, acquireError)
	defer func() {
		require.NoError(testInstance, workingCopy.Remove())
	}()

	require.NotContains(testInstance, gitExecutor.executedCommands[0].Arguments, "--depth")
}

func TestAcquireCleansDirectoryWhenCloneFails(testInstance *testing.T) {
	var cloneDirectory string
	gitExecutor := &recordingGitExecutor{}
	gitExecutor.handler = func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
		cloneDirectory = details.Arguments[len(details.Arguments)-1]
		failureResult := execshell.ExecutionResult{StandardError: "fatal: could not read Username", ExitCode: 128}
		return failureResult, execshell.CommandFailedError{
			Command: execshell.ShellCommand{Name: execshell.CommandNameGit, Details: details},
			Result:  failureResult,
		}
	}
	workingCopyManager, managerError := gitops.NewWorkingCopyManager(gitExecutor, testInstance.TempDir())
	require.NoError(testInstance, managerError)

	_, acquireError := workingCopyManager.Acquire(context.Background(), gitops.AcquireOptions{
		CloneURL:   testCloneURLConstant,
		BranchName: "main",
	})

	var commandFailure execshell.CommandFailedError
	require.ErrorAs(testInstance, acquireError, &commandFailure)
	require.NotEmpty(testInstance, cloneDirectory)
	require.NoDirExists(testInstance, cloneDirectory)
}

func TestWorkingCopyRemoveIsIdempotent(testInstance *testing.T) {
	workingCopyManager, managerError := gitops.NewWorkingCopyManager(&recordingGitExecutor{}, testInstance.TempDir())
	require.NoError(testInstance, managerError)

	workingCopy, acquireError := workingCopyManager.Acquire(context.Background(), gitops.AcquireOptions{
		CloneURL:   testCloneURLConstant,
		BranchName: "main",
	})
	require.NoError(testInstance, acquireError)

	require.NoError(testInstance, workingCopy.Remove())
	require.NoError(testInstance, workingCopy.Remove())
	require.NoDirExists(testInstance, workingCopy.Path)
}

func TestWorkingCopyRemoveOnNil(testInstance *testing.T) {
	var workingCopy *gitops.WorkingCopy

	require.NoError(testInstance, workingCopy.Remove())
}
