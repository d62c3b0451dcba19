package gitops_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngen-tools/ngen/internal/execshell"
	"github.com/ngen-tools/ngen/internal/gitops"
)

const deploymentDocumentFixtureConstant = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
spec:
  template:
    spec:
      containers:
        - name: app
          image: registry.example.com/app:1.0.0
        - name: sidecar
          image: registry.example.com/sidecar:2.0.0
`

// cloningGitExecutor materializes fixture files inside the clone target directory
// so the image update service sees a realistic working copy.
func newCloningGitExecutor(testInstance *testing.T, repositoryFiles map[string]string) *recordingGitExecutor {
	testInstance.Helper()
	gitExecutor := &recordingGitExecutor{}
	gitExecutor.handler = func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
		switch details.Arguments[0] {
		case "clone":
			cloneDirectory := details.Arguments[len(details.Arguments)-1]
			for relativePath, fileContent := range repositoryFiles {
				targetPath := filepath.Join(cloneDirectory, filepath.FromSlash(relativePath))
				require.NoError(testInstance, os.MkdirAll(filepath.Dir(targetPath), 0o755))
				require.NoError(testInstance, os.WriteFile(targetPath, []byte(fileContent), 0o644))
			}
		case "rev-parse":
			return execshell.ExecutionResult{StandardOutput: "c0ffee12\n"}, nil
		}
		return execshell.ExecutionResult{}, nil
	}
	return gitExecutor
}

func newImageUpdateServiceForTest(testInstance *testing.T, gitExecutor gitops.GitExecutor, notifier gitops.Notifier) *gitops.ImageUpdateService {
	testInstance.Helper()
	workingCopyManager, managerError := gitops.NewWorkingCopyManager(gitExecutor, testInstance.TempDir())
	require.NoError(testInstance, managerError)
	imageUpdateService, serviceError := gitops.NewImageUpdateService(gitops.ImageUpdateServiceDependencies{
		RemoteAPI:          &stubRemoteAPI{},
		GitExecutor:        gitExecutor,
		WorkingCopyManager: workingCopyManager,
		Notifier:           notifier,
	})
	require.NoError(testInstance, serviceError)
	return imageUpdateService
}

func TestUpdateImageValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		options       gitops.ImageUpdateOptions
		expectedError error
	}{
		{
			name:          "missing_repository",
			options:       gitops.ImageUpdateOptions{BranchName: "main", YamlPath: "a.yaml", Image: "app:2"},
			expectedError: gitops.ErrRepositoryRequired,
		},
		{
			name:          "missing_branch",
			options:       gitops.ImageUpdateOptions{Repository: testRepository(), YamlPath: "a.yaml", Image: "app:2"},
			expectedError: gitops.ErrBranchRefRequired,
		},
		{
			name:          "missing_yaml_path",
			options:       gitops.ImageUpdateOptions{Repository: testRepository(), BranchName: "main", Image: "app:2"},
			expectedError: gitops.ErrYamlPathRequired,
		},
		{
			name:          "missing_image",
			options:       gitops.ImageUpdateOptions{Repository: testRepository(), BranchName: "main", YamlPath: "a.yaml"},
			expectedError: gitops.ErrImageValueRequired,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			imageUpdateService := newImageUpdateServiceForTest(testInstance, &recordingGitExecutor{}, nil)

			_, updateError := imageUpdateService.UpdateImage(context.Background(), testCase.options)

			require.ErrorIs(testInstance, updateError, testCase.expectedError)
		})
	}
}

func TestUpdateImageRewritesNestedImageKeys(testInstance *testing.T) {
	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{
		"default/app_deployment.yaml": deploymentDocumentFixtureConstant,
	})
	notifier := &recordingNotifier{}
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, notifier)

	updateResult, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
	})

	require.NoError(testInstance, updateError)
	require.Equal(
		testInstance,
		[]string{
			"$.spec.template.spec.containers[0].image",
			"$.spec.template.spec.containers[1].image",
		},
		updateResult.Replacements,
	)
	require.Equal(testInstance, "c0ffee12", updateResult.CommitHash)
	require.Equal(testInstance, []string{"clone", "add", "commit", "rev-parse", "push"}, gitExecutor.subcommands())

	commitDetails := gitExecutor.executedCommands[2]
	require.Equal(
		testInstance,
		[]string{"commit", "-m", "Update image to registry.example.com/app:2.0.0 in default/app_deployment.yaml"},
		commitDetails.Arguments,
	)

	require.Len(testInstance, notifier.notifications, 1)
	require.Equal(testInstance, "Image updated", notifier.notifications[0].Title)

	cloneDirectories := gitExecutor.cloneDirectories()
	require.Len(testInstance, cloneDirectories, 1)
	require.NoDirExists(testInstance, cloneDirectories[0])
}

func TestUpdateImageSecondApplicationHasNothingToCommit(testInstance *testing.T) {
	alreadyUpdatedDocument := `spec:
  template:
    spec:
      containers:
        - name: app
          image: registry.example.com/app:2.0.0
`
	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{
		"default/app_deployment.yaml": alreadyUpdatedDocument,
	})
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, nil)

	_, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
	})

	require.ErrorIs(testInstance, updateError, gitops.ErrNothingToCommit)
	require.Equal(testInstance, []string{"clone"}, gitExecutor.subcommands())

	cloneDirectories := gitExecutor.cloneDirectories()
	require.Len(testInstance, cloneDirectories, 1)
	require.NoDirExists(testInstance, cloneDirectories[0])
}

func TestUpdateImageDryRunReportsWithoutCommitting(testInstance *testing.T) {
	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{
		"default/app_deployment.yaml": deploymentDocumentFixtureConstant,
	})
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, nil)

	updateResult, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
		DryRun:     true,
	})

	require.NoError(testInstance, updateError)
	require.True(testInstance, updateResult.DryRun)
	require.Len(testInstance, updateResult.Replacements, 2)
	require.Contains(testInstance, updateResult.UpdatedContent, "registry.example.com/app:2.0.0")
	require.Empty(testInstance, updateResult.CommitHash)
	require.Equal(testInstance, []string{"clone"}, gitExecutor.subcommands())

	cloneDirectories := gitExecutor.cloneDirectories()
	require.Len(testInstance, cloneDirectories, 1)
	require.NoDirExists(testInstance, cloneDirectories[0])
}

func TestUpdateImageDryRunWithoutImageKeysSucceeds(testInstance *testing.T) {
	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{
		"default/app_deployment.yaml": "metadata:\n  name: app\n",
	})
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, nil)

	updateResult, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
		DryRun:     true,
	})

	require.NoError(testInstance, updateError)
	require.Empty(testInstance, updateResult.Replacements)
}

func TestUpdateImageFileMissing(testInstance *testing.T) {
	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{})
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, nil)

	_, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
	})

	require.ErrorIs(testInstance, updateError, gitops.ErrFileNotFoundInRepo)
}

func TestUpdateImageMalformedDocument(testInstance *testing.T) {
	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{
		"default/app_deployment.yaml": "metadata: [unclosed\n",
	})
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, nil)

	_, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
	})

	var parseError gitops.YamlParseError
	require.ErrorAs(testInstance, updateError, &parseError)
	require.Equal(testInstance, "default/app_deployment.yaml", parseError.FilePath)
	require.Equal(testInstance, gitops.ErrorKindYamlParse, gitops.Kind(updateError))
}

func TestUpdateImageRejectedPush(testInstance *testing.T) {
	gitExecutor := &recordingGitExecutor{}
	gitExecutor.handler = func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
		switch details.Arguments[0] {
		case "clone":
			cloneDirectory := details.Arguments[len(details.Arguments)-1]
			targetPath := filepath.Join(cloneDirectory, "default", "app_deployment.yaml")
			require.NoError(testInstance, os.MkdirAll(filepath.Dir(targetPath), 0o755))
			require.NoError(testInstance, os.WriteFile(targetPath, []byte(deploymentDocumentFixtureConstant), 0o644))
		case "rev-parse":
			return execshell.ExecutionResult{StandardOutput: "c0ffee12\n"}, nil
		case "push":
			failureResult := execshell.ExecutionResult{StandardError: "! [rejected] non-fast-forward", ExitCode: 1}
			return failureResult, execshell.CommandFailedError{
				Command: execshell.ShellCommand{Name: execshell.CommandNameGit, Details: details},
				Result:  failureResult,
			}
		}
		return execshell.ExecutionResult{}, nil
	}
	imageUpdateService := newImageUpdateServiceForTest(testInstance, gitExecutor, nil)

	_, updateError := imageUpdateService.UpdateImage(context.Background(), gitops.ImageUpdateOptions{
		Repository: testRepository(),
		BranchName: "deploy/production",
		YamlPath:   "default/app_deployment.yaml",
		Image:      "registry.example.com/app:2.0.0",
	})

	require.ErrorIs(testInstance, updateError, gitops.ErrPushRejected)
	require.Equal(testInstance, gitops.ErrorKindPushRejected, gitops.Kind(updateError))
}
