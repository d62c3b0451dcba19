package gitops_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngen-tools/ngen/internal/gitops"
)

type deployWorkflowFixture struct {
	workflow    *gitops.DeployWorkflow
	remoteAPI   *stubRemoteAPI
	gitExecutor *recordingGitExecutor
}

func newDeployWorkflowFixture(testInstance *testing.T, remoteAPI *stubRemoteAPI, configuration gitops.DeployConfiguration) deployWorkflowFixture {
	testInstance.Helper()

	gitExecutor := newCloningGitExecutor(testInstance, map[string]string{
		"default/app_deployment.yaml": deploymentDocumentFixtureConstant,
	})
	workingCopyManager, managerError := gitops.NewWorkingCopyManager(gitExecutor, testInstance.TempDir())
	require.NoError(testInstance, managerError)

	branchService, branchServiceError := gitops.NewBranchService(gitops.BranchServiceDependencies{
		RemoteAPI:          remoteAPI,
		GitExecutor:        gitExecutor,
		WorkingCopyManager: workingCopyManager,
	})
	require.NoError(testInstance, branchServiceError)

	imageUpdateService, imageServiceError := gitops.NewImageUpdateService(gitops.ImageUpdateServiceDependencies{
		RemoteAPI:          remoteAPI,
		GitExecutor:        gitExecutor,
		WorkingCopyManager: workingCopyManager,
	})
	require.NoError(testInstance, imageServiceError)

	pullRequestService, pullRequestServiceError := gitops.NewPullRequestService(gitops.PullRequestServiceDependencies{
		RemoteAPI: remoteAPI,
	})
	require.NoError(testInstance, pullRequestServiceError)

	workflow, workflowError := gitops.NewDeployWorkflow(gitops.DeployWorkflowDependencies{
		BranchService:      branchService,
		ImageUpdateService: imageUpdateService,
		PullRequestService: pullRequestService,
		Clock:              fixedClock{instant: time.Date(2026, time.March, 1, 12, 30, 45, 0, time.UTC)},
		Configuration:      configuration,
	})
	require.NoError(testInstance, workflowError)

	return deployWorkflowFixture{workflow: workflow, remoteAPI: remoteAPI, gitExecutor: gitExecutor}
}

func healthyDeployRemoteAPI() *stubRemoteAPI {
	return &stubRemoteAPI{
		resolveBranchHeadFunc: func(gitops.RepositoryRef, string) (string, error) {
			return "abc1234", nil
		},
		createPullRequestFunc: func(_ gitops.RepositoryRef, options gitops.CreatePullRequestOptions) (gitops.PullRequest, error) {
			return gitops.PullRequest{
				ID:                7,
				Title:             options.Title,
				SourceBranch:      options.SourceBranch,
				DestinationBranch: options.DestinationBranch,
				State:             gitops.PullRequestStateOpen,
				URL:               "https://api.bitbucket.org/2.0/repositories/acme/gitops/pullrequests/7",
			}, nil
		},
		getPullRequestFunc: func(_ gitops.RepositoryRef, pullRequestID int) (gitops.PullRequest, error) {
			return gitops.PullRequest{ID: pullRequestID, SourceBranch: "deploy/production-default-app-20260301T123045Z", State: gitops.PullRequestStateOpen}, nil
		},
		mergePullRequestFunc: func(_ gitops.RepositoryRef, pullRequestID int) (gitops.PullRequest, error) {
			return gitops.PullRequest{ID: pullRequestID, State: gitops.PullRequestStateMerged, MergeCommit: "fedcba9"}, nil
		},
	}
}

func defaultDeployOptions() gitops.DeployOptions {
	return gitops.DeployOptions{
		Workspace:  testWorkspaceConstant,
		Cluster:    "production",
		Namespace:  "default",
		Deployment: "app",
		Image:      "registry.example.com/app:2.0.0",
	}
}

func TestDeployWorkflowValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		mutate        func(options *gitops.DeployOptions)
		expectedError error
	}{
		{
			name:          "missing_cluster",
			mutate:        func(options *gitops.DeployOptions) { options.Cluster = "" },
			expectedError: gitops.ErrClusterRequired,
		},
		{
			name:          "missing_namespace",
			mutate:        func(options *gitops.DeployOptions) { options.Namespace = "" },
			expectedError: gitops.ErrNamespaceRequired,
		},
		{
			name:          "missing_deployment",
			mutate:        func(options *gitops.DeployOptions) { options.Deployment = "" },
			expectedError: gitops.ErrDeploymentRequired,
		},
		{
			name:          "missing_image",
			mutate:        func(options *gitops.DeployOptions) { options.Image = "" },
			expectedError: gitops.ErrDeployImageRequired,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newDeployWorkflowFixture(testInstance, healthyDeployRemoteAPI(), gitops.DeployConfiguration{})
			options := defaultDeployOptions()
			testCase.mutate(&options)

			workflowResult := fixture.workflow.Execute(context.Background(), options)

			require.False(testInstance, workflowResult.Success)
			require.Empty(testInstance, workflowResult.Steps)
			require.NotNil(testInstance, workflowResult.Error)
			require.Equal(testInstance, testCase.expectedError.Error(), workflowResult.Error.Message)
			require.Empty(testInstance, fixture.gitExecutor.executedCommands)
		})
	}
}

func TestDeployWorkflowRunsAllStepsWithMergeApproval(testInstance *testing.T) {
	fixture := newDeployWorkflowFixture(testInstance, healthyDeployRemoteAPI(), gitops.DeployConfiguration{})
	options := defaultDeployOptions()
	options.ApproveMerge = true

	workflowResult := fixture.workflow.Execute(context.Background(), options)

	require.True(testInstance, workflowResult.Success)
	require.Nil(testInstance, workflowResult.Error)
	require.Len(testInstance, workflowResult.Steps, 4)

	stepNames := make([]string, 0, len(workflowResult.Steps))
	for _, step := range workflowResult.Steps {
		stepNames = append(stepNames, step.Name)
		require.True(testInstance, step.Success)
	}
	require.Equal(
		testInstance,
		[]string{"branch_creation", "image_update", "pull_request_creation", "pull_request_merge"},
		stepNames,
	)

	branchDetail, branchDetailOK := workflowResult.Steps[0].Detail.(gitops.BranchCreationResult)
	require.True(testInstance, branchDetailOK)
	require.Equal(testInstance, "deploy/production-default-app-20260301T123045Z", branchDetail.Branch.Name)

	imageDetail, imageDetailOK := workflowResult.Steps[1].Detail.(gitops.ImageUpdateResult)
	require.True(testInstance, imageDetailOK)
	require.Equal(testInstance, "default/app_deployment.yaml", imageDetail.YamlPath)

	mergeDetail, mergeDetailOK := workflowResult.Steps[3].Detail.(gitops.MergeResult)
	require.True(testInstance, mergeDetailOK)
	require.Equal(testInstance, "fedcba9", mergeDetail.MergeCommit)

	require.Len(testInstance, fixture.remoteAPI.createOptions, 1)
	require.Equal(testInstance, "production", fixture.remoteAPI.createOptions[0].DestinationBranch)
	require.True(testInstance, fixture.remoteAPI.createOptions[0].CloseSourceBranch)
}

func TestDeployWorkflowSkipsMergeWithoutApproval(testInstance *testing.T) {
	fixture := newDeployWorkflowFixture(testInstance, healthyDeployRemoteAPI(), gitops.DeployConfiguration{})

	workflowResult := fixture.workflow.Execute(context.Background(), defaultDeployOptions())

	require.True(testInstance, workflowResult.Success)
	require.Len(testInstance, workflowResult.Steps, 3)
	require.Equal(testInstance, "pull_request_creation", workflowResult.Steps[2].Name)
}

func TestDeployWorkflowUsesConfiguredBaseBranch(testInstance *testing.T) {
	var resolvedSourceBranch string
	remoteAPI := healthyDeployRemoteAPI()
	remoteAPI.resolveBranchHeadFunc = func(_ gitops.RepositoryRef, branchName string) (string, error) {
		resolvedSourceBranch = branchName
		return "abc1234", nil
	}
	fixture := newDeployWorkflowFixture(testInstance, remoteAPI, gitops.DeployConfiguration{
		ClusterBaseBranches: map[string]string{"production": "main"},
	})

	workflowResult := fixture.workflow.Execute(context.Background(), defaultDeployOptions())

	require.True(testInstance, workflowResult.Success)
	require.Equal(testInstance, "main", resolvedSourceBranch)
	require.Equal(testInstance, "main", fixture.remoteAPI.createOptions[0].DestinationBranch)
}

func TestDeployWorkflowStopsAtFirstFailedStep(testInstance *testing.T) {
	remoteAPI := healthyDeployRemoteAPI()
	remoteAPI.createPullRequestFunc = func(gitops.RepositoryRef, gitops.CreatePullRequestOptions) (gitops.PullRequest, error) {
		return gitops.PullRequest{}, gitops.ErrPullRequestExists
	}
	fixture := newDeployWorkflowFixture(testInstance, remoteAPI, gitops.DeployConfiguration{})
	options := defaultDeployOptions()
	options.ApproveMerge = true

	workflowResult := fixture.workflow.Execute(context.Background(), options)

	require.False(testInstance, workflowResult.Success)
	require.Len(testInstance, workflowResult.Steps, 3)
	require.True(testInstance, workflowResult.Steps[0].Success)
	require.True(testInstance, workflowResult.Steps[1].Success)
	require.False(testInstance, workflowResult.Steps[2].Success)
	require.NotNil(testInstance, workflowResult.Steps[2].Error)
	require.Equal(testInstance, gitops.ErrorKindPullRequestExists, workflowResult.Steps[2].Error.Kind)
	require.NotNil(testInstance, workflowResult.Error)
	require.Equal(testInstance, gitops.ErrorKindPullRequestExists, workflowResult.Error.Kind)
}

func TestDeployWorkflowKeepsEarlierStepsAfterFailure(testInstance *testing.T) {
	remoteAPI := healthyDeployRemoteAPI()
	remoteAPI.createPullRequestFunc = func(gitops.RepositoryRef, gitops.CreatePullRequestOptions) (gitops.PullRequest, error) {
		return gitops.PullRequest{}, gitops.ErrPullRequestExists
	}
	fixture := newDeployWorkflowFixture(testInstance, remoteAPI, gitops.DeployConfiguration{})

	workflowResult := fixture.workflow.Execute(context.Background(), defaultDeployOptions())

	// The pushed branch and commit survive the failure; no compensating cleanup runs.
	require.Contains(testInstance, fixture.gitExecutor.subcommands(), "push")
	branchDetail, branchDetailOK := workflowResult.Steps[0].Detail.(gitops.BranchCreationResult)
	require.True(testInstance, branchDetailOK)
	require.NotEmpty(testInstance, branchDetail.Branch.Name)
}

func TestDeployWorkflowMergeFailureDoesNotFailWorkflow(testInstance *testing.T) {
	remoteAPI := healthyDeployRemoteAPI()
	remoteAPI.mergePullRequestFunc = func(gitops.RepositoryRef, int) (gitops.PullRequest, error) {
		return gitops.PullRequest{}, gitops.ErrMergeConflict
	}
	fixture := newDeployWorkflowFixture(testInstance, remoteAPI, gitops.DeployConfiguration{})
	options := defaultDeployOptions()
	options.ApproveMerge = true

	workflowResult := fixture.workflow.Execute(context.Background(), options)

	require.True(testInstance, workflowResult.Success)
	require.Nil(testInstance, workflowResult.Error)
	require.Len(testInstance, workflowResult.Steps, 4)
	mergeStep := workflowResult.Steps[3]
	require.Equal(testInstance, "pull_request_merge", mergeStep.Name)
	require.False(testInstance, mergeStep.Success)
	require.NotNil(testInstance, mergeStep.Error)
	require.Equal(testInstance, gitops.ErrorKindMergeConflict, mergeStep.Error.Kind)
}

func TestDeployConfigurationDefaults(testInstance *testing.T) {
	configuration := gitops.DeployConfiguration{}.Sanitize()

	require.Equal(testInstance, "gitops", configuration.RepositoryName)
	require.Equal(testInstance, "staging", configuration.BaseBranchForCluster("staging"))
}
