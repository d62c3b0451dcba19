package cli

import (
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/bitbucket"
	"github.com/ngen-tools/ngen/internal/credentials"
	"github.com/ngen-tools/ngen/internal/execshell"
	"github.com/ngen-tools/ngen/internal/gitops"
	"github.com/ngen-tools/ngen/internal/notify"
)

// workflowServices bundles the fully wired workflow engine entry points together
// with the workspace the credentials resolved to.
type workflowServices struct {
	branchService      *gitops.BranchService
	imageUpdateService *gitops.ImageUpdateService
	pullRequestService *gitops.PullRequestService
	deployWorkflow     *gitops.DeployWorkflow
	workspace          string
}

// buildWorkflowServices resolves credentials and assembles the remote client, shell
// executor, working copy manager, notifier, and every workflow service on top of them.
func buildWorkflowServices(configuration ApplicationConfiguration, logger *zap.Logger) (workflowServices, error) {
	credentialResolver := credentials.NewResolver(credentials.Credentials{
		Username:    configuration.Bitbucket.Username,
		AppPassword: configuration.Bitbucket.AppPassword,
		Workspace:   configuration.Bitbucket.Workspace,
	})
	resolvedCredentials, credentialsError := credentialResolver.Resolve(credentials.Credentials{})
	if credentialsError != nil {
		return workflowServices{}, credentialsError
	}

	remoteClient, clientError := bitbucket.NewClient(bitbucket.ClientOptions{
		BaseURL:     configuration.Bitbucket.APIBaseURL,
		Credentials: resolvedCredentials,
		Logger:      logger,
	})
	if clientError != nil {
		return workflowServices{}, clientError
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return workflowServices{}, executorError
	}

	workingCopyManager, managerError := gitops.NewWorkingCopyManager(shellExecutor, configuration.Gitops.ScratchDirectory)
	if managerError != nil {
		return workflowServices{}, managerError
	}

	teamsNotifier := notify.NewTeamsNotifier(configuration.Gitops.TeamsWebhookURL, nil, logger)
	endpoints := gitops.Endpoints{WebBaseURL: configuration.Bitbucket.WebBaseURL}

	branchService, branchServiceError := gitops.NewBranchService(gitops.BranchServiceDependencies{
		RemoteAPI:          remoteClient,
		GitExecutor:        shellExecutor,
		WorkingCopyManager: workingCopyManager,
		Notifier:           teamsNotifier,
		Logger:             logger,
		Endpoints:          endpoints,
	})
	if branchServiceError != nil {
		return workflowServices{}, branchServiceError
	}

	imageUpdateService, imageServiceError := gitops.NewImageUpdateService(gitops.ImageUpdateServiceDependencies{
		RemoteAPI:          remoteClient,
		GitExecutor:        shellExecutor,
		WorkingCopyManager: workingCopyManager,
		Notifier:           teamsNotifier,
		Logger:             logger,
	})
	if imageServiceError != nil {
		return workflowServices{}, imageServiceError
	}

	pullRequestService, pullRequestServiceError := gitops.NewPullRequestService(gitops.PullRequestServiceDependencies{
		RemoteAPI: remoteClient,
		Notifier:  teamsNotifier,
		Logger:    logger,
	})
	if pullRequestServiceError != nil {
		return workflowServices{}, pullRequestServiceError
	}

	deployWorkflow, deployWorkflowError := gitops.NewDeployWorkflow(gitops.DeployWorkflowDependencies{
		BranchService:      branchService,
		ImageUpdateService: imageUpdateService,
		PullRequestService: pullRequestService,
		Logger:             logger,
		Configuration:      configuration.Gitops.Deploy,
	})
	if deployWorkflowError != nil {
		return workflowServices{}, deployWorkflowError
	}

	return workflowServices{
		branchService:      branchService,
		imageUpdateService: imageUpdateService,
		pullRequestService: pullRequestService,
		deployWorkflow:     deployWorkflow,
		workspace:          resolvedCredentials.Workspace,
	}, nil
}
