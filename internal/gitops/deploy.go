package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	deployYamlPathTemplateConstant        = "%s/%s_deployment.yaml"
	deployBranchNameTemplateConstant      = "deploy/%s-%s-%s-%s"
	deployBranchTimestampLayoutConstant   = "20060102T150405Z"
	defaultGitOpsRepositoryNameConstant   = "gitops"
	clusterRequiredMessageConstant        = "cluster must be provided"
	namespaceRequiredMessageConstant      = "namespace must be provided"
	deploymentRequiredMessageConstant     = "deployment must be provided"
	deployImageRequiredMessageConstant    = "image must be provided"
	branchServiceMissingMessageConstant   = "branch service not configured"
	imageServiceMissingMessageConstant    = "image update service not configured"
	pullRequestServiceMissingMessage      = "pull request service not configured"
	stepNameBranchCreationConstant        = "branch_creation"
	stepNameImageUpdateConstant           = "image_update"
	stepNamePullRequestCreationConstant   = "pull_request_creation"
	stepNamePullRequestMergeConstant      = "pull_request_merge"
	deployWorkflowStartedMessageConstant  = "deploy workflow started"
	deployWorkflowFinishedMessageConstant = "deploy workflow finished"
	deployStepFailedMessageConstant       = "deploy workflow step failed"
	logFieldClusterConstant               = "cluster"
	logFieldNamespaceConstant             = "namespace"
	logFieldDeploymentConstant            = "deployment"
	logFieldStepConstant                  = "step"
	logFieldSuccessConstant               = "success"
)

// Deploy workflow input sentinels.
var (
	// ErrClusterRequired indicates the cluster option was empty.
	ErrClusterRequired = errors.New(clusterRequiredMessageConstant)
	// ErrNamespaceRequired indicates the namespace option was empty.
	ErrNamespaceRequired = errors.New(namespaceRequiredMessageConstant)
	// ErrDeploymentRequired indicates the deployment option was empty.
	ErrDeploymentRequired = errors.New(deploymentRequiredMessageConstant)
	// ErrDeployImageRequired indicates the image option was empty.
	ErrDeployImageRequired = errors.New(deployImageRequiredMessageConstant)
	// ErrBranchServiceNotConfigured indicates the workflow was built without a branch service.
	ErrBranchServiceNotConfigured = errors.New(branchServiceMissingMessageConstant)
	// ErrImageServiceNotConfigured indicates the workflow was built without an image update service.
	ErrImageServiceNotConfigured = errors.New(imageServiceMissingMessageConstant)
	// ErrPullRequestServiceNotConfigured indicates the workflow was built without a pull request service.
	ErrPullRequestServiceNotConfigured = errors.New(pullRequestServiceMissingMessage)
)

// DeployConfiguration carries the deploy workflow defaults resolved from configuration.
type DeployConfiguration struct {
	RepositoryName      string            `mapstructure:"repository_name"`
	ClusterBaseBranches map[string]string `mapstructure:"clusters"`
}

// Sanitize applies defaults for unset deploy configuration values.
func (configuration DeployConfiguration) Sanitize() DeployConfiguration {
	if len(strings.TrimSpace(configuration.RepositoryName)) == 0 {
		configuration.RepositoryName = defaultGitOpsRepositoryNameConstant
	}
	return configuration
}

// BaseBranchForCluster resolves the base branch tracked by a cluster. Clusters without
// explicit configuration track a branch named after the cluster.
func (configuration DeployConfiguration) BaseBranchForCluster(clusterName string) string {
	if configuredBranch, configured := configuration.ClusterBaseBranches[clusterName]; configured && len(strings.TrimSpace(configuredBranch)) > 0 {
		return configuredBranch
	}
	return clusterName
}

// DeployOptions configures one composite Kubernetes deploy workflow invocation.
type DeployOptions struct {
	Workspace      string
	RepositoryName string
	Cluster        string
	Namespace      string
	Deployment     string
	Image          string
	ApproveMerge   bool
}

// DeployWorkflowDependencies enumerates collaborators required by the composite workflow.
type DeployWorkflowDependencies struct {
	BranchService      *BranchService
	ImageUpdateService *ImageUpdateService
	PullRequestService *PullRequestService
	Clock              Clock
	Logger             *zap.Logger
	Configuration      DeployConfiguration
}

// DeployWorkflow chains branch creation, image update, pull request creation, and an
// optional merge into one strictly sequential, fail-forward workflow. Completed steps
// are never rolled back when a later step fails.
type DeployWorkflow struct {
	branchService      *BranchService
	imageUpdateService *ImageUpdateService
	pullRequestService *PullRequestService
	clock              Clock
	logger             *zap.Logger
	configuration      DeployConfiguration
}

// NewDeployWorkflow constructs a DeployWorkflow from the provided dependencies.
func NewDeployWorkflow(dependencies DeployWorkflowDependencies) (*DeployWorkflow, error) {
	if dependencies.BranchService == nil {
		return nil, ErrBranchServiceNotConfigured
	}
	if dependencies.ImageUpdateService == nil {
		return nil, ErrImageServiceNotConfigured
	}
	if dependencies.PullRequestService == nil {
		return nil, ErrPullRequestServiceNotConfigured
	}
	workflowClock := dependencies.Clock
	if workflowClock == nil {
		workflowClock = SystemClock{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeployWorkflow{
		branchService:      dependencies.BranchService,
		imageUpdateService: dependencies.ImageUpdateService,
		pullRequestService: dependencies.PullRequestService,
		clock:              workflowClock,
		logger:             logger,
		configuration:      dependencies.Configuration.Sanitize(),
	}, nil
}

// Execute runs the composite workflow and returns the whole accumulated result.
// Step errors stop the sequence without compensating actions; a failed optional
// merge is recorded as a failed step while the overall result stays successful.
func (workflow *DeployWorkflow) Execute(executionContext context.Context, options DeployOptions) WorkflowResult {
	if validationError := validateDeployOptions(options); validationError != nil {
		return WorkflowResult{Success: false, Steps: []StepOutcome{}, Error: NewErrorInfo(validationError)}
	}

	repository := RepositoryRef{Workspace: options.Workspace, Name: workflow.resolveRepositoryName(options.RepositoryName)}
	baseBranch := workflow.configuration.BaseBranchForCluster(options.Cluster)
	yamlPath := fmt.Sprintf(deployYamlPathTemplateConstant, options.Namespace, options.Deployment)
	deployBranch := workflow.deriveBranchName(options)

	workflow.logger.Info(
		deployWorkflowStartedMessageConstant,
		zap.String(logFieldClusterConstant, options.Cluster),
		zap.String(logFieldNamespaceConstant, options.Namespace),
		zap.String(logFieldDeploymentConstant, options.Deployment),
		zap.String(logFieldImageConstant, options.Image),
		zap.String(logFieldBranchConstant, deployBranch),
	)

	workflowResult := WorkflowResult{Success: true, Steps: []StepOutcome{}}

	branchCreationResult, branchCreationError := workflow.branchService.CreateBranch(executionContext, BranchCreationOptions{
		Repository:        repository,
		SourceBranch:      baseBranch,
		DestinationBranch: deployBranch,
	})
	if !workflow.recordStep(&workflowResult, stepNameBranchCreationConstant, branchCreationResult, branchCreationError, true) {
		return workflowResult
	}

	imageUpdateResult, imageUpdateError := workflow.imageUpdateService.UpdateImage(executionContext, ImageUpdateOptions{
		Repository: repository,
		BranchName: deployBranch,
		YamlPath:   yamlPath,
		Image:      options.Image,
	})
	if !workflow.recordStep(&workflowResult, stepNameImageUpdateConstant, imageUpdateResult, imageUpdateError, true) {
		return workflowResult
	}

	createdPullRequest, pullRequestCreationError := workflow.pullRequestService.CreatePullRequest(executionContext, PullRequestCreationOptions{
		Repository:        repository,
		SourceBranch:      deployBranch,
		DestinationBranch: baseBranch,
		DeleteAfterMerge:  true,
	})
	if !workflow.recordStep(&workflowResult, stepNamePullRequestCreationConstant, createdPullRequest, pullRequestCreationError, true) {
		return workflowResult
	}

	if options.ApproveMerge {
		mergeResult, mergeError := workflow.pullRequestService.MergePullRequest(executionContext, MergeOptions{
			Reference:        PullRequestReference{Repository: repository, PullRequestID: createdPullRequest.ID},
			DeleteAfterMerge: true,
		})
		// A failed merge leaves the pull request open for manual review and does not
		// flip the overall result: the deployable change is already published.
		workflow.recordStep(&workflowResult, stepNamePullRequestMergeConstant, mergeResult, mergeError, false)
	}

	workflow.logger.Info(
		deployWorkflowFinishedMessageConstant,
		zap.String(logFieldClusterConstant, options.Cluster),
		zap.Bool(logFieldSuccessConstant, workflowResult.Success),
	)

	return workflowResult
}

// recordStep appends a step outcome and reports whether execution may continue.
func (workflow *DeployWorkflow) recordStep(workflowResult *WorkflowResult, stepName string, stepDetail any, stepError error, fatal bool) bool {
	if stepError == nil {
		workflowResult.Steps = append(workflowResult.Steps, StepOutcome{Name: stepName, Success: true, Detail: stepDetail})
		return true
	}

	workflow.logger.Warn(
		deployStepFailedMessageConstant,
		zap.String(logFieldStepConstant, stepName),
		zap.Error(stepError),
	)

	workflowResult.Steps = append(workflowResult.Steps, StepOutcome{Name: stepName, Success: false, Error: NewErrorInfo(stepError)})
	if fatal {
		workflowResult.Success = false
		workflowResult.Error = NewErrorInfo(stepError)
	}
	return false
}

func (workflow *DeployWorkflow) resolveRepositoryName(requestedRepositoryName string) string {
	trimmedRepositoryName := strings.TrimSpace(requestedRepositoryName)
	if len(trimmedRepositoryName) > 0 {
		return trimmedRepositoryName
	}
	return workflow.configuration.RepositoryName
}

func (workflow *DeployWorkflow) deriveBranchName(options DeployOptions) string {
	branchTimestamp := workflow.clock.Now().UTC().Format(deployBranchTimestampLayoutConstant)
	return fmt.Sprintf(deployBranchNameTemplateConstant, options.Cluster, options.Namespace, options.Deployment, branchTimestamp)
}

func validateDeployOptions(options DeployOptions) error {
	if len(strings.TrimSpace(options.Cluster)) == 0 {
		return ErrClusterRequired
	}
	if len(strings.TrimSpace(options.Namespace)) == 0 {
		return ErrNamespaceRequired
	}
	if len(strings.TrimSpace(options.Deployment)) == 0 {
		return ErrDeploymentRequired
	}
	if len(strings.TrimSpace(options.Image)) == 0 {
		return ErrDeployImageRequired
	}
	return nil
}
