package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	remoteAPIMissingMessageConstant           = "remote api not configured"
	workingCopyManagerMissingMessageConstant  = "working copy manager not configured"
	sourceBranchRequiredMessageConstant       = "source branch must be provided"
	destinationBranchRequiredMessageConstant  = "destination branch must be provided"
	repositoryRequiredMessageConstant         = "repository workspace and name must be provided"
	sourceBranchResolutionTemplateConstant    = "source branch %q: %w"
	destinationBranchExistsTemplateConstant   = "destination branch %q: %w"
	destinationExistenceErrorTemplateConstant = "failed to check destination branch %q: %w"
	branchPushFailureTemplateConstant         = "failed to push branch %q: %w"
	gitCheckoutSubcommandConstant             = "checkout"
	gitCheckoutNewBranchFlagConstant          = "-b"
	gitPushSubcommandConstant                 = "push"
	gitOriginRemoteNameConstant               = "origin"
	branchCreatedNotificationTitleConstant    = "Branch created"
	branchCreatedNotificationTemplate         = "Created branch %s from %s in %s"
	notificationColorSuccessConstant          = "00cc00"
	notificationFactRepositoryConstant        = "repository"
	notificationFactBranchConstant            = "branch"
	notificationFactCommitConstant            = "commit"
	branchCreatedLogMessageConstant           = "branch created"
	logFieldRepositoryConstant                = "repository"
	logFieldBranchConstant                    = "branch"
	logFieldCommitConstant                    = "commit"
	pushRejectionMarkerConstant               = "[rejected]"
	refAlreadyExistsMarkerConstant            = "already exists"
)

// Service construction sentinels shared by the workflow services.
var (
	// ErrRemoteAPINotConfigured indicates a service was built without a remote API client.
	ErrRemoteAPINotConfigured = errors.New(remoteAPIMissingMessageConstant)
	// ErrWorkingCopyManagerNotConfigured indicates a service was built without a working copy manager.
	ErrWorkingCopyManagerNotConfigured = errors.New(workingCopyManagerMissingMessageConstant)
	// ErrSourceBranchRequired indicates the source branch option was empty.
	ErrSourceBranchRequired = errors.New(sourceBranchRequiredMessageConstant)
	// ErrDestinationBranchRequired indicates the destination branch option was empty.
	ErrDestinationBranchRequired = errors.New(destinationBranchRequiredMessageConstant)
	// ErrRepositoryRequired indicates the repository reference was incomplete.
	ErrRepositoryRequired = errors.New(repositoryRequiredMessageConstant)
)

// BranchCreationOptions configures one branch creation operation.
type BranchCreationOptions struct {
	Repository        RepositoryRef
	SourceBranch      string
	DestinationBranch string
	Force             bool
}

// BranchCreationResult reports the created branch and its browser URL.
type BranchCreationResult struct {
	Branch     BranchRef `json:"branch"`
	CommitHash string    `json:"commit_hash"`
	URL        string    `json:"url"`
}

// BranchServiceDependencies enumerates collaborators required by the branch service.
type BranchServiceDependencies struct {
	RemoteAPI          RemoteAPI
	GitExecutor        GitExecutor
	WorkingCopyManager *WorkingCopyManager
	Notifier           Notifier
	Logger             *zap.Logger
	Endpoints          Endpoints
}

// BranchService creates remote branches through a local clone, branch, and push sequence
// so that push hooks and permissions apply exactly as they would for a human push.
type BranchService struct {
	remoteAPI          RemoteAPI
	gitExecutor        GitExecutor
	workingCopyManager *WorkingCopyManager
	notifier           Notifier
	logger             *zap.Logger
	endpoints          Endpoints
}

// NewBranchService constructs a BranchService from the provided dependencies.
func NewBranchService(dependencies BranchServiceDependencies) (*BranchService, error) {
	if dependencies.RemoteAPI == nil {
		return nil, ErrRemoteAPINotConfigured
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.WorkingCopyManager == nil {
		return nil, ErrWorkingCopyManagerNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchService{
		remoteAPI:          dependencies.RemoteAPI,
		gitExecutor:        dependencies.GitExecutor,
		workingCopyManager: dependencies.WorkingCopyManager,
		notifier:           dependencies.Notifier,
		logger:             logger,
		endpoints:          dependencies.Endpoints.Sanitize(),
	}, nil
}

// CreateBranch creates the destination branch at the source branch head commit.
func (service *BranchService) CreateBranch(executionContext context.Context, options BranchCreationOptions) (BranchCreationResult, error) {
	if validationError := validateRepository(options.Repository); validationError != nil {
		return BranchCreationResult{}, validationError
	}

	sourceBranch := strings.TrimSpace(options.SourceBranch)
	if len(sourceBranch) == 0 {
		return BranchCreationResult{}, ErrSourceBranchRequired
	}

	destinationBranch := strings.TrimSpace(options.DestinationBranch)
	if len(destinationBranch) == 0 {
		return BranchCreationResult{}, ErrDestinationBranchRequired
	}

	// This operation never force-pushes; a force request is always an error.
	if options.Force {
		return BranchCreationResult{}, ErrForcePushNotSupported
	}

	sourceCommitHash, resolveError := service.remoteAPI.ResolveBranchHead(executionContext, options.Repository, sourceBranch)
	if resolveError != nil {
		return BranchCreationResult{}, fmt.Errorf(sourceBranchResolutionTemplateConstant, sourceBranch, resolveError)
	}

	destinationExists, existenceError := service.remoteAPI.BranchExists(executionContext, options.Repository, destinationBranch)
	if existenceError != nil {
		return BranchCreationResult{}, fmt.Errorf(destinationExistenceErrorTemplateConstant, destinationBranch, existenceError)
	}
	if destinationExists {
		return BranchCreationResult{}, fmt.Errorf(destinationBranchExistsTemplateConstant, destinationBranch, ErrBranchAlreadyExists)
	}

	workingCopy, acquireError := service.workingCopyManager.Acquire(executionContext, AcquireOptions{
		CloneURL:   service.remoteAPI.CloneURL(options.Repository),
		BranchName: sourceBranch,
		Shallow:    true,
	})
	if acquireError != nil {
		return BranchCreationResult{}, acquireError
	}
	defer func() {
		_ = workingCopy.Remove()
	}()

	if _, checkoutError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCheckoutSubcommandConstant, gitCheckoutNewBranchFlagConstant, destinationBranch},
		WorkingDirectory: workingCopy.Path,
	}); checkoutError != nil {
		return BranchCreationResult{}, checkoutError
	}

	if _, pushError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitPushSubcommandConstant, gitOriginRemoteNameConstant, destinationBranch},
		WorkingDirectory:     workingCopy.Path,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptDisabledValueConstant},
	}); pushError != nil {
		return BranchCreationResult{}, classifyBranchPushError(destinationBranch, pushError)
	}

	createdBranch := BranchRef{Repository: options.Repository, Name: destinationBranch}
	creationResult := BranchCreationResult{
		Branch:     createdBranch,
		CommitHash: sourceCommitHash,
		URL:        service.endpoints.BranchWebURL(createdBranch),
	}

	service.logger.Info(
		branchCreatedLogMessageConstant,
		zap.String(logFieldRepositoryConstant, options.Repository.FullName()),
		zap.String(logFieldBranchConstant, destinationBranch),
		zap.String(logFieldCommitConstant, sourceCommitHash),
	)

	service.sendNotification(executionContext, Notification{
		Title:   branchCreatedNotificationTitleConstant,
		Message: fmt.Sprintf(branchCreatedNotificationTemplate, destinationBranch, sourceBranch, options.Repository.FullName()),
		Color:   notificationColorSuccessConstant,
		Facts: map[string]string{
			notificationFactRepositoryConstant: options.Repository.FullName(),
			notificationFactBranchConstant:     destinationBranch,
			notificationFactCommitConstant:     sourceCommitHash,
		},
	})

	return creationResult, nil
}

func (service *BranchService) sendNotification(executionContext context.Context, notification Notification) {
	if service.notifier == nil {
		return
	}
	service.notifier.Notify(executionContext, notification)
}

// classifyBranchPushError maps a rejected branch push onto the taxonomy: a remote
// that reports the ref already exists wins over the generic command failure.
func classifyBranchPushError(destinationBranch string, pushError error) error {
	var commandFailure execshell.CommandFailedError
	if errors.As(pushError, &commandFailure) {
		standardError := strings.ToLower(commandFailure.Result.StandardError)
		if strings.Contains(standardError, refAlreadyExistsMarkerConstant) ||
			(strings.Contains(standardError, pushRejectionMarkerConstant) && strings.Contains(standardError, destinationBranch)) {
			return fmt.Errorf(destinationBranchExistsTemplateConstant, destinationBranch, ErrBranchAlreadyExists)
		}
	}
	return fmt.Errorf(branchPushFailureTemplateConstant, destinationBranch, pushError)
}

func validateRepository(repository RepositoryRef) error {
	if len(strings.TrimSpace(repository.Workspace)) == 0 || len(strings.TrimSpace(repository.Name)) == 0 {
		return ErrRepositoryRequired
	}
	return nil
}
