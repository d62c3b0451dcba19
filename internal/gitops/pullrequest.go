package gitops

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	pullRequestTitleTemplateConstant             = "Merge %s to %s"
	pullRequestURLParseTemplateConstant          = "%s: %w"
	pullRequestReferenceRequiredMessageConstant  = "pull request reference must carry a url or a repository and id"
	pullRequestStateTemplateConstant             = "pull request %d is %s: %w"
	pullRequestCreationNotificationTitleConstant = "Pull request opened"
	pullRequestCreationNotificationTemplate      = "Opened pull request #%d: %s"
	pullRequestMergedNotificationTitleConstant   = "Pull request merged"
	pullRequestMergedNotificationTemplate        = "Merged pull request #%d in %s"
	branchDeletionWarningMessageConstant         = "merged branch deletion failed"
	pullRequestCreatedLogMessageConstant         = "pull request created"
	pullRequestMergedLogMessageConstant          = "pull request merged"
	logFieldPullRequestIDConstant                = "pull_request_id"
	logFieldSourceBranchConstant                 = "source_branch"
	logFieldDestinationBranchConstant            = "destination_branch"
	notificationFactPullRequestConstant          = "pull_request"
	repositoriesPathSegmentConstant              = "repositories"
	pullRequestsPathSegmentConstant              = "pullrequests"
	expectedPullRequestPathSegmentsConstant      = 5
)

// PullRequestReference identifies a pull request by URL or by repository and identifier.
type PullRequestReference struct {
	URL           string
	Repository    RepositoryRef
	PullRequestID int
}

// PullRequestCreationOptions configures one pull request creation operation.
type PullRequestCreationOptions struct {
	Repository        RepositoryRef
	SourceBranch      string
	DestinationBranch string
	DeleteAfterMerge  bool
}

// MergeOptions configures one pull request merge operation.
type MergeOptions struct {
	Reference        PullRequestReference
	DeleteAfterMerge bool
}

// MergeResult reports the merged pull request and the outcome of any post-merge branch deletion.
type MergeResult struct {
	PullRequest          PullRequest `json:"pull_request"`
	MergeCommit          string      `json:"merge_commit"`
	SourceBranchDeleted  bool        `json:"source_branch_deleted"`
	BranchDeletionDetail string      `json:"branch_deletion_detail,omitempty"`
}

// PullRequestServiceDependencies enumerates collaborators required by the pull request service.
type PullRequestServiceDependencies struct {
	RemoteAPI RemoteAPI
	Notifier  Notifier
	Logger    *zap.Logger
}

// PullRequestService creates and merges pull requests through the remote API.
type PullRequestService struct {
	remoteAPI RemoteAPI
	notifier  Notifier
	logger    *zap.Logger
}

// NewPullRequestService constructs a PullRequestService from the provided dependencies.
func NewPullRequestService(dependencies PullRequestServiceDependencies) (*PullRequestService, error) {
	if dependencies.RemoteAPI == nil {
		return nil, ErrRemoteAPINotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PullRequestService{remoteAPI: dependencies.RemoteAPI, notifier: dependencies.Notifier, logger: logger}, nil
}

// CreatePullRequest opens a pull request whose title derives from the branch pair.
// Duplicate detection is left to the remote API so no check-then-create race exists.
func (service *PullRequestService) CreatePullRequest(executionContext context.Context, options PullRequestCreationOptions) (PullRequest, error) {
	if validationError := validateRepository(options.Repository); validationError != nil {
		return PullRequest{}, validationError
	}

	sourceBranch := strings.TrimSpace(options.SourceBranch)
	if len(sourceBranch) == 0 {
		return PullRequest{}, ErrSourceBranchRequired
	}

	destinationBranch := strings.TrimSpace(options.DestinationBranch)
	if len(destinationBranch) == 0 {
		return PullRequest{}, ErrDestinationBranchRequired
	}

	pullRequestTitle := fmt.Sprintf(pullRequestTitleTemplateConstant, sourceBranch, destinationBranch)
	createdPullRequest, creationError := service.remoteAPI.CreatePullRequest(executionContext, options.Repository, CreatePullRequestOptions{
		Title:             pullRequestTitle,
		SourceBranch:      sourceBranch,
		DestinationBranch: destinationBranch,
		CloseSourceBranch: options.DeleteAfterMerge,
	})
	if creationError != nil {
		return PullRequest{}, creationError
	}

	service.logger.Info(
		pullRequestCreatedLogMessageConstant,
		zap.String(logFieldRepositoryConstant, options.Repository.FullName()),
		zap.Int(logFieldPullRequestIDConstant, createdPullRequest.ID),
		zap.String(logFieldSourceBranchConstant, sourceBranch),
		zap.String(logFieldDestinationBranchConstant, destinationBranch),
	)

	service.sendNotification(executionContext, Notification{
		Title:   pullRequestCreationNotificationTitleConstant,
		Message: fmt.Sprintf(pullRequestCreationNotificationTemplate, createdPullRequest.ID, pullRequestTitle),
		Color:   notificationColorSuccessConstant,
		Facts: map[string]string{
			notificationFactRepositoryConstant:  options.Repository.FullName(),
			notificationFactPullRequestConstant: createdPullRequest.URL,
		},
	})

	return createdPullRequest, nil
}

// MergePullRequest merges an open pull request, optionally deleting the source branch afterwards.
// A failed post-merge deletion is reported in the result but never fails the merge.
func (service *PullRequestService) MergePullRequest(executionContext context.Context, options MergeOptions) (MergeResult, error) {
	repository := options.Reference.Repository
	pullRequestID := options.Reference.PullRequestID

	if len(strings.TrimSpace(options.Reference.URL)) > 0 {
		parsedRepository, parsedID, parseError := ParsePullRequestURL(options.Reference.URL)
		if parseError != nil {
			return MergeResult{}, parseError
		}
		repository = parsedRepository
		pullRequestID = parsedID
	}

	if validationError := validateRepository(repository); validationError != nil {
		return MergeResult{}, fmt.Errorf(pullRequestURLParseTemplateConstant, pullRequestReferenceRequiredMessageConstant, validationError)
	}

	currentPullRequest, fetchError := service.remoteAPI.GetPullRequest(executionContext, repository, pullRequestID)
	if fetchError != nil {
		return MergeResult{}, fetchError
	}

	if currentPullRequest.State != PullRequestStateOpen {
		return MergeResult{}, fmt.Errorf(pullRequestStateTemplateConstant, pullRequestID, currentPullRequest.State, ErrPullRequestNotOpen)
	}

	mergedPullRequest, mergeError := service.remoteAPI.MergePullRequest(executionContext, repository, pullRequestID)
	if mergeError != nil {
		return MergeResult{}, mergeError
	}

	mergeResult := MergeResult{PullRequest: mergedPullRequest, MergeCommit: mergedPullRequest.MergeCommit}

	if options.DeleteAfterMerge {
		deletionError := service.remoteAPI.DeleteBranch(executionContext, repository, currentPullRequest.SourceBranch)
		if deletionError != nil {
			mergeResult.BranchDeletionDetail = deletionError.Error()
			service.logger.Warn(
				branchDeletionWarningMessageConstant,
				zap.String(logFieldRepositoryConstant, repository.FullName()),
				zap.String(logFieldBranchConstant, currentPullRequest.SourceBranch),
				zap.Error(deletionError),
			)
		} else {
			mergeResult.SourceBranchDeleted = true
		}
	}

	service.logger.Info(
		pullRequestMergedLogMessageConstant,
		zap.String(logFieldRepositoryConstant, repository.FullName()),
		zap.Int(logFieldPullRequestIDConstant, pullRequestID),
		zap.String(logFieldCommitConstant, mergeResult.MergeCommit),
	)

	service.sendNotification(executionContext, Notification{
		Title:   pullRequestMergedNotificationTitleConstant,
		Message: fmt.Sprintf(pullRequestMergedNotificationTemplate, pullRequestID, repository.FullName()),
		Color:   notificationColorSuccessConstant,
		Facts: map[string]string{
			notificationFactRepositoryConstant:  repository.FullName(),
			notificationFactPullRequestConstant: mergedPullRequest.URL,
			notificationFactCommitConstant:      mergeResult.MergeCommit,
		},
	})

	return mergeResult, nil
}

func (service *PullRequestService) sendNotification(executionContext context.Context, notification Notification) {
	if service.notifier == nil {
		return
	}
	service.notifier.Notify(executionContext, notification)
}

// ParsePullRequestURL recovers the workspace, repository, and identifier from an API pull request URL
// shaped like https://host/2.0/repositories/{workspace}/{repository}/pullrequests/{id}.
func ParsePullRequestURL(pullRequestURL string) (RepositoryRef, int, error) {
	parsedURL, parseError := url.Parse(strings.TrimSpace(pullRequestURL))
	if parseError != nil || len(parsedURL.Host) == 0 {
		return RepositoryRef{}, 0, fmt.Errorf(pullRequestURLParseTemplateConstant, pullRequestURL, ErrMalformedPullRequestURL)
	}

	pathSegments := splitNonEmptyPathSegments(parsedURL.Path)
	repositoriesIndex := -1
	for segmentIndex, pathSegment := range pathSegments {
		if pathSegment == repositoriesPathSegmentConstant {
			repositoriesIndex = segmentIndex
			break
		}
	}

	if repositoriesIndex < 0 || len(pathSegments)-repositoriesIndex < expectedPullRequestPathSegmentsConstant {
		return RepositoryRef{}, 0, fmt.Errorf(pullRequestURLParseTemplateConstant, pullRequestURL, ErrMalformedPullRequestURL)
	}

	workspaceSegment := pathSegments[repositoriesIndex+1]
	repositorySegment := pathSegments[repositoriesIndex+2]
	markerSegment := pathSegments[repositoriesIndex+3]
	identifierSegment := pathSegments[repositoriesIndex+4]

	if markerSegment != pullRequestsPathSegmentConstant {
		return RepositoryRef{}, 0, fmt.Errorf(pullRequestURLParseTemplateConstant, pullRequestURL, ErrMalformedPullRequestURL)
	}

	pullRequestID, identifierError := strconv.Atoi(identifierSegment)
	if identifierError != nil || pullRequestID <= 0 {
		return RepositoryRef{}, 0, fmt.Errorf(pullRequestURLParseTemplateConstant, pullRequestURL, ErrMalformedPullRequestURL)
	}

	return RepositoryRef{Workspace: workspaceSegment, Name: repositorySegment}, pullRequestID, nil
}

func splitNonEmptyPathSegments(urlPath string) []string {
	rawSegments := strings.Split(urlPath, "/")
	pathSegments := make([]string, 0, len(rawSegments))
	for _, rawSegment := range rawSegments {
		if len(rawSegment) > 0 {
			pathSegments = append(pathSegments, rawSegment)
		}
	}
	return pathSegments
}
