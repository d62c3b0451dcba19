package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/credentials"
	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	defaultAPIBaseURLConstant            = "https://api.bitbucket.org/2.0"
	defaultCloneHostConstant             = "bitbucket.org"
	defaultRequestTimeoutConstant        = 30 * time.Second
	branchPathTemplateConstant           = "/repositories/%s/%s/refs/branches/%s"
	pullRequestsPathTemplateConstant     = "/repositories/%s/%s/pullrequests"
	pullRequestPathTemplateConstant      = "/repositories/%s/%s/pullrequests/%d"
	pullRequestMergePathTemplateConstant = "/repositories/%s/%s/pullrequests/%d/merge"
	cloneURLTemplateConstant             = "https://%s@%s/%s/%s.git"
	contentTypeHeaderNameConstant        = "Content-Type"
	acceptHeaderNameConstant             = "Accept"
	jsonContentTypeConstant              = "application/json"
	resolveBranchHeadOperationConstant   = "resolve branch head"
	branchExistsOperationConstant        = "check branch existence"
	createPullRequestOperationConstant   = "create pull request"
	getPullRequestOperationConstant      = "get pull request"
	mergePullRequestOperationConstant    = "merge pull request"
	deleteBranchOperationConstant        = "delete branch"
	branchNotFoundTemplateConstant       = "branch %q: %w"
	pullRequestNotFoundTemplateConstant  = "pull request %d: %w"
	duplicatePullRequestMarkerConstant   = "pull request already exists"
	mergeConflictMarkerConstant          = "conflict"
	requestBuildErrorTemplateConstant    = "%s: failed to build request: %w"
	responseDecodeErrorTemplateConstant  = "%s: failed to decode response: %w"
	remoteRequestLogMessageConstant      = "bitbucket request"
	logFieldMethodConstant               = "method"
	logFieldURLConstant                  = "url"
	logFieldStatusConstant               = "status"
)

// ClientOptions configures a Bitbucket API client.
type ClientOptions struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials credentials.Credentials
	Logger      *zap.Logger
}

// Client talks to the Bitbucket Cloud 2.0 REST API and satisfies gitops.RemoteAPI.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials credentials.Credentials
	logger      *zap.Logger
}

var _ gitops.RemoteAPI = (*Client)(nil)

// NewClient constructs a Client. Credentials must be complete before any call is made.
func NewClient(options ClientOptions) (*Client, error) {
	if !options.Credentials.Complete() {
		return nil, credentials.ErrCredentialsMissing
	}

	baseURL := strings.TrimRight(options.BaseURL, "/")
	if len(baseURL) == 0 {
		baseURL = defaultAPIBaseURLConstant
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeoutConstant}
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{baseURL: baseURL, httpClient: httpClient, credentials: options.Credentials, logger: logger}, nil
}

type branchPayload struct {
	Name   string        `json:"name"`
	Target commitPayload `json:"target"`
}

type commitPayload struct {
	Hash string `json:"hash"`
}

type branchEndpointPayload struct {
	Branch branchNamePayload `json:"branch"`
}

type branchNamePayload struct {
	Name string `json:"name"`
}

type linkPayload struct {
	Href string `json:"href"`
}

type pullRequestLinksPayload struct {
	Self linkPayload `json:"self"`
}

type pullRequestPayload struct {
	ID                int                     `json:"id"`
	Title             string                  `json:"title"`
	State             string                  `json:"state"`
	Source            branchEndpointPayload   `json:"source"`
	Destination       branchEndpointPayload   `json:"destination"`
	MergeCommit       *commitPayload          `json:"merge_commit"`
	Links             pullRequestLinksPayload `json:"links"`
	CloseSourceBranch bool                    `json:"close_source_branch"`
}

type createPullRequestPayload struct {
	Title             string                `json:"title"`
	Source            branchEndpointPayload `json:"source"`
	Destination       branchEndpointPayload `json:"destination"`
	CloseSourceBranch bool                  `json:"close_source_branch"`
}

type errorEnvelopePayload struct {
	Error errorDetailPayload `json:"error"`
}

type errorDetailPayload struct {
	Message string `json:"message"`
}

// ResolveBranchHead returns the head commit hash of the named branch.
func (client *Client) ResolveBranchHead(executionContext context.Context, repository gitops.RepositoryRef, branchName string) (string, error) {
	requestPath := fmt.Sprintf(branchPathTemplateConstant, repository.Workspace, repository.Name, url.PathEscape(branchName))

	statusCode, responseBody, requestError := client.doRequest(executionContext, resolveBranchHeadOperationConstant, http.MethodGet, requestPath, nil)
	if requestError != nil {
		return "", requestError
	}

	switch {
	case statusCode == http.StatusOK:
		var branch branchPayload
		if decodeError := json.Unmarshal(responseBody, &branch); decodeError != nil {
			return "", fmt.Errorf(responseDecodeErrorTemplateConstant, resolveBranchHeadOperationConstant, decodeError)
		}
		return branch.Target.Hash, nil
	case statusCode == http.StatusNotFound:
		return "", fmt.Errorf(branchNotFoundTemplateConstant, branchName, gitops.ErrRefNotFound)
	default:
		return "", client.statusError(resolveBranchHeadOperationConstant, statusCode, responseBody)
	}
}

// BranchExists reports whether the named branch is present on the remote.
func (client *Client) BranchExists(executionContext context.Context, repository gitops.RepositoryRef, branchName string) (bool, error) {
	requestPath := fmt.Sprintf(branchPathTemplateConstant, repository.Workspace, repository.Name, url.PathEscape(branchName))

	statusCode, responseBody, requestError := client.doRequest(executionContext, branchExistsOperationConstant, http.MethodGet, requestPath, nil)
	if requestError != nil {
		return false, requestError
	}

	switch statusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, client.statusError(branchExistsOperationConstant, statusCode, responseBody)
	}
}

// CreatePullRequest opens a pull request for the branch pair. A remote rejection
// naming an existing pull request maps onto the duplicate sentinel.
func (client *Client) CreatePullRequest(executionContext context.Context, repository gitops.RepositoryRef, options gitops.CreatePullRequestOptions) (gitops.PullRequest, error) {
	requestPath := fmt.Sprintf(pullRequestsPathTemplateConstant, repository.Workspace, repository.Name)
	requestPayload := createPullRequestPayload{
		Title:             options.Title,
		Source:            branchEndpointPayload{Branch: branchNamePayload{Name: options.SourceBranch}},
		Destination:       branchEndpointPayload{Branch: branchNamePayload{Name: options.DestinationBranch}},
		CloseSourceBranch: options.CloseSourceBranch,
	}

	statusCode, responseBody, requestError := client.doRequest(executionContext, createPullRequestOperationConstant, http.MethodPost, requestPath, requestPayload)
	if requestError != nil {
		return gitops.PullRequest{}, requestError
	}

	switch {
	case statusCode == http.StatusCreated || statusCode == http.StatusOK:
		return client.decodePullRequest(createPullRequestOperationConstant, responseBody)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusConflict:
		remoteMessage := decodeErrorMessage(responseBody)
		if strings.Contains(strings.ToLower(remoteMessage), duplicatePullRequestMarkerConstant) {
			return gitops.PullRequest{}, fmt.Errorf("%s: %w", remoteMessage, gitops.ErrPullRequestExists)
		}
		return gitops.PullRequest{}, client.statusError(createPullRequestOperationConstant, statusCode, responseBody)
	case statusCode == http.StatusNotFound:
		return gitops.PullRequest{}, fmt.Errorf(branchNotFoundTemplateConstant, options.SourceBranch, gitops.ErrRefNotFound)
	default:
		return gitops.PullRequest{}, client.statusError(createPullRequestOperationConstant, statusCode, responseBody)
	}
}

// GetPullRequest fetches the current remote representation of a pull request.
func (client *Client) GetPullRequest(executionContext context.Context, repository gitops.RepositoryRef, pullRequestID int) (gitops.PullRequest, error) {
	requestPath := fmt.Sprintf(pullRequestPathTemplateConstant, repository.Workspace, repository.Name, pullRequestID)

	statusCode, responseBody, requestError := client.doRequest(executionContext, getPullRequestOperationConstant, http.MethodGet, requestPath, nil)
	if requestError != nil {
		return gitops.PullRequest{}, requestError
	}

	switch statusCode {
	case http.StatusOK:
		return client.decodePullRequest(getPullRequestOperationConstant, responseBody)
	case http.StatusNotFound:
		return gitops.PullRequest{}, fmt.Errorf(pullRequestNotFoundTemplateConstant, pullRequestID, gitops.ErrRefNotFound)
	default:
		return gitops.PullRequest{}, client.statusError(getPullRequestOperationConstant, statusCode, responseBody)
	}
}

// MergePullRequest merges an open pull request. Remote conflict reports map onto the
// merge conflict sentinel.
func (client *Client) MergePullRequest(executionContext context.Context, repository gitops.RepositoryRef, pullRequestID int) (gitops.PullRequest, error) {
	requestPath := fmt.Sprintf(pullRequestMergePathTemplateConstant, repository.Workspace, repository.Name, pullRequestID)

	statusCode, responseBody, requestError := client.doRequest(executionContext, mergePullRequestOperationConstant, http.MethodPost, requestPath, struct{}{})
	if requestError != nil {
		return gitops.PullRequest{}, requestError
	}

	switch statusCode {
	case http.StatusOK:
		return client.decodePullRequest(mergePullRequestOperationConstant, responseBody)
	case http.StatusNotFound:
		return gitops.PullRequest{}, fmt.Errorf(pullRequestNotFoundTemplateConstant, pullRequestID, gitops.ErrRefNotFound)
	case http.StatusConflict:
		return gitops.PullRequest{}, fmt.Errorf("%s: %w", decodeErrorMessage(responseBody), gitops.ErrMergeConflict)
	case http.StatusBadRequest:
		remoteMessage := decodeErrorMessage(responseBody)
		if strings.Contains(strings.ToLower(remoteMessage), mergeConflictMarkerConstant) {
			return gitops.PullRequest{}, fmt.Errorf("%s: %w", remoteMessage, gitops.ErrMergeConflict)
		}
		return gitops.PullRequest{}, client.statusError(mergePullRequestOperationConstant, statusCode, responseBody)
	default:
		return gitops.PullRequest{}, client.statusError(mergePullRequestOperationConstant, statusCode, responseBody)
	}
}

// DeleteBranch removes a remote branch.
func (client *Client) DeleteBranch(executionContext context.Context, repository gitops.RepositoryRef, branchName string) error {
	requestPath := fmt.Sprintf(branchPathTemplateConstant, repository.Workspace, repository.Name, url.PathEscape(branchName))

	statusCode, responseBody, requestError := client.doRequest(executionContext, deleteBranchOperationConstant, http.MethodDelete, requestPath, nil)
	if requestError != nil {
		return requestError
	}

	switch statusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf(branchNotFoundTemplateConstant, branchName, gitops.ErrRefNotFound)
	default:
		return client.statusError(deleteBranchOperationConstant, statusCode, responseBody)
	}
}

// CloneURL renders the HTTPS git transport URL carrying the resolved credentials.
func (client *Client) CloneURL(repository gitops.RepositoryRef) string {
	userInfo := url.UserPassword(client.credentials.Username, client.credentials.AppPassword)
	return fmt.Sprintf(cloneURLTemplateConstant, userInfo.String(), defaultCloneHostConstant, repository.Workspace, repository.Name)
}

func (client *Client) doRequest(executionContext context.Context, operation string, method string, requestPath string, requestPayload any) (int, []byte, error) {
	var requestBody io.Reader
	if requestPayload != nil {
		encodedPayload, encodeError := json.Marshal(requestPayload)
		if encodeError != nil {
			return 0, nil, fmt.Errorf(requestBuildErrorTemplateConstant, operation, encodeError)
		}
		requestBody = bytes.NewReader(encodedPayload)
	}

	request, requestError := http.NewRequestWithContext(executionContext, method, client.baseURL+requestPath, requestBody)
	if requestError != nil {
		return 0, nil, fmt.Errorf(requestBuildErrorTemplateConstant, operation, requestError)
	}

	request.SetBasicAuth(client.credentials.Username, client.credentials.AppPassword)
	request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)
	if requestBody != nil {
		request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	}

	response, transportError := client.httpClient.Do(request)
	if transportError != nil {
		return 0, nil, gitops.RemoteUnavailableError{Operation: operation, Cause: transportError}
	}
	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return 0, nil, gitops.RemoteUnavailableError{Operation: operation, Cause: readError}
	}

	client.logger.Debug(
		remoteRequestLogMessageConstant,
		zap.String(logFieldMethodConstant, method),
		zap.String(logFieldURLConstant, client.baseURL+requestPath),
		zap.Int(logFieldStatusConstant, response.StatusCode),
	)

	return response.StatusCode, responseBody, nil
}

func (client *Client) decodePullRequest(operation string, responseBody []byte) (gitops.PullRequest, error) {
	var payload pullRequestPayload
	if decodeError := json.Unmarshal(responseBody, &payload); decodeError != nil {
		return gitops.PullRequest{}, fmt.Errorf(responseDecodeErrorTemplateConstant, operation, decodeError)
	}

	pullRequest := gitops.PullRequest{
		ID:                payload.ID,
		Title:             payload.Title,
		SourceBranch:      payload.Source.Branch.Name,
		DestinationBranch: payload.Destination.Branch.Name,
		State:             gitops.PullRequestState(payload.State),
		URL:               payload.Links.Self.Href,
	}
	if payload.MergeCommit != nil {
		pullRequest.MergeCommit = payload.MergeCommit.Hash
	}
	return pullRequest, nil
}

// statusError maps an unrecognized remote status onto the taxonomy: server errors
// classify as remote unavailability, everything else keeps the raw status.
func (client *Client) statusError(operation string, statusCode int, responseBody []byte) error {
	remoteMessage := decodeErrorMessage(responseBody)
	if statusCode >= http.StatusInternalServerError {
		return gitops.RemoteUnavailableError{
			Operation: operation,
			Cause:     fmt.Errorf("status %d: %s", statusCode, remoteMessage),
		}
	}
	return gitops.RemoteStatusError{Operation: operation, StatusCode: statusCode, Message: remoteMessage}
}

func decodeErrorMessage(responseBody []byte) string {
	var envelope errorEnvelopePayload
	if decodeError := json.Unmarshal(responseBody, &envelope); decodeError == nil && len(envelope.Error.Message) > 0 {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(responseBody))
}
