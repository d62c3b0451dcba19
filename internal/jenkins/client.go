package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRequestTimeoutConstant          = 30 * time.Second
	apiSuffixConstant                      = "/api/json"
	jobPathTemplateConstant                = "/job/%s" + apiSuffixConstant
	buildPathTemplateConstant              = "/job/%s/build"
	buildWithParametersPathTemplate        = "/job/%s/buildWithParameters"
	jenkinsVersionHeaderNameConstant       = "X-Jenkins"
	locationHeaderNameConstant             = "Location"
	queuePathMarkerConstant                = "/queue/item/"
	acceptHeaderNameConstant               = "Accept"
	jsonContentTypeConstant                = "application/json"
	serverURLRequiredMessageConstant       = "jenkins server url must be provided"
	jobNameRequiredMessageConstant         = "job name must be provided"
	jobNotFoundMessageConstant             = "job not found on jenkins server"
	unauthorizedMessageConstant            = "jenkins rejected the provided credentials"
	serverUnreachableTemplateConstant      = "%s: jenkins unreachable: %w"
	unexpectedStatusTemplateConstant       = "%s: unexpected jenkins status %d"
	requestBuildErrorTemplateConstant      = "%s: failed to build request: %w"
	responseDecodeErrorTemplateConstant    = "%s: failed to decode response: %w"
	checkConnectionOperationConstant       = "check connection"
	listJobsOperationConstant              = "list jobs"
	getJobOperationConstant                = "get job"
	triggerBuildOperationConstant          = "trigger build"
	jenkinsRequestLogMessageConstant       = "jenkins request"
	logFieldMethodConstant                 = "method"
	logFieldURLConstant                    = "url"
	logFieldStatusConstant                 = "status"
	missingQueueLocationMessageConstant    = "jenkins did not return a queue location"
	malformedQueueLocationTemplateConstant = "malformed queue location %q"
)

// Client construction and request sentinels.
var (
	// ErrServerURLRequired indicates the client was built without a server URL.
	ErrServerURLRequired = errors.New(serverURLRequiredMessageConstant)
	// ErrJobNameRequired indicates an operation was requested without a job name.
	ErrJobNameRequired = errors.New(jobNameRequiredMessageConstant)
	// ErrJobNotFound indicates the named job does not exist on the server.
	ErrJobNotFound = errors.New(jobNotFoundMessageConstant)
	// ErrUnauthorized indicates the server rejected the configured credentials.
	ErrUnauthorized = errors.New(unauthorizedMessageConstant)
)

// ClientOptions configures a Jenkins API client.
type ClientOptions struct {
	ServerURL  string
	Username   string
	APIToken   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Jenkins JSON REST API.
type Client struct {
	serverURL  string
	username   string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Client for the given server.
func NewClient(options ClientOptions) (*Client, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(options.ServerURL), "/")
	if len(serverURL) == 0 {
		return nil, ErrServerURLRequired
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeoutConstant}
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		serverURL:  serverURL,
		username:   options.Username,
		apiToken:   options.APIToken,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ServerInfo reports the reachable server and its advertised version.
type ServerInfo struct {
	URL     string `json:"url"`
	Version string `json:"version"`
}

// Job is one entry of the server's top-level job listing.
type Job struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Color string `json:"color"`
}

// JobDetails carries the job attributes ngen-j renders for a single job.
type JobDetails struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Description     string `json:"description"`
	Buildable       bool   `json:"buildable"`
	InQueue         bool   `json:"inQueue"`
	NextBuildNumber int    `json:"nextBuildNumber"`
}

// QueueRef identifies the queue item created by a triggered build.
type QueueRef struct {
	ID       int    `json:"id"`
	Location string `json:"location"`
}

type serverPayload struct {
	Jobs []Job `json:"jobs"`
}

// CheckConnection verifies the server is reachable with the configured credentials
// and returns its advertised version.
func (client *Client) CheckConnection(executionContext context.Context) (ServerInfo, error) {
	response, requestError := client.doRequest(executionContext, checkConnectionOperationConstant, http.MethodGet, apiSuffixConstant)
	if requestError != nil {
		return ServerInfo{}, requestError
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if statusError := client.checkStatus(checkConnectionOperationConstant, response, http.StatusOK); statusError != nil {
		return ServerInfo{}, statusError
	}

	return ServerInfo{URL: client.serverURL, Version: response.Header.Get(jenkinsVersionHeaderNameConstant)}, nil
}

// ListJobs returns the server's top-level jobs.
func (client *Client) ListJobs(executionContext context.Context) ([]Job, error) {
	response, requestError := client.doRequest(executionContext, listJobsOperationConstant, http.MethodGet, apiSuffixConstant)
	if requestError != nil {
		return nil, requestError
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if statusError := client.checkStatus(listJobsOperationConstant, response, http.StatusOK); statusError != nil {
		return nil, statusError
	}

	var payload serverPayload
	if decodeError := json.NewDecoder(response.Body).Decode(&payload); decodeError != nil {
		return nil, fmt.Errorf(responseDecodeErrorTemplateConstant, listJobsOperationConstant, decodeError)
	}
	return payload.Jobs, nil
}

// GetJob fetches the details of one named job.
func (client *Client) GetJob(executionContext context.Context, jobName string) (JobDetails, error) {
	trimmedJobName := strings.TrimSpace(jobName)
	if len(trimmedJobName) == 0 {
		return JobDetails{}, ErrJobNameRequired
	}

	requestPath := fmt.Sprintf(jobPathTemplateConstant, url.PathEscape(trimmedJobName))
	response, requestError := client.doRequest(executionContext, getJobOperationConstant, http.MethodGet, requestPath)
	if requestError != nil {
		return JobDetails{}, requestError
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode == http.StatusNotFound {
		return JobDetails{}, fmt.Errorf("%s: %w", trimmedJobName, ErrJobNotFound)
	}
	if statusError := client.checkStatus(getJobOperationConstant, response, http.StatusOK); statusError != nil {
		return JobDetails{}, statusError
	}

	var jobDetails JobDetails
	if decodeError := json.NewDecoder(response.Body).Decode(&jobDetails); decodeError != nil {
		return JobDetails{}, fmt.Errorf(responseDecodeErrorTemplateConstant, getJobOperationConstant, decodeError)
	}
	return jobDetails, nil
}

// TriggerBuild queues a build of the named job, with parameters when provided, and
// returns the queue item reference parsed from the Location header.
func (client *Client) TriggerBuild(executionContext context.Context, jobName string, buildParameters map[string]string) (QueueRef, error) {
	trimmedJobName := strings.TrimSpace(jobName)
	if len(trimmedJobName) == 0 {
		return QueueRef{}, ErrJobNameRequired
	}

	requestPath := fmt.Sprintf(buildPathTemplateConstant, url.PathEscape(trimmedJobName))
	if len(buildParameters) > 0 {
		parameterValues := url.Values{}
		for parameterName, parameterValue := range buildParameters {
			parameterValues.Set(parameterName, parameterValue)
		}
		requestPath = fmt.Sprintf(buildWithParametersPathTemplate, url.PathEscape(trimmedJobName)) + "?" + parameterValues.Encode()
	}

	response, requestError := client.doRequest(executionContext, triggerBuildOperationConstant, http.MethodPost, requestPath)
	if requestError != nil {
		return QueueRef{}, requestError
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode == http.StatusNotFound {
		return QueueRef{}, fmt.Errorf("%s: %w", trimmedJobName, ErrJobNotFound)
	}
	if statusError := client.checkStatus(triggerBuildOperationConstant, response, http.StatusCreated); statusError != nil {
		return QueueRef{}, statusError
	}

	queueLocation := response.Header.Get(locationHeaderNameConstant)
	if len(queueLocation) == 0 {
		return QueueRef{}, errors.New(missingQueueLocationMessageConstant)
	}

	queueID, parseError := parseQueueID(queueLocation)
	if parseError != nil {
		return QueueRef{}, parseError
	}
	return QueueRef{ID: queueID, Location: queueLocation}, nil
}

func (client *Client) doRequest(executionContext context.Context, operation string, method string, requestPath string) (*http.Response, error) {
	request, requestError := http.NewRequestWithContext(executionContext, method, client.serverURL+requestPath, nil)
	if requestError != nil {
		return nil, fmt.Errorf(requestBuildErrorTemplateConstant, operation, requestError)
	}

	if len(client.username) > 0 {
		request.SetBasicAuth(client.username, client.apiToken)
	}
	request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)

	response, transportError := client.httpClient.Do(request)
	if transportError != nil {
		return nil, fmt.Errorf(serverUnreachableTemplateConstant, operation, transportError)
	}

	client.logger.Debug(
		jenkinsRequestLogMessageConstant,
		zap.String(logFieldMethodConstant, method),
		zap.String(logFieldURLConstant, client.serverURL+requestPath),
		zap.Int(logFieldStatusConstant, response.StatusCode),
	)

	return response, nil
}

func (client *Client) checkStatus(operation string, response *http.Response, expectedStatus int) error {
	switch response.StatusCode {
	case expectedStatus:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		_, _ = io.Copy(io.Discard, response.Body)
		return fmt.Errorf(unexpectedStatusTemplateConstant, operation, response.StatusCode)
	}
}

func parseQueueID(queueLocation string) (int, error) {
	markerIndex := strings.Index(queueLocation, queuePathMarkerConstant)
	if markerIndex < 0 {
		return 0, fmt.Errorf(malformedQueueLocationTemplateConstant, queueLocation)
	}
	identifierSegment := strings.Trim(queueLocation[markerIndex+len(queuePathMarkerConstant):], "/")
	queueID, parseError := strconv.Atoi(identifierSegment)
	if parseError != nil || queueID <= 0 {
		return 0, fmt.Errorf(malformedQueueLocationTemplateConstant, queueLocation)
	}
	return queueID, nil
}
