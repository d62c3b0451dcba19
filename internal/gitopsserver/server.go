// Package gitopsserver exposes the workflow engine over a JSON HTTP API. Every
// workflow error is classified onto its taxonomy kind and rendered in a stable
// error envelope so automation callers can branch on the kind string.
package gitopsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	healthzRoutePatternConstant          = "GET /healthz"
	createBranchRoutePatternConstant     = "POST /api/v1/branches"
	updateImageRoutePatternConstant      = "POST /api/v1/image-updates"
	createPullRequestRoutePattern        = "POST /api/v1/pullrequests"
	mergePullRequestRoutePatternConstant = "POST /api/v1/pullrequests/merge"
	deployRoutePatternConstant           = "POST /api/v1/deploy"
	requestIDHeaderNameConstant          = "X-Request-Id"
	contentTypeHeaderNameConstant        = "Content-Type"
	jsonContentTypeConstant              = "application/json"
	healthStatusValueConstant            = "ok"
	malformedBodyMessageConstant         = "request body is not valid json"
	accessLogMessageConstant             = "http request"
	logFieldRequestIDConstant            = "request_id"
	logFieldMethodConstant               = "method"
	logFieldPathConstant                 = "path"
	logFieldStatusConstant               = "status"
	logFieldDurationConstant             = "duration"
	shutdownGracePeriodConstant          = 10 * time.Second
)

// ErrServicesNotConfigured indicates the server was built without its workflow services.
var ErrServicesNotConfigured = errors.New("workflow services not configured")

// Services groups the workflow services the HTTP API dispatches to.
type Services struct {
	Branches     *gitops.BranchService
	Images       *gitops.ImageUpdateService
	PullRequests *gitops.PullRequestService
	Deployments  *gitops.DeployWorkflow
}

func (services Services) complete() bool {
	return services.Branches != nil && services.Images != nil && services.PullRequests != nil && services.Deployments != nil
}

// Server serves the workflow engine HTTP API.
type Server struct {
	services Services
	logger   *zap.Logger
}

// NewServer constructs a Server over the provided workflow services.
func NewServer(services Services, logger *zap.Logger) (*Server, error) {
	if !services.complete() {
		return nil, ErrServicesNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{services: services, logger: logger}, nil
}

// Handler builds the routed and logged HTTP handler.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(healthzRoutePatternConstant, server.handleHealthz)
	mux.HandleFunc(createBranchRoutePatternConstant, server.handleCreateBranch)
	mux.HandleFunc(updateImageRoutePatternConstant, server.handleUpdateImage)
	mux.HandleFunc(createPullRequestRoutePattern, server.handleCreatePullRequest)
	mux.HandleFunc(mergePullRequestRoutePatternConstant, server.handleMergePullRequest)
	mux.HandleFunc(deployRoutePatternConstant, server.handleDeploy)
	return server.withAccessLogging(mux)
}

// ListenAndServe serves the API until the context is canceled, then drains in-flight requests.
func (server *Server) ListenAndServe(executionContext context.Context, listenAddress string) error {
	httpServer := &http.Server{Addr: listenAddress, Handler: server.Handler()}

	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case serveError := <-serveErrors:
		return serveError
	case <-executionContext.Done():
		shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownGracePeriodConstant)
		defer cancelShutdown()
		return httpServer.Shutdown(shutdownContext)
	}
}

type statusRecordingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (writer *statusRecordingWriter) WriteHeader(statusCode int) {
	writer.statusCode = statusCode
	writer.ResponseWriter.WriteHeader(statusCode)
}

func (server *Server) withAccessLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		requestID := request.Header.Get(requestIDHeaderNameConstant)
		if len(requestID) == 0 {
			requestID = uuid.NewString()
		}
		responseWriter.Header().Set(requestIDHeaderNameConstant, requestID)

		recordingWriter := &statusRecordingWriter{ResponseWriter: responseWriter, statusCode: http.StatusOK}
		requestStart := time.Now()
		next.ServeHTTP(recordingWriter, request)

		server.logger.Info(
			accessLogMessageConstant,
			zap.String(logFieldRequestIDConstant, requestID),
			zap.String(logFieldMethodConstant, request.Method),
			zap.String(logFieldPathConstant, request.URL.Path),
			zap.Int(logFieldStatusConstant, recordingWriter.statusCode),
			zap.Duration(logFieldDurationConstant, time.Since(requestStart)),
		)
	})
}

type healthzResponse struct {
	Status string `json:"status"`
}

func (server *Server) handleHealthz(responseWriter http.ResponseWriter, _ *http.Request) {
	writeJSON(responseWriter, http.StatusOK, healthzResponse{Status: healthStatusValueConstant})
}

type createBranchRequest struct {
	Workspace         string `json:"workspace"`
	Repository        string `json:"repository"`
	SourceBranch      string `json:"source_branch"`
	DestinationBranch string `json:"destination_branch"`
	Force             bool   `json:"force"`
}

func (server *Server) handleCreateBranch(responseWriter http.ResponseWriter, request *http.Request) {
	var requestPayload createBranchRequest
	if !decodeRequest(responseWriter, request, &requestPayload) {
		return
	}

	creationResult, creationError := server.services.Branches.CreateBranch(request.Context(), gitops.BranchCreationOptions{
		Repository:        gitops.RepositoryRef{Workspace: requestPayload.Workspace, Name: requestPayload.Repository},
		SourceBranch:      requestPayload.SourceBranch,
		DestinationBranch: requestPayload.DestinationBranch,
		Force:             requestPayload.Force,
	})
	if creationError != nil {
		writeWorkflowError(responseWriter, creationError)
		return
	}
	writeJSON(responseWriter, http.StatusCreated, creationResult)
}

type updateImageRequest struct {
	Workspace  string `json:"workspace"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	YamlPath   string `json:"yaml_path"`
	Image      string `json:"image"`
	DryRun     bool   `json:"dry_run"`
}

func (server *Server) handleUpdateImage(responseWriter http.ResponseWriter, request *http.Request) {
	var requestPayload updateImageRequest
	if !decodeRequest(responseWriter, request, &requestPayload) {
		return
	}

	updateResult, updateError := server.services.Images.UpdateImage(request.Context(), gitops.ImageUpdateOptions{
		Repository: gitops.RepositoryRef{Workspace: requestPayload.Workspace, Name: requestPayload.Repository},
		BranchName: requestPayload.Branch,
		YamlPath:   requestPayload.YamlPath,
		Image:      requestPayload.Image,
		DryRun:     requestPayload.DryRun,
	})
	if updateError != nil {
		writeWorkflowError(responseWriter, updateError)
		return
	}
	writeJSON(responseWriter, http.StatusOK, updateResult)
}

type createPullRequestRequest struct {
	Workspace         string `json:"workspace"`
	Repository        string `json:"repository"`
	SourceBranch      string `json:"source_branch"`
	DestinationBranch string `json:"destination_branch"`
	DeleteAfterMerge  bool   `json:"delete_after_merge"`
}

func (server *Server) handleCreatePullRequest(responseWriter http.ResponseWriter, request *http.Request) {
	var requestPayload createPullRequestRequest
	if !decodeRequest(responseWriter, request, &requestPayload) {
		return
	}

	createdPullRequest, creationError := server.services.PullRequests.CreatePullRequest(request.Context(), gitops.PullRequestCreationOptions{
		Repository:        gitops.RepositoryRef{Workspace: requestPayload.Workspace, Name: requestPayload.Repository},
		SourceBranch:      requestPayload.SourceBranch,
		DestinationBranch: requestPayload.DestinationBranch,
		DeleteAfterMerge:  requestPayload.DeleteAfterMerge,
	})
	if creationError != nil {
		writeWorkflowError(responseWriter, creationError)
		return
	}
	writeJSON(responseWriter, http.StatusCreated, createdPullRequest)
}

type mergePullRequestRequest struct {
	URL              string `json:"url"`
	Workspace        string `json:"workspace"`
	Repository       string `json:"repository"`
	PullRequestID    int    `json:"pull_request_id"`
	DeleteAfterMerge bool   `json:"delete_after_merge"`
}

func (server *Server) handleMergePullRequest(responseWriter http.ResponseWriter, request *http.Request) {
	var requestPayload mergePullRequestRequest
	if !decodeRequest(responseWriter, request, &requestPayload) {
		return
	}

	mergeResult, mergeError := server.services.PullRequests.MergePullRequest(request.Context(), gitops.MergeOptions{
		Reference: gitops.PullRequestReference{
			URL:           requestPayload.URL,
			Repository:    gitops.RepositoryRef{Workspace: requestPayload.Workspace, Name: requestPayload.Repository},
			PullRequestID: requestPayload.PullRequestID,
		},
		DeleteAfterMerge: requestPayload.DeleteAfterMerge,
	})
	if mergeError != nil {
		writeWorkflowError(responseWriter, mergeError)
		return
	}
	writeJSON(responseWriter, http.StatusOK, mergeResult)
}

type deployRequest struct {
	Workspace    string `json:"workspace"`
	Repository   string `json:"repository"`
	Cluster      string `json:"cluster"`
	Namespace    string `json:"namespace"`
	Deployment   string `json:"deployment"`
	Image        string `json:"image"`
	ApproveMerge bool   `json:"approve_merge"`
}

// handleDeploy always renders the whole workflow result; step failures are part of
// the payload, not transport errors.
func (server *Server) handleDeploy(responseWriter http.ResponseWriter, request *http.Request) {
	var requestPayload deployRequest
	if !decodeRequest(responseWriter, request, &requestPayload) {
		return
	}

	workflowResult := server.services.Deployments.Execute(request.Context(), gitops.DeployOptions{
		Workspace:      requestPayload.Workspace,
		RepositoryName: requestPayload.Repository,
		Cluster:        requestPayload.Cluster,
		Namespace:      requestPayload.Namespace,
		Deployment:     requestPayload.Deployment,
		Image:          requestPayload.Image,
		ApproveMerge:   requestPayload.ApproveMerge,
	})
	writeJSON(responseWriter, http.StatusOK, workflowResult)
}

type errorEnvelope struct {
	Error gitops.ErrorInfo `json:"error"`
}

func decodeRequest(responseWriter http.ResponseWriter, request *http.Request, requestPayload any) bool {
	if decodeError := json.NewDecoder(request.Body).Decode(requestPayload); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, errorEnvelope{
			Error: gitops.ErrorInfo{Kind: gitops.ErrorKindInternal, Message: malformedBodyMessageConstant},
		})
		return false
	}
	return true
}

func writeWorkflowError(responseWriter http.ResponseWriter, workflowError error) {
	errorInfo := gitops.NewErrorInfo(workflowError)
	writeJSON(responseWriter, statusForError(workflowError, errorInfo.Kind), errorEnvelope{Error: *errorInfo})
}

// statusForError maps taxonomy kinds onto HTTP statuses. Input validation sentinels
// classify as client errors even though the taxonomy labels them internal.
func statusForError(workflowError error, errorKind string) int {
	if isValidationError(workflowError) {
		return http.StatusBadRequest
	}

	switch errorKind {
	case gitops.ErrorKindRefNotFound, gitops.ErrorKindFileNotFoundInRepo:
		return http.StatusNotFound
	case gitops.ErrorKindBranchAlreadyExists,
		gitops.ErrorKindNothingToCommit,
		gitops.ErrorKindPushRejected,
		gitops.ErrorKindPullRequestExists,
		gitops.ErrorKindPullRequestNotOpen,
		gitops.ErrorKindMergeConflict:
		return http.StatusConflict
	case gitops.ErrorKindForcePushNotSupported,
		gitops.ErrorKindMalformedPullRequestURL:
		return http.StatusBadRequest
	case gitops.ErrorKindYamlParse:
		return http.StatusUnprocessableEntity
	case gitops.ErrorKindCredentialsMissing:
		return http.StatusUnauthorized
	case gitops.ErrorKindRemoteUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(workflowError error) bool {
	validationSentinels := []error{
		gitops.ErrRepositoryRequired,
		gitops.ErrSourceBranchRequired,
		gitops.ErrDestinationBranchRequired,
		gitops.ErrBranchRefRequired,
		gitops.ErrYamlPathRequired,
		gitops.ErrImageValueRequired,
	}
	for _, validationSentinel := range validationSentinels {
		if errors.Is(workflowError, validationSentinel) {
			return true
		}
	}
	return false
}

func writeJSON(responseWriter http.ResponseWriter, statusCode int, responsePayload any) {
	responseWriter.Header().Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	responseWriter.WriteHeader(statusCode)
	_ = json.NewEncoder(responseWriter).Encode(responsePayload)
}
