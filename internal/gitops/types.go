package gitops

import (
	"context"
	"fmt"
	"time"

	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	repositoryFullNameTemplateConstant = "%s/%s"
	branchWebURLTemplateConstant       = "%s/%s/%s/branch/%s"
	defaultWebBaseURLConstant          = "https://bitbucket.org"
)

// RepositoryRef identifies a single remote repository inside a workspace.
type RepositoryRef struct {
	Workspace string `json:"workspace"`
	Name      string `json:"name"`
}

// FullName renders the workspace-qualified repository name.
func (repository RepositoryRef) FullName() string {
	return fmt.Sprintf(repositoryFullNameTemplateConstant, repository.Workspace, repository.Name)
}

// BranchRef identifies a branch within a remote repository.
type BranchRef struct {
	Repository RepositoryRef `json:"repository"`
	Name       string        `json:"name"`
}

// PullRequestState enumerates remote pull request lifecycle states.
type PullRequestState string

// Pull request state enumerations mirroring the remote API.
const (
	PullRequestStateOpen     PullRequestState = "OPEN"
	PullRequestStateMerged   PullRequestState = "MERGED"
	PullRequestStateDeclined PullRequestState = "DECLINED"
)

// PullRequest represents the remote pull request details consumed by the workflow engine.
type PullRequest struct {
	ID                int              `json:"id"`
	Title             string           `json:"title"`
	SourceBranch      string           `json:"source_branch"`
	DestinationBranch string           `json:"destination_branch"`
	State             PullRequestState `json:"state"`
	URL               string           `json:"url"`
	MergeCommit       string           `json:"merge_commit,omitempty"`
}

// ErrorInfo carries the classified error payload included in workflow results.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StepOutcome records one completed or failed workflow step in execution order.
type StepOutcome struct {
	Name    string     `json:"name"`
	Success bool       `json:"success"`
	Detail  any        `json:"detail,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// WorkflowResult is the composite workflow outcome returned whole to the caller.
type WorkflowResult struct {
	Success bool          `json:"success"`
	Steps   []StepOutcome `json:"steps"`
	Error   *ErrorInfo    `json:"error,omitempty"`
}

// NewErrorInfo classifies a workflow error into its transportable form.
func NewErrorInfo(workflowError error) *ErrorInfo {
	if workflowError == nil {
		return nil
	}
	return &ErrorInfo{Kind: Kind(workflowError), Message: workflowError.Error()}
}

// CreatePullRequestOptions configures a remote pull request creation call.
type CreatePullRequestOptions struct {
	Title             string
	SourceBranch      string
	DestinationBranch string
	CloseSourceBranch bool
}

// RemoteAPI is the remote repository API surface consumed by the workflow engine.
type RemoteAPI interface {
	// ResolveBranchHead returns the current commit hash of the named branch.
	ResolveBranchHead(executionContext context.Context, repository RepositoryRef, branchName string) (string, error)
	// BranchExists reports whether the named branch is present on the remote.
	BranchExists(executionContext context.Context, repository RepositoryRef, branchName string) (bool, error)
	// CreatePullRequest opens a pull request and returns its remote representation.
	CreatePullRequest(executionContext context.Context, repository RepositoryRef, options CreatePullRequestOptions) (PullRequest, error)
	// GetPullRequest fetches the current state of a pull request by identifier.
	GetPullRequest(executionContext context.Context, repository RepositoryRef, pullRequestID int) (PullRequest, error)
	// MergePullRequest merges an open pull request and returns the merged representation.
	MergePullRequest(executionContext context.Context, repository RepositoryRef, pullRequestID int) (PullRequest, error)
	// DeleteBranch removes a remote branch.
	DeleteBranch(executionContext context.Context, repository RepositoryRef, branchName string) error
	// CloneURL renders an authenticated git transport URL for the repository.
	CloneURL(repository RepositoryRef) string
}

// GitExecutor exposes the subset of shell execution used by the workflow engine.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Notification carries a best-effort side-channel message.
type Notification struct {
	Title   string
	Message string
	Color   string
	Facts   map[string]string
}

// Notifier posts best-effort notifications; a false result is informational only.
type Notifier interface {
	Notify(executionContext context.Context, notification Notification) bool
}

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Endpoints configures the browser-facing URL base used when rendering result links.
type Endpoints struct {
	WebBaseURL string `mapstructure:"web_base_url"`
}

// Sanitize applies defaults for unset endpoint values.
func (endpoints Endpoints) Sanitize() Endpoints {
	if len(endpoints.WebBaseURL) == 0 {
		endpoints.WebBaseURL = defaultWebBaseURLConstant
	}
	return endpoints
}

// BranchWebURL renders the browser URL for a remote branch.
func (endpoints Endpoints) BranchWebURL(branch BranchRef) string {
	return fmt.Sprintf(branchWebURLTemplateConstant, endpoints.Sanitize().WebBaseURL, branch.Repository.Workspace, branch.Repository.Name, branch.Name)
}
