package gitops

import (
	"errors"
	"fmt"

	"github.com/ngen-tools/ngen/internal/credentials"
	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	refNotFoundMessageConstant             = "ref not found on remote"
	branchAlreadyExistsMessageConstant     = "destination branch already exists on remote"
	forcePushNotSupportedMessageConstant   = "force pushes are not supported"
	fileNotFoundInRepoMessageConstant      = "file not found in repository"
	nothingToCommitMessageConstant         = "no replacements were made; nothing to commit"
	pushRejectedMessageConstant            = "push rejected by remote"
	pullRequestExistsMessageConstant       = "an open pull request already exists for the branch pair"
	pullRequestNotOpenMessageConstant      = "pull request is not open"
	malformedPullRequestURLMessageConstant = "pull request url does not match the expected shape"
	mergeConflictMessageConstant           = "pull request could not be merged due to conflicts"
	yamlParseErrorTemplateConstant         = "failed to parse yaml document %s: %s"
	remoteUnavailableTemplateConstant      = "%s: remote unavailable: %s"
	remoteStatusTemplateConstant           = "%s: unexpected remote status %d: %s"
)

// Sentinel errors covering the parameter-free portion of the workflow error taxonomy.
var (
	// ErrRefNotFound indicates a referenced branch or pull request does not exist remotely.
	ErrRefNotFound = errors.New(refNotFoundMessageConstant)
	// ErrBranchAlreadyExists indicates the destination branch is already present on the remote.
	ErrBranchAlreadyExists = errors.New(branchAlreadyExistsMessageConstant)
	// ErrForcePushNotSupported indicates a caller requested a force push, which branch creation never performs.
	ErrForcePushNotSupported = errors.New(forcePushNotSupportedMessageConstant)
	// ErrFileNotFoundInRepo indicates the requested file is absent from the working copy.
	ErrFileNotFoundInRepo = errors.New(fileNotFoundInRepoMessageConstant)
	// ErrNothingToCommit indicates the rewritten document is byte-identical to the original.
	ErrNothingToCommit = errors.New(nothingToCommitMessageConstant)
	// ErrPushRejected indicates the remote refused a push, typically a non-fast-forward rejection.
	ErrPushRejected = errors.New(pushRejectedMessageConstant)
	// ErrPullRequestExists indicates an open pull request already covers the source and destination pair.
	ErrPullRequestExists = errors.New(pullRequestExistsMessageConstant)
	// ErrPullRequestNotOpen indicates a merge was attempted against a merged or declined pull request.
	ErrPullRequestNotOpen = errors.New(pullRequestNotOpenMessageConstant)
	// ErrMalformedPullRequestURL indicates a pull request URL could not be parsed.
	ErrMalformedPullRequestURL = errors.New(malformedPullRequestURLMessageConstant)
	// ErrMergeConflict indicates the remote reported merge conflicts.
	ErrMergeConflict = errors.New(mergeConflictMessageConstant)
)

// YamlParseError reports a malformed YAML document inside the repository.
type YamlParseError struct {
	FilePath string
	Cause    error
}

// Error describes the parse failure.
func (parseError YamlParseError) Error() string {
	return fmt.Sprintf(yamlParseErrorTemplateConstant, parseError.FilePath, parseError.Cause)
}

// Unwrap exposes the underlying YAML error.
func (parseError YamlParseError) Unwrap() error {
	return parseError.Cause
}

// RemoteUnavailableError reports transport failures or server errors from the remote API.
type RemoteUnavailableError struct {
	Operation string
	Cause     error
}

// Error describes the remote failure.
func (remoteError RemoteUnavailableError) Error() string {
	return fmt.Sprintf(remoteUnavailableTemplateConstant, remoteError.Operation, remoteError.Cause)
}

// Unwrap exposes the underlying transport error.
func (remoteError RemoteUnavailableError) Unwrap() error {
	return remoteError.Cause
}

// RemoteStatusError reports a remote API status the operation mapping does not recognize.
type RemoteStatusError struct {
	Operation  string
	StatusCode int
	Message    string
}

// Error describes the unexpected status.
func (statusError RemoteStatusError) Error() string {
	return fmt.Sprintf(remoteStatusTemplateConstant, statusError.Operation, statusError.StatusCode, statusError.Message)
}

// Error kind names exposed to CLI and HTTP callers.
const (
	ErrorKindRefNotFound             = "RefNotFoundError"
	ErrorKindBranchAlreadyExists     = "BranchAlreadyExistsError"
	ErrorKindForcePushNotSupported   = "ForcePushNotSupportedError"
	ErrorKindFileNotFoundInRepo      = "FileNotFoundInRepoError"
	ErrorKindYamlParse               = "YamlParseError"
	ErrorKindNothingToCommit         = "NothingToCommitError"
	ErrorKindPushRejected            = "PushRejectedError"
	ErrorKindPullRequestExists       = "PullRequestExistsError"
	ErrorKindPullRequestNotOpen      = "PullRequestNotOpenError"
	ErrorKindMalformedPullRequestURL = "MalformedPullRequestUrlError"
	ErrorKindMergeConflict           = "MergeConflictError"
	ErrorKindCredentialsMissing      = "CredentialsMissingError"
	ErrorKindVCSCommand              = "VcsCommandError"
	ErrorKindRemoteUnavailable       = "RemoteUnavailableError"
	ErrorKindInternal                = "InternalError"
)

var sentinelErrorKinds = []struct {
	sentinel error
	kind     string
}{
	{sentinel: ErrRefNotFound, kind: ErrorKindRefNotFound},
	{sentinel: ErrBranchAlreadyExists, kind: ErrorKindBranchAlreadyExists},
	{sentinel: ErrForcePushNotSupported, kind: ErrorKindForcePushNotSupported},
	{sentinel: ErrFileNotFoundInRepo, kind: ErrorKindFileNotFoundInRepo},
	{sentinel: ErrNothingToCommit, kind: ErrorKindNothingToCommit},
	{sentinel: ErrPushRejected, kind: ErrorKindPushRejected},
	{sentinel: ErrPullRequestExists, kind: ErrorKindPullRequestExists},
	{sentinel: ErrPullRequestNotOpen, kind: ErrorKindPullRequestNotOpen},
	{sentinel: ErrMalformedPullRequestURL, kind: ErrorKindMalformedPullRequestURL},
	{sentinel: ErrMergeConflict, kind: ErrorKindMergeConflict},
	{sentinel: credentials.ErrCredentialsMissing, kind: ErrorKindCredentialsMissing},
}

// Kind classifies any workflow error onto its taxonomy name. Unknown errors classify as InternalError.
func Kind(workflowError error) string {
	if workflowError == nil {
		return ""
	}

	for _, sentinelEntry := range sentinelErrorKinds {
		if errors.Is(workflowError, sentinelEntry.sentinel) {
			return sentinelEntry.kind
		}
	}

	var yamlParseError YamlParseError
	if errors.As(workflowError, &yamlParseError) {
		return ErrorKindYamlParse
	}

	var remoteUnavailableError RemoteUnavailableError
	if errors.As(workflowError, &remoteUnavailableError) {
		return ErrorKindRemoteUnavailable
	}

	var commandFailedError execshell.CommandFailedError
	if errors.As(workflowError, &commandFailedError) {
		return ErrorKindVCSCommand
	}

	return ErrorKindInternal
}
