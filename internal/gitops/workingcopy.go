package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	workingCopyDirectoryPatternConstant      = "ngen-gitops-*"
	gitCloneSubcommandConstant               = "clone"
	gitCloneDepthFlagConstant                = "--depth"
	gitCloneDepthValueConstant               = "1"
	gitCloneBranchFlagConstant               = "--branch"
	gitCloneSingleBranchFlagConstant         = "--single-branch"
	gitTerminalPromptEnvironmentNameConstant = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledValueConstant   = "0"
	gitExecutorMissingMessageConstant        = "git executor not configured"
	cloneURLRequiredMessageConstant          = "clone url must be provided"
	branchNameRequiredMessageConstant        = "branch name must be provided"
	scratchDirectoryErrorTemplateConstant    = "failed to create scratch directory: %w"
	cloneFailureTemplateConstant             = "failed to clone %q: %w"
)

// Construction and acquisition sentinels for working copy management.
var (
	// ErrGitExecutorNotConfigured indicates the working copy manager was built without a git executor.
	ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)
	// ErrCloneURLRequired indicates an acquisition was requested without a clone URL.
	ErrCloneURLRequired = errors.New(cloneURLRequiredMessageConstant)
	// ErrBranchNameRequired indicates an acquisition was requested without a branch name.
	ErrBranchNameRequired = errors.New(branchNameRequiredMessageConstant)
)

// AcquireOptions configures one working copy acquisition.
type AcquireOptions struct {
	CloneURL   string
	BranchName string
	Shallow    bool
}

// WorkingCopy is an ephemeral local checkout owned by exactly one workflow invocation.
type WorkingCopy struct {
	Path    string
	removed bool
}

// Remove deletes the working copy directory. Removal is idempotent and must run on every exit path.
func (workingCopy *WorkingCopy) Remove() error {
	if workingCopy == nil || workingCopy.removed {
		return nil
	}
	workingCopy.removed = true
	return os.RemoveAll(workingCopy.Path)
}

// WorkingCopyManager acquires scoped working copies in a scratch directory.
type WorkingCopyManager struct {
	gitExecutor      GitExecutor
	scratchDirectory string
}

// NewWorkingCopyManager constructs a WorkingCopyManager. An empty scratch directory selects the system temporary directory.
func NewWorkingCopyManager(gitExecutor GitExecutor, scratchDirectory string) (*WorkingCopyManager, error) {
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &WorkingCopyManager{gitExecutor: gitExecutor, scratchDirectory: scratchDirectory}, nil
}

// Acquire clones the requested branch into a fresh scratch directory and returns the owned working copy.
// The scratch directory is deleted when the clone fails; callers must defer Remove on success.
func (manager *WorkingCopyManager) Acquire(executionContext context.Context, options AcquireOptions) (*WorkingCopy, error) {
	if len(options.CloneURL) == 0 {
		return nil, ErrCloneURLRequired
	}
	if len(options.BranchName) == 0 {
		return nil, ErrBranchNameRequired
	}

	workingCopyDirectory, directoryError := os.MkdirTemp(manager.scratchDirectory, workingCopyDirectoryPatternConstant)
	if directoryError != nil {
		return nil, fmt.Errorf(scratchDirectoryErrorTemplateConstant, directoryError)
	}

	cloneArguments := []string{gitCloneSubcommandConstant}
	if options.Shallow {
		cloneArguments = append(cloneArguments, gitCloneDepthFlagConstant, gitCloneDepthValueConstant)
	}
	cloneArguments = append(cloneArguments,
		gitCloneBranchFlagConstant,
		options.BranchName,
		gitCloneSingleBranchFlagConstant,
		options.CloneURL,
		workingCopyDirectory,
	)

	_, cloneError := manager.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            cloneArguments,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptDisabledValueConstant},
	})
	if cloneError != nil {
		_ = os.RemoveAll(workingCopyDirectory)
		return nil, fmt.Errorf(cloneFailureTemplateConstant, options.BranchName, cloneError)
	}

	return &WorkingCopy{Path: workingCopyDirectory}, nil
}
