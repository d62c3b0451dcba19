package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	scriptNamePrefixConstant            = "ngenctl-"
	systemScriptDirectoryConstant       = "/usr/local/bin"
	commandRequiredMessageConstant      = "command must be provided"
	commandNotFoundTemplateConstant     = "command %q: %w"
	commandNotFoundMessageConstant      = "no matching ngenctl script found"
	executorRequiredMessageConstant     = "shell executor not configured"
	dispatchingLogMessageConstant       = "dispatching command"
	logFieldCommandConstant             = "command"
	logFieldScriptConstant              = "script"
	logFieldArgumentsConstant           = "arguments"
	executableCheckFailedTemplateString = "failed to inspect candidate script %s: %w"
)

// Dispatcher sentinels.
var (
	// ErrCommandRequired indicates a dispatch was requested without a command name.
	ErrCommandRequired = errors.New(commandRequiredMessageConstant)
	// ErrCommandNotFound indicates no script matches the resolved command name.
	ErrCommandNotFound = errors.New(commandNotFoundMessageConstant)
	// ErrExecutorNotConfigured indicates the dispatcher was built without a shell executor.
	ErrExecutorNotConfigured = errors.New(executorRequiredMessageConstant)
)

// ScriptExecutor is the execution surface the dispatcher needs from the shell layer.
type ScriptExecutor interface {
	ExecuteProgram(executionContext context.Context, programName string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	AliasStore      AliasStore
	ScriptDirectory string
	Executor        ScriptExecutor
	Logger          *zap.Logger
}

// Dispatcher resolves a command name through the alias store, locates the backing
// ngenctl-<command> script, and executes it.
type Dispatcher struct {
	aliasStore        AliasStore
	scriptDirectories []string
	executor          ScriptExecutor
	logger            *zap.Logger
}

// NewDispatcher constructs a Dispatcher. The configured script directory, when set,
// is searched before the system directory.
func NewDispatcher(options DispatcherOptions) (*Dispatcher, error) {
	if options.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}

	scriptDirectories := []string{}
	if len(strings.TrimSpace(options.ScriptDirectory)) > 0 {
		scriptDirectories = append(scriptDirectories, options.ScriptDirectory)
	}
	scriptDirectories = append(scriptDirectories, systemScriptDirectoryConstant)

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		aliasStore:        options.AliasStore,
		scriptDirectories: scriptDirectories,
		executor:          options.Executor,
		logger:            logger,
	}, nil
}

// LocateScript finds the executable backing a command name, without alias resolution.
func (dispatcher *Dispatcher) LocateScript(commandName string) (string, error) {
	trimmedCommandName := strings.TrimSpace(commandName)
	if len(trimmedCommandName) == 0 {
		return "", ErrCommandRequired
	}

	scriptFileName := scriptNamePrefixConstant + trimmedCommandName
	for _, scriptDirectory := range dispatcher.scriptDirectories {
		candidatePath := filepath.Join(scriptDirectory, scriptFileName)
		fileInfo, statError := os.Stat(candidatePath)
		if statError != nil {
			if os.IsNotExist(statError) {
				continue
			}
			return "", fmt.Errorf(executableCheckFailedTemplateString, candidatePath, statError)
		}
		if fileInfo.Mode().IsRegular() && fileInfo.Mode().Perm()&0o111 != 0 {
			return candidatePath, nil
		}
	}
	return "", fmt.Errorf(commandNotFoundTemplateConstant, trimmedCommandName, ErrCommandNotFound)
}

// Dispatch resolves aliases, locates the script, and executes it with the remaining
// arguments. The script's execution result is returned whole so callers can pass the
// exit code through.
func (dispatcher *Dispatcher) Dispatch(executionContext context.Context, commandName string, commandArguments []string) (execshell.ExecutionResult, error) {
	if len(strings.TrimSpace(commandName)) == 0 {
		return execshell.ExecutionResult{}, ErrCommandRequired
	}

	resolvedName, resolvedArguments, resolveError := dispatcher.aliasStore.Resolve(commandName, commandArguments)
	if resolveError != nil {
		return execshell.ExecutionResult{}, resolveError
	}

	scriptPath, locateError := dispatcher.LocateScript(resolvedName)
	if locateError != nil {
		return execshell.ExecutionResult{}, locateError
	}

	dispatcher.logger.Debug(
		dispatchingLogMessageConstant,
		zap.String(logFieldCommandConstant, resolvedName),
		zap.String(logFieldScriptConstant, scriptPath),
		zap.Strings(logFieldArgumentsConstant, resolvedArguments),
	)

	return dispatcher.executor.ExecuteProgram(executionContext, scriptPath, execshell.CommandDetails{
		Arguments: resolvedArguments,
	})
}
