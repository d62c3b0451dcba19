package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/dispatch"
	"github.com/ngen-tools/ngen/internal/execshell"
	"github.com/ngen-tools/ngen/internal/utils"
)

const (
	applicationNameConstant              = "ngenctl"
	applicationShortDescription          = "Dispatch ngenctl helper scripts with alias support"
	applicationLongDescriptionConstant   = "ngenctl resolves command aliases, locates ngenctl-<command> scripts, and runs them with the original exit code."
	aliasCommandUseConstant              = "alias"
	helpCommandUseConstant               = "help"
	aliasCommandShortDescription         = "Manage command aliases"
	aliasListUseConstant                 = "list"
	aliasListShortDescriptionConstant    = "List the defined aliases"
	aliasSetUseConstant                  = "set <name> <target>"
	aliasSetShortDescriptionConstant     = "Define or replace an alias"
	aliasRemoveUseConstant               = "remove <name>"
	aliasRemoveShortDescriptionConstant  = "Remove an alias"
	logLevelFlagNameConstant             = "log-level"
	logLevelFlagUsageConstant            = "Override the configured log level."
	logFormatFlagNameConstant            = "log-format"
	logFormatFlagUsageConstant           = "Override the configured log format (structured or console)."
	scriptDirectoryEnvironmentName       = "NGENCTL_SCRIPT_DIR"
	aliasListingTemplateConstant         = "%s = %s\n"
	aliasStoreErrorTemplateConstant      = "unable to open alias store: %w"
	loggerCreationErrorTemplate          = "unable to create logger: %w"
	exitErrorTemplateConstant            = "%v\n"
	commandNotFoundExitCodeConstant      = 127
	genericFailureExitCodeConstant       = 1
	aliasSetArgumentCountConstant        = 2
	aliasRemoveArgumentCountConstant     = 1
	aliasSetNameArgumentIndexConstant    = 0
	aliasSetTargetArgumentIndexConstant  = 1
	aliasRemoveNameArgumentIndexConstant = 0
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run separates alias management, handled by Cobra, from script dispatch, which
// passes every remaining argument and the script's exit code straight through.
func run(arguments []string) int {
	if dispatchRequested(arguments) {
		return runDispatch(arguments)
	}

	controlApplication := newControlApplication()
	if executionError := controlApplication.Execute(arguments); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		return genericFailureExitCodeConstant
	}
	return 0
}

// dispatchRequested reports whether the invocation names an external script rather
// than the built-in alias management or help surface.
func dispatchRequested(arguments []string) bool {
	if len(arguments) == 0 {
		return false
	}
	firstArgument := arguments[0]
	if firstArgument == aliasCommandUseConstant || firstArgument == helpCommandUseConstant {
		return false
	}
	if len(firstArgument) > 0 && firstArgument[0] == '-' {
		return false
	}
	return true
}

func runDispatch(arguments []string) int {
	logger := zap.NewNop()

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executorError)
		return genericFailureExitCodeConstant
	}

	aliasStore, storeError := dispatch.DefaultAliasStore()
	if storeError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, fmt.Errorf(aliasStoreErrorTemplateConstant, storeError))
		return genericFailureExitCodeConstant
	}

	dispatcher, dispatcherError := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		AliasStore:      aliasStore,
		ScriptDirectory: os.Getenv(scriptDirectoryEnvironmentName),
		Executor:        shellExecutor,
		Logger:          logger,
	})
	if dispatcherError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, dispatcherError)
		return genericFailureExitCodeConstant
	}

	executionResult, dispatchError := dispatcher.Dispatch(context.Background(), arguments[0], arguments[1:])

	fmt.Fprint(os.Stdout, executionResult.StandardOutput)
	fmt.Fprint(os.Stderr, executionResult.StandardError)

	if dispatchError == nil {
		return executionResult.ExitCode
	}

	var commandFailure execshell.CommandFailedError
	if errors.As(dispatchError, &commandFailure) {
		return commandFailure.Result.ExitCode
	}

	fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, dispatchError)
	if errors.Is(dispatchError, dispatch.ErrCommandNotFound) {
		return commandNotFoundExitCodeConstant
	}
	return genericFailureExitCodeConstant
}

// ControlApplication wires the alias management Cobra command hierarchy.
type ControlApplication struct {
	rootCommand        *cobra.Command
	loggerFactory      *utils.LoggerFactory
	logger             *zap.Logger
	logLevelFlagValue  string
	logFormatFlagValue string
}

func newControlApplication() *ControlApplication {
	application := &ControlApplication{
		loggerFactory: utils.NewLoggerFactory(),
		logger:        zap.NewNop(),
	}

	rootCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescription,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeLogger()
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	rootCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, string(utils.LogLevelInfo), logLevelFlagUsageConstant)
	rootCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, string(utils.LogFormatStructured), logFormatFlagUsageConstant)

	aliasCommand := &cobra.Command{
		Use:   aliasCommandUseConstant,
		Short: aliasCommandShortDescription,
	}

	aliasListCommand := &cobra.Command{
		Use:   aliasListUseConstant,
		Short: aliasListShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  runAliasList,
	}
	aliasCommand.AddCommand(aliasListCommand)

	aliasSetCommand := &cobra.Command{
		Use:   aliasSetUseConstant,
		Short: aliasSetShortDescriptionConstant,
		Args:  cobra.ExactArgs(aliasSetArgumentCountConstant),
		RunE:  runAliasSet,
	}
	aliasCommand.AddCommand(aliasSetCommand)

	aliasRemoveCommand := &cobra.Command{
		Use:   aliasRemoveUseConstant,
		Short: aliasRemoveShortDescriptionConstant,
		Args:  cobra.ExactArgs(aliasRemoveArgumentCountConstant),
		RunE:  runAliasRemove,
	}
	aliasCommand.AddCommand(aliasRemoveCommand)

	rootCommand.AddCommand(aliasCommand)

	application.rootCommand = rootCommand

	return application
}

// Execute runs the alias management command hierarchy over the provided arguments.
func (application *ControlApplication) Execute(arguments []string) error {
	application.rootCommand.SetArgs(arguments)
	return application.rootCommand.Execute()
}

func (application *ControlApplication) initializeLogger() error {
	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.logLevelFlagValue),
		utils.LogFormat(application.logFormatFlagValue),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplate, loggerCreationError)
	}

	application.logger = logger
	return nil
}

func openAliasStore() (dispatch.AliasStore, error) {
	aliasStore, storeError := dispatch.DefaultAliasStore()
	if storeError != nil {
		return dispatch.AliasStore{}, fmt.Errorf(aliasStoreErrorTemplateConstant, storeError)
	}
	return aliasStore, nil
}

func runAliasList(command *cobra.Command, arguments []string) error {
	aliasStore, storeError := openAliasStore()
	if storeError != nil {
		return storeError
	}

	aliasEntries, listError := aliasStore.List()
	if listError != nil {
		return listError
	}

	for _, aliasEntry := range aliasEntries {
		fmt.Fprintf(command.OutOrStdout(), aliasListingTemplateConstant, aliasEntry.Name, aliasEntry.Target)
	}
	return nil
}

func runAliasSet(command *cobra.Command, arguments []string) error {
	aliasStore, storeError := openAliasStore()
	if storeError != nil {
		return storeError
	}
	return aliasStore.Set(arguments[aliasSetNameArgumentIndexConstant], arguments[aliasSetTargetArgumentIndexConstant])
}

func runAliasRemove(command *cobra.Command, arguments []string) error {
	aliasStore, storeError := openAliasStore()
	if storeError != nil {
		return storeError
	}
	return aliasStore.Remove(arguments[aliasRemoveNameArgumentIndexConstant])
}
