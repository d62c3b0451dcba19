package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/gitops"
	"github.com/ngen-tools/ngen/internal/utils"
)

const (
	applicationNameConstant                 = "ngen-gitops"
	applicationShortDescriptionConstant     = "Command-line interface for the ngen GitOps automation tools"
	applicationLongDescriptionConstant      = "ngen-gitops automates Bitbucket branch, image, and pull request workflows for GitOps repositories."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	serverListenAddressConfigKeyConstant    = "server.listen_address"
	gitopsRepositoryNameConfigKeyConstant   = "gitops.deploy.repository_name"
	environmentPrefixConstant               = "NGEN"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	rootCommandInfoMessageConstant          = "ngen-gitops CLI executed"
	rootCommandDebugMessageConstant         = "ngen-gitops CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	defaultListenAddressConstant            = ":8080"
	defaultGitOpsRepositoryNameConstant     = "gitops"
	workflowErrorTemplateConstant           = "%s: %w"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration `mapstructure:"common"`
	Bitbucket BitbucketConfiguration         `mapstructure:"bitbucket"`
	Gitops    GitopsConfiguration            `mapstructure:"gitops"`
	Server    ServerConfiguration            `mapstructure:"server"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// BitbucketConfiguration stores remote API credentials and endpoint overrides.
type BitbucketConfiguration struct {
	Username    string `mapstructure:"username"`
	AppPassword string `mapstructure:"app_password"`
	Workspace   string `mapstructure:"workspace"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	WebBaseURL  string `mapstructure:"web_base_url"`
}

// GitopsConfiguration stores deploy workflow defaults and notification settings.
type GitopsConfiguration struct {
	Deploy           gitops.DeployConfiguration `mapstructure:"deploy"`
	TeamsWebhookURL  string                     `mapstructure:"teams_webhook_url"`
	ScratchDirectory string                     `mapstructure:"scratch_directory"`
}

// ServerConfiguration stores the HTTP surface listen address.
type ServerConfiguration struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	branchBuilder := BranchCommandBuilder{
		LoggerProvider:        application.loggerProvider,
		ConfigurationProvider: application.configurationProvider,
	}
	branchCommand, branchBuildError := branchBuilder.Build()
	if branchBuildError == nil {
		cobraCommand.AddCommand(branchCommand)
	}

	imageBuilder := ImageCommandBuilder{
		LoggerProvider:        application.loggerProvider,
		ConfigurationProvider: application.configurationProvider,
	}
	imageCommand, imageBuildError := imageBuilder.Build()
	if imageBuildError == nil {
		cobraCommand.AddCommand(imageCommand)
	}

	pullRequestBuilder := PullRequestCommandBuilder{
		LoggerProvider:        application.loggerProvider,
		ConfigurationProvider: application.configurationProvider,
	}
	pullRequestCommand, pullRequestBuildError := pullRequestBuilder.Build()
	if pullRequestBuildError == nil {
		cobraCommand.AddCommand(pullRequestCommand)
	}

	deployBuilder := DeployCommandBuilder{
		LoggerProvider:        application.loggerProvider,
		ConfigurationProvider: application.configurationProvider,
	}
	deployCommand, deployBuildError := deployBuilder.Build()
	if deployBuildError == nil {
		cobraCommand.AddCommand(deployCommand)
	}

	serveBuilder := ServeCommandBuilder{
		LoggerProvider:        application.loggerProvider,
		ConfigurationProvider: application.configurationProvider,
	}
	serveCommand, serveBuildError := serveBuilder.Build()
	if serveBuildError == nil {
		cobraCommand.AddCommand(serveCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) loggerProvider() *zap.Logger {
	return application.logger
}

func (application *Application) configurationProvider() ApplicationConfiguration {
	return application.configuration
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:       string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:      string(utils.LogFormatStructured),
		serverListenAddressConfigKeyConstant:  defaultListenAddressConstant,
		gitopsRepositoryNameConfigKeyConstant: defaultGitOpsRepositoryNameConstant,
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

// wrapWorkflowError prefixes a workflow error with its taxonomy kind so the CLI
// surfaces both the kind and the message on a non-zero exit.
func wrapWorkflowError(workflowError error) error {
	if workflowError == nil {
		return nil
	}
	return fmt.Errorf(workflowErrorTemplateConstant, gitops.Kind(workflowError), workflowError)
}

func firstNonBlank(candidateValues ...string) string {
	for _, candidateValue := range candidateValues {
		trimmedValue := strings.TrimSpace(candidateValue)
		if len(trimmedValue) > 0 {
			return trimmedValue
		}
	}
	return ""
}
