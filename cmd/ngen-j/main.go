package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/jenkins"
	"github.com/ngen-tools/ngen/internal/utils"
)

const (
	applicationNameConstant             = "ngen-j"
	applicationShortDescription         = "Command-line interface for the Jenkins REST API"
	applicationLongDescriptionConstant  = "ngen-j checks Jenkins connectivity, lists and inspects jobs, and triggers builds using stored credentials."
	logLevelFlagNameConstant            = "log-level"
	logLevelFlagUsageConstant           = "Override the configured log level."
	logFormatFlagNameConstant           = "log-format"
	logFormatFlagUsageConstant          = "Override the configured log format (structured or console)."
	loginCommandUseConstant             = "login"
	loginCommandShortDescription        = "Verify and persist Jenkins credentials"
	checkCommandUseConstant             = "check"
	checkCommandShortDescription        = "Check connectivity against the configured Jenkins server"
	jobsCommandUseConstant              = "jobs"
	jobsCommandShortDescription         = "List the server's top-level jobs"
	jobCommandUseConstant               = "job <name>"
	jobCommandShortDescription          = "Show details for one job"
	buildCommandUseConstant             = "build <job>"
	buildCommandShortDescription        = "Trigger a build of one job"
	flagServerURLNameConstant           = "url"
	flagServerURLDescriptionConstant    = "Jenkins server URL"
	flagUsernameNameConstant            = "username"
	flagUsernameDescriptionConstant     = "Jenkins account username"
	flagAPITokenNameConstant            = "token"
	flagAPITokenDescriptionConstant     = "Jenkins API token"
	flagBuildParameterNameConstant      = "param"
	flagBuildParameterDescription       = "Build parameter in key=value form (repeatable)"
	loginSucceededMessageConstant       = "login verified, credentials saved"
	loggerCreationErrorTemplate         = "unable to create logger: %w"
	credentialsFileErrorTemplate        = "unable to locate credentials file: %w"
	malformedParameterTemplateConstant  = "malformed build parameter %q, expected key=value"
	jsonIndentPrefixConstant            = ""
	jsonIndentValueConstant             = "  "
	resultEncodingErrorTemplateConstant = "unable to render result: %w"
	exitErrorTemplateConstant           = "%v\n"
	credentialsSavedFieldConstant       = "credentials_file"
	parameterSeparatorConstant          = "="
	parameterSplitPartsConstant         = 2
)

// JenkinsApplication wires the ngen-j Cobra command hierarchy and structured logger.
type JenkinsApplication struct {
	rootCommand        *cobra.Command
	loggerFactory      *utils.LoggerFactory
	logger             *zap.Logger
	logLevelFlagValue  string
	logFormatFlagValue string
	serverURLFlagValue string
	usernameFlagValue  string
	apiTokenFlagValue  string
}

func main() {
	jenkinsApplication := newJenkinsApplication()
	if executionError := jenkinsApplication.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(1)
	}
}

func newJenkinsApplication() *JenkinsApplication {
	application := &JenkinsApplication{
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
	}

	rootCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, string(utils.LogLevelInfo), logLevelFlagUsageConstant)
	rootCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, string(utils.LogFormatStructured), logFormatFlagUsageConstant)
	rootCommand.PersistentFlags().StringVar(&application.serverURLFlagValue, flagServerURLNameConstant, "", flagServerURLDescriptionConstant)
	rootCommand.PersistentFlags().StringVar(&application.usernameFlagValue, flagUsernameNameConstant, "", flagUsernameDescriptionConstant)
	rootCommand.PersistentFlags().StringVar(&application.apiTokenFlagValue, flagAPITokenNameConstant, "", flagAPITokenDescriptionConstant)

	loginCommand := &cobra.Command{
		Use:   loginCommandUseConstant,
		Short: loginCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runLogin,
	}
	rootCommand.AddCommand(loginCommand)

	checkCommand := &cobra.Command{
		Use:   checkCommandUseConstant,
		Short: checkCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runCheck,
	}
	rootCommand.AddCommand(checkCommand)

	jobsCommand := &cobra.Command{
		Use:   jobsCommandUseConstant,
		Short: jobsCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runJobs,
	}
	rootCommand.AddCommand(jobsCommand)

	jobCommand := &cobra.Command{
		Use:   jobCommandUseConstant,
		Short: jobCommandShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE:  application.runJob,
	}
	rootCommand.AddCommand(jobCommand)

	buildCommand := &cobra.Command{
		Use:   buildCommandUseConstant,
		Short: buildCommandShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE:  application.runBuild,
	}
	buildCommand.Flags().StringArray(flagBuildParameterNameConstant, nil, flagBuildParameterDescription)
	rootCommand.AddCommand(buildCommand)

	application.rootCommand = rootCommand

	return application
}

// Execute runs the configured Cobra command hierarchy.
func (application *JenkinsApplication) Execute() error {
	return application.rootCommand.Execute()
}

func (application *JenkinsApplication) initializeLogger() error {
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

func (application *JenkinsApplication) explicitCredentials() jenkins.StoredCredentials {
	return jenkins.StoredCredentials{
		ServerURL: application.serverURLFlagValue,
		Username:  application.usernameFlagValue,
		APIToken:  application.apiTokenFlagValue,
	}
}

func (application *JenkinsApplication) resolveClient() (*jenkins.Client, jenkins.CredentialsFile, error) {
	credentialsFile, fileError := jenkins.DefaultCredentialsFile()
	if fileError != nil {
		return nil, jenkins.CredentialsFile{}, fmt.Errorf(credentialsFileErrorTemplate, fileError)
	}

	resolvedCredentials, resolveError := jenkins.ResolveCredentials(application.explicitCredentials(), credentialsFile)
	if resolveError != nil {
		return nil, credentialsFile, resolveError
	}

	jenkinsClient, clientError := jenkins.NewClient(jenkins.ClientOptions{
		ServerURL: resolvedCredentials.ServerURL,
		Username:  resolvedCredentials.Username,
		APIToken:  resolvedCredentials.APIToken,
		Logger:    application.logger,
	})
	if clientError != nil {
		return nil, credentialsFile, clientError
	}

	return jenkinsClient, credentialsFile, nil
}

func (application *JenkinsApplication) runLogin(command *cobra.Command, arguments []string) error {
	credentialsFile, fileError := jenkins.DefaultCredentialsFile()
	if fileError != nil {
		return fmt.Errorf(credentialsFileErrorTemplate, fileError)
	}

	resolvedCredentials, resolveError := jenkins.ResolveCredentials(application.explicitCredentials(), credentialsFile)
	if resolveError != nil {
		return resolveError
	}

	jenkinsClient, clientError := jenkins.NewClient(jenkins.ClientOptions{
		ServerURL: resolvedCredentials.ServerURL,
		Username:  resolvedCredentials.Username,
		APIToken:  resolvedCredentials.APIToken,
		Logger:    application.logger,
	})
	if clientError != nil {
		return clientError
	}

	if _, connectionError := jenkinsClient.CheckConnection(command.Context()); connectionError != nil {
		return connectionError
	}

	if saveError := credentialsFile.Save(resolvedCredentials); saveError != nil {
		return saveError
	}

	application.logger.Info(loginSucceededMessageConstant, zap.String(credentialsSavedFieldConstant, credentialsFile.Path()))
	fmt.Fprintln(command.OutOrStdout(), loginSucceededMessageConstant)
	return nil
}

func (application *JenkinsApplication) runCheck(command *cobra.Command, arguments []string) error {
	jenkinsClient, _, clientError := application.resolveClient()
	if clientError != nil {
		return clientError
	}

	serverInfo, connectionError := jenkinsClient.CheckConnection(command.Context())
	if connectionError != nil {
		return connectionError
	}

	return printJSON(command, serverInfo)
}

func (application *JenkinsApplication) runJobs(command *cobra.Command, arguments []string) error {
	jenkinsClient, _, clientError := application.resolveClient()
	if clientError != nil {
		return clientError
	}

	jobListing, listError := jenkinsClient.ListJobs(command.Context())
	if listError != nil {
		return listError
	}

	return printJSON(command, jobListing)
}

func (application *JenkinsApplication) runJob(command *cobra.Command, arguments []string) error {
	jenkinsClient, _, clientError := application.resolveClient()
	if clientError != nil {
		return clientError
	}

	jobDetails, jobError := jenkinsClient.GetJob(command.Context(), arguments[0])
	if jobError != nil {
		return jobError
	}

	return printJSON(command, jobDetails)
}

func (application *JenkinsApplication) runBuild(command *cobra.Command, arguments []string) error {
	jenkinsClient, _, clientError := application.resolveClient()
	if clientError != nil {
		return clientError
	}

	parameterValues, _ := command.Flags().GetStringArray(flagBuildParameterNameConstant)
	buildParameters, parametersError := parseBuildParameters(parameterValues)
	if parametersError != nil {
		return parametersError
	}

	queueReference, triggerError := jenkinsClient.TriggerBuild(command.Context(), arguments[0], buildParameters)
	if triggerError != nil {
		return triggerError
	}

	return printJSON(command, queueReference)
}

func parseBuildParameters(parameterValues []string) (map[string]string, error) {
	if len(parameterValues) == 0 {
		return nil, nil
	}

	buildParameters := make(map[string]string, len(parameterValues))
	for _, parameterValue := range parameterValues {
		parameterParts := strings.SplitN(parameterValue, parameterSeparatorConstant, parameterSplitPartsConstant)
		if len(parameterParts) != parameterSplitPartsConstant || len(strings.TrimSpace(parameterParts[0])) == 0 {
			return nil, fmt.Errorf(malformedParameterTemplateConstant, parameterValue)
		}
		buildParameters[parameterParts[0]] = parameterParts[1]
	}
	return buildParameters, nil
}

func printJSON(command *cobra.Command, result any) error {
	encodedResult, encodeError := json.MarshalIndent(result, jsonIndentPrefixConstant, jsonIndentValueConstant)
	if encodeError != nil {
		return fmt.Errorf(resultEncodingErrorTemplateConstant, encodeError)
	}
	fmt.Fprintln(command.OutOrStdout(), string(encodedResult))
	return nil
}
