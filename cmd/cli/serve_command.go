package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/gitopsserver"
)

const (
	serveCommandUseConstant              = "serve"
	serveCommandShortDescriptionConstant = "Serve the workflow engine over HTTP"
	serveCommandLongDescription          = "serve exposes the branch, image, pull request, and deploy workflows as a JSON HTTP API."
	serveUnexpectedArgumentsMessage      = "serve does not accept positional arguments"
	flagListenAddressNameConstant        = "listen"
	flagListenAddressDescriptionConstant = "Address the HTTP server listens on"
	serverStartingMessageConstant        = "http server starting"
	logFieldListenAddressConstant        = "listen_address"
)

var errServeUnexpectedArguments = errors.New(serveUnexpectedArgumentsMessage)

// ServeCommandBuilder assembles the Cobra command for the HTTP surface.
type ServeCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the serve command.
func (builder *ServeCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   serveCommandUseConstant,
		Short: serveCommandShortDescriptionConstant,
		Long:  serveCommandLongDescription,
		RunE:  builder.run,
	}

	command.Flags().String(flagListenAddressNameConstant, "", flagListenAddressDescriptionConstant)

	return command, nil
}

func (builder *ServeCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errServeUnexpectedArguments
	}

	configuration := builder.ConfigurationProvider()
	logger := resolveLogger(builder.LoggerProvider)
	services, servicesError := buildWorkflowServices(configuration, logger)
	if servicesError != nil {
		return wrapWorkflowError(servicesError)
	}

	apiServer, serverError := gitopsserver.NewServer(gitopsserver.Services{
		Branches:     services.branchService,
		Images:       services.imageUpdateService,
		PullRequests: services.pullRequestService,
		Deployments:  services.deployWorkflow,
	}, logger)
	if serverError != nil {
		return serverError
	}

	listenAddressValue, _ := command.Flags().GetString(flagListenAddressNameConstant)
	listenAddress := firstNonBlank(listenAddressValue, configuration.Server.ListenAddress, defaultListenAddressConstant)

	logger.Info(serverStartingMessageConstant, zap.String(logFieldListenAddressConstant, listenAddress))

	return apiServer.ListenAndServe(command.Context(), listenAddress)
}
