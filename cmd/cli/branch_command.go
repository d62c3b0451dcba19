package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	branchCommandUseConstant              = "branch"
	branchCommandShortDescriptionConstant = "Create a remote branch from an existing source branch"
	branchCommandLongDescription          = "branch resolves the source branch head and pushes a new branch pointing at it."
	branchUnexpectedArgumentsMessage      = "branch does not accept positional arguments"
	flagWorkspaceNameConstant             = "workspace"
	flagWorkspaceDescriptionConstant      = "Bitbucket workspace containing the repository"
	flagRepositoryNameConstant            = "repository"
	flagRepositoryDescriptionConstant     = "Repository name within the workspace"
	flagSourceBranchNameConstant          = "source"
	flagSourceBranchDescriptionConstant   = "Branch whose head the new branch starts from"
	flagDestinationBranchNameConstant     = "destination"
	flagDestinationBranchDescription      = "Name of the branch to create"
	flagForceNameConstant                 = "force"
	flagForceDescriptionConstant          = "Request a force push (always rejected; branch creation never force-pushes)"
)

var errBranchUnexpectedArguments = errors.New(branchUnexpectedArgumentsMessage)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the loaded application configuration.
type ConfigurationProvider func() ApplicationConfiguration

// BranchCommandBuilder assembles the Cobra command for branch creation.
type BranchCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the branch command.
func (builder *BranchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   branchCommandUseConstant,
		Short: branchCommandShortDescriptionConstant,
		Long:  branchCommandLongDescription,
		RunE:  builder.run,
	}

	command.Flags().String(flagWorkspaceNameConstant, "", flagWorkspaceDescriptionConstant)
	command.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	command.Flags().String(flagSourceBranchNameConstant, "", flagSourceBranchDescriptionConstant)
	command.Flags().String(flagDestinationBranchNameConstant, "", flagDestinationBranchDescription)
	command.Flags().Bool(flagForceNameConstant, false, flagForceDescriptionConstant)

	return command, nil
}

func (builder *BranchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errBranchUnexpectedArguments
	}

	logger := resolveLogger(builder.LoggerProvider)
	services, servicesError := buildWorkflowServices(builder.ConfigurationProvider(), logger)
	if servicesError != nil {
		return wrapWorkflowError(servicesError)
	}

	workspaceValue, _ := command.Flags().GetString(flagWorkspaceNameConstant)
	repositoryValue, _ := command.Flags().GetString(flagRepositoryNameConstant)
	sourceBranchValue, _ := command.Flags().GetString(flagSourceBranchNameConstant)
	destinationBranchValue, _ := command.Flags().GetString(flagDestinationBranchNameConstant)
	forceValue, _ := command.Flags().GetBool(flagForceNameConstant)

	creationResult, creationError := services.branchService.CreateBranch(command.Context(), gitops.BranchCreationOptions{
		Repository: gitops.RepositoryRef{
			Workspace: firstNonBlank(workspaceValue, services.workspace),
			Name:      repositoryValue,
		},
		SourceBranch:      sourceBranchValue,
		DestinationBranch: destinationBranchValue,
		Force:             forceValue,
	})
	if creationError != nil {
		return wrapWorkflowError(creationError)
	}

	return printResult(command, creationResult)
}

func resolveLogger(loggerProvider LoggerProvider) *zap.Logger {
	if loggerProvider == nil {
		return zap.NewNop()
	}

	logger := loggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
