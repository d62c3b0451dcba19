package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	pullRequestCommandUseConstant            = "pr"
	pullRequestCommandShortDescription       = "Create and merge pull requests"
	pullRequestCreateUseConstant             = "create"
	pullRequestCreateShortDescription        = "Open a pull request between two branches"
	pullRequestMergeUseConstant              = "merge"
	pullRequestMergeShortDescription         = "Merge an open pull request by URL or by identifier"
	pullRequestUnexpectedArgumentsMessage    = "pr subcommands do not accept positional arguments"
	flagDeleteSourceBranchNameConstant       = "delete-source-branch"
	flagDeleteSourceBranchDescription        = "Delete the source branch after the merge completes"
	flagPullRequestURLNameConstant           = "url"
	flagPullRequestURLDescriptionConstant    = "Pull request URL identifying the pull request to merge"
	flagPullRequestIDNameConstant            = "id"
	flagPullRequestIDDescriptionConstant     = "Pull request identifier within the repository"
	flagCreateSourceDescriptionConstant      = "Source branch of the pull request"
	flagCreateDestinationDescriptionConstant = "Destination branch of the pull request"
)

var errPullRequestUnexpectedArguments = errors.New(pullRequestUnexpectedArgumentsMessage)

// PullRequestCommandBuilder assembles the pr command group with create and merge subcommands.
type PullRequestCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the pr command group.
func (builder *PullRequestCommandBuilder) Build() (*cobra.Command, error) {
	groupCommand := &cobra.Command{
		Use:   pullRequestCommandUseConstant,
		Short: pullRequestCommandShortDescription,
	}

	createCommand := &cobra.Command{
		Use:   pullRequestCreateUseConstant,
		Short: pullRequestCreateShortDescription,
		RunE:  builder.runCreate,
	}
	createCommand.Flags().String(flagWorkspaceNameConstant, "", flagWorkspaceDescriptionConstant)
	createCommand.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	createCommand.Flags().String(flagSourceBranchNameConstant, "", flagCreateSourceDescriptionConstant)
	createCommand.Flags().String(flagDestinationBranchNameConstant, "", flagCreateDestinationDescriptionConstant)
	createCommand.Flags().Bool(flagDeleteSourceBranchNameConstant, false, flagDeleteSourceBranchDescription)
	groupCommand.AddCommand(createCommand)

	mergeCommand := &cobra.Command{
		Use:   pullRequestMergeUseConstant,
		Short: pullRequestMergeShortDescription,
		RunE:  builder.runMerge,
	}
	mergeCommand.Flags().String(flagPullRequestURLNameConstant, "", flagPullRequestURLDescriptionConstant)
	mergeCommand.Flags().String(flagWorkspaceNameConstant, "", flagWorkspaceDescriptionConstant)
	mergeCommand.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	mergeCommand.Flags().Int(flagPullRequestIDNameConstant, 0, flagPullRequestIDDescriptionConstant)
	mergeCommand.Flags().Bool(flagDeleteSourceBranchNameConstant, false, flagDeleteSourceBranchDescription)
	groupCommand.AddCommand(mergeCommand)

	return groupCommand, nil
}

func (builder *PullRequestCommandBuilder) runCreate(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errPullRequestUnexpectedArguments
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
	deleteAfterMergeValue, _ := command.Flags().GetBool(flagDeleteSourceBranchNameConstant)

	createdPullRequest, creationError := services.pullRequestService.CreatePullRequest(command.Context(), gitops.PullRequestCreationOptions{
		Repository: gitops.RepositoryRef{
			Workspace: firstNonBlank(workspaceValue, services.workspace),
			Name:      repositoryValue,
		},
		SourceBranch:      sourceBranchValue,
		DestinationBranch: destinationBranchValue,
		DeleteAfterMerge:  deleteAfterMergeValue,
	})
	if creationError != nil {
		return wrapWorkflowError(creationError)
	}

	return printResult(command, createdPullRequest)
}

func (builder *PullRequestCommandBuilder) runMerge(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errPullRequestUnexpectedArguments
	}

	logger := resolveLogger(builder.LoggerProvider)
	services, servicesError := buildWorkflowServices(builder.ConfigurationProvider(), logger)
	if servicesError != nil {
		return wrapWorkflowError(servicesError)
	}

	pullRequestURLValue, _ := command.Flags().GetString(flagPullRequestURLNameConstant)
	workspaceValue, _ := command.Flags().GetString(flagWorkspaceNameConstant)
	repositoryValue, _ := command.Flags().GetString(flagRepositoryNameConstant)
	pullRequestIDValue, _ := command.Flags().GetInt(flagPullRequestIDNameConstant)
	deleteAfterMergeValue, _ := command.Flags().GetBool(flagDeleteSourceBranchNameConstant)

	mergeResult, mergeError := services.pullRequestService.MergePullRequest(command.Context(), gitops.MergeOptions{
		Reference: gitops.PullRequestReference{
			URL: pullRequestURLValue,
			Repository: gitops.RepositoryRef{
				Workspace: firstNonBlank(workspaceValue, services.workspace),
				Name:      repositoryValue,
			},
			PullRequestID: pullRequestIDValue,
		},
		DeleteAfterMerge: deleteAfterMergeValue,
	})
	if mergeError != nil {
		return wrapWorkflowError(mergeError)
	}

	return printResult(command, mergeResult)
}
