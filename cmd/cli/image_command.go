package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	imageCommandUseConstant              = "image"
	imageCommandShortDescriptionConstant = "Rewrite image references in a repository YAML file"
	imageCommandLongDescription          = "image replaces every image key in a YAML document and commits and pushes the change."
	imageUnexpectedArgumentsMessage      = "image does not accept positional arguments"
	flagBranchNameConstant               = "branch"
	flagBranchDescriptionConstant        = "Branch carrying the YAML document"
	flagYamlPathNameConstant             = "path"
	flagYamlPathDescriptionConstant      = "Path of the YAML file within the repository"
	flagImageNameConstant                = "image"
	flagImageDescriptionConstant         = "Replacement image reference (registry/name:tag)"
	flagDryRunNameConstant               = "dry-run"
	flagDryRunDescriptionConstant        = "Report the would-be changes without committing or pushing"
)

var errImageUnexpectedArguments = errors.New(imageUnexpectedArgumentsMessage)

// ImageCommandBuilder assembles the Cobra command for YAML image updates.
type ImageCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the image command.
func (builder *ImageCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   imageCommandUseConstant,
		Short: imageCommandShortDescriptionConstant,
		Long:  imageCommandLongDescription,
		RunE:  builder.run,
	}

	command.Flags().String(flagWorkspaceNameConstant, "", flagWorkspaceDescriptionConstant)
	command.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	command.Flags().String(flagBranchNameConstant, "", flagBranchDescriptionConstant)
	command.Flags().String(flagYamlPathNameConstant, "", flagYamlPathDescriptionConstant)
	command.Flags().String(flagImageNameConstant, "", flagImageDescriptionConstant)
	command.Flags().Bool(flagDryRunNameConstant, false, flagDryRunDescriptionConstant)

	return command, nil
}

func (builder *ImageCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errImageUnexpectedArguments
	}

	logger := resolveLogger(builder.LoggerProvider)
	services, servicesError := buildWorkflowServices(builder.ConfigurationProvider(), logger)
	if servicesError != nil {
		return wrapWorkflowError(servicesError)
	}

	workspaceValue, _ := command.Flags().GetString(flagWorkspaceNameConstant)
	repositoryValue, _ := command.Flags().GetString(flagRepositoryNameConstant)
	branchValue, _ := command.Flags().GetString(flagBranchNameConstant)
	yamlPathValue, _ := command.Flags().GetString(flagYamlPathNameConstant)
	imageValue, _ := command.Flags().GetString(flagImageNameConstant)
	dryRunValue, _ := command.Flags().GetBool(flagDryRunNameConstant)

	updateResult, updateError := services.imageUpdateService.UpdateImage(command.Context(), gitops.ImageUpdateOptions{
		Repository: gitops.RepositoryRef{
			Workspace: firstNonBlank(workspaceValue, services.workspace),
			Name:      repositoryValue,
		},
		BranchName: branchValue,
		YamlPath:   yamlPathValue,
		Image:      imageValue,
		DryRun:     dryRunValue,
	})
	if updateError != nil {
		return wrapWorkflowError(updateError)
	}

	return printResult(command, updateResult)
}
