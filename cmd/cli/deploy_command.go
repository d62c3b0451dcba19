package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngen-tools/ngen/internal/gitops"
)

const (
	deployCommandUseConstant              = "deploy"
	deployCommandShortDescriptionConstant = "Run the composite Kubernetes deploy workflow"
	deployCommandLongDescription          = "deploy creates a release branch, rewrites the deployment image, opens a pull request, and optionally merges it."
	deployUnexpectedArgumentsMessage      = "deploy does not accept positional arguments"
	flagClusterNameConstant               = "cluster"
	flagClusterDescriptionConstant        = "Cluster whose base branch receives the change"
	flagNamespaceNameConstant             = "namespace"
	flagNamespaceDescriptionConstant      = "Kubernetes namespace containing the deployment"
	flagDeploymentNameConstant            = "deployment"
	flagDeploymentDescriptionConstant     = "Deployment whose image is updated"
	flagApproveMergeNameConstant          = "approve-merge"
	flagApproveMergeDescriptionConstant   = "Merge the pull request after creating it"
	deployFailureTemplateConstant         = "%s: %s"
)

var errDeployUnexpectedArguments = errors.New(deployUnexpectedArgumentsMessage)

// DeployCommandBuilder assembles the Cobra command for the composite deploy workflow.
type DeployCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the deploy command.
func (builder *DeployCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   deployCommandUseConstant,
		Short: deployCommandShortDescriptionConstant,
		Long:  deployCommandLongDescription,
		RunE:  builder.run,
	}

	command.Flags().String(flagWorkspaceNameConstant, "", flagWorkspaceDescriptionConstant)
	command.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	command.Flags().String(flagClusterNameConstant, "", flagClusterDescriptionConstant)
	command.Flags().String(flagNamespaceNameConstant, "", flagNamespaceDescriptionConstant)
	command.Flags().String(flagDeploymentNameConstant, "", flagDeploymentDescriptionConstant)
	command.Flags().String(flagImageNameConstant, "", flagImageDescriptionConstant)
	command.Flags().Bool(flagApproveMergeNameConstant, false, flagApproveMergeDescriptionConstant)

	return command, nil
}

func (builder *DeployCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errDeployUnexpectedArguments
	}

	logger := resolveLogger(builder.LoggerProvider)
	services, servicesError := buildWorkflowServices(builder.ConfigurationProvider(), logger)
	if servicesError != nil {
		return wrapWorkflowError(servicesError)
	}

	workspaceValue, _ := command.Flags().GetString(flagWorkspaceNameConstant)
	repositoryValue, _ := command.Flags().GetString(flagRepositoryNameConstant)
	clusterValue, _ := command.Flags().GetString(flagClusterNameConstant)
	namespaceValue, _ := command.Flags().GetString(flagNamespaceNameConstant)
	deploymentValue, _ := command.Flags().GetString(flagDeploymentNameConstant)
	imageValue, _ := command.Flags().GetString(flagImageNameConstant)
	approveMergeValue, _ := command.Flags().GetBool(flagApproveMergeNameConstant)

	workflowResult := services.deployWorkflow.Execute(command.Context(), gitops.DeployOptions{
		Workspace:      firstNonBlank(workspaceValue, services.workspace),
		RepositoryName: repositoryValue,
		Cluster:        clusterValue,
		Namespace:      namespaceValue,
		Deployment:     deploymentValue,
		Image:          imageValue,
		ApproveMerge:   approveMergeValue,
	})

	if printError := printResult(command, workflowResult); printError != nil {
		return printError
	}

	if !workflowResult.Success && workflowResult.Error != nil {
		return fmt.Errorf(deployFailureTemplateConstant, workflowResult.Error.Kind, workflowResult.Error.Message)
	}

	return nil
}
