package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ngen-tools/ngen/internal/execshell"
)

const (
	imageKeyNameConstant                   = "image"
	yamlPathRequiredMessageConstant        = "yaml path must be provided"
	imageValueRequiredMessageConstant      = "image value must be provided"
	branchRefRequiredMessageConstant       = "branch ref must be provided"
	fileReadErrorTemplateConstant          = "failed to read %s: %w"
	fileNotFoundTemplateConstant           = "%s: %w"
	fileWriteErrorTemplateConstant         = "failed to write %s: %w"
	nothingToCommitTemplateConstant        = "%s already references %s: %w"
	imagePushFailureTemplateConstant       = "failed to push %q: %w"
	commitMessageTemplateConstant          = "Update image to %s in %s"
	yamlDocumentIndentConstant             = 2
	gitAddSubcommandConstant               = "add"
	gitCommitSubcommandConstant            = "commit"
	gitCommitMessageFlagConstant           = "-m"
	gitRevParseSubcommandConstant          = "rev-parse"
	gitHeadReferenceConstant               = "HEAD"
	replacementPathRootConstant            = "$"
	replacementPathSegmentTemplateConstant = "%s.%s"
	replacementPathIndexTemplateConstant   = "%s[%d]"
	imageUpdatedNotificationTitleConstant  = "Image updated"
	imageUpdatedNotificationTemplate       = "Updated image to %s in %s on %s"
	imageUpdatedLogMessageConstant         = "image updated"
	imageUpdateDryRunLogMessageConstant    = "image update dry run"
	logFieldFilePathConstant               = "file_path"
	logFieldImageConstant                  = "image"
	logFieldReplacementCountConstant       = "replacement_count"
	notificationFactFileConstant           = "file"
	notificationFactImageConstant          = "image"
)

// Image update input sentinels.
var (
	// ErrYamlPathRequired indicates the in-repository YAML path option was empty.
	ErrYamlPathRequired = errors.New(yamlPathRequiredMessageConstant)
	// ErrImageValueRequired indicates the replacement image string was empty.
	ErrImageValueRequired = errors.New(imageValueRequiredMessageConstant)
	// ErrBranchRefRequired indicates the target branch option was empty.
	ErrBranchRefRequired = errors.New(branchRefRequiredMessageConstant)
)

// ImageUpdateOptions configures one YAML image update operation.
type ImageUpdateOptions struct {
	Repository RepositoryRef
	BranchName string
	YamlPath   string
	Image      string
	DryRun     bool
}

// ImageUpdateResult reports replaced document paths and, for committed updates, the commit hash.
type ImageUpdateResult struct {
	Branch         BranchRef `json:"branch"`
	YamlPath       string    `json:"yaml_path"`
	Image          string    `json:"image"`
	Replacements   []string  `json:"replacements"`
	CommitHash     string    `json:"commit_hash,omitempty"`
	DryRun         bool      `json:"dry_run"`
	UpdatedContent string    `json:"updated_content,omitempty"`
}

// ImageUpdateServiceDependencies enumerates collaborators required by the image update service.
type ImageUpdateServiceDependencies struct {
	RemoteAPI          RemoteAPI
	GitExecutor        GitExecutor
	WorkingCopyManager *WorkingCopyManager
	Notifier           Notifier
	Logger             *zap.Logger
}

// ImageUpdateService rewrites image references inside a repository YAML document and pushes the result.
type ImageUpdateService struct {
	remoteAPI          RemoteAPI
	gitExecutor        GitExecutor
	workingCopyManager *WorkingCopyManager
	notifier           Notifier
	logger             *zap.Logger
}

// NewImageUpdateService constructs an ImageUpdateService from the provided dependencies.
func NewImageUpdateService(dependencies ImageUpdateServiceDependencies) (*ImageUpdateService, error) {
	if dependencies.RemoteAPI == nil {
		return nil, ErrRemoteAPINotConfigured
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.WorkingCopyManager == nil {
		return nil, ErrWorkingCopyManagerNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageUpdateService{
		remoteAPI:          dependencies.RemoteAPI,
		gitExecutor:        dependencies.GitExecutor,
		workingCopyManager: dependencies.WorkingCopyManager,
		notifier:           dependencies.Notifier,
		logger:             logger,
	}, nil
}

// UpdateImage rewrites every image key in the document and commits and pushes the change.
// Dry runs report the would-be changes without writing, committing, or pushing.
func (service *ImageUpdateService) UpdateImage(executionContext context.Context, options ImageUpdateOptions) (ImageUpdateResult, error) {
	if validationError := validateRepository(options.Repository); validationError != nil {
		return ImageUpdateResult{}, validationError
	}

	branchName := strings.TrimSpace(options.BranchName)
	if len(branchName) == 0 {
		return ImageUpdateResult{}, ErrBranchRefRequired
	}

	yamlPath := strings.TrimSpace(options.YamlPath)
	if len(yamlPath) == 0 {
		return ImageUpdateResult{}, ErrYamlPathRequired
	}

	newImage := strings.TrimSpace(options.Image)
	if len(newImage) == 0 {
		return ImageUpdateResult{}, ErrImageValueRequired
	}

	workingCopy, acquireError := service.workingCopyManager.Acquire(executionContext, AcquireOptions{
		CloneURL:   service.remoteAPI.CloneURL(options.Repository),
		BranchName: branchName,
		Shallow:    true,
	})
	if acquireError != nil {
		return ImageUpdateResult{}, acquireError
	}
	defer func() {
		_ = workingCopy.Remove()
	}()

	documentFilePath := filepath.Join(workingCopy.Path, filepath.FromSlash(yamlPath))
	originalContent, readError := os.ReadFile(documentFilePath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return ImageUpdateResult{}, fmt.Errorf(fileNotFoundTemplateConstant, yamlPath, ErrFileNotFoundInRepo)
		}
		return ImageUpdateResult{}, fmt.Errorf(fileReadErrorTemplateConstant, yamlPath, readError)
	}

	var documentRoot yaml.Node
	if parseError := yaml.Unmarshal(originalContent, &documentRoot); parseError != nil {
		return ImageUpdateResult{}, YamlParseError{FilePath: yamlPath, Cause: parseError}
	}

	replacedPaths := rewriteImageValues(&documentRoot, replacementPathRootConstant, newImage)

	updateResult := ImageUpdateResult{
		Branch:       BranchRef{Repository: options.Repository, Name: branchName},
		YamlPath:     yamlPath,
		Image:        newImage,
		Replacements: replacedPaths,
		DryRun:       options.DryRun,
	}

	updatedContent, serializationError := serializeDocument(&documentRoot)
	if serializationError != nil {
		return ImageUpdateResult{}, YamlParseError{FilePath: yamlPath, Cause: serializationError}
	}

	if options.DryRun {
		updateResult.UpdatedContent = string(updatedContent)
		service.logger.Info(
			imageUpdateDryRunLogMessageConstant,
			zap.String(logFieldRepositoryConstant, options.Repository.FullName()),
			zap.String(logFieldFilePathConstant, yamlPath),
			zap.String(logFieldImageConstant, newImage),
			zap.Int(logFieldReplacementCountConstant, len(replacedPaths)),
		)
		return updateResult, nil
	}

	if len(replacedPaths) == 0 {
		return ImageUpdateResult{}, fmt.Errorf(nothingToCommitTemplateConstant, yamlPath, newImage, ErrNothingToCommit)
	}

	if writeError := os.WriteFile(documentFilePath, updatedContent, 0o644); writeError != nil {
		return ImageUpdateResult{}, fmt.Errorf(fileWriteErrorTemplateConstant, yamlPath, writeError)
	}

	if _, addError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitAddSubcommandConstant, filepath.FromSlash(yamlPath)},
		WorkingDirectory: workingCopy.Path,
	}); addError != nil {
		return ImageUpdateResult{}, addError
	}

	commitMessage := fmt.Sprintf(commitMessageTemplateConstant, newImage, yamlPath)
	if _, commitError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCommitSubcommandConstant, gitCommitMessageFlagConstant, commitMessage},
		WorkingDirectory: workingCopy.Path,
	}); commitError != nil {
		return ImageUpdateResult{}, commitError
	}

	revParseResult, revParseError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitHeadReferenceConstant},
		WorkingDirectory: workingCopy.Path,
	})
	if revParseError != nil {
		return ImageUpdateResult{}, revParseError
	}
	updateResult.CommitHash = strings.TrimSpace(revParseResult.StandardOutput)

	if _, pushError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitPushSubcommandConstant, gitOriginRemoteNameConstant, branchName},
		WorkingDirectory:     workingCopy.Path,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptDisabledValueConstant},
	}); pushError != nil {
		// Concurrent pushes are a legitimate race owned by the remote; never retried here.
		return ImageUpdateResult{}, fmt.Errorf(imagePushFailureTemplateConstant, branchName, errors.Join(ErrPushRejected, pushError))
	}

	service.logger.Info(
		imageUpdatedLogMessageConstant,
		zap.String(logFieldRepositoryConstant, options.Repository.FullName()),
		zap.String(logFieldBranchConstant, branchName),
		zap.String(logFieldFilePathConstant, yamlPath),
		zap.String(logFieldImageConstant, newImage),
		zap.Int(logFieldReplacementCountConstant, len(replacedPaths)),
		zap.String(logFieldCommitConstant, updateResult.CommitHash),
	)

	service.sendNotification(executionContext, Notification{
		Title:   imageUpdatedNotificationTitleConstant,
		Message: fmt.Sprintf(imageUpdatedNotificationTemplate, newImage, yamlPath, branchName),
		Color:   notificationColorSuccessConstant,
		Facts: map[string]string{
			notificationFactRepositoryConstant: options.Repository.FullName(),
			notificationFactBranchConstant:     branchName,
			notificationFactFileConstant:       yamlPath,
			notificationFactImageConstant:      newImage,
			notificationFactCommitConstant:     updateResult.CommitHash,
		},
	})

	return updateResult, nil
}

func (service *ImageUpdateService) sendNotification(executionContext context.Context, notification Notification) {
	if service.notifier == nil {
		return
	}
	service.notifier.Notify(executionContext, notification)
}

// rewriteImageValues walks the parsed document and overwrites the scalar value of
// every mapping entry keyed "image" at any depth. Values already equal to the new
// image are left untouched so a second application reports zero replacements.
func rewriteImageValues(node *yaml.Node, nodePath string, newImage string) []string {
	if node == nil {
		return nil
	}

	var replacedPaths []string

	switch node.Kind {
	case yaml.DocumentNode:
		for _, contentNode := range node.Content {
			replacedPaths = append(replacedPaths, rewriteImageValues(contentNode, nodePath, newImage)...)
		}
	case yaml.MappingNode:
		for pairIndex := 0; pairIndex+1 < len(node.Content); pairIndex += 2 {
			keyNode := node.Content[pairIndex]
			valueNode := node.Content[pairIndex+1]
			entryPath := fmt.Sprintf(replacementPathSegmentTemplateConstant, nodePath, keyNode.Value)

			if keyNode.Kind == yaml.ScalarNode && keyNode.Value == imageKeyNameConstant && valueNode.Kind == yaml.ScalarNode {
				if valueNode.Value != newImage {
					valueNode.SetString(newImage)
					replacedPaths = append(replacedPaths, entryPath)
				}
				continue
			}

			replacedPaths = append(replacedPaths, rewriteImageValues(valueNode, entryPath, newImage)...)
		}
	case yaml.SequenceNode:
		for itemIndex, itemNode := range node.Content {
			itemPath := fmt.Sprintf(replacementPathIndexTemplateConstant, nodePath, itemIndex)
			replacedPaths = append(replacedPaths, rewriteImageValues(itemNode, itemPath, newImage)...)
		}
	}

	return replacedPaths
}

func serializeDocument(documentRoot *yaml.Node) ([]byte, error) {
	var serializedBuffer bytes.Buffer
	encoder := yaml.NewEncoder(&serializedBuffer)
	encoder.SetIndent(yamlDocumentIndentConstant)
	if encodeError := encoder.Encode(documentRoot); encodeError != nil {
		return nil, encodeError
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, closeError
	}
	return serializedBuffer.Bytes(), nil
}
