package jenkins

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultCredentialsFileNameConstant    = ".ngen"
	credentialsFilePermissionsConstant    = 0o600
	serverURLVariableNameConstant         = "JENKINS_URL"
	usernameVariableNameConstant          = "JENKINS_USERNAME"
	apiTokenVariableNameConstant          = "JENKINS_API_TOKEN"
	credentialsIncompleteMessageConstant  = "jenkins credentials are not fully configured"
	credentialsReadErrorTemplateConstant  = "failed to read credentials file %s: %w"
	credentialsWriteErrorTemplateConstant = "failed to write credentials file %s: %w"
	environmentLineTemplateConstant       = "%s=%s\n"
	environmentLineSeparatorConstant      = "="
	commentPrefixConstant                 = "#"
)

// ErrJenkinsCredentialsIncomplete indicates no complete credential triple could be resolved.
var ErrJenkinsCredentialsIncomplete = errors.New(credentialsIncompleteMessageConstant)

// StoredCredentials is the credential triple persisted for ngen-j.
type StoredCredentials struct {
	ServerURL string
	Username  string
	APIToken  string
}

// Complete reports whether every credential field is populated.
func (credentials StoredCredentials) Complete() bool {
	return len(strings.TrimSpace(credentials.ServerURL)) > 0 &&
		len(strings.TrimSpace(credentials.Username)) > 0 &&
		len(strings.TrimSpace(credentials.APIToken)) > 0
}

// CredentialsFile loads and saves the user-level env-style credentials file.
type CredentialsFile struct {
	path string
}

// NewCredentialsFile constructs a CredentialsFile at an explicit path.
func NewCredentialsFile(path string) CredentialsFile {
	return CredentialsFile{path: path}
}

// DefaultCredentialsFile locates the credentials file in the user home directory.
func DefaultCredentialsFile() (CredentialsFile, error) {
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return CredentialsFile{}, homeError
	}
	return CredentialsFile{path: filepath.Join(homeDirectory, defaultCredentialsFileNameConstant)}, nil
}

// Path returns the backing file path.
func (file CredentialsFile) Path() string {
	return file.path
}

// Load reads the stored credentials. A missing file yields empty credentials, not an error.
func (file CredentialsFile) Load() (StoredCredentials, error) {
	fileHandle, openError := os.Open(file.path)
	if openError != nil {
		if os.IsNotExist(openError) {
			return StoredCredentials{}, nil
		}
		return StoredCredentials{}, fmt.Errorf(credentialsReadErrorTemplateConstant, file.path, openError)
	}
	defer func() {
		_ = fileHandle.Close()
	}()

	var credentials StoredCredentials
	lineScanner := bufio.NewScanner(fileHandle)
	for lineScanner.Scan() {
		line := strings.TrimSpace(lineScanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, commentPrefixConstant) {
			continue
		}
		variableName, variableValue, separatorFound := strings.Cut(line, environmentLineSeparatorConstant)
		if !separatorFound {
			continue
		}
		switch strings.TrimSpace(variableName) {
		case serverURLVariableNameConstant:
			credentials.ServerURL = strings.TrimSpace(variableValue)
		case usernameVariableNameConstant:
			credentials.Username = strings.TrimSpace(variableValue)
		case apiTokenVariableNameConstant:
			credentials.APIToken = strings.TrimSpace(variableValue)
		}
	}
	if scanError := lineScanner.Err(); scanError != nil {
		return StoredCredentials{}, fmt.Errorf(credentialsReadErrorTemplateConstant, file.path, scanError)
	}
	return credentials, nil
}

// Save persists the credentials with owner-only permissions.
func (file CredentialsFile) Save(credentials StoredCredentials) error {
	var fileContent strings.Builder
	fileContent.WriteString(fmt.Sprintf(environmentLineTemplateConstant, serverURLVariableNameConstant, credentials.ServerURL))
	fileContent.WriteString(fmt.Sprintf(environmentLineTemplateConstant, usernameVariableNameConstant, credentials.Username))
	fileContent.WriteString(fmt.Sprintf(environmentLineTemplateConstant, apiTokenVariableNameConstant, credentials.APIToken))

	if writeError := os.WriteFile(file.path, []byte(fileContent.String()), credentialsFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(credentialsWriteErrorTemplateConstant, file.path, writeError)
	}
	return nil
}

// ResolveCredentials resolves the credential triple field by field: explicit values
// win over process environment variables, which win over the stored file.
func ResolveCredentials(explicit StoredCredentials, file CredentialsFile) (StoredCredentials, error) {
	stored, loadError := file.Load()
	if loadError != nil {
		return StoredCredentials{}, loadError
	}

	resolved := StoredCredentials{
		ServerURL: firstNonEmpty(explicit.ServerURL, os.Getenv(serverURLVariableNameConstant), stored.ServerURL),
		Username:  firstNonEmpty(explicit.Username, os.Getenv(usernameVariableNameConstant), stored.Username),
		APIToken:  firstNonEmpty(explicit.APIToken, os.Getenv(apiTokenVariableNameConstant), stored.APIToken),
	}
	if !resolved.Complete() {
		return StoredCredentials{}, ErrJenkinsCredentialsIncomplete
	}
	return resolved, nil
}

func firstNonEmpty(candidateValues ...string) string {
	for _, candidateValue := range candidateValues {
		if len(strings.TrimSpace(candidateValue)) > 0 {
			return strings.TrimSpace(candidateValue)
		}
	}
	return ""
}
