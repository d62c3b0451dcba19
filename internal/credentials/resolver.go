package credentials

import (
	"errors"
	"os"
	"strings"
)

const (
	credentialsMissingMessageConstant          = "no usable credentials resolved from arguments, environment, or configuration"
	usernameEnvironmentVariableNameConstant    = "NGEN_BITBUCKET_USERNAME"
	appPasswordEnvironmentVariableNameConstant = "NGEN_BITBUCKET_APP_PASSWORD"
	workspaceEnvironmentVariableNameConstant   = "NGEN_BITBUCKET_WORKSPACE"
)

// ErrCredentialsMissing indicates no complete credential triple could be resolved.
var ErrCredentialsMissing = errors.New(credentialsMissingMessageConstant)

// Credentials carries the resolved remote account triple consumed by the workflow engine.
type Credentials struct {
	Username    string `mapstructure:"username" json:"username"`
	AppPassword string `mapstructure:"app_password" json:"app_password"`
	Workspace   string `mapstructure:"workspace" json:"workspace"`
}

// Complete reports whether every required field is populated.
func (resolvedCredentials Credentials) Complete() bool {
	return len(strings.TrimSpace(resolvedCredentials.Username)) > 0 &&
		len(strings.TrimSpace(resolvedCredentials.AppPassword)) > 0 &&
		len(strings.TrimSpace(resolvedCredentials.Workspace)) > 0
}

// EnvironmentLookup reads a named environment variable, mirroring os.LookupEnv.
type EnvironmentLookup func(variableName string) (string, bool)

// Resolver resolves credentials from explicit arguments, the environment, and configuration, in that order.
type Resolver struct {
	environmentLookup        EnvironmentLookup
	configurationCredentials Credentials
}

// NewResolver constructs a Resolver backed by the process environment and the supplied configuration values.
func NewResolver(configurationCredentials Credentials) *Resolver {
	return &Resolver{environmentLookup: os.LookupEnv, configurationCredentials: configurationCredentials}
}

// NewResolverWithEnvironment constructs a Resolver with a custom environment lookup.
func NewResolverWithEnvironment(configurationCredentials Credentials, environmentLookup EnvironmentLookup) *Resolver {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	return &Resolver{environmentLookup: environmentLookup, configurationCredentials: configurationCredentials}
}

// Resolve fills each missing field of the explicit credentials from the environment,
// then from configuration, failing with ErrCredentialsMissing when the triple stays incomplete.
func (resolver *Resolver) Resolve(explicitCredentials Credentials) (Credentials, error) {
	resolvedCredentials := Credentials{
		Username:    resolver.resolveField(explicitCredentials.Username, usernameEnvironmentVariableNameConstant, resolver.configurationCredentials.Username),
		AppPassword: resolver.resolveField(explicitCredentials.AppPassword, appPasswordEnvironmentVariableNameConstant, resolver.configurationCredentials.AppPassword),
		Workspace:   resolver.resolveField(explicitCredentials.Workspace, workspaceEnvironmentVariableNameConstant, resolver.configurationCredentials.Workspace),
	}

	if !resolvedCredentials.Complete() {
		return Credentials{}, ErrCredentialsMissing
	}

	return resolvedCredentials, nil
}

func (resolver *Resolver) resolveField(explicitValue string, environmentVariableName string, configurationValue string) string {
	trimmedExplicitValue := strings.TrimSpace(explicitValue)
	if len(trimmedExplicitValue) > 0 {
		return trimmedExplicitValue
	}

	if environmentValue, environmentValueAvailable := resolver.environmentLookup(environmentVariableName); environmentValueAvailable {
		trimmedEnvironmentValue := strings.TrimSpace(environmentValue)
		if len(trimmedEnvironmentValue) > 0 {
			return trimmedEnvironmentValue
		}
	}

	return strings.TrimSpace(configurationValue)
}
