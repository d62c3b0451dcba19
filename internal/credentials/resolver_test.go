package credentials_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngen-tools/ngen/internal/credentials"
)

const (
	testExplicitUsernameConstant      = "explicit-user"
	testEnvironmentUsernameConstant   = "environment-user"
	testConfigurationUsernameConstant = "configuration-user"
	testAppPasswordConstant           = "app-password"
	testWorkspaceConstant             = "acme"
)

func environmentLookupFromMap(values map[string]string) credentials.EnvironmentLookup {
	return func(variableName string) (string, bool) {
		value, available := values[variableName]
		return value, available
	}
}

func TestResolverResolutionOrder(testInstance *testing.T) {
	testCases := []struct {
		name                 string
		explicit             credentials.Credentials
		environment          map[string]string
		configuration        credentials.Credentials
		expectedUsername     string
		expectMissingFailure bool
	}{
		{
			name:             "explicit_wins_over_environment_and_configuration",
			explicit:         credentials.Credentials{Username: testExplicitUsernameConstant, AppPassword: testAppPasswordConstant, Workspace: testWorkspaceConstant},
			environment:      map[string]string{"NGEN_BITBUCKET_USERNAME": testEnvironmentUsernameConstant},
			configuration:    credentials.Credentials{Username: testConfigurationUsernameConstant},
			expectedUsername: testExplicitUsernameConstant,
		},
		{
			name:     "environment_wins_over_configuration",
			explicit: credentials.Credentials{AppPassword: testAppPasswordConstant, Workspace: testWorkspaceConstant},
			environment: map[string]string{
				"NGEN_BITBUCKET_USERNAME": testEnvironmentUsernameConstant,
			},
			configuration:    credentials.Credentials{Username: testConfigurationUsernameConstant},
			expectedUsername: testEnvironmentUsernameConstant,
		},
		{
			name:             "configuration_fills_remaining_fields",
			explicit:         credentials.Credentials{},
			environment:      map[string]string{},
			configuration:    credentials.Credentials{Username: testConfigurationUsernameConstant, AppPassword: testAppPasswordConstant, Workspace: testWorkspaceConstant},
			expectedUsername: testConfigurationUsernameConstant,
		},
		{
			name:                 "incomplete_triple_fails",
			explicit:             credentials.Credentials{Username: testExplicitUsernameConstant},
			environment:          map[string]string{},
			configuration:        credentials.Credentials{},
			expectMissingFailure: true,
		},
		{
			name:                 "blank_values_do_not_satisfy_resolution",
			explicit:             credentials.Credentials{Username: "   "},
			environment:          map[string]string{"NGEN_BITBUCKET_USERNAME": "   "},
			configuration:        credentials.Credentials{AppPassword: testAppPasswordConstant, Workspace: testWorkspaceConstant},
			expectMissingFailure: true,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			resolver := credentials.NewResolverWithEnvironment(testCase.configuration, environmentLookupFromMap(testCase.environment))

			resolvedCredentials, resolutionError := resolver.Resolve(testCase.explicit)
			if testCase.expectMissingFailure {
				require.ErrorIs(testInstance, resolutionError, credentials.ErrCredentialsMissing)
				return
			}

			require.NoError(testInstance, resolutionError)
			require.Equal(testInstance, testCase.expectedUsername, resolvedCredentials.Username)
			require.True(testInstance, resolvedCredentials.Complete())
		})
	}
}
