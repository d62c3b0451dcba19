package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchRequested(testInstance *testing.T) {
	testCases := []struct {
		name             string
		arguments        []string
		expectedDispatch bool
	}{
		{name: "no_arguments", arguments: []string{}, expectedDispatch: false},
		{name: "alias_management", arguments: []string{"alias", "list"}, expectedDispatch: false},
		{name: "help_command", arguments: []string{"help"}, expectedDispatch: false},
		{name: "short_help_flag", arguments: []string{"-h"}, expectedDispatch: false},
		{name: "long_help_flag", arguments: []string{"--help"}, expectedDispatch: false},
		{name: "script_command", arguments: []string{"deploy"}, expectedDispatch: true},
		{name: "script_command_with_flags", arguments: []string{"status", "--short"}, expectedDispatch: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedDispatch, dispatchRequested(testCase.arguments))
		})
	}
}
