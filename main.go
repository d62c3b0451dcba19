package main

import (
	"fmt"
	"os"

	"github.com/ngen-tools/ngen/cmd/cli"
)

const failureExitCodeConstant = 1

// main executes the ngen-gitops command-line application. Workflow errors are
// already prefixed with their error kind by the command layer.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintln(os.Stderr, executionError)
		os.Exit(failureExitCodeConstant)
	}
}
