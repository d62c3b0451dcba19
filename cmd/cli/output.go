package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

const (
	resultEncodingErrorTemplateConstant = "unable to render result: %w"
	jsonIndentPrefixConstant            = ""
	jsonIndentValueConstant             = "  "
)

// printResult renders a workflow result as indented JSON on the command output stream.
func printResult(command *cobra.Command, result any) error {
	encodedResult, encodeError := json.MarshalIndent(result, jsonIndentPrefixConstant, jsonIndentValueConstant)
	if encodeError != nil {
		return fmt.Errorf(resultEncodingErrorTemplateConstant, encodeError)
	}
	fmt.Fprintln(command.OutOrStdout(), string(encodedResult))
	return nil
}
