package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Parse, resolve and schema-check a .crn file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, result, err := parseAndResolve(args[0])
		if err != nil {
			return err
		}
		if err := validateAll(result); err != nil {
			return err
		}
		fmt.Printf("%s: valid, %d resource(s)\n", args[0], len(result.Resources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
