package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Inspect .crn modules",
}

var moduleInfoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Resolve a .crn file and summarize its resources, inputs and outputs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, "main.crn")
		}

		f, result, err := parseAndResolve(path)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", path)

		if f.Input != nil {
			fmt.Println("\ninputs:")
			for _, e := range f.Input.Entries {
				fmt.Printf("  %s: %s\n", e.Name, e.Type)
			}
		}

		if f.Output != nil {
			fmt.Println("\noutputs:")
			for _, e := range f.Output.Entries {
				fmt.Printf("  %s: %s\n", e.Name, e.Type)
			}
		}

		keys := make([]string, 0, len(result.Resources))
		for _, r := range result.Resources {
			keys = append(keys, r.Key.String())
		}
		sort.Strings(keys)

		fmt.Printf("\nresources (%d):\n", len(keys))
		for _, k := range keys {
			fmt.Printf("  %s\n", k)
		}
		return nil
	},
}

func init() {
	moduleCmd.AddCommand(moduleInfoCmd)
	rootCmd.AddCommand(moduleCmd)
}
