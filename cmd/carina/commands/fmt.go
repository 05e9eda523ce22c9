package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carina-iac/carina/internal/lang/parser"
	"github.com/carina-iac/carina/internal/lang/printer"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

var (
	fmtCheck     bool
	fmtDiff      bool
	fmtRecursive bool
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [path]",
	Short: "Rewrite .crn file(s) in canonical form",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}

		files, err := fmtTargets(path)
		if err != nil {
			return err
		}

		dirty := false
		for _, f := range files {
			changed, err := fmtOne(f)
			if err != nil {
				return err
			}
			dirty = dirty || changed
		}
		if fmtCheck && dirty {
			os.Exit(1)
		}
		return nil
	},
}

// fmtTargets expands path into the list of .crn files fmt should process:
// the file itself if it names one directly, or every .crn file under it
// (recursively with -r, top-level only otherwise) if it names a directory.
func fmtTargets(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	if fmtRecursive {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(p, ".crn") {
				out = append(out, p)
			}
			return nil
		})
		return out, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".crn") {
			out = append(out, filepath.Join(path, e.Name()))
		}
	}
	return out, nil
}

// fmtOne reformats one file, reporting whether its contents changed.
func fmtOne(path string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	f, diags := parser.ParseFile(path, string(src))
	if diags.HasErrors() {
		return false, fmt.Errorf("%s", diags.Error())
	}

	formatted := printer.Print(f)
	if formatted == string(src) {
		return false, nil
	}

	if fmtDiff {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(src)),
			B:        difflib.SplitLines(formatted),
			FromFile: path,
			ToFile:   path + " (formatted)",
			Context:  3,
		})
		fmt.Print(diff)
	}

	if fmtCheck {
		fmt.Printf("%s is not canonically formatted\n", path)
		return true, nil
	}

	return true, os.WriteFile(path, []byte(formatted), 0o644)
}

func init() {
	fmtCmd.Flags().BoolVar(&fmtCheck, "check", false, "Report non-canonical files without rewriting them")
	fmtCmd.Flags().BoolVar(&fmtDiff, "diff", false, "Print a unified diff of the formatting changes")
	fmtCmd.Flags().BoolVarP(&fmtRecursive, "recursive", "r", false, "Recurse into subdirectories when path is a directory")
	rootCmd.AddCommand(fmtCmd)
}
