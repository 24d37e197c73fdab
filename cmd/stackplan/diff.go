package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackwire/stackplan-go/internal/differ"
)

func newDiffCmd() *cobra.Command {
	var (
		outputFormat string
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "diff <plan1> <plan2>",
		Short: "Compare two emitted plans",
		Long: `Compare two plan files and report added, removed, and modified
entries. Plans may be JSON or YAML; the comparison is semantic, so a
plan re-serialized in a different format diffs clean against itself.

Exits non-zero when differences are found, which makes diff usable as
a drift check in CI:
    stackplan plan ./infra -o current.json
    stackplan diff deployed.json current.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(args[0], args[1], outputFormat, quiet)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output, set exit code only")

	return cmd
}

func runDiff(file1, file2, format string, quiet bool) error {
	result, err := differ.CompareFiles(file1, file2)
	if err != nil {
		return err
	}

	if !quiet {
		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result.Diff); err != nil {
				return err
			}
		case "text":
			printDiffText(result)
		default:
			return fmt.Errorf("unknown format: %s (use 'text' or 'json')", format)
		}
	}

	if result.Summary.Total > 0 {
		return fmt.Errorf("plans differ: %d added, %d removed, %d modified",
			result.Summary.Added, result.Summary.Removed, result.Summary.Modified)
	}
	return nil
}

func printDiffText(result *differ.Result) {
	for _, e := range result.Diff.Added {
		fmt.Printf("+ %s [%s]\n", e.ID, e.Kind)
	}
	for _, e := range result.Diff.Removed {
		fmt.Printf("- %s [%s]\n", e.ID, e.Kind)
	}
	for _, e := range result.Diff.Modified {
		fmt.Printf("~ %s [%s]\n", e.ID, e.Kind)
		for _, change := range e.Changes {
			fmt.Printf("    %s\n", change)
		}
	}

	if result.Summary.Total == 0 {
		fmt.Println("Plans are identical.")
	}
}
