package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/planner"
	"github.com/stackwire/stackplan-go/internal/stackfile"
)

func newValidateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Check stack wiring without emitting a plan",
		Long: `Validate loads the stack description and runs a full plan
construction, reporting every wiring inconsistency and warning.

Examples:
    stackplan validate ./infra
    stackplan validate ./infra --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	return cmd
}

func runValidate(dir string, jsonOutput bool) error {
	result := validateDir(dir)

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "error: %s\n", e)
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		if result.Success {
			fmt.Printf("valid: %d nodes\n", result.Nodes)
		}
	}

	if !result.Success {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func validateDir(dir string) *stackplan.ValidateResult {
	file, err := stackfile.LoadDir(dir)
	if err != nil {
		return &stackplan.ValidateResult{Errors: []string{err.Error()}}
	}
	if err := file.Check(); err != nil {
		return &stackplan.ValidateResult{Errors: []string{err.Error()}}
	}
	topo, err := file.Topology()
	if err != nil {
		return &stackplan.ValidateResult{Errors: []string{err.Error()}}
	}
	return planner.New(file.Stack.Name, topo).Validate()
}
