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

func newPlanCmd(cfg envConfig) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
		resultOutput bool
	)

	cmd := &cobra.Command{
		Use:   "plan [dir]",
		Short: "Build the ordered provisioning plan from a stack directory",
		Long: `Plan loads the stack description, resolves the dependency graph and
emits the ordered plan plus the derived security-boundary rule sets.

With --json the plan is wrapped in a result envelope carrying success
and errors, for tooling that consumes one JSON document either way.

Examples:
    stackplan plan ./infra
    stackplan plan ./infra -f json
    stackplan plan ./infra -o plan.yaml
    stackplan plan ./infra --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(args[0], outputFormat, outputFile, resultOutput)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", cfg.Format, "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", cfg.Output, "Output file (default: stdout)")
	cmd.Flags().BoolVar(&resultOutput, "json", false, "Emit a JSON result envelope instead of the bare plan")

	return cmd
}

func runPlan(dir, format, outputFile string, resultOutput bool) error {
	if resultOutput {
		return runPlanResult(dir, outputFile)
	}

	plan, err := buildPlan(dir)
	if err != nil {
		return err
	}

	for _, w := range plan.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	return writePlan(plan, format, outputFile)
}

func runPlanResult(dir, outputFile string) error {
	result := planResult(dir)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if outputFile == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
	} else if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("plan construction failed")
	}
	return nil
}

func planResult(dir string) *stackplan.PlanResult {
	plan, err := buildPlan(dir)
	if err != nil {
		return &stackplan.PlanResult{Errors: []string{err.Error()}}
	}
	return &stackplan.PlanResult{Success: true, Plan: plan}
}

// buildPlan runs the full pipeline: load, check fields, assemble the
// topology, resolve and wire.
func buildPlan(dir string) (*stackplan.Plan, error) {
	file, err := stackfile.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if err := file.Check(); err != nil {
		return nil, err
	}
	topo, err := file.Topology()
	if err != nil {
		return nil, err
	}
	return planner.New(file.Stack.Name, topo).Build()
}

func writePlan(plan *stackplan.Plan, format, outputFile string) error {
	var data []byte
	var err error
	switch format {
	case "json":
		data, err = planner.ToJSON(plan)
	case "yaml":
		data, err = planner.ToYAML(plan)
	default:
		return fmt.Errorf("unknown format: %s (use 'json' or 'yaml')", format)
	}
	if err != nil {
		return fmt.Errorf("serializing plan: %w", err)
	}

	if outputFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outputFile, data, 0644)
}
