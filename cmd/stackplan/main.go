// Command stackplan resolves stack topology declarations into ordered
// provisioning plans.
//
// Usage:
//
//	stackplan plan ./infra          Build the ordered plan
//	stackplan validate ./infra      Check wiring without emitting a plan
//	stackplan graph ./infra         Graph the resolved dependencies
//	stackplan diff a.json b.json    Compare two emitted plans
//	stackplan watch ./infra         Re-plan on file changes
//	stackplan version               Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cfg, err := loadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "stackplan",
		Short: "Resolve stack declarations into ordered provisioning plans",
		Long: `stackplan turns a declared service topology into an ordered plan.

Describe your stack in HCL:

    network "vpc" {
      cidr = "10.0.0.0/16"
    }

Then resolve the dependency graph and derive the security wiring:

    stackplan plan ./infra`,
	}

	rootCmd.AddCommand(
		newPlanCmd(cfg),
		newValidateCmd(),
		newGraphCmd(),
		newDiffCmd(),
		newWatchCmd(cfg),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stackplan %s\n", getVersion())
		},
	}
}
