package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackwire/stackplan-go/internal/graph"
	"github.com/stackwire/stackplan-go/internal/planner"
	"github.com/stackwire/stackplan-go/internal/stackfile"
)

func newGraphCmd() *cobra.Command {
	var (
		outputFormat  string
		clusterByKind bool
		includeComm   bool
	)

	cmd := &cobra.Command{
		Use:   "graph [dir]",
		Short: "Generate DOT graph of resolved node dependencies",
		Long: `Generate a DOT or Mermaid format graph of the resolved dependency
edges, including the ones derived from ownership, mounts and targets.

The output can be rendered with Graphviz:
    stackplan graph ./infra | dot -Tpng -o deps.png

Or used in GitHub markdown (Mermaid format):
    stackplan graph ./infra -f mermaid

Examples:
    stackplan graph ./infra
    stackplan graph ./infra -c              # cluster by node kind
    stackplan graph ./infra -m              # include communicates-with edges`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(args[0], outputFormat, clusterByKind, includeComm)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&clusterByKind, "cluster", "c", false, "Cluster nodes by kind")
	cmd.Flags().BoolVarP(&includeComm, "communication", "m", false, "Include communicates-with edges")

	return cmd
}

func runGraph(dir, format string, cluster, includeComm bool) error {
	file, err := stackfile.LoadDir(dir)
	if err != nil {
		return err
	}
	if err := file.Check(); err != nil {
		return err
	}
	topo, err := file.Topology()
	if err != nil {
		return err
	}

	// A full construction populates the derived depends-on edges the
	// graph should show, and rejects broken wiring up front.
	if _, err := planner.New(file.Stack.Name, topo).Build(); err != nil {
		return fmt.Errorf("plan construction failed: %w", err)
	}

	var graphFormat graph.Format
	switch format {
	case "dot":
		graphFormat = graph.FormatDOT
	case "mermaid":
		graphFormat = graph.FormatMermaid
	default:
		return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", format)
	}

	gen := &graph.Generator{
		Format:               graphFormat,
		ClusterByKind:        cluster,
		IncludeCommunication: includeComm,
	}
	return gen.Generate(topo, os.Stdout)
}
