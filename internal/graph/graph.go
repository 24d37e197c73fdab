// Package graph generates DOT and Mermaid format dependency graphs from
// stack topologies.
package graph

import (
	"io"
	"strconv"
	"strings"

	"github.com/emicklei/dot"

	"github.com/stackwire/stackplan-go/internal/topology"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs from a stack topology.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByKind groups nodes by their kind.
	ClusterByKind bool

	// IncludeCommunication adds dashed, labeled edges for
	// communicates-with relationships.
	IncludeCommunication bool
}

// Generate creates a dependency graph and writes it to w.
func (g *Generator) Generate(t *topology.Topology, w io.Writer) error {
	graph := g.buildGraph(t)

	format := g.Format
	if format == "" {
		format = FormatDOT
	}

	var output string
	if format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := w.Write([]byte(output))
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(t *topology.Topology) (string, error) {
	var sb strings.Builder
	if err := g.Generate(t, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// buildGraph creates the dot.Graph structure from the topology.
func (g *Generator) buildGraph(t *topology.Topology) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	if g.ClusterByKind {
		g.addClusteredNodes(graph, t)
	} else {
		g.addNodes(graph, t)
	}

	for _, e := range t.Edges(topology.EdgeDependsOn) {
		graph.Edge(graph.Node(e.From), graph.Node(e.To))
	}
	for _, e := range t.Edges(topology.EdgeMounts) {
		edge := graph.Edge(graph.Node(e.From), graph.Node(e.To))
		edge.Attr("color", "blue")
		edge.Label("mounts")
	}
	for _, e := range t.Edges(topology.EdgeTargets) {
		edge := graph.Edge(graph.Node(e.From), graph.Node(e.To))
		edge.Attr("color", "blue")
		edge.Label("targets")
	}

	if g.IncludeCommunication {
		for _, e := range t.Edges(topology.EdgeCommunicatesWith) {
			if e.Comm == nil {
				continue
			}
			edge := graph.Edge(graph.Node(e.From), graph.Node(e.To))
			edge.Attr("style", "dashed")
			edge.Label(e.Comm.Protocol + "/" + strconv.Itoa(e.Comm.Port))
		}
	}

	return graph
}

// addNodes adds topology nodes without clustering.
func (g *Generator) addNodes(graph *dot.Graph, t *topology.Topology) {
	for _, n := range t.Nodes() {
		node := graph.Node(n.ID)
		node.Label(n.ID + "\\n[" + string(n.Kind) + "]")
		if n.Kind == topology.KindExternalBoundary {
			node.Attr("style", "dashed")
		}
	}
}

// addClusteredNodes adds nodes grouped by kind.
func (g *Generator) addClusteredNodes(graph *dot.Graph, t *topology.Topology) {
	byKind := make(map[topology.Kind][]string)
	var kinds []topology.Kind
	for _, n := range t.Nodes() {
		if _, seen := byKind[n.Kind]; !seen {
			kinds = append(kinds, n.Kind)
		}
		byKind[n.Kind] = append(byKind[n.Kind], n.ID)
	}

	for _, kind := range kinds {
		ids := byKind[kind]
		if len(ids) > 1 {
			cluster := graph.Subgraph(string(kind), dot.ClusterOption{})
			cluster.Attr("style", "rounded")
			cluster.Attr("bgcolor", "lightyellow")
			for _, id := range ids {
				cluster.Node(id).Label(id + "\\n[" + string(kind) + "]")
			}
		} else {
			for _, id := range ids {
				graph.Node(id).Label(id + "\\n[" + string(kind) + "]")
			}
		}
	}
}
