// Package topology holds the in-memory model of a stack: typed nodes and
// the typed directed edges between them. The model is add-only; it is
// assembled once, frozen, and then handed to the resolver. No edge or
// node removal is supported.
package topology

import (
	"errors"

	stackplan "github.com/stackwire/stackplan-go"
)

// ErrFrozen reports a mutation attempted after Freeze.
var ErrFrozen = errors.New("topology is frozen")

// Node is one entity instance in the model.
type Node struct {
	ID   string
	Kind Kind
	Spec any

	// order is the declaration index, assigned by AddNode. The resolver
	// uses it to break ties so plan output is reproducible.
	order int
}

// CommAttrs carries the attributes of a communicates-with edge.
type CommAttrs struct {
	Protocol string
	Port     int

	// PublicIngress opens the target port to the open CIDR instead of a
	// boundary reference. This is the only case a literal peer is
	// permitted.
	PublicIngress bool

	// PeerCIDR is a literal peer request. Rejected by the security
	// wiring engine unless PublicIngress is set.
	PeerCIDR string
}

// Edge is a typed directed edge. Comm is set only for
// communicates-with edges.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
	Comm *CommAttrs
}

// Topology is the add-only graph for one stack. Each plan construction
// starts from a fresh, independently owned Topology; none of its state is
// shared across constructions.
type Topology struct {
	nodes  map[string]*Node
	order  []string
	edges  []Edge
	frozen bool
}

// New returns an empty topology.
func New() *Topology {
	return &Topology{nodes: make(map[string]*Node)}
}

// AddNode adds a node. It fails with stackplan.ErrDuplicateIdentifier if
// the id is already declared.
func (t *Topology) AddNode(id string, kind Kind, spec any) error {
	if t.frozen {
		return ErrFrozen
	}
	if _, exists := t.nodes[id]; exists {
		return &stackplan.NodeError{ID: id, Err: stackplan.ErrDuplicateIdentifier}
	}
	t.nodes[id] = &Node{ID: id, Kind: kind, Spec: spec, order: len(t.order)}
	t.order = append(t.order, id)
	return nil
}

// AddEdge adds a typed edge. It fails with stackplan.ErrUnknownNode if
// either endpoint is absent.
func (t *Topology) AddEdge(e Edge) error {
	if t.frozen {
		return ErrFrozen
	}
	if _, ok := t.nodes[e.From]; !ok {
		return &stackplan.NodeError{ID: e.From, Err: stackplan.ErrUnknownNode}
	}
	if _, ok := t.nodes[e.To]; !ok {
		return &stackplan.NodeError{ID: e.To, Err: stackplan.ErrUnknownNode}
	}
	t.edges = append(t.edges, e)
	return nil
}

// Freeze marks assembly complete. Further AddNode/AddEdge calls fail.
func (t *Topology) Freeze() { t.frozen = true }

// Frozen reports whether the topology has been frozen.
func (t *Topology) Frozen() bool { return t.frozen }

// Node returns the node with the given id.
func (t *Topology) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (t *Topology) Nodes() []*Node {
	nodes := make([]*Node, 0, len(t.order))
	for _, id := range t.order {
		nodes = append(nodes, t.nodes[id])
	}
	return nodes
}

// Len returns the number of declared nodes.
func (t *Topology) Len() int { return len(t.order) }

// Edges returns all edges of the given kind, in declaration order.
func (t *Topology) Edges(kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range t.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// DeclarationIndex returns the declaration position of a node, or -1 if
// the id is unknown.
func (t *Topology) DeclarationIndex(id string) int {
	if n, ok := t.nodes[id]; ok {
		return n.order
	}
	return -1
}
