// Package secwire derives concrete security-boundary rules from declared
// communicates-with relationships.
//
// Intra-stack reachability is always granted group-to-group: the ingress
// rule emitted on the target's boundary names the source's boundary as
// its peer, never a literal address. The single exception is an edge
// marked public-ingress, whose peer is the open CIDR. Each boundary owns
// its rule set; rules accumulate monotonically through the idempotent
// Grant operation and are never removed mid-build.
package secwire

import (
	"fmt"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/topology"
)

// Rule directions.
const (
	DirectionIngress = "ingress"
	DirectionEgress  = "egress"
)

// OpenCIDR is the only literal peer a communicates-with edge may carry,
// and only when marked public-ingress.
const OpenCIDR = "0.0.0.0/0"

// Engine accumulates rule sets for every boundary declared in a
// topology. There is no ambient registry: each Engine owns its rule
// state outright.
type Engine struct {
	topo *topology.Topology

	boundaries []string
	sets       map[string]*ruleSet
}

type ruleSet struct {
	rules []stackplan.SecurityRule
	seen  map[string]bool
}

// New returns an engine with an empty rule set registered for each
// boundary and external-boundary node of the topology.
func New(t *topology.Topology) *Engine {
	e := &Engine{topo: t, sets: make(map[string]*ruleSet)}
	for _, n := range t.Nodes() {
		if n.Kind == topology.KindBoundary || n.Kind == topology.KindExternalBoundary {
			e.boundaries = append(e.boundaries, n.ID)
			e.sets[n.ID] = &ruleSet{seen: make(map[string]bool)}
		}
	}
	return e
}

// Grant adds a rule to a boundary's rule set. Re-granting an identical
// (direction, protocol, port, peer) tuple is a no-op, not a duplicate.
// It fails with stackplan.ErrUnknownNode for an undeclared boundary.
func (e *Engine) Grant(boundary string, r stackplan.SecurityRule) error {
	set, ok := e.sets[boundary]
	if !ok {
		return &stackplan.NodeError{ID: boundary, Detail: "not a security boundary", Err: stackplan.ErrUnknownNode}
	}

	key := fmt.Sprintf("%s|%s|%d|%d|%s|%s", r.Direction, r.Protocol, r.FromPort, r.ToPort, r.PeerBoundary, r.PeerCIDR)
	if set.seen[key] {
		return nil
	}
	set.seen[key] = true
	set.rules = append(set.rules, r)
	return nil
}

// GrantSelf admits a boundary's own members on the given port. Such a
// rule is distinct from any peer-group rule naming another boundary.
func (e *Engine) GrantSelf(boundary, protocol string, port int, description string) error {
	return e.Grant(boundary, stackplan.SecurityRule{
		Direction:    DirectionIngress,
		Protocol:     protocol,
		FromPort:     port,
		ToPort:       port,
		PeerBoundary: boundary,
		Description:  description,
	})
}

// Apply derives the ingress grant for one communicates-with edge and
// records it on the target's boundary.
func (e *Engine) Apply(edge topology.Edge) error {
	if edge.Kind != topology.EdgeCommunicatesWith || edge.Comm == nil {
		return &stackplan.EdgeError{From: edge.From, To: edge.To, Detail: "not a communicates-with edge", Err: stackplan.ErrUnknownNode}
	}

	target, ok := e.topo.Node(edge.To)
	if !ok {
		return &stackplan.NodeError{ID: edge.To, Err: stackplan.ErrUnknownNode}
	}
	targetBoundary := target.AttachedBoundary()
	if _, ok := e.sets[targetBoundary]; !ok {
		return &stackplan.NodeError{ID: edge.To, Detail: "no attached security boundary", Err: stackplan.ErrUnknownNode}
	}

	comm := edge.Comm
	rule := stackplan.SecurityRule{
		Direction: DirectionIngress,
		Protocol:  comm.Protocol,
		FromPort:  comm.Port,
		ToPort:    comm.Port,
	}

	if comm.PublicIngress {
		// A narrower literal peer alongside the public-ingress marker is
		// contradictory; widening it silently would open more than the
		// declaration asked for.
		if comm.PeerCIDR != "" && comm.PeerCIDR != OpenCIDR {
			return &stackplan.EdgeError{
				From:   edge.From,
				To:     edge.To,
				Detail: fmt.Sprintf("literal peer %s conflicts with public-ingress", comm.PeerCIDR),
				Err:    stackplan.ErrInsecurePeerRejected,
			}
		}
		rule.PeerCIDR = OpenCIDR
		rule.Description = fmt.Sprintf("public ingress on %s/%d", comm.Protocol, comm.Port)
		return e.Grant(targetBoundary, rule)
	}

	if comm.PeerCIDR != "" {
		return &stackplan.EdgeError{
			From:   edge.From,
			To:     edge.To,
			Detail: fmt.Sprintf("literal peer %s requires public-ingress", comm.PeerCIDR),
			Err:    stackplan.ErrInsecurePeerRejected,
		}
	}

	source, ok := e.topo.Node(edge.From)
	if !ok {
		return &stackplan.NodeError{ID: edge.From, Err: stackplan.ErrUnknownNode}
	}
	sourceBoundary := source.AttachedBoundary()
	if _, ok := e.sets[sourceBoundary]; !ok {
		return &stackplan.NodeError{ID: edge.From, Detail: "no attached security boundary", Err: stackplan.ErrUnknownNode}
	}

	rule.PeerBoundary = sourceBoundary
	rule.Description = fmt.Sprintf("from %s on %s/%d", edge.From, comm.Protocol, comm.Port)
	return e.Grant(targetBoundary, rule)
}

// RuleSets returns every boundary's accumulated rules: boundaries in
// declaration order, rules in grant order.
func (e *Engine) RuleSets() []stackplan.RuleSet {
	out := make([]stackplan.RuleSet, 0, len(e.boundaries))
	for _, id := range e.boundaries {
		out = append(out, stackplan.RuleSet{Boundary: id, Rules: e.sets[id].rules})
	}
	return out
}
