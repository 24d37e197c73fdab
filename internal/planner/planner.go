// Package planner turns a stack topology into an ordered provisioning
// plan.
//
// The Builder owns the whole pipeline: it derives the implicit depends-on
// edges the declaration implies (ownership, mounts, targets, credential
// consumption), freezes the topology, resolves a deterministic
// materialization order, and walks that order emitting one plan entry per
// node while the wiring components accumulate security rules, credential
// bindings, mount bindings and target groups. Construction is pure and
// single-threaded; a failed construction returns no partial plan.
package planner

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/creds"
	"github.com/stackwire/stackplan-go/internal/expose"
	"github.com/stackwire/stackplan-go/internal/resolver"
	"github.com/stackwire/stackplan-go/internal/secwire"
	"github.com/stackwire/stackplan-go/internal/topology"
	"github.com/stackwire/stackplan-go/internal/volume"
)

// Builder constructs a plan from one topology. A Builder is single-use:
// each construction starts from a fresh topology and fresh wiring state.
type Builder struct {
	stack string
	topo  *topology.Topology
}

// New creates a builder for the named stack.
func New(stack string, t *topology.Topology) *Builder {
	return &Builder{stack: stack, topo: t}
}

// Build resolves the topology into an ordered plan plus the derived
// security-boundary rule sets. Any wiring inconsistency is a terminal
// failure; partial plans are never returned.
func (b *Builder) Build() (*stackplan.Plan, error) {
	if err := b.deriveDependencies(); err != nil {
		return nil, err
	}
	b.topo.Freeze()

	order, err := resolver.Order(b.topo)
	if err != nil {
		return nil, err
	}

	wiring := secwire.New(b.topo)
	injector := creds.New(b.stack, b.topo)
	binder := volume.New(b.topo, wiring)
	exposer := expose.New(b.topo)

	// Reachability rules are derived up front: they accumulate on the
	// boundaries' rule sets, not on the ordered entries.
	for _, e := range b.topo.Edges(topology.EdgeCommunicatesWith) {
		if err := wiring.Apply(e); err != nil {
			return nil, err
		}
	}

	plan := &stackplan.Plan{Stack: b.stack}
	for _, id := range order {
		node, _ := b.topo.Node(id)

		// External references participate in ordering but have no
		// materialization step of their own.
		if node.Kind == topology.KindExternalBoundary {
			injector.MarkMaterialized(id)
			continue
		}

		params, err := b.params(node, injector, binder, exposer)
		if err != nil {
			return nil, err
		}

		plan.Entries = append(plan.Entries, stackplan.PlanEntry{
			ID:        id,
			Kind:      string(node.Kind),
			DependsOn: b.dependencies(id),
			Params:    params,
		})
		injector.MarkMaterialized(id)
	}

	plan.RuleSets = wiring.RuleSets()
	plan.Warnings = b.warnings()
	return plan, nil
}

// Validate runs a full construction and reports errors and warnings
// without emitting the plan itself.
func (b *Builder) Validate() *stackplan.ValidateResult {
	result := &stackplan.ValidateResult{Nodes: b.topo.Len()}
	plan, err := b.Build()
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Success = true
	result.Warnings = plan.Warnings
	return result
}

// deriveDependencies adds the depends-on edges the declaration implies:
// every resource follows its network, boundary and owner; a service
// follows its cluster, the volumes it mounts and the datastores whose
// credentials it consumes; a load balancer follows its targets.
func (b *Builder) deriveDependencies() error {
	add := func(from, to string) error {
		if from == to || to == "" {
			return nil
		}
		return b.topo.AddEdge(topology.Edge{From: from, To: to, Kind: topology.EdgeDependsOn})
	}

	for _, n := range b.topo.Nodes() {
		var err error
		switch spec := n.Spec.(type) {
		case topology.BoundarySpec:
			err = add(n.ID, spec.Network)
		case topology.DataStoreSpec:
			err = addAll(add, n.ID, spec.Placement.Network, spec.Boundary)
		case topology.ClusterSpec:
			// No owners.
		case topology.ServiceSpec:
			err = addAll(add, n.ID, spec.Placement.Network, spec.Boundary, spec.Cluster)
			if err == nil {
				err = b.deriveServiceDependencies(n.ID, spec, add)
			}
		case topology.VolumeSpec:
			err = addAll(add, n.ID, spec.Placement.Network, spec.Boundary)
		case topology.LoadBalancerSpec:
			err = addAll(add, n.ID, spec.Placement.Network, spec.Boundary)
		}
		if err != nil {
			return err
		}
	}

	for _, e := range b.topo.Edges(topology.EdgeMounts) {
		if err := add(e.From, e.To); err != nil {
			return err
		}
	}
	for _, e := range b.topo.Edges(topology.EdgeTargets) {
		if err := add(e.From, e.To); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) deriveServiceDependencies(id string, spec topology.ServiceSpec, add func(string, string) error) error {
	for _, c := range spec.Containers {
		for _, cr := range c.Credentials {
			if err := add(id, cr.DataStore); err != nil {
				return err
			}
		}
		for _, m := range c.Mounts {
			if err := add(id, m.Volume); err != nil {
				return err
			}
		}
	}
	return nil
}

func addAll(add func(string, string) error, from string, tos ...string) error {
	for _, to := range tos {
		if err := add(from, to); err != nil {
			return err
		}
	}
	return nil
}

// dependencies lists a node's depends-on targets, deduplicated, in
// declared edge order.
func (b *Builder) dependencies(id string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range b.topo.Edges(topology.EdgeDependsOn) {
		if e.From == id && !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	return out
}

// warnings flags declaration oddities that are legal but suspicious. A
// public ingress granted directly on a load-balanced service allows
// traffic to bypass the balancer; whether that is intended cannot be
// determined from the declaration, so it is surfaced instead of being
// silently preserved or silently fixed.
func (b *Builder) warnings() []string {
	balanced := make(map[string]string)
	for _, e := range b.topo.Edges(topology.EdgeTargets) {
		balanced[e.To] = e.From
	}

	var out []string
	for _, e := range b.topo.Edges(topology.EdgeCommunicatesWith) {
		if e.Comm == nil || !e.Comm.PublicIngress {
			continue
		}
		if lb, ok := balanced[e.To]; ok {
			out = append(out, fmt.Sprintf(
				"service %s is behind load balancer %s but also admits public ingress on %s/%d, bypassing it",
				e.To, lb, e.Comm.Protocol, e.Comm.Port))
		}
	}
	return out
}

// ToJSON serializes the plan with sorted keys.
func ToJSON(p *stackplan.Plan) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// ToYAML serializes the plan.
func ToYAML(p *stackplan.Plan) ([]byte, error) {
	return yaml.Marshal(p)
}
