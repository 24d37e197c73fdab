// Package stackplan provides the contract types for stack provisioning plans.
//
// A stack declares a multi-tier service topology: a private network, a
// managed database, a container service behind a load balancer, and a
// shared filesystem mounted into the service's containers. The stackplan
// CLI loads stack descriptions from HCL files, resolves the dependency
// graph between the declared resources, and emits an ordered plan:
//
//	stackplan plan ./infra
//
// The plan, together with the derived security-boundary rule-sets, is the
// sole artifact handed to an external provisioning executor. Plan
// construction is pure and deterministic; every wiring inconsistency is
// caught before any external resource is touched.
package stackplan

// Plan is the ordered, fully resolved output of plan construction.
// Entries appear in materialization order: every entry's dependencies
// precede it. Feeding the same topology twice yields a byte-identical
// serialized plan.
type Plan struct {
	// Stack is the name of the stack this plan was built from.
	Stack string `json:"stack" yaml:"stack"`

	// Entries are the materialization steps, in dependency order.
	Entries []PlanEntry `json:"entries" yaml:"entries"`

	// RuleSets are the derived per-boundary security rules.
	RuleSets []RuleSet `json:"rule_sets,omitempty" yaml:"rule_sets,omitempty"`

	// Warnings are non-fatal findings surfaced during construction,
	// such as a public ingress grant that bypasses a load balancer.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// PlanEntry is a single materialization step.
type PlanEntry struct {
	// ID is the node identifier, unique within the stack.
	ID string `json:"id" yaml:"id"`

	// Kind is the node kind (network, datastore, service, ...).
	Kind string `json:"kind" yaml:"kind"`

	// DependsOn lists node ids that must exist before this entry is
	// materialized.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Params are the materialize-parameters consumed by the executor.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// RuleSet is the accumulated rule set owned by one security boundary.
type RuleSet struct {
	Boundary string         `json:"boundary" yaml:"boundary"`
	Rules    []SecurityRule `json:"rules" yaml:"rules"`
}

// SecurityRule is one ingress or egress grant on a security boundary.
// Exactly one of PeerBoundary and PeerCIDR is set. A rule whose
// PeerBoundary equals the owning boundary admits the boundary's own
// members (used for shared-filesystem protocol traffic).
type SecurityRule struct {
	Direction    string `json:"direction" yaml:"direction"`
	Protocol     string `json:"protocol" yaml:"protocol"`
	FromPort     int    `json:"from_port" yaml:"from_port"`
	ToPort       int    `json:"to_port" yaml:"to_port"`
	PeerBoundary string `json:"peer_boundary,omitempty" yaml:"peer_boundary,omitempty"`
	PeerCIDR     string `json:"peer_cidr,omitempty" yaml:"peer_cidr,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SecretRef points at one field of a secret held by an external secret
// store. Plans carry references only; plaintext credential material never
// appears in a plan.
type SecretRef struct {
	// Store names the secret store the reference resolves against.
	Store string `json:"store" yaml:"store"`
	// Name is the secret's name within the store.
	Name string `json:"name" yaml:"name"`
	// Field is the field inside the secret payload (host, port, ...).
	Field string `json:"field" yaml:"field"`
}

// PlanResult is the JSON output from `stackplan plan`.
type PlanResult struct {
	Success bool     `json:"success"`
	Plan    *Plan    `json:"plan,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateResult is the JSON output from `stackplan validate`.
type ValidateResult struct {
	Success  bool     `json:"success"`
	Nodes    int      `json:"nodes"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PlanDiff describes the difference between two plans.
type PlanDiff struct {
	Added    []DiffEntry `json:"added,omitempty" yaml:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty" yaml:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// DiffEntry is a single differing plan entry.
type DiffEntry struct {
	ID      string   `json:"id" yaml:"id"`
	Kind    string   `json:"kind" yaml:"kind"`
	Changes []string `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// DiffSummary counts differences by category.
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}
