package stackplan

import (
	"errors"
	"fmt"
	"strings"
)

// Plan construction failures. All are plan-time errors: they indicate a
// malformed declaration, never a transient condition, and are terminal;
// a partial plan is never returned alongside one of these.
//
// Callers match with errors.Is; the concrete error carries the offending
// node/edge identifiers in its message and, for cycles, in CycleError.
var (
	// ErrDuplicateIdentifier reports a node id declared twice.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrUnknownNode reports an edge or lookup naming an id that was
	// never declared.
	ErrUnknownNode = errors.New("unknown node")

	// ErrCyclicDependency reports that the depends-on subgraph admits no
	// topological order.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrInsecurePeerRejected reports a communicates-with edge that asks
	// for a literal IP peer without being marked public-ingress.
	ErrInsecurePeerRejected = errors.New("insecure peer rejected")

	// ErrCredentialNotReady reports a credential binding requested before
	// the owning datastore was materialized.
	ErrCredentialNotReady = errors.New("credential not ready")

	// ErrEnvironmentKeyCollision reports a secret-backed environment
	// entry colliding with a plaintext one, or two credential requests
	// binding the same name on one container.
	ErrEnvironmentKeyCollision = errors.New("environment key collision")

	// ErrIdentityMismatch reports a container mount identity conflicting
	// with the volume access point's POSIX identity.
	ErrIdentityMismatch = errors.New("identity mismatch")

	// ErrUnroutableService reports a target group port with no matching
	// container port mapping on the service.
	ErrUnroutableService = errors.New("unroutable service")
)

// NodeError attributes a plan-time failure to a single node.
type NodeError struct {
	ID     string
	Detail string
	Err    error
}

func (e *NodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.ID)
	}
	return fmt.Sprintf("%s: %s: %s", e.Err, e.ID, e.Detail)
}

func (e *NodeError) Unwrap() error { return e.Err }

// EdgeError attributes a plan-time failure to a single edge.
type EdgeError struct {
	From   string
	To     string
	Detail string
	Err    error
}

func (e *EdgeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s -> %s", e.Err, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s -> %s: %s", e.Err, e.From, e.To, e.Detail)
}

func (e *EdgeError) Unwrap() error { return e.Err }

// CycleError reports a depends-on cycle with its member node ids, in
// traversal order, first node repeated at the end.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Nodes, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }
