// Package creds binds generated datastore credentials to container
// environment entries.
//
// A datastore's credential lives in an external secret store; the
// injector maps environment-variable names to (secret, field) references
// so connection parameters reach a running container without the
// plaintext ever appearing in a plan or a log.
package creds

import (
	"fmt"
	"sort"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/topology"
)

// Credential fields held by the secret store for every datastore.
const (
	FieldHost     = "host"
	FieldPort     = "port"
	FieldDBName   = "dbname"
	FieldUsername = "username"
	FieldPassword = "password"
)

// DefaultPrefix is used when a credential request names none.
const DefaultPrefix = "DB"

// envSuffixes maps the environment-variable suffix for each credential
// field, in emission order.
var envSuffixes = []struct {
	suffix string
	field  string
}{
	{"_HOST", FieldHost},
	{"_PORT", FieldPort},
	{"_NAME", FieldDBName},
	{"_USER", FieldUsername},
	{"_PASSWORD", FieldPassword},
}

// Injector tracks which datastores the resolver has materialized and
// produces secret-backed environment bindings for containers.
type Injector struct {
	topo         *topology.Topology
	stack        string
	materialized map[string]bool
}

// New returns an injector for one plan construction.
func New(stack string, t *topology.Topology) *Injector {
	return &Injector{topo: t, stack: stack, materialized: make(map[string]bool)}
}

// MarkMaterialized records that the resolver has emitted the node. The
// planner calls this as it walks the resolved order.
func (in *Injector) MarkMaterialized(id string) {
	in.materialized[id] = true
}

// Bind maps the datastore's credential into environment entries for the
// given container: one SecretRef per field (host, port, dbname,
// username, password), never plaintext.
//
// It fails with stackplan.ErrCredentialNotReady if the datastore has not
// been materialized yet (an ordering violation), and with
// stackplan.ErrEnvironmentKeyCollision if a generated name collides with
// the container's plaintext environment.
func (in *Injector) Bind(dsID string, c topology.ContainerSpec, prefix string) (map[string]stackplan.SecretRef, error) {
	node, ok := in.topo.Node(dsID)
	if !ok || node.Kind != topology.KindDataStore {
		return nil, &stackplan.NodeError{ID: dsID, Detail: "not a datastore", Err: stackplan.ErrUnknownNode}
	}
	if !in.materialized[dsID] {
		return nil, &stackplan.NodeError{
			ID:     dsID,
			Detail: fmt.Sprintf("requested by container %q before materialization", c.Name),
			Err:    stackplan.ErrCredentialNotReady,
		}
	}

	if prefix == "" {
		prefix = DefaultPrefix
	}

	secret := SecretName(in.stack, dsID)
	bindings := make(map[string]stackplan.SecretRef, len(envSuffixes))
	for _, e := range envSuffixes {
		name := prefix + e.suffix
		if _, taken := c.Environment[name]; taken {
			return nil, &stackplan.NodeError{
				ID:     dsID,
				Detail: fmt.Sprintf("environment key %q already set on container %q", name, c.Name),
				Err:    stackplan.ErrEnvironmentKeyCollision,
			}
		}
		bindings[name] = stackplan.SecretRef{Store: "secrets", Name: secret, Field: e.field}
	}
	return bindings, nil
}

// SecretName is the secret store key for a datastore's credential.
func SecretName(stack, dsID string) string {
	return stack + "/" + dsID + "/credentials"
}

// EnvNames returns the sorted environment-variable names of a binding
// map, for deterministic serialization.
func EnvNames(bindings map[string]stackplan.SecretRef) []string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
