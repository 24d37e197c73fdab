// Package expose attaches compute services to load-balancer target
// groups.
package expose

import (
	"fmt"
	"time"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/topology"
)

// TargetGroup is the resolved forwarding configuration for one listener.
type TargetGroup struct {
	Listener string
	Service  string
	Port     int
	Protocol string

	// InitialGrace is copied from the service's health-check grace
	// period so newly started replicas are not prematurely deregistered.
	InitialGrace time.Duration

	Stickiness *topology.Stickiness
}

// Configurator resolves listener targets against service port mappings.
type Configurator struct {
	topo *topology.Topology
}

// New returns a configurator over the given topology.
func New(t *topology.Topology) *Configurator {
	return &Configurator{topo: t}
}

// Attach binds a listener's target group to its service's declared port.
// It fails with stackplan.ErrUnroutableService when the service exposes
// no container port mapping matching the requested target port.
func (c *Configurator) Attach(lbID string, l topology.ListenerSpec) (TargetGroup, error) {
	node, ok := c.topo.Node(l.Target.Service)
	if !ok || node.Kind != topology.KindService {
		return TargetGroup{}, &stackplan.NodeError{ID: l.Target.Service, Detail: "not a service", Err: stackplan.ErrUnknownNode}
	}
	spec := node.Spec.(topology.ServiceSpec)

	if !exposesPort(spec, l.Target.Port) {
		return TargetGroup{}, &stackplan.EdgeError{
			From:   lbID,
			To:     l.Target.Service,
			Detail: fmt.Sprintf("no container port mapping for target port %d", l.Target.Port),
			Err:    stackplan.ErrUnroutableService,
		}
	}

	return TargetGroup{
		Listener:     l.Name,
		Service:      l.Target.Service,
		Port:         l.Target.Port,
		Protocol:     l.Protocol,
		InitialGrace: spec.GracePeriod,
		Stickiness:   l.Target.Stickiness,
	}, nil
}

func exposesPort(spec topology.ServiceSpec, port int) bool {
	for _, c := range spec.Containers {
		for _, p := range c.Ports {
			if p.ContainerPort == port {
				return true
			}
		}
	}
	return false
}
