package planner

import (
	"fmt"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/creds"
	"github.com/stackwire/stackplan-go/internal/expose"
	"github.com/stackwire/stackplan-go/internal/topology"
	"github.com/stackwire/stackplan-go/internal/volume"
)

// params serializes one node into its materialize-parameters. Everything
// below is plain data: maps, slices, strings and numbers, so the JSON and
// YAML encoders emit it with deterministic key order.
func (b *Builder) params(n *topology.Node, injector *creds.Injector, binder *volume.Binder, exposer *expose.Configurator) (map[string]any, error) {
	switch spec := n.Spec.(type) {
	case topology.NetworkSpec:
		return networkParams(spec), nil
	case topology.BoundarySpec:
		return map[string]any{
			"network":     spec.Network,
			"description": spec.Description,
		}, nil
	case topology.DataStoreSpec:
		return dataStoreParams(b.stack, n.ID, spec), nil
	case topology.ClusterSpec:
		return clusterParams(spec), nil
	case topology.ServiceSpec:
		return b.serviceParams(n.ID, spec, injector, binder)
	case topology.VolumeSpec:
		return volumeParams(spec), nil
	case topology.LoadBalancerSpec:
		return b.loadBalancerParams(n.ID, spec, exposer)
	default:
		return nil, nil
	}
}

func networkParams(spec topology.NetworkSpec) map[string]any {
	subnets := make([]any, 0, len(spec.Subnets))
	for _, s := range spec.Subnets {
		subnets = append(subnets, map[string]any{
			"name":  s.Name,
			"class": string(s.Class),
			"cidr":  s.CIDR,
		})
	}
	return map[string]any{
		"cidr":    spec.CIDR,
		"subnets": subnets,
	}
}

func dataStoreParams(stack, id string, spec topology.DataStoreSpec) map[string]any {
	return map[string]any{
		"engine":       spec.Engine,
		"version":      spec.Version,
		"size_class":   spec.SizeClass,
		"network":      spec.Placement.Network,
		"subnet_class": string(spec.Placement.SubnetClass),
		"boundary":     spec.Boundary,
		"database":     spec.Database,
		"username":     spec.Username,
		"port":         spec.Port,
		// The password is generated at creation and held by the secret
		// store; the plan carries the secret's name only.
		"credential_secret": creds.SecretName(stack, id),
	}
}

func clusterParams(spec topology.ClusterSpec) map[string]any {
	capacity := make([]any, 0, len(spec.Capacity))
	for _, c := range spec.Capacity {
		capacity = append(capacity, map[string]any{
			"provider": c.Provider,
			"weight":   c.Weight,
		})
	}
	return map[string]any{"capacity": capacity}
}

func (b *Builder) serviceParams(id string, spec topology.ServiceSpec, injector *creds.Injector, binder *volume.Binder) (map[string]any, error) {
	containers := make([]any, 0, len(spec.Containers))
	for _, c := range spec.Containers {
		container, err := b.containerParams(id, c, injector, binder)
		if err != nil {
			return nil, err
		}
		containers = append(containers, container)
	}
	return map[string]any{
		"cluster":      spec.Cluster,
		"network":      spec.Placement.Network,
		"subnet_class": string(spec.Placement.SubnetClass),
		"boundary":     spec.Boundary,
		"replicas":     spec.Replicas,
		"cpu":          spec.CPU,
		"memory":       spec.Memory,
		"grace_period": spec.GracePeriod.String(),
		"containers":   containers,
	}, nil
}

func (b *Builder) containerParams(serviceID string, c topology.ContainerSpec, injector *creds.Injector, binder *volume.Binder) (map[string]any, error) {
	out := map[string]any{
		"name":  c.Name,
		"image": c.Image,
	}

	if len(c.Environment) > 0 {
		env := make(map[string]any, len(c.Environment))
		for k, v := range c.Environment {
			env[k] = v
		}
		out["environment"] = env
	}

	if len(c.Credentials) > 0 {
		secretEnv := make(map[string]any)
		for _, cr := range c.Credentials {
			bindings, err := injector.Bind(cr.DataStore, c, cr.Prefix)
			if err != nil {
				return nil, err
			}
			for _, name := range creds.EnvNames(bindings) {
				// Two credential requests with the same prefix would
				// silently point the shared names at one datastore.
				if _, bound := secretEnv[name]; bound {
					return nil, &stackplan.NodeError{
						ID:     cr.DataStore,
						Detail: fmt.Sprintf("environment key %q already bound by another credential request on container %q", name, c.Name),
						Err:    stackplan.ErrEnvironmentKeyCollision,
					}
				}
				ref := bindings[name]
				secretEnv[name] = map[string]any{
					"store": ref.Store,
					"name":  ref.Name,
					"field": ref.Field,
				}
			}
		}
		out["secret_environment"] = secretEnv
	}

	if len(c.Ports) > 0 {
		ports := make([]any, 0, len(c.Ports))
		for _, p := range c.Ports {
			ports = append(ports, map[string]any{
				"port":     p.ContainerPort,
				"protocol": p.Protocol,
			})
		}
		out["ports"] = ports
	}

	if len(c.Mounts) > 0 {
		mounts := make([]any, 0, len(c.Mounts))
		for _, m := range c.Mounts {
			binding, err := binder.Bind(serviceID, m)
			if err != nil {
				return nil, err
			}
			mounts = append(mounts, map[string]any{
				"volume":         binding.Volume,
				"container_path": binding.ContainerPath,
				"root_path":      binding.RootPath,
				"read_only":      binding.ReadOnly,
				"uid":            binding.UID,
				"gid":            binding.GID,
			})
		}
		out["mounts"] = mounts
	}

	return out, nil
}

func volumeParams(spec topology.VolumeSpec) map[string]any {
	return map[string]any{
		"network":      spec.Placement.Network,
		"subnet_class": string(spec.Placement.SubnetClass),
		"boundary":     spec.Boundary,
		"access_point": map[string]any{
			"path": spec.AccessPoint.Path,
			"uid":  spec.AccessPoint.UID,
			"gid":  spec.AccessPoint.GID,
			"mode": spec.AccessPoint.Mode,
		},
	}
}

func (b *Builder) loadBalancerParams(id string, spec topology.LoadBalancerSpec, exposer *expose.Configurator) (map[string]any, error) {
	listeners := make([]any, 0, len(spec.Listeners))
	for _, l := range spec.Listeners {
		tg, err := exposer.Attach(id, l)
		if err != nil {
			return nil, err
		}
		target := map[string]any{
			"service":       tg.Service,
			"port":          tg.Port,
			"initial_grace": tg.InitialGrace.String(),
		}
		if tg.Stickiness != nil {
			target["stickiness"] = map[string]any{
				"cookie":   tg.Stickiness.Cookie,
				"duration": tg.Stickiness.Duration.String(),
			}
		}
		listeners = append(listeners, map[string]any{
			"name":         l.Name,
			"port":         l.Port,
			"protocol":     l.Protocol,
			"target_group": target,
		})
	}
	return map[string]any{
		"network":      spec.Placement.Network,
		"subnet_class": string(spec.Placement.SubnetClass),
		"boundary":     spec.Boundary,
		"listeners":    listeners,
	}, nil
}
