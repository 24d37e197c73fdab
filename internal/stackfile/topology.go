package stackfile

import (
	"fmt"
	"time"

	"github.com/stackwire/stackplan-go/internal/topology"
)

// Topology assembles the declared nodes and edges into a fresh topology,
// in declaration order: networks, boundaries, datastores, clusters,
// services, volumes, load balancers, then the mount/target/connect
// edges. Reference errors (unknown or duplicate ids) surface here.
func (f *File) Topology() (*topology.Topology, error) {
	t := topology.New()

	for _, n := range f.Networks {
		subnets := make([]topology.Subnet, 0, len(n.Subnets))
		for _, s := range n.Subnets {
			subnets = append(subnets, topology.Subnet{
				Name:  s.Name,
				Class: topology.SubnetClass(s.Class),
				CIDR:  s.CIDR,
			})
		}
		if err := t.AddNode(n.Name, topology.KindNetwork, topology.NetworkSpec{CIDR: n.CIDR, Subnets: subnets}); err != nil {
			return nil, err
		}
	}

	for _, b := range f.Boundaries {
		var err error
		if b.ExternalID != "" {
			err = t.AddNode(b.Name, topology.KindExternalBoundary, topology.ExternalBoundarySpec{ExternalID: b.ExternalID})
		} else {
			err = t.AddNode(b.Name, topology.KindBoundary, topology.BoundarySpec{Network: b.Network, Description: b.Description})
		}
		if err != nil {
			return nil, err
		}
	}

	for _, d := range f.DataStores {
		port := d.Port
		if port == 0 {
			port = defaultEnginePort(d.Engine)
		}
		spec := topology.DataStoreSpec{
			Engine:    d.Engine,
			Version:   d.Version,
			SizeClass: d.SizeClass,
			Placement: topology.Placement{Network: d.Network, SubnetClass: topology.SubnetClass(d.SubnetClass)},
			Boundary:  d.Boundary,
			Database:  d.Database,
			Username:  d.Username,
			Port:      port,
		}
		if err := t.AddNode(d.Name, topology.KindDataStore, spec); err != nil {
			return nil, err
		}
	}

	for _, c := range f.Clusters {
		capacity := make([]topology.CapacityProvider, 0, len(c.Capacity))
		for _, p := range c.Capacity {
			capacity = append(capacity, topology.CapacityProvider{Provider: p.Provider, Weight: p.Weight})
		}
		if err := t.AddNode(c.Name, topology.KindCluster, topology.ClusterSpec{Capacity: capacity}); err != nil {
			return nil, err
		}
	}

	for _, s := range f.Services {
		spec, err := serviceSpec(s)
		if err != nil {
			return nil, err
		}
		if err := t.AddNode(s.Name, topology.KindService, spec); err != nil {
			return nil, err
		}
	}

	for _, v := range f.Volumes {
		spec := topology.VolumeSpec{
			Placement: topology.Placement{Network: v.Network, SubnetClass: topology.SubnetClass(v.SubnetClass)},
			Boundary:  v.Boundary,
		}
		if v.AccessPoint != nil {
			spec.AccessPoint = topology.AccessPoint{
				Path: v.AccessPoint.Path,
				UID:  v.AccessPoint.UID,
				GID:  v.AccessPoint.GID,
				Mode: v.AccessPoint.Mode,
			}
		}
		if err := t.AddNode(v.Name, topology.KindVolume, spec); err != nil {
			return nil, err
		}
	}

	for _, lb := range f.LoadBalancers {
		spec, err := loadBalancerSpec(lb)
		if err != nil {
			return nil, err
		}
		if err := t.AddNode(lb.Name, topology.KindLoadBalancer, spec); err != nil {
			return nil, err
		}
	}

	if err := f.addEdges(t); err != nil {
		return nil, err
	}
	return t, nil
}

// addEdges declares the explicit edges: service mounts, load balancer
// targets, and communicates-with connections. Ownership depends-on edges
// are derived later by the planner.
func (f *File) addEdges(t *topology.Topology) error {
	for _, s := range f.Services {
		for _, c := range s.Containers {
			for _, m := range c.Mounts {
				err := t.AddEdge(topology.Edge{From: s.Name, To: m.Volume, Kind: topology.EdgeMounts})
				if err != nil {
					return err
				}
			}
		}
	}

	for _, lb := range f.LoadBalancers {
		for _, l := range lb.Listeners {
			if l.Target == nil {
				continue
			}
			err := t.AddEdge(topology.Edge{From: lb.Name, To: l.Target.Service, Kind: topology.EdgeTargets})
			if err != nil {
				return err
			}
		}
	}

	for _, c := range f.Connects {
		from := c.From
		if from == "" && c.PublicIngress {
			// A pure public-ingress edge has no intra-stack source; the
			// target admits the open CIDR directly.
			from = c.To
		}
		err := t.AddEdge(topology.Edge{
			From: from,
			To:   c.To,
			Kind: topology.EdgeCommunicatesWith,
			Comm: &topology.CommAttrs{
				Protocol:      c.Protocol,
				Port:          c.Port,
				PublicIngress: c.PublicIngress,
				PeerCIDR:      c.CIDR,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func serviceSpec(s *ServiceBlock) (topology.ServiceSpec, error) {
	grace, err := optionalDuration(s.GracePeriod, "service", s.Name, "grace_period")
	if err != nil {
		return topology.ServiceSpec{}, err
	}

	containers := make([]topology.ContainerSpec, 0, len(s.Containers))
	for _, c := range s.Containers {
		spec := topology.ContainerSpec{
			Name:        c.Name,
			Image:       c.Image,
			Environment: c.Environment,
		}
		for _, cr := range c.Credentials {
			spec.Credentials = append(spec.Credentials, topology.CredentialRequest{DataStore: cr.DataStore, Prefix: cr.Prefix})
		}
		for _, p := range c.Ports {
			protocol := p.Protocol
			if protocol == "" {
				protocol = "tcp"
			}
			spec.Ports = append(spec.Ports, topology.PortMapping{ContainerPort: p.Container, Protocol: protocol})
		}
		for _, m := range c.Mounts {
			spec.Mounts = append(spec.Mounts, topology.MountPoint{
				Volume:        m.Volume,
				ContainerPath: m.Path,
				ReadOnly:      m.ReadOnly,
				UID:           m.UID,
				GID:           m.GID,
			})
		}
		containers = append(containers, spec)
	}

	return topology.ServiceSpec{
		Cluster:     s.Cluster,
		Placement:   topology.Placement{Network: s.Network, SubnetClass: topology.SubnetClass(s.SubnetClass)},
		Boundary:    s.Boundary,
		Replicas:    s.Replicas,
		CPU:         s.CPU,
		Memory:      s.Memory,
		GracePeriod: grace,
		Containers:  containers,
	}, nil
}

func loadBalancerSpec(lb *LoadBalancerBlock) (topology.LoadBalancerSpec, error) {
	listeners := make([]topology.ListenerSpec, 0, len(lb.Listeners))
	for _, l := range lb.Listeners {
		protocol := l.Protocol
		if protocol == "" {
			protocol = "tcp"
		}
		spec := topology.ListenerSpec{Name: l.Name, Port: l.Port, Protocol: protocol}
		if l.Target != nil {
			spec.Target = topology.TargetSpec{Service: l.Target.Service, Port: l.Target.Port}
			if l.Target.Stickiness != nil {
				d, err := optionalDuration(l.Target.Stickiness.Duration, "loadbalancer", lb.Name, "stickiness duration")
				if err != nil {
					return topology.LoadBalancerSpec{}, err
				}
				spec.Target.Stickiness = &topology.Stickiness{Cookie: l.Target.Stickiness.Cookie, Duration: d}
			}
		}
		listeners = append(listeners, spec)
	}

	return topology.LoadBalancerSpec{
		Placement: topology.Placement{Network: lb.Network, SubnetClass: topology.SubnetClass(lb.SubnetClass)},
		Boundary:  lb.Boundary,
		Listeners: listeners,
	}, nil
}

func optionalDuration(value, kind, name, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q: invalid %s %q: %w", kind, name, field, value, err)
	}
	return d, nil
}

func defaultEnginePort(engine string) int {
	switch engine {
	case "postgres", "aurora-postgresql":
		return 5432
	case "mysql", "mariadb", "aurora-mysql":
		return 3306
	default:
		return 0
	}
}
