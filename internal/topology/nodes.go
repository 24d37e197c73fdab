package topology

import "time"

// Kind identifies a node's entity type.
type Kind string

const (
	KindNetwork          Kind = "network"
	KindBoundary         Kind = "boundary"
	KindExternalBoundary Kind = "external-boundary"
	KindDataStore        Kind = "datastore"
	KindCluster          Kind = "cluster"
	KindService          Kind = "service"
	KindVolume           Kind = "volume"
	KindLoadBalancer     Kind = "loadbalancer"
)

// EdgeKind identifies a typed directed edge between nodes.
type EdgeKind string

const (
	EdgeDependsOn        EdgeKind = "depends-on"
	EdgeCommunicatesWith EdgeKind = "communicates-with"
	EdgeMounts           EdgeKind = "mounts"
	EdgeTargets          EdgeKind = "targets"
)

// SubnetClass is the placement class of a subnet.
type SubnetClass string

const (
	// SubnetPublic hosts resources that must reach the internet directly.
	SubnetPublic SubnetClass = "public"
	// SubnetPrivateEgress hosts resources with outbound-only internet access.
	SubnetPrivateEgress SubnetClass = "private-with-egress"
	// SubnetIsolated hosts resources with no internet path at all.
	SubnetIsolated SubnetClass = "isolated"
)

// Subnet is one subnet owned by a Network.
type Subnet struct {
	Name  string
	Class SubnetClass
	CIDR  string
}

// NetworkSpec declares a private network and the subnets it owns.
type NetworkSpec struct {
	CIDR    string
	Subnets []Subnet
}

// BoundarySpec declares a security boundary owned by this stack. Its rule
// set starts empty and accumulates through the security wiring engine.
type BoundarySpec struct {
	Network     string
	Description string
}

// ExternalBoundarySpec imports a security boundary that exists outside
// the stack. It participates in edges but has no materialization step.
type ExternalBoundarySpec struct {
	ExternalID string
}

// Placement pins a resource to a network and a subnet class within it.
type Placement struct {
	Network     string
	SubnetClass SubnetClass
}

// DataStoreSpec declares a managed database instance. The instance owns a
// generated credential: the username is fixed at creation, the password
// is generated and held by the external secret store. The plaintext never
// appears in the topology or the plan.
type DataStoreSpec struct {
	Engine    string
	Version   string
	SizeClass string
	Placement Placement
	Boundary  string
	Database  string
	Username  string
	Port      int
}

// CapacityProvider is one weighted entry in a cluster's capacity mix.
type CapacityProvider struct {
	Provider string
	Weight   int
}

// ClusterSpec declares a compute cluster and its capacity-mix policy.
type ClusterSpec struct {
	Capacity []CapacityProvider
}

// PortMapping exposes one container port.
type PortMapping struct {
	ContainerPort int
	Protocol      string
}

// MountPoint mounts a named volume into a container. UID and GID are nil
// when the container inherits the volume access point's identity.
type MountPoint struct {
	Volume        string
	ContainerPath string
	ReadOnly      bool
	UID           *int
	GID           *int
}

// CredentialRequest asks for a datastore's credential to be bound into
// the container environment as secret references. Prefix defaults to
// "DB" when empty.
type CredentialRequest struct {
	DataStore string
	Prefix    string
}

// ContainerSpec declares one container of a service's task.
type ContainerSpec struct {
	Name        string
	Image       string
	Environment map[string]string
	Credentials []CredentialRequest
	Ports       []PortMapping
	Mounts      []MountPoint
}

// ServiceSpec declares one deployable compute service.
type ServiceSpec struct {
	Cluster     string
	Placement   Placement
	Boundary    string
	Replicas    int
	CPU         int
	Memory      int
	GracePeriod time.Duration
	Containers  []ContainerSpec
}

// AccessPoint is a fixed entry path into a shared filesystem plus the
// POSIX identity applied at first access and required on every mount.
type AccessPoint struct {
	Path string
	UID  int
	GID  int
	Mode string
}

// VolumeSpec declares a shared filesystem and its access point.
type VolumeSpec struct {
	Placement   Placement
	Boundary    string
	AccessPoint AccessPoint
}

// Stickiness is an optional session-affinity policy on a target group.
type Stickiness struct {
	Cookie   string
	Duration time.Duration
}

// TargetSpec forwards a listener to one service's exposed port.
type TargetSpec struct {
	Service    string
	Port       int
	Stickiness *Stickiness
}

// ListenerSpec is one load balancer listener and its target group.
type ListenerSpec struct {
	Name     string
	Port     int
	Protocol string
	Target   TargetSpec
}

// LoadBalancerSpec declares a load balancer.
type LoadBalancerSpec struct {
	Placement Placement
	Boundary  string
	Listeners []ListenerSpec
}

// AttachedBoundary returns the security boundary id a node's spec names,
// or "" for kinds that carry none. Boundary nodes attach to themselves.
func (n *Node) AttachedBoundary() string {
	switch spec := n.Spec.(type) {
	case BoundarySpec, ExternalBoundarySpec:
		return n.ID
	case DataStoreSpec:
		return spec.Boundary
	case ServiceSpec:
		return spec.Boundary
	case VolumeSpec:
		return spec.Boundary
	case LoadBalancerSpec:
		return spec.Boundary
	default:
		return ""
	}
}
