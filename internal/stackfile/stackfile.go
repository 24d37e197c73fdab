// Package stackfile loads stack descriptions from HCL files.
//
// A stack description is a set of node declarations and edges: network,
// boundary, datastore, cluster, service, volume, loadbalancer and connect
// blocks. All files of one directory form a single stack; declarations
// may be split across files freely. Attribute values may interpolate
// ${stack.name}.
package stackfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// File is the merged stack description.
type File struct {
	Stack         *StackBlock          `hcl:"stack,block"`
	Networks      []*NetworkBlock      `hcl:"network,block"`
	Boundaries    []*BoundaryBlock     `hcl:"boundary,block"`
	DataStores    []*DataStoreBlock    `hcl:"datastore,block"`
	Clusters      []*ClusterBlock      `hcl:"cluster,block"`
	Services      []*ServiceBlock      `hcl:"service,block"`
	Volumes       []*VolumeBlock       `hcl:"volume,block"`
	LoadBalancers []*LoadBalancerBlock `hcl:"loadbalancer,block"`
	Connects      []*ConnectBlock      `hcl:"connect,block"`
}

// StackBlock names the stack. Exactly one is required per directory.
type StackBlock struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
}

// NetworkBlock declares a private network and its subnets.
type NetworkBlock struct {
	Name    string         `hcl:"name,label"`
	CIDR    string         `hcl:"cidr"`
	Subnets []*SubnetBlock `hcl:"subnet,block"`
}

// SubnetBlock declares one subnet with a placement class.
type SubnetBlock struct {
	Name  string `hcl:"name,label"`
	Class string `hcl:"class"`
	CIDR  string `hcl:"cidr"`
}

// BoundaryBlock declares a security boundary. Setting external_id
// imports a boundary that exists outside the stack instead.
type BoundaryBlock struct {
	Name        string `hcl:"name,label"`
	Network     string `hcl:"network,optional"`
	Description string `hcl:"description,optional"`
	ExternalID  string `hcl:"external_id,optional"`
}

// DataStoreBlock declares a managed database instance.
type DataStoreBlock struct {
	Name        string `hcl:"name,label"`
	Engine      string `hcl:"engine"`
	Version     string `hcl:"version"`
	SizeClass   string `hcl:"size_class"`
	Network     string `hcl:"network"`
	SubnetClass string `hcl:"subnet_class"`
	Boundary    string `hcl:"boundary"`
	Database    string `hcl:"database"`
	Username    string `hcl:"username"`
	Port        int    `hcl:"port,optional"`
}

// ClusterBlock declares a compute cluster.
type ClusterBlock struct {
	Name     string           `hcl:"name,label"`
	Capacity []*CapacityBlock `hcl:"capacity,block"`
}

// CapacityBlock is one weighted capacity provider.
type CapacityBlock struct {
	Provider string `hcl:"provider"`
	Weight   int    `hcl:"weight"`
}

// ServiceBlock declares a compute service.
type ServiceBlock struct {
	Name        string            `hcl:"name,label"`
	Cluster     string            `hcl:"cluster"`
	Network     string            `hcl:"network"`
	SubnetClass string            `hcl:"subnet_class"`
	Boundary    string            `hcl:"boundary"`
	Replicas    int               `hcl:"replicas"`
	CPU         int               `hcl:"cpu"`
	Memory      int               `hcl:"memory"`
	GracePeriod string            `hcl:"grace_period,optional"`
	Containers  []*ContainerBlock `hcl:"container,block"`
}

// ContainerBlock declares one container of a service's task.
type ContainerBlock struct {
	Name        string              `hcl:"name,label"`
	Image       string              `hcl:"image"`
	Environment map[string]string   `hcl:"environment,optional"`
	Credentials []*CredentialsBlock `hcl:"credentials,block"`
	Ports       []*PortBlock        `hcl:"port,block"`
	Mounts      []*MountBlock       `hcl:"mount,block"`
}

// CredentialsBlock asks for a datastore credential in the environment.
type CredentialsBlock struct {
	DataStore string `hcl:"datastore"`
	Prefix    string `hcl:"prefix,optional"`
}

// PortBlock exposes one container port.
type PortBlock struct {
	Container int    `hcl:"container"`
	Protocol  string `hcl:"protocol,optional"`
}

// MountBlock mounts a volume. uid/gid are optional; when absent the
// mount inherits the volume access point's identity.
type MountBlock struct {
	Volume   string `hcl:"volume"`
	Path     string `hcl:"path"`
	ReadOnly bool   `hcl:"read_only,optional"`
	UID      *int   `hcl:"uid,optional"`
	GID      *int   `hcl:"gid,optional"`
}

// VolumeBlock declares a shared filesystem with an access point.
type VolumeBlock struct {
	Name        string            `hcl:"name,label"`
	Network     string            `hcl:"network"`
	SubnetClass string            `hcl:"subnet_class"`
	Boundary    string            `hcl:"boundary"`
	AccessPoint *AccessPointBlock `hcl:"access_point,block"`
}

// AccessPointBlock fixes the entry path and POSIX identity.
type AccessPointBlock struct {
	Path string `hcl:"path"`
	UID  int    `hcl:"uid"`
	GID  int    `hcl:"gid"`
	Mode string `hcl:"mode,optional"`
}

// LoadBalancerBlock declares a load balancer and its listeners.
type LoadBalancerBlock struct {
	Name        string           `hcl:"name,label"`
	Network     string           `hcl:"network"`
	SubnetClass string           `hcl:"subnet_class"`
	Boundary    string           `hcl:"boundary"`
	Listeners   []*ListenerBlock `hcl:"listener,block"`
}

// ListenerBlock is one listener and its target group.
type ListenerBlock struct {
	Name     string       `hcl:"name,label"`
	Port     int          `hcl:"port"`
	Protocol string       `hcl:"protocol,optional"`
	Target   *TargetBlock `hcl:"target,block"`
}

// TargetBlock forwards a listener to a service port.
type TargetBlock struct {
	Service    string           `hcl:"service"`
	Port       int              `hcl:"port"`
	Stickiness *StickinessBlock `hcl:"stickiness,block"`
}

// StickinessBlock is an optional session-affinity policy.
type StickinessBlock struct {
	Cookie   string `hcl:"cookie"`
	Duration string `hcl:"duration"`
}

// ConnectBlock declares a communicates-with edge. from may be omitted
// for public_ingress edges; cidr other than 0.0.0.0/0 is rejected at
// wiring time unless public_ingress is set.
type ConnectBlock struct {
	Name          string `hcl:"name,label"`
	From          string `hcl:"from,optional"`
	To            string `hcl:"to"`
	Protocol      string `hcl:"protocol"`
	Port          int    `hcl:"port"`
	PublicIngress bool   `hcl:"public_ingress,optional"`
	CIDR          string `hcl:"cidr,optional"`
}

// LoadDir parses every .hcl file in dir into one merged stack
// description. Exactly one stack block must be present across the files.
func LoadDir(dir string) (*File, error) {
	paths, err := findStackFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .hcl stack files found in %s", dir)
	}

	parser := hclparse.NewParser()

	// The stack name is needed before full decoding so that attribute
	// values can interpolate ${stack.name}.
	name, err := findStackName(parser, paths)
	if err != nil {
		return nil, err
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"stack": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(name),
			}),
		},
	}

	merged := &File{}
	for _, path := range paths {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", path, diags)
		}

		var f File
		if diags := gohcl.DecodeBody(hclFile.Body, ctx, &f); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", path, diags)
		}
		if err := merge(merged, &f, path); err != nil {
			return nil, err
		}
	}

	if merged.Stack == nil {
		return nil, fmt.Errorf("no stack block declared in %s", dir)
	}
	return merged, nil
}

func findStackFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".hcl") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// findStackName scans for the single stack block's label without
// evaluating any attribute expressions.
func findStackName(parser *hclparse.Parser, paths []string) (string, error) {
	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "stack", LabelNames: []string{"name"}}},
	}

	name := ""
	for _, path := range paths {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return "", fmt.Errorf("parsing %s: %w", path, diags)
		}
		content, _, _ := hclFile.Body.PartialContent(schema)
		for _, block := range content.Blocks {
			if name != "" {
				return "", fmt.Errorf("%s: duplicate stack block %q (stack %q already declared)", path, block.Labels[0], name)
			}
			name = block.Labels[0]
		}
	}

	if name == "" {
		return "", fmt.Errorf("no stack block declared")
	}
	return name, nil
}

func merge(dst, src *File, path string) error {
	if src.Stack != nil {
		if dst.Stack != nil && dst.Stack.Name != src.Stack.Name {
			return fmt.Errorf("%s: duplicate stack block %q", path, src.Stack.Name)
		}
		dst.Stack = src.Stack
	}
	dst.Networks = append(dst.Networks, src.Networks...)
	dst.Boundaries = append(dst.Boundaries, src.Boundaries...)
	dst.DataStores = append(dst.DataStores, src.DataStores...)
	dst.Clusters = append(dst.Clusters, src.Clusters...)
	dst.Services = append(dst.Services, src.Services...)
	dst.Volumes = append(dst.Volumes, src.Volumes...)
	dst.LoadBalancers = append(dst.LoadBalancers, src.LoadBalancers...)
	dst.Connects = append(dst.Connects, src.Connects...)
	return nil
}
