package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/topology"
)

// webappTopology builds the full three-tier shape: network, three
// boundaries plus an imported one, datastore, cluster, service with
// credentials and a volume mount, volume, load balancer.
func webappTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New()

	require.NoError(t, topo.AddNode("vpc", topology.KindNetwork, topology.NetworkSpec{
		CIDR: "10.0.0.0/16",
		Subnets: []topology.Subnet{
			{Name: "web-a", Class: topology.SubnetPublic, CIDR: "10.0.0.0/24"},
			{Name: "app-a", Class: topology.SubnetPrivateEgress, CIDR: "10.0.10.0/24"},
			{Name: "data-a", Class: topology.SubnetIsolated, CIDR: "10.0.20.0/24"},
		},
	}))
	require.NoError(t, topo.AddNode("edge", topology.KindBoundary, topology.BoundarySpec{Network: "vpc"}))
	require.NoError(t, topo.AddNode("app", topology.KindBoundary, topology.BoundarySpec{Network: "vpc"}))
	require.NoError(t, topo.AddNode("data", topology.KindBoundary, topology.BoundarySpec{Network: "vpc"}))
	require.NoError(t, topo.AddNode("monitoring", topology.KindExternalBoundary, topology.ExternalBoundarySpec{ExternalID: "sg-123"}))

	require.NoError(t, topo.AddNode("main-db", topology.KindDataStore, topology.DataStoreSpec{
		Engine:    "postgres",
		Version:   "16.3",
		SizeClass: "medium",
		Placement: topology.Placement{Network: "vpc", SubnetClass: topology.SubnetIsolated},
		Boundary:  "data",
		Database:  "webapp",
		Username:  "webapp_rw",
		Port:      5432,
	}))
	require.NoError(t, topo.AddNode("main", topology.KindCluster, topology.ClusterSpec{
		Capacity: []topology.CapacityProvider{
			{Provider: "spot", Weight: 4},
			{Provider: "on-demand", Weight: 1},
		},
	}))
	require.NoError(t, topo.AddNode("api", topology.KindService, topology.ServiceSpec{
		Cluster:     "main",
		Placement:   topology.Placement{Network: "vpc", SubnetClass: topology.SubnetPrivateEgress},
		Boundary:    "app",
		Replicas:    3,
		CPU:         512,
		Memory:      1024,
		GracePeriod: 90 * time.Second,
		Containers: []topology.ContainerSpec{
			{
				Name:        "api",
				Image:       "registry.example.com/webapp/api:1.8.2",
				Environment: map[string]string{"LOG_LEVEL": "info"},
				Credentials: []topology.CredentialRequest{{DataStore: "main-db"}},
				Ports:       []topology.PortMapping{{ContainerPort: 8080, Protocol: "tcp"}},
				Mounts:      []topology.MountPoint{{Volume: "uploads", ContainerPath: "/srv/uploads"}},
			},
		},
	}))
	require.NoError(t, topo.AddNode("uploads", topology.KindVolume, topology.VolumeSpec{
		Placement: topology.Placement{Network: "vpc", SubnetClass: topology.SubnetPrivateEgress},
		Boundary:  "data",
		AccessPoint: topology.AccessPoint{
			Path: "/uploads",
			UID:  1001,
			GID:  1001,
			Mode: "0750",
		},
	}))
	require.NoError(t, topo.AddNode("web-lb", topology.KindLoadBalancer, topology.LoadBalancerSpec{
		Placement: topology.Placement{Network: "vpc", SubnetClass: topology.SubnetPublic},
		Boundary:  "edge",
		Listeners: []topology.ListenerSpec{
			{
				Name:     "https",
				Port:     443,
				Protocol: "tcp",
				Target: topology.TargetSpec{
					Service: "api",
					Port:    8080,
					Stickiness: &topology.Stickiness{
						Cookie:   "WEBAPP_SESSION",
						Duration: 8 * time.Hour,
					},
				},
			},
		},
	}))

	require.NoError(t, topo.AddEdge(topology.Edge{From: "api", To: "uploads", Kind: topology.EdgeMounts}))
	require.NoError(t, topo.AddEdge(topology.Edge{From: "web-lb", To: "api", Kind: topology.EdgeTargets}))
	require.NoError(t, topo.AddEdge(topology.Edge{
		From: "web-lb", To: "web-lb", Kind: topology.EdgeCommunicatesWith,
		Comm: &topology.CommAttrs{Protocol: "tcp", Port: 443, PublicIngress: true},
	}))
	require.NoError(t, topo.AddEdge(topology.Edge{
		From: "web-lb", To: "api", Kind: topology.EdgeCommunicatesWith,
		Comm: &topology.CommAttrs{Protocol: "tcp", Port: 8080},
	}))
	require.NoError(t, topo.AddEdge(topology.Edge{
		From: "api", To: "main-db", Kind: topology.EdgeCommunicatesWith,
		Comm: &topology.CommAttrs{Protocol: "tcp", Port: 5432},
	}))
	require.NoError(t, topo.AddEdge(topology.Edge{
		From: "monitoring", To: "api", Kind: topology.EdgeCommunicatesWith,
		Comm: &topology.CommAttrs{Protocol: "tcp", Port: 9102},
	}))

	return topo
}

func entryPositions(plan *stackplan.Plan) map[string]int {
	pos := make(map[string]int, len(plan.Entries))
	for i, e := range plan.Entries {
		pos[e.ID] = i
	}
	return pos
}

func TestBuild_OrderRespectsDependencies(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)

	pos := entryPositions(plan)
	assert.Less(t, pos["vpc"], pos["data"])
	assert.Less(t, pos["data"], pos["main-db"])
	assert.Less(t, pos["data"], pos["uploads"])
	assert.Less(t, pos["main-db"], pos["api"])
	assert.Less(t, pos["uploads"], pos["api"])
	assert.Less(t, pos["main"], pos["api"])
	assert.Less(t, pos["api"], pos["web-lb"])
}

func TestBuild_ExternalBoundaryHasNoEntry(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)

	pos := entryPositions(plan)
	_, present := pos["monitoring"]
	assert.False(t, present)
	assert.Len(t, plan.Entries, 9)

	// Its rule set still exists for peer references.
	var boundaries []string
	for _, rs := range plan.RuleSets {
		boundaries = append(boundaries, rs.Boundary)
	}
	assert.Contains(t, boundaries, "monitoring")
}

func TestBuild_ServiceEntry(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)

	var api stackplan.PlanEntry
	for _, e := range plan.Entries {
		if e.ID == "api" {
			api = e
		}
	}
	require.Equal(t, "service", api.Kind)
	assert.ElementsMatch(t, []string{"vpc", "app", "main", "main-db", "uploads"}, api.DependsOn)

	containers := api.Params["containers"].([]any)
	require.Len(t, containers, 1)
	container := containers[0].(map[string]any)

	secretEnv := container["secret_environment"].(map[string]any)
	assert.Len(t, secretEnv, 5)
	pw := secretEnv["DB_PASSWORD"].(map[string]any)
	assert.Equal(t, "webapp/main-db/credentials", pw["name"])
	assert.Equal(t, "password", pw["field"])

	mounts := container["mounts"].([]any)
	require.Len(t, mounts, 1)
	mount := mounts[0].(map[string]any)
	assert.Equal(t, 1001, mount["uid"])
	assert.Equal(t, 1001, mount["gid"])
	assert.Equal(t, "/uploads", mount["root_path"])
}

func TestBuild_LoadBalancerEntry(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)

	var lb stackplan.PlanEntry
	for _, e := range plan.Entries {
		if e.ID == "web-lb" {
			lb = e
		}
	}
	listeners := lb.Params["listeners"].([]any)
	require.Len(t, listeners, 1)
	listener := listeners[0].(map[string]any)
	tg := listener["target_group"].(map[string]any)
	assert.Equal(t, "api", tg["service"])
	assert.Equal(t, "1m30s", tg["initial_grace"])
	stickiness := tg["stickiness"].(map[string]any)
	assert.Equal(t, "WEBAPP_SESSION", stickiness["cookie"])
	assert.Equal(t, "8h0m0s", stickiness["duration"])
}

func TestBuild_RuleSets(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)

	byBoundary := make(map[string][]stackplan.SecurityRule)
	for _, rs := range plan.RuleSets {
		byBoundary[rs.Boundary] = rs.Rules
	}

	// edge: open 443 from the public edge.
	require.Len(t, byBoundary["edge"], 1)
	assert.Equal(t, "0.0.0.0/0", byBoundary["edge"][0].PeerCIDR)

	// app: 8080 from edge, 9102 from monitoring.
	require.Len(t, byBoundary["app"], 2)
	assert.Equal(t, "edge", byBoundary["app"][0].PeerBoundary)
	assert.Equal(t, "monitoring", byBoundary["app"][1].PeerBoundary)

	// data: 5432 from app, self-referencing nfs for the mount.
	require.Len(t, byBoundary["data"], 2)
	assert.Equal(t, "app", byBoundary["data"][0].PeerBoundary)
	assert.Equal(t, "data", byBoundary["data"][1].PeerBoundary)
	assert.Equal(t, 2049, byBoundary["data"][1].FromPort)
}

func TestBuild_DataStoreCredentialSecret(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)

	for _, e := range plan.Entries {
		if e.ID == "main-db" {
			assert.Equal(t, "webapp/main-db/credentials", e.Params["credential_secret"])
			assert.Equal(t, "webapp_rw", e.Params["username"])
			return
		}
	}
	t.Fatal("main-db entry missing")
}

func TestBuild_Deterministic(t *testing.T) {
	first, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)
	firstJSON, err := ToJSON(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := New("webapp", webappTopology(t)).Build()
		require.NoError(t, err)
		againJSON, err := ToJSON(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}
}

func TestBuild_NoWarningsWithoutBypass(t *testing.T) {
	plan, err := New("webapp", webappTopology(t)).Build()
	require.NoError(t, err)
	assert.Empty(t, plan.Warnings)
}

func TestBuild_PublicIngressBypassWarning(t *testing.T) {
	topo := webappTopology(t)
	require.NoError(t, topo.AddEdge(topology.Edge{
		From: "api", To: "api", Kind: topology.EdgeCommunicatesWith,
		Comm: &topology.CommAttrs{Protocol: "tcp", Port: 8080, PublicIngress: true},
	}))

	plan, err := New("webapp", topo).Build()
	require.NoError(t, err)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "web-lb")
	assert.Contains(t, plan.Warnings[0], "bypassing")
}

func TestBuild_CycleFails(t *testing.T) {
	topo := topology.New()
	require.NoError(t, topo.AddNode("a", topology.KindService, topology.ServiceSpec{}))
	require.NoError(t, topo.AddNode("b", topology.KindService, topology.ServiceSpec{}))
	require.NoError(t, topo.AddEdge(topology.Edge{From: "a", To: "b", Kind: topology.EdgeDependsOn}))
	require.NoError(t, topo.AddEdge(topology.Edge{From: "b", To: "a", Kind: topology.EdgeDependsOn}))

	plan, err := New("webapp", topo).Build()
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, stackplan.ErrCyclicDependency))
}

func TestBuild_InsecurePeerFails(t *testing.T) {
	topo := webappTopology(t)
	require.NoError(t, topo.AddEdge(topology.Edge{
		From: "api", To: "main-db", Kind: topology.EdgeCommunicatesWith,
		Comm: &topology.CommAttrs{Protocol: "tcp", Port: 5432, PeerCIDR: "203.0.113.0/24"},
	}))

	plan, err := New("webapp", topo).Build()
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, stackplan.ErrInsecurePeerRejected))
}

// twoDataStoreTopology declares two datastores consumed by one container,
// with a per-request credential prefix.
func twoDataStoreTopology(t *testing.T, prefix1, prefix2 string) *topology.Topology {
	t.Helper()
	topo := topology.New()
	require.NoError(t, topo.AddNode("db1", topology.KindDataStore, topology.DataStoreSpec{Engine: "postgres"}))
	require.NoError(t, topo.AddNode("db2", topology.KindDataStore, topology.DataStoreSpec{Engine: "mysql"}))
	require.NoError(t, topo.AddNode("api", topology.KindService, topology.ServiceSpec{
		Containers: []topology.ContainerSpec{
			{
				Name:  "api",
				Image: "registry.example.com/webapp/api:1.8.2",
				Credentials: []topology.CredentialRequest{
					{DataStore: "db1", Prefix: prefix1},
					{DataStore: "db2", Prefix: prefix2},
				},
			},
		},
	}))
	return topo
}

func TestBuild_SamePrefixCredentialsFail(t *testing.T) {
	// Both requests default to the DB prefix; the shared names must not
	// silently resolve to one of the two datastores.
	plan, err := New("webapp", twoDataStoreTopology(t, "", "")).Build()
	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stackplan.ErrEnvironmentKeyCollision))
	assert.Contains(t, err.Error(), "DB_HOST")
}

func TestBuild_ExplicitPrefixCollisionFails(t *testing.T) {
	plan, err := New("webapp", twoDataStoreTopology(t, "PRIMARY", "PRIMARY")).Build()
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, stackplan.ErrEnvironmentKeyCollision))
}

func TestBuild_DistinctPrefixCredentials(t *testing.T) {
	plan, err := New("webapp", twoDataStoreTopology(t, "", "CACHE")).Build()
	require.NoError(t, err)

	var api stackplan.PlanEntry
	for _, e := range plan.Entries {
		if e.ID == "api" {
			api = e
		}
	}
	container := api.Params["containers"].([]any)[0].(map[string]any)
	secretEnv := container["secret_environment"].(map[string]any)
	require.Len(t, secretEnv, 10)

	host1 := secretEnv["DB_HOST"].(map[string]any)
	host2 := secretEnv["CACHE_HOST"].(map[string]any)
	assert.Equal(t, "webapp/db1/credentials", host1["name"])
	assert.Equal(t, "webapp/db2/credentials", host2["name"])
}

func TestBuild_UnroutableTargetFails(t *testing.T) {
	topo := topology.New()
	require.NoError(t, topo.AddNode("api", topology.KindService, topology.ServiceSpec{
		Containers: []topology.ContainerSpec{
			{Name: "api", Ports: []topology.PortMapping{{ContainerPort: 8080, Protocol: "tcp"}}},
		},
	}))
	require.NoError(t, topo.AddNode("web-lb", topology.KindLoadBalancer, topology.LoadBalancerSpec{
		Listeners: []topology.ListenerSpec{
			{Name: "https", Port: 443, Protocol: "tcp", Target: topology.TargetSpec{Service: "api", Port: 9090}},
		},
	}))
	require.NoError(t, topo.AddEdge(topology.Edge{From: "web-lb", To: "api", Kind: topology.EdgeTargets}))

	plan, err := New("webapp", topo).Build()
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, stackplan.ErrUnroutableService))
}

func TestValidate(t *testing.T) {
	result := New("webapp", webappTopology(t)).Validate()
	assert.True(t, result.Success)
	assert.Equal(t, 10, result.Nodes)
	assert.Empty(t, result.Errors)
}

func TestValidate_ReportsFailure(t *testing.T) {
	topo := topology.New()
	require.NoError(t, topo.AddNode("a", topology.KindService, topology.ServiceSpec{}))
	require.NoError(t, topo.AddEdge(topology.Edge{From: "a", To: "a", Kind: topology.EdgeDependsOn}))

	result := New("webapp", topo).Validate()
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cyclic dependency")
}
