package differ

import (
	"os"
	"path/filepath"
	"testing"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/planner"
)

func basePlan() *stackplan.Plan {
	return &stackplan.Plan{
		Stack: "webapp",
		Entries: []stackplan.PlanEntry{
			{ID: "vpc", Kind: "network", Params: map[string]any{"cidr": "10.0.0.0/16"}},
			{ID: "main-db", Kind: "datastore", DependsOn: []string{"vpc"},
				Params: map[string]any{"engine": "postgres", "size_class": "small"}},
			{ID: "api", Kind: "service", DependsOn: []string{"vpc", "main-db"},
				Params: map[string]any{"replicas": 2}},
		},
		RuleSets: []stackplan.RuleSet{
			{Boundary: "data", Rules: []stackplan.SecurityRule{
				{Direction: "ingress", Protocol: "tcp", FromPort: 5432, ToPort: 5432, PeerBoundary: "app"},
			}},
		},
	}
}

func TestCompare(t *testing.T) {
	p1 := basePlan()
	p2 := basePlan()
	p2.Entries[1].Params["size_class"] = "medium"
	p2.Entries = append(p2.Entries[:2:2], stackplan.PlanEntry{ID: "uploads", Kind: "volume"})

	result, err := Compare(p1, p2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	// api was removed
	if len(result.Diff.Removed) != 1 {
		t.Errorf("Removed = %d, want 1", len(result.Diff.Removed))
	} else if result.Diff.Removed[0].ID != "api" {
		t.Errorf("Removed[0].ID = %s, want api", result.Diff.Removed[0].ID)
	}

	// uploads was added
	if len(result.Diff.Added) != 1 {
		t.Errorf("Added = %d, want 1", len(result.Diff.Added))
	} else if result.Diff.Added[0].ID != "uploads" {
		t.Errorf("Added[0].ID = %s, want uploads", result.Diff.Added[0].ID)
	}

	// main-db was modified
	if len(result.Diff.Modified) != 1 {
		t.Errorf("Modified = %d, want 1", len(result.Diff.Modified))
	} else if result.Diff.Modified[0].ID != "main-db" {
		t.Errorf("Modified[0].ID = %s, want main-db", result.Diff.Modified[0].ID)
	}

	if result.Summary.Total != 3 {
		t.Errorf("Summary.Total = %d, want 3", result.Summary.Total)
	}
}

func TestCompareIdentical(t *testing.T) {
	result, err := Compare(basePlan(), basePlan())
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d, want 0 for identical plans", result.Summary.Total)
	}
}

func TestCompareDependsOnOrderInsensitive(t *testing.T) {
	p1 := basePlan()
	p2 := basePlan()
	p2.Entries[2].DependsOn = []string{"main-db", "vpc"}

	result, err := Compare(p1, p2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d, want 0 for reordered depends_on", result.Summary.Total)
	}
}

func TestCompareRuleSets(t *testing.T) {
	p1 := basePlan()
	p2 := basePlan()
	p2.RuleSets[0].Rules = append(p2.RuleSets[0].Rules, stackplan.SecurityRule{
		Direction: "ingress", Protocol: "tcp", FromPort: 2049, ToPort: 2049, PeerBoundary: "data",
	})

	result, err := Compare(p1, p2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(result.Diff.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Diff.Modified))
	}
	if result.Diff.Modified[0].Kind != "ruleset" {
		t.Errorf("Modified[0].Kind = %s, want ruleset", result.Diff.Modified[0].Kind)
	}
	if result.Diff.Modified[0].ID != "data" {
		t.Errorf("Modified[0].ID = %s, want data", result.Diff.Modified[0].ID)
	}
}

func TestCompareFiles_CrossFormat(t *testing.T) {
	dir := t.TempDir()

	plan := basePlan()
	jsonData, err := planner.ToJSON(plan)
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	yamlData, err := planner.ToYAML(plan)
	if err != nil {
		t.Fatalf("ToYAML() error = %v", err)
	}

	jsonPath := filepath.Join(dir, "plan.json")
	yamlPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, yamlData, 0644); err != nil {
		t.Fatal(err)
	}

	// The same plan serialized as JSON and YAML diffs clean.
	result, err := CompareFiles(jsonPath, yamlPath)
	if err != nil {
		t.Fatalf("CompareFiles() error = %v", err)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d, want 0 across formats", result.Summary.Total)
	}
}

func TestLoadPlan_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(path, []byte("{{{not a plan"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPlan(path); err == nil {
		t.Error("LoadPlan() should fail on malformed input")
	}
}
