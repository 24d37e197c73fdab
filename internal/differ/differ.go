// Package differ provides semantic comparison of emitted plans, enabling
// the dry-run diffing workflow: build twice, compare, inspect drift.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"

	"gopkg.in/yaml.v3"

	stackplan "github.com/stackwire/stackplan-go"
)

// Result contains the difference between two plans.
type Result struct {
	Diff    stackplan.PlanDiff
	Summary stackplan.DiffSummary
}

// Compare compares two plans and returns their differences. Entry order
// is not compared directly: an entry counts as modified only when its
// parameters or dependencies change.
func Compare(plan1, plan2 *stackplan.Plan) (*Result, error) {
	result := &Result{}

	entries1 := entryMap(plan1)
	entries2 := entryMap(plan2)

	for id, e := range entries2 {
		if _, exists := entries1[id]; !exists {
			result.Diff.Added = append(result.Diff.Added, stackplan.DiffEntry{ID: id, Kind: e.Kind})
		}
	}
	for id, e := range entries1 {
		if _, exists := entries2[id]; !exists {
			result.Diff.Removed = append(result.Diff.Removed, stackplan.DiffEntry{ID: id, Kind: e.Kind})
		}
	}
	for id, e1 := range entries1 {
		e2, exists := entries2[id]
		if !exists {
			continue
		}
		changes := compareEntries(e1, e2)
		if len(changes) > 0 {
			result.Diff.Modified = append(result.Diff.Modified, stackplan.DiffEntry{ID: id, Kind: e1.Kind, Changes: changes})
		}
	}

	result.Diff.Modified = append(result.Diff.Modified, compareRuleSets(plan1, plan2)...)

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)

	result.Summary = stackplan.DiffSummary{
		Added:    len(result.Diff.Added),
		Removed:  len(result.Diff.Removed),
		Modified: len(result.Diff.Modified),
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified

	return result, nil
}

// CompareFiles compares two plan files.
func CompareFiles(file1, file2 string) (*Result, error) {
	p1, err := LoadPlan(file1)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file1, err)
	}
	p2, err := LoadPlan(file2)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file2, err)
	}
	return Compare(p1, p2)
}

// LoadPlan loads a serialized plan from a file, JSON or YAML.
func LoadPlan(path string) (*stackplan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var plan stackplan.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse as JSON or YAML: %w", err)
		}
	}
	return &plan, nil
}

func entryMap(p *stackplan.Plan) map[string]stackplan.PlanEntry {
	m := make(map[string]stackplan.PlanEntry, len(p.Entries))
	for _, e := range p.Entries {
		m[e.ID] = e
	}
	return m
}

func compareEntries(e1, e2 stackplan.PlanEntry) []string {
	var changes []string

	if e1.Kind != e2.Kind {
		changes = append(changes, fmt.Sprintf("kind changed: %s → %s", e1.Kind, e2.Kind))
	}
	if !equalStringSets(e1.DependsOn, e2.DependsOn) {
		changes = append(changes, "depends_on changed")
	}
	changes = append(changes, compareParams("", e1.Params, e2.Params)...)

	return changes
}

// compareParams recursively compares parameter maps.
func compareParams(prefix string, params1, params2 map[string]any) []string {
	var changes []string

	for key, val2 := range params2 {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if val1, exists := params1[key]; exists {
			if !reflect.DeepEqual(normalize(val1), normalize(val2)) {
				changes = append(changes, fmt.Sprintf("%s modified", path))
			}
		} else {
			changes = append(changes, fmt.Sprintf("%s added", path))
		}
	}

	for key := range params1 {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if _, exists := params2[key]; !exists {
			changes = append(changes, fmt.Sprintf("%s removed", path))
		}
	}

	sort.Strings(changes)
	return changes
}

// normalize maps numeric leaves to float64 so that values decoded from
// JSON and YAML compare equal to freshly built ones.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = normalize(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = normalize(item)
		}
		return result
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return v
	}
}

func compareRuleSets(plan1, plan2 *stackplan.Plan) []stackplan.DiffEntry {
	sets1 := ruleSetMap(plan1)
	sets2 := ruleSetMap(plan2)

	var out []stackplan.DiffEntry
	for boundary, rules2 := range sets2 {
		rules1, exists := sets1[boundary]
		if !exists {
			out = append(out, stackplan.DiffEntry{ID: boundary, Kind: "ruleset", Changes: []string{"rule set added"}})
			continue
		}
		if !reflect.DeepEqual(rules1, rules2) {
			out = append(out, stackplan.DiffEntry{
				ID:      boundary,
				Kind:    "ruleset",
				Changes: []string{fmt.Sprintf("rules changed: %d → %d", len(rules1), len(rules2))},
			})
		}
	}
	for boundary := range sets1 {
		if _, exists := sets2[boundary]; !exists {
			out = append(out, stackplan.DiffEntry{ID: boundary, Kind: "ruleset", Changes: []string{"rule set removed"}})
		}
	}
	return out
}

func ruleSetMap(p *stackplan.Plan) map[string][]stackplan.SecurityRule {
	m := make(map[string][]stackplan.SecurityRule, len(p.RuleSets))
	for _, rs := range p.RuleSets {
		m[rs.Boundary] = rs.Rules
	}
	return m
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortEntries(entries []stackplan.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
}
