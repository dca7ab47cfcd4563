package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/ldes/internal/producer"
)

// CheckPrinciples verifies the shape a time-fragmented folder must have
// after N appends with page size perPage and returns one message per
// violation:
//
//   - pages are numbered 1..n without gaps
//   - every page but the last holds exactly perPage members
//   - the last page holds between 1 and perPage members
//   - every page but the last has exactly one relation, to the next page
//   - the last page has no relations
func CheckPrinciples(pages []producer.PageSummary, perPage int) []string {
	var violations []string
	for i, p := range pages {
		if p.Page != i+1 {
			violations = append(violations, fmt.Sprintf("page %d found at position %d", p.Page, i+1))
			continue
		}

		last := i == len(pages)-1
		switch {
		case !last && p.Members != perPage:
			violations = append(violations, fmt.Sprintf("page %d holds %d member(s), want %d", p.Page, p.Members, perPage))
		case last && (p.Members < 1 || p.Members > perPage):
			violations = append(violations, fmt.Sprintf("last page %d holds %d member(s)", p.Page, p.Members))
		}

		switch {
		case last && len(p.Relations) > 0:
			violations = append(violations, fmt.Sprintf("last page %d has %d relation(s)", p.Page, len(p.Relations)))
		case !last && (len(p.Relations) != 1 || p.Relations[0].Target != p.Page+1):
			violations = append(violations, fmt.Sprintf("page %d does not link to exactly page %d", p.Page, p.Page+1))
		}
	}
	return violations
}

// ValidationResult summarizes a directory of scenarios.
type ValidationResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that could not be loaded, could not
// run, or failed its expectations.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// ValidateScenarioDir loads and runs every *.yaml scenario in dir, each in
// its own subdirectory of workDir.
//
// For each scenario file:
// 1. Load and validate the scenario
// 2. Run it on a fresh storage root
// 3. Collect and report results
func ValidateScenarioDir(dir, workDir string) (*ValidationResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	result := &ValidationResult{}
	for i, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: path,
				Error:        fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		runDir := filepath.Join(workDir, fmt.Sprintf("%03d-%s", i, scenario.Name))
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, err
		}

		runResult, err := Run(scenario, runDir)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: path,
				Error:        fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}

		if !runResult.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: path,
				Error:        fmt.Sprintf("scenario assertions failed: %v", runResult.Errors),
			})
			continue
		}

		result.Passed++
	}
	return result, nil
}
