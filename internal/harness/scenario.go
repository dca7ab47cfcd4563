package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/fragment"
)

// Scenario defines a storage scenario: a flow of producer operations run
// against a fresh storage root, followed by assertions on the resulting
// page graph.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides producer settings for this scenario.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Flow contains the operations to run, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final page graph.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds the producer settings a scenario may change.
// Zero values keep the built-in defaults.
type ScenarioConfig struct {
	PageResourcesCount int    `yaml:"page_resources_count,omitempty"`
	SubFolderNodeCount int    `yaml:"sub_folder_node_count,omitempty"`
	FolderDepth        int    `yaml:"folder_depth,omitempty"`
	Fragmenter         string `yaml:"fragmenter,omitempty"`

	// Index enables the member index, needed by locate steps.
	Index bool `yaml:"index,omitempty"`
}

// Step is one producer operation.
type Step struct {
	// Op is one of add, get, last_page, locate, flush.
	Op string `yaml:"op"`

	Folder string `yaml:"folder"`

	// add: payload given inline (Body) or generated (Items).
	Body        string     `yaml:"body,omitempty"`
	Items       *ItemRange `yaml:"items,omitempty"`
	ContentType string     `yaml:"content_type,omitempty"`
	Fragmenter  string     `yaml:"fragmenter,omitempty"`

	// get
	Page   int    `yaml:"page,omitempty"`
	Accept string `yaml:"accept,omitempty"`

	// locate
	Member string `yaml:"member,omitempty"`

	// Expect specifies the expected outcome. If nil the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// ItemRange generates Count N-Triples items numbered from First, each
// <http://example.org/items/N> with a dct:title.
type ItemRange struct {
	First int `yaml:"first"`
	Count int `yaml:"count"`
}

// Expect specifies expected step behavior.
type Expect struct {
	// Error is the expected errs code (e.g. "NOT_FOUND"); empty means success.
	Error string `yaml:"error,omitempty"`

	// Page is the expected page: the last placement for add, the last page
	// for last_page, the holding page for locate.
	Page *int `yaml:"page,omitempty"`

	// Members is the expected member count: members added for add, members
	// on the page for get.
	Members *int `yaml:"members,omitempty"`
}

// Assertion validates the final page graph of a folder.
type Assertion struct {
	// Type specifies the assertion type:
	// - "page_count": folder has exactly Count pages
	// - "page_members": page Page holds exactly Count members
	// - "relation": page Page links to Target (optionally with Relation type and Value)
	// - "no_relations": page Page has no outgoing relations
	// - "principles": the folder satisfies the time-fragmenter principles
	Type string `yaml:"type"`

	Folder   string `yaml:"folder"`
	Page     int    `yaml:"page,omitempty"`
	Count    int    `yaml:"count,omitempty"`
	Target   int    `yaml:"target,omitempty"`
	Relation string `yaml:"relation,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// Step operations.
const (
	OpAdd      = "add"
	OpGet      = "get"
	OpLastPage = "last_page"
	OpLocate   = "locate"
	OpFlush    = "flush"
)

// Assertion type constants.
const (
	AssertPageCount   = "page_count"
	AssertPageMembers = "page_members"
	AssertRelation    = "relation"
	AssertNoRelations = "no_relations"
	AssertPrinciples  = "principles"
)

var errorCodes = []string{
	string(errs.CodeNotFound),
	string(errs.CodeUnsupportedMediaType),
	string(errs.CodeMalformedPayload),
	string(errs.CodeStructuralCorruption),
	string(errs.CodePartialWrite),
	string(errs.CodeInvalidArgument),
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if s.Config.Fragmenter != "" && !slices.Contains(fragment.Names(), s.Config.Fragmenter) {
		return fmt.Errorf("config: unknown fragmenter %q", s.Config.Fragmenter)
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	if st.Folder == "" && st.Op != OpFlush {
		return fmt.Errorf("flow[%d]: folder is required", index)
	}

	switch st.Op {
	case OpAdd:
		if (st.Body == "") == (st.Items == nil) {
			return fmt.Errorf("flow[%d]: add needs exactly one of body or items", index)
		}
		if st.Items != nil && (st.Items.Count < 1 || st.Items.First < 0) {
			return fmt.Errorf("flow[%d]: items needs count >= 1 and first >= 0", index)
		}
		if st.Body != "" && st.ContentType == "" {
			return fmt.Errorf("flow[%d]: content_type is required with body", index)
		}
	case OpGet, OpLastPage, OpFlush:
	case OpLocate:
		if st.Member == "" {
			return fmt.Errorf("flow[%d]: member is required for locate", index)
		}
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, st.Op)
	}

	if st.Expect != nil && st.Expect.Error != "" && !slices.Contains(errorCodes, st.Expect.Error) {
		return fmt.Errorf("flow[%d].expect: unknown error code %q", index, st.Expect.Error)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Folder == "" {
		return fmt.Errorf("assertions[%d]: folder is required", index)
	}

	switch a.Type {
	case AssertPageCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for page_count", index)
		}
	case AssertPageMembers, AssertNoRelations:
		if a.Page < 1 {
			return fmt.Errorf("assertions[%d]: page is required for %s", index, a.Type)
		}
	case AssertRelation:
		if a.Page < 1 || a.Target < 1 {
			return fmt.Errorf("assertions[%d]: page and target are required for relation", index)
		}
	case AssertPrinciples:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
