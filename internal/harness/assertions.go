package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/ldes/internal/producer"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string                 // Assertion type for categorization
	Folder   string                 // Folder the assertion ran against
	Expected string                 // Human-readable expected outcome
	Actual   string                 // Human-readable actual outcome
	Pages    []producer.PageSummary // Full page graph for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Folder)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nPage graph:\n")
	for _, p := range e.Pages {
		fmt.Fprintf(&buf, "  [%d] %d member(s)", p.Page, p.Members)
		for _, r := range p.Relations {
			fmt.Fprintf(&buf, " -> %d (%s %q)", r.Target, r.Type, r.Value)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the folder snapshots in
// result and returns one message per failure. perPage is the page size the
// principles assertion checks against.
func EvaluateAssertions(result *Result, assertions []Assertion, perPage int) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, perPage); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluateAssertion(result *Result, a Assertion, perPage int) error {
	snap, _ := result.Folder(a.Folder)
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Folder: a.Folder, Expected: expected, Actual: actual, Pages: snap.Pages}
	}

	switch a.Type {
	case AssertPageCount:
		if len(snap.Pages) != a.Count {
			return fail(fmt.Sprintf("%d page(s)", a.Count), fmt.Sprintf("%d page(s)", len(snap.Pages)))
		}

	case AssertPageMembers:
		p, ok := page(snap, a.Page)
		if !ok {
			return fail(fmt.Sprintf("page %d with %d member(s)", a.Page, a.Count), "page missing")
		}
		if p.Members != a.Count {
			return fail(fmt.Sprintf("page %d with %d member(s)", a.Page, a.Count), fmt.Sprintf("%d member(s)", p.Members))
		}

	case AssertRelation:
		p, ok := page(snap, a.Page)
		if !ok {
			return fail(fmt.Sprintf("page %d linking to %d", a.Page, a.Target), "page missing")
		}
		for _, r := range p.Relations {
			if r.Target != a.Target {
				continue
			}
			if a.Relation != "" && r.Type != a.Relation {
				return fail(fmt.Sprintf("%s to %d", a.Relation, a.Target), fmt.Sprintf("%s to %d", r.Type, r.Target))
			}
			if a.Value != "" && r.Value != a.Value {
				return fail(fmt.Sprintf("value %q", a.Value), fmt.Sprintf("value %q", r.Value))
			}
			return nil
		}
		return fail(fmt.Sprintf("page %d linking to %d", a.Page, a.Target), fmt.Sprintf("%d relation(s), none to %d", len(p.Relations), a.Target))

	case AssertNoRelations:
		p, ok := page(snap, a.Page)
		if !ok {
			return fail(fmt.Sprintf("page %d without relations", a.Page), "page missing")
		}
		if len(p.Relations) > 0 {
			return fail(fmt.Sprintf("page %d without relations", a.Page), fmt.Sprintf("%d relation(s)", len(p.Relations)))
		}

	case AssertPrinciples:
		if violations := CheckPrinciples(snap.Pages, perPage); len(violations) > 0 {
			return fail("time-fragmenter principles hold", strings.Join(violations, "; "))
		}
	}
	return nil
}

func page(snap FolderSnapshot, n int) (producer.PageSummary, bool) {
	for _, p := range snap.Pages {
		if p.Page == n {
			return p, true
		}
	}
	return producer.PageSummary{}, false
}
