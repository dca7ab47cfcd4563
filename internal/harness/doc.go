// Package harness replays storage scenarios against a real Producer.
//
// Each scenario runs on a fresh storage root, so the resulting page graph
// can be compared to golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  page_resources_count: 2
//	  index: true
//	flow:
//	  - op: add
//	    folder: events
//	    items: { first: 1, count: 5 }
//	    expect: { members: 5, page: 3 }
//	  - op: get
//	    folder: events
//	    page: 4
//	    expect: { error: NOT_FOUND }
//	assertions:
//	  - type: page_count
//	    folder: events
//	    count: 3
//	  - type: relation
//	    folder: events
//	    page: 1
//	    target: 2
//	    value: "2024-01-01T00:00:01Z"
//
// # Operations
//
//   - add: AddData with an inline body or generated items
//   - get: GetNode, counting the members of the served page
//   - last_page: GetLastPage
//   - locate: Locate (needs config.index)
//   - flush: Flush
//
// # Assertion Types
//
//   - page_count: the folder has exactly count pages
//   - page_members: a page holds exactly count members
//   - relation: a page links to target, optionally checking type and value
//   - no_relations: a page has no outgoing relations
//   - principles: the folder has the shape of a time-fragmented stream
//
// # Deterministic Testing
//
// Members are stamped by a clock that starts at 2024-01-01T00:00:00Z and
// steps one second per member, and relation and version ids are numbered
// from 1, so snapshots compare byte for byte with golden files.
package harness
