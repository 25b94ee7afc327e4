// Package state holds the durable per-session research state. One record
// exists per session; it is written only by orchestrator steps, which own
// the read-modify-write cycle for the step they execute.
package state

import (
	"strings"

	"github.com/seekerlab/deepresearch/internal/search"
)

// ResearchState is the mutable record a research run accumulates across
// pipeline steps. Records are read and written whole; there is no
// field-level concurrency control.
type ResearchState struct {
	// Topic is immutable after creation.
	Topic string `json:"topic"`
	// AllQueries is append-only across refinement rounds, deduplicated
	// case/whitespace-insensitively.
	AllQueries []string `json:"allQueries"`
	// SearchResults is append-only, deduplicated by link.
	SearchResults []search.Result `json:"searchResults"`
	// Budget is the number of refinement rounds remaining. Never negative.
	Budget int `json:"budget"`
	// Iteration counts completed gather rounds. Monotonically increasing.
	Iteration int `json:"iteration"`
}

// New creates the initial state for a session.
func New(topic string, queries []string, budget int) *ResearchState {
	return &ResearchState{
		Topic:         topic,
		AllQueries:    DedupeQueries(queries),
		SearchResults: []search.Result{},
		Budget:        budget,
	}
}

// NormalizeQuery collapses case and whitespace so dedupe treats
// "Coral  Reefs" and "coral reefs" as the same query.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// DedupeQueries removes case/whitespace-insensitive duplicates, preserving
// order with first occurrence winning. Running it on an already deduplicated
// list returns an equal list.
func DedupeQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		key := NormalizeQuery(q)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// AppendQueries adds queries not already present (against the full ever-seen
// set) and returns the ones that were new.
func (s *ResearchState) AppendQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(s.AllQueries))
	for _, q := range s.AllQueries {
		seen[NormalizeQuery(q)] = struct{}{}
	}
	var added []string
	for _, q := range queries {
		key := NormalizeQuery(q)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		s.AllQueries = append(s.AllQueries, q)
		added = append(added, q)
	}
	return added
}

// MergeResults appends results whose link is not yet present and returns the
// number added.
func (s *ResearchState) MergeResults(results []search.Result) int {
	seen := make(map[string]struct{}, len(s.SearchResults))
	for _, r := range s.SearchResults {
		seen[r.Link] = struct{}{}
	}
	added := 0
	for _, r := range results {
		if _, ok := seen[r.Link]; ok {
			continue
		}
		seen[r.Link] = struct{}{}
		s.SearchResults = append(s.SearchResults, r)
		added++
	}
	return added
}
