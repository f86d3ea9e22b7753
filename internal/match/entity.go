// Package match implements the fuzzy entity-resolution engine that links
// source company records to an external registry by organization name when
// no shared identifier exists. Matching runs as an ordered cascade of
// tiers, each with its own blocking keys and similarity threshold.
package match

import "time"

// SourceEntity is an unresolved record needing a link. It is a read-only
// snapshot for the duration of a run; only the match table records the link.
type SourceEntity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Domain     string `json:"domain,omitempty"`
	State      string `json:"state,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// ReferenceEntity is a candidate target drawn from the external registry.
// AliasName carries a doing-business-as form when the registry has one.
// Multiple rows may describe the same real-world organization.
type ReferenceEntity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AliasName  string `json:"alias_name,omitempty"`
	State      string `json:"state,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Candidate is a transient (source, reference) pairing produced inside a
// single tier, before conflict resolution.
type Candidate struct {
	SourceID    string
	ReferenceID string
	Tier        int
	Similarity  float64
	Method      string

	// ref is the index row that produced the pairing, when the tier matched
	// by row rather than by reference ID. Claiming must hit this exact row.
	ref *Ref
}

// Result is the durable outcome of matching one source entity. At most one
// Result exists per SourceID; the first successful tier wins permanently.
type Result struct {
	SourceID    string    `json:"source_id"`
	ReferenceID string    `json:"reference_id"`
	Tier        int       `json:"tier"`
	Similarity  float64   `json:"similarity"`
	Method      string    `json:"method"`
	MatchedAt   time.Time `json:"matched_at"`
}
