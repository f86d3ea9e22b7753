package match

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options configures a Matcher.
type Options struct {
	// Thresholds for the fuzzy tiers; zero value means DefaultThresholds.
	Thresholds Thresholds

	// MaxTier caps how far the cascade descends (staged rollout). Zero or
	// anything above MaxTier runs all six tiers.
	MaxTier int

	// DomainAuthority maps canonical domains to reference IDs, attested
	// independently of name matching. Optional; without it tier 1 is a no-op.
	DomainAuthority map[string]string

	// Now overrides the clock for MatchedAt stamps (tests).
	Now func() time.Time
}

// Matcher runs the tiered matching cascade over a prepared candidate index.
// A Matcher is run-scoped: it owns the index claims for the duration of one
// Run and must not be reused across runs.
type Matcher struct {
	idx  *Index
	auth map[string]string
	thr  Thresholds
	max  int
	now  func() time.Time
}

// NewMatcher creates a Matcher over a freshly built index.
func NewMatcher(idx *Index, opts Options) *Matcher {
	thr := opts.Thresholds
	if thr == (Thresholds{}) {
		thr = DefaultThresholds()
	}
	max := opts.MaxTier
	if max <= 0 || max > MaxTier {
		max = MaxTier
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	auth := make(map[string]string, len(opts.DomainAuthority))
	for d, id := range opts.DomainAuthority {
		if cd := CanonicalDomain(d); cd != "" && id != "" {
			auth[cd] = id
		}
	}

	return &Matcher{idx: idx, auth: auth, thr: thr, max: max, now: now}
}

// source is a SourceEntity prepared for matching.
type source struct {
	Entity SourceEntity
	Keys   Keys
	Norm   string
}

// Outcome is the product of one cascade run.
type Outcome struct {
	Results    []Result
	Unmatched  []SourceEntity
	TierCounts map[int]int
	Total      int
	Skipped    int // records dropped before matching (no ID)
	Elapsed    time.Duration
}

// Run executes the cascade over the source set. Tiers run strictly in
// order; a source resolved at one tier is excluded from all later tiers,
// and a claimed reference row disappears from later searches. Sources are
// evaluated in source_id order so reruns over the same snapshots produce
// identical results regardless of input record order.
func (m *Matcher) Run(sources []SourceEntity) *Outcome {
	log := zap.L().With(zap.String("component", "match.cascade"))
	start := m.now()

	prepared := make([]source, 0, len(sources))
	skipped := 0
	for _, se := range sources {
		if se.ID == "" {
			log.Debug("skipping source record without id", zap.String("name", se.Name))
			skipped++
			continue
		}
		prepared = append(prepared, source{
			Entity: se,
			Keys:   ExtractKeys(se.State, se.City, se.PostalCode, se.Domain),
			Norm:   NormalizeName(se.Name),
		})
	}
	sort.Slice(prepared, func(i, j int) bool {
		return prepared[i].Entity.ID < prepared[j].Entity.ID
	})

	out := &Outcome{
		TierCounts: make(map[int]int),
		Total:      len(prepared),
		Skipped:    skipped,
	}
	resolved := make(map[string]bool, len(prepared))

	for tier := TierDomainAuthority; tier <= m.max; tier++ {
		matched := 0
		for i := range prepared {
			src := &prepared[i]
			if resolved[src.Entity.ID] {
				continue
			}
			c, ok := m.runTier(tier, src)
			if !ok {
				continue
			}
			resolved[src.Entity.ID] = true
			out.Results = append(out.Results, Result{
				SourceID:    c.SourceID,
				ReferenceID: c.ReferenceID,
				Tier:        c.Tier,
				Similarity:  c.Similarity,
				Method:      c.Method,
				MatchedAt:   m.now().UTC(),
			})
			out.TierCounts[tier]++
			matched++
		}
		log.Info(fmt.Sprintf("tier %d/%d (%s) complete", tier, m.max, methodName[tier]),
			zap.Int("matched", matched))
	}

	for _, src := range prepared {
		if !resolved[src.Entity.ID] {
			out.Unmatched = append(out.Unmatched, src.Entity)
		}
	}

	out.Elapsed = m.now().Sub(start)
	return out
}

// runTier evaluates one source entity against one tier. A missing field
// required by the tier makes the source ineligible for it, never a
// wildcard match.
func (m *Matcher) runTier(tier int, src *source) (Candidate, bool) {
	switch tier {
	case TierDomainAuthority:
		return m.matchDomainAuthority(src)
	case TierExactName:
		return m.matchExactName(src)
	case TierDomainKeyword:
		return m.matchDomainKeyword(src)
	case TierFuzzyZip:
		return m.matchFuzzy(src, TierFuzzyZip, m.thr.FuzzyZip)
	case TierFuzzyCity:
		return m.matchFuzzy(src, TierFuzzyCity, m.thr.FuzzyCity)
	case TierFuzzyZipLoose:
		return m.matchFuzzy(src, TierFuzzyZipLoose, m.thr.FuzzyZipLoose)
	default:
		return Candidate{}, false
	}
}

// matchDomainAuthority bridges a source to a reference by an independently
// attested domain ownership table, bypassing name matching entirely.
func (m *Matcher) matchDomainAuthority(src *source) (Candidate, bool) {
	d := CanonicalDomain(src.Entity.Domain)
	if d == "" {
		return Candidate{}, false
	}
	refID, ok := m.auth[d]
	if !ok {
		return Candidate{}, false
	}
	// The authority table can drift ahead of the registry snapshot; a
	// bridge to an ID with no indexed row must not produce a match.
	if len(m.idx.ByID(refID)) == 0 {
		return Candidate{}, false
	}
	m.idx.ClaimID(refID)
	return Candidate{
		SourceID:    src.Entity.ID,
		ReferenceID: refID,
		Tier:        TierDomainAuthority,
		Similarity:  1.0,
		Method:      methodName[TierDomainAuthority],
	}, true
}

// matchExactName matches on exact normalized-name equality within the same
// state, against either the legal or the alias name.
func (m *Matcher) matchExactName(src *source) (Candidate, bool) {
	if src.Keys.State == "" || !Usable(src.Norm) {
		return Candidate{}, false
	}
	r := m.idx.ExactName(src.Keys.State, src.Norm)
	if r == nil {
		return Candidate{}, false
	}
	m.idx.Claim(r)
	method := methodName[TierExactName]
	if r.NormName != src.Norm {
		method += "_dba"
	}
	return Candidate{
		SourceID:    src.Entity.ID,
		ReferenceID: r.Entity.ID,
		Tier:        TierExactName,
		Similarity:  1.0,
		Method:      method,
	}, true
}

// matchDomainKeyword matches when the source's domain keyword appears as a
// substring of a reference name in the same state and ZIP. Domain
// abbreviations ("acme" for ACME MANUFACTURING) often fail pure name
// similarity but pass this check.
func (m *Matcher) matchDomainKeyword(src *source) (Candidate, bool) {
	kw := src.Keys.DomainKeyword
	if kw == "" || src.Keys.State == "" || src.Keys.Postal5 == "" {
		return Candidate{}, false
	}

	var cands []Candidate
	for _, r := range m.idx.GroupStatePostal(src.Keys.State, src.Keys.Postal5) {
		if r.Claimed() {
			continue
		}
		method := methodName[TierDomainKeyword]
		switch {
		case strings.Contains(r.NormName, kw):
		case r.NormAlias != "" && strings.Contains(r.NormAlias, kw):
			method += "_dba"
		default:
			continue
		}
		// Similarity is informational here; the keyword containment plus
		// exact geography is the actual gate.
		cands = append(cands, Candidate{
			SourceID:    src.Entity.ID,
			ReferenceID: r.Entity.ID,
			Tier:        TierDomainKeyword,
			Similarity:  Similarity(src.Norm, r.NormName),
			Method:      method,
			ref:         r,
		})
	}

	return m.accept(bestCandidate(cands))
}

// matchFuzzy runs a similarity tier over its blocking group.
func (m *Matcher) matchFuzzy(src *source, tier int, threshold float64) (Candidate, bool) {
	if !Usable(src.Norm) {
		return Candidate{}, false
	}

	var group []*Ref
	switch tier {
	case TierFuzzyZip, TierFuzzyZipLoose:
		if src.Keys.Postal5 == "" {
			return Candidate{}, false
		}
		group = m.idx.GroupPostal(src.Keys.Postal5)
	case TierFuzzyCity:
		if src.Keys.State == "" || src.Keys.City == "" {
			return Candidate{}, false
		}
		group = m.idx.GroupStateCity(src.Keys.State, src.Keys.City)
	}

	var cands []Candidate
	for _, s := range SimilarInGroup(group, src.Norm, threshold) {
		method := methodName[tier]
		if s.Alias {
			method += "_dba"
		}
		cands = append(cands, Candidate{
			SourceID:    src.Entity.ID,
			ReferenceID: s.Ref.Entity.ID,
			Tier:        tier,
			Similarity:  s.Score,
			Method:      method,
			ref:         s.Ref,
		})
	}

	return m.accept(bestCandidate(cands))
}

// accept claims the exact reference row the winning candidate matched, so
// sibling rows carrying the same reference ID stay available to later
// sources in their own geographies.
func (m *Matcher) accept(c Candidate, ok bool) (Candidate, bool) {
	if !ok {
		return Candidate{}, false
	}
	m.idx.Claim(c.ref)
	return c, true
}
