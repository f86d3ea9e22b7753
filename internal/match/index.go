package match

import "strings"

// Ref is a reference entity prepared for matching: normalized names, blocking
// keys, and a claim flag. Claims are tracked per row, not per reference ID,
// so a registry that genuinely carries duplicate rows for one organization
// can still satisfy more than one source entity.
type Ref struct {
	Entity    ReferenceEntity
	Keys      Keys
	NormName  string
	NormAlias string

	row     int
	claimed bool
}

// Claimed reports whether this row has been taken by an earlier match.
func (r *Ref) Claimed() bool { return r.claimed }

// Index holds the per-run lookup structures built once from the reference
// dataset. It is owned by the run that built it; nothing here is process
// global, so runs over different scopes never share state.
type Index struct {
	rows []*Ref

	exact         map[string]*Ref   // state|normName (and state|normAlias)
	byID          map[string][]*Ref // reference_id -> rows
	byState       map[string][]*Ref
	byPostal      map[string][]*Ref // postal5
	byStatePostal map[string][]*Ref // state|postal5
	byStateCity   map[string][]*Ref // state|city
}

// NewIndex normalizes the reference dataset and builds the exact-match map
// and geographic blocking groups. Reference rows with unusably short
// normalized names are indexed only under their blocking groups for alias
// checks; rows with no usable name at all are dropped.
func NewIndex(refs []ReferenceEntity) *Index {
	ix := &Index{
		exact:         make(map[string]*Ref, len(refs)),
		byID:          make(map[string][]*Ref, len(refs)),
		byState:       make(map[string][]*Ref),
		byPostal:      make(map[string][]*Ref),
		byStatePostal: make(map[string][]*Ref),
		byStateCity:   make(map[string][]*Ref),
	}

	for _, re := range refs {
		r := &Ref{
			Entity:    re,
			Keys:      ExtractKeys(re.State, re.City, re.PostalCode, ""),
			NormName:  NormalizeName(re.Name),
			NormAlias: NormalizeName(re.AliasName),
			row:       len(ix.rows),
		}
		if !Usable(r.NormName) && !Usable(r.NormAlias) {
			continue
		}

		ix.rows = append(ix.rows, r)
		ix.byID[re.ID] = append(ix.byID[re.ID], r)
		if r.Keys.Postal5 != "" {
			ix.byPostal[r.Keys.Postal5] = append(ix.byPostal[r.Keys.Postal5], r)
		}

		if r.Keys.State != "" {
			// Last writer wins on exact-name collisions; the exact tier is a
			// convenience pass, not the primary signal.
			if Usable(r.NormName) {
				ix.exact[groupKey(r.Keys.State, r.NormName)] = r
			}
			if Usable(r.NormAlias) {
				ix.exact[groupKey(r.Keys.State, r.NormAlias)] = r
			}

			ix.byState[r.Keys.State] = append(ix.byState[r.Keys.State], r)
			if r.Keys.Postal5 != "" {
				k := groupKey(r.Keys.State, r.Keys.Postal5)
				ix.byStatePostal[k] = append(ix.byStatePostal[k], r)
			}
			if r.Keys.City != "" {
				k := groupKey(r.Keys.State, r.Keys.City)
				ix.byStateCity[k] = append(ix.byStateCity[k], r)
			}
		}
	}

	return ix
}

// Size returns the number of indexed reference rows.
func (ix *Index) Size() int { return len(ix.rows) }

// ExactName returns the unclaimed reference row whose normalized name (or
// alias) exactly equals normName within the given state, or nil.
func (ix *Index) ExactName(state, normName string) *Ref {
	r := ix.exact[groupKey(state, normName)]
	if r == nil || r.claimed {
		return nil
	}
	return r
}

// GroupPostal returns the blocking group for a bare 5-digit ZIP prefix.
func (ix *Index) GroupPostal(postal5 string) []*Ref {
	return ix.byPostal[postal5]
}

// GroupStatePostal returns the blocking group for (state, postal5).
func (ix *Index) GroupStatePostal(state, postal5 string) []*Ref {
	return ix.byStatePostal[groupKey(state, postal5)]
}

// GroupStateCity returns the blocking group for (state, city).
func (ix *Index) GroupStateCity(state, city string) []*Ref {
	return ix.byStateCity[groupKey(state, city)]
}

// ByID returns the rows carrying a given reference ID.
func (ix *Index) ByID(id string) []*Ref { return ix.byID[id] }

// Claim marks a row as taken so later tiers no longer see it. Claims shrink
// the search space as the cascade descends; they never move or upgrade an
// existing match.
func (ix *Index) Claim(r *Ref) { r.claimed = true }

// ClaimID claims the first unclaimed row carrying the given reference ID,
// used by the domain-authority tier where the match arrives by ID rather
// than by row. Other rows with the same ID stay available: the registry may
// legitimately hold several filings for one organization.
func (ix *Index) ClaimID(id string) {
	for _, r := range ix.byID[id] {
		if !r.claimed {
			r.claimed = true
			return
		}
	}
}

// SimScore is one reference row scored against a query name.
type SimScore struct {
	Ref   *Ref
	Score float64
	Alias bool // true when the alias name scored higher than the legal name
}

// SimilarInGroup scores every unclaimed row in a blocking group against a
// normalized query name and returns those meeting the threshold
// (inclusive). Both the legal and the alias name are scored; the better of
// the two counts. Groups are the unit of similarity search: the index never
// runs similarity over the whole reference set.
func SimilarInGroup(group []*Ref, normName string, threshold float64) []SimScore {
	var out []SimScore
	for _, r := range group {
		if r.claimed {
			continue
		}
		s := SimScore{Ref: r, Score: Similarity(normName, r.NormName)}
		if r.NormAlias != "" {
			if as := Similarity(normName, r.NormAlias); as > s.Score {
				s.Score, s.Alias = as, true
			}
		}
		if s.Score >= threshold {
			out = append(out, s)
		}
	}
	return out
}

func groupKey(parts ...string) string {
	return strings.Join(parts, "|")
}
