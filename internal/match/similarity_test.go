package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("ACME MANUFACTURING", "ACME MANUFACTURING"))
}

func TestSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("ACME", ""))
}

func TestSimilarity_BelowTrigramSize(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("AB", "ACME"))
	assert.Equal(t, 0.0, Similarity("ACME", "AB"))
}

func TestSimilarity_Disjoint(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("ACME", "ZYXW"))
}

func TestSimilarity_CloseNames(t *testing.T) {
	s := Similarity("ACME MFG", "ACME MANUFACTURING")
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 1.0)
}

func TestSimilarity_AbbreviationScoresAgainstFullForm(t *testing.T) {
	// Abbreviated names must clear the strictest fuzzy cutoff against
	// their full forms; overlap normalizes by the smaller trigram set.
	s := Similarity("ACME MFG", "ACME MANUFACTURING")
	assert.GreaterOrEqual(t, s, DefaultThresholds().FuzzyZip)
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := "WIDGET WORKS", "WIDGET WORKSHOP"
	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestSimilarity_OrderedByCloseness(t *testing.T) {
	// A near-identical name scores above a loosely related one.
	near := Similarity("ACME MANUFACTURING", "ACME MANUFACTURIN")
	far := Similarity("ACME MANUFACTURING", "ACE MOTORS")
	assert.Greater(t, near, far)
}

func TestSimilarInGroup_InclusiveThreshold(t *testing.T) {
	refs := []ReferenceEntity{
		{ID: "R1", Name: "Widget Works", State: "PA", PostalCode: "15213"},
	}
	ix := NewIndex(refs)
	group := ix.GroupPostal("15213")

	s := Similarity("WIDGET WORKS", ix.rows[0].NormName)
	assert.Equal(t, 1.0, s)

	// A threshold exactly equal to the score still admits the candidate.
	got := SimilarInGroup(group, "WIDGET WORKS", 1.0)
	assert.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].Ref.Entity.ID)
}
