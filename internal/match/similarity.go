package match

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// trigram is a reusable character-trigram overlap metric: shared trigrams
// over the smaller trigram set, the in-process analogue of pg_trgm
// word_similarity(). Normalizing by the smaller set keeps abbreviated
// names scoring high against their full forms ("ACME MFG" against
// "ACME MANUFACTURING"); a union-normalized metric sinks those pairs below
// every tier threshold. Inputs are normalized names, already uppercased.
var trigram = func() *metrics.OverlapCoefficient {
	m := metrics.NewOverlapCoefficient()
	m.NgramSize = 3
	m.CaseSensitive = false
	return m
}()

// Similarity scores two normalized names on [0, 1] using trigram overlap.
// Names shorter than one trigram score 0 against everything; such names are
// already excluded from matching by the MinNameLength guard.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if len(a) < 3 || len(b) < 3 {
		return 0
	}
	return strutil.Similarity(a, b, trigram)
}
