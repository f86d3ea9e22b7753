package match

// bestCandidate collapses the candidates one source entity collected within
// a single tier down to the winner: highest similarity, ties broken by
// lexicographically smallest reference ID. The tie-break keeps reruns
// reproducible regardless of candidate collection order.
func bestCandidate(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Similarity > best.Similarity ||
			(c.Similarity == best.Similarity && c.ReferenceID < best.ReferenceID) {
			best = c
		}
	}
	return best, true
}
