package triage

import (
	"github.com/stewardbot/steward/internal/types"
)

// Similarity score boundaries for partitioning ranked matches. A score
// above duplicateSimilarity suggests the same underlying report; scores in
// [relatedSimilarity, duplicateSimilarity) are worth cross-referencing but
// not flagging.
const (
	duplicateSimilarity = 0.85
	relatedSimilarity   = 0.70
)

// Buckets is the partition of ranked similarity results for one issue.
type Buckets struct {
	// Duplicates are matches similar enough to be the same report.
	Duplicates []types.SimilarityMatch
	// Related are issue numbers similar enough to cross-reference.
	Related []int
	// DuplicateConfidence is the highest similarity among the duplicate
	// candidates, or 0 when there are none.
	DuplicateConfidence float64
}

// BucketMatches partitions ranked similarity results into duplicate
// candidates, related issues, and discards. The issue's own number is
// excluded unconditionally, whatever its score.
func BucketMatches(matches []types.SimilarityMatch, selfNumber int) Buckets {
	var out Buckets
	for _, m := range matches {
		if m.Number == selfNumber {
			continue
		}
		switch {
		case m.Score > duplicateSimilarity:
			out.Duplicates = append(out.Duplicates, m)
			if m.Score > out.DuplicateConfidence {
				out.DuplicateConfidence = m.Score
			}
		case m.Score >= relatedSimilarity && m.Score < duplicateSimilarity:
			out.Related = append(out.Related, m.Number)
		}
	}
	return out
}
