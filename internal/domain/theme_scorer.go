package domain

import (
	"cmp"
	"slices"
)

const (
	// DefaultTopN is how many themes are linked to each passage or overview.
	DefaultTopN = 8
	// MaxAssociationBatch caps the rows sent in a single association upsert.
	MaxAssociationBatch = 500
)

// ThemeScore is the similarity between one owner vector and one theme.
type ThemeScore struct {
	ThemeID int64   `json:"theme_id"`
	Score   float64 `json:"score"`
}

// ScoreTopN scores owner against every candidate theme with a vector of the same
// dimension and returns at most topN scores, highest first. Ties keep candidate order.
// Every returned score is finite.
func ScoreTopN(owner []float32, candidates []Theme, topN int) []ThemeScore {
	if topN <= 0 || len(owner) == 0 {
		return []ThemeScore{}
	}

	scores := make([]ThemeScore, 0, len(candidates))
	for _, th := range candidates {
		if len(th.Embedding) == 0 || len(th.Embedding) != len(owner) {
			continue
		}
		scores = append(scores, ThemeScore{ThemeID: th.ID, Score: Finite(Cosine(owner, th.Embedding))})
	}

	slices.SortStableFunc(scores, func(a, b ThemeScore) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(scores) > topN {
		scores = scores[:topN]
	}
	return scores
}

// ToAssociations turns the scores of one owner into association rows.
func ToAssociations(ownerID int64, scores []ThemeScore) []Association {
	rows := make([]Association, len(scores))
	for i, s := range scores {
		rows[i] = Association{OwnerID: ownerID, ThemeID: s.ThemeID, Score: Finite(s.Score)}
	}
	return rows
}

// ChunkAssociations splits rows into consecutive batches of at most size rows.
// A non-positive size (or one above MaxAssociationBatch) is clamped to MaxAssociationBatch.
func ChunkAssociations(rows []Association, size int) [][]Association {
	if size <= 0 || size > MaxAssociationBatch {
		size = MaxAssociationBatch
	}
	var chunks [][]Association
	for chunk := range slices.Chunk(rows, size) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
