// Package retrieval combines ranked passage lists.
package retrieval

import (
	"cmp"
	"fmt"
	"slices"

	"writing-comparator/internal/domain"
)

// DefaultRRFK is the rank constant of reciprocal rank fusion.
const DefaultRRFK = 60.0

type fused struct {
	row   domain.Row
	score float64
	first int
}

// FuseRRF merges ranked row lists with reciprocal rank fusion. Rows are matched by
// keyField; a row's fused score is the sum of 1/(k+rank) over every list it appears
// in, with ranks starting at 1 and counted over distinct keys. A key repeated within
// one list scores once, at its first position. The first occurrence of a row supplies
// its columns and missing columns are filled from later ones. Rows without the key
// are dropped.
// The result is ordered by fused score, ties keeping first-seen order, and each row
// carries the score under "rrf_score".
func FuseRRF(lists [][]domain.Row, keyField string, k float64) []domain.Row {
	if k <= 0 {
		k = DefaultRRFK
	}

	byKey := make(map[string]*fused)
	var order []*fused
	for _, list := range lists {
		seen := make(map[string]struct{}, len(list))
		rank := 0
		for _, row := range list {
			v, ok := row[keyField]
			if !ok || v == nil {
				continue
			}
			key := fmt.Sprint(v)
			_, repeated := seen[key]
			f, exists := byKey[key]
			if !exists {
				f = &fused{row: make(domain.Row, len(row)+1), first: len(order)}
				byKey[key] = f
				order = append(order, f)
			}
			for col, val := range row {
				if cur, has := f.row[col]; !has || cur == nil {
					f.row[col] = val
				}
			}
			if repeated {
				continue
			}
			seen[key] = struct{}{}
			rank++
			f.score += 1.0 / (k + float64(rank))
		}
	}

	slices.SortStableFunc(order, func(a, b *fused) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.first, b.first)
	})

	out := make([]domain.Row, len(order))
	for i, f := range order {
		f.row["rrf_score"] = f.score
		out[i] = f.row
	}
	return out
}
