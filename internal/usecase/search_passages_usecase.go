package usecase

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/usecase/resultset"
	"writing-comparator/internal/usecase/retrieval"
)

const (
	SearchModeText   = "text"
	SearchModeVector = "vector"
	SearchModeHybrid = "hybrid"

	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// SearchInput is a passage search request.
type SearchInput struct {
	Query      string
	Mode       string
	Limit      int
	Offset     int
	DocumentID *int64
}

type SearchPassagesUsecase interface {
	// Search ranks passages by full-text relevance, by similarity to the query
	// embedding, or by both fused with reciprocal rank fusion.
	Search(ctx context.Context, in SearchInput) ([]domain.Row, error)
}

type searchPassagesUsecase struct {
	encoder   domain.VectorEncoder
	queryRepo domain.QueryRepository
}

func NewSearchPassagesUsecase(encoder domain.VectorEncoder, queryRepo domain.QueryRepository) SearchPassagesUsecase {
	return &searchPassagesUsecase{encoder: encoder, queryRepo: queryRepo}
}

func (u *searchPassagesUsecase) Search(ctx context.Context, in SearchInput) ([]domain.Row, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)
	offset := max(0, in.Offset)

	switch in.Mode {
	case "", SearchModeText:
		return u.byText(ctx, in, limit, offset)
	case SearchModeVector:
		return u.byVector(ctx, in, limit, offset)
	case SearchModeHybrid:
		// Both rankings are fetched from the start so fusion sees the same window.
		var text, vector []domain.Row
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			text, err = u.byText(gctx, in, offset+limit, 0)
			return err
		})
		g.Go(func() (err error) {
			vector, err = u.byVector(gctx, in, offset+limit, 0)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		fused := retrieval.FuseRRF([][]domain.Row{text, vector}, "passage_id", retrieval.DefaultRRFK)
		if offset >= len(fused) {
			return []domain.Row{}, nil
		}
		return fused[offset:min(offset+limit, len(fused))], nil
	default:
		return nil, fmt.Errorf("unknown search mode %q", in.Mode)
	}
}

func (u *searchPassagesUsecase) byText(ctx context.Context, in SearchInput, limit, offset int) ([]domain.Row, error) {
	rows, err := u.queryRepo.SearchPassagesByText(ctx, in.Query, in.DocumentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages by text: %w", err)
	}
	return rows, nil
}

func (u *searchPassagesUsecase) byVector(ctx context.Context, in SearchInput, limit, offset int) ([]domain.Row, error) {
	vector, err := u.encoder.Embed(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}
	rows, err := u.queryRepo.SearchPassagesByEmbedding(ctx, domain.SimilarityQuery{
		Vector:     vector,
		Limit:      limit,
		Offset:     offset,
		DocumentID: in.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search passages by embedding: %w", err)
	}
	// The procedure emits one row per linked theme; fold them into one row per passage.
	merged := resultset.Dedupe(rows, resultset.Options{MaxRows: len(rows), MaxContent: math.MaxInt})
	return merged.Rows, nil
}
