package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"writing-comparator/internal/domain"
)

type embeddingRepository struct {
	pool PgxPool
}

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(pool PgxPool) domain.EmbeddingRepository {
	return &embeddingRepository{pool: pool}
}

func (r *embeddingRepository) UpsertPassageEmbedding(ctx context.Context, passageID int64, vector []float32) error {
	query := `
		INSERT INTO embedding_passage (passage_id, embedding_vector)
		VALUES ($1, $2)
		ON CONFLICT (passage_id) DO UPDATE SET embedding_vector = EXCLUDED.embedding_vector
	`
	if _, err := getExecutor(ctx, r.pool).Exec(ctx, query, passageID, pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("failed to upsert passage embedding: %w", err)
	}
	return nil
}

func (r *embeddingRepository) UpsertOverviewEmbedding(ctx context.Context, overviewID int64, vector []float32) error {
	query := `
		INSERT INTO embedding_overview (overview_id, embedding_vector)
		VALUES ($1, $2)
		ON CONFLICT (overview_id) DO UPDATE SET embedding_vector = EXCLUDED.embedding_vector
	`
	if _, err := getExecutor(ctx, r.pool).Exec(ctx, query, overviewID, pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("failed to upsert overview embedding: %w", err)
	}
	return nil
}

func (r *embeddingRepository) GetOverviewEmbedding(ctx context.Context, overviewID int64) ([]float32, error) {
	query := `SELECT embedding_vector FROM embedding_overview WHERE overview_id = $1`

	var v pgvector.Vector
	err := getExecutor(ctx, r.pool).QueryRow(ctx, query, overviewID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get overview embedding: %w", err)
	}
	return v.Slice(), nil
}

func (r *embeddingRepository) ListPassageEmbeddings(ctx context.Context, passageIDs []int64) ([]domain.OwnerEmbedding, error) {
	if len(passageIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT passage_id, embedding_vector
		FROM embedding_passage
		WHERE passage_id = ANY($1)
		ORDER BY passage_id ASC
	`
	return r.list(ctx, query, passageIDs)
}

func (r *embeddingRepository) ListPassageEmbeddingsPage(ctx context.Context, documentID *int64, limit, offset int) ([]domain.OwnerEmbedding, error) {
	query := `
		SELECT ep.passage_id, ep.embedding_vector
		FROM embedding_passage ep
		JOIN passage p ON p.passage_id = ep.passage_id
		WHERE ($1::int IS NULL OR p.document_id = $1)
		ORDER BY ep.passage_id ASC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, documentID, limit, offset)
}

func (r *embeddingRepository) list(ctx context.Context, query string, args ...any) ([]domain.OwnerEmbedding, error) {
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.OwnerEmbedding
	for rows.Next() {
		var (
			id int64
			v  pgvector.Vector
		)
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out = append(out, domain.OwnerEmbedding{OwnerID: id, Vector: v.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
