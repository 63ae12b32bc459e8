package repository

import (
	"context"
	"fmt"

	"writing-comparator/internal/domain"
)

type passageRepository struct {
	pool PgxPool
}

// NewPassageRepository creates a new PassageRepository.
func NewPassageRepository(pool PgxPool) domain.PassageRepository {
	return &passageRepository{pool: pool}
}

func (r *passageRepository) CreatePassage(ctx context.Context, p *domain.Passage) error {
	query := `
		INSERT INTO passage (document_id, overview_id, label, content)
		VALUES ($1, $2, $3, $4)
		RETURNING passage_id
	`
	if err := getExecutor(ctx, r.pool).QueryRow(ctx, query, p.DocumentID, p.OverviewID, p.Label, p.Content).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to create passage: %w", err)
	}
	return nil
}

func (r *passageRepository) ListPassagesByDocument(ctx context.Context, documentID int64) ([]domain.Passage, error) {
	query := `
		SELECT passage_id, document_id, overview_id, label, content
		FROM passage
		WHERE document_id = $1
		ORDER BY passage_id ASC
	`
	return r.list(ctx, query, documentID)
}

func (r *passageRepository) ListPassagesByOverview(ctx context.Context, overviewID int64) ([]domain.Passage, error) {
	query := `
		SELECT passage_id, document_id, overview_id, label, content
		FROM passage
		WHERE overview_id = $1
		ORDER BY passage_id ASC
	`
	return r.list(ctx, query, overviewID)
}

func (r *passageRepository) ListPassagesMissingEmbedding(ctx context.Context, documentID *int64, limit int) ([]domain.Passage, error) {
	query := `
		SELECT p.passage_id, p.document_id, p.overview_id, p.label, p.content
		FROM passage p
		LEFT JOIN embedding_passage ep ON ep.passage_id = p.passage_id
		WHERE ep.passage_id IS NULL
		  AND ($1::int IS NULL OR p.document_id = $1)
		ORDER BY p.passage_id ASC
		LIMIT $2
	`
	return r.list(ctx, query, documentID, limit)
}

func (r *passageRepository) list(ctx context.Context, query string, args ...any) ([]domain.Passage, error) {
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.OverviewID, &p.Label, &p.Content); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
