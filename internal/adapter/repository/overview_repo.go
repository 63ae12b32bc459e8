package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"writing-comparator/internal/domain"
)

type overviewRepository struct {
	pool PgxPool
}

// NewOverviewRepository creates a new OverviewRepository.
func NewOverviewRepository(pool PgxPool) domain.OverviewRepository {
	return &overviewRepository{pool: pool}
}

func (r *overviewRepository) CreateOverview(ctx context.Context, ov *domain.Overview) error {
	query := `
		INSERT INTO overview (document_id, label, summary)
		VALUES ($1, $2, $3)
		RETURNING overview_id
	`
	if err := getExecutor(ctx, r.pool).QueryRow(ctx, query, ov.DocumentID, ov.Label, ov.Summary).Scan(&ov.ID); err != nil {
		return fmt.Errorf("failed to create overview: %w", err)
	}
	return nil
}

func (r *overviewRepository) GetOverview(ctx context.Context, id int64) (*domain.Overview, error) {
	query := `SELECT overview_id, document_id, label, summary FROM overview WHERE overview_id = $1`

	var ov domain.Overview
	err := getExecutor(ctx, r.pool).QueryRow(ctx, query, id).Scan(&ov.ID, &ov.DocumentID, &ov.Label, &ov.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get overview: %w", err)
	}
	return &ov, nil
}

func (r *overviewRepository) ListOverviewsByDocument(ctx context.Context, documentID int64) ([]domain.Overview, error) {
	query := `
		SELECT overview_id, document_id, label, summary
		FROM overview
		WHERE document_id = $1
		ORDER BY overview_id ASC
	`
	return r.list(ctx, query, documentID)
}

func (r *overviewRepository) ListOverviewsPage(ctx context.Context, documentID *int64, limit, offset int) ([]domain.Overview, error) {
	query := `
		SELECT overview_id, document_id, label, summary
		FROM overview
		WHERE ($1::int IS NULL OR document_id = $1)
		ORDER BY overview_id ASC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, documentID, limit, offset)
}

func (r *overviewRepository) ListOverviewsMissingEmbedding(ctx context.Context, documentID *int64, limit int) ([]domain.Overview, error) {
	query := `
		SELECT o.overview_id, o.document_id, o.label, o.summary
		FROM overview o
		LEFT JOIN embedding_overview eo ON eo.overview_id = o.overview_id
		WHERE eo.overview_id IS NULL
		  AND ($1::int IS NULL OR o.document_id = $1)
		ORDER BY o.overview_id ASC
		LIMIT $2
	`
	return r.list(ctx, query, documentID, limit)
}

func (r *overviewRepository) list(ctx context.Context, query string, args ...any) ([]domain.Overview, error) {
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overviews: %w", err)
	}
	defer rows.Close()

	var out []domain.Overview
	for rows.Next() {
		var ov domain.Overview
		if err := rows.Scan(&ov.ID, &ov.DocumentID, &ov.Label, &ov.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan overview: %w", err)
		}
		out = append(out, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
