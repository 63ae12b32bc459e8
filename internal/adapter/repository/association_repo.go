package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"writing-comparator/internal/domain"
)

type associationRepository struct {
	pool PgxPool
}

// NewAssociationRepository creates a new AssociationRepository.
func NewAssociationRepository(pool PgxPool) domain.AssociationRepository {
	return &associationRepository{pool: pool}
}

func (r *associationRepository) UpsertPassageThemes(ctx context.Context, rows []domain.Association) error {
	query := `
		INSERT INTO passage_theme (passage_id, theme_id, score)
		SELECT * FROM unnest($1::int[], $2::int[], $3::real[])
		ON CONFLICT (passage_id, theme_id) DO UPDATE SET score = EXCLUDED.score
	`
	return r.upsert(ctx, query, rows)
}

func (r *associationRepository) UpsertOverviewThemes(ctx context.Context, rows []domain.Association) error {
	query := `
		INSERT INTO overview_theme (overview_id, theme_id, score)
		SELECT * FROM unnest($1::int[], $2::int[], $3::real[])
		ON CONFLICT (overview_id, theme_id) DO UPDATE SET score = EXCLUDED.score
	`
	return r.upsert(ctx, query, rows)
}

// upsert writes rows in statements of at most domain.MaxAssociationBatch rows, all in one
// transaction. A pair repeated within rows keeps its last score.
func (r *associationRepository) upsert(ctx context.Context, query string, rows []domain.Association) error {
	rows = dedupeAssociations(rows)
	if len(rows) == 0 {
		return nil
	}

	return runInTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		for _, chunk := range domain.ChunkAssociations(rows, domain.MaxAssociationBatch) {
			owners := make([]int64, len(chunk))
			themes := make([]int64, len(chunk))
			scores := make([]float32, len(chunk))
			for i, a := range chunk {
				owners[i] = a.OwnerID
				themes[i] = a.ThemeID
				scores[i] = float32(a.Score)
			}
			if _, err := tx.Exec(ctx, query, owners, themes, scores); err != nil {
				return fmt.Errorf("failed to upsert associations: %w", err)
			}
		}
		return nil
	})
}

func (r *associationRepository) DeletePassageThemes(ctx context.Context, documentID *int64) (int64, error) {
	query := `
		DELETE FROM passage_theme pt
		USING passage p
		WHERE p.passage_id = pt.passage_id
		  AND ($1::int IS NULL OR p.document_id = $1)
	`
	tag, err := getExecutor(ctx, r.pool).Exec(ctx, query, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete passage themes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *associationRepository) DeleteOverviewThemes(ctx context.Context, documentID *int64) (int64, error) {
	query := `
		DELETE FROM overview_theme ot
		USING overview o
		WHERE o.overview_id = ot.overview_id
		  AND ($1::int IS NULL OR o.document_id = $1)
	`
	tag, err := getExecutor(ctx, r.pool).Exec(ctx, query, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete overview themes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *associationRepository) CountPassageThemes(ctx context.Context) (int64, error) {
	var n int64
	if err := getExecutor(ctx, r.pool).QueryRow(ctx, `SELECT count(*) FROM passage_theme`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passage themes: %w", err)
	}
	return n, nil
}

func (r *associationRepository) SamplePassageThemes(ctx context.Context, limit int) ([]domain.Association, error) {
	query := `
		SELECT passage_id, theme_id, COALESCE(score, 0)::float8
		FROM passage_theme
		ORDER BY score DESC NULLS LAST
		LIMIT $1
	`
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample passage themes: %w", err)
	}
	defer rows.Close()

	var out []domain.Association
	for rows.Next() {
		var a domain.Association
		if err := rows.Scan(&a.OwnerID, &a.ThemeID, &a.Score); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func dedupeAssociations(rows []domain.Association) []domain.Association {
	type pair struct{ owner, theme int64 }
	index := make(map[pair]int, len(rows))
	out := make([]domain.Association, 0, len(rows))
	for _, a := range rows {
		k := pair{a.OwnerID, a.ThemeID}
		if i, ok := index[k]; ok {
			out[i] = a
			continue
		}
		index[k] = len(out)
		out = append(out, a)
	}
	return out
}
