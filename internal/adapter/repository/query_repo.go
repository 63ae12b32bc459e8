package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"writing-comparator/internal/domain"
)

type queryRepository struct {
	pool             PgxPool
	statementTimeout time.Duration
}

// NewQueryRepository creates a QueryRepository. A positive statementTimeout bounds every
// read-only statement it executes.
func NewQueryRepository(pool PgxPool, statementTimeout time.Duration) domain.QueryRepository {
	return &queryRepository{pool: pool, statementTimeout: statementTimeout}
}

func (r *queryRepository) ExecuteReadOnly(ctx context.Context, sql string) ([]domain.Row, error) {
	var out []domain.Row
	err := runInTx(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx pgx.Tx) error {
		if r.statementTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", r.statementTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to set statement timeout: %w", err)
			}
		}
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return err
		}
		out, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *queryRepository) SearchPassagesByEmbedding(ctx context.Context, q domain.SimilarityQuery) ([]domain.Row, error) {
	query := `
		SELECT passage_id, document_id, overview_id, label, content, title, theme_name, similarity
		FROM search_passages_by_embedding($1, $2, $3, $4, $5)
	`
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query,
		pgvector.NewVector(q.Vector), q.Limit, q.Offset, q.ThemeName, q.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages by embedding: %w", err)
	}
	return collectRows(rows)
}

func (r *queryRepository) SearchPassagesByText(ctx context.Context, text string, documentID *int64, limit, offset int) ([]domain.Row, error) {
	query := `
		SELECT p.passage_id, p.document_id, p.overview_id, p.label, p.content, d.title,
		       ts_rank_cd(to_tsvector('english', p.content), plainto_tsquery('english', $1))::float8 AS similarity
		FROM passage p
		JOIN document d ON d.document_id = p.document_id
		WHERE to_tsvector('english', p.content) @@ plainto_tsquery('english', $1)
		  AND ($2::int IS NULL OR p.document_id = $2)
		ORDER BY similarity DESC, p.passage_id ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query, text, documentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages by text: %w", err)
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]domain.Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Row, len(maps))
	for i, m := range maps {
		for k, v := range m {
			m[k] = normalizeValue(v)
		}
		out[i] = m
	}
	return out, nil
}

// normalizeValue turns driver-specific values into ones that encode cleanly as JSON.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgvector.Vector:
		return t.Slice()
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
