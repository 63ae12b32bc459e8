package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/pgvector/pgvector-go"

	"writing-comparator/internal/domain"
)

// themeChunkSize bounds the array parameters of a single theme lookup or insert.
const themeChunkSize = 200

type themeRepository struct {
	pool PgxPool
}

// NewThemeRepository creates a new ThemeRepository.
func NewThemeRepository(pool PgxPool) domain.ThemeRepository {
	return &themeRepository{pool: pool}
}

func (r *themeRepository) FindThemesByNames(ctx context.Context, names []string) ([]domain.Theme, error) {
	query := `
		SELECT theme_id, name, COALESCE(description, ''), embedding_vector::text
		FROM theme
		WHERE name = ANY($1)
		ORDER BY theme_id ASC
	`
	var out []domain.Theme
	for chunk := range slices.Chunk(uniqueNames(names), themeChunkSize) {
		themes, err := r.queryThemes(ctx, query, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, themes...)
	}
	return out, nil
}

func (r *themeRepository) UpsertThemes(ctx context.Context, themes []domain.Theme) ([]domain.Theme, error) {
	query := `
		INSERT INTO theme (name, description)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (name) DO UPDATE SET description = COALESCE(theme.description, EXCLUDED.description)
		RETURNING theme_id, name, COALESCE(description, ''), embedding_vector::text
	`
	seen := make(map[string]struct{}, len(themes))
	deduped := make([]domain.Theme, 0, len(themes))
	for _, t := range themes {
		if t.Name == "" {
			continue
		}
		if _, ok := seen[t.Name]; ok {
			continue
		}
		seen[t.Name] = struct{}{}
		deduped = append(deduped, t)
	}

	var out []domain.Theme
	for chunk := range slices.Chunk(deduped, themeChunkSize) {
		names := make([]string, len(chunk))
		descriptions := make([]*string, len(chunk))
		for i, t := range chunk {
			names[i] = t.Name
			if t.Description != "" {
				d := t.Description
				descriptions[i] = &d
			}
		}
		stored, err := r.queryThemes(ctx, query, names, descriptions)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert themes: %w", err)
		}
		out = append(out, stored...)
	}
	return out, nil
}

func (r *themeRepository) UpdateThemeEmbedding(ctx context.Context, themeID int64, vector []float32) error {
	query := `UPDATE theme SET embedding_vector = $1 WHERE theme_id = $2`
	tag, err := getExecutor(ctx, r.pool).Exec(ctx, query, pgvector.NewVector(vector), themeID)
	if err != nil {
		return fmt.Errorf("failed to update theme embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *themeRepository) ListThemesWithEmbeddings(ctx context.Context) ([]domain.Theme, error) {
	query := `
		SELECT theme_id, name, COALESCE(description, ''), embedding_vector
		FROM theme
		WHERE embedding_vector IS NOT NULL
		ORDER BY theme_id ASC
	`
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	defer rows.Close()

	var out []domain.Theme
	for rows.Next() {
		var (
			t domain.Theme
			v pgvector.Vector
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &v); err != nil {
			return nil, fmt.Errorf("failed to scan theme: %w", err)
		}
		t.Embedding = v.Slice()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *themeRepository) ListThemesMissingEmbedding(ctx context.Context, limit int) ([]domain.Theme, error) {
	query := `
		SELECT theme_id, name, COALESCE(description, ''), NULL::text
		FROM theme
		WHERE embedding_vector IS NULL
		ORDER BY theme_id ASC
		LIMIT $1
	`
	return r.queryThemes(ctx, query, limit)
}

// queryThemes scans rows whose vector column arrives as nullable text.
func (r *themeRepository) queryThemes(ctx context.Context, query string, args ...any) ([]domain.Theme, error) {
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query themes: %w", err)
	}
	defer rows.Close()

	var out []domain.Theme
	for rows.Next() {
		var (
			t   domain.Theme
			vec *string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan theme: %w", err)
		}
		if vec != nil {
			t.Embedding = domain.Coerce(*vec)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
