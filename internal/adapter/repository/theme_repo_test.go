package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"writing-comparator/internal/domain"
)

var themeCols = []string{"theme_id", "name", "description", "embedding_vector"}

func TestThemeRepository_FindThemesByNames_ParsesVectorText(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewThemeRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE name = ANY($1)")).
		WithArgs([]string{"love", "war"}).
		WillReturnRows(pgxmock.NewRows(themeCols).
			AddRow(int64(1), "love", "a feeling", strPtr("[0.5,0.25]")).
			AddRow(int64(2), "war", "", nil))

	themes, err := repo.FindThemesByNames(context.Background(), []string{"love", "war", "love", ""})
	require.NoError(t, err)
	require.Len(t, themes, 2)
	assert.Equal(t, []float32{0.5, 0.25}, themes[0].Embedding)
	assert.False(t, themes[1].HasEmbedding())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestThemeRepository_UpsertThemes_ChunksAndDedupes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewThemeRepository(mock)

	var input []domain.Theme
	for i := range 201 {
		input = append(input, domain.Theme{Name: fmt.Sprintf("theme-%d", i), Description: "d"})
	}
	input = append(input, domain.Theme{Name: "theme-0"}, domain.Theme{Name: ""})

	first := pgxmock.NewRows(themeCols)
	for i := range 200 {
		first.AddRow(int64(i+1), fmt.Sprintf("theme-%d", i), "d", nil)
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO theme")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(first)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO theme")).
		WithArgs([]string{"theme-200"}, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(themeCols).AddRow(int64(201), "theme-200", "d", nil))

	stored, err := repo.UpsertThemes(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, stored, 201)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestThemeRepository_UpdateThemeEmbedding_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewThemeRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE theme SET embedding_vector")).
		WithArgs(pgxmock.AnyArg(), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.UpdateThemeEmbedding(context.Background(), 5, []float32{1, 2})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
