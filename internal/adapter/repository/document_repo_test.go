package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"writing-comparator/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestDocumentRepository_CreateDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepository(mock)
	doc := &domain.Document{Title: "Psalms", RhetoricType: strPtr("poetry"), EstimatedDate: strPtr("1000 BC")}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO document")).
		WithArgs("Psalms", doc.Author, doc.Tradition, doc.RhetoricType, doc.Language, doc.EstimatedDate, doc.Notes).
		WillReturnRows(pgxmock.NewRows([]string{"document_id"}).AddRow(int64(7)))

	require.NoError(t, repo.CreateDocument(context.Background(), doc))
	assert.Equal(t, int64(7), doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetDocument_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM document")).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetDocument(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_ListDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepository(mock)

	cols := []string{"document_id", "title", "author", "tradition", "rhetoric_type", "language", "estimated_date", "notes"}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY title ASC")).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(2), "Iliad", nil, nil, nil, nil, nil, nil).
			AddRow(int64(1), "Psalms", nil, nil, nil, nil, nil, nil))

	docs, err := repo.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Iliad", docs[0].Title)
	assert.Equal(t, int64(1), docs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
