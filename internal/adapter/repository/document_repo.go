package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"writing-comparator/internal/domain"
)

type documentRepository struct {
	pool PgxPool
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(pool PgxPool) domain.DocumentRepository {
	return &documentRepository{pool: pool}
}

func (r *documentRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO document (title, author, tradition, rhetoric_type, language, estimated_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING document_id
	`
	err := getExecutor(ctx, r.pool).QueryRow(ctx, query,
		doc.Title,
		doc.Author,
		doc.Tradition,
		doc.RhetoricType,
		doc.Language,
		doc.EstimatedDate,
		doc.Notes,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *documentRepository) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	query := `
		SELECT document_id, title, author, tradition, rhetoric_type, language, estimated_date, notes
		FROM document
		WHERE document_id = $1
	`
	var d domain.Document
	err := getExecutor(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Title, &d.Author, &d.Tradition, &d.RhetoricType, &d.Language, &d.EstimatedDate, &d.Notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

func (r *documentRepository) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	query := `
		SELECT document_id, title, author, tradition, rhetoric_type, language, estimated_date, notes
		FROM document
		ORDER BY title ASC, document_id ASC
	`
	rows, err := getExecutor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Author, &d.Tradition, &d.RhetoricType, &d.Language, &d.EstimatedDate, &d.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}
