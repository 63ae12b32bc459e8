package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Document is a source text registered through ingestion.
// EstimatedDate is free text ("1000 BC", "c. 1700") and is never assumed numeric.
type Document struct {
	ID            int64   `json:"document_id"`
	Title         string  `json:"title"`
	Author        *string `json:"author"`
	Tradition     *string `json:"tradition"`
	RhetoricType  *string `json:"rhetoric_type"`
	Language      *string `json:"language"`
	EstimatedDate *string `json:"estimated_date"`
	Notes         *string `json:"notes"`
}

// Overview is an LLM summary of a contiguous group of passages.
type Overview struct {
	ID         int64  `json:"overview_id"`
	DocumentID int64  `json:"document_id"`
	Label      string `json:"label"`
	Summary    string `json:"summary"`
}

// Passage is a bounded-size unit of document text.
type Passage struct {
	ID         int64  `json:"passage_id"`
	DocumentID int64  `json:"document_id"`
	OverviewID *int64 `json:"overview_id"`
	Label      string `json:"label"`
	Content    string `json:"content"`
}

// Theme is a corpus-wide topical concept. Embedding is nil until backfilled.
type Theme struct {
	ID          int64     `json:"theme_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
}

// HasEmbedding reports whether the theme carries a usable vector.
func (t Theme) HasEmbedding() bool {
	return len(t.Embedding) > 0
}

// OwnerEmbedding pairs a passage or overview id with its stored vector.
type OwnerEmbedding struct {
	OwnerID int64
	Vector  []float32
}

// Association is one passage_theme or overview_theme row.
type Association struct {
	OwnerID int64   `json:"owner_id"`
	ThemeID int64   `json:"theme_id"`
	Score   float64 `json:"score"`
}

// Row is one result row of a read-only query, keyed by column name.
type Row = map[string]any

// SimilarityQuery parameterizes the passage similarity-search procedure.
type SimilarityQuery struct {
	Vector     []float32
	Limit      int
	Offset     int
	ThemeName  *string
	DocumentID *int64
}

// Job is a queued background task.
type Job struct {
	ID           uuid.UUID      `json:"id"`
	JobType      string         `json:"job_type"`
	Payload      map[string]any `json:"payload"`
	Status       string         `json:"status"`
	Attempts     int            `json:"attempts"`
	ErrorMessage *string        `json:"error_message"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

const (
	JobStatusNew        = "new"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"

	JobTypeScorePassageThemes = "score_passage_themes"
)

// JobLeaseTimeout is how long a job may sit in processing before another worker
// reclaims it. It must exceed the worker's per-job deadline.
const JobLeaseTimeout = 10 * time.Minute

// DocumentRepository manages document rows.
type DocumentRepository interface {
	// CreateDocument inserts doc and sets doc.ID.
	CreateDocument(ctx context.Context, doc *Document) error
	// GetDocument returns ErrNotFound when the id does not exist.
	GetDocument(ctx context.Context, id int64) (*Document, error)
	// ListDocuments returns every document ordered by title.
	ListDocuments(ctx context.Context) ([]Document, error)
}

// OverviewRepository manages overview rows.
type OverviewRepository interface {
	CreateOverview(ctx context.Context, ov *Overview) error
	GetOverview(ctx context.Context, id int64) (*Overview, error)
	ListOverviewsByDocument(ctx context.Context, documentID int64) ([]Overview, error)
	// ListOverviewsPage pages through overviews ordered by id, optionally scoped to one document.
	ListOverviewsPage(ctx context.Context, documentID *int64, limit, offset int) ([]Overview, error)
	// ListOverviewsMissingEmbedding returns overviews with no embedding_overview row.
	ListOverviewsMissingEmbedding(ctx context.Context, documentID *int64, limit int) ([]Overview, error)
}

// PassageRepository manages passage rows.
type PassageRepository interface {
	CreatePassage(ctx context.Context, p *Passage) error
	ListPassagesByDocument(ctx context.Context, documentID int64) ([]Passage, error)
	ListPassagesByOverview(ctx context.Context, overviewID int64) ([]Passage, error)
	// ListPassagesMissingEmbedding returns passages with no embedding_passage row.
	ListPassagesMissingEmbedding(ctx context.Context, documentID *int64, limit int) ([]Passage, error)
}

// EmbeddingRepository stores one vector per passage or overview.
type EmbeddingRepository interface {
	UpsertPassageEmbedding(ctx context.Context, passageID int64, vector []float32) error
	UpsertOverviewEmbedding(ctx context.Context, overviewID int64, vector []float32) error
	// GetOverviewEmbedding returns nil, nil when the overview has not been embedded yet.
	GetOverviewEmbedding(ctx context.Context, overviewID int64) ([]float32, error)
	ListPassageEmbeddings(ctx context.Context, passageIDs []int64) ([]OwnerEmbedding, error)
	// ListPassageEmbeddingsPage pages through embedded passages ordered by passage id.
	ListPassageEmbeddingsPage(ctx context.Context, documentID *int64, limit, offset int) ([]OwnerEmbedding, error)
}

// ThemeRepository manages theme rows. Names are unique.
type ThemeRepository interface {
	FindThemesByNames(ctx context.Context, names []string) ([]Theme, error)
	// UpsertThemes inserts themes by name, leaving existing rows' descriptions untouched,
	// and returns the stored rows for every requested name.
	UpsertThemes(ctx context.Context, themes []Theme) ([]Theme, error)
	UpdateThemeEmbedding(ctx context.Context, themeID int64, vector []float32) error
	ListThemesWithEmbeddings(ctx context.Context) ([]Theme, error)
	ListThemesMissingEmbedding(ctx context.Context, limit int) ([]Theme, error)
}

// AssociationRepository manages passage_theme and overview_theme rows.
type AssociationRepository interface {
	UpsertPassageThemes(ctx context.Context, rows []Association) error
	UpsertOverviewThemes(ctx context.Context, rows []Association) error
	DeletePassageThemes(ctx context.Context, documentID *int64) (int64, error)
	DeleteOverviewThemes(ctx context.Context, documentID *int64) (int64, error)
	CountPassageThemes(ctx context.Context) (int64, error)
	SamplePassageThemes(ctx context.Context, limit int) ([]Association, error)
}

// QueryRepository runs read-only statements and the search procedures.
type QueryRepository interface {
	// ExecuteReadOnly runs a single statement inside a read-only transaction.
	ExecuteReadOnly(ctx context.Context, sql string) ([]Row, error)
	SearchPassagesByEmbedding(ctx context.Context, q SimilarityQuery) ([]Row, error)
	SearchPassagesByText(ctx context.Context, text string, documentID *int64, limit, offset int) ([]Row, error)
}

// JobRepository is the background task queue.
type JobRepository interface {
	Enqueue(ctx context.Context, job *Job) error
	// AcquireNextJob claims the oldest runnable job, or returns nil, nil when idle.
	AcquireNextJob(ctx context.Context) (*Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
}
