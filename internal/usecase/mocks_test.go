package usecase_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/usecase"
)

// --- Mocks ---

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

type MockOverviewRepository struct {
	mock.Mock
}

func (m *MockOverviewRepository) CreateOverview(ctx context.Context, ov *domain.Overview) error {
	args := m.Called(ctx, ov)
	return args.Error(0)
}

func (m *MockOverviewRepository) GetOverview(ctx context.Context, id int64) (*domain.Overview, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Overview), args.Error(1)
}

func (m *MockOverviewRepository) ListOverviewsByDocument(ctx context.Context, documentID int64) ([]domain.Overview, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Overview), args.Error(1)
}

func (m *MockOverviewRepository) ListOverviewsPage(ctx context.Context, documentID *int64, limit, offset int) ([]domain.Overview, error) {
	args := m.Called(ctx, documentID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Overview), args.Error(1)
}

func (m *MockOverviewRepository) ListOverviewsMissingEmbedding(ctx context.Context, documentID *int64, limit int) ([]domain.Overview, error) {
	args := m.Called(ctx, documentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Overview), args.Error(1)
}

type MockPassageRepository struct {
	mock.Mock
}

func (m *MockPassageRepository) CreatePassage(ctx context.Context, p *domain.Passage) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPassageRepository) ListPassagesByDocument(ctx context.Context, documentID int64) ([]domain.Passage, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Passage), args.Error(1)
}

func (m *MockPassageRepository) ListPassagesByOverview(ctx context.Context, overviewID int64) ([]domain.Passage, error) {
	args := m.Called(ctx, overviewID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Passage), args.Error(1)
}

func (m *MockPassageRepository) ListPassagesMissingEmbedding(ctx context.Context, documentID *int64, limit int) ([]domain.Passage, error) {
	args := m.Called(ctx, documentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Passage), args.Error(1)
}

type MockEmbeddingRepository struct {
	mock.Mock
}

func (m *MockEmbeddingRepository) UpsertPassageEmbedding(ctx context.Context, passageID int64, vector []float32) error {
	args := m.Called(ctx, passageID, vector)
	return args.Error(0)
}

func (m *MockEmbeddingRepository) UpsertOverviewEmbedding(ctx context.Context, overviewID int64, vector []float32) error {
	args := m.Called(ctx, overviewID, vector)
	return args.Error(0)
}

func (m *MockEmbeddingRepository) GetOverviewEmbedding(ctx context.Context, overviewID int64) ([]float32, error) {
	args := m.Called(ctx, overviewID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingRepository) ListPassageEmbeddings(ctx context.Context, passageIDs []int64) ([]domain.OwnerEmbedding, error) {
	args := m.Called(ctx, passageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OwnerEmbedding), args.Error(1)
}

func (m *MockEmbeddingRepository) ListPassageEmbeddingsPage(ctx context.Context, documentID *int64, limit, offset int) ([]domain.OwnerEmbedding, error) {
	args := m.Called(ctx, documentID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OwnerEmbedding), args.Error(1)
}

type MockThemeRepository struct {
	mock.Mock
}

func (m *MockThemeRepository) FindThemesByNames(ctx context.Context, names []string) ([]domain.Theme, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Theme), args.Error(1)
}

func (m *MockThemeRepository) UpsertThemes(ctx context.Context, themes []domain.Theme) ([]domain.Theme, error) {
	args := m.Called(ctx, themes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Theme), args.Error(1)
}

func (m *MockThemeRepository) UpdateThemeEmbedding(ctx context.Context, themeID int64, vector []float32) error {
	args := m.Called(ctx, themeID, vector)
	return args.Error(0)
}

func (m *MockThemeRepository) ListThemesWithEmbeddings(ctx context.Context) ([]domain.Theme, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Theme), args.Error(1)
}

func (m *MockThemeRepository) ListThemesMissingEmbedding(ctx context.Context, limit int) ([]domain.Theme, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Theme), args.Error(1)
}

type MockAssociationRepository struct {
	mock.Mock
}

func (m *MockAssociationRepository) UpsertPassageThemes(ctx context.Context, rows []domain.Association) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockAssociationRepository) UpsertOverviewThemes(ctx context.Context, rows []domain.Association) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockAssociationRepository) DeletePassageThemes(ctx context.Context, documentID *int64) (int64, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssociationRepository) DeleteOverviewThemes(ctx context.Context, documentID *int64) (int64, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssociationRepository) CountPassageThemes(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssociationRepository) SamplePassageThemes(ctx context.Context, limit int) ([]domain.Association, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Association), args.Error(1)
}

type MockQueryRepository struct {
	mock.Mock
}

func (m *MockQueryRepository) ExecuteReadOnly(ctx context.Context, sql string) ([]domain.Row, error) {
	args := m.Called(ctx, sql)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Row), args.Error(1)
}

func (m *MockQueryRepository) SearchPassagesByEmbedding(ctx context.Context, q domain.SimilarityQuery) ([]domain.Row, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Row), args.Error(1)
}

func (m *MockQueryRepository) SearchPassagesByText(ctx context.Context, text string, documentID *int64, limit, offset int) ([]domain.Row, error) {
	args := m.Called(ctx, text, documentID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Row), args.Error(1)
}

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) AcquireNextJob(ctx context.Context) (*domain.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}

func (m *MockJobRepository) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

type MockTextProvider struct {
	mock.Mock
}

func (m *MockTextProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockTextProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockTextProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, prompt, maxTokens)
	return args.String(0), args.Error(1)
}

func (m *MockTextProvider) CompleteWithOptions(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

type MockThemeLinker struct {
	mock.Mock
}

func (m *MockThemeLinker) Link(ctx context.Context, targets []usecase.LinkTarget, opts usecase.LinkOptions) (*usecase.LinkReport, error) {
	args := m.Called(ctx, targets, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.LinkReport), args.Error(1)
}
