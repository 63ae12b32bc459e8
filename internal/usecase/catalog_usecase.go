package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"writing-comparator/internal/domain"
)

const debugSampleSize = 10

// DocumentDetail is a document with its overviews and passages, both ordered by id.
type DocumentDetail struct {
	Document  domain.Document   `json:"document"`
	Overviews []domain.Overview `json:"overviews"`
	Passages  []domain.Passage  `json:"passages"`
}

// OverviewDetail is an overview with its passages ordered by id.
type OverviewDetail struct {
	Overview domain.Overview  `json:"overview"`
	Passages []domain.Passage `json:"passages"`
}

// PassageThemeDebug reports how many passage_theme rows exist, with a sample.
type PassageThemeDebug struct {
	Count  int64                `json:"count"`
	Sample []domain.Association `json:"sample"`
}

// CatalogUsecase serves read-only browsing of the corpus and job status.
type CatalogUsecase interface {
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	GetDocument(ctx context.Context, id int64) (*DocumentDetail, error)
	GetOverview(ctx context.Context, id int64) (*OverviewDetail, error)
	DebugPassageThemes(ctx context.Context) (*PassageThemeDebug, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

type catalogUsecase struct {
	docRepo      domain.DocumentRepository
	overviewRepo domain.OverviewRepository
	passageRepo  domain.PassageRepository
	assocRepo    domain.AssociationRepository
	jobRepo      domain.JobRepository
}

func NewCatalogUsecase(
	docRepo domain.DocumentRepository,
	overviewRepo domain.OverviewRepository,
	passageRepo domain.PassageRepository,
	assocRepo domain.AssociationRepository,
	jobRepo domain.JobRepository,
) CatalogUsecase {
	return &catalogUsecase{
		docRepo:      docRepo,
		overviewRepo: overviewRepo,
		passageRepo:  passageRepo,
		assocRepo:    assocRepo,
		jobRepo:      jobRepo,
	}
}

func (u *catalogUsecase) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	docs, err := u.docRepo.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// GetDocument returns domain.ErrNotFound when the document does not exist.
func (u *catalogUsecase) GetDocument(ctx context.Context, id int64) (*DocumentDetail, error) {
	doc, err := u.docRepo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	overviews, err := u.overviewRepo.ListOverviewsByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list overviews: %w", err)
	}
	passages, err := u.passageRepo.ListPassagesByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	return &DocumentDetail{
		Document:  *doc,
		Overviews: nonNil(overviews),
		Passages:  nonNil(passages),
	}, nil
}

func (u *catalogUsecase) GetOverview(ctx context.Context, id int64) (*OverviewDetail, error) {
	ov, err := u.overviewRepo.GetOverview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get overview: %w", err)
	}
	passages, err := u.passageRepo.ListPassagesByOverview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	return &OverviewDetail{Overview: *ov, Passages: nonNil(passages)}, nil
}

func (u *catalogUsecase) DebugPassageThemes(ctx context.Context) (*PassageThemeDebug, error) {
	count, err := u.assocRepo.CountPassageThemes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count passage themes: %w", err)
	}
	sample, err := u.assocRepo.SamplePassageThemes(ctx, debugSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sample passage themes: %w", err)
	}
	return &PassageThemeDebug{Count: count, Sample: nonNil(sample)}, nil
}

func (u *catalogUsecase) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := u.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
