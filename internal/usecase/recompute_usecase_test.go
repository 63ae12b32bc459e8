package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
	"writing-comparator/internal/usecase"
)

type recomputeFixture struct {
	overviews  *MockOverviewRepository
	passages   *MockPassageRepository
	embeddings *MockEmbeddingRepository
	themes     *MockThemeRepository
	assoc      *MockAssociationRepository
	encoder    *MockTextProvider
	linker     *MockThemeLinker
	uc         usecase.RecomputeUsecase
}

func newRecomputeFixture() *recomputeFixture {
	f := &recomputeFixture{
		overviews:  new(MockOverviewRepository),
		passages:   new(MockPassageRepository),
		embeddings: new(MockEmbeddingRepository),
		themes:     new(MockThemeRepository),
		assoc:      new(MockAssociationRepository),
		encoder:    new(MockTextProvider),
		linker:     new(MockThemeLinker),
	}
	f.uc = usecase.NewRecomputeUsecase(f.overviews, f.passages, f.embeddings, f.themes, f.assoc, f.encoder, f.linker, logger.NewDiscard())
	return f
}

func TestRecomputePassageThemes_ResetWithoutThemes(t *testing.T) {
	f := newRecomputeFixture()
	f.assoc.On("DeletePassageThemes", mock.Anything, (*int64)(nil)).Return(int64(0), nil)
	f.themes.On("ListThemesWithEmbeddings", mock.Anything).Return([]domain.Theme{}, nil)

	report, err := f.uc.RecomputePassageThemes(context.Background(), usecase.RecomputeOptions{Reset: true})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, "no themes with embeddings", report.Note)
	assert.Zero(t, report.Upserted)
	f.assoc.AssertNotCalled(t, "UpsertPassageThemes", mock.Anything, mock.Anything)
	f.embeddings.AssertNotCalled(t, "ListPassageEmbeddingsPage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecomputePassageThemes_PaginatesUntilEmptyPage(t *testing.T) {
	f := newRecomputeFixture()
	themes := []domain.Theme{
		{ID: 1, Embedding: []float32{1, 0}},
		{ID: 2, Embedding: []float32{0, 1}},
		{ID: 3, Embedding: []float32{1, 1}},
	}
	f.themes.On("ListThemesWithEmbeddings", mock.Anything).Return(themes, nil)

	page := make([]domain.OwnerEmbedding, 200)
	for i := range page {
		page[i] = domain.OwnerEmbedding{OwnerID: int64(i + 1), Vector: []float32{1, 0}}
	}
	f.embeddings.On("ListPassageEmbeddingsPage", mock.Anything, (*int64)(nil), 200, 0).Return(page, nil)
	f.embeddings.On("ListPassageEmbeddingsPage", mock.Anything, (*int64)(nil), 200, 200).
		Return([]domain.OwnerEmbedding{{OwnerID: 999, Vector: []float32{0, 1}}}, nil)
	f.embeddings.On("ListPassageEmbeddingsPage", mock.Anything, (*int64)(nil), 200, 400).Return([]domain.OwnerEmbedding{}, nil)

	// 200 passages x 2 themes = 400 rows, one chunk; the second page adds 2 more.
	f.assoc.On("UpsertPassageThemes", mock.Anything, mock.MatchedBy(func(rows []domain.Association) bool { return len(rows) == 400 })).
		Return(errors.New("chunk failed")).Once()
	f.assoc.On("UpsertPassageThemes", mock.Anything, mock.MatchedBy(func(rows []domain.Association) bool {
		return len(rows) == 2 && rows[0].OwnerID == 999 && rows[0].ThemeID == 2
	})).Return(nil).Once()

	report, err := f.uc.RecomputePassageThemes(context.Background(), usecase.RecomputeOptions{TopN: 2})
	require.NoError(t, err)

	assert.Equal(t, 201, report.Processed)
	assert.Equal(t, 3, report.Themes)
	assert.Equal(t, 2, report.Upserted)
	require.Len(t, report.Errors, 1)
	assert.True(t, report.Errors[0].Batch)
	f.assoc.AssertNotCalled(t, "DeletePassageThemes", mock.Anything, mock.Anything)
	f.embeddings.AssertExpectations(t)
}

func TestRecomputePassageThemes_ChunksAt500(t *testing.T) {
	f := newRecomputeFixture()
	docID := int64(4)
	themes := make([]domain.Theme, 10)
	for i := range themes {
		themes[i] = domain.Theme{ID: int64(i + 1), Embedding: []float32{1, float32(i)}}
	}
	f.themes.On("ListThemesWithEmbeddings", mock.Anything).Return(themes, nil)
	page := make([]domain.OwnerEmbedding, 120)
	for i := range page {
		page[i] = domain.OwnerEmbedding{OwnerID: int64(i + 1), Vector: []float32{1, 1}}
	}
	f.embeddings.On("ListPassageEmbeddingsPage", mock.Anything, &docID, 200, 0).Return(page, nil)
	f.embeddings.On("ListPassageEmbeddingsPage", mock.Anything, &docID, 200, 200).Return(nil, nil)
	f.assoc.On("UpsertPassageThemes", mock.Anything, mock.Anything).Return(nil)

	report, err := f.uc.RecomputePassageThemes(context.Background(), usecase.RecomputeOptions{DocumentID: &docID})
	require.NoError(t, err)

	// 120 passages x top 8 = 960 rows: chunks of 500 and 460.
	assert.Equal(t, 960, report.Upserted)
	f.assoc.AssertNumberOfCalls(t, "UpsertPassageThemes", 2)
	assert.Len(t, f.assoc.Calls[0].Arguments.Get(1), 500)
}

func TestScorePassages(t *testing.T) {
	f := newRecomputeFixture()
	f.themes.On("ListThemesWithEmbeddings", mock.Anything).Return([]domain.Theme{{ID: 1, Embedding: []float32{1}}}, nil)
	f.embeddings.On("ListPassageEmbeddings", mock.Anything, []int64{5, 6}).
		Return([]domain.OwnerEmbedding{{OwnerID: 5, Vector: []float32{2}}}, nil)
	f.assoc.On("UpsertPassageThemes", mock.Anything, []domain.Association{{OwnerID: 5, ThemeID: 1, Score: 1}}).Return(nil)

	report, err := f.uc.ScorePassages(context.Background(), []int64{5, 6}, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Upserted)

	empty, err := f.uc.ScorePassages(context.Background(), nil, 8)
	require.NoError(t, err)
	assert.Zero(t, empty.Processed)
}

func TestScorePassages_ThemeListFailure(t *testing.T) {
	f := newRecomputeFixture()
	f.themes.On("ListThemesWithEmbeddings", mock.Anything).Return(nil, errors.New("db down"))

	_, err := f.uc.ScorePassages(context.Background(), []int64{1}, 8)
	require.Error(t, err)
}

func TestRecomputeOverviewThemes_FullCorpus(t *testing.T) {
	f := newRecomputeFixture()
	f.assoc.On("DeleteOverviewThemes", mock.Anything, (*int64)(nil)).Return(int64(12), nil)

	page := []domain.Overview{{ID: 1, Summary: "one"}, {ID: 2, Summary: "two"}}
	f.overviews.On("ListOverviewsPage", mock.Anything, (*int64)(nil), 100, 0).Return(page, nil)
	f.overviews.On("ListOverviewsPage", mock.Anything, (*int64)(nil), 100, 100).Return([]domain.Overview{}, nil)

	f.embeddings.On("GetOverviewEmbedding", mock.Anything, int64(1)).Return([]float32{1}, nil)
	f.embeddings.On("GetOverviewEmbedding", mock.Anything, int64(2)).Return(nil, nil)
	f.encoder.On("Embed", mock.Anything, "two").Return(nil, errors.New("provider down"))

	f.linker.On("Link", mock.Anything, mock.MatchedBy(func(ts []usecase.LinkTarget) bool {
		return len(ts) == 1 && ts[0].Overview.ID == 1
	}), usecase.LinkOptions{TopN: 2, NamesPerOverview: 3}).
		Return(&usecase.LinkReport{OverviewsLinked: 1, OverviewThemeLinks: 2}, nil)

	report, err := f.uc.RecomputeOverviewThemes(context.Background(), usecase.RecomputeOptions{TopN: 2, Reset: true})
	require.NoError(t, err)

	assert.Equal(t, int64(12), report.Deleted)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Upserted)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, int64(2), report.Errors[0].OverviewID)
}

func TestRecomputeOverviewThemes_DocumentScope(t *testing.T) {
	f := newRecomputeFixture()
	docID := int64(9)
	f.overviews.On("ListOverviewsByDocument", mock.Anything, docID).Return([]domain.Overview{{ID: 3, Summary: "s"}}, nil).Once()
	f.embeddings.On("GetOverviewEmbedding", mock.Anything, int64(3)).Return(nil, nil)
	f.encoder.On("Embed", mock.Anything, "s").Return([]float32{0.5}, nil)
	f.embeddings.On("UpsertOverviewEmbedding", mock.Anything, int64(3), []float32{0.5}).Return(nil)
	f.linker.On("Link", mock.Anything, mock.Anything, usecase.LinkOptions{TopN: 8, NamesPerOverview: 8}).
		Return(&usecase.LinkReport{OverviewsLinked: 1}, nil)

	report, err := f.uc.RecomputeOverviewThemes(context.Background(), usecase.RecomputeOptions{DocumentID: &docID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	f.overviews.AssertExpectations(t)
}

func TestRecomputeOverviewThemes_NoOverviews(t *testing.T) {
	f := newRecomputeFixture()
	f.overviews.On("ListOverviewsPage", mock.Anything, (*int64)(nil), 100, 0).Return(nil, nil)

	report, err := f.uc.RecomputeOverviewThemes(context.Background(), usecase.RecomputeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "no overviews found", report.Note)
}

func TestRecomputeEmbeddings(t *testing.T) {
	f := newRecomputeFixture()

	passages := make([]domain.Passage, 25)
	for i := range passages {
		passages[i] = domain.Passage{ID: int64(i + 1), Content: "p"}
	}
	f.passages.On("ListPassagesMissingEmbedding", mock.Anything, (*int64)(nil), 1000).Return(passages, nil)
	f.encoder.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(in []string) bool { return len(in) == 20 })).
		Return(make([][]float32, 20), nil).Once()
	f.encoder.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(in []string) bool { return len(in) == 5 })).
		Return(make([][]float32, 5), nil).Once()
	f.embeddings.On("UpsertPassageEmbedding", mock.Anything, int64(3), mock.Anything).Return(errors.New("dup"))
	f.embeddings.On("UpsertPassageEmbedding", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.overviews.On("ListOverviewsMissingEmbedding", mock.Anything, (*int64)(nil), 500).
		Return([]domain.Overview{{ID: 1, Summary: "a"}, {ID: 2, Summary: "b"}}, nil)
	f.encoder.On("EmbedBatch", mock.Anything, []string{"a", "b"}).Return(nil, errors.New("batch failed"))
	f.encoder.On("Embed", mock.Anything, "a").Return([]float32{1}, nil)
	f.encoder.On("Embed", mock.Anything, "b").Return(nil, errors.New("bad input"))
	f.embeddings.On("UpsertOverviewEmbedding", mock.Anything, int64(1), []float32{1}).Return(nil)

	f.themes.On("ListThemesMissingEmbedding", mock.Anything, 1000).
		Return([]domain.Theme{{ID: 7, Name: "Hope", Description: "Expectation."}}, nil)
	f.encoder.On("EmbedBatch", mock.Anything, []string{"Hope Expectation."}).Return([][]float32{{0.1}}, nil)
	f.themes.On("UpdateThemeEmbedding", mock.Anything, int64(7), []float32{0.1}).Return(nil)

	report, err := f.uc.RecomputeEmbeddings(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 24, report.Passages)
	assert.Equal(t, 1, report.Overviews)
	assert.Equal(t, 1, report.Themes)
	assert.Len(t, report.Errors, 2)
}
