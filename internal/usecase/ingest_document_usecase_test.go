package usecase_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
	"writing-comparator/internal/usecase"
)

type ingestFixture struct {
	docs       *MockDocumentRepository
	overviews  *MockOverviewRepository
	passages   *MockPassageRepository
	embeddings *MockEmbeddingRepository
	jobs       *MockJobRepository
	provider   *MockTextProvider
	linker     *MockThemeLinker
	uc         usecase.IngestDocumentUsecase
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		docs:       new(MockDocumentRepository),
		overviews:  new(MockOverviewRepository),
		passages:   new(MockPassageRepository),
		embeddings: new(MockEmbeddingRepository),
		jobs:       new(MockJobRepository),
		provider:   new(MockTextProvider),
		linker:     new(MockThemeLinker),
	}
	f.uc = usecase.NewIngestDocumentUsecase(
		f.docs, f.overviews, f.passages, f.embeddings, f.jobs,
		f.provider, f.linker, domain.NewChunker(300), 8, logger.NewDiscard(),
	)
	return f
}

func repeatWords(w string, n int) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

func isSummaryPrompt(p string) bool {
	return strings.HasPrefix(p, "Summarize this collection of passages")
}

func (f *ingestFixture) expectDocument(id int64) {
	f.docs.On("CreateDocument", mock.Anything, mock.AnythingOfType("*domain.Document")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Document).ID = id }).
		Return(nil)
}

func (f *ingestFixture) expectPassageInserts() {
	var next atomic.Int64
	f.passages.On("CreatePassage", mock.Anything, mock.AnythingOfType("*domain.Passage")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Passage).ID = 100 + next.Add(1) }).
		Return(nil)
}

func TestIngest_TwoParagraphs(t *testing.T) {
	f := newIngestFixture()
	text := repeatWords("short", 10) + "\n\n" + repeatWords("long", 620)

	f.expectDocument(7)
	f.provider.On("Complete", mock.Anything, mock.MatchedBy(isSummaryPrompt), 0).Return(" A summary. ", nil).Once()
	f.overviews.On("CreateOverview", mock.Anything, mock.MatchedBy(func(ov *domain.Overview) bool {
		return ov.DocumentID == 7 && ov.Label == "Section 1" && ov.Summary == "A summary."
	})).Run(func(args mock.Arguments) { args.Get(1).(*domain.Overview).ID = 11 }).Return(nil).Once()
	f.expectPassageInserts()
	f.provider.On("Embed", mock.Anything, mock.Anything).Return([]float32{1, 0}, nil)
	f.embeddings.On("UpsertPassageEmbedding", mock.Anything, mock.Anything, []float32{1, 0}).Return(nil)
	f.provider.On("EmbedBatch", mock.Anything, []string{"A summary."}).Return([][]float32{{0, 1}}, nil)
	f.embeddings.On("UpsertOverviewEmbedding", mock.Anything, int64(11), []float32{0, 1}).Return(nil)
	f.linker.On("Link", mock.Anything, mock.MatchedBy(func(ts []usecase.LinkTarget) bool {
		return len(ts) == 1 && ts[0].Overview.ID == 11 && len(ts[0].Vector) == 2
	}), usecase.LinkOptions{TopN: 8}).Return(&usecase.LinkReport{OverviewThemeLinks: 3}, nil)
	f.jobs.On("Enqueue", mock.Anything, mock.MatchedBy(func(j *domain.Job) bool {
		ids, _ := j.Payload["passage_ids"].([]int64)
		return j.JobType == domain.JobTypeScorePassageThemes && j.Status == domain.JobStatusNew && len(ids) == 4 && j.Payload["top_n"] == 8
	})).Return(nil)

	report, err := f.uc.Ingest(context.Background(), usecase.IngestDocumentInput{Title: "T", Text: text})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, int64(7), report.DocumentID)
	assert.GreaterOrEqual(t, report.PassagesInserted, 3)
	assert.Equal(t, 4, report.PassagesInserted)
	assert.Equal(t, 4, report.PassageEmbeddingsCreated)
	assert.Equal(t, 1, report.OverviewsInserted)
	assert.Equal(t, 1, report.SummariesGenerated)
	assert.Equal(t, 1, report.OverviewEmbeddingsCreated)
	assert.Equal(t, 3, report.Themes.OverviewThemeLinks)
	assert.NotEmpty(t, report.ScoringJobID)

	f.passages.AssertNumberOfCalls(t, "CreatePassage", 4)
	for _, call := range f.passages.Calls {
		p := call.Arguments.Get(1).(*domain.Passage)
		require.NotNil(t, p.OverviewID)
		assert.Equal(t, int64(11), *p.OverviewID)
	}
	f.jobs.AssertExpectations(t)
}

func TestIngest_AllSummariesFailCreatesFallbackOverview(t *testing.T) {
	f := newIngestFixture()
	text := "first paragraph here\n\nsecond paragraph here"

	f.expectDocument(1)
	f.provider.On("Complete", mock.Anything, mock.MatchedBy(isSummaryPrompt), 0).
		Return("", &domain.ProviderError{Op: "complete", Transient: true, Attempts: 4, Err: errors.New("503")})
	f.overviews.On("CreateOverview", mock.Anything, mock.MatchedBy(func(ov *domain.Overview) bool {
		return ov.Label == "Section 1" && ov.Summary == "first paragraph here\nsecond paragraph here"
	})).Run(func(args mock.Arguments) { args.Get(1).(*domain.Overview).ID = 5 }).Return(nil).Once()
	f.expectPassageInserts()
	f.provider.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	f.embeddings.On("UpsertPassageEmbedding", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.provider.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	f.embeddings.On("UpsertOverviewEmbedding", mock.Anything, int64(5), mock.Anything).Return(nil)
	f.linker.On("Link", mock.Anything, mock.Anything, mock.Anything).Return(&usecase.LinkReport{}, nil)
	f.jobs.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	report, err := f.uc.Ingest(context.Background(), usecase.IngestDocumentInput{Title: "T", Text: text})
	require.NoError(t, err)

	assert.Equal(t, 0, report.SummariesGenerated)
	assert.Equal(t, 1, report.OverviewsInserted)
	require.Len(t, report.OverviewErrors, 1)
	assert.Equal(t, "summary", report.OverviewErrors[0].Stage)
	assert.Equal(t, 2, report.PassagesInserted)
}

func TestIngest_PassageEmbeddingsAreBounded(t *testing.T) {
	f := newIngestFixture()
	paras := make([]string, 20)
	for i := range paras {
		paras[i] = "paragraph number " + strconv.Itoa(i)
	}

	f.expectDocument(3)
	f.provider.On("Complete", mock.Anything, mock.MatchedBy(isSummaryPrompt), 0).
		Return("", &domain.ProviderError{Op: "complete", Err: errors.New("400")})
	f.overviews.On("CreateOverview", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Overview).ID = 9 }).Return(nil).Once()
	f.expectPassageInserts()

	var inFlight, peak atomic.Int32
	f.provider.On("Embed", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}).
		Return([]float32{1}, nil)
	f.embeddings.On("UpsertPassageEmbedding", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.provider.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	f.embeddings.On("UpsertOverviewEmbedding", mock.Anything, int64(9), mock.Anything).Return(nil)
	f.linker.On("Link", mock.Anything, mock.Anything, mock.Anything).Return(&usecase.LinkReport{}, nil)
	f.jobs.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	report, err := f.uc.Ingest(context.Background(), usecase.IngestDocumentInput{Title: "T", Text: strings.Join(paras, "\n\n")})
	require.NoError(t, err)

	assert.Equal(t, 20, report.PassagesInserted)
	assert.Equal(t, 20, report.PassageEmbeddingsCreated)
	assert.LessOrEqual(t, peak.Load(), int32(usecase.PassageEmbedConcurrency))
	assert.Positive(t, peak.Load())
}

func TestIngest_DocumentInsertFailureIsFatal(t *testing.T) {
	f := newIngestFixture()
	f.docs.On("CreateDocument", mock.Anything, mock.Anything).Return(errors.New("db down"))

	report, err := f.uc.Ingest(context.Background(), usecase.IngestDocumentInput{Title: "T", Text: "x"})

	assert.Nil(t, report)
	var fatal *domain.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "document", fatal.Stage)
	f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_PartialFailuresAreReported(t *testing.T) {
	f := newIngestFixture()
	text := "alpha\n\nbeta\n\ngamma"

	f.expectDocument(2)
	f.provider.On("Complete", mock.Anything, mock.MatchedBy(isSummaryPrompt), 0).Return("sum", nil)
	f.overviews.On("CreateOverview", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Overview).ID = 9 }).Return(nil)
	f.passages.On("CreatePassage", mock.Anything, mock.MatchedBy(func(p *domain.Passage) bool { return p.Label == "P2" })).
		Return(errors.New("constraint violation"))
	var next atomic.Int64
	f.passages.On("CreatePassage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Passage).ID = next.Add(1) }).Return(nil)
	f.provider.On("Embed", mock.Anything, "alpha").Return(nil, errors.New("embed failed"))
	f.provider.On("Embed", mock.Anything, "gamma").Return([]float32{1}, nil)
	f.embeddings.On("UpsertPassageEmbedding", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.provider.On("EmbedBatch", mock.Anything, []string{"sum"}).Return(nil, errors.New("batch failed"))
	f.embeddings.On("UpsertOverviewEmbedding", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.linker.On("Link", mock.Anything, mock.MatchedBy(func(ts []usecase.LinkTarget) bool {
		return len(ts) == 1 && ts[0].Vector == nil
	}), mock.Anything).Return(&usecase.LinkReport{}, nil)
	f.jobs.On("Enqueue", mock.Anything, mock.MatchedBy(func(j *domain.Job) bool {
		ids, _ := j.Payload["passage_ids"].([]int64)
		return len(ids) == 1
	})).Return(nil)

	report, err := f.uc.Ingest(context.Background(), usecase.IngestDocumentInput{Title: "T", Text: text})
	require.NoError(t, err)

	assert.Equal(t, 2, report.PassagesInserted)
	require.Len(t, report.PassageErrors, 1)
	assert.Equal(t, "P2", report.PassageErrors[0].Label)
	require.Len(t, report.PassageEmbeddingFailures, 1)
	// A single-item batch failure is reported without a per-item retry.
	require.Len(t, report.OverviewEmbeddingFailures, 1)
	assert.Equal(t, 0, report.OverviewEmbeddingsCreated)
	f.provider.AssertNotCalled(t, "Embed", mock.Anything, "sum")
}

func TestIngest_EmptyTextStopsAfterDocument(t *testing.T) {
	f := newIngestFixture()
	f.expectDocument(3)

	report, err := f.uc.Ingest(context.Background(), usecase.IngestDocumentInput{Title: "T", Text: " \n\n "})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.DocumentID)
	assert.Zero(t, report.PassagesInserted)
	f.overviews.AssertNotCalled(t, "CreateOverview", mock.Anything, mock.Anything)
}

func TestPlanSections(t *testing.T) {
	passages := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = "p"
		}
		return out
	}

	tests := []struct {
		n     int
		sizes []int
	}{
		{n: 0, sizes: nil},
		{n: 3, sizes: []int{3}},
		{n: 15, sizes: []int{7, 8}},
		{n: 105, sizes: []int{10, 10, 10, 10, 10, 10, 10, 10, 10, 15}},
		{n: 250, sizes: []int{25, 25, 25, 25, 25, 25, 25, 25, 25, 25}},
	}
	for _, tt := range tests {
		sections := usecase.PlanSections(passages(tt.n))
		require.Len(t, sections, len(tt.sizes), "n=%d", tt.n)
		for i, s := range sections {
			assert.Len(t, s.Passages, tt.sizes[i], "n=%d section %d", tt.n, i)
		}
		if len(sections) > 0 {
			assert.Equal(t, "Section 1", sections[0].Label)
		}
	}
}
