package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
	"writing-comparator/internal/usecase"
)

var askCfg = usecase.AskQueryConfig{
	DefaultLimit:     20,
	SQLMaxTokens:     4000,
	SummaryMaxTokens: 800,
	SummaryTimeout:   40 * time.Second,
}

var sqlOpts = domain.CompletionOptions{MaxTokens: 4000}
var summaryOpts = domain.CompletionOptions{MaxTokens: 800, Timeout: 40 * time.Second}

func isSQLPrompt(p string) bool {
	return strings.Contains(p, "Only return the SQL statement.")
}

func isAnswerPrompt(p string) bool {
	return strings.HasPrefix(p, "Answer this question ")
}

func newAsk() (*MockTextProvider, *MockQueryRepository, usecase.AskQuestionUsecase) {
	provider := new(MockTextProvider)
	queries := new(MockQueryRepository)
	return provider, queries, usecase.NewAskQuestionUsecase(provider, provider, queries, askCfg, logger.NewDiscard())
}

func TestAsk_PlaceholderRoutesToProcedure(t *testing.T) {
	provider, queries, uc := newAsk()
	vector := []float32{0.1, 0.2}

	provider.On("Embed", mock.Anything, "Where is love discussed?").Return(vector, nil)
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isSQLPrompt), sqlOpts).Return(
		"```sql\nSELECT p.passage_id, p.content, 1 - (ep.embedding_vector <=> :query_embedding) AS similarity\n"+
			"FROM passage p JOIN embedding_passage ep ON ep.passage_id = p.passage_id\n"+
			"ORDER BY ep.embedding_vector <=> :query_embedding LIMIT 5;\n```", nil)
	queries.On("SearchPassagesByEmbedding", mock.Anything, mock.MatchedBy(func(q domain.SimilarityQuery) bool {
		return q.Limit == 5 && len(q.Vector) == 2 && q.ThemeName == nil && q.DocumentID == nil
	})).Return([]domain.Row{
		{"passage_id": int32(1), "content": "love", "theme_name": "love", "similarity": 0.9},
		{"passage_id": int32(1), "content": "love", "theme_name": "charity", "similarity": 0.9},
		{"passage_id": int32(2), "content": "war", "similarity": 0.4},
	}, nil)
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isAnswerPrompt), summaryOpts).Return("Love is in passage 1.", nil)

	resp, err := uc.Ask(context.Background(), usecase.AskInput{Question: "Where is love discussed?"})
	require.NoError(t, err)

	assert.Equal(t, "procedure", resp.Route.Name)
	assert.Contains(t, resp.ExecutedSQL, "search_passages_by_embedding")
	assert.NotContains(t, resp.ExecutedSQL, "0.1")
	assert.Equal(t, 3, resp.DataCount)
	assert.Len(t, resp.DataSample, 3)
	assert.Equal(t, 3, resp.RowsBeforeDedupe)
	assert.Equal(t, 2, resp.RowsAfterDedupe)
	assert.Equal(t, "Love is in passage 1.", resp.Summary)
	assert.NotEmpty(t, resp.RequestID)
	queries.AssertNotCalled(t, "ExecuteReadOnly", mock.Anything, mock.Anything)
}

func TestAsk_DirectWithDateRewrite(t *testing.T) {
	provider, queries, uc := newAsk()

	provider.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("embed down"))
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isSQLPrompt), sqlOpts).
		Return("SET statement_timeout = 5000; SELECT title FROM document WHERE estimated_date > 1700", nil)
	queries.On("ExecuteReadOnly", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.HasPrefix(sql, "SELECT t.* FROM (SELECT set_config('statement_timeout', '5000', true) as __set0) __cfg") &&
			strings.Contains(sql, "regexp_replace(estimated_date")
	})).Return([]domain.Row{{"title": "Leviathan"}}, nil)
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isAnswerPrompt), summaryOpts).Return("", context.DeadlineExceeded)

	resp, err := uc.Ask(context.Background(), usecase.AskInput{Question: "Which texts are after 1700?"})
	require.NoError(t, err)

	assert.Equal(t, "direct", resp.Route.Name)
	assert.True(t, resp.Rewritten)
	assert.Equal(t, "SET statement_timeout = 5000; SELECT title FROM document WHERE estimated_date > 1700", resp.OriginalSQL)
	assert.Contains(t, resp.SQL, "NULLIF(regexp_replace(estimated_date")
	assert.Empty(t, resp.Summary)
	assert.Contains(t, resp.Warning, "did not answer in time")
	assert.Equal(t, 1, resp.DataCount)
}

func TestAsk_PlaceholderWithoutEmbeddingExecutesDirectly(t *testing.T) {
	provider, queries, uc := newAsk()
	sql := "SELECT passage_id FROM embedding_passage ORDER BY embedding_vector <=> :query_embedding LIMIT 3"

	provider.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("embed down"))
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isSQLPrompt), sqlOpts).Return(sql, nil)
	queries.On("ExecuteReadOnly", mock.Anything, sql).Return(nil, errors.New(`syntax error at or near ":"`))

	resp, err := uc.Ask(context.Background(), usecase.AskInput{Question: "q"})
	assert.Nil(t, resp)
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, sql, execErr.SQL)
}

func TestAsk_RejectsWrites(t *testing.T) {
	provider, queries, uc := newAsk()
	provider.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isSQLPrompt), sqlOpts).Return("SELECT 1; DELETE FROM passage", nil)

	_, err := uc.Ask(context.Background(), usecase.AskInput{Question: "q"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	queries.AssertNotCalled(t, "ExecuteReadOnly", mock.Anything, mock.Anything)
}

func TestAsk_ExecutionErrorCarriesDateHint(t *testing.T) {
	provider, queries, uc := newAsk()
	provider.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	provider.On("CompleteWithOptions", mock.Anything, mock.MatchedBy(isSQLPrompt), sqlOpts).
		Return("SELECT title FROM document WHERE estimated_date > now()", nil)
	queries.On("ExecuteReadOnly", mock.Anything, mock.Anything).
		Return(nil, errors.New("operator does not exist: text > timestamp with time zone"))

	_, err := uc.Ask(context.Background(), usecase.AskInput{Question: "q"})
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Hint, "estimated_date is stored as text")
}

func TestAsk_SQLGenerationFailure(t *testing.T) {
	provider, _, uc := newAsk()
	provider.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	provider.On("CompleteWithOptions", mock.Anything, mock.Anything, sqlOpts).
		Return("", &domain.ProviderError{Op: "complete", Status: 400, Err: errors.New("bad request")})

	_, err := uc.Ask(context.Background(), usecase.AskInput{Question: "q"})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 400, pe.Status)
}
