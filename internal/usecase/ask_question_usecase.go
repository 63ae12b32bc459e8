package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
	"writing-comparator/internal/infra/metrics"
	"writing-comparator/internal/infra/telemetry"
	"writing-comparator/internal/usecase/resultset"
	"writing-comparator/internal/usecase/sqlguard"
)

const (
	dataSampleSize  = 5
	summaryInputLen = 12000
)

// AskInput is a natural-language question about the corpus.
type AskInput struct {
	Question string
	Limit    int
}

// RouteInfo tells the caller how the statement was executed.
type RouteInfo struct {
	Name     string   `json:"name"`
	Degraded []string `json:"degraded,omitempty"`
}

// AskResponse carries the generated SQL, its results and the summary.
type AskResponse struct {
	RequestID        string       `json:"request_id"`
	SQL              string       `json:"sql"`
	ExecutedSQL      string       `json:"executed_sql"`
	OriginalSQL      string       `json:"original_sql,omitempty"`
	Rewritten        bool         `json:"rewritten,omitempty"`
	Route            RouteInfo    `json:"route"`
	Data             []domain.Row `json:"data"`
	DataCount        int          `json:"data_count"`
	DataSample       []domain.Row `json:"data_sample"`
	RowsBeforeDedupe int          `json:"rows_before_dedupe"`
	RowsAfterDedupe  int          `json:"rows_after_dedupe"`
	Summary          string       `json:"summary,omitempty"`
	Warning          string       `json:"warning,omitempty"`
}

// AskQueryConfig bounds the model calls and the result limit of one question.
type AskQueryConfig struct {
	DefaultLimit     int
	SQLMaxTokens     int
	SummaryMaxTokens int
	SummaryTimeout   time.Duration
}

type AskQuestionUsecase interface {
	// Ask turns the question into a read-only statement, runs it and summarizes the rows.
	Ask(ctx context.Context, in AskInput) (*AskResponse, error)
}

type askQuestionUsecase struct {
	encoder   domain.VectorEncoder
	llm       domain.LLMClient
	queryRepo domain.QueryRepository
	cfg       AskQueryConfig
	logger    *logger.ContextLogger
}

func NewAskQuestionUsecase(
	encoder domain.VectorEncoder,
	llm domain.LLMClient,
	queryRepo domain.QueryRepository,
	cfg AskQueryConfig,
	log *slog.Logger,
) AskQuestionUsecase {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	return &askQuestionUsecase{
		encoder:   encoder,
		llm:       llm,
		queryRepo: queryRepo,
		cfg:       cfg,
		logger:    logger.NewContextLogger(log, "writing-comparator"),
	}
}

func (u *askQuestionUsecase) Ask(ctx context.Context, in AskInput) (*AskResponse, error) {
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)
	ctx, span := telemetry.Tracer().Start(ctx, "query.ask")
	defer span.End()
	log := u.logger.WithContext(ctx)

	// 1. Question embedding is best effort.
	vector, err := u.encoder.Embed(ctx, in.Question)
	if err != nil {
		log.Warn("question_embedding_failed", slog.String("error", err.Error()))
		vector = nil
	}

	// 2. SQL generation.
	raw, err := u.llm.CompleteWithOptions(ctx, sqlguard.SchemaPrompt(in.Question), domain.CompletionOptions{MaxTokens: u.cfg.SQLMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("failed to generate sql: %w", err)
	}

	// 3-6. Normalize, sanitize, rewrite, fold.
	finalSQL := sqlguard.Normalize(raw)
	if err := sqlguard.Sanitize(finalSQL); err != nil {
		return nil, err
	}
	resp := &AskResponse{RequestID: requestID}
	if rewritten, changed := sqlguard.RewriteEstimatedDate(finalSQL); changed {
		resp.OriginalSQL = finalSQL
		resp.Rewritten = true
		finalSQL = rewritten
		log.Info("query_date_rewrite_applied")
	}
	resp.SQL = finalSQL

	folded, err := sqlguard.FoldSetStatements(finalSQL)
	if err != nil {
		return nil, &domain.ValidationError{SQL: finalSQL, Reason: err.Error()}
	}

	// 7. Route.
	limit := in.Limit
	if limit <= 0 {
		limit = u.cfg.DefaultLimit
	}
	plan := sqlguard.PlanExecution(folded, vector, limit)
	resp.ExecutedSQL = plan.ExecutedSQL
	resp.Route = RouteInfo{Name: string(plan.Route), Degraded: plan.Degraded}
	metrics.RecordQueryRoute(string(plan.Route))
	span.SetAttributes(attribute.String("writing.query.route", string(plan.Route)))
	log.Info("query_route_selected", slog.String("route", string(plan.Route)), slog.Any("degraded", plan.Degraded))

	var rows []domain.Row
	if plan.Route == sqlguard.RouteProcedure {
		rows, err = u.queryRepo.SearchPassagesByEmbedding(ctx, plan.Query)
	} else {
		rows, err = u.queryRepo.ExecuteReadOnly(ctx, plan.SQL)
	}
	if err != nil {
		return nil, &domain.ExecutionError{SQL: plan.ExecutedSQL, Hint: sqlguard.ExecutionHint(finalSQL, err), Err: err}
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	resp.Data = rows
	resp.DataCount = len(rows)
	resp.DataSample = rows[:min(dataSampleSize, len(rows))]

	// 8. Dedupe and cap for the summary.
	merged := resultset.Dedupe(rows, resultset.DefaultOptions())
	resp.RowsBeforeDedupe = merged.Before
	resp.RowsAfterDedupe = merged.After

	// 9. Summary is best effort.
	summary, err := u.summarize(ctx, in.Question, merged.Rows)
	if err != nil {
		log.Warn("query_summary_failed", slog.String("error", err.Error()))
		resp.Warning = "summary unavailable: " + summaryFailureReason(err)
	} else {
		resp.Summary = summary
	}
	return resp, nil
}

func (u *askQuestionUsecase) summarize(ctx context.Context, question string, rows []domain.Row) (string, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	prompt := "Answer this question " + question + " entirely based on the results:\n\n" + truncateRunes(string(payload), summaryInputLen)
	summary, err := u.llm.CompleteWithOptions(ctx, prompt, domain.CompletionOptions{
		MaxTokens: u.cfg.SummaryMaxTokens,
		Timeout:   u.cfg.SummaryTimeout,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func summaryFailureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || domain.IsTransientProviderError(err) {
		return "the model did not answer in time"
	}
	return err.Error()
}
