package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
	"writing-comparator/internal/infra/metrics"
	"writing-comparator/internal/infra/telemetry"
)

const (
	maxSections        = 10
	passagesPerSection = 10
	fallbackPassages   = 5
	fallbackSummaryLen = 800

	// PassageEmbedConcurrency bounds the in-flight passage embedding calls of one ingest.
	PassageEmbedConcurrency = 4
)

// IngestDocumentInput is one uploaded text with its metadata.
type IngestDocumentInput struct {
	Title         string
	Author        *string
	Tradition     *string
	RhetoricType  *string
	Language      *string
	EstimatedDate *string
	Notes         *string
	Text          string
}

// IngestReport describes how far ingestion got. It is returned even when stages
// failed partially.
type IngestReport struct {
	Success                   bool                  `json:"success"`
	DocumentID                int64                 `json:"document_id"`
	PassagesInserted          int                   `json:"passages_inserted"`
	PassageEmbeddingsCreated  int                   `json:"passage_embeddings_created"`
	OverviewsInserted         int                   `json:"overviews_inserted"`
	SummariesGenerated        int                   `json:"summaries_generated"`
	OverviewEmbeddingsCreated int                   `json:"overview_embeddings_created"`
	OverviewErrors            []domain.StageFailure `json:"overview_errors"`
	OverviewEmbeddingFailures []domain.StageFailure `json:"overview_embedding_failures"`
	PassageErrors             []domain.StageFailure `json:"passage_errors"`
	PassageEmbeddingFailures  []domain.StageFailure `json:"passage_embedding_failures"`
	Themes                    LinkReport            `json:"themes"`
	ScoringJobID              string                `json:"scoring_job_id,omitempty"`
	Message                   string                `json:"message"`
}

type IngestDocumentUsecase interface {
	// Ingest stores the document, its overviews and passages, embeds them, links
	// overviews to themes and queues passage-theme scoring.
	Ingest(ctx context.Context, in IngestDocumentInput) (*IngestReport, error)
}

type ingestDocumentUsecase struct {
	docRepo       domain.DocumentRepository
	overviewRepo  domain.OverviewRepository
	passageRepo   domain.PassageRepository
	embeddingRepo domain.EmbeddingRepository
	jobRepo       domain.JobRepository
	provider      domain.TextProvider
	linker        ThemeLinker
	chunker       domain.Chunker
	topN          int
	logger        *logger.ContextLogger
}

func NewIngestDocumentUsecase(
	docRepo domain.DocumentRepository,
	overviewRepo domain.OverviewRepository,
	passageRepo domain.PassageRepository,
	embeddingRepo domain.EmbeddingRepository,
	jobRepo domain.JobRepository,
	provider domain.TextProvider,
	linker ThemeLinker,
	chunker domain.Chunker,
	topN int,
	log *slog.Logger,
) IngestDocumentUsecase {
	if topN <= 0 {
		topN = domain.DefaultTopN
	}
	return &ingestDocumentUsecase{
		docRepo:       docRepo,
		overviewRepo:  overviewRepo,
		passageRepo:   passageRepo,
		embeddingRepo: embeddingRepo,
		jobRepo:       jobRepo,
		provider:      provider,
		linker:        linker,
		chunker:       chunker,
		topN:          topN,
		logger:        logger.NewContextLogger(log, "writing-comparator"),
	}
}

// Section is a contiguous group of passages summarized into one overview.
type Section struct {
	Label    string
	Passages []string
	Summary  string
}

func (u *ingestDocumentUsecase) Ingest(ctx context.Context, in IngestDocumentInput) (*IngestReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ingest.document")
	defer span.End()

	doc := &domain.Document{
		Title:         in.Title,
		Author:        in.Author,
		Tradition:     in.Tradition,
		RhetoricType:  in.RhetoricType,
		Language:      in.Language,
		EstimatedDate: in.EstimatedDate,
		Notes:         in.Notes,
	}
	if err := u.docRepo.CreateDocument(ctx, doc); err != nil {
		return nil, &domain.FatalError{Stage: "document", Err: fmt.Errorf("failed to create document: %w", err)}
	}
	ctx = logger.WithDocumentID(ctx, doc.ID)
	span.SetAttributes(attribute.Int64("writing.document.id", doc.ID))

	report := &IngestReport{Success: true, DocumentID: doc.ID}

	passages := u.chunker.Chunk(in.Text)
	if len(passages) == 0 {
		report.Message = "no passages found in text"
		return report, nil
	}

	sections := PlanSections(passages)
	u.summarize(ctx, sections, report)

	overviews := u.insertOverviews(ctx, doc.ID, sections, report)
	if len(overviews) == 0 {
		ov, err := u.insertFallbackOverview(ctx, doc.ID, passages)
		if err != nil {
			report.OverviewErrors = append(report.OverviewErrors, domain.StageFailure{Stage: "fallback", Label: "Section 1", Error: err.Error()})
			u.recordFailures(report)
			return report, &domain.FatalError{Stage: "overview", Err: err}
		}
		overviews = []domain.Overview{*ov}
	}
	report.OverviewsInserted = len(overviews)

	embedded := u.insertPassages(ctx, doc.ID, passages, overviews, report)

	targets := u.embedOverviews(ctx, overviews, report)

	links, err := u.linker.Link(logger.WithPipelineStage(ctx, "themes"), targets, LinkOptions{TopN: u.topN})
	if links != nil {
		report.Themes = *links
	}
	if err != nil {
		u.logger.WithContext(ctx).Warn("ingest_theme_linking_failed", slog.String("error", err.Error()))
		report.Themes.LinkErrors = append(report.Themes.LinkErrors, domain.StageFailure{Stage: "theme_lookup", Error: err.Error()})
	}

	u.enqueueScoring(ctx, embedded, report)
	u.recordFailures(report)

	u.logger.WithContext(ctx).Info("ingest_completed",
		slog.Int("passages_inserted", report.PassagesInserted),
		slog.Int("overviews_inserted", report.OverviewsInserted),
		slog.Int("overview_theme_links", report.Themes.OverviewThemeLinks),
	)
	return report, nil
}

// PlanSections partitions passages into at most 10 contiguous, roughly equal groups
// labeled "Section 1", "Section 2", and so on. The last group absorbs the remainder.
func PlanSections(passages []string) []Section {
	n := len(passages)
	if n == 0 {
		return nil
	}
	count := min(maxSections, (n+passagesPerSection-1)/passagesPerSection)
	count = max(1, count)
	size := max(1, n/count)

	sections := make([]Section, 0, count)
	for k := range count {
		start := k * size
		end := start + size
		if k == count-1 {
			end = n
		}
		sections = append(sections, Section{
			Label:    fmt.Sprintf("Section %d", k+1),
			Passages: passages[start:end],
		})
	}
	return sections
}

func (u *ingestDocumentUsecase) summarize(ctx context.Context, sections []Section, report *IngestReport) {
	ctx = logger.WithPipelineStage(ctx, "summaries")
	errs := make([]error, len(sections))

	var g errgroup.Group
	for i := range sections {
		g.Go(func() error {
			prompt := "Summarize this collection of passages into one short summary:\n\n" + strings.Join(sections[i].Passages, "\n\n")
			summary, err := u.provider.Complete(ctx, prompt, 0)
			if err != nil {
				errs[i] = err
				return nil
			}
			sections[i].Summary = strings.TrimSpace(summary)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			u.logger.WithContext(ctx).Warn("ingest_summary_failed", slog.String("label", sections[i].Label), slog.String("error", err.Error()))
			report.OverviewErrors = append(report.OverviewErrors, domain.StageFailure{Stage: "summary", Label: sections[i].Label, Error: err.Error()})
			continue
		}
		report.SummariesGenerated++
	}
}

func (u *ingestDocumentUsecase) insertOverviews(ctx context.Context, documentID int64, sections []Section, report *IngestReport) []domain.Overview {
	var overviews []domain.Overview
	for _, s := range sections {
		if s.Summary == "" {
			continue
		}
		ov := &domain.Overview{DocumentID: documentID, Label: s.Label, Summary: s.Summary}
		if err := u.overviewRepo.CreateOverview(ctx, ov); err != nil {
			report.OverviewErrors = append(report.OverviewErrors, domain.StageFailure{Stage: "insert", Label: s.Label, Error: err.Error()})
			continue
		}
		overviews = append(overviews, *ov)
	}
	return overviews
}

// insertFallbackOverview gives passages a parent when every summary failed.
func (u *ingestDocumentUsecase) insertFallbackOverview(ctx context.Context, documentID int64, passages []string) (*domain.Overview, error) {
	head := passages[:min(fallbackPassages, len(passages))]
	ov := &domain.Overview{
		DocumentID: documentID,
		Label:      "Section 1",
		Summary:    truncateRunes(strings.Join(head, "\n"), fallbackSummaryLen),
	}
	if err := u.overviewRepo.CreateOverview(ctx, ov); err != nil {
		return nil, fmt.Errorf("failed to create fallback overview: %w", err)
	}
	u.logger.WithContext(ctx).Warn("ingest_fallback_overview_created", slog.Int64("overview_id", ov.ID))
	return ov, nil
}

// insertPassages stores passages in order, bucketing them proportionally across
// overviews, then embeds each one. It returns the ids of embedded passages.
func (u *ingestDocumentUsecase) insertPassages(ctx context.Context, documentID int64, passages []string, overviews []domain.Overview, report *IngestReport) []int64 {
	ctx = logger.WithPipelineStage(ctx, "passages")
	bucket := (len(passages) + len(overviews) - 1) / len(overviews)

	var stored []domain.Passage
	for i, content := range passages {
		overviewID := overviews[min(i/bucket, len(overviews)-1)].ID
		p := &domain.Passage{
			DocumentID: documentID,
			OverviewID: &overviewID,
			Label:      fmt.Sprintf("P%d", i+1),
			Content:    content,
		}
		if err := u.passageRepo.CreatePassage(ctx, p); err != nil {
			report.PassageErrors = append(report.PassageErrors, domain.StageFailure{Stage: "passage_insert", Label: p.Label, Error: err.Error()})
			continue
		}
		stored = append(stored, *p)
	}
	report.PassagesInserted = len(stored)

	errs := make([]error, len(stored))
	var g errgroup.Group
	g.SetLimit(PassageEmbedConcurrency)
	for i, p := range stored {
		g.Go(func() error {
			vec, err := u.provider.Embed(ctx, p.Content)
			if err != nil {
				errs[i] = err
				return nil
			}
			if err := u.embeddingRepo.UpsertPassageEmbedding(ctx, p.ID, vec); err != nil {
				errs[i] = fmt.Errorf("failed to store passage embedding: %w", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var embedded []int64
	for i, p := range stored {
		if errs[i] != nil {
			u.logger.WithContext(ctx).Warn("ingest_passage_embedding_failed", slog.Int64("passage_id", p.ID), slog.String("error", errs[i].Error()))
			report.PassageEmbeddingFailures = append(report.PassageEmbeddingFailures, domain.StageFailure{Stage: "passage_embedding", PassageID: p.ID, Error: errs[i].Error()})
			continue
		}
		embedded = append(embedded, p.ID)
	}
	report.PassageEmbeddingsCreated = len(embedded)
	return embedded
}

func (u *ingestDocumentUsecase) embedOverviews(ctx context.Context, overviews []domain.Overview, report *IngestReport) []LinkTarget {
	summaries := make([]string, len(overviews))
	for i, ov := range overviews {
		summaries[i] = ov.Summary
	}
	vectors, failed := embedWithFallback(ctx, u.provider, summaries)

	targets := make([]LinkTarget, len(overviews))
	for i, ov := range overviews {
		targets[i] = LinkTarget{Overview: ov}
		if failed[i] != nil {
			report.OverviewEmbeddingFailures = append(report.OverviewEmbeddingFailures, domain.StageFailure{Stage: "overview_embedding", OverviewID: ov.ID, Error: failed[i].Error()})
			continue
		}
		if err := u.embeddingRepo.UpsertOverviewEmbedding(ctx, ov.ID, vectors[i]); err != nil {
			report.OverviewEmbeddingFailures = append(report.OverviewEmbeddingFailures, domain.StageFailure{Stage: "overview_embedding_store", OverviewID: ov.ID, Error: err.Error()})
		} else {
			report.OverviewEmbeddingsCreated++
		}
		// An unsaved vector can still link this overview in the current run.
		targets[i].Vector = vectors[i]
	}
	return targets
}

func (u *ingestDocumentUsecase) enqueueScoring(ctx context.Context, passageIDs []int64, report *IngestReport) {
	if len(passageIDs) == 0 {
		report.Message = "No embedded passages to score"
		return
	}
	now := time.Now()
	job := &domain.Job{
		ID:        uuid.New(),
		JobType:   domain.JobTypeScorePassageThemes,
		Payload:   map[string]any{"passage_ids": passageIDs, "top_n": u.topN},
		Status:    domain.JobStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.jobRepo.Enqueue(ctx, job); err != nil {
		u.logger.WithContext(ctx).Warn("ingest_scoring_enqueue_failed", slog.String("error", err.Error()))
		report.Message = "Background passage theme scoring could not be queued: " + err.Error()
		return
	}
	report.ScoringJobID = job.ID.String()
	report.Message = "Background passage theme scoring queued"
}

func (u *ingestDocumentUsecase) recordFailures(report *IngestReport) {
	metrics.RecordStageFailures("ingest", "overview", len(report.OverviewErrors))
	metrics.RecordStageFailures("ingest", "overview_embedding", len(report.OverviewEmbeddingFailures))
	metrics.RecordStageFailures("ingest", "passage", len(report.PassageErrors))
	metrics.RecordStageFailures("ingest", "passage_embedding", len(report.PassageEmbeddingFailures))
}
