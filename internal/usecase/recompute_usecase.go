package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
)

const (
	embedBackfillBatch      = 20
	passageBackfillLimit    = 1000
	overviewBackfillLimit   = 500
	themeBackfillLimit      = 1000
	overviewPageSize        = 100
	passageScoringPageSize  = 200
	noThemesWithEmbeddings  = "no themes with embeddings"
	noOverviewsFound        = "no overviews found"
	noPassageEmbeddingsNote = "no embedded passages in scope"
)

// RecomputeOptions scopes a maintenance job. A nil DocumentID means the whole corpus.
type RecomputeOptions struct {
	DocumentID *int64
	TopN       int
	Reset      bool
}

// RecomputeReport summarizes a maintenance job. Write failures are listed, never fatal.
type RecomputeReport struct {
	Success   bool                  `json:"success"`
	Note      string                `json:"note,omitempty"`
	Deleted   int64                 `json:"deleted"`
	Processed int                   `json:"processed"`
	Themes    int                   `json:"themes"`
	Upserted  int                   `json:"upserted"`
	Errors    []domain.StageFailure `json:"errors"`
	Links     *LinkReport           `json:"links,omitempty"`
}

// EmbeddingReport counts vectors created by an embedding backfill.
type EmbeddingReport struct {
	Success   bool                  `json:"success"`
	Passages  int                   `json:"passages"`
	Overviews int                   `json:"overviews"`
	Themes    int                   `json:"themes"`
	Errors    []domain.StageFailure `json:"errors"`
}

type RecomputeUsecase interface {
	// RecomputeEmbeddings embeds passages, overviews and themes that have no vector yet.
	RecomputeEmbeddings(ctx context.Context, documentID *int64) (*EmbeddingReport, error)
	// RecomputeOverviewThemes re-extracts themes from overview summaries and relinks them.
	RecomputeOverviewThemes(ctx context.Context, opts RecomputeOptions) (*RecomputeReport, error)
	// RecomputePassageThemes rescores every embedded passage in scope against all themes.
	RecomputePassageThemes(ctx context.Context, opts RecomputeOptions) (*RecomputeReport, error)
	// ScorePassages scores the given passages against all themes.
	ScorePassages(ctx context.Context, passageIDs []int64, topN int) (*RecomputeReport, error)
}

type recomputeUsecase struct {
	overviewRepo  domain.OverviewRepository
	passageRepo   domain.PassageRepository
	embeddingRepo domain.EmbeddingRepository
	themeRepo     domain.ThemeRepository
	assocRepo     domain.AssociationRepository
	encoder       domain.VectorEncoder
	linker        ThemeLinker
	logger        *logger.ContextLogger
}

func NewRecomputeUsecase(
	overviewRepo domain.OverviewRepository,
	passageRepo domain.PassageRepository,
	embeddingRepo domain.EmbeddingRepository,
	themeRepo domain.ThemeRepository,
	assocRepo domain.AssociationRepository,
	encoder domain.VectorEncoder,
	linker ThemeLinker,
	log *slog.Logger,
) RecomputeUsecase {
	return &recomputeUsecase{
		overviewRepo:  overviewRepo,
		passageRepo:   passageRepo,
		embeddingRepo: embeddingRepo,
		themeRepo:     themeRepo,
		assocRepo:     assocRepo,
		encoder:       encoder,
		linker:        linker,
		logger:        logger.NewContextLogger(log, "writing-comparator"),
	}
}

func (u *recomputeUsecase) RecomputeEmbeddings(ctx context.Context, documentID *int64) (*EmbeddingReport, error) {
	ctx = logger.WithPipelineStage(ctx, "recompute_embeddings")
	report := &EmbeddingReport{Success: true}

	passages, err := u.passageRepo.ListPassagesMissingEmbedding(ctx, documentID, passageBackfillLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages missing embeddings: %w", err)
	}
	for i := 0; i < len(passages); i += embedBackfillBatch {
		batch := passages[i:min(i+embedBackfillBatch, len(passages))]
		inputs := make([]string, len(batch))
		for j, p := range batch {
			inputs[j] = p.Content
		}
		vectors, failed := embedWithFallback(ctx, u.encoder, inputs)
		for j, p := range batch {
			if err := firstErr(failed[j], func() error { return u.embeddingRepo.UpsertPassageEmbedding(ctx, p.ID, vectors[j]) }); err != nil {
				report.Errors = append(report.Errors, domain.StageFailure{Stage: "passage_embedding", PassageID: p.ID, Error: err.Error()})
				continue
			}
			report.Passages++
		}
	}

	overviews, err := u.overviewRepo.ListOverviewsMissingEmbedding(ctx, documentID, overviewBackfillLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overviews missing embeddings: %w", err)
	}
	for i := 0; i < len(overviews); i += embedBackfillBatch {
		batch := overviews[i:min(i+embedBackfillBatch, len(overviews))]
		inputs := make([]string, len(batch))
		for j, ov := range batch {
			inputs[j] = ov.Summary
		}
		vectors, failed := embedWithFallback(ctx, u.encoder, inputs)
		for j, ov := range batch {
			if err := firstErr(failed[j], func() error { return u.embeddingRepo.UpsertOverviewEmbedding(ctx, ov.ID, vectors[j]) }); err != nil {
				report.Errors = append(report.Errors, domain.StageFailure{Stage: "overview_embedding", OverviewID: ov.ID, Error: err.Error()})
				continue
			}
			report.Overviews++
		}
	}

	themes, err := u.themeRepo.ListThemesMissingEmbedding(ctx, themeBackfillLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes missing embeddings: %w", err)
	}
	for i := 0; i < len(themes); i += embedBackfillBatch {
		batch := themes[i:min(i+embedBackfillBatch, len(themes))]
		inputs := make([]string, len(batch))
		for j, th := range batch {
			inputs[j] = th.Name + " " + th.Description
		}
		vectors, failed := embedWithFallback(ctx, u.encoder, inputs)
		for j, th := range batch {
			if err := firstErr(failed[j], func() error { return u.themeRepo.UpdateThemeEmbedding(ctx, th.ID, vectors[j]) }); err != nil {
				report.Errors = append(report.Errors, domain.StageFailure{Stage: "theme_embedding", Name: th.Name, Error: err.Error()})
				continue
			}
			report.Themes++
		}
	}

	u.logger.WithContext(ctx).Info("recompute_embeddings_completed",
		slog.Int("passages", report.Passages),
		slog.Int("overviews", report.Overviews),
		slog.Int("themes", report.Themes),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func firstErr(err error, next func() error) error {
	if err != nil {
		return err
	}
	return next()
}

func (u *recomputeUsecase) RecomputeOverviewThemes(ctx context.Context, opts RecomputeOptions) (*RecomputeReport, error) {
	ctx = logger.WithPipelineStage(ctx, "recompute_overview_themes")
	topN := opts.TopN
	if topN <= 0 {
		topN = domain.DefaultTopN
	}
	report := &RecomputeReport{Success: true, Links: &LinkReport{}}

	if opts.Reset {
		deleted, err := u.assocRepo.DeleteOverviewThemes(ctx, opts.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to reset overview themes: %w", err)
		}
		report.Deleted = deleted
	}

	seen := 0
	for offset := 0; ; offset += overviewPageSize {
		var page []domain.Overview
		var err error
		if opts.DocumentID != nil {
			page, err = u.overviewRepo.ListOverviewsByDocument(ctx, *opts.DocumentID)
		} else {
			page, err = u.overviewRepo.ListOverviewsPage(ctx, nil, overviewPageSize, offset)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list overviews: %w", err)
		}
		if len(page) == 0 {
			break
		}
		seen += len(page)

		targets := u.overviewTargets(ctx, page, report)
		links, err := u.linker.Link(ctx, targets, LinkOptions{TopN: topN, NamesPerOverview: max(3, topN)})
		if links != nil {
			report.Links.Merge(*links)
		}
		if err != nil {
			report.Errors = append(report.Errors, domain.StageFailure{Stage: "theme_lookup", Error: err.Error()})
		}

		if opts.DocumentID != nil {
			break
		}
	}

	if seen == 0 {
		report.Note = noOverviewsFound
		report.Links = nil
		return report, nil
	}
	report.Processed = report.Links.OverviewsLinked
	report.Upserted = report.Links.OverviewThemeLinks

	u.logger.WithContext(ctx).Info("recompute_overview_themes_completed",
		slog.Int("overviews", seen),
		slog.Int("processed", report.Processed),
		slog.Int("upserted", report.Upserted),
	)
	return report, nil
}

// overviewTargets loads each overview's vector, embedding the summary when none is stored.
// Overviews that cannot be embedded are reported and skipped.
func (u *recomputeUsecase) overviewTargets(ctx context.Context, overviews []domain.Overview, report *RecomputeReport) []LinkTarget {
	targets := make([]LinkTarget, 0, len(overviews))
	for _, ov := range overviews {
		vec, err := u.embeddingRepo.GetOverviewEmbedding(ctx, ov.ID)
		if err != nil {
			report.Errors = append(report.Errors, domain.StageFailure{Stage: "overview_embedding_load", OverviewID: ov.ID, Error: err.Error()})
			continue
		}
		if len(vec) == 0 {
			vec, err = u.encoder.Embed(ctx, ov.Summary)
			if err == nil {
				err = u.embeddingRepo.UpsertOverviewEmbedding(ctx, ov.ID, vec)
			}
			if err != nil {
				u.logger.WithContext(ctx).Warn("overview_embedding_failed", slog.Int64("overview_id", ov.ID), slog.String("error", err.Error()))
				report.Errors = append(report.Errors, domain.StageFailure{Stage: "overview_embedding", OverviewID: ov.ID, Error: err.Error()})
				continue
			}
		}
		targets = append(targets, LinkTarget{Overview: ov, Vector: vec})
	}
	return targets
}

func (u *recomputeUsecase) RecomputePassageThemes(ctx context.Context, opts RecomputeOptions) (*RecomputeReport, error) {
	ctx = logger.WithPipelineStage(ctx, "recompute_passage_themes")
	report := &RecomputeReport{Success: true}

	if opts.Reset {
		deleted, err := u.assocRepo.DeletePassageThemes(ctx, opts.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to reset passage themes: %w", err)
		}
		report.Deleted = deleted
	}

	themes, err := u.themeRepo.ListThemesWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	report.Themes = len(themes)
	if len(themes) == 0 {
		report.Note = noThemesWithEmbeddings
		return report, nil
	}

	for offset := 0; ; offset += passageScoringPageSize {
		page, err := u.embeddingRepo.ListPassageEmbeddingsPage(ctx, opts.DocumentID, passageScoringPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list passage embeddings: %w", err)
		}
		if len(page) == 0 {
			break
		}
		u.scoreAndUpsert(ctx, page, themes, opts.TopN, report)
	}
	if report.Processed == 0 {
		report.Note = noPassageEmbeddingsNote
	}

	u.logger.WithContext(ctx).Info("recompute_passage_themes_completed",
		slog.Int("processed", report.Processed),
		slog.Int("upserted", report.Upserted),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (u *recomputeUsecase) ScorePassages(ctx context.Context, passageIDs []int64, topN int) (*RecomputeReport, error) {
	report := &RecomputeReport{Success: true}
	if len(passageIDs) == 0 {
		return report, nil
	}

	themes, err := u.themeRepo.ListThemesWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	report.Themes = len(themes)
	if len(themes) == 0 {
		report.Note = noThemesWithEmbeddings
		return report, nil
	}

	embeddings, err := u.embeddingRepo.ListPassageEmbeddings(ctx, passageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list passage embeddings: %w", err)
	}
	u.scoreAndUpsert(ctx, embeddings, themes, topN, report)
	return report, nil
}

// scoreAndUpsert keeps the topN themes per passage and writes them in chunks,
// collecting chunk failures instead of stopping.
func (u *recomputeUsecase) scoreAndUpsert(ctx context.Context, passages []domain.OwnerEmbedding, themes []domain.Theme, topN int, report *RecomputeReport) {
	if topN <= 0 {
		topN = domain.DefaultTopN
	}
	var rows []domain.Association
	for _, p := range passages {
		scores := domain.ScoreTopN(p.Vector, themes, topN)
		rows = append(rows, domain.ToAssociations(p.OwnerID, scores)...)
	}
	report.Processed += len(passages)

	for _, chunk := range domain.ChunkAssociations(rows, domain.MaxAssociationBatch) {
		if err := u.assocRepo.UpsertPassageThemes(ctx, chunk); err != nil {
			u.logger.WithContext(ctx).Warn("passage_theme_upsert_failed", slog.Int("rows", len(chunk)), slog.String("error", err.Error()))
			report.Errors = append(report.Errors, domain.StageFailure{Stage: "passage_theme_upsert", Batch: true, Error: err.Error()})
			continue
		}
		report.Upserted += len(chunk)
	}
}
