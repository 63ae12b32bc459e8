package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/metrics"
)

const (
	maxCandidateThemes   = 500
	themeBatchSize       = 200
	maxThemeNameLen      = 200
	maxThemeDescLen      = 500
	defaultNamesPerGroup = 12
)

var themeSplitRe = regexp.MustCompile(`[\n,]+`)

// LinkTarget is an overview and its embedding. Targets without a vector still
// contribute theme names but are not linked.
type LinkTarget struct {
	Overview domain.Overview
	Vector   []float32
}

// LinkOptions tunes theme extraction and linking.
type LinkOptions struct {
	TopN int
	// NamesPerOverview asks the model for a fixed number of themes. Zero asks for 8-12.
	NamesPerOverview int
}

// LinkReport counts the work done while linking overviews to themes.
type LinkReport struct {
	UniqueThemesExtracted      int                   `json:"unique_themes_extracted"`
	ThemeDescriptionsGenerated int                   `json:"theme_descriptions_generated"`
	ThemesCreated              int                   `json:"themes_created"`
	ThemeEmbeddingsCreated     int                   `json:"theme_embeddings_created"`
	OverviewThemeLinks         int                   `json:"overview_theme_links"`
	OverviewsLinked            int                   `json:"overviews_linked"`
	ExtractionErrors           []domain.StageFailure `json:"extraction_errors"`
	ThemeCreationErrors        []domain.StageFailure `json:"theme_creation_errors"`
	ThemeEmbeddingFailures     []domain.StageFailure `json:"theme_embedding_failures"`
	LinkErrors                 []domain.StageFailure `json:"link_errors"`
}

// Merge adds other's counts and failures to r.
func (r *LinkReport) Merge(other LinkReport) {
	r.UniqueThemesExtracted += other.UniqueThemesExtracted
	r.ThemeDescriptionsGenerated += other.ThemeDescriptionsGenerated
	r.ThemesCreated += other.ThemesCreated
	r.ThemeEmbeddingsCreated += other.ThemeEmbeddingsCreated
	r.OverviewThemeLinks += other.OverviewThemeLinks
	r.OverviewsLinked += other.OverviewsLinked
	r.ExtractionErrors = append(r.ExtractionErrors, other.ExtractionErrors...)
	r.ThemeCreationErrors = append(r.ThemeCreationErrors, other.ThemeCreationErrors...)
	r.ThemeEmbeddingFailures = append(r.ThemeEmbeddingFailures, other.ThemeEmbeddingFailures...)
	r.LinkErrors = append(r.LinkErrors, other.LinkErrors...)
}

// ThemeLinker extracts theme names from overview summaries, resolves them to theme
// rows, backfills theme embeddings and links each overview to its closest themes.
type ThemeLinker interface {
	Link(ctx context.Context, targets []LinkTarget, opts LinkOptions) (*LinkReport, error)
}

type themeLinker struct {
	themeRepo domain.ThemeRepository
	assocRepo domain.AssociationRepository
	provider  domain.TextProvider
	logger    *slog.Logger
}

func NewThemeLinker(
	themeRepo domain.ThemeRepository,
	assocRepo domain.AssociationRepository,
	provider domain.TextProvider,
	logger *slog.Logger,
) ThemeLinker {
	return &themeLinker{
		themeRepo: themeRepo,
		assocRepo: assocRepo,
		provider:  provider,
		logger:    logger,
	}
}

// Link never fails on a single item. The returned error is reserved for a theme
// lookup failure, without which no theme can be resolved at all.
func (l *themeLinker) Link(ctx context.Context, targets []LinkTarget, opts LinkOptions) (*LinkReport, error) {
	if opts.TopN <= 0 {
		opts.TopN = domain.DefaultTopN
	}
	report := &LinkReport{}
	if len(targets) == 0 {
		return report, nil
	}

	names := l.extractNames(ctx, targets, opts, report)
	report.UniqueThemesExtracted = len(names)
	if len(names) == 0 {
		return report, nil
	}

	themes, err := l.resolveThemes(ctx, names, report)
	if err != nil {
		return report, err
	}

	l.backfillEmbeddings(ctx, themes, report)

	l.linkOverviews(ctx, targets, themes, opts.TopN, report)

	for stage, failures := range map[string][]domain.StageFailure{
		"theme_extraction": report.ExtractionErrors,
		"theme_creation":   report.ThemeCreationErrors,
		"theme_embedding":  report.ThemeEmbeddingFailures,
		"overview_link":    report.LinkErrors,
	} {
		metrics.RecordStageFailures("themes", stage, len(failures))
	}
	return report, nil
}

// extractNames asks for theme names per overview and returns the corpus-wide,
// order-preserving set of unique names, capped at maxCandidateThemes.
func (l *themeLinker) extractNames(ctx context.Context, targets []LinkTarget, opts LinkOptions, report *LinkReport) []string {
	perOverview := make([][]string, len(targets))
	failures := make([]*domain.StageFailure, len(targets))

	limit := defaultNamesPerGroup
	if opts.NamesPerOverview > 0 {
		limit = opts.NamesPerOverview
	}

	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			text, err := l.provider.Complete(ctx, themePrompt(t.Overview.Summary, opts.NamesPerOverview), 0)
			if err != nil {
				failures[i] = &domain.StageFailure{Stage: "theme_extraction", OverviewID: t.Overview.ID, Error: err.Error()}
				return nil
			}
			perOverview[i] = ParseThemeNames(text, limit)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failures {
		if f != nil {
			report.ExtractionErrors = append(report.ExtractionErrors, *f)
		}
	}

	seen := make(map[string]struct{})
	var unique []string
	for _, names := range perOverview {
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			unique = append(unique, n)
		}
	}
	if len(unique) > maxCandidateThemes {
		unique = unique[:maxCandidateThemes]
	}
	return unique
}

func themePrompt(summary string, count int) string {
	if count > 0 {
		return fmt.Sprintf("Extract a list of %d concise themes (comma-separated) from this summary: %s", count, summary)
	}
	return "Extract a list of 8-12 themes or topics (comma-separated) from this summary: " + summary
}

// ParseThemeNames splits a model answer on commas and newlines. Names are trimmed,
// cut to 200 characters and deduplicated; at most limit names are returned.
func ParseThemeNames(text string, limit int) []string {
	var names []string
	for _, part := range themeSplitRe.Split(text, -1) {
		name := truncateRunes(strings.TrimSpace(part), maxThemeNameLen)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
		if limit > 0 && len(names) == limit {
			break
		}
	}
	return names
}

// resolveThemes returns a theme row for every name that exists or could be created.
func (l *themeLinker) resolveThemes(ctx context.Context, names []string, report *LinkReport) ([]domain.Theme, error) {
	existing, err := l.themeRepo.FindThemesByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to find themes: %w", err)
	}

	known := make(map[string]struct{}, len(existing))
	for _, th := range existing {
		known[th.Name] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := known[n]; !ok {
			missing = append(missing, n)
		}
	}

	described := make([]domain.Theme, len(missing))
	descErrs := make([]error, len(missing))
	var g errgroup.Group
	for i, name := range missing {
		g.Go(func() error {
			desc, err := l.provider.Complete(ctx, "Write a one-sentence description for the theme: "+name, 0)
			if err != nil {
				descErrs[i] = err
				return nil
			}
			described[i] = domain.Theme{Name: name, Description: truncateRunes(strings.TrimSpace(desc), maxThemeDescLen)}
			return nil
		})
	}
	_ = g.Wait()

	var fresh []domain.Theme
	for i, th := range described {
		if descErrs[i] != nil {
			report.ThemeCreationErrors = append(report.ThemeCreationErrors, domain.StageFailure{
				Stage: "theme_description", Name: missing[i], Error: descErrs[i].Error(),
			})
			continue
		}
		fresh = append(fresh, th)
	}
	report.ThemeDescriptionsGenerated = len(fresh)

	themes := existing
	for batch := range slices.Chunk(fresh, themeBatchSize) {
		stored, err := l.themeRepo.UpsertThemes(ctx, batch)
		if err != nil {
			report.ThemeCreationErrors = append(report.ThemeCreationErrors, domain.StageFailure{
				Stage: "theme_insert", Batch: true, Error: err.Error(),
			})
			continue
		}
		report.ThemesCreated += len(stored)
		themes = append(themes, stored...)
	}
	return themes, nil
}

// backfillEmbeddings embeds every theme without a vector, batch first and then one
// by one when the batch call fails. themes is updated in place.
func (l *themeLinker) backfillEmbeddings(ctx context.Context, themes []domain.Theme, report *LinkReport) {
	var idx []int
	var inputs []string
	for i, th := range themes {
		if !th.HasEmbedding() {
			idx = append(idx, i)
			inputs = append(inputs, th.Name+" "+th.Description)
		}
	}
	if len(inputs) == 0 {
		return
	}

	vectors, failed := embedWithFallback(ctx, l.provider, inputs)
	for j, i := range idx {
		if failed[j] != nil {
			report.ThemeEmbeddingFailures = append(report.ThemeEmbeddingFailures, domain.StageFailure{
				Stage: "theme_embedding", Name: themes[i].Name, Error: failed[j].Error(),
			})
			continue
		}
		if err := l.themeRepo.UpdateThemeEmbedding(ctx, themes[i].ID, vectors[j]); err != nil {
			report.ThemeEmbeddingFailures = append(report.ThemeEmbeddingFailures, domain.StageFailure{
				Stage: "theme_embedding_store", Name: themes[i].Name, Error: err.Error(),
			})
			continue
		}
		themes[i].Embedding = vectors[j]
		report.ThemeEmbeddingsCreated++
	}
}

func (l *themeLinker) linkOverviews(ctx context.Context, targets []LinkTarget, themes []domain.Theme, topN int, report *LinkReport) {
	var rows []domain.Association
	linked := make(map[int64]struct{})
	for _, t := range targets {
		if len(t.Vector) == 0 {
			continue
		}
		scores := domain.ScoreTopN(t.Vector, themes, topN)
		if len(scores) == 0 {
			continue
		}
		rows = append(rows, domain.ToAssociations(t.Overview.ID, scores)...)
	}

	for _, chunk := range domain.ChunkAssociations(rows, domain.MaxAssociationBatch) {
		if err := l.assocRepo.UpsertOverviewThemes(ctx, chunk); err != nil {
			l.logger.WarnContext(ctx, "overview_theme_upsert_failed", slog.Int("rows", len(chunk)), slog.String("error", err.Error()))
			report.LinkErrors = append(report.LinkErrors, domain.StageFailure{Stage: "overview_theme_upsert", Batch: true, Error: err.Error()})
			continue
		}
		report.OverviewThemeLinks += len(chunk)
		for _, r := range chunk {
			linked[r.OwnerID] = struct{}{}
		}
	}
	report.OverviewsLinked = len(linked)
}
