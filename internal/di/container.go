package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"writing-comparator/internal/adapter/embedcache"
	"writing-comparator/internal/adapter/repository"
	"writing-comparator/internal/adapter/text_http"
	"writing-comparator/internal/adapter/textai"
	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/config"
	"writing-comparator/internal/usecase"
	"writing-comparator/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	DocRepo       domain.DocumentRepository
	OverviewRepo  domain.OverviewRepository
	PassageRepo   domain.PassageRepository
	EmbeddingRepo domain.EmbeddingRepository
	ThemeRepo     domain.ThemeRepository
	AssocRepo     domain.AssociationRepository
	JobRepo       domain.JobRepository
	QueryRepo     domain.QueryRepository

	// Provider
	Provider     *textai.Client
	QueryEncoder *embedcache.Encoder
	Redis        *redis.Client

	// Usecases
	IngestUsecase    usecase.IngestDocumentUsecase
	AskUsecase       usecase.AskQuestionUsecase
	SearchUsecase    usecase.SearchPassagesUsecase
	CatalogUsecase   usecase.CatalogUsecase
	RecomputeUsecase usecase.RecomputeUsecase

	// Worker
	Worker *worker.JobWorker

	Handler *text_http.Handler
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Repositories
	docRepo := repository.NewDocumentRepository(pool)
	overviewRepo := repository.NewOverviewRepository(pool)
	passageRepo := repository.NewPassageRepository(pool)
	embeddingRepo := repository.NewEmbeddingRepository(pool)
	themeRepo := repository.NewThemeRepository(pool)
	assocRepo := repository.NewAssociationRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	queryRepo := repository.NewQueryRepository(pool, time.Duration(cfg.Query.StatementTimeoutMs)*time.Millisecond)

	// External clients
	provider := textai.NewClient(cfg.Provider, log)

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		rc, err := embedcache.NewRedisClient(cfg.Cache.RedisURL)
		if err != nil {
			log.Warn("embed_cache_redis_disabled", slog.String("error", err.Error()))
		} else {
			redisClient = rc
			log.Info("embed_cache_redis_enabled")
		}
	}
	queryEncoder := embedcache.New(
		provider,
		provider.EmbedModel(),
		cfg.Cache.Size,
		time.Duration(cfg.Cache.TTLMin)*time.Minute,
		redisClient,
		log,
	)

	// Domain services
	chunker := domain.NewChunker(cfg.Ingest.MaxWords)
	linker := usecase.NewThemeLinker(themeRepo, assocRepo, provider, log)

	ingestUsecase := usecase.NewIngestDocumentUsecase(
		docRepo, overviewRepo, passageRepo, embeddingRepo, jobRepo,
		provider, linker, chunker, cfg.Ingest.TopN, log,
	)
	askUsecase := usecase.NewAskQuestionUsecase(
		queryEncoder, provider, queryRepo,
		usecase.AskQueryConfig{
			DefaultLimit:     cfg.Query.DefaultLimit,
			SQLMaxTokens:     cfg.Query.SQLMaxTokens,
			SummaryMaxTokens: cfg.Query.SummaryMaxTokens,
			SummaryTimeout:   time.Duration(cfg.Query.SummaryTimeoutMs) * time.Millisecond,
		},
		log,
	)
	searchUsecase := usecase.NewSearchPassagesUsecase(queryEncoder, queryRepo)
	catalogUsecase := usecase.NewCatalogUsecase(docRepo, overviewRepo, passageRepo, assocRepo, jobRepo)
	recomputeUsecase := usecase.NewRecomputeUsecase(
		overviewRepo, passageRepo, embeddingRepo, themeRepo, assocRepo,
		provider, linker, log,
	)

	// Worker
	jobWorker := worker.NewJobWorker(jobRepo, recomputeUsecase, log)

	handler := text_http.NewHandler(ingestUsecase, askUsecase, searchUsecase, catalogUsecase, recomputeUsecase, log)

	return &ApplicationComponents{
		DocRepo:          docRepo,
		OverviewRepo:     overviewRepo,
		PassageRepo:      passageRepo,
		EmbeddingRepo:    embeddingRepo,
		ThemeRepo:        themeRepo,
		AssocRepo:        assocRepo,
		JobRepo:          jobRepo,
		QueryRepo:        queryRepo,
		Provider:         provider,
		QueryEncoder:     queryEncoder,
		Redis:            redisClient,
		IngestUsecase:    ingestUsecase,
		AskUsecase:       askUsecase,
		SearchUsecase:    searchUsecase,
		CatalogUsecase:   catalogUsecase,
		RecomputeUsecase: recomputeUsecase,
		Worker:           jobWorker,
		Handler:          handler,
	}
}

// Close releases clients that hold network connections besides the pool.
func (c *ApplicationComponents) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
