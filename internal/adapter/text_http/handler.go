// Package text_http exposes the ingestion, query, search, catalog and recompute
// operations as JSON over HTTP.
package text_http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/usecase"
)

type Handler struct {
	ingestUsecase    usecase.IngestDocumentUsecase
	askUsecase       usecase.AskQuestionUsecase
	searchUsecase    usecase.SearchPassagesUsecase
	catalogUsecase   usecase.CatalogUsecase
	recomputeUsecase usecase.RecomputeUsecase
	logger           *slog.Logger
}

func NewHandler(
	ingestUsecase usecase.IngestDocumentUsecase,
	askUsecase usecase.AskQuestionUsecase,
	searchUsecase usecase.SearchPassagesUsecase,
	catalogUsecase usecase.CatalogUsecase,
	recomputeUsecase usecase.RecomputeUsecase,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ingestUsecase:    ingestUsecase,
		askUsecase:       askUsecase,
		searchUsecase:    searchUsecase,
		catalogUsecase:   catalogUsecase,
		recomputeUsecase: recomputeUsecase,
		logger:           logger,
	}
}

// Register mounts every route under /api and installs the request validator.
func (h *Handler) Register(e *echo.Echo) {
	e.Validator = NewRequestValidator()

	api := e.Group("/api")
	api.POST("/upload", h.Upload)
	api.POST("/query", h.Query)
	api.GET("/search", h.Search)
	api.POST("/search", h.Search)
	api.GET("/documents", h.ListDocuments)
	api.GET("/document/:id", h.GetDocument)
	api.GET("/overview/:id", h.GetOverview)
	api.GET("/debug/passage-theme", h.DebugPassageThemes)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/recompute/embeddings", h.RecomputeEmbeddings)
	api.POST("/recompute/overview-themes", h.RecomputeOverviewThemes)
	api.POST("/recompute/passage-themes", h.RecomputePassageThemes)
}

type uploadRequest struct {
	Title         string  `json:"title" form:"title" validate:"required,notblank,max=500"`
	Author        *string `json:"author" form:"author"`
	Tradition     *string `json:"tradition" form:"tradition"`
	RhetoricType  *string `json:"rhetoric_type" form:"rhetoric_type"`
	Language      *string `json:"language" form:"language"`
	EstimatedDate *string `json:"estimated_date" form:"estimated_date"`
	Notes         *string `json:"notes" form:"notes"`
	Text          string  `json:"text" form:"text" validate:"required,notblank"`
}

// Upload ingests one document
// (POST /api/upload)
func (h *Handler) Upload(c echo.Context) error {
	var req uploadRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}

	report, err := h.ingestUsecase.Ingest(c.Request().Context(), usecase.IngestDocumentInput{
		Title:         strings.TrimSpace(req.Title),
		Author:        req.Author,
		Tradition:     req.Tradition,
		RhetoricType:  req.RhetoricType,
		Language:      req.Language,
		EstimatedDate: req.EstimatedDate,
		Notes:         req.Notes,
		Text:          req.Text,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

type queryRequest struct {
	Question string `json:"question" validate:"required,notblank,max=2000"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// Query answers a natural-language question with generated SQL
// (POST /api/query)
func (h *Handler) Query(c echo.Context) error {
	var req queryRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}

	resp, err := h.askUsecase.Ask(c.Request().Context(), usecase.AskInput{
		Question: strings.TrimSpace(req.Question),
		Limit:    req.Limit,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type searchRequest struct {
	Q          string `json:"q" query:"q" validate:"required,notblank"`
	Mode       string `json:"mode" query:"mode" validate:"omitempty,oneof=text vector hybrid"`
	Limit      int    `json:"limit" query:"limit" validate:"omitempty,min=1,max=100"`
	Offset     int    `json:"offset" query:"offset" validate:"min=0"`
	DocumentID int64  `json:"document_id" query:"document_id" validate:"omitempty,min=1"`
}

// Search ranks passages for a query string
// (GET|POST /api/search)
func (h *Handler) Search(c echo.Context) error {
	var req searchRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}

	in := usecase.SearchInput{
		Query:  strings.TrimSpace(req.Q),
		Mode:   req.Mode,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.DocumentID > 0 {
		in.DocumentID = &req.DocumentID
	}
	rows, err := h.searchUsecase.Search(c.Request().Context(), in)
	if err != nil {
		return h.respondError(c, err)
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": rows, "count": len(rows)})
}

// (GET /api/documents)
func (h *Handler) ListDocuments(c echo.Context) error {
	docs, err := h.catalogUsecase.ListDocuments(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, docs)
}

// (GET /api/document/:id)
func (h *Handler) GetDocument(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := h.catalogUsecase.GetDocument(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// (GET /api/overview/:id)
func (h *Handler) GetOverview(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := h.catalogUsecase.GetOverview(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// (GET /api/debug/passage-theme)
func (h *Handler) DebugPassageThemes(c echo.Context) error {
	debug, err := h.catalogUsecase.DebugPassageThemes(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, debug)
}

// GetJob reports the status of a background scoring job
// (GET /api/jobs/:id)
func (h *Handler) GetJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest("invalid job id")
	}
	job, err := h.catalogUsecase.GetJob(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

type recomputeRequest struct {
	DocumentID *int64 `json:"document_id" validate:"omitempty,min=1"`
	TopN       int    `json:"top_n" validate:"omitempty,min=1,max=100"`
	Reset      bool   `json:"reset"`
}

func (r recomputeRequest) options() usecase.RecomputeOptions {
	topN := r.TopN
	if topN == 0 {
		topN = domain.DefaultTopN
	}
	return usecase.RecomputeOptions{DocumentID: r.DocumentID, TopN: topN, Reset: r.Reset}
}

// (POST /api/recompute/embeddings)
func (h *Handler) RecomputeEmbeddings(c echo.Context) error {
	var req recomputeRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}
	report, err := h.recomputeUsecase.RecomputeEmbeddings(c.Request().Context(), req.DocumentID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// (POST /api/recompute/overview-themes)
func (h *Handler) RecomputeOverviewThemes(c echo.Context) error {
	var req recomputeRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}
	report, err := h.recomputeUsecase.RecomputeOverviewThemes(c.Request().Context(), req.options())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// (POST /api/recompute/passage-themes)
func (h *Handler) RecomputePassageThemes(c echo.Context) error {
	var req recomputeRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}
	report, err := h.recomputeUsecase.RecomputePassageThemes(c.Request().Context(), req.options())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// bindAndValidate returns an *echo.HTTPError carrying the 400 body; echo's error
// handler writes map messages as they are.
func (h *Handler) bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request")
	}
	if err := c.Validate(req); err != nil {
		var fe *FieldErrors
		if errors.As(err, &fe) {
			return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": fe.Error(), "fields": fe.Errors})
		}
		return badRequest(err.Error())
	}
	return nil
}

func badRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": msg})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}
