package text_http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"writing-comparator/internal/domain"
)

// respondError maps the domain error taxonomy onto status codes.
func (h *Handler) respondError(c echo.Context, err error) error {
	var (
		validationErr *domain.ValidationError
		executionErr  *domain.ExecutionError
		fatalErr      *domain.FatalError
		providerErr   *domain.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": validationErr.Error(),
			"sql":   validationErr.SQL,
		})
	case errors.As(err, &executionErr):
		body := map[string]string{
			"error": executionErr.Error(),
			"sql":   executionErr.SQL,
		}
		if executionErr.Hint != "" {
			body["hint"] = executionErr.Hint
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &fatalErr):
		h.logger.ErrorContext(c.Request().Context(), "request_failed_fatal",
			slog.String("stage", fatalErr.Stage),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
			"stage": fatalErr.Stage,
		})
	case errors.As(err, &providerErr):
		h.logger.WarnContext(c.Request().Context(), "request_failed_provider",
			slog.String("op", providerErr.Op),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		return c.NoContent(499)
	default:
		h.logger.ErrorContext(c.Request().Context(), "request_failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
