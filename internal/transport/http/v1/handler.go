// Package v1 provides the public HTTP API.
package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	model   string
}

// NewHandler creates a new handler. model is the name reported in stream chunks.
func NewHandler(svc *service.Service, model string) *Handler {
	return &Handler{
		service: svc,
		model:   model,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/chat/stream", h.StreamChat)

	e.GET("/api/sessions", h.ListSessions)
	e.PUT("/api/sessions/:id", h.UpdateSession)
	e.DELETE("/api/sessions/:id", h.DeleteSession)
	e.GET("/api/sessions/:id/messages", h.GetSessionMessages)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func sessionID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.Wrap(domain.ErrInvalidInput, "invalid session id")
	}
	return id, nil
}

// errorJSON writes err with the status matching its kind.
func errorJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
