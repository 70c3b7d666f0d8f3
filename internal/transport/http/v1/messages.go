package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetSessionMessages returns the history of a conversation in order.
// GET /api/sessions/:id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return errorJSON(c, err)
	}

	messages, err := h.service.History(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}
