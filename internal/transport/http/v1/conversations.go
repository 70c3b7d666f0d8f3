package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

// ListSessions lists live conversations, most recently active first.
// GET /api/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	convs, err := h.service.ListConversations(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": convs,
	})
}

// UpdateSession renames a conversation.
// PUT /api/sessions/:id
func (h *Handler) UpdateSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req domain.UpdateTitleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	conv, err := h.service.RenameConversation(c.Request().Context(), id, req.Title)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteSession soft-deletes a conversation and its messages.
// DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if err := h.service.DeleteConversation(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
