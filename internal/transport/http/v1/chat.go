package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/transport/sink"
)

// StreamChat runs one turn and streams it back as server-sent events.
// POST /api/chat/stream
func (h *Handler) StreamChat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	out := sink.NewSSE(c.Response().Writer, flusher, h.model)

	// The turn outlives the request context only until we notice the client left.
	reqCtx := c.Request().Context()
	turnCtx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	defer cancel()

	done := h.service.Dispatch(turnCtx, req.Ref(), req.Content, out)
	select {
	case <-done:
	case <-reqCtx.Done():
		log.Debug().Str("component", "http").Stringer("conversation", req.Ref()).Msg("client disconnected, abandoning turn")
		out.Close()
		cancel()
		<-done
	}
	return nil
}
