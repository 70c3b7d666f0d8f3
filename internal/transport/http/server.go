// Package http assembles the echo server.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/streamchat/internal/config"
	"github.com/xiaot623/gogo/streamchat/internal/logging"
	"github.com/xiaot623/gogo/streamchat/internal/service"
	v1 "github.com/xiaot623/gogo/streamchat/internal/transport/http/v1"
	"github.com/xiaot623/gogo/streamchat/internal/transport/ws"
)

// NewServer creates the echo server serving the REST API, the SSE stream and
// the WebSocket endpoint.
func NewServer(svc *service.Service, cfg *config.Config, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(logging.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(svc, cfg.LLMModel).RegisterRoutes(e)
	e.GET("/ws/chat", wsServer.HandleWebSocket)

	return e
}
