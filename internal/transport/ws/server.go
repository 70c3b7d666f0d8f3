// Package ws provides the persistent WebSocket chat endpoint.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/config"
	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/service"
	"github.com/xiaot623/gogo/streamchat/internal/transport/sink"
)

const invalidMessage = "invalid message"

// job is one inbound frame waiting for the connection's turn worker. A job
// with a non-empty reject is answered with an error frame instead of a turn.
type job struct {
	req    domain.ChatRequest
	reject string
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	service  *service.Service
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*sink.Connection
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, svc *service.Service) *Server {
	return &Server{
		cfg:     cfg,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		connections: make(map[string]*sink.Connection),
	}
}

// HandleWebSocket upgrades the request and starts the connection's pumps.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "ws").Msg("failed to upgrade websocket")
		return err
	}

	conn := sink.NewConnection(ws, s.cfg.SendBuffer)
	ws.SetReadLimit(s.cfg.MaxMessageSize)
	s.register(conn)

	logger := log.With().Str("component", "ws").Str("conn_id", conn.ID).Logger()
	logger.Info().Str("remote", c.RealIP()).Msg("connection opened")

	jobs := make(chan job, s.cfg.TurnQueue)
	go conn.WritePump(s.cfg.PingInterval, s.cfg.WriteTimeout)
	go s.turnWorker(conn, jobs, logger)
	go s.readPump(conn, jobs, logger)

	return nil
}

// readPump decodes inbound frames and queues them for the turn worker.
func (s *Server) readPump(conn *sink.Connection, jobs chan<- job, logger zerolog.Logger) {
	defer func() {
		close(jobs)
		conn.Close()
		_ = conn.Conn.Close()
		s.unregister(conn)
		logger.Info().Msg("connection closed")
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var j job
		if err := json.Unmarshal(data, &j.req); err != nil {
			logger.Debug().Err(err).Msg("undecodable frame")
			j.reject = invalidMessage
		}

		select {
		case jobs <- j:
		case <-conn.Done():
			return
		}
		_ = conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

// turnWorker runs the connection's turns one at a time so their frames never
// interleave. Closing the connection cancels the turn in flight.
func (s *Server) turnWorker(conn *sink.Connection, jobs <-chan job, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-conn.Done()
		cancel()
	}()

	for j := range jobs {
		select {
		case <-conn.Done():
			continue
		default:
		}

		if j.reject != "" {
			if err := conn.Send(ctx, domain.ErrorEvent(j.reject)); err != nil {
				logger.Debug().Err(err).Msg("reject not delivered")
			}
			continue
		}
		<-s.service.Dispatch(ctx, j.req.Ref(), j.req.Content, conn)
	}
}

func (s *Server) register(conn *sink.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = conn
}

func (s *Server) unregister(conn *sink.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, conn.ID)
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// CloseAll closes every open connection. Used on shutdown, since hijacked
// connections are not tracked by the HTTP server.
func (s *Server) CloseAll() {
	s.mu.RLock()
	conns := make([]*sink.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
		_ = conn.Conn.Close()
	}
}
