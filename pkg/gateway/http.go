package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/arcbound/turngate/pkg/version"
)

// Server is the HTTP entrypoint for the gateway: a health endpoint plus
// the WebSocket upgrade route, grounded on
// _examples/codeready-toolchain-tarsy/pkg/api/server.go's Echo v5
// Server/NewServer/Start/Shutdown shape (trimmed to this gateway's two
// routes — no dashboard, no REST API surface).
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	manager    *Manager
	logger     *slog.Logger
}

// NewServer builds a Server that upgrades /ws through manager and
// reports /health.
func NewServer(manager *Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	s := &Server{echo: e, manager: manager, logger: logger}

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)

	return s
}

// healthHandler reports liveness and the active connection count.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "healthy",
		"version":            version.Full(),
		"active_connections": s.manager.ActiveConnections(),
	})
}

// wsHandler upgrades the HTTP request to a WebSocket and hands it to the
// Manager, which blocks for the connection's lifetime.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	s.manager.HandleConnection(c.Request().Context(), conn)
	return nil
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// for tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
