// Package http provides the relay's HTTP API and landing page.
package http

import (
	"context"
	"embed"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/warelay/internal/config"
	"github.com/xiaot623/warelay/internal/hub"
	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/ratelimit"
	"github.com/xiaot623/warelay/internal/service"
	"github.com/xiaot623/warelay/internal/ws"
)

//go:embed static/index.html
var staticFiles embed.FS

// Server is the relay's HTTP server.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	service *service.Service
	hub     *hub.Hub
	metrics *metrics.Metrics
	limiter *ratelimit.SendLimiter
}

// NewServer creates the HTTP server with every route registered.
func NewServer(cfg *config.Config, svc *service.Service, h *hub.Hub, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		cfg:     cfg,
		service: svc,
		hub:     h,
		metrics: m,
		limiter: ratelimit.New(cfg.SendRateLimitRPS, cfg.SendRateLimitBurst, 0),
	}

	wsServer := ws.NewServer(cfg, h, svc)

	// Register routes
	e.GET("/", s.handleIndex)
	e.POST("/send-text", s.handleSendText)
	e.POST("/request-pairing-code", s.handleRequestPairingCode)
	e.GET("/logout", s.handleLogout)
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/ws", wsServer.HandleWebSocket)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleIndex serves the landing page.
func (s *Server) handleIndex(c echo.Context) error {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, page)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"ready":       s.service.Ready(),
		"connections": s.hub.GetConnectionCount(),
	})
}
