package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.Recover())

	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/command", s.handleCommand, s.gate.middleware)
}

func (s *Server) handleLiveness(c echo.Context) error {
	if err := c.JSON(http.StatusOK, map[string]any{"status": "ok"}); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}
