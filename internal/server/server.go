// Package server exposes the bot's HTTP entry point: a single authenticated
// command endpoint plus the observability routes. HTTP callers have no chat
// identity, so the endpoint bypasses antispam and gates abuse on the
// pre-shared key instead.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/command"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

const adapterName = "http"

const shutdownTimeout = 5 * time.Second

// Server is the HTTP platform adapter. It implements supervisor.Adapter.
type Server struct {
	port       string
	store      *botconfig.Store
	dispatcher *command.Dispatcher
	gate       *keyGate

	echo *echo.Echo
}

// New creates the server. apiKey is the pre-shared key callers must present.
func New(port, apiKey string, store *botconfig.Store, dispatcher *command.Dispatcher) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		port:       port,
		store:      store,
		dispatcher: dispatcher,
		gate:       newKeyGate(apiKey),
		echo:       e,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Name() string { return adapterName }

// Run binds the listener, reports Ready and serves until shutdown.
func (s *Server) Run(ctx context.Context, events chan<- bus.AdapterEvent, central *bus.Subscription[bus.CentralEvent]) error {
	listener, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("failed to bind port %s: %w", s.port, err)
	}
	s.echo.Listener = listener

	serveErr := make(chan error, 1)
	go func() {
		if err := s.echo.Start(""); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	logging.WithAdapter(adapterName).Info("listening", "port", s.port)
	events <- bus.AdapterEvent{Source: adapterName, Type: bus.AdapterReady}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			logging.WithAdapter(adapterName).Warn("shutdown failed", "error", err)
		}
	}()

	centralDone := make(chan error, 1)
	go func() {
		for {
			ev, err := central.Recv(ctx)
			if err != nil {
				var lag *bus.LagError
				if errors.As(err, &lag) {
					continue
				}
				centralDone <- err
				return
			}
			if ev.Type == bus.CentralShutdown {
				centralDone <- nil
				return
			}
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		return nil
	case err := <-centralDone:
		if err == nil || errors.Is(err, bus.ErrClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
