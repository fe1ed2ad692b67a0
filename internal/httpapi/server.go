package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"nyfed-stress/internal/config"
	"nyfed-stress/internal/service"
	"nyfed-stress/internal/storage"
)

// Server exposes the read-side dashboard API over the store.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	store  storage.ObservationStore
	alerts storage.AlertStore
	svc    *service.Service
	logger zerolog.Logger
}

// NewServer wires the store and stress service into an echo server.
func NewServer(cfg *config.Config, store storage.ObservationStore, alerts storage.AlertStore, svc *service.Service, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		store:  store,
		alerts: alerts,
		svc:    svc,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")
	api.GET("/series", s.listSeries)
	api.GET("/series/:id", s.getSeries)
	api.GET("/alerts", s.getAlerts)
	api.GET("/stress/latest", s.latestStress)
	api.GET("/plot/:file", s.plotSeries)

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.HTTP.ListenAddr,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.HTTP.ListenAddr).Msg("dashboard api listening")
		if err := s.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler returns the underlying HTTP handler. Intended for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
