package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"vodingest/internal/api"
	"vodingest/internal/config"
	"vodingest/internal/logging"
	"vodingest/internal/objectstore"
)

const (
	requestsPerSecond = 50
	requestBurst      = 100
)

type apiServer struct {
	bind   string
	token  string
	local  bool
	logger *slog.Logger
	daemon *Daemon
	jobs   *api.JobService

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.API.Token),
		local:  cfg.Storage.Backend == config.StorageBackendLocal,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		jobs:   api.NewJobService(d.store),
	}
	srv.handler = srv.routes()

	// Uploads stream arbitrarily large bodies, so only headers are time-boxed.
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() *echo.Echo {
	installErrorModel()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleEchoError

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(s.requestLogger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, HeaderUserID, HeaderUserRole},
	}))
	e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      requestsPerSecond,
		Burst:     requestBurst,
		ExpiresIn: 3 * time.Minute,
	})))

	e.GET("/health", s.handleHealth)
	e.PUT("/uploads/:token", s.handleUpload)
	if s.local {
		e.GET("/media/*", s.handleMedia)
	}

	group := e.Group("/api")
	humaConfig := huma.DefaultConfig("vodingest API", "1.0.0")
	humaConfig.Servers = []*huma.Server{{URL: "/api"}}
	humaConfig.Info.Description = "Media ingestion: upload credentials, job submission and status"
	humaConfig.CreateHooks = nil
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"BearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Shared secret between the web layer and the ingest service",
		},
	}
	humaAPI := humaecho.NewWithGroup(e, group, humaConfig)
	humaAPI.UseMiddleware(s.authenticate)
	s.register(humaAPI)
	return e
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			s.logger.Debug("http request",
				logging.String("method", v.Method),
				logging.String("uri", v.URI),
				logging.Int("status", v.Status),
				logging.Duration("latency", v.Latency),
				logging.String(logging.FieldCorrelationID, v.RequestID),
			)
			return nil
		},
	})
}

func (s *apiServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload is the sink behind the signed upload URLs handed out by
// POST /api/uploads. The token is the credential; no caller headers apply.
func (s *apiServer) handleUpload(c echo.Context) error {
	req := c.Request()
	info, err := s.daemon.gateway.AcceptUpload(req.Context(), c.Param("token"), req.Header.Get(echo.HeaderContentType), req.Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.UploadReceipt{
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
	})
}

// handleMedia serves published artifacts from the local bucket.
func (s *apiServer) handleMedia(c echo.Context) error {
	key := c.Param("*")
	if err := objectstore.ValidateKey(key); err != nil {
		return err
	}
	rc, info, err := s.daemon.gateway.Open(c.Request().Context(), key)
	if err != nil {
		return err
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = objectstore.ContentTypeFor(key)
	}
	header := c.Response().Header()
	header.Set("Cache-Control", "public, max-age=31536000, immutable")
	if info.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	return c.Stream(http.StatusOK, contentType, rc)
}
