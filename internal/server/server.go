// Package server exposes the answer engine over HTTP: a JSON ask endpoint,
// an SSE streaming variant, health, and metrics.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
	"github.com/clonar-ai/answer-engine/internal/capability"
	"github.com/clonar-ai/answer-engine/internal/memory"
	"github.com/clonar-ai/answer-engine/internal/stream"
)

type Server struct {
	cfg          *config.Config
	orchestrator *answer.Orchestrator
	streams      *stream.Cache
	logger       *log.Logger
}

// Run builds the engine from configuration and serves until the listener
// fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	origins := cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		path := cfg.Telemetry.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(promhttp.Handler()))
	}

	llm, err := answer.NewLLMProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	store, err := newMemoryStore(cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	streams, err := stream.NewCache(cfg.Stream)
	if err != nil {
		return fmt.Errorf("stream cache: %w", err)
	}
	go streams.RunSweeper(context.Background())

	providers := capability.NewProviders(cfg.Capabilities, cfg.Retry)
	srv := &Server{
		cfg:          cfg,
		orchestrator: answer.NewOrchestrator(cfg, llm, providers, store),
		streams:      streams,
		logger:       baseLogger,
	}
	srv.register(e)

	baseLogger.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}

func (s *Server) register(e *echo.Echo) {
	e.POST("/api/ask", s.handleAsk)
	e.GET("/api/ask/stream", s.handleAskStream)
}

func newMemoryStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.Session.Store {
	case "", "inmemory":
		return memory.NewInMemoryStore(cfg.Session.TTL), nil
	case "redis":
		return memory.NewRedisStore(context.Background(), cfg.Session.Redis)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}
