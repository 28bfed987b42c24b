// Package server exposes the agent over HTTP: an ingest endpoint for apps
// that cannot link a host adapter, plus status and metrics for operators.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tidwall/gjson"

	"github.com/Arun-Labana/logai-sdk/internal/daemon"
	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/batch"
	"github.com/Arun-Labana/logai-sdk/internal/logging/jsonline"
)

// Pipeline is the part of batch.Processor the server needs.
type Pipeline interface {
	logging.Appender
	State() batch.State
	Len() int
	Cap() int
	Stats() batch.Stats
}

type Tailer interface {
	Metrics() daemon.TailSnapshot
}

type Config struct {
	Addr      string `koanf:"addr"`
	BodyLimit string `koanf:"body_limit"`
}

type Server struct {
	Echo     *echo.Echo
	config   Config
	pipeline Pipeline
	monitor  *batch.Monitor
	tailer   Tailer
	logger   log.Logger
}

type apiResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

// New builds the Echo app and registers routes. monitor and tailer may be
// nil.
func New(cfg Config, pipeline Pipeline, monitor *batch.Monitor, tailer Tailer, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}
	logger = log.With(logger, "component", "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level.Debug(logger).Log("method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{
		Echo:     e,
		config:   cfg,
		pipeline: pipeline,
		monitor:  monitor,
		tailer:   tailer,
		logger:   logger,
	}

	e.POST("/ingest", s.ingest, middleware.BodyLimit(cfg.BodyLimit))
	e.GET("/status", s.status)
	e.GET("/healthz", s.health)
	e.GET("/metrics", s.metrics)

	return s
}

// Start blocks until the server fails or is shut down. Cancelling ctx
// shuts it down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()
	level.Info(s.logger).Log("msg", "http server listening", "addr", s.config.Addr)
	if err := s.Echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// ingest accepts one JSON log object or an array of them.
func (s *Server) ingest(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read body", err)
	}
	if !gjson.ValidBytes(body) {
		return fail(c, http.StatusBadRequest, "body is not valid JSON", errors.New("invalid json"))
	}

	doc := gjson.ParseBytes(body)
	var items []gjson.Result
	switch {
	case doc.IsArray():
		items = doc.Array()
	case doc.IsObject():
		items = []gjson.Result{doc}
	default:
		return fail(c, http.StatusBadRequest, "expected a JSON object or array", errors.New("unexpected json type"))
	}

	accepted, rejected := 0, 0
	for _, item := range items {
		ev, parsed := jsonline.Parse([]byte(item.Raw))
		if !parsed {
			rejected++
			continue
		}
		s.pipeline.Append(ev)
		accepted++
	}

	return c.JSON(http.StatusAccepted, apiResponse{
		Data:   map[string]any{"received": accepted, "rejected": rejected},
		Status: http.StatusAccepted,
		Path:   c.Request().URL.Path,
	})
}

func (s *Server) status(c echo.Context) error {
	data := map[string]any{
		"state":          s.pipeline.State().String(),
		"queue_length":   s.pipeline.Len(),
		"queue_capacity": s.pipeline.Cap(),
		"stats":          s.pipeline.Stats(),
	}
	if s.tailer != nil {
		data["tailer"] = s.tailer.Metrics()
	}
	return ok(c, data)
}

func (s *Server) health(c echo.Context) error {
	if s.pipeline.State() != batch.StateRunning {
		return fail(c, http.StatusServiceUnavailable, "log shipping is not running", errors.New(s.pipeline.State().String()))
	}
	return ok(c, map[string]any{"state": s.pipeline.State().String()})
}

func (s *Server) metrics(c echo.Context) error {
	sink := s.monitor.Sink()
	if sink == nil {
		return fail(c, http.StatusNotFound, "metrics disabled", errors.New("no monitor"))
	}
	summary, err := sink.DisplayMetrics(c.Response(), c.Request())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not collect metrics", err)
	}
	return ok(c, summary)
}

func readBody(c echo.Context) ([]byte, error) {
	defer c.Request().Body.Close()
	return io.ReadAll(c.Request().Body)
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, apiResponse{
		Data:   data,
		Status: http.StatusOK,
		Path:   c.Request().URL.Path,
	})
}

func fail(c echo.Context, status int, message string, err error) error {
	return c.JSON(status, apiError{
		Message: message,
		Error:   err.Error(),
		Path:    c.Request().URL.Path,
		Status:  status,
	})
}
