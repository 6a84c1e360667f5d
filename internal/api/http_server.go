package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/config"
	"taskcal/internal/logging"
	"taskcal/internal/metrics"
	"taskcal/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServer exposes the task API.
type HTTPServer struct {
	cfg      config.APIConfig
	tasks    *service.TaskService
	checks   []ReadinessCheck
	sheet    string
	pipeline *Pipeline
	server   *http.Server
	log      *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, tasks *service.TaskService, exportSheet string, checks []ReadinessCheck, logger *zerolog.Logger) *HTTPServer {
	log := logging.Component(logger, "http")
	srv := &HTTPServer{
		cfg:      cfg,
		tasks:    tasks,
		checks:   checks,
		sheet:    exportSheet,
		pipeline: NewPipeline(log),
		log:      log,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/tasks", srv.pipeline.Handle("tasks.create", srv.createTask))
	api.HandleFunc("GET /api/v1/tasks", srv.pipeline.Handle("tasks.list", srv.listTasks))
	api.HandleFunc("GET /api/v1/tasks/export", srv.pipeline.Handle("tasks.export", srv.exportTasks))
	api.HandleFunc("GET /api/v1/tasks/{id}", srv.pipeline.Handle("tasks.get", srv.getTask))
	api.HandleFunc("PATCH /api/v1/tasks/{id}", srv.pipeline.Handle("tasks.update", srv.updateTask))
	api.HandleFunc("DELETE /api/v1/tasks/{id}", srv.pipeline.Handle("tasks.delete", srv.deleteTask))
	api.HandleFunc("/api/", srv.pipeline.Handle("not_found", func(*http.Request) (Outcome, error) {
		return nil, apperr.NewNotFound("Route not found")
	}))

	auth := NewJWTAuth(cfg.Auth)
	limiter := newRateLimiter(&cfg)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", srv.pipeline.Handle("healthz", srv.healthz))
	root.HandleFunc("GET /readyz", srv.pipeline.Handle("readyz", srv.readyz))
	root.Handle("/api/", auth.Wrap(limiter.Wrap(api)))

	handler := requestLogger(log, metricsMiddleware(errorBoundary(root)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return srv
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) healthz(*http.Request) (Outcome, error) {
	return Success{Message: "ok"}, nil
}

func (s *HTTPServer) readyz(r *http.Request) (Outcome, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]any, len(s.checks))
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "Service not ready", err).WithMeta("check", c.Name)
		}
		status[c.Name] = "ok"
	}
	return Success{Message: "ready", Meta: status}, nil
}

type requestInfoKey struct{}

// requestInfo is filled in as the request travels inward so the outer
// middlewares can label logs and metrics.
type requestInfo struct {
	id    string
	route string
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// RequestID returns the id assigned to the request, or "".
func RequestID(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil {
		return info.id
	}
	return ""
}

// requestLogger assigns a request id, stores a request-scoped logger on the
// context and writes one access log entry.
func requestLogger(base *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		info := &requestInfo{id: id}
		reqLog := base.With().Str("request_id", id).Logger()
		ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
		ctx = reqLog.WithContext(ctx)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		reqLog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", info.route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if info := requestInfoFrom(r.Context()); info != nil && info.route != "" {
			route = info.route
		}
		metrics.ObserveHTTP(route, strconv.Itoa(recorder.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
