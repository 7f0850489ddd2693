// Package app wires the HTTP surface: routing, middleware, and the
// handlers that map request bodies and error kinds onto the pipeline.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/report"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/session"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/tokenstore"
)

// GitLabClient is the slice of the upstream client the handlers use
// directly. Report generation goes through ReportGenerator instead.
type GitLabClient interface {
	CurrentUser(ctx context.Context, token string) (gitlabapi.User, error)
	ListProjects(ctx context.Context, token, search string) ([]gitlabapi.Project, error)
	SearchUsers(ctx context.Context, token, search string) ([]gitlabapi.User, error)
	SearchMergeRequests(ctx context.Context, token string, authorUsernames []string, state string, perPage int) ([]gitlabapi.MergeRequest, error)
}

// ReportGenerator runs the report pipeline.
type ReportGenerator interface {
	Generate(ctx context.Context, token string, req report.Request) (*report.Report, error)
}

// Server holds the HTTP surface's dependencies.
type Server struct {
	logger    *zap.Logger
	gitlab    GitLabClient
	generator ReportGenerator
	tokens    tokenstore.Store
	sessions  *session.Manager
	metrics   *Metrics
	tokenTTL  time.Duration
	health    http.Handler
	now       func() time.Time
	registry  *prometheus.Registry
}

// ServerConfig carries the server's construction parameters.
type ServerConfig struct {
	Logger        *zap.Logger
	GitLab        GitLabClient
	Generator     ReportGenerator
	Tokens        tokenstore.Store
	Sessions      *session.Manager
	Registry      *prometheus.Registry
	TokenTTL      time.Duration
	HealthHandler http.Handler
	// Now is injected for testability.
	Now func() time.Time
}

// NewServer wires the HTTP surface.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = tokenstore.DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		logger:    logger,
		gitlab:    cfg.GitLab,
		generator: cfg.Generator,
		tokens:    cfg.Tokens,
		sessions:  cfg.Sessions,
		metrics:   NewMetrics(registry),
		tokenTTL:  ttl,
		health:    cfg.HealthHandler,
		now:       now,
		registry:  registry,
	}
}

// Router builds the chi router with the full middleware chain.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(requestLogger(s.logger))
	router.Use(recoverer(s.logger))
	router.Use(s.metrics.Middleware)

	router.Method(http.MethodPost, "/report", traceHandler("report", http.HandlerFunc(s.handleReport)))
	router.Method(http.MethodGet, "/projects", traceHandler("projects", http.HandlerFunc(s.handleProjects)))
	router.Method(http.MethodGet, "/users", traceHandler("users", http.HandlerFunc(s.handleUsers)))
	router.Method(http.MethodPost, "/search", traceHandler("search", http.HandlerFunc(s.handleSearch)))
	router.Method(http.MethodPost, "/token", traceHandler("token", http.HandlerFunc(s.handleStoreToken)))
	router.Method(http.MethodDelete, "/token", traceHandler("token", http.HandlerFunc(s.handleDeleteToken)))

	router.Handle("/metrics", traceHandler("metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	if s.health != nil {
		router.Handle("/livez", traceHandler("livez", s.health))
		router.Handle("/readyz", traceHandler("readyz", s.health))
		router.Handle("/healthz", traceHandler("healthz", s.health))
	}

	return router
}
