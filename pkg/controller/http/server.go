// Package http is the service's single network surface: batch ingestion
// and analytics reads over REST, conversational turns over a WebSocket.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/analytics"
	"github.com/stride-health/stride/pkg/service/ratelimit"
	"github.com/stride-health/stride/pkg/usecase/agent"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// Coach runs one conversational turn
type Coach interface {
	HandleTurn(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// Ingestor accepts one raw batch from a provider
type Ingestor interface {
	IngestBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any) (int, error)
}

// Server wires the HTTP surface over the use cases. The rate limiter and
// the registry are optional: without a limiter every turn is allowed,
// without a registry /health only reports the process itself.
type Server struct {
	coach     Coach
	ingestor  Ingestor
	analytics *analytics.Service
	repo      interfaces.Repository
	limiter   *ratelimit.Limiter
	registry  *capability.Registry
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

type Option func(*Server)

// WithRateLimiter enables the per-user daily turn cap on the WebSocket
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithRegistry includes provider health in /health responses
func WithRegistry(r *capability.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithLogger overrides the request logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the HTTP server over the given collaborators
func New(coach Coach, ingestor Ingestor, analyticsSvc *analytics.Service, repo interfaces.Repository, opts ...Option) *Server {
	s := &Server{
		coach:     coach,
		ingestor:  ingestor,
		analytics: analyticsSvc,
		repo:      repo,
		logger:    logging.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routing tree
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Stride-User"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest/{source}", s.handleIngest)

		r.Route("/users/{user}/analytics", func(r chi.Router) {
			r.Get("/trend", s.handleTrend)
			r.Get("/correlation", s.handleCorrelation)
			r.Get("/goal", s.handleGoalProgress)
			r.Get("/insight", s.handleInsight)
		})
	})

	return r
}

// requestLogger attaches the server logger to the request context and
// emits one line per completed request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With("request_id", chimw.GetReqID(r.Context()))
		ctx := logging.With(r.Context(), logger)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
