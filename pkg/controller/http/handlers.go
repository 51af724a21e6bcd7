package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/analytics"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// maxIngestBody caps one raw batch upload
const maxIngestBody = 10 << 20

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	var providers map[string]bool
	if s.registry != nil {
		providers = s.registry.Health(r.Context())
		for _, healthy := range providers {
			if !healthy {
				status = "degraded"
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"providers": providers,
	})
}

// handleIngest accepts one raw batch from a provider push. The body is a
// JSON array of provider-shaped records; the response reports how many
// were usable.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	source := model.Source(chi.URLParam(r, "source"))
	if err := source.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "unknown source: "+string(source))
		return
	}

	user := userFromRequest(r)
	if user == "" {
		respondError(w, http.StatusBadRequest, "user is required")
		return
	}

	var raw []map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "body must be a JSON array of records")
		return
	}

	accepted, err := s.ingestor.IngestBatch(r.Context(), source, user, raw)
	if err != nil {
		logging.From(r.Context()).Error("ingestion failed",
			"source", source, "user", user, "error", err)
		respondError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"received": len(raw),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	user := model.UserID(chi.URLParam(r, "user"))
	kind := model.MetricKind(r.URL.Query().Get("metric"))
	if err := kind.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid metric: "+string(kind))
		return
	}

	trend, err := s.analytics.Trend(r.Context(), user, kind)
	if err != nil {
		logging.From(r.Context()).Error("trend query failed", "user", user, "error", err)
		respondError(w, http.StatusInternalServerError, "trend query failed")
		return
	}
	respondJSON(w, http.StatusOK, trend)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	user := model.UserID(chi.URLParam(r, "user"))
	a := model.MetricKind(r.URL.Query().Get("metric_a"))
	b := model.MetricKind(r.URL.Query().Get("metric_b"))
	if err := a.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid metric_a: "+string(a))
		return
	}
	if err := b.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid metric_b: "+string(b))
		return
	}

	lagDays := 0
	if v := r.URL.Query().Get("lag_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "lag_days must be an integer")
			return
		}
		lagDays = parsed
	}

	corr, err := s.analytics.Correlation(r.Context(), user, a, b, lagDays)
	if err != nil {
		logging.From(r.Context()).Error("correlation query failed", "user", user, "error", err)
		respondError(w, http.StatusInternalServerError, "correlation query failed")
		return
	}
	respondJSON(w, http.StatusOK, corr)
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	user := model.UserID(chi.URLParam(r, "user"))
	kind := model.MetricKind(r.URL.Query().Get("metric"))
	if err := kind.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid metric: "+string(kind))
		return
	}

	progress, err := s.analytics.GoalProgress(r.Context(), user, kind)
	if err != nil {
		if errors.Is(err, analytics.ErrNoGoal) {
			respondError(w, http.StatusNotFound, "no active goal for metric")
			return
		}
		logging.From(r.Context()).Error("goal query failed", "user", user, "error", err)
		respondError(w, http.StatusInternalServerError, "goal query failed")
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	user := model.UserID(chi.URLParam(r, "user"))

	insight, err := s.analytics.Insight(r.Context(), user)
	if err != nil {
		logging.From(r.Context()).Error("insight query failed", "user", user, "error", err)
		respondError(w, http.StatusInternalServerError, "insight query failed")
		return
	}
	respondJSON(w, http.StatusOK, insight)
}

// userFromRequest reads the acting user from the header, falling back to
// the query string for providers that cannot set headers on callbacks
func userFromRequest(r *http.Request) model.UserID {
	if v := r.Header.Get("X-Stride-User"); v != "" {
		return model.UserID(v)
	}
	return model.UserID(r.URL.Query().Get("user"))
}
