package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/monitoring"
	"github.com/sells-group/provider-validator/internal/pipeline"
	"github.com/sells-group/provider-validator/internal/resilience"
	"github.com/sells-group/provider-validator/internal/store"
)

const (
	maxBatchRecords = 500
	maxBodyBytes    = 4 << 20
)

// breakerReporter exposes verifier breaker states for the health check.
type breakerReporter interface {
	Breakers() map[string]resilience.State
}

// apiServer holds the dependencies of the HTTP handlers.
type apiServer struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	breakers breakerReporter // may be nil
	stats    *monitoring.Collector
	metrics  http.Handler
	origins  []string
	timeout  time.Duration
}

// buildRouter mounts every route on a chi router.
func buildRouter(s *apiServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if s.timeout > 0 {
			r.Use(middleware.Timeout(s.timeout))
		}
		r.Post("/validate", s.handleValidate)
		r.Post("/validate/batch", s.handleValidateBatch)

		r.Get("/reviews", s.handleListReviews)
		r.Get("/reviews/{id}", s.handleGetReview)
		r.Post("/reviews/{id}/resolve", s.handleResolveReview)

		r.Get("/providers", s.handleSearchProviders)
		r.Get("/providers/{npi}", s.handleGetProvider)
		r.Get("/providers/{npi}/history", s.handleProviderHistory)

		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.breakers != nil {
		states := make(map[string]string)
		for name, st := range s.breakers.Breakers() {
			states[name] = st.String()
		}
		body["breakers"] = states
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *apiServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var rec model.SubmittedRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	if strings.TrimSpace(rec.FullName) == "" && strings.TrimSpace(rec.NPI) == "" {
		respondError(w, http.StatusBadRequest, "full_name or npi is required")
		return
	}

	v, err := s.pipeline.Validate(r.Context(), rec)
	if v == nil {
		zap.L().Error("api: validation failed", zap.String("npi", rec.NPI), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "validation failed")
		return
	}
	if err != nil {
		zap.L().Warn("api: validation not persisted", zap.String("validation_id", v.ID), zap.Error(err))
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *apiServer) handleValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []model.SubmittedRecord `json:"records"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case len(req.Records) == 0:
		respondError(w, http.StatusBadRequest, "records is required")
		return
	case len(req.Records) > maxBatchRecords:
		respondError(w, http.StatusRequestEntityTooLarge, "too many records (max "+strconv.Itoa(maxBatchRecords)+")")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"results": s.pipeline.ValidateBatch(r.Context(), req.Records),
	})
}

func (s *apiServer) handleListReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReviewFilter{
		Status:   model.ReviewStatus(strings.ToUpper(q.Get("status"))),
		Priority: model.ReviewPriority(strings.ToUpper(q.Get("priority"))),
		Limit:    queryInt(q.Get("limit")),
		Offset:   queryInt(q.Get("offset")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status "+q.Get("status"))
		return
	}

	items, err := s.store.ListReviews(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err, "list reviews")
		return
	}
	if items == nil {
		items = []model.ReviewItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"reviews": items})
}

func (s *apiServer) handleGetReview(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "get review")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *apiServer) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status   model.ReviewStatus `json:"status"`
		Reviewer string             `json:"reviewer"`
		Notes    string             `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	req.Status = model.ReviewStatus(strings.ToUpper(string(req.Status)))
	if req.Status != model.ReviewApproved && req.Status != model.ReviewRejected {
		respondError(w, http.StatusBadRequest, "status must be APPROVED or REJECTED")
		return
	}
	if strings.TrimSpace(req.Reviewer) == "" {
		respondError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.ResolveReview(r.Context(), id, req.Status, req.Reviewer, req.Notes); err != nil {
		respondStoreError(w, err, "resolve review")
		return
	}
	zap.L().Info("api: review resolved",
		zap.String("review_id", id),
		zap.String("status", string(req.Status)),
		zap.String("reviewer", req.Reviewer),
	)
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

func (s *apiServer) handleSearchProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProviderFilter{
		Name:      q.Get("name"),
		State:     q.Get("state"),
		Specialty: q.Get("specialty"),
		Limit:     queryInt(q.Get("limit")),
		Offset:    queryInt(q.Get("offset")),
	}
	if mc := q.Get("min_confidence"); mc != "" {
		f, err := strconv.ParseFloat(mc, 64)
		if err != nil || f < 0 || f > 1 {
			respondError(w, http.StatusBadRequest, "min_confidence must be a number between 0 and 1")
			return
		}
		filter.MinConfidence = f
	}

	recs, err := s.store.SearchProviders(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err, "search providers")
		return
	}
	if recs == nil {
		recs = []model.ProviderRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"providers": recs})
}

func (s *apiServer) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetProvider(r.Context(), chi.URLParam(r, "npi"))
	if err != nil {
		respondStoreError(w, err, "get provider")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleProviderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListHistory(r.Context(), chi.URLParam(r, "npi"))
	if err != nil {
		respondStoreError(w, err, "provider history")
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r.URL.Query().Get("hours"))
	if hours <= 0 {
		hours = 24
	}
	snap, err := s.stats.Collect(r.Context(), hours)
	if err != nil {
		respondStoreError(w, err, "stats")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondStoreError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: "+op+" failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, op+" failed")
}
