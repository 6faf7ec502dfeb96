package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	appanalyses "github.com/bryanwahyu/geoanalysis/internal/application/analyses"
	appdatasets "github.com/bryanwahyu/geoanalysis/internal/application/datasets"
	appinsight "github.com/bryanwahyu/geoanalysis/internal/application/insight"
	domain "github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/middleware"
)

const maxUploadBytes = 32 << 20

var (
	errBadRequest      = errors.New("bad request")
	errInsightDisabled = errors.New("insight is not configured")
)

// Deps is everything the HTTP layer needs. Insight, Observer, Metrics,
// Limiter and Health are optional.
type Deps struct {
	Datasets *appdatasets.Service
	Analyses *appanalyses.Service
	Tasks    *appanalyses.Tasks
	Insight  *appinsight.Service

	APIKeys     map[string]string
	CORSOrigins []string
	Limiter     *middleware.RateLimiter
	Observer    middleware.RequestObserver
	Metrics     http.Handler
	Health      map[string]middleware.HealthChecker
	Log         *zap.Logger
}

type Router struct {
	datasets *appdatasets.Service
	analyses *appanalyses.Service
	tasks    *appanalyses.Tasks
	insight  *appinsight.Service
	log      *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{datasets: d.Datasets, analyses: d.Analyses, tasks: d.Tasks, insight: d.Insight, log: log}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.RequestLogger(log))
	if d.Observer != nil {
		mux.Use(middleware.MetricsMiddleware(d.Observer))
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.HealthHandler(d.Health))
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(d.APIKeys))
		if d.Limiter != nil {
			rt.Use(middleware.RateLimitMiddleware(d.Limiter))
		}

		rt.Get("/datasets", r.wrap(r.handleListDatasets))
		rt.Post("/datasets", r.wrap(r.handleCreateDataset))
		rt.Get("/datasets/{id}", r.wrap(r.handleGetDataset))
		rt.Delete("/datasets/{id}", r.wrap(r.handleDeleteDataset))
		rt.Get("/datasets/{id}/layers", r.wrap(r.handleDatasetLayers))
		rt.Get("/datasets/{id}/analyses", r.wrap(r.handleDatasetAnalyses))

		rt.Get("/layers", r.wrap(r.handleListLayers))
		rt.Patch("/layers/{id}", r.wrap(r.handleUpdateLayer))

		rt.Post("/analyses", r.wrap(r.handleStartAnalysis))
		rt.Get("/analyses/recent", r.wrap(r.handleRecentAnalyses))
		rt.Get("/analyses/status/{taskID}", r.wrap(r.handleTaskStatus))
		rt.Get("/analyses/{id}", r.wrap(r.handleGetAnalysis))
		rt.Get("/analyses/{id}/layers", r.wrap(r.handleAnalysisLayers))
		rt.Get("/analyses/{id}/errors", r.wrap(r.handleAnalysisErrors))
		rt.Post("/analyses/{id}/insight", r.wrap(r.handleNarrate))
		rt.Get("/analyses/{id}/insight", r.wrap(r.handleLatestInsight))
		rt.Get("/insights", r.wrap(r.handleListInsights))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		code := statusFor(err)
		msg := err.Error()
		if code == http.StatusInternalServerError {
			r.log.Error("request failed",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Error(err))
			msg = "internal error"
		}
		writeJSON(w, code, map[string]string{"error": msg})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows),
		errors.Is(err, domain.ErrAnalysisNotFound),
		errors.Is(err, domain.ErrDatasetNotFound),
		errors.Is(err, domain.ErrLayerNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, insight.ErrInsightNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrUnsupportedAnalysisType),
		errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, insight.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, insight.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, errInsightDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func decode(req *http.Request, v any) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", errBadRequest, err)
	}
	return nil
}

func pathID(req *http.Request, name string) (string, error) {
	id := chi.URLParam(req, name)
	if err := middleware.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

//
// ==== DATASETS ====
//

// GET /v1/datasets?limit=20
func (r *Router) handleListDatasets(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"), 20, 100)
	if err != nil {
		return err
	}
	list, err := r.datasets.ListForUser(req.Context(), middleware.UserFrom(req.Context()), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(list))
}

// POST /v1/datasets
// Body: {"name": "...", "description": "...", "source_format": "geojson", "metadata": {}, "data": <FeatureCollection>}
func (r *Router) handleCreateDataset(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	var body struct {
		Name         string                     `json:"name"`
		Description  string                     `json:"description"`
		SourceFormat string                     `json:"source_format"`
		Metadata     map[string]any             `json:"metadata"`
		Data         *geojson.FeatureCollection `json:"data"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	d, err := r.datasets.Create(req.Context(), appdatasets.CreateCommand{
		Name:         middleware.SanitizeString(body.Name),
		Description:  middleware.SanitizeString(body.Description),
		OwnerID:      middleware.UserFrom(req.Context()),
		SourceFormat: body.SourceFormat,
		Metadata:     body.Metadata,
		Features:     body.Data,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, d)
}

// GET /v1/datasets/{id}
func (r *Router) handleGetDataset(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	d, err := r.datasets.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

// DELETE /v1/datasets/{id}
func (r *Router) handleDeleteDataset(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	if err := r.datasets.Delete(req.Context(), id, middleware.UserFrom(req.Context())); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/datasets/{id}/layers?bbox=minx,miny,maxx,maxy&limit=
func (r *Router) handleDatasetLayers(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	bbox, err := middleware.ParseBBox(req.URL.Query().Get("bbox"))
	if err != nil {
		return err
	}
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"), 0, 10000)
	if err != nil {
		return err
	}
	layers, err := r.datasets.LayerData(req.Context(), id, spatial.FeatureQuery{BBox: bbox, Limit: limit})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, layers)
}

// GET /v1/datasets/{id}/analyses
func (r *Router) handleDatasetAnalyses(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	if _, err := r.datasets.Get(req.Context(), id); err != nil {
		return err
	}
	list, err := r.analyses.ListForDataset(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(list))
}

//
// ==== LAYERS ====
//

// GET /v1/layers (descriptor saja, tanpa features)
func (r *Router) handleListLayers(w http.ResponseWriter, req *http.Request) error {
	layers, err := r.datasets.ListLayers(req.Context(), middleware.UserFrom(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, layers)
}

// PATCH /v1/layers/{id}
// Body: {"style": {...}, "visible": false}
func (r *Router) handleUpdateLayer(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body struct {
		Style   *spatial.Style `json:"style"`
		Visible *bool          `json:"visible"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	l, err := r.datasets.UpdateLayer(req.Context(), id, appdatasets.LayerUpdate{Style: body.Style, Visible: body.Visible})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, l)
}

//
// ==== ANALYSES ====
//

// POST /v1/analyses
// Body: {"name": "...", "analysis_type": "buffer", "dataset_id": "...", "parameters": {...}}
func (r *Router) handleStartAnalysis(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Name         string         `json:"name"`
		Description  string         `json:"description"`
		AnalysisType string         `json:"analysis_type"`
		DatasetID    string         `json:"dataset_id"`
		Parameters   map[string]any `json:"parameters"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateID(body.DatasetID); err != nil {
		return err
	}

	a, err := r.tasks.Start(req.Context(), appanalyses.CreateCommand{
		Name:        middleware.SanitizeString(body.Name),
		Description: middleware.SanitizeString(body.Description),
		Type:        strings.TrimSpace(body.AnalysisType),
		DatasetID:   body.DatasetID,
		OwnerID:     middleware.UserFrom(req.Context()),
		Parameters:  body.Parameters,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":     a.TaskID,
		"analysis_id": a.ID,
		"status":      a.Status,
	})
}

// GET /v1/analyses/recent?limit=10
func (r *Router) handleRecentAnalyses(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"), 10, 100)
	if err != nil {
		return err
	}
	list, err := r.analyses.ListForUser(req.Context(), middleware.UserFrom(req.Context()), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(list))
}

// GET /v1/analyses/status/{taskID}
func (r *Router) handleTaskStatus(w http.ResponseWriter, req *http.Request) error {
	taskID, err := pathID(req, "taskID")
	if err != nil {
		return err
	}
	st, err := r.tasks.Poll(req.Context(), taskID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, st)
}

// GET /v1/analyses/{id}
func (r *Router) handleGetAnalysis(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	a, err := r.analyses.Get(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/analyses/{id}/layers
func (r *Router) handleAnalysisLayers(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	layers, err := r.analyses.OutputLayers(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, layers)
}

// GET /v1/analyses/{id}/errors?limit=20
func (r *Router) handleAnalysisErrors(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"), 20, 100)
	if err != nil {
		return err
	}
	entries, err := r.analyses.ErrorLog(req.Context(), domain.ID(id), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(entries))
}

//
// ==== INSIGHT ====
//

// POST /v1/analyses/{id}/insight
func (r *Router) handleNarrate(w http.ResponseWriter, req *http.Request) error {
	if r.insight == nil {
		return errInsightDisabled
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	in, err := r.insight.Narrate(req.Context(), id, middleware.UserFrom(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, in)
}

// GET /v1/analyses/{id}/insight
func (r *Router) handleLatestInsight(w http.ResponseWriter, req *http.Request) error {
	if r.insight == nil {
		return errInsightDisabled
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	in, err := r.insight.Latest(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, in)
}

// GET /v1/insights?page=&page_size=
func (r *Router) handleListInsights(w http.ResponseWriter, req *http.Request) error {
	if r.insight == nil {
		return errInsightDisabled
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.insight.List(req.Context(), middleware.UserFrom(req.Context()), page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, nonNil(list))
}

// nonNil keeps empty lists encoded as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
