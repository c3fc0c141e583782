package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/events"
	"github.com/expertsure/expertsure/internal/observability"
	"github.com/expertsure/expertsure/internal/orchestrator"
	"github.com/expertsure/expertsure/internal/storage"
	"github.com/expertsure/expertsure/internal/store"
)

// RouterConfig carries the dependencies the API needs.
type RouterConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Objects      storage.ObjectStorage
	Cache        *dataset.Cache
	Bus          *events.MemoryBroadcaster
	Logger       *zap.Logger
	Metrics      *observability.Metrics

	// AnalysisTimeout bounds a background analysis run. Zero means the
	// handler default.
	AnalysisTimeout time.Duration

	// MaxUploadBytes caps multipart project uploads. Zero means the
	// handler default.
	MaxUploadBytes int64
}

// NewRouter assembles the API mux.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	chain := DefaultMiddleware()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, chain(MetricsMiddleware(cfg.Metrics, name)(h)))
	}

	projects := NewProjectsHandler(cfg.Orchestrator, cfg.Store, cfg.Logger, cfg.MaxUploadBytes)
	route("/v1/projects", "/v1/projects", projects)
	route("GET /v1/projects/{id}", "/v1/projects/{id}", NewProjectDetailHandler(cfg.Store))
	route("DELETE /v1/projects/{id}", "/v1/projects/{id}",
		NewProjectDeleteHandler(cfg.Orchestrator, cfg.Logger))
	route("POST /v1/projects/{id}/analyze", "/v1/projects/{id}/analyze",
		NewAnalyzeHandler(cfg.Orchestrator, cfg.Store, cfg.Logger, cfg.AnalysisTimeout))
	route("POST /v1/projects/{id}/slides/{number}", "/v1/projects/{id}/slides/{number}",
		NewSlideEditHandler(cfg.Orchestrator, cfg.Store))
	route("POST /v1/projects/{id}/chat", "/v1/projects/{id}/chat", NewChatHandler(cfg.Orchestrator))
	route("GET /v1/projects/{id}/artifact", "/v1/projects/{id}/artifact",
		NewArtifactHandler(cfg.Store, cfg.Objects))
	route("GET /v1/projects/{id}/preview", "/v1/projects/{id}/preview",
		NewPreviewHandler(cfg.Store, cfg.Cache))
	route("GET /v1/projects/{id}/events", "/v1/projects/{id}/events",
		NewEventsHandler(cfg.Store, cfg.Bus))
	route("GET /v1/stats/fields", "/v1/stats/fields",
		NewFieldStatsHandler(cfg.Orchestrator.FieldStats()))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
