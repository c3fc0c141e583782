package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/expertsure/expertsure/internal/orchestrator"
	"github.com/expertsure/expertsure/internal/slidespec"
	"github.com/expertsure/expertsure/internal/storage"
	"github.com/expertsure/expertsure/internal/store"
)

// defaultAnalysisTimeout bounds a background analysis run when the
// router does not supply one.
const defaultAnalysisTimeout = 5 * time.Minute

// AnalyzeHandler handles POST /v1/projects/{id}/analyze. Analysis runs
// in the background; progress arrives over the event channel.
type AnalyzeHandler struct {
	orch    *orchestrator.Orchestrator
	store   store.Store
	logger  *zap.Logger
	timeout time.Duration
}

// NewAnalyzeHandler creates the analyze handler.
func NewAnalyzeHandler(orch *orchestrator.Orchestrator, st store.Store, logger *zap.Logger, timeout time.Duration) *AnalyzeHandler {
	if timeout <= 0 {
		timeout = defaultAnalysisTimeout
	}
	return &AnalyzeHandler{orch: orch, store: st, logger: logger, timeout: timeout}
}

// ServeHTTP kicks off the initial analysis.
func (h *AnalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	if project.Status != store.ProjectInitialized {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("project is %s, analysis runs once from initialized", project.Status), requestID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.orch.RunInitialAnalysis(ctx, projectID); err != nil {
			h.logger.Error("analysis failed",
				zap.String("project_id", projectID),
				zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"project_id": projectID,
		"status":     string(store.ProjectAnalyzing),
	})
}

// SlideEditRequest carries a user's replacement rows for one slide.
type SlideEditRequest struct {
	Rows []slidespec.RowSpecification `json:"rows"`
}

// SlideEditHandler handles POST /v1/projects/{id}/slides/{number}.
type SlideEditHandler struct {
	orch  *orchestrator.Orchestrator
	store store.Store
}

// NewSlideEditHandler creates the slide edit handler.
func NewSlideEditHandler(orch *orchestrator.Orchestrator, st store.Store) *SlideEditHandler {
	return &SlideEditHandler{orch: orch, store: st}
}

// ServeHTTP applies a slide edit synchronously and returns the updated
// slide.
func (h *SlideEditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	slideNumber, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || slideNumber < 1 {
		writeError(w, http.StatusBadRequest, "slide number must be a positive integer", requestID)
		return
	}

	var req SlideEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows must not be empty", requestID)
		return
	}

	if err := h.orch.ApplySlideEdit(r.Context(), projectID, slideNumber, req.Rows); err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	slide, err := h.store.GetSlide(r.Context(), projectID, slideNumber)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, SlideView{
		SlideNumber: slide.SlideNumber,
		Title:       slide.Title,
		Status:      string(slide.Status),
		Rows:        slide.EffectiveRows(),
		Rationale:   slide.Rationale,
		Commentary:  slide.Commentary,
	})
}

// ChatRequest is a free-form question about the dataset.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatHandler handles POST /v1/projects/{id}/chat.
type ChatHandler struct {
	orch *orchestrator.Orchestrator
}

// NewChatHandler creates the chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator) *ChatHandler {
	return &ChatHandler{orch: orch}
}

// ServeHTTP answers a dataset question.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty", requestID)
		return
	}

	reply, err := h.orch.Chat(r.Context(), projectID, req.Question)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"question":          req.Question,
		"answer":            reply.Answer,
		"sources":           reply.Sources,
		"suggested_actions": reply.SuggestedActions,
	})
}

// ArtifactHandler handles GET /v1/projects/{id}/artifact, streaming
// the rendered deck.
type ArtifactHandler struct {
	store   store.Store
	objects storage.ObjectStorage
}

// NewArtifactHandler creates the artifact download handler.
func NewArtifactHandler(st store.Store, objects storage.ObjectStorage) *ArtifactHandler {
	return &ArtifactHandler{store: st, objects: objects}
}

// ServeHTTP streams the deck artifact.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	if project.ArtifactKey == "" {
		writeError(w, http.StatusNotFound, "no deck has been generated yet", requestID)
		return
	}

	rc, err := h.objects.Get(r.Context(), project.ArtifactKey)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", project.Name+"-deck.json"))
	io.Copy(w, rc)
}
