package http

import (
	"net/http"

	"github.com/expertsure/expertsure/internal/slidespec"
	"github.com/expertsure/expertsure/internal/store"
)

// SlideView is the API representation of one slide.
type SlideView struct {
	SlideNumber int                           `json:"slide_number"`
	Title       string                        `json:"title"`
	Status      string                        `json:"status"`
	Rows        []slidespec.RowSpecification  `json:"rows"`
	Rationale   string                        `json:"rationale,omitempty"`
	Commentary  string                        `json:"commentary,omitempty"`
}

// ProjectDetail is the full project view returned by GET /v1/projects/{id}.
type ProjectDetail struct {
	ProjectSummary
	Slides []SlideView `json:"slides"`
}

// ProjectDetailHandler handles GET /v1/projects/{id}.
type ProjectDetailHandler struct {
	store store.Store
}

// NewProjectDetailHandler creates the project detail handler.
func NewProjectDetailHandler(st store.Store) *ProjectDetailHandler {
	return &ProjectDetailHandler{store: st}
}

// ServeHTTP serves the project detail.
func (h *ProjectDetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	slides, err := h.store.GetSlides(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	detail := ProjectDetail{
		ProjectSummary: summarize(project),
		Slides:         make([]SlideView, 0, len(slides)),
	}
	for _, sl := range slides {
		detail.Slides = append(detail.Slides, SlideView{
			SlideNumber: sl.SlideNumber,
			Title:       sl.Title,
			Status:      string(sl.Status),
			Rows:        sl.EffectiveRows(),
			Rationale:   sl.Rationale,
			Commentary:  sl.Commentary,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}
