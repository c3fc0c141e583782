package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/expertsure/expertsure/internal/orchestrator"
	"github.com/expertsure/expertsure/internal/store"
)

// defaultMaxUploadBytes caps multipart uploads when the router does
// not configure a limit.
const defaultMaxUploadBytes = 100 << 20

var (
	datasetExtensions  = map[string]bool{".csv": true, ".json": true}
	templateExtensions = map[string]bool{".pptx": true, ".pptm": true}
)

// ProjectSummary is the list/detail representation of a project.
type ProjectSummary struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Progress    int    `json:"progress"`
	HasArtifact bool   `json:"has_artifact"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func summarize(p *store.ProjectRecord) ProjectSummary {
	return ProjectSummary{
		ProjectID:   p.ProjectID,
		Name:        p.Name,
		Status:      string(p.Status),
		Mode:        string(p.Mode),
		Progress:    p.Progress,
		HasArtifact: p.ArtifactKey != "",
		Error:       p.Error,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// ProjectsHandler handles POST /v1/projects (multipart upload) and
// GET /v1/projects (list).
type ProjectsHandler struct {
	orch           *orchestrator.Orchestrator
	store          store.Store
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewProjectsHandler creates the projects collection handler.
func NewProjectsHandler(orch *orchestrator.Orchestrator, st store.Store, logger *zap.Logger, maxUploadBytes int64) *ProjectsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ProjectsHandler{orch: orch, store: st, logger: logger, maxUploadBytes: maxUploadBytes}
}

// ServeHTTP dispatches on method.
func (h *ProjectsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
	}
}

func (h *ProjectsHandler) create(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err), requestID)
		return
	}

	datasetFile, datasetHeader, err := r.FormFile("dataset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "dataset file is required", requestID)
		return
	}
	defer datasetFile.Close()

	if ext := strings.ToLower(filepath.Ext(datasetHeader.Filename)); !datasetExtensions[ext] {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported dataset extension %q, expected .csv or .json", ext), requestID)
		return
	}

	schemaFile, schemaHeader, err := r.FormFile("schema")
	if err != nil {
		writeError(w, http.StatusBadRequest, "schema file is required", requestID)
		return
	}
	defer schemaFile.Close()

	if ext := strings.ToLower(filepath.Ext(schemaHeader.Filename)); ext != ".json" {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported schema extension %q, expected .json", ext), requestID)
		return
	}

	in := orchestrator.CreateProjectInput{
		Name:        r.FormValue("name"),
		Mode:        store.Mode(r.FormValue("mode")),
		DatasetName: filepath.Base(datasetHeader.Filename),
		Dataset:     datasetFile,
		SchemaName:  filepath.Base(schemaHeader.Filename),
		Schema:      schemaFile,
	}
	if in.Name == "" {
		in.Name = strings.TrimSuffix(in.DatasetName, filepath.Ext(in.DatasetName))
	}
	if in.Mode != "" && in.Mode != store.ModeInteractive && in.Mode != store.ModeAuto {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unknown mode %q", in.Mode), requestID)
		return
	}

	if templateFile, templateHeader, err := r.FormFile("template"); err == nil {
		defer templateFile.Close()
		if ext := strings.ToLower(filepath.Ext(templateHeader.Filename)); !templateExtensions[ext] {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("unsupported template extension %q, expected .pptx or .pptm", ext), requestID)
			return
		}
		in.TemplateName = filepath.Base(templateHeader.Filename)
		in.Template = templateFile
	}

	project, err := h.orch.CreateProject(r.Context(), in)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	h.logger.Info("project uploaded",
		zap.String("project_id", project.ProjectID),
		zap.String("request_id", requestID))
	writeJSON(w, http.StatusCreated, summarize(project))
}

// ProjectDeleteHandler handles DELETE /v1/projects/{id}, removing the
// project row and every object stored under it.
type ProjectDeleteHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewProjectDeleteHandler creates the project delete handler.
func NewProjectDeleteHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *ProjectDeleteHandler {
	return &ProjectDeleteHandler{orch: orch, logger: logger}
}

// ServeHTTP removes the project.
func (h *ProjectDeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	if err := h.orch.DeleteProject(r.Context(), projectID); err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	h.logger.Info("project deleted",
		zap.String("project_id", projectID),
		zap.String("request_id", requestID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectsHandler) list(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, err, GetRequestID(r.Context()))
		return
	}

	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, summarize(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": out})
}
