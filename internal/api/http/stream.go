package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/events"
	"github.com/expertsure/expertsure/internal/store"
)

// PreviewHandler handles GET /v1/projects/{id}/preview, returning the
// leading rows of the uploaded dataset.
type PreviewHandler struct {
	store store.Store
	cache *dataset.Cache
}

// previewRows is how many rows the preview shows.
const previewRows = 10

// NewPreviewHandler creates the dataset preview handler.
func NewPreviewHandler(st store.Store, cache *dataset.Cache) *PreviewHandler {
	return &PreviewHandler{store: st, cache: cache}
}

// ServeHTTP serves the dataset preview.
func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	if _, err := h.store.GetProject(r.Context(), projectID); err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	ds, err := h.cache.Open(projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "dataset is not available on this node", requestID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns": ds.Columns(),
		"rows":    ds.Preview(previewRows),
		"total":   ds.NumRows(),
	})
}

// EventsHandler handles GET /v1/projects/{id}/events, streaming the
// project's events as server-sent events for the lifetime of the
// connection.
type EventsHandler struct {
	store store.Store
	bus   *events.MemoryBroadcaster
}

// NewEventsHandler creates the event stream handler.
func NewEventsHandler(st store.Store, bus *events.MemoryBroadcaster) *EventsHandler {
	return &EventsHandler{store: st, bus: bus}
}

// ServeHTTP streams events. The first message is always
// connection_established so clients can confirm the subscription.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	projectID := r.PathValue("id")

	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", requestID)
		return
	}

	ch, cancel := h.bus.Subscribe(projectID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	hello, err := events.New(events.TypeConnectionEstablished, projectID, events.StatusUpdate{
		Status:   string(project.Status),
		Progress: project.Progress,
	})
	if err == nil {
		writeSSE(w, hello)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
