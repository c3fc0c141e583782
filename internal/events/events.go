// Package events defines the progress messages pushed to clients while
// a reporting session runs, and the broadcaster that delivers them.
// Every event is published after the state it describes has been
// committed to the store, so a client acting on an event never races a
// stale read.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/expertsure/expertsure/internal/slidespec"
)

// Type discriminates event payloads on the wire.
type Type string

const (
	TypeConnectionEstablished Type = "connection_established"
	TypeStatusUpdate          Type = "status_update"
	TypeSlideAnalysis         Type = "slide_analysis"
	TypeSlideUpdateComplete   Type = "slide_update_complete"
	TypeSlideCompleted        Type = "slide_completed"
	TypeChatResponse          Type = "chat_response"
	TypeError                 Type = "error"
)

// Event is the envelope pushed to clients.
type Event struct {
	Type      Type            `json:"type"`
	ProjectID string          `json:"project_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatusUpdate reports a project lifecycle transition.
type StatusUpdate struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// SlideAnalysis carries one freshly planned slide, including a data
// preview so the client can show what the rows were derived from.
type SlideAnalysis struct {
	SlideNumber int                      `json:"slide_number"`
	SlideTitle  string                   `json:"slide_title"`
	Rows        json.RawMessage          `json:"rows"`
	Rationale   string                   `json:"rationale,omitempty"`
	Fields      []slidespec.Field        `json:"fields,omitempty"`
	DataPreview []map[string]interface{} `json:"data_preview,omitempty"`
}

// SlideUpdateComplete acknowledges an applied slide edit.
type SlideUpdateComplete struct {
	SlideNumber int                      `json:"slide_number"`
	Rows        json.RawMessage          `json:"rows"`
	DataPreview []map[string]interface{} `json:"data_preview,omitempty"`
}

// SlideCompleted reports one slide rendered into the deck, with the
// object key the finished artifact can be fetched under.
type SlideCompleted struct {
	SlideNumber int    `json:"slide_number"`
	SlideTitle  string `json:"slide_title"`
	Commentary  string `json:"commentary,omitempty"`
	DownloadRef string `json:"download_ref,omitempty"`
}

// ChatResponse answers a free-form question about the dataset.
type ChatResponse struct {
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	Sources          []string `json:"sources,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// ErrorEvent reports a failure to the client.
type ErrorEvent struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// New wraps a payload into an event envelope.
func New(t Type, projectID string, payload interface{}) (Event, error) {
	ev := Event{Type: t, ProjectID: projectID, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("events: marshal %s payload: %w", t, err)
		}
		ev.Payload = data
	}
	return ev, nil
}
