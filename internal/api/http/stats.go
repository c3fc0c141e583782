package http

import (
	"net/http"

	"github.com/expertsure/expertsure/internal/observability"
)

// statsTopN caps the field usage listing.
const statsTopN = 20

// FieldStatsHandler handles GET /v1/stats/fields. It reports which
// dataset fields user edits filter and aggregate on.
type FieldStatsHandler struct {
	fields *observability.FieldStats
}

// NewFieldStatsHandler creates the field stats handler.
func NewFieldStatsHandler(fields *observability.FieldStats) *FieldStatsHandler {
	return &FieldStatsHandler{fields: fields}
}

func (h *FieldStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters": h.fields.TopFilters(statsTopN),
		"metrics": h.fields.TopMetrics(statsTopN),
	})
}
