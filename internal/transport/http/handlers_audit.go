package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"trustdoc/internal/audit"
	"trustdoc/internal/platform/middleware"
	id "trustdoc/pkg/domain"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// handleQueryAudit returns the caller's institution trail, newest-last, with
// stable (timestamp, seq) ordering for paging.
func (h *Handler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok || actor.InstitutionID.IsNil() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		InstitutionID: actor.InstitutionID,
		DocumentID:    id.DocumentID(q.Get("document_id")),
		Action:        audit.Action(q.Get("action")),
		Limit:         defaultAuditLimit,
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "error_description": "from must be RFC 3339"})
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "error_description": "to must be RFC 3339"})
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxAuditLimit {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, err := h.trail.Query(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": toAuditResponse(entries),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}
