package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
)

// Lister reads recorded send attempts.
type Lister interface {
	ListByPatient(ctx context.Context, patientID, orgID uuid.UUID, limit int) ([]Entry, error)
}

// Handler exposes the audit trail for inspection.
type Handler struct {
	Audit    Lister
	MaxLimit int
}

// ListByPatient handles GET /api/v1/patients/{patientID}/email/audit.
func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := common.ActorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	orgID, err := uuid.Parse(actor.OrganizationID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid organization claim", nil)
		return
	}
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid patient id", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil {
			limit = parsed
		}
	}
	if max := h.maxLimit(); limit <= 0 || limit > max {
		limit = max
	}

	entries, err := h.Audit.ListByPatient(r.Context(), patientID, orgID, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) maxLimit() int {
	if h.MaxLimit <= 0 {
		return 100
	}
	return h.MaxLimit
}
