package hooks

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
)

// variantSlots maps the partial endpoint variants to their slot names.
var variantSlots = map[string]string{
	"detail":  SlotPatientDetail,
	"edit":    SlotPatientEdit,
	"sidebar": SlotPatientSidebar,
}

// Handler serves the rendered slot fragments over HTTP so the host pages can
// include them without linking the plugin in.
type Handler struct {
	Registry *Registry
}

// Partial handles GET /partials/patients/{patientID}/email/{variant}.
func (h *Handler) Partial(w http.ResponseWriter, r *http.Request) {
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
	slot, ok := variantSlots[chi.URLParam(r, "variant")]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown partial", nil)
		return
	}

	pc := PageContext{OrganizationID: orgID}
	if id, err := uuid.Parse(chi.URLParam(r, "patientID")); err == nil {
		pc.PatientID = &id
	}
	common.HTML(w, http.StatusOK, h.Registry.Render(r.Context(), slot, pc))
}
