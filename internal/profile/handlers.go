package profile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
)

// Handler exposes REST endpoints for managing email profiles.
type Handler struct {
	Service *Service
	// PatientPageURL builds the redirect target for full-page form posts.
	PatientPageURL func(patientID string) string
	PerPage        int
	MaxPerPage     int
}

// List handles GET /api/v1/email-profiles.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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
	page, perPage := common.ParsePagination(r, h.perPage(), h.MaxPerPage)
	entries, total, err := h.Service.List(r.Context(), orgID, page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       entries,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /api/v1/patients/{patientID}/email. The profile is created
// with defaults when the patient has none yet.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, patientID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	orgID, err := uuid.Parse(actor.OrganizationID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid organization claim", nil)
		return
	}
	p, prof, err := h.Service.ForPatient(r.Context(), patientID, orgID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"patient": map[string]any{"id": p.ID, "name": p.FullName()},
			"profile": prof,
		},
	})
}

// Edit handles POST /api/v1/patients/{patientID}/email. AJAX call sites get a
// {success, errors} JSON body; full-page call sites get a flash + redirect.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	actor, patientID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	orgID, err := uuid.Parse(actor.OrganizationID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid organization claim", nil)
		return
	}

	var form EditForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}

	if _, err := h.Service.Edit(r.Context(), patientID, orgID, form); err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.Code == "VALIDATION_ERROR" {
			if common.IsAJAX(r) {
				common.JSON(w, http.StatusOK, map[string]any{"success": false, "errors": appErr.Details})
				return
			}
			common.WriteError(w, err)
			return
		}
		common.WriteError(w, err)
		return
	}

	if common.IsAJAX(r) {
		common.JSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	common.SetFlash(w, "success", "Email settings updated successfully.")
	http.Redirect(w, r, h.patientPage(patientID.String()), http.StatusSeeOther)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (common.Actor, uuid.UUID, bool) {
	actor, ok := common.ActorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return common.Actor{}, uuid.Nil, false
	}
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid patient id", nil)
		return common.Actor{}, uuid.Nil, false
	}
	return actor, patientID, true
}

func (h *Handler) perPage() int {
	if h.PerPage > 0 {
		return h.PerPage
	}
	return 25
}

func (h *Handler) patientPage(patientID string) string {
	if h.PatientPageURL != nil {
		return h.PatientPageURL(patientID)
	}
	return "/patients/" + patientID
}
