package template

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
)

// Handler exposes REST endpoints for the template catalog.
type Handler struct {
	Service    *Service
	PerPage    int
	MaxPerPage int
}

// List handles GET /api/v1/email-templates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, h.perPage(), h.MaxPerPage)
	templates, total, err := h.Service.List(r.Context(), orgID, page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       templates,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Create handles POST /api/v1/email-templates.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	var form Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	created, err := h.Service.Create(r.Context(), orgID, form)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Get handles GET /api/v1/email-templates/{templateID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid template id", nil)
		return
	}
	t, err := h.Service.Get(r.Context(), id, orgID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": t})
}

// Update handles PUT /api/v1/email-templates/{templateID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid template id", nil)
		return
	}
	var form Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	updated, err := h.Service.Edit(r.Context(), id, orgID, form)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

func orgFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, ok := common.ActorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return uuid.Nil, false
	}
	orgID, err := uuid.Parse(actor.OrganizationID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid organization claim", nil)
		return uuid.Nil, false
	}
	return orgID, true
}

func (h *Handler) perPage() int {
	if h.PerPage > 0 {
		return h.PerPage
	}
	return 25
}
