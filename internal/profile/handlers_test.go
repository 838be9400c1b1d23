package profile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/patient"
	"github.com/careloop/patient-email-api/internal/profile"
)

type fakePatients struct {
	patient patient.Patient
	err     error
}

func (f *fakePatients) GetForOrg(_ context.Context, id, orgID uuid.UUID) (patient.Patient, error) {
	if f.err != nil {
		return patient.Patient{}, f.err
	}
	return f.patient, nil
}

type fakeStore struct {
	profile profile.Profile
	updated *profile.UpdateInput
}

func (f *fakeStore) GetByPatient(_ context.Context, patientID uuid.UUID) (profile.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) GetOrCreate(_ context.Context, patientID, orgID uuid.UUID) (profile.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) Update(_ context.Context, id uuid.UUID, input profile.UpdateInput) (profile.Profile, error) {
	f.updated = &input
	f.profile.Email = input.Email
	f.profile.SecondaryEmail = input.SecondaryEmail
	f.profile.NotificationsEnabled = input.NotificationsEnabled
	f.profile.Preferred = input.Preferred
	return f.profile, nil
}

func (f *fakeStore) ListByOrg(_ context.Context, orgID uuid.UUID, limit, offset int) ([]profile.ListEntry, int, error) {
	return []profile.ListEntry{{Profile: f.profile, PatientName: "Ada Lovelace"}}, 1, nil
}

func newHandler(store *fakeStore, pat patient.Patient) *profile.Handler {
	svc := profile.NewService(&fakePatients{patient: pat}, store)
	return &profile.Handler{Service: svc}
}

func editRequest(t *testing.T, body string, ajax bool) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/patients/"+uuid.NewString()+"/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ajax {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	actor := common.Actor{UserID: "u1", OrganizationID: uuid.NewString()}
	req = req.WithContext(common.WithActor(req.Context(), actor))
	return httptest.NewRecorder(), req
}

func routeEdit(h *profile.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/v1/patients/{patientID}/email", h.Edit)
	r.Get("/api/v1/patients/{patientID}/email", h.Get)
	return r
}

func testPatient() patient.Patient {
	return patient.Patient{ID: uuid.New(), OrganizationID: uuid.New(), FirstName: "Ada", LastName: "Lovelace"}
}

func TestEditAJAXSuccess(t *testing.T) {
	store := &fakeStore{profile: profile.Profile{ID: uuid.New(), Preferred: profile.PreferredPrimary}}
	h := newHandler(store, testPatient())

	rr, req := editRequest(t, `{"email": "ada@example.com", "preferred_email": "primary", "email_notifications_enabled": true}`, true)
	routeEdit(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.NotNil(t, store.updated)
	require.Equal(t, "ada@example.com", store.updated.Email)
}

func TestEditAJAXValidationErrors(t *testing.T) {
	store := &fakeStore{profile: profile.Profile{ID: uuid.New(), Preferred: profile.PreferredPrimary}}
	h := newHandler(store, testPatient())

	rr, req := editRequest(t, `{"email": "nonsense", "preferred_email": "primary"}`, true)
	routeEdit(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
	errs, ok := resp["errors"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, errs, "email")
	require.Nil(t, store.updated)
}

func TestEditFullPageRedirectsWithFlash(t *testing.T) {
	store := &fakeStore{profile: profile.Profile{ID: uuid.New(), Preferred: profile.PreferredPrimary}}
	h := newHandler(store, testPatient())

	rr, req := editRequest(t, `{"email": "ada@example.com", "preferred_email": "primary"}`, false)
	routeEdit(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/patients/"))
	require.NotEmpty(t, rr.Result().Cookies())
}

func TestGetReturnsPatientAndProfile(t *testing.T) {
	pat := testPatient()
	store := &fakeStore{profile: profile.Profile{
		ID:        uuid.New(),
		PatientID: pat.ID,
		Email:     "ada@example.com",
		Preferred: profile.PreferredPrimary,
	}}
	h := newHandler(store, pat)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+pat.ID.String()+"/email", nil)
	actor := common.Actor{UserID: "u1", OrganizationID: pat.OrganizationID.String()}
	req = req.WithContext(common.WithActor(req.Context(), actor))
	rr := httptest.NewRecorder()
	routeEdit(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ada@example.com")
	require.Contains(t, rr.Body.String(), "Ada Lovelace")
}

func TestEditUnknownPatientIs404(t *testing.T) {
	store := &fakeStore{profile: profile.Profile{ID: uuid.New(), Preferred: profile.PreferredPrimary}}
	svc := profile.NewService(&fakePatients{err: common.ErrNotFound("patient")}, store)
	h := &profile.Handler{Service: svc}

	rr, req := editRequest(t, `{"email": "ada@example.com", "preferred_email": "primary"}`, true)
	routeEdit(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}
