package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/auth"
)

func protected(t *testing.T, claim string) http.Handler {
	t.Helper()
	m := auth.Middleware{Verifier: newVerifier(t)}
	return m.RequirePermission(claim)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequirePermissionAllowsGrantedClaim(t *testing.T) {
	h := protected(t, "can_manage_patient_emails")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequirePermissionDeniedContract(t *testing.T) {
	h := protected(t, "can_send_patient_emails")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
	require.Equal(t, "Permission denied", resp["error"])
}

func TestRequirePermissionMissingToken(t *testing.T) {
	h := protected(t, "can_manage_patient_emails")
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthReadsAccessCookie(t *testing.T) {
	m := auth.Middleware{Verifier: newVerifier(t), AccessCookie: "careloop_access"}
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "careloop_access", Value: signToken(t, nil)})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequirePermissionPageRedirectsWithFlash(t *testing.T) {
	m := auth.Middleware{Verifier: newVerifier(t)}
	h := m.RequirePermissionPage("can_send_patient_emails", func(*http.Request) string {
		return "/patients/abc"
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/patients/abc", rr.Header().Get("Location"))
	require.NotEmpty(t, rr.Result().Cookies())
}
