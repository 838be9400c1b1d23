package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/careloop/patient-email-api/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if errors.Is(err, errNoToken) {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission enforces both authentication and the named permission
// claim. Missing permission yields the quick-action error contract:
// {success:false, error:"Permission denied"}.
func (m Middleware) RequirePermission(claim string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := m.authenticateRequest(r)
			if err != nil {
				if errors.Is(err, errNoToken) {
					common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
					return
				}
				common.WriteError(w, err)
				return
			}
			actor, _ := common.ActorFrom(ctx)
			if !actor.HasPermission(claim) {
				common.JSON(w, http.StatusForbidden, map[string]any{
					"success": false,
					"error":   "Permission denied",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermissionPage is the full-page variant of RequirePermission. A
// missing claim sets an error flash and redirects instead of returning JSON,
// so the browser lands back on the host page with the denial visible.
func (m Middleware) RequirePermissionPage(claim string, redirectTo func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := m.authenticateRequest(r)
			if err != nil {
				common.SetFlash(w, "error", "Please sign in to continue.")
				http.Redirect(w, r, redirectTo(r), http.StatusSeeOther)
				return
			}
			actor, _ := common.ActorFrom(ctx)
			if !actor.HasPermission(claim) {
				common.SetFlash(w, "error", "Permission denied")
				http.Redirect(w, r, redirectTo(r), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	if m.Verifier == nil {
		return r.Context(), errors.New("auth: verifier not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	actor, err := m.Verifier.Parse(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithActor(r.Context(), actor), nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}
