package common

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookieName = "careloop_flash"

// Flash is a one-shot user-facing message surfaced after a redirect.
type Flash struct {
	Level   string `json:"level"` // "success" or "error"
	Message string `json:"message"`
}

// SetFlash stores a flash message in a short-lived cookie. The host page reads
// and clears it on the next full-page render.
func SetFlash(w http.ResponseWriter, level, message string) {
	payload, err := json.Marshal(Flash{Level: level, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.URLEncoding.EncodeToString(payload),
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash reads the pending flash message, if any, and expires the cookie.
func PopFlash(w http.ResponseWriter, r *http.Request) (Flash, bool) {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return Flash{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1})
	raw, err := base64.URLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return Flash{}, false
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil {
		return Flash{}, false
	}
	return f, true
}
