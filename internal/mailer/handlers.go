package mailer

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	htmltemplate "html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/obs"
	"github.com/careloop/patient-email-api/internal/patient"
	"github.com/careloop/patient-email-api/internal/profile"
)

//go:embed pages/send_form.html
var pagesFS embed.FS

var sendFormPage = htmltemplate.Must(htmltemplate.ParseFS(pagesFS, "pages/send_form.html"))

// SendForm is the staff-facing ad-hoc compose submission.
type SendForm struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Message  string `json:"message" validate:"required"`
	HTMLBody string `json:"html_body"`
}

// ProfileResolver resolves a patient plus their bound profile.
type ProfileResolver interface {
	ForPatient(ctx context.Context, patientID, orgID uuid.UUID) (patient.Patient, profile.Profile, error)
}

// Handler serves the send form and the quick-action endpoint.
type Handler struct {
	Service        *Service
	Profiles       ProfileResolver
	Validate       *validator.Validate
	PatientPageURL func(patientID string) string
}

// NewHandler builds the mail HTTP surface.
func NewHandler(svc *Service, profiles ProfileResolver, patientPageURL func(string) string) *Handler {
	return &Handler{
		Service:        svc,
		Profiles:       profiles,
		Validate:       validator.New(validator.WithRequiredStructEnabled()),
		PatientPageURL: patientPageURL,
	}
}

// ShowSendForm handles GET /patients/{patientID}/email/send.
func (h *Handler) ShowSendForm(w http.ResponseWriter, r *http.Request) {
	patientID, orgID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	pat, prof, err := h.Profiles.ForPatient(r.Context(), patientID, orgID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	flash, _ := common.PopFlash(w, r)
	var buf bytes.Buffer
	if err := sendFormPage.Execute(&buf, map[string]any{
		"Patient":   pat,
		"Profile":   prof,
		"Recipient": prof.PreferredAddress(),
		"Reachable": prof.NotificationsEnabled && !prof.Bounced && prof.HasEmail(),
		"Flash":     flash,
		"Action":    r.URL.Path,
		"BackURL":   h.PatientPageURL(pat.ID.String()),
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	common.HTML(w, http.StatusOK, buf.String())
}

// SubmitSendForm handles POST /patients/{patientID}/email/send. Regardless of
// the send outcome the browser goes back to the patient page with a flash;
// the outcome only changes the flash level and wording.
func (h *Handler) SubmitSendForm(w http.ResponseWriter, r *http.Request) {
	patientID, orgID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	form, ok := h.parseSendForm(w, r)
	if !ok {
		return
	}
	if errs := h.validateSendForm(form); errs != nil {
		if common.IsAJAX(r) {
			common.JSON(w, http.StatusOK, map[string]any{"success": false, "errors": errs})
			return
		}
		common.SetFlash(w, "error", "Please correct the form and try again.")
		http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
		return
	}

	out, err := h.Service.SendDirect(r.Context(), patientID, orgID, form.Subject, form.HTMLBody, form.Message)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if common.IsAJAX(r) {
		common.JSON(w, http.StatusOK, map[string]any{"success": out.Sent})
		return
	}
	if out.Sent {
		common.SetFlash(w, "success", "Email sent successfully.")
	} else {
		common.SetFlash(w, "error", "Email could not be sent.")
	}
	http.Redirect(w, r, h.PatientPageURL(patientID.String()), http.StatusSeeOther)
}

// QuickAction handles POST /api/v1/patients/{patientID}/email/actions. The
// response shape is fixed: {"success": bool, "message": string}. Unknown
// actions are reported in-band rather than as an HTTP error.
func (h *Handler) QuickAction(w http.ResponseWriter, r *http.Request) {
	patientID, orgID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
		Date   string `json:"date"`
		Time   string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}

	var (
		out     Outcome
		err     error
		message string
	)
	switch req.Action {
	case "send_welcome":
		out, err = h.Service.SendWelcome(r.Context(), patientID, orgID)
		message = pick(out, "Welcome email sent.", "Welcome email could not be sent.")
	case "send_appointment_reminder":
		out, err = h.Service.SendAppointmentReminder(r.Context(), patientID, orgID, req.Date, req.Time)
		message = pick(out, "Appointment reminder sent.", "Appointment reminder could not be sent.")
	case "verify_email":
		out, err = h.Service.SendVerifyEmail(r.Context(), patientID, orgID)
		message = pick(out, "Verification email sent.", "Verification email could not be sent.")
	default:
		if obs.QuickActionTotal != nil {
			obs.QuickActionTotal.WithLabelValues("unknown", "error").Inc()
		}
		common.JSON(w, http.StatusOK, map[string]any{"success": false, "message": "Unknown action"})
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if obs.QuickActionTotal != nil {
		obs.QuickActionTotal.WithLabelValues(req.Action, resultLabel(out.Sent)).Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": out.Sent, "message": message})
}

// parseSendForm accepts both JSON and classic form encodings since the page
// posts as a form while XHR call sites send JSON.
func (h *Handler) parseSendForm(w http.ResponseWriter, r *http.Request) (SendForm, bool) {
	var form SendForm
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
			return SendForm{}, false
		}
		return form, true
	}
	if err := r.ParseForm(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid form submission", nil)
		return SendForm{}, false
	}
	form.Subject = r.PostFormValue("subject")
	form.Message = r.PostFormValue("message")
	form.HTMLBody = r.PostFormValue("html_body")
	return form, true
}

func (h *Handler) validateSendForm(form SendForm) map[string][]string {
	err := h.Validate.Struct(form)
	if err == nil {
		return nil
	}
	out := map[string][]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			switch fe.Field() {
			case "Subject":
				out["subject"] = append(out["subject"], "subject is required and must be at most 200 characters")
			case "Message":
				out["message"] = append(out["message"], "message is required")
			}
		}
	}
	if len(out) == 0 {
		out["__all__"] = []string{"invalid submission"}
	}
	return out
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (patientID, orgID uuid.UUID, ok bool) {
	actor, found := common.ActorFrom(r.Context())
	if !found {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return uuid.Nil, uuid.Nil, false
	}
	orgID, err := uuid.Parse(actor.OrganizationID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid organization claim", nil)
		return uuid.Nil, uuid.Nil, false
	}
	patientID, err = uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid patient id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return patientID, orgID, true
}

func pick(out Outcome, okMsg, failMsg string) string {
	if out.Sent {
		return okMsg
	}
	return failMsg
}
