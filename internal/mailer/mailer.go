// Package mailer implements the outbound email engine. Every send goes
// through the same eligibility gates and produces an Outcome rather than an
// error: callers only ever see whether the message was delivered to the
// transport, while the reason codes stay internal for logs, metrics, and the
// audit trail.
package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/patient-email-api/internal/audit"
	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/obs"
	"github.com/careloop/patient-email-api/internal/patient"
	"github.com/careloop/patient-email-api/internal/profile"
	"github.com/careloop/patient-email-api/internal/template"
)

// PatientReader resolves patients scoped to an organization.
type PatientReader interface {
	GetForOrg(ctx context.Context, id, orgID uuid.UUID) (patient.Patient, error)
}

// ProfileStore is the slice of profile persistence the engine needs.
type ProfileStore interface {
	GetOrCreate(ctx context.Context, patientID, orgID uuid.UUID) (profile.Profile, error)
	TouchLastSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TemplateCatalog resolves staff-authored templates by normalized name.
type TemplateCatalog interface {
	GetActiveByName(ctx context.Context, name string, orgID uuid.UUID) (template.EmailTemplate, error)
}

// AuditRecorder persists send attempts. Implementations must be best-effort.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service is the send policy engine. Catalog templates take precedence over
// the bundled ones so organizations can override any built-in message.
type Service struct {
	Patients  PatientReader
	Profiles  ProfileStore
	Templates TemplateCatalog
	Renderer  *Renderer
	Transport Transport
	Audit     AuditRecorder
	OrgName   string
	Log       zerolog.Logger

	now func() time.Time
}

// NewService wires the engine. Audit may be nil.
func NewService(patients PatientReader, profiles ProfileStore, templates TemplateCatalog,
	renderer *Renderer, transport Transport, rec AuditRecorder, orgName string, log zerolog.Logger) *Service {
	return &Service{
		Patients:  patients,
		Profiles:  profiles,
		Templates: templates,
		Renderer:  renderer,
		Transport: transport,
		Audit:     rec,
		OrgName:   orgName,
		Log:       log,
		now:       time.Now,
	}
}

// Send resolves the patient inside the caller's organization and runs one
// send attempt. The returned error covers resolution only (unknown patient);
// every engine-level fault is absorbed into the Outcome so a failed email can
// never surface as a request failure.
func (s *Service) Send(ctx context.Context, patientID, orgID uuid.UUID, templateName string, extra map[string]any) (Outcome, error) {
	pat, err := s.Patients.GetForOrg(ctx, patientID, orgID)
	if err != nil {
		return Outcome{}, err
	}
	prof, err := s.Profiles.GetOrCreate(ctx, pat.ID, pat.OrganizationID)
	if err != nil {
		return Outcome{}, err
	}
	out := s.attempt(ctx, pat, prof, templateName, func(log zerolog.Logger) (Rendered, Reason) {
		return s.render(ctx, pat, prof, templateName, extra, log)
	})
	s.record(ctx, pat, templateName, out)
	return out, nil
}

// SendDirect delivers a staff-composed message through the same eligibility
// gates, bypassing template resolution. When htmlBody is empty the plain text
// doubles as the only part.
func (s *Service) SendDirect(ctx context.Context, patientID, orgID uuid.UUID, subject, htmlBody, textBody string) (Outcome, error) {
	pat, err := s.Patients.GetForOrg(ctx, patientID, orgID)
	if err != nil {
		return Outcome{}, err
	}
	prof, err := s.Profiles.GetOrCreate(ctx, pat.ID, pat.OrganizationID)
	if err != nil {
		return Outcome{}, err
	}
	out := s.attempt(ctx, pat, prof, "ad_hoc", func(log zerolog.Logger) (Rendered, Reason) {
		text := textBody
		if text == "" && htmlBody != "" {
			derived, derr := html2textBody(htmlBody)
			if derr != nil {
				log.Error().Err(derr).Msgf("text derivation failed for patient %s", pat.FullName())
				return Rendered{}, ReasonRenderError
			}
			text = derived
		}
		return Rendered{Subject: subject, HTMLBody: htmlBody, TextBody: text}, ""
	})
	s.record(ctx, pat, "ad_hoc", out)
	return out, nil
}

// SendWelcome sends the welcome message.
func (s *Service) SendWelcome(ctx context.Context, patientID, orgID uuid.UUID) (Outcome, error) {
	return s.Send(ctx, patientID, orgID, "welcome", nil)
}

// SendAppointmentReminder sends a reminder with the given date and time.
func (s *Service) SendAppointmentReminder(ctx context.Context, patientID, orgID uuid.UUID, date, timeOfDay string) (Outcome, error) {
	return s.Send(ctx, patientID, orgID, "appointment_reminder", map[string]any{
		"AppointmentDate": date,
		"AppointmentTime": timeOfDay,
	})
}

// SendCarePlanUpdate notifies the patient their care plan changed.
func (s *Service) SendCarePlanUpdate(ctx context.Context, patientID, orgID uuid.UUID, details string) (Outcome, error) {
	return s.Send(ctx, patientID, orgID, "care_plan_update", map[string]any{
		"UpdateDetails": details,
	})
}

// SendVerifyEmail sends the address verification message.
func (s *Service) SendVerifyEmail(ctx context.Context, patientID, orgID uuid.UUID) (Outcome, error) {
	return s.Send(ctx, patientID, orgID, "verify_email", nil)
}

// attempt runs the gates in order and never lets a fault escape. A panic in
// rendering or transport becomes an internal outcome with a diagnostic log
// line naming the patient.
func (s *Service) attempt(ctx context.Context, pat patient.Patient, prof profile.Profile, kind string, compose func(zerolog.Logger) (Rendered, Reason)) (out Outcome) {
	log := s.Log.With().
		Str("patient_id", pat.ID.String()).
		Str("template", kind).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msgf("email send panicked for patient %s", pat.FullName())
			out = blocked(ReasonInternal)
		}
		if obs.EmailSendTotal != nil {
			obs.EmailSendTotal.WithLabelValues(resultLabel(out.Sent), string(out.Reason)).Inc()
		}
	}()

	if !prof.NotificationsEnabled {
		log.Info().Msg("send skipped, notifications disabled")
		return blocked(ReasonDisabled)
	}
	if prof.Bounced {
		log.Info().Msg("send skipped, address has bounced")
		return blocked(ReasonBounced)
	}
	addr := prof.PreferredAddress()
	if addr == "" {
		log.Info().Msg("send skipped, no email address on file")
		return blocked(ReasonNoAddress)
	}

	rendered, reason := compose(log)
	if reason != "" {
		return blocked(reason)
	}

	if err := s.Transport.Send(ctx, Message{
		To:       addr,
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTMLBody,
		TextBody: rendered.TextBody,
	}); err != nil {
		log.Error().Err(err).Msgf("email delivery failed for patient %s", pat.FullName())
		return blocked(ReasonTransportError)
	}

	if err := s.Profiles.TouchLastSent(ctx, prof.ID, s.now().UTC()); err != nil {
		// The mail is already out; only the bookkeeping failed.
		log.Error().Err(err).Msg("failed to update last_email_sent")
	}

	log.Info().Str("recipient", addr).Msg("email sent")
	return sent(addr)
}

// render resolves the template source and produces the message parts. The
// catalog is consulted first; unknown names fall back to the bundled set.
func (s *Service) render(ctx context.Context, pat patient.Patient, prof profile.Profile, templateName string, extra map[string]any, log zerolog.Logger) (Rendered, Reason) {
	data := renderData(pat, prof, s.OrgName, extra)
	name := template.NormalizeName(templateName)

	t, err := s.Templates.GetActiveByName(ctx, name, pat.OrganizationID)
	switch {
	case err == nil:
		rendered, rerr := s.Renderer.RenderCatalog(t.Name, t.Subject, t.HTMLContent, t.TextContent, data)
		if rerr != nil {
			log.Error().Err(rerr).Msgf("template render failed for patient %s", pat.FullName())
			return Rendered{}, ReasonRenderError
		}
		return rendered, ""
	case isNotFound(err):
		if !s.Renderer.HasBuiltin(name) {
			log.Warn().Msg("unknown email template")
			return Rendered{}, ReasonRenderError
		}
		rendered, rerr := s.Renderer.RenderBuiltin(name, data)
		if rerr != nil {
			log.Error().Err(rerr).Msgf("template render failed for patient %s", pat.FullName())
			return Rendered{}, ReasonRenderError
		}
		return rendered, ""
	default:
		log.Error().Err(err).Msg("template lookup failed")
		return Rendered{}, ReasonInternal
	}
}

// renderData builds the template context. Patient and profile keys always win
// over caller-supplied extras.
func renderData(pat patient.Patient, prof profile.Profile, orgName string, extra map[string]any) map[string]any {
	data := make(map[string]any, len(extra)+8)
	for k, v := range extra {
		data[k] = v
	}
	data["Patient"] = pat
	data["Profile"] = prof
	data["PatientName"] = pat.FullName()
	data["PatientFirstName"] = pat.FirstName
	data["PatientLastName"] = pat.LastName
	data["OrganizationName"] = orgName
	return data
}

func (s *Service) record(ctx context.Context, pat patient.Patient, templateName string, out Outcome) {
	if s.Audit == nil {
		return
	}
	entry := audit.Entry{
		OrganizationID: pat.OrganizationID,
		PatientID:      pat.ID,
		TemplateName:   template.NormalizeName(templateName),
		Recipient:      out.Recipient,
		Sent:           out.Sent,
		Reason:         string(out.Reason),
	}
	if actor, ok := common.ActorFrom(ctx); ok {
		entry.ActorUserID = actor.UserID
	}
	s.Audit.Record(ctx, entry)
}

func resultLabel(ok bool) string {
	if ok {
		return "sent"
	}
	return "blocked"
}

func isNotFound(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.Code == "NOT_FOUND"
}
