package mailer_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/mailer"
	"github.com/careloop/patient-email-api/internal/patient"
	"github.com/careloop/patient-email-api/internal/profile"
	"github.com/careloop/patient-email-api/internal/template"
)

type stubPatients struct {
	patient patient.Patient
	err     error
}

func (s *stubPatients) GetForOrg(_ context.Context, id, orgID uuid.UUID) (patient.Patient, error) {
	if s.err != nil {
		return patient.Patient{}, s.err
	}
	return s.patient, nil
}

type stubProfiles struct {
	profile        profile.Profile
	touched        []time.Time
	touchErr       error
	getCreated     int
	getOrCreateErr error
}

func (s *stubProfiles) GetOrCreate(_ context.Context, patientID, orgID uuid.UUID) (profile.Profile, error) {
	s.getCreated++
	if s.getOrCreateErr != nil {
		return profile.Profile{}, s.getOrCreateErr
	}
	return s.profile, nil
}

func (s *stubProfiles) TouchLastSent(_ context.Context, id uuid.UUID, at time.Time) error {
	if s.touchErr != nil {
		return s.touchErr
	}
	s.touched = append(s.touched, at)
	return nil
}

type stubCatalog struct {
	template template.EmailTemplate
	err      error
}

func (s *stubCatalog) GetActiveByName(_ context.Context, name string, orgID uuid.UUID) (template.EmailTemplate, error) {
	if s.err != nil {
		return template.EmailTemplate{}, s.err
	}
	return s.template, nil
}

type recordingTransport struct {
	sent []mailer.Message
	err  error
}

func (r *recordingTransport) Send(_ context.Context, msg mailer.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func newEngine(t *testing.T, prof profile.Profile, catalog *stubCatalog, transport *recordingTransport) (*mailer.Service, *stubProfiles) {
	t.Helper()
	renderer, err := mailer.NewRenderer()
	require.NoError(t, err)

	pat := patient.Patient{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		FirstName:      "Ada",
		LastName:       "Lovelace",
	}
	prof.PatientID = pat.ID
	prof.OrganizationID = pat.OrganizationID
	profiles := &stubProfiles{profile: prof}
	if catalog == nil {
		catalog = &stubCatalog{err: common.ErrNotFound("email template")}
	}
	svc := mailer.NewService(&stubPatients{patient: pat}, profiles, catalog,
		renderer, transport, nil, "Acme Clinic", zerolog.Nop())
	return svc, profiles
}

func reachableProfile() profile.Profile {
	return profile.Profile{
		ID:                   uuid.New(),
		Email:                "ada@example.com",
		NotificationsEnabled: true,
		Preferred:            profile.PreferredPrimary,
	}
}

func TestSendSkipsWhenNotificationsDisabled(t *testing.T) {
	prof := reachableProfile()
	prof.NotificationsEnabled = false
	transport := &recordingTransport{}
	svc, profiles := newEngine(t, prof, nil, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonDisabled, out.Reason)
	require.Empty(t, transport.sent)
	require.Empty(t, profiles.touched)
}

func TestSendSkipsWhenBounced(t *testing.T) {
	prof := reachableProfile()
	prof.Bounced = true
	transport := &recordingTransport{}
	svc, _ := newEngine(t, prof, nil, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonBounced, out.Reason)
	require.Empty(t, transport.sent)
}

func TestSendSkipsWhenNoAddress(t *testing.T) {
	prof := reachableProfile()
	prof.Email = ""
	transport := &recordingTransport{}
	svc, _ := newEngine(t, prof, nil, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonNoAddress, out.Reason)
}

func TestSendWelcomeDeliversAndTouchesLastSent(t *testing.T) {
	transport := &recordingTransport{}
	svc, profiles := newEngine(t, reachableProfile(), nil, transport)

	start := time.Now().UTC()
	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Equal(t, mailer.ReasonSent, out.Reason)
	require.Equal(t, "ada@example.com", out.Recipient)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	require.Equal(t, "ada@example.com", msg.To)
	require.Contains(t, msg.Subject, "Acme Clinic")
	require.Contains(t, msg.HTMLBody, "Ada Lovelace")
	require.NotEmpty(t, msg.TextBody)
	require.NotContains(t, msg.TextBody, "<")

	require.Len(t, profiles.touched, 1)
	require.False(t, profiles.touched[0].Before(start))
}

func TestSendPrefersSecondaryAddressWhenChosen(t *testing.T) {
	prof := reachableProfile()
	prof.SecondaryEmail = "backup@example.com"
	prof.Preferred = profile.PreferredSecondary
	transport := &recordingTransport{}
	svc, _ := newEngine(t, prof, nil, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Equal(t, "backup@example.com", transport.sent[0].To)
}

func TestSendCatalogTemplateWinsOverBuiltin(t *testing.T) {
	catalog := &stubCatalog{template: template.EmailTemplate{
		Name:        "welcome",
		Subject:     "Hi {{.PatientFirstName}}",
		HTMLContent: "<p>Custom greeting for {{.PatientName}}</p>",
	}}
	transport := &recordingTransport{}
	svc, _ := newEngine(t, reachableProfile(), catalog, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Equal(t, "Hi Ada", transport.sent[0].Subject)
	require.Contains(t, transport.sent[0].HTMLBody, "Custom greeting for Ada Lovelace")
	require.Equal(t, "Custom greeting for Ada Lovelace", strings.TrimSpace(transport.sent[0].TextBody))
}

func TestSendCatalogTemplateExplicitTextBodyWins(t *testing.T) {
	catalog := &stubCatalog{template: template.EmailTemplate{
		Name:        "welcome",
		Subject:     "Hello",
		HTMLContent: "<p>HTML part</p>",
		TextContent: "Plain part for {{.PatientFirstName}}",
	}}
	transport := &recordingTransport{}
	svc, _ := newEngine(t, reachableProfile(), catalog, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Equal(t, "Plain part for Ada", transport.sent[0].TextBody)
}

func TestSendUnknownTemplateIsRenderError(t *testing.T) {
	transport := &recordingTransport{}
	svc, _ := newEngine(t, reachableProfile(), nil, transport)

	out, err := svc.Send(context.Background(), uuid.New(), uuid.New(), "no_such_template", nil)
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonRenderError, out.Reason)
	require.Empty(t, transport.sent)
}

func TestSendBrokenCatalogTemplateIsRenderError(t *testing.T) {
	catalog := &stubCatalog{template: template.EmailTemplate{
		Name:        "welcome",
		Subject:     "Hello",
		HTMLContent: "<p>{{.Unclosed</p>",
	}}
	transport := &recordingTransport{}
	svc, profiles := newEngine(t, reachableProfile(), catalog, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonRenderError, out.Reason)
	require.Empty(t, profiles.touched)
}

func TestSendTransportFailureIsAbsorbed(t *testing.T) {
	transport := &recordingTransport{err: errors.New("connection refused")}
	svc, profiles := newEngine(t, reachableProfile(), nil, transport)

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonTransportError, out.Reason)
	require.Empty(t, profiles.touched)
}

func TestSendTouchFailureStillCountsAsSent(t *testing.T) {
	transport := &recordingTransport{}
	prof := reachableProfile()
	svc, profiles := newEngine(t, prof, nil, transport)
	profiles.touchErr = errors.New("db down")

	out, err := svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Len(t, transport.sent, 1)
}

func TestSendUnknownPatientReturnsError(t *testing.T) {
	renderer, err := mailer.NewRenderer()
	require.NoError(t, err)
	svc := mailer.NewService(
		&stubPatients{err: common.ErrNotFound("patient")},
		&stubProfiles{},
		&stubCatalog{err: common.ErrNotFound("email template")},
		renderer, &recordingTransport{}, nil, "Acme Clinic", zerolog.Nop())

	_, err = svc.SendWelcome(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestSendAppointmentReminderCarriesDateAndTime(t *testing.T) {
	transport := &recordingTransport{}
	svc, _ := newEngine(t, reachableProfile(), nil, transport)

	out, err := svc.SendAppointmentReminder(context.Background(), uuid.New(), uuid.New(), "March 3, 2026", "10:30")
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Contains(t, transport.sent[0].HTMLBody, "March 3, 2026")
	require.Contains(t, transport.sent[0].HTMLBody, "10:30")
}

func TestSendDirectGoesThroughGates(t *testing.T) {
	prof := reachableProfile()
	prof.NotificationsEnabled = false
	transport := &recordingTransport{}
	svc, _ := newEngine(t, prof, nil, transport)

	out, err := svc.SendDirect(context.Background(), uuid.New(), uuid.New(), "Checkup", "<p>See you soon</p>", "")
	require.NoError(t, err)
	require.False(t, out.Sent)
	require.Equal(t, mailer.ReasonDisabled, out.Reason)
}

func TestSendDirectDerivesTextFromHTML(t *testing.T) {
	transport := &recordingTransport{}
	svc, _ := newEngine(t, reachableProfile(), nil, transport)

	out, err := svc.SendDirect(context.Background(), uuid.New(), uuid.New(), "Checkup", "<p>See you soon</p>", "")
	require.NoError(t, err)
	require.True(t, out.Sent)
	require.Equal(t, "Checkup", transport.sent[0].Subject)
	require.Equal(t, "See you soon", strings.TrimSpace(transport.sent[0].TextBody))
}
