package hooks_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/hooks"
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

type fakeProfiles struct {
	profile    profile.Profile
	getErr     error
	created    int
	haveRecord bool
}

func (f *fakeProfiles) GetByPatient(_ context.Context, patientID uuid.UUID) (profile.Profile, error) {
	if f.getErr != nil {
		return profile.Profile{}, f.getErr
	}
	if !f.haveRecord {
		return profile.Profile{}, common.ErrNotFound("email profile")
	}
	return f.profile, nil
}

func (f *fakeProfiles) GetOrCreate(_ context.Context, patientID, orgID uuid.UUID) (profile.Profile, error) {
	if !f.haveRecord {
		f.created++
		f.haveRecord = true
	}
	return f.profile, nil
}

func testAdapter(t *testing.T, patients *fakePatients, profiles *fakeProfiles) *hooks.Adapter {
	t.Helper()
	a, err := hooks.NewAdapter(patients, profiles)
	require.NoError(t, err)
	return a
}

func pagePatient() patient.Patient {
	return patient.Patient{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		FirstName:      "Ada",
		LastName:       "Lovelace",
	}
}

func TestDetailSectionWithoutPatientRendersEmpty(t *testing.T) {
	a := testAdapter(t, &fakePatients{}, &fakeProfiles{})
	out, err := a.DetailSection(context.Background(), hooks.PageContext{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDetailSectionUnknownPatientRendersEmpty(t *testing.T) {
	a := testAdapter(t, &fakePatients{err: common.ErrNotFound("patient")}, &fakeProfiles{})
	id := uuid.New()
	out, err := a.DetailSection(context.Background(), hooks.PageContext{PatientID: &id})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDetailSectionToleratesMissingProfile(t *testing.T) {
	pat := pagePatient()
	a := testAdapter(t, &fakePatients{patient: pat}, &fakeProfiles{})
	out, err := a.DetailSection(context.Background(), hooks.PageContext{
		PatientID:      &pat.ID,
		OrganizationID: pat.OrganizationID,
	})
	require.NoError(t, err)
	require.Contains(t, out, "No email settings yet")
	require.Contains(t, out, "Ada Lovelace")
}

func TestDetailSectionShowsProfileAndSendLinkWithPermission(t *testing.T) {
	pat := pagePatient()
	profiles := &fakeProfiles{
		haveRecord: true,
		profile: profile.Profile{
			Email:                "ada@example.com",
			NotificationsEnabled: true,
			Preferred:            profile.PreferredPrimary,
		},
	}
	a := testAdapter(t, &fakePatients{patient: pat}, profiles)

	actor := common.Actor{
		UserID:         "u1",
		OrganizationID: pat.OrganizationID.String(),
		Permissions:    []string{"can_send_patient_emails"},
	}
	ctx := common.WithActor(context.Background(), actor)
	out, err := a.DetailSection(ctx, hooks.PageContext{
		PatientID:      &pat.ID,
		OrganizationID: pat.OrganizationID,
	})
	require.NoError(t, err)
	require.Contains(t, out, "ada@example.com")
	require.Contains(t, out, "Send email")
}

func TestDetailSectionHidesSendLinkWithoutPermission(t *testing.T) {
	pat := pagePatient()
	a := testAdapter(t, &fakePatients{patient: pat}, &fakeProfiles{haveRecord: true})
	out, err := a.DetailSection(context.Background(), hooks.PageContext{
		PatientID:      &pat.ID,
		OrganizationID: pat.OrganizationID,
	})
	require.NoError(t, err)
	require.NotContains(t, out, "Send email")
}

func TestEditSectionCreatesProfileOnFirstView(t *testing.T) {
	pat := pagePatient()
	profiles := &fakeProfiles{profile: profile.Profile{Preferred: profile.PreferredPrimary}}
	a := testAdapter(t, &fakePatients{patient: pat}, profiles)

	out, err := a.EditSection(context.Background(), hooks.PageContext{
		PatientID:      &pat.ID,
		OrganizationID: pat.OrganizationID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, profiles.created)
	require.Contains(t, out, "Email settings")
	require.Contains(t, out, pat.ID.String())
}

func TestSidebarWidgetReflectsBounceState(t *testing.T) {
	pat := pagePatient()
	profiles := &fakeProfiles{
		haveRecord: true,
		profile: profile.Profile{
			Email:                "ada@example.com",
			NotificationsEnabled: true,
			Bounced:              true,
			Preferred:            profile.PreferredPrimary,
		},
	}
	a := testAdapter(t, &fakePatients{patient: pat}, profiles)
	out, err := a.SidebarWidget(context.Background(), hooks.PageContext{
		PatientID:      &pat.ID,
		OrganizationID: pat.OrganizationID,
	})
	require.NoError(t, err)
	require.Contains(t, out, "Email bounced")
}
