package hooks

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"

	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/auth"
	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/patient"
	"github.com/careloop/patient-email-api/internal/profile"
)

// Slot names the host exposes and the plugin id used for all of them.
const (
	SlotPatientDetail  = "patient_detail_additional_sections"
	SlotPatientEdit    = "patient_edit_additional_sections"
	SlotPatientSidebar = "patient_detail_sidebar_widgets"

	PluginID = "patient_email_plugin"
)

//go:embed partials/*.html
var partialsFS embed.FS

// PageContext is what the host page knows when it asks for fragments. A nil
// PatientID means the page is not bound to a patient; fragments then render
// empty rather than erroring.
type PageContext struct {
	PatientID      *uuid.UUID
	OrganizationID uuid.UUID
}

// PatientReader resolves patients scoped to an organization.
type PatientReader interface {
	GetForOrg(ctx context.Context, id, orgID uuid.UUID) (patient.Patient, error)
}

// ProfileStore is the slice of profile persistence the fragments need.
type ProfileStore interface {
	GetByPatient(ctx context.Context, patientID uuid.UUID) (profile.Profile, error)
	GetOrCreate(ctx context.Context, patientID, orgID uuid.UUID) (profile.Profile, error)
}

// Adapter renders the email plugin's fragments for the three patient-page
// slots.
type Adapter struct {
	Patients PatientReader
	Profiles ProfileStore

	tmpl *htmltemplate.Template
}

// NewAdapter parses the embedded partials and builds the adapter.
func NewAdapter(patients PatientReader, profiles ProfileStore) (*Adapter, error) {
	t, err := htmltemplate.ParseFS(partialsFS, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse hook partials: %w", err)
	}
	return &Adapter{Patients: patients, Profiles: profiles, tmpl: t}, nil
}

// RegisterAll binds the three fragments to their slots on the registry.
func (a *Adapter) RegisterAll(reg *Registry) error {
	if err := reg.Register(SlotPatientDetail, PluginID, 10, a.DetailSection); err != nil {
		return err
	}
	if err := reg.Register(SlotPatientEdit, PluginID, 10, a.EditSection); err != nil {
		return err
	}
	return reg.Register(SlotPatientSidebar, PluginID, 5, a.SidebarWidget)
}

// DetailSection renders the email summary block on the patient detail page.
// A missing profile renders the empty state instead of failing.
func (a *Adapter) DetailSection(ctx context.Context, pc PageContext) (string, error) {
	return a.renderFor(ctx, pc, "detail_section.html", false)
}

// EditSection renders the settings form block on the patient edit page. The
// profile is created with defaults on first view so the form always has a
// row to bind to.
func (a *Adapter) EditSection(ctx context.Context, pc PageContext) (string, error) {
	return a.renderFor(ctx, pc, "edit_section.html", true)
}

// SidebarWidget renders the compact status widget in the detail sidebar.
func (a *Adapter) SidebarWidget(ctx context.Context, pc PageContext) (string, error) {
	return a.renderFor(ctx, pc, "sidebar_widget.html", false)
}

func (a *Adapter) renderFor(ctx context.Context, pc PageContext, name string, createProfile bool) (string, error) {
	if pc.PatientID == nil {
		return "", nil
	}
	pat, err := a.Patients.GetForOrg(ctx, *pc.PatientID, pc.OrganizationID)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}

	var prof *profile.Profile
	if createProfile {
		p, err := a.Profiles.GetOrCreate(ctx, pat.ID, pat.OrganizationID)
		if err != nil {
			return "", err
		}
		prof = &p
	} else {
		p, err := a.Profiles.GetByPatient(ctx, pat.ID)
		switch {
		case err == nil:
			prof = &p
		case isNotFound(err):
			// Detail and sidebar tolerate a patient without a profile.
		default:
			return "", err
		}
	}

	data := map[string]any{
		"Patient":            pat,
		"Profile":            prof,
		"HasEmailPermission": hasSendPermission(ctx),
	}
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func hasSendPermission(ctx context.Context) bool {
	actor, ok := common.ActorFrom(ctx)
	return ok && actor.HasPermission(auth.PermSendPatientEmails)
}

func isNotFound(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.Code == "NOT_FOUND"
}
