package profile

import (
	"context"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/patient"
)

// PatientReader resolves patients scoped to an organization.
type PatientReader interface {
	GetForOrg(ctx context.Context, id, orgID uuid.UUID) (patient.Patient, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	GetByPatient(ctx context.Context, patientID uuid.UUID) (Profile, error)
	GetOrCreate(ctx context.Context, patientID, orgID uuid.UUID) (Profile, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Profile, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]ListEntry, int, error)
}

// Service orchestrates email profile reads and edits.
type Service struct {
	Patients PatientReader
	Profiles Store
	Validate *validator.Validate
}

// NewService constructs a profile service with a shared validator instance.
func NewService(patients PatientReader, profiles Store) *Service {
	return &Service{
		Patients: patients,
		Profiles: profiles,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// List returns the organization's profiles page by page.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]ListEntry, int, error) {
	if perPage <= 0 {
		perPage = 25
	}
	if page <= 0 {
		page = 1
	}
	return s.Profiles.ListByOrg(ctx, orgID, perPage, common.Offset(page, perPage))
}

// ForPatient resolves the patient within the caller's organization and returns
// the bound profile, creating it with defaults on first access.
func (s *Service) ForPatient(ctx context.Context, patientID, orgID uuid.UUID) (patient.Patient, Profile, error) {
	p, err := s.Patients.GetForOrg(ctx, patientID, orgID)
	if err != nil {
		return patient.Patient{}, Profile{}, err
	}
	prof, err := s.Profiles.GetOrCreate(ctx, p.ID, p.OrganizationID)
	if err != nil {
		return patient.Patient{}, Profile{}, err
	}
	return p, prof, nil
}

// Edit validates the form against a patient's profile and saves it.
// Field-level validation failures come back as an ErrValidation AppError whose
// Details carry the per-field messages.
func (s *Service) Edit(ctx context.Context, patientID, orgID uuid.UUID, form EditForm) (Profile, error) {
	_, prof, err := s.ForPatient(ctx, patientID, orgID)
	if err != nil {
		return Profile{}, err
	}
	if fieldErrs := form.Validate(s.Validate); fieldErrs != nil {
		return Profile{}, common.ErrValidation(fieldErrs)
	}
	return s.Profiles.Update(ctx, prof.ID, form.Input())
}
