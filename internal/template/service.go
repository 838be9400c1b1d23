package template

import (
	"context"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careloop/patient-email-api/internal/common"
)

// Form is the staff-facing template create/edit submission.
type Form struct {
	Name        string `json:"name" validate:"required,max=100"`
	Subject     string `json:"subject" validate:"required,max=200"`
	HTMLContent string `json:"html_content" validate:"required"`
	TextContent string `json:"text_content"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, t EmailTemplate) (EmailTemplate, error)
	Update(ctx context.Context, t EmailTemplate) (EmailTemplate, error)
	GetByID(ctx context.Context, id, orgID uuid.UUID) (EmailTemplate, error)
	GetActiveByName(ctx context.Context, name string, orgID uuid.UUID) (EmailTemplate, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]EmailTemplate, int, error)
}

// Service manages the email template catalog.
type Service struct {
	Templates Store
	Validate  *validator.Validate
}

// NewService constructs a template service.
func NewService(store Store) *Service {
	return &Service{
		Templates: store,
		Validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// List returns the organization's templates page by page.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]EmailTemplate, int, error) {
	if perPage <= 0 {
		perPage = 25
	}
	if page <= 0 {
		page = 1
	}
	return s.Templates.ListByOrg(ctx, orgID, perPage, common.Offset(page, perPage))
}

// Get fetches a single template within the organization.
func (s *Service) Get(ctx context.Context, id, orgID uuid.UUID) (EmailTemplate, error) {
	return s.Templates.GetByID(ctx, id, orgID)
}

// Create validates the form, normalizes the name, and stores the template.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, form Form) (EmailTemplate, error) {
	if err := s.Validate.Struct(form); err != nil {
		return EmailTemplate{}, common.ErrValidation(fieldMessages(err))
	}
	return s.Templates.Create(ctx, EmailTemplate{
		OrganizationID: orgID,
		Name:           NormalizeName(form.Name),
		Subject:        form.Subject,
		HTMLContent:    form.HTMLContent,
		TextContent:    form.TextContent,
		IsActive:       form.IsActive,
		Description:    form.Description,
	})
}

// Edit validates the form and rewrites an existing template.
func (s *Service) Edit(ctx context.Context, id, orgID uuid.UUID, form Form) (EmailTemplate, error) {
	if err := s.Validate.Struct(form); err != nil {
		return EmailTemplate{}, common.ErrValidation(fieldMessages(err))
	}
	existing, err := s.Templates.GetByID(ctx, id, orgID)
	if err != nil {
		return EmailTemplate{}, err
	}
	existing.Name = NormalizeName(form.Name)
	existing.Subject = form.Subject
	existing.HTMLContent = form.HTMLContent
	existing.TextContent = form.TextContent
	existing.IsActive = form.IsActive
	existing.Description = form.Description
	return s.Templates.Update(ctx, existing)
}

func fieldMessages(err error) map[string][]string {
	out := map[string][]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			switch fe.Field() {
			case "Name":
				out["name"] = append(out["name"], "name is required and must be at most 100 characters")
			case "Subject":
				out["subject"] = append(out["subject"], "subject is required and must be at most 200 characters")
			case "HTMLContent":
				out["html_content"] = append(out["html_content"], "HTML content is required")
			}
		}
	}
	if len(out) == 0 {
		out["__all__"] = []string{"invalid submission"}
	}
	return out
}
