package profile

import (
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// EditForm is the staff-facing profile edit submission.
type EditForm struct {
	Email                string `json:"email" validate:"omitempty,email"`
	SecondaryEmail       string `json:"secondary_email" validate:"omitempty,email"`
	NotificationsEnabled bool   `json:"email_notifications_enabled"`
	Preferred            string `json:"preferred_email" validate:"required,oneof=primary secondary"`
}

// FieldErrors maps form fields to human-readable validation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Validate applies both tag-level and cross-field rules. Returns nil when the
// form is acceptable.
func (f *EditForm) Validate(v *validator.Validate) FieldErrors {
	f.Email = strings.TrimSpace(f.Email)
	f.SecondaryEmail = strings.TrimSpace(f.SecondaryEmail)
	f.Preferred = strings.TrimSpace(f.Preferred)

	errs := FieldErrors{}
	if err := v.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				switch fe.Field() {
				case "Email":
					errs.add("email", "enter a valid email address")
				case "SecondaryEmail":
					errs.add("secondary_email", "enter a valid email address")
				case "Preferred":
					errs.add("preferred_email", "choose primary or secondary")
				}
			}
		} else {
			errs.add("__all__", "invalid submission")
		}
	}

	// Cross-field rules mirror the profile's send-eligibility expectations.
	if f.NotificationsEnabled && f.Email == "" && f.SecondaryEmail == "" {
		errs.add("__all__", "at least one email address is required when email notifications are enabled")
	}
	switch PreferredEmail(f.Preferred) {
	case PreferredSecondary:
		if f.SecondaryEmail == "" {
			errs.add("secondary_email", "secondary email address is required when it is set as preferred")
		}
	case PreferredPrimary:
		if f.Email == "" {
			errs.add("email", "primary email address is required when it is set as preferred")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Input converts a validated form into a repository update.
func (f *EditForm) Input() UpdateInput {
	return UpdateInput{
		Email:                f.Email,
		SecondaryEmail:       f.SecondaryEmail,
		NotificationsEnabled: f.NotificationsEnabled,
		Preferred:            PreferredEmail(f.Preferred),
	}
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
