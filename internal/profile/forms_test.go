package profile_test

import (
	"testing"

	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/profile"
)

func validate() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func TestEditFormValidSubmission(t *testing.T) {
	form := profile.EditForm{
		Email:                "ada@example.com",
		Preferred:            "primary",
		NotificationsEnabled: true,
	}
	require.Nil(t, form.Validate(validate()))
}

func TestEditFormRejectsMalformedAddress(t *testing.T) {
	form := profile.EditForm{
		Email:     "not-an-email",
		Preferred: "primary",
	}
	errs := form.Validate(validate())
	require.Contains(t, errs, "email")
}

func TestEditFormRequiresAddressWhenNotificationsEnabled(t *testing.T) {
	form := profile.EditForm{
		Preferred:            "primary",
		NotificationsEnabled: true,
	}
	errs := form.Validate(validate())
	require.Contains(t, errs, "__all__")
}

func TestEditFormDisabledNotificationsAllowEmptyAddresses(t *testing.T) {
	form := profile.EditForm{Preferred: "secondary", SecondaryEmail: "b@example.com"}
	require.Nil(t, form.Validate(validate()))
}

func TestEditFormPreferredSecondaryRequiresSecondaryAddress(t *testing.T) {
	form := profile.EditForm{
		Email:     "ada@example.com",
		Preferred: "secondary",
	}
	errs := form.Validate(validate())
	require.Contains(t, errs, "secondary_email")
}

func TestEditFormPreferredPrimaryRequiresPrimaryAddress(t *testing.T) {
	form := profile.EditForm{
		SecondaryEmail: "backup@example.com",
		Preferred:      "primary",
	}
	errs := form.Validate(validate())
	require.Contains(t, errs, "email")
}

func TestEditFormRejectsUnknownPreferredChoice(t *testing.T) {
	form := profile.EditForm{Email: "ada@example.com", Preferred: "carrier-pigeon"}
	errs := form.Validate(validate())
	require.Contains(t, errs, "preferred_email")
}

func TestEditFormTrimsWhitespace(t *testing.T) {
	form := profile.EditForm{Email: "  ada@example.com  ", Preferred: " primary "}
	require.Nil(t, form.Validate(validate()))
	require.Equal(t, "ada@example.com", form.Input().Email)
	require.Equal(t, profile.PreferredPrimary, form.Input().Preferred)
}
