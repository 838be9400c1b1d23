package template_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/template"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Welcome":              "welcome",
		"Appointment Reminder": "appointment_reminder",
		"  Care Plan Update  ": "care_plan_update",
		"already_normalized":   "already_normalized",
		"Mixed CASE Name":      "mixed_case_name",
	}
	for input, want := range cases {
		require.Equal(t, want, template.NormalizeName(input), "input %q", input)
	}
}
