package profile

import (
	"time"

	"github.com/google/uuid"
)

// PreferredEmail selects which of the two addresses outbound mail targets.
type PreferredEmail string

const (
	// PreferredPrimary targets the primary address.
	PreferredPrimary PreferredEmail = "primary"
	// PreferredSecondary targets the secondary address.
	PreferredSecondary PreferredEmail = "secondary"
)

// Valid reports whether the value is one of the defined choices.
func (p PreferredEmail) Valid() bool {
	return p == PreferredPrimary || p == PreferredSecondary
}

// Profile is the per-patient email settings record. Exactly one row exists per
// patient; it is created lazily on first access with defaults.
type Profile struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	OrganizationID uuid.UUID `json:"organization_id"`

	Email          string `json:"email"`
	SecondaryEmail string `json:"secondary_email"`

	EmailVerified        bool           `json:"email_verified"`
	NotificationsEnabled bool           `json:"email_notifications_enabled"`
	Bounced              bool           `json:"email_bounced"`
	Preferred            PreferredEmail `json:"preferred_email"`

	LastEmailSent *time.Time `json:"last_email_sent,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PreferredAddress returns the single address outbound mail should target.
// Secondary wins only when it is both chosen and set; otherwise the primary
// address is used, falling back to secondary when primary is empty. Empty
// string means the patient is unreachable by email.
func (p Profile) PreferredAddress() string {
	if p.Preferred == PreferredSecondary && p.SecondaryEmail != "" {
		return p.SecondaryEmail
	}
	if p.Email != "" {
		return p.Email
	}
	return p.SecondaryEmail
}

// HasEmail reports whether the patient is reachable by email at all.
func (p Profile) HasEmail() bool {
	return p.PreferredAddress() != ""
}
