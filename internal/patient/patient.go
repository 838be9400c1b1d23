package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is a read-only projection of the host platform's patient record.
// This service never writes to the patients table.
type Patient struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// FullName returns the display name used in messages and templates.
func (p Patient) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}
