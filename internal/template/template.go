package template

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmailTemplate is a reusable subject/body pair staff compose messages from.
// Templates are scoped to an organization and referenced by normalized name.
type EmailTemplate struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`

	Name        string `json:"name"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
	// TextContent is optional; empty means the plain-text body is derived from
	// the stripped HTML at send time.
	TextContent string `json:"text_content"`
	IsActive    bool   `json:"is_active"`
	Description string `json:"description"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeName lowercases the template name and replaces spaces with
// underscores so references stay stable regardless of how staff typed them.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
