package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/patient-email-api/internal/common"
)

// Repo reads patient records scoped to an organization.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a patient repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// GetForOrg fetches a patient by id within the given organization. A patient
// belonging to another organization is indistinguishable from a missing one.
func (r *Repo) GetForOrg(ctx context.Context, id, orgID uuid.UUID) (Patient, error) {
	const q = `
		SELECT id, organization_id, first_name, last_name, created_at
		FROM patients
		WHERE id = $1 AND organization_id = $2
	`
	var p Patient
	err := r.pool.QueryRow(ctx, q, id, orgID).Scan(
		&p.ID, &p.OrganizationID, &p.FirstName, &p.LastName, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Patient{}, common.ErrNotFound("patient")
		}
		return Patient{}, err
	}
	return p, nil
}
