package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/patient-email-api/internal/common"
	"github.com/careloop/patient-email-api/internal/obs"
)

const uniqueViolation = "23505"

const profileColumns = `
	id, patient_id, organization_id,
	COALESCE(email, ''), COALESCE(secondary_email, ''),
	email_verified, email_notifications_enabled, email_bounced,
	preferred_email, last_email_sent, created_at, updated_at
`

// ListEntry is a profile joined with the patient's display name for list pages.
type ListEntry struct {
	Profile
	PatientName string `json:"patient_name"`
}

// Repo persists email profiles.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a profile repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// GetByPatient fetches the profile bound to a patient, if one exists.
func (r *Repo) GetByPatient(ctx context.Context, patientID uuid.UUID) (Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM patient_email_profiles WHERE patient_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, patientID))
}

// GetOrCreate returns the existing profile for the patient or creates one with
// defaults bound to the patient's organization. A concurrent creator losing
// the race on the patient_id unique constraint re-fetches the winner's row.
func (r *Repo) GetOrCreate(ctx context.Context, patientID, orgID uuid.UUID) (Profile, error) {
	existing, err := r.GetByPatient(ctx, patientID)
	if err == nil {
		return existing, nil
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		return Profile{}, err
	}

	const ins = `
		INSERT INTO patient_email_profiles (id, patient_id, organization_id)
		VALUES ($1, $2, $3)
		RETURNING ` + profileColumns
	created, err := r.scanOne(r.pool.QueryRow(ctx, ins, uuid.New(), patientID, orgID))
	if err == nil {
		if obs.ProfileAutoCreateTotal != nil {
			obs.ProfileAutoCreateTotal.Inc()
		}
		return created, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return r.GetByPatient(ctx, patientID)
	}
	return Profile{}, err
}

// UpdateInput carries the fields staff may edit through the profile form.
type UpdateInput struct {
	Email                string
	SecondaryEmail       string
	NotificationsEnabled bool
	Preferred            PreferredEmail
}

// Update rewrites the form-bound fields. Concurrent edits resolve last-write-wins.
func (r *Repo) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Profile, error) {
	const q = `
		UPDATE patient_email_profiles
		SET email = NULLIF($2, ''),
		    secondary_email = NULLIF($3, ''),
		    email_notifications_enabled = $4,
		    preferred_email = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns
	return r.scanOne(r.pool.QueryRow(ctx, q,
		id, input.Email, input.SecondaryEmail, input.NotificationsEnabled, string(input.Preferred)))
}

// TouchLastSent persists only the last_email_sent column.
func (r *Repo) TouchLastSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE patient_email_profiles SET last_email_sent = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound("email profile")
	}
	return nil
}

// SetVerified flips the email_verified flag.
func (r *Repo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	const q = `UPDATE patient_email_profiles SET email_verified = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, verified)
	return err
}

// SetBounced flips the terminal bounce flag. Clearing it manually re-enables sends.
func (r *Repo) SetBounced(ctx context.Context, id uuid.UUID, bounced bool) error {
	const q = `UPDATE patient_email_profiles SET email_bounced = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, bounced)
	return err
}

// ListByOrg returns profiles for an organization joined with patient names.
func (r *Repo) ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]ListEntry, int, error) {
	const q = `
		SELECT p.id, p.patient_id, p.organization_id,
		       COALESCE(p.email, ''), COALESCE(p.secondary_email, ''),
		       p.email_verified, p.email_notifications_enabled, p.email_bounced,
		       p.preferred_email, p.last_email_sent, p.created_at, p.updated_at,
		       TRIM(pa.first_name || ' ' || pa.last_name)
		FROM patient_email_profiles p
		JOIN patients pa ON pa.id = p.patient_id
		WHERE p.organization_id = $1
		ORDER BY pa.last_name, pa.first_name, p.created_at
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]ListEntry, 0, limit)
	for rows.Next() {
		var e ListEntry
		var preferred string
		if err := rows.Scan(
			&e.ID, &e.PatientID, &e.OrganizationID,
			&e.Email, &e.SecondaryEmail,
			&e.EmailVerified, &e.NotificationsEnabled, &e.Bounced,
			&preferred, &e.LastEmailSent, &e.CreatedAt, &e.UpdatedAt,
			&e.PatientName,
		); err != nil {
			return nil, 0, err
		}
		e.Preferred = PreferredEmail(preferred)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	const countQ = `SELECT COUNT(*) FROM patient_email_profiles WHERE organization_id = $1`
	if err := r.pool.QueryRow(ctx, countQ, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *Repo) scanOne(row pgx.Row) (Profile, error) {
	var p Profile
	var preferred string
	err := row.Scan(
		&p.ID, &p.PatientID, &p.OrganizationID,
		&p.Email, &p.SecondaryEmail,
		&p.EmailVerified, &p.NotificationsEnabled, &p.Bounced,
		&preferred, &p.LastEmailSent, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, common.ErrNotFound("email profile")
		}
		return Profile{}, err
	}
	p.Preferred = PreferredEmail(preferred)
	return p, nil
}
