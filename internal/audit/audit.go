// Package audit persists a per-organization trail of outbound email
// attempts. Entries are written best-effort; a failed audit insert never
// blocks or reverses a send.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Entry is one recorded send attempt, successful or not.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ActorUserID    string    `json:"actor_user_id"`
	TemplateName   string    `json:"template_name"`
	Recipient      string    `json:"recipient,omitempty"`
	Sent           bool      `json:"sent"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repo writes and reads the email_audit_log table.
type Repo struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepo builds an audit repository.
func NewRepo(pool *pgxpool.Pool, log zerolog.Logger) *Repo {
	return &Repo{pool: pool, log: log}
}

// Record inserts an attempt. Errors are logged and swallowed so the send
// path stays unaffected by audit storage trouble.
func (r *Repo) Record(ctx context.Context, e Entry) {
	q := `INSERT INTO email_audit_log
		(organization_id, patient_id, actor_user_id, template_name, recipient, sent, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.pool.Exec(ctx, q,
		e.OrganizationID, e.PatientID, e.ActorUserID, e.TemplateName, e.Recipient, e.Sent, e.Reason,
	); err != nil {
		r.log.Error().Err(err).
			Str("patient_id", e.PatientID.String()).
			Str("template", e.TemplateName).
			Msg("audit record failed")
	}
}

// ListByPatient returns the most recent attempts for a patient, newest first.
func (r *Repo) ListByPatient(ctx context.Context, patientID, orgID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, organization_id, patient_id, actor_user_id, template_name, recipient, sent, reason, created_at
		FROM email_audit_log
		WHERE patient_id = $1 AND organization_id = $2
		ORDER BY created_at DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, q, patientID, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.PatientID, &e.ActorUserID,
			&e.TemplateName, &e.Recipient, &e.Sent, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
