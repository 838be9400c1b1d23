package template

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/patient-email-api/internal/common"
)

const uniqueViolation = "23505"

const templateColumns = `
	id, organization_id, name, subject, html_content,
	COALESCE(text_content, ''), is_active, COALESCE(description, ''),
	created_at, updated_at
`

// Repo persists the organization-scoped template catalog.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a template repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Create inserts a template. The name is expected to be normalized already.
func (r *Repo) Create(ctx context.Context, t EmailTemplate) (EmailTemplate, error) {
	const q = `
		INSERT INTO patient_email_templates
			(id, organization_id, name, subject, html_content, text_content, is_active, description)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))
		RETURNING ` + templateColumns
	created, err := r.scanOne(r.pool.QueryRow(ctx, q,
		uuid.New(), t.OrganizationID, t.Name, t.Subject, t.HTMLContent, t.TextContent, t.IsActive, t.Description))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return EmailTemplate{}, common.NewAppError("CONFLICT", "a template with that name already exists", 409, err)
		}
		return EmailTemplate{}, err
	}
	return created, nil
}

// Update rewrites all editable fields of an existing template.
func (r *Repo) Update(ctx context.Context, t EmailTemplate) (EmailTemplate, error) {
	const q = `
		UPDATE patient_email_templates
		SET name = $3, subject = $4, html_content = $5,
		    text_content = NULLIF($6, ''), is_active = $7,
		    description = NULLIF($8, ''), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + templateColumns
	updated, err := r.scanOne(r.pool.QueryRow(ctx, q,
		t.ID, t.OrganizationID, t.Name, t.Subject, t.HTMLContent, t.TextContent, t.IsActive, t.Description))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return EmailTemplate{}, common.NewAppError("CONFLICT", "a template with that name already exists", 409, err)
		}
		return EmailTemplate{}, err
	}
	return updated, nil
}

// GetByID fetches a template within an organization.
func (r *Repo) GetByID(ctx context.Context, id, orgID uuid.UUID) (EmailTemplate, error) {
	q := `SELECT ` + templateColumns + ` FROM patient_email_templates WHERE id = $1 AND organization_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, q, id, orgID))
}

// GetActiveByName resolves an active template by its normalized name. Used by
// the send engine when composing templated mail.
func (r *Repo) GetActiveByName(ctx context.Context, name string, orgID uuid.UUID) (EmailTemplate, error) {
	q := `SELECT ` + templateColumns + ` FROM patient_email_templates
		WHERE name = $1 AND organization_id = $2 AND is_active`
	return r.scanOne(r.pool.QueryRow(ctx, q, NormalizeName(name), orgID))
}

// ListByOrg returns the organization's templates ordered by name.
func (r *Repo) ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]EmailTemplate, int, error) {
	q := `SELECT ` + templateColumns + ` FROM patient_email_templates
		WHERE organization_id = $1 ORDER BY name LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	templates := make([]EmailTemplate, 0, limit)
	for rows.Next() {
		t, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	const countQ = `SELECT COUNT(*) FROM patient_email_templates WHERE organization_id = $1`
	if err := r.pool.QueryRow(ctx, countQ, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return templates, total, nil
}

func (r *Repo) scanOne(row pgx.Row) (EmailTemplate, error) {
	t, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EmailTemplate{}, common.ErrNotFound("email template")
		}
		return EmailTemplate{}, err
	}
	return t, nil
}

func scanRow(row pgx.Row) (EmailTemplate, error) {
	var t EmailTemplate
	err := row.Scan(
		&t.ID, &t.OrganizationID, &t.Name, &t.Subject, &t.HTMLContent,
		&t.TextContent, &t.IsActive, &t.Description,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
