package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/identity"
)

// recordsJSON stores an identity's DNS record list as a JSONB column.
type recordsJSON []domain.DNSRecord

func (r recordsJSON) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]domain.DNSRecord(r))
}

func (r *recordsJSON) Scan(src interface{}) error {
	if src == nil {
		*r = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("records column: unsupported type %T", src)
	}
	return json.Unmarshal(raw, (*[]domain.DNSRecord)(r))
}

// IdentityRepo implements identity.Repository against PostgreSQL.
type IdentityRepo struct{ db *sql.DB }

// NewIdentityRepo creates a Postgres-backed identity repository.
func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{db: db} }

const identityColumns = `id, project_id, domain, mail_from_domain, status, records,
	       configuration_set, open_tracking, click_tracking, created_at, updated_at`

func (r *IdentityRepo) Get(ctx context.Context, projectID, id string) (*domain.Identity, error) {
	return r.getWhere(ctx, "id = $1 AND project_id = $2", id, projectID)
}

func (r *IdentityRepo) GetByDomain(ctx context.Context, projectID, domainName string) (*domain.Identity, error) {
	return r.getWhere(ctx, "domain = $1 AND project_id = $2", domainName, projectID)
}

func (r *IdentityRepo) getWhere(ctx context.Context, where string, args ...interface{}) (*domain.Identity, error) {
	ident := &domain.Identity{}
	var mailFrom sql.NullString
	var records recordsJSON
	err := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM sending_identities
		WHERE `+where, args...).Scan(
		&ident.ID, &ident.ProjectID, &ident.Domain, &mailFrom, &ident.Status, &records,
		&ident.ConfigurationSet, &ident.OpenTracking, &ident.ClickTracking,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if mailFrom.Valid {
		ident.MailFromDomain = &mailFrom.String
	}
	ident.Records = records
	return ident, nil
}

func (r *IdentityRepo) List(ctx context.Context, projectID string) ([]domain.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+identityColumns+`
		FROM sending_identities
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		var ident domain.Identity
		var mailFrom sql.NullString
		var records recordsJSON
		if err := rows.Scan(
			&ident.ID, &ident.ProjectID, &ident.Domain, &mailFrom, &ident.Status, &records,
			&ident.ConfigurationSet, &ident.OpenTracking, &ident.ClickTracking,
			&ident.CreatedAt, &ident.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if mailFrom.Valid {
			ident.MailFromDomain = &mailFrom.String
		}
		ident.Records = records
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (r *IdentityRepo) Create(ctx context.Context, ident *domain.Identity) error {
	var mailFrom sql.NullString
	if ident.MailFromDomain != nil {
		mailFrom = sql.NullString{String: *ident.MailFromDomain, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sending_identities
			(id, project_id, domain, mail_from_domain, status, records,
			 configuration_set, open_tracking, click_tracking, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, ident.ID, ident.ProjectID, ident.Domain, mailFrom, ident.Status,
		recordsJSON(ident.Records), ident.ConfigurationSet, ident.OpenTracking, ident.ClickTracking)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (r *IdentityRepo) Update(ctx context.Context, ident *domain.Identity) error {
	var mailFrom sql.NullString
	if ident.MailFromDomain != nil {
		mailFrom = sql.NullString{String: *ident.MailFromDomain, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_identities
		SET mail_from_domain = $1, status = $2, records = $3, configuration_set = $4,
		    open_tracking = $5, click_tracking = $6, updated_at = NOW()
		WHERE id = $7 AND project_id = $8
	`, mailFrom, ident.Status, recordsJSON(ident.Records), ident.ConfigurationSet,
		ident.OpenTracking, ident.ClickTracking, ident.ID, ident.ProjectID)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (r *IdentityRepo) Delete(ctx context.Context, projectID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sending_identities WHERE id = $1 AND project_id = $2
	`, id, projectID)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}
