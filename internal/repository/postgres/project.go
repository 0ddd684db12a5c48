package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/service/send"
)

// ProjectRepo resolves API keys to projects. It implements auth.Store.
type ProjectRepo struct{ db *sql.DB }

// NewProjectRepo creates a Postgres-backed project repository.
func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{db: db} }

func (r *ProjectRepo) ResolveKey(ctx context.Context, keyHash string) (string, error) {
	var projectID string
	err := r.db.QueryRowContext(ctx, `
		SELECT project_id FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL
	`, keyHash).Scan(&projectID)
	if err == sql.ErrNoRows {
		return "", apperr.New(apperr.NotFound, "api key not found")
	}
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	return projectID, nil
}

// ProjectCredentials returns the project's stored SES access keys. A
// project without keys on file reads as not found.
func (r *ProjectRepo) ProjectCredentials(ctx context.Context, projectID string) (send.Credentials, error) {
	var creds send.Credentials
	err := r.db.QueryRowContext(ctx, `
		SELECT ses_access_key, ses_secret_key FROM projects
		WHERE id = $1 AND ses_access_key IS NOT NULL AND ses_secret_key IS NOT NULL
	`, projectID).Scan(&creds.AccessKey, &creds.SecretKey)
	if err == sql.ErrNoRows {
		return send.Credentials{}, apperr.New(apperr.NotFound, "project sending credentials not configured")
	}
	if err != nil {
		return send.Credentials{}, fmt.Errorf("resolve project credentials: %w", err)
	}
	return creds, nil
}

// CreateKey stores the hash of a freshly generated key for a project.
func (r *ProjectRepo) CreateKey(ctx context.Context, id, projectID, keyHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, project_id, key_hash, created_at)
		VALUES ($1, $2, $3, NOW())
	`, id, projectID, keyHash)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}
