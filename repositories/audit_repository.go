package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thisispsg/community-bot/models"
)

type AuditRepository interface {
	// Insert writes one audit entry on the given executor, so moderation
	// services can commit the entry atomically with the action it records.
	Insert(ctx context.Context, exec SQLExecutor, entry *models.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
	ListForTarget(ctx context.Context, targetUsername string) ([]models.AuditEntry, error)

	// DeleteForTarget removes every entry recorded against a member, for
	// data-erasure requests.
	DeleteForTarget(ctx context.Context, exec SQLExecutor, targetID int64) error
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) Insert(ctx context.Context, exec SQLExecutor, entry *models.AuditEntry) error {
	executor := exec
	if executor == nil {
		executor = r.db
	}
	err := executor.QueryRowContext(ctx, `
		INSERT INTO audit_log (action, target_id, target_username, actor_id, actor_username, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		entry.Action,
		entry.TargetID,
		entry.TargetUsername,
		entry.ActorID,
		entry.ActorUsername,
		entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *postgresAuditRepository) DeleteForTarget(ctx context.Context, exec SQLExecutor, targetID int64) error {
	executor := exec
	if executor == nil {
		executor = r.db
	}
	if _, err := executor.ExecContext(ctx,
		`DELETE FROM audit_log WHERE target_id = $1`, targetID); err != nil {
		return fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return nil
}

const auditColumns = `id, action, target_id, target_username, actor_id, actor_username, details, created_at`

func (r *postgresAuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func (r *postgresAuditRepository) ListForTarget(ctx context.Context, targetUsername string) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE LOWER(target_username) = LOWER($1)
		ORDER BY created_at DESC`, targetUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]models.AuditEntry, error) {
	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.Action, &e.TargetID, &e.TargetUsername,
			&e.ActorID, &e.ActorUsername, &e.Details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
