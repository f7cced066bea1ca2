package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thisispsg/community-bot/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, discordID int64) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)

	// UpdateIdentity refreshes username/display name and records the old
	// username in username_history, all on the given executor.
	UpdateIdentity(ctx context.Context, exec SQLExecutor, discordID int64, username, displayName string) error
	Touch(ctx context.Context, discordID int64, at time.Time) error

	UpdateLanguage(ctx context.Context, discordID int64, language string) error
	SetCharterAccepted(ctx context.Context, discordID int64, accepted bool) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, discordID int64, status models.ApprovalStatus) error
	ResetForReregistration(ctx context.Context, exec SQLExecutor, discordID int64) error

	SetLocation(ctx context.Context, discordID int64, location, display string, lat, lon float64) error
	ClearLocation(ctx context.Context, exec SQLExecutor, discordID int64) error

	ListPending(ctx context.Context) ([]models.Profile, error)
	ListVisible(ctx context.Context) ([]models.Profile, error)
	ListWithLocation(ctx context.Context) ([]models.Profile, error)
	UsernameHistory(ctx context.Context, discordID int64) ([]models.UsernameChange, error)

	// SoftDelete wipes personal fields (username, display name, location,
	// username history) but keeps the discord id, marking the profile deleted.
	SoftDelete(ctx context.Context, exec SQLExecutor, discordID int64) error
}

type postgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) ProfileRepository {
	return &postgresProfileRepository{db: db}
}

const profileColumns = `discord_id, username, display_name, language, charter_accepted,
	approval_status, location, location_display, latitude, longitude,
	last_connection, created_at`

func (r *postgresProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO user_profile (discord_id, username, display_name, language, charter_accepted, approval_status, last_connection)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		profile.DiscordID,
		profile.Username,
		profile.DisplayName,
		profile.Language,
		profile.CharterAccepted,
		profile.ApprovalStatus,
		profile.LastConnection,
	).Scan(&profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *postgresProfileRepository) GetByID(ctx context.Context, discordID int64) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profile WHERE discord_id = $1`
	return r.scanProfile(r.db.QueryRowContext(ctx, query, discordID))
}

func (r *postgresProfileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profile WHERE LOWER(username) = LOWER($1)`
	return r.scanProfile(r.db.QueryRowContext(ctx, query, username))
}

func (r *postgresProfileRepository) UpdateIdentity(ctx context.Context, exec SQLExecutor, discordID int64, username, displayName string) error {
	executor := r.executor(exec)

	row := executor.QueryRowContext(ctx,
		`SELECT username, display_name FROM user_profile WHERE discord_id = $1`, discordID)
	var oldUsername string
	var oldDisplay sql.NullString
	if err := row.Scan(&oldUsername, &oldDisplay); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to load identity for %d: %w", discordID, err)
	}

	if oldUsername == username && oldDisplay.String == displayName {
		return nil
	}

	if oldUsername != username {
		if _, err := executor.ExecContext(ctx,
			`INSERT INTO username_history (discord_id, username, display_name) VALUES ($1, $2, $3)`,
			discordID, oldUsername, oldDisplay.String); err != nil {
			return fmt.Errorf("failed to record username history: %w", err)
		}
	}

	result, err := executor.ExecContext(ctx,
		`UPDATE user_profile SET username = $1, display_name = $2 WHERE discord_id = $3`,
		username, displayName, discordID)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) Touch(ctx context.Context, discordID int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_profile SET last_connection = $1 WHERE discord_id = $2`, at, discordID)
	if err != nil {
		return fmt.Errorf("failed to touch profile: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) UpdateLanguage(ctx context.Context, discordID int64, language string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_profile SET language = $1 WHERE discord_id = $2`, language, discordID)
	if err != nil {
		return fmt.Errorf("failed to update language: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) SetCharterAccepted(ctx context.Context, discordID int64, accepted bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_profile SET charter_accepted = $1 WHERE discord_id = $2`, accepted, discordID)
	if err != nil {
		return fmt.Errorf("failed to update charter flag: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, discordID int64, status models.ApprovalStatus) error {
	result, err := r.executor(exec).ExecContext(ctx,
		`UPDATE user_profile SET approval_status = $1 WHERE discord_id = $2`, status, discordID)
	if err != nil {
		return fmt.Errorf("failed to update approval status: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) ResetForReregistration(ctx context.Context, exec SQLExecutor, discordID int64) error {
	result, err := r.executor(exec).ExecContext(ctx,
		`UPDATE user_profile SET approval_status = $1, charter_accepted = FALSE WHERE discord_id = $2`,
		models.StatusPending, discordID)
	if err != nil {
		return fmt.Errorf("failed to reset profile: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) SetLocation(ctx context.Context, discordID int64, location, display string, lat, lon float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_profile
		SET location = $1, location_display = $2, latitude = $3, longitude = $4
		WHERE discord_id = $5`,
		location, display, lat, lon, discordID)
	if err != nil {
		return fmt.Errorf("failed to set location: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) ClearLocation(ctx context.Context, exec SQLExecutor, discordID int64) error {
	result, err := r.executor(exec).ExecContext(ctx, `
		UPDATE user_profile
		SET location = NULL, location_display = NULL, latitude = NULL, longitude = NULL
		WHERE discord_id = $1`, discordID)
	if err != nil {
		return fmt.Errorf("failed to clear location: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) ListPending(ctx context.Context) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM user_profile
		WHERE approval_status = $1 AND charter_accepted = TRUE
		ORDER BY created_at DESC`
	return r.listProfiles(ctx, query, models.StatusPending)
}

func (r *postgresProfileRepository) ListVisible(ctx context.Context) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM user_profile
		WHERE approval_status != $1
		ORDER BY last_connection DESC NULLS LAST`
	return r.listProfiles(ctx, query, models.StatusDeleted)
}

func (r *postgresProfileRepository) ListWithLocation(ctx context.Context) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM user_profile
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND approval_status != $1
		ORDER BY username ASC`
	return r.listProfiles(ctx, query, models.StatusDeleted)
}

func (r *postgresProfileRepository) UsernameHistory(ctx context.Context, discordID int64) ([]models.UsernameChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, discord_id, username, COALESCE(display_name, ''), changed_at
		FROM username_history
		WHERE discord_id = $1
		ORDER BY changed_at DESC`, discordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list username history: %w", err)
	}
	defer rows.Close()

	changes := make([]models.UsernameChange, 0)
	for rows.Next() {
		var c models.UsernameChange
		if err := rows.Scan(&c.ID, &c.DiscordID, &c.Username, &c.DisplayName, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan username change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *postgresProfileRepository) SoftDelete(ctx context.Context, exec SQLExecutor, discordID int64) error {
	executor := r.executor(exec)
	if _, err := executor.ExecContext(ctx,
		`DELETE FROM username_history WHERE discord_id = $1`, discordID); err != nil {
		return fmt.Errorf("failed to delete username history: %w", err)
	}
	result, err := executor.ExecContext(ctx, `
		UPDATE user_profile SET
			approval_status = $1,
			username = '',
			display_name = NULL,
			charter_accepted = FALSE,
			language = 'FR',
			location = NULL,
			location_display = NULL,
			latitude = NULL,
			longitude = NULL
		WHERE discord_id = $2`,
		models.StatusDeleted, discordID)
	if err != nil {
		return fmt.Errorf("failed to soft delete profile: %w", err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresProfileRepository) executor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresProfileRepository) listProfiles(ctx context.Context, query string, args ...interface{}) ([]models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]models.Profile, 0)
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *postgresProfileRepository) scanProfile(row *sql.Row) (*models.Profile, error) {
	p, err := scanProfileRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProfileRow(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var displayName sql.NullString
	var lastConnection sql.NullTime

	err := row.Scan(
		&p.DiscordID,
		&p.Username,
		&displayName,
		&p.Language,
		&p.CharterAccepted,
		&p.ApprovalStatus,
		&p.Location,
		&p.LocationDisplay,
		&p.Latitude,
		&p.Longitude,
		&lastConnection,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.DisplayName = displayName.String
	if lastConnection.Valid {
		t := lastConnection.Time
		p.LastConnection = &t
	}
	return &p, nil
}
