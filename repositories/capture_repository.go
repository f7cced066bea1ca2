package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/thisispsg/community-bot/models"
)

var (
	ErrCaptureNotFound      = errors.New("capture not found")
	ErrCaptureInvalidMember = errors.New("capture references unknown member")
)

type CaptureRepository interface {
	Create(ctx context.Context, capture *models.Capture) error
	GetByID(ctx context.Context, id int) (*models.Capture, error)

	// ClaimNextPending atomically moves the oldest pending capture to
	// processing and returns it, or ErrCaptureNotFound when the queue is
	// empty. Concurrent workers never claim the same row.
	ClaimNextPending(ctx context.Context) (*models.Capture, error)

	SetCompleted(ctx context.Context, id int, result []byte) error
	SetFailed(ctx context.Context, id int, reason string) error
	SetDecision(ctx context.Context, exec SQLExecutor, id int, status models.CaptureStatus) error

	ListCompletedForMember(ctx context.Context, memberID int64) ([]models.Capture, error)
	CountByStatus(ctx context.Context) (map[models.CaptureStatus]int, error)
}

type postgresCaptureRepository struct {
	db *sql.DB
}

func NewPostgresCaptureRepository(db *sql.DB) CaptureRepository {
	return &postgresCaptureRepository{db: db}
}

func (r *postgresCaptureRepository) Create(ctx context.Context, capture *models.Capture) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO capture_queue (member_id, player_id, image_data, image_filename, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, submitted_at`,
		capture.MemberID,
		capture.PlayerID,
		capture.ImageData,
		nullIfEmpty(capture.ImageFilename),
		models.CapturePending,
	).Scan(&capture.ID, &capture.SubmittedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrCaptureInvalidMember
		}
		return fmt.Errorf("failed to enqueue capture: %w", err)
	}
	capture.Status = models.CapturePending
	return nil
}

const captureColumns = `id, member_id, player_id, image_filename, status,
	result_json, error_message, submitted_at, processed_at, validated_at`

func (r *postgresCaptureRepository) GetByID(ctx context.Context, id int) (*models.Capture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM capture_queue WHERE id = $1`, id)
	return scanCapture(row)
}

func (r *postgresCaptureRepository) ClaimNextPending(ctx context.Context) (*models.Capture, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE capture_queue SET status = $1
		WHERE id = (
			SELECT id FROM capture_queue
			WHERE status = $2
			ORDER BY submitted_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+captureColumns+`, image_data`,
		models.CaptureProcessing, models.CapturePending)

	var c models.Capture
	var filename sql.NullString
	var result []byte
	var errMsg sql.NullString
	var processedAt, validatedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.MemberID, &c.PlayerID, &filename, &c.Status,
		&result, &errMsg, &c.SubmittedAt, &processedAt, &validatedAt,
		&c.ImageData,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaptureNotFound
		}
		return nil, fmt.Errorf("failed to claim capture: %w", err)
	}

	applyCaptureNullables(&c, filename, result, errMsg, processedAt, validatedAt)
	return &c, nil
}

func (r *postgresCaptureRepository) SetCompleted(ctx context.Context, id int, result []byte) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE capture_queue
		SET status = $1, result_json = $2, processed_at = $3
		WHERE id = $4 AND status = $5`,
		models.CaptureCompleted, result, time.Now().UTC(), id, models.CaptureProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete capture: %w", err)
	}
	return checkAffectedRows(res, ErrCaptureNotFound)
}

func (r *postgresCaptureRepository) SetFailed(ctx context.Context, id int, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE capture_queue
		SET status = $1, error_message = $2, processed_at = $3
		WHERE id = $4 AND status IN ($5, $6)`,
		models.CaptureFailed, reason, time.Now().UTC(), id,
		models.CapturePending, models.CaptureProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark capture failed: %w", err)
	}
	return checkAffectedRows(res, ErrCaptureNotFound)
}

func (r *postgresCaptureRepository) SetDecision(ctx context.Context, exec SQLExecutor, id int, status models.CaptureStatus) error {
	executor := exec
	if executor == nil {
		executor = r.db
	}
	res, err := executor.ExecContext(ctx, `
		UPDATE capture_queue
		SET status = $1, validated_at = $2
		WHERE id = $3 AND status = $4`,
		status, time.Now().UTC(), id, models.CaptureCompleted)
	if err != nil {
		return fmt.Errorf("failed to record capture decision: %w", err)
	}
	return checkAffectedRows(res, ErrCaptureNotFound)
}

func (r *postgresCaptureRepository) ListCompletedForMember(ctx context.Context, memberID int64) ([]models.Capture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+captureColumns+` FROM capture_queue
		WHERE member_id = $1 AND status = $2
		ORDER BY submitted_at`,
		memberID, models.CaptureCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	captures := make([]models.Capture, 0)
	for rows.Next() {
		c, err := scanCaptureRow(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, *c)
	}
	return captures, rows.Err()
}

func (r *postgresCaptureRepository) CountByStatus(ctx context.Context) (map[models.CaptureStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM capture_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.CaptureStatus]int)
	for rows.Next() {
		var status models.CaptureStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan capture count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanCapture(row *sql.Row) (*models.Capture, error) {
	c, err := scanCaptureRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaptureNotFound
		}
		return nil, err
	}
	return c, nil
}

func scanCaptureRow(row rowScanner) (*models.Capture, error) {
	var c models.Capture
	var filename sql.NullString
	var result []byte
	var errMsg sql.NullString
	var processedAt, validatedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.MemberID, &c.PlayerID, &filename, &c.Status,
		&result, &errMsg, &c.SubmittedAt, &processedAt, &validatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan capture: %w", err)
	}

	applyCaptureNullables(&c, filename, result, errMsg, processedAt, validatedAt)
	return &c, nil
}

func applyCaptureNullables(c *models.Capture, filename sql.NullString, result []byte, errMsg sql.NullString, processedAt, validatedAt sql.NullTime) {
	c.ImageFilename = filename.String
	c.Result = result
	if errMsg.Valid {
		s := errMsg.String
		c.ErrorMessage = &s
	}
	if processedAt.Valid {
		t := processedAt.Time
		c.ProcessedAt = &t
	}
	if validatedAt.Valid {
		t := validatedAt.Time
		c.ValidatedAt = &t
	}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
