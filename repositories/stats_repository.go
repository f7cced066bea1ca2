package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/thisispsg/community-bot/models"
)

var ErrStatsInvalidPlayer = errors.New("stats reference unknown player")

type StatsRepository interface {
	// Insert records one stats snapshot on the given executor, so capture
	// validation can commit the snapshot with the status change.
	Insert(ctx context.Context, exec SQLExecutor, stats *models.PlayerStats) error
	ListByPlayer(ctx context.Context, playerID int) ([]models.PlayerStats, error)
	LatestByPlayer(ctx context.Context, playerID int) (*models.PlayerStats, error)
}

type postgresStatsRepository struct {
	db *sql.DB
}

func NewPostgresStatsRepository(db *sql.DB) StatsRepository {
	return &postgresStatsRepository{db: db}
}

func (r *postgresStatsRepository) Insert(ctx context.Context, exec SQLExecutor, stats *models.PlayerStats) error {
	executor := exec
	if executor == nil {
		executor = r.db
	}
	err := executor.QueryRowContext(ctx, `
		INSERT INTO player_stats (player_id, character_name, character_level,
			agility, endurance, serve, volley, forehand, backhand, capture_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, recorded_at`,
		stats.PlayerID,
		stats.CharacterName,
		stats.CharacterLevel,
		stats.Agility,
		stats.Endurance,
		stats.Serve,
		stats.Volley,
		stats.Forehand,
		stats.Backhand,
		stats.CaptureID,
	).Scan(&stats.ID, &stats.RecordedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrStatsInvalidPlayer
		}
		return fmt.Errorf("failed to insert player stats: %w", err)
	}
	return nil
}

const statsColumns = `id, player_id, COALESCE(character_name, ''), COALESCE(character_level, 0),
	COALESCE(agility, 0), COALESCE(endurance, 0), COALESCE(serve, 0),
	COALESCE(volley, 0), COALESCE(forehand, 0), COALESCE(backhand, 0),
	capture_id, recorded_at`

func (r *postgresStatsRepository) ListByPlayer(ctx context.Context, playerID int) ([]models.PlayerStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+statsColumns+` FROM player_stats
		WHERE player_id = $1
		ORDER BY recorded_at DESC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player stats: %w", err)
	}
	defer rows.Close()

	all := make([]models.PlayerStats, 0)
	for rows.Next() {
		var s models.PlayerStats
		if err := scanStats(rows, &s); err != nil {
			return nil, err
		}
		all = append(all, s)
	}
	return all, rows.Err()
}

func (r *postgresStatsRepository) LatestByPlayer(ctx context.Context, playerID int) (*models.PlayerStats, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+statsColumns+` FROM player_stats
		WHERE player_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, playerID)

	var s models.PlayerStats
	if err := scanStats(row, &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func scanStats(row rowScanner, s *models.PlayerStats) error {
	err := row.Scan(
		&s.ID, &s.PlayerID, &s.CharacterName, &s.CharacterLevel,
		&s.Agility, &s.Endurance, &s.Serve, &s.Volley, &s.Forehand, &s.Backhand,
		&s.CaptureID, &s.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("failed to scan player stats: %w", err)
	}
	return nil
}
