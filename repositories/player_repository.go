package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/thisispsg/community-bot/models"
)

var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrPlayerNameConflict  = errors.New("player name already taken in this team")
	ErrPlayerInvalidMember = errors.New("player references unknown member")
)

type PlayerRepository interface {
	// ReplaceTeamRoster removes every player the member has on teamID and
	// inserts names in their place, on the given executor. Callers run it
	// inside a transaction so a failed insert leaves the old roster intact.
	ReplaceTeamRoster(ctx context.Context, exec SQLExecutor, memberID int64, teamID int, names []string) ([]models.Player, error)

	ListByMember(ctx context.Context, memberID int64) ([]models.Player, error)
	ListByMembers(ctx context.Context, memberIDs []int64) (map[int64][]models.Player, error)
	GetByID(ctx context.Context, id int) (*models.Player, error)
	FindByName(ctx context.Context, memberID int64, name string) (*models.Player, error)
	DeleteAllForMember(ctx context.Context, exec SQLExecutor, memberID int64) error
}

type postgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) PlayerRepository {
	return &postgresPlayerRepository{db: db}
}

func (r *postgresPlayerRepository) ReplaceTeamRoster(ctx context.Context, exec SQLExecutor, memberID int64, teamID int, names []string) ([]models.Player, error) {
	executor := exec
	if executor == nil {
		executor = r.db
	}

	if _, err := executor.ExecContext(ctx,
		`DELETE FROM players WHERE member_id = $1 AND team_id = $2`, memberID, teamID); err != nil {
		return nil, fmt.Errorf("failed to clear roster: %w", err)
	}

	players := make([]models.Player, 0, len(names))
	for _, name := range names {
		var p models.Player
		err := executor.QueryRowContext(ctx, `
			INSERT INTO players (member_id, team_id, player_name)
			VALUES ($1, $2, $3)
			RETURNING id, member_id, team_id, player_name, created_at`,
			memberID, teamID, name,
		).Scan(&p.ID, &p.MemberID, &p.TeamID, &p.PlayerName, &p.CreatedAt)
		if err != nil {
			return nil, mapPlayerInsertError(err, name)
		}
		players = append(players, p)
	}
	return players, nil
}

func mapPlayerInsertError(err error, name string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrPlayerNameConflict, name)
		case "23503":
			return ErrPlayerInvalidMember
		}
	}
	return fmt.Errorf("failed to insert player %q: %w", name, err)
}

const playerSelect = `
	SELECT p.id, p.member_id, p.team_id, p.player_name, p.created_at, t.name
	FROM players p
	JOIN teams t ON t.id = p.team_id`

func (r *postgresPlayerRepository) ListByMember(ctx context.Context, memberID int64) ([]models.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		playerSelect+` WHERE p.member_id = $1 ORDER BY p.team_id, LOWER(p.player_name)`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()
	return scanPlayers(rows)
}

func (r *postgresPlayerRepository) ListByMembers(ctx context.Context, memberIDs []int64) (map[int64][]models.Player, error) {
	if len(memberIDs) == 0 {
		return map[int64][]models.Player{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		playerSelect+` WHERE p.member_id = ANY($1) ORDER BY p.member_id, p.team_id, LOWER(p.player_name)`,
		pq.Array(memberIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	players, err := scanPlayers(rows)
	if err != nil {
		return nil, err
	}

	byMember := make(map[int64][]models.Player, len(memberIDs))
	for _, p := range players {
		byMember[p.MemberID] = append(byMember[p.MemberID], p)
	}
	return byMember, nil
}

func (r *postgresPlayerRepository) GetByID(ctx context.Context, id int) (*models.Player, error) {
	row := r.db.QueryRowContext(ctx, playerSelect+` WHERE p.id = $1`, id)

	var p models.Player
	err := row.Scan(&p.ID, &p.MemberID, &p.TeamID, &p.PlayerName, &p.CreatedAt, &p.TeamName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

func (r *postgresPlayerRepository) FindByName(ctx context.Context, memberID int64, name string) (*models.Player, error) {
	row := r.db.QueryRowContext(ctx,
		playerSelect+` WHERE p.member_id = $1 AND LOWER(p.player_name) = LOWER($2)`, memberID, name)

	var p models.Player
	err := row.Scan(&p.ID, &p.MemberID, &p.TeamID, &p.PlayerName, &p.CreatedAt, &p.TeamName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	return &p, nil
}

func (r *postgresPlayerRepository) DeleteAllForMember(ctx context.Context, exec SQLExecutor, memberID int64) error {
	executor := exec
	if executor == nil {
		executor = r.db
	}
	if _, err := executor.ExecContext(ctx,
		`DELETE FROM players WHERE member_id = $1`, memberID); err != nil {
		return fmt.Errorf("failed to delete players: %w", err)
	}
	return nil
}

func scanPlayers(rows *sql.Rows) ([]models.Player, error) {
	players := make([]models.Player, 0)
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.MemberID, &p.TeamID, &p.PlayerName, &p.CreatedAt, &p.TeamName); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}
