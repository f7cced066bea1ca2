package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/thisispsg/community-bot/db"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
)

const (
	playerNameMinLen = 2
	playerNameMaxLen = 32
)

var playerNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _.'-]*$`)

// RosterResult reports what a roster replacement did: the saved players plus
// the raw names that were dropped and why.
type RosterResult struct {
	Players    []models.Player
	Invalid    []string
	Duplicates []string
}

// RosterService manages the player lists members register per team.
type RosterService struct {
	players repositories.PlayerRepository
	teams   repositories.TeamRepository
	tx      db.TxRunner
	logger  *slog.Logger
}

func NewRosterService(
	players repositories.PlayerRepository,
	teams repositories.TeamRepository,
	tx db.TxRunner,
	logger *slog.Logger,
) *RosterService {
	return &RosterService{players: players, teams: teams, tx: tx, logger: logger}
}

// ReplaceTeamRoster replaces the member's roster on teamID with the parsed,
// validated names from rawInput (comma separated). The delete and all inserts
// run in one transaction: on any failure the previous roster stays untouched.
// A name already taken by another member surfaces as ErrPlayerNameTaken.
func (s *RosterService) ReplaceTeamRoster(ctx context.Context, memberID int64, teamID int, rawInput string) (*RosterResult, error) {
	if _, err := s.teams.GetByID(ctx, teamID); err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrUnknownTeam
		}
		return nil, err
	}

	result := &RosterResult{}
	names := parsePlayerNames(rawInput, result)
	if len(names) == 0 {
		return nil, ErrNoValidPlayerNames
	}

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		players, err := s.players.ReplaceTeamRoster(ctx, exec, memberID, teamID, names)
		if err != nil {
			return err
		}
		result.Players = players
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNameConflict) {
			return nil, ErrPlayerNameTaken
		}
		return nil, err
	}

	s.logger.Info("roster replaced",
		"member_id", memberID, "team_id", teamID, "players", len(result.Players))
	return result, nil
}

// ListByMember returns the member's players across both teams.
func (s *RosterService) ListByMember(ctx context.Context, memberID int64) ([]models.Player, error) {
	return s.players.ListByMember(ctx, memberID)
}

// FindByName resolves one of the member's players by name.
func (s *RosterService) FindByName(ctx context.Context, memberID int64, name string) (*models.Player, error) {
	p, err := s.players.FindByName(ctx, memberID, name)
	if errors.Is(err, repositories.ErrPlayerNotFound) {
		return nil, ErrPlayerNotFound
	}
	return p, err
}

// parsePlayerNames splits raw comma-separated input, trims each name,
// drops invalid ones and case-insensitive duplicates, preserving order.
func parsePlayerNames(raw string, result *RosterResult) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if !validPlayerName(name) {
			result.Invalid = append(result.Invalid, name)
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			result.Duplicates = append(result.Duplicates, name)
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

func validPlayerName(name string) bool {
	if len(name) < playerNameMinLen || len(name) > playerNameMaxLen {
		return false
	}
	return playerNamePattern.MatchString(name)
}
