package models

import "time"

// Team ids are fixed reference data seeded by migration.
const (
	Team1ID = 1
	Team2ID = 2
)

type Team struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Player is an in-game character registered by a member for one team.
type Player struct {
	ID         int       `json:"id"`
	MemberID   int64     `json:"member_id"`
	TeamID     int       `json:"team_id"`
	PlayerName string    `json:"player_name"`
	CreatedAt  time.Time `json:"created_at"`

	TeamName string `json:"team_name,omitempty"`
}

// PlayerStats is a validated capture result merged into the permanent record.
type PlayerStats struct {
	ID             int       `json:"id"`
	PlayerID       int       `json:"player_id"`
	CharacterName  string    `json:"character_name"`
	CharacterLevel int       `json:"character_level"`
	Agility        int       `json:"agility"`
	Endurance      int       `json:"endurance"`
	Serve          int       `json:"serve"`
	Volley         int       `json:"volley"`
	Forehand       int       `json:"forehand"`
	Backhand       int       `json:"backhand"`
	CaptureID      *int      `json:"capture_id,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}
