package models

import "time"

// ApprovalStatus is the single canonical approval state of a member profile.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRefused  ApprovalStatus = "refused"
	// StatusDeleted marks a soft-deleted profile: personal data wiped, the
	// discord_id kept so a returning member can be detected.
	StatusDeleted ApprovalStatus = "deleted"
)

// IsValid reports whether the value is a known approval status.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRefused, StatusDeleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to target is a permitted edge.
// Decisions only leave pending; reset returns any state to pending; soft
// delete is reachable from anywhere. There is no approved->refused shortcut.
func (s ApprovalStatus) CanTransitionTo(target ApprovalStatus) bool {
	switch target {
	case StatusApproved, StatusRefused:
		return s == StatusPending
	case StatusPending:
		// reset: allowed from any state, including pending (it also clears
		// the charter flag)
		return true
	case StatusDeleted:
		return s != StatusDeleted
	}
	return false
}

// Profile is a Discord member's registration profile, keyed by the permanent
// discord id. Username and display name follow Discord and may drift.
type Profile struct {
	DiscordID       int64          `json:"discord_id"`
	Username        string         `json:"username"`
	DisplayName     string         `json:"display_name"`
	Language        string         `json:"language"`
	CharterAccepted bool           `json:"charter_accepted"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`

	Location        *string  `json:"-"`
	LocationDisplay *string  `json:"location_display,omitempty"`
	Latitude        *float64 `json:"-"`
	Longitude       *float64 `json:"-"`

	LastConnection *time.Time `json:"last_connection,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasLocation reports whether precise coordinates are stored.
func (p *Profile) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// UsernameChange is one entry of a member's username history.
type UsernameChange struct {
	ID          int       `json:"id"`
	DiscordID   int64     `json:"discord_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	ChangedAt   time.Time `json:"changed_at"`
}
