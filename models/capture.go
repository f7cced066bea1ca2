package models

import (
	"encoding/json"
	"time"
)

// CaptureStatus is the processing state of a submitted screenshot.
type CaptureStatus string

const (
	CapturePending    CaptureStatus = "pending"
	CaptureProcessing CaptureStatus = "processing"
	CaptureCompleted  CaptureStatus = "completed"
	CaptureValidated  CaptureStatus = "validated"
	CaptureRejected   CaptureStatus = "rejected"
	CaptureFailed     CaptureStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s CaptureStatus) IsTerminal() bool {
	switch s {
	case CaptureValidated, CaptureRejected, CaptureFailed:
		return true
	}
	return false
}

// CanTransitionTo enforces the total order
// pending -> processing -> completed -> {validated|rejected}, with failed
// reachable from pending and processing only: once a result reached the
// member, the decision is theirs. Statuses never regress.
func (s CaptureStatus) CanTransitionTo(target CaptureStatus) bool {
	switch target {
	case CaptureProcessing:
		return s == CapturePending
	case CaptureCompleted:
		return s == CaptureProcessing
	case CaptureValidated, CaptureRejected:
		return s == CaptureCompleted
	case CaptureFailed:
		return s == CapturePending || s == CaptureProcessing
	}
	return false
}

// Capture is one queued screenshot awaiting analysis and member validation.
type Capture struct {
	ID            int             `json:"id"`
	MemberID      int64           `json:"member_id"`
	PlayerID      *int            `json:"player_id,omitempty"`
	ImageData     []byte          `json:"-"`
	ImageFilename string          `json:"image_filename,omitempty"`
	Status        CaptureStatus   `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	ValidatedAt   *time.Time      `json:"validated_at,omitempty"`
}

// CaptureResult is the structured payload the analysis worker reports back.
type CaptureResult struct {
	CharacterName  string `json:"character_name"`
	CharacterLevel int    `json:"character_level"`
	Stats          struct {
		Agility   int `json:"agility"`
		Endurance int `json:"endurance"`
		Serve     int `json:"serve"`
		Volley    int `json:"volley"`
		Forehand  int `json:"forehand"`
		Backhand  int `json:"backhand"`
	} `json:"stats"`
}
