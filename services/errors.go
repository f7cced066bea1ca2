package services

import "errors"

// Errors shared across services and mapped by the transport layers.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrMemberNotFound  = errors.New("member not found")

	// Moderation
	ErrAlreadyApproved      = errors.New("profile is already approved")
	ErrAlreadyRefused       = errors.New("profile is already refused")
	ErrCharterNotAccepted   = errors.New("charter has not been accepted")
	ErrInvalidTransition    = errors.New("status transition not permitted")
	ErrSelfModeration       = errors.New("sages cannot moderate themselves")
	ErrMissingSageCapability = errors.New("sage capability required")

	// Rosters
	ErrNoValidPlayerNames = errors.New("no valid player names provided")
	ErrPlayerNameTaken    = errors.New("player name already taken in this team")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrUnknownTeam        = errors.New("unknown team")

	// Captures
	ErrCaptureNotFound     = errors.New("capture not found")
	ErrCaptureNotOwned     = errors.New("capture belongs to another member")
	ErrCaptureWrongState   = errors.New("capture is not in the required state")
	ErrCaptureEmptyImage   = errors.New("capture image is empty")
	ErrCaptureImageTooBig  = errors.New("capture image exceeds the size limit")
	ErrCaptureBadImageType = errors.New("capture image type not supported")
	ErrCaptureBadResult    = errors.New("capture result payload is invalid")

	// Location
	ErrLocationNotFound = errors.New("address could not be resolved")
	ErrLocationInvalid  = errors.New("address is invalid")
)
