package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thisispsg/community-bot/db"
	"github.com/thisispsg/community-bot/metrics"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
)

// maxCaptureImageBytes bounds submitted screenshots at 10 MB.
const maxCaptureImageBytes = 10 << 20

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	gifMagic  = []byte("GIF8")
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// validImage accepts the screenshot formats members actually post (png,
// jpeg, gif, webp), checked by magic bytes rather than filename.
func validImage(image []byte) bool {
	if bytes.HasPrefix(image, pngMagic) ||
		bytes.HasPrefix(image, jpegMagic) ||
		bytes.HasPrefix(image, gifMagic) {
		return true
	}
	return len(image) >= 12 && bytes.HasPrefix(image, riffMagic) && bytes.Equal(image[8:12], webpMagic)
}

// CaptureObserver is notified after a capture reaches a member-facing state.
// The bot uses it to DM the member; notifications run after the database
// write succeeds.
type CaptureObserver interface {
	CaptureCompleted(ctx context.Context, capture *models.Capture)
	CaptureFailed(ctx context.Context, capture *models.Capture)
}

// CaptureService runs the screenshot analysis queue: members submit images,
// an external worker claims and analyzes them, members validate or reject the
// extracted stats.
type CaptureService struct {
	captures    repositories.CaptureRepository
	players     repositories.PlayerRepository
	stats       repositories.StatsRepository
	tx          db.TxRunner
	broadcaster Broadcaster
	observer    CaptureObserver
	logger      *slog.Logger
}

// SetObserver installs the member notification hook. Set once at startup,
// before traffic.
func (s *CaptureService) SetObserver(o CaptureObserver) {
	s.observer = o
}

func NewCaptureService(
	captures repositories.CaptureRepository,
	players repositories.PlayerRepository,
	stats repositories.StatsRepository,
	tx db.TxRunner,
	broadcaster Broadcaster,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		captures:    captures,
		players:     players,
		stats:       stats,
		tx:          tx,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Submit enqueues a screenshot for analysis. playerID may be nil when the
// member did not name a player; the match happens at validation time instead.
func (s *CaptureService) Submit(ctx context.Context, memberID int64, playerID *int, image []byte, filename string) (*models.Capture, error) {
	if len(image) == 0 {
		return nil, ErrCaptureEmptyImage
	}
	if len(image) > maxCaptureImageBytes {
		return nil, ErrCaptureImageTooBig
	}
	if !validImage(image) {
		return nil, ErrCaptureBadImageType
	}

	capture := &models.Capture{
		MemberID:      memberID,
		PlayerID:      playerID,
		ImageData:     image,
		ImageFilename: filename,
	}
	if err := s.captures.Create(ctx, capture); err != nil {
		return nil, err
	}

	metrics.CapturesTotal.WithLabelValues(string(models.CapturePending)).Inc()
	s.logger.Info("capture queued", "capture_id", capture.ID, "member_id", memberID)
	s.broadcast("capture", capture)
	return capture, nil
}

// ClaimNext hands the oldest pending capture to a worker, moving it to
// processing. Returns ErrCaptureNotFound when the queue is empty.
func (s *CaptureService) ClaimNext(ctx context.Context) (*models.Capture, error) {
	capture, err := s.captures.ClaimNextPending(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrCaptureNotFound) {
			return nil, ErrCaptureNotFound
		}
		return nil, err
	}
	metrics.CapturesTotal.WithLabelValues(string(models.CaptureProcessing)).Inc()
	return capture, nil
}

// Complete stores the worker's analysis result and moves the capture to
// completed, awaiting the member's decision.
func (s *CaptureService) Complete(ctx context.Context, id int, result models.CaptureResult) (*models.Capture, error) {
	if result.CharacterName == "" {
		return nil, fmt.Errorf("%w: character name missing", ErrCaptureBadResult)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureBadResult, err)
	}

	if err := s.captures.SetCompleted(ctx, id, raw); err != nil {
		if errors.Is(err, repositories.ErrCaptureNotFound) {
			return nil, ErrCaptureWrongState
		}
		return nil, err
	}

	capture, err := s.captures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.CapturesTotal.WithLabelValues(string(models.CaptureCompleted)).Inc()
	s.broadcast("capture", capture)
	if s.observer != nil {
		s.observer.CaptureCompleted(ctx, capture)
	}
	return capture, nil
}

// Fail marks a pending or processing capture failed with reason. Once a
// capture reached the member (completed or later), it cannot fail anymore.
func (s *CaptureService) Fail(ctx context.Context, id int, reason string) (*models.Capture, error) {
	if err := s.captures.SetFailed(ctx, id, reason); err != nil {
		if errors.Is(err, repositories.ErrCaptureNotFound) {
			return nil, ErrCaptureWrongState
		}
		return nil, err
	}

	capture, err := s.captures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.CapturesTotal.WithLabelValues(string(models.CaptureFailed)).Inc()
	s.logger.Warn("capture failed", "capture_id", id, "reason", reason)
	s.broadcast("capture", capture)
	if s.observer != nil {
		s.observer.CaptureFailed(ctx, capture)
	}
	return capture, nil
}

/// Validate records the member's acceptance of a completed capture: the
// extracted stats are merged into player_stats and the capture moves to
// validated, atomically.
func (s *CaptureService) Validate(ctx context.Context, memberID int64, id int) (*models.PlayerStats, error) {
	capture, err := s.ownedCompleted(ctx, memberID, id)
	if err != nil {
		return nil, err
	}

	var result models.CaptureResult
	if err := json.Unmarshal(capture.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureBadResult, err)
	}

	playerID, err := s.resolvePlayer(ctx, capture, result.CharacterName)
	if err != nil {
		return nil, err
	}

	stats := &models.PlayerStats{
		PlayerID:       playerID,
		CharacterName:  result.CharacterName,
		CharacterLevel: result.CharacterLevel,
		Agility:        result.Stats.Agility,
		Endurance:      result.Stats.Endurance,
		Serve:          result.Stats.Serve,
		Volley:         result.Stats.Volley,
		Forehand:       result.Stats.Forehand,
		Backhand:       result.Stats.Backhand,
		CaptureID:      &capture.ID,
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.captures.SetDecision(ctx, exec, id, models.CaptureValidated); err != nil {
			if errors.Is(err, repositories.ErrCaptureNotFound) {
				return ErrCaptureWrongState
			}
			return err
		}
		return s.stats.Insert(ctx, exec, stats)
	})
	if err != nil {
		return nil, err
	}

	metrics.CapturesTotal.WithLabelValues(string(models.CaptureValidated)).Inc()
	s.logger.Info("capture validated",
		"capture_id", id, "member_id", memberID, "player_id", playerID)
	s.broadcast("capture", map[string]any{"id": id, "status": models.CaptureValidated})
	return stats, nil
}

// Reject discards a completed capture without touching player stats.
func (s *CaptureService) Reject(ctx context.Context, memberID int64, id int) error {
	if _, err := s.ownedCompleted(ctx, memberID, id); err != nil {
		return err
	}
	if err := s.captures.SetDecision(ctx, nil, id, models.CaptureRejected); err != nil {
		if errors.Is(err, repositories.ErrCaptureNotFound) {
			return ErrCaptureWrongState
		}
		return err
	}
	metrics.CapturesTotal.WithLabelValues(string(models.CaptureRejected)).Inc()
	s.broadcast("capture", map[string]any{"id": id, "status": models.CaptureRejected})
	return nil
}

// ListAwaiting returns the member's captures waiting for a validate/reject
// decision.
func (s *CaptureService) ListAwaiting(ctx context.Context, memberID int64) ([]models.Capture, error) {
	return s.captures.ListCompletedForMember(ctx, memberID)
}

// QueueDepth reports captures per status, for the admin surface.
func (s *CaptureService) QueueDepth(ctx context.Context) (map[models.CaptureStatus]int, error) {
	return s.captures.CountByStatus(ctx)
}

func (s *CaptureService) ownedCompleted(ctx context.Context, memberID int64, id int) (*models.Capture, error) {
	capture, err := s.captures.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrCaptureNotFound) {
			return nil, ErrCaptureNotFound
		}
		return nil, err
	}
	if capture.MemberID != memberID {
		return nil, ErrCaptureNotOwned
	}
	if capture.Status != models.CaptureCompleted {
		return nil, ErrCaptureWrongState
	}
	return capture, nil
}

// resolvePlayer picks the player the stats belong to: the one named at
// submission, otherwise the member's player matching the recognized
// character name.
func (s *CaptureService) resolvePlayer(ctx context.Context, capture *models.Capture, characterName string) (int, error) {
	if capture.PlayerID != nil {
		return *capture.PlayerID, nil
	}
	player, err := s.players.FindByName(ctx, capture.MemberID, characterName)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return 0, ErrPlayerNotFound
		}
		return 0, err
	}
	return player.ID, nil
}

func (s *CaptureService) broadcast(event string, payload any) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(event, payload)
	}
}
