package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/thisispsg/community-bot/db"
	"github.com/thisispsg/community-bot/metrics"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
)

// Broadcaster publishes moderation events to live listeners (the admin
// websocket hub). Publishing happens after commit only.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Actor identifies who performs a moderation action. Sage is set by the
// transport layer from the member's roles, never from user input.
type Actor struct {
	ID       int64
	Username string
	Sage     bool
}

// Decision is the committed outcome of a moderation action.
type Decision struct {
	Action  models.AuditAction
	Profile *models.Profile
	Entry   models.AuditEntry
}

// ModerationService applies sage decisions to member profiles. Every action
// commits the status change and its audit entry in one transaction: either
// both land or neither does.
type ModerationService struct {
	profiles    repositories.ProfileRepository
	players     repositories.PlayerRepository
	audit       repositories.AuditRepository
	tx          db.TxRunner
	cache       *ProfileService
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewModerationService(
	profiles repositories.ProfileRepository,
	players repositories.PlayerRepository,
	audit repositories.AuditRepository,
	tx db.TxRunner,
	cache *ProfileService,
	broadcaster Broadcaster,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		profiles:    profiles,
		players:     players,
		audit:       audit,
		tx:          tx,
		cache:       cache,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Approve moves a pending profile to approved.
func (s *ModerationService) Approve(ctx context.Context, actor Actor, targetID int64) (*Decision, error) {
	return s.decide(ctx, actor, targetID, models.AuditApprove, models.StatusApproved, "")
}

// Refuse moves a pending profile to refused. reason is optional and recorded
// in the audit entry.
func (s *ModerationService) Refuse(ctx context.Context, actor Actor, targetID int64, reason string) (*Decision, error) {
	return s.decide(ctx, actor, targetID, models.AuditRefuse, models.StatusRefused, reason)
}

// Reset returns a profile to pending and clears the charter flag, so the
// member walks the registration flow again. Players are kept.
func (s *ModerationService) Reset(ctx context.Context, actor Actor, targetID int64) (*Decision, error) {
	if !actor.Sage {
		return nil, ErrMissingSageCapability
	}

	var decision *Decision
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		profile, err := s.loadTarget(ctx, targetID)
		if err != nil {
			return err
		}
		if err := s.profiles.ResetForReregistration(ctx, exec, targetID); err != nil {
			return err
		}
		entry := s.newEntry(actor, profile, models.AuditReset, "")
		if err := s.audit.Insert(ctx, exec, &entry); err != nil {
			return err
		}
		profile.ApprovalStatus = models.StatusPending
		profile.CharterAccepted = false
		decision = &Decision{Action: models.AuditReset, Profile: profile, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(decision)
	return decision, nil
}

// Delete soft-deletes a profile: personal fields, username history, players
// and accumulated audit entries are wiped in one transaction, the discord id
// kept so a returning member can be recognized. Only the entry recording the
// deletion itself remains in the audit log.
func (s *ModerationService) Delete(ctx context.Context, actor Actor, targetID int64) (*Decision, error) {
	if !actor.Sage {
		return nil, ErrMissingSageCapability
	}

	var decision *Decision
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		profile, err := s.loadTarget(ctx, targetID)
		if err != nil {
			return err
		}
		if !profile.ApprovalStatus.CanTransitionTo(models.StatusDeleted) {
			return ErrInvalidTransition
		}
		if err := s.profiles.SoftDelete(ctx, exec, targetID); err != nil {
			return err
		}
		if err := s.players.DeleteAllForMember(ctx, exec, targetID); err != nil {
			return err
		}
		if err := s.audit.DeleteForTarget(ctx, exec, targetID); err != nil {
			return err
		}
		entry := s.newEntry(actor, profile, models.AuditDelete, "")
		if err := s.audit.Insert(ctx, exec, &entry); err != nil {
			return err
		}
		profile.ApprovalStatus = models.StatusDeleted
		decision = &Decision{Action: models.AuditDelete, Profile: profile, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(decision)
	return decision, nil
}

// AuditTrail returns the recorded actions against a member, newest first.
func (s *ModerationService) AuditTrail(ctx context.Context, targetUsername string) ([]models.AuditEntry, error) {
	return s.audit.ListForTarget(ctx, targetUsername)
}

func (s *ModerationService) decide(ctx context.Context, actor Actor, targetID int64, action models.AuditAction, target models.ApprovalStatus, reason string) (*Decision, error) {
	if !actor.Sage {
		return nil, ErrMissingSageCapability
	}
	if actor.ID == targetID {
		return nil, ErrSelfModeration
	}

	var decision *Decision
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		profile, err := s.loadTarget(ctx, targetID)
		if err != nil {
			return err
		}

		switch profile.ApprovalStatus {
		case models.StatusApproved:
			if target == models.StatusApproved {
				return ErrAlreadyApproved
			}
		case models.StatusRefused:
			if target == models.StatusRefused {
				return ErrAlreadyRefused
			}
		}
		if !profile.ApprovalStatus.CanTransitionTo(target) {
			return ErrInvalidTransition
		}
		if target == models.StatusApproved && !profile.CharterAccepted {
			return ErrCharterNotAccepted
		}

		if err := s.profiles.UpdateStatus(ctx, exec, targetID, target); err != nil {
			return err
		}
		entry := s.newEntry(actor, profile, action, reason)
		if err := s.audit.Insert(ctx, exec, &entry); err != nil {
			return err
		}
		profile.ApprovalStatus = target
		decision = &Decision{Action: action, Profile: profile, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(decision)
	return decision, nil
}

func (s *ModerationService) loadTarget(ctx context.Context, targetID int64) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (s *ModerationService) newEntry(actor Actor, target *models.Profile, action models.AuditAction, reason string) models.AuditEntry {
	entry := models.AuditEntry{
		Action:         action,
		TargetID:       &target.DiscordID,
		TargetUsername: target.Username,
		ActorID:        actor.ID,
		ActorUsername:  actor.Username,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		entry.Details = &reason
	}
	return entry
}

func (s *ModerationService) afterCommit(d *Decision) {
	if d == nil {
		return
	}
	if s.cache != nil && d.Profile != nil {
		s.cache.Invalidate(d.Profile.DiscordID)
	}
	metrics.ModerationActionsTotal.WithLabelValues(string(d.Action)).Inc()
	s.logger.Info("moderation action committed",
		"action", d.Action,
		"target", d.Entry.TargetUsername,
		"actor", d.Entry.ActorUsername,
	)
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("moderation", d.Entry)
	}
}
