package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/thisispsg/community-bot/cache"
	"github.com/thisispsg/community-bot/geocode"
	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/metrics"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
)

const (
	profileCacheTTL  = time.Minute
	profileCacheSize = 500
)

// ProfileService manages member profiles: identity sync with the chat
// platform, language, charter, location. Reads go through a short TTL cache;
// every write invalidates the cached entry.
type ProfileService struct {
	profiles repositories.ProfileRepository
	players  repositories.PlayerRepository
	geocoder *geocode.Client
	cache    *cache.TTL[*models.Profile]
	logger   *slog.Logger
}

func NewProfileService(
	profiles repositories.ProfileRepository,
	players repositories.PlayerRepository,
	geocoder *geocode.Client,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		players:  players,
		geocoder: geocoder,
		cache:    cache.New[*models.Profile](profileCacheTTL, profileCacheSize),
		logger:   logger,
	}
}

// Ensure returns the profile for discordID, creating it on first contact and
// syncing username/display name drift. The second return value is the
// member's previous username when they come back under a new one, "" otherwise.
func (s *ProfileService) Ensure(ctx context.Context, discordID int64, username, displayName string) (*models.Profile, string, error) {
	profile, err := s.profiles.GetByID(ctx, discordID)
	if errors.Is(err, repositories.ErrProfileNotFound) {
		now := time.Now().UTC()
		profile = &models.Profile{
			DiscordID:      discordID,
			Username:       username,
			DisplayName:    displayName,
			Language:       i18n.DefaultLanguage,
			ApprovalStatus: models.StatusPending,
			LastConnection: &now,
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, "", err
		}
		s.logger.Info("profile created", "discord_id", discordID, "username", username)
		return profile, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	previousUsername := ""
	if profile.Username != username || profile.DisplayName != displayName {
		if profile.Username != username {
			previousUsername = profile.Username
			s.logger.Info("username drift detected",
				"discord_id", discordID, "old", profile.Username, "new", username)
		}
		if err := s.profiles.UpdateIdentity(ctx, nil, discordID, username, displayName); err != nil {
			return nil, "", err
		}
		profile.Username = username
		profile.DisplayName = displayName
		s.invalidate(discordID)
	}

	if err := s.profiles.Touch(ctx, discordID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to touch last_connection", "discord_id", discordID, "error", err)
	}
	return profile, previousUsername, nil
}

// Get returns the profile by discord id, serving cached entries for up to
// profileCacheTTL.
func (s *ProfileService) Get(ctx context.Context, discordID int64) (*models.Profile, error) {
	key := cacheKey(discordID)
	if p, ok := s.cache.Get(key); ok {
		return p, nil
	}

	profile, err := s.profiles.GetByID(ctx, discordID)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	s.cache.Set(key, profile)
	return profile, nil
}

// FindByUsername resolves a profile by its current username,
// case-insensitively. Used by sage commands that target members by name.
func (s *ProfileService) FindByUsername(ctx context.Context, username string) (*models.Profile, error) {
	profile, err := s.profiles.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) UpdateLanguage(ctx context.Context, discordID int64, language string) error {
	if err := s.profiles.UpdateLanguage(ctx, discordID, i18n.Normalize(language)); err != nil {
		return err
	}
	s.invalidate(discordID)
	return nil
}

func (s *ProfileService) SetCharterAccepted(ctx context.Context, discordID int64, accepted bool) error {
	if err := s.profiles.SetCharterAccepted(ctx, discordID, accepted); err != nil {
		return err
	}
	s.invalidate(discordID)
	return nil
}

// SetLocation geocodes query and stores both the precise result and the
// coarse display form. Only the display form ever reaches other members.
func (s *ProfileService) SetLocation(ctx context.Context, discordID int64, query string) (*geocode.Result, error) {
	res, err := s.geocoder.Lookup(ctx, query)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			metrics.GeocodeLookupsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrLocationNotFound
		}
		metrics.GeocodeLookupsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.profiles.SetLocation(ctx, discordID, res.Address, res.Display, res.Latitude, res.Longitude); err != nil {
		return nil, err
	}
	s.invalidate(discordID)
	return res, nil
}

func (s *ProfileService) ClearLocation(ctx context.Context, discordID int64) error {
	if err := s.profiles.ClearLocation(ctx, nil, discordID); err != nil {
		return err
	}
	s.invalidate(discordID)
	return nil
}

// PendingRegistration is one entry of the sage review queue.
type PendingRegistration struct {
	Profile models.Profile
	Players []models.Player
}

// ListPending returns profiles awaiting a decision, with their rosters, in
// newest-first order.
func (s *ProfileService) ListPending(ctx context.Context) ([]PendingRegistration, error) {
	profiles, err := s.profiles.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return []PendingRegistration{}, nil
	}

	ids := make([]int64, len(profiles))
	for i, p := range profiles {
		ids[i] = p.DiscordID
	}
	byMember, err := s.players.ListByMembers(ctx, ids)
	if err != nil {
		return nil, err
	}

	pending := make([]PendingRegistration, len(profiles))
	for i, p := range profiles {
		pending[i] = PendingRegistration{Profile: p, Players: byMember[p.DiscordID]}
	}
	return pending, nil
}

// ListVisible returns every profile that is not soft-deleted.
func (s *ProfileService) ListVisible(ctx context.Context) ([]models.Profile, error) {
	return s.profiles.ListVisible(ctx)
}

// ListWithLocation returns profiles that opted into the members map.
func (s *ProfileService) ListWithLocation(ctx context.Context) ([]models.Profile, error) {
	return s.profiles.ListWithLocation(ctx)
}

func (s *ProfileService) UsernameHistory(ctx context.Context, discordID int64) ([]models.UsernameChange, error) {
	return s.profiles.UsernameHistory(ctx, discordID)
}

// Invalidate drops the cached profile, if any. Other services call it after
// writing profile rows inside their own transactions.
func (s *ProfileService) Invalidate(discordID int64) {
	s.invalidate(discordID)
}

func (s *ProfileService) invalidate(discordID int64) {
	s.cache.Delete(cacheKey(discordID))
}

func cacheKey(discordID int64) string {
	return strconv.FormatInt(discordID, 10)
}
