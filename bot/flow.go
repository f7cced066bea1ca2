package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/metrics"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
	"github.com/thisispsg/community-bot/services"
)

// FlowTimeouts are the per-step deadlines of the registration flow.
type FlowTimeouts struct {
	Language time.Duration
	Charter  time.Duration
	Input    time.Duration
	Location time.Duration
}

// DefaultFlowTimeouts match the documented flow: a long window for reading
// the charter, shorter ones for free-text input.
var DefaultFlowTimeouts = FlowTimeouts{
	Language: 5 * time.Minute,
	Charter:  10 * time.Minute,
	Input:    2 * time.Minute,
	Location: 2 * time.Minute,
}

const sweepInterval = 15 * time.Second

type flowState int

const (
	stateLanguage flowState = iota
	stateCharter
	statePlayersTeam1
	statePlayersTeam2
	stateLocation
)

// flowSession fields are read and written under Flow.mu only.
type flowSession struct {
	state    flowState
	lang     string
	deadline time.Time
}

// Flow is the registration state machine. One session per member, advanced
// by their DM replies, expired by a single background sweeper.
type Flow struct {
	mu       sync.Mutex
	sessions map[int64]*flowSession

	timeouts   FlowTimeouts
	chat       Session
	bundle     *i18n.Bundle
	profiles   *services.ProfileService
	roster     *services.RosterService
	teams      repositories.TeamRepository
	notifier   *Notifier
	mapUpdater interface{ RequestUpdate() }
	charterURL string
	logger     *slog.Logger
	now        func() time.Time
}

func NewFlow(
	chat Session,
	bundle *i18n.Bundle,
	profiles *services.ProfileService,
	roster *services.RosterService,
	teams repositories.TeamRepository,
	notifier *Notifier,
	mapUpdater interface{ RequestUpdate() },
	charterURL string,
	timeouts FlowTimeouts,
	logger *slog.Logger,
) *Flow {
	return &Flow{
		sessions:   make(map[int64]*flowSession),
		timeouts:   timeouts,
		chat:       chat,
		bundle:     bundle,
		profiles:   profiles,
		roster:     roster,
		teams:      teams,
		notifier:   notifier,
		mapUpdater: mapUpdater,
		charterURL: charterURL,
		logger:     logger,
		now:        time.Now,
	}
}

// Active reports whether the member has a registration session underway.
func (f *Flow) Active(memberID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[memberID]
	return ok
}

// Start opens a session for the invoking member.
func (f *Flow) Start(ctx context.Context, inv *Invocation) error {
	return f.StartForMember(ctx, inv.AuthorID)
}

// StartForMember opens a session for the member and sends the welcome and
// language prompts. An existing session restarts from the beginning. Also
// the entry point for the guild member-join event.
func (f *Flow) StartForMember(ctx context.Context, memberID int64) error {
	profile, err := f.profiles.Get(ctx, memberID)
	if err != nil {
		return err
	}
	lang := profile.Language

	f.mu.Lock()
	f.sessions[memberID] = &flowSession{
		state:    stateLanguage,
		lang:     lang,
		deadline: f.now().Add(f.timeouts.Language),
	}
	f.mu.Unlock()

	name := profile.DisplayName
	if name == "" {
		name = profile.Username
	}
	f.send(ctx, memberID,
		f.bundle.T("welcome.title", lang, i18n.Vars{"display_name": name})+"\n"+
			f.bundle.T("welcome.intro", lang, nil))
	f.send(ctx, memberID, f.bundle.T("language.prompt", lang, nil))

	f.logger.Info("registration flow started", "member_id", memberID)
	return nil
}

// HandleMessage consumes a DM reply when the member has an active session.
// Implements the router's Interceptor. The session state and language are
// snapshotted under the lock; concurrent replies each act on a consistent
// view and advance through the locked session map only.
func (f *Flow) HandleMessage(ctx context.Context, msg *Message, _ string) bool {
	f.mu.Lock()
	sess, ok := f.sessions[msg.AuthorID]
	if !ok {
		f.mu.Unlock()
		return false
	}
	state, lang := sess.state, sess.lang
	f.mu.Unlock()

	input := strings.TrimSpace(msg.Content)
	if input == "" {
		return true
	}

	switch state {
	case stateLanguage:
		f.handleLanguage(ctx, msg.AuthorID, lang, input)
	case stateCharter:
		f.handleCharter(ctx, msg.AuthorID, lang, input)
	case statePlayersTeam1:
		f.handlePlayers(ctx, msg.AuthorID, lang, input, models.Team1ID, statePlayersTeam2)
	case statePlayersTeam2:
		f.handlePlayers(ctx, msg.AuthorID, lang, input, models.Team2ID, stateLocation)
	case stateLocation:
		f.handleLocation(ctx, msg.AuthorID, lang, input)
	}
	return true
}

// Run expires overdue sessions until ctx is cancelled. Expiry sends the
// step's timeout message and drops the session; the member restarts with
// the registration command.
func (f *Flow) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.sweep(ctx)
		}
	}
}

func (f *Flow) sweep(ctx context.Context) {
	now := f.now()

	type expired struct {
		memberID int64
		state    flowState
		lang     string
	}
	var overdue []expired

	f.mu.Lock()
	for id, sess := range f.sessions {
		if now.After(sess.deadline) {
			overdue = append(overdue, expired{id, sess.state, sess.lang})
			delete(f.sessions, id)
		}
	}
	f.mu.Unlock()

	for _, e := range overdue {
		key := "players.timeout"
		switch e.state {
		case stateLanguage:
			key = "language.timeout"
		case stateCharter:
			key = "charter.timeout"
		}
		f.send(ctx, e.memberID, f.bundle.T(key, e.lang, nil))
		metrics.RegistrationsTotal.WithLabelValues("timeout").Inc()
		f.logger.Info("registration flow timed out",
			"member_id", e.memberID, "state", int(e.state))
	}
}

func (f *Flow) handleLanguage(ctx context.Context, memberID int64, lang, input string) {
	var chosen string
	switch strings.ToUpper(input) {
	case "FR", "FRANCAIS", "FRANÇAIS", "FRENCH":
		chosen = "FR"
	case "EN", "ENGLISH", "ANGLAIS":
		chosen = "EN"
	default:
		f.send(ctx, memberID, f.bundle.T("language.invalid", lang, nil))
		return
	}

	if err := f.profiles.UpdateLanguage(ctx, memberID, chosen); err != nil {
		f.fail(ctx, memberID, lang, err)
		return
	}

	f.advance(memberID, stateCharter, f.timeouts.Charter, chosen)
	f.send(ctx, memberID, f.bundle.T("language.changed", chosen, i18n.Vars{"language": chosen}))
	f.send(ctx, memberID,
		f.bundle.T("charter.intro", chosen, nil)+"\n"+
			f.bundle.T("charter.instruction_url", chosen, i18n.Vars{"url": f.charterURL}))
}

func (f *Flow) handleCharter(ctx context.Context, memberID int64, lang, input string) {
	switch strings.ToLower(input) {
	case "accepte", "accept", "oui", "yes":
		if err := f.profiles.SetCharterAccepted(ctx, memberID, true); err != nil {
			f.fail(ctx, memberID, lang, err)
			return
		}
		f.send(ctx, memberID, f.bundle.T("charter.accepted", lang, nil))
		f.advance(memberID, statePlayersTeam1, f.timeouts.Input, lang)
		f.promptPlayers(ctx, memberID, lang, models.Team1ID, "players.team_main")

	case "refuse", "non", "no":
		f.remove(memberID)
		f.send(ctx, memberID, f.bundle.T("charter.refused", lang, nil))
		metrics.RegistrationsTotal.WithLabelValues("charter_refused").Inc()

	default:
		f.send(ctx, memberID, f.bundle.T("charter.instruction_url", lang, i18n.Vars{"url": f.charterURL}))
	}
}

func (f *Flow) handlePlayers(ctx context.Context, memberID int64, lang, input string, teamID int, next flowState) {
	teamName := f.teamName(ctx, teamID)

	if input == "." {
		f.send(ctx, memberID, f.bundle.T("players.skipped", lang, i18n.Vars{"team_name": teamName}))
		f.afterPlayers(ctx, memberID, lang, next)
		return
	}

	result, err := f.roster.ReplaceTeamRoster(ctx, memberID, teamID, input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoValidPlayerNames):
			f.send(ctx, memberID, f.bundle.T("players.invalid_name", lang, i18n.Vars{"player_name": input}))
		case errors.Is(err, services.ErrPlayerNameTaken):
			f.send(ctx, memberID, f.bundle.T("players.already_exists", lang, i18n.Vars{
				"player_name": input, "team_name": teamName,
			}))
		default:
			f.send(ctx, memberID, f.bundle.T("players.error", lang, nil))
			f.logger.Error("roster replace failed", "member_id", memberID, "error", err)
		}
		// Stay on this step; the deadline keeps running.
		return
	}

	for _, name := range result.Invalid {
		f.send(ctx, memberID, f.bundle.T("players.invalid_name", lang, i18n.Vars{"player_name": name}))
	}
	for _, name := range result.Duplicates {
		f.send(ctx, memberID, f.bundle.T("players.duplicate_in_input", lang, i18n.Vars{"player_name": name}))
	}
	f.send(ctx, memberID, f.bundle.T("players.count", lang, i18n.Vars{
		"count":     fmt.Sprintf("%d", len(result.Players)),
		"team_name": teamName,
	}))

	f.afterPlayers(ctx, memberID, lang, next)
}

func (f *Flow) afterPlayers(ctx context.Context, memberID int64, lang string, next flowState) {
	if next == statePlayersTeam2 {
		f.advance(memberID, next, f.timeouts.Input, lang)
		f.promptPlayers(ctx, memberID, lang, models.Team2ID, "players.team_other")
		return
	}
	f.advance(memberID, next, f.timeouts.Location, lang)
	f.promptLocation(ctx, memberID, lang)
}

func (f *Flow) handleLocation(ctx context.Context, memberID int64, lang, input string) {
	if input == "." {
		f.send(ctx, memberID, f.bundle.T("location.skipped", lang, nil))
		f.finish(ctx, memberID, lang)
		return
	}

	f.send(ctx, memberID, f.bundle.T("location.searching", lang, nil))
	res, err := f.profiles.SetLocation(ctx, memberID, input)
	if err != nil {
		if errors.Is(err, services.ErrLocationNotFound) {
			f.send(ctx, memberID, f.bundle.T("location.not_found", lang, nil))
		} else {
			f.logger.Error("location lookup failed", "member_id", memberID, "error", err)
			f.send(ctx, memberID, f.bundle.T("location.not_found", lang, nil))
		}
		// Member can retry or skip with "." until the deadline.
		return
	}

	f.send(ctx, memberID, f.bundle.T("location.saved", lang, i18n.Vars{"address": res.Display}))
	f.send(ctx, memberID, f.bundle.T("location.map_update", lang, nil))
	if f.mapUpdater != nil {
		f.mapUpdater.RequestUpdate()
	}
	f.finish(ctx, memberID, lang)
}

func (f *Flow) finish(ctx context.Context, memberID int64, lang string) {
	f.remove(memberID)

	players, err := f.roster.ListByMember(ctx, memberID)
	if err != nil {
		f.logger.Error("failed to list players at finish", "member_id", memberID, "error", err)
	}

	var sb strings.Builder
	sb.WriteString(f.bundle.T("finish.title", lang, nil))
	sb.WriteString("\n")
	if len(players) > 0 {
		sb.WriteString(f.bundle.T("finish.your_players", lang, nil))
		for _, p := range players {
			sb.WriteString(fmt.Sprintf("\n- %s (%s)", p.PlayerName, p.TeamName))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(f.bundle.T("finish.pending", lang, nil))
	f.send(ctx, memberID, sb.String())

	metrics.RegistrationsTotal.WithLabelValues("completed").Inc()
	f.logger.Info("registration flow completed", "member_id", memberID, "players", len(players))

	if f.notifier != nil {
		f.notifier.NewRegistration(ctx, memberID, players)
	}
}

func (f *Flow) promptPlayers(ctx context.Context, memberID int64, lang string, teamID int, key string) {
	f.send(ctx, memberID, f.bundle.T(key, lang, i18n.Vars{
		"team_name": f.teamName(ctx, teamID),
	}))
}

func (f *Flow) promptLocation(ctx context.Context, memberID int64, lang string) {
	msg := f.bundle.T("location.title", lang, nil) + "\n" +
		f.bundle.T("location.intro", lang, nil)
	if profile, err := f.profiles.Get(ctx, memberID); err == nil &&
		profile.LocationDisplay != nil && *profile.LocationDisplay != "" {
		msg += "\n" + f.bundle.T("location.current", lang, i18n.Vars{"location": *profile.LocationDisplay})
	}
	f.send(ctx, memberID, msg)
}

func (f *Flow) teamName(ctx context.Context, teamID int) string {
	if team, err := f.teams.GetByID(ctx, teamID); err == nil {
		return team.Name
	}
	return fmt.Sprintf("Team %d", teamID)
}

// advance moves the member's session to next with a fresh deadline; lang is
// the session language from this step on. A session removed in the meantime
// (sweep, charter refusal) stays removed.
func (f *Flow) advance(memberID int64, next flowState, timeout time.Duration, lang string) {
	f.mu.Lock()
	if sess, ok := f.sessions[memberID]; ok {
		sess.state = next
		sess.deadline = f.now().Add(timeout)
		sess.lang = lang
	}
	f.mu.Unlock()
}

func (f *Flow) remove(memberID int64) {
	f.mu.Lock()
	delete(f.sessions, memberID)
	f.mu.Unlock()
}

func (f *Flow) fail(ctx context.Context, memberID int64, lang string, err error) {
	f.logger.Error("registration step failed", "member_id", memberID, "error", err)
	f.send(ctx, memberID, f.bundle.T("errors.internal", lang, nil))
}

func (f *Flow) send(ctx context.Context, memberID int64, content string) {
	if err := f.chat.SendDM(ctx, memberID, content); err != nil {
		f.logger.Warn("failed to DM member", "member_id", memberID, "error", err)
	}
}
