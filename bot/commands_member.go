package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/mapgen"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/services"
)

// Handlers bundles the command implementations and their dependencies.
type Handlers struct {
	chat       Session
	bundle     *i18n.Bundle
	profiles   *services.ProfileService
	roster     *services.RosterService
	moderation *services.ModerationService
	captures   *services.CaptureService
	flow       *Flow
	notifier   *Notifier
	mapGen     *mapgen.Generator

	approvedRoleID string
	siteURL        string
	publicMapURL   string
	logger         *slog.Logger
}

func NewHandlers(
	chat Session,
	bundle *i18n.Bundle,
	profiles *services.ProfileService,
	roster *services.RosterService,
	moderation *services.ModerationService,
	captures *services.CaptureService,
	flow *Flow,
	notifier *Notifier,
	mapGen *mapgen.Generator,
	approvedRoleID, siteURL, publicMapURL string,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		chat:           chat,
		bundle:         bundle,
		profiles:       profiles,
		roster:         roster,
		moderation:     moderation,
		captures:       captures,
		flow:           flow,
		notifier:       notifier,
		mapGen:         mapGen,
		approvedRoleID: approvedRoleID,
		siteURL:        siteURL,
		publicMapURL:   publicMapURL,
		logger:         logger,
	}
}

// RegisterAll installs every command on the router and wires the
// registration flow as the DM interceptor.
func (h *Handlers) RegisterAll(r *Router) {
	r.SetInterceptor(h.flow)

	r.Register(&Command{Name: "inscription", Aliases: []string{"register"}, Limit: LimitRegistration, Handler: h.Inscription})
	r.Register(&Command{Name: "profil", Aliases: []string{"profile"}, Handler: h.Profil})
	r.Register(&Command{Name: "joueur", Aliases: []string{"joueurs", "player", "players"}, Handler: h.Joueur})
	r.Register(&Command{Name: "localisation", Aliases: []string{"location", "loc"}, Limit: LimitLocation, Handler: h.Localisation})
	r.Register(&Command{Name: "langue", Aliases: []string{"lang", "language"}, Handler: h.Langue})
	r.Register(&Command{Name: "carte", Aliases: []string{"map"}, Handler: h.Carte})
	r.Register(&Command{Name: "site", Handler: h.Site})
	r.Register(&Command{Name: "help", Aliases: []string{"aide"}, Handler: h.Help})
	r.Register(&Command{Name: "users", Aliases: []string{"membres"}, Sage: true, Handler: h.Users})
	r.Register(&Command{Name: "capture", Aliases: []string{"cap"}, Handler: h.Capture})

	r.Register(&Command{Name: "attente", Aliases: []string{"pending"}, Sage: true, Handler: h.Attente})
	r.Register(&Command{Name: "valider", Aliases: []string{"approve"}, Sage: true, Handler: h.Valider})
	r.Register(&Command{Name: "refuser", Aliases: []string{"refuse", "reject"}, Sage: true, Handler: h.Refuser})
	r.Register(&Command{Name: "reset", Sage: true, Handler: h.Reset})
	r.Register(&Command{Name: "supprimer", Aliases: []string{"delete"}, Sage: true, Handler: h.Supprimer})
	r.Register(&Command{Name: "profil-admin", Aliases: []string{"profile-admin"}, Sage: true, Handler: h.ProfilAdmin})
	r.Register(&Command{Name: "audit", Sage: true, Handler: h.Audit})
}

// Inscription starts (or restarts) the registration flow.
func (h *Handlers) Inscription(ctx context.Context, inv *Invocation) error {
	return h.flow.Start(ctx, inv)
}

// Profil DMs the member their own profile summary.
func (h *Handlers) Profil(ctx context.Context, inv *Invocation) error {
	profile, err := h.profiles.Get(ctx, inv.AuthorID)
	if err != nil {
		return err
	}
	lang := profile.Language

	var sb strings.Builder
	sb.WriteString(h.bundle.T("profile.title", lang, nil))
	sb.WriteString("\n")
	sb.WriteString(h.bundle.T("profile.language", lang, i18n.Vars{"language": profile.Language}))
	sb.WriteString("\n")
	if profile.CharterAccepted {
		sb.WriteString(h.bundle.T("profile.charter_ok", lang, nil))
	} else {
		sb.WriteString(h.bundle.T("profile.charter_pending", lang, nil))
	}
	sb.WriteString("\n")
	sb.WriteString(h.bundle.T("profile.status_"+string(profile.ApprovalStatus), lang, nil))
	if profile.LocationDisplay != nil && *profile.LocationDisplay != "" {
		sb.WriteString("\n")
		sb.WriteString(h.bundle.T("profile.location", lang, i18n.Vars{"location": *profile.LocationDisplay}))
	}

	players, err := h.roster.ListByMember(ctx, inv.AuthorID)
	if err == nil && len(players) > 0 {
		sb.WriteString("\n")
		sb.WriteString(h.bundle.T("finish.your_players", lang, nil))
		for _, p := range players {
			sb.WriteString(fmt.Sprintf("\n- %s (%s)", p.PlayerName, p.TeamName))
		}
	}

	return h.chat.SendDM(ctx, inv.AuthorID, sb.String())
}

// Joueur replaces one team's roster outside the flow:
// !joueur <1|2> name1, name2
func (h *Handlers) Joueur(ctx context.Context, inv *Invocation) error {
	teamID := models.Team1ID
	args := inv.Args
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && (n == models.Team1ID || n == models.Team2ID) {
			teamID = n
			args = args[1:]
		}
	}
	raw := strings.Join(args, " ")
	if strings.TrimSpace(raw) == "" {
		players, err := h.roster.ListByMember(ctx, inv.AuthorID)
		if err != nil {
			return err
		}
		if len(players) == 0 {
			h.reply(ctx, inv, h.bundle.T("players.none", inv.Lang, nil))
			return nil
		}
		var sb strings.Builder
		sb.WriteString(h.bundle.T("finish.your_players", inv.Lang, nil))
		for _, p := range players {
			sb.WriteString(fmt.Sprintf("\n- %s (%s)", p.PlayerName, p.TeamName))
		}
		h.reply(ctx, inv, sb.String())
		return nil
	}

	result, err := h.roster.ReplaceTeamRoster(ctx, inv.AuthorID, teamID, raw)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoValidPlayerNames):
			h.reply(ctx, inv, h.bundle.T("players.invalid_name", inv.Lang, i18n.Vars{"player_name": raw}))
			return nil
		case errors.Is(err, services.ErrPlayerNameTaken):
			h.reply(ctx, inv, h.bundle.T("players.already_exists", inv.Lang, i18n.Vars{
				"player_name": raw, "team_name": fmt.Sprintf("Team %d", teamID),
			}))
			return nil
		}
		return err
	}

	h.reply(ctx, inv, h.bundle.T("players.count", inv.Lang, i18n.Vars{
		"count":     strconv.Itoa(len(result.Players)),
		"team_name": fmt.Sprintf("Team %d", teamID),
	}))
	return nil
}

// Localisation updates or clears the member's location:
// !localisation <address>, or "." to clear.
func (h *Handlers) Localisation(ctx context.Context, inv *Invocation) error {
	query := strings.TrimSpace(strings.Join(inv.Args, " "))
	if query == "" {
		h.reply(ctx, inv, h.bundle.T("location.invalid", inv.Lang, nil))
		return nil
	}
	if query == "." {
		if err := h.profiles.ClearLocation(ctx, inv.AuthorID); err != nil {
			return err
		}
		h.reply(ctx, inv, h.bundle.T("location.skipped", inv.Lang, nil))
		h.requestMapUpdate()
		return nil
	}

	h.reply(ctx, inv, h.bundle.T("location.searching", inv.Lang, nil))
	res, err := h.profiles.SetLocation(ctx, inv.AuthorID, query)
	if err != nil {
		if errors.Is(err, services.ErrLocationNotFound) {
			h.reply(ctx, inv, h.bundle.T("location.not_found", inv.Lang, nil))
			return nil
		}
		return err
	}

	h.reply(ctx, inv, h.bundle.T("location.saved", inv.Lang, i18n.Vars{"address": res.Display}))
	h.requestMapUpdate()
	return nil
}

// Langue switches the member's language: !langue FR|EN.
func (h *Handlers) Langue(ctx context.Context, inv *Invocation) error {
	arg := strings.ToUpper(strings.TrimSpace(inv.Arg(0)))
	if arg != "FR" && arg != "EN" {
		h.reply(ctx, inv, h.bundle.T("language.invalid", inv.Lang, nil))
		return nil
	}
	if err := h.profiles.UpdateLanguage(ctx, inv.AuthorID, arg); err != nil {
		return err
	}
	h.reply(ctx, inv, h.bundle.T("language.changed", arg, i18n.Vars{"language": arg}))
	return nil
}

// Carte replies with the public members map URL.
func (h *Handlers) Carte(ctx context.Context, inv *Invocation) error {
	url := h.publicMapURL
	if url == "" && h.mapGen != nil {
		url = h.mapGen.PublicURL()
	}
	if url == "" {
		h.reply(ctx, inv, h.bundle.T("commands.no_map", inv.Lang, nil))
		return nil
	}
	h.reply(ctx, inv, h.bundle.T("commands.map", inv.Lang, i18n.Vars{"url": url}))
	return nil
}

// Site replies with the team website URL.
func (h *Handlers) Site(ctx context.Context, inv *Invocation) error {
	h.reply(ctx, inv, h.bundle.T("commands.site", inv.Lang, i18n.Vars{"url": h.siteURL}))
	return nil
}

// Help lists the available commands.
func (h *Handlers) Help(ctx context.Context, inv *Invocation) error {
	h.reply(ctx, inv, h.bundle.T("commands.help", inv.Lang, nil))
	return nil
}

// Users lists non-deleted members, newest connection first.
func (h *Handlers) Users(ctx context.Context, inv *Invocation) error {
	profiles, err := h.profiles.ListVisible(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(h.bundle.T("commands.users_title", inv.Lang, i18n.Vars{
		"count": strconv.Itoa(len(profiles)),
	}))
	for _, p := range profiles {
		sb.WriteString(fmt.Sprintf("\n- %s [%s]", p.Username, p.ApprovalStatus))
	}
	h.reply(ctx, inv, sb.String())
	return nil
}

func (h *Handlers) requestMapUpdate() {
	if h.mapGen != nil {
		h.mapGen.RequestUpdate()
	}
}

// reply answers where the command came from.
func (h *Handlers) reply(ctx context.Context, inv *Invocation, content string) {
	var err error
	if inv.DM {
		err = h.chat.SendDM(ctx, inv.AuthorID, content)
	} else {
		err = h.chat.SendChannel(ctx, inv.ChannelID, content)
	}
	if err != nil {
		h.logger.Warn("failed to send reply", "member_id", inv.AuthorID, "error", err)
	}
}
