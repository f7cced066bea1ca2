package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/services"
)

// Attente lists registrations awaiting a decision.
func (h *Handlers) Attente(ctx context.Context, inv *Invocation) error {
	pending, err := h.profiles.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		h.reply(ctx, inv, h.bundle.T("sages.pending_none", inv.Lang, nil))
		return nil
	}

	var sb strings.Builder
	sb.WriteString(h.bundle.T("sages.pending_title", inv.Lang, i18n.Vars{
		"count": fmt.Sprintf("%d", len(pending)),
	}))
	for _, reg := range pending {
		names := make([]string, 0, len(reg.Players))
		for _, p := range reg.Players {
			names = append(names, p.PlayerName)
		}
		playersText := strings.Join(names, ", ")
		if playersText == "" {
			playersText = h.bundle.T("sages.no_players", inv.Lang, nil)
		}
		sb.WriteString(fmt.Sprintf("\n- %s (%s) — %s",
			reg.Profile.Username, playersText,
			reg.Profile.CreatedAt.Format("02/01/2006")))
	}
	h.reply(ctx, inv, sb.String())
	return nil
}

// Valider approves a pending member: !valider @member
func (h *Handlers) Valider(ctx context.Context, inv *Invocation) error {
	target, err := h.resolveTarget(ctx, inv)
	if err != nil {
		return nil // already answered
	}

	decision, err := h.moderation.Approve(ctx, h.actor(inv), target.DiscordID)
	if err != nil {
		h.replyModerationError(ctx, inv, err, target.Username)
		return nil
	}

	if h.approvedRoleID != "" {
		if err := h.chat.AddRole(ctx, target.DiscordID, h.approvedRoleID); err != nil {
			h.logger.Warn("failed to add approved role",
				"member_id", target.DiscordID, "error", err)
		}
	}
	h.notifier.NotifyDecision(ctx, decision, target.Language)

	h.reply(ctx, inv, h.bundle.T("sages.approved", inv.Lang, i18n.Vars{
		"member":    target.Username,
		"sage_name": inv.AuthorUsername,
	}))
	return nil
}

// Refuser refuses a pending member: !refuser @member [reason]
func (h *Handlers) Refuser(ctx context.Context, inv *Invocation) error {
	target, err := h.resolveTarget(ctx, inv)
	if err != nil {
		return nil
	}
	reason := strings.Join(inv.Args[1:], " ")

	decision, err := h.moderation.Refuse(ctx, h.actor(inv), target.DiscordID, reason)
	if err != nil {
		h.replyModerationError(ctx, inv, err, target.Username)
		return nil
	}

	h.notifier.NotifyDecision(ctx, decision, target.Language)

	msg := h.bundle.T("sages.refused", inv.Lang, i18n.Vars{
		"member":    target.Username,
		"sage_name": inv.AuthorUsername,
	})
	if reason != "" {
		msg += "\n" + h.bundle.T("sages.refused_reason", inv.Lang, i18n.Vars{"reason": reason})
	}
	h.reply(ctx, inv, msg)
	return nil
}

// Reset sends a member back through registration: !reset @member
func (h *Handlers) Reset(ctx context.Context, inv *Invocation) error {
	target, err := h.resolveTarget(ctx, inv)
	if err != nil {
		return nil
	}

	if _, err := h.moderation.Reset(ctx, h.actor(inv), target.DiscordID); err != nil {
		h.replyModerationError(ctx, inv, err, target.Username)
		return nil
	}

	if h.approvedRoleID != "" {
		if err := h.chat.RemoveRole(ctx, target.DiscordID, h.approvedRoleID); err != nil {
			h.logger.Warn("failed to remove approved role",
				"member_id", target.DiscordID, "error", err)
		}
	}

	h.reply(ctx, inv, h.bundle.T("sages.reset", inv.Lang, i18n.Vars{"member": target.Username}))
	return nil
}

// Supprimer soft-deletes a member's data: !supprimer @member
func (h *Handlers) Supprimer(ctx context.Context, inv *Invocation) error {
	target, err := h.resolveTarget(ctx, inv)
	if err != nil {
		return nil
	}

	if _, err := h.moderation.Delete(ctx, h.actor(inv), target.DiscordID); err != nil {
		h.replyModerationError(ctx, inv, err, target.Username)
		return nil
	}

	if h.approvedRoleID != "" {
		if err := h.chat.RemoveRole(ctx, target.DiscordID, h.approvedRoleID); err != nil {
			h.logger.Warn("failed to remove approved role",
				"member_id", target.DiscordID, "error", err)
		}
	}
	h.requestMapUpdate()

	h.reply(ctx, inv, h.bundle.T("sages.deleted", inv.Lang, i18n.Vars{"member": target.Username}))
	return nil
}

const profilAdminMaxResults = 10

// ProfilAdmin DMs the sage the full profile of matching members:
// !profil-admin <pseudo|@mention|id>
func (h *Handlers) ProfilAdmin(ctx context.Context, inv *Invocation) error {
	search := strings.TrimSpace(strings.Join(inv.Args, " "))
	if search == "" {
		h.reply(ctx, inv, h.bundle.T("sages.profil_admin_usage", inv.Lang, nil))
		return nil
	}

	matches, err := h.searchProfiles(ctx, search)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		h.reply(ctx, inv, h.bundle.T("sages.member_not_found", inv.Lang, i18n.Vars{"search": search}))
		return nil
	}

	for i := range matches {
		if err := h.chat.SendDM(ctx, inv.AuthorID, h.renderAdminProfile(ctx, &matches[i], inv.Lang)); err != nil {
			h.logger.Warn("failed to DM profile summary", "member_id", inv.AuthorID, "error", err)
		}
	}
	if !inv.DM {
		h.reply(ctx, inv, h.bundle.T("sages.profil_admin_sent", inv.Lang, i18n.Vars{
			"count": strconv.Itoa(len(matches)),
		}))
	}
	return nil
}

// searchProfiles matches members by mention, discord id, or case-insensitive
// username/display name substring, capped at profilAdminMaxResults.
func (h *Handlers) searchProfiles(ctx context.Context, search string) ([]models.Profile, error) {
	if match := mentionPattern.FindStringSubmatch(search); match != nil {
		search = match[1]
	}
	if id, err := strconv.ParseInt(search, 10, 64); err == nil {
		profile, err := h.profiles.Get(ctx, id)
		if err != nil {
			if errors.Is(err, services.ErrProfileNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []models.Profile{*profile}, nil
	}

	all, err := h.profiles.ListVisible(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(search)
	var matches []models.Profile
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Username), needle) ||
			strings.Contains(strings.ToLower(p.DisplayName), needle) {
			matches = append(matches, p)
			if len(matches) == profilAdminMaxResults {
				break
			}
		}
	}
	return matches, nil
}

func (h *Handlers) renderAdminProfile(ctx context.Context, profile *models.Profile, lang string) string {
	var sb strings.Builder
	sb.WriteString(h.bundle.T("sages.profil_admin_title", lang, i18n.Vars{"member": profile.Username}))
	sb.WriteString(fmt.Sprintf("\nID: %d", profile.DiscordID))
	if profile.DisplayName != "" && profile.DisplayName != profile.Username {
		sb.WriteString(" (" + profile.DisplayName + ")")
	}
	sb.WriteString("\n" + h.bundle.T("profile.language", lang, i18n.Vars{"language": profile.Language}))
	if profile.CharterAccepted {
		sb.WriteString("\n" + h.bundle.T("profile.charter_ok", lang, nil))
	} else {
		sb.WriteString("\n" + h.bundle.T("profile.charter_pending", lang, nil))
	}
	sb.WriteString("\n" + h.bundle.T("profile.status_"+string(profile.ApprovalStatus), lang, nil))
	if profile.LocationDisplay != nil && *profile.LocationDisplay != "" {
		sb.WriteString("\n" + h.bundle.T("profile.location", lang, i18n.Vars{"location": *profile.LocationDisplay}))
	}

	if players, err := h.roster.ListByMember(ctx, profile.DiscordID); err == nil && len(players) > 0 {
		sb.WriteString("\n" + h.bundle.T("sages.profil_admin_players", lang, nil))
		for _, p := range players {
			sb.WriteString(fmt.Sprintf("\n- %s (%s)", p.PlayerName, p.TeamName))
		}
	}
	if history, err := h.profiles.UsernameHistory(ctx, profile.DiscordID); err == nil && len(history) > 0 {
		sb.WriteString("\n" + h.bundle.T("sages.profil_admin_history", lang, nil))
		for _, c := range history {
			sb.WriteString("\n- " + c.Username)
		}
	}
	return sb.String()
}

// Audit shows the moderation trail for a username: !audit <username>
func (h *Handlers) Audit(ctx context.Context, inv *Invocation) error {
	username := strings.TrimSpace(inv.Arg(0))
	if username == "" {
		h.reply(ctx, inv, h.bundle.T("sages.member_not_found", inv.Lang, i18n.Vars{"search": ""}))
		return nil
	}

	entries, err := h.moderation.AuditTrail(ctx, username)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		h.reply(ctx, inv, h.bundle.T("sages.member_not_found", inv.Lang, i18n.Vars{"search": username}))
		return nil
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%s — %s by %s",
			e.CreatedAt.Format("02/01/2006 15:04"), e.Action, e.ActorUsername))
		if e.Details != nil {
			sb.WriteString(" (" + *e.Details + ")")
		}
		sb.WriteString("\n")
	}
	h.reply(ctx, inv, strings.TrimRight(sb.String(), "\n"))
	return nil
}

func (h *Handlers) actor(inv *Invocation) services.Actor {
	return services.Actor{
		ID:       inv.AuthorID,
		Username: inv.AuthorUsername,
		Sage:     inv.Sage,
	}
}

// resolveTarget finds the profile the sage command targets. Answers the sage
// directly when nothing matches; callers then return nil.
func (h *Handlers) resolveTarget(ctx context.Context, inv *Invocation) (*models.Profile, error) {
	query := strings.TrimSpace(inv.Arg(0))
	if query == "" {
		h.reply(ctx, inv, h.bundle.T("sages.member_not_found", inv.Lang, i18n.Vars{"search": query}))
		return nil, services.ErrMemberNotFound
	}

	if id, username, displayName, err := h.chat.ResolveMember(ctx, query); err == nil {
		profile, _, err := h.profiles.Ensure(ctx, id, username, displayName)
		if err != nil {
			return nil, err
		}
		return profile, nil
	}

	profile, err := h.profiles.FindByUsername(ctx, query)
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			h.reply(ctx, inv, h.bundle.T("sages.member_not_found", inv.Lang, i18n.Vars{"search": query}))
		}
		return nil, err
	}
	return profile, nil
}

func (h *Handlers) replyModerationError(ctx context.Context, inv *Invocation, err error, username string) {
	switch {
	case errors.Is(err, services.ErrAlreadyApproved):
		h.reply(ctx, inv, h.bundle.T("sages.already_approved", inv.Lang, i18n.Vars{"member": username}))
	case errors.Is(err, services.ErrAlreadyRefused):
		h.reply(ctx, inv, h.bundle.T("sages.already_refused", inv.Lang, i18n.Vars{"member": username}))
	case errors.Is(err, services.ErrCharterNotAccepted):
		h.reply(ctx, inv, h.bundle.T("sages.charter_not_validated", inv.Lang, i18n.Vars{"member": username}))
	case errors.Is(err, services.ErrMemberNotFound):
		h.reply(ctx, inv, h.bundle.T("sages.member_not_found", inv.Lang, i18n.Vars{"search": username}))
	default:
		h.logger.Error("moderation action failed", "error", err)
		h.reply(ctx, inv, h.bundle.T("sages.action_failed", inv.Lang, nil))
	}
}
