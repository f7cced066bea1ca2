package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/services"
)

// Notifier delivers the bot's side-channel messages: sage channel
// announcements and decision DMs. Failures are logged, never fatal; the
// database state is already committed when these run.
type Notifier struct {
	chat             Session
	bundle           *i18n.Bundle
	profiles         *services.ProfileService
	sageChannelID    string
	publicChannelID  string
	welcomeChannelID string
	guildName        string
	logger           *slog.Logger
}

func NewNotifier(chat Session, bundle *i18n.Bundle, profiles *services.ProfileService, sageChannelID, publicChannelID, welcomeChannelID, guildName string, logger *slog.Logger) *Notifier {
	return &Notifier{
		chat:             chat,
		bundle:           bundle,
		profiles:         profiles,
		sageChannelID:    sageChannelID,
		publicChannelID:  publicChannelID,
		welcomeChannelID: welcomeChannelID,
		guildName:        guildName,
		logger:           logger,
	}
}

// MemberJoined greets a new guild member in the welcome channel and points
// them at their DMs, where the registration flow has just started.
func (n *Notifier) MemberJoined(ctx context.Context, memberID int64) {
	if n.welcomeChannelID == "" {
		return
	}
	n.toChannel(ctx, n.welcomeChannelID, n.bundle.T("welcome.guild", i18n.DefaultLanguage, i18n.Vars{
		"member": mention(memberID),
		"guild":  n.guildName,
	}))
}

// NewRegistration announces a finished registration in the sage channel.
func (n *Notifier) NewRegistration(ctx context.Context, memberID int64, players []models.Player) {
	if n.sageChannelID == "" {
		return
	}
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.PlayerName)
	}
	playersText := strings.Join(names, ", ")
	if playersText == "" {
		playersText = n.bundle.T("sages.no_players", i18n.DefaultLanguage, nil)
	}
	n.toChannel(ctx, n.sageChannelID, n.bundle.T("sages.new_registration", i18n.DefaultLanguage, i18n.Vars{
		"member":  mention(memberID),
		"players": playersText,
	}))
}

// ReturningMember flags a member who came back under a new username.
func (n *Notifier) ReturningMember(ctx context.Context, memberID int64, oldUsername string) {
	if n.sageChannelID == "" {
		return
	}
	n.toChannel(ctx, n.sageChannelID, n.bundle.T("sages.returning_member", i18n.DefaultLanguage, i18n.Vars{
		"member":       mention(memberID),
		"old_username": oldUsername,
	}))
}

// NotifyDecision DMs the member about a moderation decision, in their
// language, and posts the public welcome on approval.
func (n *Notifier) NotifyDecision(ctx context.Context, decision *services.Decision, memberLang string) {
	profile := decision.Profile
	sageName := decision.Entry.ActorUsername

	switch decision.Action {
	case models.AuditApprove:
		n.toMember(ctx, profile.DiscordID,
			n.bundle.T("finish.approved", memberLang, i18n.Vars{"sage_name": sageName}))
		if n.publicChannelID != "" {
			n.toChannel(ctx, n.publicChannelID, n.bundle.T("sages.welcome_public", i18n.DefaultLanguage, i18n.Vars{
				"member": mention(profile.DiscordID),
				"guild":  n.guildName,
			}))
		}

	case models.AuditRefuse:
		msg := n.bundle.T("finish.refused", memberLang, nil)
		if decision.Entry.Details != nil {
			msg += "\n" + n.bundle.T("finish.refused_reason", memberLang, i18n.Vars{"reason": *decision.Entry.Details})
		}
		msg += "\n" + n.bundle.T("finish.refused_contact", memberLang, nil)
		n.toMember(ctx, profile.DiscordID, msg)
	}
}

// CaptureCompleted tells the member their screenshot was analyzed and is
// waiting for a decision. Implements services.CaptureObserver.
func (n *Notifier) CaptureCompleted(ctx context.Context, capture *models.Capture) {
	lang := n.memberLang(ctx, capture.MemberID)
	character := "?"
	var result models.CaptureResult
	if len(capture.Result) > 0 && json.Unmarshal(capture.Result, &result) == nil && result.CharacterName != "" {
		character = result.CharacterName
	}
	n.toMember(ctx, capture.MemberID, n.bundle.T("capture.completed", lang, i18n.Vars{
		"id":        strconv.Itoa(capture.ID),
		"character": character,
	}))
}

// CaptureFailed tells the member the analysis did not work out.
func (n *Notifier) CaptureFailed(ctx context.Context, capture *models.Capture) {
	lang := n.memberLang(ctx, capture.MemberID)
	reason := ""
	if capture.ErrorMessage != nil {
		reason = *capture.ErrorMessage
	}
	n.toMember(ctx, capture.MemberID, n.bundle.T("capture.failed", lang, i18n.Vars{
		"id":     strconv.Itoa(capture.ID),
		"reason": reason,
	}))
}

func (n *Notifier) memberLang(ctx context.Context, memberID int64) string {
	if n.profiles != nil {
		if profile, err := n.profiles.Get(ctx, memberID); err == nil {
			return profile.Language
		}
	}
	return i18n.DefaultLanguage
}

// mention renders a Discord user mention.
func mention(id int64) string {
	return "<@" + strconv.FormatInt(id, 10) + ">"
}

func (n *Notifier) toMember(ctx context.Context, memberID int64, content string) {
	if err := n.chat.SendDM(ctx, memberID, content); err != nil {
		n.logger.Warn("failed to DM member", "member_id", memberID, "error", err)
	}
}

func (n *Notifier) toChannel(ctx context.Context, channelID, content string) {
	if err := n.chat.SendChannel(ctx, channelID, content); err != nil {
		n.logger.Warn("failed to post to channel", "channel_id", channelID, "error", err)
	}
}
