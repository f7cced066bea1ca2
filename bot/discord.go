package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/thisispsg/community-bot/services"
)

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

// Discord adapts discordgo to the Session interface and feeds inbound
// messages to the router.
type Discord struct {
	session      *discordgo.Session
	guildID      string
	sageRoleID   string
	newbieRoleID string
	httpClient   *http.Client
	logger       *slog.Logger

	router   *Router
	profiles *services.ProfileService
	notifier *Notifier
	flow     *Flow
}

func NewDiscord(token, guildID, sageRoleID, newbieRoleID string, logger *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Discord{
		session:      session,
		guildID:      guildID,
		sageRoleID:   sageRoleID,
		newbieRoleID: newbieRoleID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}, nil
}

// Attach wires the router and its collaborators, then registers the gateway
// handlers. Call before Open.
func (d *Discord) Attach(router *Router, profiles *services.ProfileService, notifier *Notifier, flow *Flow) {
	d.router = router
	d.profiles = profiles
	d.notifier = notifier
	d.flow = flow
	d.session.AddHandler(d.onMessageCreate)
	d.session.AddHandler(d.onGuildMemberAdd)
}

// Open connects the gateway.
func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	d.logger.Info("discord gateway connected")
	return nil
}

// Close shuts the gateway down.
func (d *Discord) Close() error {
	return d.session.Close()
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	authorID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	isDM := m.GuildID == ""
	displayName := m.Author.GlobalName
	sage := false
	if isDM {
		sage = d.hasSageRole(d.memberRoles(authorID))
	} else {
		if m.Member != nil {
			if m.Member.Nick != "" {
				displayName = m.Member.Nick
			}
			sage = d.hasSageRole(m.Member.Roles)
		}
	}

	profile, previousUsername, err := d.profiles.Ensure(ctx, authorID, m.Author.Username, displayName)
	if err != nil {
		d.logger.Error("failed to ensure profile", "member_id", authorID, "error", err)
		return
	}
	if previousUsername != "" && d.notifier != nil {
		d.notifier.ReturningMember(ctx, authorID, previousUsername)
	}

	msg := &Message{
		AuthorID:          authorID,
		AuthorUsername:    m.Author.Username,
		AuthorDisplayName: displayName,
		ChannelID:         m.ChannelID,
		DM:                isDM,
		Content:           m.Content,
		Sage:              sage,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: a.Filename,
			URL:      a.URL,
			Size:     a.Size,
		})
	}

	d.router.Dispatch(ctx, msg, profile.Language)
}

// onGuildMemberAdd greets a new guild member: newbie role, profile row,
// welcome channel message, and the registration flow started over DM.
func (d *Discord) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	memberID, err := strconv.ParseInt(m.User.ID, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if d.newbieRoleID != "" {
		if err := d.AddRole(ctx, memberID, d.newbieRoleID); err != nil {
			d.logger.Warn("failed to assign newbie role", "member_id", memberID, "error", err)
		}
	}

	if _, _, err := d.profiles.Ensure(ctx, memberID, m.User.Username, memberDisplayName(m.Member)); err != nil {
		d.logger.Error("failed to ensure profile on join", "member_id", memberID, "error", err)
		return
	}

	if d.notifier != nil {
		d.notifier.MemberJoined(ctx, memberID)
	}
	if d.flow != nil {
		if err := d.flow.StartForMember(ctx, memberID); err != nil {
			d.logger.Warn("failed to start registration on join", "member_id", memberID, "error", err)
		}
	}
	d.logger.Info("guild member joined", "member_id", memberID)
}

func (d *Discord) memberRoles(userID int64) []string {
	member, err := d.session.GuildMember(d.guildID, strconv.FormatInt(userID, 10))
	if err != nil || member == nil {
		return nil
	}
	return member.Roles
}

func (d *Discord) hasSageRole(roles []string) bool {
	if d.sageRoleID == "" {
		return false
	}
	for _, r := range roles {
		if r == d.sageRoleID {
			return true
		}
	}
	return false
}

// SendDM delivers a private message.
func (d *Discord) SendDM(ctx context.Context, userID int64, content string) error {
	channel, err := d.session.UserChannelCreate(strconv.FormatInt(userID, 10))
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	if _, err := d.session.ChannelMessageSend(channel.ID, content); err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	return nil
}

// SendChannel posts to a channel by id.
func (d *Discord) SendChannel(ctx context.Context, channelID, content string) error {
	if _, err := d.session.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("failed to send channel message: %w", err)
	}
	return nil
}

func (d *Discord) AddRole(ctx context.Context, userID int64, roleID string) error {
	return d.session.GuildMemberRoleAdd(d.guildID, strconv.FormatInt(userID, 10), roleID)
}

func (d *Discord) RemoveRole(ctx context.Context, userID int64, roleID string) error {
	return d.session.GuildMemberRoleRemove(d.guildID, strconv.FormatInt(userID, 10), roleID)
}

// ResolveMember finds a guild member from a mention, a raw id, or a username
// prefix.
func (d *Discord) ResolveMember(ctx context.Context, query string) (int64, string, string, error) {
	if match := mentionPattern.FindStringSubmatch(query); match != nil {
		query = match[1]
	}

	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		member, err := d.session.GuildMember(d.guildID, query)
		if err != nil {
			return 0, "", "", fmt.Errorf("member %d not in guild: %w", id, err)
		}
		return id, member.User.Username, memberDisplayName(member), nil
	}

	members, err := d.session.GuildMembersSearch(d.guildID, query, 1)
	if err != nil || len(members) == 0 {
		return 0, "", "", fmt.Errorf("no member matching %q", query)
	}
	member := members[0]
	id, err := strconv.ParseInt(member.User.ID, 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("unparsable member id %q", member.User.ID)
	}
	return id, member.User.Username, memberDisplayName(member), nil
}

// Download fetches an attachment body.
func (d *Discord) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
