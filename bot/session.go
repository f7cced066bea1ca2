package bot

import "context"

// Attachment is a file the member attached to a command message.
type Attachment struct {
	Filename string
	URL      string
	Size     int
}

// Message is one inbound chat message, already stripped of transport detail.
type Message struct {
	AuthorID          int64
	AuthorUsername    string
	AuthorDisplayName string
	ChannelID         string
	DM                bool
	Content           string
	Attachments       []Attachment
	Sage              bool
}

// Invocation is a parsed command: the message plus command name, arguments,
// and the member's resolved language. Capabilities (Sage) come from the
// transport adapter, never from message content.
type Invocation struct {
	Message
	Command string
	Args    []string
	Lang    string
}

// Arg returns the i-th argument or "".
func (inv *Invocation) Arg(i int) string {
	if i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Session is what commands need from the chat platform. The discordgo
// adapter implements it; tests use a fake.
type Session interface {
	// SendDM delivers a private message to a member.
	SendDM(ctx context.Context, userID int64, content string) error
	// SendChannel posts to a channel by id.
	SendChannel(ctx context.Context, channelID, content string) error

	// AddRole / RemoveRole manage guild roles by id.
	AddRole(ctx context.Context, userID int64, roleID string) error
	RemoveRole(ctx context.Context, userID int64, roleID string) error

	// ResolveMember finds a guild member from a mention, id, or username
	// fragment. Returns the member's id, username, and display name.
	ResolveMember(ctx context.Context, query string) (int64, string, string, error)

	// Download fetches an attachment body.
	Download(ctx context.Context, url string) ([]byte, error)
}
