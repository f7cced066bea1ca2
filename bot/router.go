package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/metrics"
	"github.com/thisispsg/community-bot/ratelimit"
)

// Prefix starts every command message.
const Prefix = "!"

// Rate limit windows per command family.
const (
	registrationLimitCalls = 3
	registrationLimitWin   = 5 * time.Minute
	locationLimitCalls     = 5
	locationLimitWin       = time.Minute
	generalLimitCalls      = 10
	generalLimitWin        = time.Minute
)

// LimitClass picks which rate limiter a command draws from.
type LimitClass int

const (
	LimitGeneral LimitClass = iota
	LimitRegistration
	LimitLocation
)

// HandlerFunc runs one command invocation. Returned errors are logged and
// answered with a generic failure message in the member's language.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Command declares one chat command.
type Command struct {
	Name    string
	Aliases []string
	// Sage restricts the command to members holding the sage role.
	Sage bool
	// DMOnly commands are ignored outside private messages.
	DMOnly  bool
	Limit   LimitClass
	Handler HandlerFunc
}

// Interceptor sees every non-command DM first; it returns true when it
// consumed the message. The registration flow uses this to read replies.
type Interceptor interface {
	HandleMessage(ctx context.Context, msg *Message, lang string) bool
}

// Router parses prefixed messages, enforces capabilities and rate limits,
// and dispatches to the registered command handlers.
type Router struct {
	session     Session
	bundle      *i18n.Bundle
	logger      *slog.Logger
	commands    map[string]*Command
	interceptor Interceptor

	registrationLimiter *ratelimit.Limiter
	locationLimiter     *ratelimit.Limiter
	generalLimiter      *ratelimit.Limiter
}

func NewRouter(session Session, bundle *i18n.Bundle, logger *slog.Logger) *Router {
	return &Router{
		session:             session,
		bundle:              bundle,
		logger:              logger,
		commands:            make(map[string]*Command),
		registrationLimiter: ratelimit.New(registrationLimitCalls, registrationLimitWin),
		locationLimiter:     ratelimit.New(locationLimitCalls, locationLimitWin),
		generalLimiter:      ratelimit.New(generalLimitCalls, generalLimitWin),
	}
}

// Register adds a command and its aliases. Panics on duplicate names; the
// command table is assembled once at startup.
func (r *Router) Register(cmd *Command) {
	for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
		key := strings.ToLower(name)
		if _, exists := r.commands[key]; exists {
			panic(fmt.Sprintf("duplicate command registration: %s", name))
		}
		r.commands[key] = cmd
	}
}

// SetInterceptor installs the non-command DM consumer.
func (r *Router) SetInterceptor(i Interceptor) {
	r.interceptor = i
}

// Dispatch handles one inbound message end to end. lang is the member's
// stored language ("" falls back to the default).
func (r *Router) Dispatch(ctx context.Context, msg *Message, lang string) {
	if lang == "" {
		lang = i18n.DefaultLanguage
	}

	if !strings.HasPrefix(msg.Content, Prefix) {
		if msg.DM && r.interceptor != nil {
			r.interceptor.HandleMessage(ctx, msg, lang)
		}
		return
	}

	fields := strings.Fields(strings.TrimPrefix(msg.Content, Prefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])

	inv := &Invocation{
		Message: *msg,
		Command: name,
		Args:    fields[1:],
		Lang:    lang,
	}

	cmd, ok := r.commands[name]
	if !ok {
		metrics.CommandsTotal.WithLabelValues("unknown", "unknown").Inc()
		r.reply(ctx, inv, r.bundle.T("errors.unknown_command", lang, nil))
		return
	}

	if cmd.Sage && !msg.Sage {
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "forbidden").Inc()
		r.reply(ctx, inv, r.bundle.T("errors.sage_only", lang, nil))
		return
	}
	if cmd.DMOnly && !msg.DM {
		return
	}

	if ok, wait := r.limiter(cmd.Limit).Allow(msg.AuthorID); !ok {
		metrics.RateLimitedTotal.Inc()
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "rate_limited").Inc()
		r.reply(ctx, inv, r.bundle.T("errors.rate_limited", lang, i18n.Vars{
			"seconds": strconv.Itoa(int(wait.Seconds()) + 1),
		}))
		return
	}

	start := time.Now()
	err := cmd.Handler(ctx, inv)
	metrics.CommandDuration.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "error").Inc()
		r.logger.Error("command failed",
			"command", cmd.Name, "member_id", msg.AuthorID, "error", err)
		r.reply(ctx, inv, r.bundle.T("errors.internal", lang, nil))
		return
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Name, "ok").Inc()
}

func (r *Router) limiter(class LimitClass) *ratelimit.Limiter {
	switch class {
	case LimitRegistration:
		return r.registrationLimiter
	case LimitLocation:
		return r.locationLimiter
	default:
		return r.generalLimiter
	}
}

// reply answers in place: same channel for guild messages, DM otherwise.
func (r *Router) reply(ctx context.Context, inv *Invocation, content string) {
	var err error
	if inv.DM {
		err = r.session.SendDM(ctx, inv.AuthorID, content)
	} else {
		err = r.session.SendChannel(ctx, inv.ChannelID, content)
	}
	if err != nil {
		r.logger.Warn("failed to send reply", "member_id", inv.AuthorID, "error", err)
	}
}
