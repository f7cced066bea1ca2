package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/services"
)

// Capture routes the capture subcommands:
//
//	!capture                      submit the attached screenshot
//	!capture <player>             submit, naming the player
//	!capture valider <id>         accept the analyzed stats
//	!capture refuser <id>         discard the analyzed stats
//	!capture liste                list captures awaiting a decision
func (h *Handlers) Capture(ctx context.Context, inv *Invocation) error {
	switch strings.ToLower(inv.Arg(0)) {
	case "valider", "validate":
		return h.captureValidate(ctx, inv)
	case "refuser", "reject":
		return h.captureReject(ctx, inv)
	case "liste", "list":
		return h.captureList(ctx, inv)
	default:
		return h.captureSubmit(ctx, inv)
	}
}

func (h *Handlers) captureSubmit(ctx context.Context, inv *Invocation) error {
	if len(inv.Attachments) == 0 {
		h.reply(ctx, inv, h.bundle.T("capture.missing_image", inv.Lang, nil))
		return nil
	}
	att := inv.Attachments[0]

	var playerID *int
	if name := strings.TrimSpace(strings.Join(inv.Args, " ")); name != "" {
		player, err := h.roster.FindByName(ctx, inv.AuthorID, name)
		if err != nil {
			if errors.Is(err, services.ErrPlayerNotFound) {
				h.reply(ctx, inv, h.bundle.T("players.invalid_name", inv.Lang, i18n.Vars{"player_name": name}))
				return nil
			}
			return err
		}
		playerID = &player.ID
	}

	image, err := h.chat.Download(ctx, att.URL)
	if err != nil {
		return fmt.Errorf("failed to download attachment: %w", err)
	}

	capture, err := h.captures.Submit(ctx, inv.AuthorID, playerID, image, att.Filename)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCaptureEmptyImage),
			errors.Is(err, services.ErrCaptureImageTooBig),
			errors.Is(err, services.ErrCaptureBadImageType):
			h.reply(ctx, inv, h.bundle.T("capture.invalid_image", inv.Lang, i18n.Vars{"reason": err.Error()}))
			return nil
		}
		return err
	}

	h.reply(ctx, inv, h.bundle.T("capture.queued", inv.Lang, i18n.Vars{
		"id": strconv.Itoa(capture.ID),
	}))
	return nil
}

func (h *Handlers) captureValidate(ctx context.Context, inv *Invocation) error {
	id, ok := h.captureArgID(ctx, inv)
	if !ok {
		return nil
	}

	if _, err := h.captures.Validate(ctx, inv.AuthorID, id); err != nil {
		h.replyCaptureError(ctx, inv, err, id)
		return nil
	}
	h.reply(ctx, inv, h.bundle.T("capture.validated", inv.Lang, i18n.Vars{
		"id": strconv.Itoa(id),
	}))
	return nil
}

func (h *Handlers) captureReject(ctx context.Context, inv *Invocation) error {
	id, ok := h.captureArgID(ctx, inv)
	if !ok {
		return nil
	}

	if err := h.captures.Reject(ctx, inv.AuthorID, id); err != nil {
		h.replyCaptureError(ctx, inv, err, id)
		return nil
	}
	h.reply(ctx, inv, h.bundle.T("capture.rejected", inv.Lang, i18n.Vars{
		"id": strconv.Itoa(id),
	}))
	return nil
}

func (h *Handlers) captureList(ctx context.Context, inv *Invocation) error {
	captures, err := h.captures.ListAwaiting(ctx, inv.AuthorID)
	if err != nil {
		return err
	}
	if len(captures) == 0 {
		h.reply(ctx, inv, h.bundle.T("capture.none_waiting", inv.Lang, nil))
		return nil
	}

	var sb strings.Builder
	for _, c := range captures {
		character := "?"
		var result models.CaptureResult
		if json.Unmarshal(c.Result, &result) == nil && result.CharacterName != "" {
			character = result.CharacterName
		}
		sb.WriteString(h.bundle.T("capture.completed", inv.Lang, i18n.Vars{
			"id":        strconv.Itoa(c.ID),
			"character": character,
		}))
		sb.WriteString("\n")
	}
	h.reply(ctx, inv, strings.TrimRight(sb.String(), "\n"))
	return nil
}

func (h *Handlers) captureArgID(ctx context.Context, inv *Invocation) (int, bool) {
	id, err := strconv.Atoi(inv.Arg(1))
	if err != nil || id <= 0 {
		h.reply(ctx, inv, h.bundle.T("capture.bad_state", inv.Lang, i18n.Vars{"id": inv.Arg(1)}))
		return 0, false
	}
	return id, true
}

func (h *Handlers) replyCaptureError(ctx context.Context, inv *Invocation, err error, id int) {
	idStr := strconv.Itoa(id)
	switch {
	case errors.Is(err, services.ErrCaptureNotFound):
		h.reply(ctx, inv, h.bundle.T("capture.none_waiting", inv.Lang, nil))
	case errors.Is(err, services.ErrCaptureNotOwned):
		h.reply(ctx, inv, h.bundle.T("capture.not_yours", inv.Lang, nil))
	case errors.Is(err, services.ErrCaptureWrongState):
		h.reply(ctx, inv, h.bundle.T("capture.bad_state", inv.Lang, i18n.Vars{"id": idStr}))
	case errors.Is(err, services.ErrPlayerNotFound):
		h.reply(ctx, inv, h.bundle.T("players.none", inv.Lang, nil))
	default:
		h.logger.Error("capture action failed", "capture_id", id, "error", err)
		h.reply(ctx, inv, h.bundle.T("errors.internal", inv.Lang, nil))
	}
}
