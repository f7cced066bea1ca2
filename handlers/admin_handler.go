package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/thisispsg/community-bot/mapgen"
	"github.com/thisispsg/community-bot/services"
)

var errMissingTarget = errors.New("missing target query parameter")

// AdminHandler exposes read-only state for the admin dashboard: the review
// queue, capture queue depth, audit trail, plus the rendered members map.
type AdminHandler struct {
	profiles   *services.ProfileService
	moderation *services.ModerationService
	captures   *services.CaptureService
	mapGen     *mapgen.Generator
	logger     *slog.Logger
}

func NewAdminHandler(
	profiles *services.ProfileService,
	moderation *services.ModerationService,
	captures *services.CaptureService,
	mapGen *mapgen.Generator,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		profiles:   profiles,
		moderation: moderation,
		captures:   captures,
		mapGen:     mapGen,
		logger:     logger,
	}
}

// Healthz answers liveness probes.
func (h *AdminHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil)
}

// PendingRegistrations lists profiles awaiting a sage decision.
func (h *AdminHandler) PendingRegistrations(w http.ResponseWriter, r *http.Request) {
	pending, err := h.profiles.ListPending(r.Context())
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"pending": pending, "count": len(pending)}, nil)
}

// CaptureQueue reports the queue depth per status.
func (h *AdminHandler) CaptureQueue(w http.ResponseWriter, r *http.Request) {
	counts, err := h.captures.QueueDepth(r.Context())
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"queue": counts}, nil)
}

// AuditTrail returns recorded moderation actions for ?target=<username>.
func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		badRequestResponse(w, r, errMissingTarget)
		return
	}
	entries, err := h.moderation.AuditTrail(r.Context(), target)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"entries": entries}, nil)
}

// Map serves the current members map HTML, rendered on demand from live
// data. The published R2 copy is the public one; this endpoint is for admins.
func (h *AdminHandler) Map(w http.ResponseWriter, r *http.Request) {
	if h.mapGen == nil {
		notFoundResponse(w, r)
		return
	}
	html, err := h.mapGen.Render(r.Context())
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}
