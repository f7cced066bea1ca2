package handlers

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/thisispsg/community-bot/middleware"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/services"
)

// WorkerHandler serves the capture analysis workers: claim the next queued
// screenshot, report the result or a failure.
type WorkerHandler struct {
	captures *services.CaptureService
	logger   *slog.Logger
}

func NewWorkerHandler(captures *services.CaptureService, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{captures: captures, logger: logger}
}

type claimResponse struct {
	ID        int    `json:"id"`
	MemberID  int64  `json:"member_id"`
	PlayerID  *int   `json:"player_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	ImageData string `json:"image_data"` // base64
}

// Claim hands the oldest pending capture to the calling worker.
// 204 when the queue is empty.
func (h *WorkerHandler) Claim(w http.ResponseWriter, r *http.Request) {
	capture, err := h.captures.ClaimNext(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrCaptureNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		serverErrorResponse(w, r, err)
		return
	}

	workerID, _ := middleware.WorkerFromContext(r.Context())
	h.logger.Info("capture claimed", "capture_id", capture.ID, "worker", workerID)

	resp := claimResponse{
		ID:        capture.ID,
		MemberID:  capture.MemberID,
		PlayerID:  capture.PlayerID,
		Filename:  capture.ImageFilename,
		ImageData: base64.StdEncoding.EncodeToString(capture.ImageData),
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Complete records the analysis result for a claimed capture.
func (h *WorkerHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := captureID(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var result models.CaptureResult
	if err := readJSON(w, r, &result); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	capture, err := h.captures.Complete(r.Context(), id, result)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, capture, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type failRequest struct {
	Reason string `json:"reason"`
}

// Fail marks a claimed capture as failed.
func (h *WorkerHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := captureID(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var req failRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "analysis failed"
	}

	capture, err := h.captures.Fail(r.Context(), id, req.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, capture, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func captureID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid capture id")
	}
	return id, nil
}
