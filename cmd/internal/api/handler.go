// Package api exposes the HTTP side of livecheck: reference uploads and
// read-only views of sessions and their recorded outcomes.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"livecheck/cmd/internal/outcome"
	"livecheck/cmd/internal/verify"
)

const (
	defaultMaxUploadBytes = 10 << 20 // 10 MiB
	multipartMemory       = 1 << 20

	msgUploaded = "Target face uploaded successfully."
)

// Sessions is the part of verify.Registry the handler needs.
type Sessions interface {
	Upload(ctx context.Context, id string, img []byte) (*verify.Artifact, error)
	Snapshot(id string) (verify.Snapshot, bool)
}

// OutcomeReader lists recorded runs for a session.
type OutcomeReader interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]outcome.Record, error)
}

// Config controls request limits.
type Config struct {
	MaxUploadBytes int64
}

// Handler wires HTTP endpoints to the session registry.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions Sessions
	outcomes OutcomeReader
	ttl      time.Duration
}

// NewHandler constructs a Handler. outcomes may be nil, in which case the
// outcomes endpoint reports an empty history.
func NewHandler(log *slog.Logger, cfg Config, sessions Sessions, outcomes OutcomeReader, ttl time.Duration) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{log: log, cfg: cfg, sessions: sessions, outcomes: outcomes, ttl: ttl}
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /upload_target", h.handleUpload)
	mux.HandleFunc("GET /sessions/{id}", h.handleSession)
	mux.HandleFunc("GET /sessions/{id}/outcomes", h.handleOutcomes)
}

// ---- handlers ----

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.cfg.MaxUploadBytes {
		writeUploadError(w, http.StatusRequestEntityTooLarge, "Image too large.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeUploadError(w, http.StatusRequestEntityTooLarge, "Image too large.")
			return
		}
		writeUploadError(w, http.StatusBadRequest, "No image file provided.")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("target_image")
	if err != nil {
		// A file input submitted with nothing chosen arrives as a plain value.
		if _, ok := r.MultipartForm.Value["target_image"]; ok {
			writeUploadError(w, http.StatusBadRequest, "No selected file.")
			return
		}
		writeUploadError(w, http.StatusBadRequest, "No image file provided.")
		return
	}
	defer func() { _ = file.Close() }()

	if strings.TrimSpace(header.Filename) == "" {
		writeUploadError(w, http.StatusBadRequest, "No selected file.")
		return
	}

	sessionID := strings.TrimSpace(r.FormValue("socket_id"))
	if sessionID == "" {
		writeUploadError(w, http.StatusBadRequest, verify.UserMessage(verify.ErrMissingSession))
		return
	}

	img, err := readPart(file)
	if err != nil || len(img) == 0 {
		writeUploadError(w, http.StatusBadRequest, "File could not be processed.")
		return
	}

	a, err := h.sessions.Upload(r.Context(), sessionID, img)
	if err != nil {
		status := uploadStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("upload.fail", "session_id", sessionID, "err", err)
		} else {
			h.log.Info("upload.rejected", "session_id", sessionID, "err", err)
		}
		writeUploadError(w, status, verify.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:    "success",
		Message:   msgUploaded,
		Handle:    a.Handle,
		Digest:    a.Digest,
		ExpiresAt: a.CreatedAt.Add(h.ttl).UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	snap, ok := h.sessions.Snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (h *Handler) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	resp := outcomesResponse{SessionID: id, Outcomes: []outcomeResponse{}}
	if h.outcomes != nil {
		recs, err := h.outcomes.Recent(r.Context(), id, limit)
		if err != nil {
			h.log.Error("outcomes.list.fail", "session_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		for _, rec := range recs {
			resp.Outcomes = append(resp.Outcomes, toOutcomeResponse(rec))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadStatus maps a registry error onto an HTTP status.
func uploadStatus(err error) int {
	switch {
	case errors.Is(err, verify.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, verify.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func readPart(f multipart.File) ([]byte, error) {
	return io.ReadAll(f)
}
