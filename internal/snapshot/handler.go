package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vendsight/vendsight/internal/platform/httpx"
	"github.com/vendsight/vendsight/internal/report"
)

// Enqueuer submits snapshot processing tasks. Implemented by jobs.Client.
type Enqueuer interface {
	EnqueueSnapshot(ctx context.Context, snapshotID int64) (*asynq.TaskInfo, error)
}

// Handler exposes the snapshot JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueue   Enqueuer
	validator *validator.Validate
}

// NewHandler constructs the snapshot HTTP handler. enqueue may be nil when
// no worker is deployed; triggered snapshots then stay pending.
func NewHandler(logger *slog.Logger, service *Service, enqueue Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueue: enqueue, validator: validator.New()}
}

// MountRoutes registers snapshot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/snapshots", func(r chi.Router) {
		r.Post("/", h.trigger)
		r.Get("/", h.list)
		r.Get("/{token}", h.show)
		r.Get("/{token}/export", h.export)
	})
}

type triggerRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type snapshotResponse struct {
	Token       string         `json:"token"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	GeneratedAt *string        `json:"generated_at,omitempty"`
	Report      *report.Report `json:"report,omitempty"`
}

func toResponse(snap Snapshot, includePayload bool) snapshotResponse {
	resp := snapshotResponse{
		Token:  snap.Token.String(),
		Start:  snap.Start,
		End:    snap.End,
		Status: snap.Status,
		Error:  snap.Error,
	}
	if snap.GeneratedAt != nil {
		s := snap.GeneratedAt.Format("2006-01-02 15:04:05")
		resp.GeneratedAt = &s
	}
	if includePayload {
		resp.Report = snap.Payload
	}
	return resp
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid period", "start and end must be YYYY-MM-DD dates")
		return
	}
	snap, err := h.service.Trigger(r.Context(), Request{Start: req.Start, End: req.End})
	if err != nil {
		h.respondError(w, "trigger snapshot", err)
		return
	}
	if h.enqueue != nil {
		if _, err := h.enqueue.EnqueueSnapshot(r.Context(), snap.ID); err != nil {
			h.logger.Warn("enqueue snapshot", slog.Int64("snapshot_id", snap.ID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusAccepted, toResponse(snap, false))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list snapshots", err)
		return
	}
	out := make([]snapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toResponse(snap, false))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(snap, true))
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if snap.Status != StatusReady || snap.Payload == nil {
		httpx.Problem(w, http.StatusConflict, "snapshot not ready", "the report has not been generated yet")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=snapshot_"+snap.Token.String()+".csv")
	if err := report.WriteCSV(w, snap.Payload); err != nil {
		h.logger.Error("stream snapshot csv", slog.Any("error", err))
	}
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (Snapshot, bool) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid token", "token must be a UUID")
		return Snapshot{}, false
	}
	snap, err := h.service.GetByToken(r.Context(), token)
	if err != nil {
		h.respondError(w, "load snapshot", err)
		return Snapshot{}, false
	}
	return snap, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "snapshot not found", "")
	case errors.Is(err, ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "invalid period", err.Error())
	case errors.Is(err, report.ErrNoTree):
		httpx.Problem(w, http.StatusConflict, "tree not loaded", "refresh the actor tree before triggering snapshots")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
	}
}
