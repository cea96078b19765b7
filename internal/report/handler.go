package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/vendsight/vendsight/internal/fee"
	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/platform/httpx"
)

// Handler exposes the reporting JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	runGroup  singleflight.Group
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/report", func(r chi.Router) {
		r.Get("/", h.runReport)
		r.Get("/export", h.exportReport)
	})
	r.Route("/tree", func(r chi.Router) {
		r.Get("/", h.showTree)
		r.Post("/refresh", h.refreshTree)
	})
	r.Route("/actors/{actorID}/fees", func(r chi.Router) {
		r.Get("/", h.listFees)
		r.Post("/", h.attachFee)
		r.Post("/bulk", h.bulkApplyFee)
		r.Delete("/", h.clearFees)
	})
}

type periodQuery struct {
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"required,datetime=2006-01-02"`
}

func (h *Handler) parsePeriod(r *http.Request) (periodQuery, error) {
	q := periodQuery{
		Start: strings.TrimSpace(r.URL.Query().Get("start")),
		End:   strings.TrimSpace(r.URL.Query().Get("end")),
	}
	if err := h.validator.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// runReport serves GET /report. Concurrent requests for the same period
// collapse onto one generation pass.
func (h *Handler) runReport(w http.ResponseWriter, r *http.Request) {
	q, err := h.parsePeriod(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid period", "start and end must be YYYY-MM-DD dates")
		return
	}
	rep, err := h.runShared(r.Context(), q)
	if err != nil {
		h.respondError(w, "run report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	q, err := h.parsePeriod(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid period", "start and end must be YYYY-MM-DD dates")
		return
	}
	rep, err := h.runShared(r.Context(), q)
	if err != nil {
		h.respondError(w, "export report", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sales_report_"+q.Start+"_"+q.End+".csv")
	if err := WriteCSV(w, rep); err != nil {
		h.logger.Error("stream report csv", slog.Any("error", err))
	}
}

func (h *Handler) runShared(ctx context.Context, q periodQuery) (*Report, error) {
	ch := h.runGroup.DoChan(q.Start+":"+q.End, func() (interface{}, error) {
		return h.service.Run(ctx, q.Start, q.End)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	}
}

type treeNode struct {
	ActorID   string             `json:"actor_id"`
	Name      string             `json:"name"`
	Kind      hierarchy.Kind     `json:"kind"`
	Activity  hierarchy.Activity `json:"activity,omitempty"`
	ActiveNow bool               `json:"active_now"`
	Children  []treeNode         `json:"children,omitempty"`
}

func (h *Handler) showTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.Tree()
	if err != nil {
		h.respondError(w, "show tree", err)
		return
	}
	root, err := tree.FindRoot()
	if err != nil {
		h.respondError(w, "show tree", err)
		return
	}
	httpx.JSON(w, http.StatusOK, buildTreeNode(tree, root))
}

func buildTreeNode(tree *hierarchy.Tree, actor hierarchy.Actor) treeNode {
	node := treeNode{
		ActorID:   actor.ActorID(),
		Name:      actor.DisplayName(),
		Kind:      actor.Kind(),
		ActiveNow: actor.ActiveNow(),
	}
	if m, ok := actor.(*hierarchy.Machine); ok && m.Activity != "" {
		node.Activity = m.Activity
	}
	for _, child := range tree.Children(actor.ActorID(), hierarchy.ChildFilter{}) {
		node.Children = append(node.Children, buildTreeNode(tree, child))
	}
	return node
}

func (h *Handler) refreshTree(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.respondError(w, "refresh tree", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

type feeRequest struct {
	Name   string  `json:"name" validate:"required,max=120"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Kind   string  `json:"kind" validate:"required"`
}

type feeResponse struct {
	OwnerID string   `json:"owner_id"`
	Name    string   `json:"name"`
	Amount  float64  `json:"amount"`
	Kind    fee.Kind `json:"kind"`
	Value   float64  `json:"value"`
}

func (h *Handler) listFees(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "actorID")
	fees, err := h.service.ListFees(ownerID)
	if err != nil {
		h.respondError(w, "list fees", err)
		return
	}
	out := make([]feeResponse, 0, len(fees))
	for _, f := range fees {
		out = append(out, feeResponse{OwnerID: f.OwnerID, Name: f.Name, Amount: f.Amount, Kind: f.Kind, Value: f.LastValue})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) attachFee(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "actorID")
	var req feeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid fee", err.Error())
		return
	}
	f := &fee.Fee{OwnerID: ownerID, Name: req.Name, Amount: req.Amount, Kind: fee.Kind(req.Kind)}
	if err := h.service.AttachFee(r.Context(), f); err != nil {
		h.respondError(w, "attach fee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, feeResponse{OwnerID: f.OwnerID, Name: f.Name, Amount: f.Amount, Kind: f.Kind})
}

func (h *Handler) bulkApplyFee(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "actorID")
	var req feeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid fee", err.Error())
		return
	}
	n, err := h.service.BulkApplyFee(r.Context(), ownerID, fee.Fee{Name: req.Name, Amount: req.Amount, Kind: fee.Kind(req.Kind)})
	if err != nil {
		h.respondError(w, "bulk apply fee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int{"applied": n})
}

func (h *Handler) clearFees(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "actorID")
	recursive := r.URL.Query().Get("recursive") == "true"
	if err := h.service.ClearFees(r.Context(), ownerID, recursive); err != nil {
		h.respondError(w, "clear fees", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNoTree):
		httpx.Problem(w, http.StatusConflict, "tree not loaded", "refresh the actor tree before querying")
	case errors.Is(err, hierarchy.ErrNotFound), errors.Is(err, fee.ErrUnknownActor):
		httpx.Problem(w, http.StatusNotFound, "actor not found", err.Error())
	case errors.Is(err, fee.ErrUnknownKind), errors.Is(err, fee.ErrDuplicateRevenueFee):
		httpx.Problem(w, http.StatusUnprocessableEntity, "invalid fee", err.Error())
	case errors.Is(err, hierarchy.ErrNoRoot), errors.Is(err, hierarchy.ErrAmbiguousRoot):
		httpx.Problem(w, http.StatusConflict, "tree has no usable root", err.Error())
	case errors.Is(err, context.Canceled):
		httpx.Problem(w, http.StatusServiceUnavailable, "request cancelled", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
	}
}
