package product

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/platform/httpx"
	"github.com/vendsight/vendsight/internal/report"
)

// TreeSource yields the current actor tree. Satisfied by report.Service.
type TreeSource interface {
	Tree() (*hierarchy.Tree, error)
}

// Handler exposes the product-map JSON API.
type Handler struct {
	logger    *slog.Logger
	collector *Collector
	trees     TreeSource
}

// NewHandler constructs the product HTTP handler.
func NewHandler(logger *slog.Logger, collector *Collector, trees TreeSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, collector: collector, trees: trees}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listAll)
		r.Get("/unmapped", h.listUnmapped)
	})
	r.Get("/machines/{machineID}/products", h.machineProducts)
}

type collection struct {
	Machines []MachineProducts `json:"machines"`
	Stats    Stats             `json:"stats"`
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	tree, err := h.trees.Tree()
	if err != nil {
		h.respondError(w, "list product maps", err)
		return
	}
	all, stats, err := h.collector.CollectAll(r.Context(), tree)
	if err != nil {
		h.respondError(w, "list product maps", err)
		return
	}
	httpx.JSON(w, http.StatusOK, collection{Machines: all, Stats: stats})
}

func (h *Handler) listUnmapped(w http.ResponseWriter, r *http.Request) {
	tree, err := h.trees.Tree()
	if err != nil {
		h.respondError(w, "list unmapped products", err)
		return
	}
	all, stats, err := h.collector.CollectAll(r.Context(), tree)
	if err != nil {
		h.respondError(w, "list unmapped products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, collection{Machines: Unmapped(all), Stats: stats})
}

func (h *Handler) machineProducts(w http.ResponseWriter, r *http.Request) {
	tree, err := h.trees.Tree()
	if err != nil {
		h.respondError(w, "fetch product map", err)
		return
	}
	m, err := tree.Machine(chi.URLParam(r, "machineID"))
	if err != nil {
		h.respondError(w, "fetch product map", err)
		return
	}
	products, err := h.collector.fetcher.FetchProductMap(r.Context(), m.ID)
	if err != nil {
		h.respondError(w, "fetch product map", err)
		return
	}
	httpx.JSON(w, http.StatusOK, MachineProducts{MachineID: m.ID, Name: m.Name, Products: products})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, report.ErrNoTree):
		httpx.Problem(w, http.StatusConflict, "tree not loaded", "refresh the actor tree before querying")
	case errors.Is(err, hierarchy.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "machine not found", err.Error())
	case errors.Is(err, context.Canceled):
		httpx.Problem(w, http.StatusServiceUnavailable, "request cancelled", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "")
	}
}
