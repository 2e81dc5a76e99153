package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/savora/api/internal/platform/httpx"
	"github.com/savora/api/internal/services"
)

// MenuHandlers exposes the public storefront menu.
type MenuHandlers struct {
	menu services.MenuService
}

// NewMenuHandlers constructs the public menu handlers.
func NewMenuHandlers(menu services.MenuService) *MenuHandlers {
	return &MenuHandlers{menu: menu}
}

// Routes wires the /menu endpoints onto the provided router.
func (h *MenuHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Get("/{itemID}", h.get)
}

func (h *MenuHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.MenuListQuery{
		Category: r.URL.Query().Get("category"),
		// The storefront only shows orderable dishes unless asked otherwise.
		AvailableOnly: true,
	}
	if raw := r.URL.Query().Get("available"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			query.AvailableOnly = parsed
		}
	}

	items, err := h.menu.List(ctx, query)
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}

	payload := make([]menuItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildMenuItemPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *MenuHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
		return
	}

	item, err := h.menu.Get(ctx, chi.URLParam(r, "itemID"))
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildMenuItemPayload(item))
}

func writeMenuError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMenuInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrMenuItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_not_found", "menu item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrMenuUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_not_configured", "image uploads are not configured", http.StatusNotImplemented))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
	}
}
