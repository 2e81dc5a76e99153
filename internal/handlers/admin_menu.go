package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savora/api/internal/platform/auth"
	"github.com/savora/api/internal/platform/httpx"
	"github.com/savora/api/internal/services"
)

const maxAdminMenuBodySize = 32 * 1024

// AdminMenuHandlers exposes the menu management endpoints.
type AdminMenuHandlers struct {
	authn *auth.Authenticator
	menu  services.MenuService
}

// NewAdminMenuHandlers constructs the admin menu handlers.
func NewAdminMenuHandlers(authn *auth.Authenticator, menu services.MenuService) *AdminMenuHandlers {
	return &AdminMenuHandlers{authn: authn, menu: menu}
}

// Routes wires the admin menu endpoints onto the provided router.
func (h *AdminMenuHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Post("/", h.create)
	r.Patch("/{itemID}", h.update)
	r.Delete("/{itemID}", h.remove)
	r.Post("/{itemID}/image", h.issueImageUpload)
}

type createMenuItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Available   *bool  `json:"available"`
}

type updateMenuItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Price       *int64  `json:"price"`
	Available   *bool   `json:"available"`
}

type imageUploadRequest struct {
	ContentType string `json:"contentType"`
}

type imageUploadResponse struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ObjectPath string            `json:"objectPath"`
	ExpiresAt  string            `json:"expiresAt"`
}

func (h *AdminMenuHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminMenuBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createMenuItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	item, err := h.menu.Create(ctx, services.CreateMenuItemCommand{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Available:   req.Available,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildMenuItemPayload(item))
}

func (h *AdminMenuHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminMenuBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateMenuItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	item, err := h.menu.Update(ctx, services.UpdateMenuItemCommand{
		ItemID:      chi.URLParam(r, "itemID"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Available:   req.Available,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildMenuItemPayload(item))
}

func (h *AdminMenuHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
		return
	}

	itemID := chi.URLParam(r, "itemID")
	if err := h.menu.Delete(ctx, itemID); err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": itemID})
}

func (h *AdminMenuHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		httpx.WriteError(ctx, w, httpx.NewError("menu_service_unavailable", "menu service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminMenuBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req imageUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	upload, err := h.menu.IssueImageUpload(ctx, chi.URLParam(r, "itemID"), req.ContentType)
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, imageUploadResponse{
		URL:        upload.URL,
		Method:     upload.Method,
		Headers:    upload.Headers,
		ObjectPath: upload.ObjectPath,
		ExpiresAt:  upload.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}
