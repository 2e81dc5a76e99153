package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/notifications"
	"github.com/savora/api/internal/platform/auth"
	"github.com/savora/api/internal/platform/httpx"
)

// NotificationHandlers exposes the role-scoped notification feed.
type NotificationHandlers struct {
	authn  *auth.Authenticator
	center *notifications.Center
}

// NewNotificationHandlers constructs the notification handlers.
func NewNotificationHandlers(authn *auth.Authenticator, center *notifications.Center) *NotificationHandlers {
	return &NotificationHandlers{authn: authn, center: center}
}

// Routes wires the /notifications endpoints onto the provided router.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.list)
	r.Post("/{orderID}/read", h.markRead)
}

func (h *NotificationHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.center == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var entries []domain.Notification
	if identity.HasRole(auth.RoleAdmin) {
		entries = h.center.ListForAdmin()
	} else {
		entries = h.center.ListForUser(identity.UID)
	}

	payload := make([]notificationPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, buildNotificationPayload(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": payload})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.center == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	role := domain.NotifyUser
	if identity.HasRole(auth.RoleAdmin) {
		role = domain.NotifyAdmin
	}

	orderID := chi.URLParam(r, "orderID")
	if err := h.center.MarkRead(orderID, role, identity.UID); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"read": orderID})
}
