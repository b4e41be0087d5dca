package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
	"github.com/cmlabs-hris/studio-payroll/internal/handler/http/response"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/jwt"
)

const sseKeepaliveInterval = 30 * time.Second

type NotificationHandler interface {
	// Inbox
	List(w http.ResponseWriter, r *http.Request)
	UnreadCount(w http.ResponseWriter, r *http.Request)
	MarkAsRead(w http.ResponseWriter, r *http.Request)
	MarkAllAsRead(w http.ResponseWriter, r *http.Request)

	// SSE
	GetSSEToken(w http.ResponseWriter, r *http.Request)
	Stream(w http.ResponseWriter, r *http.Request)
}

type notificationHandlerImpl struct {
	notifService notification.Service
	jwtService   jwt.Service
}

func NewNotificationHandler(notifService notification.Service, jwtService jwt.Service) NotificationHandler {
	return &notificationHandlerImpl{
		notifService: notifService,
		jwtService:   jwtService,
	}
}

// recipientFromRequest returns the caller's user id; the auth middleware guarantees an actor
func recipientFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, err := user.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return "", false
	}
	return actor.UserID, true
}

func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	intVal, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return intVal
}

// ========== INBOX ==========

func (h *notificationHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := recipientFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	unreadOnly, _ := strconv.ParseBool(query.Get("unread_only"))
	req := notification.ListNotificationsRequest{
		RecipientID: recipientID,
		Type:        notification.NotificationType(query.Get("type")),
		UnreadOnly:  unreadOnly,
		Page:        getIntQueryParam(r, "page", 1),
		PageSize:    getIntQueryParam(r, "page_size", notification.DefaultPageSize),
	}

	result, err := h.notifService.GetNotifications(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *notificationHandlerImpl) UnreadCount(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := recipientFromRequest(w, r)
	if !ok {
		return
	}

	count, err := h.notifService.GetUnreadCount(r.Context(), recipientID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, notification.UnreadCountResponse{UnreadCount: count})
}

func (h *notificationHandlerImpl) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := recipientFromRequest(w, r)
	if !ok {
		return
	}

	var req notification.MarkAsReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.notifService.MarkAsRead(r.Context(), recipientID, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Notifications marked as read", result)
}

// MarkAllAsRead accepts an empty body, or {"type": "..."} to clear one kind of payroll notification
func (h *notificationHandlerImpl) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := recipientFromRequest(w, r)
	if !ok {
		return
	}

	var req notification.MarkAllAsReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.notifService.MarkAllAsRead(r.Context(), recipientID, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Notifications marked as read", result)
}

// ========== SSE ==========

func (h *notificationHandlerImpl) GetSSEToken(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := recipientFromRequest(w, r)
	if !ok {
		return
	}

	token, expiresIn, err := h.jwtService.GenerateSSEToken(recipientID)
	if err != nil {
		response.InternalServerError(w, "Failed to generate SSE token")
		return
	}

	response.Success(w, notification.SSETokenResponse{
		Token:     token,
		ExpiresIn: expiresIn,
	})
}

// Stream pushes payroll notifications and inbox updates. EventSource cannot send
// headers, so the short-lived token travels in the query string.
func (h *notificationHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	recipientID, err := h.jwtService.ValidateSSEToken(tokenStr)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.notifService.Subscribe(r.Context(), recipientID)
	defer cleanup()

	unread, err := h.notifService.GetUnreadCount(r.Context(), recipientID)
	if err != nil {
		unread = 0
	}
	writeSSE(w, flusher, 0, notification.EventInbox, notification.UnreadCountResponse{UnreadCount: unread})

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, flusher, event.ID, event.Event, event.Data)

		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, id uint64, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
