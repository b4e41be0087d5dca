package notification

import (
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ============= Request DTOs =============

type CreateNotificationRequest struct {
	RecipientID string
	Type        NotificationType
	Title       string
	Message     string
	Data        map[string]interface{}
}

// ListNotificationsRequest pages through one recipient's inbox
type ListNotificationsRequest struct {
	RecipientID string
	Type        NotificationType
	UnreadOnly  bool
	Page        int
	PageSize    int
}

// Validate rejects unknown types and clamps paging into range.
func (r *ListNotificationsRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Type != "" && !r.Type.IsValid() {
		errs = append(errs, validator.ValidationError{Field: "type", Message: "unknown notification type"})
	}
	if len(errs) > 0 {
		return errs
	}

	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	return nil
}

// ListFilter is the repository view of a validated ListNotificationsRequest
type ListFilter struct {
	RecipientID string
	Type        NotificationType
	UnreadOnly  bool
	Limit       int
	Offset      int
}

func (r ListNotificationsRequest) Filter() ListFilter {
	return ListFilter{
		RecipientID: r.RecipientID,
		Type:        r.Type,
		UnreadOnly:  r.UnreadOnly,
		Limit:       r.PageSize,
		Offset:      (r.Page - 1) * r.PageSize,
	}
}

type MarkAsReadRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

func (r *MarkAsReadRequest) Validate() error {
	var errs validator.ValidationErrors

	if len(r.NotificationIDs) == 0 {
		errs = append(errs, validator.ValidationError{Field: "notification_ids", Message: "at least one id is required"})
	}
	for _, id := range r.NotificationIDs {
		if id == "" {
			errs = append(errs, validator.ValidationError{Field: "notification_ids", Message: "ids must not be empty"})
			break
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// MarkAllAsReadRequest clears the inbox, or only one notification type
type MarkAllAsReadRequest struct {
	Type NotificationType `json:"type,omitempty"`
}

func (r *MarkAllAsReadRequest) Validate() error {
	if r.Type != "" && !r.Type.IsValid() {
		return validator.ValidationErrors{{Field: "type", Message: "unknown notification type"}}
	}
	return nil
}

// ============= Response DTOs =============

type NotificationResponse struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Total         int                    `json:"total"`
	UnreadCount   int                    `json:"unread_count"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type MarkAsReadResponse struct {
	Updated     int `json:"updated"`
	UnreadCount int `json:"unread_count"`
}

// ============= SSE =============

const (
	EventInbox = "inbox" // carries UnreadCountResponse after reads
)

// SSEEvent is either a NotificationResponse under its type name or an inbox update
type SSEEvent struct {
	ID    uint64 `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SSETokenResponse carries a short-lived token for the event stream
type SSETokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
