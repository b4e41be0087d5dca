package notification

import (
	"context"
)

type Service interface {
	// Queued delivery, flushed by background workers
	QueueNotification(ctx context.Context, req CreateNotificationRequest) error
	QueueBulkNotification(ctx context.Context, reqs []CreateNotificationRequest) error

	// Inbox
	GetNotifications(ctx context.Context, req ListNotificationsRequest) (*NotificationListResponse, error)
	GetUnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkAsRead(ctx context.Context, recipientID string, req MarkAsReadRequest) (MarkAsReadResponse, error)
	MarkAllAsRead(ctx context.Context, recipientID string, req MarkAllAsReadRequest) (MarkAsReadResponse, error)

	Subscribe(ctx context.Context, recipientID string) (<-chan SSEEvent, func())
	Stop()
}
