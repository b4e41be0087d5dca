package notification

import (
	"context"
)

type Repository interface {
	CreateBatch(ctx context.Context, notifications []*Notification) error
	List(ctx context.Context, filter ListFilter) ([]*Notification, int, error)
	GetUnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkAsRead(ctx context.Context, recipientID string, ids []string) (int, error)
	// MarkAllAsRead limits the update to one type when notifType is non-empty.
	MarkAllAsRead(ctx context.Context, recipientID string, notifType NotificationType) (int, error)
}
