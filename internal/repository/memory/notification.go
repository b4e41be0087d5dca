package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
)

type notificationRepository struct {
	mu    sync.RWMutex
	items []*notification.Notification
}

func NewNotificationRepository() notification.Repository {
	return &notificationRepository{}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range notifications {
		cp := *n
		r.items = append(r.items, &cp)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*notification.Notification
	for _, n := range r.items {
		if n.RecipientID != filter.RecipientID || (filter.UnreadOnly && n.IsRead) {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*notification.Notification{}, total, nil
	}
	end := total
	if filter.Limit > 0 {
		end = min(filter.Offset+filter.Limit, total)
	}
	return matched[filter.Offset:end], total, nil
}

func (r *notificationRepository) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.items {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, recipientID string, ids []string) (int, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return r.markRead(func(n *notification.Notification) bool {
		return n.RecipientID == recipientID && wanted[n.ID]
	}), nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, recipientID string, notifType notification.NotificationType) (int, error) {
	return r.markRead(func(n *notification.Notification) bool {
		return n.RecipientID == recipientID && (notifType == "" || n.Type == notifType)
	}), nil
}

func (r *notificationRepository) markRead(match func(*notification.Notification) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	updated := 0
	for _, n := range r.items {
		if !n.IsRead && match(n) {
			n.IsRead = true
			n.ReadAt = &now
			updated++
		}
	}
	return updated
}
