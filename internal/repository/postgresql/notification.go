package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/database"
	"github.com/google/uuid"
)

type notificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) notification.Repository {
	return &notificationRepository{db: db}
}

// CreateBatch inserts all notifications with one statement over parallel arrays
func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*notification.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	q := GetQuerier(ctx, r.db)

	var (
		ids        = make([]string, len(notifications))
		recipients = make([]string, len(notifications))
		types      = make([]string, len(notifications))
		titles     = make([]string, len(notifications))
		messages   = make([]string, len(notifications))
		payloads   = make([]string, len(notifications))
		createdAts = make([]time.Time, len(notifications))
	)
	for i, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		dataJSON, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}

		ids[i] = n.ID
		recipients[i] = n.RecipientID
		types[i] = string(n.Type)
		titles[i] = n.Title
		messages[i] = n.Message
		payloads[i] = string(dataJSON)
		createdAts[i] = n.CreatedAt
	}

	query := `
		INSERT INTO notifications (id, recipient_id, type, title, message, data, created_at)
		SELECT id, recipient_id::uuid, type, title, message, data::jsonb, created_at
		FROM unnest($1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::timestamptz[])
			AS t(id, recipient_id, type, title, message, data, created_at)
	`

	if _, err := q.Exec(ctx, query, ids, recipients, types, titles, messages, payloads, createdAts); err != nil {
		return fmt.Errorf("failed to batch create notifications: %w", err)
	}

	return nil
}

// List pages through a recipient's inbox, newest first
func (r *notificationRepository) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Notification, int, error) {
	q := GetQuerier(ctx, r.db)

	conditions := []string{"recipient_id = $1"}
	args := []interface{}{filter.RecipientID}
	if filter.UnreadOnly {
		conditions = append(conditions, "is_read = false")
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	whereClause := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM notifications WHERE " + whereClause
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT id, recipient_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*notification.Notification{}
	for rows.Next() {
		var (
			n         notification.Notification
			dataJSON  []byte
			notifType string
		)
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&notifType,
			&n.Title,
			&n.Message,
			&dataJSON,
			&n.IsRead,
			&n.ReadAt,
			&n.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}

		n.Type = notification.NotificationType(notifType)
		if dataJSON != nil {
			if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal notification data: %w", err)
			}
		}
		notifications = append(notifications, &n)
	}

	return notifications, total, rows.Err()
}

// GetUnreadCount returns the count of unread notifications for a recipient
func (r *notificationRepository) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`
	var count int
	if err := q.QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// MarkAsRead marks the recipient's listed notifications as read and reports how many changed
func (r *notificationRepository) MarkAsRead(ctx context.Context, recipientID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE notifications
		SET is_read = true, read_at = $1
		WHERE recipient_id = $2 AND id = ANY($3::uuid[]) AND is_read = false
	`

	tag, err := q.Exec(ctx, query, time.Now(), recipientID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// MarkAllAsRead marks the recipient's unread notifications as read, optionally of one type
func (r *notificationRepository) MarkAllAsRead(ctx context.Context, recipientID string, notifType notification.NotificationType) (int, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE notifications
		SET is_read = true, read_at = $1
		WHERE recipient_id = $2 AND is_read = false
		  AND ($3::text = '' OR type = $3::text)
	`

	tag, err := q.Exec(ctx, query, time.Now(), recipientID, string(notifType))
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
