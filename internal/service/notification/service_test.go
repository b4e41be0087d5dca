package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/sse"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
	"github.com/cmlabs-hris/studio-payroll/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (notification.Service, *sse.Hub) {
	t.Helper()
	hub := sse.NewHub()
	svc := NewNotificationService(memory.NewNotificationRepository(), hub, Config{
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
		WorkerCount:   1,
		QueueSize:     10,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		svc.Stop()
		hub.Close()
	})
	return svc, hub
}

func waitForUnread(t *testing.T, svc notification.Service, recipientID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		n, err := svc.GetUnreadCount(context.Background(), recipientID)
		return err == nil && n == want
	}, 2*time.Second, 10*time.Millisecond)
}

// ===== QUEUE TESTS =====

func TestQueueNotification_RequiresRecipient(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.QueueNotification(context.Background(), notification.CreateNotificationRequest{Title: "x"})

	assert.Error(t, err)
}

func TestQueueNotification_AfterStop(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Stop()

	err := svc.QueueNotification(context.Background(), notification.CreateNotificationRequest{RecipientID: "u1"})

	assert.ErrorIs(t, err, notification.ErrServiceStopped)
}

func TestQueueNotification_PublishesToSubscriber(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, cleanup := svc.Subscribe(ctx, "u1")
	defer cleanup()

	// Act
	require.NoError(t, svc.QueueNotification(ctx, notification.CreateNotificationRequest{
		RecipientID: "u1",
		Type:        notification.TypePayrollCyclePaid,
		Title:       "Salary paid",
	}))

	// Assert
	select {
	case ev := <-events:
		assert.Equal(t, string(notification.TypePayrollCyclePaid), ev.Event)
		resp, ok := ev.Data.(notification.NotificationResponse)
		require.True(t, ok)
		assert.Equal(t, "Salary paid", resp.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

// ===== INBOX TESTS =====

func TestGetNotifications_FiltersByType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.QueueBulkNotification(ctx, []notification.CreateNotificationRequest{
		{RecipientID: "u1", Type: notification.TypePayrollReviewRequested, Title: "Review"},
		{RecipientID: "u1", Type: notification.TypePayrollCyclePaid, Title: "Paid"},
		{RecipientID: "u2", Type: notification.TypePayrollCyclePaid, Title: "Paid"},
	}))
	waitForUnread(t, svc, "u1", 2)

	// Act
	result, err := svc.GetNotifications(ctx, notification.ListNotificationsRequest{
		RecipientID: "u1",
		Type:        notification.TypePayrollCyclePaid,
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, "Paid", result.Notifications[0].Title)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 2, result.UnreadCount)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, notification.DefaultPageSize, result.PageSize)
}

func TestGetNotifications_UnknownType(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetNotifications(context.Background(), notification.ListNotificationsRequest{RecipientID: "u1", Type: "payday"})

	var verrs validator.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestMarkAllAsRead_ScopedToType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.QueueBulkNotification(ctx, []notification.CreateNotificationRequest{
		{RecipientID: "u1", Type: notification.TypePayrollReviewRequested},
		{RecipientID: "u1", Type: notification.TypePayrollSlipDisputed},
	}))
	waitForUnread(t, svc, "u1", 2)

	// Act
	result, err := svc.MarkAllAsRead(ctx, "u1", notification.MarkAllAsReadRequest{Type: notification.TypePayrollSlipDisputed})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.UnreadCount)
}

func TestMarkAsRead_PushesInboxUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.QueueNotification(ctx, notification.CreateNotificationRequest{RecipientID: "u1", Type: notification.TypeGeneral}))
	waitForUnread(t, svc, "u1", 1)
	list, err := svc.GetNotifications(ctx, notification.ListNotificationsRequest{RecipientID: "u1"})
	require.NoError(t, err)
	events, cleanup := svc.Subscribe(ctx, "u1")
	defer cleanup()

	// Act
	result, err := svc.MarkAsRead(ctx, "u1", notification.MarkAsReadRequest{NotificationIDs: []string{list.Notifications[0].ID}})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	select {
	case ev := <-events:
		assert.Equal(t, notification.EventInbox, ev.Event)
		assert.Equal(t, notification.UnreadCountResponse{UnreadCount: 0}, ev.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbox event")
	}
}

// ===== PAYROLL NOTIFIER TESTS =====

func TestPayrollNotifier_MapsKindToType(t *testing.T) {
	svc, _ := newTestService(t)
	notifier := NewPayrollNotifier(svc)
	ctx := context.Background()

	// Act
	err := notifier.Notify(ctx, []string{"u1", "u2"}, "Dispute", "Alice disputed her slip", payroll.NotificationKindSlipDisputed)

	// Assert
	require.NoError(t, err)
	waitForUnread(t, svc, "u2", 1)
	result, err := svc.GetNotifications(ctx, notification.ListNotificationsRequest{RecipientID: "u2"})
	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, notification.TypePayrollSlipDisputed, result.Notifications[0].Type)
	assert.Equal(t, "Alice disputed her slip", result.Notifications[0].Message)
}

func TestPayrollNotifier_NoRecipients(t *testing.T) {
	svc, _ := newTestService(t)

	err := NewPayrollNotifier(svc).Notify(context.Background(), nil, "t", "m", payroll.NotificationKindCyclePaid)

	assert.NoError(t, err)
}
