package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/sse"
	"github.com/google/uuid"
)

// Config holds notification service configuration
type Config struct {
	BatchSize     int           // default: 100
	FlushInterval time.Duration // default: 5 seconds
	WorkerCount   int           // default: 2
	QueueSize     int           // default: 1000
}

type service struct {
	repo   notification.Repository
	hub    *sse.Hub
	config Config
	logger *slog.Logger
	now    func() time.Time

	queue    chan notification.CreateNotificationRequest
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewNotificationService starts cfg.WorkerCount workers that persist queued
// notifications in batches and push them to connected SSE clients.
func NewNotificationService(repo notification.Repository, hub *sse.Hub, cfg Config, logger *slog.Logger) notification.Service {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &service{
		repo:   repo,
		hub:    hub,
		config: cfg,
		logger: logger.With("component", "notification"),
		now:    time.Now,
		queue:  make(chan notification.CreateNotificationRequest, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("notification service started",
		"workers", cfg.WorkerCount, "batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval)

	return s
}

// ========== WORKERS ==========

func (s *service) worker(id int) {
	defer s.wg.Done()

	batch := make([]notification.CreateNotificationRequest, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.store(ctx, batch); err != nil {
			s.logger.Error("batch insert failed", "worker", id, "count", len(batch), "error", err)
		} else {
			s.logger.Debug("batch inserted", "worker", id, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case req := <-s.queue:
			batch = append(batch, req)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			for {
				select {
				case req := <-s.queue:
					batch = append(batch, req)
					if len(batch) >= s.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// store persists reqs and publishes each stored notification to its recipient
func (s *service) store(ctx context.Context, reqs []notification.CreateNotificationRequest) error {
	notifications := make([]*notification.Notification, len(reqs))
	for i, req := range reqs {
		notifications[i] = s.newNotification(req)
	}
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		return err
	}
	for _, n := range notifications {
		s.publish(n.RecipientID, string(n.Type), toResponse(n))
	}
	return nil
}

// ========== QUEUE ==========

func (s *service) QueueNotification(ctx context.Context, req notification.CreateNotificationRequest) error {
	if req.RecipientID == "" {
		return fmt.Errorf("notification recipient is required")
	}
	if !req.Type.IsValid() {
		req.Type = notification.TypeGeneral
	}

	select {
	case <-s.stopCh:
		return notification.ErrServiceStopped
	default:
	}

	select {
	case s.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.logger.Warn("notification queue full, inserting directly", "recipient_id", req.RecipientID, "type", req.Type)
		if err := s.store(ctx, []notification.CreateNotificationRequest{req}); err != nil {
			return fmt.Errorf("%w: %w", notification.ErrQueueFull, err)
		}
		return nil
	}
}

// QueueBulkNotification queues every request and reports the recipients that could not be queued
func (s *service) QueueBulkNotification(ctx context.Context, reqs []notification.CreateNotificationRequest) error {
	var errs []error
	for _, req := range reqs {
		if err := s.QueueNotification(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", req.RecipientID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *service) publish(recipientID, event string, data any) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(recipientID, sse.Event{Event: event, Data: data})
}

func (s *service) newNotification(req notification.CreateNotificationRequest) *notification.Notification {
	return &notification.Notification{
		ID:          uuid.New().String(),
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		Data:        req.Data,
		CreatedAt:   s.now(),
	}
}

func toResponse(n *notification.Notification) notification.NotificationResponse {
	return notification.NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// ========== INBOX ==========

func (s *service) GetNotifications(ctx context.Context, req notification.ListNotificationsRequest) (*notification.NotificationListResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	notifications, total, err := s.repo.List(ctx, req.Filter())
	if err != nil {
		return nil, err
	}
	unreadCount, err := s.repo.GetUnreadCount(ctx, req.RecipientID)
	if err != nil {
		return nil, err
	}

	responses := make([]notification.NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = toResponse(n)
	}

	return &notification.NotificationListResponse{
		Notifications: responses,
		Total:         total,
		UnreadCount:   unreadCount,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}, nil
}

func (s *service) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	return s.repo.GetUnreadCount(ctx, recipientID)
}

func (s *service) MarkAsRead(ctx context.Context, recipientID string, req notification.MarkAsReadRequest) (notification.MarkAsReadResponse, error) {
	if err := req.Validate(); err != nil {
		return notification.MarkAsReadResponse{}, err
	}
	updated, err := s.repo.MarkAsRead(ctx, recipientID, req.NotificationIDs)
	if err != nil {
		return notification.MarkAsReadResponse{}, err
	}
	return s.afterRead(ctx, recipientID, updated)
}

func (s *service) MarkAllAsRead(ctx context.Context, recipientID string, req notification.MarkAllAsReadRequest) (notification.MarkAsReadResponse, error) {
	if err := req.Validate(); err != nil {
		return notification.MarkAsReadResponse{}, err
	}
	updated, err := s.repo.MarkAllAsRead(ctx, recipientID, req.Type)
	if err != nil {
		return notification.MarkAsReadResponse{}, err
	}
	return s.afterRead(ctx, recipientID, updated)
}

// afterRead pushes the new unread count so every open stream of the recipient stays in sync
func (s *service) afterRead(ctx context.Context, recipientID string, updated int) (notification.MarkAsReadResponse, error) {
	unread, err := s.repo.GetUnreadCount(ctx, recipientID)
	if err != nil {
		return notification.MarkAsReadResponse{}, err
	}
	if updated > 0 {
		s.publish(recipientID, notification.EventInbox, notification.UnreadCountResponse{UnreadCount: unread})
	}
	return notification.MarkAsReadResponse{Updated: updated, UnreadCount: unread}, nil
}

// ========== STREAM ==========

func (s *service) Subscribe(ctx context.Context, recipientID string) (<-chan notification.SSEEvent, func()) {
	ch, cleanup := s.hub.Subscribe(recipientID)

	out := make(chan notification.SSEEvent, 10)
	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- notification.SSEEvent{ID: event.ID, Event: event.Event, Data: event.Data}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cleanup
}

// Stop flushes queued notifications and stops the workers
func (s *service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("notification service stopped")
	})
}
