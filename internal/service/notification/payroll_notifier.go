package notification

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
)

// PayrollNotifier delivers payroll engine notifications through the in-app notification queue.
type PayrollNotifier struct {
	service notification.Service
}

func NewPayrollNotifier(service notification.Service) *PayrollNotifier {
	return &PayrollNotifier{service: service}
}

func (n *PayrollNotifier) Notify(ctx context.Context, userIDs []string, title, message string, kind payroll.NotificationKind) error {
	if len(userIDs) == 0 {
		return nil
	}

	reqs := make([]notification.CreateNotificationRequest, 0, len(userIDs))
	for _, userID := range userIDs {
		reqs = append(reqs, notification.CreateNotificationRequest{
			RecipientID: userID,
			Type:        typeForKind(kind),
			Title:       title,
			Message:     message,
			Data:        map[string]interface{}{"kind": string(kind)},
		})
	}

	if err := n.service.QueueBulkNotification(ctx, reqs); err != nil {
		return fmt.Errorf("failed to queue %s notifications: %w", kind, err)
	}
	return nil
}

func typeForKind(kind payroll.NotificationKind) notification.NotificationType {
	switch kind {
	case payroll.NotificationKindReviewRequested:
		return notification.TypePayrollReviewRequested
	case payroll.NotificationKindSlipDisputed:
		return notification.TypePayrollSlipDisputed
	case payroll.NotificationKindCyclePaid:
		return notification.TypePayrollCyclePaid
	default:
		return notification.TypeGeneral
	}
}
