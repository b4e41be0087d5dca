package notification

import (
	"time"
)

// NotificationType identifies which payroll event produced a notification
type NotificationType string

const (
	TypePayrollReviewRequested NotificationType = "payroll_review_requested"
	TypePayrollSlipDisputed    NotificationType = "payroll_slip_disputed"
	TypePayrollCyclePaid       NotificationType = "payroll_cycle_paid"
	TypeGeneral                NotificationType = "general"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypePayrollReviewRequested, TypePayrollSlipDisputed, TypePayrollCyclePaid, TypeGeneral:
		return true
	}
	return false
}

// Notification is one inbox entry for a single recipient
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Title       string
	Message     string
	Data        map[string]interface{}
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}
