package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleStatus enum
type CycleStatus string

const (
	CycleStatusDraft         CycleStatus = "DRAFT"
	CycleStatusWaitingReview CycleStatus = "WAITING_REVIEW"
	CycleStatusReadyToPay    CycleStatus = "READY_TO_PAY"
	CycleStatusPaid          CycleStatus = "PAID"
)

// SlipStatus enum
type SlipStatus string

const (
	SlipStatusPending      SlipStatus = "PENDING"
	SlipStatusAcknowledged SlipStatus = "ACKNOWLEDGED"
	SlipStatusDisputed     SlipStatus = "DISPUTED"
	SlipStatusPaid         SlipStatus = "PAID"
)

// DeductionType enum
type DeductionType string

const (
	DeductionTypeAbsent     DeductionType = "ABSENT"
	DeductionTypeLate       DeductionType = "LATE"
	DeductionTypeMissedDuty DeductionType = "MISSED_DUTY"
)

// TaxScheme enum
type TaxScheme string

const (
	TaxSchemeNone TaxScheme = "NONE"
	TaxSchemeWHT3 TaxScheme = "WHT_3"
)

// Cycle - one payroll period's container for all slips
type Cycle struct {
	ID           string
	PeriodKey    string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Status       CycleStatus
	DueDate      *time.Time
	TotalPayout  *decimal.Decimal
	RateSnapshot DeductionRates
	CreatedBy    string
	FinalizedBy  *string
	PaidAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Joined fields
	SlipCount int
}

func (c Cycle) Period() Period {
	return Period{Key: c.PeriodKey, Start: c.PeriodStart, End: c.PeriodEnd}
}

// DeductionItem - immutable penalty line baked into a slip at generation time
type DeductionItem struct {
	Date    time.Time       `json:"date"`
	Type    DeductionType   `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Details string          `json:"details"`
}

// Slip - one employee's itemized compensation record within a cycle
type Slip struct {
	ID                         string
	CycleID                    string
	UserID                     string
	EmployeeName               string
	BaseSalary                 decimal.Decimal
	OTPay                      decimal.Decimal
	Bonus                      decimal.Decimal
	Commission                 decimal.Decimal
	Allowance                  decimal.Decimal
	TotalIncome                decimal.Decimal
	Tax                        decimal.Decimal
	SocialSecurityContribution decimal.Decimal
	LeaveDeduction             decimal.Decimal
	DisciplinaryDeduction      decimal.Decimal
	DeductionSnapshot          []DeductionItem
	AdvancePayment             decimal.Decimal
	TotalDeduction             decimal.Decimal
	NetTotal                   decimal.Decimal
	Status                     SlipStatus
	DisputeReason              *string
	TransferProofRef           *string
	AcknowledgedAt             *time.Time
	PaidAt                     *time.Time
	Version                    int
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// Recalculate derives the totals from the component fields. Totals are never set directly.
func (s *Slip) Recalculate() {
	s.TotalIncome = s.BaseSalary.Add(s.OTPay).Add(s.Bonus).Add(s.Commission).Add(s.Allowance)
	s.TotalDeduction = s.Tax.
		Add(s.SocialSecurityContribution).
		Add(s.DisciplinaryDeduction).
		Add(s.LeaveDeduction).
		Add(s.AdvancePayment)
	s.NetTotal = s.TotalIncome.Sub(s.TotalDeduction)
}

// DeductionRates - versioned per-infraction penalty amounts
type DeductionRates struct {
	Version                     int             `json:"version"`
	LateRatePerOccurrence       decimal.Decimal `json:"late_rate_per_occurrence"`
	AbsentRatePerDay            decimal.Decimal `json:"absent_rate_per_day"`
	MissedDutyRatePerOccurrence decimal.Decimal `json:"missed_duty_rate_per_occurrence"`
	UpdatedAt                   *time.Time      `json:"updated_at,omitempty"`
	UpdatedBy                   *string         `json:"updated_by,omitempty"`
}

// EmployeeProfile - compensation profile from the personnel directory
type EmployeeProfile struct {
	ID                     string
	FullName               string
	BaseSalary             decimal.Decimal
	SocialSecurityIncluded bool
	TaxScheme              TaxScheme
	Role                   string
	Position               string
}

// AttendanceStatus values as reported by the attendance feed
const (
	AttendanceStatusPresent = "PRESENT"
	AttendanceStatusLate    = "LATE"
	AttendanceStatusAbsent  = "ABSENT"
	AttendanceStatusNoShow  = "NO_SHOW"
)

// AttendanceRecord - one day of the attendance feed
type AttendanceRecord struct {
	UserID      string
	Date        time.Time
	Status      string
	CheckInTime *time.Time
}

// Duty resolution statuses that count as a missed duty
const (
	DutyResolutionAbandoned     = "ABANDONED"
	DutyResolutionAcceptedFault = "ACCEPTED_FAULT"
)

// DutyRecord - one assignment of the duty roster feed
type DutyRecord struct {
	AssigneeID       string
	Date             time.Time
	Title            string
	ResolutionStatus string
}

// ExpenseEntry - aggregate salary expense posted to the ledger
type ExpenseEntry struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
}

const ExpenseCategorySalary = "SALARY"

// OutboxKind enum
type OutboxKind string

const (
	OutboxKindNotification  OutboxKind = "notification"
	OutboxKindLedgerExpense OutboxKind = "ledger_expense"
)

// OutboxEvent - side effect recorded in the same transaction as the state change
// and delivered at least once after commit.
type OutboxEvent struct {
	ID          string
	Kind        OutboxKind
	AggregateID string
	Payload     []byte
	Attempts    int
	LastError   *string
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// NotificationKind enum
type NotificationKind string

const (
	NotificationKindReviewRequested NotificationKind = "payroll_review_requested"
	NotificationKindSlipDisputed    NotificationKind = "payroll_slip_disputed"
	NotificationKindCyclePaid       NotificationKind = "payroll_cycle_paid"
)

// NotificationMessage - payload of a notification outbox event
type NotificationMessage struct {
	UserIDs []string         `json:"user_ids"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Kind    NotificationKind `json:"kind"`
	CycleID string           `json:"cycle_id,omitempty"`
	SlipID  string           `json:"slip_id,omitempty"`
}
