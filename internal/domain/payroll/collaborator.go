package payroll

import (
	"context"
	"io"
	"time"
)

// Directory is the personnel directory.
type Directory interface {
	ListActiveEmployees(ctx context.Context) ([]EmployeeProfile, error)
	GetEmployee(ctx context.Context, id string) (EmployeeProfile, error)
}

// AttendanceFeed returns attendance records with Date in [start, end).
type AttendanceFeed interface {
	GetAttendance(ctx context.Context, start, end time.Time) ([]AttendanceRecord, error)
}

// DutyFeed returns duty assignments with Date in [start, end).
type DutyFeed interface {
	GetDuties(ctx context.Context, start, end time.Time) ([]DutyRecord, error)
}

// ProofStore uploads transfer-proof attachments and returns their reference.
type ProofStore interface {
	UploadTransferProof(ctx context.Context, slipID string, file io.Reader, filename string) (string, error)
	DeleteTransferProof(ctx context.Context, ref string) error
	TransferProofURL(ref string) string
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, title, message string, kind NotificationKind) error
}

// LedgerPoster records expenses in the studio ledger. Posting is idempotent on entry.IdempotencyKey.
type LedgerPoster interface {
	PostExpense(ctx context.Context, entry ExpenseEntry) error
}
