package fixtures

import (
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// ==========================================
// HELPER FUNCTIONS
// ==========================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func timePtr(t time.Time) *time.Time { return &t }

// ==========================================
// DEMO ROSTER
// ==========================================

// Demo user ids, stable so development tokens can be minted for them
const (
	OwnerID      = "0190a000-0000-7000-8000-000000000001"
	HRManagerID  = "0190a000-0000-7000-8000-000000000002"
	InstructorID = "0190a000-0000-7000-8000-000000000003"
	FrontDeskID  = "0190a000-0000-7000-8000-000000000004"
	CoachID      = "0190a000-0000-7000-8000-000000000005"
)

// GetDemoEmployees returns the studio roster used by the in-memory driver
func GetDemoEmployees() []payroll.EmployeeProfile {
	return []payroll.EmployeeProfile{
		{
			ID:                     OwnerID,
			FullName:               "Olivia Owner",
			BaseSalary:             dec("60000"),
			SocialSecurityIncluded: true,
			TaxScheme:              payroll.TaxSchemeWHT3,
			Role:                   "owner",
			Position:               "Studio Director",
		},
		{
			ID:                     HRManagerID,
			FullName:               "Hana Rattanakul",
			BaseSalary:             dec("35000"),
			SocialSecurityIncluded: true,
			TaxScheme:              payroll.TaxSchemeWHT3,
			Role:                   "employee",
			Position:               "HR Manager",
		},
		{
			ID:                     InstructorID,
			FullName:               "Ian Instructor",
			BaseSalary:             dec("30000"),
			SocialSecurityIncluded: true,
			TaxScheme:              payroll.TaxSchemeWHT3,
			Role:                   "employee",
			Position:               "Instructor",
		},
		{
			ID:                     FrontDeskID,
			FullName:               "Fah Frontdesk",
			BaseSalary:             dec("18000"),
			SocialSecurityIncluded: true,
			TaxScheme:              payroll.TaxSchemeNone,
			Role:                   "employee",
			Position:               "Front Desk",
		},
		{
			ID:                     CoachID,
			FullName:               "Chai Coach",
			BaseSalary:             dec("12000"),
			SocialSecurityIncluded: false,
			TaxScheme:              payroll.TaxSchemeNone,
			Role:                   "employee",
			Position:               "Part-time Coach",
		},
	}
}

// ==========================================
// DEMO ACTIVITY
// ==========================================

// GetDemoAttendance returns a few infractions in every month of the given year,
// so any period of that year produces non-trivial slips.
func GetDemoAttendance(year int, loc *time.Location) []payroll.AttendanceRecord {
	var records []payroll.AttendanceRecord
	for month := time.January; month <= time.December; month++ {
		day := func(d int) time.Time { return time.Date(year, month, d, 0, 0, 0, 0, loc) }
		records = append(records,
			payroll.AttendanceRecord{UserID: InstructorID, Date: day(3), Status: payroll.AttendanceStatusLate, CheckInTime: timePtr(time.Date(year, month, 3, 10, 15, 0, 0, loc))},
			payroll.AttendanceRecord{UserID: InstructorID, Date: day(4), Status: payroll.AttendanceStatusPresent, CheckInTime: timePtr(time.Date(year, month, 4, 9, 55, 0, 0, loc))},
			payroll.AttendanceRecord{UserID: FrontDeskID, Date: day(10), Status: payroll.AttendanceStatusAbsent},
			payroll.AttendanceRecord{UserID: CoachID, Date: day(12), Status: payroll.AttendanceStatusLate, CheckInTime: timePtr(time.Date(year, month, 12, 10, 0, 1, 0, loc))},
		)
	}
	return records
}

// GetDemoDuties returns one missed and one completed duty per month of the given year
func GetDemoDuties(year int, loc *time.Location) []payroll.DutyRecord {
	var records []payroll.DutyRecord
	for month := time.January; month <= time.December; month++ {
		records = append(records,
			payroll.DutyRecord{AssigneeID: FrontDeskID, Date: time.Date(year, month, 15, 0, 0, 0, 0, loc), Title: "Close studio", ResolutionStatus: payroll.DutyResolutionAbandoned},
			payroll.DutyRecord{AssigneeID: InstructorID, Date: time.Date(year, month, 16, 0, 0, 0, 0, loc), Title: "Clean mats", ResolutionStatus: "RESOLVED"},
		)
	}
	return records
}
