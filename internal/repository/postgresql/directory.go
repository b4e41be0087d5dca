package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// ========== EMPLOYEE DIRECTORY ==========

type employeeDirectory struct {
	db *database.DB
}

// NewEmployeeDirectory reads compensation profiles from the employees table.
// Profiles are keyed by the employee's user id, the same id carried in access tokens.
func NewEmployeeDirectory(db *database.DB) payroll.Directory {
	return &employeeDirectory{db: db}
}

const employeeProfileQuery = `
	SELECT e.user_id, e.full_name, e.base_salary, e.social_security_included, e.tax_scheme,
		   u.role, COALESCE(p.name, '')
	FROM employees e
	INNER JOIN users u ON u.id = e.user_id
	LEFT JOIN positions p ON p.id = e.position_id
	WHERE e.employment_status = 'active' AND e.deleted_at IS NULL`

func scanEmployeeProfile(row rowScanner) (payroll.EmployeeProfile, error) {
	var (
		emp       payroll.EmployeeProfile
		taxScheme string
	)
	if err := row.Scan(
		&emp.ID, &emp.FullName, &emp.BaseSalary, &emp.SocialSecurityIncluded, &taxScheme,
		&emp.Role, &emp.Position,
	); err != nil {
		return payroll.EmployeeProfile{}, err
	}
	emp.TaxScheme = payroll.TaxScheme(taxScheme)
	return emp, nil
}

func (d *employeeDirectory) ListActiveEmployees(ctx context.Context) ([]payroll.EmployeeProfile, error) {
	q := GetQuerier(ctx, d.db)

	rows, err := q.Query(ctx, employeeProfileQuery+" ORDER BY e.full_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}
	defer rows.Close()

	var employees []payroll.EmployeeProfile
	for rows.Next() {
		emp, err := scanEmployeeProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func (d *employeeDirectory) GetEmployee(ctx context.Context, id string) (payroll.EmployeeProfile, error) {
	q := GetQuerier(ctx, d.db)

	emp, err := scanEmployeeProfile(q.QueryRow(ctx, employeeProfileQuery+" AND e.user_id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.EmployeeProfile{}, payroll.ErrEmployeeNotFound
		}
		return payroll.EmployeeProfile{}, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

// ========== ATTENDANCE FEED ==========

type attendanceFeed struct {
	db  *database.DB
	loc *time.Location
}

// NewAttendanceFeed reads attendance rows; dates are anchored to midnight in loc.
func NewAttendanceFeed(db *database.DB, loc *time.Location) payroll.AttendanceFeed {
	if loc == nil {
		loc = time.UTC
	}
	return &attendanceFeed{db: db, loc: loc}
}

func (f *attendanceFeed) GetAttendance(ctx context.Context, start, end time.Time) ([]payroll.AttendanceRecord, error) {
	q := GetQuerier(ctx, f.db)

	query := `
		SELECT e.user_id, a.date, a.status, a.clock_in
		FROM attendances a
		INNER JOIN employees e ON e.id = a.employee_id
		WHERE a.date >= $1::date AND a.date < $2::date
		ORDER BY a.date, e.user_id
	`

	rows, err := q.Query(ctx, query, start.In(f.loc).Format("2006-01-02"), end.In(f.loc).Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query attendances: %w", err)
	}
	defer rows.Close()

	var records []payroll.AttendanceRecord
	for rows.Next() {
		var (
			rec  payroll.AttendanceRecord
			date time.Time
		)
		if err := rows.Scan(&rec.UserID, &date, &rec.Status, &rec.CheckInTime); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		rec.Date = localDate(date, f.loc)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ========== DUTY FEED ==========

type dutyFeed struct {
	db  *database.DB
	loc *time.Location
}

func NewDutyFeed(db *database.DB, loc *time.Location) payroll.DutyFeed {
	if loc == nil {
		loc = time.UTC
	}
	return &dutyFeed{db: db, loc: loc}
}

func (f *dutyFeed) GetDuties(ctx context.Context, start, end time.Time) ([]payroll.DutyRecord, error) {
	q := GetQuerier(ctx, f.db)

	query := `
		SELECT assignee_id, date, title, resolution_status
		FROM duty_assignments
		WHERE date >= $1::date AND date < $2::date
		ORDER BY date, assignee_id
	`

	rows, err := q.Query(ctx, query, start.In(f.loc).Format("2006-01-02"), end.In(f.loc).Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query duty assignments: %w", err)
	}
	defer rows.Close()

	var records []payroll.DutyRecord
	for rows.Next() {
		var (
			rec  payroll.DutyRecord
			date time.Time
		)
		if err := rows.Scan(&rec.AssigneeID, &date, &rec.Title, &rec.ResolutionStatus); err != nil {
			return nil, fmt.Errorf("failed to scan duty assignment: %w", err)
		}
		rec.Date = localDate(date, f.loc)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// localDate re-anchors a DATE column (scanned as UTC midnight) to midnight in loc.
func localDate(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}
