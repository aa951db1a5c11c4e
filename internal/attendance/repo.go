package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists attendance data in Postgres. It implements both
// Directory (roster reads) and Store (daily record writes).
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Student returns roster data for one student, nil when the row is missing.
func (r *Repository) Student(ctx context.Context, id string) (*Person, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, sh.start_time::text, sh.late_after::text, sh.absent_after::text
		FROM students s
		LEFT JOIN shifts sh ON sh.id = s.shift_id
		WHERE s.id = $1
	`, id)
	return scanPerson(row)
}

// Staff returns roster data for one staff member, nil when the row is missing.
func (r *Repository) Staff(ctx context.Context, id string) (*Person, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT st.id, st.name, sh.start_time::text, sh.late_after::text, sh.absent_after::text
		FROM staff st
		LEFT JOIN shifts sh ON sh.id = st.shift_id
		WHERE st.id = $1
	`, id)
	return scanPerson(row)
}

func scanPerson(row *sql.Row) (*Person, error) {
	var p Person
	var start, lateAfter, absentAfter sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &start, &lateAfter, &absentAfter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if start.Valid && lateAfter.Valid && absentAfter.Valid {
		shift, err := parseShift(start.String, lateAfter.String, absentAfter.String)
		if err != nil {
			return nil, err
		}
		p.Shift = shift
	}
	return &p, nil
}

func parseShift(start, lateAfter, absentAfter string) (*Shift, error) {
	var sh Shift
	var err error
	if sh.Start, err = ParseClockTime(start); err != nil {
		return nil, fmt.Errorf("shift start: %w", err)
	}
	if sh.LateAfter, err = ParseClockTime(lateAfter); err != nil {
		return nil, fmt.Errorf("shift late threshold: %w", err)
	}
	if sh.AbsentAfter, err = ParseClockTime(absentAfter); err != nil {
		return nil, fmt.Errorf("shift absent cutoff: %w", err)
	}
	return &sh, nil
}

// GetStudentDay returns the student's record for one date, nil when absent.
func (r *Repository) GetStudentDay(ctx context.Context, studentID, date string) (*StudentDay, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, attendance_date::text, status, punched_at, device_id, created_at
		FROM student_attendance
		WHERE student_id = $1 AND attendance_date = $2::date
	`, studentID, date)
	var d StudentDay
	if err := row.Scan(&d.ID, &d.StudentID, &d.Date, &d.Status, &d.PunchedAt, &d.DeviceID, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CreateStudentDay inserts the record unless one already exists for the
// (student, date) pair. The unique constraint plus ON CONFLICT DO NOTHING
// makes this a single atomic round trip; on conflict the committed record is
// fetched and returned with created=false.
func (r *Repository) CreateStudentDay(ctx context.Context, day StudentDay) (StudentDay, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO student_attendance (id, student_id, attendance_date, status, punched_at, device_id)
		VALUES ($1, $2, $3::date, $4, $5, $6)
		ON CONFLICT (student_id, attendance_date) DO NOTHING
		RETURNING created_at
	`, day.ID, day.StudentID, day.Date, day.Status, day.PunchedAt, day.DeviceID)
	if err := row.Scan(&day.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, gerr := r.GetStudentDay(ctx, day.StudentID, day.Date)
			if gerr != nil {
				return StudentDay{}, false, gerr
			}
			if existing == nil {
				return StudentDay{}, false, errors.New("student attendance conflict row vanished")
			}
			return *existing, false, nil
		}
		return StudentDay{}, false, err
	}
	return day, true, nil
}

// GetStaffDay returns the staff record for one date, nil when absent.
func (r *Repository) GetStaffDay(ctx context.Context, staffID, date string) (*StaffDay, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, staff_id, attendance_date::text, status, punch_in_at, punch_out_at, late_minutes, device_id, created_at
		FROM staff_attendance
		WHERE staff_id = $1 AND attendance_date = $2::date
	`, staffID, date)
	var d StaffDay
	if err := row.Scan(&d.ID, &d.StaffID, &d.Date, &d.Status, &d.PunchInAt, &d.PunchOutAt, &d.LateMinutes, &d.DeviceID, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CreateStaffDay is the staff twin of CreateStudentDay.
func (r *Repository) CreateStaffDay(ctx context.Context, day StaffDay) (StaffDay, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO staff_attendance (id, staff_id, attendance_date, status, punch_in_at, late_minutes, device_id)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		ON CONFLICT (staff_id, attendance_date) DO NOTHING
		RETURNING created_at
	`, day.ID, day.StaffID, day.Date, day.Status, day.PunchInAt, day.LateMinutes, day.DeviceID)
	if err := row.Scan(&day.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, gerr := r.GetStaffDay(ctx, day.StaffID, day.Date)
			if gerr != nil {
				return StaffDay{}, false, gerr
			}
			if existing == nil {
				return StaffDay{}, false, errors.New("staff attendance conflict row vanished")
			}
			return *existing, false, nil
		}
		return StaffDay{}, false, err
	}
	return day, true, nil
}

// SetPunchOut records the punch-out time, guarded so only the first caller
// while punch-out is unset wins. Reports whether the update applied.
func (r *Repository) SetPunchOut(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE staff_attendance
		SET punch_out_at = $2
		WHERE id = $1 AND punch_out_at IS NULL
	`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
