package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/apperr"
)

// Repository persists the attendance ledger in Postgres. The unique
// constraint on (student_id, slot_id) is the single-writer guarantee:
// a check-then-insert race resolves to a conflict here, not a duplicate.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertUnique writes a new record, failing with a conflict when one
// already exists for the (student, slot) pair.
func (r *Repository) InsertUnique(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, slot_id, status, method, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, slot_id) DO NOTHING
		RETURNING id
	`, rec.ID, rec.StudentID, rec.SlotID, rec.Status, rec.Method, rec.MarkedAt)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, apperr.E(apperr.KindConflict, "attendance already marked for this session")
		}
		return Record{}, apperr.Wrap(apperr.KindInternal, "insert attendance record", err)
	}
	return rec, nil
}

// Upsert writes or overwrites a record. Manual-override path only.
func (r *Repository) Upsert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, slot_id, status, method, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, slot_id) DO UPDATE
		SET status = EXCLUDED.status, method = EXCLUDED.method, marked_at = EXCLUDED.marked_at
	`, rec.ID, rec.StudentID, rec.SlotID, rec.Status, rec.Method, rec.MarkedAt); err != nil {
		return Record{}, apperr.Wrap(apperr.KindInternal, "upsert attendance record", err)
	}
	return rec, nil
}

// Find returns the record for a (student, slot) pair, or nil.
func (r *Repository) Find(ctx context.Context, studentID, slotID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, slot_id, status, method, marked_at
		FROM attendance_records
		WHERE student_id = $1 AND slot_id = $2
	`, studentID, slotID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.SlotID, &rec.Status, &rec.Method, &rec.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load attendance record", err)
	}
	return &rec, nil
}

// ListByStudent returns a student's records joined with class and slot,
// newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]StudentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.slot_id, a.status, a.method, a.marked_at,
		       c.course_name, c.course_code, t.day_of_week, t.start_time, t.end_time
		FROM attendance_records a
		JOIN timetable_slots t ON t.id = a.slot_id
		JOIN classes c ON c.id = t.class_id
		WHERE a.student_id = $1
		ORDER BY a.marked_at DESC
	`, studentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list student records", err)
	}
	defer rows.Close()

	var res []StudentRecord
	for rows.Next() {
		var sr StudentRecord
		if err := rows.Scan(&sr.ID, &sr.StudentID, &sr.SlotID, &sr.Status, &sr.Method, &sr.MarkedAt,
			&sr.CourseName, &sr.CourseCode, &sr.DayOfWeek, &sr.SlotStart, &sr.SlotEnd); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan student record", err)
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

// ListByClass returns every record within a class grouped by student,
// newest first within each student.
func (r *Repository) ListByClass(ctx context.Context, classID string) (map[string][]ClassRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.slot_id, a.status, a.method, a.marked_at, t.start_time
		FROM attendance_records a
		JOIN timetable_slots t ON t.id = a.slot_id
		WHERE t.class_id = $1
		ORDER BY a.marked_at DESC
	`, classID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list class records", err)
	}
	defer rows.Close()

	res := make(map[string][]ClassRecord)
	for rows.Next() {
		var cr ClassRecord
		if err := rows.Scan(&cr.ID, &cr.StudentID, &cr.SlotID, &cr.Status, &cr.Method, &cr.MarkedAt, &cr.SlotStart); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan class record", err)
		}
		res[cr.StudentID] = append(res[cr.StudentID], cr)
	}
	return res, rows.Err()
}

// MarkAbsentUnrecorded inserts an ABSENT record for every student
// enrolled in the slot's class without a record for the slot. Idempotent:
// the conflict clause makes a concurrent QR mark win.
func (r *Repository) MarkAbsentUnrecorded(ctx context.Context, slotID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, slot_id, status, method, marked_at)
		SELECT gen_random_uuid(), e.student_id, t.id, 'ABSENT', 'MANUAL', $2
		FROM timetable_slots t
		JOIN enrollments e ON e.class_id = t.class_id
		WHERE t.id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM attendance_records a
			WHERE a.student_id = e.student_id AND a.slot_id = t.id
		  )
		ON CONFLICT (student_id, slot_id) DO NOTHING
	`, slotID, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "sweep absences", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountByStatus returns ledger totals for the admin overview.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM attendance_records GROUP BY status
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "count records", err)
	}
	defer rows.Close()

	res := make(map[Status]int64)
	for rows.Next() {
		var s Status
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan count", err)
		}
		res[s] = n
	}
	return res, rows.Err()
}
