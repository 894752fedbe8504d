package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/apperr"
)

// ActiveSession is a session joined with its class summary, for the
// teacher's live dashboard.
type ActiveSession struct {
	Session
	ClassID    string
	CourseName string
	CourseCode string
}

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create deactivates any active session for the slot and inserts the new
// one in a single transaction, so at most one session per slot is ever
// observed as active.
func (r *Repository) Create(ctx context.Context, slotID, code string, now, expiresAt time.Time) (Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "begin session create", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE qr_sessions SET is_active = FALSE
		WHERE slot_id = $1 AND is_active
	`, slotID); err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "deactivate prior sessions", err)
	}

	s := Session{
		ID:        uuid.NewString(),
		SlotID:    slotID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		Active:    true,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO qr_sessions (id, slot_id, code, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, s.ID, s.SlotID, s.Code, s.CreatedAt, s.ExpiresAt); err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "insert session", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "commit session create", err)
	}
	return s, nil
}

// FindByCode looks a session up by its code.
func (r *Repository) FindByCode(ctx context.Context, code string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slot_id, code, created_at, expires_at, is_active
		FROM qr_sessions WHERE code = $1
	`, code)
	var s Session
	if err := row.Scan(&s.ID, &s.SlotID, &s.Code, &s.CreatedAt, &s.ExpiresAt, &s.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, apperr.E(apperr.KindNotFound, "session not found")
		}
		return Session{}, apperr.Wrap(apperr.KindInternal, "load session", err)
	}
	return s, nil
}

// Deactivate marks one session inactive. Already-inactive is not an error.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE qr_sessions SET is_active = FALSE WHERE id = $1
	`, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "deactivate session", err)
	}
	return nil
}

// ActiveByTeacher lists the teacher's active, unexpired sessions, newest
// first.
func (r *Repository) ActiveByTeacher(ctx context.Context, teacherID string, now time.Time) ([]ActiveSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.slot_id, s.code, s.created_at, s.expires_at, s.is_active,
		       c.id, c.course_name, c.course_code
		FROM qr_sessions s
		JOIN timetable_slots t ON t.id = s.slot_id
		JOIN classes c ON c.id = t.class_id
		WHERE c.teacher_id = $1 AND s.is_active AND s.expires_at > $2
		ORDER BY s.created_at DESC
	`, teacherID, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list active sessions", err)
	}
	defer rows.Close()

	var res []ActiveSession
	for rows.Next() {
		var a ActiveSession
		if err := rows.Scan(&a.ID, &a.SlotID, &a.Code, &a.CreatedAt, &a.ExpiresAt, &a.Active,
			&a.ClassID, &a.CourseName, &a.CourseCode); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan active session", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountActive returns the number of active, unexpired sessions.
func (r *Repository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM qr_sessions WHERE is_active AND expires_at > $1
	`, now)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count active sessions", err)
	}
	return n, nil
}

// SweepExpired flips expired-but-active sessions to inactive. Idempotent;
// validation checks expiry directly, so this is cleanliness, not a
// correctness dependency.
func (r *Repository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE qr_sessions SET is_active = FALSE
		WHERE is_active AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "sweep expired sessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
