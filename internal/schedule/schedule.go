// Package schedule reads timetable slots. Slots are immutable once
// scheduled; edits create new slots.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"smartattend/internal/apperr"
)

// Slot is one scheduled occurrence of a class meeting.
type Slot struct {
	ID        string
	ClassID   string
	DayOfWeek int
	StartTime time.Time
	EndTime   time.Time
}

// Repository reads slots from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SlotByID returns a slot.
func (r *Repository) SlotByID(ctx context.Context, slotID string) (Slot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, day_of_week, start_time, end_time
		FROM timetable_slots WHERE id = $1
	`, slotID)
	return scanSlot(row)
}

// ActiveSlotForClass returns the slot currently in session for the class,
// meaning start_time <= now <= end_time. NotFound when the class is not
// meeting right now.
func (r *Repository) ActiveSlotForClass(ctx context.Context, classID string, now time.Time) (Slot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, day_of_week, start_time, end_time
		FROM timetable_slots
		WHERE class_id = $1 AND start_time <= $2 AND end_time >= $2
		ORDER BY start_time DESC
		LIMIT 1
	`, classID, now)
	return scanSlot(row)
}

func scanSlot(row *sql.Row) (Slot, error) {
	var s Slot
	if err := row.Scan(&s.ID, &s.ClassID, &s.DayOfWeek, &s.StartTime, &s.EndTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Slot{}, apperr.E(apperr.KindNotFound, "timetable slot not found")
		}
		return Slot{}, apperr.Wrap(apperr.KindInternal, "load slot", err)
	}
	return s, nil
}
