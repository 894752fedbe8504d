package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"smartattend/internal/apperr"
	"smartattend/internal/roster"
	"smartattend/internal/schedule"
)

// Store is the slice of the session repository the manager needs.
type Store interface {
	Create(ctx context.Context, slotID, code string, now, expiresAt time.Time) (Session, error)
	FindByCode(ctx context.Context, code string) (Session, error)
	Deactivate(ctx context.Context, id string) error
	ActiveByTeacher(ctx context.Context, teacherID string, now time.Time) ([]ActiveSession, error)
}

// SlotDirectory resolves timetable slots.
type SlotDirectory interface {
	SlotByID(ctx context.Context, slotID string) (schedule.Slot, error)
	ActiveSlotForClass(ctx context.Context, classID string, now time.Time) (schedule.Slot, error)
}

// ClassDirectory resolves class ownership.
type ClassDirectory interface {
	ClassByID(ctx context.Context, classID string) (roster.Class, error)
}

// AbsenceSweeper marks enrolled-but-unrecorded students ABSENT for a slot
// when a session ends.
type AbsenceSweeper interface {
	MarkAbsentUnrecorded(ctx context.Context, slotID string, now time.Time) (int64, error)
}

// Policy holds the configurable session rules.
type Policy struct {
	MinMinutes int
	MaxMinutes int
	// AbsentOnEnd controls whether ending a session sweeps students with
	// no record for the slot to ABSENT. When false, reconciliation is
	// left to a separate end-of-day process.
	AbsentOnEnd bool
}

// Started describes a freshly created session.
type Started struct {
	Code      string
	ExpiresAt time.Time
	Minutes   int
	Class     roster.Class
	SlotID    string
}

// Manager creates and retires attendance sessions.
type Manager struct {
	sessions Store
	slots    SlotDirectory
	classes  ClassDirectory
	ledger   AbsenceSweeper
	policy   Policy
	log      *zap.Logger
	now      func() time.Time
}

// NewManager wires a lifecycle manager.
func NewManager(sessions Store, slots SlotDirectory, classes ClassDirectory, ledger AbsenceSweeper, policy Policy, log *zap.Logger) *Manager {
	return &Manager{
		sessions: sessions,
		slots:    slots,
		classes:  classes,
		ledger:   ledger,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
}

// StartSession opens a new attendance window for a slot. Any prior active
// session for the slot is deactivated; last writer wins.
func (m *Manager) StartSession(ctx context.Context, teacherID, slotID string, minutes int) (Started, error) {
	if minutes < m.policy.MinMinutes || minutes > m.policy.MaxMinutes {
		return Started{}, apperr.E(apperr.KindValidation,
			fmt.Sprintf("duration must be between %d and %d minutes", m.policy.MinMinutes, m.policy.MaxMinutes))
	}

	slot, err := m.slots.SlotByID(ctx, slotID)
	if err != nil {
		return Started{}, err
	}
	class, err := m.classes.ClassByID(ctx, slot.ClassID)
	if err != nil {
		return Started{}, err
	}
	if class.TeacherID != teacherID {
		return Started{}, apperr.E(apperr.KindAccessDenied, "you do not own this class")
	}

	now := m.now()
	if now.Before(slot.StartTime) || now.After(slot.EndTime) {
		return Started{}, apperr.E(apperr.KindNotFound, "timetable slot is not in session right now")
	}
	s, err := m.sessions.Create(ctx, slot.ID, NewCode(), now, now.Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return Started{}, err
	}

	m.log.Info("session started",
		zap.String("slot_id", slot.ID),
		zap.String("class_id", class.ID),
		zap.Time("expires_at", s.ExpiresAt))
	return Started{
		Code:      s.Code,
		ExpiresAt: s.ExpiresAt,
		Minutes:   minutes,
		Class:     class,
		SlotID:    slot.ID,
	}, nil
}

// StartForClass resolves the slot currently in session for the class and
// starts a session for it. NotFound when the class is not meeting now.
func (m *Manager) StartForClass(ctx context.Context, teacherID, classID string, minutes int) (Started, error) {
	class, err := m.classes.ClassByID(ctx, classID)
	if err != nil {
		return Started{}, err
	}
	if class.TeacherID != teacherID {
		return Started{}, apperr.E(apperr.KindAccessDenied, "you do not own this class")
	}
	slot, err := m.slots.ActiveSlotForClass(ctx, classID, m.now())
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Started{}, apperr.E(apperr.KindNotFound, "no timetable slot is in session for this class")
		}
		return Started{}, err
	}
	return m.StartSession(ctx, teacherID, slot.ID, minutes)
}

// EndSession marks the session inactive. Under the AbsentOnEnd policy,
// every enrolled student without a record for the slot is marked ABSENT.
func (m *Manager) EndSession(ctx context.Context, teacherID, code string) error {
	s, err := m.sessions.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	slot, err := m.slots.SlotByID(ctx, s.SlotID)
	if err != nil {
		return err
	}
	class, err := m.classes.ClassByID(ctx, slot.ClassID)
	if err != nil {
		return err
	}
	if class.TeacherID != teacherID {
		return apperr.E(apperr.KindAccessDenied, "you do not own this class")
	}

	if err := m.sessions.Deactivate(ctx, s.ID); err != nil {
		return err
	}

	if m.policy.AbsentOnEnd {
		swept, err := m.ledger.MarkAbsentUnrecorded(ctx, slot.ID, m.now())
		if err != nil {
			return err
		}
		if swept > 0 {
			m.log.Info("unmarked students swept to absent",
				zap.String("slot_id", slot.ID), zap.Int64("count", swept))
		}
	}
	return nil
}

// ActiveSessions lists the teacher's active, unexpired sessions.
func (m *Manager) ActiveSessions(ctx context.Context, teacherID string) ([]ActiveSession, error) {
	return m.sessions.ActiveByTeacher(ctx, teacherID, m.now())
}

// WithClock overrides the manager's time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}
