package attendance

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"smartattend/internal/apperr"
	"smartattend/internal/broadcast"
	"smartattend/internal/metrics"
	"smartattend/internal/roster"
	"smartattend/internal/schedule"
	"smartattend/internal/session"
)

// SessionFinder resolves a submitted code to a session.
type SessionFinder interface {
	FindByCode(ctx context.Context, code string) (session.Session, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

// SlotDirectory resolves timetable slots.
type SlotDirectory interface {
	SlotByID(ctx context.Context, slotID string) (schedule.Slot, error)
}

// Roster is the read-only enrollment collaborator.
type Roster interface {
	ClassByID(ctx context.Context, classID string) (roster.Class, error)
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	EnrolledStudents(ctx context.Context, classID string) ([]roster.Student, error)
	StudentByID(ctx context.Context, studentID string) (roster.Student, error)
}

// Ledger is the slice of the attendance repository the engine needs.
type Ledger interface {
	InsertUnique(ctx context.Context, rec Record) (Record, error)
	Upsert(ctx context.Context, rec Record) (Record, error)
	Find(ctx context.Context, studentID, slotID string) (*Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]StudentRecord, error)
	ListByClass(ctx context.Context, classID string) (map[string][]ClassRecord, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// MarkResult is returned from a successful mark.
type MarkResult struct {
	Status    Status
	Method    Method
	Timestamp time.Time
}

// StudentSummary aggregates one student's ledger.
type StudentSummary struct {
	TotalSessions   int
	PresentSessions int
	AttendanceRate  float64
}

// StudentReport is the student's own attendance view.
type StudentReport struct {
	Records []StudentRecord
	Summary StudentSummary
}

// ClassStudentReport is one row of a class attendance report. The rate
// denominator is the student's own resolved-record count, so a student is
// not penalized for sessions created before they enrolled.
type ClassStudentReport struct {
	StudentID      string
	StudentName    string
	StudentEmail   string
	Records        []ClassRecord
	AttendanceRate float64
}

// ClassReport is the teacher's per-class attendance view.
type ClassReport struct {
	Class    roster.Class
	Students []ClassStudentReport
}

// Overview is the admin aggregate view.
type Overview struct {
	RecordsByStatus map[Status]int64
	ActiveSessions  int64
}

// Engine validates codes, classifies timeliness, writes the ledger and
// publishes change events.
type Engine struct {
	sessions SessionFinder
	slots    SlotDirectory
	roster   Roster
	ledger   Ledger
	bc       broadcast.Broadcaster
	// lateThreshold is how far past slot start a QR submission still
	// counts as PRESENT. The boundary itself is PRESENT.
	lateThreshold time.Duration
	log           *zap.Logger
	now           func() time.Time
}

// NewEngine wires an attendance engine.
func NewEngine(sessions SessionFinder, slots SlotDirectory, ros Roster, ledger Ledger, bc broadcast.Broadcaster, lateThreshold time.Duration, log *zap.Logger) *Engine {
	if lateThreshold <= 0 {
		lateThreshold = 15 * time.Minute
	}
	return &Engine{
		sessions:      sessions,
		slots:         slots,
		roster:        ros,
		ledger:        ledger,
		bc:            bc,
		lateThreshold: lateThreshold,
		log:           log,
		now:           time.Now,
	}
}

// MarkByCode records a student's attendance from a scanned session code.
// ABSENT is never produced here: the code is only usable while the
// session is active, so outcomes are PRESENT or LATE.
func (e *Engine) MarkByCode(ctx context.Context, studentID, code string) (MarkResult, error) {
	if code == "" {
		return MarkResult{}, apperr.E(apperr.KindValidation, "session code is required")
	}

	now := e.now()
	s, err := e.sessions.FindByCode(ctx, code)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return MarkResult{}, apperr.E(apperr.KindExpired, "invalid or expired session code")
		}
		return MarkResult{}, err
	}
	if !s.Usable(now) {
		return MarkResult{}, apperr.E(apperr.KindExpired, "invalid or expired session code")
	}

	slot, err := e.slots.SlotByID(ctx, s.SlotID)
	if err != nil {
		return MarkResult{}, err
	}
	enrolled, err := e.roster.IsEnrolled(ctx, studentID, slot.ClassID)
	if err != nil {
		return MarkResult{}, err
	}
	if !enrolled {
		return MarkResult{}, apperr.E(apperr.KindAccessDenied, "you are not enrolled in this class")
	}

	if existing, err := e.ledger.Find(ctx, studentID, slot.ID); err != nil {
		return MarkResult{}, err
	} else if existing != nil {
		return MarkResult{}, apperr.E(apperr.KindConflict, "attendance already marked for this session")
	}

	status := StatusPresent
	if now.After(slot.StartTime.Add(e.lateThreshold)) {
		status = StatusLate
	}

	// The unique constraint resolves a concurrent double submission;
	// InsertUnique reports the loser as a conflict.
	rec, err := e.ledger.InsertUnique(ctx, Record{
		StudentID: studentID,
		SlotID:    slot.ID,
		Status:    status,
		Method:    MethodQR,
		MarkedAt:  now,
	})
	if err != nil {
		return MarkResult{}, err
	}
	metrics.MarksTotal.WithLabelValues(string(status), string(MethodQR)).Inc()

	e.publish(ctx, slot.ClassID, studentID, status, rec.MarkedAt)

	return MarkResult{Status: rec.Status, Method: rec.Method, Timestamp: rec.MarkedAt}, nil
}

// publish is fire-and-forget: a failed or slow broadcast never fails the
// mark itself.
func (e *Engine) publish(ctx context.Context, classID, studentID string, status Status, ts time.Time) {
	student, err := e.roster.StudentByID(ctx, studentID)
	if err != nil {
		e.log.Warn("broadcast skipped: student lookup failed", zap.Error(err))
		return
	}
	ev := broadcast.Event{
		StudentID:   student.ID,
		StudentName: student.Name,
		Status:      string(status),
		Timestamp:   ts,
	}
	if err := e.bc.Publish(ctx, classID, ev); err != nil {
		e.log.Warn("broadcast publish failed", zap.String("class_id", classID), zap.Error(err))
		return
	}
	metrics.BroadcastEventsTotal.Inc()
}

// MarkManually lets the class owner set any status for a student,
// overwriting an existing record in place. No broadcast: the teacher sees
// the result synchronously.
func (e *Engine) MarkManually(ctx context.Context, teacherID, studentID, slotID string, status Status) (MarkResult, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return MarkResult{}, apperr.E(apperr.KindValidation, "invalid attendance status")
	}

	slot, err := e.slots.SlotByID(ctx, slotID)
	if err != nil {
		return MarkResult{}, err
	}
	class, err := e.roster.ClassByID(ctx, slot.ClassID)
	if err != nil {
		return MarkResult{}, err
	}
	if class.TeacherID != teacherID {
		return MarkResult{}, apperr.E(apperr.KindAccessDenied, "you do not own this class")
	}
	enrolled, err := e.roster.IsEnrolled(ctx, studentID, slot.ClassID)
	if err != nil {
		return MarkResult{}, err
	}
	if !enrolled {
		return MarkResult{}, apperr.E(apperr.KindNotFound, "student is not enrolled in this class")
	}

	now := e.now()
	rec, err := e.ledger.Upsert(ctx, Record{
		StudentID: studentID,
		SlotID:    slotID,
		Status:    status,
		Method:    MethodManual,
		MarkedAt:  now,
	})
	if err != nil {
		return MarkResult{}, err
	}
	metrics.MarksTotal.WithLabelValues(string(status), string(MethodManual)).Inc()
	return MarkResult{Status: rec.Status, Method: rec.Method, Timestamp: rec.MarkedAt}, nil
}

// ClassAttendance builds the per-class report for its owner.
func (e *Engine) ClassAttendance(ctx context.Context, teacherID, classID string) (ClassReport, error) {
	class, err := e.roster.ClassByID(ctx, classID)
	if err != nil {
		return ClassReport{}, err
	}
	if class.TeacherID != teacherID {
		return ClassReport{}, apperr.E(apperr.KindAccessDenied, "you do not own this class")
	}

	students, err := e.roster.EnrolledStudents(ctx, classID)
	if err != nil {
		return ClassReport{}, err
	}
	byStudent, err := e.ledger.ListByClass(ctx, classID)
	if err != nil {
		return ClassReport{}, err
	}

	report := ClassReport{Class: class, Students: make([]ClassStudentReport, 0, len(students))}
	for _, s := range students {
		recs := byStudent[s.ID]
		report.Students = append(report.Students, ClassStudentReport{
			StudentID:      s.ID,
			StudentName:    s.Name,
			StudentEmail:   s.Email,
			Records:        recs,
			AttendanceRate: presentRate(countClassPresent(recs), len(recs)),
		})
	}
	return report, nil
}

// StudentAttendance builds a student's own history and summary.
func (e *Engine) StudentAttendance(ctx context.Context, studentID string) (StudentReport, error) {
	records, err := e.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	present := 0
	for _, r := range records {
		if r.Status == StatusPresent {
			present++
		}
	}
	return StudentReport{
		Records: records,
		Summary: StudentSummary{
			TotalSessions:   len(records),
			PresentSessions: present,
			AttendanceRate:  presentRate(present, len(records)),
		},
	}, nil
}

// AdminOverview aggregates ledger and session counts.
func (e *Engine) AdminOverview(ctx context.Context) (Overview, error) {
	byStatus, err := e.ledger.CountByStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	active, err := e.sessions.CountActive(ctx, e.now())
	if err != nil {
		return Overview{}, err
	}
	return Overview{RecordsByStatus: byStatus, ActiveSessions: active}, nil
}

// WithClock overrides the engine's time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func countClassPresent(recs []ClassRecord) int {
	n := 0
	for _, r := range recs {
		if r.Status == StatusPresent {
			n++
		}
	}
	return n
}

// presentRate is a percentage rounded to two decimals; zero records means
// a zero rate, not a division error.
func presentRate(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*100*100) / 100
}
