// Package attendance turns submitted session codes into attendance
// decisions and keeps the ledger: one record per (student, slot).
package attendance

import (
	"fmt"
	"time"
)

// Status is the closed set of attendance outcomes.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
)

// ParseStatus validates a status string against the closed set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusLate, StatusAbsent:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Method records how an outcome was produced.
type Method string

const (
	MethodQR     Method = "QR"
	MethodManual Method = "MANUAL"
)

// Record is one ledger row. Records are never deleted in normal
// operation; only manual marking may overwrite one.
type Record struct {
	ID        string
	StudentID string
	SlotID    string
	Status    Status
	Method    Method
	MarkedAt  time.Time
}

// StudentRecord is a ledger row joined with its class and slot, for the
// student's own history view.
type StudentRecord struct {
	Record
	CourseName string
	CourseCode string
	DayOfWeek  int
	SlotStart  time.Time
	SlotEnd    time.Time
}

// ClassRecord is a ledger row within one class, keyed by student.
type ClassRecord struct {
	Record
	SlotStart time.Time
}
