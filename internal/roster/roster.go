// Package roster answers enrollment and class-ownership questions. It is
// a read-only collaborator for the attendance engine: narrow queries
// returning exactly the fields each operation needs.
package roster

import (
	"context"
	"database/sql"
	"errors"

	"smartattend/internal/apperr"
)

// Class summarizes one class for session descriptors and reports.
type Class struct {
	ID         string
	CourseName string
	CourseCode string
	TeacherID  string
}

// Student is one enrolled student.
type Student struct {
	ID    string
	Name  string
	Email string
}

// Repository reads roster data from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ClassByID returns a class summary.
func (r *Repository) ClassByID(ctx context.Context, classID string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_name, course_code, teacher_id
		FROM classes WHERE id = $1
	`, classID)
	var c Class
	if err := row.Scan(&c.ID, &c.CourseName, &c.CourseCode, &c.TeacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, apperr.E(apperr.KindNotFound, "class not found")
		}
		return Class{}, apperr.Wrap(apperr.KindInternal, "load class", err)
	}
	return c, nil
}

// IsEnrolled reports whether the student is enrolled in the class.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2
		)
	`, studentID, classID)
	var enrolled bool
	if err := row.Scan(&enrolled); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "check enrollment", err)
	}
	return enrolled, nil
}

// EnrolledStudents lists the students enrolled in a class, sorted by name.
func (r *Repository) EnrolledStudents(ctx context.Context, classID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		WHERE e.class_id = $1
		ORDER BY u.name
	`, classID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list enrolled students", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan student", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// StudentByID returns one student's display fields.
func (r *Repository) StudentByID(ctx context.Context, studentID string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = $1`, studentID)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, apperr.E(apperr.KindNotFound, "student not found")
		}
		return Student{}, apperr.Wrap(apperr.KindInternal, "load student", err)
	}
	return s, nil
}
