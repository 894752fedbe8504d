// Package httpapi exposes the attendance core over HTTP using gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/apperr"
	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/identity"
	"smartattend/internal/metrics"
	"smartattend/internal/session"
)

// SessionService is the lifecycle manager surface used over HTTP.
type SessionService interface {
	StartSession(ctx context.Context, teacherID, slotID string, minutes int) (session.Started, error)
	StartForClass(ctx context.Context, teacherID, classID string, minutes int) (session.Started, error)
	EndSession(ctx context.Context, teacherID, code string) error
	ActiveSessions(ctx context.Context, teacherID string) ([]session.ActiveSession, error)
}

// AttendanceService is the engine surface used over HTTP.
type AttendanceService interface {
	MarkByCode(ctx context.Context, studentID, code string) (attendance.MarkResult, error)
	MarkManually(ctx context.Context, teacherID, studentID, slotID string, status attendance.Status) (attendance.MarkResult, error)
	ClassAttendance(ctx context.Context, teacherID, classID string) (attendance.ClassReport, error)
	StudentAttendance(ctx context.Context, studentID string) (attendance.StudentReport, error)
	AdminOverview(ctx context.Context) (attendance.Overview, error)
}

// IdentityService registers and authenticates users.
type IdentityService interface {
	Register(ctx context.Context, email, name, password, role string) (identity.User, auth.TokenPair, error)
	Login(ctx context.Context, email, password string) (identity.User, auth.TokenPair, error)
	Profile(ctx context.Context, userID string) (identity.User, error)
}

// Handlers binds the services to gin routes.
type Handlers struct {
	Sessions   SessionService
	Attendance AttendanceService
	Identity   IdentityService
}

// statusFor maps the error taxonomy to HTTP statuses in one place.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindExpired:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   apperr.KindOf(err).String(),
		"message": apperr.Message(err),
	})
}

func (h *Handlers) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.E(apperr.KindValidation, err.Error()))
		return
	}
	u, pair, err := h.Identity.Register(c.Request.Context(), req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"user":          gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "role": u.Role},
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.AccessExp.Unix(),
		},
	})
}

func (h *Handlers) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.E(apperr.KindValidation, err.Error()))
		return
	}
	u, pair, err := h.Identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user":          gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "role": u.Role},
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.AccessExp.Unix(),
		},
	})
}

func (h *Handlers) me(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	u, err := h.Identity.Profile(c.Request.Context(), claims.Subject)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user": gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "role": u.Role},
		},
	})
}

func (h *Handlers) generateQR(c *gin.Context) {
	var req struct {
		ClassID  string `json:"class_id"`
		SlotID   string `json:"slot_id"`
		Duration int    `json:"duration" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.E(apperr.KindValidation, err.Error()))
		return
	}
	claims, _ := auth.FromContext(c)

	var started session.Started
	var err error
	switch {
	case req.SlotID != "":
		started, err = h.Sessions.StartSession(c.Request.Context(), claims.Subject, req.SlotID, req.Duration)
	case req.ClassID != "":
		started, err = h.Sessions.StartForClass(c.Request.Context(), claims.Subject, req.ClassID, req.Duration)
	default:
		err = apperr.E(apperr.KindValidation, "class_id or slot_id is required")
	}
	if err != nil {
		fail(c, err)
		return
	}
	metrics.SessionsStartedTotal.Inc()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"qr_code":    started.Code,
			"expires_at": started.ExpiresAt,
			"duration":   started.Minutes,
			"slot_id":    started.SlotID,
			"class": gin.H{
				"id":          started.Class.ID,
				"course_name": started.Class.CourseName,
				"course_code": started.Class.CourseCode,
			},
		},
	})
}

func (h *Handlers) deactivateQR(c *gin.Context) {
	var req struct {
		QRCode string `json:"qr_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.E(apperr.KindValidation, err.Error()))
		return
	}
	claims, _ := auth.FromContext(c)
	if err := h.Sessions.EndSession(c.Request.Context(), claims.Subject, req.QRCode); err != nil {
		fail(c, err)
		return
	}
	metrics.SessionsEndedTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) activeSessions(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	sessions, err := h.Sessions.ActiveSessions(c.Request.Context(), claims.Subject)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":         s.ID,
			"qr_code":    s.Code,
			"expires_at": s.ExpiresAt,
			"class": gin.H{
				"id":          s.ClassID,
				"course_name": s.CourseName,
				"course_code": s.CourseCode,
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"sessions": out}})
}

func (h *Handlers) markAttendance(c *gin.Context) {
	var req struct {
		QRCode string `json:"qr_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.E(apperr.KindValidation, err.Error()))
		return
	}
	claims, _ := auth.FromContext(c)
	res, err := h.Attendance.MarkByCode(c.Request.Context(), claims.Subject, req.QRCode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"status": res.Status, "timestamp": res.Timestamp},
	})
}

func (h *Handlers) markManually(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		SlotID    string `json:"slot_id" binding:"required"`
		Status    string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.E(apperr.KindValidation, err.Error()))
		return
	}
	claims, _ := auth.FromContext(c)
	res, err := h.Attendance.MarkManually(c.Request.Context(), claims.Subject, req.StudentID, req.SlotID, attendance.Status(req.Status))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"status": res.Status, "method": res.Method, "timestamp": res.Timestamp},
	})
}

func (h *Handlers) classAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	report, err := h.Attendance.ClassAttendance(c.Request.Context(), claims.Subject, c.Param("classId"))
	if err != nil {
		fail(c, err)
		return
	}

	students := make([]gin.H, 0, len(report.Students))
	for _, s := range report.Students {
		recs := make([]gin.H, 0, len(s.Records))
		for _, r := range s.Records {
			recs = append(recs, gin.H{
				"id":        r.ID,
				"status":    r.Status,
				"method":    r.Method,
				"timestamp": r.MarkedAt,
				"date":      r.SlotStart,
			})
		}
		students = append(students, gin.H{
			"student_id":         s.StudentID,
			"student_name":       s.StudentName,
			"student_email":      s.StudentEmail,
			"attendance_records": recs,
			"attendance_rate":    s.AttendanceRate,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"class": gin.H{
				"id":          report.Class.ID,
				"course_name": report.Class.CourseName,
				"course_code": report.Class.CourseCode,
			},
			"students": students,
		},
	})
}

func (h *Handlers) myAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	report, err := h.Attendance.StudentAttendance(c.Request.Context(), claims.Subject)
	if err != nil {
		fail(c, err)
		return
	}

	recs := make([]gin.H, 0, len(report.Records))
	for _, r := range report.Records {
		recs = append(recs, gin.H{
			"id":        r.ID,
			"status":    r.Status,
			"method":    r.Method,
			"timestamp": r.MarkedAt,
			"class":     gin.H{"course_name": r.CourseName, "course_code": r.CourseCode},
			"session": gin.H{
				"day_of_week": r.DayOfWeek,
				"start_time":  r.SlotStart,
				"end_time":    r.SlotEnd,
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"attendance_records": recs,
			"summary": gin.H{
				"total_sessions":   report.Summary.TotalSessions,
				"present_sessions": report.Summary.PresentSessions,
				"attendance_rate":  report.Summary.AttendanceRate,
			},
		},
	})
}

func (h *Handlers) adminOverview(c *gin.Context) {
	overview, err := h.Attendance.AdminOverview(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"records_by_status": overview.RecordsByStatus,
			"active_sessions":   overview.ActiveSessions,
		},
	})
}
