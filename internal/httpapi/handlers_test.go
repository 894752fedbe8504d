package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartattend/internal/apperr"
	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/broadcast"
	"smartattend/internal/config"
	"smartattend/internal/identity"
	"smartattend/internal/session"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "smartattend-test"
)

type fakeSessionSvc struct {
	started session.Started
	err     error
}

func (f *fakeSessionSvc) StartSession(_ context.Context, _, _ string, _ int) (session.Started, error) {
	return f.started, f.err
}

func (f *fakeSessionSvc) StartForClass(_ context.Context, _, _ string, _ int) (session.Started, error) {
	return f.started, f.err
}

func (f *fakeSessionSvc) EndSession(_ context.Context, _, _ string) error { return f.err }

func (f *fakeSessionSvc) ActiveSessions(_ context.Context, _ string) ([]session.ActiveSession, error) {
	return nil, f.err
}

type fakeAttendanceSvc struct {
	result attendance.MarkResult
	err    error
}

func (f *fakeAttendanceSvc) MarkByCode(_ context.Context, _, _ string) (attendance.MarkResult, error) {
	return f.result, f.err
}

func (f *fakeAttendanceSvc) MarkManually(_ context.Context, _, _, _ string, _ attendance.Status) (attendance.MarkResult, error) {
	return f.result, f.err
}

func (f *fakeAttendanceSvc) ClassAttendance(_ context.Context, _, _ string) (attendance.ClassReport, error) {
	return attendance.ClassReport{}, f.err
}

func (f *fakeAttendanceSvc) StudentAttendance(_ context.Context, _ string) (attendance.StudentReport, error) {
	return attendance.StudentReport{}, f.err
}

func (f *fakeAttendanceSvc) AdminOverview(_ context.Context) (attendance.Overview, error) {
	return attendance.Overview{}, f.err
}

type fakeIdentitySvc struct{}

func (fakeIdentitySvc) Register(_ context.Context, email, name, _, role string) (identity.User, auth.TokenPair, error) {
	return identity.User{ID: "u-1", Email: email, Name: name, Role: auth.Role(role)}, auth.TokenPair{AccessToken: "tok"}, nil
}

func (fakeIdentitySvc) Login(_ context.Context, email, _ string) (identity.User, auth.TokenPair, error) {
	return identity.User{ID: "u-1", Email: email}, auth.TokenPair{AccessToken: "tok"}, nil
}

func (fakeIdentitySvc) Profile(_ context.Context, userID string) (identity.User, error) {
	return identity.User{ID: userID, Email: "ada@school.test", Name: "Ada", Role: auth.RoleStudent}, nil
}

func testRouter(t *testing.T, sessions SessionService, att AttendanceService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.JWTSigningKey = testKey
	cfg.JWTIssuer = testIssuer
	cfg.RateLimitPerMin = 10000

	return NewRouter(cfg, Deps{
		Handlers: &Handlers{
			Sessions:   sessions,
			Attendance: att,
			Identity:   fakeIdentitySvc{},
		},
		Broadcaster:  broadcast.NewMemory(),
		Log:          zap.NewNop(),
		DBHealthy:    func(context.Context) bool { return true },
		RedisHealthy: func(context.Context) bool { return true },
	})
}

func bearer(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	pair, err := auth.Issue(userID, role, testIssuer, testKey, 15*time.Minute, time.Hour)
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func doJSON(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMarkAttendance(t *testing.T) {
	when := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	att := &fakeAttendanceSvc{result: attendance.MarkResult{
		Status: attendance.StatusPresent, Method: attendance.MethodQR, Timestamp: when,
	}}
	r := testRouter(t, &fakeSessionSvc{}, att)

	w := doJSON(r, http.MethodPost, "/api/attendance/mark", bearer(t, "alice", auth.RoleStudent), `{"qr_code":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "PRESENT", resp.Data.Status)
}

func TestMarkAttendanceErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"expired", apperr.E(apperr.KindExpired, "invalid or expired session code"), http.StatusBadRequest, "expired"},
		{"conflict", apperr.E(apperr.KindConflict, "attendance already marked for this session"), http.StatusConflict, "conflict"},
		{"not enrolled", apperr.E(apperr.KindAccessDenied, "you are not enrolled in this class"), http.StatusForbidden, "access_denied"},
		{"infrastructure", apperr.Wrap(apperr.KindInternal, "query", assert.AnError), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := testRouter(t, &fakeSessionSvc{}, &fakeAttendanceSvc{err: tc.err})
			w := doJSON(r, http.MethodPost, "/api/attendance/mark", bearer(t, "alice", auth.RoleStudent), `{"qr_code":"abc"}`)
			assert.Equal(t, tc.code, w.Code)

			var resp struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.kind, resp.Error)
			if tc.kind == "internal" {
				assert.Equal(t, "internal server error", resp.Message, "internals must not leak")
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	r := testRouter(t, &fakeSessionSvc{}, &fakeAttendanceSvc{})

	w := doJSON(r, http.MethodPost, "/api/attendance/mark", "", `{"qr_code":"abc"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/attendance/mark", "Bearer not-a-token", `{"qr_code":"abc"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleEnforcement(t *testing.T) {
	r := testRouter(t, &fakeSessionSvc{}, &fakeAttendanceSvc{})

	// A teacher cannot submit a student mark.
	w := doJSON(r, http.MethodPost, "/api/attendance/mark", bearer(t, "t-1", auth.RoleTeacher), `{"qr_code":"abc"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A student cannot start sessions or read admin stats.
	w = doJSON(r, http.MethodPost, "/api/qr/generate", bearer(t, "alice", auth.RoleStudent), `{"class_id":"c1","duration":30}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(r, http.MethodGet, "/api/admin/overview", bearer(t, "alice", auth.RoleStudent), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerateQR(t *testing.T) {
	started := session.Started{Code: "deadbeef", Minutes: 30, SlotID: "slot-1"}
	r := testRouter(t, &fakeSessionSvc{started: started}, &fakeAttendanceSvc{})

	w := doJSON(r, http.MethodPost, "/api/qr/generate", bearer(t, "t-1", auth.RoleTeacher), `{"class_id":"c1","duration":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deadbeef")

	// Neither class_id nor slot_id given.
	w = doJSON(r, http.MethodPost, "/api/qr/generate", bearer(t, "t-1", auth.RoleTeacher), `{"duration":30}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe(t *testing.T) {
	r := testRouter(t, &fakeSessionSvc{}, &fakeAttendanceSvc{})

	w := doJSON(r, http.MethodGet, "/api/auth/me", bearer(t, "u-42", auth.RoleStudent), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u-42"`)

	w = doJSON(r, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthz(t *testing.T) {
	r := testRouter(t, &fakeSessionSvc{}, &fakeAttendanceSvc{})
	w := doJSON(r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
