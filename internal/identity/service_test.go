package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/apperr"
	"smartattend/internal/auth"
)

type fakeUsers struct {
	byEmail map[string]User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]User)}
}

func (f *fakeUsers) Create(_ context.Context, u User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return apperr.E(apperr.KindConflict, "an account with this email already exists")
	}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return User{}, apperr.E(apperr.KindNotFound, "user not found")
	}
	return u, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, apperr.E(apperr.KindNotFound, "user not found")
}

func newService() (*Service, *fakeUsers) {
	users := newFakeUsers()
	svc := NewService(users, TokenConfig{
		Issuer:     "smartattend-test",
		SigningKey: "test-signing-key",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	return svc, users
}

func TestRegister(t *testing.T) {
	svc, users := newService()

	u, pair, err := svc.Register(context.Background(), "Ada@School.Test", "Ada", "correct-horse", "TEACHER")
	require.NoError(t, err)
	assert.Equal(t, "ada@school.test", u.Email, "email is normalized")
	assert.Equal(t, auth.RoleTeacher, u.Role)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
	assert.NotEmpty(t, pair.AccessToken)

	claims, err := auth.Parse(pair.AccessToken, "test-signing-key", "smartattend-test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, auth.RoleTeacher, claims.Role)

	_, _, err = svc.Register(context.Background(), "ada@school.test", "Ada Again", "correct-horse", "TEACHER")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Len(t, users.byEmail, 1)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService()
	cases := []struct {
		name                        string
		email, user, password, role string
	}{
		{"missing email", "", "Ada", "correct-horse", "STUDENT"},
		{"short password", "ada@school.test", "Ada", "short", "STUDENT"},
		{"bad role", "ada@school.test", "Ada", "correct-horse", "WIZARD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tc.email, tc.user, tc.password, tc.role)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newService()
	_, _, err := svc.Register(context.Background(), "ada@school.test", "Ada", "correct-horse", "STUDENT")
	require.NoError(t, err)

	u, pair, err := svc.Login(context.Background(), "ada@school.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.NotEmpty(t, pair.AccessToken)

	// Wrong password and unknown email are indistinguishable.
	_, _, err = svc.Login(context.Background(), "ada@school.test", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))
	_, _, err = svc.Login(context.Background(), "nobody@school.test", "correct-horse")
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))
}

func TestProfile(t *testing.T) {
	svc, _ := newService()
	u, _, err := svc.Register(context.Background(), "ada@school.test", "Ada", "correct-horse", "STUDENT")
	require.NoError(t, err)

	got, err := svc.Profile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@school.test", got.Email)
	assert.Equal(t, auth.RoleStudent, got.Role)

	_, err = svc.Profile(context.Background(), "nobody")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
