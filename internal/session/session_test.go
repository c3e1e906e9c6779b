package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/PumpFleet/internal/validation"
)

var errRejected = errors.New("Invalid username or password")

type fakeAuth struct {
	calls int
}

func (f *fakeAuth) Authenticate(_ context.Context, creds validation.Credentials) (User, error) {
	f.calls++
	if creds.Username == "admin" && creds.Password == "888888" {
		return User{Username: "admin", Token: "tok-1"}, nil
	}
	return User{}, errRejected
}

func slot(t *testing.T, s Storage, key string) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) error: %v", key, err)
	}
	return v, ok
}

func TestSession_LoginPersistsBothSlots(t *testing.T) {
	store := NewMemoryStorage()
	s := New(store, zaptest.NewLogger(t))

	u, err := s.Login(context.Background(), &fakeAuth{}, validation.Credentials{Username: "admin", Password: "888888"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if u.Username != "admin" || !s.IsAuthenticated() {
		t.Errorf("user %+v, authenticated %v", u, s.IsAuthenticated())
	}

	if v, _ := slot(t, store, TokenKey); v != "tok-1" {
		t.Errorf("token slot = %q", v)
	}
	if v, _ := slot(t, store, UsernameKey); v != "admin" {
		t.Errorf("username slot = %q", v)
	}
}

func TestSession_FailedLoginPersistsNothing(t *testing.T) {
	store := NewMemoryStorage()
	s := New(store, nil)

	_, err := s.Login(context.Background(), &fakeAuth{}, validation.Credentials{Username: "admin", Password: "wrong-pass"})
	if !errors.Is(err, errRejected) {
		t.Fatalf("Login() error = %v", err)
	}
	if err.Error() != "Invalid username or password" {
		t.Errorf("message = %q", err.Error())
	}
	if s.IsAuthenticated() {
		t.Error("signed in after failed login")
	}
	if _, ok := slot(t, store, TokenKey); ok {
		t.Error("token persisted after failed login")
	}
	if _, ok := slot(t, store, UsernameKey); ok {
		t.Error("username persisted after failed login")
	}
}

func TestSession_InvalidFormSkipsAuthenticator(t *testing.T) {
	a := &fakeAuth{}
	s := New(NewMemoryStorage(), nil)

	_, err := s.Login(context.Background(), a, validation.Credentials{Username: "ad", Password: ""})
	fields, ok := validation.FromError(err)
	if !ok {
		t.Fatalf("error = %v, want field errors", err)
	}
	if fields["username"] != "Username must be at least 3 characters" {
		t.Errorf("username error = %q", fields["username"])
	}
	if fields["password"] != "Password is required" {
		t.Errorf("password error = %q", fields["password"])
	}
	if a.calls != 0 {
		t.Error("authenticator called with an invalid form")
	}
}

func TestSession_RestoreNeedsBothSlots(t *testing.T) {
	tests := []struct {
		name  string
		slots map[string]string
		want  bool
	}{
		{"both", map[string]string{TokenKey: "t", UsernameKey: "admin"}, true},
		{"token only", map[string]string{TokenKey: "t"}, false},
		{"username only", map[string]string{UsernameKey: "admin"}, false},
		{"empty token", map[string]string{TokenKey: "", UsernameKey: "admin"}, false},
		{"none", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStorage()
			for k, v := range tt.slots {
				_ = store.Set(k, v)
			}

			s := New(store, nil)
			if got := s.IsAuthenticated(); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

// brokenUsername fails username writes once armed.
type brokenUsername struct {
	*MemoryStorage
	armed bool
}

func (b *brokenUsername) Set(key, value string) error {
	if b.armed && key == UsernameKey {
		return errors.New("disk full")
	}
	return b.MemoryStorage.Set(key, value)
}

func TestSession_FailedSignInKeepsPreviousUser(t *testing.T) {
	store := &brokenUsername{MemoryStorage: NewMemoryStorage()}
	s := New(store, zaptest.NewLogger(t))
	if err := s.SignIn(User{Username: "admin", Token: "tok-old"}); err != nil {
		t.Fatal(err)
	}

	store.armed = true
	if err := s.SignIn(User{Username: "operator", Token: "tok-new"}); err == nil {
		t.Fatal("SignIn() succeeded with a failing username slot")
	}

	u, ok := s.CurrentUser()
	if !ok || u.Username != "admin" || u.Token != "tok-old" {
		t.Errorf("current user = %+v, %v", u, ok)
	}
	if v, _ := slot(t, store, TokenKey); v != "tok-old" {
		t.Errorf("token slot = %q, want tok-old", v)
	}
	if v, _ := slot(t, store, UsernameKey); v != "admin" {
		t.Errorf("username slot = %q", v)
	}
}

func TestSession_FailedFirstSignInLeavesNoToken(t *testing.T) {
	store := &brokenUsername{MemoryStorage: NewMemoryStorage(), armed: true}
	s := New(store, nil)

	if err := s.SignIn(User{Username: "admin", Token: "tok"}); err == nil {
		t.Fatal("SignIn() succeeded with a failing username slot")
	}
	if s.IsAuthenticated() {
		t.Error("authenticated after failed sign in")
	}
	if _, ok := slot(t, store, TokenKey); ok {
		t.Error("token slot kept after failed sign in")
	}
}

func TestSession_SignOut(t *testing.T) {
	store := NewMemoryStorage()
	s := New(store, nil)
	if err := s.SignIn(User{Username: "admin", Token: "t"}); err != nil {
		t.Fatal(err)
	}

	if err := s.SignOut(); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("still authenticated")
	}
	if _, err := s.Require(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Require() error = %v", err)
	}
	if _, ok := slot(t, store, TokenKey); ok {
		t.Error("token slot survived sign out")
	}
}

func TestFileStorage_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	first := New(NewFileStorage(path), nil)
	if err := first.SignIn(User{Username: "admin", Token: "tok"}); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("session file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	second := New(NewFileStorage(path), nil)
	u, ok := second.CurrentUser()
	if !ok || u.Username != "admin" || u.Token != "tok" {
		t.Errorf("restored %+v, %v", u, ok)
	}

	if err := second.SignOut(); err != nil {
		t.Fatal(err)
	}
	if New(NewFileStorage(path), nil).IsAuthenticated() {
		t.Error("sign out not persisted")
	}
}

func TestFileStorage_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	fs := NewFileStorage(path)

	if err := fs.Set("k", "v"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, ok, err := fs.Get("k"); err != nil || ok {
		t.Errorf("Get after Clear = %v, %v", ok, err)
	}
	// clearing twice is fine
	if err := fs.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}
