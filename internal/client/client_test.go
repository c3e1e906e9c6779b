package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/PumpFleet/internal/api/rest"
	"github.com/KevinKickass/PumpFleet/internal/api/websocket"
	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/catalog"
	"github.com/KevinKickass/PumpFleet/internal/collection"
	"github.com/KevinKickass/PumpFleet/internal/config"
	"github.com/KevinKickass/PumpFleet/internal/session"
	"github.com/KevinKickass/PumpFleet/internal/types"
	"github.com/KevinKickass/PumpFleet/internal/validation"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := &config.Config{
		Server:     config.ServerConfig{AllowedOrigins: []string{"*"}},
		Auth:       config.AuthConfig{Username: "admin", AccessTokenTTL: time.Hour, HashMemoryKiB: 1024, HashIterations: 1},
		Collection: config.CollectionConfig{DefaultPageSize: 10, Locale: "en"},
	}
	authSvc, err := auth.NewService(cfg.Auth, logger)
	if err != nil {
		t.Fatal(err)
	}

	loader, err := catalog.NewSeedLoader()
	if err != nil {
		t.Fatal(err)
	}
	pumps, err := loader.LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	source := catalog.NewMockSource(pumps, 0)

	hub := websocket.NewHub(logger, authSvc)
	reg := collection.NewRegistry(source, collection.RegistryConfig{Locale: "en", Listener: hub}, logger)
	t.Cleanup(reg.Close)

	srv := httptest.NewServer(rest.NewServer(cfg, rest.Dependencies{
		Auth: authSvc, Registry: reg, Source: source, Hub: hub, Logger: logger,
	}).Handler())
	t.Cleanup(srv.Close)

	return New(srv.URL, 5*time.Second, logger)
}

func signIn(t *testing.T, c *Client) *Client {
	t.Helper()
	s := session.New(session.NewMemoryStorage(), nil)
	u, err := s.Login(context.Background(), c, validation.Credentials{Username: "admin", Password: auth.DefaultPassword})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	return c.WithToken(u.Token)
}

func TestClient_LoginThroughSession(t *testing.T) {
	c := startServer(t)
	s := session.New(session.NewMemoryStorage(), nil)

	_, err := s.Login(context.Background(), c, validation.Credentials{Username: "admin", Password: "wrong-pass"})
	if err == nil || err.Error() != "Invalid username or password" {
		t.Fatalf("bad password error = %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("session signed in after rejected login")
	}

	authed := signIn(t, c)
	me, err := authed.Me(context.Background())
	if err != nil || me != "admin" {
		t.Errorf("Me() = %q, %v", me, err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	c := startServer(t)

	_, err := c.List(context.Background(), 1, 10)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("List() without token error = %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != types.CodeUnauthorized {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestClient_ListGetDelete(t *testing.T) {
	c := signIn(t, startServer(t))
	ctx := context.Background()

	st, err := c.WaitLoaded(ctx, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitLoaded() error: %v", err)
	}
	if st.TotalPumps != 8 {
		t.Fatalf("total = %d, want the 8 seed pumps", st.TotalPumps)
	}

	list, err := c.List(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Page.Items) != 3 || list.Page.TotalPages != 3 {
		t.Errorf("page = %d items of %d pages", len(list.Page.Items), list.Page.TotalPages)
	}

	detail, err := c.Get(ctx, "PMP-1001")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if detail.Name != "North Intake Pump" || len(detail.Series) == 0 {
		t.Errorf("detail = %+v", detail)
	}

	if _, err := c.Get(ctx, "PMP-0000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}

	removed, err := c.Delete(ctx, []string{"PMP-1001", "PMP-1002"})
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v", removed)
	}
	if st, _ := c.State(ctx); st.TotalPumps != 6 {
		t.Errorf("total after delete = %d", st.TotalPumps)
	}
}

func TestClient_DeleteIgnoresEarlierSelection(t *testing.T) {
	c := signIn(t, startServer(t))
	ctx := context.Background()
	if _, err := c.WaitLoaded(ctx, 5*time.Millisecond); err != nil {
		t.Fatalf("WaitLoaded() error: %v", err)
	}

	// leave PMP-1001 selected from an earlier edit session
	if err := c.do(ctx, http.MethodPost, "/api/v1/pumps/edit-mode/toggle", nil, nil); err != nil {
		t.Fatal(err)
	}
	selected := true
	if err := c.do(ctx, http.MethodPut, "/api/v1/pumps/selection/PMP-1001", rest.SelectRequest{Selected: &selected}, nil); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Delete(ctx, []string{"PMP-1002"})
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if len(removed) != 1 || removed[0] != "PMP-1002" {
		t.Errorf("removed = %v, want [PMP-1002]", removed)
	}
	if _, err := c.Get(ctx, "PMP-1001"); err != nil {
		t.Errorf("Get(PMP-1001) after delete error = %v", err)
	}
}

func TestClient_LogoutRevokes(t *testing.T) {
	c := signIn(t, startServer(t))
	ctx := context.Background()

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, err := c.Me(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Me() after logout error = %v", err)
	}
}

func TestClient_CreateUpdate(t *testing.T) {
	c := signIn(t, startServer(t))
	ctx := context.Background()
	if _, err := c.WaitLoaded(ctx, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	created, err := c.Create(ctx, types.PumpForm{
		Name: "Test Pump", Type: types.PumpTypeRotary, Area: "Area Z", Status: types.PumpStatusOffline,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	area := "Area Y"
	updated, err := c.Update(ctx, created.ID, types.PumpPatch{Area: &area})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Area != "Area Y" || updated.Name != "Test Pump" {
		t.Errorf("updated = %+v", updated)
	}

	st, err := c.Search(ctx, "area y")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Pumps) != 1 || st.Pumps[0].ID != created.ID {
		t.Errorf("search = %+v", st.Pumps)
	}
}
