package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"keydesk/client"
)

type dashboardFixture struct {
	store *DashboardStore

	mu       sync.Mutex
	snapshot client.DashboardSnapshot
	fail     string
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()

	f := &dashboardFixture{
		snapshot: client.DashboardSnapshot{
			User: client.User{ID: "u1", Username: "alice", Balance: 75000},
			Registrations: []client.Registration{
				{ID: "r1", KeyID: "abc", Username: "alice", Game: "X", Duration: 30, Devices: 1},
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		fail := f.fail
		snapshot := f.snapshot
		f.mu.Unlock()

		if fail != "" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": fail})
			return
		}
		_ = json.NewEncoder(w).Encode(snapshot)
	}))
	t.Cleanup(srv.Close)

	api, err := client.New(client.Config{BaseURL: srv.URL, AllowInsecureHTTP: true})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	f.store = NewDashboardStore(api, nil)
	return f
}

func TestDashboardFetchReplacesWholesale(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	if err := f.store.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	first := f.store.State()
	if first.User == nil || first.User.Username != "alice" {
		t.Fatalf("state.User = %+v, want alice", first.User)
	}
	if len(first.Registrations) != 1 {
		t.Fatalf("Registrations = %+v, want 1 entry", first.Registrations)
	}

	f.mu.Lock()
	f.snapshot = client.DashboardSnapshot{
		User:          client.User{ID: "u1", Username: "alice", Balance: 50000},
		Registrations: nil,
	}
	f.mu.Unlock()

	if err := f.store.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	second := f.store.State()
	if second.User.Balance != 50000 {
		t.Fatalf("state.User.Balance = %d, want refreshed value", second.User.Balance)
	}
	if len(second.Registrations) != 0 {
		t.Fatal("stale registrations survived a wholesale replace")
	}
}

func TestDashboardFetchError(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	f.mu.Lock()
	f.fail = "boom"
	f.mu.Unlock()

	if err := f.store.Fetch(ctx); err == nil {
		t.Fatal("Fetch() expected error")
	}
	if got := f.store.State().Error; got != "boom" {
		t.Fatalf("state.Error = %q, want server message", got)
	}

	f.mu.Lock()
	f.fail = ""
	f.mu.Unlock()

	if err := f.store.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := f.store.State().Error; got != "" {
		t.Fatalf("state.Error = %q, want cleared on refetch", got)
	}
}

func TestDashboardClear(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()

	if err := f.store.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	f.store.Clear()

	state := f.store.State()
	if state.User != nil {
		t.Fatal("Clear() left the profile behind")
	}
	if len(state.Registrations) != 0 {
		t.Fatal("Clear() left registrations behind")
	}
}
