package store

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"

	"keydesk/client"
)

// DashboardState is the snapshot view of the dashboard store.
type DashboardState struct {
	User          *client.User
	Registrations []client.Registration
	Loading       bool
	Error         string
}

// DashboardStore caches the combined profile and recent-registrations
// snapshot. Every successful fetch replaces the snapshot wholesale.
type DashboardStore struct {
	api    *client.Client
	logger *log.Logger
	guard  fetchGuard

	mu    sync.Mutex
	state DashboardState
}

// NewDashboardStore builds the store. A nil logger silences it.
func NewDashboardStore(api *client.Client, logger *log.Logger) *DashboardStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &DashboardStore{api: api, logger: logger}
}

// State returns a copy of the current dashboard state.
func (s *DashboardStore) State() DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	if s.state.User != nil {
		user := *s.state.User
		state.User = &user
	}
	state.Registrations = slices.Clone(s.state.Registrations)
	return state
}

// Fetch loads the dashboard snapshot and overwrites the cached one. When
// fetches overlap, only the most recently requested one is applied.
func (s *DashboardStore) Fetch(ctx context.Context) error {
	ticket := s.guard.begin()

	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	snapshot, err := s.api.Dashboard(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.guard.current(ticket) {
		// A newer fetch owns the store now; this response is stale.
		return err
	}

	s.state.Loading = false
	if err != nil {
		s.state.Error = client.Message(err, "Failed to load dashboard")
		return err
	}

	user := snapshot.User
	s.state.User = &user
	s.state.Registrations = snapshot.Registrations
	return nil
}

// Clear drops the cached snapshot. Used on logout so the next session's first
// render does not show the previous user's data.
func (s *DashboardStore) Clear() {
	s.mu.Lock()
	s.state.User = nil
	s.state.Registrations = nil
	s.mu.Unlock()
}
