package store

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"keydesk/client"
	"keydesk/pkg/bus"
)

// KeysState is the snapshot view of the keys store. Generate has its own
// loading flag so a purchase can show a dedicated busy state independent of
// list refreshes.
type KeysState struct {
	Mine            []client.Key
	Available       []client.AvailableKey
	Pagination      *client.Pagination
	Loading         bool
	GenerateLoading bool
	Error           string
	LastGenerated   *client.GenerateResult
}

// KeysStore caches the account's purchased keys and the sellable inventory.
type KeysStore struct {
	api    *client.Client
	logger *log.Logger
	events Publisher

	mineGuard      fetchGuard
	availableGuard fetchGuard

	mu    sync.Mutex
	state KeysState
}

// KeysOptions carries the optional dependencies of a KeysStore.
type KeysOptions struct {
	Logger *log.Logger
	Events Publisher
}

// NewKeysStore builds the store.
func NewKeysStore(api *client.Client, opts KeysOptions) *KeysStore {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &KeysStore{api: api, logger: logger, events: opts.Events}
}

// State returns a copy of the current keys state. Slices are cloned so a
// later transition cannot mutate a snapshot the caller is still reading.
func (s *KeysStore) State() KeysState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	state.Mine = slices.Clone(s.state.Mine)
	state.Available = slices.Clone(s.state.Available)
	if s.state.Pagination != nil {
		p := *s.state.Pagination
		state.Pagination = &p
	}
	if s.state.LastGenerated != nil {
		g := *s.state.LastGenerated
		state.LastGenerated = &g
	}
	return state
}

// FetchMine loads one page of purchased keys, replacing the cached page and
// its pagination metadata. Other pages are never cached. When fetches
// overlap, only the most recently requested one is applied.
func (s *KeysStore) FetchMine(ctx context.Context, page, limit int) error {
	ticket := s.mineGuard.begin()

	s.mu.Lock()
	s.state.Loading = true
	s.mu.Unlock()

	result, err := s.api.Keys(ctx, page, limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mineGuard.current(ticket) {
		return err
	}

	s.state.Loading = false
	if err != nil {
		s.state.Error = client.Message(err, "Failed to load keys")
		return err
	}

	s.state.Mine = result.Keys
	pagination := result.Pagination
	s.state.Pagination = &pagination
	return nil
}

// FetchAvailable loads the sellable inventory, replacing it wholesale.
func (s *KeysStore) FetchAvailable(ctx context.Context) error {
	ticket := s.availableGuard.begin()

	s.mu.Lock()
	s.state.Loading = true
	s.mu.Unlock()

	available, err := s.api.AvailableKeys(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableGuard.current(ticket) {
		return err
	}

	s.state.Loading = false
	if err != nil {
		s.state.Error = client.Message(err, "Failed to load available keys")
		return err
	}

	s.state.Available = available
	return nil
}

// Generate purchases one key. On success only LastGenerated changes; the
// cached lists and balance are adjusted server-side, so callers re-fetch
// "mine" and "available" afterwards.
func (s *KeysStore) Generate(ctx context.Context, game string, duration int) error {
	s.mu.Lock()
	s.state.GenerateLoading = true
	s.mu.Unlock()

	result, err := s.api.GenerateKey(ctx, game, duration)

	s.mu.Lock()
	s.state.GenerateLoading = false
	if err != nil {
		s.state.Error = client.Message(err, "Failed to generate key")
		s.mu.Unlock()
		return err
	}
	s.state.LastGenerated = result
	s.mu.Unlock()

	publish(s.logger, s.events, bus.SubjectKeyGenerated, map[string]any{
		"game":     result.Key.Game,
		"duration": result.Key.Duration,
		"at":       time.Now().UTC(),
	})
	return nil
}

// Delete removes the key with the given id. The local list changes only
// after the server confirms; there is no optimistic removal, and a failed
// delete leaves the list untouched.
func (s *KeysStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.state.Loading = true
	s.mu.Unlock()

	err := s.api.DeleteKey(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Loading = false
	if err != nil {
		s.state.Error = client.Message(err, "Failed to delete key")
		return err
	}

	kept := s.state.Mine[:0:0]
	for _, key := range s.state.Mine {
		if key.ID != id {
			kept = append(kept, key)
		}
	}
	s.state.Mine = kept
	return nil
}

// ClearError resets the transient error field. Calling it repeatedly is
// equivalent to calling it once.
func (s *KeysStore) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
}

// ClearLastGenerated drops the last generated key from view.
func (s *KeysStore) ClearLastGenerated() {
	s.mu.Lock()
	s.state.LastGenerated = nil
	s.mu.Unlock()
}
