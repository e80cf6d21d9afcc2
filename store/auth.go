package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"keydesk/client"
	"keydesk/pkg/bus"
	"keydesk/pkg/session"
	"keydesk/pkg/vault"
)

// Fixed vault key names for the persisted session. The two values are always
// written and removed together.
const (
	vaultKeyToken    = "user_token"
	vaultKeyUserData = "user_data"
)

const logoutNotifyTimeout = 5 * time.Second

// AuthState is the snapshot view of the auth store. Either no session is held
// (User nil, Token empty, Authenticated false) or a complete one is; there is
// no partially-authenticated state.
type AuthState struct {
	User          *client.User
	Token         string
	Authenticated bool
	Loading       bool
	Registered    bool
	Error         string
}

// AuthStore owns the session and profile.
type AuthStore struct {
	api    *client.Client
	vault  vault.Vault
	logger *log.Logger
	events Publisher
	now    func() time.Time

	mu    sync.Mutex
	state AuthState

	notifies sync.WaitGroup
}

// AuthOptions carries the optional dependencies of an AuthStore.
type AuthOptions struct {
	Logger *log.Logger
	Events Publisher
	// Now overrides the clock used for session expiry checks, for tests.
	Now func() time.Time
}

// NewAuthStore builds the store and restores a persisted session from the
// vault when one exists and its token has not visibly expired. A torn or
// expired session is cleared rather than partially restored.
func NewAuthStore(ctx context.Context, api *client.Client, v vault.Vault, opts AuthOptions) *AuthStore {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &AuthStore{
		api:    api,
		vault:  v,
		logger: logger,
		events: opts.Events,
		now:    now,
	}
	s.restore(ctx)
	return s
}

func (s *AuthStore) restore(ctx context.Context) {
	token, err := s.vault.Get(ctx, vaultKeyToken)
	if err != nil {
		if !errors.Is(err, vault.ErrNotFound) {
			s.logger.Printf("restore session: %v", err)
		}
		return
	}

	data, err := s.vault.Get(ctx, vaultKeyUserData)
	if err != nil {
		s.logger.Printf("restore session: token without profile, clearing")
		s.clearVault(ctx)
		return
	}

	if session.Expired(token, s.now()) {
		s.logger.Printf("restore session: token expired, clearing")
		s.clearVault(ctx)
		return
	}

	var user client.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		s.logger.Printf("restore session: corrupt profile, clearing")
		s.clearVault(ctx)
		return
	}

	s.api.SetToken(token)
	s.mu.Lock()
	s.state.User = &user
	s.state.Token = token
	s.state.Authenticated = true
	s.mu.Unlock()
}

// State returns a copy of the current auth state.
func (s *AuthStore) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	if s.state.User != nil {
		user := *s.state.User
		state.User = &user
	}
	return state
}

// Login exchanges credentials for a session. On success the session and
// profile replace any prior ones and are persisted; on failure only the error
// field changes. Concurrent calls are not deduplicated; the last response to
// resolve wins.
func (s *AuthStore) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	result, err := s.api.Login(ctx, username, password)

	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = client.Message(err, "Login failed")
		s.mu.Unlock()
		return err
	}

	user := result.User
	s.state.User = &user
	s.state.Token = result.Token
	s.state.Authenticated = true
	s.state.Error = ""
	s.mu.Unlock()

	s.api.SetToken(result.Token)
	s.persist(ctx, result.Token, user)

	publish(s.logger, s.events, bus.SubjectSessionLogin, map[string]any{
		"username": user.Username,
		"at":       s.now().UTC(),
	})
	return nil
}

func (s *AuthStore) persist(ctx context.Context, token string, user client.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Printf("persist session: marshal profile: %v", err)
		return
	}
	if err := s.vault.Set(ctx, vaultKeyToken, token); err != nil {
		s.logger.Printf("persist session: %v", err)
		return
	}
	if err := s.vault.Set(ctx, vaultKeyUserData, string(data)); err != nil {
		s.logger.Printf("persist session: %v", err)
	}
}

// Register creates an account. Field checks run first and are advisory; the
// server remains the source of truth. A successful registration sets the
// Registered flag but never creates a session.
func (s *AuthStore) Register(ctx context.Context, req client.RegisterRequest) error {
	if err := validateRegistration(req); err != nil {
		s.mu.Lock()
		s.state.Error = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	_, err := s.api.Register(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = client.Message(err, "Registration failed")
		return err
	}
	s.state.Registered = true
	return nil
}

func validateRegistration(req client.RegisterRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return errors.New("Username is required")
	}
	if len(req.Username) < 3 {
		return errors.New("Username must be at least 3 characters")
	}
	if len(req.Password) < 6 {
		return errors.New("Password must be at least 6 characters")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return errors.New("Email address is invalid")
	}
	return nil
}

// Logout clears the session locally and removes both persisted values. The
// server is notified on a detached best-effort call whose failure is ignored;
// logout always succeeds from the caller's point of view.
func (s *AuthStore) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.state.Token
	registered := s.state.Registered
	s.state = AuthState{Registered: registered}
	s.mu.Unlock()

	s.api.ClearToken()

	if err := s.vault.Delete(ctx, vaultKeyToken); err != nil {
		s.logger.Printf("clear session: %v", err)
	}
	if err := s.vault.Delete(ctx, vaultKeyUserData); err != nil {
		s.logger.Printf("clear session: %v", err)
	}

	if token != "" {
		s.notifies.Add(1)
		go func() {
			defer s.notifies.Done()
			notifyCtx, cancel := context.WithTimeout(context.Background(), logoutNotifyTimeout)
			defer cancel()
			if err := s.api.Logout(notifyCtx, token); err != nil {
				s.logger.Printf("logout notify: %v", err)
			}
		}()
	}

	publish(s.logger, s.events, bus.SubjectSessionLogout, map[string]any{
		"at": s.now().UTC(),
	})
}

// Drain blocks until detached logout notifications have finished. Short-lived
// processes call it before exiting so the best-effort server call gets a
// chance to go out.
func (s *AuthStore) Drain() {
	s.notifies.Wait()
}

func (s *AuthStore) clearVault(ctx context.Context) {
	if err := s.vault.Delete(ctx, vaultKeyToken); err != nil {
		s.logger.Printf("clear session: %v", err)
	}
	if err := s.vault.Delete(ctx, vaultKeyUserData); err != nil {
		s.logger.Printf("clear session: %v", err)
	}
}

// ChangePassword rotates the account password. The advisory length check
// mirrors registration; match confirmation is the caller's concern.
func (s *AuthStore) ChangePassword(ctx context.Context, currentPassword, newPassword string) (string, error) {
	if len(newPassword) < 6 {
		err := errors.New("Password must be at least 6 characters")
		s.mu.Lock()
		s.state.Error = err.Error()
		s.mu.Unlock()
		return "", err
	}

	result, err := s.api.ChangePassword(ctx, currentPassword, newPassword)
	if err != nil {
		s.mu.Lock()
		s.state.Error = client.Message(err, "Failed to update")
		s.mu.Unlock()
		return "", err
	}

	message := result.Message
	if message == "" {
		message = "Password updated"
	}
	return message, nil
}

// ClearError resets the transient error field. Calling it repeatedly is
// equivalent to calling it once.
func (s *AuthStore) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
}

// ClearRegistered resets the registration-complete flag.
func (s *AuthStore) ClearRegistered() {
	s.mu.Lock()
	s.state.Registered = false
	s.mu.Unlock()
}
