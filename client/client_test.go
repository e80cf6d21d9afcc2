package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()

	r := chi.NewRouter()

	r.Post("/user/auth/login", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Password != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(LoginResult{
			User:  User{ID: "u1", Username: body.Username, Role: "user", Balance: 50000},
			Token: "tok-1",
		})
	})

	r.Get("/user/keys", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
			return
		}
		if req.Header.Get("X-Request-ID") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "missing request id"})
			return
		}
		page, _ := strconv.Atoi(req.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(KeyPage{
			Keys:       []Key{{ID: "k1", KeyCode: "AAAA-BBBB", Game: "X", Duration: 30, Status: KeyStatusActive}},
			Pagination: Pagination{Page: page, Limit: limit, Total: 1, TotalPages: 1},
		})
	})

	r.Delete("/user/keys/{id}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != "abc" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Key not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Key deleted"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, AllowInsecureHTTP: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, c
}

func TestLogin(t *testing.T) {
	_, c := newTestServer(t)

	result, err := c.Login(context.Background(), "alice", "right")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.Username != "alice" {
		t.Fatalf("Login() username = %q, want %q", result.User.Username, "alice")
	}
	if result.Token != "tok-1" {
		t.Fatalf("Login() token = %q, want %q", result.Token, "tok-1")
	}
}

func TestLoginRejected(t *testing.T) {
	_, c := newTestServer(t)

	_, err := c.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("Login() expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login() error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("APIError.Status = %d, want %d", apiErr.Status, http.StatusUnauthorized)
	}
	if got := Message(err, "Login failed"); got != "Invalid credentials" {
		t.Fatalf("Message() = %q, want server message", got)
	}
}

func TestKeysPaginationPassthrough(t *testing.T) {
	_, c := newTestServer(t)
	c.SetToken("tok-1")

	page, err := c.Keys(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if page.Pagination.Page != 2 {
		t.Fatalf("Pagination.Page = %d, want 2", page.Pagination.Page)
	}
	if page.Pagination.Limit != 10 {
		t.Fatalf("Pagination.Limit = %d, want 10", page.Pagination.Limit)
	}
}

func TestKeysRequiresToken(t *testing.T) {
	_, c := newTestServer(t)

	_, err := c.Keys(context.Background(), 1, 20)
	if err == nil {
		t.Fatal("Keys() expected error without token")
	}
	if got := Message(err, "Failed to load keys"); got != "Unauthorized" {
		t.Fatalf("Message() = %q, want %q", got, "Unauthorized")
	}
}

func TestDeleteKey(t *testing.T) {
	_, c := newTestServer(t)
	c.SetToken("tok-1")
	ctx := context.Background()

	if err := c.DeleteKey(ctx, "abc"); err != nil {
		t.Fatalf("DeleteKey() error = %v", err)
	}

	err := c.DeleteKey(ctx, "missing")
	if err == nil {
		t.Fatal("DeleteKey() expected error for unknown id")
	}
	if got := Message(err, "Failed to delete key"); got != "Key not found" {
		t.Fatalf("Message() = %q, want %q", got, "Key not found")
	}
}

func TestNewRejectsPlainHTTP(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://example.com"}); err == nil {
		t.Fatal("New() expected error for plain http base url")
	}
	if _, err := New(Config{BaseURL: "http://example.com", AllowInsecureHTTP: true}); err != nil {
		t.Fatalf("New() with insecure override error = %v", err)
	}
}

func TestMessageFallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "server message", err: &APIError{Status: 400, Message: "Bad input"}, want: "Bad input"},
		{name: "blank server message", err: &APIError{Status: 500}, want: "Failed to load keys"},
		{name: "transport error", err: errors.New("dial tcp: refused"), want: "Failed to load keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err, "Failed to load keys"); got != tt.want {
				t.Fatalf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
