package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Login exchanges credentials for a session token and profile.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errors.New("client: username and password are required")
	}

	body := map[string]string{"username": username, "password": password}
	var result LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/user/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register creates a new account. Registration does not create a session; a
// successful call must be followed by a login.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*MessageResult, error) {
	var result MessageResult
	if err := c.do(ctx, "register", http.MethodPost, "/user/auth/register", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout notifies the server that the session identified by token is ending.
// Callers treat this as advisory; local logout proceeds regardless of the
// outcome, so the token is passed explicitly rather than read from the
// client, which has usually dropped it already.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doToken(ctx, "logout", http.MethodPost, "/user/auth/logout", nil, nil, token)
}

// ChangePassword rotates the account password.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) (*MessageResult, error) {
	body := map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}
	var result MessageResult
	if err := c.do(ctx, "change_password", http.MethodPut, "/user/auth/settings", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
