package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Keys fetches one page of the account's purchased keys. Page and limit are
// passed through to the server unmodified.
func (c *Client) Keys(ctx context.Context, page, limit int) (*KeyPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	path := fmt.Sprintf("/user/keys?page=%d&limit=%d", page, limit)
	var result KeyPage
	if err := c.do(ctx, "list_keys", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AvailableKeys fetches the sellable inventory grouped by game and duration.
func (c *Client) AvailableKeys(ctx context.Context) ([]AvailableKey, error) {
	var result struct {
		AvailableKeys []AvailableKey `json:"availableKeys"`
	}
	if err := c.do(ctx, "list_available", http.MethodGet, "/user/keys/available", nil, &result); err != nil {
		return nil, err
	}
	return result.AvailableKeys, nil
}

// GenerateKey purchases one key for the given game and duration. Balance and
// inventory are adjusted server-side only; callers re-fetch lists afterwards.
func (c *Client) GenerateKey(ctx context.Context, game string, duration int) (*GenerateResult, error) {
	if game == "" {
		return nil, errors.New("client: game is required")
	}
	if duration <= 0 {
		return nil, errors.New("client: duration must be positive")
	}

	body := map[string]any{"game": game, "duration": duration}
	var result GenerateResult
	if err := c.do(ctx, "generate_key", http.MethodPost, "/user/keys/generate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteKey removes a key by id.
func (c *Client) DeleteKey(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("client: key id is required")
	}
	return c.do(ctx, "delete_key", http.MethodDelete, "/user/keys/"+url.PathEscape(id), nil, nil)
}
