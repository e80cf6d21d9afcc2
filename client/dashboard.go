package client

import (
	"context"
	"net/http"
)

// Dashboard fetches the combined profile and recent-registrations snapshot.
func (c *Client) Dashboard(ctx context.Context) (*DashboardSnapshot, error) {
	var snapshot DashboardSnapshot
	if err := c.do(ctx, "dashboard", http.MethodGet, "/user/dashboard", nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
