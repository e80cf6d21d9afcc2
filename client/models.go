package client

import "time"

// Key lifecycle states as reported by the server.
const (
	KeyStatusAvailable = "available"
	KeyStatusSold      = "sold"
	KeyStatusActive    = "active"
	KeyStatusExpired   = "expired"
)

// User is the account profile. The client never patches individual fields;
// the whole profile is replaced after login or a dashboard fetch.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role"`
	Balance      int64     `json:"balance"`
	ReferralCode string    `json:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Registration is the historical record of a key being activated. Read-only
// from the client's perspective.
type Registration struct {
	ID        string    `json:"id"`
	KeyID     string    `json:"keyId"`
	Username  string    `json:"username"`
	Game      string    `json:"game"`
	Duration  int       `json:"duration"`
	Devices   int       `json:"devices"`
	HWID      string    `json:"hwid,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key is a license key owned by the account. Keys are created server-side;
// the client only receives and displays them.
type Key struct {
	ID           string        `json:"id"`
	KeyCode      string        `json:"keyCode"`
	Game         string        `json:"game"`
	Duration     int           `json:"duration"`
	MaxDevices   int           `json:"maxDevices"`
	Status       string        `json:"status"`
	Registration *Registration `json:"registration,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
}

// AvailableKey is a server-computed inventory aggregate, not an individual
// entity.
type AvailableKey struct {
	Game     string `json:"game"`
	Duration int    `json:"duration"`
	Price    int64  `json:"price"`
	Count    int    `json:"count"`
}

// Pagination echoes the paging window the server applied.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// LoginResult is the successful login payload.
type LoginResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// RegisterRequest carries the registration form. Email and ReferralCode are
// optional and omitted from the body when blank.
type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Email        string `json:"email,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
}

// MessageResult is the generic acknowledgement body used by register, delete,
// and settings endpoints.
type MessageResult struct {
	Message string `json:"message"`
}

// DashboardSnapshot is the combined profile and recent-registrations view.
type DashboardSnapshot struct {
	User          User           `json:"user"`
	Registrations []Registration `json:"registrations"`
}

// KeyPage is one page of the account's purchased keys.
type KeyPage struct {
	Keys       []Key      `json:"keys"`
	Pagination Pagination `json:"pagination"`
}

// GenerateResult is the outcome of purchasing a key.
type GenerateResult struct {
	Key        Key   `json:"key"`
	NewBalance int64 `json:"newBalance"`
	Success    bool  `json:"success"`
}
