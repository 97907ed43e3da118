// Package entities holds the JSON shapes returned by a Mastodon-compatible
// API. The types carry no behaviour; they are decoded as-is from responses
// and stream payloads.
package entities

import "time"

// Account is a user profile, local or remote.
type Account struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Acct           string    `json:"acct"` // username@domain for remote accounts
	DisplayName    string    `json:"display_name"`
	Locked         bool      `json:"locked"`
	Bot            bool      `json:"bot"`
	CreatedAt      time.Time `json:"created_at"`
	Note           string    `json:"note"`
	URL            string    `json:"url"`
	Avatar         string    `json:"avatar"`
	AvatarStatic   string    `json:"avatar_static"`
	Header         string    `json:"header"`
	HeaderStatic   string    `json:"header_static"`
	FollowersCount uint64    `json:"followers_count"`
	FollowingCount uint64    `json:"following_count"`
	StatusesCount  uint64    `json:"statuses_count"`
	Emojis         []Emoji   `json:"emojis,omitempty"`

	// Moved is set when the owner migrated to another account.
	Moved *Account `json:"moved,omitempty"`

	// Source is only present on verify_credentials.
	Source *Source `json:"source,omitempty"`
}

// Source carries the authenticated user's posting defaults.
type Source struct {
	Privacy   Visibility `json:"privacy"`
	Sensitive bool       `json:"sensitive"`
	Language  string     `json:"language,omitempty"`
	Note      string     `json:"note"`
}
