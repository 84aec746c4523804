package entity

import "time"

// LinkedMailAccount is a user's connected mailbox. The poller reads it and
// writes back rotated tokens; everything else about credentials lives elsewhere.
type LinkedMailAccount struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Provider     string    `json:"provider"`
	RefreshToken string    `json:"-"`
	AccessToken  string    `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRefreshToken reports whether the account can be polled at all.
func (a LinkedMailAccount) HasRefreshToken() bool {
	return a.RefreshToken != ""
}
