package models

import "time"

// Session binds a refresh token to the client it was issued to.
// Access tokens carry the session ID as their subject.
type Session struct {
	ID           string
	UserID       string
	Fingerprint  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
