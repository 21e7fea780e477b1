package models

import "time"

// Session is the persisted authentication state. Its lifecycle is governed
// by the external auth provider; this core only consumes it to gate sync.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	User         string    `json:"user"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IsMobile     bool      `json:"isMobile"`
}

// Valid reports whether the session carries a usable, unexpired token.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}
