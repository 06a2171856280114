package session

import "time"

// Session is a live authentication grant. The raw refresh secret is never
// stored; only its hash.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	DeviceInfo       string
	IPAddress        string
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// IsRevoked reports whether the session was explicitly revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpired reports whether the session lifetime has elapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsActive reports whether the session is usable at now: not revoked and
// not expired.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
