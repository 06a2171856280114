package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInactive is returned by Authenticate for a revoked or expired
	// session.
	ErrInactive = errors.New("session inactive")
	// ErrSecretMismatch is returned by Authenticate when the presented
	// refresh secret does not hash to the stored value. After a
	// rotation this is what a replayed old secret produces.
	ErrSecretMismatch = errors.New("refresh secret mismatch")
)

// Hasher digests refresh secrets for storage and verifies presented ones.
// Satisfied by password.Hasher.
type Hasher interface {
	Hash(secret string) string
	Verify(secret, encodedHash string) bool
}

// Params carries the inputs for a new session. ID may be pre-minted by
// the caller (the token codec embeds the session id, so the id must
// exist before the refresh secret does); when empty one is generated.
type Params struct {
	ID            string
	UserID        string
	DeviceInfo    string
	IPAddress     string
	RefreshSecret string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager is the authority on whether a principal is currently
// authenticated. All time-dependent checks go through the injected clock.
type Manager struct {
	store  Store
	hasher Hasher
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

// NewManager returns a Manager issuing sessions with the given lifetime.
func NewManager(store Store, hasher Hasher, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create mints a session from p and persists it.
func (m *Manager) Create(ctx context.Context, p Params) (*Session, error) {
	now := m.now()
	id := p.ID
	if id == "" {
		id = m.newID()
	}

	sess := &Session{
		ID:               id,
		UserID:           p.UserID,
		RefreshTokenHash: m.hasher.Hash(p.RefreshSecret),
		DeviceInfo:       p.DeviceInfo,
		IPAddress:        p.IPAddress,
		ExpiresAt:        now.Add(m.ttl),
		CreatedAt:        now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Authenticate fetches the session by primary key, verifies it is still
// active and that the presented refresh secret matches the stored hash.
func (m *Manager) Authenticate(ctx context.Context, sessionID, presentedSecret string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive(m.now()) {
		return nil, ErrInactive
	}
	if !m.hasher.Verify(presentedSecret, sess.RefreshTokenHash) {
		return nil, ErrSecretMismatch
	}
	return sess, nil
}

// Lookup fetches a session by id and verifies it is still active. It
// performs no secret check; access-token validation trusts the signature
// and only needs liveness.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive(m.now()) {
		return nil, ErrInactive
	}
	return sess, nil
}

// Rotate revokes old and creates its successor in one transactional
// store operation. The successor inherits device and IP provenance from
// old; p supplies the new id and refresh secret.
func (m *Manager) Rotate(ctx context.Context, old *Session, p Params) (*Session, error) {
	now := m.now()
	id := p.ID
	if id == "" {
		id = m.newID()
	}

	next := &Session{
		ID:               id,
		UserID:           old.UserID,
		RefreshTokenHash: m.hasher.Hash(p.RefreshSecret),
		DeviceInfo:       old.DeviceInfo,
		IPAddress:        old.IPAddress,
		ExpiresAt:        now.Add(m.ttl),
		CreatedAt:        now,
	}
	if err := m.store.Rotate(ctx, old.ID, now, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Revoke marks a session revoked. Idempotent: unknown or already-revoked
// sessions are a no-op, so logout never fails visibly.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	err := m.store.Revoke(ctx, sessionID, m.now())
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAllForUser revokes every active session belonging to userID.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.store.RevokeAllForUser(ctx, userID, m.now())
}
