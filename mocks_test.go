package guardian

import (
	"context"
	"sync"
	"time"

	"github.com/lockshift/guardian/quota"
	"github.com/lockshift/guardian/session"
)

// testClock is a settable time source shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*User{}}
}

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if (u.Email != "" && existing.Email == u.Email) || (u.Phone != "" && existing.Phone == u.Phone) {
			return ErrUserExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && email != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) GetByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone && phone != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) MarkVerified(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsVerified = true
	u.UpdatedAt = at
	return nil
}

func (s *memUserStore) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	return nil
}

type memOtpStore struct {
	mu   sync.Mutex
	otps map[string]*OtpCode
}

func newMemOtpStore() *memOtpStore {
	return &memOtpStore{otps: map[string]*OtpCode{}}
}

func (s *memOtpStore) Create(_ context.Context, o *OtpCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.otps[o.ID] = &cp
	return nil
}

func (s *memOtpStore) FindValid(_ context.Context, target, purpose string, now time.Time) (*OtpCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *OtpCode
	for _, o := range s.otps {
		if o.Target != target || o.Purpose != purpose || !o.CanBeUsed(now) {
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			newest = o
		}
	}
	if newest == nil {
		return nil, ErrOtpNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *memOtpStore) MarkUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok || o.UsedAt != nil {
		return ErrOtpNotFound
	}
	t := at
	o.UsedAt = &t
	return nil
}

func (s *memOtpStore) InvalidateAll(_ context.Context, target, purpose string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.otps {
		if o.Target == target && o.Purpose == purpose && o.UsedAt == nil {
			t := at
			o.UsedAt = &t
		}
	}
	return nil
}

type memProviderStore struct {
	mu        sync.Mutex
	providers map[string]*AuthProvider
}

func newMemProviderStore() *memProviderStore {
	return &memProviderStore{providers: map[string]*AuthProvider{}}
}

func (s *memProviderStore) Create(_ context.Context, p *AuthProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.providers {
		if existing.Target == p.Target {
			return ErrProviderExists
		}
	}
	cp := *p
	s.providers[p.ID] = &cp
	return nil
}

func (s *memProviderStore) FindByTarget(_ context.Context, target string) (*AuthProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if p.Target == target {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProviderNotFound
}

func (s *memProviderStore) FindByUser(_ context.Context, userID string) ([]*AuthProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*AuthProvider
	for _, p := range s.providers {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*session.Session{}}
}

func (s *memSessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessionStore) FindActiveByUser(_ context.Context, userID string, now time.Time) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive(now) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memSessionStore) Rotate(_ context.Context, oldID string, revokedAt time.Time, next *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sessions[oldID]
	if !ok {
		return session.ErrNotFound
	}
	if old.RevokedAt != nil {
		return session.ErrInactive
	}
	t := revokedAt
	old.RevokedAt = &t
	cp := *next
	s.sessions[next.ID] = &cp
	return nil
}

func (s *memSessionStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	t := at
	sess.RevokedAt = &t
	return nil
}

func (s *memSessionStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			t := at
			sess.RevokedAt = &t
		}
	}
	return nil
}

type memQuotaStore struct {
	mu     sync.Mutex
	quotas map[string]*quota.Quota
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{quotas: map[string]*quota.Quota{}}
}

func (s *memQuotaStore) Find(_ context.Context, userID, service, quotaType string) (*quota.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quotas {
		if q.UserID == userID && q.Service == service && q.QuotaType == quotaType {
			cp := *q
			return &cp, nil
		}
	}
	return nil, quota.ErrNotFound
}

func (s *memQuotaStore) Create(_ context.Context, q *quota.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quotas {
		if existing.UserID == q.UserID && existing.Service == q.Service && existing.QuotaType == q.QuotaType {
			return quota.ErrExists
		}
	}
	cp := *q
	s.quotas[q.ID] = &cp
	return nil
}

func (s *memQuotaStore) ResetIfDue(_ context.Context, id string, now, next time.Time) (*quota.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[id]
	if !ok {
		return nil, quota.ErrNotFound
	}
	if !q.ResetAt.After(now) {
		q.CurrentUsage = 0
		q.ResetAt = next
	}
	cp := *q
	return &cp, nil
}

func (s *memQuotaStore) ConsumeUsage(_ context.Context, id string, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[id]
	if !ok {
		return false, quota.ErrNotFound
	}
	if q.Limit != quota.Unlimited && q.CurrentUsage+amount > q.Limit {
		return false, nil
	}
	q.CurrentUsage += amount
	return true, nil
}

type memPlanStore struct {
	mu    sync.Mutex
	plans map[string]*quota.Plan
}

func newMemPlanStore(plans ...*quota.Plan) *memPlanStore {
	s := &memPlanStore{plans: map[string]*quota.Plan{}}
	for _, p := range plans {
		s.plans[p.ID] = p
	}
	return s
}

func (s *memPlanStore) Get(_ context.Context, id string) (*quota.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return p, nil
}

func (s *memPlanStore) GetByName(_ context.Context, name string) (*quota.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, ErrPlanNotFound
}

type memUserPlanStore struct {
	mu    sync.Mutex
	plans []*quota.UserPlan
}

func newMemUserPlanStore() *memUserPlanStore {
	return &memUserPlanStore{}
}

func (s *memUserPlanStore) Create(_ context.Context, up *quota.UserPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *up
	s.plans = append(s.plans, &cp)
	return nil
}

func (s *memUserPlanStore) FindActiveByUser(_ context.Context, userID string, now time.Time) (*quota.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *quota.UserPlan
	for _, up := range s.plans {
		if up.UserID != userID || !up.IsActive(now) {
			continue
		}
		if newest == nil || up.StartedAt.After(newest.StartedAt) {
			newest = up
		}
	}
	if newest == nil {
		return nil, quota.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

type memAccessStore struct {
	mu     sync.Mutex
	grants []*quota.ServiceAccess
}

func newMemAccessStore() *memAccessStore {
	return &memAccessStore{}
}

func (s *memAccessStore) Create(_ context.Context, sa *quota.ServiceAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sa
	s.grants = append(s.grants, &cp)
	return nil
}

func (s *memAccessStore) Find(_ context.Context, userID, service string) (*quota.ServiceAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sa := range s.grants {
		if sa.UserID == userID && sa.Service == service {
			cp := *sa
			return &cp, nil
		}
	}
	return nil, quota.ErrNotFound
}

// captureDeliverer records every dispatched code so tests can redeem it.
type captureDeliverer struct {
	mu    sync.Mutex
	codes map[string]string
	fail  error
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{codes: map[string]string{}}
}

func (d *captureDeliverer) Deliver(_ context.Context, target, _, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.codes[target] = code
	return nil
}

func (d *captureDeliverer) lastCode(target string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[target]
}
