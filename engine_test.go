package guardian

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lockshift/guardian/internal/audit"
	"github.com/lockshift/guardian/quota"
)

type testEnv struct {
	engine    *Engine
	clock     *testClock
	users     *memUserStore
	otps      *memOtpStore
	sessions  *memSessionStore
	deliverer *captureDeliverer
	sink      *audit.ChannelSink
	redis     *miniredis.Miniredis
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := newTestClock()

	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Salt = "deployment-salt-0123456789"
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		clock:     clock,
		users:     newMemUserStore(),
		otps:      newMemOtpStore(),
		sessions:  newMemSessionStore(),
		deliverer: newCaptureDeliverer(),
		sink:      audit.NewChannelSink(256),
		redis:     mr,
	}

	freePlan := &quota.Plan{
		ID:          "plan-free",
		Name:        "Free",
		QuotaLimits: map[string]int64{"api_calls": 5},
		Services:    []string{"api", "exports"},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithStores(Stores{
			Users:         env.users,
			Otps:          env.otps,
			Providers:     newMemProviderStore(),
			Sessions:      env.sessions,
			Quotas:        newMemQuotaStore(),
			Plans:         newMemPlanStore(freePlan),
			UserPlans:     newMemUserPlanStore(),
			ServiceAccess: newMemAccessStore(),
		}).
		WithAuditSink(env.sink).
		WithOTPDeliverer(env.deliverer).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// registerAndVerify walks the happy registration path and returns the
// verified user.
func (env *testEnv) registerAndVerify(t *testing.T, email, pass string) *User {
	t.Helper()
	ctx := context.Background()

	user, err := env.engine.RegisterWithEmail(ctx, email, pass)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	code := env.deliverer.lastCode(email)
	if code == "" {
		t.Fatal("no registration code delivered")
	}
	if err := env.engine.VerifyRegistration(ctx, email, code); err != nil {
		t.Fatalf("verify registration: %v", err)
	}
	return user
}

func TestRegisterVerifyLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.IsVerified {
		t.Fatal("new account must start unverified")
	}

	// Unverified accounts cannot log in even with the right password.
	if _, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "correct horse battery", "cli", "10.0.0.1"); !errors.Is(err, ErrAccountNotAuthenticable) {
		t.Fatalf("unverified login: got %v, want ErrAccountNotAuthenticable", err)
	}

	code := env.deliverer.lastCode("ada@example.com")
	if len(code) != 6 {
		t.Fatalf("delivered code %q, want 6 digits", code)
	}

	wrongCode := "000000"
	if code == wrongCode {
		wrongCode = "000001"
	}
	if err := env.engine.VerifyRegistration(ctx, "ada@example.com", wrongCode); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong code: got %v, want ErrInvalidCredentials", err)
	}
	if err := env.engine.VerifyRegistration(ctx, "ada@example.com", code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// A redeemed code never redeems twice.
	if err := env.engine.VerifyRegistration(ctx, "ada@example.com", code); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("spent code: got %v, want ErrInvalidCredentials", err)
	}

	res, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "correct horse battery", "cli", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("incomplete login result: %+v", res)
	}

	auth, err := env.engine.Validate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if auth.UserID != user.ID || auth.SessionID != res.SessionID {
		t.Fatalf("validate result %+v does not match login %+v", auth, res)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAndVerify(t, "ada@example.com", "right password")

	if _, err := env.engine.LoginWithPassword(ctx, "nobody@example.com", "whatever", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "wrong password", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw one"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw two"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate register: got %v, want ErrUserExists", err)
	}
}

func TestVerifyRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Budget is 3 attempts per window; exhaust it with wrong codes.
	for i := 0; i < 3; i++ {
		if err := env.engine.VerifyRegistration(ctx, "ada@example.com", "999999"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	err := env.engine.VerifyRegistration(ctx, "ada@example.com", env.deliverer.lastCode("ada@example.com"))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("error %v does not carry retry-after", err)
	}
	if limited.RetryAfter <= 0 || limited.RetryAfter > 15*time.Minute {
		t.Fatalf("retry-after %v out of range", limited.RetryAfter)
	}

	// The window elapsing restores the budget.
	env.redis.FastForward(15 * time.Minute)
	if err := env.engine.VerifyRegistration(ctx, "ada@example.com", env.deliverer.lastCode("ada@example.com")); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestPhoneRegistrationAndOTPLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.engine.RegisterWithPhone(ctx, "+15550100")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash != "" {
		t.Fatal("phone account must not carry a password hash")
	}

	code := env.deliverer.lastCode("+15550100")
	if err := env.engine.VerifyRegistration(ctx, "+15550100", code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Verified accounts get login-purpose codes from the resend path.
	if err := env.engine.ResendPhoneOTP(ctx, user.ID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	loginCode := env.deliverer.lastCode("+15550100")

	res, err := env.engine.LoginWithOTP(ctx, "+15550100", loginCode, "mobile", "10.1.1.1")
	if err != nil {
		t.Fatalf("otp login: %v", err)
	}
	if res.UserID != user.ID {
		t.Fatalf("login user %s, want %s", res.UserID, user.ID)
	}

	// The login code burned on redemption.
	if _, err := env.engine.LoginWithOTP(ctx, "+15550100", loginCode, "mobile", "10.1.1.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("replayed code: got %v, want ErrInvalidCredentials", err)
	}
}

func TestNewestCodeWins(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	first := env.deliverer.lastCode("ada@example.com")

	env.clock.Advance(time.Minute)
	if err := env.engine.ResendEmailOTP(ctx, user.ID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := env.deliverer.lastCode("ada@example.com")

	if first != second {
		if err := env.engine.VerifyRegistration(ctx, "ada@example.com", first); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("stale code: got %v, want ErrInvalidCredentials", err)
		}
	}
	if err := env.engine.VerifyRegistration(ctx, "ada@example.com", second); err != nil {
		t.Fatalf("newest code: %v", err)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := env.deliverer.lastCode("ada@example.com")

	// Even the correct code fails once its lifetime has elapsed, with the
	// same error as a wrong one.
	env.clock.Advance(env.engine.config.OTP.TTL + time.Minute)
	if err := env.engine.VerifyRegistration(ctx, "ada@example.com", code); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expired code: got %v, want ErrInvalidCredentials", err)
	}
}

func TestResendRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := env.engine.ResendEmailOTP(ctx, user.ID); err != nil {
			t.Fatalf("resend %d: %v", i+1, err)
		}
	}
	if err := env.engine.ResendEmailOTP(ctx, user.ID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("fourth resend: got %v, want ErrRateLimited", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAndVerify(t, "ada@example.com", "pw")

	res, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.Logout(ctx, res.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(ctx, res.SessionID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := env.engine.Logout(ctx, "no-such-session"); err != nil {
		t.Fatalf("unknown session logout: %v", err)
	}

	// Revocation kills outstanding access tokens at once.
	if _, err := env.engine.Validate(ctx, res.AccessToken); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("validate after logout: got %v, want ErrSessionInactive", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com", "pw")

	first, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "laptop", "")
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}
	second, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "phone", "")
	if err != nil {
		t.Fatalf("login 2: %v", err)
	}

	if err := env.engine.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, token := range []string{first.AccessToken, second.AccessToken} {
		if _, err := env.engine.Validate(ctx, token); !errors.Is(err, ErrSessionInactive) {
			t.Fatalf("validate after logout all: got %v, want ErrSessionInactive", err)
		}
	}
}

func TestValidateRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAndVerify(t, "ada@example.com", "pw")

	res, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Validate(ctx, res.RefreshToken); !errors.Is(err, ErrTokenWrongType) {
		t.Fatalf("got %v, want ErrTokenWrongType", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAndVerify(t, "ada@example.com", "pw")

	res, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	if _, err := env.engine.Validate(ctx, res.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestLinkProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerAndVerify(t, "ada@example.com", "pw")

	provider, err := env.engine.LinkProvider(ctx, user.ID, ProviderPhone, "+15550123")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if provider.UserID != user.ID || provider.ProviderType != ProviderPhone {
		t.Fatalf("unexpected provider %+v", provider)
	}
	if env.deliverer.lastCode("+15550123") == "" {
		t.Fatal("no verification code delivered to the new target")
	}

	// The same target cannot be claimed twice, by anyone.
	if _, err := env.engine.LinkProvider(ctx, user.ID, ProviderPhone, "+15550123"); !errors.Is(err, ErrProviderExists) {
		t.Fatalf("duplicate link: got %v, want ErrProviderExists", err)
	}
	if _, err := env.engine.LinkProvider(ctx, user.ID, ProviderEmail, "ada@example.com"); !errors.Is(err, ErrProviderExists) {
		t.Fatalf("own target relink: got %v, want ErrProviderExists", err)
	}
}

func TestLoginFailureAuditTrail(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.RegisterWithEmail(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "cli", "10.0.0.9"); !errors.Is(err, ErrAccountNotAuthenticable) {
		t.Fatalf("got %v, want ErrAccountNotAuthenticable", err)
	}

	env.engine.Close()

	var found bool
	for {
		select {
		case ev := <-env.sink.Events():
			if ev.Kind == audit.KindBehavior && ev.Action == "login_failed" && ev.Metadata["reason"] == "account_status" {
				found = true
			}
			continue
		default:
		}
		break
	}
	if !found {
		t.Fatal("no login_failed audit record for the unauthenticable account")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAndVerify(t, "ada@example.com", "pw")

	if _, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "pw", "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.LoginWithPassword(ctx, "ada@example.com", "wrong", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap["login_success"] != 1 {
		t.Fatalf("login_success = %d, want 1", snap["login_success"])
	}
	if snap["login_failure"] != 1 {
		t.Fatalf("login_failure = %d, want 1", snap["login_failure"])
	}
	if snap["session_created"] != 1 {
		t.Fatalf("session_created = %d, want 1", snap["session_created"])
	}
}
