// Package session owns the client's authentication state: the current bearer
// token, the fetched profile, proactive logout ahead of token expiry, and the
// reaction to unauthorized responses reported by the API transport.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fxsociety/go-session-client/token"
	"github.com/fxsociety/go-session-client/users"
)

const (
	// logoutBuffer is how long before the token's hard expiry the Manager
	// logs the session out, so the UI never sits in a stale-authenticated
	// state. Distinct from token.DefaultExpiryBuffer, which guards against
	// presenting an about-to-expire token to the server.
	logoutBuffer = 30 * time.Second

	// maxTimerDelay bounds expiry timers. A token outliving the process gains
	// nothing from a timer; Initialize re-checks expiry on every restart.
	maxTimerDelay = 24 * time.Hour
)

// AfterFunc schedules fn to run after d and returns a cancel function.
// Injectable for tests.
type AfterFunc func(d time.Duration, fn func()) (cancel func())

// Manager is the sole authority for the current authentication state. All
// login/logout transitions go through it, and it keeps the persisted copy of
// the token consistent with the in-memory one in the same operation.
type Manager struct {
	store     Store
	transport Transport
	log       zerolog.Logger
	afterFunc AfterFunc

	mu          sync.Mutex
	token       string
	user        *users.User
	emailHint   string
	loading     bool
	generation  string // identifies the login that owns in-flight fetches and the armed timer
	cancelTimer func()
	unsubscribe func()
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithAfterFunc sets the timer constructor (primarily for testing)
func WithAfterFunc(afterFunc AfterFunc) Option {
	return func(m *Manager) {
		m.afterFunc = afterFunc
	}
}

// WithLogger sets the logger used for absorbed failures
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = logger
	}
}

// New initializes a Manager and subscribes it to the transport's auth-error
// signal. The session starts empty and loading until Initialize completes.
func New(store Store, transport Transport, options ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}
	if transport == nil {
		return nil, errors.New("[session.New] transport is required")
	}

	m := &Manager{
		store:     store,
		transport: transport,
		log:       zerolog.Nop(),
		loading:   true,
	}
	m.afterFunc = func(d time.Duration, fn func()) func() {
		t := time.AfterFunc(d, fn)
		return func() { t.Stop() }
	}

	for _, opt := range options {
		opt(m)
	}

	m.unsubscribe = transport.OnAuthError(m.Logout)

	return m, nil
}

// Initialize restores a persisted session. It must be called exactly once,
// before any other operation; until it returns, IsLoading reports true.
// A persisted token that is expired, or that the backend refuses to resolve a
// profile for, is cleared rather than kept: a credential the backend will not
// honor only lets the UI believe it is authenticated while every request
// fails. Restore failures are absorbed into state; only store I/O errors are
// returned.
func (m *Manager) Initialize(ctx context.Context) error {
	defer m.setLoading(false)

	persisted, err := m.store.Get(TokenKey)
	if err != nil {
		return errors.Wrap(err, "[Manager.Initialize] store.Get")
	}
	if persisted == "" {
		return nil
	}

	if token.IsExpired(persisted, token.DefaultExpiryBuffer) {
		m.log.Debug().Msg("Persisted token expired, clearing session")
		m.Logout()
		return nil
	}

	hint, err := m.store.Get(EmailHintKey)
	if err != nil {
		return errors.Wrap(err, "[Manager.Initialize] store.Get email hint")
	}

	generation := m.setToken(persisted)
	m.setEmailHint(generation, hint)

	user, err := m.transport.FetchCurrentUser(ctx, persisted)
	if err != nil {
		m.log.Warn().Err(err).Msg("Session restore failed, clearing session")
		m.Logout()
		return nil
	}

	m.applyUser(generation, user)
	return nil
}

// Login installs a freshly exchanged credential. The token is persisted and
// set in memory first, so the caller counts as authenticated before the
// profile fetch resolves. A profile fetch failure straight after a successful
// credential exchange is not treated as fatal to the token: when knownEmail
// is supplied, a placeholder profile is synthesized around it so
// profile-gated surfaces do not immediately bounce the user back to login.
func (m *Manager) Login(ctx context.Context, rawToken, knownEmail string) error {
	defer m.setLoading(false)

	if err := m.store.Set(TokenKey, rawToken); err != nil {
		return errors.Wrap(err, "[Manager.Login] store.Set token")
	}
	if knownEmail != "" {
		if err := m.store.Set(EmailHintKey, knownEmail); err != nil {
			return errors.Wrap(err, "[Manager.Login] store.Set email hint")
		}
	}

	generation := m.setToken(rawToken)
	if !m.generationCurrent(generation) {
		// Arm-time logout: the token was already inside the expiry buffer,
		// so there is nothing worth presenting to the backend.
		return nil
	}
	m.setEmailHint(generation, knownEmail)

	user, err := m.transport.FetchCurrentUser(ctx, rawToken)
	if err != nil {
		if knownEmail == "" {
			m.log.Warn().Err(err).Msg("Profile fetch failed after login")
			return nil
		}
		m.log.Warn().Err(err).Str("email", knownEmail).Msg("Profile fetch failed after login, synthesizing placeholder profile")
		m.applyUser(generation, users.Placeholder(knownEmail))
		return nil
	}

	m.applyUser(generation, user)
	return nil
}

// Logout clears the persisted and in-memory session and cancels any pending
// expiry timer. Safe to call at any time, including when no session exists;
// both the expiry timer and the transport's auth-error signal invoke it, and
// double invocation is harmless.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutLocked()
}

// Close unsubscribes the Manager from the transport's auth-error signal.
// The session itself is left untouched.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Token returns the current bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// User returns the current profile, or nil. A nil profile does not mean the
// session is unauthenticated; check IsAuthenticated instead.
func (m *Manager) User() *users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// IsAuthenticated reports whether an in-memory token is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != ""
}

// IsLoading reports whether the initial session restore is still in flight.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// EmailHint returns the identity hint persisted beside the token, or "".
// Best-effort only: it survives restarts even when the profile fetch does
// not, and is cleared on logout along with the rest of the session.
func (m *Manager) EmailHint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emailHint
}

// setToken installs a new token, advances the session generation and re-arms
// the expiry timer in the same critical section, so no window exists where a
// token has no corresponding timer.
func (m *Manager) setToken(rawToken string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	generation := uuid.New().String()
	m.token = rawToken
	m.user = nil
	m.generation = generation

	// Arming may log out on the spot if the token is already inside the
	// expiry buffer; the captured generation then no longer matches and the
	// caller's fetch result is discarded.
	m.armTimerLocked(rawToken, generation)
	return generation
}

// setEmailHint records the identity hint, unless the session that produced
// it is gone.
func (m *Manager) setEmailHint(generation, hint string) {
	if hint == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		return
	}
	m.emailHint = hint
}

func (m *Manager) generationCurrent(generation string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == generation
}

// applyUser records a fetched profile, unless the session that initiated the
// fetch is gone. A slow profile response must not resurrect a logged-out
// session or overwrite a newer login.
func (m *Manager) applyUser(generation string, user *users.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		m.log.Debug().Msg("Discarding stale profile fetch result")
		return
	}
	m.user = user
}

func (m *Manager) armTimerLocked(rawToken, generation string) {
	if m.cancelTimer != nil {
		m.cancelTimer()
		m.cancelTimer = nil
	}

	if token.IsExpired(rawToken, token.DefaultExpiryBuffer) {
		m.logoutLocked()
		return
	}

	delay := token.ExpiresIn(rawToken) - logoutBuffer
	if delay < 0 {
		delay = 0
	}
	if delay > maxTimerDelay {
		m.log.Debug().Dur("delay", delay).Msg("Refusing to arm expiry timer beyond 24h")
		return
	}

	m.cancelTimer = m.afterFunc(delay, func() {
		m.expire(generation)
	})
}

// expire is the timer callback. It logs out only if the firing timer still
// belongs to the current token; a cancelled or superseded timer is a no-op.
func (m *Manager) expire(generation string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		return
	}
	m.log.Info().Msg("Token expiring, logging out")
	m.logoutLocked()
}

func (m *Manager) logoutLocked() {
	if err := m.store.Delete(TokenKey); err != nil {
		m.log.Warn().Err(err).Msg("Failed to remove persisted token")
	}
	if err := m.store.Delete(EmailHintKey); err != nil {
		m.log.Warn().Err(err).Msg("Failed to remove persisted email hint")
	}

	m.token = ""
	m.user = nil
	m.emailHint = ""
	m.generation = uuid.New().String()
	if m.cancelTimer != nil {
		m.cancelTimer()
		m.cancelTimer = nil
	}
}

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	m.loading = loading
	m.mu.Unlock()
}
