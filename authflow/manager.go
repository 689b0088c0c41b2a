package authflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrEndpointRequired = errors.New("authflow: manager requires an endpoint")
	ErrStoreRequired    = errors.New("authflow: manager requires a token store")
)

// ManagerConfig wires the collaborators and knobs required by Manager.
// Endpoint and Store are mandatory; everything else has a default.
type ManagerConfig struct {
	Endpoint Endpoint
	Store    TokenStore

	// ExpiringSoonThreshold is how long before access-token expiry the
	// status flips to StatusExpiringSoon and a refresh is triggered.
	ExpiringSoonThreshold time.Duration
	// AccessTokenSafetyBuffer is the margin ValidAccessToken keeps against
	// imminent expiry before handing out the current token.
	AccessTokenSafetyBuffer time.Duration
	// BackstopInterval is the coarse periodic re-check guarding against a
	// missed or cancelled expiry timer.
	BackstopInterval time.Duration
	// RevokeTimeout bounds the best-effort remote revoke during Logout.
	RevokeTimeout time.Duration

	// RetryMaxAttempts, RetryInitialDelay, and RetryMaxDelay parameterize
	// the backoff schedule used for remote login and refresh calls. The
	// retry predicate is always "not a permanent error".
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// PermanentCodes extends the classifier's permanent set, e.g. with
	// account-disabled or account-deleted codes.
	PermanentCodes []Code

	Logger *slog.Logger
	Now    func() time.Time
}

const (
	defaultExpiringSoonThreshold = 30 * time.Second
	defaultSafetyBuffer          = 10 * time.Second
	defaultBackstopInterval      = 10 * time.Minute
	defaultRevokeTimeout         = 5 * time.Second
	backgroundRefreshTimeout     = time.Minute
)

// Manager is the lifecycle state machine. It exclusively owns the current
// TokenSet (or its absence) and the current Status for the process lifetime;
// collaborators are pure I/O with no session-state opinion of their own.
type Manager struct {
	endpoint   Endpoint
	store      TokenStore
	classifier *Classifier
	retry      RetryOptions

	threshold     time.Duration
	safety        time.Duration
	backstop      time.Duration
	revokeTimeout time.Duration

	log *slog.Logger
	now func() time.Time

	mu          sync.Mutex
	tokens      *TokenSet
	status      Status
	failures    int
	generation  uint64
	expiryTimer *time.Timer
	retryTimer  *time.Timer

	flight refreshGroup
	feed   *statusFeed

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager builds a Manager and starts its periodic backstop. Callers own
// the Manager's lifetime and must Close it to release the backstop goroutine.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Endpoint == nil {
		return nil, ErrEndpointRequired
	}
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}

	m := &Manager{
		endpoint:   cfg.Endpoint,
		store:      cfg.Store,
		classifier: NewClassifier(cfg.PermanentCodes...),
		retry: RetryOptions{
			MaxAttempts:  cfg.RetryMaxAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
		}.withDefaults(),
		threshold:     cfg.ExpiringSoonThreshold,
		safety:        cfg.AccessTokenSafetyBuffer,
		backstop:      cfg.BackstopInterval,
		revokeTimeout: cfg.RevokeTimeout,
		log:           cfg.Logger,
		now:           cfg.Now,
		status:        StatusUnknown,
		feed:          newStatusFeed(),
		done:          make(chan struct{}),
	}
	if m.threshold <= 0 {
		m.threshold = defaultExpiringSoonThreshold
	}
	if m.safety <= 0 {
		m.safety = defaultSafetyBuffer
	}
	if m.backstop <= 0 {
		m.backstop = defaultBackstopInterval
	}
	if m.revokeTimeout <= 0 {
		m.revokeTimeout = defaultRevokeTimeout
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.wg.Add(1)
	go m.backstopLoop()

	return m, nil
}

// Close stops the backstop and all armed timers and closes every status
// subscription. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.mu.Lock()
		m.stopTimersLocked()
		m.mu.Unlock()
		m.feed.Close()
	})
}

// Status returns the current authentication status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentTokens returns a copy of the held TokenSet, if any.
func (m *Manager) CurrentTokens() (TokenSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return TokenSet{}, false
	}
	return *m.tokens, true
}

// ConsecutiveFailures returns the number of transient refresh failures since
// the last success.
func (m *Manager) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Subscribe returns a stream of future status transitions plus a cancel
// function. Distinct values arrive in transition order; consecutive
// duplicates are never published.
func (m *Manager) Subscribe() (<-chan Status, func()) {
	return m.feed.Subscribe()
}

// Initialize loads the persisted TokenSet and derives the starting status.
// A set whose refresh token is still valid yields StatusAuthenticated even
// when the access token has already expired, because a refresh can recover
// it. Initialize never refreshes on its own; see InitializeAndRefresh.
// Load failures fail closed to StatusUnauthenticated.
func (m *Manager) Initialize(ctx context.Context) error {
	tokens, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoTokens) {
			m.log.Warn("authflow: loading stored tokens failed", "err", err)
		}
		m.transition(StatusUnauthenticated)
		return nil
	}

	if !tokens.Valid() || tokens.RefreshExpired(m.now()) {
		if cerr := m.store.Clear(ctx); cerr != nil {
			m.log.Warn("authflow: clearing stale tokens failed", "err", cerr)
		}
		m.transition(StatusUnauthenticated)
		return nil
	}

	m.mu.Lock()
	m.tokens = &tokens
	m.failures = 0
	m.setStatusLocked(StatusAuthenticated)
	m.armExpiryTimerLocked(false)
	m.mu.Unlock()
	return nil
}

// InitializeAndRefresh loads the persisted TokenSet like Initialize and then
// performs one refresh when the access token is already expired or inside
// the expiring-soon window.
func (m *Manager) InitializeAndRefresh(ctx context.Context) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	due := m.tokens != nil && m.refreshDueLocked()
	m.mu.Unlock()
	if !due {
		return nil
	}
	_, err := m.refresh(ctx)
	return err
}

// Login authenticates against the remote endpoint, persists the resulting
// TokenSet, and arms expiry monitoring. The TokenSet is persisted before the
// status flips to StatusAuthenticated; a storage failure leaves the caller
// unauthenticated and surfaces the error.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	tokens, err := WithRetry(ctx, m.retryOptions(), func(ctx context.Context) (TokenSet, error) {
		return m.endpoint.Login(ctx, creds)
	})
	if err != nil {
		m.transition(StatusUnauthenticated)
		return err
	}

	if serr := m.store.Save(ctx, tokens); serr != nil {
		m.transition(StatusUnauthenticated)
		return WrapError(CodeStorageError, "persisting login tokens", serr)
	}

	m.mu.Lock()
	m.tokens = &tokens
	m.failures = 0
	m.setStatusLocked(StatusAuthenticated)
	m.armExpiryTimerLocked(true)
	m.mu.Unlock()
	return nil
}

// Logout tears the session down locally and best-effort revokes it remotely.
// Timers are cancelled and the in-memory session cleared before the revoke
// call, so no background refresh can resurrect a session racing the logout;
// a refresh already in flight finds its generation stale and discards its
// result. Remote revoke failures are logged, never returned.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	tokens := m.tokens
	m.tokens = nil
	m.failures = 0
	m.stopTimersLocked()
	m.setStatusLocked(StatusUnauthenticated)
	m.mu.Unlock()

	if tokens != nil {
		rctx, cancel := context.WithTimeout(ctx, m.revokeTimeout)
		if err := m.endpoint.Logout(rctx, tokens.SessionID, tokens.AccessToken); err != nil {
			m.log.Warn("authflow: remote revoke failed", "err", err)
		}
		cancel()
	}
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("authflow: clearing stored tokens failed", "err", err)
	}
	return nil
}

// GracefulRefresh forces one refresh of the current session now. Concurrent
// callers share a single underlying attempt. The error, if any, is returned
// to the caller in addition to any status transition it caused.
func (m *Manager) GracefulRefresh(ctx context.Context) error {
	_, err := m.refresh(ctx)
	return err
}

// ValidAccessToken returns an access token fit for an outgoing request. The
// current token is handed out as long as its expiry is beyond the safety
// buffer; otherwise one refresh is attempted. On a transient refresh failure
// the previous token is returned optimistically, since the remote API may
// still accept it; on a permanent failure, or when no session is held, an
// error is returned instead.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	tokens := m.tokens
	m.mu.Unlock()
	if tokens == nil {
		return "", NewError(CodeNotLoggedIn, "no active session")
	}
	if m.now().Add(m.safety).Before(tokens.AccessExpiresAt) {
		return tokens.AccessToken, nil
	}

	fresh, err := m.refresh(ctx)
	if err == nil {
		return fresh.AccessToken, nil
	}
	if m.classifier.IsPermanent(err) || CodeOf(err) == CodeNotLoggedIn {
		return "", err
	}
	return tokens.AccessToken, nil
}

// refresh is the single entry point to the refresh path, used by
// GracefulRefresh, the expiry timer, the deferred retry, and the backstop.
func (m *Manager) refresh(ctx context.Context) (TokenSet, error) {
	m.mu.Lock()
	held := m.tokens != nil
	m.mu.Unlock()
	if !held {
		return TokenSet{}, NewError(CodeNotLoggedIn, "no active session")
	}
	return m.flight.Do(func() (TokenSet, error) {
		return m.doRefresh(ctx)
	})
}

func (m *Manager) doRefresh(ctx context.Context) (TokenSet, error) {
	m.mu.Lock()
	if m.tokens == nil {
		m.mu.Unlock()
		return TokenSet{}, NewError(CodeNotLoggedIn, "no active session")
	}
	current := *m.tokens
	gen := m.generation
	m.setStatusLocked(StatusRefreshing)
	m.mu.Unlock()

	opts := m.retryOptions()
	opts.OnAttempt = func(attempt int, err error) {
		m.log.Debug("authflow: refresh attempt failed", "attempt", attempt, "err", err)
	}
	fresh, err := WithRetry(ctx, opts, func(ctx context.Context) (TokenSet, error) {
		return m.endpoint.Refresh(ctx, current.SessionID, current.RefreshToken)
	})
	if err != nil {
		if m.classifier.IsPermanent(err) {
			m.invalidate(ctx, gen)
		} else {
			m.refreshFailedTransiently(gen)
		}
		return TokenSet{}, err
	}

	if serr := m.store.Save(ctx, fresh); serr != nil {
		m.refreshFailedTransiently(gen)
		return TokenSet{}, WrapError(CodeStorageError, "persisting refreshed tokens", serr)
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		// A logout won the race after the save landed; make sure the
		// fresh tokens do not outlive the session.
		if cerr := m.store.Clear(ctx); cerr != nil {
			m.log.Warn("authflow: clearing tokens after raced logout failed", "err", cerr)
		}
		return TokenSet{}, NewError(CodeNotLoggedIn, "session cleared during refresh")
	}
	m.tokens = &fresh
	m.failures = 0
	m.setStatusLocked(StatusAuthenticated)
	m.armExpiryTimerLocked(true)
	m.mu.Unlock()
	return fresh, nil
}

// refreshFailedTransiently restores the pre-refresh live status, bumps the
// failure counter, and schedules exactly one deferred retry. The session is
// never cleared here.
func (m *Manager) refreshFailedTransiently(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.tokens == nil {
		return
	}
	m.failures++
	m.setStatusLocked(m.liveStatusLocked())
	m.scheduleRetryLocked()
}

// invalidate clears the session after a classified-permanent failure.
func (m *Manager) invalidate(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.tokens = nil
	m.failures = 0
	m.stopTimersLocked()
	m.setStatusLocked(StatusSessionInvalid)
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("authflow: clearing stored tokens failed", "err", err)
	}
}

func (m *Manager) retryOptions() RetryOptions {
	opts := m.retry
	opts.ShouldRetry = func(err error) bool { return !m.classifier.IsPermanent(err) }
	return opts
}

// transition applies a status change outside any other lock-held section.
func (m *Manager) transition(s Status) {
	m.mu.Lock()
	m.setStatusLocked(s)
	m.mu.Unlock()
}

// setStatusLocked publishes s only when it differs from the current status.
// Callers must hold m.mu.
func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.feed.Publish(s)
}

// liveStatusLocked derives the resting status for a held session. Callers
// must hold m.mu and have checked m.tokens != nil.
func (m *Manager) liveStatusLocked() Status {
	if m.refreshDueLocked() {
		return StatusExpiringSoon
	}
	return StatusAuthenticated
}

// refreshDueLocked reports whether the access token is expired or inside the
// expiring-soon window. Callers must hold m.mu and have checked m.tokens.
func (m *Manager) refreshDueLocked() bool {
	return !m.now().Add(m.threshold).Before(m.tokens.AccessExpiresAt)
}

// armExpiryTimerLocked schedules the one-shot refresh at access expiry minus
// the threshold, dropping any pending deferred retry since the token set it
// was armed for is gone. When the target instant has already passed and the
// tokens were just acquired (immediate), the refresh path fires right away;
// otherwise the backstop picks it up. Callers must hold m.mu.
func (m *Manager) armExpiryTimerLocked(immediate bool) {
	m.stopTimersLocked()
	if m.tokens == nil || m.closed() {
		return
	}

	delay := m.tokens.AccessExpiresAt.Add(-m.threshold).Sub(m.now())
	gen := m.generation
	if delay <= 0 {
		if immediate {
			go m.onExpiry(gen)
		}
		return
	}
	m.expiryTimer = time.AfterFunc(delay, func() { m.onExpiry(gen) })
}

// onExpiry marks the session expiring-soon and runs the refresh path. It is
// a no-op when the session was cleared or replaced since it was armed.
func (m *Manager) onExpiry(gen uint64) {
	m.mu.Lock()
	if m.generation != gen || m.tokens == nil || m.status.Terminal() {
		m.mu.Unlock()
		return
	}
	if m.status == StatusAuthenticated {
		m.setStatusLocked(StatusExpiringSoon)
	}
	m.mu.Unlock()
	m.backgroundRefresh()
}

// scheduleRetryLocked arms one deferred retry after a transient failure,
// spaced by the backoff schedule applied to the consecutive failure count.
// Callers must hold m.mu.
func (m *Manager) scheduleRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.closed() {
		return
	}

	delay := m.retry.InitialDelay
	for i := 1; i < m.failures; i++ {
		delay = min(delay*2, m.retry.MaxDelay)
	}
	gen := m.generation
	m.retryTimer = time.AfterFunc(delay+jitter(delay), func() {
		m.mu.Lock()
		stale := m.generation != gen || m.tokens == nil || m.status.Terminal()
		m.mu.Unlock()
		if stale {
			return
		}
		m.backgroundRefresh()
	})
	m.log.Debug("authflow: scheduled refresh retry", "delay", delay, "consecutive_failures", m.failures)
}

// backstopLoop periodically re-checks remaining validity, guarding against a
// missed or cancelled expiry timer.
func (m *Manager) backstopLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.backstop)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			due := m.tokens != nil && !m.status.Terminal() &&
				m.status != StatusRefreshing && m.refreshDueLocked()
			m.mu.Unlock()
			if due {
				m.backgroundRefresh()
			}
		}
	}
}

func (m *Manager) backgroundRefresh() {
	if m.closed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTimeout)
	defer cancel()
	if _, err := m.refresh(ctx); err != nil {
		m.log.Warn("authflow: background refresh failed", "err", err)
	}
}

// stopTimersLocked cancels both monitoring timers. Callers must hold m.mu.
func (m *Manager) stopTimersLocked() {
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
