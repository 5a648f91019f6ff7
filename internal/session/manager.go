package session

import (
	"context"
	"sync"
	"time"

	"layover-match/internal/events"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	defaultWorkers     = 8
)

type entry struct {
	sess      *Session
	expiresAt time.Time // latest token expiry seen, zero if unknown
	lastSeen  time.Time
}

// Manager keeps one session per signed-in user, so all of a user's devices
// share the same serialized queue. A new sign-in starts a fresh session;
// sessions whose tokens expired or that sat idle are evicted by Sweep.
type Manager struct {
	backend Backend
	log     *logrus.Entry
	now     func() time.Time
	idle    time.Duration
	workers int
	onEvict func(userID string)

	mu       sync.Mutex
	sessions map[string]*entry
}

type Option func(*Manager)

// WithIdleTimeout evicts sessions not used for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idle = d }
}

// WithWorkers bounds how many users Run updates at once.
func WithWorkers(n int) Option {
	return func(m *Manager) { m.workers = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// OnEvict registers fn to run after a user's session was signed out or
// evicted.
func OnEvict(fn func(userID string)) Option {
	return func(m *Manager) { m.onEvict = fn }
}

func NewManager(backend Backend, log *logrus.Entry, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		log:      log,
		now:      time.Now,
		idle:     DefaultIdleTimeout,
		workers:  defaultWorkers,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns the established session for userID, creating it on first
// use. Callers have already validated the user's token; expiresAt is that
// token's expiry, or zero when unknown.
func (m *Manager) Session(ctx context.Context, userID string, expiresAt time.Time) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	if !ok {
		e = &entry{sess: New(m.backend, m.log.WithField("user_id", userID))}
		m.sessions[userID] = e
	}
	e.lastSeen = m.now()
	if expiresAt.After(e.expiresAt) {
		e.expiresAt = expiresAt
	}
	sess := e.sess
	m.mu.Unlock()

	if _, err := sess.Establish(ctx, userID); err != nil {
		return nil, err
	}
	return sess, nil
}

// Start begins a fresh session for a new sign-in. Any session the user
// already had is signed out first, so its pool, dismissed set and decision
// queue do not carry over.
func (m *Manager) Start(ctx context.Context, userID string, expiresAt time.Time) (*Session, error) {
	if err := m.SignOut(ctx, userID); err != nil {
		m.log.WithError(err).WithField("user_id", userID).Warn("Failed to close previous session")
	}
	return m.Session(ctx, userID, expiresAt)
}

// Lookup returns the user's session if one is open.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// SignOut clears and forgets the user's session.
func (m *Manager) SignOut(ctx context.Context, userID string) error {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.close(ctx, userID, e.sess)
}

func (m *Manager) close(ctx context.Context, userID string, sess *Session) error {
	err := sess.SignOut(ctx)
	if m.onEvict != nil {
		m.onEvict(userID)
	}
	return err
}

// Sweep signs out and forgets sessions whose token has expired or that were
// idle for longer than the idle timeout. It returns the evicted user ids.
func (m *Manager) Sweep(ctx context.Context) []string {
	now := m.now()

	m.mu.Lock()
	stale := make(map[string]*Session)
	for userID, e := range m.sessions {
		expired := !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
		idle := m.idle > 0 && now.Sub(e.lastSeen) >= m.idle
		if expired || idle {
			stale[userID] = e.sess
			delete(m.sessions, userID)
		}
	}
	m.mu.Unlock()

	evicted := make([]string, 0, len(stale))
	for userID, sess := range stale {
		if err := m.close(ctx, userID, sess); err != nil {
			m.log.WithError(err).WithField("user_id", userID).Warn("Failed to close stale session")
		}
		evicted = append(evicted, userID)
	}
	if len(evicted) > 0 {
		m.log.WithField("evicted", len(evicted)).Debug("Swept stale sessions")
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// HandleEvent brings open sessions up to date with a durable-store event: a
// new match triggers reconciliation for both participants, a new message
// reloads the thread.
func (m *Manager) HandleEvent(ctx context.Context, e events.Event) {
	for _, userID := range e.UserIDs {
		m.handleFor(ctx, userID, e)
	}
}

func (m *Manager) handleFor(ctx context.Context, userID string, e events.Event) {
	sess, ok := m.Lookup(userID)
	if !ok || !sess.State().Authenticated() {
		return
	}
	log := m.log.WithField("user_id", userID).WithField("match_id", e.MatchID)

	switch e.Kind {
	case events.MatchCreated:
		added, err := sess.Reconcile(ctx)
		if err != nil {
			log.WithError(err).Warn("Reconciliation on match event failed")
			return
		}
		if len(added) > 0 {
			log.WithField("new_matches", len(added)).Debug("Session picked up new matches")
		}
	case events.MessageCreated:
		if _, err := sess.Messages(ctx, e.MatchID); err != nil {
			log.WithError(err).Debug("Thread refresh on message event failed")
		}
	}
}

// Run applies events until ch is closed or ctx is done. Each involved user
// is updated on its own goroutine, at most workers at a time, so a busy
// session does not hold up the others.
func (m *Manager) Run(ctx context.Context, ch <-chan events.Event) {
	var g errgroup.Group
	g.SetLimit(max(m.workers, 1))
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			for _, userID := range e.UserIDs {
				g.Go(func() error {
					m.handleFor(ctx, userID, e)
					return nil
				})
			}
		}
	}
}
