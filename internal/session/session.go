// Package session holds one user's projection of the durable store: who they
// are, which candidates they have not decided on yet, and their reconciled
// matches. Every mutating operation runs through a single-slot queue, so a
// like, the reconciliation that follows it and any concurrent reload are
// applied one after another.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/models"
	"layover-match/internal/store"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Backend is the part of the durable store a session reads and writes.
type Backend interface {
	store.ProfileStore
	store.LikeStore
	store.MatchStore
	store.MessageStore
}

type Session struct {
	backend Backend
	log     *logrus.Entry
	now     func() time.Time

	queue chan struct{}

	mu        sync.RWMutex
	state     State
	userID    string
	profile   *models.Profile
	pool      []models.Profile
	dismissed map[string]struct{}
	decisions map[string]*Decision
	matches   []MatchView

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func New(backend Backend, log *logrus.Entry) *Session {
	return &Session{
		backend:   backend,
		log:       log,
		now:       time.Now,
		queue:     make(chan struct{}, 1),
		state:     StateUnchecked,
		dismissed: make(map[string]struct{}),
		decisions: make(map[string]*Decision),
		subs:      make(map[int]chan Event),
	}
}

// acquire takes the session's queue slot or gives up when ctx is done.
func (s *Session) acquire(ctx context.Context) (func(), error) {
	select {
	case s.queue <- struct{}{}:
		return func() { <-s.queue }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := Identity{UserID: s.userID, State: s.state}
	if s.profile != nil {
		p := *s.profile
		id.Profile = &p
		id.Onboarded = p.Onboarded()
	}
	return id
}

// Candidates returns a snapshot of the candidate pool.
func (s *Session) Candidates() []models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Profile(nil), s.pool...)
}

// Matches returns a snapshot of the match store.
func (s *Session) Matches() []MatchView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.matches, func(m MatchView, _ int) MatchView { return m.clone() })
}

// PendingDecisions lists likes that are in flight or failed.
func (s *Session) PendingDecisions() []Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Decision, 0, len(s.decisions))
	for _, d := range s.decisions {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b Decision) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (s *Session) requireAuth() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.state.Authenticated() {
		return "", fmt.Errorf("session is %s: %w", s.state, apperr.ErrAuth)
	}
	return s.userID, nil
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()

	if changed {
		s.emit(Event{Kind: EventStateChanged, State: next.String()})
	}
}

// Establish resolves the session for an authenticated user: Unchecked (or
// Unauthenticated) moves to AuthenticatedNoProfile or
// AuthenticatedWithProfile depending on whether the profile exists and is
// onboarded, and the match store is loaded.
func (s *Session) Establish(ctx context.Context, userID string) (State, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return s.State(), err
	}
	defer release()

	if st := s.State(); st.Authenticated() && s.UserID() == userID {
		return st, nil
	}

	profile, err := s.backend.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		profile = nil
	case err != nil:
		return s.State(), err
	}

	next := StateAuthenticatedNoProfile
	if profile != nil && profile.Onboarded() {
		next = StateAuthenticatedWithProfile
	}

	s.mu.Lock()
	if s.userID != userID {
		s.pool = nil
		s.matches = nil
		s.dismissed = make(map[string]struct{})
		s.decisions = make(map[string]*Decision)
	}
	s.userID = userID
	s.profile = profile
	s.mu.Unlock()
	s.setState(next)

	if _, err := s.reconcileLocked(ctx); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Initial reconciliation failed")
	}
	return next, nil
}

// SaveProfile stores the owner's profile. Saving an onboarded profile
// completes onboarding.
func (s *Session) SaveProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	if !p.Onboarded() {
		return nil, apperr.Invalid("name is required")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.saveProfileLocked(ctx, p)
}

// UpdateProfile applies fn to a copy of the stored profile and saves it. The
// read, fn and the write all happen while holding the queue slot.
func (s *Session) UpdateProfile(ctx context.Context, fn func(*models.Profile)) (*models.Profile, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	var current models.Profile
	if s.profile != nil {
		current = *s.profile
	}
	s.mu.RUnlock()

	fn(&current)
	if !current.Onboarded() {
		return nil, apperr.Invalid("name is required")
	}
	return s.saveProfileLocked(ctx, current)
}

// saveProfileLocked writes p as the user's profile. Called with the queue slot held.
func (s *Session) saveProfileLocked(ctx context.Context, p models.Profile) (*models.Profile, error) {
	userID, err := s.requireAuth()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.profile != nil {
		p.CreatedAt = s.profile.CreatedAt
		if p.PhotoURL == nil {
			p.PhotoURL = s.profile.PhotoURL
		}
		if p.DeviceToken == nil {
			p.DeviceToken = s.profile.DeviceToken
		}
	}
	s.mu.RUnlock()

	p.UserID = userID
	p.Name = strings.TrimSpace(p.Name)
	p.AirportCode = strings.ToUpper(strings.TrimSpace(p.AirportCode))
	if err := s.backend.UpsertProfile(ctx, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	saved := p
	s.profile = &saved
	s.mu.Unlock()
	s.setState(StateAuthenticatedWithProfile)

	return &p, nil
}

// SignOut clears the pool, the match store and the decision queue, and moves
// the session to Unauthenticated from any state.
func (s *Session) SignOut(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	s.userID = ""
	s.profile = nil
	s.pool = nil
	s.matches = nil
	s.dismissed = make(map[string]struct{})
	s.decisions = make(map[string]*Decision)
	s.mu.Unlock()

	s.setState(StateUnauthenticated)
	s.emit(Event{Kind: EventCandidatesChanged})
	s.emit(Event{Kind: EventMatchesChanged})
	return nil
}

// Subscribe returns change notifications for this session. Notifications
// are dropped for a subscriber whose buffer is full.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, buffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) emit(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func newDecision(candidateID string, at time.Time) *Decision {
	return &Decision{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		Verdict:     Like,
		Status:      DecisionPending,
		CreatedAt:   at,
	}
}
