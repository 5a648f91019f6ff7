// Package memstore is an in-process implementation of store.Store with the
// same uniqueness and reciprocity rules as the postgres store. It backs the
// "memory" store driver and the tests of the packages above the store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/events"
	"layover-match/internal/models"
	"layover-match/internal/store"

	"github.com/google/uuid"
)

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithPublisher sets where match and message events are published.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithClock overrides time.Now for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type pair struct{ from, to string }

type Store struct {
	mu sync.RWMutex

	accounts map[string]*models.Account // by id
	emails   map[string]string          // email -> id
	profiles map[string]models.Profile
	likes    map[pair]models.Like
	matches  map[string]models.Match
	byPair   map[pair]string // canonical pair -> match id
	messages map[string][]models.Message
	airports []models.Airport

	publisher events.Publisher
	now       func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[string]*models.Account),
		emails:   make(map[string]string),
		profiles: make(map[string]models.Profile),
		likes:    make(map[pair]models.Like),
		matches:  make(map[string]models.Match),
		byPair:   make(map[pair]string),
		messages: make(map[string][]models.Message),
		airports: models.DefaultAirports(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) publish(e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *Store) CreateAccount(ctx context.Context, email, passwordHash string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := s.emails[email]; ok {
		return nil, fmt.Errorf("account %s: %w", email, apperr.ErrConflict)
	}
	now := s.now()
	acc := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[acc.ID] = acc
	s.emails[email] = acc.ID

	out := *acc
	return &out, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", email, apperr.ErrNotFound)
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *Store) TouchAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	now := s.now()
	acc.LastSeen = &now
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, apperr.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if p.UserID == "" {
		return apperr.Invalid("profile has no user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.profiles[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.profiles[p.UserID] = *p
	return nil
}

func (s *Store) ListProfilesByScope(ctx context.Context, scope models.LocationScope) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Profile
	for _, p := range s.profiles {
		if scope.Contains(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) InsertLike(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return apperr.Invalid("cannot like yourself")
	}

	s.mu.Lock()
	key := pair{fromUserID, toUserID}
	if _, ok := s.likes[key]; ok {
		s.mu.Unlock()
		return fmt.Errorf("like %s->%s: %w", fromUserID, toUserID, apperr.ErrConflict)
	}
	now := s.now()
	s.likes[key] = models.Like{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		CreatedAt:  now,
	}

	var formed *models.Match
	if _, reciprocal := s.likes[pair{toUserID, fromUserID}]; reciprocal {
		m := models.NewMatch(fromUserID, toUserID)
		canonical := pair{m.User1ID, m.User2ID}
		if _, exists := s.byPair[canonical]; !exists {
			m.ID = uuid.NewString()
			m.CreatedAt = now
			s.matches[m.ID] = m
			s.byPair[canonical] = m.ID
			formed = &m
		}
	}
	s.mu.Unlock()

	if formed != nil {
		s.publish(events.NewMatchCreated(*formed))
	}
	return nil
}

func (s *Store) LikedIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for k := range s.likes {
		if k.from == userID {
			out = append(out, k.to)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) LikerIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for k := range s.likes {
		if k.to == userID {
			out = append(out, k.from)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LikeCount returns the number of stored edges from -> to; always 0 or 1.
func (s *Store) LikeCount(fromUserID, toUserID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.likes[pair{fromUserID, toUserID}]; ok {
		return 1
	}
	return 0
}

// PutMatch stores a match row as-is, bypassing the reciprocity rule. It
// exists so tests can reproduce a corrupted store.
func (s *Store) PutMatch(m models.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.matches[m.ID] = m
	s.byPair[pair{m.User1ID, m.User2ID}] = m.ID
}

func (s *Store) ListMatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Match
	for _, m := range s.matches {
		if m.Involves(userID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, apperr.ErrNotFound)
	}
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.Message(nil), s.messages[matchID]...), nil
}

func (s *Store) ListMessagesForMatches(ctx context.Context, matchIDs []string) (map[string][]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.Message, len(matchIDs))
	for _, id := range matchIDs {
		if msgs, ok := s.messages[id]; ok {
			out[id] = append([]models.Message(nil), msgs...)
		}
	}
	return out, nil
}

func (s *Store) InsertMessage(ctx context.Context, matchID, senderID, content string) (*models.Message, error) {
	s.mu.Lock()
	m, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("match %s: %w", matchID, apperr.ErrNotFound)
	}
	if !m.Involves(senderID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("sender %s in match %s: %w", senderID, matchID, apperr.ErrForbidden)
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.now(),
	}
	thread := append(s.messages[matchID], msg)
	sort.SliceStable(thread, func(i, j int) bool { return models.MessageBefore(thread[i], thread[j]) })
	s.messages[matchID] = thread
	s.mu.Unlock()

	s.publish(events.NewMessageCreated(m, msg))
	return &msg, nil
}

func (s *Store) ListAirports(ctx context.Context) ([]models.Airport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.Airport(nil), s.airports...), nil
}
