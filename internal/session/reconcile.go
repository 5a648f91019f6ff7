package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"layover-match/internal/apperr"
	"layover-match/internal/loaders"
	"layover-match/internal/models"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/samber/lo"
)

// Reconcile replaces the match store with the durable store's view and
// returns the matches that were not in it before.
func (s *Session) Reconcile(ctx context.Context) ([]MatchView, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.reconcileLocked(ctx)
}

type pendingMatch struct {
	match    models.Match
	profile  dataloader.Thunk[*models.Profile]
	messages dataloader.Thunk[[]models.Message]
}

// reconcileLocked is Reconcile with the queue slot already held. A failing
// store call leaves the match store untouched.
func (s *Session) reconcileLocked(ctx context.Context) ([]MatchView, error) {
	userID, err := s.requireAuth()
	if err != nil {
		return nil, err
	}
	log := s.log.WithField("user_id", userID)

	rows, err := s.backend.ListMatchesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	liked, err := s.backend.LikedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	likers, err := s.backend.LikerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutual := lo.Associate(lo.Intersect(liked, likers), func(id string) (string, struct{}) { return id, struct{}{} })

	l := loaders.New(s.backend, s.backend)
	pending := make([]pendingMatch, 0, len(rows))
	for _, m := range rows {
		if !m.Involves(userID) {
			continue
		}
		other := m.OtherParticipant(userID)
		if _, ok := mutual[other]; !ok {
			log.WithField("match_id", m.ID).Warn("Match without reciprocal likes ignored")
			continue
		}
		pending = append(pending, pendingMatch{
			match:    m,
			profile:  l.Profiles.Load(ctx, other),
			messages: l.Messages.Load(ctx, m.ID),
		})
	}

	views := make([]MatchView, 0, len(pending))
	for _, p := range pending {
		profile, err := p.profile()
		if errors.Is(err, apperr.ErrNotFound) {
			log.WithField("match_id", p.match.ID).Warn("Match participant has no profile, skipped")
			continue
		}
		if err != nil {
			return nil, err
		}
		thread, err := p.messages()
		if err != nil {
			return nil, err
		}
		thread = append([]models.Message(nil), thread...)
		slices.SortStableFunc(thread, compareMessages)

		views = append(views, MatchView{
			ID:        p.match.ID,
			User:      *profile,
			Messages:  thread,
			MatchedAt: p.match.CreatedAt,
		})
	}
	slices.SortFunc(views, func(a, b MatchView) int {
		if c := b.MatchedAt.Compare(a.MatchedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	s.mu.Lock()
	before := lo.Associate(s.matches, func(m MatchView) (string, struct{}) { return m.ID, struct{}{} })
	s.matches = views
	s.mu.Unlock()

	added := lo.Filter(views, func(m MatchView, _ int) bool {
		_, ok := before[m.ID]
		return !ok
	})
	added = lo.Map(added, func(m MatchView, _ int) MatchView { return m.clone() })

	s.emit(Event{Kind: EventMatchesChanged})
	for i := range added {
		s.emit(Event{Kind: EventNewMatch, MatchID: added[i].ID, Match: &added[i]})
	}
	return added, nil
}

// Messages reloads one thread from the durable store.
func (s *Session) Messages(ctx context.Context, matchID string) ([]models.Message, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.requireAuth(); err != nil {
		return nil, err
	}
	if !s.hasMatch(matchID) {
		return nil, errMatchNotFound(matchID)
	}

	thread, err := s.backend.ListMessages(ctx, matchID)
	if err != nil {
		return nil, err
	}
	thread = append([]models.Message(nil), thread...)
	slices.SortStableFunc(thread, compareMessages)

	s.mu.Lock()
	for i := range s.matches {
		if s.matches[i].ID == matchID {
			s.matches[i].Messages = thread
		}
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessagesChanged, MatchID: matchID})

	return append([]models.Message(nil), thread...), nil
}

// SendMessage appends a message from the user to one of their matches.
func (s *Session) SendMessage(ctx context.Context, matchID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Invalid("message is empty")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	userID, err := s.requireAuth()
	if err != nil {
		return nil, err
	}
	if !s.hasMatch(matchID) {
		return nil, errMatchNotFound(matchID)
	}

	msg, err := s.backend.InsertMessage(ctx, matchID, userID, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i := range s.matches {
		if s.matches[i].ID != matchID {
			continue
		}
		thread := s.matches[i].Messages
		if !lo.ContainsBy(thread, func(m models.Message) bool { return m.ID == msg.ID }) {
			thread = append(thread, *msg)
			slices.SortStableFunc(thread, compareMessages)
		}
		s.matches[i].Messages = thread
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessagesChanged, MatchID: matchID})

	return msg, nil
}

func (s *Session) hasMatch(matchID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.ContainsBy(s.matches, func(m MatchView) bool { return m.ID == matchID })
}

func compareMessages(a, b models.Message) int {
	switch {
	case models.MessageBefore(a, b):
		return -1
	case models.MessageBefore(b, a):
		return 1
	default:
		return 0
	}
}

func errMatchNotFound(matchID string) error {
	return fmt.Errorf("match %s: %w", matchID, apperr.ErrNotFound)
}
