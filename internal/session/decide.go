package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"layover-match/internal/apperr"
	"layover-match/internal/models"

	"github.com/samber/lo"
)

// LoadCandidates replaces the pool with the onboarded profiles in scope,
// minus the user, anyone they already liked and anyone dismissed in this
// session. An empty scope falls back to the user's own airport and terminal.
func (s *Session) LoadCandidates(ctx context.Context, scope models.LocationScope) ([]models.Profile, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	userID, err := s.requireAuth()
	if err != nil {
		return nil, err
	}

	scope = scope.Normalize()
	if scope.IsZero() {
		s.mu.RLock()
		if s.profile != nil {
			scope = models.LocationScope{AirportCode: s.profile.AirportCode, Terminal: s.profile.Terminal}.Normalize()
		}
		s.mu.RUnlock()
	}
	if scope.AirportCode == "" {
		return nil, apperr.Invalid("airport code is required")
	}

	profiles, err := s.backend.ListProfilesByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	liked, err := s.backend.LikedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	likedSet := lo.Associate(liked, func(id string) (string, struct{}) { return id, struct{}{} })

	s.mu.Lock()
	pool := lo.Filter(profiles, func(p models.Profile, _ int) bool {
		if p.UserID == userID || !p.Onboarded() || !scope.Contains(p) {
			return false
		}
		if _, ok := likedSet[p.UserID]; ok {
			return false
		}
		if _, ok := s.dismissed[p.UserID]; ok {
			return false
		}
		if _, ok := s.decisions[p.UserID]; ok {
			return false
		}
		return true
	})
	s.pool = pool
	s.mu.Unlock()

	s.emit(Event{Kind: EventCandidatesChanged})
	return append([]models.Profile(nil), pool...), nil
}

// Decide records a verdict for a candidate in the pool. The candidate leaves
// the pool before the durable write and is not restored if it fails; a
// failed like stays in the decision queue for Retry.
func (s *Session) Decide(ctx context.Context, candidateID string, verdict Verdict) (*DecisionResult, error) {
	if verdict != Like && verdict != Dislike {
		return nil, apperr.Invalid("unknown verdict %d", int(verdict))
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

	s.mu.Lock()
	idx := slices.IndexFunc(s.pool, func(p models.Profile) bool { return p.UserID == candidateID })
	if idx < 0 {
		s.mu.Unlock()
		return nil, apperr.Invalid("candidate %s is not in the pool", candidateID)
	}
	s.pool = slices.Delete(s.pool, idx, idx+1)

	if verdict == Dislike {
		s.dismissed[candidateID] = struct{}{}
		s.mu.Unlock()
		s.emit(Event{Kind: EventCandidatesChanged, CandidateID: candidateID})
		return &DecisionResult{CandidateID: candidateID, Verdict: Dislike, Reconciled: true}, nil
	}

	d := newDecision(candidateID, s.now())
	s.decisions[candidateID] = d
	s.mu.Unlock()
	s.emit(Event{Kind: EventCandidatesChanged, CandidateID: candidateID})

	return s.commitLike(ctx, userID, d)
}

// Retry re-sends a like whose durable write failed.
func (s *Session) Retry(ctx context.Context, candidateID string) (*DecisionResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	userID, err := s.requireAuth()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	d, ok := s.decisions[candidateID]
	if !ok || d.Status != DecisionFailed {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed decision for %s: %w", candidateID, apperr.ErrNotFound)
	}
	d.Status = DecisionPending
	d.Error = ""
	s.mu.Unlock()

	return s.commitLike(ctx, userID, d)
}

// commitLike writes the like edge and reconciles. Called with the queue slot held.
func (s *Session) commitLike(ctx context.Context, userID string, d *Decision) (*DecisionResult, error) {
	log := s.log.WithField("user_id", userID).WithField("candidate_id", d.CandidateID)

	err := s.backend.InsertLike(ctx, userID, d.CandidateID)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		log.Debug("Like already stored")
	case err != nil:
		s.mu.Lock()
		d.Status = DecisionFailed
		d.Error = err.Error()
		s.mu.Unlock()
		log.WithError(err).Warn("Like was not stored")
		s.emit(Event{Kind: EventDecisionFailed, CandidateID: d.CandidateID})
		return nil, err
	}

	s.mu.Lock()
	delete(s.decisions, d.CandidateID)
	s.mu.Unlock()

	result := &DecisionResult{CandidateID: d.CandidateID, Verdict: Like}
	added, err := s.reconcileLocked(ctx)
	if err != nil {
		log.WithError(err).Warn("Reconciliation after like failed")
		return result, nil
	}
	result.Reconciled = true

	for _, m := range added {
		if m.User.UserID == d.CandidateID {
			m := m
			result.Matched = true
			result.Match = &m
			log.WithField("match_id", m.ID).Info("Like produced a match")
			break
		}
	}
	return result, nil
}
