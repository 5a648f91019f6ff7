package session

import (
	"time"

	"layover-match/internal/models"
)

type State int

const (
	StateUnchecked State = iota
	StateUnauthenticated
	StateAuthenticatedNoProfile
	StateAuthenticatedWithProfile
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticatedNoProfile:
		return "authenticated_no_profile"
	case StateAuthenticatedWithProfile:
		return "authenticated_with_profile"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) Authenticated() bool {
	return s == StateAuthenticatedNoProfile || s == StateAuthenticatedWithProfile
}

type Verdict int

const (
	Like Verdict = iota + 1
	Dislike
)

func (v Verdict) String() string {
	switch v {
	case Like:
		return "like"
	case Dislike:
		return "dislike"
	default:
		return "unknown"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type DecisionStatus string

const (
	DecisionPending DecisionStatus = "pending"
	DecisionFailed  DecisionStatus = "failed"
)

// Decision is a like that has been applied to the local pool but not yet
// confirmed by the durable store.
type Decision struct {
	ID          string         `json:"id"`
	CandidateID string         `json:"candidate_id"`
	Verdict     Verdict        `json:"verdict"`
	Status      DecisionStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type DecisionResult struct {
	CandidateID string     `json:"candidate_id"`
	Verdict     Verdict    `json:"verdict"`
	Matched     bool       `json:"matched"`
	Match       *MatchView `json:"match,omitempty"`
	// Reconciled is false when the like was stored but the follow-up
	// reconciliation failed; the match, if any, shows up on the next one.
	Reconciled bool `json:"reconciled"`
}

// MatchView is a reconciled match as the user sees it.
type MatchView struct {
	ID        string           `json:"id"`
	User      models.Profile   `json:"user"`
	Messages  []models.Message `json:"messages"`
	MatchedAt time.Time        `json:"matched_at"`
}

func (m MatchView) clone() MatchView {
	m.Messages = append([]models.Message(nil), m.Messages...)
	return m
}

// Identity is the signed-in user as known to the session.
type Identity struct {
	UserID    string          `json:"user_id"`
	State     State           `json:"state"`
	Onboarded bool            `json:"onboarded"`
	Profile   *models.Profile `json:"profile,omitempty"`
}

type EventKind string

const (
	EventStateChanged      EventKind = "state_changed"
	EventCandidatesChanged EventKind = "candidates_changed"
	EventMatchesChanged    EventKind = "matches_changed"
	EventNewMatch          EventKind = "new_match"
	EventMessagesChanged   EventKind = "messages_changed"
	EventDecisionFailed    EventKind = "decision_failed"
)

// Event is a change notification for subscribers of a session.
type Event struct {
	Kind        EventKind  `json:"kind"`
	State       string     `json:"state,omitempty"`
	CandidateID string     `json:"candidate_id,omitempty"`
	MatchID     string     `json:"match_id,omitempty"`
	Match       *MatchView `json:"match,omitempty"`
}
