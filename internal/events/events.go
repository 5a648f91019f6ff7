// Package events carries durable-store notifications (a match formed, a
// message was written) to the parts of the process that react to them.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"layover-match/internal/models"
)

type Kind string

const (
	MatchCreated   Kind = "match.created"
	MessageCreated Kind = "message.created"
)

type Event struct {
	Kind    Kind            `json:"kind"`
	MatchID string          `json:"match_id"`
	UserIDs []string        `json:"user_ids"`
	Match   *models.Match   `json:"match,omitempty"`
	Message *models.Message `json:"message,omitempty"`
	At      time.Time       `json:"at"`
}

func NewMatchCreated(m models.Match) Event {
	return Event{
		Kind:    MatchCreated,
		MatchID: m.ID,
		UserIDs: m.Participants(),
		Match:   &m,
		At:      m.CreatedAt,
	}
}

func NewMessageCreated(m models.Match, msg models.Message) Event {
	return Event{
		Kind:    MessageCreated,
		MatchID: m.ID,
		UserIDs: m.Participants(),
		Message: &msg,
		At:      msg.CreatedAt,
	}
}

// Involves reports whether userID is one of the event's recipients.
func (e Event) Involves(userID string) bool {
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.Kind != MatchCreated && e.Kind != MessageCreated {
		return Event{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return e, nil
}

type Publisher interface {
	Publish(Event)
}

// Bus fans events out to in-process subscribers. Slow subscribers lose
// events rather than block the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel of future events and a cancel func that
// closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
