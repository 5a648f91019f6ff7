package database

import (
	"testing"
	"time"

	"layover-match/internal/events"
	"layover-match/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerForwardsNotifications(t *testing.T) {
	rec := &recorder{}
	l := NewListener("", "layover_events", rec, quietLog())

	m := models.Match{ID: "m1", User1ID: "a", User2ID: "b", CreatedAt: time.Now().UTC()}
	payload, err := events.Encode(events.NewMatchCreated(m))
	require.NoError(t, err)

	l.handle(string(payload))
	l.handle(`{"kind":"profile.deleted"}`)
	l.handle("not json")

	require.Len(t, rec.events, 1)
	got := rec.events[0]
	assert.Equal(t, events.MatchCreated, got.Kind)
	assert.Equal(t, "m1", got.MatchID)
	assert.ElementsMatch(t, []string{"a", "b"}, got.UserIDs)
}
