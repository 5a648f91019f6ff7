package push

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"layover-match/internal/events"
	"layover-match/internal/models"
	"layover-match/internal/store/memstore"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	token string
	note  Notification
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, token string, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{token, n})
	return f.err
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func setup(t *testing.T) (*Notifier, *fakeSender, models.Match) {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	token := "device-ada"
	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{UserID: "a", Name: "Ada", DeviceToken: &token}))
	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{UserID: "b", Name: "Bo"}))

	l := logrus.New()
	l.SetOutput(io.Discard)
	sender := &fakeSender{}
	m := models.Match{ID: "m1", User1ID: "a", User2ID: "b", CreatedAt: time.Now()}
	return NewNotifier(s, sender, logrus.NewEntry(l)), sender, m
}

func TestMatchNotifiesDevicesOnly(t *testing.T) {
	n, sender, m := setup(t)
	n.Handle(context.Background(), events.NewMatchCreated(m))

	got := sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, "device-ada", got[0].token)
	assert.Contains(t, got[0].note.Body, "Bo")
	assert.Equal(t, "m1", got[0].note.Data["match_id"])
}

func TestMessageSkipsSender(t *testing.T) {
	n, sender, m := setup(t)
	ctx := context.Background()

	n.Handle(ctx, events.NewMessageCreated(m, models.Message{ID: "x", MatchID: "m1", SenderID: "a", Content: "hi"}))
	assert.Empty(t, sender.all())

	long := strings.Repeat("z", 500)
	n.Handle(ctx, events.NewMessageCreated(m, models.Message{ID: "y", MatchID: "m1", SenderID: "b", Content: long}))
	got := sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Bo", got[0].note.Title)
	assert.Len(t, got[0].note.Body, previewLength)
}

func TestDeliveryFailureIsNotFatal(t *testing.T) {
	n, sender, m := setup(t)
	sender.err = errors.New("unregistered")

	assert.NotPanics(t, func() { n.Handle(context.Background(), events.NewMatchCreated(m)) })
	assert.Len(t, sender.all(), 1)
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	n, sender, m := setup(t)
	ch := make(chan events.Event, 1)
	ch <- events.NewMatchCreated(m)
	close(ch)

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, sender.all(), 1)
}
