package database

import (
	"context"
	"fmt"
	"time"

	"layover-match/internal/events"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

// Listener forwards NOTIFY payloads sent by a postgres Store to an
// in-process publisher.
type Listener struct {
	databaseURL string
	channel     string
	publisher   events.Publisher
	log         *logrus.Entry
}

func NewListener(databaseURL, channel string, publisher events.Publisher, log *logrus.Entry) *Listener {
	return &Listener{
		databaseURL: databaseURL,
		channel:     channel,
		publisher:   publisher,
		log:         log,
	}
}

// Run listens until ctx is done. The connection is re-established by pq on
// failure; events sent while it is down are lost.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.databaseURL, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.log.WithError(err).WithField("event", ev).Warn("Notification listener connection problem")
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}
	l.log.WithField("channel", l.channel).Info("Listening for store notifications")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			l.handle(n.Extra)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.log.WithError(err).Debug("Notification listener ping failed")
				}
			}()
		}
	}
}

func (l *Listener) handle(payload string) {
	e, err := events.Decode([]byte(payload))
	if err != nil {
		l.log.WithError(err).Warn("Dropping malformed notification")
		return
	}
	l.publisher.Publish(e)
}
