// Package push sends device notifications for new matches and messages.
package push

import (
	"context"
	"fmt"

	"layover-match/internal/events"
	"layover-match/internal/models"
	"layover-match/internal/store"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const previewLength = 120

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

type Sender interface {
	Send(ctx context.Context, deviceToken string, n Notification) error
}

// FCMSender delivers through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, deviceToken string, n Notification) error {
	_, err := s.client.Send(ctx, &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	})
	return err
}

// Notifier turns store events into notifications for the participants'
// registered devices.
type Notifier struct {
	profiles store.ProfileStore
	sender   Sender
	log      *logrus.Entry
}

func NewNotifier(profiles store.ProfileStore, sender Sender, log *logrus.Entry) *Notifier {
	return &Notifier{profiles: profiles, sender: sender, log: log}
}

func (n *Notifier) Handle(ctx context.Context, e events.Event) {
	profiles, err := n.profiles.GetProfiles(ctx, e.UserIDs)
	if err != nil {
		n.log.WithError(err).WithField("match_id", e.MatchID).Warn("Failed to load profiles for push")
		return
	}
	byID := lo.KeyBy(profiles, func(p models.Profile) string { return p.UserID })

	for _, userID := range e.UserIDs {
		recipient, ok := byID[userID]
		if !ok || recipient.DeviceToken == nil || *recipient.DeviceToken == "" {
			continue
		}
		other, _ := lo.Find(profiles, func(p models.Profile) bool { return p.UserID != userID })

		var note Notification
		switch e.Kind {
		case events.MatchCreated:
			note = Notification{
				Title: "It's a match!",
				Body:  fmt.Sprintf("You and %s liked each other.", other.Name),
			}
		case events.MessageCreated:
			if e.Message == nil || e.Message.SenderID == userID {
				continue
			}
			note = Notification{
				Title: other.Name,
				Body:  lo.Substring(e.Message.Content, 0, previewLength),
			}
		default:
			continue
		}
		note.Data = map[string]string{"kind": string(e.Kind), "match_id": e.MatchID}

		if err := n.sender.Send(ctx, *recipient.DeviceToken, note); err != nil {
			n.log.WithError(err).WithField("user_id", userID).Warn("Push delivery failed")
		}
	}
}

// Run sends notifications until ch is closed or ctx is done.
func (n *Notifier) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			n.Handle(ctx, e)
		}
	}
}
