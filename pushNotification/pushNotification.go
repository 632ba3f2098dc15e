// Package pushNotification tells the other side of a chat about new
// messages: it files an entry in their notification inbox and sends an Expo
// push to their device.
package pushNotification

import (
	"context"
	"errors"
	"fmt"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	log "github.com/sirupsen/logrus"

	"github.com/liveChat"
	"github.com/liveChat/backend"
)

const (
	userCollection         = "users"
	notificationCollection = "notifications"

	chatCategory = "chat"
)

var ErrNoRecipient = errors.New("recipient not found")

func inboxPath(userID string) string {
	return notificationCollection + "/" + userID + "/list"
}

type Notifier struct {
	docs      backend.Documents
	publisher Publisher
	log       *log.Entry
	now       func() time.Time
}

var _ liveChat.Notifier = (*Notifier)(nil)

func New(docs backend.Documents, publisher Publisher) *Notifier {
	return &Notifier{
		docs:      docs,
		publisher: publisher,
		log:       log.WithField("component", "pushNotification"),
		now:       time.Now,
	}
}

// NewExpo builds a Notifier that publishes through the public Expo push
// service.
func NewExpo(docs backend.Documents) *Notifier {
	return New(docs, expo.NewPushClient(nil))
}

func (n *Notifier) recipient(ctx context.Context, userID string) (*liveChat.UserProfile, error) {
	doc, err := n.docs.Get(ctx, userCollection, userID)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch user data for %s: %w", userID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRecipient, userID)
	}

	var user liveChat.UserProfile
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("unable to unmarshal user data for %s: %w", userID, err)
	}
	return &user, nil
}

func (n *Notifier) NotifyMessage(ctx context.Context, chat liveChat.ChatRelation, from liveChat.UserProfile, msg liveChat.Message) error {
	// Never notify the sender about their own message.
	to := chat.Partner(from.UserID)
	if to.UserID == "" || to.UserID == from.UserID {
		return nil
	}

	logger := n.log.WithFields(log.Fields{"chatId": chat.ChatID, "userId": to.UserID})

	user, err := n.recipient(ctx, to.UserID)
	if err != nil {
		return err
	}

	title := "New Message from " + from.Name

	docID := backend.NewDocID()
	if docID == "" {
		logger.Errorf("unable to generate doc id...")
	} else {
		err := n.docs.Set(ctx, inboxPath(to.UserID), docID, Notification{
			ID:        docID,
			ChatID:    chat.ChatID,
			Body:      msg.Message,
			Title:     title,
			Category:  chatCategory,
			Timestamp: n.now(),
		})
		if err != nil {
			logger.Errorf("unable to store notification: %s", err)
		}
	}

	if user.ExpoToken == "" {
		logger.Debug("no expo token, skipping push")
		return nil
	}

	token, err := expo.NewExponentPushToken(user.ExpoToken)
	if err != nil {
		return fmt.Errorf("invalid expo token. user id: %s: %w", to.UserID, err)
	}

	response, err := n.publisher.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{token},
		Body:     msg.Message,
		Sound:    "default",
		Title:    title,
		Priority: expo.HighPriority,
		Data: map[string]string{
			"category": chatCategory,
			"chatId":   chat.ChatID,
		},
	})
	if err != nil {
		return err
	}

	if err := response.ValidateResponse(); err != nil {
		logger.Error(response.PushMessage.To, " failed")
		return err
	}

	return nil
}
