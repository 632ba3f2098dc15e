package liveChat

import (
	"context"

	"github.com/liveChat/backend"
)

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// AddChat starts a chat with the user registered under number.
//
// The duplicate check and the insert are separate backend calls, so two
// clients adding each other at the same moment can still create two chats.
func (c *Client) AddChat(ctx context.Context, number string) (ChatRelation, error) {
	if number == "" || !digitsOnly(number) {
		return ChatRelation{}, c.fail(newError(ErrValidation, "Number must contains digits only", nil))
	}

	self := c.Profile()
	if self == nil {
		return ChatRelation{}, c.fail(newError(ErrAuth, "Not Signed In", nil))
	}
	if number == self.Number {
		return ChatRelation{}, c.fail(newError(ErrValidation, "Cannot Start A Chat With Yourself", nil))
	}

	logger := c.log.WithField("userId", self.UserID)

	existing, err := c.backend.Query(ctx, backend.NewQuery(chatCollection).
		Where("pairKey", backend.OpEqual, pairKey(self.Number, number)))
	if err != nil {
		return ChatRelation{}, c.fail(newError(ErrPersistence, "", err))
	}
	if len(existing) > 0 {
		return ChatRelation{}, c.fail(newError(ErrConflict, "Chat Already Exists", nil))
	}

	users, err := c.backend.Query(ctx, backend.NewQuery(userCollection).Where("number", backend.OpEqual, number))
	if err != nil {
		return ChatRelation{}, c.fail(newError(ErrPersistence, "", err))
	}
	if len(users) == 0 {
		return ChatRelation{}, c.fail(newError(ErrNotFound, "Number Not Found", nil))
	}

	var partner UserProfile
	if err := users[0].DataTo(&partner); err != nil {
		return ChatRelation{}, c.fail(newError(ErrPersistence, "", err))
	}
	if partner.UserID == "" {
		partner.UserID = users[0].ID()
	}

	chatID := backend.NewDocID()
	if chatID == "" {
		return ChatRelation{}, c.fail(newError(ErrPersistence, "Unable To Generate Chat Id", nil))
	}

	chat := newChatRelation(chatID, self.Participant(), partner.Participant())
	if err := c.backend.Set(ctx, chatCollection, chatID, chat); err != nil {
		return ChatRelation{}, c.fail(newError(ErrPersistence, "", err))
	}

	logger.WithField("chatId", chatID).Info("chat created")
	return chat, nil
}
