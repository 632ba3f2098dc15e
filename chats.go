package liveChat

import (
	"context"
	"sort"
	"strings"

	"github.com/liveChat/backend"
)

func relationsQuery(userID string) backend.Query {
	return backend.NewQuery(chatCollection).Where("participantIds", backend.OpArrayContains, userID)
}

// SubscribeRelations follows every chat userID takes part in. Each snapshot
// replaces the held chat list.
func (c *Client) SubscribeRelations(userID string) error {
	return c.subscribe(&c.relationsSlot, userID, 0, relationsQuery(userID), func(gen uint64, docs []backend.Document) {
		chats := c.decodeRelations(docs)
		c.commit(&c.relationsSlot, gen, func() { c.chats = chats })
	})
}

func (c *Client) decodeRelations(docs []backend.Document) []ChatRelation {
	chats := make([]ChatRelation, 0, len(docs))
	for _, doc := range docs {
		var chat ChatRelation
		if err := doc.DataTo(&chat); err != nil {
			c.log.WithField("chatId", doc.ID()).Errorf("unable to unmarshal chat data: %s", err)
			continue
		}
		if chat.ChatID == "" {
			chat.ChatID = doc.ID()
		}
		chats = append(chats, chat)
	}
	return chats
}

// OpenChatMessages follows the messages of chatID, dropping whichever chat
// was open before.
func (c *Client) OpenChatMessages(chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return c.fail(newError(ErrValidation, "Chat Id Cannot Be Empty", nil))
	}

	return c.subscribe(&c.messagesSlot, chatID, 0, backend.NewQuery(messagesPath(chatID)), func(gen uint64, docs []backend.Document) {
		messages := c.decodeMessages(chatID, docs)
		c.commit(&c.messagesSlot, gen, func() { c.messages = messages })
	})
}

func (c *Client) decodeMessages(chatID string, docs []backend.Document) []Message {
	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		var msg Message
		if err := doc.DataTo(&msg); err != nil {
			c.log.WithField("chatId", chatID).Errorf("unable to unmarshal message %s: %s", doc.ID(), err)
			continue
		}
		msg.ID = doc.ID()
		messages = append(messages, msg)
	}

	sortMessages(messages)
	return messages
}

func sortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp != messages[j].Timestamp {
			return messages[i].Timestamp < messages[j].Timestamp
		}
		return messages[i].ID < messages[j].ID
	})
}

// CloseChatMessages drops the open chat. Calling it with no chat open is a
// no-op.
func (c *Client) CloseChatMessages() {
	c.mu.Lock()
	old := c.messagesSlot.release()
	c.messages = nil
	c.mu.Unlock()

	c.cancel(&c.messagesSlot, old)
	c.changed()
}

// SendMessage writes text into chatID. The message shows up in Messages once
// the open subscription delivers it back.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(chatID) == "" {
		return c.fail(newError(ErrValidation, "Chat Id Cannot Be Empty", nil))
	}
	if strings.TrimSpace(text) == "" {
		return c.fail(newError(ErrValidation, "Message Cannot Be Empty", nil))
	}

	c.mu.RLock()
	userID := c.identity.UserID
	var sender UserProfile
	if c.profile != nil {
		sender = *c.profile
	}
	c.mu.RUnlock()
	sender.UserID = userID

	if userID == "" {
		return c.fail(newError(ErrAuth, "Not Signed In", nil))
	}

	id := backend.NewDocID()
	if id == "" {
		return c.fail(newError(ErrPersistence, "Unable To Generate Message Id", nil))
	}

	msg := Message{
		ID:        id,
		SentBy:    userID,
		Message:   text,
		Timestamp: c.now().UnixMilli(),
	}
	if err := c.backend.Set(ctx, messagesPath(chatID), id, msg); err != nil {
		return c.fail(newError(ErrPersistence, "Failed to send message", err))
	}
	c.metrics.MessageSent()

	if c.notifier == nil {
		return nil
	}

	chat, ok := c.Chat(chatID)
	if !ok {
		c.log.WithField("chatId", chatID).Warn("chat not in chat list, skipping push notification")
		return nil
	}
	if err := c.notifier.NotifyMessage(ctx, chat, sender, msg); err != nil {
		c.metrics.PushFailed()
		c.log.WithField("chatId", chatID).Errorf("unable to push notification: %s", err)
	}
	return nil
}
