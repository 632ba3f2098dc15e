package liveChat

import (
	"sort"
	"strings"
)

const (
	userCollection    = "users"
	chatCollection    = "chats"
	messageCollection = "messages"
	statusCollection  = "status"
)

func messagesPath(chatID string) string {
	return chatCollection + "/" + chatID + "/" + messageCollection
}

type UserProfile struct {
	UserID    string `firestore:"userId" json:"userId"`
	Name      string `firestore:"name" json:"name"`
	Number    string `firestore:"number" json:"number"`
	ImageURL  string `firestore:"imageUrl" json:"imageUrl"`
	ExpoToken string `firestore:"expoToken,omitempty" json:"expoToken,omitempty"`
}

// Participant returns the snapshot embedded into chats and status posts.
func (p UserProfile) Participant() ChatParticipant {
	return ChatParticipant{
		UserID:   p.UserID,
		Name:     p.Name,
		ImageURL: p.ImageURL,
		Number:   p.Number,
	}
}

// ChatParticipant is copied when a chat or status is created and is not
// refreshed when the profile changes later.
type ChatParticipant struct {
	UserID   string `firestore:"userId" json:"userId"`
	Name     string `firestore:"name" json:"name"`
	ImageURL string `firestore:"imageUrl" json:"imageUrl"`
	Number   string `firestore:"number" json:"number"`
}

type ChatRelation struct {
	ChatID         string          `firestore:"chatId" json:"chatId"`
	User1          ChatParticipant `firestore:"user1" json:"user1"`
	User2          ChatParticipant `firestore:"user2" json:"user2"`
	ParticipantIDs []string        `firestore:"participantIds" json:"participantIds"`
	PairKey        string          `firestore:"pairKey" json:"pairKey"`
}

func newChatRelation(chatID string, a, b ChatParticipant) ChatRelation {
	return ChatRelation{
		ChatID:         chatID,
		User1:          a,
		User2:          b,
		ParticipantIDs: []string{a.UserID, b.UserID},
		PairKey:        pairKey(a.Number, b.Number),
	}
}

// Partner returns the participant that is not userID.
func (c ChatRelation) Partner(userID string) ChatParticipant {
	if c.User1.UserID == userID {
		return c.User2
	}
	return c.User1
}

func (c ChatRelation) Involves(userID string) bool {
	return c.User1.UserID == userID || c.User2.UserID == userID
}

// pairKey is the same for both orderings of the two numbers.
func pairKey(a, b string) string {
	numbers := []string{a, b}
	sort.Strings(numbers)
	return strings.Join(numbers, ":")
}

type Message struct {
	ID        string `firestore:"-" json:"-"`
	SentBy    string `firestore:"sentBy" json:"sentBy"`
	Message   string `firestore:"message" json:"message"`
	Timestamp int64  `firestore:"timestamp" json:"timestamp"`
}

type StatusPost struct {
	ID        string          `firestore:"-" json:"-"`
	User      ChatParticipant `firestore:"user" json:"user"`
	ImageURL  string          `firestore:"imageUrl" json:"imageUrl"`
	Timestamp int64           `firestore:"timestamp" json:"timestamp"`
}

// Loading reports which parts of the client are waiting on the backend.
type Loading struct {
	Session  bool
	Chats    bool
	Messages bool
	Status   bool
}
