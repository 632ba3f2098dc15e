package pushNotification

import (
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

// Publisher is satisfied by *expo.PushClient.
type Publisher interface {
	Publish(message *expo.PushMessage) (expo.PushResponse, error)
}

// Notification is the inbox entry stored for the receiving user.
type Notification struct {
	ID        string    `firestore:"id" json:"id"`
	ChatID    string    `firestore:"chatId" json:"chatId"`
	Body      string    `firestore:"body" json:"body"`
	Title     string    `firestore:"title" json:"title"`
	Category  string    `firestore:"category" json:"category"`
	Timestamp time.Time `firestore:"timestamp" json:"timestamp"`
}
