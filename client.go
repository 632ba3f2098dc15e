// Package liveChat keeps a chat client's session, chat list, open
// conversation and contact statuses in sync with a backend-as-a-service.
//
// Client is the only owner of that state. Commands and backend listeners are
// the only places that change it; everything else reads copies through the
// accessor methods and learns about changes from Changes.
package liveChat

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/liveChat/backend"
	"github.com/liveChat/event"
	"github.com/liveChat/metrics"
)

// Notifier is told about every message the signed-in user sends.
type Notifier interface {
	NotifyMessage(ctx context.Context, chat ChatRelation, from UserProfile, msg Message) error
}

type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func WithLogger(entry *log.Entry) Option {
	return func(c *Client) {
		c.log = entry
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithContext sets the context live subscriptions run under. Cancelling it
// ends all of them.
func WithContext(ctx context.Context) Option {
	return func(c *Client) {
		c.ctx = ctx
	}
}

type Client struct {
	backend  backend.Backend
	notifier Notifier
	metrics  *metrics.Metrics
	log      *log.Entry
	now      func() time.Time
	ctx      context.Context
	changes  chan struct{}

	mu           sync.RWMutex
	identity     backend.Identity
	signedIn     bool
	profile      *UserProfile
	chats        []ChatRelation
	messages     []Message
	statuses     []StatusPost
	connections  []string
	loading      Loading
	notification *event.Event[string]

	profileSlot   slot
	relationsSlot slot
	messagesSlot  slot
	presenceSlot  slot
	statusSlot    slot
}

func NewClient(b backend.Backend, opts ...Option) *Client {
	c := &Client{
		backend: b,
		log:     log.WithField("component", "liveChat"),
		now:     time.Now,
		ctx:     context.Background(),
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.profileSlot = slot{name: "profile", failMessage: "Cannot Retrieve User", flag: &c.loading.Session,
		reset: func() { c.profile = nil }}
	c.relationsSlot = slot{name: "relations", failMessage: "Cannot Retrieve Chats", flag: &c.loading.Chats,
		reset: func() { c.chats = nil }}
	c.messagesSlot = slot{name: "messages", failMessage: "Cannot Retrieve Messages", flag: &c.loading.Messages,
		reset: func() { c.messages = nil }}
	c.presenceSlot = slot{name: "presence", failMessage: "Cannot Retrieve Status", flag: &c.loading.Status,
		reset: func() {
			c.connections = nil
			c.statuses = nil
		}}
	c.statusSlot = slot{name: "status", failMessage: "Cannot Retrieve Status", flag: &c.loading.Status, parent: &c.presenceSlot}

	return c
}

// Changes fires after state changes. Bursts are coalesced into one signal.
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

func (c *Client) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Client) SignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signedIn
}

func (c *Client) Identity() backend.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) Profile() *UserProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.profile == nil {
		return nil
	}
	profile := *c.profile
	return &profile
}

func (c *Client) Chats() []ChatRelation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ChatRelation(nil), c.chats...)
}

func (c *Client) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

func (c *Client) Statuses() []StatusPost {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]StatusPost(nil), c.statuses...)
}

// Connections is the set of user ids whose statuses are visible, the
// signed-in user included.
func (c *Client) Connections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.connections...)
}

func (c *Client) Loading() Loading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Notification returns the latest user-facing message. Reading its content
// with Get consumes it.
func (c *Client) Notification() *event.Event[string] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notification
}

// OpenChat returns the id of the chat whose messages are followed, or "".
func (c *Client) OpenChat() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messagesSlot.key
}

// Chat looks a chat up in the held chat list.
func (c *Client) Chat(chatID string) (ChatRelation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, chat := range c.chats {
		if chat.ChatID == chatID {
			return chat, true
		}
	}
	return ChatRelation{}, false
}

func (c *Client) publish(message string) {
	c.mu.Lock()
	c.notification = event.New(message)
	c.mu.Unlock()

	c.changed()
}

// fail logs err and publishes its message as the current notification. It
// returns err so callers can `return c.fail(...)`.
func (c *Client) fail(err *Error) error {
	entry := c.log.WithField("kind", kindName(err))
	if err.Err != nil {
		entry = entry.WithError(err.Err)
	}
	entry.Error(userMessage(err))

	c.metrics.Notified(kindName(err))

	c.mu.Lock()
	c.notification = event.New(userMessage(err))
	c.mu.Unlock()

	c.changed()
	return err
}

// failSession is fail for the session commands, which own the session
// loading flag.
func (c *Client) failSession(err *Error) error {
	c.mu.Lock()
	c.loading.Session = false
	c.mu.Unlock()

	return c.fail(err)
}

func (c *Client) setLoading(flag *bool, loading bool) {
	c.mu.Lock()
	*flag = loading
	c.mu.Unlock()

	c.changed()
}

func (c *Client) currentUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity.UserID
}
