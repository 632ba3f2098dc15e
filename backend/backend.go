// Package backend describes the backend-as-a-service the chat core talks to:
// an auth provider, a document store with live queries, and blob storage.
package backend

import (
	"context"
	"crypto/rand"
	"io"
)

const (
	OpEqual         = "=="
	OpGreaterThan   = ">"
	OpIn            = "in"
	OpArrayContains = "array-contains"

	// MaxInValues is the largest value list an "in" filter may carry.
	MaxInValues = 10

	alphanum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Identity is the principal issued by the auth provider.
type Identity struct {
	UserID string
	Email  string
}

type Auth interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	CreateIdentity(ctx context.Context, email, password string) (Identity, error)
}

// Filter restricts a query. Field may be a dotted path into nested maps,
// e.g. "user.userId".
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

type Query struct {
	Collection string
	Filters    []Filter
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field, op string, value interface{}) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

type Document interface {
	ID() string
	DataTo(v interface{}) error
}

// Listener receives full snapshots of a live query. Each call supersedes the
// previous one. A non-nil err ends the stream.
type Listener func(docs []Document, err error)

type Subscription interface {
	Cancel()
}

type Documents interface {
	// Get returns a nil Document and a nil error when the key does not exist.
	Get(ctx context.Context, collection, key string) (Document, error)
	Set(ctx context.Context, collection, key string, value interface{}) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn Listener) (Subscription, error)
}

type Blobs interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

type Backend interface {
	Auth
	Documents
	Blobs
}

// NewDocID returns a random 20 character document id, or "" if the system
// random source fails.
func NewDocID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return ""
	}

	for i, byt := range b {
		b[i] = alphanum[int(byt)%len(alphanum)]
	}

	return string(b)
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() {
	f()
}
