// Package memoryBackend is an in-process implementation of backend.Backend.
// Listeners run synchronously on the goroutine that caused the change, which
// keeps tests deterministic.
package memoryBackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/liveChat/backend"
)

const (
	OpAuth      = "auth"
	OpGet       = "get"
	OpSet       = "set"
	OpQuery     = "query"
	OpSubscribe = "subscribe"
	OpUpload    = "upload"

	minPasswordLength = 6
)

var (
	ErrEmailExists     = errors.New("EMAIL_EXISTS")
	ErrEmailNotFound   = errors.New("EMAIL_NOT_FOUND")
	ErrInvalidPassword = errors.New("INVALID_PASSWORD")
	ErrWeakPassword    = errors.New("WEAK_PASSWORD : Password should be at least 6 characters")
)

type account struct {
	userID   string
	password string
}

type record struct {
	raw    []byte
	fields map[string]interface{}
}

func (r record) DataTo(v interface{}) error {
	return json.Unmarshal(r.raw, v)
}

type document struct {
	id string
	record
}

func (d document) ID() string {
	return d.id
}

type subscription struct {
	id        int
	query     backend.Query
	fn        backend.Listener
	cancelled bool
}

type Backend struct {
	mu            sync.Mutex
	accounts      map[string]account
	collections   map[string]map[string]record
	blobs         map[string][]byte
	subscriptions map[int]*subscription
	nextSubID     int
	failures      map[string]error
}

var _ backend.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		accounts:      map[string]account{},
		collections:   map[string]map[string]record{},
		blobs:         map[string][]byte{},
		subscriptions: map[int]*subscription{},
		failures:      map[string]error{},
	}
}

// Fail makes every later op against collection return err. An empty
// collection matches all collections. Passing a nil err clears the failure.
func (b *Backend) Fail(op, collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := op + "|" + collection
	if err == nil {
		delete(b.failures, key)
		return
	}
	b.failures[key] = err
}

func (b *Backend) failure(op, collection string) error {
	if err, ok := b.failures[op+"|"+collection]; ok {
		return err
	}
	return b.failures[op+"|"]
}

func (b *Backend) Authenticate(ctx context.Context, email, password string) (backend.Identity, error) {
	if err := ctx.Err(); err != nil {
		return backend.Identity{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpAuth, ""); err != nil {
		return backend.Identity{}, err
	}

	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		return backend.Identity{}, ErrEmailNotFound
	}
	if acc.password != password {
		return backend.Identity{}, ErrInvalidPassword
	}

	return backend.Identity{UserID: acc.userID, Email: email}, nil
}

func (b *Backend) CreateIdentity(ctx context.Context, email, password string) (backend.Identity, error) {
	if err := ctx.Err(); err != nil {
		return backend.Identity{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpAuth, ""); err != nil {
		return backend.Identity{}, err
	}

	key := strings.ToLower(email)
	if _, ok := b.accounts[key]; ok {
		return backend.Identity{}, ErrEmailExists
	}
	if len(password) < minPasswordLength {
		return backend.Identity{}, ErrWeakPassword
	}

	acc := account{userID: backend.NewDocID(), password: password}
	b.accounts[key] = acc

	return backend.Identity{UserID: acc.userID, Email: email}, nil
}

// Accounts reports how many identities have been created.
func (b *Backend) Accounts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.accounts)
}

func (b *Backend) Get(ctx context.Context, collection, key string) (backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpGet, collection); err != nil {
		return nil, err
	}

	rec, ok := b.collections[collection][key]
	if !ok {
		return nil, nil
	}
	return document{id: key, record: rec}, nil
}

func (b *Backend) Set(ctx context.Context, collection, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, key, err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%s/%s is not an object: %w", collection, key, err)
	}

	b.mu.Lock()
	if err := b.failure(OpSet, collection); err != nil {
		b.mu.Unlock()
		return err
	}

	docs, ok := b.collections[collection]
	if !ok {
		docs = map[string]record{}
		b.collections[collection] = docs
	}
	docs[key] = record{raw: raw, fields: fields}

	pending := b.listenersFor(collection)
	b.mu.Unlock()

	b.deliver(pending)
	return nil
}

// Delete removes a document, notifying live queries on its collection.
// Deleting a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if err := b.failure(OpSet, collection); err != nil {
		b.mu.Unlock()
		return err
	}

	delete(b.collections[collection], key)
	pending := b.listenersFor(collection)
	b.mu.Unlock()

	b.deliver(pending)
	return nil
}

func (b *Backend) Query(ctx context.Context, q backend.Query) ([]backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpQuery, q.Collection); err != nil {
		return nil, err
	}

	return b.run(q), nil
}

func (b *Backend) Subscribe(ctx context.Context, q backend.Query, fn backend.Listener) (backend.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if err := b.failure(OpSubscribe, q.Collection); err != nil {
		b.mu.Unlock()
		return nil, err
	}

	b.nextSubID++
	sub := &subscription{id: b.nextSubID, query: q, fn: fn}
	b.subscriptions[sub.id] = sub
	initial := delivery{sub: sub, docs: b.run(q)}
	b.mu.Unlock()

	b.deliver([]delivery{initial})

	return backend.SubscriptionFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.cancelled = true
		delete(b.subscriptions, sub.id)
	}), nil
}

// Break ends every live query on collection with err, the way a revoked
// permission would.
func (b *Backend) Break(collection string, err error) {
	b.mu.Lock()
	var pending []delivery
	for _, sub := range b.subscriptions {
		if sub.query.Collection == collection {
			pending = append(pending, delivery{sub: sub, err: err})
			sub.cancelled = true
			delete(b.subscriptions, sub.id)
		}
	}
	b.mu.Unlock()

	for _, d := range pending {
		d.sub.fn(nil, d.err)
	}
}

// ActiveSubscriptions counts live queries on collection.
func (b *Backend) ActiveSubscriptions(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, sub := range b.subscriptions {
		if sub.query.Collection == collection {
			n++
		}
	}
	return n
}

// Count reports how many documents collection holds.
func (b *Backend) Count(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.collections[collection])
}

func (b *Backend) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("reading blob %s: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(OpUpload, ""); err != nil {
		return "", err
	}

	b.blobs[name] = buf.Bytes()
	return "memory://" + name, nil
}

// Blob returns the bytes stored under url.
func (b *Backend) Blob(url string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.blobs[strings.TrimPrefix(url, "memory://")]
	return data, ok
}

type delivery struct {
	sub  *subscription
	docs []backend.Document
	err  error
}

// listenersFor must be called with b.mu held.
func (b *Backend) listenersFor(collection string) []delivery {
	ids := make([]int, 0, len(b.subscriptions))
	for id, sub := range b.subscriptions {
		if sub.query.Collection == collection {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	pending := make([]delivery, 0, len(ids))
	for _, id := range ids {
		sub := b.subscriptions[id]
		pending = append(pending, delivery{sub: sub, docs: b.run(sub.query)})
	}
	return pending
}

func (b *Backend) deliver(pending []delivery) {
	for _, d := range pending {
		b.mu.Lock()
		cancelled := d.sub.cancelled
		b.mu.Unlock()
		if cancelled {
			continue
		}
		d.sub.fn(d.docs, d.err)
	}
}

// run must be called with b.mu held.
func (b *Backend) run(q backend.Query) []backend.Document {
	docs := b.collections[q.Collection]

	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := []backend.Document{}
	for _, key := range keys {
		rec := docs[key]
		if matches(rec.fields, q.Filters) {
			result = append(result, document{id: key, record: rec})
		}
	}
	return result
}

func matches(fields map[string]interface{}, filters []backend.Filter) bool {
	for _, f := range filters {
		value, ok := lookup(fields, f.Field)
		if !ok {
			return false
		}

		switch f.Op {
		case backend.OpEqual:
			if !equal(value, f.Value) {
				return false
			}
		case backend.OpGreaterThan:
			if !greater(value, f.Value) {
				return false
			}
		case backend.OpIn:
			if !contains(f.Value, value) {
				return false
			}
		case backend.OpArrayContains:
			if !contains(value, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func lookup(fields map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

func greater(a, b interface{}) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x > y
	}

	x, ok := a.(string)
	if !ok {
		return false
	}
	y, ok := b.(string)
	return ok && x > y
}

func contains(list, v interface{}) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}

	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}
