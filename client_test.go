package liveChat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveChat/backend"
	"github.com/liveChat/memoryBackend"
	"github.com/liveChat/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type env struct {
	t       *testing.T
	ctx     context.Context
	backend *memoryBackend.Backend
	clock   *fakeClock
}

func newEnv(t *testing.T) *env {
	return &env{
		t:       t,
		ctx:     context.Background(),
		backend: memoryBackend.New(),
		clock:   &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func (e *env) client(opts ...Option) *Client {
	return e.clientOn(e.backend, opts...)
}

func (e *env) clientOn(b backend.Backend, opts ...Option) *Client {
	logger := log.New()
	logger.SetOutput(io.Discard)

	opts = append([]Option{
		WithClock(e.clock.Now),
		WithLogger(log.NewEntry(logger)),
		WithMetrics(metrics.New()),
	}, opts...)
	return NewClient(b, opts...)
}

// heldBackend withholds every snapshot of the held collections, the way a
// slow listener looks before its first delivery.
type heldBackend struct {
	*memoryBackend.Backend

	mu   sync.Mutex
	held map[string]bool
}

func newHeldBackend(b *memoryBackend.Backend) *heldBackend {
	return &heldBackend{Backend: b, held: map[string]bool{}}
}

func (h *heldBackend) Hold(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.held[collection] = true
}

func (h *heldBackend) Subscribe(ctx context.Context, q backend.Query, fn backend.Listener) (backend.Subscription, error) {
	h.mu.Lock()
	held := h.held[q.Collection]
	h.mu.Unlock()

	if held {
		return backend.SubscriptionFunc(func() {}), nil
	}
	return h.Backend.Subscribe(ctx, q, fn)
}

func (e *env) signUp(name, number string, opts ...Option) *Client {
	c := e.client(opts...)
	email := strings.ToLower(name) + "@example.com"
	require.NoError(e.t, c.SignUp(e.ctx, name, number, email, "secret1"))
	require.NotNil(e.t, c.Profile())
	return c
}

func notification(c *Client) string {
	msg, _ := c.Notification().Get()
	return msg
}

func TestSignUpRequiresAllFields(t *testing.T) {
	cases := []struct {
		name, number, email, password string
	}{
		{"", "111", "a@example.com", "secret1"},
		{"Alice", "", "a@example.com", "secret1"},
		{"Alice", "111", "", "secret1"},
		{"Alice", "111", "a@example.com", ""},
		{"Alice", "111", "a@example.com", "   "},
	}

	for _, tc := range cases {
		e := newEnv(t)
		c := e.client()

		err := c.SignUp(e.ctx, tc.name, tc.number, tc.email, tc.password)
		assert.ErrorIs(t, err, ErrValidation)
		assert.False(t, c.SignedIn())
		assert.False(t, c.Loading().Session)
		assert.Equal(t, "Please Fill All fields", notification(c))
		assert.Equal(t, 0, e.backend.Accounts())
		assert.Equal(t, 0, e.backend.Count(userCollection))
	}
}

func TestSignUpRejectsTakenNumber(t *testing.T) {
	e := newEnv(t)
	e.signUp("Alice", "111")

	c := e.client()
	err := c.SignUp(e.ctx, "Mallory", "111", "mallory@example.com", "secret1")

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Number Already Exists", notification(c))
	assert.False(t, c.SignedIn())
	assert.False(t, c.Loading().Session)
	assert.Equal(t, 1, e.backend.Accounts())
	assert.Equal(t, 1, e.backend.Count(userCollection))
}

func TestSignUpAuthFailureStaysSignedOut(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	err := c.SignUp(e.ctx, "Alice", "111", "alice@example.com", "123")

	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, memoryBackend.ErrWeakPassword)
	assert.Equal(t, "Sign Up Failed", notification(c))
	assert.False(t, c.SignedIn())
	assert.Equal(t, 0, e.backend.Count(userCollection))
}

func TestSignUpLoadsSession(t *testing.T) {
	e := newEnv(t)
	c := e.signUp("Alice", "111")

	profile := c.Profile()
	assert.True(t, c.SignedIn())
	assert.Equal(t, c.Identity().UserID, profile.UserID)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, "111", profile.Number)
	assert.Equal(t, Loading{}, c.Loading())
	assert.Equal(t, []string{profile.UserID}, c.Connections())

	assert.Equal(t, 1, e.backend.ActiveSubscriptions(userCollection))
	assert.Equal(t, 2, e.backend.ActiveSubscriptions(chatCollection))
	assert.Equal(t, 1, e.backend.ActiveSubscriptions(statusCollection))

	select {
	case <-c.Changes():
	default:
		t.Fatal("expected a change signal")
	}
}

func TestSignIn(t *testing.T) {
	e := newEnv(t)
	alice := e.signUp("Alice", "111")
	e.signUp("Bob", "222")
	_, err := alice.AddChat(e.ctx, "222")
	require.NoError(t, err)

	c := e.client()
	err = c.SignIn(e.ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, "Sign In Failed", notification(c))
	assert.False(t, c.SignedIn())
	assert.False(t, c.Loading().Session)

	err = c.SignIn(e.ctx, "", "secret1")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, c.SignIn(e.ctx, "alice@example.com", "secret1"))
	assert.True(t, c.SignedIn())
	assert.Equal(t, alice.Profile(), c.Profile())
	assert.Len(t, c.Chats(), 1)
}

func TestResume(t *testing.T) {
	e := newEnv(t)
	alice := e.signUp("Alice", "111")

	c := e.client()
	assert.ErrorIs(t, c.Resume(backend.Identity{}), ErrAuth)

	require.NoError(t, c.Resume(alice.Identity()))
	assert.True(t, c.SignedIn())
	assert.Equal(t, "Alice", c.Profile().Name)
}

func TestCreateOrUpdateProfileKeepsOmittedFields(t *testing.T) {
	e := newEnv(t)
	c := e.signUp("Alice", "111")

	url := "https://example.com/a.png"
	require.NoError(t, c.CreateOrUpdateProfile(e.ctx, ProfileUpdate{ImageURL: &url}))

	number := "999"
	require.NoError(t, c.CreateOrUpdateProfile(e.ctx, ProfileUpdate{Number: &number}))
	first := c.Profile()
	require.NoError(t, c.CreateOrUpdateProfile(e.ctx, ProfileUpdate{Number: &number}))
	second := c.Profile()

	assert.Equal(t, first, second)
	assert.Equal(t, "Alice", second.Name)
	assert.Equal(t, "999", second.Number)
	assert.Equal(t, url, second.ImageURL)

	doc, err := e.backend.Get(e.ctx, userCollection, second.UserID)
	require.NoError(t, err)
	var stored UserProfile
	require.NoError(t, doc.DataTo(&stored))
	assert.Equal(t, *second, stored)
}

func TestCreateOrUpdateProfileFailures(t *testing.T) {
	e := newEnv(t)

	name := "Alice"
	c := e.client()
	assert.ErrorIs(t, c.CreateOrUpdateProfile(e.ctx, ProfileUpdate{Name: &name}), ErrAuth)

	c = e.signUp("Alice", "111")
	e.backend.Fail(memoryBackend.OpSet, userCollection, errors.New("permission denied"))

	other := "Alicia"
	err := c.CreateOrUpdateProfile(e.ctx, ProfileUpdate{Name: &other})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "Failed to update profile", notification(c))
	assert.False(t, c.Loading().Session)
	assert.Equal(t, "Alice", c.Profile().Name)

	e.backend.Fail(memoryBackend.OpGet, userCollection, errors.New("unavailable"))
	err = c.CreateOrUpdateProfile(e.ctx, ProfileUpdate{Name: &other})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "Failed to retrieve user data", notification(c))
}

func TestUploadProfileImage(t *testing.T) {
	e := newEnv(t)
	c := e.signUp("Alice", "111")

	require.NoError(t, c.UploadProfileImage(e.ctx, strings.NewReader("png"), "image/png"))

	url := c.Profile().ImageURL
	assert.True(t, strings.HasPrefix(url, "memory://images/"), url)
	data, ok := e.backend.Blob(url)
	assert.True(t, ok)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "Alice", c.Profile().Name)

	e.backend.Fail(memoryBackend.OpUpload, "", errors.New("quota exceeded"))
	err := c.UploadProfileImage(e.ctx, strings.NewReader("png"), "image/png")
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, "Image Upload Failed", notification(c))
	assert.False(t, c.Loading().Session)
	assert.Equal(t, url, c.Profile().ImageURL)
}

func TestRegisterPushToken(t *testing.T) {
	e := newEnv(t)
	c := e.signUp("Alice", "111")

	assert.ErrorIs(t, c.RegisterPushToken(e.ctx, ""), ErrValidation)
	require.NoError(t, c.RegisterPushToken(e.ctx, "ExponentPushToken[abc]"))
	assert.Equal(t, "ExponentPushToken[abc]", c.Profile().ExpoToken)
	assert.Equal(t, "111", c.Profile().Number)
}

func TestLogOutReleasesEverything(t *testing.T) {
	e := newEnv(t)
	alice := e.signUp("Alice", "111")
	e.signUp("Bob", "222")
	chat, err := alice.AddChat(e.ctx, "222")
	require.NoError(t, err)
	require.NoError(t, alice.OpenChatMessages(chat.ChatID))
	require.NoError(t, alice.SendMessage(e.ctx, chat.ChatID, "hi"))
	require.Len(t, alice.Messages(), 1)

	before := e.backend.ActiveSubscriptions(chatCollection)
	alice.LogOut()

	assert.False(t, alice.SignedIn())
	assert.Nil(t, alice.Profile())
	assert.Empty(t, alice.Chats())
	assert.Empty(t, alice.Messages())
	assert.Empty(t, alice.Statuses())
	assert.Equal(t, Loading{}, alice.Loading())
	assert.Equal(t, "Logged Out", notification(alice))
	assert.Equal(t, 0, e.backend.ActiveSubscriptions(messagesPath(chat.ChatID)))
	assert.Equal(t, before-2, e.backend.ActiveSubscriptions(chatCollection))

	_, err = e.client().AddChat(e.ctx, "333")
	assert.ErrorIs(t, err, ErrAuth)

	require.NoError(t, e.backend.Set(e.ctx, messagesPath(chat.ChatID), "late", Message{SentBy: "x", Message: "late", Timestamp: 1}))
	assert.Empty(t, alice.Messages())

	fresh := e.client()
	fresh.LogOut()
	fresh.LogOut()
	assert.Equal(t, "Logged Out", notification(fresh))
}

func TestNotificationIsConsumedOnce(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	assert.Nil(t, c.Notification())

	_ = c.SignIn(e.ctx, "", "")

	msg, ok := c.Notification().Get()
	assert.True(t, ok)
	assert.Equal(t, "Please Fill All fields", msg)

	msg, ok = c.Notification().Get()
	assert.False(t, ok)
	assert.Empty(t, msg)
}

func TestSignUpProfileFailureStaysSignedOut(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	e.backend.Fail(memoryBackend.OpSet, userCollection, errors.New("offline"))
	err := c.SignUp(e.ctx, "Alice", "111", "alice@example.com", "secret1")

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "Failed to update profile", notification(c))
	assert.False(t, c.SignedIn())
	assert.Empty(t, c.Identity().UserID)
	assert.Nil(t, c.Profile())
	assert.False(t, c.Loading().Session)
	assert.Equal(t, 0, e.backend.ActiveSubscriptions(userCollection))
	assert.Equal(t, 0, e.backend.Count(userCollection))
}

func TestSignInAsAnotherUserDropsPreviousSession(t *testing.T) {
	e := newEnv(t)
	alice := e.signUp("Alice", "111")
	e.signUp("Bob", "222")
	e.signUp("Carol", "333")

	chat, err := alice.AddChat(e.ctx, "222")
	require.NoError(t, err)
	require.NoError(t, alice.OpenChatMessages(chat.ChatID))
	require.NoError(t, alice.SendMessage(e.ctx, chat.ChatID, "hi"))
	require.Len(t, alice.Messages(), 1)

	require.NoError(t, alice.SignIn(e.ctx, "carol@example.com", "secret1"))

	assert.Equal(t, "333", alice.Profile().Number)
	assert.Empty(t, alice.OpenChat())
	assert.Empty(t, alice.Messages())
	assert.Empty(t, alice.Chats())
	assert.Equal(t, 0, e.backend.ActiveSubscriptions(messagesPath(chat.ChatID)))
}

func TestFailuresLeaveSessionLoadingAlone(t *testing.T) {
	e := newEnv(t)
	alice := e.signUp("Alice", "111")

	held := newHeldBackend(e.backend)
	held.Hold(userCollection)
	c := e.clientOn(held)

	require.NoError(t, c.Resume(alice.Identity()))
	require.True(t, c.Loading().Session)

	assert.ErrorIs(t, c.SendMessage(e.ctx, "chat", ""), ErrValidation)
	_, err := c.AddChat(e.ctx, "12a")
	assert.ErrorIs(t, err, ErrValidation)

	assert.True(t, c.Loading().Session)
}
