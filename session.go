package liveChat

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/liveChat/backend"
)

const imagePrefix = "images/"

// ProfileUpdate lists the profile fields to change. Nil fields keep their
// stored value.
type ProfileUpdate struct {
	Name      *string
	Number    *string
	ImageURL  *string
	ExpoToken *string
}

func (u ProfileUpdate) apply(p UserProfile) UserProfile {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Number != nil {
		p.Number = *u.Number
	}
	if u.ImageURL != nil {
		p.ImageURL = *u.ImageURL
	}
	if u.ExpoToken != nil {
		p.ExpoToken = *u.ExpoToken
	}
	return p
}

func anyEmpty(fields ...string) bool {
	for _, field := range fields {
		if strings.TrimSpace(field) == "" {
			return true
		}
	}
	return false
}

// SignUp registers a new account. The phone number must not belong to an
// existing profile.
func (c *Client) SignUp(ctx context.Context, name, number, email, password string) error {
	c.setLoading(&c.loading.Session, true)

	if anyEmpty(name, number, email, password) {
		return c.failSession(newError(ErrValidation, "Please Fill All fields", nil))
	}

	docs, err := c.backend.Query(ctx, backend.NewQuery(userCollection).Where("number", backend.OpEqual, number))
	if err != nil {
		return c.failSession(newError(ErrPersistence, "Sign Up Failed", err))
	}
	if len(docs) > 0 {
		return c.failSession(newError(ErrConflict, "Number Already Exists", nil))
	}

	identity, err := c.backend.CreateIdentity(ctx, email, password)
	if err != nil {
		return c.failSession(newError(ErrAuth, "Sign Up Failed", err))
	}

	c.signedInAs(identity)
	c.log.WithField("userId", identity.UserID).Info("signed up")

	if err := c.CreateOrUpdateProfile(ctx, ProfileUpdate{Name: &name, Number: &number}); err != nil {
		c.dropSession()
		return err
	}
	return nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) error {
	c.setLoading(&c.loading.Session, true)

	if anyEmpty(email, password) {
		return c.failSession(newError(ErrValidation, "Please Fill All fields", nil))
	}

	identity, err := c.backend.Authenticate(ctx, email, password)
	if err != nil {
		return c.failSession(newError(ErrAuth, "Sign In Failed", err))
	}

	c.signedInAs(identity)
	c.log.WithField("userId", identity.UserID).Info("signed in")

	c.ensure(&c.profileSlot, identity.UserID, c.loadProfile)
	return nil
}

// Resume restores a session for an identity the auth provider already
// vouched for, e.g. one persisted by the front end.
func (c *Client) Resume(identity backend.Identity) error {
	if identity.UserID == "" {
		return c.failSession(newError(ErrAuth, "Not Signed In", nil))
	}

	c.signedInAs(identity)
	c.ensure(&c.profileSlot, identity.UserID, c.loadProfile)
	return nil
}

func (c *Client) signedInAs(identity backend.Identity) {
	if prev := c.currentUserID(); prev != "" && prev != identity.UserID {
		c.dropSession()
	}

	c.mu.Lock()
	c.identity = identity
	c.signedIn = true
	c.loading.Session = false
	c.mu.Unlock()

	c.metrics.SetSignedIn(true)
	c.changed()
}

// LogOut drops the session and every live subscription. It is safe to call
// when nothing is open.
func (c *Client) LogOut() {
	userID := c.dropSession()

	if userID != "" {
		c.log.WithField("userId", userID).Info("logged out")
	}
	c.publish("Logged Out")
}

// dropSession returns the client to signed out without publishing anything
// and reports which user was signed in.
func (c *Client) dropSession() string {
	slots := []*slot{&c.profileSlot, &c.relationsSlot, &c.messagesSlot, &c.statusSlot, &c.presenceSlot}

	c.mu.Lock()
	userID := c.identity.UserID
	released := make([]slotRelease, 0, len(slots))
	for _, s := range slots {
		released = append(released, slotRelease{slot: s, sub: s.release()})
	}
	c.identity = backend.Identity{}
	c.signedIn = false
	c.profile = nil
	c.chats = nil
	c.messages = nil
	c.statuses = nil
	c.connections = nil
	c.loading = Loading{}
	c.mu.Unlock()

	for _, r := range released {
		c.cancel(r.slot, r.sub)
	}

	c.metrics.SetSignedIn(false)
	c.changed()
	return userID
}

type slotRelease struct {
	slot *slot
	sub  backend.Subscription
}

// CreateOrUpdateProfile merges update into the stored profile of the
// signed-in user and saves it.
func (c *Client) CreateOrUpdateProfile(ctx context.Context, update ProfileUpdate) error {
	userID := c.currentUserID()
	if userID == "" {
		return c.failSession(newError(ErrAuth, "Not Signed In", nil))
	}

	c.setLoading(&c.loading.Session, true)

	doc, err := c.backend.Get(ctx, userCollection, userID)
	if err != nil {
		return c.failSession(newError(ErrPersistence, "Failed to retrieve user data", err))
	}

	var existing UserProfile
	if doc != nil {
		if err := doc.DataTo(&existing); err != nil {
			return c.failSession(newError(ErrPersistence, "Failed to retrieve user data", err))
		}
	}

	updated := update.apply(existing)
	updated.UserID = userID

	if err := c.backend.Set(ctx, userCollection, userID, updated); err != nil {
		return c.failSession(newError(ErrPersistence, "Failed to update profile", err))
	}

	c.setLoading(&c.loading.Session, false)
	c.ensure(&c.profileSlot, userID, c.loadProfile)
	return nil
}

// UploadProfileImage stores the image and points the profile at it. The
// blob is not removed if the profile update fails afterwards.
func (c *Client) UploadProfileImage(ctx context.Context, r io.Reader, contentType string) error {
	if c.currentUserID() == "" {
		return c.failSession(newError(ErrAuth, "Not Signed In", nil))
	}

	url, err := c.uploadImage(ctx, r, contentType)
	if err != nil {
		return err
	}

	return c.CreateOrUpdateProfile(ctx, ProfileUpdate{ImageURL: &url})
}

// RegisterPushToken stores the Expo push token messages to this user are
// delivered to.
func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	if anyEmpty(token) {
		return c.failSession(newError(ErrValidation, "Push Token Cannot Be Empty", nil))
	}
	return c.CreateOrUpdateProfile(ctx, ProfileUpdate{ExpoToken: &token})
}

func (c *Client) uploadImage(ctx context.Context, r io.Reader, contentType string) (string, error) {
	c.setLoading(&c.loading.Session, true)

	url, err := c.backend.Upload(ctx, imagePrefix+uuid.NewString(), contentType, r)
	if err != nil {
		return "", c.failSession(newError(ErrUpload, "Image Upload Failed", err))
	}

	c.setLoading(&c.loading.Session, false)
	return url, nil
}

func (c *Client) loadProfile(userID string) error {
	q := backend.NewQuery(userCollection).Where("userId", backend.OpEqual, userID)
	return c.subscribe(&c.profileSlot, userID, 0, q, func(gen uint64, docs []backend.Document) {
		c.applyProfile(userID, gen, docs)
	})
}

func (c *Client) applyProfile(userID string, gen uint64, docs []backend.Document) {
	var profile *UserProfile
	if len(docs) > 0 {
		var p UserProfile
		if err := docs[0].DataTo(&p); err != nil {
			c.log.WithField("userId", userID).Errorf("unable to unmarshal user data: %s", err)
		} else {
			profile = &p
		}
	}

	if !c.commit(&c.profileSlot, gen, func() { c.profile = profile }) {
		return
	}
	if profile == nil {
		return
	}

	c.ensure(&c.relationsSlot, userID, c.SubscribeRelations)
	c.ensure(&c.presenceSlot, userID, c.RefreshStatuses)
}
