package liveChat

import (
	"context"
	"io"
	"time"

	"github.com/liveChat/backend"
)

// StatusLifetime is how long a status post stays visible.
const StatusLifetime = 24 * time.Hour

// RefreshStatuses follows the statuses of userID and everyone userID has a
// chat with. Every change to the chat list reopens the status query with
// the new set of connections.
func (c *Client) RefreshStatuses(userID string) error {
	c.releaseSlot(&c.statusSlot)

	return c.subscribe(&c.presenceSlot, userID, 0, relationsQuery(userID), func(gen uint64, docs []backend.Document) {
		c.applyPresence(userID, gen, docs)
	})
}

func (c *Client) applyPresence(userID string, gen uint64, docs []backend.Document) {
	connections := connectionsOf(userID, c.decodeRelations(docs))
	if !c.commit(&c.presenceSlot, gen, func() { c.connections = connections }) {
		return
	}

	cutoff := c.now().Add(-StatusLifetime).UnixMilli()
	q := backend.NewQuery(statusCollection).Where("timestamp", backend.OpGreaterThan, cutoff)
	if len(connections) <= backend.MaxInValues {
		q = q.Where("user.userId", backend.OpIn, connections)
	}

	err := c.subscribe(&c.statusSlot, userID, gen, q, func(statusGen uint64, docs []backend.Document) {
		statuses := visibleStatuses(c.decodeStatuses(docs), connections, c.now())
		c.commit(&c.statusSlot, statusGen, func() { c.statuses = statuses })
	})
	if err != nil {
		c.log.WithField("userId", userID).Errorf("unable to subscribe to statuses: %s", err)
	}
}

func (c *Client) decodeStatuses(docs []backend.Document) []StatusPost {
	statuses := make([]StatusPost, 0, len(docs))
	for _, doc := range docs {
		var status StatusPost
		if err := doc.DataTo(&status); err != nil {
			c.log.Errorf("unable to unmarshal status %s: %s", doc.ID(), err)
			continue
		}
		status.ID = doc.ID()
		statuses = append(statuses, status)
	}
	return statuses
}

// UploadStatus stores the image and posts it as the signed-in user's status.
func (c *Client) UploadStatus(ctx context.Context, r io.Reader, contentType string) error {
	self := c.Profile()
	if self == nil {
		return c.fail(newError(ErrAuth, "Not Signed In", nil))
	}

	url, err := c.uploadImage(ctx, r, contentType)
	if err != nil {
		return err
	}

	return c.createStatus(ctx, *self, url)
}

func (c *Client) createStatus(ctx context.Context, author UserProfile, imageURL string) error {
	id := backend.NewDocID()
	if id == "" {
		return c.fail(newError(ErrPersistence, "Unable To Generate Status Id", nil))
	}

	status := StatusPost{
		User:      author.Participant(),
		ImageURL:  imageURL,
		Timestamp: c.now().UnixMilli(),
	}
	if err := c.backend.Set(ctx, statusCollection, id, status); err != nil {
		return c.fail(newError(ErrPersistence, "Failed to post status", err))
	}

	c.log.WithField("userId", author.UserID).Info("status posted")
	return nil
}
